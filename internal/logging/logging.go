package logging

// Tags prepended to log lines so stderr output can be filtered by component.
const (
	LogTagLSP       = "[LSP]"
	LogTagMain      = "[MAIN]"
	LogTagServer    = "[SERVER]"
	LogTagConfig    = "[CONFIG]"
	LogTagRegistry  = "[REGISTRY]"
	LogTagFormat    = "[FMT]"
	LogTagDispatch  = "[DISPATCH]"
	LogTagContainer = "[CONTAINER]"
	LogTagCmd       = "[CMD]"
	LogTagLock      = "[LOCK]"
)
