package formatting

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNoFormatter      = errors.New("no formatter for source file")
	ErrUnknownFormatter = errors.New("unknown formatter")
	ErrEmptyOutput      = errors.New("formatter returned no output")
)

// FormatError carries what an external formatter printed when it failed.
type FormatError struct {
	Formatter string
	Output    string
	Detail    string
	Err       error
}

func (e *FormatError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "formatter %s failed", e.Formatter)
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if detail := strings.TrimSpace(e.Detail); detail != "" && (e.Err == nil || !strings.Contains(e.Err.Error(), detail)) {
		fmt.Fprintf(&b, " (%s)", detail)
	}
	return b.String()
}

func (e *FormatError) Unwrap() error {
	return e.Err
}
