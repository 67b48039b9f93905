package server

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/cristianradulescu/format-ls/internal/logging"
	"go.lsp.dev/protocol"
)

// clientWindow shows the format-on-save picker with window/showMessageRequest.
type clientWindow struct {
	s       *Server
	message string
}

func (w *clientWindow) Alive() bool {
	if w.s.shuttingDown.Load() {
		return false
	}

	select {
	case <-w.s.conn.Done():
		return false
	default:
		return true
	}
}

func (w *clientWindow) ShowQuickPanel(ctx context.Context, items []string, onSelect func(index int)) {
	if len(items) == 0 {
		w.s.showWindowMessage(ctx, protocol.MessageTypeInfo, fmt.Sprintf("%s: no formatters", w.message))
		onSelect(-1)
		return
	}

	actions := make([]protocol.MessageActionItem, 0, len(items))
	for _, item := range items {
		actions = append(actions, protocol.MessageActionItem{Title: item})
	}

	params := &protocol.ShowMessageRequestParams{
		Type:    protocol.MessageTypeInfo,
		Message: w.message,
		Actions: actions,
	}

	var chosen *protocol.MessageActionItem
	if _, err := w.s.conn.Call(ctx, protocol.MethodWindowShowMessageRequest, params, &chosen); err != nil {
		if !errors.Is(err, context.Canceled) {
			log.Printf("%s%s Picker request failed: %v", logging.LogTagLSP, logging.LogTagServer, err)
		}
		onSelect(-1)
		return
	}

	if chosen == nil {
		onSelect(-1)
		return
	}
	for i, item := range items {
		if item == chosen.Title {
			onSelect(i)
			return
		}
	}
	onSelect(-1)
}
