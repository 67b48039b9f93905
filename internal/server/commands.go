package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/cristianradulescu/format-ls/internal/dispatch"
	"github.com/cristianradulescu/format-ls/internal/logging"
	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
)

type formatSelectionArgs struct {
	URI    protocol.DocumentURI `json:"uri"`
	Ranges []protocol.Range     `json:"ranges"`
}

type formatFileArgs struct {
	URI protocol.DocumentURI `json:"uri"`
}

type toggleFormatOnSaveArgs struct {
	Name  string `json:"name"`
	Value *bool  `json:"value"`
}

type manageFormatOnSaveArgs struct {
	Which string `json:"which"`
}

func (s *Server) handleExecuteCommand(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params protocol.ExecuteCommandParams
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		log.Printf("%s%s Error unmarshaling executeCommand params: %v", logging.LogTagLSP, logging.LogTagServer, err)
		return err
	}

	log.Printf("%s%s Executing command: %s", logging.LogTagLSP, logging.LogTagServer, params.Command)

	switch params.Command {
	case getFullLspCommandName(LspCommandNameShowConfig):
		return s.handleShowConfigCommand(ctx, reply)
	case getFullLspCommandName(LspCommandNameFormatSelection):
		return s.handleFormatSelectionCommand(ctx, reply, params.Arguments)
	case getFullLspCommandName(LspCommandNameFormatFile):
		return s.handleFormatFileCommand(ctx, reply, params.Arguments)
	case getFullLspCommandName(LspCommandNameToggleFormatOnSave):
		return s.handleToggleFormatOnSaveCommand(ctx, reply, params.Arguments)
	case getFullLspCommandName(LspCommandNameIsFormatOnSaveChecked):
		return s.handleIsFormatOnSaveCheckedCommand(ctx, reply, params.Arguments)
	case getFullLspCommandName(LspCommandNameManageFormatOnSave):
		return s.handleManageFormatOnSaveCommand(ctx, reply, params.Arguments)

	default:
		return reply(ctx, nil, fmt.Errorf("unknown command: %s", params.Command))
	}
}

func (s *Server) handleShowConfigCommand(ctx context.Context, reply jsonrpc2.Replier) error {
	s.showWindowMessage(ctx, protocol.MessageTypeInfo, fmt.Sprintf("Current configuration: %s", s.serverConfig.RawData))

	return reply(ctx, nil, nil)
}

func (s *Server) handleFormatSelectionCommand(ctx context.Context, reply jsonrpc2.Replier, arguments []interface{}) error {
	var args formatSelectionArgs
	if err := decodeCommandArgs(arguments, &args); err != nil {
		return reply(ctx, nil, err)
	}

	go func() {
		edits, err := s.formatSelection(ctx, args.URI, args.Ranges)
		s.replyWithAppliedEdits(ctx, reply, args.URI, "Format selection", edits, err)
	}()

	return nil
}

func (s *Server) handleFormatFileCommand(ctx context.Context, reply jsonrpc2.Replier, arguments []interface{}) error {
	var args formatFileArgs
	if err := decodeCommandArgs(arguments, &args); err != nil {
		return reply(ctx, nil, err)
	}

	go func() {
		edits, err := s.formatFile(ctx, args.URI)
		s.replyWithAppliedEdits(ctx, reply, args.URI, "Format file", edits, err)
	}()

	return nil
}

// replyWithAppliedEdits sends edits to the client through workspace/applyEdit
// and then answers the command. Formatter failures were already reported by
// the dispatcher and end the command quietly.
func (s *Server) replyWithAppliedEdits(ctx context.Context, reply jsonrpc2.Replier, uri protocol.DocumentURI, label string, edits []protocol.TextEdit, err error) {
	if err != nil && !isReported(err) {
		_ = reply(ctx, nil, err)
		return
	}
	if len(edits) == 0 {
		_ = reply(ctx, nil, nil)
		return
	}

	params := &protocol.ApplyWorkspaceEditParams{
		Label: label,
		Edit: protocol.WorkspaceEdit{
			Changes: map[protocol.DocumentURI][]protocol.TextEdit{uri: edits},
		},
	}

	var result protocol.ApplyWorkspaceEditResponse
	if _, callErr := s.conn.Call(ctx, protocol.MethodWorkspaceApplyEdit, params, &result); callErr != nil {
		log.Printf("%s%s Failed to apply edits: %v", logging.LogTagLSP, logging.LogTagServer, callErr)
		_ = reply(ctx, nil, callErr)
		return
	}
	if !result.Applied {
		log.Printf("%s%s Client rejected edits: %s", logging.LogTagLSP, logging.LogTagServer, result.FailureReason)
	}

	_ = reply(ctx, nil, nil)
}

func (s *Server) handleToggleFormatOnSaveCommand(ctx context.Context, reply jsonrpc2.Replier, arguments []interface{}) error {
	var args toggleFormatOnSaveArgs
	if err := decodeCommandArgs(arguments, &args); err != nil {
		return reply(ctx, nil, err)
	}

	if err := s.dispatcher.Toggle(args.Name, args.Value); err != nil {
		return reply(ctx, nil, err)
	}

	return reply(ctx, s.dispatcher.IsChecked(args.Name), nil)
}

func (s *Server) handleIsFormatOnSaveCheckedCommand(ctx context.Context, reply jsonrpc2.Replier, arguments []interface{}) error {
	var args toggleFormatOnSaveArgs
	if err := decodeCommandArgs(arguments, &args); err != nil {
		return reply(ctx, nil, err)
	}

	return reply(ctx, s.dispatcher.IsChecked(args.Name), nil)
}

func (s *Server) handleManageFormatOnSaveCommand(ctx context.Context, reply jsonrpc2.Replier, arguments []interface{}) error {
	var args manageFormatOnSaveArgs
	if err := decodeCommandArgs(arguments, &args); err != nil {
		return reply(ctx, nil, err)
	}

	which, err := dispatch.ParseWhich(args.Which)
	if err != nil {
		return reply(ctx, nil, err)
	}

	window := &clientWindow{
		s:       s,
		message: fmt.Sprintf("Toggle format on save (%s formatters)", which),
	}
	s.dispatcher.Manage(ctx, which, window)

	return reply(ctx, nil, nil)
}

// decodeCommandArgs decodes the first command argument, an object, into dst.
func decodeCommandArgs(arguments []interface{}, dst interface{}) error {
	if len(arguments) == 0 {
		return nil
	}

	data, err := json.Marshal(arguments[0])
	if err != nil {
		return fmt.Errorf("invalid command arguments: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("invalid command arguments: %w", err)
	}

	return nil
}
