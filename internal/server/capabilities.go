package server

import (
	"fmt"

	"github.com/cristianradulescu/format-ls/internal/config"
	"go.lsp.dev/protocol"
)

const (
	LspCommandPrefix    = config.Name
	LspCommandSeparator = "/"

	LspCommandNameShowConfig            = "showConfig"
	LspCommandNameFormatSelection       = "formatSelection"
	LspCommandNameFormatFile            = "formatFile"
	LspCommandNameToggleFormatOnSave    = "toggleFormatOnSave"
	LspCommandNameIsFormatOnSaveChecked = "isFormatOnSaveChecked"
	LspCommandNameManageFormatOnSave    = "manageFormatOnSave"
)

var lspCommandNames = []string{
	LspCommandNameShowConfig,
	LspCommandNameFormatSelection,
	LspCommandNameFormatFile,
	LspCommandNameToggleFormatOnSave,
	LspCommandNameIsFormatOnSaveChecked,
	LspCommandNameManageFormatOnSave,
}

func serverCapabilities() protocol.ServerCapabilities {
	commands := make([]string, 0, len(lspCommandNames))
	for _, name := range lspCommandNames {
		commands = append(commands, getFullLspCommandName(name))
	}

	return protocol.ServerCapabilities{
		TextDocumentSync: &protocol.TextDocumentSyncOptions{
			Change:            protocol.TextDocumentSyncKindFull,
			OpenClose:         true,
			WillSaveWaitUntil: true,
			Save:              &protocol.SaveOptions{IncludeText: false},
		},
		ExecuteCommandProvider: &protocol.ExecuteCommandOptions{
			Commands: commands,
		},
		DocumentFormattingProvider:      true,
		DocumentRangeFormattingProvider: true,
	}
}

func serverInfo() *protocol.ServerInfo {
	return &protocol.ServerInfo{
		Name:    string(config.Name),
		Version: string(config.Version),
	}
}

func getFullLspCommandName(command string) string {
	return fmt.Sprintf("%s%s%s", LspCommandPrefix, LspCommandSeparator, command)
}
