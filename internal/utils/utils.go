package utils

import (
	"os"
	"path/filepath"
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/cristianradulescu/format-ls/internal/config"
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"
)

func URIToPath(u protocol.DocumentURI) string {
	s := string(u)
	if !strings.HasPrefix(s, uri.FileScheme+"://") {
		return s
	}

	parsed, err := uri.Parse(s)
	if err != nil {
		return strings.TrimPrefix(s, "file://")
	}

	return parsed.Filename()
}

// Find the project root directory by looking for the config file
func FindProjectRoot(filePath string) string {
	dir := filepath.Dir(filePath)

	for {
		for _, name := range config.ConfigFileNames {
			if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
				return dir
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached filesystem root
			break
		}
		dir = parent
	}

	// If no config found, use the directory of the file
	return filepath.Dir(filePath)
}

// lineBreakLen returns the length of the line break starting at text[i]:
// 2 for "\r\n", 1 for a lone "\r" or "\n", 0 otherwise.
func lineBreakLen(text string, i int) int {
	switch text[i] {
	case '\n':
		return 1
	case '\r':
		if i+1 < len(text) && text[i+1] == '\n' {
			return 2
		}
		return 1
	}
	return 0
}

// OffsetAt converts an LSP position, counted in UTF-16 code units, to a byte
// offset into text. Lines end at "\n", "\r\n" or "\r". Positions past the
// end of a line or of the text clamp.
func OffsetAt(text string, pos protocol.Position) int {
	offset := 0
	for line := uint32(0); line < pos.Line; line++ {
		next := strings.IndexAny(text[offset:], "\r\n")
		if next < 0 {
			return len(text)
		}
		offset += next
		offset += lineBreakLen(text, offset)
	}

	units := uint32(0)
	for offset < len(text) && units < pos.Character {
		r, size := utf8.DecodeRuneInString(text[offset:])
		if r == '\n' || r == '\r' {
			break
		}
		units += uint32(utf16.RuneLen(r))
		offset += size
	}

	return offset
}

// PositionAt converts a byte offset into text to an LSP position. An offset
// between the "\r" and "\n" of a line break maps to the end of that line.
func PositionAt(text string, offset int) protocol.Position {
	offset = max(0, min(offset, len(text)))

	line, lineStart := 0, 0
	for i := 0; i < offset; {
		n := lineBreakLen(text, i)
		if n == 0 {
			i++
			continue
		}
		if i+n > offset {
			offset = i
			break
		}
		i += n
		line++
		lineStart = i
	}

	units := 0
	for _, r := range text[lineStart:offset] {
		units += utf16.RuneLen(r)
	}

	return protocol.Position{Line: uint32(line), Character: uint32(units)}
}

var languageIDs = map[string]string{
	".c":     "c",
	".h":     "c",
	".cc":    "cpp",
	".cpp":   "cpp",
	".hpp":   "cpp",
	".cs":    "csharp",
	".css":   "css",
	".dart":  "dart",
	".go":    "go",
	".html":  "html",
	".java":  "java",
	".js":    "javascript",
	".mjs":   "javascript",
	".jsx":   "javascriptreact",
	".json":  "json",
	".kt":    "kotlin",
	".lua":   "lua",
	".md":    "markdown",
	".php":   "php",
	".py":    "python",
	".rb":    "ruby",
	".rs":    "rust",
	".scss":  "scss",
	".sh":    "shellscript",
	".bash":  "shellscript",
	".sql":   "sql",
	".swift": "swift",
	".toml":  "toml",
	".ts":    "typescript",
	".tsx":   "typescriptreact",
	".xml":   "xml",
	".yaml":  "yaml",
	".yml":   "yaml",
	".zig":   "zig",
}

// DetectLanguageID guesses the LSP language identifier of a file from its
// extension. It returns "" when the extension is unknown.
func DetectLanguageID(path string) string {
	return languageIDs[strings.ToLower(filepath.Ext(path))]
}
