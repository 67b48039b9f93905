package server

import (
	"github.com/cristianradulescu/format-ls/internal/dispatch"
	"github.com/cristianradulescu/format-ls/internal/utils"
	"go.lsp.dev/protocol"
)

// documentView exposes a snapshot of a synchronized document to the
// dispatcher and collects its replacements as LSP text edits.
type documentView struct {
	uri        protocol.DocumentURI
	languageID string
	text       string
	selection  []dispatch.Region
	edits      []protocol.TextEdit
}

func newDocumentView(uri protocol.DocumentURI, doc document, ranges ...protocol.Range) *documentView {
	v := &documentView{
		uri:        uri,
		languageID: doc.languageID,
		text:       doc.text,
	}
	selection := make([]dispatch.Region, 0, len(ranges))
	for _, r := range ranges {
		selection = append(selection, dispatch.Region{
			Start: utils.OffsetAt(doc.text, r.Start),
			End:   utils.OffsetAt(doc.text, r.End),
		})
	}
	// a single workspace edit must not contain overlapping text edits
	v.selection = dispatch.MergeRegions(selection)

	return v
}

func (v *documentView) Source() string {
	if v.languageID != "" {
		return v.languageID
	}
	return utils.DetectLanguageID(v.Path())
}

func (v *documentView) Path() string {
	return utils.URIToPath(v.uri)
}

func (v *documentView) Size() int {
	return len(v.text)
}

func (v *documentView) Substr(r dispatch.Region) string {
	start := max(0, min(r.Start, len(v.text)))
	end := max(start, min(r.End, len(v.text)))
	return v.text[start:end]
}

func (v *documentView) Selection() []dispatch.Region {
	return v.selection
}

func (v *documentView) Replace(r dispatch.Region, text string) {
	v.edits = append(v.edits, protocol.TextEdit{
		Range: protocol.Range{
			Start: utils.PositionAt(v.text, r.Start),
			End:   utils.PositionAt(v.text, r.End),
		},
		NewText: text,
	})
}

// Edits returns the collected edits, never nil so clients get [] and not null.
func (v *documentView) Edits() []protocol.TextEdit {
	if v.edits == nil {
		return []protocol.TextEdit{}
	}
	return v.edits
}
