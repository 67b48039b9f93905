package dispatch

import "sort"

// Region is a half-open byte span [Start, End) of a view's text.
type Region struct {
	Start int
	End   int
}

func (r Region) Empty() bool {
	return r.End <= r.Start
}

// MergeRegions sorts regions by start and joins the ones that overlap, so
// edits made per region never overlap each other.
func MergeRegions(regions []Region) []Region {
	if len(regions) < 2 {
		return regions
	}

	sorted := make([]Region, len(regions))
	copy(sorted, regions)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Start < sorted[j].Start
	})

	merged := sorted[:1]
	for _, r := range sorted[1:] {
		last := &merged[len(merged)-1]
		if r.Start < last.End {
			last.End = max(last.End, r.End)
			continue
		}
		merged = append(merged, r)
	}

	return merged
}

// View is an open document as the dispatcher sees it. Regions passed to
// Substr and Replace always address the text the view held when the current
// command started; implementations take care of shifting later edits.
type View interface {
	// Source is the identifier used to pick a formatter, e.g. a language id.
	Source() string
	Path() string
	Size() int
	Substr(r Region) string
	// Selection returns the selected regions in selection order.
	Selection() []Region
	Replace(r Region, text string)
}

type edit struct {
	region Region
	text   string
}

// Buffer is an in-memory View. Edits are recorded against the original text
// and applied by String.
type Buffer struct {
	source    string
	path      string
	text      string
	selection []Region
	edits     []edit
}

func NewBuffer(source, path, text string, selection ...Region) *Buffer {
	return &Buffer{
		source:    source,
		path:      path,
		text:      text,
		selection: MergeRegions(selection),
	}
}

func (b *Buffer) Source() string {
	return b.source
}

func (b *Buffer) Path() string {
	return b.path
}

func (b *Buffer) Size() int {
	return len(b.text)
}

func (b *Buffer) Substr(r Region) string {
	r = b.clamp(r)
	return b.text[r.Start:r.End]
}

func (b *Buffer) Selection() []Region {
	return b.selection
}

func (b *Buffer) Replace(r Region, text string) {
	b.edits = append(b.edits, edit{region: b.clamp(r), text: text})
}

// Modified reports whether any edit was recorded.
func (b *Buffer) Modified() bool {
	return len(b.edits) > 0
}

// String returns the text with all recorded edits applied. Overlapping edits
// keep the one recorded first.
func (b *Buffer) String() string {
	if len(b.edits) == 0 {
		return b.text
	}

	edits := make([]edit, 0, len(b.edits))
	for _, e := range b.edits {
		overlaps := false
		for _, kept := range edits {
			if e.region.Start < kept.region.End && kept.region.Start < e.region.End {
				overlaps = true
				break
			}
		}
		if !overlaps {
			edits = append(edits, e)
		}
	}
	sort.SliceStable(edits, func(i, j int) bool {
		return edits[i].region.Start < edits[j].region.Start
	})

	out := make([]byte, 0, len(b.text))
	last := 0
	for _, e := range edits {
		out = append(out, b.text[last:e.region.Start]...)
		out = append(out, e.text...)
		last = e.region.End
	}
	out = append(out, b.text[last:]...)

	return string(out)
}

func (b *Buffer) clamp(r Region) Region {
	if r.Start < 0 {
		r.Start = 0
	}
	if r.End > len(b.text) {
		r.End = len(b.text)
	}
	if r.End < 0 {
		r.End = 0
	}
	if r.Start > r.End {
		r.Start = r.End
	}
	return r
}
