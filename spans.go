// spans.go — sidecar span table for editor tooling
//
// Every syntactic token and markdown node across a document contributes one
// (start, end, kind, id) quadruple. Offsets index the *flattened* document
// text produced by the markdown extractor, so a span maps straight onto
// what an editor shows. Ids follow the stable contracts:
//
//	markdown nodes  "<docId>|<n>"        (code blocks add a "|block" suffix)
//	lex tokens      "<blockId>|<n>"
//	IR nodes        "<blockId>|<n>"      (sub-blocks "<parentId>|sub<n>")
//
// Optional per-span metadata (heading level, list data, link destination)
// lives in the document's ExtraInfo map, keyed by span id.
package eve

// SpanEntry is one recorded span over the flattened text.
type SpanEntry struct {
	Start int    `json:"start"`
	End   int    `json:"end"`
	Kind  string `json:"kind"`
	ID    string `json:"id"`
}

// SpanTable accumulates spans in the order they are produced: markdown
// spans for a block precede that block's token spans only because the
// extractor runs first; no ordering holds across blocks.
type SpanTable struct {
	entries []SpanEntry
}

// NewSpanTable returns an empty table.
func NewSpanTable() *SpanTable { return &SpanTable{} }

// Push records one span.
func (t *SpanTable) Push(start, end int, kind, id string) {
	t.entries = append(t.entries, SpanEntry{Start: start, End: end, Kind: kind, ID: id})
}

// Entries returns the recorded spans in insertion order.
func (t *SpanTable) Entries() []SpanEntry { return t.entries }

// Len reports the number of recorded spans.
func (t *SpanTable) Len() int { return len(t.entries) }

// Flat renders the table as the wire-level flat sequence, four entries per
// span: [start0, end0, kind0, id0, start1, ...].
func (t *SpanTable) Flat() []any {
	out := make([]any, 0, len(t.entries)*4)
	for _, e := range t.entries {
		out = append(out, e.Start, e.End, e.Kind, e.ID)
	}
	return out
}

// ListData describes the list that owns an item span.
type ListData struct {
	Ordered bool   `json:"ordered"`
	Start   int    `json:"start,omitempty"`
	Marker  string `json:"marker,omitempty"`
}

// ExtraInfo is optional metadata attached to a span id.
type ExtraInfo struct {
	Level       int       `json:"level,omitempty"`
	ListData    *ListData `json:"listData,omitempty"`
	Destination string    `json:"destination,omitempty"`
}
