// markdown_test.go
package eve

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yuin/goldmark/ast"
)

const literateDoc = "# Counter\n\nSome *text* here\n\n```\nmatch\n[#person]\n```\n"

func spansByKind(spans []SpanEntry, kind string) []SpanEntry {
	var out []SpanEntry
	for _, s := range spans {
		if s.Kind == kind {
			out = append(out, s)
		}
	}
	return out
}

func Test_Markdown_Extracts_Code_Blocks(t *testing.T) {
	res := ParseDoc(literateDoc, "doc|t1")
	require.Empty(t, res.Errors)
	require.Len(t, res.Results.Blocks, 1)
	assert.Len(t, res.Results.Blocks[0].ScanLike, 1)
}

func Test_Markdown_Offsets_Round_Trip(t *testing.T) {
	res := ParseDoc(literateDoc, "doc|t2")
	require.Empty(t, res.Errors)
	text := res.Results.Text

	blocks := spansByKind(res.Results.Spans, "code_block")
	require.Len(t, blocks, 1)
	assert.Equal(t, "match\n[#person]\n", text[blocks[0].Start:blocks[0].End])
	assert.Contains(t, blocks[0].ID, "|block")

	emph := spansByKind(res.Results.Spans, "emph")
	require.Len(t, emph, 1)
	assert.Equal(t, "text", text[emph[0].Start:emph[0].End])

	// token spans index the same flattened text
	for _, s := range spansByKind(res.Results.Spans, "section") {
		assert.Equal(t, "match", text[s.Start:s.End])
	}
	for _, s := range res.Results.Spans {
		require.LessOrEqual(t, s.Start, s.End)
		require.LessOrEqual(t, s.End, len(text))
	}
}

func Test_Markdown_Heading_Spans_Are_Zero_Width(t *testing.T) {
	res := ParseDoc("## Two\n", "doc|t3")
	require.Empty(t, res.Errors)
	heads := spansByKind(res.Results.Spans, "heading")
	require.Len(t, heads, 1)
	assert.Equal(t, heads[0].Start, heads[0].End)
	info := res.Results.ExtraInfo[heads[0].ID]
	require.NotNil(t, info)
	assert.Equal(t, 2, info.Level)
}

func Test_Markdown_Links_Carry_Destinations(t *testing.T) {
	res := ParseDoc("see [the docs](http://example.com/x) now\n", "doc|t4")
	require.Empty(t, res.Errors)
	links := spansByKind(res.Results.Spans, "link")
	require.Len(t, links, 1)
	assert.Equal(t, "the docs", res.Results.Text[links[0].Start:links[0].End])
	info := res.Results.ExtraInfo[links[0].ID]
	require.NotNil(t, info)
	assert.Equal(t, "http://example.com/x", info.Destination)
}

func Test_Markdown_List_Items(t *testing.T) {
	res := ParseDoc("- first\n- second\n", "doc|t5")
	require.Empty(t, res.Errors)
	items := spansByKind(res.Results.Spans, "item")
	require.Len(t, items, 2)
	for _, it := range items {
		assert.Equal(t, it.Start, it.End)
		info := res.Results.ExtraInfo[it.ID]
		require.NotNil(t, info)
		require.NotNil(t, info.ListData)
		assert.False(t, info.ListData.Ordered)
		assert.Equal(t, "-", info.ListData.Marker)
	}
}

func Test_Markdown_Inline_Code_Spans(t *testing.T) {
	res := ParseDoc("use `lookup` here\n", "doc|t6")
	require.Empty(t, res.Errors)
	codes := spansByKind(res.Results.Spans, "code")
	require.Len(t, codes, 1)
	assert.Equal(t, "lookup", res.Results.Text[codes[0].Start:codes[0].End])
}

func Test_Markdown_Line_Realignment(t *testing.T) {
	doc := "one\n\n\n\n```\nmatch\n[#late]\n```\n"
	res := ParseDoc(doc, "doc|t7")
	require.Empty(t, res.Errors)
	blocks := spansByKind(res.Results.Spans, "code_block")
	require.Len(t, blocks, 1)
	// the synthetic newlines keep the block on its original line
	prefix := res.Results.Text[:blocks[0].Start]
	assert.Equal(t, 4, countNewlines(prefix))
}

func countNewlines(s string) int {
	n := 0
	for _, r := range s {
		if r == '\n' {
			n++
		}
	}
	return n
}

func Test_Markdown_Doc_Ids_Are_Unique(t *testing.T) {
	res := ParseDoc(literateDoc, "doc|t8")
	require.Empty(t, res.Errors)
	seen := map[string]bool{}
	for _, s := range res.Results.Spans {
		assert.False(t, seen[s.ID], "duplicate span id %s", s.ID)
		seen[s.ID] = true
	}
}

func Test_Markdown_Default_Doc_Ids_Increment(t *testing.T) {
	a := ParseDoc("*hello*\n")
	b := ParseDoc("*world*\n")
	require.Empty(t, a.Errors)
	require.Empty(t, b.Errors)
	assert.NotEqual(t, a.Results.Text, "")
	// each parse draws its own implicit "doc|<n>" id from the atomic
	// counter, so the span ids of the two documents differ
	ea := spansByKind(a.Results.Spans, "emph")
	eb := spansByKind(b.Results.Spans, "emph")
	require.Len(t, ea, 1)
	require.Len(t, eb, 1)
	assert.Contains(t, ea[0].ID, "doc|")
	assert.NotEqual(t, ea[0].ID, eb[0].ID)
}

func Test_Markdown_Pop_Mismatch_Is_Fatal(t *testing.T) {
	e := newExtractor("doc|t9", NewSpanTable())
	e.push(ast.NewHeading(1))
	_, err := e.popMatching(ast.NewEmphasis(2))
	require.Error(t, err)
	assert.IsType(t, &InvariantError{}, err)
}

func Test_Markdown_Block_Errors_Surface(t *testing.T) {
	res := ParseDoc("```\nmatch\n[#broken\n```\n", "doc|t10")
	require.NotEmpty(t, res.Errors)
	assert.IsType(t, &ParseError{}, res.Errors[0])
	// partial results still come back
	assert.Len(t, res.Results.Blocks, 1)
}
