// markdown.go — CommonMark extraction for literate documents
//
// Eve programs live in fenced code blocks inside ordinary CommonMark
// documents. The extractor walks the parsed tree with entering/leaving
// events and produces three things at once: the flattened document text
// (with synthetic newlines keeping its line structure aligned with the
// source), the list of code blocks to hand to the block parser, and spans
// for inline styles, headings, list items, links, and code.
//
// CommonMark parsing itself is delegated to goldmark; everything here
// works off the walker events and the byte segments goldmark reports.
package eve

import (
	"fmt"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// CodeBlock is one fenced region to be parsed as an Eve block.
type CodeBlock struct {
	ID          string
	Literal     string
	StartOffset int // offset of the literal within the flattened text
	Line        int // 1-based source line the block starts on
}

type openContainer struct {
	node  ast.Node
	start int
}

type extractor struct {
	docID      string
	src        []byte
	lineStarts []int

	n        int // markdown node counter
	pos      int // cursor into the flattened text
	lastLine int
	text     strings.Builder
	stack    []openContainer

	spans  *SpanTable
	extra  map[string]*ExtraInfo
	blocks []CodeBlock
}

type extractResult struct {
	text   string
	blocks []CodeBlock
	extra  map[string]*ExtraInfo
}

func newExtractor(docID string, spans *SpanTable) *extractor {
	return &extractor{
		docID:    docID,
		spans:    spans,
		extra:    map[string]*ExtraInfo{},
		lastLine: 1,
	}
}

func (e *extractor) extract(source string) (*extractResult, error) {
	e.src = []byte(source)
	e.lineStarts = lineStarts(e.src)
	root := goldmark.New().Parser().Parse(text.NewReader(e.src))
	if err := ast.Walk(root, e.visit); err != nil {
		return &extractResult{text: e.text.String(), blocks: e.blocks, extra: e.extra}, err
	}
	if len(e.stack) != 0 {
		return nil, &InvariantError{Msg: fmt.Sprintf("%d containers left open after the walk", len(e.stack))}
	}
	return &extractResult{text: e.text.String(), blocks: e.blocks, extra: e.extra}, nil
}

func lineStarts(src []byte) []int {
	starts := []int{0}
	for i, b := range src {
		if b == '\n' {
			starts = append(starts, i+1)
		}
	}
	return starts
}

// lineOf maps a byte offset in the source to its 1-based line.
func (e *extractor) lineOf(offset int) int {
	return sort.Search(len(e.lineStarts), func(i int) bool { return e.lineStarts[i] > offset })
}

func (e *extractor) nextID() string {
	id := fmt.Sprintf("%s|%d", e.docID, e.n)
	e.n++
	return id
}

// realign emits synthetic newlines until the flattened text has caught up
// with the given source line, so per-block offsets survive downstream.
func (e *extractor) realign(line int) {
	for e.lastLine < line {
		e.text.WriteByte('\n')
		e.pos++
		e.lastLine++
	}
}

func (e *extractor) append(s string) {
	e.text.WriteString(s)
	e.pos += len(s)
}

func (e *extractor) push(n ast.Node) {
	e.stack = append(e.stack, openContainer{node: n, start: e.pos})
}

// popMatching pops the container for a leaving event. A mismatch means the
// walker protocol was violated, which is fatal.
func (e *extractor) popMatching(n ast.Node) (int, error) {
	if len(e.stack) == 0 {
		return 0, &InvariantError{Msg: fmt.Sprintf("leaving %s with no open container", n.Kind())}
	}
	top := e.stack[len(e.stack)-1]
	if top.node != n {
		return 0, &InvariantError{Msg: fmt.Sprintf("leaving %s does not match open %s", n.Kind(), top.node.Kind())}
	}
	e.stack = e.stack[:len(e.stack)-1]
	return top.start, nil
}

func (e *extractor) visit(n ast.Node, entering bool) (ast.WalkStatus, error) {
	switch n.Kind() {
	case ast.KindText:
		if entering {
			t := n.(*ast.Text)
			seg := t.Segment
			e.realign(e.lineOf(seg.Start))
			e.append(string(e.src[seg.Start:seg.Stop]))
			if t.SoftLineBreak() || t.HardLineBreak() {
				e.text.WriteByte('\n')
				e.pos++
				e.lastLine++
			}
		}

	case ast.KindFencedCodeBlock, ast.KindCodeBlock:
		if entering {
			e.enterCodeBlock(n)
			return ast.WalkSkipChildren, nil
		}

	case ast.KindCodeSpan:
		if entering {
			if off, ok := nodeStartOffset(n); ok {
				e.realign(e.lineOf(off))
			}
			start := e.pos
			for c := n.FirstChild(); c != nil; c = c.NextSibling() {
				if t, ok := c.(*ast.Text); ok {
					e.append(string(e.src[t.Segment.Start:t.Segment.Stop]))
				}
			}
			e.spans.Push(start, e.pos, "code", e.nextID())
			return ast.WalkSkipChildren, nil
		}

	case ast.KindEmphasis:
		if entering {
			e.push(n)
		} else {
			start, err := e.popMatching(n)
			if err != nil {
				return ast.WalkStop, err
			}
			kind := "emph"
			if n.(*ast.Emphasis).Level > 1 {
				kind = "strong"
			}
			e.spans.Push(start, e.pos, kind, e.nextID())
		}

	case ast.KindLink:
		if entering {
			e.push(n)
		} else {
			start, err := e.popMatching(n)
			if err != nil {
				return ast.WalkStop, err
			}
			id := e.nextID()
			e.spans.Push(start, e.pos, "link", id)
			e.extra[id] = &ExtraInfo{Destination: string(n.(*ast.Link).Destination)}
		}

	case ast.KindHeading:
		if entering {
			if off, ok := nodeStartOffset(n); ok {
				e.realign(e.lineOf(off))
			}
			e.push(n)
		} else {
			start, err := e.popMatching(n)
			if err != nil {
				return ast.WalkStop, err
			}
			id := e.nextID()
			e.spans.Push(start, start, "heading", id)
			e.extra[id] = &ExtraInfo{Level: n.(*ast.Heading).Level}
		}

	case ast.KindListItem:
		if entering {
			if off, ok := nodeStartOffset(n); ok {
				e.realign(e.lineOf(off))
			}
			e.push(n)
		} else {
			start, err := e.popMatching(n)
			if err != nil {
				return ast.WalkStop, err
			}
			id := e.nextID()
			e.spans.Push(start, start, "item", id)
			if list, ok := n.Parent().(*ast.List); ok {
				e.extra[id] = &ExtraInfo{ListData: &ListData{
					Ordered: list.IsOrdered(),
					Start:   list.Start,
					Marker:  string(list.Marker),
				}}
			}
		}
	}
	return ast.WalkContinue, nil
}

// enterCodeBlock flattens the block's literal content, records its span and
// emitted entry, and realigns the line counter past the block.
func (e *extractor) enterCodeBlock(n ast.Node) {
	lines := n.Lines()
	var literal strings.Builder
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		literal.Write(e.src[seg.Start:seg.Stop])
	}

	fenceLine := e.lastLine
	if lines.Len() > 0 {
		// the opening fence sits on the line before the first content line
		fenceLine = e.lineOf(lines.At(0).Start) - 1
	}
	e.realign(fenceLine)

	start := e.pos
	e.append(literal.String())
	id := e.nextID() + "|block"
	e.spans.Push(start, e.pos, "code_block", id)
	line := fenceLine
	e.blocks = append(e.blocks, CodeBlock{ID: id, Literal: literal.String(), StartOffset: start, Line: line})

	if lines.Len() > 0 {
		last := lines.At(lines.Len() - 1)
		// one past the closing fence line
		e.lastLine = e.lineOf(last.Stop-1) + 2
	} else {
		e.lastLine = fenceLine + 2
	}
}

// nodeStartOffset finds the first source byte a node covers: its own block
// lines, a text segment, or the earliest descendant that has either.
func nodeStartOffset(n ast.Node) (int, bool) {
	if t, ok := n.(*ast.Text); ok {
		return t.Segment.Start, true
	}
	if n.Type() == ast.TypeBlock && n.Lines().Len() > 0 {
		return n.Lines().At(0).Start, true
	}
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if off, ok := nodeStartOffset(c); ok {
			return off, true
		}
	}
	return 0, false
}
