// eve.go — public entry points for the Eve front end
//
// Three ways in:
//
//	ParseDoc    — a CommonMark document: markdown extraction, then a
//	              lex+parse of every fenced code block.
//	ParseSource — a raw literate document without CommonMark: the doc-mode
//	              lexer and the parser's document rule handle prose lines
//	              and fences directly.
//	ParseBlock  — a single block of Eve code, lexed in code mode. Used by
//	              the document paths and by single-block callers (REPLs,
//	              tests, editor tooling).
//
// Parsing is single-threaded per document; independent documents may be
// parsed concurrently as long as each call gets its own inputs. The
// default document id counter is atomic for exactly that reason.
package eve

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Version of the front end.
const Version = "0.4.0"

var docCounter atomic.Int64

func defaultDocID() string {
	return fmt.Sprintf("doc|%d", docCounter.Add(1))
}

// DocResults is the payload of a document parse.
type DocResults struct {
	Blocks    []*Block              `json:"blocks"`
	Text      string                `json:"text"`
	Spans     []SpanEntry           `json:"spans"`
	ExtraInfo map[string]*ExtraInfo `json:"extraInfo"`
}

// DocResult bundles the payload with timing and accumulated errors. The
// payload of a failed parse is returned as-is and is not guaranteed to be
// consistent; check Errors first.
type DocResult struct {
	Results DocResults    `json:"results"`
	Time    time.Duration `json:"time"`
	Errors  []error       `json:"-"`
}

// BlockResult is the outcome of parsing one block.
type BlockResult struct {
	Results *Block        `json:"results"`
	Lex     []Token       `json:"lex"`
	Time    time.Duration `json:"time"`
	Errors  []error       `json:"-"`
}

// ParseDoc parses a CommonMark document. docID defaults to a monotonically
// increasing "doc|<n>".
func ParseDoc(text string, docID ...string) *DocResult {
	id := ""
	if len(docID) > 0 {
		id = docID[0]
	}
	if id == "" {
		id = defaultDocID()
	}
	start := time.Now()
	spans := NewSpanTable()
	ex := newExtractor(id, spans)
	res, err := ex.extract(text)
	out := &DocResult{}
	if err != nil {
		out.Errors = append(out.Errors, err)
	}
	if res != nil {
		out.Results.Text = res.text
		out.Results.ExtraInfo = res.extra
		for _, cb := range res.blocks {
			br := ParseBlock(cb.Literal, cb.ID, cb.StartOffset, spans)
			if br.Results != nil {
				out.Results.Blocks = append(out.Results.Blocks, br.Results)
			}
			out.Errors = append(out.Errors, br.Errors...)
		}
	}
	out.Results.Spans = spans.Entries()
	out.Time = time.Since(start)
	return out
}

// ParseBlock lexes source in code mode and parses it into a block IR.
// Token ids become "<blockID>|<index>" and, when a span table is supplied,
// each token contributes a span shifted by offset into the enclosing
// document text.
func ParseBlock(source, blockID string, offset int, spans *SpanTable) *BlockResult {
	start := time.Now()
	lx := NewLexer(source, ModeCode)
	toks, err := lx.Scan()
	if err != nil {
		return &BlockResult{Errors: []error{err}, Time: time.Since(start)}
	}
	for i := range toks {
		toks[i].ID = fmt.Sprintf("%s|%d", blockID, i)
		if spans != nil && toks[i].Type != EOF {
			s := offset + toks[i].Offset
			spans.Push(s, s+len(toks[i].Image), toks[i].Type.Label(), toks[i].ID)
		}
	}
	p := newParser(toks)
	b, perr := p.codeBlock(blockID)
	res := &BlockResult{Results: b, Lex: toks, Time: time.Since(start)}
	if perr != nil {
		res.Errors = append(res.Errors, perr)
	}
	return res
}

// ParseSource parses a raw literate document with the doc-mode lexer: prose
// lines name the fenced blocks that follow them. No markdown spans are
// produced; token spans land in the result's span table.
func ParseSource(text string, docID ...string) *DocResult {
	id := ""
	if len(docID) > 0 {
		id = docID[0]
	}
	if id == "" {
		id = defaultDocID()
	}
	start := time.Now()
	out := &DocResult{Results: DocResults{Text: text, ExtraInfo: map[string]*ExtraInfo{}}}
	spans := NewSpanTable()
	lx := NewLexer(text, ModeDoc)
	toks, err := lx.Scan()
	if err != nil {
		out.Errors = append(out.Errors, err)
		out.Time = time.Since(start)
		return out
	}
	for i := range toks {
		toks[i].ID = fmt.Sprintf("%s|%d", id, i)
		if toks[i].Type != EOF {
			spans.Push(toks[i].Offset, toks[i].Offset+len(toks[i].Image), toks[i].Type.Label(), toks[i].ID)
		}
	}
	p := newParser(toks)
	blocks, perr := p.doc(id)
	out.Results.Blocks = blocks
	out.Results.Spans = spans.Entries()
	if perr != nil {
		out.Errors = append(out.Errors, perr)
	}
	out.Time = time.Since(start)
	return out
}
