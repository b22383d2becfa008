// parser.go — recursive-descent parser and lowerer for Eve blocks
//
// The parser recognizes surface syntax and lowers it into the current
// Block in the same pass: attribute access becomes chained scans over
// fresh value variables, infix chains become expression nodes threaded
// through synthetic result variables, records route themselves into the
// block's scanLike, binds, or commits lists, and negation and if branches
// open sub-blocks that share the outer variable environment.
//
// Rules return their value view — a node usable in argument position — and
// have already appended their side effects to the current block by the
// time they return. Recovery is disabled: the first error unwinds.
//
// A dedicated block stack replaces the implicit frame: every rule that
// pushes a sub-block pops it on all exit paths.
package eve

import (
	"fmt"
	"strconv"
	"strings"
)

type parser struct {
	toks []Token
	i    int

	blocks   []*Block
	scopes   []string
	blockKey string // "scan", "bind", or "commit" — where records route
	action   string // surface action carried by records, "" in match sections
}

func newParser(toks []Token) *parser {
	return &parser{toks: toks, blockKey: "scan"}
}

// ------------------------------------------------------------ token basics

func (p *parser) peek() Token {
	if p.i >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[p.i]
}

func (p *parser) peekNext() Token {
	if p.i+1 >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[p.i+1]
}

func (p *parser) atEnd() bool { return p.peek().Type == EOF }

func (p *parser) advance() Token {
	tok := p.peek()
	if !p.atEnd() {
		p.i++
	}
	return tok
}

func (p *parser) check(tt ...TokenType) bool {
	cur := p.peek().Type
	for _, t := range tt {
		if cur == t {
			return true
		}
	}
	return false
}

func (p *parser) checkNext(t TokenType) bool { return p.peekNext().Type == t }

func (p *parser) need(t TokenType, msg string) (Token, error) {
	if p.check(t) {
		return p.advance(), nil
	}
	return Token{}, p.errHere(msg)
}

func (p *parser) errHere(msg string) error {
	tok := p.peek()
	if tok.Type != EOF {
		msg = fmt.Sprintf("%s, got %q", msg, tok.Image)
	}
	return &ParseError{Line: tok.Line, Col: tok.Col, Msg: msg}
}

func (p *parser) invariantAt(tok Token, msg string) error {
	return &InvariantError{Line: tok.Line, Col: tok.Col, Msg: msg}
}

// ------------------------------------------------------------- block stack

func (p *parser) block() *Block { return p.blocks[len(p.blocks)-1] }

func (p *parser) pushBlock(b *Block) { p.blocks = append(p.blocks, b) }

func (p *parser) popBlock() { p.blocks = p.blocks[:len(p.blocks)-1] }

// route appends a record or action into the list named by the active
// section: scanLike for match, binds or commits for actions.
func (p *parser) route(n Node) {
	switch p.blockKey {
	case "bind":
		p.block().bind(n)
	case "commit":
		p.block().commit(n)
	default:
		p.block().scan(n)
	}
}

// genVar allocates a synthetic variable whose name embeds the position of
// the token that introduced it, guaranteeing uniqueness across
// independently introduced synthetics.
func (p *parser) genVar(base string, tok Token) *Variable {
	v := p.block().toVariable(fmt.Sprintf("%s-%d-%d", base, tok.Line, tok.Col), true)
	v.From = append(v.From, tok)
	return v
}

func (p *parser) constant(value any, from ...Node) *Constant {
	c := &Constant{Value: value, From: from}
	p.block().makeNode(c)
	return c
}

// ---------------------------------------------------------------- document

// doc parses a whole doc-mode token stream: prose content interleaved with
// fenced blocks. Each block is named by the most recent content line.
func (p *parser) doc(docID string) ([]*Block, error) {
	var blocks []*Block
	name := "Unnamed block"
	n := 0
	for !p.atEnd() {
		switch {
		case p.check(DOCCONTENT):
			line := strings.TrimSpace(p.advance().Image)
			if line != "" {
				name = line
			}
		case p.check(FENCE):
			p.advance()
			id := fmt.Sprintf("%s|%d|block", docID, n)
			n++
			b, err := p.codeBlock(id)
			if b != nil {
				b.Name = name
				blocks = append(blocks, b)
			}
			if err != nil {
				return blocks, err
			}
			if _, err := p.need(CLOSEFENCE, "expected a closing fence"); err != nil {
				return blocks, err
			}
		default:
			return blocks, p.errHere("expected prose or a fenced block")
		}
	}
	return blocks, nil
}

// ------------------------------------------------------------------- block

// codeBlock parses one fenced program into a fresh root block. On error the
// partially built block is still returned.
func (p *parser) codeBlock(id string) (*Block, error) {
	b := NewBlock(id)
	p.pushBlock(b)
	defer p.popBlock()
	for !p.atEnd() && !p.check(CLOSEFENCE) {
		if err := p.section(); err != nil {
			return b, err
		}
	}
	return b, nil
}

func (p *parser) section() error {
	switch {
	case p.check(COMMENT):
		p.advance()
		return nil
	case p.check(MATCH):
		return p.matchSection()
	case p.check(BIND), p.check(COMMIT):
		return p.actionSection()
	}
	return p.errHere("expected a match, bind, or commit section")
}

// scopeDeclaration parses "(" name+ ")" or a single name into scope strings.
func (p *parser) scopeDeclaration() ([]string, error) {
	var scopes []string
	if p.check(OPENPAREN) {
		p.advance()
		for p.check(NAME) {
			n, err := p.name()
			if err != nil {
				return nil, err
			}
			scopes = append(scopes, n.Name)
		}
		if _, err := p.need(CLOSEPAREN, "expected a closing ) for the scope declaration"); err != nil {
			return nil, err
		}
		if len(scopes) == 0 {
			return nil, p.errHere("expected at least one scope name")
		}
		return scopes, nil
	}
	n, err := p.name()
	if err != nil {
		return nil, err
	}
	return []string{n.Name}, nil
}

func (p *parser) sectionBoundary() bool {
	return p.atEnd() || p.check(CLOSEFENCE, MATCH, BIND, COMMIT)
}

func (p *parser) matchSection() error {
	p.advance() // match
	p.blockKey = "scan"
	p.action = ""
	p.scopes = []string{"session"}
	if p.check(NAME) || (p.check(OPENPAREN) && p.checkNext(NAME)) {
		scopes, err := p.scopeDeclaration()
		if err != nil {
			return err
		}
		p.scopes = scopes
	}
	for !p.sectionBoundary() {
		if err := p.statement(); err != nil {
			return err
		}
	}
	return nil
}

func (p *parser) actionSection() error {
	key := p.advance() // bind or commit
	if key.Type == BIND {
		p.blockKey = "bind"
	} else {
		p.blockKey = "commit"
	}
	p.action = "+="
	p.scopes = []string{"session"}
	if p.check(NAME) || (p.check(OPENPAREN) && p.checkNext(NAME)) {
		scopes, err := p.scopeDeclaration()
		if err != nil {
			return err
		}
		p.scopes = scopes
	}
	for !p.sectionBoundary() {
		if err := p.actionStatement(); err != nil {
			return err
		}
	}
	return nil
}

// -------------------------------------------------------- match statements

func (p *parser) statement() error {
	switch {
	case p.check(COMMENT):
		p.advance()
		return nil
	case p.check(NOT):
		return p.notStatement()
	}
	_, err := p.comparison(false)
	return err
}

// notStatement parses not( statement* ) into a negation sub-block appended
// to the outer block as a scan.
func (p *parser) notStatement() error {
	notTok := p.advance()
	open, err := p.need(OPENPAREN, "expected a ( after not")
	if err != nil {
		return err
	}
	sub := p.block().subBlock()
	sub.Type = "not"
	sub.From = []Node{notTok, open}
	p.pushBlock(sub)
	popped := false
	pop := func() {
		if !popped {
			popped = true
			p.popBlock()
		}
	}
	defer pop()
	for !p.check(CLOSEPAREN) && !p.atEnd() {
		if err := p.statement(); err != nil {
			return err
		}
	}
	if _, err := p.need(CLOSEPAREN, "expected a closing ) for not"); err != nil {
		return err
	}
	pop()
	p.block().scan(sub)
	return nil
}

// comparison parses expression ((comparison|equality) (expression|if))* and
// lowers each operator pair. With nonFiltering set (inside is(...)) every
// operator, equality included, becomes an expression node with a fresh
// result variable for the caller to consume.
func (p *parser) comparison(nonFiltering bool) (Node, error) {
	left, err := p.expression()
	if err != nil {
		return nil, err
	}
	first := left
	var emitted []Node
	for p.check(COMPARISON, EQUALITY) {
		opTok := p.advance()
		var right Node
		if p.check(IF) {
			right, err = p.ifExpression()
		} else {
			right, err = p.expression()
		}
		if err != nil {
			return nil, err
		}

		switch {
		case nonFiltering:
			lv, err := asValue(left)
			if err != nil {
				return nil, err
			}
			rv, err := asValue(right)
			if err != nil {
				return nil, err
			}
			result := p.genVar("result", opTok)
			expr := &Expression{Op: opTok.Image, Args: []Node{lv, rv}, Variable: result, From: []Node{lv, opTok, rv}}
			p.block().makeNode(expr)
			p.block().expression(expr)
			emitted = append(emitted, expr)

		case opTok.Type == EQUALITY:
			if err := p.lowerEquality(left, right, opTok); err != nil {
				return nil, err
			}

		default: // comparison operator: a filter, no result variable
			lv, err := asValue(left)
			if err != nil {
				return nil, err
			}
			rv, err := asValue(right)
			if err != nil {
				return nil, err
			}
			expr := &Expression{Op: opTok.Image, Args: []Node{lv, rv}, From: []Node{lv, opTok, rv}}
			p.block().makeNode(expr)
			p.block().expression(expr)
			emitted = append(emitted, expr)
		}
		// chained comparisons are pairwise: the next pair's left is the
		// right we just consumed
		left = right
	}
	if nonFiltering && len(emitted) > 0 {
		if len(emitted) == 1 {
			return emitted[0], nil
		}
		last := emitted[len(emitted)-1].(*Expression)
		c := &Comparison{Expressions: emitted, Variable: last.Variable, From: emitted}
		p.block().makeNode(c)
		return c, nil
	}
	return first, nil
}

func (p *parser) lowerEquality(left, right Node, opTok Token) error {
	if ifE, ok := right.(*IfExpression); ok {
		outs, err := ifOutputs(left)
		if err != nil {
			return err
		}
		ifE.Outputs = outs
		ifE.From = append(ifE.From, opTok)
		p.block().scan(ifE)
		return nil
	}
	if fr, ok := right.(*FunctionRecord); ok {
		if paren, ok := left.(*Parenthesis); ok {
			returns := make([]Node, 0, len(paren.Items))
			for _, item := range paren.Items {
				v, err := asValue(item)
				if err != nil {
					return err
				}
				returns = append(returns, v)
			}
			fr.Returns = returns
			p.block().equality(returns[0], fr.Variable)
			return nil
		}
	}
	if _, ok := left.(*Parenthesis); ok {
		return p.invariantAt(opTok, "a parenthesized left-hand side needs an if or a function on the right")
	}
	lv, err := asValue(left)
	if err != nil {
		return err
	}
	rv, err := asValue(right)
	if err != nil {
		return err
	}
	p.block().equality(lv, rv)
	return nil
}

// ------------------------------------------------------------- expressions

func (p *parser) expression() (Node, error) {
	if p.check(OPENBRACKET) {
		return p.record(recordOpts{blockKey: p.blockKey, action: p.action})
	}
	return p.infix()
}

func (p *parser) infix() (Node, error) { return p.addition() }

func (p *parser) addition() (Node, error) {
	left, err := p.multiplication()
	if err != nil {
		return nil, err
	}
	var emitted []Node
	for p.check(ADDINFIX) {
		opTok := p.advance()
		right, err := p.multiplication()
		if err != nil {
			return nil, err
		}
		left, err = p.lowerInfix(left, right, opTok)
		if err != nil {
			return nil, err
		}
		emitted = append(emitted, left)
	}
	return p.elideChain(left, emitted, func(v *Variable) irNode {
		return &Addition{Expressions: emitted, Variable: v, From: emitted}
	})
}

func (p *parser) multiplication() (Node, error) {
	left, err := p.infixValue()
	if err != nil {
		return nil, err
	}
	var emitted []Node
	for p.check(MULTINFIX) {
		opTok := p.advance()
		right, err := p.infixValue()
		if err != nil {
			return nil, err
		}
		left, err = p.lowerInfix(left, right, opTok)
		if err != nil {
			return nil, err
		}
		emitted = append(emitted, left)
	}
	return p.elideChain(left, emitted, func(v *Variable) irNode {
		return &Multiplication{Expressions: emitted, Variable: v, From: emitted}
	})
}

// lowerInfix emits one left-associative step: a fresh result variable bound
// by an expression over the two operand values.
func (p *parser) lowerInfix(left, right Node, opTok Token) (Node, error) {
	lv, err := asValue(left)
	if err != nil {
		return nil, err
	}
	rv, err := asValue(right)
	if err != nil {
		return nil, err
	}
	result := p.genVar("result", opTok)
	expr := &Expression{Op: opTok.Image, Args: []Node{lv, rv}, Variable: result, From: []Node{lv, opTok, rv}}
	p.block().makeNode(expr)
	p.block().expression(expr)
	return expr, nil
}

// elideChain collapses a zero- or one-step operator chain to the value
// itself; longer chains wrap their expressions in a container node carrying
// the final result variable.
func (p *parser) elideChain(last Node, emitted []Node, wrap func(*Variable) irNode) (Node, error) {
	switch len(emitted) {
	case 0, 1:
		return last, nil
	}
	v := emitted[len(emitted)-1].(*Expression).Variable
	n := wrap(v)
	p.block().makeNode(n)
	return n.(Node), nil
}

func (p *parser) infixValue() (Node, error) {
	switch {
	case p.check(ID) && p.checkNext(DOT):
		return p.attributeAccess()
	case p.check(ID) && p.checkNext(OPENBRACKET):
		return p.functionRecord()
	case p.check(IS):
		return p.isExpression()
	case p.check(ID):
		return p.variable(false)
	case p.check(STRINGOPEN):
		return p.stringInterpolation()
	case p.check(NUM):
		return p.num()
	case p.check(TRUE, FALSE):
		return p.boolean()
	case p.check(OPENPAREN):
		return p.parenthesis()
	}
	return nil, p.errHere("expected a value")
}

func (p *parser) parenthesis() (Node, error) {
	open := p.advance()
	var items []Node
	for !p.check(CLOSEPAREN) && !p.atEnd() {
		e, err := p.expression()
		if err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	close, err := p.need(CLOSEPAREN, "expected a closing )")
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, p.errHere("expected at least one expression inside ( )")
	}
	if len(items) == 1 {
		return items[0], nil
	}
	paren := &Parenthesis{Items: items, From: append([]Node{open}, append(items, Node(close))...)}
	p.block().makeNode(paren)
	return paren, nil
}

func (p *parser) num() (Node, error) {
	tok := p.advance()
	f, err := strconv.ParseFloat(tok.Image, 64)
	if err != nil {
		return nil, p.invariantAt(tok, fmt.Sprintf("unparsable number %q", tok.Image))
	}
	return p.constant(f, tok), nil
}

func (p *parser) boolean() (Node, error) {
	tok := p.advance()
	return p.constant(tok.Type == TRUE, tok), nil
}

// stringInterpolation parses "chars {{ infix }} chars ...". A single
// constant collapses to itself; anything else lowers to a concat
// expression over the pieces, bound to a fresh variable.
func (p *parser) stringInterpolation() (Node, error) {
	open := p.advance()
	var parts []Node
	for !p.check(STRINGCLOSE) && !p.atEnd() {
		switch {
		case p.check(STRINGCHARS):
			tok := p.advance()
			parts = append(parts, p.constant(decodeString(tok.Image), tok))
		case p.check(EMBEDOPEN):
			p.advance()
			inner, err := p.infix()
			if err != nil {
				return nil, err
			}
			if _, err := p.need(EMBEDCLOSE, "expected a closing }} for the embedded expression"); err != nil {
				return nil, err
			}
			v, err := asValue(inner)
			if err != nil {
				return nil, err
			}
			parts = append(parts, v)
		default:
			return nil, p.errHere("expected string characters or an embedded expression")
		}
	}
	close, err := p.need(STRINGCLOSE, "expected a closing quote")
	if err != nil {
		return nil, err
	}
	if len(parts) == 0 {
		return p.constant("", open, close), nil
	}
	if len(parts) == 1 {
		if c, ok := parts[0].(*Constant); ok {
			return c, nil
		}
	}
	result := p.genVar("concat", open)
	expr := &Expression{Op: "concat", Args: parts, Variable: result, From: append([]Node{open}, append(parts, Node(close))...)}
	p.block().makeNode(expr)
	p.block().expression(expr)
	return expr, nil
}

// decodeString processes the six recognized escapes; any other backslash
// sequence is left intact.
func decodeString(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 >= len(s) {
			b.WriteByte(c)
			continue
		}
		switch s[i+1] {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		case '"':
			b.WriteByte('"')
		case '{':
			b.WriteByte('{')
		case '}':
			b.WriteByte('}')
		default:
			b.WriteByte('\\')
			b.WriteByte(s[i+1])
		}
		i++
	}
	return b.String()
}

// variable resolves an identifier token. With forceGenerate the stored name
// is suffixed with the token's position so that structurally identical
// identifiers in different positions do not collide.
func (p *parser) variable(forceGenerate bool) (*Variable, error) {
	tok, err := p.need(ID, "expected an identifier")
	if err != nil {
		return nil, err
	}
	name := tok.Image
	if forceGenerate {
		name = fmt.Sprintf("%s-%d-%d", tok.Image, tok.Line, tok.Col)
	}
	v := p.block().toVariable(name, forceGenerate)
	v.From = append(v.From, tok)
	return v, nil
}

func (p *parser) name() (*Name, error) {
	sigil, err := p.need(NAME, "expected an @")
	if err != nil {
		return nil, err
	}
	ident, err := p.need(ID, "expected an identifier after @")
	if err != nil {
		return nil, err
	}
	n := &Name{Name: ident.Image, From: []Node{sigil, ident}}
	p.block().makeNode(n)
	return n, nil
}

func (p *parser) tag() (*Tag, error) {
	sigil, err := p.need(TAG, "expected a #")
	if err != nil {
		return nil, err
	}
	ident, err := p.need(ID, "expected an identifier after #")
	if err != nil {
		return nil, err
	}
	t := &Tag{Tag: ident.Image, From: []Node{sigil, ident}}
	p.block().makeNode(t)
	return t, nil
}

// --------------------------------------------------------- attribute access

// attributeAccess lowers variable.a.b into chained scans: each dot step
// scans the current entity against the attribute into a fresh value
// variable, which becomes the entity of the next step. The final value
// variable is the expression's value.
func (p *parser) attributeAccess() (Node, error) {
	entity, err := p.variable(false)
	if err != nil {
		return nil, err
	}
	var parent Node = entity
	needsEntity := true
	for p.check(DOT) {
		dot := p.advance()
		attrTok, err := p.need(ID, "expected an attribute name after .")
		if err != nil {
			return nil, err
		}
		value := p.genVar(attrTok.Image, attrTok)
		scan := &Scan{
			Entity:      parent,
			Attribute:   p.constant(attrTok.Image, attrTok),
			Value:       value,
			NeedsEntity: needsEntity,
			Scopes:      p.scopes,
			From:        []Node{parent, dot, attrTok},
		}
		p.block().makeNode(scan)
		p.block().scan(scan)
		needsEntity = false
		parent = value
	}
	return parent, nil
}

// attributeMutator walks the same shape but leaves the final attribute
// unscanned, returning it with its parent for the enclosing action.
func (p *parser) attributeMutator() (*AttributeMutator, error) {
	entity, err := p.variable(false)
	if err != nil {
		return nil, err
	}
	var steps []Token
	from := []Node{entity}
	for p.check(DOT) {
		dot := p.advance()
		attrTok, err := p.need(ID, "expected an attribute name after .")
		if err != nil {
			return nil, err
		}
		steps = append(steps, attrTok)
		from = append(from, dot, attrTok)
	}
	if len(steps) == 0 {
		return nil, p.errHere("expected at least one .attribute")
	}
	parent := entity
	needsEntity := true
	for _, attrTok := range steps[:len(steps)-1] {
		value := p.genVar(attrTok.Image, attrTok)
		scan := &Scan{
			Entity:      parent,
			Attribute:   p.constant(attrTok.Image, attrTok),
			Value:       value,
			NeedsEntity: needsEntity,
			Scopes:      p.scopes,
			From:        []Node{parent, attrTok},
		}
		p.block().makeNode(scan)
		p.block().scan(scan)
		needsEntity = false
		parent = value
	}
	mut := &AttributeMutator{Attribute: steps[len(steps)-1], Parent: parent, From: from}
	p.block().makeNode(mut)
	return mut, nil
}

// ----------------------------------------------------------------- records

type recordOpts struct {
	noVar    bool
	blockKey string
	action   string
}

// record parses [ attribute* ] with | flipping the non-projecting flag for
// every attribute after it. Unless noVar is set the record allocates a
// synthetic non-projecting identity variable and routes itself into the
// block list named by blockKey.
func (p *parser) record(o recordOpts) (*Record, error) {
	open, err := p.need(OPENBRACKET, "expected a [")
	if err != nil {
		return nil, err
	}
	rec := &Record{Action: o.action, Scopes: p.scopes, From: []Node{open}}
	p.block().makeNode(rec)
	if !o.noVar {
		rec.Variable = p.genVar("record", open)
		rec.Variable.NonProjecting = true
	}
	nonProjecting := false
	for !p.check(CLOSEBRACKET) && !p.atEnd() {
		if p.check(PIPE) {
			rec.From = append(rec.From, p.advance())
			nonProjecting = true
			continue
		}
		attrs, err := p.attribute(rec, o)
		if err != nil {
			return nil, err
		}
		for _, a := range attrs {
			if nonProjecting {
				a.NonProjecting = true
			}
			rec.Attributes = append(rec.Attributes, a)
			rec.From = append(rec.From, a)
		}
	}
	close, err := p.need(CLOSEBRACKET, "expected a closing ] for this record")
	if err != nil {
		return nil, err
	}
	rec.From = append(rec.From, close)
	if !o.noVar {
		p.routeRecord(rec, o.blockKey)
	}
	return rec, nil
}

func (p *parser) routeRecord(rec *Record, blockKey string) {
	switch blockKey {
	case "bind":
		p.block().bind(rec)
	case "commit":
		p.block().commit(rec)
	default:
		p.block().scan(rec)
	}
}

// attribute parses one record member and may yield several attribute nodes
// (a multi-record equality) or none (a consumed negation).
func (p *parser) attribute(rec *Record, o recordOpts) ([]*Attribute, error) {
	switch {
	case p.check(NOT) && p.checkNext(OPENPAREN):
		return nil, p.attributeNot(rec, o)
	case p.check(ID, NUM) && p.checkNext(EQUALITY):
		return p.attributeEquality(o)
	case p.check(ID) && p.checkNext(COMPARISON):
		a, err := p.attributeComparison()
		if err != nil {
			return nil, err
		}
		return []*Attribute{a}, nil
	}
	a, err := p.singularAttribute(false)
	if err != nil {
		return nil, err
	}
	return []*Attribute{a}, nil
}

// singularAttribute parses @name, #tag, or a bare identifier whose value is
// the variable of the same name.
func (p *parser) singularAttribute(forceGenerate bool) (*Attribute, error) {
	switch {
	case p.check(NAME):
		n, err := p.name()
		if err != nil {
			return nil, err
		}
		a := &Attribute{Attribute: "name", Value: p.constant(n.Name, n), From: []Node{n}}
		p.block().makeNode(a)
		return a, nil
	case p.check(TAG):
		t, err := p.tag()
		if err != nil {
			return nil, err
		}
		a := &Attribute{Attribute: "tag", Value: p.constant(t.Tag, t), From: []Node{t}}
		p.block().makeNode(a)
		return a, nil
	case p.check(ID):
		tok := p.peek()
		v, err := p.variable(forceGenerate)
		if err != nil {
			return nil, err
		}
		a := &Attribute{Attribute: tok.Image, Value: v, From: []Node{tok}}
		p.block().makeNode(a)
		return a, nil
	}
	return nil, p.errHere("expected an attribute")
}

// attributeEquality parses name = value, where value is an infix expression
// or one or more records. Multiple records become a multi-valued attribute:
// each record receives an eve-auto-index attribute numbered from 1 in
// source order; the first record's index is only added once a second
// record makes auto-indexing real.
func (p *parser) attributeEquality(o recordOpts) ([]*Attribute, error) {
	nameTok := p.advance()
	var attrName any = nameTok.Image
	if nameTok.Type == NUM {
		f, err := strconv.ParseFloat(nameTok.Image, 64)
		if err != nil {
			return nil, p.invariantAt(nameTok, fmt.Sprintf("unparsable number %q", nameTok.Image))
		}
		attrName = f
	}
	eq := p.advance()
	if p.check(OPENBRACKET) {
		recs := []*Record{}
		for p.check(OPENBRACKET) {
			r, err := p.record(recordOpts{blockKey: o.blockKey, action: o.action})
			if err != nil {
				return nil, err
			}
			recs = append(recs, r)
			if len(recs) > 1 {
				p.addAutoIndex(recs[len(recs)-1], len(recs))
			}
		}
		if len(recs) > 1 {
			p.addAutoIndex(recs[0], 1)
		}
		attrs := make([]*Attribute, 0, len(recs))
		for _, r := range recs {
			a := &Attribute{Attribute: attrName, Value: r.Variable, From: []Node{nameTok, eq, r}}
			p.block().makeNode(a)
			attrs = append(attrs, a)
		}
		return attrs, nil
	}
	value, err := p.infix()
	if err != nil {
		return nil, err
	}
	v, err := asValue(value)
	if err != nil {
		return nil, err
	}
	a := &Attribute{Attribute: attrName, Value: v, From: []Node{nameTok, eq, v}}
	p.block().makeNode(a)
	return []*Attribute{a}, nil
}

func (p *parser) addAutoIndex(rec *Record, index int) {
	a := &Attribute{Attribute: "eve-auto-index", Value: p.constant(float64(index), rec), From: []Node{rec}}
	p.block().makeNode(a)
	rec.Attributes = append(rec.Attributes, a)
}

// attributeComparison parses name <op> expression inside a record: a fresh
// attribute variable is filtered by the comparison and becomes the
// attribute's value.
func (p *parser) attributeComparison() (*Attribute, error) {
	nameTok := p.advance()
	opTok := p.advance()
	right, err := p.expression()
	if err != nil {
		return nil, err
	}
	rv, err := asValue(right)
	if err != nil {
		return nil, err
	}
	attrVar := p.genVar(nameTok.Image, nameTok)
	expr := &Expression{Op: opTok.Image, Args: []Node{attrVar, rv}, From: []Node{nameTok, opTok, rv}}
	p.block().makeNode(expr)
	p.block().expression(expr)
	a := &Attribute{Attribute: nameTok.Image, Value: attrVar, From: []Node{nameTok, opTok}}
	p.block().makeNode(a)
	return a, nil
}

// attributeNot consumes not( ... ) inside a record: a negation sub-block
// scanning the enclosing record's identity against the negated attribute.
func (p *parser) attributeNot(rec *Record, o recordOpts) error {
	notTok := p.advance()
	open := p.advance()
	sub := p.block().subBlock()
	sub.Type = "not"
	sub.From = []Node{notTok, open}
	p.pushBlock(sub)
	popped := false
	pop := func() {
		if !popped {
			popped = true
			p.popBlock()
		}
	}
	defer pop()

	var attr *Attribute
	var err error
	if p.check(ID) && p.checkNext(COMPARISON) {
		attr, err = p.attributeComparison()
	} else {
		attr, err = p.singularAttribute(true)
	}
	if err != nil {
		return err
	}
	attrName := attr.Attribute
	scan := &Scan{
		Entity:      rec.Variable,
		Attribute:   p.constant(attrName, attr),
		Value:       attr.Value,
		NeedsEntity: true,
		Scopes:      p.scopes,
		From:        []Node{notTok, attr},
	}
	p.block().makeNode(scan)
	p.block().scan(scan)
	if rec.Variable != nil {
		sub.Variables[rec.Variable.Name] = rec.Variable
	}
	if _, err := p.need(CLOSEPAREN, "expected a closing ) for not"); err != nil {
		return err
	}
	pop()
	p.block().scan(sub)
	return nil
}

// --------------------------------------------------------- function records

// functionRecord parses identifier[...]. The first-class lookup form
// destructures its attributes into scan slots and emits the scan directly;
// anything else becomes a functionRecord expression bound to a fresh
// return variable.
func (p *parser) functionRecord() (Node, error) {
	identTok := p.advance()
	rec, err := p.record(recordOpts{noVar: true, blockKey: p.blockKey, action: p.action})
	if err != nil {
		return nil, err
	}
	if identTok.Image == "lookup" {
		slots := map[string]Node{}
		for _, a := range rec.Attributes {
			if name, ok := a.Attribute.(string); ok {
				slots[name] = a.Value
			}
		}
		scan := &Scan{
			Entity:      slots["record"],
			Attribute:   slots["attribute"],
			Value:       slots["value"],
			Node:        slots["node"],
			NeedsEntity: false,
			Scopes:      p.scopes,
			From:        []Node{identTok, rec},
		}
		p.block().makeNode(scan)
		p.block().scan(scan)
		return scan, nil
	}
	result := p.genVar("returns", identTok)
	fr := &FunctionRecord{Op: identTok.Image, Record: rec, Variable: result, From: []Node{identTok, rec}}
	p.block().makeNode(fr)
	p.block().expression(fr)
	return fr, nil
}

// ------------------------------------------------------------ is expression

// isExpression parses is( comparison* ) where every comparison is
// non-filtering: the collected result values feed an and expression bound
// to a fresh variable, which is the value of the whole form.
func (p *parser) isExpression() (Node, error) {
	isTok := p.advance()
	if _, err := p.need(OPENPAREN, "expected a ( after is"); err != nil {
		return nil, err
	}
	var args []Node
	for !p.check(CLOSEPAREN) && !p.atEnd() {
		c, err := p.comparison(true)
		if err != nil {
			return nil, err
		}
		v, err := asValue(c)
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}
	if _, err := p.need(CLOSEPAREN, "expected a closing ) for is"); err != nil {
		return nil, err
	}
	result := p.genVar("is", isTok)
	expr := &Expression{Op: "and", Args: args, Variable: result, From: append([]Node{isTok}, args...)}
	p.block().makeNode(expr)
	p.block().expression(expr)
	return expr, nil
}

// ------------------------------------------------------------ if expression

// ifExpression parses a branch chain. The caller (the equality machinery)
// attaches outputs and appends the expression to the outer block.
func (p *parser) ifExpression() (Node, error) {
	var branches []*IfBranch
	first, err := p.ifBranch(false)
	if err != nil {
		return nil, err
	}
	branches = append(branches, first)
	for {
		if p.check(IF) {
			b, err := p.ifBranch(false)
			if err != nil {
				return nil, err
			}
			branches = append(branches, b)
			continue
		}
		if p.check(ELSE) && p.checkNext(IF) {
			p.advance() // else
			b, err := p.ifBranch(true)
			if err != nil {
				return nil, err
			}
			branches = append(branches, b)
			continue
		}
		if p.check(ELSE) {
			b, err := p.elseBranch()
			if err != nil {
				return nil, err
			}
			branches = append(branches, b)
		}
		break
	}
	from := make([]Node, 0, len(branches))
	for _, b := range branches {
		from = append(from, b)
	}
	ifE := &IfExpression{Branches: branches, From: from}
	p.block().makeNode(ifE)
	return ifE, nil
}

func (p *parser) ifBranch(exclusive bool) (*IfBranch, error) {
	ifTok := p.advance() // if
	sub := p.block().subBlock()
	sub.From = []Node{ifTok}
	p.pushBlock(sub)
	popped := false
	pop := func() {
		if !popped {
			popped = true
			p.popBlock()
		}
	}
	defer pop()
	for !p.check(THEN) && !p.atEnd() {
		if err := p.statement(); err != nil {
			return nil, err
		}
	}
	if _, err := p.need(THEN, "expected a then for this if"); err != nil {
		return nil, err
	}
	out, err := p.expression()
	if err != nil {
		return nil, err
	}
	outs, err := ifOutputs(out)
	if err != nil {
		return nil, err
	}
	pop()
	branch := &IfBranch{Block: sub, Outputs: outs, Exclusive: exclusive, From: []Node{ifTok, sub}}
	p.block().makeNode(branch)
	return branch, nil
}

func (p *parser) elseBranch() (*IfBranch, error) {
	elseTok := p.advance() // else
	sub := p.block().subBlock()
	sub.From = []Node{elseTok}
	p.pushBlock(sub)
	popped := false
	pop := func() {
		if !popped {
			popped = true
			p.popBlock()
		}
	}
	defer pop()
	out, err := p.expression()
	if err != nil {
		return nil, err
	}
	outs, err := ifOutputs(out)
	if err != nil {
		return nil, err
	}
	pop()
	branch := &IfBranch{Block: sub, Outputs: outs, Exclusive: true, From: []Node{elseTok, sub}}
	p.block().makeNode(branch)
	return branch, nil
}

// ------------------------------------------------------- action statements

func (p *parser) actionStatement() error {
	switch {
	case p.check(COMMENT):
		p.advance()
		return nil
	case p.check(OPENBRACKET):
		// a bare record carries the section's add action
		_, err := p.record(recordOpts{blockKey: p.blockKey, action: "+="})
		return err
	case p.check(ID) && p.checkNext(EQUALITY):
		return p.actionEqualityRecord()
	case p.check(ID) && p.checkNext(DOT):
		return p.attributeOperation()
	case p.check(ID):
		return p.recordOperation()
	}
	return p.errHere("expected an action")
}

// actionEqualityRecord parses variable = record: the record's identity is
// the named variable instead of a synthetic one.
func (p *parser) actionEqualityRecord() error {
	v, err := p.variable(false)
	if err != nil {
		return err
	}
	if _, err := p.need(EQUALITY, "expected an ="); err != nil {
		return err
	}
	rec, err := p.record(recordOpts{noVar: true, blockKey: p.blockKey, action: "+="})
	if err != nil {
		return err
	}
	rec.Variable = v
	rec.From = append(rec.From, v)
	p.routeRecord(rec, p.blockKey)
	return nil
}

// recordOperation parses whole-entity actions: := none erases the entity,
// <- merges a record into it, += / -= add or remove a tag or name.
func (p *parser) recordOperation() error {
	v, err := p.variable(false)
	if err != nil {
		return err
	}
	switch {
	case p.check(SET):
		setTok := p.advance()
		noneTok, err := p.need(NONE, "expected none after := on an entity")
		if err != nil {
			return err
		}
		act := &Action{Action: "erase", Entity: v, From: []Node{v, setTok, noneTok}}
		p.block().makeNode(act)
		p.route(act)
		return nil

	case p.check(MERGE):
		mergeTok := p.advance()
		rec, err := p.record(recordOpts{noVar: true, blockKey: p.blockKey, action: "<-"})
		if err != nil {
			return err
		}
		rec.Variable = v
		v.NonProjecting = true
		rec.NeedsEntity = true
		rec.Action = "<-"
		rec.From = append(rec.From, mergeTok, v)
		p.routeRecord(rec, p.blockKey)
		return nil

	case p.check(MUTATE):
		opTok := p.advance()
		var attr string
		var value Node
		switch {
		case p.check(TAG):
			t, err := p.tag()
			if err != nil {
				return err
			}
			attr, value = "tag", p.constant(t.Tag, t)
		case p.check(NAME):
			n, err := p.name()
			if err != nil {
				return err
			}
			attr, value = "name", p.constant(n.Name, n)
		default:
			return p.errHere("expected a #tag or @name")
		}
		act := &Action{Action: opTok.Image, Entity: v, Attribute: attr, Value: value, From: []Node{v, opTok, value}}
		p.block().makeNode(act)
		p.route(act)
		return nil
	}
	return p.errHere("expected :=, <-, +=, or -= after the entity")
}

// attributeOperation parses dotted actions. The mutator's scans are already
// in the block; only the final attribute write is produced here.
func (p *parser) attributeOperation() error {
	mut, err := p.attributeMutator()
	if err != nil {
		return err
	}
	attrName := mut.Attribute.Image
	switch {
	case p.check(MERGE):
		mergeTok := p.advance()
		// scan for the current value of the attribute, then merge into it
		value := p.genVar(attrName, mut.Attribute)
		scan := &Scan{
			Entity:      mut.Parent,
			Attribute:   p.constant(attrName, mut.Attribute),
			Value:       value,
			NeedsEntity: true,
			Scopes:      p.scopes,
			From:        []Node{mut, mergeTok},
		}
		p.block().makeNode(scan)
		p.block().scan(scan)
		rec, err := p.record(recordOpts{noVar: true, blockKey: p.blockKey, action: "<-"})
		if err != nil {
			return err
		}
		rec.Variable = value
		rec.NeedsEntity = true
		rec.Action = "<-"
		rec.From = append(rec.From, mut, mergeTok)
		p.routeRecord(rec, p.blockKey)
		return nil

	case p.check(SET):
		setTok := p.advance()
		var value any
		switch {
		case p.check(NONE):
			p.advance()
			value = "erase"
		case p.check(OPENBRACKET):
			rec, err := p.record(recordOpts{blockKey: p.blockKey, action: "+="})
			if err != nil {
				return err
			}
			value = rec
		default:
			inner, err := p.infix()
			if err != nil {
				return err
			}
			v, err := asValue(inner)
			if err != nil {
				return err
			}
			value = v
		}
		act := &Action{Action: ":=", Entity: mut.Parent, Attribute: attrName, Value: value, From: []Node{mut, setTok}}
		p.block().makeNode(act)
		p.route(act)
		return nil

	case p.check(MUTATE):
		opTok := p.advance()
		value, err := p.actionAttributeExpression()
		if err != nil {
			return err
		}
		act := &Action{Action: opTok.Image, Entity: mut.Parent, Attribute: attrName, Value: value, From: []Node{mut, opTok, value}}
		p.block().makeNode(act)
		p.route(act)
		return nil
	}
	return p.errHere("expected <-, :=, +=, or -= after the attribute")
}

// actionAttributeExpression is the value of a += / -= attribute mutation:
// a tag, a name, or an infix expression.
func (p *parser) actionAttributeExpression() (Node, error) {
	switch {
	case p.check(TAG):
		t, err := p.tag()
		if err != nil {
			return nil, err
		}
		return p.constant(t.Tag, t), nil
	case p.check(NAME):
		n, err := p.name()
		if err != nil {
			return nil, err
		}
		return p.constant(n.Name, n), nil
	}
	inner, err := p.infix()
	if err != nil {
		return nil, err
	}
	return asValue(inner)
}
