// nodes.go — the per-block intermediate representation
//
// Every node carries a stable id of the form "<blockId>|<n>" and a From
// list of the tokens and child nodes it was lowered from, so downstream
// tooling can map IR back to source spans. The node's Go type is its
// discriminant; NodeType returns the wire-level tag.
package eve

import "fmt"

// Node is anything that can appear in a provenance list or an argument
// position: IR nodes and lexical tokens.
type Node interface {
	NodeType() string
	NodeID() string
}

// irNode is the subset of nodes whose ids are assigned by a block.
type irNode interface {
	Node
	setID(string)
}

// Variable is a name binding. Generated variables are compiler-introduced;
// their names embed the source line and column that introduced them so two
// independent synthetics can never collide.
type Variable struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Generated     bool   `json:"generated"`
	NonProjecting bool   `json:"nonProjecting"`
	From          []Node `json:"-"`
}

func (v *Variable) NodeType() string { return "variable" }
func (v *Variable) NodeID() string   { return v.ID }
func (v *Variable) setID(id string)  { v.ID = id }

// Constant is a literal string, number, or boolean.
type Constant struct {
	ID    string `json:"id"`
	Value any    `json:"value"`
	From  []Node `json:"-"`
}

func (c *Constant) NodeType() string { return "constant" }
func (c *Constant) NodeID() string   { return c.ID }
func (c *Constant) setID(id string)  { c.ID = id }

// Scan is a relational pattern over (entity, attribute, value). NeedsEntity
// marks scans whose entity must be supplied from outside rather than
// searched. Node is only populated by the first-class lookup form.
type Scan struct {
	ID          string   `json:"id"`
	Entity      Node     `json:"entity"`
	Attribute   Node     `json:"attribute"`
	Value       Node     `json:"value"`
	Node        Node     `json:"node,omitempty"`
	NeedsEntity bool     `json:"needsEntity"`
	Scopes      []string `json:"scopes"`
	From        []Node   `json:"-"`
}

func (s *Scan) NodeType() string { return "scan" }
func (s *Scan) NodeID() string   { return s.ID }
func (s *Scan) setID(id string)  { s.ID = id }

// Expression is an operation over argument values, optionally binding its
// result to Variable. Filtering comparisons have no result variable.
type Expression struct {
	ID       string    `json:"id"`
	Op       string    `json:"op"`
	Args     []Node    `json:"args"`
	Variable *Variable `json:"variable,omitempty"`
	From     []Node    `json:"-"`
}

func (e *Expression) NodeType() string { return "expression" }
func (e *Expression) NodeID() string   { return e.ID }
func (e *Expression) setID(id string)  { e.ID = id }

// Record is a braced literal of attributes. In match sections it scans; in
// action sections it produces facts according to Action. Variable is the
// record's identity.
type Record struct {
	ID              string       `json:"id"`
	Attributes      []*Attribute `json:"attributes"`
	Action          string       `json:"action,omitempty"`
	Scopes          []string     `json:"scopes"`
	Variable        *Variable    `json:"variable,omitempty"`
	NeedsEntity     bool         `json:"needsEntity"`
	ExtraProjection []Node       `json:"extraProjection,omitempty"`
	From            []Node       `json:"-"`
}

func (r *Record) NodeType() string { return "record" }
func (r *Record) NodeID() string   { return r.ID }
func (r *Record) setID(id string)  { r.ID = id }

// Attribute is one name/value pair of a record. Attribute is a string or a
// number. Attributes appearing after a | in their record are non-projecting.
type Attribute struct {
	ID            string `json:"id"`
	Attribute     any    `json:"attribute"`
	Value         Node   `json:"value"`
	NonProjecting bool   `json:"nonProjecting"`
	From          []Node `json:"-"`
}

func (a *Attribute) NodeType() string { return "attribute" }
func (a *Attribute) NodeID() string   { return a.ID }
func (a *Attribute) setID(id string)  { a.ID = id }

// AttributeMutator is the left-hand side of a dotted action statement:
// the final attribute token and the entity it hangs off.
type AttributeMutator struct {
	ID        string    `json:"id"`
	Attribute Token     `json:"attribute"`
	Parent    *Variable `json:"parent"`
	From      []Node    `json:"-"`
}

func (m *AttributeMutator) NodeType() string { return "attributeMutator" }
func (m *AttributeMutator) NodeID() string   { return m.ID }
func (m *AttributeMutator) setID(id string)  { m.ID = id }

// Action is a fact mutation: "+", "-", "erase", "<-", ":=" and friends.
// Value is a value node, a *Record, or the literal string "erase".
type Action struct {
	ID        string `json:"id"`
	Action    string `json:"action"`
	Entity    Node   `json:"entity"`
	Attribute any    `json:"attribute,omitempty"`
	Value     any    `json:"value,omitempty"`
	From      []Node `json:"-"`
}

func (a *Action) NodeType() string { return "action" }
func (a *Action) NodeID() string   { return a.ID }
func (a *Action) setID(id string)  { a.ID = id }

// FunctionRecord is a named function application whose arguments travel as
// a record, e.g. sin[degrees: 90]. Returns is populated when a parenthesized
// left-hand side destructures multiple results.
type FunctionRecord struct {
	ID       string    `json:"id"`
	Op       string    `json:"op"`
	Record   *Record   `json:"record"`
	Variable *Variable `json:"variable"`
	Returns  []Node    `json:"returns,omitempty"`
	From     []Node    `json:"-"`
}

func (f *FunctionRecord) NodeType() string { return "functionRecord" }
func (f *FunctionRecord) NodeID() string   { return f.ID }
func (f *FunctionRecord) setID(id string)  { f.ID = id }

// IfExpression is a chain of branches. Outputs is attached by the equality
// that consumes the expression.
type IfExpression struct {
	ID       string      `json:"id"`
	Branches []*IfBranch `json:"branches"`
	Outputs  []Node      `json:"outputs,omitempty"`
	From     []Node      `json:"-"`
}

func (i *IfExpression) NodeType() string { return "ifExpression" }
func (i *IfExpression) NodeID() string   { return i.ID }
func (i *IfExpression) setID(id string)  { i.ID = id }

// IfBranch is one branch: its condition statements live in Block, its
// result values in Outputs. The first plain if branch is non-exclusive;
// else-if and else branches are exclusive.
type IfBranch struct {
	ID        string `json:"id"`
	Block     *Block `json:"block"`
	Outputs   []Node `json:"outputs"`
	Exclusive bool   `json:"exclusive"`
	From      []Node `json:"-"`
}

func (i *IfBranch) NodeType() string { return "ifBranch" }
func (i *IfBranch) NodeID() string   { return i.ID }
func (i *IfBranch) setID(id string)  { i.ID = id }

// Name is an @-reference.
type Name struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	From []Node `json:"-"`
}

func (n *Name) NodeType() string { return "name" }
func (n *Name) NodeID() string   { return n.ID }
func (n *Name) setID(id string)  { n.ID = id }

// Tag is a #-reference.
type Tag struct {
	ID   string `json:"id"`
	Tag  string `json:"tag"`
	From []Node `json:"-"`
}

func (t *Tag) NodeType() string { return "tag" }
func (t *Tag) NodeID() string   { return t.ID }
func (t *Tag) setID(id string)  { t.ID = id }

// Parenthesis groups multiple values; a single parenthesized item collapses
// to the item and never produces this node.
type Parenthesis struct {
	ID    string `json:"id"`
	Items []Node `json:"items"`
	From  []Node `json:"-"`
}

func (p *Parenthesis) NodeType() string { return "parenthesis" }
func (p *Parenthesis) NodeID() string   { return p.ID }
func (p *Parenthesis) setID(id string)  { p.ID = id }

// Comparison, Addition, and Multiplication aggregate the expression chain
// lowered from an operator sequence; a single-operator chain elides the
// container and the expression itself is used.
type Comparison struct {
	ID          string    `json:"id"`
	Expressions []Node    `json:"expressions"`
	Variable    *Variable `json:"variable,omitempty"`
	From        []Node    `json:"-"`
}

func (c *Comparison) NodeType() string { return "comparison" }
func (c *Comparison) NodeID() string   { return c.ID }
func (c *Comparison) setID(id string)  { c.ID = id }

type Addition struct {
	ID          string    `json:"id"`
	Expressions []Node    `json:"expressions"`
	Variable    *Variable `json:"variable,omitempty"`
	From        []Node    `json:"-"`
}

func (a *Addition) NodeType() string { return "addition" }
func (a *Addition) NodeID() string   { return a.ID }
func (a *Addition) setID(id string)  { a.ID = id }

type Multiplication struct {
	ID          string    `json:"id"`
	Expressions []Node    `json:"expressions"`
	Variable    *Variable `json:"variable,omitempty"`
	From        []Node    `json:"-"`
}

func (m *Multiplication) NodeType() string { return "multiplication" }
func (m *Multiplication) NodeID() string   { return m.ID }
func (m *Multiplication) setID(id string)  { m.ID = id }

// asValue narrows a node to something usable in argument position: a
// constant, variable, or parenthesis passes through; anything carrying a
// result variable yields that variable. Everything else is an invariant
// violation.
func asValue(n Node) (Node, error) {
	switch v := n.(type) {
	case *Constant, *Variable, *Parenthesis:
		return n, nil
	case *Expression:
		if v.Variable != nil {
			return v.Variable, nil
		}
	case *Record:
		if v.Variable != nil {
			return v.Variable, nil
		}
	case *FunctionRecord:
		if v.Variable != nil {
			return v.Variable, nil
		}
	case *Comparison:
		if v.Variable != nil {
			return v.Variable, nil
		}
	case *Addition:
		if v.Variable != nil {
			return v.Variable, nil
		}
	case *Multiplication:
		if v.Variable != nil {
			return v.Variable, nil
		}
	}
	return nil, &InvariantError{Msg: fmt.Sprintf("%s node has no value", n.NodeType())}
}

// ifOutputs lists the values an if expression binds: each item of a
// parenthesized left-hand side in source order, or the single value itself.
func ifOutputs(n Node) ([]Node, error) {
	if p, ok := n.(*Parenthesis); ok {
		outs := make([]Node, 0, len(p.Items))
		for _, item := range p.Items {
			v, err := asValue(item)
			if err != nil {
				return nil, err
			}
			outs = append(outs, v)
		}
		return outs, nil
	}
	v, err := asValue(n)
	if err != nil {
		return nil, err
	}
	return []Node{v}, nil
}
