// block.go — the mutable per-block IR container
//
// A Block is one parsing scope. The parser mutates the current block as it
// descends; negation and if branches open sub-blocks. Variables resolves
// the names *used* in this block; VariableLookup is the identity map and is
// shared by reference with every sub-block, so a name first mentioned in a
// nested scope resolves to the same node when it later appears outside.
package eve

import "fmt"

// Equality is one a = b pair recorded by a block.
type Equality [2]Node

// Block is the IR for one parsing scope.
type Block struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	// Type is "not" for negation sub-blocks, empty otherwise.
	Type string `json:"type,omitempty"`

	Variables      map[string]*Variable `json:"variables"`
	VariableLookup map[string]*Variable `json:"-"`
	Equalities     []Equality           `json:"equalities"`
	ScanLike       []Node               `json:"scanLike"`
	Expressions    []Node               `json:"expressions"`
	Binds          []Node               `json:"binds"`
	Commits        []Node               `json:"commits"`
	From           []Node               `json:"-"`

	nodeID int
	subID  int
}

// NewBlock allocates an empty root block.
func NewBlock(id string) *Block {
	return &Block{
		ID:             id,
		Variables:      map[string]*Variable{},
		VariableLookup: map[string]*Variable{},
	}
}

func (b *Block) NodeType() string { return "block" }
func (b *Block) NodeID() string   { return b.ID }

func (b *Block) nextID() string {
	id := fmt.Sprintf("%s|%d", b.ID, b.nodeID)
	b.nodeID++
	return id
}

// makeNode assigns the node an id from this block unless it already has
// one, and returns it.
func (b *Block) makeNode(n irNode) irNode {
	if n.NodeID() == "" {
		n.setID(b.nextID())
	}
	return n
}

// toVariable resolves a name to its one variable node. The identity comes
// from VariableLookup (possibly inherited from an outer block); every
// reference also records the name in Variables, the locals of this block.
func (b *Block) toVariable(name string, generated bool) *Variable {
	if v, ok := b.VariableLookup[name]; ok {
		b.Variables[name] = v
		return v
	}
	v := &Variable{Name: name, Generated: generated}
	b.makeNode(v)
	b.VariableLookup[name] = v
	b.Variables[name] = v
	return v
}

func (b *Block) equality(left, right Node) { b.Equalities = append(b.Equalities, Equality{left, right}) }
func (b *Block) scan(n Node)               { b.ScanLike = append(b.ScanLike, n) }
func (b *Block) expression(n Node)         { b.Expressions = append(b.Expressions, n) }
func (b *Block) bind(n Node)               { b.Binds = append(b.Binds, n) }
func (b *Block) commit(n Node)             { b.Commits = append(b.Commits, n) }

// subBlock allocates a child scope. The child's VariableLookup is the same
// map as the parent's — writes leak upward on purpose — while Variables
// starts empty to record only the names the child actually uses.
func (b *Block) subBlock() *Block {
	id := fmt.Sprintf("%s|sub%d", b.ID, b.subID)
	b.subID++
	return &Block{
		ID:             id,
		Variables:      map[string]*Variable{},
		VariableLookup: b.VariableLookup,
	}
}
