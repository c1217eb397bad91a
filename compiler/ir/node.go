package ir

import "tlog.app/go/errors"

// VisitMark tracks graph-walk state for a Node. Passes use it to avoid
// re-entering a node and to abort descent cheaply.
type VisitMark uint8

const (
	Unvisited VisitMark = iota
	Visiting
	Visited
)

// useList is a multiset of referring nodes. Insert is O(1); removal by
// identity is a linear scan of the list, not O(1). Order does not matter
// semantically, only multiplicity.
type useList []*Node

func (u useList) count(n *Node) int {
	c := 0

	for _, x := range u {
		if x == n {
			c++
		}
	}

	return c
}

func (u *useList) insert(n *Node) {
	*u = append(*u, n)
}

// remove drops one occurrence of n, swapping the tail element into its
// place. Panics if n is not present, since that indicates a coherence bug.
func (u *useList) remove(n *Node) {
	s := *u

	for i, x := range s {
		if x == n {
			s[i] = s[len(s)-1]
			*u = s[:len(s)-1]
			return
		}
	}

	panic(errors.New("use list coherence violated: %v not found", n))
}

// Value is a lightweight handle to the k-th output of a node. The zero
// Value is "no value" and must not be dereferenced.
type Value struct {
	Node  *Node
	Index int
}

// Nil is the canonical empty value, used where an operand is optional.
var Nil = Value{}

func (v Value) IsValid() bool { return v.Node != nil }

func (v Value) Type() Type {
	return v.Node.outputTypes[v.Index]
}

func (v Value) Opcode() Opcode {
	return v.Node.Opcode
}

func (v Value) IsConst() bool {
	return v.Node.Opcode == Constant
}

func (v Value) ConstValue() uint64 {
	return v.Node.Attribute
}

// Uses returns the nodes that currently reference this value, one entry
// per operand edge (so a node using the same value twice appears twice).
func (v Value) Uses() []*Node {
	return append([]*Node(nil), v.Node.uses[v.Index]...)
}

func (v Value) UseCount() int {
	return len(v.Node.uses[v.Index])
}

func (a Value) Equal(b Value) bool {
	return a.Node == b.Node && a.Index == b.Index
}

// Node owns an ordered list of operand values, an ordered list of output
// types, per-output use lists, an opcode, an attribute slot, a
// pass-private scratch slot, and a visitation mark. Nodes live on the
// graph's heap and must not be copied.
type Node struct {
	Opcode      Opcode
	operands    []Value
	outputTypes []Type
	uses        []useList

	// Attribute carries opcode-specific payload: a constant's numeric
	// value, a load_register/store_register register number, or a
	// cast's sext flag.
	Attribute uint64
	// Ptr carries opcode-specific pointer payload: a block's mate
	// terminator, or an emulate node's raw guest instruction.
	Ptr any

	Scratch uint64

	visit VisitMark

	graph *Graph
}

// newNode allocates a node with the given opcode, output types and
// operands, links it into its operands' use lists, and registers it with
// the graph that owns it. Callers should use Builder rather than this
// directly so that per-opcode invariants in §4.1 are enforced.
func newNode(g *Graph, opcode Opcode, outputs []Type, operands []Value) *Node {
	n := &Node{
		Opcode:      opcode,
		operands:    append([]Value(nil), operands...),
		outputTypes: append([]Type(nil), outputs...),
		uses:        make([]useList, len(outputs)),
		graph:       g,
	}

	n.link()
	g.manage(n)

	return n
}

func (n *Node) link() {
	for _, op := range n.operands {
		op.Node.uses[op.Index].insert(n)
	}
}

func (n *Node) unlink() {
	for _, op := range n.operands {
		op.Node.uses[op.Index].remove(n)
	}
}

// ValueCount returns how many distinct outputs this node produces.
func (n *Node) ValueCount() int { return len(n.outputTypes) }

// Value returns a handle to the node's k-th output.
func (n *Node) Value(index int) Value { return Value{Node: n, Index: index} }

// OutputType returns the type of the node's k-th output.
func (n *Node) OutputType(index int) Type { return n.outputTypes[index] }

// Operands returns the node's operand list. Callers must not mutate the
// returned slice; use OperandSet/OperandAdd/OperandUpdate instead.
func (n *Node) Operands() []Value { return n.operands }

func (n *Node) OperandCount() int { return len(n.operands) }

func (n *Node) Operand(index int) Value {
	if index >= len(n.operands) {
		panic(errors.New("operand index %d out of range (have %d)", index, len(n.operands)))
	}

	return n.operands[index]
}

// OperandSet replaces operand index with value, maintaining use-list
// coherence (invariant 1 in §3).
func (n *Node) OperandSet(index int, value Value) {
	old := n.operands[index]

	value.Node.uses[value.Index].insert(n)
	old.Node.uses[old.Index].remove(n)

	n.operands[index] = value
}

// OperandAdd appends a new operand, used by the block-level analysis to
// add keepalive edges to end.
func (n *Node) OperandAdd(value Value) {
	n.operands = append(n.operands, value)
	value.Node.uses[value.Index].insert(n)
}

func (n *Node) OperandSwap(i, j int) {
	n.operands[i], n.operands[j] = n.operands[j], n.operands[i]
}

// OperandUpdate rewrites the first operand edge pointing at oldvalue to
// point at newvalue instead. Used when a pass narrows which predecessor a
// node depends on without touching the rest of the operand list.
func (n *Node) OperandUpdate(oldvalue, newvalue Value) {
	for i, op := range n.operands {
		if op.Equal(oldvalue) {
			n.OperandSet(i, newvalue)
			return
		}
	}

	panic(errors.New("operand %v not found on %v", oldvalue, n.Opcode))
}

func (n *Node) Mark(m VisitMark) { n.visit = m }
func (n *Node) Visit() VisitMark { return n.visit }

// Mate returns the paired terminator for a Block node, or the paired
// Block for a Jmp/If terminator, once the block-marker pass has run.
func (n *Node) Mate() *Node {
	m, _ := n.Ptr.(*Node)
	return m
}

func (n *Node) SetMate(m *Node) { n.Ptr = m }

// Graph owns every node created through it: their allocation, their
// operand/use coherence, and their eventual reclamation.
type Graph struct {
	heap  []*Node
	entry *Node
	root  *Node
}

// NewGraph allocates a fresh graph with its Start node pre-created, as
// required by §3 ("entry — pre-created start; yields a memory token").
func NewGraph() *Graph {
	g := &Graph{}
	g.entry = newNode(g, Start, []Type{Memory}, nil)

	return g
}

func (g *Graph) manage(n *Node) { g.heap = append(g.heap, n) }

// Entry returns the graph's Start node.
func (g *Graph) Entry() *Node { return g.entry }

// Root anchors what the current pass treats as live; it is typically an
// End node.
func (g *Graph) Root() *Node     { return g.root }
func (g *Graph) SetRoot(n *Node) { g.root = n }

// Nodes returns every node the graph currently owns, live or not. Passes
// should walk from Root via operand edges instead of using this directly;
// it exists for garbage collection and diagnostics.
func (g *Graph) Nodes() []*Node { return g.heap }

// GarbageCollect retains only nodes reachable from Root (and transitively
// from Entry), freeing everything else. It is not necessary during a
// single block's compilation, only useful to shrink a graph that will be
// cached.
func (g *Graph) GarbageCollect() {
	for _, n := range g.heap {
		n.visit = Unvisited
	}

	g.entry.visit = Visited

	if g.root != nil {
		markReachable(g.root)
	}

	live := g.heap[:0]

	for _, n := range g.heap {
		if n.visit == Visited {
			live = append(live, n)
			continue
		}

		n.unlink()
		n.operands = nil
	}

	g.heap = live
}

func markReachable(n *Node) {
	if n.visit == Visited {
		return
	}

	n.visit = Visited

	for _, op := range n.operands {
		markReachable(op.Node)
	}
}
