// Package pass implements the depth-first post-order graph walker that
// every optimisation pass is built on (§4.3), plus the value-replacement
// helper passes use to rewrite the graph in place.
package pass

import (
	"tlog.app/go/errors"

	"github.com/rv64dbt/core/compiler/ir"
)

// Pass is the minimal interface a graph walk requires: a decision at each
// node about whether to descend into its operands, and a post-order
// callback once its operands (if visited) are done.
type Pass interface {
	// Before runs on entry to n. Returning false skips descending into
	// n's operands ("abort-children").
	Before(n *ir.Node) bool
	After(n *ir.Node)
}

// starter and finisher are optional hooks a Pass may additionally
// implement; Run calls them once each, outside the per-node walk.
type starter interface{ Start() }
type finisher interface{ Finish() }

// Run walks every node reachable from root in depth-first post-order,
// driving p. Reset should be called first if the graph carries visitation
// marks left over from an earlier pass.
func Run(root *ir.Node, p Pass) {
	if s, ok := p.(starter); ok {
		s.Start()
	}

	walk(root, p)

	if f, ok := p.(finisher); ok {
		f.Finish()
	}
}

func walk(n *ir.Node, p Pass) {
	if n.Visit() == ir.Visited {
		return
	}

	n.Mark(ir.Visiting)

	if p.Before(n) {
		for _, op := range n.Operands() {
			walk(op.Node, p)
		}
	}

	p.After(n)
	n.Mark(ir.Visited)
}

// Reset clears every node's visitation mark so a fresh pass can walk the
// graph again.
func Reset(g *ir.Graph) {
	for _, n := range g.Nodes() {
		n.Mark(ir.Unvisited)
	}
}

// Replace rewrites every use of old to point at new instead, maintaining
// the coherence invariant (§8 property 1). The replaced value's type must
// be preserved; old's former producer is left in the graph, unreachable,
// to be reclaimed by the next garbage_collect.
func Replace(old, new ir.Value) {
	if old.Equal(new) {
		return
	}

	assertf(old.Type() == new.Type(), "replace must preserve type: %v -> %v", old.Type(), new.Type())

	for _, user := range old.Uses() {
		replaceOperand(user, old, new)
	}
}

func replaceOperand(n *ir.Node, old, new ir.Value) {
	for i, op := range n.Operands() {
		if op.Equal(old) {
			n.OperandSet(i, new)
		}
	}
}

func assertf(cond bool, format string, args ...any) {
	if !cond {
		panic(errors.New(format, args...))
	}
}
