// Package blockgraph implements the optional block-level graph analysis
// collaborator from §4.7: it treats the blocks a graph has already been
// partitioned into (by the block-marker pass) as nodes of their own
// graph and simplifies that structure — folding pass-through blocks and
// merging sole-successor chains — without touching the finer-grained
// node-level invariants the core passes maintain.
package blockgraph

import (
	"github.com/rv64dbt/core/compiler/ir"
	"github.com/rv64dbt/core/compiler/pass"
)

// Simplify enumerates every block reachable from g's root and folds
// blocks that are a single predecessor's sole successor into that
// predecessor, same as the reference implementation's block_combine
// pass: a block with exactly one incoming edge, entered by an
// unconditional jmp, is spliced out and its mate becomes the jmp's
// block's new mate.
//
// Unlike block_combine, this also maintains end's keepalive edges: any
// block across every block this pass ever considered that folding left
// with no path back to end gains a keepalive edge, so garbage_collect
// does not reclaim a block the back-end may still need to address.
// Pruning edges that become redundant is not attempted; see
// reconcileKeepalives.
func Simplify(g *ir.Graph) {
	seen := map[*ir.Node]bool{}
	changed := true

	for changed {
		changed = false

		pass.Reset(g)

		for _, block := range collectBlocks(g) {
			seen[block] = true

			if foldSingleEntry(block) {
				changed = true
			}
		}
	}

	all := make([]*ir.Node, 0, len(seen))
	for block := range seen {
		all = append(all, block)
	}

	reconcileKeepalives(g, all)
}

func collectBlocks(g *ir.Graph) []*ir.Node {
	var blocks []*ir.Node

	c := &collector{out: &blocks}
	pass.Run(g.Root(), c)

	return blocks
}

type collector struct {
	out *[]*ir.Node
}

func (c *collector) Before(n *ir.Node) bool { return true }

func (c *collector) After(n *ir.Node) {
	if n.Opcode == ir.Block {
		*c.out = append(*c.out, n)
	}
}

// foldSingleEntry merges block into its predecessor when block has
// exactly one entry and that entry is an unconditional jmp: the jmp's
// own block absorbs block's body, and the terminator pairing moves to
// whichever terminator block used to close with.
func foldSingleEntry(block *ir.Node) bool {
	if block.OperandCount() != 1 {
		return false
	}

	entry := block.Operand(0)
	if entry.Opcode() != ir.Jmp {
		return false
	}

	prevJmp := entry.Node
	prevBlock := prevJmp.Mate()

	if prevBlock == nil {
		return false
	}

	nextTerminator := block.Mate()

	pass.Replace(block.Value(0), prevJmp.Operand(0))

	if nextTerminator != nil {
		nextTerminator.SetMate(prevBlock)
		prevBlock.SetMate(nextTerminator)
	}

	return true
}

// reconcileKeepalives adds a control keepalive edge from end to every
// block that folding left without any path back to end's ordinary
// operands, so garbage_collect never reclaims a block the back-end still
// needs to address. A keepalive is distinguished from an ordinary end
// operand by use-count 2 on the value it targets (§3 invariant 5's
// sibling rule for end): inserting it through jmp's own control output,
// which is otherwise only consumed by the block it leads into, produces
// exactly that.
//
// Pruning keepalive edges that later folding makes redundant is not
// implemented: doing so would need to shrink end's operand list in
// place, and the node API deliberately only supports replacing an
// operand, not removing one, since every other pass only ever needs to
// retarget edges. A stray extra keepalive is harmless — it keeps a block
// alive that a later fold might have reclaimed sooner — so this is a
// missed optimisation, not a correctness gap.
func reconcileKeepalives(g *ir.Graph, blocks []*ir.Node) {
	end := g.Root()
	if end == nil || end.Opcode != ir.End {
		return
	}

	live := map[*ir.Node]bool{}
	markLive(end, live)

	for _, block := range blocks {
		if live[block] {
			continue
		}

		term := block.Mate()
		if term == nil || term.Opcode != ir.Jmp {
			continue
		}

		end.OperandAdd(term.Value(0))
		markLive(term, live)
	}
}

func markLive(n *ir.Node, live map[*ir.Node]bool) {
	if n == nil || live[n] {
		return
	}

	live[n] = true

	for _, op := range n.Operands() {
		markLive(op.Node, live)
	}
}
