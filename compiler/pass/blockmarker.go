package pass

import "github.com/rv64dbt/core/compiler/ir"

// blockMarker implements §4.6: it walks the graph recording each block
// node it enters, and when it later reaches that block's paired
// terminator (jmp or if), links the two together via their mate
// pointers. Establishes the invariant later passes and the back-end rely
// on (§3 invariant 5).
type blockMarker struct {
	open []*ir.Node
}

func (p *blockMarker) Start() { p.open = nil }

func (p *blockMarker) Before(n *ir.Node) bool {
	if n.Opcode == ir.Block {
		p.open = append(p.open, n)
	}

	return true
}

func (p *blockMarker) After(n *ir.Node) {
	if n.Opcode != ir.Jmp && n.Opcode != ir.If {
		return
	}

	if len(p.open) == 0 {
		return
	}

	block := p.open[len(p.open)-1]
	p.open = p.open[:len(p.open)-1]

	block.SetMate(n)
	n.SetMate(block)
}

// BlockMarker runs the pass over g's current root, pairing every block
// node reachable from it with its terminator.
func BlockMarker(g *ir.Graph) {
	Reset(g)
	Run(g.Root(), &blockMarker{})
}
