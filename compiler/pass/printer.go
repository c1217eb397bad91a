package pass

import (
	"github.com/nikandfor/hacked/hfmt"

	"github.com/rv64dbt/core/compiler/ir"
)

// dotPrinter is the optional printer pass §2 item 5(d) leaves
// unspecified beyond "optional": it renders the graph as a Graphviz dot
// source, one node per record, edges following operand order. Grounded
// on the reference implementation's dot_printer.cc, which walks the same
// pass framework and assigns each node an index on its first visit for
// use as a stable node id.
type dotPrinter struct {
	buf   []byte
	index map[*ir.Node]int
	next  int
}

func (p *dotPrinter) Start() {
	p.index = map[*ir.Node]int{}
	p.buf = append(p.buf, "digraph ir {\n"...)
}

func (p *dotPrinter) Before(n *ir.Node) bool { return true }

func (p *dotPrinter) After(n *ir.Node) {
	id := p.id(n)

	switch n.Opcode {
	case ir.Constant:
		p.buf = hfmt.Appendf(p.buf, "  n%d [label=\"constant %d\"];\n", id, n.Attribute)
	case ir.LoadRegister, ir.StoreRegister:
		p.buf = hfmt.Appendf(p.buf, "  n%d [label=\"%v r%d\"];\n", id, n.Opcode, n.Attribute)
	default:
		p.buf = hfmt.Appendf(p.buf, "  n%d [label=\"%v\"];\n", id, n.Opcode)
	}

	for i, op := range n.Operands() {
		p.buf = hfmt.Appendf(p.buf, "  n%d -> n%d [label=\"%d:%v\"];\n", id, p.id(op.Node), i, op.Type())
	}
}

func (p *dotPrinter) Finish() {
	p.buf = append(p.buf, "}\n"...)
}

func (p *dotPrinter) id(n *ir.Node) int {
	if id, ok := p.index[n]; ok {
		return id
	}

	id := p.next
	p.next++
	p.index[n] = id

	return id
}

// Dot renders g's graph reachable from root as Graphviz dot source, for
// ad-hoc inspection during development; no pass in the core pipeline
// depends on it.
func Dot(g *ir.Graph) []byte {
	Reset(g)

	p := &dotPrinter{}
	Run(g.Root(), p)

	return p.buf
}
