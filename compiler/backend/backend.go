// Package backend defines the boundary contract §6 describes between the
// core and the native code generator: a finalised graph and an
// append-only code buffer go in, and emission either completes or the
// core's own invariants were violated before the back-end ever saw it.
//
// The real x86-64 encoder, its register allocator, and its spill logic
// are an external collaborator's concern and out of scope for the core;
// what lives here is the contract and a reference emitter that lowers
// each node to a textual trampoline call, useful for tests and for a
// bring-up target that has no real code generator yet.
package backend

import (
	"context"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/nikandfor/hacked/hfmt"

	"github.com/rv64dbt/core/compiler/ir"
	"github.com/rv64dbt/core/compiler/pass"
)

// Arch is left opaque here, same as upstream practice of keeping the
// target-specific encoder behind an unexported interface the compiler
// package never inspects directly. A real implementation would bind
// register classes, calling convention and an instruction encoder.
type Arch interface{}

// Backend lowers one finalised graph into an append-only code buffer. It
// walks the graph with the same pass framework every optimisation pass
// uses, so its placement in the pipeline and its failure modes are
// uniform with the rest of the core.
type Backend struct {
	Arch Arch
}

func New(a Arch) *Backend { return &Backend{Arch: a} }

// emitter drives one pass.Run over the graph, appending to buf as it
// goes. It implements pass.Pass directly, mirroring the reference
// back-end's own shape as a Pass subclass.
type emitter struct {
	buf []byte
	err error
}

func (e *emitter) Before(n *ir.Node) bool { return true }

func (e *emitter) After(n *ir.Node) {
	if e.err != nil {
		return
	}

	switch n.Opcode {
	case ir.Start, ir.End, ir.Block, ir.Jmp, ir.If, ir.IfTrue, ir.IfFalse:
		return
	case ir.Constant:
		return
	case ir.Emulate:
		e.buf = hfmt.Appendf(e.buf, "call emulate, %p\n", n.Ptr)
	case ir.LoadRegister:
		e.buf = hfmt.Appendf(e.buf, "mov t%p, [regs+%d]\n", n, n.Attribute*8)
	case ir.StoreRegister:
		e.buf = hfmt.Appendf(e.buf, "mov [regs+%d], t%p\n", n.Attribute*8, n.Operand(1).Node)
	case ir.LoadMemory:
		e.buf = hfmt.Appendf(e.buf, "load.%v t%p, [t%p]\n", n.OutputType(1), n, n.Operand(1).Node)
	case ir.StoreMemory:
		e.buf = hfmt.Appendf(e.buf, "store.%v [t%p], t%p\n", n.Operand(2).Type(), n.Operand(1).Node, n.Operand(2).Node)
	case ir.Fence:
		e.buf = hfmt.Appendf(e.buf, "fence\n")
	default:
		e.buf = hfmt.Appendf(e.buf, "%v.%v t%p\n", n.Opcode, n.OutputType(0), n)
	}
}

// Compile lowers g into buf, returning the extended buffer. buf's
// existing contents are preserved and never re-scanned: the contract is
// append-only (§6).
func (b *Backend) Compile(ctx context.Context, buf []byte, g *ir.Graph) (_ []byte, err error) {
	tr, _ := tlog.SpawnFromContextAndWrap(ctx, "backend: compile block")
	defer tr.Finish("err", &err)

	if g.Root() == nil {
		return buf, errors.New("backend: graph has no root")
	}

	e := &emitter{buf: buf}

	pass.Reset(g)
	pass.Run(g.Root(), e)

	if e.err != nil {
		return buf, errors.Wrap(e.err, "lower graph")
	}

	tr.Printw("backend: lowered block", "bytes", len(e.buf)-len(buf))

	return e.buf, nil
}
