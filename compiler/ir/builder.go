package ir

import "tlog.app/go/errors"

// Builder constructs syntactically valid nodes inside a single graph and
// enforces the per-opcode type constraints from §4.1. A failed
// precondition is a programming error in the core or its caller, not a
// recoverable condition, so builder methods panic rather than return an
// error.
type Builder struct {
	Graph *Graph
}

func NewBuilder(g *Graph) Builder { return Builder{Graph: g} }

func assertf(cond bool, format string, args ...any) {
	if !cond {
		panic(errors.New(format, args...))
	}
}

// Constant produces a value of an integer type carrying v in its
// attribute slot.
func (b Builder) Constant(t Type, v uint64) Value {
	assertf(t != None && t != Memory && t != Control, "constant requires an integer type, got %v", t)

	n := newNode(b.Graph, Constant, []Type{t}, nil)
	n.Attribute = v & t.Mask()

	return n.Value(0)
}

// Cast produces a value of type t from v, sign- or zero-extending or
// truncating as the sext flag requests. Casts between identical types
// are legal no-ops; callers should generally skip emitting them (the
// front-end does; LVN folds any that slip through).
func (b Builder) Cast(t Type, sext bool, v Value) Value {
	assertf(t != None && t != Memory && t != Control, "cast requires an integer result type, got %v", t)

	n := newNode(b.Graph, Cast, []Type{t}, []Value{v})

	if sext {
		n.Attribute = 1
	}

	return n.Value(0)
}

// Arithmetic builds add/sub/xor/or/and. l and r must share a
// type; the result has that type.
func (b Builder) Arithmetic(op Opcode, l, r Value) Value {
	assertf(l.Type() == r.Type(), "%v requires matching operand types, got %v and %v", op, l.Type(), r.Type())

	n := newNode(b.Graph, op, []Type{l.Type()}, []Value{l, r})

	return n.Value(0)
}

// Unary builds neg/not. The result shares v's type.
func (b Builder) Unary(op Opcode, v Value) Value {
	n := newNode(b.Graph, op, []Type{v.Type()}, []Value{v})

	return n.Value(0)
}

// Shift builds shl/shr/sar. The shift amount must be i8; the result
// shares l's type.
func (b Builder) Shift(op Opcode, l, amount Value) Value {
	assertf(amount.Type() == I8, "shift amount must be i8, got %v", amount.Type())

	n := newNode(b.Graph, op, []Type{l.Type()}, []Value{l, amount})

	return n.Value(0)
}

// Compare builds eq/ne/lt/ge/ltu/geu. l and r must share a type; the
// result is i1.
func (b Builder) Compare(op Opcode, l, r Value) Value {
	assertf(l.Type() == r.Type(), "%v requires matching operand types, got %v and %v", op, l.Type(), r.Type())

	n := newNode(b.Graph, op, []Type{I1}, []Value{l, r})

	return n.Value(0)
}

// Mux builds a select: cond must be i1, l and r must share a type, and
// the result has that type.
func (b Builder) Mux(cond, l, r Value) Value {
	assertf(cond.Type() == I1, "mux condition must be i1, got %v", cond.Type())
	assertf(l.Type() == r.Type(), "mux requires matching value types, got %v and %v", l.Type(), r.Type())

	n := newNode(b.Graph, Mux, []Type{l.Type()}, []Value{cond, l, r})

	return n.Value(0)
}

// LoadRegister reads guest register k off the mem chain, returning the
// advanced memory token and the i64 value read.
func (b Builder) LoadRegister(mem Value, k int) (newMem, v Value) {
	assertf(mem.Type() == Memory, "load_register requires a memory operand, got %v", mem.Type())

	n := newNode(b.Graph, LoadRegister, []Type{Memory, I64}, []Value{mem})
	n.Attribute = uint64(k)

	return n.Value(0), n.Value(1)
}

// StoreRegister writes an i64 value to guest register k, returning the
// advanced memory token.
func (b Builder) StoreRegister(mem Value, k int, v Value) Value {
	assertf(mem.Type() == Memory, "store_register requires a memory operand, got %v", mem.Type())
	assertf(v.Type() == I64, "store_register requires an i64 value, got %v", v.Type())

	n := newNode(b.Graph, StoreRegister, []Type{Memory}, []Value{mem, v})
	n.Attribute = uint64(k)

	return n.Value(0)
}

// LoadMemory reads t from the guest address space at address a.
func (b Builder) LoadMemory(mem Value, t Type, a Value) (newMem, v Value) {
	assertf(mem.Type() == Memory, "load_memory requires a memory operand, got %v", mem.Type())
	assertf(a.Type() == I64, "load_memory address must be i64, got %v", a.Type())

	n := newNode(b.Graph, LoadMemory, []Type{Memory, t}, []Value{mem, a})

	return n.Value(0), n.Value(1)
}

// StoreMemory writes v to the guest address space at address a.
func (b Builder) StoreMemory(mem, a, v Value) Value {
	assertf(mem.Type() == Memory, "store_memory requires a memory operand, got %v", mem.Type())
	assertf(a.Type() == I64, "store_memory address must be i64, got %v", a.Type())

	n := newNode(b.Graph, StoreMemory, []Type{Memory}, []Value{mem, a, v})

	return n.Value(0)
}

// Fence merges several memory dependencies into one, for an operation
// that must wait on more than one prior side effect.
func (b Builder) Fence(deps ...Value) Value {
	for _, d := range deps {
		assertf(d.Type() == Memory, "fence requires memory operands, got %v", d.Type())
	}

	n := newNode(b.Graph, Fence, []Type{Memory}, deps)

	return n.Value(0)
}

// Emulate carries an opaque pointer to a guest instruction the front-end
// could not translate. It consumes and produces the memory token, opaque
// to the rest of the pipeline.
func (b Builder) Emulate(mem Value, inst any) Value {
	assertf(mem.Type() == Memory, "emulate requires a memory operand, got %v", mem.Type())

	n := newNode(b.Graph, Emulate, []Type{Memory}, []Value{mem})
	n.Ptr = inst

	return n.Value(0)
}

// Block opens a paired region; its operands are the control edges
// entering it and its output is the memory token available inside.
func (b Builder) Block(controls ...Value) Value {
	for _, c := range controls {
		assertf(c.Type() == Control, "block requires control operands, got %v", c.Type())
	}

	n := newNode(b.Graph, Block, []Type{Memory}, controls)

	return n.Value(0)
}

// Jmp terminates a block unconditionally, producing one control edge.
func (b Builder) Jmp(mem Value) Value {
	assertf(mem.Type() == Memory, "jmp requires a memory operand, got %v", mem.Type())

	n := newNode(b.Graph, Jmp, []Type{Control}, []Value{mem})

	return n.Value(0)
}

// If terminates a block conditionally, producing a true and a false
// control edge.
func (b Builder) If(mem, cond Value) (ifTrue, ifFalse Value) {
	assertf(mem.Type() == Memory, "if requires a memory operand, got %v", mem.Type())
	assertf(cond.Type() == I1, "if condition must be i1, got %v", cond.Type())

	n := newNode(b.Graph, If, []Type{Control, Control}, []Value{mem, cond})

	return n.Value(0), n.Value(1)
}

// IfTrue and IfFalse project a single control edge out of an If node's
// pair, so that downstream passes can rewire one branch without
// disturbing the other. Per §6 each takes and produces exactly one
// control value.
func (b Builder) IfTrue(ctrl Value) Value {
	assertf(ctrl.Type() == Control, "if_true requires a control operand, got %v", ctrl.Type())

	n := newNode(b.Graph, IfTrue, []Type{Control}, []Value{ctrl})

	return n.Value(0)
}

func (b Builder) IfFalse(ctrl Value) Value {
	assertf(ctrl.Type() == Control, "if_false requires a control operand, got %v", ctrl.Type())

	n := newNode(b.Graph, IfFalse, []Type{Control}, []Value{ctrl})

	return n.Value(0)
}

// End closes the graph, consuming one control edge per live exit plus any
// keepalive edges a block-level pass has added.
func (b Builder) End(controls ...Value) *Node {
	for _, c := range controls {
		assertf(c.Type() == Control, "end requires control operands, got %v", c.Type())
	}

	return newNode(b.Graph, End, nil, controls)
}
