package pass

import (
	"unsafe"

	"github.com/rv64dbt/core/compiler/ir"
)

// lvnKey is the structural identity of a pure node: opcode, attribute and
// the identity of each operand, after commutative canonicalisation.
type lvnKey struct {
	opcode    ir.Opcode
	outputTyp ir.Type
	attribute uint64
	operands  [3]ir.Value
	n         int
}

// lvn implements local value numbering (§4.5): structural hashing of pure
// nodes within one basic block, with constant folding on top.
type lvn struct {
	graph *ir.Graph
	table map[lvnKey]ir.Value
}

func (p *lvn) Start() {
	p.table = map[lvnKey]ir.Value{}
}

func (p *lvn) Before(n *ir.Node) bool { return true }

func (p *lvn) After(n *ir.Node) {
	if !ir.IsPureOpcode(n.Opcode) {
		return
	}

	if folded, ok := p.foldConstant(n); ok {
		Replace(n.Value(0), folded)
		return
	}

	if n.Opcode == ir.Cast {
		if v := n.Operand(0); v.Type() == n.OutputType(0) {
			// identity casts that slipped through the front-end fold to
			// their operand directly.
			Replace(n.Value(0), v)
			return
		}
	}

	if folded, ok := p.foldIdentity(n); ok {
		Replace(n.Value(0), folded)
		return
	}

	key := canonicalKey(n)

	if existing, ok := p.table[key]; ok {
		Replace(n.Value(0), existing)
		return
	}

	p.table[key] = n.Value(0)
}

func canonicalKey(n *ir.Node) lvnKey {
	operands := n.Operands()

	if ir.IsCommutativeOpcode(n.Opcode) && len(operands) == 2 {
		operands = canonicalOrder(operands)
	}

	key := lvnKey{
		opcode:    n.Opcode,
		outputTyp: n.OutputType(0),
		attribute: n.Attribute,
		n:         len(operands),
	}

	for i, op := range operands {
		if i >= len(key.operands) {
			break
		}

		key.operands[i] = op
	}

	return key
}

// canonicalOrder returns a's two operands in a fixed total order on value
// identity, so that e.g. add(a,b) and add(b,a) hash the same.
func canonicalOrder(a []ir.Value) []ir.Value {
	if valueLess(a[1], a[0]) {
		return []ir.Value{a[1], a[0]}
	}

	return a
}

func valueLess(a, b ir.Value) bool {
	if a.Node != b.Node {
		return uintptr(unsafe.Pointer(nodePtr(a))) < uintptr(unsafe.Pointer(nodePtr(b)))
	}

	return a.Index < b.Index
}

func nodePtr(v ir.Value) *ir.Node { return v.Node }

// foldIdentity catches algebraic identities that hold without every
// operand being constant, on top of foldConstant's all-constant case:
// x+0, x-0, x^0, x|0, x&-1 collapse to x; x&0 and x|-1 collapse to the
// constant; x^x and x-x collapse to 0; x&x and x|x collapse to x; and a
// cast that only narrows or matches a prior cast's width collapses into
// a single cast of the original value.
func (p *lvn) foldIdentity(n *ir.Node) (ir.Value, bool) {
	if n.OperandCount() == 2 && n.Operand(0).Equal(n.Operand(1)) {
		switch n.Opcode {
		case ir.Xor, ir.Sub:
			return p.constant(n.OutputType(0), 0), true
		case ir.And, ir.Or:
			return n.Operand(0), true
		}
	}

	switch n.Opcode {
	case ir.Sub:
		if n.Operand(1).IsConst() && n.Operand(1).ConstValue() == 0 {
			return n.Operand(0), true
		}
	case ir.Add, ir.Xor, ir.Or, ir.And:
		v, k, ok := splitConstOperand(n)
		if !ok {
			break
		}

		full := n.OutputType(0).Mask()

		switch {
		case n.Opcode != ir.And && k.ConstValue() == 0:
			return v, true
		case n.Opcode == ir.And && k.ConstValue() == full:
			return v, true
		case n.Opcode == ir.And && k.ConstValue() == 0:
			return k, true
		case n.Opcode == ir.Or && k.ConstValue() == full:
			return k, true
		}
	case ir.Cast:
		if folded, ok := p.foldCastOfCast(n); ok {
			return folded, true
		}
	}

	return ir.Nil, false
}

// splitConstOperand returns n's non-constant and constant operands when
// n has exactly two operands and exactly one is constant.
func splitConstOperand(n *ir.Node) (v, k ir.Value, ok bool) {
	if n.OperandCount() != 2 {
		return ir.Nil, ir.Nil, false
	}

	a, b := n.Operand(0), n.Operand(1)

	switch {
	case b.IsConst() && !a.IsConst():
		return a, b, true
	case a.IsConst() && !b.IsConst():
		return b, a, true
	default:
		return ir.Nil, ir.Nil, false
	}
}

// foldCastOfCast collapses cast(t2, sext2, cast(t1, sext1, v)) to a
// single cast of v when the outer cast is no wider than the inner one:
// the inner cast's extension bits beyond v's own width, if any, are then
// exactly what a direct cast of v with sext1 would produce, and any bits
// beyond t2 are discarded either way so sext2 never mattered. A strictly
// widening outer cast is left alone, since it may need sext2 rather than
// sext1 for the bits beyond t1.
func (p *lvn) foldCastOfCast(n *ir.Node) (ir.Value, bool) {
	inner := n.Operand(0)

	if inner.Opcode() != ir.Cast || n.OutputType(0).Size() > inner.Type().Size() {
		return ir.Nil, false
	}

	v := inner.Node.Operand(0)

	if v.Type() == n.OutputType(0) {
		return v, true
	}

	sext1 := inner.Node.Attribute != 0

	b := ir.NewBuilder(p.graph)

	return b.Cast(n.OutputType(0), sext1, v), true
}

// foldConstant evaluates n at compile time if every operand is a
// constant, using two's-complement wraparound at the node's result type.
func (p *lvn) foldConstant(n *ir.Node) (ir.Value, bool) {
	for _, op := range n.Operands() {
		if !op.IsConst() {
			return ir.Nil, false
		}
	}

	if n.OperandCount() == 0 {
		return ir.Nil, false
	}

	t := n.OutputType(0)

	switch n.Opcode {
	case ir.Neg:
		return p.constant(t, mask(t, uint64(-int64(n.Operand(0).ConstValue())))), true
	case ir.Not:
		return p.constant(t, mask(t, ^n.Operand(0).ConstValue())), true
	case ir.Add:
		return p.constant(t, mask(t, n.Operand(0).ConstValue()+n.Operand(1).ConstValue())), true
	case ir.Sub:
		return p.constant(t, mask(t, n.Operand(0).ConstValue()-n.Operand(1).ConstValue())), true
	case ir.Xor:
		return p.constant(t, mask(t, n.Operand(0).ConstValue()^n.Operand(1).ConstValue())), true
	case ir.Or:
		return p.constant(t, mask(t, n.Operand(0).ConstValue()|n.Operand(1).ConstValue())), true
	case ir.And:
		return p.constant(t, mask(t, n.Operand(0).ConstValue()&n.Operand(1).ConstValue())), true
	case ir.Shl:
		amount := n.Operand(1).ConstValue() & uint64(n.Operand(0).Type().Size()-1)
		return p.constant(t, mask(t, n.Operand(0).ConstValue()<<amount)), true
	case ir.Shr:
		amount := n.Operand(1).ConstValue() & uint64(n.Operand(0).Type().Size()-1)
		return p.constant(t, mask(t, n.Operand(0).ConstValue()>>amount)), true
	case ir.Sar:
		amount := n.Operand(1).ConstValue() & uint64(n.Operand(0).Type().Size()-1)
		return p.constant(t, mask(t, uint64(signedValue(n.Operand(0))>>amount))), true
	case ir.Eq:
		return p.constant(ir.I1, boolValue(n.Operand(0).ConstValue() == n.Operand(1).ConstValue())), true
	case ir.Ne:
		return p.constant(ir.I1, boolValue(n.Operand(0).ConstValue() != n.Operand(1).ConstValue())), true
	case ir.Ltu:
		return p.constant(ir.I1, boolValue(n.Operand(0).ConstValue() < n.Operand(1).ConstValue())), true
	case ir.Geu:
		return p.constant(ir.I1, boolValue(n.Operand(0).ConstValue() >= n.Operand(1).ConstValue())), true
	case ir.Lt:
		return p.constant(ir.I1, boolValue(signedValue(n.Operand(0)) < signedValue(n.Operand(1)))), true
	case ir.Ge:
		return p.constant(ir.I1, boolValue(signedValue(n.Operand(0)) >= signedValue(n.Operand(1)))), true
	case ir.Cast:
		sext := n.Attribute != 0
		return p.constant(t, castValue(t, sext, n.Operand(0))), true
	case ir.Mux:
		if n.Operand(0).ConstValue() != 0 {
			return n.Operand(1), true
		}

		return n.Operand(2), true
	default:
		return ir.Nil, false
	}
}

func mask(t ir.Type, v uint64) uint64 { return v & t.Mask() }

func signedValue(v ir.Value) int64 {
	raw := v.ConstValue()
	t := v.Type()

	if t == ir.I64 {
		return int64(raw)
	}

	if raw&t.SignBit() != 0 {
		return int64(raw) - int64(t.Mask()) - 1
	}

	return int64(raw)
}

func boolValue(b bool) uint64 {
	if b {
		return 1
	}

	return 0
}

func castValue(t ir.Type, sext bool, v ir.Value) uint64 {
	if t.Size() >= v.Type().Size() {
		if sext {
			return mask(t, uint64(signedValue(v)))
		}

		return mask(t, v.ConstValue())
	}

	return mask(t, v.ConstValue())
}

func (p *lvn) constant(t ir.Type, v uint64) ir.Value {
	b := ir.NewBuilder(p.graph)
	return b.Constant(t, v)
}

// LocalValueNumbering runs the pass over g's current root. Running it
// twice in a row makes no further changes (§8 property 6): every pure
// node it keeps is already canonical, and every redundant or
// constant-foldable node it would have found was already replaced the
// first time.
func LocalValueNumbering(g *ir.Graph) {
	Reset(g)
	Run(g.Root(), &lvn{graph: g})
}
