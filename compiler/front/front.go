// Package front translates one decoded RISC-V basic block into an IR
// subgraph, in a single pass, without performing any optimisation: every
// architectural register access becomes an explicit load_register or
// store_register, left for later passes to clean up.
package front

import (
	"context"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/rv64dbt/core/compiler/ir"
	"github.com/rv64dbt/core/compiler/riscv"
)

// translator holds the running state of a single block's translation: the
// graph under construction and the last side-effect value threading
// memory ordering through it.
type translator struct {
	graph *ir.Graph
	b     ir.Builder
	mem   ir.Value

	block *riscv.BasicBlock
}

// Compile translates block into a fresh IR graph; compiler.CompileBlock
// calls it before running the passes. It fails only for a malformed block
// whose end_pc precedes its start_pc: any guest instruction the front-end
// does not recognise becomes an emulate node rather than a translation
// failure.
func Compile(ctx context.Context, block *riscv.BasicBlock) (_ *ir.Graph, err error) {
	tr, _ := tlog.SpawnFromContextAndWrap(ctx, "front: compile block", "start_pc", block.StartPC, "end_pc", block.EndPC)
	defer tr.Finish("err", &err)

	tr.Printw("translating", "instructions", len(block.Instructions))

	if block.EndPC < block.StartPC {
		return nil, errors.New("block end_pc %#x precedes start_pc %#x", block.EndPC, block.StartPC)
	}

	g := ir.NewGraph()

	t := &translator{
		graph: g,
		b:     ir.NewBuilder(g),
		block: block,
	}

	t.translate()

	return g, nil
}

func (t *translator) translate() {
	// A standalone block has no in-graph predecessor: the dispatcher's own
	// control edge into it is outside this graph's scope, so block opens
	// with zero control operands here. Stitching multiple blocks together
	// (§4.7) is what gives a block's operand list real jmp/if edges.
	t.mem = t.b.Block()

	t.advancePC()
	t.advanceInstret()

	pc := t.block.StartPC

	for _, inst := range t.block.Instructions {
		t.translateOne(pc, inst)
		pc += uint64(inst.Length)
	}

	jmp := t.b.Jmp(t.mem)
	end := t.b.End(jmp)
	t.graph.SetRoot(end)
}

// advancePC implements §4.2 step 2: the guest PC register is advanced by
// the block's length before any instruction is translated, so that a
// later auipc can recover any in-block instruction address from it.
func (t *translator) advancePC() {
	var old ir.Value
	t.mem, old = t.b.LoadRegister(t.mem, riscv.Pc)

	delta := t.b.Constant(ir.I64, t.block.EndPC-t.block.StartPC)
	next := t.b.Arithmetic(ir.Add, old, delta)

	t.mem = t.b.StoreRegister(t.mem, riscv.Pc, next)
}

func (t *translator) advanceInstret() {
	var old ir.Value
	t.mem, old = t.b.LoadRegister(t.mem, riscv.Instret)

	delta := t.b.Constant(ir.I64, uint64(len(t.block.Instructions)))
	next := t.b.Arithmetic(ir.Add, old, delta)

	t.mem = t.b.StoreRegister(t.mem, riscv.Instret, next)
}

// loadReg reads guest register reg as type typ. Reading x0 is a constant
// zero and never touches the memory chain, per §4.2's "load of rs where
// rs == 0" rule.
func (t *translator) loadReg(typ ir.Type, reg int) ir.Value {
	if reg == 0 {
		return t.b.Constant(typ, 0)
	}

	var v ir.Value
	t.mem, v = t.b.LoadRegister(t.mem, reg)

	if typ != ir.I64 {
		v = t.b.Cast(typ, false, v)
	}

	return v
}

// storeReg writes v to guest register reg, promoting to i64 by sign- or
// zero-extension as sext requests. Callers must never pass reg == 0; the
// x0-silence invariant (§8 property 4) is enforced by having every
// dispatch site check rd first, mirroring the reference front-end's
// pattern of bailing out before computing anything for a dead write.
func (t *translator) storeReg(reg int, v ir.Value, sext bool) {
	if reg == 0 {
		panic(errors.New("front-end attempted to write x0"))
	}

	if v.Type() != ir.I64 {
		v = t.b.Cast(ir.I64, sext, v)
	}

	t.mem = t.b.StoreRegister(t.mem, reg, v)
}

func (t *translator) translateOne(pc uint64, inst riscv.Instruction) {
	switch inst.Opcode {
	case riscv.Lb:
		t.emitLoad(inst, ir.I8, true)
	case riscv.Lh:
		t.emitLoad(inst, ir.I16, true)
	case riscv.Lw:
		t.emitLoad(inst, ir.I32, true)
	case riscv.Ld:
		t.emitLoad(inst, ir.I64, false)
	case riscv.Lbu:
		t.emitLoad(inst, ir.I8, false)
	case riscv.Lhu:
		t.emitLoad(inst, ir.I16, false)
	case riscv.Lwu:
		t.emitLoad(inst, ir.I32, false)

	case riscv.Sb:
		t.emitStore(inst, ir.I8)
	case riscv.Sh:
		t.emitStore(inst, ir.I16)
	case riscv.Sw:
		t.emitStore(inst, ir.I32)
	case riscv.Sd:
		t.emitStore(inst, ir.I64)

	case riscv.Addi:
		t.emitALUImm(inst, ir.Add, false)
	case riscv.Xori:
		t.emitALUImm(inst, ir.Xor, false)
	case riscv.Ori:
		t.emitALUImm(inst, ir.Or, false)
	case riscv.Andi:
		t.emitALUImm(inst, ir.And, false)
	case riscv.Addiw:
		t.emitALUImm(inst, ir.Add, true)

	case riscv.Slli:
		t.emitShiftImm(inst, ir.Shl, false)
	case riscv.Srli:
		t.emitShiftImm(inst, ir.Shr, false)
	case riscv.Srai:
		t.emitShiftImm(inst, ir.Sar, false)
	case riscv.Slliw:
		t.emitShiftImm(inst, ir.Shl, true)
	case riscv.Srliw:
		t.emitShiftImm(inst, ir.Shr, true)
	case riscv.Sraiw:
		t.emitShiftImm(inst, ir.Sar, true)

	case riscv.Slti:
		t.emitCompareImm(inst, ir.Lt)
	case riscv.Sltiu:
		t.emitCompareImm(inst, ir.Ltu)

	case riscv.Add:
		t.emitALUReg(inst, ir.Add, false)
	case riscv.Sub:
		t.emitALUReg(inst, ir.Sub, false)
	case riscv.Xor:
		t.emitALUReg(inst, ir.Xor, false)
	case riscv.Or:
		t.emitALUReg(inst, ir.Or, false)
	case riscv.And:
		t.emitALUReg(inst, ir.And, false)
	case riscv.Addw:
		t.emitALUReg(inst, ir.Add, true)
	case riscv.Subw:
		t.emitALUReg(inst, ir.Sub, true)

	case riscv.Sll:
		t.emitShiftReg(inst, ir.Shl, false)
	case riscv.Srl:
		t.emitShiftReg(inst, ir.Shr, false)
	case riscv.Sra:
		t.emitShiftReg(inst, ir.Sar, false)
	case riscv.Sllw:
		t.emitShiftReg(inst, ir.Shl, true)
	case riscv.Srlw:
		t.emitShiftReg(inst, ir.Shr, true)
	case riscv.Sraw:
		t.emitShiftReg(inst, ir.Sar, true)

	case riscv.Slt:
		t.emitCompareReg(inst, ir.Lt)
	case riscv.Sltu:
		t.emitCompareReg(inst, ir.Ltu)

	case riscv.Lui:
		t.emitLui(inst)
	case riscv.Auipc:
		t.emitAuipc(inst, pc)

	default:
		// Branches, jumps, system instructions, fences, multiplication,
		// division, floating point, and anything else this front-end
		// does not model a lowering for.
		inst := inst
		t.mem = t.b.Emulate(t.mem, &inst)
	}
}

func (t *translator) emitLoad(inst riscv.Instruction, typ ir.Type, sext bool) {
	base := t.loadReg(ir.I64, inst.Rs1)
	offset := t.b.Constant(ir.I64, uint64(inst.Imm))
	addr := t.b.Arithmetic(ir.Add, base, offset)

	var v ir.Value
	t.mem, v = t.b.LoadMemory(t.mem, typ, addr)

	if inst.Rd != 0 {
		t.storeReg(inst.Rd, v, sext)
	}
}

func (t *translator) emitStore(inst riscv.Instruction, typ ir.Type) {
	value := t.loadReg(typ, inst.Rs2)
	base := t.loadReg(ir.I64, inst.Rs1)
	offset := t.b.Constant(ir.I64, uint64(inst.Imm))
	addr := t.b.Arithmetic(ir.Add, base, offset)

	t.mem = t.b.StoreMemory(t.mem, addr, value)
}

func (t *translator) emitALUImm(inst riscv.Instruction, op ir.Opcode, w bool) {
	if inst.Rd == 0 {
		return
	}

	typ := aluType(w)
	l := t.loadReg(typ, inst.Rs1)
	r := t.b.Constant(typ, uint64(inst.Imm))

	t.storeReg(inst.Rd, t.b.Arithmetic(op, l, r), true)
}

func (t *translator) emitShiftImm(inst riscv.Instruction, op ir.Opcode, w bool) {
	if inst.Rd == 0 {
		return
	}

	typ := aluType(w)
	l := t.loadReg(typ, inst.Rs1)
	amount := t.b.Constant(ir.I8, uint64(inst.Imm))

	t.storeReg(inst.Rd, t.b.Shift(op, l, amount), true)
}

func (t *translator) emitCompareImm(inst riscv.Instruction, op ir.Opcode) {
	if inst.Rd == 0 {
		return
	}

	l := t.loadReg(ir.I64, inst.Rs1)
	r := t.b.Constant(ir.I64, uint64(inst.Imm))

	t.storeReg(inst.Rd, t.b.Compare(op, l, r), false)
}

func (t *translator) emitALUReg(inst riscv.Instruction, op ir.Opcode, w bool) {
	if inst.Rd == 0 {
		return
	}

	typ := aluType(w)
	l := t.loadReg(typ, inst.Rs1)
	r := t.loadReg(typ, inst.Rs2)

	t.storeReg(inst.Rd, t.b.Arithmetic(op, l, r), true)
}

func (t *translator) emitShiftReg(inst riscv.Instruction, op ir.Opcode, w bool) {
	if inst.Rd == 0 {
		return
	}

	typ := aluType(w)
	l := t.loadReg(typ, inst.Rs1)
	amount := t.loadReg(ir.I8, inst.Rs2)

	t.storeReg(inst.Rd, t.b.Shift(op, l, amount), true)
}

func (t *translator) emitCompareReg(inst riscv.Instruction, op ir.Opcode) {
	if inst.Rd == 0 {
		return
	}

	l := t.loadReg(ir.I64, inst.Rs1)
	r := t.loadReg(ir.I64, inst.Rs2)

	t.storeReg(inst.Rd, t.b.Compare(op, l, r), false)
}

func (t *translator) emitLui(inst riscv.Instruction) {
	if inst.Rd == 0 {
		return
	}

	t.storeReg(inst.Rd, t.b.Constant(ir.I64, uint64(inst.Imm)), false)
}

// emitAuipc computes pc + imm for the instruction at address pc, but does
// so through a fresh load_register(pc) rather than a compile-time
// constant: the PC register was already advanced to end_pc by
// advancePC, so the instruction's own address is recovered as
// load_register(pc) + (pc - end_pc), with the (pc - end_pc) term folded
// into the immediate constant.
func (t *translator) emitAuipc(inst riscv.Instruction, pc uint64) {
	if inst.Rd == 0 {
		return
	}

	pcValue := t.loadReg(ir.I64, riscv.Pc)

	cumulativeOffset := int64(pc) - int64(t.block.EndPC)
	adjusted := t.b.Constant(ir.I64, uint64(cumulativeOffset+inst.Imm))

	t.storeReg(inst.Rd, t.b.Arithmetic(ir.Add, pcValue, adjusted), false)
}

func aluType(w bool) ir.Type {
	if w {
		return ir.I32
	}

	return ir.I64
}
