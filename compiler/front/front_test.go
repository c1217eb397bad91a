package front

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rv64dbt/core/compiler/ir"
	"github.com/rv64dbt/core/compiler/riscv"
)

func countOpcode(g *ir.Graph, op ir.Opcode) int {
	n := 0

	for _, node := range g.Nodes() {
		if node.Opcode == op {
			n++
		}
	}

	return n
}

// S1: addi x5, x0, 7 — a single store_register(5, add(const 0, const 7)),
// no load of x5, plus the PC/instret bookkeeping every block carries. The
// front-end folds nothing; the add becomes const 7 only once LVN runs.
func TestCompileAddiFromX0(t *testing.T) {
	block := &riscv.BasicBlock{
		StartPC: 0,
		EndPC:   4,
		Instructions: []riscv.Instruction{
			{Opcode: riscv.Addi, Rd: 5, Rs1: 0, Imm: 7, Length: 4},
		},
	}

	g, err := Compile(context.Background(), block)
	require.NoError(t, err)

	require.Equal(t, 3, countOpcode(g, ir.StoreRegister)) // x5, pc, instret

	var store *ir.Node

	for _, n := range g.Nodes() {
		if n.Opcode == ir.StoreRegister && n.Attribute == 5 {
			store = n
		}
	}

	require.NotNil(t, store)

	value := store.Operand(1)
	require.Equal(t, ir.Add, value.Opcode())
	require.True(t, value.Node.Operand(0).IsConst())
	assert.EqualValues(t, 0, value.Node.Operand(0).ConstValue())
	require.True(t, value.Node.Operand(1).IsConst())
	assert.EqualValues(t, 7, value.Node.Operand(1).ConstValue())

	// x0 is never read: the only load_register nodes are for PC and instret.
	for _, n := range g.Nodes() {
		if n.Opcode == ir.LoadRegister {
			assert.NotEqual(t, 0, int(n.Attribute))
		}
	}
}

// S2: addi x0, x1, 1 — the write is dropped entirely, no store_register at
// all is emitted for a dead destination.
func TestCompileAddiIntoX0Dropped(t *testing.T) {
	block := &riscv.BasicBlock{
		StartPC: 0,
		EndPC:   4,
		Instructions: []riscv.Instruction{
			{Opcode: riscv.Addi, Rd: 0, Rs1: 1, Imm: 1, Length: 4},
		},
	}

	g, err := Compile(context.Background(), block)
	require.NoError(t, err)

	for _, n := range g.Nodes() {
		if n.Opcode == ir.StoreRegister {
			assert.NotEqual(t, 0, int(n.Attribute))
		}
	}

	// And since x1 is never read by the dropped instruction either, the
	// only load_register nodes left are PC and instret.
	for _, n := range g.Nodes() {
		if n.Opcode == ir.LoadRegister {
			assert.Contains(t, []int{riscv.Pc, riscv.Instret}, int(n.Attribute))
		}
	}
}

func TestCompileAdviancesPCAndInstret(t *testing.T) {
	block := &riscv.BasicBlock{
		StartPC: 0x1000,
		EndPC:   0x1008,
		Instructions: []riscv.Instruction{
			{Opcode: riscv.Addi, Rd: 2, Rs1: 1, Imm: 1, Length: 4},
			{Opcode: riscv.Addi, Rd: 3, Rs1: 2, Imm: 1, Length: 4},
		},
	}

	g, err := Compile(context.Background(), block)
	require.NoError(t, err)

	var pcStore, instretStore *ir.Node

	for _, n := range g.Nodes() {
		if n.Opcode == ir.StoreRegister && int(n.Attribute) == riscv.Pc {
			pcStore = n
		}

		if n.Opcode == ir.StoreRegister && int(n.Attribute) == riscv.Instret {
			instretStore = n
		}
	}

	require.NotNil(t, pcStore)
	require.NotNil(t, instretStore)

	pcAdd := pcStore.Operand(1)
	require.Equal(t, ir.Add, pcAdd.Opcode())
	assert.True(t, pcAdd.Node.Operand(1).IsConst())
	assert.EqualValues(t, 8, pcAdd.Node.Operand(1).ConstValue())

	instretAdd := instretStore.Operand(1)
	require.Equal(t, ir.Add, instretAdd.Opcode())
	assert.EqualValues(t, 2, instretAdd.Node.Operand(1).ConstValue())
}

// S6: slli x5, x1, 3 — a shift(shl, load_register(1), const i8 3) feeding
// store_register(5, ...) directly, with no cast since the result is
// already i64.
func TestCompileSlli(t *testing.T) {
	block := &riscv.BasicBlock{
		StartPC: 0,
		EndPC:   4,
		Instructions: []riscv.Instruction{
			{Opcode: riscv.Slli, Rd: 5, Rs1: 1, Imm: 3, Length: 4},
		},
	}

	g, err := Compile(context.Background(), block)
	require.NoError(t, err)

	var store *ir.Node

	for _, n := range g.Nodes() {
		if n.Opcode == ir.StoreRegister && n.Attribute == 5 {
			store = n
		}
	}

	require.NotNil(t, store)

	shift := store.Operand(1)
	require.Equal(t, ir.Shl, shift.Opcode())
	require.Equal(t, ir.I64, shift.Type())

	amount := shift.Node.Operand(1)
	require.Equal(t, ir.I8, amount.Type())
	assert.EqualValues(t, 3, amount.ConstValue())

	load := shift.Node.Operand(0)
	require.Equal(t, ir.LoadRegister, load.Opcode())
	assert.EqualValues(t, 1, load.Node.Attribute)
}

// S4 groundwork: two loads from the same address each produce their own
// load_memory before any cleanup pass runs; RAE is responsible for
// forwarding the second.
func TestCompileRepeatedLoadEmitsTwoLoadsPreRAE(t *testing.T) {
	block := &riscv.BasicBlock{
		StartPC: 0,
		EndPC:   8,
		Instructions: []riscv.Instruction{
			{Opcode: riscv.Lw, Rd: 5, Rs1: 6, Imm: 0, Length: 4},
			{Opcode: riscv.Lw, Rd: 7, Rs1: 6, Imm: 0, Length: 4},
		},
	}

	g, err := Compile(context.Background(), block)
	require.NoError(t, err)

	assert.Equal(t, 2, countOpcode(g, ir.LoadMemory))
}

func TestCompileUnrecognisedInstructionFallsBackToEmulate(t *testing.T) {
	block := &riscv.BasicBlock{
		StartPC: 0,
		EndPC:   4,
		Instructions: []riscv.Instruction{
			{Opcode: riscv.Other, Raw: 0xdeadbeef, Length: 4},
		},
	}

	g, err := Compile(context.Background(), block)
	require.NoError(t, err)

	assert.Equal(t, 1, countOpcode(g, ir.Emulate))
}

func TestCompileAuipc(t *testing.T) {
	block := &riscv.BasicBlock{
		StartPC: 0x2000,
		EndPC:   0x2008,
		Instructions: []riscv.Instruction{
			{Opcode: riscv.Addi, Rd: 1, Rs1: 0, Imm: 0, Length: 4},
			{Opcode: riscv.Auipc, Rd: 5, Imm: 0x1000, Length: 4},
		},
	}

	g, err := Compile(context.Background(), block)
	require.NoError(t, err)

	var store *ir.Node

	for _, n := range g.Nodes() {
		if n.Opcode == ir.StoreRegister && n.Attribute == 5 {
			store = n
		}
	}

	require.NotNil(t, store)

	add := store.Operand(1)
	require.Equal(t, ir.Add, add.Opcode())

	pcLoad := add.Node.Operand(0)
	require.Equal(t, ir.LoadRegister, pcLoad.Opcode())
	assert.EqualValues(t, riscv.Pc, pcLoad.Node.Attribute)

	offset := add.Node.Operand(1)
	require.True(t, offset.IsConst())
	// instruction address 0x2004, end_pc 0x2008: offset = 0x2004-0x2008+0x1000
	assert.EqualValues(t, uint64(0x2004-0x2008+0x1000), offset.ConstValue())
}

func TestCompileEmitsOneBlockJmpAndEnd(t *testing.T) {
	block := &riscv.BasicBlock{
		StartPC: 0,
		EndPC:   4,
		Instructions: []riscv.Instruction{
			{Opcode: riscv.Addi, Rd: 1, Rs1: 0, Imm: 1, Length: 4},
		},
	}

	g, err := Compile(context.Background(), block)
	require.NoError(t, err)

	assert.Equal(t, 1, countOpcode(g, ir.Block))
	assert.Equal(t, 1, countOpcode(g, ir.Jmp))
	assert.Equal(t, 1, countOpcode(g, ir.End))
}
