package pass

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rv64dbt/core/compiler/front"
	"github.com/rv64dbt/core/compiler/ir"
	"github.com/rv64dbt/core/compiler/riscv"
)

func compileAndOptimize(t *testing.T, block *riscv.BasicBlock) *ir.Graph {
	t.Helper()

	g, err := front.Compile(context.Background(), block)
	require.NoError(t, err)

	RegisterAccessElimination(g)
	LocalValueNumbering(g)

	return g
}

// S6: slli x5, x1, 3 survives the full pipeline unchanged in shape: a
// shift(shl, load_register(1), const i8 3) feeding store_register(5,...),
// with no cast since the result is already i64.
func TestPipelineSlli(t *testing.T) {
	g := compileAndOptimize(t, &riscv.BasicBlock{
		StartPC: 0,
		EndPC:   4,
		Instructions: []riscv.Instruction{
			{Opcode: riscv.Slli, Rd: 5, Rs1: 1, Imm: 3, Length: 4},
		},
	})

	live := liveNodes(g)

	var store *ir.Node

	for node := range live {
		if node.Opcode == ir.StoreRegister && node.Attribute == 5 {
			store = node
		}
	}

	require.NotNil(t, store)

	shift := store.Operand(1)
	require.Equal(t, ir.Shl, shift.Opcode())
	require.Equal(t, ir.I64, shift.Type())
	assert.Equal(t, ir.LoadRegister, shift.Node.Operand(0).Opcode())
	assert.Equal(t, 0, countLive(live, ir.Cast))
}

// S3: addi x2,x1,1 ; addi x3,x2,1 — with x1 non-constant, two adds share
// one load_register(1).
func TestPipelineChainedAddiSharesLoad(t *testing.T) {
	g := compileAndOptimize(t, &riscv.BasicBlock{
		StartPC: 0,
		EndPC:   8,
		Instructions: []riscv.Instruction{
			{Opcode: riscv.Addi, Rd: 2, Rs1: 1, Imm: 1, Length: 4},
			{Opcode: riscv.Addi, Rd: 3, Rs1: 2, Imm: 1, Length: 4},
		},
	})

	live := liveNodes(g)

	var loadsOfX1 int

	for node := range live {
		if node.Opcode == ir.LoadRegister && node.Attribute == 1 {
			loadsOfX1++
		}
	}

	assert.Equal(t, 1, loadsOfX1)
	assert.Equal(t, 4, countLive(live, ir.Add)) // x1+1, (x1+1)+1, pc+8, instret+2
}

// S4: lw x5,0(x6) ; lw x7,0(x6) — one load_memory, both stores preserved,
// each sign-extended from i32.
func TestPipelineRepeatedLoadForwardsAndPreservesStores(t *testing.T) {
	g := compileAndOptimize(t, &riscv.BasicBlock{
		StartPC: 0,
		EndPC:   8,
		Instructions: []riscv.Instruction{
			{Opcode: riscv.Lw, Rd: 5, Rs1: 6, Imm: 0, Length: 4},
			{Opcode: riscv.Lw, Rd: 7, Rs1: 6, Imm: 0, Length: 4},
		},
	})

	live := liveNodes(g)

	assert.Equal(t, 1, countLive(live, ir.LoadMemory))

	var storedRegs int

	for node := range live {
		if node.Opcode == ir.StoreRegister && (node.Attribute == 5 || node.Attribute == 7) {
			storedRegs++
		}
	}

	assert.Equal(t, 2, storedRegs)

	for node := range live {
		if node.Opcode == ir.StoreRegister && (node.Attribute == 5 || node.Attribute == 7) {
			cast := node.Operand(1)
			require.Equal(t, ir.Cast, cast.Opcode())
			assert.EqualValues(t, 1, cast.Node.Attribute, "sext flag must be set")
		}
	}
}

// S5: sw x5,0(x6) ; sw x7,0(x6) — the first store_memory is dead.
func TestPipelineRepeatedStoreDropsFirst(t *testing.T) {
	g := compileAndOptimize(t, &riscv.BasicBlock{
		StartPC: 0,
		EndPC:   8,
		Instructions: []riscv.Instruction{
			{Opcode: riscv.Sw, Rs1: 6, Rs2: 5, Imm: 0, Length: 4},
			{Opcode: riscv.Sw, Rs1: 6, Rs2: 7, Imm: 0, Length: 4},
		},
	})

	live := liveNodes(g)

	assert.Equal(t, 1, countLive(live, ir.StoreMemory))

	for node := range live {
		if node.Opcode == ir.StoreMemory {
			value := node.Operand(2)
			require.Equal(t, ir.Cast, value.Opcode())
			load := value.Node.Operand(0)
			require.Equal(t, ir.LoadRegister, load.Opcode())
			assert.EqualValues(t, 7, load.Node.Attribute)
		}
	}
}
