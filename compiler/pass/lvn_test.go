package pass

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rv64dbt/core/compiler/ir"
)

func TestLVNFoldsConstantAdd(t *testing.T) {
	g := ir.NewGraph()
	b := ir.NewBuilder(g)

	mem := g.Entry().Value(0)
	sum := b.Arithmetic(ir.Add, b.Constant(ir.I64, 3), b.Constant(ir.I64, 4))
	mem = b.StoreRegister(mem, 5, sum)

	end := b.End(b.Jmp(mem))
	g.SetRoot(end)

	LocalValueNumbering(g)

	live := liveNodes(g)

	for node := range live {
		if node.Opcode == ir.StoreRegister {
			v := node.Operand(1)
			require.True(t, v.IsConst())
			assert.EqualValues(t, 7, v.ConstValue())
		}
	}

	assert.Equal(t, 0, countLive(live, ir.Add))
}

func TestLVNWraparoundOnOverflow(t *testing.T) {
	g := ir.NewGraph()
	b := ir.NewBuilder(g)

	sum := b.Arithmetic(ir.Add, b.Constant(ir.I8, 0xff), b.Constant(ir.I8, 2))

	mem := g.Entry().Value(0)
	mem = b.StoreRegister(mem, 5, b.Cast(ir.I64, false, sum))

	end := b.End(b.Jmp(mem))
	g.SetRoot(end)

	LocalValueNumbering(g)

	live := liveNodes(g)

	for node := range live {
		if node.Opcode == ir.StoreRegister {
			assert.EqualValues(t, 1, node.Operand(1).ConstValue())
		}
	}
}

func TestLVNMasksShiftAmount(t *testing.T) {
	g := ir.NewGraph()
	b := ir.NewBuilder(g)

	// A shift amount of 65 on an i64 value masks to 1 (65 & 63).
	shifted := b.Shift(ir.Shl, b.Constant(ir.I64, 1), b.Constant(ir.I8, 65))

	mem := g.Entry().Value(0)
	mem = b.StoreRegister(mem, 5, shifted)

	end := b.End(b.Jmp(mem))
	g.SetRoot(end)

	LocalValueNumbering(g)

	live := liveNodes(g)

	for node := range live {
		if node.Opcode == ir.StoreRegister {
			assert.EqualValues(t, 2, node.Operand(1).ConstValue())
		}
	}
}

func TestLVNDeduplicatesCommutativeOperandOrder(t *testing.T) {
	g := ir.NewGraph()
	b := ir.NewBuilder(g)

	mem := g.Entry().Value(0)
	mem, x := b.LoadRegister(mem, 1)
	mem, y := b.LoadRegister(mem, 2)

	ab := b.Arithmetic(ir.Add, x, y)
	ba := b.Arithmetic(ir.Add, y, x)

	mem = b.StoreRegister(mem, 3, ab)
	mem = b.StoreRegister(mem, 4, ba)

	end := b.End(b.Jmp(mem))
	g.SetRoot(end)

	LocalValueNumbering(g)

	live := liveNodes(g)

	assert.Equal(t, 1, countLive(live, ir.Add))
}

// Idempotency (§8 property 6): running LVN twice produces no further
// changes to the live node set.
func TestLVNIsIdempotent(t *testing.T) {
	g := ir.NewGraph()
	b := ir.NewBuilder(g)

	mem := g.Entry().Value(0)
	mem, x := b.LoadRegister(mem, 1)
	sum := b.Arithmetic(ir.Add, x, b.Constant(ir.I64, 1))
	mem = b.StoreRegister(mem, 2, sum)

	end := b.End(b.Jmp(mem))
	g.SetRoot(end)

	LocalValueNumbering(g)
	after1 := len(liveNodes(g))

	LocalValueNumbering(g)
	after2 := len(liveNodes(g))

	assert.Equal(t, after1, after2)
}

func TestLVNFoldsIdentityCast(t *testing.T) {
	g := ir.NewGraph()
	b := ir.NewBuilder(g)

	mem := g.Entry().Value(0)
	mem, x := b.LoadRegister(mem, 1)
	cast := b.Cast(ir.I64, true, x)
	mem = b.StoreRegister(mem, 2, cast)

	end := b.End(b.Jmp(mem))
	g.SetRoot(end)

	LocalValueNumbering(g)

	live := liveNodes(g)

	assert.Equal(t, 0, countLive(live, ir.Cast))
}
