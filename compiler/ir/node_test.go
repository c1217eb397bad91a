package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGraphEntryIsMemory(t *testing.T) {
	g := NewGraph()

	require.Equal(t, Start, g.Entry().Opcode)
	require.Equal(t, Memory, g.Entry().Value(0).Type())
}

func TestOperandUseCoherence(t *testing.T) {
	g := NewGraph()
	b := NewBuilder(g)

	c1 := b.Constant(I64, 1)
	c2 := b.Constant(I64, 2)
	add := b.Arithmetic(Add, c1, c2)

	assert.Equal(t, 1, c1.UseCount())
	assert.Equal(t, 1, c2.UseCount())
	assert.Equal(t, add.Node, c1.Uses()[0])

	// Using the same value twice bumps the use count to 2, not 1.
	self := b.Arithmetic(Add, c1, c1)
	assert.Equal(t, 3, c1.UseCount())
	assert.Equal(t, 2, c1.Node.uses[0].count(self.Node))
}

func TestOperandSetMaintainsCoherence(t *testing.T) {
	g := NewGraph()
	b := NewBuilder(g)

	c1 := b.Constant(I64, 1)
	c2 := b.Constant(I64, 2)
	c3 := b.Constant(I64, 3)

	add := b.Arithmetic(Add, c1, c2)
	require.Equal(t, 1, c2.UseCount())

	add.Node.OperandSet(1, c3)

	assert.Equal(t, 0, c2.UseCount())
	assert.Equal(t, 1, c3.UseCount())
	assert.Equal(t, c3, add.Node.Operand(1))
}

func TestGarbageCollectRetainsOnlyReachable(t *testing.T) {
	g := NewGraph()
	b := NewBuilder(g)

	mem := g.Entry().Value(0)
	ifTrue, _ := b.If(mem, b.Constant(I1, 1))
	b.Block(b.IfTrue(ifTrue))
	b.Constant(I64, 0xdead)

	end := b.End()
	g.SetRoot(end)

	before := len(g.Nodes())
	g.GarbageCollect()
	after := len(g.Nodes())

	assert.Less(t, after, before)
}

func TestMemoryLinearityThroughRegisters(t *testing.T) {
	g := NewGraph()
	b := NewBuilder(g)

	mem := g.Entry().Value(0)
	mem, v := b.LoadRegister(mem, 5)
	mem = b.StoreRegister(mem, 6, v)

	require.Equal(t, Memory, mem.Type())
	require.Equal(t, LoadRegister, mem.Node.Operand(0).Opcode())
}
