package pass

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rv64dbt/core/compiler/ir"
)

func TestDotRendersOneNodePerRecord(t *testing.T) {
	g := ir.NewGraph()
	b := ir.NewBuilder(g)

	c := b.Constant(ir.I64, 42)
	mem := b.StoreRegister(g.Entry().Value(0), 1, c)
	end := b.End(b.Jmp(mem))
	g.SetRoot(end)

	out := string(Dot(g))

	assert.Contains(t, out, "digraph ir {")
	assert.Contains(t, out, "constant 42")
	assert.Contains(t, out, "store_register r1")
	assert.Contains(t, out, "}\n")
}
