// Package compiler exposes the core's single entry point (§6): translate
// one decoded basic block into a finalised IR graph. Everything else —
// decoding guest bytes into a basic block, caching the result, lowering
// the graph to native code — is an external collaborator's job.
package compiler

import (
	"context"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/rv64dbt/core/compiler/front"
	"github.com/rv64dbt/core/compiler/ir"
	"github.com/rv64dbt/core/compiler/pass"
	"github.com/rv64dbt/core/compiler/riscv"
)

// CompileBlock runs the full pipeline over block: front-end translation,
// then register-access elimination, local value numbering and the
// block-marker pass, in that order (§2, §4). The returned graph is
// finalised and ready to hand to a back-end.
func CompileBlock(ctx context.Context, block *riscv.BasicBlock) (_ *ir.Graph, err error) {
	tr, _ := tlog.SpawnFromContextAndWrap(ctx, "compiler: compile block", "start_pc", block.StartPC, "end_pc", block.EndPC)
	defer tr.Finish("err", &err)

	g, err := front.Compile(ctx, block)
	if err != nil {
		return nil, errors.Wrap(err, "translate block")
	}

	pass.RegisterAccessElimination(g)
	pass.LocalValueNumbering(g)
	pass.BlockMarker(g)

	g.GarbageCollect()

	tr.Printw("compiled block", "nodes", len(g.Nodes()))

	return g, nil
}
