package main

import (
	"context"
	"fmt"
	"os"

	"nikand.dev/go/cli"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/rv64dbt/core/compiler"
	"github.com/rv64dbt/core/compiler/backend"
	"github.com/rv64dbt/core/compiler/pass"
	"github.com/rv64dbt/core/compiler/riscv"
)

// main wires a CLI around the core for bring-up and manual inspection:
// the guest decoder, dispatch loop and real x86-64 encoder are external
// collaborators this repository doesn't implement (§1), so "compile"
// runs the pipeline over one of a few built-in basic blocks instead of
// decoding guest bytes from a file.
func main() {
	compileCmd := &cli.Command{
		Name:   "compile",
		Action: compileAct,
		Args:   cli.Args{},
	}

	listCmd := &cli.Command{
		Name:   "list",
		Action: listAct,
		Args:   cli.Args{},
	}

	dotCmd := &cli.Command{
		Name:   "dot",
		Action: dotAct,
		Args:   cli.Args{},
	}

	app := &cli.Command{
		Name:        "dbt",
		Description: "dbt drives the RV64 IR core over a set of built-in demo blocks",
		Commands: []*cli.Command{
			compileCmd,
			listCmd,
			dotCmd,
		},
	}

	cli.RunAndExit(app, os.Args, os.Environ())
}

func listAct(c *cli.Command) error {
	for name := range demoBlocks {
		fmt.Println(name)
	}

	return nil
}

func compileAct(c *cli.Command) (err error) {
	ctx := context.Background()
	ctx = tlog.ContextWithSpan(ctx, tlog.Root())

	names := c.Args
	if len(names) == 0 {
		for name := range demoBlocks {
			names = append(names, name)
		}
	}

	be := backend.New(nil)

	for _, name := range names {
		block, ok := demoBlocks[name]
		if !ok {
			return errors.New("unknown demo block %q", name)
		}

		g, err := compiler.CompileBlock(ctx, block)
		if err != nil {
			return errors.Wrap(err, "compile %v", name)
		}

		code, err := be.Compile(ctx, nil, g)
		if err != nil {
			return errors.Wrap(err, "lower %v", name)
		}

		fmt.Printf("; %s\n%s\n", name, code)
	}

	return nil
}

// dotAct renders each named block's compiled graph as Graphviz dot source,
// for eyeballing the effect of the core's passes during bring-up.
func dotAct(c *cli.Command) (err error) {
	ctx := context.Background()
	ctx = tlog.ContextWithSpan(ctx, tlog.Root())

	names := c.Args
	if len(names) == 0 {
		for name := range demoBlocks {
			names = append(names, name)
		}
	}

	for _, name := range names {
		block, ok := demoBlocks[name]
		if !ok {
			return errors.New("unknown demo block %q", name)
		}

		g, err := compiler.CompileBlock(ctx, block)
		if err != nil {
			return errors.Wrap(err, "compile %v", name)
		}

		fmt.Printf("// %s\n%s\n", name, pass.Dot(g))
	}

	return nil
}

// demoBlocks mirrors the end-to-end scenarios in §8: each is small enough
// to read off by hand and check against the lowered trace.
var demoBlocks = map[string]*riscv.BasicBlock{
	"addi-from-x0": {
		StartPC: 0,
		EndPC:   4,
		Instructions: []riscv.Instruction{
			{Opcode: riscv.Addi, Rd: 5, Rs1: 0, Imm: 7, Length: 4},
		},
	},
	"chained-addi": {
		StartPC: 0,
		EndPC:   8,
		Instructions: []riscv.Instruction{
			{Opcode: riscv.Addi, Rd: 2, Rs1: 1, Imm: 1, Length: 4},
			{Opcode: riscv.Addi, Rd: 3, Rs1: 2, Imm: 1, Length: 4},
		},
	},
	"repeated-load": {
		StartPC: 0,
		EndPC:   8,
		Instructions: []riscv.Instruction{
			{Opcode: riscv.Lw, Rd: 5, Rs1: 6, Imm: 0, Length: 4},
			{Opcode: riscv.Lw, Rd: 7, Rs1: 6, Imm: 0, Length: 4},
		},
	},
	"repeated-store": {
		StartPC: 0,
		EndPC:   8,
		Instructions: []riscv.Instruction{
			{Opcode: riscv.Sw, Rs1: 6, Rs2: 5, Imm: 0, Length: 4},
			{Opcode: riscv.Sw, Rs1: 6, Rs2: 7, Imm: 0, Length: 4},
		},
	},
	"slli": {
		StartPC: 0,
		EndPC:   4,
		Instructions: []riscv.Instruction{
			{Opcode: riscv.Slli, Rd: 5, Rs1: 1, Imm: 3, Length: 4},
		},
	},
}
