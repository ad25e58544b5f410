package main

import (
	"context"
	"os"

	"github.com/cespare/xxhash/v2"
	"nikand.dev/go/cli"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/slowlang/subc/compiler"
	"github.com/slowlang/subc/compiler/back"
	"github.com/slowlang/subc/compiler/diag"
)

var errFailed = errors.New("compilation failed")

func main() {
	compileCmd := &cli.Command{
		Name:        "compile",
		Description: "compile programs into NASM x86-64 assembly",
		Action:      compileAct,
		Args:        cli.Args{},
		Flags: []*cli.Flag{
			cli.NewFlag("output,o", "", "output file, stdout if empty"),
			cli.NewFlag("comments", false, "annotate assembly with IR statements"),
			cli.NewFlag("start", false, "emit _start entry calling main"),
			cli.NewFlag("pool", 0, "limit scratch register pool size"),
			cli.NewFlag("force", false, "rewrite output even if unchanged"),
		},
	}

	irCmd := &cli.Command{
		Name:        "ir",
		Description: "print intermediate representation",
		Action:      irAct,
		Args:        cli.Args{},
	}

	app := &cli.Command{
		Name:        "subc",
		Description: "subc compiles a subset of C to NASM x86-64 assembly",
		Flags: []*cli.Flag{
			cli.NewFlag("verbosity,v", "", "tlog verbosity topics (dump_ir, dump_alloc, dump_asm, liveness)"),
		},
		Commands: []*cli.Command{
			compileCmd,
			irCmd,
		},
	}

	cli.RunAndExit(app, os.Args, os.Environ())
}

func setup(c *cli.Command) context.Context {
	tlog.SetVerbosity(c.String("verbosity"))

	ctx := context.Background()
	ctx = tlog.ContextWithSpan(ctx, tlog.Root())

	return ctx
}

func compileAct(c *cli.Command) (err error) {
	ctx := setup(c)

	cfg := back.DefaultConfig()
	cfg.Comments = c.Bool("comments")
	cfg.Start = c.Bool("start")

	if n := c.Int("pool"); n > 0 {
		if n > len(cfg.Pool) {
			return errors.New("pool size %d: only %d registers available", n, len(cfg.Pool))
		}

		cfg.Pool = cfg.Pool[:n]
	}

	var out []byte

	for _, a := range c.Args {
		asm, err := compiler.CompileFile(ctx, a, cfg)
		if err != nil {
			diag.Render(os.Stderr, a, err, diag.Colorful(os.Stderr))
			return errFailed
		}

		out = append(out, asm...)
	}

	return write(ctx, c.String("output"), out, c.Bool("force"))
}

func irAct(c *cli.Command) (err error) {
	ctx := setup(c)

	for _, a := range c.Args {
		p, err := compiler.ReadFile(ctx, a)
		if err != nil {
			diag.Render(os.Stderr, a, err, diag.Colorful(os.Stderr))
			return errFailed
		}

		text, err := compiler.IR(ctx, p)
		if err != nil {
			diag.Render(os.Stderr, a, err, diag.Colorful(os.Stderr))
			return errFailed
		}

		_, err = os.Stdout.Write(text)
		if err != nil {
			return errors.Wrap(err, "write")
		}
	}

	return nil
}

// write stores out to name. A file already holding the same content is left untouched.
func write(ctx context.Context, name string, out []byte, force bool) error {
	if name == "" || name == "-" {
		_, err := os.Stdout.Write(out)
		if err != nil {
			return errors.Wrap(err, "write")
		}

		return nil
	}

	if !force {
		old, err := os.ReadFile(name)
		if err == nil && xxhash.Sum64(old) == xxhash.Sum64(out) {
			tlog.SpanFromContext(ctx).Printw("output unchanged", "name", name, "size", len(out))
			return nil
		}
	}

	err := os.WriteFile(name, out, 0o644)
	if err != nil {
		return errors.Wrap(err, "write output")
	}

	return nil
}
