package back

import (
	"context"

	"github.com/nikandfor/hacked/hfmt"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/slowlang/subc/compiler/ir"
)

type (
	// Compiler renders IR programs as NASM x86-64 assembly.
	Compiler struct {
		Config

		Names *ir.Names
	}
)

// New creates a backend. names must be the same counter the IR was generated with.
func New(cfg Config, names *ir.Names) *Compiler {
	if names == nil {
		names = &ir.Names{}
	}

	return &Compiler{
		Config: cfg,
		Names:  names,
	}
}

// Compile emits the whole program. On error nothing is returned.
func (c *Compiler) Compile(ctx context.Context, b []byte, p *ir.Program) (_ []byte, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "back: compile", "file", p.File, "funcs", len(p.Funcs))
	defer tr.Finish("err", &err)

	err = c.Config.Check()
	if err != nil {
		return nil, errors.Wrap(err, "config")
	}

	st := len(b)

	b = append(b, "SECTION .text\n"...)

	if c.Start {
		b = append(b, "global _start\n"...)
	}

	for _, f := range p.Funcs {
		b = hfmt.Appendf(b, "global %s\n", f.Sym.Name)
	}

	for _, name := range p.Externs {
		b = hfmt.Appendf(b, "extern %s\n", name)
	}

	if c.Start {
		b = append(b, `
_start:
	call main
	mov rdi, rax
	mov rax, 60
	syscall
`...)
	}

	for _, f := range p.Funcs {
		b = append(b, '\n')

		b, err = c.compileFunc(ctx, b, f)
		if err != nil {
			return nil, errors.Wrap(err, "func %v", f.Sym.Name)
		}
	}

	if tr.If("dump_asm") {
		tr.Printw("asm", "text", string(b[st:]))
	}

	return b, nil
}

// CompileFunc emits a single function.
func (c *Compiler) CompileFunc(ctx context.Context, b []byte, f *ir.Func) ([]byte, error) {
	err := c.Config.Check()
	if err != nil {
		return nil, errors.Wrap(err, "config")
	}

	return c.compileFunc(ctx, b, f)
}
