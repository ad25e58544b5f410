package compiler

import (
	"context"
	"os"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/slowlang/subc/compiler/ast"
	"github.com/slowlang/subc/compiler/back"
	"github.com/slowlang/subc/compiler/format"
	"github.com/slowlang/subc/compiler/front"
	"github.com/slowlang/subc/compiler/ir"
)

// ReadFile decodes a validated program from its JSON hand-off file.
func ReadFile(ctx context.Context, name string) (p *ast.Program, err error) {
	text, err := os.ReadFile(name)
	if err != nil {
		return nil, errors.Wrap(err, "read file")
	}

	tlog.SpanFromContext(ctx).Printw("read file", "size", len(text), "name", name)

	p, err = ast.Decode(text)
	if err != nil {
		return nil, errors.Wrap(err, "decode %v", name)
	}

	if p.File == "" {
		p.File = name
	}

	return p, nil
}

func CompileFile(ctx context.Context, name string, cfg back.Config) (asm []byte, err error) {
	p, err := ReadFile(ctx, name)
	if err != nil {
		return nil, err
	}

	return Compile(ctx, p, cfg)
}

// Compile generates IR for every defined function and emits it as NASM text.
// Nothing is returned on failure.
func Compile(ctx context.Context, p *ast.Program, cfg back.Config) (asm []byte, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "compile", "file", p.File)
	defer tr.Finish("err", &err)

	names := &ir.Names{}

	x, err := front.New(names).Compile(ctx, p)
	if err != nil {
		return nil, errors.Wrap(err, "generate")
	}

	asm, err = back.New(cfg, names).Compile(ctx, nil, x)
	if err != nil {
		return nil, errors.Wrap(err, "emit")
	}

	return asm, nil
}

// IR renders the generated IR of the program.
func IR(ctx context.Context, p *ast.Program) (_ []byte, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "ir", "file", p.File)
	defer tr.Finish("err", &err)

	x, err := front.New(nil).Compile(ctx, p)
	if err != nil {
		return nil, errors.Wrap(err, "generate")
	}

	return format.Program(nil, x), nil
}
