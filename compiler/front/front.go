package front

import (
	"context"
	"fmt"

	"github.com/samber/lo"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/slowlang/subc/compiler/ast"
	"github.com/slowlang/subc/compiler/diag"
	"github.com/slowlang/subc/compiler/format"
	"github.com/slowlang/subc/compiler/ir"
	"github.com/slowlang/subc/compiler/tp"
)

type (
	// Front lowers validated functions into IR.
	// Names is shared with the backend so labels never collide with temps' numbering.
	// Results holds declared function result types, Compile fills it from the program.
	Front struct {
		Names   *ir.Names
		Results map[string]tp.Type
	}

	funContext struct {
		*ir.Func

		names   *ir.Names
		results map[string]tp.Type

		vars  map[*ast.Symbol]ir.Var
		taken map[string]int

		code []ir.Stmt
	}
)

var ops = map[string]ir.Op{
	"+":  ir.Add,
	"-":  ir.Sub,
	"*":  ir.Mul,
	"/":  ir.Div,
	"%":  ir.Mod,
	"==": ir.Eq,
	"!=": ir.Ne,
	"<":  ir.Lt,
	"<=": ir.Le,
	">":  ir.Gt,
	">=": ir.Ge,
}

func New(names *ir.Names) *Front {
	if names == nil {
		names = &ir.Names{}
	}

	return &Front{Names: names}
}

func (c *Front) Compile(ctx context.Context, p *ast.Program) (_ *ir.Program, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "front: compile", "file", p.File, "funcs", len(p.Funcs))
	defer tr.Finish("err", &err)

	res := &ir.Program{File: p.File}

	if c.Results == nil {
		c.Results = map[string]tp.Type{}
	}

	for _, f := range p.Funcs {
		c.Results[f.Sym.Name] = f.Sym.Type
	}

	for _, f := range p.Funcs {
		if f.Body == nil {
			res.Externs = append(res.Externs, f.Sym.Name)
			continue
		}

		fc, err := c.CompileFunc(ctx, f)
		if err != nil {
			return nil, errors.Wrap(err, "func %v", f.Sym.Name)
		}

		res.Funcs = append(res.Funcs, fc)
	}

	// a function both declared and defined is not external
	res.Externs = lo.Filter(lo.Uniq(res.Externs), func(name string, _ int) bool {
		return !lo.ContainsBy(res.Funcs, func(f *ir.Func) bool { return f.Sym.Name == name })
	})

	return res, nil
}

func (c *Front) CompileFunc(ctx context.Context, f *ast.Func) (_ *ir.Func, err error) {
	tr, _ := tlog.SpawnFromContextAndWrap(ctx, "front: func", "name", f.Sym.Name)
	defer tr.Finish("err", &err)

	if f.Sym.Type.Kind.IsFloat() && !f.Sym.Type.Pointer {
		return nil, diag.Lowering(f, f.Sym.Name, "floating point results are not supported")
	}

	s := &funContext{
		Func:    &ir.Func{Sym: f.Sym},
		names:   c.Names,
		results: c.Results,
		vars:    map[*ast.Symbol]ir.Var{},
		taken:   map[string]int{},
	}

	for _, p := range f.Params {
		if p.Type.Kind.IsFloat() && !p.Type.Pointer {
			return nil, diag.Lowering(f, p.Name, "floating point parameters are not supported")
		}
	}

	s.Params = lo.Map(f.Params, func(p *ast.Symbol, _ int) ir.Var {
		return s.declare(p)
	})

	if f.Body == nil {
		return nil, diag.Lowering(f, f.Sym.Name, "function has no body")
	}

	s.Body, err = s.block(ctx, f.Body.Stmts)
	if err != nil {
		return nil, err
	}

	if tr.If("dump_ir") {
		tr.Printw("ir", "func", f.Sym.Name, "code", string(format.Func(nil, s.Func)))
	}

	return s.Func, nil
}

func (s *funContext) declare(sym *ast.Symbol) ir.Var {
	name := sym.Name

	if n := s.taken[sym.Name]; n != 0 {
		name = fmt.Sprintf("%s.%d", sym.Name, n)
	}

	s.taken[sym.Name]++

	v := ir.Var{Name: name, Type: sym.Type}
	s.vars[sym] = v

	return v
}

func (s *funContext) lookup(id *ast.Ident) (ir.Var, error) {
	v, ok := s.vars[id.Sym]
	if !ok || id.Sym == nil {
		return ir.Var{}, diag.Lowering(id, id.Name, "unresolved identifier")
	}

	return v, nil
}

func (s *funContext) emit(x ir.Stmt) {
	s.code = append(s.code, x)
}

// block lowers stmts into a separate code list. Each statement is followed by a Noop.
func (s *funContext) block(ctx context.Context, stmts []ast.Stmt) (code []ir.Stmt, err error) {
	outer := s.code
	s.code = nil

	defer func() {
		code = s.code
		s.code = outer
	}()

	for _, x := range stmts {
		err = s.stmt(ctx, x)
		if err != nil {
			return nil, err
		}

		s.emit(&ir.Noop{})
	}

	return nil, nil
}

func (s *funContext) stmt(ctx context.Context, x ast.Stmt) (err error) {
	switch x := x.(type) {
	case *ast.Decl:
		if x.Sym.Type.Kind.IsFloat() && !x.Sym.Type.Pointer {
			return diag.Lowering(x, x.Sym.Name, "floating point variables are not supported")
		}

		var val ir.Symbol

		if x.Init != nil {
			val, err = s.expr(ctx, x.Init)
			if err != nil {
				return errors.Wrap(err, "init %v", x.Sym.Name)
			}
		}

		// the initializer still sees an outer symbol of the same name
		v := s.declare(x.Sym)
		s.Locals = append(s.Locals, v)

		if val != nil {
			s.emit(&ir.Move{Dest: v, Src: val})
		}
	case *ast.ExprStmt:
		_, err = s.expr(ctx, x.X)
		if err != nil {
			return err
		}
	case *ast.Return:
		r := &ir.Return{}

		if x.Value != nil {
			r.Value, err = s.expr(ctx, x.Value)
			if err != nil {
				return errors.Wrap(err, "return value")
			}
		}

		s.emit(r)
	case *ast.Block:
		for _, y := range x.Stmts {
			err = s.stmt(ctx, y)
			if err != nil {
				return err
			}
		}
	case *ast.If:
		return s.ifStmt(ctx, x)
	case *ast.While:
		return s.loop(ctx, x.Cond, x.Body.Stmts, nil)
	case *ast.For:
		if x.Init != nil {
			err = s.stmt(ctx, x.Init)
			if err != nil {
				return errors.Wrap(err, "for init")
			}
		}

		return s.loop(ctx, x.Cond, x.Body.Stmts, x.Post)
	default:
		return diag.Lowering(x, "", "unsupported statement")
	}

	return nil
}

func (s *funContext) ifStmt(ctx context.Context, x *ast.If) (err error) {
	st := &ir.If{}

	for ; x != nil; x = x.ElseIf {
		arm := ir.Arm{Cond: x.Cond}

		arm.Tests, err = s.tests(ctx, x.Cond, nil)
		if err != nil {
			return errors.Wrap(err, "if cond")
		}

		arm.Body, err = s.block(ctx, x.Then.Stmts)
		if err != nil {
			return errors.Wrap(err, "if body")
		}

		st.Arms = append(st.Arms, arm)

		if x.Else != nil {
			st.Else, err = s.block(ctx, x.Else.Stmts)
			if err != nil {
				return errors.Wrap(err, "else")
			}
		}
	}

	s.emit(st)

	return nil
}

// loop lowers while and for. Nil cond loops forever, post runs after the body.
func (s *funContext) loop(ctx context.Context, cond ast.Expr, body []ast.Stmt, post ast.Expr) (err error) {
	st := &ir.While{Cond: cond}

	if cond != nil {
		st.Tests, err = s.tests(ctx, cond, nil)
		if err != nil {
			return errors.Wrap(err, "loop cond")
		}
	}

	if post != nil {
		body = append(body[:len(body):len(body)], &ast.ExprStmt{Base: ast.Base{Pos: post.Position()}, X: post})
	}

	st.Body, err = s.block(ctx, body)
	if err != nil {
		return errors.Wrap(err, "loop body")
	}

	s.emit(st)

	return nil
}

func (s *funContext) expr(ctx context.Context, e ast.Expr) (_ ir.Symbol, err error) {
	switch e := e.(type) {
	case *ast.Const:
		return s.constant(e.Value), nil
	case *ast.Ident:
		return s.lookup(e)
	case *ast.Group:
		return s.expr(ctx, e.X)
	case *ast.Binary:
		return s.binary(ctx, e)
	case *ast.AddressOf:
		id, ok := e.X.(*ast.Ident)
		if !ok {
			return nil, diag.Lowering(e, "", "operand must be an identifier, got %v", ast.Describe(e.X))
		}

		v, err := s.lookup(id)
		if err != nil {
			return nil, err
		}

		t := s.names.Temp()
		s.emit(&ir.Move{Dest: t, Src: ir.Address{Var: v}})

		return t, nil
	case *ast.Deref:
		id, ok := e.X.(*ast.Ident)
		if !ok {
			return nil, diag.Lowering(e, "", "operand must be an identifier, got %v", ast.Describe(e.X))
		}

		v, err := s.lookup(id)
		if err != nil {
			return nil, err
		}

		if !v.Type.Pointer {
			return nil, diag.Lowering(e, id.Name, "dereference of non-pointer %v", v.Type)
		}

		t := s.names.Temp()
		s.emit(&ir.Move{Dest: t, Src: ir.Deref{Var: v}})

		return t, nil
	case *ast.Assign:
		id, ok := e.Target.(*ast.Ident)
		if !ok {
			return nil, diag.Lowering(e, "", "assignment target must be an identifier, got %v", ast.Describe(e.Target))
		}

		val, err := s.expr(ctx, e.Value)
		if err != nil {
			return nil, errors.Wrap(err, "assign %v", id.Name)
		}

		v, err := s.lookup(id)
		if err != nil {
			return nil, err
		}

		s.emit(&ir.Move{Dest: v, Src: val})

		return v, nil
	case *ast.Call:
		args := make([]ir.Symbol, len(e.Args))

		for i, a := range e.Args {
			args[i], err = s.expr(ctx, a)
			if err != nil {
				return nil, errors.Wrap(err, "call %v: arg %d", e.Name, i)
			}
		}

		t := s.names.Temp()
		s.emit(&ir.Move{Dest: t, Src: ir.Call{Name: e.Name, Args: args}})

		return t, nil
	default:
		return nil, diag.Lowering(e, "", "unsupported expression")
	}
}

func (s *funContext) binary(ctx context.Context, e *ast.Binary) (_ ir.Symbol, err error) {
	op, ok := ops[e.Op]
	if !ok {
		return nil, diag.UnsupportedOperator(e, e.Op)
	}

	if v, ok := constValue(e); ok {
		return s.constant(v), nil
	}

	l, r, err := s.operands(ctx, e)
	if err != nil {
		return nil, err
	}

	t := s.names.Temp()
	s.emit(&ir.Move{Dest: t, Src: ir.Binop{Op: op, L: l, R: r, Unsigned: op.IsCompare() && s.unsigned(e.Left, e.Right)}})

	return t, nil
}

// operands lowers both sides left to right.
// Two Vars can't both be memory operands, so the left one is copied to a temp.
func (s *funContext) operands(ctx context.Context, e *ast.Binary) (l, r ir.Symbol, err error) {
	l, err = s.expr(ctx, e.Left)
	if err != nil {
		return nil, nil, errors.Wrap(err, "%v left", e.Op)
	}

	r, err = s.expr(ctx, e.Right)
	if err != nil {
		return nil, nil, errors.Wrap(err, "%v right", e.Op)
	}

	_, lvar := l.(ir.Var)
	_, rvar := r.(ir.Var)

	if lvar && rvar {
		t := s.names.Temp()
		s.emit(&ir.Move{Dest: t, Src: l})
		l = t
	}

	return l, r, nil
}

func (s *funContext) constant(v int64) ir.Temp {
	t := s.names.Temp()
	s.emit(&ir.Move{Dest: t, Src: ir.Const(v)})

	return t
}
