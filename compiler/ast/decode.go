package ast

import (
	"bytes"
	"encoding/json"

	"tlog.app/go/errors"

	"github.com/slowlang/subc/compiler/tp"
)

type (
	rawProgram struct {
		File  string    `json:"file"`
		Funcs []rawFunc `json:"funcs"`
	}

	rawFunc struct {
		Name   string          `json:"name"`
		Type   rawType         `json:"type"`
		Params []rawSym        `json:"params"`
		Body   json.RawMessage `json:"body"`
		Pos    Pos             `json:"pos"`
	}

	rawType struct {
		Kind    string `json:"kind"`
		Signed  *bool  `json:"signed"`
		Pointer bool   `json:"pointer"`
	}

	rawSym struct {
		Name string  `json:"name"`
		Type rawType `json:"type"`
		Pos  Pos     `json:"pos"`
	}

	rawNode struct {
		Kind string `json:"kind"`
		Pos  Pos    `json:"pos"`

		Name string `json:"name"`
		Op   string `json:"op"`

		Sym   *rawSym         `json:"sym"`
		Value json.RawMessage `json:"value"`

		Init   *rawNode   `json:"init"`
		X      *rawNode   `json:"x"`
		Cond   *rawNode   `json:"cond"`
		Post   *rawNode   `json:"post"`
		Left   *rawNode   `json:"left"`
		Right  *rawNode   `json:"right"`
		Target *rawNode   `json:"target"`
		ElseIf *rawNode   `json:"elseif"`
		Then   []rawNode  `json:"then"`
		Else   *[]rawNode `json:"else"`
		Body   []rawNode  `json:"body"`
		Args   []rawNode  `json:"args"`
	}

	decoder struct {
		scope *Scope
	}
)

// Decode reads a validated program in the JSON hand-off format.
// It builds parent-linked scopes and binds each identifier to the symbol
// visible at its point of use.
func Decode(data []byte) (_ *Program, err error) {
	var raw rawProgram

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	err = dec.Decode(&raw)
	if err != nil {
		return nil, errors.Wrap(err, "json")
	}

	d := &decoder{scope: NewScope(nil)}

	p := &Program{File: raw.File}

	for _, rf := range raw.Funcs {
		f, err := d.fun(rf)
		if err != nil {
			return nil, errors.Wrap(err, "func %v", rf.Name)
		}

		p.Funcs = append(p.Funcs, f)
	}

	return p, nil
}

func (d *decoder) fun(rf rawFunc) (_ *Func, err error) {
	typ, err := rf.Type.decode()
	if err != nil {
		return nil, errors.Wrap(err, "result type")
	}

	f := &Func{
		Base:  Base{Pos: rf.Pos},
		Sym:   &Symbol{Name: rf.Name, Type: typ, Pos: rf.Pos},
		Scope: NewScope(d.scope),
	}

	for _, rp := range rf.Params {
		sym, err := rp.decode()
		if err != nil {
			return nil, errors.Wrap(err, "param %v", rp.Name)
		}

		if !f.Scope.Declare(sym) {
			return nil, errors.New("%v: duplicate parameter %q", rp.Pos, rp.Name)
		}

		f.Params = append(f.Params, sym)
	}

	if len(rf.Body) == 0 || string(rf.Body) == "null" {
		return f, nil
	}

	var stmts []rawNode

	err = json.Unmarshal(rf.Body, &stmts)
	if err != nil {
		return nil, errors.Wrap(err, "body")
	}

	d.scope = f.Scope
	defer func() { d.scope = f.Scope.Parent }()

	f.Body, err = d.block(rf.Pos, stmts)
	if err != nil {
		return nil, err
	}

	return f, nil
}

func (d *decoder) block(pos Pos, stmts []rawNode) (_ *Block, err error) {
	b := &Block{
		Base:  Base{Pos: pos},
		Scope: NewScope(d.scope),
	}

	d.scope = b.Scope
	defer func() { d.scope = b.Scope.Parent }()

	for i := range stmts {
		s, err := d.stmt(&stmts[i])
		if err != nil {
			return nil, err
		}

		b.Stmts = append(b.Stmts, s)
	}

	return b, nil
}

func (d *decoder) stmt(r *rawNode) (_ Stmt, err error) {
	base := Base{Pos: r.Pos}

	switch r.Kind {
	case "decl":
		if r.Sym == nil {
			return nil, errors.New("%v: declaration without symbol", r.Pos)
		}

		sym, err := r.Sym.decode()
		if err != nil {
			return nil, errors.Wrap(err, "%v", r.Pos)
		}

		x := &Decl{Base: base, Sym: sym}

		if r.Init != nil {
			x.Init, err = d.expr(r.Init)
			if err != nil {
				return nil, err
			}
		}

		if !d.scope.Declare(sym) {
			return nil, errors.New("%v: %q redeclared in this block", r.Pos, sym.Name)
		}

		return x, nil
	case "expr":
		x, err := d.need(r, r.X, "x")
		if err != nil {
			return nil, err
		}

		return &ExprStmt{Base: base, X: x}, nil
	case "return":
		x := &Return{Base: base}

		if len(r.Value) != 0 && string(r.Value) != "null" {
			var v rawNode

			err = json.Unmarshal(r.Value, &v)
			if err != nil {
				return nil, errors.Wrap(err, "%v: return value", r.Pos)
			}

			x.Value, err = d.expr(&v)
			if err != nil {
				return nil, err
			}
		}

		return x, nil
	case "if":
		return d.ifStmt(r)
	case "while":
		cond, err := d.need(r, r.Cond, "cond")
		if err != nil {
			return nil, err
		}

		body, err := d.block(r.Pos, r.Body)
		if err != nil {
			return nil, err
		}

		return &While{Base: base, Cond: cond, Body: body}, nil
	case "for":
		return d.forStmt(r)
	case "block":
		return d.block(r.Pos, r.Body)
	default:
		return nil, errors.New("%v: unknown statement kind %q", r.Pos, r.Kind)
	}
}

func (d *decoder) ifStmt(r *rawNode) (_ *If, err error) {
	x := &If{Base: Base{Pos: r.Pos}}

	x.Cond, err = d.need(r, r.Cond, "cond")
	if err != nil {
		return nil, err
	}

	x.Then, err = d.block(r.Pos, r.Then)
	if err != nil {
		return nil, err
	}

	switch {
	case r.ElseIf != nil && r.Else != nil:
		return nil, errors.New("%v: if has both elseif and else", r.Pos)
	case r.ElseIf != nil:
		x.ElseIf, err = d.ifStmt(r.ElseIf)
	case r.Else != nil:
		x.Else, err = d.block(r.Pos, *r.Else)
	}

	if err != nil {
		return nil, err
	}

	return x, nil
}

func (d *decoder) forStmt(r *rawNode) (_ *For, err error) {
	x := &For{Base: Base{Pos: r.Pos}}

	// init declarations are visible in cond, post and body only
	outer := d.scope
	d.scope = NewScope(outer)
	defer func() { d.scope = outer }()

	if r.Init != nil {
		x.Init, err = d.stmt(r.Init)
		if err != nil {
			return nil, err
		}
	}

	if r.Cond != nil {
		x.Cond, err = d.expr(r.Cond)
		if err != nil {
			return nil, err
		}
	}

	if r.Post != nil {
		x.Post, err = d.expr(r.Post)
		if err != nil {
			return nil, err
		}
	}

	x.Body, err = d.block(r.Pos, r.Body)
	if err != nil {
		return nil, err
	}

	return x, nil
}

func (d *decoder) expr(r *rawNode) (_ Expr, err error) {
	base := Base{Pos: r.Pos}

	switch r.Kind {
	case "const":
		x := &Const{Base: base}

		err = json.Unmarshal(r.Value, &x.Value)
		if err != nil {
			return nil, errors.Wrap(err, "%v: constant", r.Pos)
		}

		return x, nil
	case "ident":
		sym := d.scope.Lookup(r.Name)
		if sym == nil {
			return nil, errors.New("%v: undeclared identifier %q", r.Pos, r.Name)
		}

		return &Ident{Base: base, Name: r.Name, Sym: sym}, nil
	case "binary":
		l, err := d.need(r, r.Left, "left")
		if err != nil {
			return nil, err
		}

		rr, err := d.need(r, r.Right, "right")
		if err != nil {
			return nil, err
		}

		return &Binary{Base: base, Op: r.Op, Left: l, Right: rr}, nil
	case "group":
		x, err := d.need(r, r.X, "x")
		if err != nil {
			return nil, err
		}

		return &Group{Base: base, X: x}, nil
	case "addr":
		x, err := d.need(r, r.X, "x")
		if err != nil {
			return nil, err
		}

		return &AddressOf{Base: base, X: x}, nil
	case "deref":
		x, err := d.need(r, r.X, "x")
		if err != nil {
			return nil, err
		}

		return &Deref{Base: base, X: x}, nil
	case "assign":
		target, err := d.need(r, r.Target, "target")
		if err != nil {
			return nil, err
		}

		var v rawNode

		err = json.Unmarshal(r.Value, &v)
		if err != nil {
			return nil, errors.Wrap(err, "%v: assigned value", r.Pos)
		}

		val, err := d.expr(&v)
		if err != nil {
			return nil, err
		}

		return &Assign{Base: base, Target: target, Value: val}, nil
	case "call":
		x := &Call{Base: base, Name: r.Name}

		for i := range r.Args {
			a, err := d.expr(&r.Args[i])
			if err != nil {
				return nil, err
			}

			x.Args = append(x.Args, a)
		}

		return x, nil
	default:
		return nil, errors.New("%v: unknown expression kind %q", r.Pos, r.Kind)
	}
}

func (d *decoder) need(r, sub *rawNode, field string) (Expr, error) {
	if sub == nil {
		return nil, errors.New("%v: %v: missing %v", r.Pos, r.Kind, field)
	}

	return d.expr(sub)
}

func (t rawType) decode() (tp.Type, error) {
	k, err := tp.ParseKind(t.Kind)
	if err != nil {
		return tp.Type{}, err
	}

	signed := true
	if t.Signed != nil {
		signed = *t.Signed
	}

	return tp.Type{Kind: k, Signed: signed, Pointer: t.Pointer}, nil
}

func (s rawSym) decode() (*Symbol, error) {
	if s.Name == "" {
		return nil, errors.New("%v: symbol without name", s.Pos)
	}

	typ, err := s.Type.decode()
	if err != nil {
		return nil, errors.Wrap(err, "symbol %v", s.Name)
	}

	return &Symbol{Name: s.Name, Type: typ, Pos: s.Pos}, nil
}
