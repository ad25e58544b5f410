package back

import (
	"context"
	"fmt"
	"math"

	"github.com/nikandfor/hacked/hfmt"
	"github.com/samber/lo"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/slowlang/subc/compiler/diag"
	"github.com/slowlang/subc/compiler/ir"
	"github.com/slowlang/subc/compiler/tp"
)

type (
	funContext struct {
		*ir.Func
		*Alloc

		cfg   Config
		names *ir.Names

		exit string

		b []byte
	}
)

var setcc = map[ir.Op]string{
	ir.Eq: "e",
	ir.Ne: "ne",
	ir.Lt: "l",
	ir.Le: "le",
	ir.Gt: "g",
	ir.Ge: "ge",
}

var setccUnsigned = map[ir.Op]string{
	ir.Eq: "e",
	ir.Ne: "ne",
	ir.Lt: "b",
	ir.Le: "be",
	ir.Gt: "a",
	ir.Ge: "ae",
}

// cc is the condition code suffix for op.
func cc(op ir.Op, unsigned bool) string {
	if unsigned {
		return setccUnsigned[op]
	}

	return setcc[op]
}

func (c *Compiler) compileFunc(ctx context.Context, b []byte, f *ir.Func) (_ []byte, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "back: func", "name", f.Sym.Name)
	defer tr.Finish("err", &err)

	a, err := Allocate(ctx, f, c.Config)
	if err != nil {
		return nil, err
	}

	s := &funContext{
		Func:  f,
		Alloc: a,
		cfg:   c.Config,
		names: c.Names,
		exit:  c.Names.Label(),
	}

	s.b = hfmt.Appendf(b, "%s:\n", f.Sym.Name)

	err = s.prologue()
	if err != nil {
		return nil, errors.Wrap(err, "prologue")
	}

	err = s.block(f.Body)
	if err != nil {
		return nil, err
	}

	s.epilogue()

	return s.b, nil
}

func (s *funContext) ins(f string, args ...any) {
	s.b = append(s.b, '\t')
	s.b = hfmt.Appendf(s.b, f, args...)
	s.b = append(s.b, '\n')
}

func (s *funContext) label(l string) {
	s.b = hfmt.Appendf(s.b, "%s:\n", l)
}

func (s *funContext) comment(f string, args ...any) {
	s.ins("; "+f, args...)
}

func (s *funContext) prologue() error {
	s.comment("prologue")
	s.ins("push rbp")
	s.ins("mov rbp, rsp")

	if s.Frame != 0 {
		s.ins("sub rsp, %d", s.Frame)
	}

	for _, sv := range s.Saves {
		s.ins("mov qword %s, %v", addr(sv.Offset), sv.Reg)
	}

	n := min(len(s.Params), len(ArgRegs))

	for _, p := range lo.Zip2(s.Params[:n], ArgRegs[:n]) {
		v, r := p.Unpack()

		m, w, err := s.mem(v)
		if err != nil {
			return err
		}

		if w == 8 {
			s.ins("mov qword %s, %v", m, r)
			continue
		}

		// narrow through a full width copy
		s.ins("mov rax, %v", r)
		s.ins("mov %s %s, %s", size(w), m, RAX.Name(w))
	}

	return nil
}

func (s *funContext) epilogue() {
	s.label(s.exit)
	s.comment("epilogue")

	for _, sv := range s.Saves {
		s.ins("mov %v, qword %s", sv.Reg, addr(sv.Offset))
	}

	s.ins("mov rsp, rbp")
	s.ins("pop rbp")
	s.ins("ret")
}

func (s *funContext) block(code []ir.Stmt) (err error) {
	for _, x := range code {
		err = s.stmt(x)
		if err != nil {
			return err
		}
	}

	return nil
}

func (s *funContext) stmt(x ir.Stmt) (err error) {
	if st, ok := x.(fmt.Stringer); ok && s.cfg.Comments {
		if _, noop := x.(*ir.Noop); !noop {
			s.comment("%v", st)
		}
	}

	switch x := x.(type) {
	case *ir.Move:
		return s.move(x)
	case *ir.Return:
		return s.ret(x)
	case *ir.Noop:
		return nil
	case *ir.If:
		return s.ifStmt(x)
	case *ir.While:
		return s.while(x)
	default:
		return diag.Emission(nil, "", "unsupported statement %T", x)
	}
}

func (s *funContext) move(x *ir.Move) (err error) {
	switch src := x.Src.(type) {
	case ir.Const:
		return s.moveConst(x, src)
	case ir.Var, ir.Temp:
		if v, ok := x.Dest.(ir.Var); ok {
			r, err := s.value(src.(ir.Symbol), RAX)
			if err != nil {
				return err
			}

			return s.store(v, r)
		}

		d, err := s.dest(x)
		if err != nil {
			return err
		}

		return s.load(src.(ir.Symbol), d)
	case ir.Binop:
		return s.binop(x, src)
	case ir.Address:
		d, err := s.dest(x)
		if err != nil {
			return err
		}

		m, _, err := s.mem(src.Var)
		if err != nil {
			return err
		}

		s.ins("lea %v, %s", d, m)

		return s.finish(x, d)
	case ir.Deref:
		d, err := s.dest(x)
		if err != nil {
			return err
		}

		m, _, err := s.mem(src.Var)
		if err != nil {
			return err
		}

		s.ins("mov rax, qword %s", m)
		s.extend(d, "[rax]", src.Var.Type.Elem())

		return s.finish(x, d)
	case ir.Call:
		return s.call(x, src)
	default:
		return diag.Emission(x, "", "unsupported expression %T", src)
	}
}

func (s *funContext) moveConst(x *ir.Move, c ir.Const) error {
	switch d := x.Dest.(type) {
	case ir.Temp:
		r, err := s.reg(d)
		if err != nil {
			return err
		}

		s.ins("mov %v, %d", r, int64(c))

		return nil
	case ir.Var:
		m, w, err := s.mem(d)
		if err != nil {
			return err
		}

		v := truncate(int64(c), w)

		if w == 8 && (v < math.MinInt32 || v > math.MaxInt32) {
			s.ins("mov rax, %d", v)
			s.ins("mov qword %s, rax", m)

			return nil
		}

		s.ins("mov %s %s, %d", size(w), m, v)

		return nil
	default:
		return diag.Emission(x, "", "bad destination %T", x.Dest)
	}
}

func (s *funContext) binop(x *ir.Move, b ir.Binop) error {
	d, err := s.dest(x)
	if err != nil {
		return err
	}

	err = s.load(b.L, d)
	if err != nil {
		return err
	}

	r, err := s.operand(b.R, RCX)
	if err != nil {
		return err
	}

	switch b.Op {
	case ir.Add:
		s.ins("add %v, %s", d, r)
	case ir.Sub:
		s.ins("sub %v, %s", d, r)
	case ir.Mul:
		s.ins("imul %v, %s", d, r)
	case ir.Div, ir.Mod:
		if d != RAX {
			s.ins("mov rax, %v", d)
		}

		s.ins("cqo")
		s.ins("idiv %s", r)

		res := RAX
		if b.Op == ir.Mod {
			res = RDX
		}

		if d != res {
			s.ins("mov %v, %v", d, res)
		}
	case ir.Eq, ir.Ne, ir.Lt, ir.Le, ir.Gt, ir.Ge:
		s.ins("cmp %v, %s", d, r)
		s.ins("set%s al", cc(b.Op, b.Unsigned))
		s.ins("movzx %v, al", d)
	default:
		return diag.Emission(x, string(b.Op), "unsupported operator")
	}

	return s.finish(x, d)
}

// call follows System V: the first six arguments go in registers, the rest
// are pushed right to left keeping rsp 16 byte aligned at the call.
func (s *funContext) call(x *ir.Move, c ir.Call) (err error) {
	saved := s.Preserve(x)

	for _, r := range saved {
		s.ins("push %v", r)
	}

	var stack []ir.Symbol
	if len(c.Args) > len(ArgRegs) {
		stack = c.Args[len(ArgRegs):]
	}

	pad := (len(saved)+len(stack))%2 == 1

	if pad {
		s.ins("sub rsp, 8")
	}

	for i := len(stack) - 1; i >= 0; i-- {
		r, err := s.value(stack[i], RAX)
		if err != nil {
			return err
		}

		s.ins("push %v", r)
	}

	n := min(len(c.Args), len(ArgRegs))

	for _, p := range lo.Zip2(c.Args[:n], ArgRegs[:n]) {
		a, r := p.Unpack()

		err = s.load(a, r)
		if err != nil {
			return err
		}
	}

	// variadic callees read the vector register count from al
	s.ins("xor eax, eax")
	s.ins("call %s", c.Name)

	if drop := 8*len(stack) + lo.Ternary(pad, 8, 0); drop != 0 {
		s.ins("add rsp, %d", drop)
	}

	for i := len(saved) - 1; i >= 0; i-- {
		s.ins("pop %v", saved[i])
	}

	switch d := x.Dest.(type) {
	case ir.Temp:
		r, err := s.reg(d)
		if err != nil {
			return err
		}

		s.ins("mov %v, rax", r)

		return nil
	case ir.Var:
		return s.store(d, RAX)
	default:
		return diag.Emission(x, "", "bad destination %T", x.Dest)
	}
}

func (s *funContext) ret(x *ir.Return) error {
	if x.Value != nil {
		err := s.load(x.Value, RAX)
		if err != nil {
			return err
		}

		t := s.Sym.Type
		if w := t.Size(); w < 8 {
			s.extend(RAX, RAX.Name(w), t)
		}
	}

	s.ins("jmp %s", s.exit)

	return nil
}

// dest is the register a result is computed in: the temp's own one or rax.
func (s *funContext) dest(x *ir.Move) (Reg, error) {
	switch d := x.Dest.(type) {
	case ir.Temp:
		return s.reg(d)
	case ir.Var:
		return RAX, nil
	default:
		return 0, diag.Emission(x, "", "bad destination %T", x.Dest)
	}
}

// finish stores the result computed in d when the destination is a Var.
func (s *funContext) finish(x *ir.Move, d Reg) error {
	v, ok := x.Dest.(ir.Var)
	if !ok {
		return nil
	}

	return s.store(v, d)
}

// load puts the value of sym into r extended to 64 bits.
func (s *funContext) load(sym ir.Symbol, r Reg) error {
	switch sym := sym.(type) {
	case ir.Temp:
		src, err := s.reg(sym)
		if err != nil {
			return err
		}

		if src != r {
			s.ins("mov %v, %v", r, src)
		}

		return nil
	case ir.Var:
		m, _, err := s.mem(sym)
		if err != nil {
			return err
		}

		s.extend(r, m, sym.Type)

		return nil
	default:
		return diag.Emission(nil, "", "bad operand %T", sym)
	}
}

// value returns the register holding sym, loading Vars into scratch.
func (s *funContext) value(sym ir.Symbol, scratch Reg) (Reg, error) {
	if t, ok := sym.(ir.Temp); ok {
		return s.reg(t)
	}

	return scratch, s.load(sym, scratch)
}

// operand renders sym as a 64 bit source operand.
// Narrow Vars are extended into scratch first.
func (s *funContext) operand(sym ir.Symbol, scratch Reg) (string, error) {
	if v, ok := sym.(ir.Var); ok && v.Type.Size() == 8 {
		m, _, err := s.mem(v)
		if err != nil {
			return "", err
		}

		return "qword " + m, nil
	}

	r, err := s.value(sym, scratch)
	if err != nil {
		return "", err
	}

	return r.String(), nil
}

func (s *funContext) store(v ir.Var, r Reg) error {
	m, w, err := s.mem(v)
	if err != nil {
		return err
	}

	s.ins("mov %s %s, %s", size(w), m, r.Name(w))

	return nil
}

// extend loads width t.Size() from src into 64 bit r per signedness.
// src is a memory operand or a register alias.
func (s *funContext) extend(r Reg, src string, t tp.Type) {
	w := t.Size()

	mem := src != "" && src[0] == '['
	sz := ""

	if mem {
		sz = size(w) + " "
	}

	switch {
	case w == 8:
		s.ins("mov %v, %s%s", r, sz, src)
	case w == 4 && t.Signed:
		s.ins("movsxd %v, %s%s", r, sz, src)
	case w == 4:
		s.ins("mov %s, %s%s", r.Name(4), sz, src)
	case t.Signed:
		s.ins("movsx %v, %s%s", r, sz, src)
	default:
		s.ins("movzx %v, %s%s", r, sz, src)
	}
}

func (s *funContext) reg(t ir.Temp) (Reg, error) {
	r, ok := s.Alloc.Reg(t)
	if !ok {
		return 0, diag.Emission(t, string(t), "no register for temp")
	}

	return r, nil
}

func (s *funContext) mem(v ir.Var) (string, int, error) {
	sl, ok := s.Alloc.Slot(v)
	if !ok {
		return "", 0, diag.Emission(v, v.Name, "no stack slot for variable")
	}

	return addr(sl.Offset), v.Type.Size(), nil
}

func addr(off int) string {
	switch {
	case off < 0:
		return fmt.Sprintf("[rbp - %d]", -off)
	case off > 0:
		return fmt.Sprintf("[rbp + %d]", off)
	default:
		return "[rbp]"
	}
}

// truncate reduces v to w bytes keeping it signed.
func truncate(v int64, w int) int64 {
	switch w {
	case 1:
		return int64(int8(v))
	case 2:
		return int64(int16(v))
	case 4:
		return int64(int32(v))
	default:
		return v
	}
}
