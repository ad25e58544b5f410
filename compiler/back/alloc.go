package back

import (
	"context"

	"github.com/samber/lo"
	"nikand.dev/go/heap"
	"tlog.app/go/tlog"
	"tlog.app/go/tlog/tlwire"

	"github.com/slowlang/subc/compiler/diag"
	"github.com/slowlang/subc/compiler/ir"
	"github.com/slowlang/subc/compiler/set"
)

type (
	// Interval is the sorted list of statement indexes touching a temp.
	Interval struct {
		Temp ir.Temp
		Uses []int
	}

	Slot struct {
		Offset int
		Width  int
	}

	Save struct {
		Reg    Reg
		Offset int
	}

	// Alloc is the storage assignment of one function.
	Alloc struct {
		Regs  map[ir.Temp]Reg
		Slots map[string]Slot
		Saves []Save
		Frame int

		Intervals []*Interval
		Groups    [][]ir.Temp

		index map[ir.Stmt]int
		byReg map[Reg][]*Interval
	}
)

// Allocate assigns registers to temps and stack slots to parameters and locals.
func Allocate(ctx context.Context, f *ir.Func, cfg Config) (a *Alloc, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "back: alloc", "func", f.Sym.Name)
	defer tr.Finish("err", &err)

	a = &Alloc{
		Regs:  map[ir.Temp]Reg{},
		Slots: map[string]Slot{},
		index: map[ir.Stmt]int{},
		byReg: map[Reg][]*Interval{},
	}

	a.Intervals = a.liveness(ctx, f)
	a.Groups = group(a.Intervals)

	if len(a.Groups) > len(cfg.Pool) {
		g := a.Groups[len(cfg.Pool)]

		return nil, &diag.AllocationError{
			Func:   f.Sym.Name,
			Temp:   string(g[0]),
			Groups: len(a.Groups),
			Pool:   len(cfg.Pool),
			Pos:    f.Sym.Pos,
		}
	}

	var used set.Bitmap

	for i, g := range a.Groups {
		r := cfg.Pool[i]
		used.Set(int(r))

		for _, t := range g {
			a.Regs[t] = r
		}
	}

	for _, iv := range a.Intervals {
		r := a.Regs[iv.Temp]
		a.byReg[r] = append(a.byReg[r], iv)
	}

	a.layout(f, cfg, used)

	if tr.If("dump_alloc") {
		tr.Printw("alloc", "regs", a.Regs, "slots", a.Slots, "saves", len(a.Saves), "frame", a.Frame, "used_regs", used, "used", used.Size())
	}

	return a, nil
}

// liveness records every index each temp is defined or used at.
// Indexes follow ir.Walk order, which is the emission order.
func (a *Alloc) liveness(ctx context.Context, f *ir.Func) []*Interval {
	tr := tlog.SpanFromContext(ctx)

	byTemp := map[ir.Temp]*Interval{}

	h := heap.Heap[*Interval]{Less: firstTouchLess}

	touch := func(s ir.Symbol, i int) {
		t, ok := s.(ir.Temp)
		if !ok {
			return
		}

		iv := byTemp[t]
		if iv == nil {
			iv = &Interval{Temp: t}
			byTemp[t] = iv
		}

		if n := len(iv.Uses); n == 0 || iv.Uses[n-1] != i {
			iv.Uses = append(iv.Uses, i)
		}
	}

	i := 0

	ir.Walk(f.Body, func(s ir.Stmt) {
		switch s := s.(type) {
		case *ir.Move:
			a.index[s] = i

			for _, u := range s.Src.Uses() {
				touch(u, i)
			}

			touch(s.Dest, i)
		case *ir.Test:
			a.index[s] = i

			touch(s.L, i)
			touch(s.R, i)
		case *ir.Return:
			if s.Value != nil {
				touch(s.Value, i)
			}
		}

		i++
	})

	for _, iv := range byTemp {
		h.Push(iv)
	}

	list := make([]*Interval, 0, h.Len())

	for h.Len() != 0 {
		iv := h.Pop()

		tr.V("liveness").Printw("interval", "interval", iv)

		list = append(list, iv)
	}

	return list
}

// group partitions intervals, sorted by first touch, into groups
// of pairwise disjoint intervals. A group is seeded with the earliest
// unassigned interval and absorbs every later one starting after its end.
func group(list []*Interval) (groups [][]ir.Temp) {
	var done set.Bitmap

	for i, seed := range list {
		if done.IsSet(i) {
			continue
		}

		done.Set(i)

		g := []ir.Temp{seed.Temp}
		last := seed.Last()

		for j := i + 1; j < len(list); j++ {
			if done.IsSet(j) || list[j].First() <= last {
				continue
			}

			done.Set(j)

			g = append(g, list[j].Temp)
			last = list[j].Last()
		}

		groups = append(groups, g)
	}

	return groups
}

// layout places the first six parameters and all locals at negative offsets,
// naturally aligned, followed by save slots of used callee-saved registers.
// Parameters passed on the stack stay above the return address.
func (a *Alloc) layout(f *ir.Func, cfg Config, used set.Bitmap) {
	off := 0

	place := func(v ir.Var) {
		w := v.Type.Size()
		off = alignUp(off+w, w)

		a.Slots[v.Name] = Slot{Offset: -off, Width: w}
	}

	for i, p := range f.Params {
		if i < len(ArgRegs) {
			place(p)
			continue
		}

		a.Slots[p.Name] = Slot{Offset: 16 + 8*(i-len(ArgRegs)), Width: p.Type.Size()}
	}

	for _, l := range f.Locals {
		place(l)
	}

	for _, r := range cfg.Pool {
		if !r.CalleeSaved() || !used.IsSet(int(r)) {
			continue
		}

		off = alignUp(off+8, 8)

		a.Saves = append(a.Saves, Save{Reg: r, Offset: -off})
	}

	a.Frame = alignUp(off, cfg.StackAlign)
}

// Preserve returns caller-saved registers holding temps live across s.
func (a *Alloc) Preserve(s ir.Stmt) []Reg {
	i, ok := a.index[s]
	if !ok {
		return nil
	}

	var regs set.Bitmap

	for r, ivs := range a.byReg {
		if r.CalleeSaved() {
			continue
		}

		for _, iv := range ivs {
			if iv.First() < i && i < iv.Last() {
				regs.Set(int(r))
			}
		}
	}

	return lo.Map(regs.Slice(), func(r, _ int) Reg { return Reg(r) })
}

func (a *Alloc) Reg(t ir.Temp) (Reg, bool) {
	r, ok := a.Regs[t]
	return r, ok
}

func (a *Alloc) Slot(v ir.Var) (Slot, bool) {
	s, ok := a.Slots[v.Name]
	return s, ok
}

func (iv *Interval) First() int { return iv.Uses[0] }
func (iv *Interval) Last() int  { return iv.Uses[len(iv.Uses)-1] }

// Overlaps reports whether both temps are live at some common index.
func (iv *Interval) Overlaps(x *Interval) bool {
	return iv.First() <= x.Last() && x.First() <= iv.Last()
}

func (iv *Interval) TlogAppend(b []byte) []byte {
	var e tlwire.Encoder

	b = e.AppendMap(b, 2)
	b = e.AppendKeyValue(b, "temp", string(iv.Temp))
	b = e.AppendKey(b, "uses")
	b = e.AppendArray(b, len(iv.Uses))

	for _, u := range iv.Uses {
		b = e.AppendInt(b, u)
	}

	return b
}

func firstTouchLess(d []*Interval, i, j int) bool {
	if d[i].First() != d[j].First() {
		return d[i].First() < d[j].First()
	}

	return d[i].Temp < d[j].Temp
}
