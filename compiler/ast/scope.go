package ast

type (
	// Scope owns the symbols declared in one block.
	// Parent is a non-owning link used for lookup fallback.
	Scope struct {
		Parent *Scope

		syms  []*Symbol
		index map[string]*Symbol
	}
)

func NewScope(parent *Scope) *Scope {
	return &Scope{
		Parent: parent,
		index:  make(map[string]*Symbol),
	}
}

// Declare adds sym to the scope. It returns false if the name is already
// declared in this very scope.
func (s *Scope) Declare(sym *Symbol) bool {
	if _, ok := s.index[sym.Name]; ok {
		return false
	}

	s.syms = append(s.syms, sym)
	s.index[sym.Name] = sym

	return true
}

// Symbols returns the symbols in declaration order.
func (s *Scope) Symbols() []*Symbol {
	if s == nil {
		return nil
	}

	return s.syms
}

func (s *Scope) LookupLocal(name string) *Symbol {
	if s == nil {
		return nil
	}

	return s.index[name]
}

func (s *Scope) Lookup(name string) *Symbol {
	for q := s; q != nil; q = q.Parent {
		if sym := q.index[name]; sym != nil {
			return sym
		}
	}

	return nil
}
