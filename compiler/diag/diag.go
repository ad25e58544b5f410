package diag

import (
	"fmt"
	"path/filepath"

	"tlog.app/go/loc"

	"github.com/slowlang/subc/compiler/ast"
)

type (
	// Positioned is implemented by every compile error.
	Positioned interface {
		error
		Position() ast.Pos
	}

	// LoweringError reports an AST shape the IR generator can't lower.
	LoweringError struct {
		Node  string
		Ident string
		Pos   ast.Pos
		Msg   string
	}

	// AllocationError reports register pool exhaustion. There is no spilling.
	AllocationError struct {
		Func   string
		Temp   string
		Groups int
		Pool   int
		Pos    ast.Pos
	}

	// EmissionError is an internal consistency failure in the emitter:
	// an unmatched node or a failed storage lookup.
	EmissionError struct {
		Node  string
		Ident string
		Pos   ast.Pos
		Msg   string

		PC loc.PC
	}

	UnsupportedOperatorError struct {
		Op   string
		Node string
		Pos  ast.Pos
	}
)

func Lowering(n ast.Node, ident, format string, args ...any) *LoweringError {
	return &LoweringError{
		Node:  ast.Describe(n),
		Ident: ident,
		Pos:   pos(n),
		Msg:   fmt.Sprintf(format, args...),
	}
}

// Emission captures the caller as the raise site.
func Emission(node fmt.Stringer, ident, format string, args ...any) *EmissionError {
	e := &EmissionError{
		Ident: ident,
		Msg:   fmt.Sprintf(format, args...),
		PC:    loc.Caller(1),
	}

	if node != nil {
		e.Node = node.String()
	}

	return e
}

func UnsupportedOperator(n ast.Node, op string) *UnsupportedOperatorError {
	return &UnsupportedOperatorError{
		Op:   op,
		Node: ast.Describe(n),
		Pos:  pos(n),
	}
}

func (e *LoweringError) Error() string {
	s := fmt.Sprintf("lowering: %v: %v", e.Node, e.Msg)

	if e.Ident != "" && e.Node != fmt.Sprintf("identifier %q", e.Ident) {
		s += fmt.Sprintf(" (%v)", e.Ident)
	}

	return s
}

func (e *AllocationError) Error() string {
	return fmt.Sprintf("allocation: function %v needs %d registers at %v, pool has %d", e.Func, e.Groups, e.Temp, e.Pool)
}

func (e *EmissionError) Error() string {
	s := "emission: " + e.Msg

	if e.Node != "" {
		s += ": " + e.Node
	}

	if e.Ident != "" {
		s += fmt.Sprintf(" (%v)", e.Ident)
	}

	if e.PC != 0 {
		_, file, line := e.PC.NameFileLine()
		s += fmt.Sprintf(" [internal: %v:%d]", filepath.Base(file), line)
	}

	return s
}

func (e *UnsupportedOperatorError) Error() string {
	return fmt.Sprintf("unsupported operator %q in %v", e.Op, e.Node)
}

func (e *LoweringError) Position() ast.Pos            { return e.Pos }
func (e *AllocationError) Position() ast.Pos          { return e.Pos }
func (e *EmissionError) Position() ast.Pos            { return e.Pos }
func (e *UnsupportedOperatorError) Position() ast.Pos { return e.Pos }

func pos(n ast.Node) ast.Pos {
	if n == nil {
		return ast.Pos{}
	}

	return n.Position()
}
