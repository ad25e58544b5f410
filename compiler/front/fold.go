package front

import "github.com/slowlang/subc/compiler/ast"

// constValue evaluates e if it is built of integer constants only.
// Division by zero is left to run time.
func constValue(e ast.Expr) (int64, bool) {
	switch e := e.(type) {
	case *ast.Const:
		return e.Value, true
	case *ast.Group:
		return constValue(e.X)
	case *ast.Binary:
		l, ok := constValue(e.Left)
		if !ok {
			return 0, false
		}

		r, ok := constValue(e.Right)
		if !ok {
			return 0, false
		}

		return fold(e.Op, l, r)
	default:
		return 0, false
	}
}

func fold(op string, l, r int64) (int64, bool) {
	switch op {
	case "+":
		return l + r, true
	case "-":
		return l - r, true
	case "*":
		return l * r, true
	case "/", "%":
		if r == 0 {
			return 0, false
		}

		if op == "/" {
			return l / r, true
		}

		return l % r, true
	case "==":
		return b2i(l == r), true
	case "!=":
		return b2i(l != r), true
	case "<":
		return b2i(l < r), true
	case "<=":
		return b2i(l <= r), true
	case ">":
		return b2i(l > r), true
	case ">=":
		return b2i(l >= r), true
	default:
		return 0, false
	}
}

func b2i(x bool) int64 {
	if x {
		return 1
	}

	return 0
}
