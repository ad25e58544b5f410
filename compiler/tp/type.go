package tp

import (
	"fmt"

	"tlog.app/go/errors"
)

type (
	Kind int

	// Type is a primitive C type as seen by the backend.
	// Pointer forces 8 byte width regardless of Kind.
	Type struct {
		Kind    Kind
		Signed  bool
		Pointer bool
	}
)

const (
	Char Kind = iota
	Short
	Int
	Long
	Float
	Double
)

var kindNames = []string{
	Char:   "char",
	Short:  "short",
	Int:    "int",
	Long:   "long",
	Float:  "float",
	Double: "double",
}

func ParseKind(s string) (Kind, error) {
	for k, n := range kindNames {
		if n == s {
			return Kind(k), nil
		}
	}

	return 0, errors.New("unknown type: %q", s)
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}

	return kindNames[k]
}

func (k Kind) Size() int {
	switch k {
	case Char:
		return 1
	case Short:
		return 2
	case Int, Float:
		return 4
	case Long, Double:
		return 8
	default:
		panic(k)
	}
}

func (k Kind) IsFloat() bool {
	return k == Float || k == Double
}

func (x Type) Size() int {
	if x.Pointer {
		return 8
	}

	return x.Kind.Size()
}

// Elem is the type a pointer points to.
func (x Type) Elem() Type {
	return Type{Kind: x.Kind, Signed: x.Signed}
}

func (x Type) String() string {
	s := x.Kind.String()

	if !x.Signed && !x.Kind.IsFloat() {
		s = "unsigned " + s
	}

	if x.Pointer {
		s += "*"
	}

	return s
}
