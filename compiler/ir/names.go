package ir

import "fmt"

type (
	// Names hands out temp and label names unique within one compilation unit.
	// It is never reset between functions.
	Names struct {
		temps  int
		labels int
	}
)

func (n *Names) Temp() Temp {
	t := Temp(fmt.Sprintf("t%d", n.temps))
	n.temps++

	return t
}

func (n *Names) Label() string {
	l := fmt.Sprintf(".L%d", n.labels)
	n.labels++

	return l
}
