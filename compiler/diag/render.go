package diag

import (
	"fmt"
	"io"

	"github.com/xyproto/env/v2"
	"golang.org/x/term"
	"tlog.app/go/errors"
)

const (
	red   = "\033[31m"
	bold  = "\033[1m"
	reset = "\033[0m"
)

// Render prints err as a single diagnostic line.
// The position comes from the innermost compile error in the chain.
func Render(w io.Writer, file string, err error, color bool) {
	if err == nil {
		return
	}

	var b []byte

	if color {
		b = append(b, bold...)
	}

	b = append(b, file...)

	var p Positioned
	if errors.As(err, &p) && p.Position().IsValid() {
		b = fmt.Appendf(b, ":%v", p.Position())
	}

	b = append(b, ": "...)

	if color {
		b = append(b, reset+red...)
	}

	b = append(b, "error:"...)

	if color {
		b = append(b, reset...)
	}

	b = fmt.Appendf(b, " %v\n", err)

	_, _ = w.Write(b)
}

// Colorful reports whether diagnostics written to w should use colors.
func Colorful(w io.Writer) bool {
	if env.Str("NO_COLOR") != "" {
		return false
	}

	f, ok := w.(interface{ Fd() uintptr })
	if !ok {
		return false
	}

	return term.IsTerminal(int(f.Fd()))
}
