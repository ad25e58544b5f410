package back

import (
	"fmt"

	"tlog.app/go/errors"
)

type (
	Reg int

	// Config holds backend knobs.
	Config struct {
		// Pool is the scratch registers temps are assigned to, in preference order.
		Pool []Reg

		StackAlign int

		// Comments annotates every IR statement with a comment.
		Comments bool

		// Start emits a _start entry which calls main and exits with its result.
		Start bool
	}
)

const (
	RAX Reg = iota
	RCX
	RDX
	RBX
	RSP
	RBP
	RSI
	RDI
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15
)

// ArgRegs are the System V integer argument registers.
var ArgRegs = []Reg{RDI, RSI, RDX, RCX, R8, R9}

var regNames = [...][4]string{
	RAX: {"al", "ax", "eax", "rax"},
	RCX: {"cl", "cx", "ecx", "rcx"},
	RDX: {"dl", "dx", "edx", "rdx"},
	RBX: {"bl", "bx", "ebx", "rbx"},
	RSP: {"spl", "sp", "esp", "rsp"},
	RBP: {"bpl", "bp", "ebp", "rbp"},
	RSI: {"sil", "si", "esi", "rsi"},
	RDI: {"dil", "di", "edi", "rdi"},
	R8:  {"r8b", "r8w", "r8d", "r8"},
	R9:  {"r9b", "r9w", "r9d", "r9"},
	R10: {"r10b", "r10w", "r10d", "r10"},
	R11: {"r11b", "r11w", "r11d", "r11"},
	R12: {"r12b", "r12w", "r12d", "r12"},
	R13: {"r13b", "r13w", "r13d", "r13"},
	R14: {"r14b", "r14w", "r14d", "r14"},
	R15: {"r15b", "r15w", "r15d", "r15"},
}

func DefaultConfig() Config {
	return Config{
		Pool:       []Reg{R10, R11, RBX, R12, R13, R14, R15},
		StackAlign: 16,
	}
}

// Check verifies the pool doesn't contain registers the emitter uses itself.
func (c Config) Check() error {
	if len(c.Pool) == 0 {
		return errors.New("empty register pool")
	}

	if c.StackAlign < 16 || c.StackAlign&(c.StackAlign-1) != 0 {
		return errors.New("bad stack alignment: %d", c.StackAlign)
	}

	seen := map[Reg]bool{}

	for _, r := range c.Pool {
		if r < RAX || r > R15 {
			return errors.New("bad register: %d", int(r))
		}

		switch r {
		case RAX, RCX, RDX, RSP, RBP, RSI, RDI, R8, R9:
			return errors.New("register %v is reserved", r)
		}

		if seen[r] {
			return errors.New("register %v is listed twice", r)
		}

		seen[r] = true
	}

	return nil
}

func ParseReg(s string) (Reg, error) {
	for r, n := range regNames {
		if n[3] == s {
			return Reg(r), nil
		}
	}

	return 0, errors.New("unknown register: %q", s)
}

// Name returns the register alias of the given width in bytes.
func (r Reg) Name(width int) string {
	switch width {
	case 1:
		return regNames[r][0]
	case 2:
		return regNames[r][1]
	case 4:
		return regNames[r][2]
	default:
		return regNames[r][3]
	}
}

func (r Reg) String() string {
	if r < 0 || int(r) >= len(regNames) {
		return fmt.Sprintf("Reg(%d)", int(r))
	}

	return regNames[r][3]
}

func (r Reg) CalleeSaved() bool {
	switch r {
	case RBX, RBP, R12, R13, R14, R15:
		return true
	}

	return false
}

// size is the NASM size directive for width bytes.
func size(w int) string {
	switch w {
	case 1:
		return "byte"
	case 2:
		return "word"
	case 4:
		return "dword"
	default:
		return "qword"
	}
}

func alignUp(x, a int) int {
	return (x + a - 1) &^ (a - 1)
}
