package compiler

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tlog.app/go/errors"

	"github.com/slowlang/subc/compiler/ast"
	"github.com/slowlang/subc/compiler/back"
	"github.com/slowlang/subc/compiler/diag"
)

func jtype(kind string) string { return fmt.Sprintf(`{"kind":%q}`, kind) }
func jid(n string) string      { return fmt.Sprintf(`{"kind":"ident","name":%q}`, n) }
func jnum(v int64) string      { return fmt.Sprintf(`{"kind":"const","value":%d}`, v) }

func jbin(op, l, r string) string {
	return fmt.Sprintf(`{"kind":"binary","op":%q,"left":%s,"right":%s}`, op, l, r)
}

func jcall(name string, args ...string) string {
	return fmt.Sprintf(`{"kind":"call","name":%q,"args":[%s]}`, name, strings.Join(args, ","))
}

func jassign(n, v string) string {
	return fmt.Sprintf(`{"kind":"assign","target":%s,"value":%s}`, jid(n), v)
}

func jexpr(x string) string { return fmt.Sprintf(`{"kind":"expr","x":%s}`, x) }
func jret(v string) string  { return fmt.Sprintf(`{"kind":"return","value":%s}`, v) }

func jdecl(n, typ, init string) string {
	if init == "" {
		return fmt.Sprintf(`{"kind":"decl","sym":{"name":%q,"type":%s}}`, n, typ)
	}

	return fmt.Sprintf(`{"kind":"decl","sym":{"name":%q,"type":%s},"init":%s}`, n, typ, init)
}

func jparam(n, typ string) string { return fmt.Sprintf(`{"name":%q,"type":%s}`, n, typ) }

func jfunc(name, ret string, params []string, body ...string) string {
	return fmt.Sprintf(`{"name":%q,"type":%s,"params":[%s],"body":[%s]}`, name, ret, strings.Join(params, ","), strings.Join(body, ","))
}

func jprog(funcs ...string) []byte {
	return []byte(fmt.Sprintf(`{"file":"t.c","funcs":[%s]}`, strings.Join(funcs, ",")))
}

var (
	jint  = jtype("int")
	jlong = jtype("long")
	jchar = jtype("char")
)

func decode(t testing.TB, text []byte) *ast.Program {
	t.Helper()

	p, err := ast.Decode(text)
	require.NoError(t, err)

	return p
}

func startConfig() back.Config {
	cfg := back.DefaultConfig()
	cfg.Start = true

	return cfg
}

// run assembles and links the program and returns its exit status.
// Without nasm the listing is rewritten for GNU as.
func run(t *testing.T, text []byte) int {
	t.Helper()

	if _, err := exec.LookPath("ld"); err != nil {
		t.Skipf("ld not found")
	}

	asm, err := Compile(context.Background(), decode(t, text), startConfig())
	require.NoError(t, err)

	dir := t.TempDir()
	src := filepath.Join(dir, "prog.asm")
	obj := filepath.Join(dir, "prog.o")
	bin := filepath.Join(dir, "prog")

	assemble := []string{"nasm", "-felf64", "-o", obj, src}

	if _, err := exec.LookPath("nasm"); err != nil {
		if _, err := exec.LookPath("as"); err != nil {
			t.Skipf("neither nasm nor as found")
		}

		asm = gasSyntax(asm)
		assemble = []string{"as", "--64", "-o", obj, src}
	}

	err = os.WriteFile(src, asm, 0o644)
	require.NoError(t, err)

	for _, args := range [][]string{
		assemble,
		{"ld", "-o", bin, obj},
	} {
		out, err := exec.Command(args[0], args[1:]...).CombinedOutput()
		require.NoError(t, err, "%s\n%s", out, asm)
	}

	err = exec.Command(bin).Run()
	if err == nil {
		return 0
	}

	var ee *exec.ExitError
	require.True(t, errors.As(err, &ee), "run: %v", err)

	return ee.ExitCode()
}

var sizePtr = regexp.MustCompile(`\b(byte|word|dword|qword) \[`)

// gasSyntax rewrites a NASM listing into GNU as Intel syntax.
func gasSyntax(asm []byte) []byte {
	var b bytes.Buffer

	b.WriteString(".intel_syntax noprefix\n")

	for _, l := range strings.Split(string(asm), "\n") {
		trim := strings.TrimSpace(l)

		switch {
		case trim == "SECTION .text":
			l = ".text"
		case strings.HasPrefix(trim, "global "):
			l = ".globl " + strings.TrimPrefix(trim, "global ")
		case strings.HasPrefix(trim, "extern "):
			continue
		case strings.HasPrefix(trim, ";"):
			l = strings.Replace(l, ";", "#", 1)
		default:
			l = sizePtr.ReplaceAllString(l, "$1 ptr [")
		}

		b.WriteString(l)
		b.WriteByte('\n')
	}

	return b.Bytes()
}

func TestGasSyntax(t *testing.T) {
	got := gasSyntax([]byte(`SECTION .text
global main
extern puts

main:
	; prologue
	push rbp
	mov qword [rbp - 8], rdi
	movsx rcx, byte [rbp + 24]
	idiv qword [rbp - 16]
	lea r10, [rbp - 2]
	jbe .L2
`))

	assert.Equal(t, `.intel_syntax noprefix
.text
.globl main

main:
	# prologue
	push rbp
	mov qword ptr [rbp - 8], rdi
	movsx rcx, byte ptr [rbp + 24]
	idiv qword ptr [rbp - 16]
	lea r10, [rbp - 2]
	jbe .L2

`, string(got))
}

func TestRunArithmetic(t *testing.T) {
	p := jprog(
		jfunc("main", jint, nil,
			jret(jbin("+", jnum(2), jbin("*", jnum(3), jnum(4))))),
	)

	assert.Equal(t, 14, run(t, p))

	p = jprog(
		jfunc("main", jint, nil,
			jdecl("a", jint, jnum(47)),
			jdecl("b", jint, jnum(5)),
			jret(jbin("+", jbin("/", jid("a"), jid("b")), jbin("*", jbin("%", jid("a"), jid("b")), jnum(10))))),
	)

	assert.Equal(t, 9+20, run(t, p))
}

func TestRunShortCircuit(t *testing.T) {
	pos := func(n string) string { return jbin(">", jid(n), jnum(0)) }
	set := func(v int64) string { return `[` + jexpr(jassign("x", jnum(v))) + `]` }

	pick := jfunc("pick", jint, []string{jparam("a", jint), jparam("b", jint)},
		jdecl("x", jint, ""),
		fmt.Sprintf(`{"kind":"if","cond":%s,"then":%s,"elseif":{"kind":"if","cond":%s,"then":%s,"else":%s}}`,
			jbin("&&", pos("a"), pos("b")), set(1),
			jbin("||", pos("a"), pos("b")), set(2), set(3)),
		jret(jid("x")),
	)

	main := jfunc("main", jint, nil,
		jret(jbin("+",
			jbin("*", jcall("pick", jnum(1), jnum(1)), jnum(100)),
			jbin("+",
				jbin("*", jcall("pick", jnum(1), jnum(-1)), jnum(10)),
				jcall("pick", jnum(-1), jnum(-1))))),
	)

	assert.Equal(t, 123, run(t, jprog(pick, main)))

	// the right operand must not run when the left one decides
	bump := jfunc("bump", jint, []string{jparam("p", `{"kind":"int","pointer":true}`)},
		jret(jnum(1)))

	main = jfunc("main", jint, nil,
		jdecl("n", jint, jnum(0)),
		fmt.Sprintf(`{"kind":"if","cond":%s,"then":%s}`,
			jbin("||", jbin("==", jnum(1), jnum(1)), jassign("n", jnum(50))),
			`[`+jexpr(jassign("n", jbin("+", jid("n"), jnum(1))))+`]`),
		fmt.Sprintf(`{"kind":"if","cond":%s,"then":%s}`,
			jbin("&&", jbin("==", jid("n"), jnum(7)), jassign("n", jnum(60))),
			`[]`),
		jret(jbin("+", jid("n"), jcall("bump", `{"kind":"addr","x":`+jid("n")+`}`))),
	)

	assert.Equal(t, 2, run(t, jprog(bump, main)))
}

func TestRunLoops(t *testing.T) {
	main := jfunc("main", jint, nil,
		jdecl("s", jint, jnum(0)),
		fmt.Sprintf(`{"kind":"for","init":%s,"cond":%s,"post":%s,"body":[%s]}`,
			jdecl("i", jint, jnum(0)),
			jbin("<", jid("i"), jnum(10)),
			jassign("i", jbin("+", jid("i"), jnum(1))),
			jexpr(jassign("s", jbin("+", jid("s"), jid("i"))))),
		jdecl("k", jint, jnum(3)),
		fmt.Sprintf(`{"kind":"while","cond":%s,"body":[%s,%s]}`,
			jid("k"),
			jexpr(jassign("k", jbin("-", jid("k"), jnum(1)))),
			jexpr(jassign("s", jbin("+", jid("s"), jnum(100))))),
		jret(jid("s")),
	)

	assert.Equal(t, (45+300)%256, run(t, jprog(main)))
}

func TestRunCalls(t *testing.T) {
	var params []string
	for i, typ := range []string{jint, jchar, jint, jchar, jint, jchar, jint, jchar} {
		params = append(params, jparam(string(rune('a'+i)), typ))
	}

	sum := jid("a")
	for _, n := range []string{"b", "c", "d", "e", "f"} {
		sum = jbin("+", sum, jid(n))
	}

	mix := jfunc("mix", jint, params, jret(jbin("+", sum, jbin("*", jid("g"), jid("h")))))

	fib := jfunc("fib", jlong, []string{jparam("n", jlong)},
		fmt.Sprintf(`{"kind":"if","cond":%s,"then":[%s]}`, jbin("<", jid("n"), jnum(2)), jret(jid("n"))),
		jret(jbin("+",
			jcall("fib", jbin("-", jid("n"), jnum(1))),
			jcall("fib", jbin("-", jid("n"), jnum(2))))),
	)

	main := jfunc("main", jint, nil,
		jdecl("v", jint, jnum(5)),
		jdecl("w", jchar, jnum(3)),
		jret(jbin("+",
			jcall("mix", jid("v"), jid("w"), jid("v"), jid("w"), jid("v"), jid("w"), jid("v"), jid("w")),
			jcall("fib", jnum(10)))),
	)

	assert.Equal(t, 39+55, run(t, jprog(mix, fib, main)))
}

func TestRunWidths(t *testing.T) {
	main := jfunc("main", jint, nil,
		jdecl("c", jchar, jnum(300)),
		jdecl("u", `{"kind":"char","signed":false}`, jnum(-1)),
		jdecl("p", `{"kind":"char","pointer":true,"signed":false}`, `{"kind":"addr","x":`+jid("u")+`}`),
		jret(jbin("-", `{"kind":"deref","x":`+jid("p")+`}`, jid("c"))),
	)

	// 300 truncates to 44, -1 becomes 255
	assert.Equal(t, 255-44, run(t, jprog(main)))
}

func TestRunUnsigned(t *testing.T) {
	add := func(v int64) string { return `[` + jexpr(jassign("r", jbin("+", jid("r"), jnum(v)))) + `]` }
	when := func(cond, then string) string {
		return fmt.Sprintf(`{"kind":"if","cond":%s,"then":%s}`, cond, then)
	}

	main := jfunc("main", jint, nil,
		jdecl("r", jint, jnum(0)),
		jdecl("a", `{"kind":"long","signed":false}`, jnum(-1)),
		jdecl("u", `{"kind":"int","signed":false}`, jnum(-1)),
		jdecl("i", jint, jnum(1)),
		jdecl("n", jint, jnum(-1)),
		when(jbin(">", jid("a"), jnum(0)), add(1)),
		when(jbin(">", jid("u"), jid("i")), add(2)),
		when(jbin("<", jid("n"), jnum(0)), add(4)),
		when(jbin("<", jid("a"), jnum(0)), add(8)),
		jret(jid("r")),
	)

	assert.Equal(t, 7, run(t, jprog(main)))
}

func TestCompileListing(t *testing.T) {
	p := decode(t, jprog(
		`{"name":"puts","type":{"kind":"int"},"params":[{"name":"s","type":{"kind":"char","pointer":true}}]}`,
		jfunc("main", jint, nil, jret(jcall("puts", jnum(0)))),
	))

	asm, err := Compile(context.Background(), p, back.DefaultConfig())
	require.NoError(t, err)

	assert.True(t, bytes.HasPrefix(asm, []byte("SECTION .text\nglobal main\nextern puts\n\nmain:\n")), "%s", asm)
	assert.NotContains(t, string(asm), "_start")

	x, err := IR(context.Background(), p)
	require.NoError(t, err)

	assert.Equal(t, `extern puts

func main() int {
	t0 = 0
	t1 = puts(t0)
	return t1
	noop
}
`, string(x))
}

func TestCompileFile(t *testing.T) {
	name := filepath.Join(t.TempDir(), "prog.json")

	err := os.WriteFile(name, []byte(`{"funcs":[`+jfunc("main", jint, nil, jret(jnum(1)))+`]}`), 0o644)
	require.NoError(t, err)

	p, err := ReadFile(context.Background(), name)
	require.NoError(t, err)
	assert.Equal(t, name, p.File)

	asm, err := CompileFile(context.Background(), name, back.DefaultConfig())
	require.NoError(t, err)
	assert.Contains(t, string(asm), "\tmov r10, 1\n")

	_, err = CompileFile(context.Background(), filepath.Join(t.TempDir(), "missing.json"), back.DefaultConfig())
	assert.Error(t, err)
}

func TestCompileErrors(t *testing.T) {
	p := decode(t, jprog(
		jfunc("main", jint, []string{jparam("a", jint)},
			jret(jbin("&&", jid("a"), jid("a")))),
	))

	asm, err := Compile(context.Background(), p, back.DefaultConfig())
	assert.Nil(t, asm)

	var uo *diag.UnsupportedOperatorError
	require.True(t, errors.As(err, &uo), "%v", err)
	assert.Equal(t, "&&", uo.Op)

	p = decode(t, jprog(
		jfunc("main", jint, []string{jparam("f", jtype("double"))}, jret(jnum(0))),
	))

	_, err = Compile(context.Background(), p, back.DefaultConfig())

	var le *diag.LoweringError
	require.True(t, errors.As(err, &le), "%v", err)

	var b bytes.Buffer
	diag.Render(&b, p.File, err, false)

	assert.True(t, strings.HasPrefix(b.String(), "t.c:"), "%s", b.String())
	assert.Contains(t, b.String(), "error: ")

	cfg := back.DefaultConfig()
	cfg.Pool = nil

	p = decode(t, jprog(jfunc("main", jint, nil, jret(jnum(0)))))

	_, err = Compile(context.Background(), p, cfg)
	assert.Error(t, err)

	_, err = ast.Decode(jprog(jfunc("main", jint, nil, jret(jid("nope")))))
	assert.ErrorContains(t, err, `undeclared identifier "nope"`)
}
