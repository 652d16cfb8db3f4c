package cgen

import (
	"strings"

	"github.com/wippyai/wasm2c/wasm"
)

// Expr is a typed C expression held on the simulated operand stack.
// Nodes are rendered to text only when a statement consumes them.
type Expr interface {
	// Type is the wasm value type the expression produces.
	Type() wasm.ValType
	// write renders the expression. Top-level rendering omits the
	// outermost parentheses of a binary or select node.
	write(b *strings.Builder, top bool)
}

// Lit is a literal constant.
type Lit struct {
	Text string
	T    wasm.ValType
}

// VarKind tells which namespace a Var lives in.
type VarKind int

const (
	VarLocal VarKind = iota
	VarGlobal
	VarTemp
)

// Var reads a local, global, or generator temporary.
type Var struct {
	Name string
	T    wasm.ValType
	Kind VarKind
}

// Unary applies a prefix operator, e.g. !(x) or -(x).
type Unary struct {
	X  Expr
	Op string
	T  wasm.ValType
}

// Binary is an infix operation. Comparisons and logical tests set Bool.
type Binary struct {
	L, R Expr
	Op   string
	T    wasm.ValType
	Bool bool
}

// Call invokes a C function. Effects describes what the call may touch.
type Call struct {
	Func    string
	Args    []Expr
	T       wasm.ValType
	Effects Effects
}

// Cast converts X to the C type To.
type Cast struct {
	X  Expr
	To string
	T  wasm.ValType
}

// Select is the conditional operator.
type Select struct {
	Cond, Then, Else Expr
	T                wasm.ValType
}

func (e *Lit) Type() wasm.ValType    { return e.T }
func (e *Var) Type() wasm.ValType    { return e.T }
func (e *Unary) Type() wasm.ValType  { return e.T }
func (e *Binary) Type() wasm.ValType { return e.T }
func (e *Call) Type() wasm.ValType   { return e.T }
func (e *Cast) Type() wasm.ValType   { return e.T }
func (e *Select) Type() wasm.ValType { return e.T }

func (e *Lit) write(b *strings.Builder, _ bool) { b.WriteString(e.Text) }
func (e *Var) write(b *strings.Builder, _ bool) { b.WriteString(e.Name) }

func (e *Unary) write(b *strings.Builder, _ bool) {
	b.WriteString(e.Op)
	b.WriteByte('(')
	e.X.write(b, true)
	b.WriteByte(')')
}

func (e *Binary) write(b *strings.Builder, top bool) {
	if !top {
		b.WriteByte('(')
	}
	e.L.write(b, false)
	b.WriteByte(' ')
	b.WriteString(e.Op)
	b.WriteByte(' ')
	e.R.write(b, false)
	if !top {
		b.WriteByte(')')
	}
}

func (e *Call) write(b *strings.Builder, _ bool) {
	b.WriteString(e.Func)
	b.WriteByte('(')
	for i, a := range e.Args {
		if i > 0 {
			b.WriteString(", ")
		}
		a.write(b, true)
	}
	b.WriteByte(')')
}

// Cast chains render as (f64)(i32)(x).
func (e *Cast) write(b *strings.Builder, _ bool) {
	b.WriteByte('(')
	b.WriteString(e.To)
	b.WriteByte(')')
	if inner, ok := e.X.(*Cast); ok {
		inner.write(b, false)
		return
	}
	b.WriteByte('(')
	e.X.write(b, true)
	b.WriteByte(')')
}

func (e *Select) write(b *strings.Builder, top bool) {
	if !top {
		b.WriteByte('(')
	}
	e.Cond.write(b, false)
	b.WriteString(" ? ")
	e.Then.write(b, false)
	b.WriteString(" : ")
	e.Else.write(b, false)
	if !top {
		b.WriteByte(')')
	}
}

// Render returns e as a standalone expression, as used on the right of an
// assignment, in a return, or as a call argument.
func Render(e Expr) string {
	var b strings.Builder
	e.write(&b, true)
	return b.String()
}

// RenderNested returns e as it appears inside a larger expression.
func RenderNested(e Expr) string {
	var b strings.Builder
	e.write(&b, false)
	return b.String()
}

// IsBool reports whether e already yields a C truth value.
func IsBool(e Expr) bool {
	switch x := e.(type) {
	case *Binary:
		return x.Bool
	case *Unary:
		return x.Op == "!"
	}
	return false
}

// Truthy normalizes e into a condition. Booleans pass through. An i32 cast
// of an f64 compares the float against zero directly, dropping the cast.
// Everything else is compared against 0.
func Truthy(e Expr) Expr {
	if IsBool(e) {
		return e
	}
	if c, ok := e.(*Cast); ok && c.To == "i32" && isFloat(c.X.Type()) {
		return &Binary{Op: "!=", L: c.X, R: floatZero, T: wasm.ValI32, Bool: true}
	}
	return &Binary{Op: "!=", L: e, R: zeroOf(e.Type()), T: wasm.ValI32, Bool: true}
}

// Falsy is the eqz counterpart of Truthy.
func Falsy(e Expr) Expr {
	if IsBool(e) {
		return &Unary{Op: "!", X: e, T: wasm.ValI32}
	}
	if c, ok := e.(*Cast); ok && c.To == "i32" && isFloat(c.X.Type()) {
		return &Binary{Op: "==", L: c.X, R: floatZero, T: wasm.ValI32, Bool: true}
	}
	return &Binary{Op: "==", L: e, R: zeroOf(e.Type()), T: wasm.ValI32, Bool: true}
}

var floatZero = &Lit{Text: "0e+0", T: wasm.ValF64}

func zeroOf(t wasm.ValType) Expr {
	if isFloat(t) {
		return &Lit{Text: "0e+0", T: t}
	}
	return &Lit{Text: "0", T: t}
}

func isFloat(t wasm.ValType) bool {
	return t == wasm.ValF32 || t == wasm.ValF64
}

// Effects summarizes what evaluating an expression or running a statement
// reads and writes. Locals and Globals hold C names.
type Effects struct {
	Locals  map[string]bool
	Globals map[string]bool
	// Memory is set when linear memory is read (expressions) or written
	// (statements).
	Memory bool
	// Calls is set for anything with side effects beyond the tracked
	// writes: user functions, I/O, clocks.
	Calls bool
}

// readsOf collects the reads performed while evaluating e.
func readsOf(e Expr) Effects {
	var fx Effects
	var walk func(Expr)
	walk = func(e Expr) {
		switch x := e.(type) {
		case *Var:
			switch x.Kind {
			case VarGlobal:
				fx.addGlobal(x.Name)
			default:
				fx.addLocal(x.Name)
			}
		case *Unary:
			walk(x.X)
		case *Binary:
			walk(x.L)
			walk(x.R)
		case *Cast:
			walk(x.X)
		case *Select:
			walk(x.Cond)
			walk(x.Then)
			walk(x.Else)
		case *Call:
			fx.Memory = fx.Memory || x.Effects.Memory
			fx.Calls = fx.Calls || x.Effects.Calls
			for g := range x.Effects.Globals {
				fx.addGlobal(g)
			}
			for _, a := range x.Args {
				walk(a)
			}
		}
	}
	walk(e)
	return fx
}

func (fx *Effects) addLocal(name string) {
	if fx.Locals == nil {
		fx.Locals = make(map[string]bool)
	}
	fx.Locals[name] = true
}

func (fx *Effects) addGlobal(name string) {
	if fx.Globals == nil {
		fx.Globals = make(map[string]bool)
	}
	fx.Globals[name] = true
}

// impure reports whether evaluating e has side effects.
func impure(e Expr) bool {
	return readsOf(e).Calls
}

// conflicts reports whether an expression with reads r must be evaluated
// before a statement with writes w.
func conflicts(r, w Effects) bool {
	for l := range w.Locals {
		if r.Locals[l] {
			return true
		}
	}
	for g := range w.Globals {
		if r.Globals[g] {
			return true
		}
	}
	if w.Calls && (len(r.Globals) > 0 || r.Memory || r.Calls) {
		return true
	}
	if w.Memory && (r.Memory || r.Calls) {
		return true
	}
	if r.Calls && len(w.Globals) > 0 {
		return true
	}
	return false
}
