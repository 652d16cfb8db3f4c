package cgen

import (
	"math"
	"strconv"
	"strings"

	"github.com/wippyai/wasm2c/wasm"
)

// handler lowers one instruction. Handlers are stateless. All mutable
// state lives in the emitter.
type handler interface {
	Handle(e *emitter, in wasm.Instruction)
}

// handlerFunc adapts an ordinary function to handler.
type handlerFunc func(e *emitter, in wasm.Instruction)

func (f handlerFunc) Handle(e *emitter, in wasm.Instruction) { f(e, in) }

// opRegistry maps opcodes to handlers with O(1) lookup.
type opRegistry struct {
	handlers [256]handler
	misc     map[uint32]handler
}

func (r *opRegistry) register(op byte, h handler) {
	r.handlers[op] = h
}

func (r *opRegistry) registerFunc(op byte, fn func(*emitter, wasm.Instruction)) {
	r.register(op, handlerFunc(fn))
}

// Get returns the handler for op, or nil.
func (r *opRegistry) Get(op byte) handler {
	return r.handlers[op]
}

var registry *opRegistry

func init() {
	registry = newRegistry()
}

func newRegistry() *opRegistry {
	r := &opRegistry{misc: make(map[uint32]handler)}

	registerControl(r)
	registerVariables(r)
	registerNumeric(r)
	registerMemory(r)

	r.registerFunc(wasm.OpPrefixMisc, func(e *emitter, in wasm.Instruction) {
		sub := in.Imm.(wasm.MiscImm).SubOpcode
		if h := r.misc[sub]; h != nil {
			h.Handle(e, in)
			return
		}
		e.unsupported(in)
	})
	return r
}

// binaryOp is an infix operation on two operands of type T.
//
// Unsigned operations cast both operands to Unsigned and the arithmetic
// result back to T. Wrapping add, sub and mul go through the unsigned type
// since signed overflow is undefined in C. Shift counts are masked to the
// operand width.
type binaryOp struct {
	Op       string
	Unsigned string
	T        wasm.ValType
	Compare  bool
	Shift    bool
}

func (h binaryOp) Handle(e *emitter, _ wasm.Instruction) {
	r := e.pop()
	l := e.pop()
	if h.Shift {
		r = maskShift(r, h.T)
	}
	if h.Unsigned != "" {
		l = toUnsigned(l, h.Unsigned, h.T)
		r = toUnsigned(r, h.Unsigned, h.T)
	}
	if h.Compare {
		e.push(&Binary{L: l, R: r, Op: h.Op, T: wasm.ValI32, Bool: true})
		return
	}
	var x Expr = &Binary{L: l, R: r, Op: h.Op, T: h.T}
	if h.Unsigned != "" {
		x = &Cast{X: x, To: cType(h.T), T: h.T}
	}
	e.push(x)
}

// toUnsigned casts x to the unsigned type u. A result of unsigned arithmetic
// that was only cast back to t is used as is.
func toUnsigned(x Expr, u string, t wasm.ValType) Expr {
	if c, ok := x.(*Cast); ok && c.To == cType(t) && unsignedArith(c.X, u) {
		return c.X
	}
	return &Cast{X: x, To: u, T: t}
}

// unsignedArith reports whether x is arithmetic whose C type is u, that is
// a non-boolean binary node whose left operand has type u.
func unsignedArith(x Expr, u string) bool {
	b, ok := x.(*Binary)
	if !ok || b.Bool {
		return false
	}
	if c, ok := b.L.(*Cast); ok {
		return c.To == u
	}
	return unsignedArith(b.L, u)
}

// maskShift reduces a shift count modulo the bit width of t.
func maskShift(count Expr, t wasm.ValType) Expr {
	bits := int64(31)
	if t == wasm.ValI64 {
		bits = 63
	}
	if lit, ok := count.(*Lit); ok {
		if v, ok := litInt(lit); ok {
			return intLit(v&bits, t)
		}
	}
	return &Binary{L: count, R: intLit(bits, t), Op: "&", T: t}
}

// mathCall is a pure libm function of one or two operands.
type mathCall struct {
	F64, F32 string
	T        wasm.ValType
	Args     int
}

func (h mathCall) Handle(e *emitter, _ wasm.Instruction) {
	e.s.includes.add("math.h", "")
	name := h.F64
	if h.T == wasm.ValF32 {
		name = h.F32
	}
	e.push(&Call{Func: name, Args: e.popN(h.Args), T: h.T})
}

// minMax keeps both operands in temporaries so each is evaluated once.
type minMax struct {
	T   wasm.ValType
	Max bool
}

func (h minMax) Handle(e *emitter, _ wasm.Instruction) {
	b := e.pop()
	a := e.pop()
	id := e.s.nextTmp()
	ta := &Var{Name: "_tmp" + strconv.Itoa(id) + "a", T: h.T, Kind: VarTemp}
	tb := &Var{Name: "_tmp" + strconv.Itoa(id) + "b", T: h.T, Kind: VarTemp}
	e.declare(cType(h.T) + " " + ta.Name)
	e.declare(cType(h.T) + " " + tb.Name)
	e.w.line("%s = %s;", ta.Name, Render(a))
	e.w.line("%s = %s;", tb.Name, Render(b))
	cond := &Binary{L: ta, R: tb, Op: ">", T: wasm.ValI32, Bool: true}
	if h.Max {
		e.push(&Select{Cond: cond, Then: ta, Else: tb, T: h.T})
		return
	}
	e.push(&Select{Cond: cond, Then: tb, Else: ta, T: h.T})
}

// castStep is one link of a conversion chain.
type castStep struct {
	To string
	T  wasm.ValType
}

// convert applies casts innermost first.
type convert []castStep

func (h convert) Handle(e *emitter, _ wasm.Instruction) {
	x := e.pop()
	for _, c := range h {
		x = &Cast{X: x, To: c.To, T: c.T}
	}
	e.push(x)
}

func registerNumeric(r *opRegistry) {
	i32, i64, f32, f64 := wasm.ValI32, wasm.ValI64, wasm.ValF32, wasm.ValF64

	intOps := []struct {
		t   wasm.ValType
		ops map[byte]binaryOp
	}{
		{i32, map[byte]binaryOp{
			wasm.OpI32Add: {Op: "+", Unsigned: "u32"}, wasm.OpI32Sub: {Op: "-", Unsigned: "u32"},
			wasm.OpI32Mul:  {Op: "*", Unsigned: "u32"},
			wasm.OpI32DivS: {Op: "/"}, wasm.OpI32DivU: {Op: "/", Unsigned: "u32"},
			wasm.OpI32RemS: {Op: "%"}, wasm.OpI32RemU: {Op: "%", Unsigned: "u32"},
			wasm.OpI32And: {Op: "&"}, wasm.OpI32Or: {Op: "|"}, wasm.OpI32Xor: {Op: "^"},
			wasm.OpI32Shl:  {Op: "<<", Unsigned: "u32", Shift: true},
			wasm.OpI32ShrS: {Op: ">>", Shift: true},
			wasm.OpI32ShrU: {Op: ">>", Unsigned: "u32", Shift: true},
			wasm.OpI32Eq:   {Op: "==", Compare: true}, wasm.OpI32Ne: {Op: "!=", Compare: true},
			wasm.OpI32LtS: {Op: "<", Compare: true}, wasm.OpI32LtU: {Op: "<", Compare: true, Unsigned: "u32"},
			wasm.OpI32GtS: {Op: ">", Compare: true}, wasm.OpI32GtU: {Op: ">", Compare: true, Unsigned: "u32"},
			wasm.OpI32LeS: {Op: "<=", Compare: true}, wasm.OpI32LeU: {Op: "<=", Compare: true, Unsigned: "u32"},
			wasm.OpI32GeS: {Op: ">=", Compare: true}, wasm.OpI32GeU: {Op: ">=", Compare: true, Unsigned: "u32"},
		}},
		{i64, map[byte]binaryOp{
			wasm.OpI64Add: {Op: "+", Unsigned: "u64"}, wasm.OpI64Sub: {Op: "-", Unsigned: "u64"},
			wasm.OpI64Mul:  {Op: "*", Unsigned: "u64"},
			wasm.OpI64DivS: {Op: "/"}, wasm.OpI64DivU: {Op: "/", Unsigned: "u64"},
			wasm.OpI64RemS: {Op: "%"}, wasm.OpI64RemU: {Op: "%", Unsigned: "u64"},
			wasm.OpI64And: {Op: "&"}, wasm.OpI64Or: {Op: "|"}, wasm.OpI64Xor: {Op: "^"},
			wasm.OpI64Shl:  {Op: "<<", Unsigned: "u64", Shift: true},
			wasm.OpI64ShrS: {Op: ">>", Shift: true},
			wasm.OpI64ShrU: {Op: ">>", Unsigned: "u64", Shift: true},
			wasm.OpI64Eq:   {Op: "==", Compare: true}, wasm.OpI64Ne: {Op: "!=", Compare: true},
			wasm.OpI64LtS: {Op: "<", Compare: true}, wasm.OpI64LtU: {Op: "<", Compare: true, Unsigned: "u64"},
			wasm.OpI64GtS: {Op: ">", Compare: true}, wasm.OpI64GtU: {Op: ">", Compare: true, Unsigned: "u64"},
			wasm.OpI64LeS: {Op: "<=", Compare: true}, wasm.OpI64LeU: {Op: "<=", Compare: true, Unsigned: "u64"},
			wasm.OpI64GeS: {Op: ">=", Compare: true}, wasm.OpI64GeU: {Op: ">=", Compare: true, Unsigned: "u64"},
		}},
	}
	for _, group := range intOps {
		for op, h := range group.ops {
			h.T = group.t
			r.register(op, h)
		}
	}

	floatOps := []struct {
		t                                wasm.ValType
		add, sub, mul, div               byte
		eq, ne, lt, gt, le, ge, min, max byte
		copysign                         byte
	}{
		{f64, wasm.OpF64Add, wasm.OpF64Sub, wasm.OpF64Mul, wasm.OpF64Div,
			wasm.OpF64Eq, wasm.OpF64Ne, wasm.OpF64Lt, wasm.OpF64Gt, wasm.OpF64Le, wasm.OpF64Ge,
			wasm.OpF64Min, wasm.OpF64Max, wasm.OpF64Copysign},
		{f32, wasm.OpF32Add, wasm.OpF32Sub, wasm.OpF32Mul, wasm.OpF32Div,
			wasm.OpF32Eq, wasm.OpF32Ne, wasm.OpF32Lt, wasm.OpF32Gt, wasm.OpF32Le, wasm.OpF32Ge,
			wasm.OpF32Min, wasm.OpF32Max, wasm.OpF32Copysign},
	}
	for _, g := range floatOps {
		r.register(g.add, binaryOp{Op: "+", T: g.t})
		r.register(g.sub, binaryOp{Op: "-", T: g.t})
		r.register(g.mul, binaryOp{Op: "*", T: g.t})
		r.register(g.div, binaryOp{Op: "/", T: g.t})
		r.register(g.eq, binaryOp{Op: "==", T: g.t, Compare: true})
		r.register(g.ne, binaryOp{Op: "!=", T: g.t, Compare: true})
		r.register(g.lt, binaryOp{Op: "<", T: g.t, Compare: true})
		r.register(g.gt, binaryOp{Op: ">", T: g.t, Compare: true})
		r.register(g.le, binaryOp{Op: "<=", T: g.t, Compare: true})
		r.register(g.ge, binaryOp{Op: ">=", T: g.t, Compare: true})
		r.register(g.min, minMax{T: g.t})
		r.register(g.max, minMax{T: g.t, Max: true})
		r.register(g.copysign, mathCall{F64: "copysign", F32: "copysignf", T: g.t, Args: 2})
	}

	unary := map[byte]mathCall{
		wasm.OpF64Abs: {F64: "fabs", T: f64}, wasm.OpF32Abs: {F32: "fabsf", T: f32},
		wasm.OpF64Ceil: {F64: "ceil", T: f64}, wasm.OpF32Ceil: {F32: "ceilf", T: f32},
		wasm.OpF64Floor: {F64: "floor", T: f64}, wasm.OpF32Floor: {F32: "floorf", T: f32},
		wasm.OpF64Trunc: {F64: "trunc", T: f64}, wasm.OpF32Trunc: {F32: "truncf", T: f32},
		wasm.OpF64Nearest: {F64: "nearbyint", T: f64}, wasm.OpF32Nearest: {F32: "nearbyintf", T: f32},
		wasm.OpF64Sqrt: {F64: "sqrt", T: f64}, wasm.OpF32Sqrt: {F32: "sqrtf", T: f32},
	}
	for op, h := range unary {
		h.Args = 1
		r.register(op, h)
	}
	for op, t := range map[byte]wasm.ValType{wasm.OpF64Neg: f64, wasm.OpF32Neg: f32} {
		t := t
		r.registerFunc(op, func(e *emitter, _ wasm.Instruction) {
			e.push(&Unary{X: e.pop(), Op: "-", T: t})
		})
	}
	eqz := func(e *emitter, _ wasm.Instruction) { e.push(Falsy(e.pop())) }
	r.registerFunc(wasm.OpI32Eqz, eqz)
	r.registerFunc(wasm.OpI64Eqz, eqz)

	conversions := map[byte]convert{
		wasm.OpI32WrapI64:     {{"i32", i32}},
		wasm.OpI32TruncF32S:   {{"i32", i32}},
		wasm.OpI32TruncF64S:   {{"i32", i32}},
		wasm.OpI32TruncF32U:   {{"u32", i32}, {"i32", i32}},
		wasm.OpI32TruncF64U:   {{"u32", i32}, {"i32", i32}},
		wasm.OpI64ExtendI32S:  {{"i64", i64}},
		wasm.OpI64ExtendI32U:  {{"u32", i32}, {"i64", i64}},
		wasm.OpI64TruncF32S:   {{"i64", i64}},
		wasm.OpI64TruncF64S:   {{"i64", i64}},
		wasm.OpI64TruncF32U:   {{"u64", i64}, {"i64", i64}},
		wasm.OpI64TruncF64U:   {{"u64", i64}, {"i64", i64}},
		wasm.OpF32ConvertI32S: {{"f32", f32}},
		wasm.OpF32ConvertI32U: {{"u32", i32}, {"f32", f32}},
		wasm.OpF32ConvertI64S: {{"f32", f32}},
		wasm.OpF32ConvertI64U: {{"u64", i64}, {"f32", f32}},
		wasm.OpF32DemoteF64:   {{"f32", f32}},
		wasm.OpF64ConvertI32S: {{"f64", f64}},
		wasm.OpF64ConvertI32U: {{"u32", i32}, {"f64", f64}},
		wasm.OpF64ConvertI64S: {{"f64", f64}},
		wasm.OpF64ConvertI64U: {{"u64", i64}, {"f64", f64}},
		wasm.OpF64PromoteF32:  {{"f64", f64}},
		wasm.OpI32Extend8S:    {{"i8", i32}, {"i32", i32}},
		wasm.OpI32Extend16S:   {{"i16", i32}, {"i32", i32}},
		wasm.OpI64Extend8S:    {{"i8", i64}, {"i64", i64}},
		wasm.OpI64Extend16S:   {{"i16", i64}, {"i64", i64}},
		wasm.OpI64Extend32S:   {{"i32", i64}, {"i64", i64}},
	}
	for op, h := range conversions {
		r.register(op, h)
	}

	satur := map[uint32]convert{
		wasm.MiscI32TruncSatF32S: {{"i32", i32}},
		wasm.MiscI32TruncSatF64S: {{"i32", i32}},
		wasm.MiscI32TruncSatF32U: {{"u32", i32}},
		wasm.MiscI32TruncSatF64U: {{"u32", i32}},
		wasm.MiscI64TruncSatF32S: {{"i64", i64}},
		wasm.MiscI64TruncSatF64S: {{"i64", i64}},
		wasm.MiscI64TruncSatF32U: {{"u64", i64}},
		wasm.MiscI64TruncSatF64U: {{"u64", i64}},
	}
	for sub, h := range satur {
		r.misc[sub] = h
	}

	r.registerFunc(wasm.OpI32Const, func(e *emitter, in wasm.Instruction) {
		e.push(intLit(int64(in.Imm.(wasm.I32Imm).Value), i32))
	})
	r.registerFunc(wasm.OpI64Const, func(e *emitter, in wasm.Instruction) {
		e.push(intLit(in.Imm.(wasm.I64Imm).Value, i64))
	})
	r.registerFunc(wasm.OpF32Const, func(e *emitter, in wasm.Instruction) {
		e.push(&Lit{Text: "(f32)" + FormatF64(float64(in.Imm.(wasm.F32Imm).Value)), T: f32})
	})
	r.registerFunc(wasm.OpF64Const, func(e *emitter, in wasm.Instruction) {
		e.push(&Lit{Text: FormatF64(in.Imm.(wasm.F64Imm).Value), T: f64})
	})
}

// stackEffect gives operand counts for instructions without a lowering,
// so that skipping them keeps the stack balanced.
func stackEffect(in wasm.Instruction) (pops int, results []wasm.ValType) {
	switch in.Opcode {
	case wasm.OpI32Clz, wasm.OpI32Ctz, wasm.OpI32Popcnt:
		return 1, []wasm.ValType{wasm.ValI32}
	case wasm.OpI64Clz, wasm.OpI64Ctz, wasm.OpI64Popcnt:
		return 1, []wasm.ValType{wasm.ValI64}
	case wasm.OpI32Rotl, wasm.OpI32Rotr:
		return 2, []wasm.ValType{wasm.ValI32}
	case wasm.OpI64Rotl, wasm.OpI64Rotr:
		return 2, []wasm.ValType{wasm.ValI64}
	case wasm.OpI32ReinterpretF32:
		return 1, []wasm.ValType{wasm.ValI32}
	case wasm.OpI64ReinterpretF64:
		return 1, []wasm.ValType{wasm.ValI64}
	case wasm.OpF32ReinterpretI32:
		return 1, []wasm.ValType{wasm.ValF32}
	case wasm.OpF64ReinterpretI64:
		return 1, []wasm.ValType{wasm.ValF64}
	case wasm.OpPrefixMisc:
		if in.Imm.(wasm.MiscImm).SubOpcode == wasm.MiscMemoryInit {
			return 3, nil
		}
	}
	return 0, nil
}

// FormatF64 renders v the way JavaScript's toExponential does, e.g.
// 1.5e+0, 1e+2, 2.5e-7. NaN and the infinities use C expressions.
func FormatF64(v float64) string {
	switch {
	case math.IsNaN(v):
		return "NaN"
	case math.IsInf(v, 1):
		return "(1e+0/0e+0)"
	case math.IsInf(v, -1):
		return "(-1e+0/0e+0)"
	}
	s := strconv.FormatFloat(v, 'e', -1, 64)
	mant, exp, _ := strings.Cut(s, "e")
	sign := exp[:1]
	digits := strings.TrimLeft(exp[1:], "0")
	if digits == "" {
		digits = "0"
	}
	return mant + "e" + sign + digits
}

// intLit renders an integer constant of type t. The most negative values
// are written as expressions since their magnitude is not a valid literal.
func intLit(v int64, t wasm.ValType) *Lit {
	if t == wasm.ValI64 {
		if v == math.MinInt64 {
			return &Lit{Text: "(-9223372036854775807LL-1)", T: t}
		}
		return &Lit{Text: strconv.FormatInt(v, 10) + "LL", T: t}
	}
	if v == math.MinInt32 {
		return &Lit{Text: "(-2147483647-1)", T: t}
	}
	return &Lit{Text: strconv.FormatInt(v, 10), T: t}
}

// litInt parses an integral literal, including float literals with an
// integral value.
func litInt(l *Lit) (int64, bool) {
	text := strings.TrimSuffix(l.Text, "LL")
	if v, err := strconv.ParseInt(text, 10, 64); err == nil {
		return v, true
	}
	f, err := strconv.ParseFloat(strings.TrimPrefix(text, "(f32)"), 64)
	if err != nil || f != math.Trunc(f) || math.Abs(f) > 1<<53 {
		return 0, false
	}
	return int64(f), true
}
