package cgen

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/wippyai/wasm2c/errors"
	"github.com/wippyai/wasm2c/ir"
	"github.com/wippyai/wasm2c/wasm"
)

// frame is one open block, loop, or if.
type frame struct {
	result *Var // nil for void frames
	label  int
	height int
	op     byte
}

// emitter translates one function body in a single linear pass.
//
// Operands live on a stack of expression nodes. Statements (assignments,
// stores, calls without results, control flow) are written as they are
// reached, after spilling any pending operand whose value they could change.
type emitter struct {
	s      *session
	fn     *ir.Function
	cname  string
	names  *Sanitizer
	locals map[uint32]*Var
	code   []wasm.Instruction
	entry  bool

	w      codeWriter
	decls  []string
	stack  []Expr
	frames []*frame

	pc   int
	op   string
	dead bool
	skip int
}

// emitFunction translates fn and records it. Callees reached through call
// instructions are emitted first, so s.funcs ends up in post-order.
func (s *session) emitFunction(fn *ir.Function) {
	s.visited[fn.Name] = true
	e := newEmitter(s, fn)
	e.run()
	s.funcs = append(s.funcs, e.finish())
}

func newEmitter(s *session, fn *ir.Function) *emitter {
	e := &emitter{
		s:      s,
		fn:     fn,
		cname:  s.names.Name(fn.Name),
		names:  NewSanitizer(s.names),
		locals: make(map[uint32]*Var, len(fn.Locals)),
		code:   make([]wasm.Instruction, len(fn.Wasm)),
		entry:  fn == s.entry,
	}
	e.w.indent = 1
	for _, l := range fn.Locals {
		e.locals[l.Idx] = &Var{Name: e.names.Name(l.Name), T: l.Type, Kind: VarLocal}
	}
	for i, raw := range fn.Wasm {
		in, err := raw.Decode()
		if err != nil {
			panic(errors.New(errors.PhaseDecode, errors.KindInvalidData).
				Func(fn.Name).At(i).Cause(err).Detail("malformed instruction").Build())
		}
		e.code[i] = in
	}
	return e
}

func (e *emitter) run() {
	for e.pc = 0; e.pc < len(e.code); e.pc++ {
		in := e.code[e.pc]
		e.op = instrName(in)
		if e.dead && !e.leavesDeadCode(in) {
			continue
		}
		h := registry.Get(in.Opcode)
		if h == nil {
			e.unsupported(in)
			continue
		}
		h.Handle(e, in)
	}
	e.op = "end"
	e.functionEnd()
}

// leavesDeadCode tracks nesting inside unreachable code and reports whether
// in closes the region that became dead.
func (e *emitter) leavesDeadCode(in wasm.Instruction) bool {
	switch in.Opcode {
	case wasm.OpBlock, wasm.OpLoop, wasm.OpIf:
		e.skip++
	case wasm.OpElse:
		return e.skip == 0
	case wasm.OpEnd:
		if e.skip == 0 {
			return true
		}
		e.skip--
	}
	return false
}

func (e *emitter) functionEnd() {
	if len(e.frames) != 0 {
		e.fail(errors.KindInvalidData, "%d unclosed blocks", len(e.frames))
	}
	if !e.dead && !e.entry && len(e.fn.Returns) > 0 {
		e.spillImpure()
		for _, l := range e.returnLines() {
			e.w.raw(l)
		}
	}
	if e.entry {
		e.w.blank()
		e.w.line("return 0;")
	}
}

// finish wraps the body with the signature and declarations.
func (e *emitter) finish() *emitted {
	sig := e.signature()
	var out codeWriter
	out.line("%s {", sig)
	out.indent = 1

	if e.entry && e.s.prologue.len() > 0 {
		for _, p := range e.s.prologue.values() {
			out.block(p)
		}
		out.blank()
	}

	first := len(e.fn.Params)
	if e.entry {
		first = 0
	}
	n := 0
	for _, l := range e.fn.Locals {
		if int(l.Idx) < first {
			continue
		}
		out.line("%s %s = 0;", cType(l.Type), e.locals[l.Idx].Name)
		n++
	}
	for _, d := range e.decls {
		out.line("%s;", d)
		n++
	}
	if n > 0 {
		out.blank()
	}

	body := out.String() + e.w.String() + "}\n"
	return &emitted{fn: e.fn, cname: e.cname, signature: sig, body: body}
}

func (e *emitter) signature() string {
	if e.entry {
		if e.s.usesArgv() {
			return "int main(int argc, char* argv[])"
		}
		return "int main(void)"
	}
	params := make([]string, len(e.fn.Params))
	for i, t := range e.fn.Params {
		params[i] = cType(t) + " " + e.locals[uint32(i)].Name
	}
	list := "void"
	if len(params) > 0 {
		list = strings.Join(params, ", ")
	}
	ret := "void"
	switch {
	case e.fn.Boxed():
		ret = "struct ReturnValue"
	case len(e.fn.Returns) > 0:
		ret = cType(e.fn.Returns[0])
	}
	return fmt.Sprintf("%s %s(%s)", ret, e.cname, list)
}

// fail aborts generation of the whole module.
func (e *emitter) fail(kind errors.Kind, format string, args ...any) {
	panic(errors.New(errors.PhaseGenerate, kind).
		Func(e.fn.Name).Op(e.op).At(e.pc).Detail(format, args...).Build())
}

func (e *emitter) warn(msg string, in wasm.Instruction) {
	Logger().Warn(msg, zap.String("func", e.fn.Name), zap.String("opcode", instrName(in)))
}

// floor is the lowest stack slot visible to the innermost frame.
func (e *emitter) floor() int {
	if len(e.frames) == 0 {
		return 0
	}
	return e.frames[len(e.frames)-1].height
}

func (e *emitter) push(x Expr) {
	if impure(x) {
		e.barrier(Effects{Calls: true})
	}
	e.stack = append(e.stack, x)
}

func (e *emitter) pop() Expr {
	if len(e.stack) <= e.floor() {
		panic(errors.New(errors.PhaseGenerate, errors.KindStackUnderflow).
			Func(e.fn.Name).Op(e.op).At(e.pc).
			Detail("need 1 value, have %d", len(e.stack)-e.floor()).Build())
	}
	x := e.stack[len(e.stack)-1]
	e.stack = e.stack[:len(e.stack)-1]
	return x
}

// popN pops n operands and returns them in push order.
func (e *emitter) popN(n int) []Expr {
	if have := len(e.stack) - e.floor(); have < n {
		panic(errors.New(errors.PhaseGenerate, errors.KindStackUnderflow).
			Func(e.fn.Name).Op(e.op).At(e.pc).
			Detail("need %d values, have %d", n, have).Build())
	}
	out := make([]Expr, n)
	copy(out, e.stack[len(e.stack)-n:])
	e.stack = e.stack[:len(e.stack)-n]
	return out
}

// peek returns the operand i slots below the top.
func (e *emitter) peek(i int) Expr {
	if have := len(e.stack) - e.floor(); have <= i {
		panic(errors.New(errors.PhaseGenerate, errors.KindStackUnderflow).
			Func(e.fn.Name).Op(e.op).At(e.pc).
			Detail("need %d values, have %d", i+1, have).Build())
	}
	return e.stack[len(e.stack)-1-i]
}

// declare adds a hoisted declaration, e.g. "f64 _tmp3".
func (e *emitter) declare(decl string) {
	e.decls = append(e.decls, decl)
}

// temp evaluates x into a fresh hoisted temporary.
func (e *emitter) temp(x Expr) *Var {
	name := fmt.Sprintf("_tmp%d", e.s.nextTmp())
	e.declare(cType(x.Type()) + " " + name)
	e.w.line("%s = %s;", name, Render(x))
	return &Var{Name: name, T: x.Type(), Kind: VarTemp}
}

// spill replaces the operand at slot i with a temporary holding its
// current value.
func (e *emitter) spill(i int) {
	if _, ok := e.stack[i].(*Lit); ok {
		return
	}
	e.stack[i] = e.temp(e.stack[i])
}

// settle is spill for operands that are not already a plain variable.
func (e *emitter) settle(i int) {
	if _, ok := e.stack[i].(*Var); ok {
		return
	}
	e.spill(i)
}

// barrier spills, bottom-up, every pending operand whose value a statement
// with writes w could change.
func (e *emitter) barrier(w Effects) {
	for i := range e.stack {
		if conflicts(readsOf(e.stack[i]), w) {
			e.spill(i)
		}
	}
}

// spillImpure evaluates every pending operand with side effects, so that
// leaving the current path does not lose them.
func (e *emitter) spillImpure() {
	for i := range e.stack {
		if impure(e.stack[i]) {
			e.settle(i)
		}
	}
}

func (e *emitter) assign(dst *Var, x Expr) {
	var w Effects
	if dst.Kind == VarGlobal {
		w.addGlobal(dst.Name)
	} else {
		w.addLocal(dst.Name)
	}
	e.barrier(w)
	if v, ok := x.(*Var); ok && v.Name == dst.Name {
		return
	}
	e.w.line("%s = %s;", dst.Name, Render(x))
}

// statement writes a call or store after spilling operands it could change.
func (e *emitter) statement(w Effects, x Expr) {
	e.barrier(w)
	e.w.line("%s;", Render(x))
}

func (e *emitter) local(idx uint32) *Var {
	v, ok := e.locals[idx]
	if !ok {
		e.fail(errors.KindNotFound, "local %d", idx)
	}
	return v
}

func (e *emitter) global(idx uint32) *Var {
	v, ok := e.s.globals[idx]
	if !ok {
		e.fail(errors.KindNotFound, "global %d", idx)
	}
	return v
}

// scanWrites collects what the instructions of the block starting at start
// can write, up to its matching end.
func (e *emitter) scanWrites(start int) Effects {
	var w Effects
	depth := 0
	for _, in := range e.code[start:] {
		switch in.Opcode {
		case wasm.OpBlock, wasm.OpLoop, wasm.OpIf:
			depth++
		case wasm.OpEnd:
			if depth == 0 {
				return w
			}
			depth--
		case wasm.OpLocalSet, wasm.OpLocalTee:
			if v, ok := e.locals[in.Imm.(wasm.LocalImm).LocalIdx]; ok {
				w.addLocal(v.Name)
			}
		case wasm.OpGlobalSet:
			if v, ok := e.s.globals[in.Imm.(wasm.GlobalImm).GlobalIdx]; ok {
				w.addGlobal(v.Name)
			}
		case wasm.OpCall, wasm.OpCallIndirect:
			w.Calls = true
		case wasm.OpMemoryGrow:
			w.Memory = true
		case wasm.OpPrefixMisc:
			switch in.Imm.(wasm.MiscImm).SubOpcode {
			case wasm.MiscMemoryCopy, wasm.MiscMemoryFill, wasm.MiscMemoryInit:
				w.Memory = true
			}
		default:
			if h, ok := memOps[in.Opcode]; ok && h.store {
				w.Memory = true
			}
		}
	}
	return w
}

func (e *emitter) openFrame(op byte, bt int32) *frame {
	f := &frame{op: op, label: e.s.nextLabel(), height: len(e.stack)}
	if vt, ok := wasm.BlockResult(bt); ok {
		f.result = &Var{Name: fmt.Sprintf("_r%d", f.label), T: vt, Kind: VarTemp}
	} else if bt != wasm.BlockTypeVoid {
		e.fail(errors.KindUnsupported, "block type %d", bt)
	}
	e.frames = append(e.frames, f)
	return f
}

func (e *emitter) declareResult(f *frame) {
	if f.result != nil {
		e.w.line("%s %s;", cType(f.result.T), f.result.Name)
	}
}

func blockComment(kind string, f *frame) string {
	if f.result != nil {
		return "// " + kind + " " + f.result.T.String()
	}
	return "// " + kind
}

// target resolves a relative branch depth. A nil frame means the branch
// leaves the function.
func (e *emitter) target(depth uint32) *frame {
	switch n := len(e.frames); {
	case int(depth) < n:
		return e.frames[n-1-int(depth)]
	case int(depth) == n:
		return nil
	}
	panic(errors.BranchDepth(e.fn.Name, e.op, depth, len(e.frames)))
}

// arity is the number of operands a branch to f carries.
func (e *emitter) arity(f *frame) int {
	if f == nil {
		switch {
		case e.entry:
			return 0
		case e.fn.Boxed():
			return 2
		case len(e.fn.Returns) > 0:
			return 1
		}
		return 0
	}
	if f.op == wasm.OpLoop || f.result == nil {
		return 0
	}
	return 1
}

// prepareBranch evaluates pending side effects and turns the carried
// operands into plain variables so that they can be read on both paths.
func (e *emitter) prepareBranch(f *frame) {
	e.spillImpure()
	n := e.arity(f)
	for i := n; i >= 1; i-- {
		if len(e.stack)-i >= e.floor() {
			e.settle(len(e.stack) - i)
		}
	}
}

// branchLines returns the statements that transfer control to f without
// consuming the carried operands.
func (e *emitter) branchLines(f *frame) []string {
	if f == nil {
		return e.returnLines()
	}
	jump := fmt.Sprintf("goto j%d;", f.label)
	if e.arity(f) == 0 {
		return []string{jump}
	}
	return []string{fmt.Sprintf("%s = %s;", f.result.Name, Render(e.peek(0))), jump}
}

func (e *emitter) returnLines() []string {
	switch {
	case e.entry:
		return []string{"return 0;"}
	case e.fn.Boxed():
		typ, val := e.peek(0), e.peek(1)
		return []string{fmt.Sprintf("return (struct ReturnValue){ %s, %s };", Render(val), Render(typ))}
	case len(e.fn.Returns) > 0:
		return []string{"return " + Render(e.peek(0)) + ";"}
	}
	return []string{"return;"}
}

// unsupported logs and skips an instruction the generator has no lowering
// for. Operands are consumed and zero results pushed to keep the stack
// balanced.
func (e *emitter) unsupported(in wasm.Instruction) {
	e.warn("unsupported opcode", in)
	pops, results := stackEffect(in)
	for _, x := range e.popN(pops) {
		if impure(x) {
			e.w.line("(void)(%s);", Render(x))
		}
	}
	for _, t := range results {
		e.push(zeroOf(t))
	}
}

func instrName(in wasm.Instruction) string {
	if imm, ok := in.Imm.(wasm.MiscImm); ok && in.Opcode == wasm.OpPrefixMisc {
		return wasm.MiscName(imm.SubOpcode)
	}
	return wasm.OpName(in.Opcode)
}

func cType(t wasm.ValType) string {
	return t.String()
}
