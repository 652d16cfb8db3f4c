package cgen

import (
	"strconv"
	"strings"

	"github.com/wippyai/wasm2c/errors"
	"github.com/wippyai/wasm2c/wasm"
)

func registerControl(r *opRegistry) {
	r.registerFunc(wasm.OpNop, func(*emitter, wasm.Instruction) {})
	r.registerFunc(wasm.OpBlock, opBlock)
	r.registerFunc(wasm.OpLoop, opLoop)
	r.registerFunc(wasm.OpIf, opIf)
	r.registerFunc(wasm.OpElse, opElse)
	r.registerFunc(wasm.OpEnd, opEnd)
	r.registerFunc(wasm.OpBr, opBr)
	r.registerFunc(wasm.OpBrIf, opBrIf)
	r.registerFunc(wasm.OpBrTable, opBrTable)
	r.registerFunc(wasm.OpReturn, opReturn)
	r.registerFunc(wasm.OpUnreachable, opUnreachable)
	r.registerFunc(wasm.OpCall, opCall)
	r.registerFunc(wasm.OpCallIndirect, opCallIndirect)
	r.registerFunc(wasm.OpThrow, opThrow)
	r.registerFunc(wasm.OpDrop, opDrop)
	r.registerFunc(wasm.OpSelect, opSelect)
}

func opBlock(e *emitter, in wasm.Instruction) {
	e.barrier(e.scanWrites(e.pc + 1))
	f := e.openFrame(in.Opcode, in.Imm.(wasm.BlockImm).Type)
	e.w.raw(blockComment("block", f))
	e.declareResult(f)
	e.w.indent++
}

func opLoop(e *emitter, in wasm.Instruction) {
	e.barrier(e.scanWrites(e.pc + 1))
	f := e.openFrame(in.Opcode, in.Imm.(wasm.BlockImm).Type)
	e.w.raw(blockComment("loop", f))
	e.w.line("j%d:;", f.label)
	e.declareResult(f)
	e.w.indent++
}

func opIf(e *emitter, in wasm.Instruction) {
	cond := e.pop()
	e.barrier(e.scanWrites(e.pc + 1))
	f := e.openFrame(in.Opcode, in.Imm.(wasm.BlockImm).Type)
	e.w.raw(blockComment("if", f))
	e.declareResult(f)
	e.w.line("if (%s) {", Render(Truthy(cond)))
	e.w.indent++
}

func opElse(e *emitter, _ wasm.Instruction) {
	if len(e.frames) == 0 || e.frames[len(e.frames)-1].op != wasm.OpIf {
		e.fail(errors.KindInvalidData, "else outside if")
	}
	f := e.frames[len(e.frames)-1]
	if !e.dead && f.result != nil && len(e.stack) > f.height {
		e.assign(f.result, e.pop())
	}
	e.stack = e.stack[:f.height]
	e.dead = false
	e.w.indent--
	e.w.line("} else {")
	e.w.indent++
}

func opEnd(e *emitter, _ wasm.Instruction) {
	if len(e.frames) == 0 {
		e.fail(errors.KindInvalidData, "end without open block")
	}
	f := e.frames[len(e.frames)-1]
	if !e.dead && f.result != nil && len(e.stack) > f.height {
		e.assign(f.result, e.pop())
	}
	e.stack = e.stack[:f.height]
	e.frames = e.frames[:len(e.frames)-1]
	e.dead = false

	e.w.indent--
	if f.op == wasm.OpIf {
		e.w.line("}")
	}
	e.w.line("// end")
	if f.op != wasm.OpLoop {
		e.w.line("j%d:;", f.label)
	}
	if f.result != nil {
		e.push(f.result)
	}
}

func opBr(e *emitter, in wasm.Instruction) {
	f := e.target(in.Imm.(wasm.BranchImm).LabelIdx)
	e.prepareBranch(f)
	for _, l := range e.branchLines(f) {
		e.w.raw(l)
	}
	e.dead = true
}

func opBrIf(e *emitter, in wasm.Instruction) {
	cond := e.pop()
	f := e.target(in.Imm.(wasm.BranchImm).LabelIdx)
	e.prepareBranch(f)
	e.w.line("if (%s) {", Render(Truthy(cond)))
	e.w.indent++
	for _, l := range e.branchLines(f) {
		e.w.raw(l)
	}
	e.w.indent--
	e.w.line("}")
}

// opBrTable lowers to a switch whose cases jump to the target labels.
func opBrTable(e *emitter, in wasm.Instruction) {
	imm := in.Imm.(wasm.BrTableImm)
	idx := e.pop()
	def := e.target(imm.Default)
	e.prepareBranch(def)
	e.w.line("switch (%s) {", Render(idx))
	e.w.indent++
	for i, depth := range imm.Labels {
		e.w.line("case %d: %s", i, strings.Join(e.branchLines(e.target(depth)), " "))
	}
	e.w.line("default: %s", strings.Join(e.branchLines(def), " "))
	e.w.indent--
	e.w.line("}")
	e.dead = true
}

func opReturn(e *emitter, _ wasm.Instruction) {
	e.spillImpure()
	for _, l := range e.returnLines() {
		e.w.raw(l)
	}
	e.dead = true
}

func opUnreachable(e *emitter, _ wasm.Instruction) {
	e.spillImpure()
	e.s.includes.add("stdlib.h", "")
	e.w.line("abort();")
	e.dead = true
}

// opCall emits the callee on first use, then calls it. Boxed callees go
// through a ReturnValue temporary whose fields are pushed as value, type.
func opCall(e *emitter, in wasm.Instruction) {
	idx := in.Imm.(wasm.CallImm).FuncIdx
	if int(idx) < len(e.s.mod.Imports) {
		e.callImport(e.s.mod.Imports[idx])
		return
	}
	g := e.s.mod.FuncByIndex(idx)
	if g == nil {
		e.fail(errors.KindNotFound, "call target %d", idx)
	}
	if !e.s.visited[g.Name] {
		e.s.emitFunction(g)
	}
	name, _ := e.s.names.Lookup(g.Name)
	call := &Call{Func: name, Args: e.popN(len(g.Params)), Effects: Effects{Calls: true}}

	switch {
	case g.Boxed():
		e.barrier(Effects{Calls: true})
		tmp := "_" + strconv.Itoa(e.s.nextRet())
		e.declare("struct ReturnValue " + tmp)
		e.w.line("%s = %s;", tmp, Render(call))
		e.stack = append(e.stack,
			&Var{Name: tmp + ".value", T: wasm.ValF64, Kind: VarTemp},
			&Var{Name: tmp + ".type", T: wasm.ValI32, Kind: VarTemp})
	case len(g.Returns) > 0:
		call.T = g.Returns[0]
		e.push(call)
	default:
		e.statement(Effects{Calls: true}, call)
	}
}

// opThrow reports a statically known exception and exits.
// opCallIndirect fails: modules carry no table or type section, so the
// callee's signature is unknown and the stack cannot be kept balanced.
func opCallIndirect(e *emitter, in wasm.Instruction) {
	imm := in.Imm.(wasm.CallIndirectImm)
	e.fail(errors.KindUnsupported, "call_indirect through type %d", imm.TypeIdx)
}

func opThrow(e *emitter, _ wasm.Instruction) {
	id := e.pop()
	e.spillImpure()
	e.s.includes.add("stdio.h", "")
	e.s.includes.add("stdlib.h", "")

	line := `printf("Uncaught exception\n");`
	if lit, ok := id.(*Lit); ok {
		if n, ok := litInt(lit); ok && n >= 0 && int(n) < len(e.s.mod.Exceptions) {
			ex := e.s.mod.Exceptions[n]
			line = `printf("Uncaught %s: %s\n", ` + cString(ex.Constructor) + ", " + cString(ex.Message) + ");"
		}
	} else if impure(id) {
		e.w.line("(void)(%s);", Render(id))
	}
	e.w.raw(line)
	e.w.line("exit(1);")
	e.dead = true
}

func opDrop(e *emitter, _ wasm.Instruction) {
	x := e.pop()
	if impure(x) {
		e.w.line("(void)(%s);", Render(x))
	}
}

// opSelect evaluates impure operands up front, since the conditional
// operator evaluates only one branch.
func opSelect(e *emitter, _ wasm.Instruction) {
	cond := e.pop()
	b := e.pop()
	a := e.pop()
	if impure(a) {
		a = e.temp(a)
	}
	if impure(b) {
		b = e.temp(b)
	}
	e.push(&Select{Cond: Truthy(cond), Then: a, Else: b, T: a.Type()})
}

func registerVariables(r *opRegistry) {
	r.registerFunc(wasm.OpLocalGet, func(e *emitter, in wasm.Instruction) {
		e.push(e.local(in.Imm.(wasm.LocalImm).LocalIdx))
	})
	r.registerFunc(wasm.OpLocalSet, func(e *emitter, in wasm.Instruction) {
		dst := e.local(in.Imm.(wasm.LocalImm).LocalIdx)
		e.assign(dst, e.pop())
	})
	r.registerFunc(wasm.OpLocalTee, func(e *emitter, in wasm.Instruction) {
		dst := e.local(in.Imm.(wasm.LocalImm).LocalIdx)
		e.assign(dst, e.pop())
		e.push(dst)
	})
	r.registerFunc(wasm.OpGlobalGet, func(e *emitter, in wasm.Instruction) {
		e.push(e.global(in.Imm.(wasm.GlobalImm).GlobalIdx))
	})
	r.registerFunc(wasm.OpGlobalSet, func(e *emitter, in wasm.Instruction) {
		dst := e.global(in.Imm.(wasm.GlobalImm).GlobalIdx)
		e.assign(dst, e.pop())
	})
}

// cString quotes s as a C string literal. Bytes outside printable ASCII
// use three-digit octal escapes.
func cString(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '"', '\\':
			b.WriteByte('\\')
			b.WriteByte(c)
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if c < 0x20 || c >= 0x7f {
				b.WriteByte('\\')
				b.WriteByte('0' + (c >> 6))
				b.WriteByte('0' + ((c >> 3) & 7))
				b.WriteByte('0' + (c & 7))
				continue
			}
			b.WriteByte(c)
		}
	}
	b.WriteByte('"')
	return b.String()
}
