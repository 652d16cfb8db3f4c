package cgen

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/wippyai/wasm2c/errors"
	"github.com/wippyai/wasm2c/ir"
	"github.com/wippyai/wasm2c/wasm"
)

// memOp describes one load or store helper. Mem is the C type of the bytes
// in linear memory, T the wasm type of the value on the operand stack.
type memOp struct {
	name  string
	mem   string
	T     wasm.ValType
	store bool
}

var memOps = nameMemOps(map[byte]memOp{
	wasm.OpI32Load:    {mem: "i32", T: wasm.ValI32},
	wasm.OpI32Load8S:  {mem: "i8", T: wasm.ValI32},
	wasm.OpI32Load8U:  {mem: "u8", T: wasm.ValI32},
	wasm.OpI32Load16S: {mem: "i16", T: wasm.ValI32},
	wasm.OpI32Load16U: {mem: "u16", T: wasm.ValI32},
	wasm.OpI64Load:    {mem: "i64", T: wasm.ValI64},
	wasm.OpI64Load8S:  {mem: "i8", T: wasm.ValI64},
	wasm.OpI64Load8U:  {mem: "u8", T: wasm.ValI64},
	wasm.OpI64Load16S: {mem: "i16", T: wasm.ValI64},
	wasm.OpI64Load16U: {mem: "u16", T: wasm.ValI64},
	wasm.OpI64Load32S: {mem: "i32", T: wasm.ValI64},
	wasm.OpI64Load32U: {mem: "u32", T: wasm.ValI64},
	wasm.OpF32Load:    {mem: "f32", T: wasm.ValF32},
	wasm.OpF64Load:    {mem: "f64", T: wasm.ValF64},

	wasm.OpI32Store:   {mem: "i32", T: wasm.ValI32, store: true},
	wasm.OpI32Store8:  {mem: "u8", T: wasm.ValI32, store: true},
	wasm.OpI32Store16: {mem: "u16", T: wasm.ValI32, store: true},
	wasm.OpI64Store:   {mem: "i64", T: wasm.ValI64, store: true},
	wasm.OpI64Store8:  {mem: "u8", T: wasm.ValI64, store: true},
	wasm.OpI64Store16: {mem: "u16", T: wasm.ValI64, store: true},
	wasm.OpI64Store32: {mem: "u32", T: wasm.ValI64, store: true},
	wasm.OpF32Store:   {mem: "f32", T: wasm.ValF32, store: true},
	wasm.OpF64Store:   {mem: "f64", T: wasm.ValF64, store: true},
})

// nameMemOps names each helper after its instruction, e.g. i32_load8_u.
func nameMemOps(ops map[byte]memOp) map[byte]memOp {
	for op, h := range ops {
		h.name = strings.ReplaceAll(wasm.OpName(op), ".", "_")
		ops[op] = h
	}
	return ops
}

// source returns the helper definition for the given strategy.
func (h memOp) source(strategy MemoryStrategy) string {
	var body string
	switch {
	case h.store && strategy == MemoryCopy:
		body = "memcpy(_memory + offset + pointer, &value, sizeof(value));"
	case h.store:
		body = fmt.Sprintf("*((%s*)(_memory + offset + pointer)) = value;", h.mem)
	case strategy == MemoryCopy:
		body = fmt.Sprintf("%s out;\n  memcpy(&out, _memory + offset + pointer, sizeof(out));\n  return out;", h.mem)
	default:
		body = fmt.Sprintf("return *((%s*)(_memory + offset + pointer));", h.mem)
	}
	if h.store {
		return fmt.Sprintf("void %s(i32 align, i32 offset, i32 pointer, %s value) {\n  %s\n}", h.name, h.mem, body)
	}
	return fmt.Sprintf("%s %s(i32 align, i32 offset, i32 pointer) {\n  %s\n}", cType(h.T), h.name, body)
}

func (h memOp) Handle(e *emitter, in wasm.Instruction) {
	e.requireMemory()
	if e.s.helper(h.name, h.source(e.s.opts.Memory)) && e.s.opts.Memory == MemoryCopy {
		e.s.includes.add("string.h", "")
	}
	imm := in.Imm.(wasm.MemoryImm)
	args := []Expr{
		&Lit{Text: strconv.FormatUint(uint64(imm.Align), 10), T: wasm.ValI32},
		&Lit{Text: strconv.FormatUint(imm.Offset, 10), T: wasm.ValI32},
	}
	if h.store {
		ops := e.popN(2)
		e.statement(Effects{Memory: true}, &Call{Func: h.name, Args: append(args, ops...)})
		return
	}
	e.push(&Call{Func: h.name, Args: append(args, e.pop()), T: h.T, Effects: Effects{Memory: true}})
}

// requireMemory fails when the module declares no linear memory.
func (e *emitter) requireMemory() {
	if !e.s.prepend.has("_memory") {
		e.fail(errors.KindInvalidData, "memory access in a module without memory")
	}
}

func registerMemory(r *opRegistry) {
	for op, h := range memOps {
		r.register(op, h)
	}

	r.registerFunc(wasm.OpMemorySize, func(e *emitter, _ wasm.Instruction) {
		e.push(intLit(int64(e.s.mod.Pages), wasm.ValI32))
	})
	// Linear memory is a fixed array, so growing always fails.
	r.registerFunc(wasm.OpMemoryGrow, func(e *emitter, _ wasm.Instruction) {
		if x := e.pop(); impure(x) {
			e.w.line("(void)(%s);", Render(x))
		}
		e.push(intLit(-1, wasm.ValI32))
	})

	r.misc[wasm.MiscMemoryCopy] = handlerFunc(func(e *emitter, _ wasm.Instruction) {
		e.requireMemory()
		e.s.includes.add("string.h", "")
		ops := e.popN(3)
		e.barrier(Effects{Memory: true})
		e.w.line("memmove(_memory + %s, _memory + %s, %s);",
			RenderNested(ops[0]), RenderNested(ops[1]), Render(ops[2]))
	})
	r.misc[wasm.MiscMemoryFill] = handlerFunc(func(e *emitter, _ wasm.Instruction) {
		e.requireMemory()
		e.s.includes.add("string.h", "")
		ops := e.popN(3)
		e.barrier(Effects{Memory: true})
		e.w.line("memset(_memory + %s, %s, %s);",
			RenderNested(ops[0]), Render(ops[1]), Render(ops[2]))
	})
}

// dataPrologue copies the data segments into linear memory at startup.
func dataPrologue(segs []ir.DataSegment, strategy MemoryStrategy) string {
	var b strings.Builder
	for i, d := range segs {
		if i > 0 {
			b.WriteByte('\n')
		}
		if strategy == MemoryCopy {
			nums := make([]string, len(d.Bytes))
			for j, v := range d.Bytes {
				nums[j] = strconv.Itoa(int(v))
			}
			fmt.Fprintf(&b, "memcpy(_memory + %d, (unsigned char[]){%s}, %d);", d.Offset, strings.Join(nums, ","), len(d.Bytes))
			continue
		}
		for j, v := range d.Bytes {
			fmt.Fprintf(&b, "_memory[%d]=(u8)%d;", d.Offset+j, v)
		}
	}
	return b.String()
}
