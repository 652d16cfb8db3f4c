// Package ir defines the stack-machine intermediate representation consumed by
// the C backend.
//
// A Module is a list of typed functions whose bodies are streams of raw
// WebAssembly-encoded instructions, plus globals, a linear memory page count,
// static data segments, and exception descriptors. Modules are read from JSON
// with ReadJSON, converted from core wasm binaries with FromWasm, or built in
// code with the instruction constructors:
//
//	add := &ir.Function{
//		Name:       "add",
//		Index:      0,
//		Params:     []wasm.ValType{wasm.ValI32, wasm.ValI32},
//		Locals:     ir.Locals{{Name: "a", Type: wasm.ValI32, Idx: 0}, {Name: "b", Type: wasm.ValI32, Idx: 1}},
//		Returns:    []wasm.ValType{wasm.ValI32},
//		ReturnType: ir.Static(wasm.ValI32),
//		Wasm:       []ir.Instr{ir.LocalGet(0), ir.LocalGet(1), ir.Op(wasm.OpI32Add), ir.Return()},
//	}
//
// Lower converts a Module back into a core wasm binary so it can be executed
// by a reference engine.
package ir
