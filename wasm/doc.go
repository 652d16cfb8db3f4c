// Package wasm provides the WebAssembly binary layer used by the C backend.
//
// It covers the MVP subset the generator consumes: LEB128 and IEEE-754
// immediates, instruction decoding and encoding, and module parsing and
// encoding for the type, import, function, memory, global, export, start,
// code and data sections. Table and element sections are skipped on input.
//
// Basic usage:
//
//	mod, err := wasm.ParseModule(data)
//	if err != nil {
//		return err
//	}
//	instrs, err := wasm.DecodeInstructions(mod.Code[0].Code)
//
// Modules built in memory can be serialized with Module.Encode and
// executed by any compliant engine.
package wasm
