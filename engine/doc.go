// Package engine executes IR modules on wazero.
//
// It is the reference against which generated C is checked: the module is
// lowered to core WebAssembly with ir.LowerBinary and run by the wazero
// interpreter or compiler. Imports are served by a host module named "env"
// that implements the same builtins as the C helpers.
//
// # Usage
//
//	eng, err := engine.NewWazeroEngine(ctx)
//	if err != nil {
//		return err
//	}
//	defer eng.Close(ctx)
//
//	mod, err := eng.LoadModule(ctx, irModule)
//	if err != nil {
//		return err
//	}
//
//	var out bytes.Buffer
//	inst, err := mod.InstantiateWithConfig(ctx, &engine.InstanceConfig{Stdout: &out})
//	if err != nil {
//		return err
//	}
//	defer inst.Close(ctx)
//
//	results, err := inst.Call(ctx, "add", engine.I32(2), engine.I32(3))
//
// # Host Builtins
//
// Builtins are resolved by import name, with or without the __Porffor_
// prefix:
//
//	print(x)                  writes x in C printf style, then a newline
//	printChar(c)              writes one byte
//	time()                    milliseconds since the instance started
//	readArgv(index, outPtr)   copies argument index to outPtr
//	readFile(pathPtr, outPtr) copies a file, or stdin when pathPtr is 0
//
// readArgv and readFile store a 4-byte little-endian length at outPtr, the
// bytes at outPtr+4, and return the byte count or -1. Unknown imports log a
// warning and return zeros, mirroring the generator.
//
// Each instance has its own output, input and argument list, so instances
// of one module can run concurrently.
package engine
