// Package cgen translates an IR module into a single C translation unit.
//
// Each function body is processed in one linear pass over its instruction
// stream. Operands are kept on a simulated stack as typed expression nodes
// and rendered to C text only when a statement consumes them, so that
// arithmetic collapses into nested C expressions:
//
//	local.get 0
//	local.get 1
//	i32.add
//	return
//
// becomes
//
//	return a + b;
//
// Structured control flow is rebuilt with labels and goto. A block, loop,
// or if with label N writes its result to _rN and is jumped to as jN.
// Functions reached through call instructions are emitted on first use,
// callees before callers, with the entry function last and named main.
//
// Memory loads and stores go through small helpers (i32_load, f64_store,
// ...) emitted once per module. Options.Memory selects whether they use
// memcpy or dereference a cast pointer.
//
// Known host imports (print, printChar, time, readArgv, readFile) lower to
// libc calls. Unknown imports and unsupported opcodes are skipped with a
// warning on the package logger, see SetLogger.
package cgen
