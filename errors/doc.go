// Package errors provides structured error types for the wasm2c toolchain.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type carries the function and instruction being processed when
// the failure happened, plus an optional cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseGenerate, errors.KindStackUnderflow).
//		Func("main").
//		Op("i32.add").
//		Detail("need 2 values, have 1").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.StackUnderflow("main", "i32.add", 2, 1)
//	err := errors.BranchDepth("main", "br", 3, 1)
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
