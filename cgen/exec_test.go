package cgen_test

import (
	"context"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/wippyai/wasm2c/cgen"
	"github.com/wippyai/wasm2c/engine"
	"github.com/wippyai/wasm2c/ir"
	"github.com/wippyai/wasm2c/wasm"
)

// compileAndRun builds the generated source with the system C compiler and
// returns what the program printed.
func compileAndRun(t *testing.T, src string) string {
	t.Helper()
	cc, err := exec.LookPath("cc")
	if err != nil {
		t.Skip("no C compiler available")
	}
	dir := t.TempDir()
	file := filepath.Join(dir, "out.c")
	bin := filepath.Join(dir, "out")
	if err := os.WriteFile(file, []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}
	if out, err := exec.Command(cc, "-O1", "-o", bin, file, "-lm").CombinedOutput(); err != nil {
		t.Fatalf("cc: %v\n%s\n%s", err, out, src)
	}
	out, err := exec.Command(bin).Output()
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	return string(out)
}

// memoryModule stores 42 at address 16, reads it back and prints it along
// with the first data byte.
func memoryModule() *ir.Module {
	return &ir.Module{
		Pages:   1,
		Data:    []ir.DataSegment{{Offset: 8, Bytes: ir.Bytes("Hi")}},
		Imports: []ir.Import{printImport},
		Funcs: []*ir.Function{{
			Name:  "main",
			Index: 1,
			Wasm: []ir.Instr{
				ir.I32Const(16), ir.I32Const(42), ir.Mem(wasm.OpI32Store, 2, 0),
				ir.I32Const(0), ir.Mem(wasm.OpI32Load, 2, 16),
				ir.Op(wasm.OpF64ConvertI32S), ir.Call(0),
				ir.I32Const(8), ir.Mem(wasm.OpI32Load8U, 0, 0),
				ir.Op(wasm.OpF64ConvertI32S), ir.Call(0),
				ir.I32Const(4), ir.F64Const(2.5), ir.Mem(wasm.OpF64Store, 3, 32),
				ir.I32Const(36), ir.Mem(wasm.OpF64Load, 3, 0), ir.Call(0),
			},
		}},
	}
}

func TestExecute(t *testing.T) {
	tests := []struct {
		name string
		m    *ir.Module
		want string
	}{
		{"add", addModule(), "5\n"},
		{"loop", counterModule(), "10\n"},
		{"memory", memoryModule(), "42\n72\n2.5\n"},
	}
	for _, tt := range tests {
		for _, strategy := range []cgen.MemoryStrategy{cgen.MemoryCopy, cgen.MemoryPointerCast} {
			t.Run(tt.name+"/"+strategy.String(), func(t *testing.T) {
				opts := cgen.DefaultOptions()
				opts.Memory = strategy
				res := generate(t, tt.m, opts)
				if got := compileAndRun(t, res.Source); got != tt.want {
					t.Errorf("output = %q, want %q", got, tt.want)
				}
			})
		}
	}
}

func TestExecuteEvaluationOrder(t *testing.T) {
	// bump increments the global and returns its new value. main pushes
	// counter, calls bump, and adds: 1 + 2 must print 3 whatever order the
	// C compiler picks for operands.
	one := 1.0
	m := &ir.Module{
		Globals: ir.Globals{{Name: "counter", Type: wasm.ValI32, Init: &one}},
		Imports: []ir.Import{printImport},
		Funcs: []*ir.Function{
			{
				Name:       "bump",
				Index:      1,
				Returns:    []wasm.ValType{wasm.ValI32},
				ReturnType: ir.Static(wasm.ValI32),
				Wasm: []ir.Instr{
					ir.GlobalGet(0), ir.I32Const(1), ir.Op(wasm.OpI32Add), ir.GlobalSet(0),
					ir.GlobalGet(0),
				},
			},
			{
				Name:  "main",
				Index: 2,
				Wasm: []ir.Instr{
					ir.GlobalGet(0), ir.Call(1), ir.Op(wasm.OpI32Add),
					ir.Op(wasm.OpF64ConvertI32S), ir.Call(0),
				},
			},
		},
	}
	res := generate(t, m, cgen.DefaultOptions())
	if got := compileAndRun(t, res.Source); got != "3\n" {
		t.Errorf("output = %q\n%s", got, res.Source)
	}
}

// runBoth returns what the generated C and the wazero engine print for m.
func runBoth(t *testing.T, m *ir.Module) (c, ref string) {
	t.Helper()
	ref, err := engine.Run(context.Background(), m, ir.EntryName)
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	res := generate(t, m, cgen.DefaultOptions())
	return compileAndRun(t, res.Source), ref
}

func TestExecuteIntegerWrapping(t *testing.T) {
	m := &ir.Module{
		Imports: []ir.Import{printImport},
		Funcs: []*ir.Function{{
			Name:  "main",
			Index: 1,
			Locals: ir.Locals{
				{Name: "x", Type: wasm.ValI32, Idx: 0},
				{Name: "y", Type: wasm.ValI64, Idx: 1},
			},
			Wasm: []ir.Instr{
				// INT32_MAX + 1 < 0
				ir.I32Const(math.MaxInt32), ir.LocalSet(0),
				ir.LocalGet(0), ir.I32Const(1), ir.Op(wasm.OpI32Add),
				ir.I32Const(0), ir.Op(wasm.OpI32LtS),
				ir.Op(wasm.OpF64ConvertI32S), ir.Call(0),
				// INT64_MAX * 2 == -2
				ir.I64Const(math.MaxInt64), ir.LocalSet(1),
				ir.LocalGet(1), ir.I64Const(2), ir.Op(wasm.OpI64Mul),
				ir.I64Const(-2), ir.Op(wasm.OpI64Eq),
				ir.Op(wasm.OpF64ConvertI32S), ir.Call(0),
				// INT32_MIN - 1
				ir.I32Const(math.MinInt32), ir.I32Const(1), ir.Op(wasm.OpI32Sub),
				ir.Op(wasm.OpF64ConvertI32S), ir.Call(0),
			},
		}},
	}
	c, ref := runBoth(t, m)
	want := "1\n1\n2.14748e+09\n"
	if ref != want {
		t.Errorf("engine output = %q, want %q", ref, want)
	}
	if c != want {
		t.Errorf("C output = %q, want %q", c, want)
	}
}

// An i32 truncation used as a condition tests the float against zero, so
// fractions between -1 and 1 are true in C although the truncated value is
// zero. The engine executes the truncation.
func TestExecuteTruncatedCondition(t *testing.T) {
	m := &ir.Module{
		Imports: []ir.Import{printImport},
		Funcs: []*ir.Function{{
			Name:   "main",
			Index:  1,
			Locals: locals(wasm.ValF64, "f"),
			Wasm: []ir.Instr{
				ir.F64Const(0.5), ir.LocalSet(0),
				ir.LocalGet(0), ir.Op(wasm.OpI32TruncF64S),
				ir.If(wasm.BlockTypeVoid),
				ir.F64Const(1), ir.Call(0),
				ir.Else(),
				ir.F64Const(2), ir.Call(0),
				ir.End(),
				ir.F64Const(3), ir.LocalSet(0),
				ir.LocalGet(0), ir.Op(wasm.OpI32TruncF64S),
				ir.If(wasm.BlockTypeVoid),
				ir.F64Const(1), ir.Call(0),
				ir.End(),
			},
		}},
	}
	c, ref := runBoth(t, m)
	if c != "1\n1\n" {
		t.Errorf("C output = %q, want %q", c, "1\n1\n")
	}
	if ref != "2\n1\n" {
		t.Errorf("engine output = %q, want %q", ref, "2\n1\n")
	}
}
