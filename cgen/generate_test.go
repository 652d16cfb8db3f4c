package cgen_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/wippyai/wasm2c/cgen"
	werrors "github.com/wippyai/wasm2c/errors"
	"github.com/wippyai/wasm2c/ir"
	"github.com/wippyai/wasm2c/wasm"
)

// locals names slots after the given names, in order.
func locals(t wasm.ValType, names ...string) ir.Locals {
	var ls ir.Locals
	for i, n := range names {
		ls = append(ls, ir.Local{Name: n, Type: t, Idx: uint32(i)})
	}
	return ls
}

var printImport = ir.Import{Name: "print", Params: []wasm.ValType{wasm.ValF64}}

// addModule is add(a, b) = a + b, called from main with 2 and 3.
func addModule() *ir.Module {
	return &ir.Module{
		Imports: []ir.Import{printImport},
		Funcs: []*ir.Function{
			{
				Name:       "add",
				Index:      1,
				Params:     []wasm.ValType{wasm.ValI32, wasm.ValI32},
				Locals:     locals(wasm.ValI32, "a", "b"),
				Returns:    []wasm.ValType{wasm.ValI32},
				ReturnType: ir.Static(wasm.ValI32),
				Wasm:       []ir.Instr{ir.LocalGet(0), ir.LocalGet(1), ir.Op(wasm.OpI32Add), ir.Return()},
			},
			{
				Name:  "main",
				Index: 2,
				Wasm: []ir.Instr{
					ir.I32Const(2), ir.I32Const(3), ir.Call(1),
					ir.Op(wasm.OpF64ConvertI32S), ir.Call(0),
				},
			},
		},
	}
}

// counterModule counts a local up to 10 in a loop and prints it.
func counterModule() *ir.Module {
	return &ir.Module{
		Imports: []ir.Import{printImport},
		Funcs: []*ir.Function{{
			Name:   "main",
			Index:  1,
			Locals: locals(wasm.ValI32, "i"),
			Wasm: []ir.Instr{
				ir.Block(wasm.BlockTypeVoid),
				ir.Loop(wasm.BlockTypeVoid),
				ir.LocalGet(0), ir.I32Const(1), ir.Op(wasm.OpI32Add), ir.LocalSet(0),
				ir.LocalGet(0), ir.I32Const(10), ir.Op(wasm.OpI32LtS), ir.BrIf(0),
				ir.End(),
				ir.End(),
				ir.LocalGet(0), ir.Op(wasm.OpF64ConvertI32S), ir.Call(0),
			},
		}},
	}
}

func generate(t *testing.T, m *ir.Module, opts cgen.Options) *cgen.Result {
	t.Helper()
	res, err := cgen.Generate(m, opts)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	return res
}

func TestGenerateAdd(t *testing.T) {
	res := generate(t, addModule(), cgen.DefaultOptions())

	add, ok := res.Function("add")
	if !ok {
		t.Fatal("add not emitted")
	}
	want := "i32 add(i32 a, i32 b) {\n  return (i32)((u32)(a) + (u32)(b));\n}\n"
	if add.Source != want {
		t.Errorf("add =\n%s\nwant\n%s", add.Source, want)
	}

	for _, s := range []string{
		"// generated by wasm2c " + cgen.Version + "\n",
		"#include <stdint.h>\n",
		"#include <stdio.h>\n",
		"typedef double f64;\n",
		"struct ReturnValue {\n  f64 value;\n  i32 type;\n};\n",
		"i32 add(i32 a, i32 b);\n",
		`printf("%g\n", (f64)(add(2, 3)));`,
		"int main(void) {\n",
		"\n  return 0;\n}\n",
	} {
		if !strings.Contains(res.Source, s) {
			t.Errorf("source missing %q\n%s", s, res.Source)
		}
	}
	if strings.Contains(res.Source, "int main(void);") {
		t.Error("main has a prototype")
	}
}

func TestGenerateEmissionOrder(t *testing.T) {
	m := addModule()
	m.Funcs = append(m.Funcs, &ir.Function{
		Name:  "unused",
		Index: 3,
		Wasm:  []ir.Instr{ir.Op(wasm.OpNop)},
	})
	res := generate(t, m, cgen.DefaultOptions())

	var names []string
	for _, f := range res.Functions {
		names = append(names, f.Name)
	}
	if got := strings.Join(names, ","); got != "add,main" {
		t.Errorf("emission order = %s, want add,main", got)
	}
	if !strings.HasSuffix(res.Source, res.Functions[len(res.Functions)-1].Source) {
		t.Error("main is not the last function in the file")
	}
}

func TestGenerateLoop(t *testing.T) {
	res := generate(t, counterModule(), cgen.DefaultOptions())
	main, _ := res.Function("main")

	want := `int main(void) {
  i32 i = 0;

  // block
    // loop
    j1:;
      i = (i32)((u32)(i) + (u32)(1));
      if (i < 10) {
        goto j1;
      }
    // end
  // end
  j0:;
  printf("%g\n", (f64)(i));

  return 0;
}
`
	if main.Source != want {
		t.Errorf("main =\n%s\nwant\n%s", main.Source, want)
	}
}

func TestGenerateBranchDepth(t *testing.T) {
	m := &ir.Module{Funcs: []*ir.Function{{
		Name:   "main",
		Locals: locals(wasm.ValI32, "x"),
		Wasm: []ir.Instr{
			ir.Block(wasm.BlockTypeVoid),
			ir.Block(wasm.BlockTypeVoid),
			ir.Block(wasm.BlockTypeVoid),
			ir.LocalGet(0), ir.BrIf(2),
			ir.LocalGet(0), ir.BrIf(1),
			ir.Br(0),
			ir.End(),
			ir.End(),
			ir.End(),
		},
	}}}
	res := generate(t, m, cgen.DefaultOptions())
	main, _ := res.Function("main")

	for _, s := range []string{
		"if (x != 0) {\n        goto j0;",
		"if (x != 0) {\n        goto j1;",
		"goto j2;",
		"j0:;", "j1:;", "j2:;",
	} {
		if !strings.Contains(main.Source, s) {
			t.Errorf("missing %q in\n%s", s, main.Source)
		}
	}
}

func TestGenerateBranchToFunction(t *testing.T) {
	m := &ir.Module{Funcs: []*ir.Function{
		{
			Name:       "pick",
			Index:      0,
			Params:     []wasm.ValType{wasm.ValI32},
			Locals:     locals(wasm.ValI32, "x"),
			Returns:    []wasm.ValType{wasm.ValI32},
			ReturnType: ir.Static(wasm.ValI32),
			Wasm: []ir.Instr{
				ir.Block(wasm.BlockTypeVoid),
				ir.I32Const(7), ir.LocalGet(0), ir.BrIf(1),
				ir.Op(wasm.OpDrop),
				ir.End(),
				ir.I32Const(9),
			},
		},
		{Name: "main", Index: 1, Wasm: []ir.Instr{ir.I32Const(1), ir.Call(0), ir.Op(wasm.OpDrop)}},
	}}
	res := generate(t, m, cgen.DefaultOptions())
	pick, _ := res.Function("pick")

	for _, s := range []string{"if (x != 0) {\n      return 7;\n    }", "return 9;\n"} {
		if !strings.Contains(pick.Source, s) {
			t.Errorf("missing %q in\n%s", s, pick.Source)
		}
	}
	main, _ := res.Function("main")
	if !strings.Contains(main.Source, "(void)(pick(1));") {
		t.Errorf("dropped call lost:\n%s", main.Source)
	}
}

func TestGenerateBlockResult(t *testing.T) {
	m := &ir.Module{
		Imports: []ir.Import{printImport},
		Funcs: []*ir.Function{{
			Name:   "main",
			Index:  1,
			Locals: locals(wasm.ValI32, "x"),
			Wasm: []ir.Instr{
				ir.LocalGet(0),
				ir.If(wasm.ValF64.BlockType()),
				ir.F64Const(1.5),
				ir.Else(),
				ir.F64Const(-2),
				ir.End(),
				ir.Call(0),
			},
		}},
	}
	res := generate(t, m, cgen.DefaultOptions())
	main, _ := res.Function("main")

	want := `  // if f64
  f64 _r0;
  if (x != 0) {
    _r0 = 1.5e+0;
  } else {
    _r0 = -2e+0;
  }
  // end
  j0:;
  printf("%g\n", _r0);
`
	if !strings.Contains(main.Source, want) {
		t.Errorf("main =\n%s\nwant fragment\n%s", main.Source, want)
	}
}

func TestGenerateBoxedReturn(t *testing.T) {
	m := &ir.Module{
		Imports: []ir.Import{printImport},
		Funcs: []*ir.Function{
			{
				Name:    "boxed",
				Index:   1,
				Returns: []wasm.ValType{wasm.ValF64, wasm.ValI32},
				Wasm:    []ir.Instr{ir.F64Const(4.5), ir.I32Const(1)},
			},
			{
				Name:  "main",
				Index: 2,
				Wasm:  []ir.Instr{ir.Call(1), ir.Op(wasm.OpDrop), ir.Call(0)},
			},
		},
	}
	res := generate(t, m, cgen.DefaultOptions())

	boxed, _ := res.Function("boxed")
	want := "struct ReturnValue boxed(void) {\n  return (struct ReturnValue){ 4.5e+0, 1 };\n}\n"
	if boxed.Source != want {
		t.Errorf("boxed =\n%s\nwant\n%s", boxed.Source, want)
	}
	main, _ := res.Function("main")
	for _, s := range []string{"struct ReturnValue _0;", "_0 = boxed();", `printf("%g\n", _0.value);`} {
		if !strings.Contains(main.Source, s) {
			t.Errorf("missing %q in\n%s", s, main.Source)
		}
	}
}

func TestGenerateDataPrologue(t *testing.T) {
	m := &ir.Module{
		Pages: 1,
		Data:  []ir.DataSegment{{Offset: 8, Bytes: ir.Bytes("Hi")}},
		Funcs: []*ir.Function{{Name: "main"}},
	}

	tests := []struct {
		name     string
		strategy cgen.MemoryStrategy
		want     string
	}{
		{"copy", cgen.MemoryCopy, "  memcpy(_memory + 8, (unsigned char[]){72,105}, 2);\n"},
		{"pointer", cgen.MemoryPointerCast, "  _memory[8]=(u8)72;_memory[9]=(u8)105;\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := cgen.DefaultOptions()
			opts.Memory = tt.strategy
			res := generate(t, m, opts)
			main, _ := res.Function("main")
			if !strings.HasPrefix(main.Source, "int main(void) {\n"+tt.want+"\n") {
				t.Errorf("main =\n%s", main.Source)
			}
			if !strings.Contains(res.Source, "char _memory[65536];") {
				t.Error("memory array missing")
			}
		})
	}
}

func TestGenerateMemoryHelpers(t *testing.T) {
	m := &ir.Module{
		Pages: 1,
		Funcs: []*ir.Function{{
			Name:   "main",
			Locals: locals(wasm.ValI32, "p", "v"),
			Wasm: []ir.Instr{
				ir.LocalGet(0), ir.Mem(wasm.OpI32Load, 2, 0), ir.LocalSet(1),
				ir.LocalGet(0), ir.Mem(wasm.OpI32Load, 2, 4), ir.LocalSet(1),
				ir.LocalGet(0), ir.LocalGet(1), ir.Mem(wasm.OpI32Store8, 0, 1),
			},
		}},
	}

	tests := []struct {
		name     string
		strategy cgen.MemoryStrategy
		load     string
		store    string
	}{
		{
			name:     "copy",
			strategy: cgen.MemoryCopy,
			load:     "i32 i32_load(i32 align, i32 offset, i32 pointer) {\n  i32 out;\n  memcpy(&out, _memory + offset + pointer, sizeof(out));\n  return out;\n}",
			store:    "void i32_store8(i32 align, i32 offset, i32 pointer, u8 value) {\n  memcpy(_memory + offset + pointer, &value, sizeof(value));\n}",
		},
		{
			name:     "pointer",
			strategy: cgen.MemoryPointerCast,
			load:     "i32 i32_load(i32 align, i32 offset, i32 pointer) {\n  return *((i32*)(_memory + offset + pointer));\n}",
			store:    "void i32_store8(i32 align, i32 offset, i32 pointer, u8 value) {\n  *((u8*)(_memory + offset + pointer)) = value;\n}",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := cgen.DefaultOptions()
			opts.Memory = tt.strategy
			res := generate(t, m, opts)

			if n := strings.Count(res.Source, "i32 i32_load("); n != 1 {
				t.Errorf("i32_load defined %d times", n)
			}
			if !strings.Contains(res.Source, tt.load) {
				t.Errorf("load helper missing:\n%s", res.Source)
			}
			if !strings.Contains(res.Source, tt.store) {
				t.Errorf("store helper missing:\n%s", res.Source)
			}
			if got := strings.Join(res.Helpers, ","); got != "i32_load,i32_store8" {
				t.Errorf("helpers = %s", got)
			}
			main, _ := res.Function("main")
			for _, s := range []string{"v = i32_load(2, 0, p);", "v = i32_load(2, 4, p);", "i32_store8(0, 1, p, v);"} {
				if !strings.Contains(main.Source, s) {
					t.Errorf("missing %q in\n%s", s, main.Source)
				}
			}
		})
	}
}

func TestGenerateSpillsBeforeWrite(t *testing.T) {
	// x + 1 is computed before x is overwritten, then stored to y.
	m := &ir.Module{Funcs: []*ir.Function{{
		Name:   "main",
		Locals: locals(wasm.ValI32, "x", "y"),
		Wasm: []ir.Instr{
			ir.LocalGet(0), ir.I32Const(1), ir.Op(wasm.OpI32Add),
			ir.I32Const(5), ir.LocalSet(0),
			ir.LocalSet(1),
		},
	}}}
	res := generate(t, m, cgen.DefaultOptions())
	main, _ := res.Function("main")

	want := "  i32 _tmp0;\n\n  _tmp0 = (i32)((u32)(x) + (u32)(1));\n  x = 5;\n  y = _tmp0;\n"
	if !strings.Contains(main.Source, want) {
		t.Errorf("main =\n%s\nwant fragment\n%s", main.Source, want)
	}
}

func TestGenerateConditions(t *testing.T) {
	tests := []struct {
		name string
		code []ir.Instr
		want string
	}{
		{"comparison", []ir.Instr{ir.LocalGet(0), ir.I32Const(3), ir.Op(wasm.OpI32GtS)}, "if (x > 3) {"},
		{"plain value", []ir.Instr{ir.LocalGet(0)}, "if (x != 0) {"},
		{"eqz of value", []ir.Instr{ir.LocalGet(0), ir.Op(wasm.OpI32Eqz)}, "if (x == 0) {"},
		{"eqz of comparison", []ir.Instr{ir.LocalGet(0), ir.I32Const(3), ir.Op(wasm.OpI32LtS), ir.Op(wasm.OpI32Eqz)}, "if (!(x < 3)) {"},
		{"truncated float", []ir.Instr{ir.LocalGet(1), ir.Op(wasm.OpI32TruncF64S)}, "if (f != 0e+0) {"},
		{"eqz of truncated float", []ir.Instr{ir.LocalGet(1), ir.Op(wasm.OpI32TruncF64S), ir.Op(wasm.OpI32Eqz)}, "if (f == 0e+0) {"},
		{"unsigned", []ir.Instr{ir.LocalGet(0), ir.I32Const(3), ir.Op(wasm.OpI32LtU)}, "if ((u32)(x) < (u32)(3)) {"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code := append(append([]ir.Instr{}, tt.code...), ir.If(wasm.BlockTypeVoid), ir.End())
			m := &ir.Module{Funcs: []*ir.Function{{
				Name: "main",
				Locals: ir.Locals{
					{Name: "x", Type: wasm.ValI32, Idx: 0},
					{Name: "f", Type: wasm.ValF64, Idx: 1},
				},
				Wasm: code,
			}}}
			res := generate(t, m, cgen.DefaultOptions())
			if !strings.Contains(res.Source, tt.want) {
				t.Errorf("missing %q in\n%s", tt.want, res.Source)
			}
		})
	}
}

func TestGenerateExpressions(t *testing.T) {
	tests := []struct {
		name string
		code []ir.Instr
		want string
	}{
		{"nested", []ir.Instr{ir.LocalGet(0), ir.LocalGet(1), ir.Op(wasm.OpI32Add), ir.I32Const(2), ir.Op(wasm.OpI32Mul)}, "r = (i32)(((u32)(a) + (u32)(b)) * (u32)(2));"},
		{"unsigned div", []ir.Instr{ir.LocalGet(0), ir.LocalGet(1), ir.Op(wasm.OpI32DivU)}, "r = (i32)((u32)(a) / (u32)(b));"},
		{"shift literal", []ir.Instr{ir.LocalGet(0), ir.I32Const(33), ir.Op(wasm.OpI32ShrS)}, "r = a >> 1;"},
		{"shift variable", []ir.Instr{ir.LocalGet(0), ir.LocalGet(1), ir.Op(wasm.OpI32ShrS)}, "r = a >> (b & 31);"},
		{"select", []ir.Instr{ir.LocalGet(0), ir.LocalGet(1), ir.LocalGet(0), ir.Op(wasm.OpSelect)}, "r = (a != 0) ? a : b;"},
		{"min int", []ir.Instr{ir.I32Const(-2147483648)}, "r = (-2147483647-1);"},
		{"extend8", []ir.Instr{ir.LocalGet(0), ir.Op(wasm.OpI32Extend8S)}, "r = (i32)(i8)(a);"},
		{"sat trunc", []ir.Instr{ir.F64Const(2.5), ir.Misc(wasm.MiscI32TruncSatF64U)}, "r = (u32)(2.5e+0);"},
		{"memory size", []ir.Instr{{wasm.OpMemorySize, 0}}, "r = 1;"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code := append([]ir.Instr{}, tt.code...)
			code = append(code, ir.LocalSet(2))
			m := &ir.Module{Pages: 1, Funcs: []*ir.Function{{
				Name:   "main",
				Locals: locals(wasm.ValI32, "a", "b", "r"),
				Wasm:   code,
			}}}
			res := generate(t, m, cgen.DefaultOptions())
			if !strings.Contains(res.Source, tt.want) {
				t.Errorf("missing %q in\n%s", tt.want, res.Source)
			}
		})
	}
}

func TestGenerateFloatOps(t *testing.T) {
	m := &ir.Module{Funcs: []*ir.Function{{
		Name:   "main",
		Locals: locals(wasm.ValF64, "a", "b", "r"),
		Wasm: []ir.Instr{
			ir.LocalGet(0), ir.LocalGet(1), ir.Op(wasm.OpF64Min), ir.LocalSet(2),
			ir.LocalGet(0), ir.Op(wasm.OpF64Sqrt), ir.Op(wasm.OpF64Neg), ir.LocalSet(2),
			ir.LocalGet(0), ir.Op(wasm.OpF64Trunc), ir.LocalSet(2),
		},
	}}}
	res := generate(t, m, cgen.DefaultOptions())
	for _, s := range []string{
		"#include <math.h>",
		"_tmp0a = a;\n  _tmp0b = b;\n  r = (_tmp0a > _tmp0b) ? _tmp0b : _tmp0a;",
		"r = -(sqrt(a));",
		"r = trunc(a);",
	} {
		if !strings.Contains(res.Source, s) {
			t.Errorf("missing %q in\n%s", s, res.Source)
		}
	}
}

func TestGenerateGlobals(t *testing.T) {
	seven, half := 7.0, 0.5
	m := &ir.Module{
		Globals: ir.Globals{
			{Name: "count", Type: wasm.ValI32, Idx: 0, Init: &seven},
			{Name: "ratio", Type: wasm.ValF64, Idx: 1, Init: &half},
			{Name: "big", Type: wasm.ValI64, Idx: 2},
		},
		Funcs: []*ir.Function{{
			Name: "main",
			Wasm: []ir.Instr{ir.GlobalGet(0), ir.I32Const(1), ir.Op(wasm.OpI32Add), ir.GlobalSet(0)},
		}},
	}
	res := generate(t, m, cgen.DefaultOptions())
	for _, s := range []string{"i32 count = 7;\n", "f64 ratio = 5e-1;\n", "i64 big = 0;\n", "count = (i32)((u32)(count) + (u32)(1));"} {
		if !strings.Contains(res.Source, s) {
			t.Errorf("missing %q in\n%s", s, res.Source)
		}
	}
}

func TestGenerateThrow(t *testing.T) {
	m := &ir.Module{
		Exceptions: []ir.Exception{{Constructor: "TypeError", Message: `bad "value"`}},
		Funcs: []*ir.Function{{
			Name: "main",
			Wasm: []ir.Instr{ir.I32Const(0), ir.Throw(0), ir.I32Const(1), ir.Op(wasm.OpDrop)},
		}},
	}
	res := generate(t, m, cgen.DefaultOptions())
	for _, s := range []string{
		`printf("Uncaught %s: %s\n", "TypeError", "bad \"value\"");`,
		"exit(1);",
		"#include <stdlib.h>",
	} {
		if !strings.Contains(res.Source, s) {
			t.Errorf("missing %q in\n%s", s, res.Source)
		}
	}
}

func TestGenerateBuiltins(t *testing.T) {
	m := &ir.Module{
		Pages: 1,
		Imports: []ir.Import{
			{Name: "time", Results: []wasm.ValType{wasm.ValF64}},
			{Name: "__Porffor_readArgv", Params: []wasm.ValType{wasm.ValI32, wasm.ValI32}},
			{Name: "printChar", Params: []wasm.ValType{wasm.ValF64}},
		},
		Funcs: []*ir.Function{{
			Name:   "main",
			Index:  3,
			Locals: locals(wasm.ValF64, "t", "n"),
			Wasm: []ir.Instr{
				ir.Call(0), ir.LocalSet(0),
				ir.I32Const(1), ir.I32Const(64), ir.Call(1), ir.LocalSet(1),
				ir.F64Const(72), ir.Call(2),
			},
		}},
	}
	res := generate(t, m, cgen.DefaultOptions())
	for _, s := range []string{
		"#ifdef _WIN32\n#include <windows.h>\n#else\n#include <time.h>\n#endif\n",
		"int _argc; char** _argv;",
		"f64 _time(void) {",
		"i32 _readArgv(u32 index, u32 outPtr) {",
		"int main(int argc, char* argv[]) {\n  _argc = argc; _argv = argv;\n",
		"t = _time();",
		"n = (f64)(_readArgv((u32)(1), (u32)(64)));",
		"putchar((int)(7.2e+1));",
	} {
		if !strings.Contains(res.Source, s) {
			t.Errorf("missing %q in\n%s", s, res.Source)
		}
	}
}

func TestGenerateHelperLikeNames(t *testing.T) {
	tests := []struct {
		name, want string
	}{
		{"f64_store", "f64_store_1"},
		{"i32_load8_u", "i32_load8_u_1"},
		{"i64_load_x", "i64_load_x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &ir.Module{Funcs: []*ir.Function{
				{Name: tt.name, Locals: locals(wasm.ValI32, "i32_store16"), Wasm: []ir.Instr{ir.Op(wasm.OpNop)}},
				{Name: "main", Index: 1, Wasm: []ir.Instr{ir.Call(0)}},
			}}

			done := make(chan *cgen.Result, 1)
			go func() {
				res, err := cgen.Generate(m, cgen.DefaultOptions())
				if err != nil {
					t.Errorf("Generate: %v", err)
				}
				done <- res
			}()
			select {
			case res := <-done:
				if res == nil {
					return
				}
				f, _ := res.Function(tt.name)
				if f.CName != tt.want {
					t.Errorf("CName = %q, want %q", f.CName, tt.want)
				}
				if !strings.Contains(f.Source, "i32 i32_store16_1 = 0;") {
					t.Errorf("local not renamed:\n%s", f.Source)
				}
			case <-time.After(5 * time.Second):
				t.Fatalf("Generate did not return for a function named %s", tt.name)
			}
		})
	}
}

func TestGenerateErrors(t *testing.T) {
	tests := []struct {
		name string
		kind werrors.Kind
		code []ir.Instr
	}{
		{"underflow", werrors.KindStackUnderflow, []ir.Instr{ir.Op(wasm.OpI32Add)}},
		{"underflow across block", werrors.KindStackUnderflow, []ir.Instr{
			ir.I32Const(1), ir.Block(wasm.BlockTypeVoid), ir.Op(wasm.OpDrop), ir.End(),
		}},
		{"missing return value", werrors.KindStackUnderflow, nil},
		{"call_indirect", werrors.KindUnsupported, []ir.Instr{
			ir.I32Const(1), ir.I32Const(0), {wasm.OpCallIndirect, 0, 0}, ir.Op(wasm.OpDrop),
		}},
		{"memory without pages", werrors.KindInvalidData, []ir.Instr{
			ir.I32Const(0), ir.Mem(wasm.OpI32Load, 2, 0), ir.Op(wasm.OpDrop),
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &ir.Function{Name: "main", Wasm: tt.code}
			m := &ir.Module{Funcs: []*ir.Function{f}}
			if tt.name == "missing return value" {
				f.Name = "get"
				f.Returns = []wasm.ValType{wasm.ValI32}
				f.ReturnType = ir.Static(wasm.ValI32)
				m.Funcs = append(m.Funcs, &ir.Function{Name: "main", Index: 1, Wasm: []ir.Instr{ir.Call(0), ir.Op(wasm.OpDrop)}})
			}

			res, err := cgen.Generate(m, cgen.DefaultOptions())
			if err == nil {
				t.Fatalf("expected error, got\n%s", res.Source)
			}
			if res != nil {
				t.Error("partial result returned")
			}
			var e *werrors.Error
			if !errors.As(err, &e) {
				t.Fatalf("error %T is not *errors.Error", err)
			}
			if e.Kind != tt.kind {
				t.Errorf("kind = %s, want %s (%v)", e.Kind, tt.kind, err)
			}
		})
	}
}

func TestGenerateMissingEntry(t *testing.T) {
	_, err := cgen.Generate(addModule(), cgen.Options{Entry: "start"})
	var e *werrors.Error
	if !errors.As(err, &e) || e.Kind != werrors.KindNotFound {
		t.Errorf("err = %v, want not_found", err)
	}
}

func TestGenerateDeterministic(t *testing.T) {
	a := generate(t, addModule(), cgen.DefaultOptions())
	b := generate(t, addModule(), cgen.DefaultOptions())
	if a.Source != b.Source {
		t.Error("two runs produced different output")
	}
}

func TestGenerateSanitizedNames(t *testing.T) {
	m := &ir.Module{Funcs: []*ir.Function{
		{
			Name:       "my-func",
			Index:      0,
			Params:     []wasm.ValType{wasm.ValI32},
			Locals:     locals(wasm.ValI32, "int"),
			Returns:    []wasm.ValType{wasm.ValI32},
			ReturnType: ir.Static(wasm.ValI32),
			Wasm:       []ir.Instr{ir.LocalGet(0)},
		},
		{Name: "main", Index: 1, Wasm: []ir.Instr{ir.I32Const(1), ir.Call(0), ir.Op(wasm.OpDrop)}},
	}}
	res := generate(t, m, cgen.DefaultOptions())
	f, _ := res.Function("my-func")
	if f.CName != "myttfunc" {
		t.Errorf("CName = %q", f.CName)
	}
	if !strings.HasPrefix(f.Source, "i32 myttfunc(i32 int_1) {\n  return int_1;\n") {
		t.Errorf("source =\n%s", f.Source)
	}
}
