package cgen

import (
	"go.uber.org/zap"

	"github.com/wippyai/wasm2c/ir"
	"github.com/wippyai/wasm2c/wasm"
)

// builtin lowers a call to a known host import.
type builtin struct {
	emit func(e *emitter, imp ir.Import)
	name string
}

var builtins = map[string]*builtin{}

func init() {
	for _, b := range []*builtin{
		{name: "print", emit: emitPrint},
		{name: "printChar", emit: emitPrintChar},
		{name: "time", emit: emitTime},
		{name: "readArgv", emit: emitReadArgv},
		{name: "readFile", emit: emitReadFile},
	} {
		builtins[b.name] = b
		builtins["__Porffor_"+b.name] = b
	}
}

func lookupBuiltin(name string) (*builtin, bool) {
	b, ok := builtins[name]
	return b, ok
}

// callImport lowers a call to an imported function. Unknown imports are
// skipped with a warning. Their operands are consumed and zero results
// pushed.
func (e *emitter) callImport(imp ir.Import) {
	if b, ok := lookupBuiltin(imp.Name); ok {
		b.emit(e, imp)
		return
	}
	Logger().Warn("unsupported import",
		zap.String("func", e.fn.Name),
		zap.String("import", imp.Name))
	for _, x := range e.popN(len(imp.Params)) {
		if impure(x) {
			e.w.line("(void)(%s);", Render(x))
		}
	}
	for _, t := range imp.Results {
		e.push(zeroOf(t))
	}
}

// importResult casts x to the result type the import declares. Imports
// without declared results keep the type of x.
func importResult(imp ir.Import, x Expr) Expr {
	if len(imp.Results) == 0 || imp.Results[0] == x.Type() {
		return x
	}
	t := imp.Results[0]
	return &Cast{X: x, To: cType(t), T: t}
}

func emitPrint(e *emitter, _ ir.Import) {
	e.s.includes.add("stdio.h", "")
	x := e.pop()
	var call *Call
	switch x.Type() {
	case wasm.ValF64, wasm.ValF32:
		call = &Call{Func: "printf", Args: []Expr{&Lit{Text: `"%g\n"`}, x}}
	case wasm.ValI64:
		call = &Call{Func: "printf", Args: []Expr{&Lit{Text: `"%lld\n"`}, &Cast{X: x, To: "long long", T: wasm.ValI64}}}
	default:
		call = &Call{Func: "printf", Args: []Expr{&Lit{Text: `"%i\n"`}, x}}
	}
	e.statement(Effects{Calls: true}, call)
}

func emitPrintChar(e *emitter, _ ir.Import) {
	e.s.includes.add("stdio.h", "")
	x := e.pop()
	e.statement(Effects{Calls: true}, &Call{Func: "putchar", Args: []Expr{&Cast{X: x, To: "int", T: wasm.ValI32}}})
}

const timeHelper = `f64 _time(void) {
#ifdef _WIN32
  LARGE_INTEGER _time_freq, _time_t;
  QueryPerformanceFrequency(&_time_freq);
  QueryPerformanceCounter(&_time_t);
  return ((f64)_time_t.QuadPart / _time_freq.QuadPart) * 1000.;
#else
  struct timespec _time_ts;
  clock_gettime(CLOCK_MONOTONIC, &_time_ts);
  return _time_ts.tv_nsec / 1000000. + _time_ts.tv_sec * 1000.;
#endif
}`

// emitTime pushes a monotonic millisecond clock reading.
func emitTime(e *emitter, imp ir.Import) {
	e.s.helper("_time", timeHelper)
	e.s.unixIncludes.add("time.h", "")
	e.s.winIncludes.add("windows.h", "")
	e.push(importResult(imp, &Call{Func: "_time", T: wasm.ValF64, Effects: Effects{Calls: true}}))
}

// writeLength stores the byte count in the 4-byte prefix at outPtr.
func writeLength(strategy MemoryStrategy) string {
	if strategy == MemoryCopy {
		return "i32 len = (i32)read;\n  memcpy(_memory + outPtr, &len, sizeof(len));"
	}
	return "*((i32*)(_memory + outPtr)) = (i32)read;"
}

func readArgvHelper(strategy MemoryStrategy) string {
	return `i32 _readArgv(u32 index, u32 outPtr) {
  if (index >= (u32)_argc) {
    return -1;
  }

  char* arg = _argv[index];

  u32 read = 0;
  char* out = _memory + outPtr + 4;
  char ch;
  while ((ch = *(arg++)) != 0) {
    out[read++] = ch;
  }

  ` + writeLength(strategy) + `
  return read;
}`
}

func readFileHelper(strategy MemoryStrategy) string {
	return `i32 _readFile(u32 pathPtr, u32 outPtr) {
  FILE* fp;
  if (pathPtr == 0) {
    fp = stdin;
  } else {
    char* path = _memory + pathPtr + 4;
    fp = fopen(path, "r");
    if (fp == NULL) {
      return -1;
    }
  }

  u32 read = 0;
  char* out = _memory + outPtr + 4;
  int ch;
  while ((ch = fgetc(fp)) != EOF) {
    out[read++] = (char)ch;
  }

  if (fp != stdin) {
    fclose(fp);
  }

  ` + writeLength(strategy) + `
  return read;
}`
}

// ioCall pops (arg, outPtr) and pushes a helper call whose i32 result is
// widened to f64 unless the import declares i32.
func ioCall(e *emitter, imp ir.Import, helper string) {
	e.requireMemory()
	if e.s.opts.Memory == MemoryCopy {
		e.s.includes.add("string.h", "")
	}
	ops := e.popN(2)
	call := &Call{
		Func: helper,
		Args: []Expr{
			&Cast{X: ops[0], To: "u32", T: wasm.ValI32},
			&Cast{X: ops[1], To: "u32", T: wasm.ValI32},
		},
		T:       wasm.ValI32,
		Effects: Effects{Calls: true, Memory: true},
	}
	var x Expr = &Cast{X: call, To: "f64", T: wasm.ValF64}
	if len(imp.Results) > 0 {
		x = importResult(imp, call)
	}
	e.push(x)
}

func emitReadArgv(e *emitter, imp ir.Import) {
	e.s.helper("_readArgv", readArgvHelper(e.s.opts.Memory))
	ioCall(e, imp, "_readArgv")
}

func emitReadFile(e *emitter, imp ir.Import) {
	e.s.includes.add("stdio.h", "")
	e.s.helper("_readFile", readFileHelper(e.s.opts.Memory))
	ioCall(e, imp, "_readFile")
}
