package cgen

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/wippyai/wasm2c/errors"
	"github.com/wippyai/wasm2c/ir"
	"github.com/wippyai/wasm2c/wasm"
)

const preface = `typedef uint8_t u8;
typedef uint16_t u16;
typedef int8_t i8;
typedef int16_t i16;
typedef int32_t i32;
typedef uint32_t u32;
typedef int64_t i64;
typedef uint64_t u64;
typedef float f32;
typedef double f64;

const f64 NaN = 0e+0/0e+0;

struct ReturnValue {
  f64 value;
  i32 type;
};`

// Result is one generated translation unit.
type Result struct {
	// Source is the complete C file.
	Source string
	// Functions holds each emitted function in emission order. Callees
	// precede callers and the entry function is last.
	Functions []FunctionSource
	// Helpers names the prepended definitions, in order.
	Helpers []string
}

// FunctionSource is the C text of one emitted function.
type FunctionSource struct {
	Name   string
	CName  string
	Source string
}

// Function returns the emitted function with the given IR name.
func (r *Result) Function(name string) (FunctionSource, bool) {
	for _, f := range r.Functions {
		if f.Name == name {
			return f, true
		}
	}
	return FunctionSource{}, false
}

// Generate translates m into a single C translation unit.
//
// Only functions reachable from the entry through call instructions are
// emitted. Generation stops at the first fatal error and returns no partial
// output.
func Generate(m *ir.Module, opts Options) (res *Result, err error) {
	opts = opts.withDefaults()
	if err := m.Validate(opts.Entry); err != nil {
		return nil, err
	}

	defer func() {
		if r := recover(); r != nil {
			e, ok := r.(*errors.Error)
			if !ok {
				panic(r)
			}
			res, err = nil, e
		}
	}()

	s := newSession(m, opts)
	s.prepare()
	Logger().Debug("generating",
		zap.String("entry", opts.Entry),
		zap.Int("funcs", len(m.Funcs)),
		zap.Stringer("memory", opts.Memory))
	s.emitFunction(s.entry)
	return s.assemble(), nil
}

// prepare registers the module-level definitions that do not depend on
// function bodies.
func (s *session) prepare() {
	if s.mod.Pages > 0 {
		s.prepend.add("_memory", fmt.Sprintf("char _memory[%d];", s.mod.Pages*s.opts.PageSize))
		if s.opts.Memory == MemoryCopy {
			s.includes.add("string.h", "")
		}
	}
	if s.usesArgv() {
		s.prepend.add("argv", "int _argc; char** _argv;")
		s.prologue.add("argv", "_argc = argc; _argv = argv;")
	}
	if len(s.mod.Data) > 0 {
		s.prologue.add("data", dataPrologue(s.mod.Data, s.opts.Memory))
	}
}

func (s *session) assemble() *Result {
	var w codeWriter
	w.line("// generated by wasm2c %s", s.opts.Version)

	if s.winIncludes.len() > 0 || s.unixIncludes.len() > 0 {
		w.line("#ifdef _WIN32")
		for _, inc := range s.winIncludes.keys {
			w.line("#include <%s>", inc)
		}
		w.line("#else")
		for _, inc := range s.unixIncludes.keys {
			w.line("#include <%s>", inc)
		}
		w.line("#endif")
		w.blank()
	}
	for _, inc := range s.includes.keys {
		w.line("#include <%s>", inc)
	}
	w.blank()
	w.block(preface)
	w.blank()

	res := &Result{}
	for i, name := range s.prepend.keys {
		w.block(s.prepend.vals[name])
		if i == s.prepend.len()-1 || !isVarDecl(name) || !isVarDecl(s.prepend.keys[i+1]) {
			w.blank()
		}
		if !isVarDecl(name) {
			res.Helpers = append(res.Helpers, name)
		}
	}

	if len(s.mod.Globals) > 0 {
		for _, g := range s.mod.Globals {
			v := s.globals[g.Idx]
			w.line("%s %s = %s;", cType(g.Type), v.Name, globalInit(g))
		}
		w.blank()
	}

	protos := 0
	for _, f := range s.funcs {
		if f.fn == s.entry {
			continue
		}
		w.line("%s;", f.signature)
		protos++
	}
	if protos > 0 {
		w.blank()
	}

	for i, f := range s.funcs {
		if i > 0 {
			w.blank()
		}
		w.b.WriteString(f.body)
		res.Functions = append(res.Functions, FunctionSource{Name: f.fn.Name, CName: f.cname, Source: f.body})
	}
	res.Source = w.String()
	return res
}

// isVarDecl reports whether a prepend key names a variable definition
// rather than a helper function.
func isVarDecl(key string) bool {
	return key == "_memory" || key == "argv"
}

// globalInit formats the initializer of g for its C type.
func globalInit(g ir.Global) string {
	if g.Init == nil {
		return Render(zeroOf(g.Type))
	}
	v := *g.Init
	if math.IsNaN(v) {
		// NaN is a variable, not a constant expression.
		return "(0e+0/0e+0)"
	}
	switch g.Type {
	case wasm.ValF64:
		return FormatF64(v)
	case wasm.ValF32:
		return "(f32)" + FormatF64(v)
	default:
		return Render(intLit(int64(v), g.Type))
	}
}
