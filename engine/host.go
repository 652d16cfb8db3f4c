package engine

import (
	"context"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/wasm2c/ir"
)

// hostIO is the per-instance state builtins read and write.
type hostIO struct {
	stdout io.Writer
	stdin  io.Reader
	args   []string
	start  time.Time
	mu     sync.Mutex
}

type hostIOKey struct{}

func withHostIO(ctx context.Context, h *hostIO) context.Context {
	return context.WithValue(ctx, hostIOKey{}, h)
}

// hostIOFrom returns the instance state carried by ctx. Calls made without
// one write nowhere and read nothing.
func hostIOFrom(ctx context.Context) *hostIO {
	if h, ok := ctx.Value(hostIOKey{}).(*hostIO); ok {
		return h
	}
	return &hostIO{stdout: io.Discard, stdin: strings.NewReader(""), start: time.Now()}
}

func (h *hostIO) write(s string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, _ = io.WriteString(h.stdout, s)
}

// builtinFunc computes the result of a builtin from its decoded operands.
// The second result reports whether the builtin produced a value.
type builtinFunc func(ctx context.Context, mod api.Module, imp ir.Import, args []Value) (float64, bool)

var builtins = map[string]builtinFunc{}

func init() {
	for name, fn := range map[string]builtinFunc{
		"print":     hostPrint,
		"printChar": hostPrintChar,
		"time":      hostTime,
		"readArgv":  hostReadArgv,
		"readFile":  hostReadFile,
	} {
		builtins[name] = fn
		builtins["__Porffor_"+name] = fn
	}
}

// instantiateHost builds the "env" module exporting one function per import
// of m, with the signature the import declares.
func instantiateHost(ctx context.Context, r wazero.Runtime, m *ir.Module) (api.Module, error) {
	builder := r.NewHostModuleBuilder(ir.ImportModule)
	for _, imp := range m.Imports {
		builder.NewFunctionBuilder().
			WithGoModuleFunction(hostFunc(imp), apiTypes(imp.Params), apiTypes(imp.Results)).
			Export(imp.Name)
	}
	return builder.Instantiate(ctx)
}

func hostFunc(imp ir.Import) api.GoModuleFunc {
	fn, ok := builtins[imp.Name]
	if !ok {
		Logger().Warn("unsupported import", zap.String("import", imp.Name))
		fn = func(context.Context, api.Module, ir.Import, []Value) (float64, bool) { return 0, false }
	}
	return func(ctx context.Context, mod api.Module, stack []uint64) {
		args := make([]Value, len(imp.Params))
		for i, t := range imp.Params {
			args[i] = Value{Type: t, Bits: stack[i]}
		}
		res, _ := fn(ctx, mod, imp, args)
		for i, t := range imp.Results {
			stack[i] = fromFloat(t, res).Bits
		}
	}
}

func hostPrint(ctx context.Context, _ api.Module, _ ir.Import, args []Value) (float64, bool) {
	if len(args) == 0 {
		return 0, false
	}
	hostIOFrom(ctx).write(args[0].String() + "\n")
	return 0, false
}

func hostPrintChar(ctx context.Context, _ api.Module, _ ir.Import, args []Value) (float64, bool) {
	if len(args) == 0 {
		return 0, false
	}
	hostIOFrom(ctx).write(string([]byte{byte(int64(args[0].Float64()))}))
	return 0, false
}

func hostTime(ctx context.Context, _ api.Module, _ ir.Import, _ []Value) (float64, bool) {
	return float64(time.Since(hostIOFrom(ctx).start).Nanoseconds()) / 1e6, true
}

func hostReadArgv(ctx context.Context, mod api.Module, imp ir.Import, args []Value) (float64, bool) {
	if len(args) < 2 {
		return -1, true
	}
	h := hostIOFrom(ctx)
	index := uint32(args[0].Float64())
	if int(index) >= len(h.args) {
		return -1, true
	}
	return writeSized(mod, imp, uint32(args[1].Float64()), []byte(h.args[index])), true
}

func hostReadFile(ctx context.Context, mod api.Module, imp ir.Import, args []Value) (float64, bool) {
	if len(args) < 2 {
		return -1, true
	}
	h := hostIOFrom(ctx)
	pathPtr, outPtr := uint32(args[0].Float64()), uint32(args[1].Float64())

	var data []byte
	var err error
	if pathPtr == 0 {
		data, err = io.ReadAll(h.stdin)
	} else {
		path, ok := readCString(mod, pathPtr+4)
		if !ok {
			return -1, true
		}
		data, err = os.ReadFile(path)
	}
	if err != nil {
		Logger().Debug("readFile failed", zap.Error(err))
		return -1, true
	}
	return writeSized(mod, imp, outPtr, data), true
}

// writeSized stores data at ptr+4 and its length at ptr.
func writeSized(mod api.Module, imp ir.Import, ptr uint32, data []byte) float64 {
	mem := mod.Memory()
	if mem == nil {
		Logger().Warn("builtin needs linear memory", zap.String("import", imp.Name))
		return -1
	}
	if !mem.Write(ptr+4, data) || !mem.WriteUint32Le(ptr, uint32(len(data))) {
		Logger().Warn("builtin write out of bounds",
			zap.String("import", imp.Name), zap.Uint32("ptr", ptr), zap.Int("len", len(data)))
		return -1
	}
	return float64(len(data))
}

// readCString reads a NUL-terminated string starting at ptr.
func readCString(mod api.Module, ptr uint32) (string, bool) {
	mem := mod.Memory()
	if mem == nil {
		return "", false
	}
	var b strings.Builder
	for p := ptr; p < mem.Size(); p++ {
		c, ok := mem.ReadByte(p)
		if !ok {
			return "", false
		}
		if c == 0 {
			return b.String(), true
		}
		b.WriteByte(c)
	}
	return "", false
}
