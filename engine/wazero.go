package engine

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/wasm2c/errors"
	"github.com/wippyai/wasm2c/ir"
)

// WazeroEngine owns one wazero runtime and hosts at most one IR module,
// since the module's imports define the signatures of the "env" host module.
type WazeroEngine struct {
	runtime wazero.Runtime
	mu      sync.Mutex
	loaded  bool
}

// Config holds configuration for engine creation
type Config struct {
	// MemoryLimitPages sets the maximum memory per instance in pages (64KB each).
	// 0 means the wazero default.
	MemoryLimitPages uint32

	// Interpreter selects the wazero interpreter instead of the compiler.
	Interpreter bool
}

// NewWazeroEngine creates a new wazero-based engine
func NewWazeroEngine(ctx context.Context) (*WazeroEngine, error) {
	return NewWazeroEngineWithConfig(ctx, nil)
}

// NewWazeroEngineWithConfig creates a new engine with custom configuration
func NewWazeroEngineWithConfig(ctx context.Context, cfg *Config) (*WazeroEngine, error) {
	runtimeCfg := wazero.NewRuntimeConfig()
	if cfg != nil {
		if cfg.Interpreter {
			runtimeCfg = wazero.NewRuntimeConfigInterpreter()
		}
		if cfg.MemoryLimitPages > 0 {
			runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
		}
	}
	return &WazeroEngine{runtime: wazero.NewRuntimeWithConfig(ctx, runtimeCfg)}, nil
}

func (e *WazeroEngine) Close(ctx context.Context) error {
	return e.runtime.Close(ctx)
}

// WazeroModule is an IR module compiled for this engine.
type WazeroModule struct {
	engine   *WazeroEngine
	ir       *ir.Module
	compiled wazero.CompiledModule
}

// LoadModule lowers m to core wasm, instantiates its host imports and
// compiles it.
func (e *WazeroEngine) LoadModule(ctx context.Context, m *ir.Module) (*WazeroModule, error) {
	if err := m.Validate(""); err != nil {
		return nil, err
	}
	bin, err := ir.LowerBinary(m)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.loaded {
		return nil, errors.InvalidInput(errors.PhaseRuntime, "engine already hosts a module")
	}

	if _, err := instantiateHost(ctx, e.runtime, m); err != nil {
		return nil, errors.Instantiation(err)
	}
	e.loaded = true

	compiled, err := e.runtime.CompileModule(ctx, bin)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseRuntime, errors.KindInvalidData, err, "compile lowered module")
	}

	Logger().Debug("module loaded", zap.Stringer("module", m), zap.Int("bytes", len(bin)))
	return &WazeroModule{engine: e, ir: m, compiled: compiled}, nil
}

// IR returns the module this was loaded from.
func (m *WazeroModule) IR() *ir.Module {
	return m.ir
}

// InstanceConfig holds the I/O of one instance.
type InstanceConfig struct {
	// Stdout receives print and printChar output. nil captures it for
	// WazeroInstance.Output.
	Stdout io.Writer
	// Stdin is read by readFile with a null path. nil is empty input.
	Stdin io.Reader
	// Args is the argument vector readArgv indexes. Args[0] is the program
	// name, as in C.
	Args []string
}

func (m *WazeroModule) Instantiate(ctx context.Context) (*WazeroInstance, error) {
	return m.InstantiateWithConfig(ctx, nil)
}

// InstantiateWithConfig creates an instance with custom configuration
func (m *WazeroModule) InstantiateWithConfig(ctx context.Context, cfg *InstanceConfig) (*WazeroInstance, error) {
	if cfg == nil {
		cfg = &InstanceConfig{}
	}
	inst := &WazeroInstance{
		module: m,
		io: &hostIO{
			stdout: cfg.Stdout,
			stdin:  cfg.Stdin,
			args:   cfg.Args,
			start:  time.Now(),
		},
	}
	if inst.io.stdout == nil {
		inst.captured = &bytes.Buffer{}
		inst.io.stdout = inst.captured
	}
	if inst.io.stdin == nil {
		inst.io.stdin = strings.NewReader("")
	}

	// anonymous, so one module can be instantiated many times; no start
	// functions, so an entry named _start only runs when called
	modConfig := wazero.NewModuleConfig().WithName("").WithStartFunctions()
	instance, err := m.engine.runtime.InstantiateModule(withHostIO(ctx, inst.io), m.compiled, modConfig)
	if err != nil {
		return nil, errors.Instantiation(err)
	}
	inst.instance = instance
	return inst, nil
}

// WazeroInstance is a running instance of a WazeroModule.
type WazeroInstance struct {
	module   *WazeroModule
	instance api.Module
	io       *hostIO
	captured *bytes.Buffer
}

// Call invokes the exported function name. Arguments are converted to the
// declared parameter types.
func (i *WazeroInstance) Call(ctx context.Context, name string, args ...Value) ([]Value, error) {
	f := i.module.ir.Func(name)
	if f == nil {
		return nil, errors.NotFound(errors.PhaseRuntime, "function", name)
	}
	if len(args) != len(f.Params) {
		return nil, errors.New(errors.PhaseRuntime, errors.KindInvalidInput).
			Func(name).Detail("want %d arguments, got %d", len(f.Params), len(args)).Build()
	}
	fn := i.instance.ExportedFunction(name)
	if fn == nil {
		return nil, errors.NotFound(errors.PhaseRuntime, "export", name)
	}

	params := make([]uint64, len(args))
	for n, a := range args {
		if a.Type != f.Params[n] {
			a = fromFloat(f.Params[n], a.Float64())
		}
		params[n] = a.Bits
	}

	raw, err := fn.Call(withHostIO(ctx, i.io), params...)
	if err != nil {
		return nil, errors.Trap(name, err)
	}
	out := make([]Value, len(raw))
	for n, bits := range raw {
		out[n] = Value{Type: f.Returns[n], Bits: bits}
	}
	return out, nil
}

// Run calls the entry function with no arguments.
func (i *WazeroInstance) Run(ctx context.Context, entry string) error {
	_, err := i.Call(ctx, entry)
	return err
}

// Output returns what the instance printed when no Stdout was configured.
func (i *WazeroInstance) Output() string {
	if i.captured == nil {
		return ""
	}
	i.io.mu.Lock()
	defer i.io.mu.Unlock()
	return i.captured.String()
}

func (i *WazeroInstance) Close(ctx context.Context) error {
	return i.instance.Close(ctx)
}

// Run executes the entry function of m on a fresh engine and returns what
// it printed. Output printed before a trap is returned with the error.
func Run(ctx context.Context, m *ir.Module, entry string, args ...string) (string, error) {
	eng, err := NewWazeroEngine(ctx)
	if err != nil {
		return "", err
	}
	defer eng.Close(ctx)

	mod, err := eng.LoadModule(ctx, m)
	if err != nil {
		return "", err
	}
	inst, err := mod.InstantiateWithConfig(ctx, &InstanceConfig{Args: args})
	if err != nil {
		return "", err
	}
	defer inst.Close(ctx)

	err = inst.Run(ctx, entry)
	return inst.Output(), err
}

// Call invokes one function of m on a fresh engine and returns its results
// along with what it printed.
func Call(ctx context.Context, m *ir.Module, name string, args ...Value) ([]Value, string, error) {
	eng, err := NewWazeroEngine(ctx)
	if err != nil {
		return nil, "", err
	}
	defer eng.Close(ctx)

	mod, err := eng.LoadModule(ctx, m)
	if err != nil {
		return nil, "", err
	}
	inst, err := mod.Instantiate(ctx)
	if err != nil {
		return nil, "", err
	}
	defer inst.Close(ctx)

	res, err := inst.Call(ctx, name, args...)
	return res, inst.Output(), err
}
