package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"

	"github.com/wippyai/wasm2c/cgen"
	"github.com/wippyai/wasm2c/engine"
	"github.com/wippyai/wasm2c/errors"
	"github.com/wippyai/wasm2c/ir"
	"github.com/wippyai/wasm2c/wasm"
)

func main() {
	var (
		inFile      = flag.String("in", "", "Input module (.json IR or .wasm)")
		outFile     = flag.String("o", "", "Output C file (default stdout)")
		memcpy      = flag.Bool("memcpy", true, "Access memory through memcpy instead of pointer casts (default from "+cgen.EnvMemcpy+")")
		entry       = flag.String("entry", ir.EntryName, "Function emitted as C main")
		runIt       = flag.Bool("run", false, "Execute the module on wazero and print its output")
		argv        = flag.String("args", "", "Program arguments for readArgv (comma-separated)")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
		verbose     = flag.Bool("v", false, "Verbose logging")
		version     = flag.Bool("version", false, "Print version and exit")
	)
	flag.Parse()

	if *version {
		fmt.Println("wasm2c", cgen.Version)
		return
	}
	if *inFile == "" && flag.NArg() > 0 {
		*inFile = flag.Arg(0)
	}
	if *inFile == "" {
		fmt.Fprintln(os.Stderr, "Usage: wasm2c -in <module.json|module.wasm> [-o out.c] [-memcpy=false] [-entry name]")
		fmt.Fprintln(os.Stderr, "       wasm2c -in <module> -run [-args a,b]")
		fmt.Fprintln(os.Stderr, "       wasm2c -in <module> -i  (interactive mode)")
		os.Exit(1)
	}

	log, err := newLogger(*verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	cgen.SetLogger(log.Named("cgen"))
	engine.SetLogger(log.Named("engine"))

	opts := cgen.OptionsFromEnv()
	opts.Entry = *entry
	flag.Visit(func(f *flag.Flag) {
		if f.Name != "memcpy" {
			return
		}
		opts.Memory = cgen.MemoryCopy
		if !*memcpy {
			opts.Memory = cgen.MemoryPointerCast
		}
	})

	if *interactive {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			fmt.Fprintln(os.Stderr, "Error: -i needs a terminal")
			os.Exit(1)
		}
		if err := runInteractive(*inFile, opts); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	var args []string
	if *argv != "" {
		args = strings.Split(*argv, ",")
	}
	if err := run(*inFile, *outFile, opts, *runIt, args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newLogger builds a development logger for -v, otherwise a production
// logger that only reports warnings.
func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.DisableStacktrace = true
	return cfg.Build()
}

func run(inFile, outFile string, opts cgen.Options, execute bool, args []string) error {
	m, err := loadModule(inFile)
	if err != nil {
		return err
	}

	if execute {
		out, err := engine.Run(context.Background(), m, opts.Entry, append([]string{inFile}, args...)...)
		fmt.Print(out)
		if err != nil {
			return err
		}
		if outFile == "" {
			return nil
		}
	}

	res, err := cgen.Generate(m, opts)
	if err != nil {
		return err
	}
	if outFile == "" {
		_, err = os.Stdout.WriteString(res.Source)
		return err
	}
	if err := os.WriteFile(outFile, []byte(res.Source), 0o644); err != nil {
		return errors.Wrap(errors.PhaseGenerate, errors.KindInvalidInput, err, "write output")
	}
	return nil
}

// loadModule reads IR JSON, or converts a core wasm binary.
func loadModule(path string) (*ir.Module, error) {
	if strings.EqualFold(filepath.Ext(path), ".wasm") {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Load("read "+path, err)
		}
		mod, err := wasm.ParseModule(data)
		if err != nil {
			return nil, errors.Wrap(errors.PhaseLoad, errors.KindInvalidData, err, "parse "+path)
		}
		return ir.FromWasm(mod)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Load("open "+path, err)
	}
	defer f.Close()
	return ir.ReadJSON(f)
}
