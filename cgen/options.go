package cgen

import (
	"github.com/xyproto/env/v2"

	"github.com/wippyai/wasm2c/ir"
	"github.com/wippyai/wasm2c/wasm"
)

// Version is stamped into the first line of every generated file.
const Version = "0.1.0"

// MemoryStrategy selects how load and store helpers touch linear memory.
type MemoryStrategy int

const (
	// MemoryCopy moves bytes with memcpy. Portable and free of aliasing issues.
	MemoryCopy MemoryStrategy = iota
	// MemoryPointerCast dereferences a cast pointer into the memory array.
	MemoryPointerCast
)

func (s MemoryStrategy) String() string {
	if s == MemoryPointerCast {
		return "pointer-cast"
	}
	return "copy"
}

// Preference keys read by OptionsFromEnv.
const (
	EnvMemcpy   = "WASM2C_MEMCPY"
	EnvPageSize = "WASM2C_PAGE_SIZE"
)

// Options configures one generation run.
type Options struct {
	// Entry names the function emitted as the C main function.
	Entry string
	// Version overrides the generator version in the header comment.
	Version string
	// PageSize is the byte size of one linear memory page.
	PageSize int
	// Memory selects the load/store helper strategy.
	Memory MemoryStrategy
}

// DefaultOptions returns the copy strategy with 64 KiB pages and entry main.
func DefaultOptions() Options {
	return Options{
		Entry:    ir.EntryName,
		Version:  Version,
		PageSize: wasm.PageSize,
		Memory:   MemoryCopy,
	}
}

// OptionsFromEnv returns DefaultOptions adjusted by the WASM2C_MEMCPY and
// WASM2C_PAGE_SIZE preferences.
func OptionsFromEnv() Options {
	env.Load()
	opts := DefaultOptions()
	if env.Has(EnvMemcpy) && !env.Bool(EnvMemcpy) {
		opts.Memory = MemoryPointerCast
	}
	opts.PageSize = env.Int(EnvPageSize, opts.PageSize)
	return opts
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.Entry == "" {
		o.Entry = def.Entry
	}
	if o.Version == "" {
		o.Version = def.Version
	}
	if o.PageSize <= 0 {
		o.PageSize = def.PageSize
	}
	return o
}
