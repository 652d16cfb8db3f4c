package cgen_test

import (
	"os"
	"strings"
	"testing"

	"github.com/wippyai/wasm2c/cgen"
)

func TestDefaultOptions(t *testing.T) {
	opts := cgen.DefaultOptions()
	if opts.Entry != "main" || opts.PageSize != 65536 || opts.Memory != cgen.MemoryCopy || opts.Version != cgen.Version {
		t.Errorf("DefaultOptions() = %+v", opts)
	}
}

func TestOptionsFromEnv(t *testing.T) {
	tests := []struct {
		name     string
		memcpy   string
		pageSize string
		memory   cgen.MemoryStrategy
		pages    int
	}{
		{"unset", "", "", cgen.MemoryCopy, 65536},
		{"memcpy off", "false", "", cgen.MemoryPointerCast, 65536},
		{"memcpy on", "true", "", cgen.MemoryCopy, 65536},
		{"page size", "", "1024", cgen.MemoryCopy, 1024},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setenv(t, cgen.EnvMemcpy, tt.memcpy)
			setenv(t, cgen.EnvPageSize, tt.pageSize)
			opts := cgen.OptionsFromEnv()
			if opts.Memory != tt.memory {
				t.Errorf("Memory = %s, want %s", opts.Memory, tt.memory)
			}
			if opts.PageSize != tt.pages {
				t.Errorf("PageSize = %d, want %d", opts.PageSize, tt.pages)
			}
		})
	}
}

func TestOptionsFromEnvRereads(t *testing.T) {
	setenv(t, cgen.EnvPageSize, "")
	setenv(t, cgen.EnvMemcpy, "false")
	if got := cgen.OptionsFromEnv().Memory; got != cgen.MemoryPointerCast {
		t.Fatalf("Memory = %s, want pointer-cast", got)
	}

	setenv(t, cgen.EnvMemcpy, "true")
	setenv(t, cgen.EnvPageSize, "4096")
	opts := cgen.OptionsFromEnv()
	if opts.Memory != cgen.MemoryCopy || opts.PageSize != 4096 {
		t.Errorf("stale preferences: Memory = %s, PageSize = %d", opts.Memory, opts.PageSize)
	}
}

// setenv sets key for the test, or unsets it when value is empty.
func setenv(t *testing.T, key, value string) {
	t.Helper()
	t.Setenv(key, value)
	if value == "" {
		os.Unsetenv(key)
	}
}

func TestMemoryStrategyString(t *testing.T) {
	if cgen.MemoryCopy.String() != "copy" || cgen.MemoryPointerCast.String() != "pointer-cast" {
		t.Errorf("got %s and %s", cgen.MemoryCopy, cgen.MemoryPointerCast)
	}
}

func TestGeneratePageSize(t *testing.T) {
	m := counterModule()
	m.Pages = 2
	opts := cgen.DefaultOptions()
	opts.PageSize = 1024
	res := generate(t, m, opts)
	if !strings.Contains(res.Source, "char _memory[2048];") {
		t.Errorf("memory size not scaled:\n%s", res.Source)
	}
}
