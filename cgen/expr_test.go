package cgen_test

import (
	"math"
	"testing"

	"github.com/wippyai/wasm2c/cgen"
	"github.com/wippyai/wasm2c/wasm"
)

func TestRender(t *testing.T) {
	a := &cgen.Var{Name: "a", T: wasm.ValI32}
	b := &cgen.Var{Name: "b", T: wasm.ValI32}
	f := &cgen.Var{Name: "f", T: wasm.ValF64}
	two := &cgen.Lit{Text: "2", T: wasm.ValI32}
	sum := &cgen.Binary{L: a, R: b, Op: "+", T: wasm.ValI32}

	tests := []struct {
		name   string
		x      cgen.Expr
		top    string
		nested string
	}{
		{"var", a, "a", "a"},
		{"binary", sum, "a + b", "(a + b)"},
		{"nested binary", &cgen.Binary{L: sum, R: two, Op: "*", T: wasm.ValI32}, "(a + b) * 2", "((a + b) * 2)"},
		{"cast", &cgen.Cast{X: sum, To: "u32", T: wasm.ValI32}, "(u32)(a + b)", "(u32)(a + b)"},
		{"cast chain", &cgen.Cast{X: &cgen.Cast{X: f, To: "i32", T: wasm.ValI32}, To: "f64", T: wasm.ValF64}, "(f64)(i32)(f)", "(f64)(i32)(f)"},
		{"unary", &cgen.Unary{X: sum, Op: "-", T: wasm.ValI32}, "-(a + b)", "-(a + b)"},
		{"call", &cgen.Call{Func: "g", Args: []cgen.Expr{sum, two}, T: wasm.ValI32}, "g(a + b, 2)", "g(a + b, 2)"},
		{"select", &cgen.Select{Cond: cgen.Truthy(a), Then: b, Else: two, T: wasm.ValI32}, "(a != 0) ? b : 2", "((a != 0) ? b : 2)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cgen.Render(tt.x); got != tt.top {
				t.Errorf("Render = %q, want %q", got, tt.top)
			}
			if got := cgen.RenderNested(tt.x); got != tt.nested {
				t.Errorf("RenderNested = %q, want %q", got, tt.nested)
			}
		})
	}
}

func TestTruthyFalsy(t *testing.T) {
	x := &cgen.Var{Name: "x", T: wasm.ValI32}
	n := &cgen.Var{Name: "n", T: wasm.ValI64}
	f := &cgen.Var{Name: "f", T: wasm.ValF64}
	lt := &cgen.Binary{L: x, R: &cgen.Lit{Text: "3", T: wasm.ValI32}, Op: "<", T: wasm.ValI32, Bool: true}
	trunc := &cgen.Cast{X: f, To: "i32", T: wasm.ValI32}

	tests := []struct {
		name          string
		x             cgen.Expr
		truthy, falsy string
	}{
		{"int", x, "x != 0", "x == 0"},
		{"i64", n, "n != 0", "n == 0"},
		{"float", f, "f != 0e+0", "f == 0e+0"},
		{"comparison", lt, "x < 3", "!(x < 3)"},
		{"truncated float", trunc, "f != 0e+0", "f == 0e+0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cgen.Render(cgen.Truthy(tt.x)); got != tt.truthy {
				t.Errorf("Truthy = %q, want %q", got, tt.truthy)
			}
			if got := cgen.Render(cgen.Falsy(tt.x)); got != tt.falsy {
				t.Errorf("Falsy = %q, want %q", got, tt.falsy)
			}
			if !cgen.IsBool(cgen.Truthy(tt.x)) || !cgen.IsBool(cgen.Falsy(tt.x)) {
				t.Error("condition is not boolean")
			}
		})
	}
}

func TestFormatF64(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0e+0"},
		{1, "1e+0"},
		{1.5, "1.5e+0"},
		{-2, "-2e+0"},
		{100, "1e+2"},
		{0.1, "1e-1"},
		{2.5e-7, "2.5e-7"},
		{123456789, "1.23456789e+8"},
		{1e300, "1e+300"},
		{math.Inf(1), "(1e+0/0e+0)"},
		{math.Inf(-1), "(-1e+0/0e+0)"},
		{math.NaN(), "NaN"},
	}
	for _, tt := range tests {
		if got := cgen.FormatF64(tt.in); got != tt.want {
			t.Errorf("FormatF64(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
