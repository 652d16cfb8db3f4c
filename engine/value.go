package engine

import (
	"math"
	"strconv"
	"strings"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasm2c/errors"
	"github.com/wippyai/wasm2c/wasm"
)

// Value is a typed wasm value in its raw stack encoding.
type Value struct {
	Type wasm.ValType
	Bits uint64
}

func I32(v int32) Value   { return Value{Type: wasm.ValI32, Bits: api.EncodeI32(v)} }
func I64(v int64) Value   { return Value{Type: wasm.ValI64, Bits: api.EncodeI64(v)} }
func F32(v float32) Value { return Value{Type: wasm.ValF32, Bits: api.EncodeF32(v)} }
func F64(v float64) Value { return Value{Type: wasm.ValF64, Bits: api.EncodeF64(v)} }

// Float64 converts the value to a float64, the numeric type builtins see.
func (v Value) Float64() float64 {
	switch v.Type {
	case wasm.ValI32:
		return float64(int32(uint32(v.Bits)))
	case wasm.ValI64:
		return float64(int64(v.Bits))
	case wasm.ValF32:
		return float64(api.DecodeF32(v.Bits))
	default:
		return api.DecodeF64(v.Bits)
	}
}

// String formats the value the way the generated print helper does.
func (v Value) String() string {
	switch v.Type {
	case wasm.ValI32:
		return strconv.FormatInt(int64(int32(uint32(v.Bits))), 10)
	case wasm.ValI64:
		return strconv.FormatInt(int64(v.Bits), 10)
	default:
		return FormatG(v.Float64())
	}
}

// fromFloat encodes f as type t, truncating toward zero for integers.
func fromFloat(t wasm.ValType, f float64) Value {
	switch t {
	case wasm.ValI32:
		return I32(int32(f))
	case wasm.ValI64:
		return I64(int64(f))
	case wasm.ValF32:
		return F32(float32(f))
	default:
		return F64(f)
	}
}

// ParseValue parses s as a value of type t. Integers accept any base
// prefix strconv understands. Floats also accept nan and inf.
func ParseValue(t wasm.ValType, s string) (Value, error) {
	s = strings.TrimSpace(s)
	switch t {
	case wasm.ValI32:
		n, err := strconv.ParseInt(s, 0, 32)
		if err != nil {
			return Value{}, errors.Wrap(errors.PhaseRuntime, errors.KindInvalidInput, err, "parse i32 argument")
		}
		return I32(int32(n)), nil
	case wasm.ValI64:
		n, err := strconv.ParseInt(s, 0, 64)
		if err != nil {
			return Value{}, errors.Wrap(errors.PhaseRuntime, errors.KindInvalidInput, err, "parse i64 argument")
		}
		return I64(n), nil
	case wasm.ValF32, wasm.ValF64:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Value{}, errors.Wrap(errors.PhaseRuntime, errors.KindInvalidInput, err, "parse "+t.String()+" argument")
		}
		return fromFloat(t, f), nil
	}
	return Value{}, errors.InvalidInput(errors.PhaseRuntime, "unsupported value type "+t.String())
}

// FormatG formats f like C printf("%g").
func FormatG(f float64) string {
	switch {
	case math.IsNaN(f):
		if math.Signbit(f) {
			return "-nan"
		}
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	return strconv.FormatFloat(f, 'g', 6, 64)
}

func apiType(t wasm.ValType) api.ValueType {
	switch t {
	case wasm.ValI32:
		return api.ValueTypeI32
	case wasm.ValI64:
		return api.ValueTypeI64
	case wasm.ValF32:
		return api.ValueTypeF32
	default:
		return api.ValueTypeF64
	}
}

func apiTypes(ts []wasm.ValType) []api.ValueType {
	out := make([]api.ValueType, len(ts))
	for i, t := range ts {
		out[i] = apiType(t)
	}
	return out
}
