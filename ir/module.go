package ir

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/wippyai/wasm2c/errors"
	"github.com/wippyai/wasm2c/wasm"
)

// Module is one compilation unit. It is never mutated by the backend.
type Module struct {
	Globals    Globals       `json:"globals"`
	Funcs      []*Function   `json:"funcs"`
	Imports    []Import      `json:"imports"`
	Exceptions []Exception   `json:"exceptions"`
	Data       []DataSegment `json:"data"`
	Pages      int           `json:"pages"`
}

// Function is a typed function with a raw instruction stream.
//
// Index is the call target used by call instructions. Indices below
// len(Module.Imports) refer to imports.
type Function struct {
	ReturnType *wasm.ValType  `json:"returnType,omitempty"`
	Pages      map[string]int `json:"pages,omitempty"`
	Name       string         `json:"name"`
	Params     []wasm.ValType `json:"params"`
	Locals     Locals         `json:"locals"`
	Returns    []wasm.ValType `json:"returns"`
	Wasm       []Instr        `json:"wasm"`
	Data       []int          `json:"data,omitempty"`
	Exceptions []int          `json:"exceptions,omitempty"`
	Index      uint32         `json:"index"`
	Export     bool           `json:"export,omitempty"`
}

// Boxed reports whether the function returns a (value, type) record
// instead of a single statically typed value.
func (f *Function) Boxed() bool {
	return f.ReturnType == nil && len(f.Returns) > 0
}

// Local returns the local with slot idx.
func (f *Function) Local(idx uint32) (Local, bool) {
	for _, l := range f.Locals {
		if l.Idx == idx {
			return l, true
		}
	}
	return Local{}, false
}

// Local is a named parameter or function-local variable. Slots below
// len(Params) are parameters.
type Local struct {
	Name string       `json:"-"`
	Type wasm.ValType `json:"type"`
	Idx  uint32       `json:"idx"`
}

// Locals is ordered by slot. It reads from a JSON object keyed by name.
type Locals []Local

// UnmarshalJSON implements json.Unmarshaler.
func (ls *Locals) UnmarshalJSON(b []byte) error {
	var raw map[string]Local
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	out := make(Locals, 0, len(raw))
	for name, l := range raw {
		l.Name = name
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Idx < out[j].Idx })
	*ls = out
	return nil
}

// MarshalJSON implements json.Marshaler.
func (ls Locals) MarshalJSON() ([]byte, error) {
	raw := make(map[string]Local, len(ls))
	for _, l := range ls {
		raw[l.Name] = l
	}
	return json.Marshal(raw)
}

// Global is a module-level variable. Init is the numeric initializer,
// zero when absent.
type Global struct {
	Init *float64     `json:"init,omitempty"`
	Name string       `json:"-"`
	Type wasm.ValType `json:"type"`
	Idx  uint32       `json:"idx"`
}

// Globals is ordered by index. It reads from a JSON object keyed by name.
type Globals []Global

// UnmarshalJSON implements json.Unmarshaler.
func (gs *Globals) UnmarshalJSON(b []byte) error {
	var raw map[string]Global
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	out := make(Globals, 0, len(raw))
	for name, g := range raw {
		g.Name = name
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Idx < out[j].Idx })
	*gs = out
	return nil
}

// MarshalJSON implements json.Marshaler.
func (gs Globals) MarshalJSON() ([]byte, error) {
	raw := make(map[string]Global, len(gs))
	for _, g := range gs {
		raw[g.Name] = g
	}
	return json.Marshal(raw)
}

// ByIdx returns the global with index idx.
func (gs Globals) ByIdx(idx uint32) (Global, bool) {
	for _, g := range gs {
		if g.Idx == idx {
			return g, true
		}
	}
	return Global{}, false
}

// Import is a host function referenced by call instructions.
type Import struct {
	Name    string         `json:"name"`
	Params  []wasm.ValType `json:"params"`
	Results []wasm.ValType `json:"results"`
}

// Exception describes a statically known thrown value.
type Exception struct {
	Constructor string `json:"constructor"`
	Message     string `json:"message"`
}

// DataSegment is a block of bytes placed in linear memory at Offset.
type DataSegment struct {
	Bytes  Bytes `json:"bytes"`
	Offset int   `json:"offset"`
}

// Bytes encodes as a JSON array of numbers rather than base64.
type Bytes []byte

// UnmarshalJSON implements json.Unmarshaler.
func (b *Bytes) UnmarshalJSON(data []byte) error {
	out, err := byteArray(data)
	if err != nil {
		return err
	}
	*b = out
	return nil
}

// MarshalJSON implements json.Marshaler.
func (b Bytes) MarshalJSON() ([]byte, error) {
	return marshalByteArray(b)
}

func byteArray(data []byte) ([]byte, error) {
	var nums []int
	if err := json.Unmarshal(data, &nums); err != nil {
		return nil, err
	}
	out := make([]byte, len(nums))
	for i, n := range nums {
		if n < 0 || n > 0xFF {
			return nil, fmt.Errorf("byte %d out of range: %d", i, n)
		}
		out[i] = byte(n)
	}
	return out, nil
}

func marshalByteArray(b []byte) ([]byte, error) {
	nums := make([]int, len(b))
	for i, v := range b {
		nums[i] = int(v)
	}
	return json.Marshal(nums)
}

// Func returns the function with the given name.
func (m *Module) Func(name string) *Function {
	for _, f := range m.Funcs {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// FuncByIndex returns the function whose call index is idx.
func (m *Module) FuncByIndex(idx uint32) *Function {
	for _, f := range m.Funcs {
		if f.Index == idx {
			return f
		}
	}
	return nil
}

// ReadJSON decodes a Module from r.
func ReadJSON(r io.Reader) (*Module, error) {
	var m Module
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&m); err != nil {
		return nil, errors.Load("decode ir json", err)
	}
	return &m, nil
}

// WriteJSON encodes m to w.
func WriteJSON(w io.Writer, m *Module) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(m)
}

// Static returns a pointer to vt for Function.ReturnType.
func Static(vt wasm.ValType) *wasm.ValType {
	return &vt
}
