package ir_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/wippyai/wasm2c/ir"
	"github.com/wippyai/wasm2c/wasm"
)

const addJSON = `{
  "funcs": [
    {
      "name": "add",
      "index": 1,
      "params": ["i32", "i32"],
      "locals": {"b": {"type": "i32", "idx": 1}, "a": {"type": "i32", "idx": 0}},
      "returns": ["i32"],
      "returnType": "i32",
      "export": true,
      "wasm": [[32, 0], [32, 1], [106], [15]]
    },
    {
      "name": "main",
      "index": 2,
      "params": [],
      "locals": {"x": {"type": "f64", "idx": 0}},
      "returns": [],
      "wasm": [[65, 2], [65, 3], [16, 1], [183], [16, 0]]
    }
  ],
  "imports": [{"name": "print", "params": ["f64"], "results": []}],
  "globals": {"counter": {"type": "i32", "idx": 0, "init": 7}},
  "exceptions": [{"constructor": "TypeError", "message": "bad"}],
  "data": [{"offset": 0, "bytes": [72, 105]}],
  "pages": 1
}`

func TestReadJSON(t *testing.T) {
	m, err := ir.ReadJSON(strings.NewReader(addJSON))
	if err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}

	add := m.Func("add")
	if add == nil {
		t.Fatal("add not found")
	}
	if add.Locals[0].Name != "a" || add.Locals[1].Name != "b" {
		t.Errorf("locals not ordered by slot: %+v", add.Locals)
	}
	if add.ReturnType == nil || *add.ReturnType != wasm.ValI32 || add.Boxed() {
		t.Errorf("returnType = %v", add.ReturnType)
	}
	if !bytes.Equal(add.Wasm[2], []byte{wasm.OpI32Add}) {
		t.Errorf("wasm[2] = %v", add.Wasm[2])
	}
	if m.FuncByIndex(2) != m.Func("main") {
		t.Error("FuncByIndex(2) is not main")
	}
	if g, ok := m.Globals.ByIdx(0); !ok || g.Name != "counter" || *g.Init != 7 {
		t.Errorf("global = %+v", g)
	}
	if string(m.Data[0].Bytes) != "Hi" || m.Pages != 1 {
		t.Errorf("data = %+v pages = %d", m.Data, m.Pages)
	}
	if m.Exceptions[0].Constructor != "TypeError" {
		t.Errorf("exceptions = %+v", m.Exceptions)
	}
	if err := m.Validate("main"); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestReadJSONErrors(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{"syntax", `{"funcs": [`},
		{"unknown field", `{"functions": []}`},
		{"byte range", `{"data": [{"offset": 0, "bytes": [256]}]}`},
		{"value type", `{"imports": [{"name": "print", "params": ["v128"]}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ir.ReadJSON(strings.NewReader(tt.json)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestWriteJSONRoundTrip(t *testing.T) {
	m, err := ir.ReadJSON(strings.NewReader(addJSON))
	if err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	var buf bytes.Buffer
	if err := ir.WriteJSON(&buf, m); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	again, err := ir.ReadJSON(&buf)
	if err != nil {
		t.Fatalf("ReadJSON after WriteJSON: %v", err)
	}
	if again.Func("add").Locals[1].Name != "b" || len(again.Func("main").Wasm) != 5 {
		t.Errorf("round trip lost data: %+v", again.Func("add"))
	}
}

func TestInstrConstructors(t *testing.T) {
	tests := []struct {
		instr ir.Instr
		want  []byte
	}{
		{ir.I32Const(-1), []byte{wasm.OpI32Const, 0x7f}},
		{ir.LocalGet(1), []byte{wasm.OpLocalGet, 1}},
		{ir.Block(wasm.BlockTypeVoid), []byte{wasm.OpBlock, 0x40}},
		{ir.Loop(wasm.ValI32.BlockType()), []byte{wasm.OpLoop, 0x7f}},
		{ir.BrIf(2), []byte{wasm.OpBrIf, 2}},
		{ir.Call(200), []byte{wasm.OpCall, 0xc8, 0x01}},
		{ir.Mem(wasm.OpI32Store8, 0, 4), []byte{wasm.OpI32Store8, 0, 4}},
		{ir.Misc(wasm.MiscI32TruncSatF64S), []byte{wasm.OpPrefixMisc, 0x02}},
	}
	for _, tt := range tests {
		if !bytes.Equal(tt.instr, tt.want) {
			t.Errorf("got %v, want %v", tt.instr, tt.want)
		}
	}
}
