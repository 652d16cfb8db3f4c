package ir

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/wippyai/wasm2c/errors"
	"github.com/wippyai/wasm2c/wasm"
)

// ImportModule is the wasm import namespace used for Module.Imports.
const ImportModule = "env"

// Lower converts m into a core wasm module.
//
// Imports come from ImportModule in declaration order. Every function is
// exported under its IR name and the memory is exported as "memory".
// Call and global immediates are remapped onto the dense wasm index spaces
// and throw becomes drop followed by unreachable.
func Lower(m *Module) (*wasm.Module, error) {
	out := &wasm.Module{}

	for _, imp := range m.Imports {
		typeIdx := out.AddType(wasm.FuncType{Params: imp.Params, Results: imp.Results})
		out.Imports = append(out.Imports, wasm.Import{
			Module: ImportModule,
			Name:   imp.Name,
			Desc:   wasm.ImportDesc{Kind: wasm.KindFunc, TypeIdx: typeIdx},
		})
	}

	funcs := make(map[uint32]uint32, len(m.Funcs))
	for i, f := range m.Funcs {
		funcs[f.Index] = uint32(len(m.Imports) + i)
	}

	globals := make(map[uint32]uint32, len(m.Globals))
	ordered := append(Globals(nil), m.Globals...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Idx < ordered[j].Idx })
	for i, g := range ordered {
		globals[g.Idx] = uint32(i)
		var init float64
		if g.Init != nil {
			init = *g.Init
		}
		out.Globals = append(out.Globals, wasm.Global{
			Type: wasm.GlobalType{ValType: g.Type, Mutable: true},
			Init: constExpr(g.Type, init),
		})
	}

	if m.Pages > 0 || len(m.Data) > 0 {
		out.Memories = []wasm.MemoryType{{Limits: wasm.Limits{Min: uint64(m.Pages)}}}
		out.Exports = append(out.Exports, wasm.Export{Name: "memory", Kind: wasm.KindMemory})
	}

	for i, f := range m.Funcs {
		out.Funcs = append(out.Funcs, out.AddType(wasm.FuncType{Params: f.Params, Results: f.Returns}))
		out.Exports = append(out.Exports, wasm.Export{Name: f.Name, Kind: wasm.KindFunc, Idx: uint32(len(m.Imports) + i)})

		body := wasm.FuncBody{}
		for _, l := range f.Locals[min(len(f.Params), len(f.Locals)):] {
			body.Locals = append(body.Locals, wasm.LocalEntry{Count: 1, ValType: l.Type})
		}

		var code bytes.Buffer
		for pc, raw := range f.Wasm {
			instr, err := raw.Decode()
			if err != nil {
				return nil, errors.New(errors.PhaseLower, errors.KindInvalidData).
					Func(f.Name).Op(wasm.OpName(raw.Opcode())).At(pc).Cause(err).Build()
			}
			switch imm := instr.Imm.(type) {
			case wasm.CallImm:
				if int(imm.FuncIdx) >= len(m.Imports) {
					idx, ok := funcs[imm.FuncIdx]
					if !ok {
						return nil, errors.New(errors.PhaseLower, errors.KindNotFound).
							Func(f.Name).Op("call").At(pc).Detail("call target %d not defined", imm.FuncIdx).Build()
					}
					instr.Imm = wasm.CallImm{FuncIdx: idx}
				}
			case wasm.GlobalImm:
				idx, ok := globals[imm.GlobalIdx]
				if !ok {
					return nil, errors.New(errors.PhaseLower, errors.KindNotFound).
						Func(f.Name).Op(wasm.OpName(instr.Opcode)).At(pc).Detail("global %d not defined", imm.GlobalIdx).Build()
				}
				instr.Imm = wasm.GlobalImm{GlobalIdx: idx}
			case wasm.ThrowImm:
				code.WriteByte(wasm.OpDrop)
				code.WriteByte(wasm.OpUnreachable)
				continue
			}
			wasm.EncodeInstructionTo(&code, &instr)
		}
		code.WriteByte(wasm.OpEnd)
		body.Code = code.Bytes()
		out.Code = append(out.Code, body)
	}

	for _, d := range m.Data {
		out.Data = append(out.Data, wasm.DataSegment{
			Offset: constExpr(wasm.ValI32, float64(d.Offset)),
			Init:   d.Bytes,
		})
	}

	return out, nil
}

// LowerBinary lowers m and encodes the result.
func LowerBinary(m *Module) ([]byte, error) {
	mod, err := Lower(m)
	if err != nil {
		return nil, err
	}
	return mod.Encode(), nil
}

func constExpr(vt wasm.ValType, v float64) []byte {
	var instr wasm.Instruction
	switch vt {
	case wasm.ValI32:
		instr = wasm.Instruction{Opcode: wasm.OpI32Const, Imm: wasm.I32Imm{Value: int32(v)}}
	case wasm.ValI64:
		instr = wasm.Instruction{Opcode: wasm.OpI64Const, Imm: wasm.I64Imm{Value: int64(v)}}
	case wasm.ValF32:
		instr = wasm.Instruction{Opcode: wasm.OpF32Const, Imm: wasm.F32Imm{Value: float32(v)}}
	default:
		instr = wasm.Instruction{Opcode: wasm.OpF64Const, Imm: wasm.F64Imm{Value: v}}
	}
	return wasm.EncodeInstructions([]wasm.Instruction{instr, {Opcode: wasm.OpEnd}})
}

// String renders a short summary used in logs.
func (m *Module) String() string {
	return fmt.Sprintf("module{funcs: %d, imports: %d, globals: %d, data: %d, pages: %d}",
		len(m.Funcs), len(m.Imports), len(m.Globals), len(m.Data), m.Pages)
}
