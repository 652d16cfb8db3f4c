package ir

import (
	"fmt"

	"github.com/wippyai/wasm2c/errors"
	"github.com/wippyai/wasm2c/wasm"
)

// EntryName is the IR name given to a module's entry function.
const EntryName = "main"

// FromWasm converts a parsed core module into IR.
//
// Exported functions keep their export name; others are named f<index>.
// The function exported as "main" or "_start" becomes the entry and is
// renamed to EntryName. Locals are named p<i> for parameters and l<i>
// for declared locals. Only active data segments with constant offsets
// are carried over.
func FromWasm(mod *wasm.Module) (*Module, error) {
	out := &Module{}

	for _, imp := range mod.Imports {
		switch imp.Desc.Kind {
		case wasm.KindFunc:
			ft := mod.GetFuncType(uint32(len(out.Imports)))
			if ft == nil {
				return nil, errors.InvalidData(errors.PhaseLoad, "", fmt.Sprintf("import %s.%s has no type", imp.Module, imp.Name))
			}
			out.Imports = append(out.Imports, Import{Name: imp.Name, Params: ft.Params, Results: ft.Results})
		case wasm.KindMemory:
			out.Pages = int(imp.Desc.Memory.Limits.Min)
		default:
			return nil, errors.Unsupported(errors.PhaseLoad, fmt.Sprintf("import %s.%s of kind %d", imp.Module, imp.Name, imp.Desc.Kind))
		}
	}
	if len(mod.Memories) > 0 {
		out.Pages = int(mod.Memories[0].Limits.Min)
	}

	funcNames := make(map[uint32]string)
	globalNames := make(map[uint32]string)
	for _, exp := range mod.Exports {
		switch exp.Kind {
		case wasm.KindFunc:
			funcNames[exp.Idx] = exp.Name
		case wasm.KindGlobal:
			globalNames[exp.Idx] = exp.Name
		}
	}
	entry := -1
	for idx, name := range funcNames {
		if name == "main" || (name == "_start" && entry < 0) {
			entry = int(idx)
		}
	}

	for i, g := range mod.Globals {
		idx := uint32(i)
		name, ok := globalNames[idx]
		if !ok {
			name = fmt.Sprintf("g%d", idx)
		}
		c, err := wasm.ConstValue(g.Init)
		if err != nil {
			return nil, errors.Wrap(errors.PhaseLoad, errors.KindUnsupported, err, "global "+name)
		}
		init := constFloat(c)
		out.Globals = append(out.Globals, Global{Name: name, Type: g.Type.ValType, Init: &init, Idx: idx})
	}

	imported := uint32(mod.NumImportedFuncs())
	for i, body := range mod.Code {
		idx := imported + uint32(i)
		ft := mod.GetFuncType(idx)
		if ft == nil {
			return nil, errors.InvalidData(errors.PhaseLoad, "", fmt.Sprintf("function %d has no type", idx))
		}

		name, ok := funcNames[idx]
		if int(idx) == entry {
			name = EntryName
		} else if !ok || name == EntryName {
			name = fmt.Sprintf("f%d", idx)
		}
		if len(ft.Results) > 1 {
			return nil, errors.Unsupported(errors.PhaseLoad, fmt.Sprintf("function %s returns %d values", name, len(ft.Results)))
		}

		f := &Function{
			Name:    name,
			Index:   idx,
			Params:  ft.Params,
			Returns: ft.Results,
			Export:  ok,
		}
		if len(ft.Results) == 1 {
			f.ReturnType = Static(ft.Results[0])
		}
		for p, vt := range ft.Params {
			f.Locals = append(f.Locals, Local{Name: fmt.Sprintf("p%d", p), Type: vt, Idx: uint32(p)})
		}
		for _, group := range body.Locals {
			for n := uint32(0); n < group.Count; n++ {
				slot := uint32(len(f.Locals))
				f.Locals = append(f.Locals, Local{Name: fmt.Sprintf("l%d", slot), Type: group.ValType, Idx: slot})
			}
		}

		instrs, err := wasm.DecodeInstructions(body.Code)
		if err != nil {
			return nil, errors.New(errors.PhaseDecode, errors.KindInvalidData).Func(name).Cause(err).Build()
		}
		if n := len(instrs); n > 0 && instrs[n-1].Opcode == wasm.OpEnd {
			instrs = instrs[:n-1]
		}
		for _, instr := range instrs {
			f.Wasm = append(f.Wasm, wasm.EncodeInstruction(instr))
		}
		out.Funcs = append(out.Funcs, f)
	}

	for i, seg := range mod.Data {
		if seg.Flags != 0 {
			continue
		}
		c, err := wasm.ConstValue(seg.Offset)
		if err != nil {
			return nil, errors.Wrap(errors.PhaseLoad, errors.KindUnsupported, err, fmt.Sprintf("data segment %d", i))
		}
		out.Data = append(out.Data, DataSegment{Offset: int(constFloat(c)), Bytes: seg.Init})
	}

	return out, nil
}

func constFloat(c wasm.Instruction) float64 {
	switch imm := c.Imm.(type) {
	case wasm.I32Imm:
		return float64(imm.Value)
	case wasm.I64Imm:
		return float64(imm.Value)
	case wasm.F32Imm:
		return float64(imm.Value)
	case wasm.F64Imm:
		return imm.Value
	}
	return 0
}
