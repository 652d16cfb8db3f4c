package ir

import (
	"fmt"

	"github.com/wippyai/wasm2c/errors"
	"github.com/wippyai/wasm2c/wasm"
)

// Validate checks the structural consistency of m: unique names and indices,
// dense local slots, decodable instructions with in-range immediates, and
// balanced block nesting. It does not type-check the operand stack.
// When entry is non-empty a function with that name must exist.
func (m *Module) Validate(entry string) error {
	names := make(map[string]bool, len(m.Funcs))
	indices := make(map[uint32]bool, len(m.Funcs))
	for _, f := range m.Funcs {
		if f.Name == "" {
			return errors.InvalidData(errors.PhaseValidate, "", fmt.Sprintf("function at index %d has no name", f.Index))
		}
		if names[f.Name] {
			return errors.InvalidData(errors.PhaseValidate, f.Name, "duplicate function name")
		}
		names[f.Name] = true
		if indices[f.Index] {
			return errors.InvalidData(errors.PhaseValidate, f.Name, fmt.Sprintf("duplicate function index %d", f.Index))
		}
		indices[f.Index] = true
		if int(f.Index) < len(m.Imports) {
			return errors.InvalidData(errors.PhaseValidate, f.Name, fmt.Sprintf("index %d overlaps %d imports", f.Index, len(m.Imports)))
		}
	}
	if entry != "" && !names[entry] {
		return errors.NotFound(errors.PhaseValidate, "entry function", entry)
	}

	globalNames := make(map[string]bool, len(m.Globals))
	globalIdx := make(map[uint32]bool, len(m.Globals))
	for _, g := range m.Globals {
		if globalNames[g.Name] || globalIdx[g.Idx] {
			return errors.InvalidData(errors.PhaseValidate, "", fmt.Sprintf("duplicate global %q (idx %d)", g.Name, g.Idx))
		}
		globalNames[g.Name] = true
		globalIdx[g.Idx] = true
	}

	limit := m.Pages * wasm.PageSize
	for i, d := range m.Data {
		if d.Offset < 0 || d.Offset+len(d.Bytes) > limit {
			return errors.InvalidData(errors.PhaseValidate, "", fmt.Sprintf("data segment %d [%d, %d) outside %d pages", i, d.Offset, d.Offset+len(d.Bytes), m.Pages))
		}
	}

	for _, f := range m.Funcs {
		if err := m.validateFunc(f, globalIdx); err != nil {
			return err
		}
	}
	return nil
}

func (m *Module) validateFunc(f *Function, globals map[uint32]bool) error {
	invalid := func(format string, args ...any) error {
		return errors.InvalidData(errors.PhaseValidate, f.Name, fmt.Sprintf(format, args...))
	}

	if len(f.Locals) < len(f.Params) {
		return invalid("%d locals for %d params", len(f.Locals), len(f.Params))
	}
	localNames := make(map[string]bool, len(f.Locals))
	for i, l := range f.Locals {
		if l.Idx != uint32(i) {
			return invalid("local slots are not dense: %q has slot %d, want %d", l.Name, l.Idx, i)
		}
		if localNames[l.Name] {
			return invalid("duplicate local %q", l.Name)
		}
		localNames[l.Name] = true
		if i < len(f.Params) && l.Type != f.Params[i] {
			return invalid("param %q is %s, signature says %s", l.Name, l.Type, f.Params[i])
		}
	}
	if f.ReturnType != nil && (len(f.Returns) != 1 || f.Returns[0] != *f.ReturnType) {
		return invalid("returnType %s does not match returns %v", *f.ReturnType, f.Returns)
	}
	for _, idx := range f.Data {
		if idx < 0 || idx >= len(m.Data) {
			return invalid("data segment %d out of range", idx)
		}
	}
	for _, idx := range f.Exceptions {
		if idx < 0 || idx >= len(m.Exceptions) {
			return invalid("exception %d out of range", idx)
		}
	}

	var blocks []byte
	for pc, raw := range f.Wasm {
		instr, err := raw.Decode()
		if err != nil {
			return errors.New(errors.PhaseValidate, errors.KindInvalidData).
				Func(f.Name).Op(wasm.OpName(raw.Opcode())).At(pc).Cause(err).Build()
		}
		at := func(format string, args ...any) error {
			return errors.New(errors.PhaseValidate, errors.KindInvalidData).
				Func(f.Name).Op(wasm.OpName(instr.Opcode)).At(pc).Detail(format, args...).Build()
		}

		switch imm := instr.Imm.(type) {
		case wasm.LocalImm:
			if int(imm.LocalIdx) >= len(f.Locals) {
				return at("local %d out of range", imm.LocalIdx)
			}
		case wasm.GlobalImm:
			if !globals[imm.GlobalIdx] {
				return at("global %d not defined", imm.GlobalIdx)
			}
		case wasm.CallImm:
			if int(imm.FuncIdx) >= len(m.Imports) && m.FuncByIndex(imm.FuncIdx) == nil {
				return at("call target %d not defined", imm.FuncIdx)
			}
		case wasm.BranchImm:
			if int(imm.LabelIdx) > len(blocks) {
				return at("branch depth %d with %d open blocks", imm.LabelIdx, len(blocks))
			}
		case wasm.BrTableImm:
			for _, l := range append(imm.Labels, imm.Default) {
				if int(l) > len(blocks) {
					return at("branch depth %d with %d open blocks", l, len(blocks))
				}
			}
		}

		switch instr.Opcode {
		case wasm.OpBlock, wasm.OpLoop, wasm.OpIf:
			blocks = append(blocks, instr.Opcode)
		case wasm.OpElse:
			if len(blocks) == 0 || blocks[len(blocks)-1] != wasm.OpIf {
				return at("else outside if")
			}
			blocks[len(blocks)-1] = wasm.OpElse
		case wasm.OpEnd:
			if len(blocks) == 0 {
				return at("end without open block")
			}
			blocks = blocks[:len(blocks)-1]
		}
	}
	if len(blocks) != 0 {
		return invalid("%d unterminated blocks", len(blocks))
	}
	return nil
}
