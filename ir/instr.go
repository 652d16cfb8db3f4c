package ir

import (
	"github.com/wippyai/wasm2c/wasm"
)

// Instr is one instruction in WebAssembly binary encoding: an opcode
// followed by its immediates.
type Instr []byte

// UnmarshalJSON implements json.Unmarshaler. Instructions are arrays of
// byte values.
func (in *Instr) UnmarshalJSON(data []byte) error {
	out, err := byteArray(data)
	if err != nil {
		return err
	}
	*in = out
	return nil
}

// MarshalJSON implements json.Marshaler.
func (in Instr) MarshalJSON() ([]byte, error) {
	return marshalByteArray(in)
}

// Opcode returns the leading opcode byte, or OpNop for an empty instruction.
func (in Instr) Opcode() byte {
	if len(in) == 0 {
		return wasm.OpNop
	}
	return in[0]
}

// Decode parses the instruction and its immediates.
func (in Instr) Decode() (wasm.Instruction, error) {
	return wasm.DecodeInstruction(in)
}

func encode(op byte, imm interface{}) Instr {
	return wasm.EncodeInstruction(wasm.Instruction{Opcode: op, Imm: imm})
}

// Op builds an instruction without immediates, e.g. Op(wasm.OpI32Add).
func Op(op byte) Instr { return Instr{op} }

func I32Const(v int32) Instr   { return encode(wasm.OpI32Const, wasm.I32Imm{Value: v}) }
func I64Const(v int64) Instr   { return encode(wasm.OpI64Const, wasm.I64Imm{Value: v}) }
func F32Const(v float32) Instr { return encode(wasm.OpF32Const, wasm.F32Imm{Value: v}) }
func F64Const(v float64) Instr { return encode(wasm.OpF64Const, wasm.F64Imm{Value: v}) }

func LocalGet(idx uint32) Instr  { return encode(wasm.OpLocalGet, wasm.LocalImm{LocalIdx: idx}) }
func LocalSet(idx uint32) Instr  { return encode(wasm.OpLocalSet, wasm.LocalImm{LocalIdx: idx}) }
func LocalTee(idx uint32) Instr  { return encode(wasm.OpLocalTee, wasm.LocalImm{LocalIdx: idx}) }
func GlobalGet(idx uint32) Instr { return encode(wasm.OpGlobalGet, wasm.GlobalImm{GlobalIdx: idx}) }
func GlobalSet(idx uint32) Instr { return encode(wasm.OpGlobalSet, wasm.GlobalImm{GlobalIdx: idx}) }

// Block, Loop and If take a block type such as wasm.BlockTypeVoid or
// wasm.ValI32.BlockType().
func Block(bt int32) Instr { return encode(wasm.OpBlock, wasm.BlockImm{Type: bt}) }
func Loop(bt int32) Instr  { return encode(wasm.OpLoop, wasm.BlockImm{Type: bt}) }
func If(bt int32) Instr    { return encode(wasm.OpIf, wasm.BlockImm{Type: bt}) }
func Else() Instr          { return Op(wasm.OpElse) }
func End() Instr           { return Op(wasm.OpEnd) }

func Br(depth uint32) Instr   { return encode(wasm.OpBr, wasm.BranchImm{LabelIdx: depth}) }
func BrIf(depth uint32) Instr { return encode(wasm.OpBrIf, wasm.BranchImm{LabelIdx: depth}) }

func BrTable(labels []uint32, def uint32) Instr {
	return encode(wasm.OpBrTable, wasm.BrTableImm{Labels: labels, Default: def})
}

func Call(idx uint32) Instr { return encode(wasm.OpCall, wasm.CallImm{FuncIdx: idx}) }
func Return() Instr         { return Op(wasm.OpReturn) }
func Drop() Instr           { return Op(wasm.OpDrop) }

// Throw raises the exception whose index is on top of the stack.
func Throw(tag uint32) Instr { return encode(wasm.OpThrow, wasm.ThrowImm{TagIdx: tag}) }

// Mem builds a load or store with the given alignment exponent and offset.
func Mem(op byte, align uint32, offset uint64) Instr {
	return encode(op, wasm.MemoryImm{Align: align, Offset: offset})
}

// Misc builds a 0xFC-prefixed instruction.
func Misc(sub uint32, operands ...uint32) Instr {
	return encode(wasm.OpPrefixMisc, wasm.MiscImm{SubOpcode: sub, Operands: operands})
}
