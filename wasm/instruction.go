package wasm

import (
	"bytes"
	"fmt"
	"io"
)

// Instruction represents a decoded WebAssembly instruction
type Instruction struct {
	Imm    interface{}
	Opcode byte
}

// BlockImm holds the block type for block, loop, and if instructions.
type BlockImm struct {
	Type int32 // Block type: -64=void, -1=i32, -2=i64, -3=f32, -4=f64
}

// BranchImm holds the label index for br and br_if instructions.
type BranchImm struct {
	LabelIdx uint32
}

// BrTableImm holds the label table for br_table instruction.
type BrTableImm struct {
	Labels  []uint32
	Default uint32
}

// CallImm holds the function index for call instruction.
type CallImm struct {
	FuncIdx uint32
}

// CallIndirectImm holds type and table indices for call_indirect instruction.
type CallIndirectImm struct {
	TypeIdx  uint32
	TableIdx uint32
}

// LocalImm holds the local index for local.get, local.set, local.tee.
type LocalImm struct {
	LocalIdx uint32
}

// GlobalImm holds the global index for global.get and global.set.
type GlobalImm struct {
	GlobalIdx uint32
}

// MemoryImm holds memory access parameters for load and store instructions.
type MemoryImm struct {
	Offset uint64
	Align  uint32
}

// MemoryIdxImm holds memory index for memory.size, memory.grow
type MemoryIdxImm struct {
	MemIdx uint32
}

// I32Imm holds the constant value for i32.const instruction.
type I32Imm struct {
	Value int32
}

// I64Imm holds the constant value for i64.const instruction.
type I64Imm struct {
	Value int64
}

// F32Imm holds the constant value for f32.const instruction.
type F32Imm struct {
	Value float32
}

// F64Imm holds the constant value for f64.const instruction.
type F64Imm struct {
	Value float64
}

// MiscImm holds the sub-opcode and immediates for 0xFC prefix instructions
type MiscImm struct {
	Operands  []uint32
	SubOpcode uint32
}

// ThrowImm holds tag index for throw instruction
type ThrowImm struct {
	TagIdx uint32
}

// BlockResult maps a block type to the value type it leaves on the stack.
// The second result is false for void blocks and type-index block types.
func BlockResult(t int32) (ValType, bool) {
	switch t {
	case BlockTypeI32:
		return ValI32, true
	case BlockTypeI64:
		return ValI64, true
	case BlockTypeF32:
		return ValF32, true
	case BlockTypeF64:
		return ValF64, true
	}
	return 0, false
}

// IsMemoryAccess reports whether op is a load or store with a memarg immediate.
func IsMemoryAccess(op byte) bool {
	return op >= OpI32Load && op <= OpI64Store32
}

// DecodeInstruction decodes exactly one instruction from raw.
// Trailing bytes after the instruction are reported as an error.
func DecodeInstruction(raw []byte) (Instruction, error) {
	r := bytes.NewReader(raw)
	instr, err := readInstruction(r)
	if err != nil {
		return Instruction{}, err
	}
	if r.Len() != 0 {
		return Instruction{}, fmt.Errorf("%s: %d trailing bytes", OpName(instr.Opcode), r.Len())
	}
	return instr, nil
}

// DecodeInstructions decodes a sequence of instructions from bytecode
func DecodeInstructions(code []byte) ([]Instruction, error) {
	r := bytes.NewReader(code)
	var instrs []Instruction
	for r.Len() > 0 {
		instr, err := readInstruction(r)
		if err != nil {
			return nil, err
		}
		instrs = append(instrs, instr)
	}
	return instrs, nil
}

func readInstruction(r *bytes.Reader) (Instruction, error) {
	op, err := r.ReadByte()
	if err != nil {
		return Instruction{}, err
	}
	instr := Instruction{Opcode: op}

	switch {
	case IsMemoryAccess(op):
		imm, err := readMemArg(r)
		if err != nil {
			return Instruction{}, truncated(op, err)
		}
		instr.Imm = imm
		return instr, nil
	case opNames[op] == "":
		return Instruction{}, fmt.Errorf("unknown opcode: 0x%02x", op)
	}

	switch op {
	case OpBlock, OpLoop, OpIf:
		t, err := ReadLEB128s(r)
		if err != nil {
			return Instruction{}, truncated(op, err)
		}
		instr.Imm = BlockImm{Type: t}

	case OpThrow:
		idx, err := ReadLEB128u(r)
		if err != nil {
			return Instruction{}, truncated(op, err)
		}
		instr.Imm = ThrowImm{TagIdx: idx}

	case OpBr, OpBrIf:
		idx, err := ReadLEB128u(r)
		if err != nil {
			return Instruction{}, truncated(op, err)
		}
		instr.Imm = BranchImm{LabelIdx: idx}

	case OpBrTable:
		n, err := ReadLEB128u(r)
		if err != nil {
			return Instruction{}, truncated(op, err)
		}
		if int(n) > r.Len() {
			return Instruction{}, truncated(op, io.ErrUnexpectedEOF)
		}
		labels := make([]uint32, n)
		for i := range labels {
			if labels[i], err = ReadLEB128u(r); err != nil {
				return Instruction{}, truncated(op, err)
			}
		}
		def, err := ReadLEB128u(r)
		if err != nil {
			return Instruction{}, truncated(op, err)
		}
		instr.Imm = BrTableImm{Labels: labels, Default: def}

	case OpCall:
		idx, err := ReadLEB128u(r)
		if err != nil {
			return Instruction{}, truncated(op, err)
		}
		instr.Imm = CallImm{FuncIdx: idx}

	case OpCallIndirect:
		typeIdx, err := ReadLEB128u(r)
		if err != nil {
			return Instruction{}, truncated(op, err)
		}
		tableIdx, err := ReadLEB128u(r)
		if err != nil {
			return Instruction{}, truncated(op, err)
		}
		instr.Imm = CallIndirectImm{TypeIdx: typeIdx, TableIdx: tableIdx}

	case OpLocalGet, OpLocalSet, OpLocalTee:
		idx, err := ReadLEB128u(r)
		if err != nil {
			return Instruction{}, truncated(op, err)
		}
		instr.Imm = LocalImm{LocalIdx: idx}

	case OpGlobalGet, OpGlobalSet:
		idx, err := ReadLEB128u(r)
		if err != nil {
			return Instruction{}, truncated(op, err)
		}
		instr.Imm = GlobalImm{GlobalIdx: idx}

	case OpMemorySize, OpMemoryGrow:
		idx, err := ReadLEB128u(r)
		if err != nil {
			return Instruction{}, truncated(op, err)
		}
		instr.Imm = MemoryIdxImm{MemIdx: idx}

	case OpI32Const:
		v, err := ReadLEB128s(r)
		if err != nil {
			return Instruction{}, truncated(op, err)
		}
		instr.Imm = I32Imm{Value: v}

	case OpI64Const:
		v, err := ReadLEB128s64(r)
		if err != nil {
			return Instruction{}, truncated(op, err)
		}
		instr.Imm = I64Imm{Value: v}

	case OpF32Const:
		v, err := ReadFloat32(r)
		if err != nil {
			return Instruction{}, truncated(op, err)
		}
		instr.Imm = F32Imm{Value: v}

	case OpF64Const:
		v, err := ReadFloat64(r)
		if err != nil {
			return Instruction{}, truncated(op, err)
		}
		instr.Imm = F64Imm{Value: v}

	case OpPrefixMisc:
		imm, err := readMiscImmediate(r)
		if err != nil {
			return Instruction{}, truncated(op, err)
		}
		instr.Imm = imm
	}

	return instr, nil
}

func readMiscImmediate(r *bytes.Reader) (MiscImm, error) {
	subOp, err := ReadLEB128u(r)
	if err != nil {
		return MiscImm{}, err
	}
	imm := MiscImm{SubOpcode: subOp}

	var n int
	switch subOp {
	case MiscI32TruncSatF32S, MiscI32TruncSatF32U,
		MiscI32TruncSatF64S, MiscI32TruncSatF64U,
		MiscI64TruncSatF32S, MiscI64TruncSatF32U,
		MiscI64TruncSatF64S, MiscI64TruncSatF64U:
		// Saturating truncations: no additional operands
	case MiscMemoryInit, MiscMemoryCopy:
		n = 2
	case MiscDataDrop, MiscMemoryFill:
		n = 1
	default:
		return MiscImm{}, fmt.Errorf("unknown 0xFC sub-opcode: 0x%02x", subOp)
	}
	for i := 0; i < n; i++ {
		v, err := ReadLEB128u(r)
		if err != nil {
			return MiscImm{}, err
		}
		imm.Operands = append(imm.Operands, v)
	}
	return imm, nil
}

func truncated(op byte, err error) error {
	if err == io.EOF {
		err = ErrTruncated
	}
	return fmt.Errorf("%s: %w", OpName(op), err)
}

// EncodeInstructionTo writes a single instruction to the provided buffer.
func EncodeInstructionTo(buf *bytes.Buffer, instr *Instruction) {
	buf.WriteByte(instr.Opcode)

	switch imm := instr.Imm.(type) {
	case BlockImm:
		WriteLEB128s(buf, imm.Type)
	case ThrowImm:
		WriteLEB128u(buf, imm.TagIdx)
	case BranchImm:
		WriteLEB128u(buf, imm.LabelIdx)
	case BrTableImm:
		WriteLEB128u(buf, uint32(len(imm.Labels)))
		for _, l := range imm.Labels {
			WriteLEB128u(buf, l)
		}
		WriteLEB128u(buf, imm.Default)
	case CallImm:
		WriteLEB128u(buf, imm.FuncIdx)
	case CallIndirectImm:
		WriteLEB128u(buf, imm.TypeIdx)
		WriteLEB128u(buf, imm.TableIdx)
	case LocalImm:
		WriteLEB128u(buf, imm.LocalIdx)
	case GlobalImm:
		WriteLEB128u(buf, imm.GlobalIdx)
	case MemoryImm:
		WriteLEB128u(buf, imm.Align)
		WriteLEB128u64(buf, imm.Offset)
	case MemoryIdxImm:
		WriteLEB128u(buf, imm.MemIdx)
	case I32Imm:
		WriteLEB128s(buf, imm.Value)
	case I64Imm:
		WriteLEB128s64(buf, imm.Value)
	case F32Imm:
		WriteFloat32(buf, imm.Value)
	case F64Imm:
		WriteFloat64(buf, imm.Value)
	case MiscImm:
		WriteLEB128u(buf, imm.SubOpcode)
		for _, o := range imm.Operands {
			WriteLEB128u(buf, o)
		}
	}
}

// EncodeInstruction encodes a single instruction to bytes.
func EncodeInstruction(instr Instruction) []byte {
	var buf bytes.Buffer
	EncodeInstructionTo(&buf, &instr)
	return buf.Bytes()
}

// EncodeInstructions encodes instructions to bytes
func EncodeInstructions(instrs []Instruction) []byte {
	var buf bytes.Buffer
	buf.Grow(len(instrs) * 3) // estimate 3 bytes per instruction
	for i := range instrs {
		EncodeInstructionTo(&buf, &instrs[i])
	}
	return buf.Bytes()
}

// readMemArg reads the align and offset immediates of a load or store.
func readMemArg(r *bytes.Reader) (MemoryImm, error) {
	align, err := ReadLEB128u(r)
	if err != nil {
		return MemoryImm{}, err
	}
	offset, err := ReadLEB128u64(r)
	if err != nil {
		return MemoryImm{}, err
	}
	return MemoryImm{Align: align, Offset: offset}, nil
}
