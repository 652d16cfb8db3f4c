package wasm

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

// Parsing errors returned by ParseModule.
var (
	ErrInvalidMagic   = errors.New("invalid wasm magic number")
	ErrInvalidVersion = errors.New("invalid wasm version")
)

// sectionReader tracks the absolute offset for error messages.
type sectionReader struct {
	*bytes.Reader
	base int
	size int
}

func newSectionReader(data []byte, base int) *sectionReader {
	return &sectionReader{Reader: bytes.NewReader(data), base: base, size: len(data)}
}

func (r *sectionReader) pos() int { return r.base + r.size - r.Len() }

func (r *sectionReader) wrap(what string, err error) error {
	if errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	return fmt.Errorf("%s at offset %d: %w", what, r.pos(), err)
}

func (r *sectionReader) u32() (uint32, error) { return ReadLEB128u(r) }

func (r *sectionReader) bytesN(n uint32) ([]byte, error) {
	if int(n) > r.Len() {
		return nil, io.ErrUnexpectedEOF
	}
	buf := make([]byte, n)
	_, err := io.ReadFull(r, buf)
	return buf, err
}

func (r *sectionReader) name() (string, error) {
	n, err := r.u32()
	if err != nil {
		return "", err
	}
	data, err := r.bytesN(n)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(data) {
		return "", errors.New("invalid UTF-8 in name")
	}
	return string(data), nil
}

// ParseModule parses a WebAssembly binary module. Only the MVP sections the
// C backend understands are accepted; tables and element segments are skipped.
func ParseModule(data []byte) (*Module, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("header: %w", io.ErrUnexpectedEOF)
	}
	if binary.LittleEndian.Uint32(data[0:4]) != Magic {
		return nil, ErrInvalidMagic
	}
	if binary.LittleEndian.Uint32(data[4:8]) != Version {
		return nil, ErrInvalidVersion
	}

	m := &Module{}
	r := newSectionReader(data[8:], 8)
	lastID := byte(0)

	for r.Len() > 0 {
		sectionID, err := r.ReadByte()
		if err != nil {
			return nil, r.wrap("section header", err)
		}
		if sectionID != SectionCustom && sectionID != SectionDataCount {
			if sectionID <= lastID {
				return nil, fmt.Errorf("section %d appears out of order", sectionID)
			}
			lastID = sectionID
		}

		size, err := r.u32()
		if err != nil {
			return nil, r.wrap("section size", err)
		}
		start := r.pos()
		body, err := r.bytesN(size)
		if err != nil {
			return nil, r.wrap("section data", err)
		}
		sr := newSectionReader(body, start)

		switch sectionID {
		case SectionCustom, SectionTable, SectionElement, SectionDataCount:
			// Not needed for code generation.
		case SectionType:
			err = parseTypeSection(sr, m)
		case SectionImport:
			err = parseImportSection(sr, m)
		case SectionFunction:
			err = parseFunctionSection(sr, m)
		case SectionMemory:
			err = parseMemorySection(sr, m)
		case SectionGlobal:
			err = parseGlobalSection(sr, m)
		case SectionExport:
			err = parseExportSection(sr, m)
		case SectionStart:
			var idx uint32
			if idx, err = sr.u32(); err == nil {
				m.Start = &idx
			}
		case SectionCode:
			err = parseCodeSection(sr, m)
		case SectionData:
			err = parseDataSection(sr, m)
		default:
			return nil, fmt.Errorf("unsupported section ID: 0x%02x", sectionID)
		}
		if err != nil {
			return nil, fmt.Errorf("section %d: %w", sectionID, err)
		}
	}

	if len(m.Code) != len(m.Funcs) {
		return nil, fmt.Errorf("function and code section counts differ: %d != %d", len(m.Funcs), len(m.Code))
	}
	return m, nil
}

func readValType(r *sectionReader) (ValType, error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	switch v := ValType(b); v {
	case ValI32, ValI64, ValF32, ValF64:
		return v, nil
	}
	return 0, fmt.Errorf("unsupported value type 0x%02x", b)
}

func readValTypes(r *sectionReader) ([]ValType, error) {
	n, err := r.u32()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	if int(n) > r.Len() {
		return nil, io.ErrUnexpectedEOF
	}
	types := make([]ValType, n)
	for i := range types {
		if types[i], err = readValType(r); err != nil {
			return nil, err
		}
	}
	return types, nil
}

func parseTypeSection(r *sectionReader, m *Module) error {
	count, err := r.u32()
	if err != nil {
		return r.wrap("type count", err)
	}
	for i := uint32(0); i < count; i++ {
		form, err := r.ReadByte()
		if err != nil {
			return r.wrap("type form", err)
		}
		if form != FuncTypeByte {
			return fmt.Errorf("type %d: unsupported form 0x%02x", i, form)
		}
		params, err := readValTypes(r)
		if err != nil {
			return r.wrap("params", err)
		}
		results, err := readValTypes(r)
		if err != nil {
			return r.wrap("results", err)
		}
		m.Types = append(m.Types, FuncType{Params: params, Results: results})
	}
	return nil
}

func parseImportSection(r *sectionReader, m *Module) error {
	count, err := r.u32()
	if err != nil {
		return r.wrap("import count", err)
	}
	for i := uint32(0); i < count; i++ {
		var imp Import
		if imp.Module, err = r.name(); err != nil {
			return r.wrap("import module", err)
		}
		if imp.Name, err = r.name(); err != nil {
			return r.wrap("import name", err)
		}
		if imp.Desc.Kind, err = r.ReadByte(); err != nil {
			return r.wrap("import kind", err)
		}
		switch imp.Desc.Kind {
		case KindFunc:
			if imp.Desc.TypeIdx, err = r.u32(); err != nil {
				return r.wrap("import type", err)
			}
		case KindMemory:
			lim, err := readLimits(r)
			if err != nil {
				return r.wrap("import memory", err)
			}
			imp.Desc.Memory = &MemoryType{Limits: lim}
		case KindGlobal:
			gt, err := readGlobalType(r)
			if err != nil {
				return r.wrap("import global", err)
			}
			imp.Desc.Global = &gt
		default:
			return fmt.Errorf("import %s.%s: unsupported kind %d", imp.Module, imp.Name, imp.Desc.Kind)
		}
		m.Imports = append(m.Imports, imp)
	}
	return nil
}

func parseFunctionSection(r *sectionReader, m *Module) error {
	count, err := r.u32()
	if err != nil {
		return r.wrap("function count", err)
	}
	for i := uint32(0); i < count; i++ {
		idx, err := r.u32()
		if err != nil {
			return r.wrap("function type", err)
		}
		m.Funcs = append(m.Funcs, idx)
	}
	return nil
}

func parseMemorySection(r *sectionReader, m *Module) error {
	count, err := r.u32()
	if err != nil {
		return r.wrap("memory count", err)
	}
	for i := uint32(0); i < count; i++ {
		lim, err := readLimits(r)
		if err != nil {
			return r.wrap("memory limits", err)
		}
		m.Memories = append(m.Memories, MemoryType{Limits: lim})
	}
	return nil
}

func readLimits(r *sectionReader) (Limits, error) {
	flags, err := r.ReadByte()
	if err != nil {
		return Limits{}, err
	}
	if flags&^LimitsHasMax != 0 {
		return Limits{}, fmt.Errorf("unsupported limits flags 0x%02x", flags)
	}
	min, err := r.u32()
	if err != nil {
		return Limits{}, err
	}
	lim := Limits{Min: uint64(min)}
	if flags&LimitsHasMax != 0 {
		max, err := r.u32()
		if err != nil {
			return Limits{}, err
		}
		m := uint64(max)
		lim.Max = &m
	}
	return lim, nil
}

func readGlobalType(r *sectionReader) (GlobalType, error) {
	vt, err := readValType(r)
	if err != nil {
		return GlobalType{}, err
	}
	mut, err := r.ReadByte()
	if err != nil {
		return GlobalType{}, err
	}
	return GlobalType{ValType: vt, Mutable: mut == 1}, nil
}

func parseGlobalSection(r *sectionReader, m *Module) error {
	count, err := r.u32()
	if err != nil {
		return r.wrap("global count", err)
	}
	for i := uint32(0); i < count; i++ {
		gt, err := readGlobalType(r)
		if err != nil {
			return r.wrap("global type", err)
		}
		init, err := readInitExpr(r)
		if err != nil {
			return r.wrap("global init", err)
		}
		m.Globals = append(m.Globals, Global{Type: gt, Init: init})
	}
	return nil
}

func parseExportSection(r *sectionReader, m *Module) error {
	count, err := r.u32()
	if err != nil {
		return r.wrap("export count", err)
	}
	for i := uint32(0); i < count; i++ {
		var exp Export
		if exp.Name, err = r.name(); err != nil {
			return r.wrap("export name", err)
		}
		if exp.Kind, err = r.ReadByte(); err != nil {
			return r.wrap("export kind", err)
		}
		if exp.Idx, err = r.u32(); err != nil {
			return r.wrap("export index", err)
		}
		m.Exports = append(m.Exports, exp)
	}
	return nil
}

func parseCodeSection(r *sectionReader, m *Module) error {
	count, err := r.u32()
	if err != nil {
		return r.wrap("code count", err)
	}
	for i := uint32(0); i < count; i++ {
		size, err := r.u32()
		if err != nil {
			return r.wrap("body size", err)
		}
		start := r.pos()
		data, err := r.bytesN(size)
		if err != nil {
			return r.wrap("body", err)
		}
		br := newSectionReader(data, start)

		groups, err := br.u32()
		if err != nil {
			return br.wrap("local groups", err)
		}
		var body FuncBody
		for g := uint32(0); g < groups; g++ {
			n, err := br.u32()
			if err != nil {
				return br.wrap("local count", err)
			}
			vt, err := readValType(br)
			if err != nil {
				return br.wrap("local type", err)
			}
			body.Locals = append(body.Locals, LocalEntry{Count: n, ValType: vt})
		}
		body.Code, err = br.bytesN(uint32(br.Len()))
		if err != nil {
			return br.wrap("code", err)
		}
		m.Code = append(m.Code, body)
	}
	return nil
}

func parseDataSection(r *sectionReader, m *Module) error {
	count, err := r.u32()
	if err != nil {
		return r.wrap("data count", err)
	}
	for i := uint32(0); i < count; i++ {
		var seg DataSegment
		if seg.Flags, err = r.u32(); err != nil {
			return r.wrap("data flags", err)
		}
		switch seg.Flags {
		case 0:
			if seg.Offset, err = readInitExpr(r); err != nil {
				return r.wrap("data offset", err)
			}
		case 1:
		default:
			return fmt.Errorf("data segment %d: unsupported flags %d", i, seg.Flags)
		}
		n, err := r.u32()
		if err != nil {
			return r.wrap("data size", err)
		}
		if seg.Init, err = r.bytesN(n); err != nil {
			return r.wrap("data bytes", err)
		}
		m.Data = append(m.Data, seg)
	}
	return nil
}

// readInitExpr reads a constant expression up to and including its end opcode.
func readInitExpr(r *sectionReader) ([]byte, error) {
	var buf bytes.Buffer
	for {
		instr, err := readInstruction(r.Reader)
		if err != nil {
			return nil, err
		}
		EncodeInstructionTo(&buf, &instr)
		if instr.Opcode == OpEnd {
			return buf.Bytes(), nil
		}
	}
}

// ConstValue evaluates a single-instruction constant expression such as a
// global initializer or a data segment offset.
func ConstValue(expr []byte) (Instruction, error) {
	instrs, err := DecodeInstructions(expr)
	if err != nil {
		return Instruction{}, err
	}
	if len(instrs) != 2 || instrs[1].Opcode != OpEnd {
		return Instruction{}, fmt.Errorf("unsupported constant expression of %d instructions", len(instrs))
	}
	switch instrs[0].Opcode {
	case OpI32Const, OpI64Const, OpF32Const, OpF64Const:
		return instrs[0], nil
	}
	return Instruction{}, fmt.Errorf("unsupported constant expression %s", OpName(instrs[0].Opcode))
}
