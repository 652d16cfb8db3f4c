package errors

import (
	"errors"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:  PhaseGenerate,
				Kind:   KindStackUnderflow,
				Func:   "fib",
				Op:     "i32.add",
				Offset: 7,
				Detail: "need 2 values, have 1",
			},
			contains: []string{"[generate]", "stack_underflow", "in fib", "#7", "(i32.add)", "need 2 values"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseDecode,
				Kind:  KindInvalidData,
			},
			contains: []string{"[decode]", "invalid_data"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseRuntime,
				Kind:   KindTrap,
				Detail: "call trapped",
				Cause:  errors.New("unreachable"),
			},
			contains: []string{"[runtime]", "trap", "call trapped", "caused by", "unreachable"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := Load("read ir.json", cause)

	if err.Unwrap() != cause {
		t.Error("Unwrap should return the cause")
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the cause")
	}
}

func TestError_Is(t *testing.T) {
	err := StackUnderflow("main", "drop", 1, 0)

	if !errors.Is(err, &Error{Phase: PhaseGenerate, Kind: KindStackUnderflow}) {
		t.Error("same phase and kind should match")
	}
	if errors.Is(err, &Error{Phase: PhaseGenerate, Kind: KindBranchDepth}) {
		t.Error("different kind should not match")
	}
	if errors.Is(err, &Error{Phase: PhaseLower, Kind: KindStackUnderflow}) {
		t.Error("different phase should not match")
	}

	var target *Error
	if !errors.As(error(err), &target) || target.Func != "main" {
		t.Error("errors.As should extract *Error")
	}
}

func TestBuilder(t *testing.T) {
	cause := errors.New("bad leb")
	err := New(PhaseDecode, KindInvalidData).
		Func("loop").
		Op("i32.const").
		At(3).
		Value(uint32(0x80)).
		Cause(cause).
		Detail("immediate of %d bytes", 5).
		Build()

	if err.Phase != PhaseDecode || err.Kind != KindInvalidData {
		t.Errorf("unexpected phase/kind: %s/%s", err.Phase, err.Kind)
	}
	if err.Func != "loop" || err.Op != "i32.const" || err.Offset != 3 {
		t.Errorf("unexpected location: %s %s %d", err.Func, err.Op, err.Offset)
	}
	if err.Detail != "immediate of 5 bytes" {
		t.Errorf("unexpected detail: %q", err.Detail)
	}
	if err.Value != uint32(0x80) || err.Cause != cause {
		t.Error("value or cause not recorded")
	}
}

func TestConvenienceConstructors(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		kind Kind
		want string
	}{
		{"stack underflow", StackUnderflow("f", "i32.add", 2, 1), KindStackUnderflow, "need 2 values, have 1"},
		{"branch depth", BranchDepth("f", "br", 4, 2), KindBranchDepth, "depth 4 with 2 open frames"},
		{"unsupported", Unsupported(PhaseGenerate, "opcode 0x11"), KindUnsupported, "opcode 0x11"},
		{"not found", NotFound(PhaseRuntime, "function", "fib"), KindNotFound, `function "fib" not found`},
		{"invalid data", InvalidData(PhaseValidate, "f", "unterminated block"), KindInvalidData, "unterminated block"},
		{"invalid input", InvalidInput(PhaseLoad, "empty file"), KindInvalidInput, "empty file"},
		{"trap", Trap("f", errors.New("boom")), KindTrap, "call trapped"},
		{"instantiation", Instantiation(errors.New("boom")), KindInstantiation, "instantiate module"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Kind != tt.kind {
				t.Errorf("kind = %s, want %s", tt.err.Kind, tt.kind)
			}
			if !strings.Contains(tt.err.Detail, tt.want) {
				t.Errorf("detail %q does not contain %q", tt.err.Detail, tt.want)
			}
		})
	}
}
