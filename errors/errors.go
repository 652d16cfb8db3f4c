package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseLoad     Phase = "load"     // reading IR or wasm input
	PhaseDecode   Phase = "decode"   // instruction and immediate decoding
	PhaseValidate Phase = "validate" // IR structural checks
	PhaseGenerate Phase = "generate" // C source emission
	PhaseLower    Phase = "lower"    // IR to wasm binary
	PhaseRuntime  Phase = "runtime"  // reference execution
)

// Kind categorizes the error
type Kind string

const (
	KindStackUnderflow Kind = "stack_underflow"
	KindBranchDepth    Kind = "branch_depth"
	KindInvalidData    Kind = "invalid_data"
	KindUnsupported    Kind = "unsupported"
	KindNotFound       Kind = "not_found"
	KindInvalidInput   Kind = "invalid_input"
	KindInstantiation  Kind = "instantiation"
	KindTrap           Kind = "trap"
)

// Error is the structured error type used throughout the toolchain
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Func   string
	Op     string
	Detail string
	Offset int
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Func != "" {
		b.WriteString(" in ")
		b.WriteString(e.Func)
		if e.Op != "" {
			fmt.Fprintf(&b, " at #%d", e.Offset)
		}
	}

	if e.Op != "" {
		b.WriteString(" (")
		b.WriteString(e.Op)
		b.WriteByte(')')
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Func sets the function being processed
func (b *Builder) Func(name string) *Builder {
	b.err.Func = name
	return b
}

// Op sets the instruction mnemonic and its position in the function body
func (b *Builder) Op(name string) *Builder {
	b.err.Op = name
	return b
}

// At sets the instruction index within the function body
func (b *Builder) At(offset int) *Builder {
	b.err.Offset = offset
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// StackUnderflow reports a pop from an operand stack holding too few values.
func StackUnderflow(fn, op string, want, have int) *Error {
	return &Error{
		Phase:  PhaseGenerate,
		Kind:   KindStackUnderflow,
		Func:   fn,
		Op:     op,
		Detail: fmt.Sprintf("need %d values, have %d", want, have),
	}
}

// BranchDepth reports a branch whose depth exceeds the open control frames.
func BranchDepth(fn, op string, depth uint32, frames int) *Error {
	return &Error{
		Phase:  PhaseGenerate,
		Kind:   KindBranchDepth,
		Func:   fn,
		Op:     op,
		Detail: fmt.Sprintf("depth %d with %d open frames", depth, frames),
		Value:  depth,
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidData creates an invalid data error
func InvalidData(phase Phase, fn, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Func:   fn,
		Detail: detail,
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// Load creates an input loading error
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInvalidData,
		Detail: detail,
		Cause:  cause,
	}
}

// Instantiation creates an instantiation error
func Instantiation(cause error) *Error {
	return &Error{
		Phase:  PhaseRuntime,
		Kind:   KindInstantiation,
		Detail: "instantiate module",
		Cause:  cause,
	}
}

// Trap wraps a runtime trap raised while executing fn.
func Trap(fn string, cause error) *Error {
	return &Error{
		Phase:  PhaseRuntime,
		Kind:   KindTrap,
		Func:   fn,
		Detail: "call trapped",
		Cause:  cause,
	}
}
