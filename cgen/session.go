package cgen

import (
	"fmt"
	"strings"

	"github.com/wippyai/wasm2c/errors"
	"github.com/wippyai/wasm2c/ir"
)

// session holds all mutable state of one generation run. It is created by
// Generate and never shared.
type session struct {
	mod   *ir.Module
	opts  Options
	entry *ir.Function
	names *Sanitizer

	globals map[uint32]*Var
	labels  int
	tmps    int
	rets    int

	visited map[string]bool
	funcs   []*emitted

	includes     orderedSet
	unixIncludes orderedSet
	winIncludes  orderedSet
	prepend      orderedSet
	prologue     orderedSet
}

// emitted is one finished function body.
type emitted struct {
	fn        *ir.Function
	cname     string
	signature string
	body      string
}

func newSession(m *ir.Module, opts Options) *session {
	s := &session{
		mod:     m,
		opts:    opts,
		names:   NewSanitizer(nil),
		globals: make(map[uint32]*Var, len(m.Globals)),
		visited: make(map[string]bool),
	}
	s.includes.add("stdint.h", "")

	s.entry = m.Func(opts.Entry)
	if s.entry == nil {
		panic(errors.NotFound(errors.PhaseGenerate, "entry function", opts.Entry))
	}

	s.names.Reserve(s.entry.Name, "main")
	for _, f := range m.Funcs {
		s.names.Name(f.Name)
	}
	for _, g := range m.Globals {
		s.globals[g.Idx] = &Var{Name: s.names.Name(g.Name), T: g.Type, Kind: VarGlobal}
	}
	return s
}

// nextLabel returns a label id unique within the session.
func (s *session) nextLabel() int {
	id := s.labels
	s.labels++
	return id
}

func (s *session) nextTmp() int {
	id := s.tmps
	s.tmps++
	return id
}

func (s *session) nextRet() int {
	id := s.rets
	s.rets++
	return id
}

// helper registers a prepended definition once. It reports whether the
// definition was new.
func (s *session) helper(name, text string) bool {
	return s.prepend.add(name, text)
}

// usesArgv reports whether the module imports readArgv, which makes main
// take argc and argv.
func (s *session) usesArgv() bool {
	for _, imp := range s.mod.Imports {
		if b, ok := lookupBuiltin(imp.Name); ok && b.name == "readArgv" {
			return true
		}
	}
	return false
}

// orderedSet keeps first-insertion order and ignores later duplicates.
type orderedSet struct {
	vals map[string]string
	keys []string
}

func (o *orderedSet) add(key, val string) bool {
	if o.vals == nil {
		o.vals = make(map[string]string)
	}
	if _, ok := o.vals[key]; ok {
		return false
	}
	o.vals[key] = val
	o.keys = append(o.keys, key)
	return true
}

func (o *orderedSet) has(key string) bool {
	_, ok := o.vals[key]
	return ok
}

func (o *orderedSet) len() int { return len(o.keys) }

func (o *orderedSet) values() []string {
	out := make([]string, len(o.keys))
	for i, k := range o.keys {
		out[i] = o.vals[k]
	}
	return out
}

// codeWriter accumulates indented C lines.
type codeWriter struct {
	b      strings.Builder
	indent int
}

func (w *codeWriter) line(format string, args ...any) {
	w.raw(fmt.Sprintf(format, args...))
}

// raw writes an already formatted line.
func (w *codeWriter) raw(text string) {
	w.b.WriteString(strings.Repeat("  ", w.indent))
	w.b.WriteString(text)
	w.b.WriteByte('\n')
}

// block writes a multi-line snippet at the current indentation.
func (w *codeWriter) block(text string) {
	for _, l := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
		if strings.HasPrefix(l, "#") {
			w.b.WriteString(l)
			w.b.WriteByte('\n')
			continue
		}
		w.raw(l)
	}
}

func (w *codeWriter) blank() { w.b.WriteByte('\n') }

func (w *codeWriter) String() string { return w.b.String() }
