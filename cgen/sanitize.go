package cgen

import (
	"regexp"
	"strconv"
	"strings"
)

// Sanitize maps name onto the C identifier grammar.
//
// Every rune outside [0-9a-zA-Z_] becomes the letter 'a'+code%26 repeated
// ceil(code/26) times. A leading digit gets an underscore prefix and the
// empty name becomes "_".
func Sanitize(name string) string {
	var b strings.Builder
	for _, r := range name {
		if isIdentRune(r) {
			b.WriteRune(r)
			continue
		}
		letter := byte('a' + r%26)
		for code := int(r); code > 0; code -= 26 {
			b.WriteByte(letter)
		}
	}
	out := b.String()
	if out == "" || (out[0] >= '0' && out[0] <= '9') {
		out = "_" + out
	}
	return out
}

func isIdentRune(r rune) bool {
	return r == '_' || (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

// IsIdent reports whether s is a valid C identifier.
func IsIdent(s string) bool {
	return identRE.MatchString(s)
}

var identRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// generatorNames matches identifiers the generator introduces itself.
var generatorNames = regexp.MustCompile(`^(_r\d+|_\d+|_tmp\d+[ab]?|_memory|_argc|_argv|_time|_readArgv|_readFile|(i32|i64|f32|f64)_(load|store)(8|16|32)?(_[su])?)$`)

var cKeywords = map[string]bool{}

func init() {
	for _, k := range strings.Fields(`auto break case char const continue default do double else
		enum extern float for goto if inline int long register restrict return short signed
		sizeof static struct switch typedef union unsigned void volatile while
		_Alignas _Alignof _Atomic _Bool _Complex _Generic _Imaginary _Noreturn _Static_assert _Thread_local
		u8 u16 i8 i16 i32 u32 i64 u64 f32 f64 NaN ReturnValue int8_t int16_t int32_t int64_t uint8_t uint16_t uint32_t uint64_t
		main argc argv printf putchar memcpy memmove memset exit abort fopen fgetc fclose stdin FILE EOF NULL
		fabs fabsf ceil ceilf floor floorf trunc truncf nearbyint nearbyintf sqrt sqrtf copysign copysignf
		clock_gettime timespec LARGE_INTEGER QueryPerformanceCounter QueryPerformanceFrequency`) {
		cKeywords[k] = true
	}
}

// Sanitizer assigns stable, collision-free C names within one scope.
//
// A name is sanitized with Sanitize. If the result is reserved, already
// taken by a different original name, or taken in the parent scope, the
// smallest free "_<n>" suffix is appended.
type Sanitizer struct {
	parent *Sanitizer
	names  map[string]string
	taken  map[string]string
}

// NewSanitizer creates a scope. Names taken in parent are unavailable.
func NewSanitizer(parent *Sanitizer) *Sanitizer {
	return &Sanitizer{
		parent: parent,
		names:  make(map[string]string),
		taken:  make(map[string]string),
	}
}

// Reserve binds orig to the fixed C name c, bypassing sanitization.
func (s *Sanitizer) Reserve(orig, c string) {
	s.names[orig] = c
	s.taken[c] = orig
}

// Name returns the C name for orig, assigning one on first use.
func (s *Sanitizer) Name(orig string) string {
	if c, ok := s.names[orig]; ok {
		return c
	}
	base := Sanitize(orig)
	c := base
	for n := 1; !s.free(c, orig); n++ {
		c = base + "_" + strconv.Itoa(n)
	}
	s.names[orig] = c
	s.taken[c] = orig
	return c
}

// Lookup returns the C name already assigned to orig.
func (s *Sanitizer) Lookup(orig string) (string, bool) {
	c, ok := s.names[orig]
	return c, ok
}

func (s *Sanitizer) free(c, orig string) bool {
	if cKeywords[c] || generatorNames.MatchString(c) {
		return false
	}
	if prev, ok := s.taken[c]; ok && prev != orig {
		return false
	}
	for p := s.parent; p != nil; p = p.parent {
		if _, ok := p.taken[c]; ok {
			return false
		}
	}
	return true
}
