package domain

import (
	"strconv"
	"strings"
	"unicode"
	"unique"

	"go.trai.ch/zerr"
)

// ModuleName is a validated, interned dotted Python module name such as "os.path".
// The zero value is not a valid name.
type ModuleName struct {
	h unique.Handle[string]
}

// NewModuleName validates and interns a dotted module name.
func NewModuleName(name string) (ModuleName, error) {
	if !isValidModuleName(name) {
		return ModuleName{}, zerr.With(zerr.Wrap(ErrInvalidModuleName, strconv.Quote(name)), "name", name)
	}
	return ModuleName{h: unique.Make(name)}, nil
}

// MustModuleName is NewModuleName for constants in tests and tables.
func MustModuleName(name string) ModuleName {
	m, err := NewModuleName(name)
	if err != nil {
		panic(err)
	}
	return m
}

// ModuleNameFromComponents joins components with dots and validates the result.
func ModuleNameFromComponents(components []string) (ModuleName, bool) {
	m, err := NewModuleName(strings.Join(components, "."))
	return m, err == nil
}

// String returns the dotted name.
func (m ModuleName) String() string {
	if m.IsZero() {
		return ""
	}
	return m.h.Value()
}

// IsZero reports whether m is the zero value.
func (m ModuleName) IsZero() bool {
	return m == ModuleName{}
}

// Components splits the name on dots.
func (m ModuleName) Components() []string {
	return strings.Split(m.String(), ".")
}

// Parent returns the enclosing package name, or false for top-level names.
func (m ModuleName) Parent() (ModuleName, bool) {
	s := m.String()
	i := strings.LastIndexByte(s, '.')
	if i < 0 {
		return ModuleName{}, false
	}
	return ModuleName{h: unique.Make(s[:i])}, true
}

// TopLevel returns the first component.
func (m ModuleName) TopLevel() string {
	s := m.String()
	if i := strings.IndexByte(s, '.'); i >= 0 {
		return s[:i]
	}
	return s
}

// StartsWith reports whether other is m or one of its ancestors.
func (m ModuleName) StartsWith(other ModuleName) bool {
	s, o := m.String(), other.String()
	return s == o || strings.HasPrefix(s, o+".")
}

// MarshalText implements encoding.TextMarshaler.
func (m ModuleName) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *ModuleName) UnmarshalText(text []byte) error {
	parsed, err := NewModuleName(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

func isValidModuleName(name string) bool {
	if name == "" {
		return false
	}
	for part := range strings.SplitSeq(name, ".") {
		if !isIdentifier(part) {
			return false
		}
	}
	return true
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', unicode.IsLetter(r):
		case i > 0 && unicode.IsDigit(r):
		default:
			return false
		}
	}
	return true
}
