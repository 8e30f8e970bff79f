package domain_test

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/knot/internal/core/domain"
)

func TestNewModuleName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		valid bool
	}{
		{name: "simple", input: "os", valid: true},
		{name: "dotted", input: "os.path", valid: true},
		{name: "underscore", input: "_private.mod_2", valid: true},
		{name: "unicode", input: "café", valid: true},
		{name: "empty", input: "", valid: false},
		{name: "leading dot", input: ".os", valid: false},
		{name: "trailing dot", input: "os.", valid: false},
		{name: "double dot", input: "os..path", valid: false},
		{name: "leading digit", input: "os.1path", valid: false},
		{name: "dash", input: "my-mod", valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := domain.NewModuleName(tt.input)
			if !tt.valid {
				require.Error(t, err)
				assert.True(t, errors.Is(err, domain.ErrInvalidModuleName))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.input, m.String())
		})
	}
}

func TestModuleName_Navigation(t *testing.T) {
	m := domain.MustModuleName("a.b.c")

	assert.Equal(t, []string{"a", "b", "c"}, m.Components())
	assert.Equal(t, "a", m.TopLevel())

	parent, ok := m.Parent()
	require.True(t, ok)
	assert.Equal(t, domain.MustModuleName("a.b"), parent)

	_, ok = domain.MustModuleName("a").Parent()
	assert.False(t, ok)

	assert.True(t, m.StartsWith(domain.MustModuleName("a.b")))
	assert.True(t, m.StartsWith(m))
	assert.False(t, m.StartsWith(domain.MustModuleName("a.bc")))

	// Interned names compare by value.
	assert.Equal(t, domain.MustModuleName("a.b.c"), m)
}

func TestParsePythonVersion(t *testing.T) {
	v, err := domain.ParsePythonVersion("3.10")
	require.NoError(t, err)
	assert.Equal(t, domain.PythonVersion{Major: 3, Minor: 10}, v)
	assert.Equal(t, "3.10", v.String())

	for _, bad := range []string{"3", "3.x", "", "300.1", "3.10.1"} {
		_, err := domain.ParsePythonVersion(bad)
		require.Error(t, err, bad)
		assert.ErrorIs(t, err, domain.ErrInvalidTargetVersion)
	}
}

func TestPythonVersion_Compare(t *testing.T) {
	v39 := domain.PythonVersion{Major: 3, Minor: 9}
	v312 := domain.PythonVersion{Major: 3, Minor: 12}
	v2 := domain.PythonVersion{Major: 2, Minor: 7}

	assert.Equal(t, -1, v39.Compare(v312))
	assert.Equal(t, 1, v312.Compare(v39))
	assert.Equal(t, 0, v39.Compare(v39))
	assert.Equal(t, -1, v2.Compare(v39))
}

func TestFilePath_RelativeTo(t *testing.T) {
	root := domain.SystemPath(filepath.FromSlash("/ws"))

	rel, ok := domain.SystemPath(filepath.FromSlash("/ws/pkg/mod.py")).RelativeTo(root)
	require.True(t, ok)
	assert.Equal(t, []string{"pkg", "mod.py"}, rel)

	rel, ok = root.RelativeTo(root)
	require.True(t, ok)
	assert.Empty(t, rel)

	_, ok = domain.SystemPath(filepath.FromSlash("/wsx/mod.py")).RelativeTo(root)
	assert.False(t, ok)

	_, ok = domain.VendoredPath("stdlib/os.pyi").RelativeTo(root)
	assert.False(t, ok)
}

func TestFilePath_Vendored(t *testing.T) {
	p := domain.VendoredPath("stdlib").Join("os", "__init__.pyi")

	assert.True(t, p.Vendored)
	assert.Equal(t, "stdlib/os/__init__.pyi", p.Path)
	assert.Equal(t, "__init__", p.Stem())
	assert.Equal(t, ".pyi", p.Ext())
	assert.Equal(t, "vendored://stdlib/os/__init__.pyi", p.String())

	parent, ok := p.Parent()
	require.True(t, ok)
	assert.Equal(t, domain.VendoredPath("stdlib/os"), parent)
	assert.True(t, p.Within(domain.VendoredPath("stdlib")))
}

func TestChangeEvent_Paths(t *testing.T) {
	events := []domain.ChangeEvent{
		domain.Created{Path: "/a"},
		domain.Modified{Path: "/b"},
		domain.Deleted{Path: "/c"},
		domain.Renamed{From: "/d", To: "/e"},
	}

	var all []string
	for _, e := range events {
		all = append(all, e.Paths()...)
	}
	assert.Equal(t, []string{"/a", "/b", "/c", "/d", "/e"}, all)
}
