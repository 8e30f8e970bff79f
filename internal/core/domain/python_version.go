package domain

import (
	"fmt"
	"strconv"
	"strings"

	"go.trai.ch/zerr"
)

// PythonVersion is a major.minor Python language version.
type PythonVersion struct {
	Major uint8
	Minor uint8
}

// DefaultPythonVersion is the target version used when none is configured.
var DefaultPythonVersion = PythonVersion{Major: 3, Minor: 12}

// ParsePythonVersion parses "3.12" style versions.
func ParsePythonVersion(s string) (PythonVersion, error) {
	invalid := zerr.With(zerr.Wrap(ErrInvalidTargetVersion, strconv.Quote(s)), "version", s)
	major, minor, ok := strings.Cut(strings.TrimSpace(s), ".")
	if !ok {
		return PythonVersion{}, invalid
	}
	maj, err := strconv.ParseUint(major, 10, 8)
	if err != nil {
		return PythonVersion{}, invalid
	}
	mnr, err := strconv.ParseUint(minor, 10, 8)
	if err != nil {
		return PythonVersion{}, invalid
	}
	return PythonVersion{Major: uint8(maj), Minor: uint8(mnr)}, nil
}

// String implements fmt.Stringer.
func (v PythonVersion) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Compare returns -1, 0 or 1.
func (v PythonVersion) Compare(other PythonVersion) int {
	switch {
	case v.Major != other.Major:
		if v.Major < other.Major {
			return -1
		}
		return 1
	case v.Minor < other.Minor:
		return -1
	case v.Minor > other.Minor:
		return 1
	default:
		return 0
	}
}

// Set implements pflag.Value so the version can be bound directly to a flag.
func (v *PythonVersion) Set(s string) error {
	parsed, err := ParsePythonVersion(s)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// Type implements pflag.Value.
func (*PythonVersion) Type() string { return "version" }

// UnmarshalText implements encoding.TextUnmarshaler for configuration files.
func (v *PythonVersion) UnmarshalText(text []byte) error {
	return v.Set(string(text))
}

// MarshalText implements encoding.TextMarshaler.
func (v PythonVersion) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}
