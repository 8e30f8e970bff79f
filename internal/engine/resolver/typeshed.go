package resolver

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"go.trai.ch/knot/internal/core/domain"
)

// VersionsParseErrorKind classifies a TypeshedVersionsParseError.
type VersionsParseErrorKind uint8

const (
	// TooManyLines means the file exceeds the supported number of lines.
	TooManyLines VersionsParseErrorKind = iota
	// UnexpectedNumberOfColons means a line does not have exactly one colon.
	UnexpectedNumberOfColons
	// InvalidModuleName means the module part is not a dotted identifier.
	InvalidModuleName
	// UnexpectedNumberOfHyphens means the version range does not have exactly one hyphen.
	UnexpectedNumberOfHyphens
	// UnexpectedNumberOfPeriods means a version is not MAJOR.MINOR.
	UnexpectedNumberOfPeriods
	// IntegerParsingFailure means a version component is not a small integer.
	IntegerParsingFailure
)

func (k VersionsParseErrorKind) String() string {
	switch k {
	case TooManyLines:
		return "TooManyLines"
	case UnexpectedNumberOfColons:
		return "UnexpectedNumberOfColons"
	case InvalidModuleName:
		return "InvalidModuleName"
	case UnexpectedNumberOfHyphens:
		return "UnexpectedNumberOfHyphens"
	case UnexpectedNumberOfPeriods:
		return "UnexpectedNumberOfPeriods"
	default:
		return "IntegerParsingFailure"
	}
}

// maxVersionsLines bounds the VERSIONS file length.
const maxVersionsLines = math.MaxUint16

// TypeshedVersionsParseError reports a malformed line of a typeshed VERSIONS file.
type TypeshedVersionsParseError struct {
	// Line is 1-based.
	Line   int
	Kind   VersionsParseErrorKind
	Detail string
	Cause  error
}

func (e *TypeshedVersionsParseError) Error() string {
	var reason string
	switch e.Kind {
	case TooManyLines:
		reason = fmt.Sprintf("file has too many lines (%s); maximum allowed is %d", e.Detail, maxVersionsLines)
	case UnexpectedNumberOfColons:
		reason = "expected every non-comment line to have exactly one colon"
	case InvalidModuleName:
		reason = fmt.Sprintf("expected all components of '%s' to be valid Python identifiers", e.Detail)
	case UnexpectedNumberOfHyphens:
		reason = "expected every non-comment line to have exactly one '-' character"
	case UnexpectedNumberOfPeriods:
		reason = fmt.Sprintf("expected all versions to be in the form MAJOR.MINOR; got '%s'", e.Detail)
	default:
		reason = fmt.Sprintf("failed to convert '%s' to a pair of integers", e.Detail)
		if e.Cause != nil {
			reason += " due to " + e.Cause.Error()
		}
	}
	return fmt.Sprintf("error while parsing line %d of typeshed's VERSIONS file: %s", e.Line, reason)
}

func (e *TypeshedVersionsParseError) Unwrap() error {
	return e.Cause
}

// VersionRange is an inclusive range of Python versions. A nil Max is unbounded.
type VersionRange struct {
	Min domain.PythonVersion
	Max *domain.PythonVersion
}

// Contains reports whether v lies inside the range.
func (r VersionRange) Contains(v domain.PythonVersion) bool {
	if v.Compare(r.Min) < 0 {
		return false
	}
	return r.Max == nil || v.Compare(*r.Max) <= 0
}

func (r VersionRange) String() string {
	if r.Max == nil {
		return r.Min.String() + "-"
	}
	return r.Min.String() + "-" + r.Max.String()
}

// VersionsLookup is the answer of TypeshedVersions.Query.
type VersionsLookup uint8

const (
	// ModuleDoesNotExist means the module is unavailable at the target version.
	ModuleDoesNotExist VersionsLookup = iota
	// ModuleExists means the module has an entry whose range contains the target version.
	ModuleExists
	// ModuleMaybeExists means only an ancestor package has an entry and it contains the target.
	ModuleMaybeExists
)

// TypeshedVersions maps standard library module names to the versions they exist in.
type TypeshedVersions struct {
	entries map[string]VersionRange
}

// Len returns the number of entries.
func (v *TypeshedVersions) Len() int {
	return len(v.entries)
}

// Range returns the entry for an exact module name.
func (v *TypeshedVersions) Range(name string) (VersionRange, bool) {
	r, ok := v.entries[name]
	return r, ok
}

// Query reports whether name exists in the standard library at target.
// The most specific entry wins; a top-level module without an entry does not exist.
func (v *TypeshedVersions) Query(name domain.ModuleName, target domain.PythonVersion) VersionsLookup {
	if r, ok := v.entries[name.String()]; ok {
		if r.Contains(target) {
			return ModuleExists
		}
		return ModuleDoesNotExist
	}
	for parent, ok := name.Parent(); ok; parent, ok = parent.Parent() {
		if r, found := v.entries[parent.String()]; found {
			if r.Contains(target) {
				return ModuleMaybeExists
			}
			return ModuleDoesNotExist
		}
	}
	return ModuleDoesNotExist
}

// ParseTypeshedVersions parses the content of a typeshed stdlib/VERSIONS file.
// Lines look like "asyncio.taskgroups: 3.11-" with optional '#' comments.
func ParseTypeshedVersions(source string) (*TypeshedVersions, error) {
	versions := &TypeshedVersions{entries: make(map[string]VersionRange)}

	lines := strings.Split(source, "\n")
	if n := len(lines); n > maxVersionsLines && strings.TrimSpace(strings.Join(lines[maxVersionsLines:], "")) != "" {
		return nil, &TypeshedVersionsParseError{Line: maxVersionsLines + 1, Kind: TooManyLines, Detail: strconv.Itoa(n)}
	}

	for i, raw := range lines {
		lineNumber := i + 1
		line, _, _ := strings.Cut(raw, "#")
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		parts := strings.Split(line, ":")
		if len(parts) != 2 {
			return nil, &TypeshedVersionsParseError{Line: lineNumber, Kind: UnexpectedNumberOfColons}
		}
		moduleName := strings.TrimSpace(parts[0])
		if _, err := domain.NewModuleName(moduleName); err != nil {
			return nil, &TypeshedVersionsParseError{Line: lineNumber, Kind: InvalidModuleName, Detail: moduleName}
		}

		bounds := strings.Split(strings.TrimSpace(parts[1]), "-")
		if len(bounds) != 2 {
			return nil, &TypeshedVersionsParseError{Line: lineNumber, Kind: UnexpectedNumberOfHyphens}
		}

		minVersion, err := parseStubVersion(bounds[0], lineNumber)
		if err != nil {
			return nil, err
		}
		r := VersionRange{Min: minVersion}
		if upper := strings.TrimSpace(bounds[1]); upper != "" {
			maxVersion, err := parseStubVersion(upper, lineNumber)
			if err != nil {
				return nil, err
			}
			r.Max = &maxVersion
		}
		versions.entries[moduleName] = r
	}

	return versions, nil
}

func parseStubVersion(s string, line int) (domain.PythonVersion, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ".")
	if len(parts) != 2 {
		return domain.PythonVersion{}, &TypeshedVersionsParseError{Line: line, Kind: UnexpectedNumberOfPeriods, Detail: s}
	}
	major, err := strconv.ParseUint(parts[0], 10, 8)
	if err != nil {
		return domain.PythonVersion{}, &TypeshedVersionsParseError{Line: line, Kind: IntegerParsingFailure, Detail: s, Cause: err}
	}
	minor, err := strconv.ParseUint(parts[1], 10, 8)
	if err != nil {
		return domain.PythonVersion{}, &TypeshedVersionsParseError{Line: line, Kind: IntegerParsingFailure, Detail: s, Cause: err}
	}
	return domain.PythonVersion{Major: uint8(major), Minor: uint8(minor)}, nil
}
