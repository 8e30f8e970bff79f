package checker

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
	"go.trai.ch/knot/internal/core/domain"
	"go.trai.ch/knot/internal/engine/db"
	"go.trai.ch/knot/internal/engine/resolver"
	"go.trai.ch/zerr"
)

// checkFile parses file and collects its diagnostics. Running inside a query,
// every file and module it reads becomes a dependency of the result.
func (c *Checker) checkFile(s *db.Snapshot, file domain.FilePath) ([]Diagnostic, error) {
	content, err := s.Content(file)
	if err != nil {
		return nil, err
	}
	source := []byte(content)

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(python.GetLanguage())

	tree, err := parser.ParseCtx(context.Background(), nil, source)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, "failed to parse file"), "path", file.String())
	}
	defer tree.Close()

	v := &visitor{s: s, file: file, source: source}
	if err := v.visit(tree.RootNode()); err != nil {
		return nil, err
	}
	return v.diagnostics, nil
}

type visitor struct {
	s           *db.Snapshot
	file        domain.FilePath
	source      []byte
	diagnostics []Diagnostic
}

func (v *visitor) visit(n *sitter.Node) error {
	switch {
	case n.IsMissing():
		v.report(n, fmt.Sprintf("Syntax error: expected '%s'", n.Type()))
		return nil
	case n.Type() == "ERROR":
		v.report(n, "Syntax error")
		return nil
	case n.Type() == "import_statement":
		return v.importStatement(n)
	case n.Type() == "import_from_statement":
		return v.importFromStatement(n)
	}

	for i := range int(n.ChildCount()) {
		if err := v.visit(n.Child(i)); err != nil {
			return err
		}
	}
	return nil
}

// importStatement checks `import a.b, c as d`.
func (v *visitor) importStatement(n *sitter.Node) error {
	for i := range int(n.NamedChildCount()) {
		child := n.NamedChild(i)
		if child.Type() == "aliased_import" {
			child = child.ChildByFieldName("name")
		}
		if child == nil || child.Type() != "dotted_name" {
			continue
		}
		if err := v.checkImport(child, v.dottedName(child)); err != nil {
			return err
		}
	}
	return nil
}

// importFromStatement checks the module of `from a.b import c` and `from ..a import b`.
// The imported names may be attributes and are not checked.
func (v *visitor) importFromStatement(n *sitter.Node) error {
	module := n.ChildByFieldName("module_name")
	if module == nil {
		return nil
	}
	if module.Type() == "dotted_name" {
		return v.checkImport(module, v.dottedName(module))
	}
	if module.Type() != "relative_import" {
		return nil
	}

	var level int
	var tail []string
	for i := range int(module.NamedChildCount()) {
		child := module.NamedChild(i)
		switch child.Type() {
		case "import_prefix":
			level = strings.Count(child.Content(v.source), ".")
		case "dotted_name":
			tail = strings.Split(v.dottedName(child), ".")
		}
	}

	written := strings.Repeat(".", level) + strings.Join(tail, ".")
	name, known, err := v.relativeModule(level, tail)
	if err != nil || !known {
		return err
	}
	if name.IsZero() {
		v.report(module, fmt.Sprintf("Unresolved import '%s'", written))
		return nil
	}
	return v.resolve(module, name, written)
}

func (v *visitor) checkImport(n *sitter.Node, written string) error {
	name, err := domain.NewModuleName(written)
	if err != nil {
		v.report(n, fmt.Sprintf("Invalid module name '%s'", written))
		return nil
	}
	return v.resolve(n, name, written)
}

func (v *visitor) resolve(n *sitter.Node, name domain.ModuleName, written string) error {
	module, err := resolver.ResolveModule(v.s, name)
	if err != nil {
		return err
	}
	if module == nil {
		v.report(n, fmt.Sprintf("Unresolved import '%s'", written))
	}
	return nil
}

// relativeModule anchors a relative import at the package of the checked file.
// known is false when the file is not a module of any search path. A zero name
// means the import climbs above the top-level package.
func (v *visitor) relativeModule(level int, tail []string) (domain.ModuleName, bool, error) {
	current, err := resolver.FileToModule(v.s, v.file)
	if err != nil || current == nil {
		return domain.ModuleName{}, false, err
	}

	components := current.Name.Components()
	if current.Kind != domain.KindPackage {
		components = components[:len(components)-1]
	}
	if level-1 > len(components) {
		return domain.ModuleName{}, true, nil
	}
	components = append(components[:len(components)-(level-1):len(components)-(level-1)], tail...)

	name, ok := domain.ModuleNameFromComponents(components)
	if !ok {
		return domain.ModuleName{}, true, nil
	}
	return name, true, nil
}

// dottedName joins the identifiers of a dotted_name node, dropping any
// whitespace between them.
func (v *visitor) dottedName(n *sitter.Node) string {
	parts := make([]string, 0, n.NamedChildCount())
	for i := range int(n.NamedChildCount()) {
		parts = append(parts, n.NamedChild(i).Content(v.source))
	}
	return strings.Join(parts, ".")
}

func (v *visitor) report(n *sitter.Node, message string) {
	start := n.StartPoint()
	v.diagnostics = append(v.diagnostics, Diagnostic{
		File:    v.file,
		Line:    start.Row + 1,
		Column:  start.Column + 1,
		Message: message,
	})
}
