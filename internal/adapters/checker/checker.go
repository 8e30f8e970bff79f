// Package checker is the default analysis run by the main loop. It parses every
// workspace file with tree-sitter and reports syntax errors and imports that do
// not resolve to a module.
package checker

import (
	"cmp"
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"slices"

	"go.trai.ch/knot/internal/core/domain"
	"go.trai.ch/knot/internal/core/ports"
	"go.trai.ch/knot/internal/engine/db"
	"go.trai.ch/knot/internal/engine/mainloop"
	"go.trai.ch/knot/internal/engine/workspace"
	"golang.org/x/sync/errgroup"
)

var _ mainloop.Checker = (*Checker)(nil)

// Diagnostic is a finding at a position of a file. Line and Column are 1-based;
// the column counts bytes.
type Diagnostic struct {
	File    domain.FilePath
	Line    uint32
	Column  uint32
	Message string
}

// Checker implements mainloop.Checker.
type Checker struct {
	workspace *workspace.Workspace
	logger    ports.Logger
	workers   int

	diagnostics *db.Query[domain.FilePath, []Diagnostic]
}

// New creates a checker for the files of ws.
func New(ws *workspace.Workspace, logger ports.Logger) *Checker {
	c := &Checker{
		workspace: ws,
		logger:    logger,
		workers:   runtime.GOMAXPROCS(0),
	}
	c.diagnostics = db.NewQuery("file_diagnostics", c.checkFile)
	return c
}

// Check returns the formatted diagnostics of every workspace file, sorted by
// file and position.
func (c *Checker) Check(ctx context.Context, s *db.Snapshot) ([]string, error) {
	files, err := c.workspace.Files(s)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("checking files", "count", len(files), "revision", uint64(s.Revision()))

	perFile := make([][]Diagnostic, len(files))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for i, file := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			diagnostics, err := c.diagnostics.Get(s, file)
			if err != nil {
				return err
			}
			perFile[i] = diagnostics
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	all := slices.Concat(perFile...)
	slices.SortFunc(all, compareDiagnostics)

	lines := make([]string, 0, len(all))
	for _, d := range all {
		lines = append(lines, c.format(d))
	}
	return lines, nil
}

// FileDiagnostics returns the unformatted diagnostics of one file.
func (c *Checker) FileDiagnostics(s *db.Snapshot, file domain.FilePath) ([]Diagnostic, error) {
	return c.diagnostics.Get(s, file)
}

func (c *Checker) format(d Diagnostic) string {
	name := d.File.String()
	if rel, err := filepath.Rel(c.workspace.Root().Path, d.File.Path); err == nil && !d.File.Vendored && filepath.IsLocal(rel) {
		name = rel
	}
	return fmt.Sprintf("%s:%d:%d: %s", name, d.Line, d.Column, d.Message)
}

func compareDiagnostics(a, b Diagnostic) int {
	return cmp.Or(
		cmp.Compare(a.File.Path, b.File.Path),
		cmp.Compare(a.Line, b.Line),
		cmp.Compare(a.Column, b.Column),
		cmp.Compare(a.Message, b.Message),
	)
}
