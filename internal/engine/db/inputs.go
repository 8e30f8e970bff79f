package db

import (
	"errors"
	"io/fs"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	"go.trai.ch/knot/internal/core/domain"
)

type inputKind uint8

const (
	inputMetadata inputKind = iota
	inputContent
	inputDirectory
)

func (k inputKind) String() string {
	switch k {
	case inputMetadata:
		return "metadata"
	case inputContent:
		return "content"
	default:
		return "directory"
	}
}

type inputKey struct {
	kind inputKind
	path domain.FilePath
}

// inputSlot caches one read of the filesystem. A dirty slot is re-read on next
// access; if the fingerprint is unchanged its changedAt revision is kept.
type inputSlot struct {
	mu          sync.Mutex
	seen        bool
	dirty       bool
	value       any
	fingerprint uint64
	changedAt   domain.Revision
}

func (s *inputSlot) markDirty() {
	s.mu.Lock()
	s.dirty = true
	s.mu.Unlock()
}

// Metadata is the tracked state of a path.
type Metadata struct {
	Exists      bool
	IsDir       bool
	Permissions fs.FileMode
}

// IsFile reports whether the path exists and is not a directory.
func (m Metadata) IsFile() bool {
	return m.Exists && !m.IsDir
}

// DirEntry is one entry of a tracked directory listing.
type DirEntry struct {
	Name  string
	IsDir bool
}

// input returns the current value of an input and the revision it last changed at.
func (d *Database) input(key inputKey) (any, domain.Revision) {
	d.mu.Lock()
	slot, ok := d.inputs[key]
	if !ok {
		slot = &inputSlot{}
		d.inputs[key] = slot
	}
	d.mu.Unlock()

	slot.mu.Lock()
	defer slot.mu.Unlock()

	if slot.seen && !slot.dirty {
		return slot.value, slot.changedAt
	}

	value, fingerprint := d.readInput(key)
	d.stats.inputReads.Add(1)

	if !slot.seen || fingerprint != slot.fingerprint {
		slot.changedAt = d.Revision()
	}
	slot.seen = true
	slot.dirty = false
	slot.value = value
	slot.fingerprint = fingerprint
	return slot.value, slot.changedAt
}

func (d *Database) readInput(key inputKey) (any, uint64) {
	switch key.kind {
	case inputMetadata:
		m := d.readMetadata(key.path)
		return m, xxhash.Sum64String(strconv.FormatBool(m.Exists) + strconv.FormatBool(m.IsDir) + m.Permissions.String())
	case inputContent:
		content := d.readContent(key.path)
		return content, xxhash.Sum64String(content)
	default:
		entries := d.readDirectory(key.path)
		digest := xxhash.New()
		for _, e := range entries {
			_, _ = digest.WriteString(e.Name)
			if e.IsDir {
				_, _ = digest.WriteString("/")
			}
			_, _ = digest.WriteString("\x00")
		}
		return entries, digest.Sum64()
	}
}

func (d *Database) readMetadata(p domain.FilePath) Metadata {
	var (
		info fs.FileInfo
		err  error
	)
	if p.Vendored {
		if d.vendored == nil {
			return Metadata{}
		}
		info, err = fs.Stat(d.vendored, p.Path)
	} else {
		info, err = d.system.Stat(p.Path)
	}
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) && !errors.Is(err, domain.ErrFileNotFound) {
			d.logger.Debug("stat failed", "path", p.String(), "error", err)
		}
		return Metadata{}
	}
	return Metadata{
		Exists:      true,
		IsDir:       info.IsDir(),
		Permissions: info.Mode().Perm(),
	}
}

func (d *Database) readContent(p domain.FilePath) string {
	var (
		data []byte
		err  error
	)
	if p.Vendored {
		if d.vendored == nil {
			return ""
		}
		data, err = fs.ReadFile(d.vendored, p.Path)
	} else {
		data, err = d.system.ReadFile(p.Path)
	}
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) && !errors.Is(err, domain.ErrFileNotFound) {
			d.logger.Debug("read failed", "path", p.String(), "error", err)
		}
		return ""
	}
	return string(data)
}

func (d *Database) readDirectory(p domain.FilePath) []DirEntry {
	var (
		entries []fs.DirEntry
		err     error
	)
	if p.Vendored {
		if d.vendored == nil {
			return nil
		}
		entries, err = fs.ReadDir(d.vendored, p.Path)
	} else {
		entries, err = d.system.ReadDir(p.Path)
	}
	if err != nil {
		return nil
	}
	out := make([]DirEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, DirEntry{Name: e.Name(), IsDir: e.IsDir()})
	}
	slices.SortFunc(out, func(a, b DirEntry) int {
		return strings.Compare(a.Name, b.Name)
	})
	return out
}
