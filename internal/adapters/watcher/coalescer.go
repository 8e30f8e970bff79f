package watcher

import (
	"github.com/fsnotify/fsnotify"
	"go.trai.ch/knot/internal/core/domain"
)

type pathChange int

const (
	changeCreated pathChange = iota + 1
	changeModified
	changeDeleted
)

// merge folds a later change into an earlier one for the same path.
func merge(prev, next pathChange) pathChange {
	switch {
	case prev == changeCreated && next == changeModified:
		return changeCreated
	case prev == changeDeleted && next == changeCreated:
		return changeModified
	default:
		return next
	}
}

type entry struct {
	path   string
	change pathChange
	rename *domain.Renamed
}

// coalescer folds raw notifications into one change event per path, in the
// order paths were first seen. A rename followed directly by a create is
// reported as one Renamed event; a rename without a matching create is a delete.
type coalescer struct {
	entries   []entry
	index     map[string]int
	renamedTo map[string]struct{}
	renaming  string
}

func newCoalescer() *coalescer {
	return &coalescer{
		index:     make(map[string]int),
		renamedTo: make(map[string]struct{}),
	}
}

func (c *coalescer) add(event fsnotify.Event) {
	if event.Has(fsnotify.Create) {
		from := c.renaming
		c.renaming = ""
		switch {
		case from == "":
			c.record(event.Name, changeCreated)
		case from == event.Name:
			c.record(event.Name, changeModified)
		default:
			c.entries = append(c.entries, entry{rename: &domain.Renamed{From: from, To: event.Name}})
			c.renamedTo[event.Name] = struct{}{}
		}
		return
	}

	c.settleRename()
	switch {
	case event.Has(fsnotify.Remove):
		c.record(event.Name, changeDeleted)
	case event.Has(fsnotify.Rename):
		c.renaming = event.Name
	case event.Has(fsnotify.Write), event.Has(fsnotify.Chmod):
		if _, ok := c.renamedTo[event.Name]; ok {
			return
		}
		c.record(event.Name, changeModified)
	}
}

func (c *coalescer) settleRename() {
	if c.renaming != "" {
		c.record(c.renaming, changeDeleted)
		c.renaming = ""
	}
}

func (c *coalescer) record(path string, change pathChange) {
	if i, ok := c.index[path]; ok {
		c.entries[i].change = merge(c.entries[i].change, change)
		return
	}
	c.index[path] = len(c.entries)
	c.entries = append(c.entries, entry{path: path, change: change})
}

// drain returns the coalesced batch and resets the coalescer.
func (c *coalescer) drain() []domain.ChangeEvent {
	c.settleRename()
	if len(c.entries) == 0 {
		return nil
	}

	events := make([]domain.ChangeEvent, 0, len(c.entries))
	for _, e := range c.entries {
		switch {
		case e.rename != nil:
			events = append(events, *e.rename)
		case e.change == changeCreated:
			events = append(events, domain.Created{Path: e.path})
		case e.change == changeModified:
			events = append(events, domain.Modified{Path: e.path})
		case e.change == changeDeleted:
			events = append(events, domain.Deleted{Path: e.path})
		}
	}

	c.entries = nil
	clear(c.index)
	clear(c.renamedTo)
	return events
}
