package domain

// ChangeEvent describes a single filesystem mutation.
// The concrete types are Created, Modified, Deleted and Renamed.
type ChangeEvent interface {
	// Paths returns every path touched by the event.
	Paths() []string
	isChangeEvent()
}

// Created reports that a file or directory appeared at Path.
type Created struct {
	Path string
}

// Modified reports that the content or metadata of Path changed.
type Modified struct {
	Path string
}

// Deleted reports that Path no longer exists.
type Deleted struct {
	Path string
}

// Renamed reports that From was moved to To.
type Renamed struct {
	From string
	To   string
}

// Paths implements ChangeEvent.
func (e Created) Paths() []string { return []string{e.Path} }

// Paths implements ChangeEvent.
func (e Modified) Paths() []string { return []string{e.Path} }

// Paths implements ChangeEvent.
func (e Deleted) Paths() []string { return []string{e.Path} }

// Paths implements ChangeEvent.
func (e Renamed) Paths() []string { return []string{e.From, e.To} }

func (Created) isChangeEvent()  {}
func (Modified) isChangeEvent() {}
func (Deleted) isChangeEvent()  {}
func (Renamed) isChangeEvent()  {}

func (e Created) String() string  { return "created " + e.Path }
func (e Modified) String() string { return "modified " + e.Path }
func (e Deleted) String() string  { return "deleted " + e.Path }
func (e Renamed) String() string  { return "renamed " + e.From + " -> " + e.To }
