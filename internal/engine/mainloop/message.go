package mainloop

import "go.trai.ch/knot/internal/core/domain"

// Message is an instruction for the main loop. The set of messages is closed.
type Message interface {
	isMessage()
}

// CheckWorkspace requests a check of the current revision.
type CheckWorkspace struct{}

// CheckCompleted carries the result of a check and the revision it was computed for.
type CheckCompleted struct {
	Result   []string
	Revision domain.Revision
	Err      error
}

// ApplyChanges carries a batch of file changes reported by the watcher.
type ApplyChanges struct {
	Events []domain.ChangeEvent
}

// Exit terminates the loop. In-flight checks finish and are discarded.
type Exit struct{}

func (CheckWorkspace) isMessage() {}
func (CheckCompleted) isMessage() {}
func (ApplyChanges) isMessage()   {}
func (Exit) isMessage()           {}
