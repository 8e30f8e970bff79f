package mainloop

import "sync"

// CancellationToken requests an orderly shutdown of a MainLoop. It posts a single
// Exit message through the loop's queue, after any message already queued.
type CancellationToken struct {
	once sync.Once
	send func(Message)
}

// Cancel stops the loop. Calls after the first are no-ops.
func (t *CancellationToken) Cancel() {
	t.once.Do(func() {
		t.send(Exit{})
	})
}
