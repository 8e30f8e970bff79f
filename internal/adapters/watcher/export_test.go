package watcher

// WatchList returns the directories registered with the OS watcher.
func (w *Watcher) WatchList() []string {
	return w.fsWatcher.WatchList()
}
