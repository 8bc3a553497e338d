package config

import (
	"log"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads the config file whenever it changes on disk,
// swapping in the new Config via Load. Its event loop is narrowed to
// the one path this system cares about instead of a general-purpose
// vfs.Watcher.
type Watcher struct {
	fsw  *fsnotify.Watcher
	path string
	done chan struct{}
}

// WatchFile starts watching path for changes, reloading the config on
// every write or create event for it; a rename or removal of the file
// does not trigger a reload. The returned Watcher must be closed when
// no longer needed.
func WatchFile(path string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := fsw.Add(path); err != nil {
		_ = fsw.Close()
		return nil, err
	}

	w := &Watcher{fsw: fsw, path: path, done: make(chan struct{})}
	go w.loop()

	return w, nil
}

func (w *Watcher) loop() {
	defer close(w.done)

	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if err := Load(w.path); err != nil {
					log.Printf("config: reload %s failed: %v", w.path, err)
				}
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Printf("config: watch error: %v", err)
		}
	}
}

// Close stops the watcher goroutine and releases the fsnotify handle.
func (w *Watcher) Close() error {
	err := w.fsw.Close()
	<-w.done

	return err
}
