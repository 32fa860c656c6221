package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// Watcher flags changes below a topic root. The control loop drains the flag with
// Changed and rescans synchronously, so no catalog state is touched from here.
type Watcher struct {
	watcher *fsnotify.Watcher
	changed atomic.Bool
	done    chan bool
}

func NewWatcher(root string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("unable to create watcher: %w", err)
	}

	w := &Watcher{watcher: fw, done: make(chan bool)}
	if err := w.addTree(root); err != nil {
		fw.Close()
		return nil, err
	}

	go func() {
		for {
			select {
			case ev, ok := <-fw.Events:
				if !ok {
					w.done <- true
					return
				}
				logrus.Debugf("Topic tree event: %s", ev)
				if ev.Has(fsnotify.Create) {
					if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
						if err := fw.Add(ev.Name); err != nil {
							logrus.Warnf("Unable to watch %s: %v", ev.Name, err)
						}
					}
				}
				w.changed.Store(true)
			case err, ok := <-fw.Errors:
				if !ok {
					w.done <- true
					return
				}
				logrus.Warnf("Topic watcher error: %v", err)
			}
		}
	}()

	return w, nil
}

func (w *Watcher) addTree(root string) error {
	if err := w.watcher.Add(root); err != nil {
		return fmt.Errorf("unable to watch %s: %w", root, err)
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return fmt.Errorf("unable to read directory, %s, %w", root, err)
	}
	for _, entry := range entries {
		if !entry.IsDir() || entry.Name()[0] == '.' {
			continue
		}
		if err := w.watcher.Add(filepath.Join(root, entry.Name())); err != nil {
			return fmt.Errorf("unable to watch %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// Changed reports whether something changed since the previous call.
func (w *Watcher) Changed() bool {
	return w.changed.Swap(false)
}

func (w *Watcher) Close() error {
	err := w.watcher.Close()
	<-w.done
	return err
}
