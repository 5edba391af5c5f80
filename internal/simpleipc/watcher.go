package simpleipc

import (
	"log/slog"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// pathEvent reports that a file in the watched directory was created or written.
type pathEvent struct {
	Path string
}

// watcher turns fsnotify callbacks into a channel of pathEvents so a single
// dispatcher goroutine owns all command processing.
type watcher struct {
	fsw    *fsnotify.Watcher
	events chan pathEvent
	done   chan struct{}
	wg     sync.WaitGroup
	logger *slog.Logger
}

func newWatcher(dir string, logger *slog.Logger) (*watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, err
	}

	w := &watcher{
		fsw:    fsw,
		events: make(chan pathEvent, 64),
		done:   make(chan struct{}),
		logger: logger,
	}
	w.wg.Add(1)
	go w.loop()
	return w, nil
}

// Events is closed after Close returns.
func (w *watcher) Events() <-chan pathEvent {
	return w.events
}

func (w *watcher) loop() {
	defer w.wg.Done()
	defer close(w.events)

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			// Only creates and writes can carry a new command
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			select {
			case w.events <- pathEvent{Path: event.Name}:
			case <-w.done:
				return
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", slog.String("error", err.Error()))
		}
	}
}

// Close stops the watch. Safe to call once.
func (w *watcher) Close() error {
	close(w.done)
	err := w.fsw.Close()
	w.wg.Wait()
	return err
}
