package rules

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// defaultDebounce coalesces the burst of events editors emit on save.
const defaultDebounce = 250 * time.Millisecond

// Logger defines the logging interface used by the watcher.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

// Watcher reloads a rules file whenever it changes and hands each valid
// document to a callback. Invalid documents are logged and skipped.
type Watcher struct {
	path     string
	onChange func(*Set)
	debounce time.Duration
	logger   Logger

	fs   *fsnotify.Watcher
	done chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// WatcherOptions configures a Watcher.
type WatcherOptions struct {
	// Path of the rules file.
	Path string

	// OnChange receives every successfully parsed document.
	OnChange func(*Set)

	// Debounce delays reloads after a change. Zero means 250ms.
	Debounce time.Duration

	// Logger receives reload diagnostics. Nil disables logging.
	Logger Logger
}

// NewWatcher starts watching opts.Path. The directory is watched rather than
// the file so atomic renames by editors are seen.
func NewWatcher(opts WatcherOptions) (*Watcher, error) {
	if opts.Debounce <= 0 {
		opts.Debounce = defaultDebounce
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating rules watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(opts.Path)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watching %s: %w", opts.Path, err)
	}

	w := &Watcher{
		path:     filepath.Clean(opts.Path),
		onChange: opts.OnChange,
		debounce: opts.Debounce,
		logger:   opts.Logger,
		fs:       fsw,
		done:     make(chan struct{}),
	}
	w.wg.Add(1)
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	defer w.wg.Done()

	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if !w.isRelevant(ev) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			w.reload()
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Warn("rules watcher error", "error", err)
		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return
		}
	}
}

func (w *Watcher) isRelevant(ev fsnotify.Event) bool {
	if filepath.Clean(ev.Name) != w.path {
		return false
	}
	return ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename)
}

func (w *Watcher) reload() {
	set, err := Load(w.path)
	if err != nil {
		w.logger.Warn("rules reload failed", "path", w.path, "error", err)
		return
	}
	w.logger.Info("rules reloaded", "path", w.path)
	if w.onChange != nil {
		w.onChange(set)
	}
}

// Close stops the watcher. Safe to call more than once.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		err = w.fs.Close()
		w.wg.Wait()
	})
	return err
}
