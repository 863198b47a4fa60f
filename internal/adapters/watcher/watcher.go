// Package watcher feeds region files from a watched directory into an
// extraction session.
package watcher

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period before a file event is handled.
const DefaultDebounce = 500 * time.Millisecond

// Event represents a file system event.
type Event struct {
	Path      string
	Operation Operation
}

// Operation represents the type of file operation.
type Operation int

// File operation types.
const (
	OpCreate Operation = iota
	OpModify
	OpDelete
)

// String returns the string representation of the operation.
func (o Operation) String() string {
	switch o {
	case OpCreate:
		return "create"
	case OpModify:
		return "modify"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Handler is called when a relevant file event occurs.
type Handler func(ctx context.Context, event Event) error

// pendingEvent holds a debounced event with its operation.
type pendingEvent struct {
	timestamp time.Time
	op        Operation
}

// Watcher watches a directory for region file changes. Events for one file
// are debounced and handled in order.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	handler   Handler
	logger    *slog.Logger
	dir       string
	debounce  time.Duration

	mu      sync.Mutex
	pending map[string]*pendingEvent

	handleMu sync.Mutex
	wg       sync.WaitGroup
	done     chan struct{}
	stopOnce sync.Once
}

// Config holds watcher configuration.
type Config struct {
	Dir      string
	Debounce time.Duration
}

// New creates a new file watcher.
func New(cfg Config, handler Handler, logger *slog.Logger) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}

	return &Watcher{
		fsWatcher: fsWatcher,
		handler:   handler,
		logger:    logger,
		dir:       cfg.Dir,
		debounce:  cfg.Debounce,
		pending:   make(map[string]*pendingEvent),
		done:      make(chan struct{}),
	}, nil
}

// Start creates the directory if needed, queues existing region files as
// creations and starts watching.
func (w *Watcher) Start(ctx context.Context) error {
	absDir, err := filepath.Abs(w.dir)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(absDir, 0o755); err != nil {
		return err
	}
	if err := w.fsWatcher.Add(absDir); err != nil {
		return err
	}
	w.logger.Info("watching region directory", "path", absDir)

	w.queueExisting(absDir)

	w.wg.Add(2)
	go w.eventLoop(ctx)
	go w.debounceLoop(ctx)

	return nil
}

// Stop stops the watcher and waits for running handlers.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		err = w.fsWatcher.Close()
		w.wg.Wait()
	})
	return err
}

// queueExisting schedules files already present in dir, oldest modification
// time first, so the most recently written file ends up as the active region.
func (w *Watcher) queueExisting(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		w.logger.Warn("failed to list region directory", "path", dir, "error", err)
		return
	}

	type existingFile struct {
		name    string
		modTime time.Time
	}
	var files []existingFile
	for _, e := range entries {
		if e.IsDir() || !isRegionFile(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// Removed since listing
			continue
		}
		files = append(files, existingFile{name: e.Name(), modTime: info.ModTime()})
	}
	sort.Slice(files, func(i, j int) bool {
		if !files[i].modTime.Equal(files[j].modTime) {
			return files[i].modTime.Before(files[j].modTime)
		}
		return files[i].name < files[j].name
	})

	w.mu.Lock()
	defer w.mu.Unlock()
	base := time.Now()
	for i, f := range files {
		w.pending[filepath.Join(dir, f.name)] = &pendingEvent{
			timestamp: base.Add(time.Duration(i) * time.Millisecond),
			op:        OpCreate,
		}
	}
}

// eventLoop processes fsnotify events.
func (w *Watcher) eventLoop(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			w.handleFsEvent(event)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error", "error", err)
		}
	}
}

// handleFsEvent records a single fsnotify event for debouncing.
func (w *Watcher) handleFsEvent(event fsnotify.Event) {
	if !isRegionFile(event.Name) {
		return
	}

	op, ok := fsnotifyOpToOperation(event.Op)
	if !ok {
		return
	}

	w.logger.Debug("file event", "path", event.Name, "op", event.Op.String())

	w.mu.Lock()
	defer w.mu.Unlock()

	existing, exists := w.pending[event.Name]
	if !exists {
		w.pending[event.Name] = &pendingEvent{
			timestamp: time.Now(),
			op:        op,
		}
		return
	}

	mergePending(existing, op)
}

// mergePending folds a new operation into a pending one.
func mergePending(existing *pendingEvent, newOp Operation) {
	existing.timestamp = time.Now()

	switch {
	case existing.op == OpDelete && newOp != OpDelete:
		// Deleted then written again
		existing.op = OpCreate
	case newOp == OpDelete:
		existing.op = OpDelete
	}
	// create followed by writes stays a create
}

// debounceLoop processes debounced events.
func (w *Watcher) debounceLoop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.debounce / 5)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case <-ticker.C:
			w.processPending(ctx)
		}
	}
}

// processPending handles debounced events, oldest first.
func (w *Watcher) processPending(ctx context.Context) {
	w.mu.Lock()
	now := time.Now()
	var ready []Event
	var stamps []time.Time
	for path, p := range w.pending {
		if now.Sub(p.timestamp) < w.debounce {
			continue
		}
		delete(w.pending, path)
		ready = append(ready, Event{Path: path, Operation: p.op})
		stamps = append(stamps, p.timestamp)
	}
	w.mu.Unlock()

	sort.Sort(byTime{events: ready, stamps: stamps})

	// Handlers run one at a time so a session sees region changes in file order.
	w.handleMu.Lock()
	defer w.handleMu.Unlock()
	for _, e := range ready {
		w.logger.Info("processing region file",
			"path", e.Path,
			"operation", e.Operation.String(),
		)
		if err := w.handler(ctx, e); err != nil {
			w.logger.Error("handler error",
				"path", e.Path,
				"operation", e.Operation.String(),
				"error", err,
			)
		}
	}
}

type byTime struct {
	events []Event
	stamps []time.Time
}

func (b byTime) Len() int           { return len(b.events) }
func (b byTime) Less(i, j int) bool { return b.stamps[i].Before(b.stamps[j]) }
func (b byTime) Swap(i, j int) {
	b.events[i], b.events[j] = b.events[j], b.events[i]
	b.stamps[i], b.stamps[j] = b.stamps[j], b.stamps[i]
}

// fsnotifyOpToOperation converts fsnotify.Op to our Operation type.
// Attribute-only changes are ignored.
func fsnotifyOpToOperation(op fsnotify.Op) (Operation, bool) {
	switch {
	case op.Has(fsnotify.Remove), op.Has(fsnotify.Rename):
		// Renamed files are gone from the watched name
		return OpDelete, true
	case op.Has(fsnotify.Create):
		return OpCreate, true
	case op.Has(fsnotify.Write):
		return OpModify, true
	default:
		return 0, false
	}
}

// isRegionFile checks if the path names a GeoJSON region file. Editor
// swap and hidden files are skipped.
func isRegionFile(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") || strings.HasSuffix(base, "~") {
		return false
	}
	ext := strings.ToLower(filepath.Ext(base))
	return ext == ".geojson" || ext == ".json"
}
