package watcher

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFsnotifyOpToOperation(t *testing.T) {
	tests := []struct {
		name   string
		op     fsnotify.Op
		want   Operation
		wantOK bool
	}{
		{"remove", fsnotify.Remove, OpDelete, true},
		{"rename", fsnotify.Rename, OpDelete, true},
		{"create", fsnotify.Create, OpCreate, true},
		{"write", fsnotify.Write, OpModify, true},
		{"chmod ignored", fsnotify.Chmod, 0, false},
		{"remove wins over write", fsnotify.Remove | fsnotify.Write, OpDelete, true},
		{"rename wins over create", fsnotify.Rename | fsnotify.Create, OpDelete, true},
		{"create wins over write", fsnotify.Create | fsnotify.Write, OpCreate, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := fsnotifyOpToOperation(tt.op)
			if ok != tt.wantOK || (ok && got != tt.want) {
				t.Errorf("fsnotifyOpToOperation(%v) = %v, %v; want %v, %v", tt.op, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestOperationString(t *testing.T) {
	tests := []struct {
		op   Operation
		want string
	}{
		{OpCreate, "create"},
		{OpModify, "modify"},
		{OpDelete, "delete"},
		{Operation(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.op.String(); got != tt.want {
			t.Errorf("Operation(%d).String() = %q, want %q", tt.op, got, tt.want)
		}
	}
}

func TestIsRegionFile(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"area.geojson", true},
		{"/regions/AREA.GeoJSON", true},
		{"area.json", true},
		{"area.geojson.bak", false},
		{".area.geojson", false},
		{"area.geojson~", false},
		{"area.gpkg", false},
		{"geojson", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := isRegionFile(tt.path); got != tt.want {
				t.Errorf("isRegionFile(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestMergePending(t *testing.T) {
	tests := []struct {
		name     string
		existing Operation
		next     Operation
		want     Operation
	}{
		{"create then write", OpCreate, OpModify, OpCreate},
		{"write then write", OpModify, OpModify, OpModify},
		{"write then delete", OpModify, OpDelete, OpDelete},
		{"delete then create", OpDelete, OpCreate, OpCreate},
		{"delete then write", OpDelete, OpModify, OpCreate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &pendingEvent{op: tt.existing}
			mergePending(p, tt.next)
			if p.op != tt.want {
				t.Errorf("op = %v, want %v", p.op, tt.want)
			}
		})
	}
}

// recorder collects handled events.
type recorder struct {
	mu     sync.Mutex
	events []Event
	notify chan struct{}
}

func (r *recorder) handle(_ context.Context, e Event) error {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	r.notify <- struct{}{}
	return nil
}

func (r *recorder) wait(t *testing.T) Event {
	t.Helper()
	select {
	case <-r.notify:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

func TestWatcherDeliversDebouncedEvents(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "existing.geojson")
	if err := os.WriteFile(existing, []byte(polygonFile), 0o600); err != nil {
		t.Fatal(err)
	}

	rec := &recorder{notify: make(chan struct{}, 16)}
	w, err := New(Config{Dir: dir, Debounce: 50 * time.Millisecond}, rec.handle, testLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer func() { _ = w.Stop() }()

	// Files present at startup are delivered as creations
	if e := rec.wait(t); e.Path != existing || e.Operation != OpCreate {
		t.Errorf("event = %+v, want create of %s", e, existing)
	}

	// Ignored extension
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	added := filepath.Join(dir, "added.geojson")
	if err := os.WriteFile(added, []byte(polygonFile), 0o600); err != nil {
		t.Fatal(err)
	}
	if e := rec.wait(t); e.Path != added || e.Operation != OpCreate {
		t.Errorf("event = %+v, want create of %s", e, added)
	}

	if err := os.Remove(added); err != nil {
		t.Fatal(err)
	}
	if e := rec.wait(t); e.Path != added || e.Operation != OpDelete {
		t.Errorf("event = %+v, want delete of %s", e, added)
	}
}

func TestStopWithoutCancel(t *testing.T) {
	w, err := New(Config{Dir: t.TempDir()}, func(context.Context, Event) error { return nil }, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		_ = w.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop() did not return")
	}
	if err := w.Stop(); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}
}

func TestProcessPendingOrder(t *testing.T) {
	rec := &recorder{notify: make(chan struct{}, 4)}
	w := &Watcher{
		handler:  func(ctx context.Context, e Event) error { return rec.handle(ctx, e) },
		logger:   testLogger(),
		debounce: time.Millisecond,
		pending:  make(map[string]*pendingEvent),
	}
	old := time.Now().Add(-time.Second)
	w.pending["b.geojson"] = &pendingEvent{timestamp: old.Add(2 * time.Millisecond), op: OpModify}
	w.pending["a.geojson"] = &pendingEvent{timestamp: old, op: OpCreate}
	w.pending["c.geojson"] = &pendingEvent{timestamp: time.Now().Add(time.Hour), op: OpCreate}

	w.processPending(context.Background())

	if len(rec.events) != 2 {
		t.Fatalf("handled %d events, want 2", len(rec.events))
	}
	if rec.events[0].Path != "a.geojson" || rec.events[1].Path != "b.geojson" {
		t.Errorf("order = %v", rec.events)
	}
	if _, ok := w.pending["c.geojson"]; !ok {
		t.Error("event inside debounce window should stay pending")
	}
}

func TestQueueExistingOldestFirst(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	files := map[string]time.Time{
		"a.geojson": now,
		"b.geojson": now.Add(-2 * time.Hour),
		"c.geojson": now.Add(-time.Hour),
		"d.geojson": now.Add(-time.Hour),
	}
	for name, mtime := range files {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(polygonFile), 0o600); err != nil {
			t.Fatal(err)
		}
		if err := os.Chtimes(path, mtime, mtime); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	w := &Watcher{logger: testLogger(), pending: make(map[string]*pendingEvent)}
	w.queueExisting(dir)

	if len(w.pending) != 4 {
		t.Fatalf("pending = %d, want 4", len(w.pending))
	}
	want := []string{"b.geojson", "c.geojson", "d.geojson", "a.geojson"}
	for i := 1; i < len(want); i++ {
		prev := w.pending[filepath.Join(dir, want[i-1])]
		next := w.pending[filepath.Join(dir, want[i])]
		if !prev.timestamp.Before(next.timestamp) {
			t.Errorf("%s should be queued before %s", want[i-1], want[i])
		}
		if next.op != OpCreate {
			t.Errorf("%s op = %v, want create", want[i], next.op)
		}
	}
}

func TestHandlerErrorIsLogged(t *testing.T) {
	w := &Watcher{
		handler:  func(context.Context, Event) error { return errors.New("bad file") },
		logger:   testLogger(),
		debounce: time.Millisecond,
		pending:  map[string]*pendingEvent{"x.geojson": {timestamp: time.Now().Add(-time.Second), op: OpCreate}},
	}

	w.processPending(context.Background())

	if len(w.pending) != 0 {
		t.Error("failed event should not be retried")
	}
}
