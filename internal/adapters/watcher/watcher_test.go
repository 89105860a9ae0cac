package watcher

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func geojsonOnly(path string) bool {
	return strings.HasSuffix(path, ".geojson")
}

func TestToOperation(t *testing.T) {
	tests := []struct {
		name     string
		op       fsnotify.Op
		expected Operation
	}{
		{"Remove returns OpDelete", fsnotify.Remove, OpDelete},
		{"Rename returns OpDelete", fsnotify.Rename, OpDelete},
		{"Create returns OpCreate", fsnotify.Create, OpCreate},
		{"Write returns OpModify", fsnotify.Write, OpModify},
		{"Chmod returns OpModify", fsnotify.Chmod, OpModify},
		{"Remove takes precedence over Write", fsnotify.Remove | fsnotify.Write, OpDelete},
		{"Create takes precedence over Write", fsnotify.Create | fsnotify.Write, OpCreate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := toOperation(tt.op); got != tt.expected {
				t.Errorf("toOperation(%v) = %v, want %v", tt.op, got, tt.expected)
			}
		})
	}
}

func TestOperationString(t *testing.T) {
	tests := []struct {
		op       Operation
		expected string
	}{
		{OpCreate, "create"},
		{OpModify, "modify"},
		{OpDelete, "delete"},
		{Operation(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.op.String(); got != tt.expected {
			t.Errorf("Operation.String() = %v, want %v", got, tt.expected)
		}
	}
}

func TestDebounce(t *testing.T) {
	w, err := New(Config{Dir: t.TempDir(), Debounce: time.Second, Filter: geojsonOnly}, func(string) {}, testLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer func() { _ = w.Stop() }()

	t0 := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	w.record("/drop/a.geojson", OpCreate, t0)
	w.record("/drop/a.geojson", OpModify, t0.Add(800*time.Millisecond))
	w.record("/drop/b.geojson", OpCreate, t0)
	w.record("/drop/c.geojson", OpCreate, t0)
	w.record("/drop/c.geojson", OpDelete, t0.Add(100*time.Millisecond))
	w.record("/drop/notes.txt", OpCreate, t0)

	if got := w.due(t0.Add(1500 * time.Millisecond)); !reflect.DeepEqual(got, []string{"/drop/b.geojson"}) {
		t.Errorf("due(+1.5s) = %v, want [/drop/b.geojson]", got)
	}
	if got := w.due(t0.Add(2 * time.Second)); !reflect.DeepEqual(got, []string{"/drop/a.geojson"}) {
		t.Errorf("due(+2s) = %v, want [/drop/a.geojson]", got)
	}
	if got := w.due(t0.Add(time.Hour)); len(got) != 0 {
		t.Errorf("due(+1h) = %v, want none", got)
	}
}

func TestWatcher_ReportsDroppedFile(t *testing.T) {
	dir := t.TempDir()
	got := make(chan string, 4)

	w, err := New(Config{Dir: dir, Debounce: 50 * time.Millisecond, Filter: geojsonOnly}, func(path string) {
		got <- path
	}, testLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer func() { _ = w.Stop() }()

	if err := os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(dir, "field.geojson")
	if err := os.WriteFile(want, []byte(`{"type":"Point","coordinates":[1,2]}`), 0600); err != nil {
		t.Fatal(err)
	}

	var paths []string
	timeout := time.After(5 * time.Second)
	for len(paths) == 0 {
		select {
		case p := <-got:
			paths = append(paths, p)
		case <-timeout:
			t.Fatal("dropped file was not reported")
		}
	}

	sort.Strings(paths)
	if abs, _ := filepath.Abs(want); paths[0] != abs && paths[0] != want {
		t.Errorf("reported %v, want %s", paths, want)
	}
}
