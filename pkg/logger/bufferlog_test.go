package logger

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
)

type recorder struct {
	mu    sync.Mutex
	lines []string
}

func (r *recorder) Print(args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, fmt.Sprint(args...))
}

func (r *recorder) Printf(format string, args ...any) {
	r.Print(fmt.Sprintf(format, args...))
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

// TestSuccessDropsDetails ensures a successful job prints only its summary.
func TestSuccessDropsDetails(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	b := New(rec)
	b.Begin("FR")
	b.Append("FR", "parsed 3 paths")
	b.Appendf("FR", "kept %d polygons", 3)
	b.Success("FR", "3 polygons")
	b.Sync()

	lines := rec.snapshot()
	if len(lines) != 1 || !strings.Contains(lines[0], "3 polygons") {
		t.Fatalf("lines = %q, want one summary line", lines)
	}
}

// TestFlushErrorReplays checks that a failed job replays its buffered lines
// followed by the error.
func TestFlushErrorReplays(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	b := New(rec)
	b.Begin("VA")
	b.Append("VA", "scale 115")
	b.Append("VA", "path 0 rejected")
	b.FlushError("VA", errors.New("no polygons"))
	b.Sync()

	lines := rec.snapshot()
	if len(lines) != 3 {
		t.Fatalf("lines = %q, want 3", lines)
	}
	if lines[0] != "scale 115" || lines[1] != "path 0 rejected" || !strings.Contains(lines[2], "no polygons") {
		t.Fatalf("unexpected replay: %q", lines)
	}
}

// TestAppendWithoutBegin prints unbuffered lines straight away.
func TestAppendWithoutBegin(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	b := New(rec)
	b.Append("XX", "loose line")
	b.Sync()

	if lines := rec.snapshot(); len(lines) != 1 || lines[0] != "loose line" {
		t.Fatalf("lines = %q", lines)
	}
}

// TestNilBuffer verifies the nil buffer is a silent no-op.
func TestNilBuffer(t *testing.T) {
	t.Parallel()

	var b *Buffer
	b.Begin("A")
	b.Append("A", "x")
	b.Success("A", "y")
	b.FlushError("A", errors.New("z"))
	b.Sync()
}
