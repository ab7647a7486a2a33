// Package logger keeps a per-key in-memory log buffer.
//
// Detailed lines are buffered while a keyed job (one region build) runs:
//   - if the job fails, the buffer is replayed followed by the error;
//   - if it succeeds, the buffer is dropped and one short line is printed.
//
// All state is owned by a single goroutine fed through a command channel.
package logger

import (
	"fmt"
	"strings"
	"time"
)

// Printer is the sink for finished lines. *logrus.Logger and *log.Logger
// both satisfy it.
type Printer interface {
	Print(args ...any)
	Printf(format string, args ...any)
}

type action int

const (
	actBegin action = iota
	actAppend
	actSuccess
	actFlushErr
	actSync
)

type cmd struct {
	act     action
	key     string
	message string
	err     error
	when    time.Time
	reply   chan struct{}
}

// Buffer is safe for concurrent use. A nil *Buffer discards everything.
type Buffer struct {
	ch  chan cmd
	out Printer
}

// New starts the buffer goroutine writing to out.
func New(out Printer) *Buffer {
	b := &Buffer{ch: make(chan cmd, 128), out: out}
	go b.runloop()
	return b
}

// Begin enables buffering for key.
func (b *Buffer) Begin(key string) {
	if b == nil {
		return
	}
	b.ch <- cmd{act: actBegin, key: key, when: time.Now()}
}

// Append adds a detail line for key. Without Begin the line is printed
// immediately.
func (b *Buffer) Append(key, msg string) {
	if b == nil {
		return
	}
	b.ch <- cmd{act: actAppend, key: key, message: msg, when: time.Now()}
}

// Appendf is Append with formatting.
func (b *Buffer) Appendf(key, format string, args ...any) {
	if b == nil {
		return
	}
	b.Append(key, fmt.Sprintf(format, args...))
}

// Success drops the buffer for key and prints a one-line summary.
func (b *Buffer) Success(key, summary string) {
	if b == nil {
		return
	}
	b.ch <- cmd{act: actSuccess, key: key, message: summary, when: time.Now()}
}

// FlushError replays the buffer for key and prints err.
func (b *Buffer) FlushError(key string, err error) {
	if b == nil {
		return
	}
	b.ch <- cmd{act: actFlushErr, key: key, err: err, when: time.Now()}
}

// Sync blocks until every command sent before it has been handled.
func (b *Buffer) Sync() {
	if b == nil {
		return
	}
	reply := make(chan struct{})
	b.ch <- cmd{act: actSync, reply: reply}
	<-reply
}

func (b *Buffer) runloop() {
	buffers := make(map[string]*strings.Builder)

	for c := range b.ch {
		switch c.act {
		case actBegin:
			buffers[c.key] = &strings.Builder{}

		case actAppend:
			if sb := buffers[c.key]; sb != nil {
				sb.WriteString(c.message)
				sb.WriteByte('\n')
			} else {
				b.out.Print(c.message)
			}

		case actSuccess:
			delete(buffers, c.key)
			b.out.Printf("[%-4s][build] ✔ %s", c.key, c.message)

		case actFlushErr:
			if sb := buffers[c.key]; sb != nil {
				for _, ln := range strings.Split(strings.TrimRight(sb.String(), "\n"), "\n") {
					if ln != "" {
						b.out.Print(ln)
					}
				}
				delete(buffers, c.key)
			}
			b.out.Printf("[%-4s][ERROR] %v", c.key, c.err)

		case actSync:
			close(c.reply)
		}
	}
}
