// Package snapshot stores region records as a compact binary file:
// msgpack encoded and zlib compressed at the best level. Snapshots are
// written by the offline tool and loaded by the server at startup.
package snapshot

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zlib"
	"github.com/ugorji/go/codec"

	"world-study/pkg/worlddata"
)

// FormatVersion is bumped whenever the record layout changes incompatibly.
const FormatVersion = 1

// ErrVersion is returned for snapshots written by another format version.
var ErrVersion = errors.New("snapshot: unsupported format version")

// Snapshot is the file payload.
type Snapshot struct {
	Version   int                `codec:"version"`
	CreatedAt int64              `codec:"created_at"` // unix seconds
	Source    string             `codec:"source"`
	Records   []worlddata.Record `codec:"records"`
}

// Created returns CreatedAt as a time.
func (s *Snapshot) Created() time.Time { return time.Unix(s.CreatedAt, 0).UTC() }

func handle() *codec.MsgpackHandle {
	h := &codec.MsgpackHandle{}
	h.WriteExt = true
	h.RawToString = true
	return h
}

// Write encodes records to w.
func Write(w io.Writer, source string, records []worlddata.Record) error {
	zw, err := zlib.NewWriterLevel(w, zlib.BestCompression)
	if err != nil {
		return fmt.Errorf("snapshot: zlib: %w", err)
	}
	s := Snapshot{
		Version:   FormatVersion,
		CreatedAt: time.Now().Unix(),
		Source:    source,
		Records:   records,
	}
	if err := codec.NewEncoder(zw, handle()).Encode(&s); err != nil {
		zw.Close()
		return fmt.Errorf("snapshot: encode: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("snapshot: flush: %w", err)
	}
	return nil
}

// Read decodes a snapshot from r.
func Read(r io.Reader) (*Snapshot, error) {
	zr, err := zlib.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("snapshot: zlib: %w", err)
	}
	defer zr.Close()

	var s Snapshot
	if err := codec.NewDecoder(zr, handle()).Decode(&s); err != nil {
		return nil, fmt.Errorf("snapshot: decode: %w", err)
	}
	if s.Version != FormatVersion {
		return nil, fmt.Errorf("%w: %d", ErrVersion, s.Version)
	}
	return &s, nil
}

// WriteFile writes a snapshot atomically through a temporary file.
func WriteFile(path, source string, records []worlddata.Record) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".snapshot-*")
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := Write(tmp, source, records); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	return nil
}

// ReadFile loads a snapshot from path.
func ReadFile(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	defer f.Close()
	return Read(f)
}
