package snapshot

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zlib"
	"github.com/ugorji/go/codec"

	"world-study/pkg/worlddata"
)

func records() []worlddata.Record {
	return []worlddata.Record{
		{
			ID: "IT", Name: "Italy", Continent: "Europe", Population: 59554023,
			Capitals: map[string]worlddata.Position{"Rome": {X: 5, Y: 5}},
			Paths:    []string{"M0 0 L20 0 L20 20 L0 20 Z"},
			FlagSVG:  []byte("<svg/>"),
		},
		{
			ID: "SM", Name: "San Marino", Enclave: true,
			Rings: [][][][2]float64{{{{9, 9}, {11, 9}, {11, 11}, {9, 11}, {9, 9}}}},
		},
	}
}

// TestSnapshotBuildsSameRegistry checks that a registry built from a
// snapshot answers lookups like one built from the source records.
func TestSnapshotBuildsSameRegistry(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := Write(&buf, "test", records()); err != nil {
		t.Fatal(err)
	}
	s, err := Read(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if s.Source != "test" || len(s.Records) != 2 || s.Created().IsZero() {
		t.Fatalf("snapshot = %+v", s)
	}
	if string(s.Records[0].FlagSVG) != "<svg/>" || s.Records[0].Capitals["Rome"].X != 5 {
		t.Errorf("IT record = %+v", s.Records[0])
	}

	want, _ := worlddata.Build(records(), worlddata.DefaultOptions())
	got, rep := worlddata.Build(s.Records, worlddata.DefaultOptions())
	if len(rep.Failures) != 0 {
		t.Fatalf("failures: %v", rep.Failures)
	}
	for _, pt := range [][2]float64{{1, 1}, {10, 10}, {8.5, 10}, {30, 30}} {
		a, _ := want.RegionAt(pt[0], pt[1])
		b, _ := got.RegionAt(pt[0], pt[1])
		if a != b {
			t.Errorf("RegionAt(%v) = %q from snapshot, %q from source", pt, b, a)
		}
	}
}

// TestSnapshotRejects covers corrupt input and foreign versions.
func TestSnapshotRejects(t *testing.T) {
	t.Parallel()

	if _, err := Read(bytes.NewReader([]byte("not zlib"))); err == nil {
		t.Error("garbage accepted")
	}

	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if err := codec.NewEncoder(zw, handle()).Encode(&Snapshot{Version: FormatVersion + 1}); err != nil {
		t.Fatal(err)
	}
	zw.Close()
	if _, err := Read(&buf); !errors.Is(err, ErrVersion) {
		t.Errorf("err = %v, want ErrVersion", err)
	}
}

// TestWriteFile writes through a temporary file and reads the result.
func TestWriteFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "regions.bin")
	if err := WriteFile(path, "file", records()); err != nil {
		t.Fatal(err)
	}
	s, err := ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(s.Records) != 2 || s.Records[1].ID != "SM" || !s.Records[1].Enclave {
		t.Fatalf("records = %+v", s.Records)
	}
	if _, err := ReadFile(filepath.Join(t.TempDir(), "missing.bin")); err == nil {
		t.Error("missing file accepted")
	}
}
