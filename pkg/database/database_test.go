package database

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"slices"
	"testing"
	"time"

	_ "world-study/pkg/database/drivers"
	"world-study/pkg/worlddata"
)

func openSQLite(t *testing.T) *Database {
	t.Helper()
	if !slices.Contains(sql.Drivers(), "sqlite") {
		t.Skip("sqlite driver not registered on this platform")
	}
	db, err := NewDatabase(Config{DBType: "sqlite", DBPath: filepath.Join(t.TempDir(), "regions.sqlite")}, t.Logf)
	if err != nil {
		t.Fatalf("NewDatabase: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.InitSchema(context.Background()); err != nil {
		t.Fatalf("InitSchema: %v", err)
	}
	return db
}

// TestConfigDSN covers the default file names and the postgres URL.
func TestConfigDSN(t *testing.T) {
	t.Parallel()

	tests := []struct {
		cfg     Config
		want    string
		wantErr bool
	}{
		{cfg: Config{DBType: " SQLite ", Port: 8765}, want: "world-study-8765.sqlite"},
		{cfg: Config{DBType: "genji", DBPath: "/tmp/g.db"}, want: "/tmp/g.db"},
		{cfg: Config{DBType: "pgx", DBUser: "u", DBPass: "p", DBHost: "h", DBPort: 5432, DBName: "world"},
			want: "postgres://u:p@h:5432/world?sslmode=prefer"},
		{cfg: Config{DBType: "pgx", DBConn: "postgres://x"}, want: "postgres://x"},
		{cfg: Config{DBType: "clickhouse"}, wantErr: true},
	}
	for _, tc := range tests {
		got, err := tc.cfg.DSN()
		if (err != nil) != tc.wantErr || got != tc.want {
			t.Errorf("DSN(%+v) = %q, %v", tc.cfg, got, err)
		}
	}
}

// TestReplaceAndLoadRegions stores records, replaces them and reads the
// second set back.
func TestReplaceAndLoadRegions(t *testing.T) {
	t.Parallel()

	db := openSQLite(t)
	ctx := context.Background()

	first := []worlddata.Record{{ID: "XX", Name: "Gone"}}
	if err := db.ReplaceRegions(ctx, first); err != nil {
		t.Fatal(err)
	}
	second := []worlddata.Record{
		{
			ID: "sm", Name: "San Marino", Continent: "Europe", Enclave: true, Population: 33938,
			TLDs:     []string{".sm"},
			Capitals: map[string]worlddata.Position{"San Marino": {X: 10, Y: 10}},
			Paths:    []string{"M9 9 L11 9 L11 11 L9 11 Z"},
			FlagSVG:  []byte("<svg/>"),
		},
		{ID: "IT", Name: "Italy", AreaKm2: 301336, Rings: [][][][2]float64{{{{0, 0}, {20, 0}, {20, 20}, {0, 0}}}}},
	}
	if err := db.ReplaceRegions(ctx, second); err != nil {
		t.Fatal(err)
	}

	got, err := db.LoadRegions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != "IT" || got[1].ID != "SM" {
		t.Fatalf("records = %+v", got)
	}
	sm := got[1]
	if !sm.Enclave || sm.Population != 33938 || sm.Capitals["San Marino"].X != 10 ||
		!slices.Equal(sm.TLDs, []string{".sm"}) || len(sm.Paths) != 1 || string(sm.FlagSVG) != "<svg/>" {
		t.Errorf("SM = %+v", sm)
	}
	if it := got[0]; it.AreaKm2 != 301336 || len(it.Rings) != 1 || it.Capitals != nil {
		t.Errorf("IT = %+v", it)
	}
}

// TestStreamRegionsStopsOnCancel closes both channels when the caller
// cancels mid-stream.
func TestStreamRegionsStopsOnCancel(t *testing.T) {
	t.Parallel()

	db := openSQLite(t)
	recs := []worlddata.Record{{ID: "AA"}, {ID: "BB"}, {ID: "CC"}}
	if err := db.ReplaceRegions(context.Background(), recs); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	out, errs := db.StreamRegions(ctx)
	<-out
	cancel()
	for range out {
	}
	if err := <-errs; err != nil && !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
}

// TestBuildRuns records runs and lists the newest first.
func TestBuildRuns(t *testing.T) {
	t.Parallel()

	db := openSQLite(t)
	ctx := context.Background()
	old := BuildRun{ID: "a", Source: "json", StartedAt: time.Unix(100, 0), Duration: 1500 * time.Millisecond, Regions: 2}
	recent := RunFromReport("snapshot", &worlddata.Report{BuildID: "b", Regions: 4, Polygons: 9})
	for _, run := range []BuildRun{old, recent} {
		if err := db.RecordBuildRun(ctx, run); err != nil {
			t.Fatal(err)
		}
	}
	runs, err := db.RecentBuildRuns(ctx, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 || runs[0].ID != "b" || runs[1].Duration != 1500*time.Millisecond || runs[0].Polygons != 9 {
		t.Fatalf("runs = %+v", runs)
	}
}
