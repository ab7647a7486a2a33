package database

import (
	"context"
	"fmt"
	"time"

	"world-study/pkg/worlddata"
)

// BuildRun is one recorded registry build.
type BuildRun struct {
	ID        string        `json:"id"`
	Source    string        `json:"source"`
	StartedAt time.Time     `json:"startedAt"`
	Duration  time.Duration `json:"duration"`
	Regions   int           `json:"regions"`
	Polygons  int           `json:"polygons"`
	Failures  int           `json:"failures"`
}

// RunFromReport converts a build report.
func RunFromReport(source string, rep *worlddata.Report) BuildRun {
	return BuildRun{
		ID:        rep.BuildID,
		Source:    source,
		StartedAt: time.Now().Add(-rep.Duration).UTC(),
		Duration:  rep.Duration,
		Regions:   rep.Regions,
		Polygons:  rep.Polygons,
		Failures:  len(rep.Failures),
	}
}

// RecordBuildRun stores run.
func (db *Database) RecordBuildRun(ctx context.Context, run BuildRun) error {
	q := fmt.Sprintf(`INSERT INTO build_runs (id, source, started_at, duration_ms, regions, polygons, failures)
VALUES (%s)`, db.placeholders(7))
	_, err := db.DB.ExecContext(ctx, q, run.ID, run.Source, run.StartedAt.Unix(),
		run.Duration.Milliseconds(), run.Regions, run.Polygons, run.Failures)
	if err != nil {
		return fmt.Errorf("record build run: %w", err)
	}
	return nil
}

// RecentBuildRuns returns up to limit runs, newest first.
func (db *Database) RecentBuildRuns(ctx context.Context, limit int) ([]BuildRun, error) {
	if limit <= 0 {
		limit = 10
	}
	q := fmt.Sprintf(`SELECT id, source, started_at, duration_ms, regions, polygons, failures
FROM build_runs ORDER BY started_at DESC, id LIMIT %d`, limit)
	rows, err := db.DB.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query build runs: %w", err)
	}
	defer rows.Close()

	var out []BuildRun
	for rows.Next() {
		var (
			run          BuildRun
			started, dur int64
		)
		if err := rows.Scan(&run.ID, &run.Source, &started, &dur, &run.Regions, &run.Polygons, &run.Failures); err != nil {
			return nil, fmt.Errorf("scan build run: %w", err)
		}
		run.StartedAt = time.Unix(started, 0).UTC()
		run.Duration = time.Duration(dur) * time.Millisecond
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate build runs: %w", err)
	}
	return out, nil
}
