package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"world-study/pkg/worlddata"
)

var regionColumns = []string{
	"id", "name", "official_name", "continent", "population", "area",
	"enclave", "tlds", "capitals", "flag_svg", "geometry", "updated_at",
}

// geometry is the JSON column layout for outline data.
type geometry struct {
	Paths []string         `json:"paths,omitempty"`
	Rings [][][][2]float64 `json:"rings,omitempty"`
}

func regionRow(r worlddata.Record, now int64) ([]any, error) {
	tlds, err := json.Marshal(r.TLDs)
	if err != nil {
		return nil, err
	}
	capitals, err := json.Marshal(r.Capitals)
	if err != nil {
		return nil, err
	}
	geom, err := json.Marshal(geometry{Paths: r.Paths, Rings: r.Rings})
	if err != nil {
		return nil, err
	}
	enclave := 0
	if r.Enclave {
		enclave = 1
	}
	return []any{
		worlddata.NormalizeID(r.ID), r.Name, r.OfficialName, r.Continent,
		r.Population, r.AreaKm2, enclave,
		string(tlds), string(capitals), string(r.FlagSVG), string(geom), now,
	}, nil
}

// ReplaceRegions swaps the stored records for recs in one transaction.
// PostgreSQL loads them with COPY.
func (db *Database) ReplaceRegions(ctx context.Context, recs []worlddata.Record) error {
	if db.Driver == "pgx" {
		return db.replaceRegionsCopy(ctx, recs)
	}

	tx, err := db.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM regions"); err != nil {
		return fmt.Errorf("clear regions: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO regions (%s) VALUES (%s)",
		strings.Join(regionColumns, ","), db.placeholders(len(regionColumns))))
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for _, r := range recs {
		row, err := regionRow(r, now)
		if err != nil {
			return fmt.Errorf("encode %s: %w", r.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return fmt.Errorf("insert %s: %w", r.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	db.logf("database: stored %d regions", len(recs))
	return nil
}

// StreamRegions yields stored records ordered by id. Both channels are
// closed when the stream ends; at most one error is sent.
func (db *Database) StreamRegions(ctx context.Context) (<-chan worlddata.Record, <-chan error) {
	out := make(chan worlddata.Record)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		rows, err := db.DB.QueryContext(ctx, fmt.Sprintf("SELECT %s FROM regions ORDER BY id",
			strings.Join(regionColumns[:len(regionColumns)-1], ",")))
		if err != nil {
			errCh <- fmt.Errorf("query regions: %w", err)
			return
		}
		defer rows.Close()

		for rows.Next() {
			r, err := scanRegion(rows)
			if err != nil {
				errCh <- err
				return
			}
			select {
			case out <- r:
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			}
		}
		if err := rows.Err(); err != nil {
			errCh <- fmt.Errorf("iterate regions: %w", err)
		}
	}()

	return out, errCh
}

// LoadRegions collects StreamRegions into a slice.
func (db *Database) LoadRegions(ctx context.Context) ([]worlddata.Record, error) {
	recs, errs := db.StreamRegions(ctx)
	var out []worlddata.Record
	for r := range recs {
		out = append(out, r)
	}
	if err := <-errs; err != nil {
		return nil, err
	}
	return out, nil
}

func scanRegion(rows *sql.Rows) (worlddata.Record, error) {
	var (
		r                         worlddata.Record
		official, continent, flag sql.NullString
		tlds, capitals, geom      sql.NullString
		population, enclave       sql.NullInt64
		area                      sql.NullFloat64
	)
	if err := rows.Scan(&r.ID, &r.Name, &official, &continent, &population, &area,
		&enclave, &tlds, &capitals, &flag, &geom); err != nil {
		return r, fmt.Errorf("scan region: %w", err)
	}
	r.OfficialName = official.String
	r.Continent = continent.String
	r.Population = population.Int64
	r.AreaKm2 = area.Float64
	r.Enclave = enclave.Int64 != 0
	if flag.String != "" {
		r.FlagSVG = []byte(flag.String)
	}
	if err := unmarshalColumn(tlds, &r.TLDs); err != nil {
		return r, fmt.Errorf("region %s tlds: %w", r.ID, err)
	}
	if err := unmarshalColumn(capitals, &r.Capitals); err != nil {
		return r, fmt.Errorf("region %s capitals: %w", r.ID, err)
	}
	var g geometry
	if err := unmarshalColumn(geom, &g); err != nil {
		return r, fmt.Errorf("region %s geometry: %w", r.ID, err)
	}
	r.Paths, r.Rings = g.Paths, g.Rings
	return r, nil
}

func unmarshalColumn(s sql.NullString, v any) error {
	if !s.Valid || s.String == "" || s.String == "null" {
		return nil
	}
	return json.Unmarshal([]byte(s.String), v)
}
