package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"world-study/pkg/worlddata"
)

// replaceRegionsCopy streams records into a temporary table with COPY and
// swaps them into regions inside one transaction on the same connection.
func (db *Database) replaceRegionsCopy(ctx context.Context, recs []worlddata.Record) error {
	conn, err := db.DB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open postgres connection: %w", err)
	}
	defer conn.Close()

	tempTable := fmt.Sprintf("temp_regions_%d", time.Now().UnixNano())
	if _, err := conn.ExecContext(ctx, fmt.Sprintf(
		"CREATE TEMP TABLE %s (LIKE regions INCLUDING DEFAULTS)", tempTable)); err != nil {
		return fmt.Errorf("create temp table: %w", err)
	}
	dropCtx, dropCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer dropCancel()
	defer conn.ExecContext(dropCtx, fmt.Sprintf("DROP TABLE IF EXISTS %s", tempTable))

	now := time.Now().Unix()
	rows := make([][]any, 0, len(recs))
	for _, r := range recs {
		row, err := regionRow(r, now)
		if err != nil {
			return fmt.Errorf("encode %s: %w", r.ID, err)
		}
		rows = append(rows, row)
	}

	copyErr := conn.Raw(func(driverConn any) error {
		direct, ok := driverConn.(*stdlib.Conn)
		if !ok {
			return fmt.Errorf("unexpected postgres driver %T", driverConn)
		}
		_, err := direct.Conn().CopyFrom(ctx, pgx.Identifier{tempTable}, regionColumns, pgx.CopyFromRows(rows))
		return err
	})
	if copyErr != nil {
		return fmt.Errorf("copy regions into temp table: %w", copyErr)
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()
	cols := strings.Join(regionColumns, ",")
	if err := execStatements(ctx, tx, []string{
		"DELETE FROM regions",
		fmt.Sprintf("INSERT INTO regions (%s) SELECT %s FROM %s", cols, cols, tempTable),
	}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	db.logf("database: copied %d regions", len(recs))
	return nil
}
