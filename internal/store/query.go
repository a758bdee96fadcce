package store

import (
	"context"
	"database/sql"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/icefield/velocube/internal/errors"
	"github.com/icefield/velocube/internal/granule"
)

// Summary is the result of inspecting a store with SQL: record counts and
// velocity-magnitude statistics over the valid cells of every segment.
type Summary struct {
	Records    int64
	FirstDate  int64
	LastDate   int64
	MinV       float64
	MaxV       float64
	MeanV      float64
	ValidCells int64
}

// Query inspects the store's segments with DuckDB. The segments are read
// in place; nothing is loaded through the Go row decoder.
type Query struct {
	db      *sql.DB
	pattern string
}

// NewQuery opens an in-memory DuckDB session over the store's segments.
func NewQuery(s *Store) (*Query, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, errors.Wrap(err, "open duckdb")
	}
	return &Query{db: db, pattern: s.SegmentPattern()}, nil
}

// Close releases the SQL session.
func (q *Query) Close() error {
	return q.db.Close()
}

// Summarize computes the store summary: record-axis extent and statistics
// of the unnested velocity magnitude with missing cells excluded.
func (q *Query) Summarize(ctx context.Context) (*Summary, error) {
	var s Summary

	row := q.db.QueryRowContext(ctx, `
		SELECT count(*),
		       coalesce(min(mid_date), 0),
		       coalesce(max(mid_date), 0)
		FROM read_parquet($1)
	`, q.pattern)
	if err := row.Scan(&s.Records, &s.FirstDate, &s.LastDate); err != nil {
		return nil, errors.Wrap(err, "summarize records")
	}

	row = q.db.QueryRowContext(ctx, `
		SELECT count(*),
		       coalesce(min(cell), 0),
		       coalesce(max(cell), 0),
		       coalesce(avg(cell), 0)
		FROM (
			SELECT unnest(v) AS cell FROM read_parquet($1)
		)
		WHERE cell != $2
	`, q.pattern, int64(granule.MissingValue))
	if err := row.Scan(&s.ValidCells, &s.MinV, &s.MaxV, &s.MeanV); err != nil {
		return nil, errors.Wrap(err, "summarize velocity")
	}

	return &s, nil
}
