// Historiographus - Industrial Historian Reporting and Document Generation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/historiographus

// Package archive stores collected historian samples in an embedded
// DuckDB database. The archive serves report generation and the samples
// API so that repeated reads of the same window do not hit the OPC UA
// servers again.
package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/tomtom215/historiographus/internal/logging"
	"github.com/tomtom215/historiographus/internal/metrics"
	"github.com/tomtom215/historiographus/internal/models"
)

// ErrClosed is returned for operations on a closed archive.
var ErrClosed = errors.New("archive is closed")

// schema is executed at startup. DuckDB replays its WAL on open, so the
// statements must stay idempotent.
const schema = `
CREATE TABLE IF NOT EXISTS samples (
    endpoint_id VARCHAR NOT NULL,
    tag         VARCHAR NOT NULL,
    ts          TIMESTAMP NOT NULL,
    value       DOUBLE NOT NULL,
    quality     VARCHAR NOT NULL DEFAULT 'good'
);
CREATE INDEX IF NOT EXISTS idx_samples_lookup ON samples (endpoint_id, tag, ts);
`

// Archive wraps the DuckDB connection holding collected samples.
type Archive struct {
	conn   *sql.DB
	closed bool
}

// Open opens (or creates) the archive database at path. Use ":memory:"
// for an ephemeral archive. maxMemory caps DuckDB's memory, e.g. "1GB".
func Open(path, maxMemory string) (*Archive, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("failed to create archive directory %s: %w", dir, err)
			}
		}
	}

	// Disable auto-install/auto-load to prevent hangs in restricted
	// network environments.
	connStr := fmt.Sprintf(
		"%s?access_mode=read_write&threads=%d&autoinstall_known_extensions=false&autoload_known_extensions=false",
		path, runtime.NumCPU(),
	)
	if maxMemory != "" {
		connStr += "&max_memory=" + maxMemory
	}

	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}

	// DuckDB is embedded; a small pool avoids write contention.
	conn.SetMaxOpenConns(4)
	conn.SetMaxIdleConns(2)

	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize archive schema: %w", err)
	}

	logging.Info().Str("path", path).Msg("Sample archive opened")
	return &Archive{conn: conn}, nil
}

// Close closes the underlying database.
func (a *Archive) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true
	return a.conn.Close()
}

// InsertBatch writes samples in one transaction.
func (a *Archive) InsertBatch(ctx context.Context, samples []models.Sample) error {
	if a.closed {
		return ErrClosed
	}
	if len(samples) == 0 {
		return nil
	}

	start := time.Now()
	err := a.insertBatch(ctx, samples)
	metrics.RecordArchiveQuery("insert_batch", time.Since(start), err)
	if err == nil {
		metrics.ArchiveSamplesInserted.Add(float64(len(samples)))
	}
	return err
}

func (a *Archive) insertBatch(ctx context.Context, samples []models.Sample) error {
	tx, err := a.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin archive transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO samples (endpoint_id, tag, ts, value, quality) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, s := range samples {
		quality := s.Quality
		if quality == "" {
			quality = models.QualityGood
		}
		if _, err := stmt.ExecContext(ctx, s.EndpointID, s.Tag, s.Timestamp.UTC(), s.Value, string(quality)); err != nil {
			return fmt.Errorf("failed to insert sample: %w", err)
		}
	}
	return tx.Commit()
}

// QueryRange returns samples for one tag in [start, end), ascending by
// timestamp. limit 0 means no limit.
func (a *Archive) QueryRange(ctx context.Context, endpointID, tag string, start, end time.Time, limit int) ([]models.Sample, error) {
	if a.closed {
		return nil, ErrClosed
	}

	began := time.Now()
	samples, err := a.queryRange(ctx, endpointID, tag, start, end, limit)
	metrics.RecordArchiveQuery("query_range", time.Since(began), err)
	return samples, err
}

func (a *Archive) queryRange(ctx context.Context, endpointID, tag string, start, end time.Time, limit int) ([]models.Sample, error) {
	query := `
SELECT endpoint_id, tag, ts, value, quality
FROM samples
WHERE endpoint_id = ? AND tag = ? AND ts >= ? AND ts < ?
ORDER BY ts`
	args := []interface{}{endpointID, tag, start.UTC(), end.UTC()}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := a.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query samples: %w", err)
	}
	defer rows.Close()

	var out []models.Sample
	for rows.Next() {
		var s models.Sample
		var quality string
		if err := rows.Scan(&s.EndpointID, &s.Tag, &s.Timestamp, &s.Value, &quality); err != nil {
			return nil, fmt.Errorf("failed to scan sample: %w", err)
		}
		s.Quality = models.Quality(quality)
		s.Timestamp = s.Timestamp.UTC()
		out = append(out, s)
	}
	return out, rows.Err()
}

// Aggregate buckets samples for one tag into fixed windows and returns
// per-bucket average, minimum, maximum, and count. Bad-quality samples
// are excluded.
func (a *Archive) Aggregate(ctx context.Context, endpointID, tag string, start, end time.Time, bucket time.Duration) ([]models.AggregateBucket, error) {
	if a.closed {
		return nil, ErrClosed
	}
	if bucket <= 0 {
		return nil, errors.New("bucket width must be positive")
	}

	began := time.Now()
	buckets, err := a.aggregate(ctx, endpointID, tag, start, end, bucket)
	metrics.RecordArchiveQuery("aggregate", time.Since(began), err)
	return buckets, err
}

func (a *Archive) aggregate(ctx context.Context, endpointID, tag string, start, end time.Time, bucket time.Duration) ([]models.AggregateBucket, error) {
	bucketSecs := int64(bucket / time.Second)
	rows, err := a.conn.QueryContext(ctx, `
SELECT
    to_timestamp(CAST(floor(epoch(ts) / ?) * ? AS BIGINT)) AS bucket_start,
    avg(value), min(value), max(value), count(*)
FROM samples
WHERE endpoint_id = ? AND tag = ? AND ts >= ? AND ts < ? AND quality != 'bad'
GROUP BY bucket_start
ORDER BY bucket_start`,
		bucketSecs, bucketSecs, endpointID, tag, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate samples: %w", err)
	}
	defer rows.Close()

	var out []models.AggregateBucket
	for rows.Next() {
		var b models.AggregateBucket
		if err := rows.Scan(&b.BucketStart, &b.Avg, &b.Min, &b.Max, &b.Count); err != nil {
			return nil, fmt.Errorf("failed to scan bucket: %w", err)
		}
		b.BucketStart = b.BucketStart.UTC()
		out = append(out, b)
	}
	return out, rows.Err()
}

// Coverage estimates what fraction of the window [start, end) is
// present in the archive for the given tag, assuming the tag is sampled
// at the given interval. The result is clamped to [0, 1].
func (a *Archive) Coverage(ctx context.Context, endpointID, tag string, start, end time.Time, interval time.Duration) (float64, error) {
	if a.closed {
		return 0, ErrClosed
	}
	if interval <= 0 || !end.After(start) {
		return 0, nil
	}

	began := time.Now()
	intervalSecs := int64(interval / time.Second)
	if intervalSecs < 1 {
		intervalSecs = 1
	}

	var present int64
	err := a.conn.QueryRowContext(ctx, `
SELECT count(DISTINCT CAST(floor(epoch(ts) / ?) AS BIGINT))
FROM samples
WHERE endpoint_id = ? AND tag = ? AND ts >= ? AND ts < ?`,
		intervalSecs, endpointID, tag, start.UTC(), end.UTC()).Scan(&present)
	metrics.RecordArchiveQuery("coverage", time.Since(began), err)
	if err != nil {
		return 0, fmt.Errorf("failed to compute coverage: %w", err)
	}

	expected := int64(end.Sub(start) / interval)
	if expected < 1 {
		expected = 1
	}
	coverage := float64(present) / float64(expected)
	if coverage > 1 {
		coverage = 1
	}
	return coverage, nil
}

// LatestTimestamp returns the newest sample timestamp for a tag, or the
// zero time when none exist. The collector uses it to resume reads
// without re-fetching archived ranges.
func (a *Archive) LatestTimestamp(ctx context.Context, endpointID, tag string) (time.Time, error) {
	if a.closed {
		return time.Time{}, ErrClosed
	}

	var ts sql.NullTime
	err := a.conn.QueryRowContext(ctx,
		"SELECT max(ts) FROM samples WHERE endpoint_id = ? AND tag = ?",
		endpointID, tag).Scan(&ts)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to query latest timestamp: %w", err)
	}
	if !ts.Valid {
		return time.Time{}, nil
	}
	return ts.Time.UTC(), nil
}

// Purge deletes samples older than the cutoff and returns the number
// removed. Used by retention enforcement; retention disabled means this
// is never called.
func (a *Archive) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	if a.closed {
		return 0, ErrClosed
	}

	began := time.Now()
	res, err := a.conn.ExecContext(ctx, "DELETE FROM samples WHERE ts < ?", cutoff.UTC())
	metrics.RecordArchiveQuery("purge", time.Since(began), err)
	if err != nil {
		return 0, fmt.Errorf("failed to purge samples: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return n, nil
}

// DeleteEndpoint removes all samples for an endpoint, called when the
// endpoint configuration is deleted.
func (a *Archive) DeleteEndpoint(ctx context.Context, endpointID string) error {
	if a.closed {
		return ErrClosed
	}

	began := time.Now()
	_, err := a.conn.ExecContext(ctx, "DELETE FROM samples WHERE endpoint_id = ?", endpointID)
	metrics.RecordArchiveQuery("delete_endpoint", time.Since(began), err)
	if err != nil {
		return fmt.Errorf("failed to delete endpoint samples: %w", err)
	}
	return nil
}
