// Package telemetry records query metrics in a small SQLite database
// under the index directory. Recording is best-effort: a telemetry
// failure never affects a search.
package telemetry

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // pure Go SQLite driver (no CGO)
)

// DBFileName is the telemetry database under the data directory.
const DBFileName = "telemetry.db"

// zeroResultCap bounds the zero-result query log.
const zeroResultCap = 100

// Store is the SQLite-backed metrics store.
type Store struct {
	db *sql.DB
}

// Open opens or creates the telemetry database under dataDir.
func Open(dataDir string) (*Store, error) {
	db, err := sql.Open("sqlite", filepath.Join(dataDir, DBFileName))
	if err != nil {
		return nil, fmt.Errorf("open telemetry db: %w", err)
	}

	schema := `
	-- Latency histogram, aggregated per day.
	CREATE TABLE IF NOT EXISTS query_latency_stats (
		date TEXT NOT NULL,
		bucket TEXT NOT NULL,
		count INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (date, bucket)
	);

	-- Recent queries that returned nothing (bounded log).
	CREATE TABLE IF NOT EXISTS zero_result_queries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		query TEXT NOT NULL,
		timestamp TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	-- Overall counters.
	CREATE TABLE IF NOT EXISTS query_totals (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		total INTEGER NOT NULL DEFAULT 0,
		zero_results INTEGER NOT NULL DEFAULT 0
	);
	INSERT OR IGNORE INTO query_totals (id, total, zero_results) VALUES (1, 0, 0);
	`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create telemetry schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordQuery records one executed query.
func (s *Store) RecordQuery(query string, elapsed time.Duration, results int) error {
	date := time.Now().Format("2006-01-02")
	bucket := latencyBucket(elapsed)

	if _, err := s.db.Exec(`
		INSERT INTO query_latency_stats (date, bucket, count) VALUES (?, ?, 1)
		ON CONFLICT (date, bucket) DO UPDATE SET count = count + 1`,
		date, bucket); err != nil {
		return fmt.Errorf("record latency: %w", err)
	}

	zero := 0
	if results == 0 {
		zero = 1
		if _, err := s.db.Exec(`INSERT INTO zero_result_queries (query) VALUES (?)`, query); err != nil {
			return fmt.Errorf("record zero-result query: %w", err)
		}
		// Keep the log bounded.
		if _, err := s.db.Exec(`
			DELETE FROM zero_result_queries WHERE id NOT IN (
				SELECT id FROM zero_result_queries ORDER BY id DESC LIMIT ?)`,
			zeroResultCap); err != nil {
			return fmt.Errorf("trim zero-result log: %w", err)
		}
	}

	if _, err := s.db.Exec(`
		UPDATE query_totals SET total = total + 1, zero_results = zero_results + ?
		WHERE id = 1`, zero); err != nil {
		return fmt.Errorf("update totals: %w", err)
	}
	return nil
}

// Summary aggregates the recorded metrics.
type Summary struct {
	TotalQueries int
	ZeroResults  int
	Buckets      map[string]int
}

// Summarize reads back the aggregates.
func (s *Store) Summarize() (*Summary, error) {
	sum := &Summary{Buckets: make(map[string]int)}

	row := s.db.QueryRow(`SELECT total, zero_results FROM query_totals WHERE id = 1`)
	if err := row.Scan(&sum.TotalQueries, &sum.ZeroResults); err != nil {
		return nil, fmt.Errorf("read totals: %w", err)
	}

	rows, err := s.db.Query(`SELECT bucket, SUM(count) FROM query_latency_stats GROUP BY bucket`)
	if err != nil {
		return nil, fmt.Errorf("read latency stats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var bucket string
		var count int
		if err := rows.Scan(&bucket, &count); err != nil {
			return nil, fmt.Errorf("scan latency row: %w", err)
		}
		sum.Buckets[bucket] = count
	}
	return sum, rows.Err()
}

// latencyBucket maps an elapsed time to its histogram bucket.
func latencyBucket(d time.Duration) string {
	switch {
	case d < 10*time.Millisecond:
		return "<10ms"
	case d < 50*time.Millisecond:
		return "10-50ms"
	case d < 100*time.Millisecond:
		return "50-100ms"
	case d < 500*time.Millisecond:
		return "100-500ms"
	default:
		return ">500ms"
	}
}
