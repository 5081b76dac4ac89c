package metrics

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const timestampLayout = "2006-01-02 15:04:05"

// RequestMetric records one backend API call.
type RequestMetric struct {
	Endpoint  string
	Method    string
	Status    int
	LatencyMS int64
	Timestamp time.Time
}

// Store handles persistence of request metrics to SQLite and feeds the
// Prometheus collectors.
type Store struct {
	db     *sql.DB
	prom   *Collectors
	logger *zap.Logger
}

// NewStore initializes the Store with an existing, migrated database
// connection. prom may be nil.
func NewStore(db *sql.DB, prom *Collectors, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, prom: prom, logger: logger}
}

// Record saves a metric to the database.
func (s *Store) Record(ctx context.Context, m RequestMetric) error {
	ts := m.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO request_metrics (endpoint, method, status, latency_ms, timestamp) VALUES (?, ?, ?, ?, ?)`,
		m.Endpoint, m.Method, m.Status, m.LatencyMS, ts.UTC().Format(timestampLayout))
	if err != nil {
		return fmt.Errorf("failed to record request metric: %w", err)
	}
	return nil
}

// RecordRequest is called by the API client after every request. Failures
// are logged, never returned.
func (s *Store) RecordRequest(endpoint, method string, status int, latency time.Duration) {
	if s.prom != nil {
		s.prom.Observe(endpoint, method, status, latency)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.Record(ctx, RequestMetric{
		Endpoint:  endpoint,
		Method:    method,
		Status:    status,
		LatencyMS: latency.Milliseconds(),
	})
	if err != nil {
		s.logger.Warn("failed to persist request metric", zap.String("endpoint", endpoint), zap.Error(err))
	}
}

// DailyUsage represents request totals for a single day.
type DailyUsage struct {
	Date         string
	Requests     int
	Errors       int
	AvgLatencyMS float64
}

// GetDailyUsage retrieves usage for the last N days, newest first.
func (s *Store) GetDailyUsage(ctx context.Context, days int) ([]DailyUsage, error) {
	since := time.Now().AddDate(0, 0, -days).UTC().Format(timestampLayout)
	rows, err := s.db.QueryContext(ctx, `
		SELECT substr(timestamp, 1, 10) AS day,
		       COUNT(*),
		       SUM(CASE WHEN status >= 400 OR status = 0 THEN 1 ELSE 0 END),
		       AVG(latency_ms)
		FROM request_metrics
		WHERE timestamp >= ?
		GROUP BY day
		ORDER BY day DESC`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily usage: %w", err)
	}
	defer rows.Close()

	var results []DailyUsage
	for rows.Next() {
		var u DailyUsage
		if err := rows.Scan(&u.Date, &u.Requests, &u.Errors, &u.AvgLatencyMS); err != nil {
			return nil, fmt.Errorf("failed to scan daily usage: %w", err)
		}
		results = append(results, u)
	}
	return results, rows.Err()
}

// Cleanup removes records older than the specified number of days.
func (s *Store) Cleanup(ctx context.Context, olderThanDays int) (int64, error) {
	threshold := time.Now().AddDate(0, 0, -olderThanDays).UTC().Format(timestampLayout)
	res, err := s.db.ExecContext(ctx, `DELETE FROM request_metrics WHERE timestamp < ?`, threshold)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up request metrics: %w", err)
	}
	return res.RowsAffected()
}
