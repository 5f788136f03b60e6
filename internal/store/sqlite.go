package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"stockboard/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface checks.
var _ ReportStore = (*SQLiteReportStore)(nil)
var _ ReportStore = (*NoopReportStore)(nil)

// MaxReportLimit caps the number of reports returned by one query.
const MaxReportLimit = 500

// DefaultReportRetention is the number of reports kept per ticker and kind.
const DefaultReportRetention = MaxReportLimit

// SQLiteReportStore implements ReportStore backed by a SQLite database.
type SQLiteReportStore struct {
	db *sql.DB
	mu sync.Mutex

	// keep is the number of newest reports retained per ticker and kind.
	keep int
}

// NewSQLiteReportStore opens (or creates) a SQLite database at dbPath and
// runs migrations.
func NewSQLiteReportStore(dbPath string) (*SQLiteReportStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	s := &SQLiteReportStore{db: db, keep: DefaultReportRetention}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	slog.Info("report store opened", "path", dbPath)
	return s, nil
}

func (s *SQLiteReportStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS reports (
			id                 TEXT PRIMARY KEY,
			ticker             TEXT NOT NULL,
			kind               TEXT NOT NULL,
			range_start        TEXT,
			range_end          TEXT,
			data_version       INTEGER NOT NULL,
			created_at         INTEGER NOT NULL,
			row_count          INTEGER NOT NULL,
			min_close          REAL,
			max_close          REAL,
			mean_close         REAL,
			mae                REAL,
			direction_accuracy REAL,
			correlation        REAL,
			next_date          TEXT,
			next_price         REAL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_reports_ticker ON reports(ticker, kind, created_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:40], err)
		}
	}
	return nil
}

// SaveReport inserts r into the reports table, then prunes the oldest
// reports of the same ticker and kind beyond the retention limit.
func (s *SQLiteReportStore) SaveReport(ctx context.Context, r *Report) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}

	var nextDate sql.NullString
	if r.NextDate != nil {
		nextDate = sql.NullString{String: r.NextDate.Format(domain.DateLayout), Valid: true}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `INSERT INTO reports
		(id, ticker, kind, range_start, range_end, data_version, created_at, row_count,
		 min_close, max_close, mean_close, mae, direction_accuracy, correlation,
		 next_date, next_price)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		r.ID, r.Ticker, string(r.Kind),
		nullDate(r.Range.Start), nullDate(r.Range.End),
		r.DataVersion, r.CreatedAt.UnixNano(), r.Count,
		nullFloat(r.Min), nullFloat(r.Max), nullFloat(r.Mean),
		nullFloat(r.MeanAbsoluteError), nullFloat(r.DirectionAccuracy), nullFloat(r.Correlation),
		nextDate, nullFloat(r.NextPrice),
	)
	if err != nil {
		return fmt.Errorf("insert report %s: %w", r.ID, err)
	}

	_, err = s.db.ExecContext(ctx, `DELETE FROM reports
		WHERE ticker = ? AND kind = ? AND id NOT IN (
			SELECT id FROM reports WHERE ticker = ? AND kind = ?
			ORDER BY created_at DESC LIMIT ?)`,
		r.Ticker, string(r.Kind), r.Ticker, string(r.Kind), s.keep,
	)
	if err != nil {
		return fmt.Errorf("prune reports for %s: %w", r.Ticker, err)
	}
	return nil
}

// ListReports returns up to limit reports for ticker, newest first. A
// non-positive limit or one above MaxReportLimit is clamped.
func (s *SQLiteReportStore) ListReports(ctx context.Context, ticker string, kind ReportKind, limit int) ([]Report, error) {
	if limit <= 0 || limit > MaxReportLimit {
		limit = MaxReportLimit
	}

	query := `SELECT id, ticker, kind, range_start, range_end, data_version, created_at, row_count,
		min_close, max_close, mean_close, mae, direction_accuracy, correlation, next_date, next_price
		FROM reports WHERE ticker = ?`
	args := []any{ticker}
	if kind != "" {
		query += ` AND kind = ?`
		args = append(args, string(kind))
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query reports for %s: %w", ticker, err)
	}
	defer rows.Close()

	var out []Report
	for rows.Next() {
		var (
			r                     Report
			kindStr               string
			start, end, next      sql.NullString
			created               int64
			minC, maxC, meanC     sql.NullFloat64
			mae, dir, corr, nextP sql.NullFloat64
		)
		if err := rows.Scan(&r.ID, &r.Ticker, &kindStr, &start, &end, &r.DataVersion, &created, &r.Count,
			&minC, &maxC, &meanC, &mae, &dir, &corr, &next, &nextP); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		r.Kind = ReportKind(kindStr)
		r.CreatedAt = time.Unix(0, created).UTC()
		r.Range.Start = parseNullDate(start)
		r.Range.End = parseNullDate(end)
		r.Min = floatPtr(minC)
		r.Max = floatPtr(maxC)
		r.Mean = floatPtr(meanC)
		r.MeanAbsoluteError = floatPtr(mae)
		r.DirectionAccuracy = floatPtr(dir)
		r.Correlation = floatPtr(corr)
		r.NextPrice = floatPtr(nextP)
		if d := parseNullDate(next); !d.IsZero() {
			r.NextDate = &d
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close closes the underlying database connection.
func (s *SQLiteReportStore) Close() error {
	slog.Info("closing report store")
	return s.db.Close()
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return domain.Float(v.Float64)
}

func nullDate(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(domain.DateLayout), Valid: true}
}

func parseNullDate(s sql.NullString) time.Time {
	if !s.Valid {
		return time.Time{}
	}
	t, err := domain.ParseDate(s.String)
	if err != nil {
		return time.Time{}
	}
	return t
}

// NoopReportStore discards reports. It is used when no SQLite path is
// configured.
type NoopReportStore struct{}

func NewNoopReportStore() *NoopReportStore { return &NoopReportStore{} }

func (n *NoopReportStore) SaveReport(_ context.Context, _ *Report) error { return nil }
func (n *NoopReportStore) ListReports(_ context.Context, _ string, _ ReportKind, _ int) ([]Report, error) {
	return nil, nil
}
func (n *NoopReportStore) Close() error { return nil }

// OpenReportStore opens the SQLite report store at path, creating its
// directory if needed. An empty path yields a NoopReportStore.
func OpenReportStore(path string) (ReportStore, error) {
	if path == "" {
		return NewNoopReportStore(), nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating report store directory: %w", err)
	}
	return NewSQLiteReportStore(path)
}
