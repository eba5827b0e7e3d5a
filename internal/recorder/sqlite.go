package recorder

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"VCPScanner/internal/logger"
	"VCPScanner/internal/model"
)

// SQLiteRecorder persists snapshots and daily bars to a SQLite database.
type SQLiteRecorder struct {
	db     *sql.DB
	mu     sync.Mutex
	logger *logger.Logger
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string, log *logger.Logger) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL lets a replay read while a recording scan writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db, logger: log}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.WithField("path", dbPath).Info("SQLite recorder opened")
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS snapshot_captures (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp  INTEGER NOT NULL,
			provider   TEXT NOT NULL,
			row_count  INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_captures_provider ON snapshot_captures(provider, id)`,

		`CREATE TABLE IF NOT EXISTS snapshot_rows (
			capture_id INTEGER NOT NULL REFERENCES snapshot_captures(id),
			seq        INTEGER NOT NULL,
			code       TEXT NOT NULL,
			name       TEXT,
			change_pct REAL,
			turnover   REAL,
			PRIMARY KEY (capture_id, seq)
		)`,

		`CREATE TABLE IF NOT EXISTS daily_bars (
			provider   TEXT NOT NULL,
			code       TEXT NOT NULL,
			day        INTEGER NOT NULL,
			open       REAL,
			high       REAL,
			low        REAL,
			close      REAL,
			volume     REAL,
			fetched_at INTEGER NOT NULL,
			PRIMARY KEY (provider, code, day)
		)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

// RecordSnapshot stores one snapshot response as a new capture.
func (r *SQLiteRecorder) RecordSnapshot(provider string, rows []model.SnapshotRow) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`INSERT INTO snapshot_captures (timestamp, provider, row_count) VALUES (?, ?, ?)`,
		time.Now().Unix(), provider, len(rows))
	if err != nil {
		return fmt.Errorf("insert capture: %w", err)
	}
	captureID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("capture id: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO snapshot_rows (capture_id, seq, code, name, change_pct, turnover) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare snapshot row: %w", err)
	}
	defer stmt.Close()
	for i, row := range rows {
		if _, err := stmt.Exec(captureID, i, row.Code, row.Name, row.ChangePct, row.Turnover); err != nil {
			return fmt.Errorf("insert snapshot row %s: %w", row.Code, err)
		}
	}
	return tx.Commit()
}

// RecordBars upserts a symbol's daily bars. A later fetch overwrites the same day.
func (r *SQLiteRecorder) RecordBars(provider, code string, bars []model.Bar) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO daily_bars (provider, code, day, open, high, low, close, volume, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(provider, code, day) DO UPDATE SET
			open = excluded.open, high = excluded.high, low = excluded.low,
			close = excluded.close, volume = excluded.volume, fetched_at = excluded.fetched_at`)
	if err != nil {
		return fmt.Errorf("prepare bar: %w", err)
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for _, b := range bars {
		if _, err := stmt.Exec(provider, code, b.Time.Unix(), b.Open, b.High, b.Low, b.Close, b.Volume, now); err != nil {
			return fmt.Errorf("insert bar %s %s: %w", code, b.Time.Format("2006-01-02"), err)
		}
	}
	return tx.Commit()
}

// LatestSnapshot returns the rows of the most recent capture for provider, in
// their original order. ok is false when nothing was captured.
func (r *SQLiteRecorder) LatestSnapshot(provider string) (rows []model.SnapshotRow, ok bool, err error) {
	var captureID int64
	err = r.db.QueryRow(`SELECT id FROM snapshot_captures WHERE provider = ? ORDER BY id DESC LIMIT 1`, provider).Scan(&captureID)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("latest capture: %w", err)
	}

	q, err := r.db.Query(`SELECT code, name, change_pct, turnover FROM snapshot_rows WHERE capture_id = ? ORDER BY seq`, captureID)
	if err != nil {
		return nil, false, fmt.Errorf("query snapshot rows: %w", err)
	}
	defer q.Close()
	for q.Next() {
		var row model.SnapshotRow
		var name sql.NullString
		if err := q.Scan(&row.Code, &name, &row.ChangePct, &row.Turnover); err != nil {
			return nil, false, fmt.Errorf("scan snapshot row: %w", err)
		}
		row.Name = name.String
		rows = append(rows, row)
	}
	return rows, true, q.Err()
}

// Bars returns the most recent days bars for code, oldest first.
func (r *SQLiteRecorder) Bars(provider, code string, days int) ([]model.Bar, error) {
	q, err := r.db.Query(`SELECT day, open, high, low, close, volume FROM (
			SELECT * FROM daily_bars WHERE provider = ? AND code = ? ORDER BY day DESC LIMIT ?
		) ORDER BY day ASC`, provider, code, days)
	if err != nil {
		return nil, fmt.Errorf("query bars: %w", err)
	}
	defer q.Close()

	var bars []model.Bar
	for q.Next() {
		var b model.Bar
		var day int64
		if err := q.Scan(&day, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		b.Time = time.Unix(day, 0).UTC()
		bars = append(bars, b)
	}
	return bars, q.Err()
}

// Stats counts what the database holds.
func (r *SQLiteRecorder) Stats() (Stats, error) {
	var s Stats
	counts := []struct {
		query string
		dst   *int
	}{
		{`SELECT COUNT(*) FROM snapshot_captures`, &s.Captures},
		{`SELECT COUNT(*) FROM snapshot_rows`, &s.SnapshotRows},
		{`SELECT COUNT(*) FROM daily_bars`, &s.BarRows},
		{`SELECT COUNT(DISTINCT code) FROM daily_bars`, &s.Symbols},
	}
	for _, c := range counts {
		if err := r.db.QueryRow(c.query).Scan(c.dst); err != nil {
			return s, fmt.Errorf("stats %q: %w", c.query, err)
		}
	}

	q, err := r.db.Query(`SELECT provider FROM snapshot_captures UNION SELECT provider FROM daily_bars ORDER BY 1`)
	if err != nil {
		return s, fmt.Errorf("stats providers: %w", err)
	}
	defer q.Close()
	for q.Next() {
		var p string
		if err := q.Scan(&p); err != nil {
			return s, fmt.Errorf("scan provider: %w", err)
		}
		s.Providers = append(s.Providers, p)
	}
	return s, q.Err()
}

func (r *SQLiteRecorder) Close() error {
	return r.db.Close()
}
