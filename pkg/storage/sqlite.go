package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS links (
  code         TEXT PRIMARY KEY,
  long_url     TEXT NOT NULL,
  title        TEXT NOT NULL DEFAULT '',
  created_at   TEXT NOT NULL,
  active_from  TEXT NULL,
  active_to    TEXT NULL,
  qr_reference TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS clicks (
  id         TEXT PRIMARY KEY,
  code       TEXT NOT NULL,
  clicked_at TEXT NOT NULL,
  day        TEXT NOT NULL,
  count      INTEGER NOT NULL DEFAULT 1
);

CREATE INDEX IF NOT EXISTS idx_clicks_code_day ON clicks(code, day);
CREATE INDEX IF NOT EXISTS idx_clicks_day ON clicks(day);
`

// SQLiteStorage implements both LinkStorage and ClickLedger on one database file.
type SQLiteStorage struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and applies the schema.
// ":memory:" gives a private in-memory database.
func OpenSQLite(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// A single connection keeps ":memory:" databases shared and serialises writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	_, _ = db.Exec("PRAGMA busy_timeout = 5000;")
	_, _ = db.Exec("PRAGMA journal_mode = WAL;")

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	return &SQLiteStorage{db: db}, nil
}

func (s *SQLiteStorage) Close() error { return s.db.Close() }

func (s *SQLiteStorage) Exists(ctx context.Context, code string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM links WHERE code = ?`, code).Scan(&n)
	return n > 0, err
}

func (s *SQLiteStorage) Save(ctx context.Context, link *ShortLink) error {
	const q = `
INSERT INTO links(code, long_url, title, created_at, active_from, active_to, qr_reference)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(code) DO UPDATE SET
  long_url = excluded.long_url,
  title = excluded.title,
  created_at = excluded.created_at,
  active_from = excluded.active_from,
  active_to = excluded.active_to,
  qr_reference = excluded.qr_reference;`
	from, to := windowBounds(link.ActiveWindow)
	_, err := s.db.ExecContext(ctx, q,
		link.Code, link.LongURL, link.Title, formatTime(link.CreatedAt),
		nullableTime(from), nullableTime(to), link.QRReference)
	return err
}

const sqliteSelectLinks = `SELECT code, long_url, title, created_at, active_from, active_to, qr_reference FROM links`

func (s *SQLiteStorage) Get(ctx context.Context, code string) (*ShortLink, error) {
	link, err := scanSQLiteLink(s.db.QueryRowContext(ctx, sqliteSelectLinks+` WHERE code = ?`, code))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return link, nil
}

func (s *SQLiteStorage) ListAll(ctx context.Context) ([]ShortLink, error) {
	rows, err := s.db.QueryContext(ctx, sqliteSelectLinks+` ORDER BY created_at DESC, code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	links := []ShortLink{}
	for rows.Next() {
		link, err := scanSQLiteLink(rows)
		if err != nil {
			return nil, err
		}
		links = append(links, *link)
	}
	return links, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteLink(row rowScanner) (*ShortLink, error) {
	var (
		link     ShortLink
		created  string
		from, to sql.NullString
	)
	if err := row.Scan(&link.Code, &link.LongURL, &link.Title, &created, &from, &to, &link.QRReference); err != nil {
		return nil, err
	}
	var err error
	if link.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	f, err := parseNullableTime(from)
	if err != nil {
		return nil, err
	}
	t, err := parseNullableTime(to)
	if err != nil {
		return nil, err
	}
	link.ActiveWindow = newWindow(f, t)
	return &link, nil
}

func (s *SQLiteStorage) Append(ctx context.Context, event *ClickEvent) error {
	const q = `INSERT INTO clicks(id, code, clicked_at, day, count) VALUES (?, ?, ?, ?, ?);`
	_, err := s.db.ExecContext(ctx, q, event.ID.String(), event.Code, formatTime(event.ClickedAt), event.Day, event.Count)
	return err
}

func (s *SQLiteStorage) EarliestDay(ctx context.Context, codes []string) (string, bool, error) {
	if codes != nil && len(codes) == 0 {
		return "", false, nil
	}
	where, args := codeFilter(codes)
	var day sql.NullString
	if err := s.db.QueryRowContext(ctx, `SELECT MIN(day) FROM clicks`+where, args...).Scan(&day); err != nil {
		return "", false, err
	}
	if !day.Valid {
		return "", false, nil
	}
	return day.String, true, nil
}

func (s *SQLiteStorage) AggregateByDay(ctx context.Context, codes []string, from, to string) ([]DayCount, error) {
	if codes != nil && len(codes) == 0 {
		return []DayCount{}, nil
	}
	where, args := codeFilter(codes)
	if where == "" {
		where = ` WHERE day BETWEEN ? AND ?`
	} else {
		where += ` AND day BETWEEN ? AND ?`
	}
	args = append(args, from, to)

	rows, err := s.db.QueryContext(ctx, `SELECT day, SUM(count) FROM clicks`+where+` GROUP BY day ORDER BY day`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := []DayCount{}
	for rows.Next() {
		var dc DayCount
		if err := rows.Scan(&dc.Day, &dc.Count); err != nil {
			return nil, err
		}
		counts = append(counts, dc)
	}
	return counts, rows.Err()
}

func codeFilter(codes []string) (string, []any) {
	if codes == nil {
		return "", nil
	}
	args := make([]any, len(codes))
	for i, c := range codes {
		args[i] = c
	}
	return ` WHERE code IN (` + strings.TrimSuffix(strings.Repeat("?,", len(codes)), ",") + `)`, args
}

// Fixed-width so that text ordering matches time ordering.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(sqliteTimeLayout, s)
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseNullableTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
