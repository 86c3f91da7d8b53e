package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var postgresMigrations = []string{
	`CREATE TABLE IF NOT EXISTS links (
		code         TEXT PRIMARY KEY,
		long_url     TEXT NOT NULL,
		title        TEXT NOT NULL DEFAULT '',
		created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
		active_from  TIMESTAMPTZ NULL,
		active_to    TIMESTAMPTZ NULL,
		qr_reference TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS clicks (
		id         UUID PRIMARY KEY,
		code       TEXT NOT NULL,
		clicked_at TIMESTAMPTZ NOT NULL,
		day        DATE NOT NULL,
		count      INTEGER NOT NULL DEFAULT 1
	)`,
	`CREATE INDEX IF NOT EXISTS idx_clicks_code_day ON clicks(code, day)`,
	`CREATE INDEX IF NOT EXISTS idx_clicks_day ON clicks(day)`,
}

// MigratePostgres creates the links and clicks tables if they are missing.
func MigratePostgres(ctx context.Context, pool *pgxpool.Pool) error {
	for _, m := range postgresMigrations {
		if _, err := pool.Exec(ctx, m); err != nil {
			return fmt.Errorf("failed to execute migration: %w", err)
		}
	}
	return nil
}

type PostgresLinkStorage struct {
	pool *pgxpool.Pool
}

func NewPostgresLinkStorage(pool *pgxpool.Pool) *PostgresLinkStorage {
	return &PostgresLinkStorage{pool: pool}
}

func (s *PostgresLinkStorage) Exists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM links WHERE code = $1)`, code).Scan(&exists)
	return exists, err
}

func (s *PostgresLinkStorage) Save(ctx context.Context, link *ShortLink) error {
	query := `INSERT INTO links (code, long_url, title, created_at, active_from, active_to, qr_reference)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (code) DO UPDATE SET
			long_url = EXCLUDED.long_url,
			title = EXCLUDED.title,
			created_at = EXCLUDED.created_at,
			active_from = EXCLUDED.active_from,
			active_to = EXCLUDED.active_to,
			qr_reference = EXCLUDED.qr_reference`
	from, to := windowBounds(link.ActiveWindow)
	_, err := s.pool.Exec(ctx, query, link.Code, link.LongURL, link.Title, link.CreatedAt, from, to, link.QRReference)
	return err
}

const selectLinks = `SELECT code, long_url, title, created_at, active_from, active_to, qr_reference FROM links`

func (s *PostgresLinkStorage) Get(ctx context.Context, code string) (*ShortLink, error) {
	link, err := scanLink(s.pool.QueryRow(ctx, selectLinks+` WHERE code = $1`, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return link, nil
}

func (s *PostgresLinkStorage) ListAll(ctx context.Context) ([]ShortLink, error) {
	rows, err := s.pool.Query(ctx, selectLinks+` ORDER BY created_at DESC, code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	links := []ShortLink{}
	for rows.Next() {
		link, err := scanLink(rows)
		if err != nil {
			return nil, err
		}
		links = append(links, *link)
	}
	return links, rows.Err()
}

func scanLink(row pgx.Row) (*ShortLink, error) {
	var (
		link     ShortLink
		from, to *time.Time
	)
	if err := row.Scan(&link.Code, &link.LongURL, &link.Title, &link.CreatedAt, &from, &to, &link.QRReference); err != nil {
		return nil, err
	}
	link.ActiveWindow = newWindow(from, to)
	return &link, nil
}

type PostgresClickLedger struct {
	pool *pgxpool.Pool
}

func NewPostgresClickLedger(pool *pgxpool.Pool) *PostgresClickLedger {
	return &PostgresClickLedger{pool: pool}
}

func (l *PostgresClickLedger) Append(ctx context.Context, event *ClickEvent) error {
	query := `INSERT INTO clicks (id, code, clicked_at, day, count) VALUES ($1, $2, $3, $4::date, $5)`
	_, err := l.pool.Exec(ctx, query, event.ID, event.Code, event.ClickedAt, event.Day, event.Count)
	return err
}

func (l *PostgresClickLedger) EarliestDay(ctx context.Context, codes []string) (string, bool, error) {
	if codes != nil && len(codes) == 0 {
		return "", false, nil
	}
	var day *string
	var err error
	if codes == nil {
		err = l.pool.QueryRow(ctx, `SELECT to_char(min(day), 'YYYY-MM-DD') FROM clicks`).Scan(&day)
	} else {
		err = l.pool.QueryRow(ctx, `SELECT to_char(min(day), 'YYYY-MM-DD') FROM clicks WHERE code = ANY($1)`, codes).Scan(&day)
	}
	if err != nil {
		return "", false, err
	}
	if day == nil {
		return "", false, nil
	}
	return *day, true, nil
}

func (l *PostgresClickLedger) AggregateByDay(ctx context.Context, codes []string, from, to string) ([]DayCount, error) {
	if codes != nil && len(codes) == 0 {
		return []DayCount{}, nil
	}
	var (
		rows pgx.Rows
		err  error
	)
	if codes == nil {
		rows, err = l.pool.Query(ctx, `SELECT to_char(day, 'YYYY-MM-DD'), SUM(count)
			FROM clicks WHERE day BETWEEN $1::date AND $2::date
			GROUP BY day ORDER BY day`, from, to)
	} else {
		rows, err = l.pool.Query(ctx, `SELECT to_char(day, 'YYYY-MM-DD'), SUM(count)
			FROM clicks WHERE day BETWEEN $1::date AND $2::date AND code = ANY($3)
			GROUP BY day ORDER BY day`, from, to, codes)
	}
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

func windowBounds(w *Window) (from, to *time.Time) {
	if w == nil {
		return nil, nil
	}
	return w.From, w.To
}

func newWindow(from, to *time.Time) *Window {
	if from == nil && to == nil {
		return nil
	}
	w := &Window{}
	if from != nil {
		f := from.UTC()
		w.From = &f
	}
	if to != nil {
		t := to.UTC()
		w.To = &t
	}
	return w
}
