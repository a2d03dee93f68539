package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Akash-Sakala/AgriQNet/internal/processing"
)

const schema = `CREATE TABLE IF NOT EXISTS subscriptions (
    district TEXT NOT NULL,
    phone TEXT NOT NULL,
    created_at TEXT NOT NULL,
    PRIMARY KEY (district, phone)
);
CREATE TABLE IF NOT EXISTS alerts (
    id TEXT PRIMARY KEY,
    district TEXT,
    pest TEXT,
    severity TEXT,
    message TEXT,
    extract TEXT,
    timestamp TEXT,
    broadcast_id TEXT
);`

// sqlStore implementa Store sobre database/sql. SQLite y PostgreSQL comparten
// las consultas; solo cambian los placeholders.
type sqlStore struct {
	db       *sql.DB
	dollarPH bool // placeholders $1..$n (postgres)
}

func newSQLStore(db *sql.DB, dollarPH bool) (*sqlStore, error) {
	s := &sqlStore{db: db, dollarPH: dollarPH}
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("storage: apply schema: %w", err)
		}
	}
	return s, nil
}

// q reescribe los placeholders "?" al dialecto del backend.
func (s *sqlStore) q(query string) string {
	if !s.dollarPH {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *sqlStore) AddSubscriber(ctx context.Context, district, phone string) error {
	_, err := s.db.ExecContext(ctx, s.q(`INSERT INTO subscriptions(district, phone, created_at) VALUES(?,?,?)
        ON CONFLICT(district, phone) DO NOTHING`),
		district, phone, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("storage: add subscriber: %w", err)
	}
	return nil
}

func (s *sqlStore) Subscribers(ctx context.Context, district string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT phone FROM subscriptions WHERE district = ? ORDER BY phone`), district)
	if err != nil {
		return nil, fmt.Errorf("storage: list subscribers: %w", err)
	}
	defer rows.Close()

	out := make([]string, 0)
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *sqlStore) Counts(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT district, COUNT(*) FROM subscriptions GROUP BY district`)
	if err != nil {
		return nil, fmt.Errorf("storage: count subscribers: %w", err)
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var d string
		var n int
		if err := rows.Scan(&d, &n); err != nil {
			return nil, err
		}
		out[d] = n
	}
	return out, rows.Err()
}

func (s *sqlStore) SaveAlert(ctx context.Context, a processing.Alert) error {
	_, err := s.db.ExecContext(ctx, s.q(`INSERT INTO alerts(id, district, pest, severity, message, extract, timestamp, broadcast_id) VALUES(?,?,?,?,?,?,?,?)
        ON CONFLICT(id) DO UPDATE SET district = excluded.district, pest = excluded.pest, severity = excluded.severity,
        message = excluded.message, extract = excluded.extract, timestamp = excluded.timestamp,
        broadcast_id = excluded.broadcast_id`),
		a.ID, a.District, a.Pest, a.Severity, a.Message, a.Extract, a.Timestamp.UTC().Format(time.RFC3339), a.BroadcastID)
	if err != nil {
		return fmt.Errorf("storage: save alert: %w", err)
	}
	return nil
}

func (s *sqlStore) ListAlerts(ctx context.Context, limit int) ([]processing.Alert, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT id, district, pest, severity, message, extract, timestamp, COALESCE(broadcast_id, '')
        FROM alerts ORDER BY timestamp DESC LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("storage: list alerts: %w", err)
	}
	defer rows.Close()

	var out []processing.Alert
	for rows.Next() {
		var a processing.Alert
		var ts string
		if err := rows.Scan(&a.ID, &a.District, &a.Pest, &a.Severity, &a.Message, &a.Extract, &ts, &a.BroadcastID); err != nil {
			return nil, err
		}
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			a.Timestamp = t
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *sqlStore) Close() error {
	return s.db.Close()
}
