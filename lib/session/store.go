// Package session persists authentication cookie sets across runs.
// A session is written and read wholesale, keyed by portal domain;
// whether it is still valid is only ever determined by using it.
package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"lbsassist/lib/timezone"

	_ "embed"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var Schema string

type Session struct {
	Domain  string
	Cookies []*http.Cookie
	SavedAt time.Time
}

// the persisted artifact: {domain, cookies: [{name, value, ...}]}
type cookieRecord struct {
	Name     string    `json:"name"`
	Value    string    `json:"value"`
	Domain   string    `json:"domain,omitempty"`
	Path     string    `json:"path,omitempty"`
	Expires  time.Time `json:"expires,omitempty"`
	Secure   bool      `json:"secure,omitempty"`
	HttpOnly bool      `json:"http_only,omitempty"`
}

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) Store {
	return Store{db: db}
}

// Save persists the session keyed by its domain, overwriting any
// prior state for that domain.
func (s Store) Save(ctx context.Context, sess Session) error {
	records := make([]cookieRecord, len(sess.Cookies))
	for i, c := range sess.Cookies {
		records[i] = cookieRecord{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			Secure:   c.Secure,
			HttpOnly: c.HttpOnly,
		}
	}
	blob, err := json.Marshal(records)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO session (domain, cookies, saved_at) VALUES (?, ?, ?)
		 ON CONFLICT (domain) DO UPDATE SET cookies = excluded.cookies, saved_at = excluded.saved_at`,
		sess.Domain, string(blob), timezone.Now().Unix(),
	)
	return err
}

// Load returns the previously saved session for the domain, reporting
// absence through the second return value. A missing or corrupt row
// is absence, never a failure that aborts the caller.
func (s Store) Load(ctx context.Context, domain string) (Session, bool) {
	var blob string
	var savedAt int64
	err := s.db.QueryRowContext(
		ctx,
		`SELECT cookies, saved_at FROM session WHERE domain = ?`,
		domain,
	).Scan(&blob, &savedAt)
	if err == sql.ErrNoRows {
		return Session{}, false
	}
	if err != nil {
		slog.WarnContext(ctx, "failed to read session row", "domain", domain, "err", err)
		return Session{}, false
	}

	var records []cookieRecord
	err = json.Unmarshal([]byte(blob), &records)
	if err != nil {
		slog.WarnContext(ctx, "session artifact is corrupt", "domain", domain, "err", err)
		return Session{}, false
	}

	cookies := make([]*http.Cookie, len(records))
	for i, r := range records {
		cookies[i] = &http.Cookie{
			Name:     r.Name,
			Value:    r.Value,
			Domain:   r.Domain,
			Path:     r.Path,
			Expires:  r.Expires,
			Secure:   r.Secure,
			HttpOnly: r.HttpOnly,
		}
	}
	return Session{
		Domain:  domain,
		Cookies: cookies,
		SavedAt: time.Unix(savedAt, 0).In(timezone.Location),
	}, true
}

// Delete removes the saved session for the domain. Used when a
// restore attempt is rejected by the portal: sessions are
// invalidated, never repaired in place.
func (s Store) Delete(ctx context.Context, domain string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM session WHERE domain = ?`, domain)
	return err
}
