package store

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a lookup matches nothing.
var ErrNotFound = errors.New("not found")

// Session is a browser session bound to an identity.
type Session struct {
	Token     string
	Identity  string
	ExpiresAt time.Time
}

// SessionStore persists sessions in SQLite.
type SessionStore struct {
	db *sql.DB
}

func NewSessionStore(db *sql.DB) *SessionStore {
	return &SessionStore{db: db}
}

// Create issues a new session token for an identity.
func (s *SessionStore) Create(identity string, ttl time.Duration) (Session, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return Session{}, fmt.Errorf("generate session token: %w", err)
	}

	sess := Session{
		Token:     hex.EncodeToString(buf),
		Identity:  identity,
		ExpiresAt: time.Now().UTC().Add(ttl),
	}
	if _, err := s.db.Exec(
		`INSERT INTO sessions (token, identity, expires_at) VALUES (?, ?, ?)`,
		sess.Token, sess.Identity, sess.ExpiresAt,
	); err != nil {
		return Session{}, fmt.Errorf("insert session: %w", err)
	}
	return sess, nil
}

// Get resolves a token to a live session. Expired sessions are removed on
// the way out and reported as ErrNotFound.
func (s *SessionStore) Get(token string) (Session, error) {
	var sess Session
	err := s.db.QueryRow(
		`SELECT token, identity, expires_at FROM sessions WHERE token = ?`,
		token,
	).Scan(&sess.Token, &sess.Identity, &sess.ExpiresAt)
	if err == sql.ErrNoRows {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("get session: %w", err)
	}

	if time.Now().UTC().After(sess.ExpiresAt) {
		s.Delete(token)
		return Session{}, ErrNotFound
	}
	return sess, nil
}

// Delete removes one session. Unknown tokens are a no-op.
func (s *SessionStore) Delete(token string) error {
	if _, err := s.db.Exec(`DELETE FROM sessions WHERE token = ?`, token); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// DeleteForIdentity removes every session an identity holds. Used on
// account deletion and password reset.
func (s *SessionStore) DeleteForIdentity(identity string) error {
	if _, err := s.db.Exec(`DELETE FROM sessions WHERE identity = ?`, identity); err != nil {
		return fmt.Errorf("delete sessions for identity: %w", err)
	}
	return nil
}

// CountForIdentity returns how many live sessions an identity holds.
func (s *SessionStore) CountForIdentity(identity string) (int, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM sessions WHERE identity = ? AND expires_at >= ?`,
		identity, time.Now().UTC(),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return n, nil
}

// PurgeExpired drops expired sessions and returns how many were removed.
func (s *SessionStore) PurgeExpired() (int64, error) {
	res, err := s.db.Exec(`DELETE FROM sessions WHERE expires_at < ?`, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", err)
	}
	return res.RowsAffected()
}
