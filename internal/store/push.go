package store

import (
	"database/sql"
	"fmt"
)

// PushSubscription is one browser push endpoint registered by a user.
type PushSubscription struct {
	ID        int64
	Identity  string
	Endpoint  string
	P256dhKey string
	AuthKey   string
}

// PushStore persists web-push subscriptions and a log of delivered
// notifications so reminders fire once per item.
type PushStore struct {
	db *sql.DB
}

func NewPushStore(db *sql.DB) *PushStore {
	return &PushStore{db: db}
}

// Save upserts a subscription keyed on endpoint. Re-registering an endpoint
// under a new identity moves it.
func (s *PushStore) Save(identity, endpoint, p256dhKey, authKey string) error {
	_, err := s.db.Exec(
		`INSERT INTO push_subscriptions (identity, endpoint, p256dh_key, auth_key)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(endpoint) DO UPDATE SET
		   identity = excluded.identity,
		   p256dh_key = excluded.p256dh_key,
		   auth_key = excluded.auth_key`,
		identity, endpoint, p256dhKey, authKey,
	)
	if err != nil {
		return fmt.Errorf("save push subscription: %w", err)
	}
	return nil
}

// ForIdentity returns every subscription a user has registered.
func (s *PushStore) ForIdentity(identity string) ([]PushSubscription, error) {
	return s.query(
		`SELECT id, identity, endpoint, p256dh_key, auth_key
		 FROM push_subscriptions WHERE identity = ? ORDER BY id`,
		identity,
	)
}

// All returns every registered subscription.
func (s *PushStore) All() ([]PushSubscription, error) {
	return s.query(
		`SELECT id, identity, endpoint, p256dh_key, auth_key
		 FROM push_subscriptions ORDER BY id`,
	)
}

func (s *PushStore) query(q string, args ...any) ([]PushSubscription, error) {
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("query push subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []PushSubscription
	for rows.Next() {
		var sub PushSubscription
		if err := rows.Scan(&sub.ID, &sub.Identity, &sub.Endpoint, &sub.P256dhKey, &sub.AuthKey); err != nil {
			return nil, fmt.Errorf("scan push subscription: %w", err)
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// DeleteEndpoint removes a subscription, typically after the push service
// reports it gone.
func (s *PushStore) DeleteEndpoint(endpoint string) error {
	if _, err := s.db.Exec(`DELETE FROM push_subscriptions WHERE endpoint = ?`, endpoint); err != nil {
		return fmt.Errorf("delete push subscription: %w", err)
	}
	return nil
}

// DeleteForIdentity removes a user's subscriptions and sent-log entries.
func (s *PushStore) DeleteForIdentity(identity string) error {
	if _, err := s.db.Exec(`DELETE FROM push_subscriptions WHERE identity = ?`, identity); err != nil {
		return fmt.Errorf("delete push subscriptions: %w", err)
	}
	if _, err := s.db.Exec(`DELETE FROM push_sent WHERE identity = ?`, identity); err != nil {
		return fmt.Errorf("delete push sent log: %w", err)
	}
	return nil
}

// MarkSent records that a notification keyed by refID went to an identity.
// It reports true the first time a key is seen and false on replays.
func (s *PushStore) MarkSent(identity, refID string) (bool, error) {
	res, err := s.db.Exec(
		`INSERT OR IGNORE INTO push_sent (identity, ref_id) VALUES (?, ?)`,
		identity, refID,
	)
	if err != nil {
		return false, fmt.Errorf("mark push sent: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark push sent: %w", err)
	}
	return n > 0, nil
}
