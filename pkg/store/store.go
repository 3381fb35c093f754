// Package store keeps the engine's small bits of durable bookkeeping: which
// room invites were already attempted and per-list resume tokens. The
// synchronized state itself is never persisted here.
package store

import (
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
	"maunium.net/go/mautrix/id"
)

var (
	bucketInvites = []byte("attempted_invites")
	bucketTokens  = []byte("resume_tokens")
)

type Store struct {
	db *bolt.DB
}

func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketInvites, bucketTokens} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create buckets: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// MarkInviteAttempted records that a join for roomID was issued, so a later
// invite-list update won't re-attempt it.
func (s *Store) MarkInviteAttempted(roomID id.RoomID) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketInvites).Put([]byte(roomID), []byte{1})
	})
}

// ClearInviteAttempt forgets a failed attempt so the next invite-list update
// retries it.
func (s *Store) ClearInviteAttempt(roomID id.RoomID) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketInvites).Delete([]byte(roomID))
	})
}

func (s *Store) InviteAttempted(roomID id.RoomID) (bool, error) {
	var attempted bool
	err := s.db.View(func(tx *bolt.Tx) error {
		attempted = tx.Bucket(bucketInvites).Get([]byte(roomID)) != nil
		return nil
	})
	return attempted, err
}

// SetResumeToken stores the last position of a subscription stream, keyed by
// the subscription target string.
func (s *Store) SetResumeToken(target, token string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTokens).Put([]byte(target), []byte(token))
	})
}

func (s *Store) ResumeToken(target string) (string, error) {
	var token string
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketTokens).Get([]byte(target)); v != nil {
			token = string(v)
		}
		return nil
	})
	return token, err
}
