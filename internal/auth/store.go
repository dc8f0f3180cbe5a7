package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// ErrSessionNotFound is returned for unknown or expired session ids.
var ErrSessionNotFound = errors.New("auth: session not found")

// Store persists sessions in Redis.
type Store struct {
	R      *redis.Client
	Prefix string
}

// NewStore returns a Store using the default key prefix.
func NewStore(client *redis.Client) *Store {
	return &Store{R: client, Prefix: "pos:session:"}
}

func (s *Store) key(id string) string {
	prefix := s.Prefix
	if prefix == "" {
		prefix = "pos:session:"
	}
	return prefix + id
}

// Save writes the session with a TTL matching its expiry.
func (s *Store) Save(ctx context.Context, sess Session, now time.Time) error {
	if s == nil || s.R == nil {
		return errors.New("auth: session store not configured")
	}
	ttl := sess.ExpiresAt.Sub(now)
	if ttl <= 0 {
		return fmt.Errorf("auth: session %s already expired", sess.ID)
	}
	payload, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	return s.R.Set(ctx, s.key(sess.ID), payload, ttl).Err()
}

// Get loads a session by id.
func (s *Store) Get(ctx context.Context, id string) (Session, error) {
	if s == nil || s.R == nil {
		return Session{}, errors.New("auth: session store not configured")
	}
	raw, err := s.R.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Session{}, ErrSessionNotFound
		}
		return Session{}, err
	}
	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return Session{}, fmt.Errorf("decode session: %w", err)
	}
	return sess, nil
}

// Delete removes a session. Deleting an unknown id is not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	if s == nil || s.R == nil {
		return nil
	}
	return s.R.Del(ctx, s.key(id)).Err()
}
