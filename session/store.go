// Package session manages session lifecycle and bounded message history on
// top of the cache. Every write refreshes the session TTL (sliding expiration).
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github/itish2003/newsrag/cache"
	"github/itish2003/newsrag/logging"
	"github/itish2003/newsrag/models"
)

// Store owns sessions for their whole lifetime.
//
// Append is a read-modify-write of the whole session value and is not
// serialised here: two concurrent appends to one id can lose a message.
// Callers needing strict ordering serialise per session id.
type Store struct {
	kv  cache.Store
	ttl time.Duration
	now func() time.Time
	log logrus.FieldLogger
}

// NewStore creates a session store whose sessions expire after ttl of inactivity.
func NewStore(kv cache.Store, ttl time.Duration, log logrus.FieldLogger) *Store {
	return &Store{
		kv:  kv,
		ttl: ttl,
		now: func() time.Time { return time.Now().UTC() },
		log: logging.Component(log, "session"),
	}
}

// WithClock replaces the time source. Used by tests.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// TTL is the sliding expiration window.
func (s *Store) TTL() time.Duration { return s.ttl }

// Create initialises a session with an empty history. Creating an existing id
// overwrites it: creation is an idempotent overwrite, not a strict create.
func (s *Store) Create(ctx context.Context, id string, meta map[string]string) (*models.Session, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: empty session id", models.ErrInvalidInput)
	}
	now := s.now()
	sess := &models.Session{
		ID:        id,
		CreatedAt: now,
		UpdatedAt: now,
		Messages:  []models.Message{},
		Metadata:  copyMeta(meta),
	}
	if err := s.put(ctx, sess); err != nil {
		return nil, err
	}
	s.log.WithField("session_id", id).Debug("SESSION: created")
	return sess, nil
}

// Get returns the session or models.ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*models.Session, error) {
	raw, ok, err := s.kv.Get(ctx, cache.SessionNamespace.Key(id))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, models.ErrNotFound)
	}
	var sess models.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("decoding session %s: %w", id, err)
	}
	if sess.Messages == nil {
		sess.Messages = []models.Message{}
	}
	return &sess, nil
}

// GetOrCreate returns the existing session, creating it when absent.
// created reports whether this call made the session.
func (s *Store) GetOrCreate(ctx context.Context, id string, meta map[string]string) (sess *models.Session, created bool, err error) {
	sess, err = s.Get(ctx, id)
	if err == nil {
		return sess, false, nil
	}
	if !isNotFound(err) {
		return nil, false, err
	}
	sess, err = s.Create(ctx, id, meta)
	if err != nil {
		return nil, false, err
	}
	return sess, true, nil
}

// Append adds msg to the end of the session history, stamps UpdatedAt and
// refreshes the TTL. It fails with models.ErrNotFound for an unknown id.
func (s *Store) Append(ctx context.Context, id string, msg models.Message) (*models.Session, error) {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = now
	}
	if msg.Sources == nil {
		msg.Sources = []models.Citation{}
	}
	sess.Messages = append(sess.Messages, msg)
	sess.UpdatedAt = now
	if err := s.put(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Clear deletes the session immediately, regardless of its TTL.
func (s *Store) Clear(ctx context.Context, id string) error {
	return s.kv.Delete(ctx, cache.SessionNamespace.Key(id))
}

// List returns every live session, most recently updated first. It scans the
// whole session namespace and is meant for administration only.
func (s *Store) List(ctx context.Context) ([]*models.Session, error) {
	keys, err := s.kv.ListKeys(ctx, string(cache.SessionNamespace))
	if err != nil {
		return nil, err
	}
	out := make([]*models.Session, 0, len(keys))
	for _, key := range keys {
		sess, err := s.Get(ctx, cache.SessionNamespace.ID(key))
		if isNotFound(err) {
			// expired between the scan and the read
			continue
		}
		if err != nil {
			s.log.WithError(err).WithField("key", key).Warn("SESSION: skipping unreadable session")
			continue
		}
		out = append(out, sess)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (s *Store) put(ctx context.Context, sess *models.Session) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encoding session %s: %w", sess.ID, err)
	}
	return s.kv.Set(ctx, cache.SessionNamespace.Key(sess.ID), raw, s.ttl)
}

func copyMeta(meta map[string]string) map[string]string {
	if len(meta) == 0 {
		return nil
	}
	out := make(map[string]string, len(meta))
	for k, v := range meta {
		out[k] = v
	}
	return out
}

func isNotFound(err error) bool { return errors.Is(err, models.ErrNotFound) }
