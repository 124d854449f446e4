// Package mirror keeps a best-effort local copy of entities so callers can
// display what was saved before the server has confirmed it.
package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"field-sync-service/internal/entity"
	"field-sync-service/internal/logger"
	"field-sync-service/internal/store"
)

// Bookkeeping fields stored alongside the entity fields.
const (
	fieldIsLocal      = "isLocal"
	fieldLastModified = "lastModified"
)

// Record is a mirrored entity. It serialises as the entity's own fields plus
// isLocal and lastModified.
type Record struct {
	Entity       entity.Entity
	IsLocal      bool
	LastModified time.Time
}

func (r Record) MarshalJSON() ([]byte, error) {
	flat := r.Entity.Clone()
	flat[fieldIsLocal] = r.IsLocal
	flat[fieldLastModified] = r.LastModified.UTC().Format(time.RFC3339Nano)
	return json.Marshal(flat)
}

func (r *Record) UnmarshalJSON(data []byte) error {
	var flat entity.Entity
	if err := json.Unmarshal(data, &flat); err != nil {
		return err
	}

	r.IsLocal, _ = flat[fieldIsLocal].(bool)
	if raw, ok := flat[fieldLastModified].(string); ok {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return fmt.Errorf("mirror: bad lastModified %q: %w", raw, err)
		}
		r.LastModified = t
	}

	delete(flat, fieldIsLocal)
	delete(flat, fieldLastModified)
	r.Entity = flat
	return nil
}

// Store holds at most one record per identity; the last write wins.
type Store struct {
	kv  store.KV
	key string

	mu      sync.Mutex
	records []Record
	nowFunc func() time.Time
}

// Load opens the mirror persisted under key; unreadable data yields an
// empty mirror.
func Load(ctx context.Context, kv store.KV, key string) *Store {
	s := &Store{kv: kv, key: key, nowFunc: time.Now}

	raw, found, err := kv.Get(ctx, key)
	switch {
	case err != nil:
		logger.Log.Warn("Failed to read local mirror, starting empty", zap.Error(err))
	case found:
		if err := json.Unmarshal([]byte(raw), &s.records); err != nil {
			logger.Log.Warn("Failed to decode local mirror, starting empty", zap.Error(err))
			s.records = nil
		}
	}
	return s
}

// Upsert stores e, replacing the record with the same real id, or failing
// that the same temp id, and stamps it local and modified now.
func (s *Store) Upsert(ctx context.Context, e entity.Entity) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := Record{
		Entity:       e.Clone(),
		IsLocal:      true,
		LastModified: s.nowFunc().UTC(),
	}

	next := make([]Record, len(s.records), len(s.records)+1)
	copy(next, s.records)

	if idx := s.indexOf(e); idx >= 0 {
		next[idx] = rec
	} else {
		next = append(next, rec)
	}

	if err := s.persist(ctx, next); err != nil {
		return Record{}, err
	}
	s.records = next
	return rec, nil
}

func (s *Store) indexOf(e entity.Entity) int {
	if id := e.ID(); id != "" {
		for i, r := range s.records {
			if r.Entity.ID() == id {
				return i
			}
		}
	}
	if tempID := e.TempID(); tempID != "" {
		for i, r := range s.records {
			if r.Entity.TempID() == tempID {
				return i
			}
		}
	}
	return -1
}

// Get returns the record whose real id or temp id equals identity.
func (s *Store) Get(identity string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.records {
		if r.Entity.ID() == identity || r.Entity.TempID() == identity {
			return copyRecord(r), true
		}
	}
	return Record{}, false
}

// List returns a copy of every record in insertion order.
func (s *Store) List() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Record, len(s.records))
	for i, r := range s.records {
		out[i] = copyRecord(r)
	}
	return out
}

// Clear drops every record.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.kv.Remove(ctx, s.key); err != nil {
		return fmt.Errorf("failed to clear local mirror: %w", err)
	}
	s.records = nil
	return nil
}

func (s *Store) persist(ctx context.Context, records []Record) error {
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("failed to encode local mirror: %w", err)
	}
	if err := s.kv.Set(ctx, s.key, string(data)); err != nil {
		return fmt.Errorf("failed to persist local mirror: %w", err)
	}
	return nil
}

func copyRecord(r Record) Record {
	r.Entity = r.Entity.Clone()
	return r
}
