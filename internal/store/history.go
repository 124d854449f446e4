package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// History is a bounded, newest-first log of drain runs kept under one KV key.
type History struct {
	kv    KV
	key   string
	limit int
	mu    sync.Mutex
}

func NewHistory(kv KV, key string, limit int) *History {
	if limit <= 0 {
		limit = 50
	}
	return &History{kv: kv, key: key, limit: limit}
}

// Append records h, assigning an id when it has none, and trims the log to
// its limit.
func (h *History) Append(ctx context.Context, entry SyncHistory) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	entries, err := h.load(ctx)
	if err != nil {
		return err
	}

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}

	entries = append([]SyncHistory{entry}, entries...)
	if len(entries) > h.limit {
		entries = entries[:h.limit]
	}

	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to encode sync history: %w", err)
	}
	return h.kv.Set(ctx, h.key, string(data))
}

// List returns up to limit entries, newest first. limit <= 0 returns all.
func (h *History) List(ctx context.Context, limit int) ([]SyncHistory, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	entries, err := h.load(ctx)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// Clear drops every entry.
func (h *History) Clear(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.kv.Remove(ctx, h.key)
}

func (h *History) load(ctx context.Context) ([]SyncHistory, error) {
	raw, found, err := h.kv.Get(ctx, h.key)
	if err != nil {
		return nil, fmt.Errorf("failed to read sync history: %w", err)
	}
	if !found {
		return nil, nil
	}

	var entries []SyncHistory
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, fmt.Errorf("failed to decode sync history: %w", err)
	}
	return entries, nil
}
