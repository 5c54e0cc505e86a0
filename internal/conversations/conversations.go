// Package conversations keeps per-chat canonical history and serializes
// turns: within one chat, turns run in submission order, one at a time.
// Different chats proceed concurrently.
package conversations

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/tamalehq/tamalebot/internal/providers"
	"github.com/tamalehq/tamalebot/internal/storage"
)

const keyPrefix = "conversations/"

// Store holds histories keyed by chat ID. When a backend is set, each
// history is persisted after every turn and loaded lazily on first use;
// persistence failures are logged, never fatal.
type Store struct {
	mu        sync.Mutex
	locks     map[string]*sync.Mutex
	histories map[string][]providers.Message
	loaded    map[string]bool
	backend   storage.Backend
}

func NewStore(backend storage.Backend) *Store {
	return &Store{
		locks:     make(map[string]*sync.Mutex),
		histories: make(map[string][]providers.Message),
		loaded:    make(map[string]bool),
		backend:   backend,
	}
}

func key(chatID string) string { return keyPrefix + chatID + ".json" }

func (s *Store) lock(chatID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[chatID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[chatID] = l
	}
	return l
}

// load pulls a persisted history into memory once per chat. Caller holds
// the chat lock.
func (s *Store) load(ctx context.Context, chatID string) {
	s.mu.Lock()
	done := s.loaded[chatID]
	s.loaded[chatID] = true
	s.mu.Unlock()
	if done || s.backend == nil {
		return
	}

	data, err := s.backend.Get(ctx, key(chatID))
	if err != nil {
		slog.Warn("conversations: load failed", "chat", chatID, "error", err)
		return
	}
	if data == nil {
		return
	}
	var history []providers.Message
	if err := json.Unmarshal(data, &history); err != nil {
		slog.Warn("conversations: corrupt history ignored", "chat", chatID, "error", err)
		return
	}
	s.mu.Lock()
	s.histories[chatID] = history
	s.mu.Unlock()
}

func (s *Store) persist(ctx context.Context, chatID string, history []providers.Message) {
	if s.backend == nil {
		return
	}
	data, err := json.Marshal(history)
	if err != nil {
		slog.Warn("conversations: marshal failed", "chat", chatID, "error", err)
		return
	}
	if err := s.backend.Put(ctx, key(chatID), data); err != nil {
		slog.Warn("conversations: persist failed", "chat", chatID, "error", err)
	}
}

// Turn runs fn with the chat's history under the per-chat lock, then stores
// and persists whatever history fn returns. fn's history slice is the
// caller's to mutate; the returned slice replaces the stored one even when
// fn also returns an error, so partial turns are kept.
func (s *Store) Turn(ctx context.Context, chatID string, fn func(history []providers.Message) ([]providers.Message, error)) error {
	l := s.lock(chatID)
	l.Lock()
	defer l.Unlock()

	s.load(ctx, chatID)

	s.mu.Lock()
	history := s.histories[chatID]
	s.mu.Unlock()

	updated, err := fn(history)

	s.mu.Lock()
	s.histories[chatID] = updated
	s.mu.Unlock()
	s.persist(ctx, chatID, updated)
	return err
}

// History returns a copy of the chat's in-memory history.
func (s *Store) History(chatID string) []providers.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	src := s.histories[chatID]
	out := make([]providers.Message, len(src))
	copy(out, src)
	return out
}

// Clear drops a chat's history, in memory and on the backend.
func (s *Store) Clear(ctx context.Context, chatID string) {
	l := s.lock(chatID)
	l.Lock()
	defer l.Unlock()

	s.mu.Lock()
	delete(s.histories, chatID)
	s.loaded[chatID] = true
	s.mu.Unlock()

	if s.backend != nil {
		if err := s.backend.Delete(ctx, key(chatID)); err != nil {
			slog.Warn("conversations: clear persist failed", "chat", chatID, "error", err)
		}
	}
}

// Stats reports the in-memory footprint.
type Stats struct {
	Conversations int `json:"conversations"`
	Messages      int `json:"messages"`
}

func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Stats{Conversations: len(s.histories)}
	for _, h := range s.histories {
		st.Messages += len(h)
	}
	return st
}
