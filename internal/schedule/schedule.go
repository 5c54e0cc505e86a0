// Package schedule persists cron-driven task definitions on a storage
// backend. Evaluation of due schedules is handled by the hosting process;
// this package owns the store/list/pause/resume contract and cron
// validation.
package schedule

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/adhocore/gronx"

	"github.com/tamalehq/tamalebot/internal/storage"
)

const keyPrefix = "schedules/"

// Entry is one stored schedule, persisted at schedules/{id}.json.
type Entry struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Cron       string `json:"cron"`
	Task       string `json:"task"`
	AgentName  string `json:"agentName"`
	Enabled    bool   `json:"enabled"`
	CreatedAt  string `json:"createdAt"`
	LastRun    string `json:"lastRun,omitempty"`
	LastResult string `json:"lastResult,omitempty"`
}

// fieldRe is the per-field shape check: a literal or wildcard base with
// optional step, range, and list parts. Day-of-week additionally accepts
// 0-7 names handled by the cron library itself.
var fieldRe = regexp.MustCompile(`^(\*|\d+)(/\d+)?(-\d+)?(,\d+)*$`)

// ValidateCron accepts exactly five whitespace-separated fields, each
// passing the shape check, and requires the expression to be schedulable.
func ValidateCron(expr string) error {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return fmt.Errorf("schedule: cron expression must have exactly 5 fields, got %d", len(fields))
	}
	for i, f := range fields {
		if !fieldRe.MatchString(f) {
			return fmt.Errorf("schedule: invalid cron field %d: %q", i+1, f)
		}
	}
	if !gronx.New().IsValid(expr) {
		return fmt.Errorf("schedule: unschedulable cron expression: %q", expr)
	}
	return nil
}

// Store manages schedule entries over a storage backend.
type Store struct {
	backend storage.Backend
	agent   string
}

func NewStore(backend storage.Backend, agentName string) *Store {
	return &Store{backend: backend, agent: agentName}
}

func newID() string {
	b := make([]byte, 4)
	rand.Read(b)
	return hex.EncodeToString(b)
}

func key(id string) string { return keyPrefix + id + ".json" }

// Create validates the cron expression and persists a new enabled entry.
func (s *Store) Create(ctx context.Context, name, cronExpr, task string) (*Entry, error) {
	if name == "" {
		return nil, fmt.Errorf("schedule: name is required")
	}
	if task == "" {
		return nil, fmt.Errorf("schedule: task is required")
	}
	if err := ValidateCron(cronExpr); err != nil {
		return nil, err
	}
	e := &Entry{
		ID:        newID(),
		Name:      name,
		Cron:      cronExpr,
		Task:      task,
		AgentName: s.agent,
		Enabled:   true,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	if err := s.put(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// List returns all stored schedules, skipping corrupt entries.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	keys, err := s.backend.List(ctx, keyPrefix)
	if err != nil {
		return nil, fmt.Errorf("schedule: list: %w", err)
	}
	entries := make([]Entry, 0, len(keys))
	for _, k := range keys {
		data, err := s.backend.Get(ctx, k)
		if err != nil || data == nil {
			continue
		}
		var e Entry
		if err := json.Unmarshal(data, &e); err != nil {
			slog.Warn("schedule: skipping corrupt entry", "key", k, "error", err)
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Get returns one schedule by ID, or nil when absent.
func (s *Store) Get(ctx context.Context, id string) (*Entry, error) {
	data, err := s.backend.Get(ctx, key(id))
	if err != nil {
		return nil, fmt.Errorf("schedule: get: %w", err)
	}
	if data == nil {
		return nil, nil
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("schedule: corrupt entry %s: %w", id, err)
	}
	return &e, nil
}

// Delete removes a schedule. Deleting an absent ID is a no-op.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.backend.Delete(ctx, key(id)); err != nil {
		return fmt.Errorf("schedule: delete: %w", err)
	}
	return nil
}

// Pause disables a schedule without removing it.
func (s *Store) Pause(ctx context.Context, id string) (*Entry, error) {
	return s.setEnabled(ctx, id, false)
}

// Resume re-enables a paused schedule.
func (s *Store) Resume(ctx context.Context, id string) (*Entry, error) {
	return s.setEnabled(ctx, id, true)
}

// RecordRun stores the outcome of the most recent firing.
func (s *Store) RecordRun(ctx context.Context, id, result string) error {
	e, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if e == nil {
		return fmt.Errorf("schedule: not found: %s", id)
	}
	e.LastRun = time.Now().UTC().Format(time.RFC3339)
	e.LastResult = result
	return s.put(ctx, e)
}

func (s *Store) setEnabled(ctx context.Context, id string, enabled bool) (*Entry, error) {
	e, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, fmt.Errorf("schedule: not found: %s", id)
	}
	e.Enabled = enabled
	if err := s.put(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

func (s *Store) put(ctx context.Context, e *Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("schedule: marshal: %w", err)
	}
	if err := s.backend.Put(ctx, key(e.ID), data); err != nil {
		return fmt.Errorf("schedule: store: %w", err)
	}
	return nil
}
