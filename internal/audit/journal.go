// Package audit implements the append-only decision journal. Every mediated
// action (tool execution, vault access) is recorded here before its side
// effect runs, whether the policy allowed or blocked it.
package audit

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Decision is the recorded policy outcome.
type Decision string

const (
	DecisionAllowed Decision = "allowed"
	DecisionBlocked Decision = "blocked"
)

// Entry is one journal record. Entries are immutable once written;
// ordering within a file is by append time.
type Entry struct {
	Timestamp  string            `json:"timestamp"`
	EntryID    string            `json:"entryId"`
	AgentID    string            `json:"agentId"`
	ActionType string            `json:"actionType"`
	Target     string            `json:"target"`
	Decision   Decision          `json:"decision"`
	Reason     string            `json:"reason,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Record is the input for one journal write.
type Record struct {
	AgentID    string
	ActionType string
	Target     string
	Decision   Decision
	Reason     string
	Metadata   map[string]string
}

// Filter narrows Entries read-back.
type Filter struct {
	Limit    int
	AgentID  string
	Decision Decision
}

// Journal writes line-delimited JSON entries, one file per agent ID.
// File handles are opened lazily with append semantics and kept open
// until Close.
type Journal struct {
	dir string

	mu    sync.Mutex
	files map[string]*os.File
}

// New creates a journal rooted at dir, creating the directory if absent.
func New(dir string) (*Journal, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("audit: create dir: %w", err)
	}
	return &Journal{dir: dir, files: make(map[string]*os.File)}, nil
}

// entryID derives the journal entry identifier: the first 16 hex chars of
// SHA-256 over "timestamp:actionType:target". Not a tamper-evident chain.
func entryID(timestamp, actionType, target string) string {
	sum := sha256.Sum256([]byte(timestamp + ":" + actionType + ":" + target))
	return hex.EncodeToString(sum[:])[:16]
}

func (j *Journal) file(agentID string) (*os.File, error) {
	if f, ok := j.files[agentID]; ok {
		return f, nil
	}
	path := filepath.Join(j.dir, sanitizeAgentID(agentID)+".jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("audit: open journal: %w", err)
	}
	j.files[agentID] = f
	return f, nil
}

// Log appends one entry and returns its entry ID. Each entry is written as
// a single line so concurrent appends never interleave mid-record.
func (j *Journal) Log(rec Record) (string, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	e := Entry{
		Timestamp:  now,
		EntryID:    entryID(now, rec.ActionType, rec.Target),
		AgentID:    rec.AgentID,
		ActionType: rec.ActionType,
		Target:     rec.Target,
		Decision:   rec.Decision,
		Reason:     rec.Reason,
		Metadata:   rec.Metadata,
	}
	line, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("audit: marshal entry: %w", err)
	}
	line = append(line, '\n')

	j.mu.Lock()
	defer j.mu.Unlock()
	f, err := j.file(rec.AgentID)
	if err != nil {
		return "", err
	}
	if _, err := f.Write(line); err != nil {
		return "", fmt.Errorf("audit: append entry: %w", err)
	}
	return e.EntryID, nil
}

// Entries reads back journal entries for one agent, newest-last. Malformed
// lines are skipped. An absent journal file yields an empty slice.
func (j *Journal) Entries(agentID string, f Filter) ([]Entry, error) {
	path := filepath.Join(j.dir, sanitizeAgentID(agentID)+".jsonl")

	// Flush any buffered writes before reading back.
	j.mu.Lock()
	if open, ok := j.files[agentID]; ok {
		open.Sync()
	}
	j.mu.Unlock()

	file, err := os.Open(path)
	if os.IsNotExist(err) {
		return []Entry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("audit: open journal: %w", err)
	}
	defer file.Close()

	var entries []Entry
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			continue
		}
		if f.AgentID != "" && e.AgentID != f.AgentID {
			continue
		}
		if f.Decision != "" && e.Decision != f.Decision {
			continue
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("audit: scan journal: %w", err)
	}

	if f.Limit > 0 && len(entries) > f.Limit {
		entries = entries[len(entries)-f.Limit:]
	}
	if entries == nil {
		entries = []Entry{}
	}
	return entries, nil
}

// Close flushes and releases all open journal files.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	var firstErr error
	for id, f := range j.files {
		f.Sync()
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(j.files, id)
	}
	return firstErr
}

// sanitizeAgentID makes an agent ID safe for use as a file name.
func sanitizeAgentID(id string) string {
	if id == "" {
		return "default"
	}
	out := make([]byte, 0, len(id))
	for i := 0; i < len(id); i++ {
		c := id[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
			out = append(out, c)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}
