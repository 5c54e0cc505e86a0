package audit

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestLogAndReadBack(t *testing.T) {
	j := newTestJournal(t)

	id, err := j.Log(Record{
		AgentID:    "agent-1",
		ActionType: "command",
		Target:     "echo hello",
		Decision:   DecisionAllowed,
	})
	if err != nil {
		t.Fatalf("Log: %v", err)
	}
	if len(id) != 16 {
		t.Errorf("entry ID length = %d, want 16", len(id))
	}

	entries, err := j.Entries("agent-1", Filter{})
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("len(entries) = %d, want 1", len(entries))
	}
	e := entries[0]
	if e.EntryID != id || e.ActionType != "command" || e.Target != "echo hello" || e.Decision != DecisionAllowed {
		t.Errorf("unexpected entry: %+v", e)
	}
}

func TestEntriesAbsentFileIsEmpty(t *testing.T) {
	j := newTestJournal(t)
	entries, err := j.Entries("never-logged", Filter{})
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("len(entries) = %d, want 0", len(entries))
	}
}

func TestEntriesFilterAndLimit(t *testing.T) {
	j := newTestJournal(t)

	for i := 0; i < 5; i++ {
		decision := DecisionAllowed
		if i%2 == 1 {
			decision = DecisionBlocked
		}
		if _, err := j.Log(Record{
			AgentID:    "agent-1",
			ActionType: "command",
			Target:     strings.Repeat("x", i+1),
			Decision:   decision,
		}); err != nil {
			t.Fatalf("Log: %v", err)
		}
	}

	blocked, err := j.Entries("agent-1", Filter{Decision: DecisionBlocked})
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(blocked) != 2 {
		t.Errorf("blocked entries = %d, want 2", len(blocked))
	}

	// Limit keeps the LAST n entries in insertion order.
	last2, err := j.Entries("agent-1", Filter{Limit: 2})
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(last2) != 2 {
		t.Fatalf("limited entries = %d, want 2", len(last2))
	}
	if last2[0].Target != "xxxx" || last2[1].Target != "xxxxx" {
		t.Errorf("limit did not keep last entries: %q, %q", last2[0].Target, last2[1].Target)
	}
}

func TestEntriesSkipsMalformedLines(t *testing.T) {
	dir := t.TempDir()
	j, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer j.Close()

	if _, err := j.Log(Record{AgentID: "a", ActionType: "command", Target: "ls", Decision: DecisionAllowed}); err != nil {
		t.Fatalf("Log: %v", err)
	}
	j.Close()

	path := filepath.Join(dir, "a.jsonl")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	f.WriteString("{not json\n")
	f.Close()

	j2, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer j2.Close()
	if _, err := j2.Log(Record{AgentID: "a", ActionType: "command", Target: "pwd", Decision: DecisionAllowed}); err != nil {
		t.Fatalf("Log: %v", err)
	}

	entries, err := j2.Entries("a", Filter{})
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("len(entries) = %d, want 2 (malformed line skipped)", len(entries))
	}
}

func TestFilesArePerAgent(t *testing.T) {
	dir := t.TempDir()
	j, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer j.Close()

	j.Log(Record{AgentID: "alpha", ActionType: "file_read", Target: "/a", Decision: DecisionAllowed})
	j.Log(Record{AgentID: "beta", ActionType: "file_read", Target: "/b", Decision: DecisionBlocked})

	for _, name := range []string{"alpha.jsonl", "beta.jsonl"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("expected journal file %s: %v", name, err)
		}
	}

	entries, _ := j.Entries("alpha", Filter{})
	if len(entries) != 1 || entries[0].Target != "/a" {
		t.Errorf("alpha journal mixed with other agents: %+v", entries)
	}
}
