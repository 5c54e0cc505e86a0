package schedule

import (
	"context"
	"testing"

	"github.com/tamalehq/tamalebot/internal/storage"
)

func TestValidateCron(t *testing.T) {
	valid := []string{
		"* * * * *",
		"0 9 * * 1",
		"*/5 * * * *",
		"0 0,12 * * *",
		"30 4 1-15 * *",
	}
	for _, expr := range valid {
		if err := ValidateCron(expr); err != nil {
			t.Errorf("ValidateCron(%q) = %v, want nil", expr, err)
		}
	}

	invalid := []string{
		"",
		"* * * *",
		"* * * * * *",
		"sixty * * * *",
		"* * * * * extra",
		"@daily",
	}
	for _, expr := range invalid {
		if err := ValidateCron(expr); err == nil {
			t.Errorf("ValidateCron(%q) = nil, want error", expr)
		}
	}
}

func TestCreateListRoundtrip(t *testing.T) {
	ctx := context.Background()
	store := NewStore(storage.NewMemory(), "tamale")

	e, err := store.Create(ctx, "daily-report", "0 9 * * *", "summarize yesterday's logs")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(e.ID) != 8 {
		t.Errorf("ID = %q, want 8 hex chars", e.ID)
	}
	if !e.Enabled || e.AgentName != "tamale" || e.CreatedAt == "" {
		t.Errorf("unexpected entry: %+v", e)
	}

	entries, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 || entries[0].Name != "daily-report" {
		t.Errorf("List = %+v", entries)
	}
}

func TestCreateRejectsBadCron(t *testing.T) {
	store := NewStore(storage.NewMemory(), "tamale")
	if _, err := store.Create(context.Background(), "bad", "* * * *", "task"); err == nil {
		t.Error("Create with 4-field cron succeeded, want error")
	}
}

func TestPauseResumeDelete(t *testing.T) {
	ctx := context.Background()
	store := NewStore(storage.NewMemory(), "tamale")

	e, err := store.Create(ctx, "cleanup", "*/10 * * * *", "prune temp files")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	paused, err := store.Pause(ctx, e.ID)
	if err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if paused.Enabled {
		t.Error("entry still enabled after Pause")
	}

	resumed, err := store.Resume(ctx, e.ID)
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if !resumed.Enabled {
		t.Error("entry not enabled after Resume")
	}

	if err := store.Delete(ctx, e.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	got, err := store.Get(ctx, e.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != nil {
		t.Error("entry survives delete")
	}

	if _, err := store.Pause(ctx, "ffffffff"); err == nil {
		t.Error("Pause on missing ID succeeded, want error")
	}
}

func TestListSkipsCorruptEntries(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemory()
	store := NewStore(backend, "tamale")

	store.Create(ctx, "ok", "* * * * *", "fine")
	backend.Put(ctx, "schedules/deadbeef.json", []byte("{nope"))

	entries, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("List = %d entries, want 1", len(entries))
	}
}

func TestRecordRun(t *testing.T) {
	ctx := context.Background()
	store := NewStore(storage.NewMemory(), "tamale")

	e, _ := store.Create(ctx, "job", "* * * * *", "do the thing")
	if err := store.RecordRun(ctx, e.ID, "ok: 3 files pruned"); err != nil {
		t.Fatalf("RecordRun: %v", err)
	}
	got, _ := store.Get(ctx, e.ID)
	if got.LastRun == "" || got.LastResult != "ok: 3 files pruned" {
		t.Errorf("entry after RecordRun: %+v", got)
	}
}
