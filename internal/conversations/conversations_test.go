package conversations

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/tamalehq/tamalebot/internal/providers"
	"github.com/tamalehq/tamalebot/internal/storage"
)

func TestTurnAppendsAndPersists(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemory()
	store := NewStore(backend)

	err := store.Turn(ctx, "chat-1", func(h []providers.Message) ([]providers.Message, error) {
		if len(h) != 0 {
			t.Errorf("fresh chat has %d messages", len(h))
		}
		return append(h, providers.Text(providers.RoleUser, "hi")), nil
	})
	if err != nil {
		t.Fatalf("Turn: %v", err)
	}

	if got := store.History("chat-1"); len(got) != 1 || got[0].Content != "hi" {
		t.Errorf("History = %+v", got)
	}

	data, err := backend.Get(ctx, "conversations/chat-1.json")
	if err != nil || data == nil {
		t.Fatalf("persisted history missing: %v", err)
	}
}

func TestLoadsPersistedHistory(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemory()

	first := NewStore(backend)
	first.Turn(ctx, "chat-1", func(h []providers.Message) ([]providers.Message, error) {
		return append(h, providers.Text(providers.RoleUser, "remember me")), nil
	})

	// A fresh store over the same backend sees the old history.
	second := NewStore(backend)
	second.Turn(ctx, "chat-1", func(h []providers.Message) ([]providers.Message, error) {
		if len(h) != 1 || h[0].Content != "remember me" {
			t.Errorf("loaded history = %+v", h)
		}
		return h, nil
	})
}

func TestCorruptPersistedHistoryIgnored(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemory()
	backend.Put(ctx, "conversations/chat-1.json", []byte("{nope"))

	store := NewStore(backend)
	err := store.Turn(ctx, "chat-1", func(h []providers.Message) ([]providers.Message, error) {
		if len(h) != 0 {
			t.Errorf("corrupt history surfaced: %+v", h)
		}
		return h, nil
	})
	if err != nil {
		t.Fatalf("Turn: %v", err)
	}
}

func TestTurnsSerializePerChat(t *testing.T) {
	ctx := context.Background()
	store := NewStore(nil)

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			store.Turn(ctx, "chat-1", func(h []providers.Message) ([]providers.Message, error) {
				// Hold the turn long enough that overlap would interleave.
				n := len(h)
				time.Sleep(20 * time.Millisecond)
				if len(h) != n {
					t.Error("history mutated mid-turn")
				}
				return append(h, providers.Text(providers.RoleUser, "x")), nil
			})
		}()
	}
	close(start)
	wg.Wait()

	if got := len(store.History("chat-1")); got != 2 {
		t.Errorf("history = %d messages, want 2 (one per serialized turn)", got)
	}
}

func TestDifferentChatsIndependent(t *testing.T) {
	ctx := context.Background()
	store := NewStore(nil)

	store.Turn(ctx, "a", func(h []providers.Message) ([]providers.Message, error) {
		return append(h, providers.Text(providers.RoleUser, "for a")), nil
	})
	store.Turn(ctx, "b", func(h []providers.Message) ([]providers.Message, error) {
		if len(h) != 0 {
			t.Errorf("chat b sees chat a's history: %+v", h)
		}
		return h, nil
	})
}

func TestClearAndStats(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemory()
	store := NewStore(backend)

	store.Turn(ctx, "chat-1", func(h []providers.Message) ([]providers.Message, error) {
		return append(h,
			providers.Text(providers.RoleUser, "q"),
			providers.Text(providers.RoleAssistant, "a"),
		), nil
	})

	if st := store.Stats(); st.Conversations != 1 || st.Messages != 2 {
		t.Errorf("Stats = %+v", st)
	}

	store.Clear(ctx, "chat-1")
	if got := store.History("chat-1"); len(got) != 0 {
		t.Errorf("history survives Clear: %+v", got)
	}
	if data, _ := backend.Get(ctx, "conversations/chat-1.json"); data != nil {
		t.Error("persisted history survives Clear")
	}

	// Cleared chats do not reload the old persisted state.
	store.Turn(ctx, "chat-1", func(h []providers.Message) ([]providers.Message, error) {
		if len(h) != 0 {
			t.Errorf("cleared chat reloaded: %+v", h)
		}
		return h, nil
	})
}
