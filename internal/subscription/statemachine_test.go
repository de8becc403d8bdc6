package subscription

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/hitoshi/feedsync/internal/model"
	"github.com/hitoshi/feedsync/internal/repository/memory"
)

type countingRecorder struct {
	mu      sync.Mutex
	stopped []string
}

func (r *countingRecorder) RecordSubscriptionStopped(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = append(r.stopped, id)
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func seed(t *testing.T, store *memory.Store, mutate func(sub *model.Subscription)) *model.Subscription {
	t.Helper()
	sub := &model.Subscription{OwnerID: "owner-1", URL: "https://example.com/feed.xml", Status: model.StatusReady}
	if mutate != nil {
		mutate(sub)
	}
	if err := store.Subscriptions().Create(context.Background(), sub); err != nil {
		t.Fatalf("Create: %v", err)
	}
	return sub
}

func reload(t *testing.T, store *memory.Store, id string) *model.Subscription {
	t.Helper()
	sub, err := store.Subscriptions().FindByID(context.Background(), id)
	if err != nil || sub == nil {
		t.Fatalf("FindByID(%s) = %v, %v", id, sub, err)
	}
	return sub
}

func TestStateMachine_Begin(t *testing.T) {
	store := memory.NewStore()
	sub := seed(t, store, nil)
	var buf bytes.Buffer
	m := NewStateMachine(store.Subscriptions(), 3, &countingRecorder{}, newTestLogger(&buf))

	if err := m.Begin(context.Background(), sub.ID); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if got := reload(t, store, sub.ID); got.Status != model.StatusInProgress {
		t.Errorf("status = %s, want IN_PROGRESS", got.Status)
	}

	if err := m.Begin(context.Background(), "missing"); !model.IsNotFound(err) {
		t.Errorf("Begin(missing) = %v, want NotFoundError", err)
	}
}

// TestStateMachine_FailStopsAtMaxRetries はMAX_RETRIES回目の失敗でのみ停止することを検証する。
func TestStateMachine_FailStopsAtMaxRetries(t *testing.T) {
	const maxRetries = 3
	store := memory.NewStore()
	sub := seed(t, store, nil)
	rec := &countingRecorder{}
	var buf bytes.Buffer
	m := NewStateMachine(store.Subscriptions(), maxRetries, rec, newTestLogger(&buf))
	ctx := context.Background()

	for i := 1; i <= maxRetries; i++ {
		if err := m.Begin(ctx, sub.ID); err != nil {
			t.Fatalf("Begin: %v", err)
		}
		stopped, err := m.Fail(ctx, sub.ID)
		if err != nil {
			t.Fatalf("Fail #%d: %v", i, err)
		}

		got := reload(t, store, sub.ID)
		if got.Status != model.StatusReady {
			t.Errorf("Fail #%d: status = %s, want READY", i, got.Status)
		}
		if got.Retries != i {
			t.Errorf("Fail #%d: retries = %d, want %d", i, got.Retries, i)
		}
		wantStopped := i == maxRetries
		if got.IsStopped != wantStopped || stopped != wantStopped {
			t.Errorf("Fail #%d: is_stopped = %v (returned %v), want %v", i, got.IsStopped, stopped, wantStopped)
		}
	}

	if len(rec.stopped) != 1 || rec.stopped[0] != sub.ID {
		t.Errorf("stopped metrics = %v", rec.stopped)
	}
	if !bytes.Contains(buf.Bytes(), []byte(`"max_retries":3`)) {
		t.Errorf("停止時のログにしきい値が含まれるべき: %s", buf.String())
	}
}

// TestStateMachine_SucceedResets はsucceedが以前の値に関係なくリセットすることを検証する。
func TestStateMachine_SucceedResets(t *testing.T) {
	store := memory.NewStore()
	sub := seed(t, store, func(s *model.Subscription) {
		s.Status = model.StatusInProgress
		s.Retries = 7
		s.IsStopped = true
	})
	var buf bytes.Buffer
	m := NewStateMachine(store.Subscriptions(), 3, &countingRecorder{}, newTestLogger(&buf))

	if err := m.Succeed(context.Background(), sub.ID); err != nil {
		t.Fatalf("Succeed: %v", err)
	}
	got := reload(t, store, sub.ID)
	if got.Status != model.StatusReady || got.Retries != 0 || got.IsStopped {
		t.Errorf("after Succeed = %+v", got)
	}
}

func TestStateMachine_Retry(t *testing.T) {
	store := memory.NewStore()
	stopped := seed(t, store, func(s *model.Subscription) {
		s.URL = "https://stopped.example.com/"
		s.Retries = 5
		s.IsStopped = true
	})
	active := seed(t, store, func(s *model.Subscription) {
		s.URL = "https://active.example.com/"
		s.Retries = 2
	})
	var buf bytes.Buffer
	m := NewStateMachine(store.Subscriptions(), 5, &countingRecorder{}, newTestLogger(&buf))
	ctx := context.Background()

	if err := m.Retry(ctx, stopped.ID); err != nil {
		t.Fatalf("Retry(stopped): %v", err)
	}
	if got := reload(t, store, stopped.ID); got.IsStopped || got.Retries != 0 || got.Status != model.StatusReady {
		t.Errorf("after Retry = %+v", got)
	}

	if err := m.Retry(ctx, active.ID); !errors.Is(err, model.ErrNotStopped) {
		t.Errorf("Retry(active) = %v, want ErrNotStopped", err)
	}
	if got := reload(t, store, active.ID); got.Retries != 2 {
		t.Errorf("停止していない購読の状態は変更されないべき: retries = %d", got.Retries)
	}

	if err := m.Retry(ctx, "missing"); !model.IsNotFound(err) {
		t.Errorf("Retry(missing) = %v, want NotFoundError", err)
	}
}

// TestStateMachine_ConcurrentFail は同時の失敗報告でもretriesが失われないことを検証する。
func TestStateMachine_ConcurrentFail(t *testing.T) {
	store := memory.NewStore()
	sub := seed(t, store, nil)
	rec := &countingRecorder{}
	var buf bytes.Buffer
	m := NewStateMachine(store.Subscriptions(), 10, rec, newTestLogger(&buf))

	const workers = 20
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = m.Fail(context.Background(), sub.ID)
		}()
	}
	wg.Wait()

	got := reload(t, store, sub.ID)
	if got.Retries != workers {
		t.Errorf("retries = %d, want %d", got.Retries, workers)
	}
	if !got.IsStopped {
		t.Error("しきい値を超えた購読は停止しているべき")
	}
}

func TestNewStateMachine_ClampsMaxRetries(t *testing.T) {
	var buf bytes.Buffer
	m := NewStateMachine(memory.NewStore().Subscriptions(), 0, &countingRecorder{}, newTestLogger(&buf))
	if m.MaxRetries() != 1 {
		t.Errorf("MaxRetries = %d, want 1", m.MaxRetries())
	}
}
