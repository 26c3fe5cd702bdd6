package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
)

type fakeWriter struct {
	rows map[string]core.Activity
	err  error
}

func (f *fakeWriter) InsertActivity(_ context.Context, a core.Activity) error {
	if f.err != nil {
		return f.err
	}
	if _, ok := f.rows[a.ID]; !ok {
		f.rows[a.ID] = a
	}
	return nil
}

func TestActivityWorker_HandleActivityMessage(t *testing.T) {
	ctx := context.Background()
	msg := amqp.NewActivityMessage("user-1", core.ActivityDebt, core.ActionPayment, "Made payment on: Loan", time.Now())

	t.Run("stores the activity", func(t *testing.T) {
		store := &fakeWriter{rows: map[string]core.Activity{}}
		w := NewActivityWorker(store)

		if err := w.HandleActivityMessage(ctx, msg); err != nil {
			t.Fatalf("HandleActivityMessage() error = %v", err)
		}
		got, ok := store.rows[msg.ID]
		if !ok {
			t.Fatal("activity was not stored")
		}
		if got.UserID != "user-1" || got.Action != core.ActionPayment || got.Description != "Made payment on: Loan" {
			t.Errorf("stored = %+v", got)
		}
	})

	t.Run("redelivery does not duplicate", func(t *testing.T) {
		store := &fakeWriter{rows: map[string]core.Activity{}}
		w := NewActivityWorker(store)
		for i := 0; i < 2; i++ {
			if err := w.HandleActivityMessage(ctx, msg); err != nil {
				t.Fatal(err)
			}
		}
		if len(store.rows) != 1 {
			t.Fatalf("rows = %d, want 1", len(store.rows))
		}
	})

	t.Run("storage error is returned for requeue", func(t *testing.T) {
		boom := errors.New("database is locked")
		w := NewActivityWorker(&fakeWriter{err: boom})
		if err := w.HandleActivityMessage(ctx, msg); !errors.Is(err, boom) {
			t.Fatalf("expected wrapped storage error, got %v", err)
		}
	})
}
