package worker

import (
	"context"
	"fmt"
	"log/slog"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
)

// ActivityWriter stores activity rows. Inserting an id twice must be a no-op
// so redelivered messages do not duplicate the feed.
type ActivityWriter interface {
	InsertActivity(ctx context.Context, a core.Activity) error
}

// ActivityWorker moves activity events from the broker into the recent
// activity feed.
type ActivityWorker struct {
	store ActivityWriter
}

func NewActivityWorker(store ActivityWriter) *ActivityWorker {
	return &ActivityWorker{store: store}
}

// HandleActivityMessage stores one activity event. A returned error makes the
// consumer requeue the message.
func (w *ActivityWorker) HandleActivityMessage(ctx context.Context, msg *amqp.ActivityMessage) error {
	slog.InfoContext(ctx, "Processing activity message",
		"id", msg.ID,
		"user_id", msg.UserID,
		"type", msg.Type,
		"action", msg.Action)

	if err := w.store.InsertActivity(ctx, msg.Activity()); err != nil {
		slog.ErrorContext(ctx, "Failed to store activity",
			"id", msg.ID,
			"error", err,
			"timestamp", msg.Timestamp)
		return fmt.Errorf("store activity: %w", err)
	}

	slog.DebugContext(ctx, "Stored activity", "id", msg.ID)
	return nil
}
