package services

import (
	"context"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/log"
)

// ActivityRecorder logs user writes to the activity feed. Events go through the
// broker when one is configured and are written directly otherwise, or when
// publishing fails. Recording never fails the write that triggered it.
type ActivityRecorder struct {
	store     ActivityStore
	publisher ActivityPublisher
	now       func() time.Time
	logger    *log.Logger
}

// NewActivityRecorder builds a recorder. now stamps each event; nil means
// time.Now. logger may be nil.
func NewActivityRecorder(store ActivityStore, publisher ActivityPublisher, now func() time.Time, logger *log.Logger) *ActivityRecorder {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &ActivityRecorder{store: store, publisher: publisher, now: now, logger: logger.WithComponent(log.ComponentFinance)}
}

// Record emits one activity event.
func (r *ActivityRecorder) Record(ctx context.Context, userID, activityType, action, description string) {
	msg := amqp.NewActivityMessage(userID, activityType, action, description, r.now())
	fields := func() log.LogFields {
		return log.LogFields{log.FieldUserID: userID, log.FieldRecordType: activityType, "action": action, "activity_id": msg.ID}
	}

	if r.publisher != nil {
		err := r.publisher.PublishActivity(ctx, msg)
		if err == nil {
			return
		}
		r.logger.WarnContext(ctx, "Failed to publish activity, writing directly",
			fields().WithError(err).WithOperation(log.OpPublish).ToSlice()...)
	}

	if err := r.store.InsertActivity(ctx, msg.Activity()); err != nil {
		log.NewStructuredLogger(r.logger).LogError(ctx, "Failed to record activity", err,
			log.ComponentFinance, log.OpCreate, fields())
	}
}
