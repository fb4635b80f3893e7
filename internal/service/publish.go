package service

import (
	"context"
	"time"

	"github.com/diagnosis/parcel-bookings/pkg/events"
	"github.com/diagnosis/parcel-bookings/pkg/logger"
)

// publish emits an event after a commit. Failures are logged and never undo
// the committed write.
func publish(ctx context.Context, pub events.Publisher, subject string, data any) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := pub.Publish(ctx, subject, data); err != nil {
		logger.WarnContext(ctx, "failed to publish event", "subject", subject, "error", err)
	}
}
