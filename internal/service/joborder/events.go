package joborder

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fabworks/foundry/internal/entity"
)

// Lifecycle event actions published on the message bus. Notification dispatch
// consumes these fire-and-forget; the core never awaits delivery.
const (
	ActionCreated  = "created"
	ActionUpdated  = "updated"
	ActionDeleted  = "deleted"
	ActionRestored = "restored"
)

// LifecycleEvent is emitted after every committed job-order mutation.
type LifecycleEvent struct {
	EventID    string    `json:"event_id"`
	Action     string    `json:"action"`
	ID         int64     `json:"id"`
	JobNumber  string    `json:"job_number"`
	Actor      string    `json:"actor"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (s *Service) publishLifecycle(ctx context.Context, action string, order *entity.JobOrder, actorEmail string) {
	if !s.publish || s.publisher == nil {
		return
	}
	event := LifecycleEvent{
		EventID:    uuid.NewString(),
		Action:     action,
		ID:         order.ID,
		JobNumber:  order.JobNumber,
		Actor:      actorEmail,
		OccurredAt: s.now(),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		if s.logger != nil {
			s.logger.Error("marshal job order lifecycle event", zap.Error(err))
		}
		return
	}
	key := []byte(fmt.Sprintf("job-order-%d", order.ID))
	if err := s.publisher.Publish(ctx, key, payload); err != nil && s.logger != nil {
		s.logger.Error("publish job order lifecycle event", zap.Error(err), zap.String("action", action))
	}
}
