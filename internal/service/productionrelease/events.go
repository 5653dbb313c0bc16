package productionrelease

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fabworks/foundry/internal/entity"
)

// ReleaseCreatedEvent is emitted when a new production release is persisted.
type ReleaseCreatedEvent struct {
	EventID        string    `json:"event_id"`
	ID             int64     `json:"id"`
	JobOrderItemID int64     `json:"job_order_item_id"`
	DrawingNumber  string    `json:"drawing_number"`
	ReleaseQty     string    `json:"release_qty"`
	CreatedBy      string    `json:"created_by"`
	CreatedAt      time.Time `json:"created_at"`
}

func (s *Service) publishReleaseCreated(ctx context.Context, release *entity.ProductionRelease, item *entity.JobOrderItem) {
	if !s.publish || s.publisher == nil {
		return
	}
	event := ReleaseCreatedEvent{
		EventID:        uuid.NewString(),
		ID:             release.ID,
		JobOrderItemID: item.ID,
		DrawingNumber:  release.DrawingNumber,
		ReleaseQty:     release.ReleaseQty.String(),
		CreatedBy:      release.CreatedBy,
		CreatedAt:      release.CreatedAt,
	}
	payload, err := json.Marshal(event)
	if err != nil {
		if s.logger != nil {
			s.logger.Error("marshal release created event", zap.Error(err))
		}
		return
	}
	key := []byte(fmt.Sprintf("release-%d", release.ID))
	if err := s.publisher.Publish(ctx, key, payload); err != nil && s.logger != nil {
		s.logger.Error("publish release created event", zap.Error(err))
	}
}
