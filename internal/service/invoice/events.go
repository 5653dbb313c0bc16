package invoice

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fabworks/foundry/internal/entity"
)

// InvoiceCreatedEvent is emitted when a new invoice is persisted.
type InvoiceCreatedEvent struct {
	EventID       string    `json:"event_id"`
	ID            int64     `json:"id"`
	InvoiceNumber string    `json:"invoice_number"`
	ClientID      int64     `json:"client_id"`
	TotalAmount   string    `json:"total_amount"`
	CreatedAt     time.Time `json:"created_at"`
}

func (s *Service) publishInvoiceCreated(ctx context.Context, inv *entity.Invoice) {
	if !s.publish || s.publisher == nil {
		return
	}
	event := InvoiceCreatedEvent{
		EventID:       uuid.NewString(),
		ID:            inv.ID,
		InvoiceNumber: inv.InvoiceNumber,
		ClientID:      inv.ClientID,
		TotalAmount:   inv.TotalAmount.String(),
		CreatedAt:     inv.CreatedAt,
	}
	payload, err := json.Marshal(event)
	if err != nil {
		if s.logger != nil {
			s.logger.Error("marshal invoice created event", zap.Error(err))
		}
		return
	}
	key := []byte(fmt.Sprintf("invoice-%d", inv.ID))
	if err := s.publisher.Publish(ctx, key, payload); err != nil && s.logger != nil {
		s.logger.Error("publish invoice created event", zap.Error(err))
	}
}
