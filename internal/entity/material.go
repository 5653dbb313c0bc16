package entity

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// MaterialRequest belongs to a job order. Its status trail is append-only;
// this core writes audit markers into it but never changes the status itself.
type MaterialRequest struct {
	bun.BaseModel `bun:"table:material_requests,alias:mr"`

	ID            int64     `bun:",pk,autoincrement"`
	JobOrderID    int64     `bun:"job_order_id"`
	RequestNumber string    `bun:"request_number"`
	Status        string    `bun:"status"`
	RequestedBy   string    `bun:"requested_by"`
	CreatedAt     time.Time `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`

	StatusHistory []*MaterialRequestStatusHistory `bun:"rel:has-many,join:id=material_request_id"`
}

// MaterialRequestStatusHistory is an append-only audit row. When written by
// the cascade annotator, OldStatus equals NewStatus and ChangedBy is "system".
type MaterialRequestStatusHistory struct {
	bun.BaseModel `bun:"table:material_request_status_history"`

	ID                int64     `bun:",pk,autoincrement"`
	MaterialRequestID int64     `bun:"material_request_id"`
	OldStatus         string    `bun:"old_status"`
	NewStatus         string    `bun:"new_status"`
	Note              string    `bun:"note"`
	ChangedBy         string    `bun:"changed_by"`
	ChangedAt         time.Time `bun:"changed_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`
}

// PurchaseOrderItem links material receipts back to the material request
// chain.
type PurchaseOrderItem struct {
	bun.BaseModel `bun:"table:purchase_order_items,alias:poi"`

	ID                int64           `bun:",pk,autoincrement"`
	MaterialRequestID int64           `bun:"material_request_id"`
	Description       string          `bun:"description"`
	Quantity          decimal.Decimal `bun:"quantity"`
	UnitPrice         decimal.Decimal `bun:"unit_price"`
	CreatedAt         time.Time       `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`
}

// MaterialReceipt is reachable from a job order via
// purchase_order_item -> material_request -> job_order_id. Its Notes field is
// only ever extended, never overwritten.
type MaterialReceipt struct {
	bun.BaseModel `bun:"table:material_receipts,alias:mrc"`

	ID                  int64           `bun:",pk,autoincrement"`
	PurchaseOrderItemID int64           `bun:"purchase_order_item_id"`
	ReceiptNumber       string          `bun:"receipt_number"`
	Status              string          `bun:"status"`
	ReceivedQty         decimal.Decimal `bun:"received_qty"`
	Notes               string          `bun:"notes"`
	ReceivedAt          *time.Time      `bun:"received_at"`
	CreatedAt           time.Time       `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`
}
