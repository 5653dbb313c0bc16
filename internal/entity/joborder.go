package entity

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// JobOrder is a fabrication work order with ordered line items. At most one
// non-deleted row may exist per JobNumber; soft-deleted rows with the same
// number are kept as history until restored or purged.
type JobOrder struct {
	bun.BaseModel `bun:"table:job_orders,alias:jo"`

	ID           int64      `bun:",pk,autoincrement"`
	JobNumber    string     `bun:"job_number"`
	ClientName   string     `bun:"client_name"`
	Description  string     `bun:"description"`
	StartDate    *time.Time `bun:"start_date"`
	DueDate      *time.Time `bun:"due_date"`
	IsDeleted    bool       `bun:"is_deleted"`
	DeletedAt    *time.Time `bun:"deleted_at"`
	DeletedBy    string     `bun:"deleted_by"`
	CreatedAt    time.Time  `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`
	LastEditedAt *time.Time `bun:"last_edited_at"`
	LastEditedBy string     `bun:"last_edited_by"`

	Items []*JobOrderItem `bun:"rel:has-many,join:id=job_order_id"`
}

// JobOrderItem is one ordered line of a job order. Items are replaced
// wholesale when the parent is updated; only ProductionReleases and
// InvoiceItems hold a direct reference across versions. A null Quantity
// means the ordered amount is unlimited.
type JobOrderItem struct {
	bun.BaseModel `bun:"table:job_order_items,alias:joi"`

	ID              int64               `bun:",pk,autoincrement"`
	JobOrderID      int64               `bun:"job_order_id"`
	WorkDescription string              `bun:"work_description"`
	Quantity        decimal.NullDecimal `bun:"quantity"`
	Unit            string              `bun:"unit"`
	UnitPrice       decimal.Decimal     `bun:"unit_price"`
	UnitWeight      decimal.NullDecimal `bun:"unit_weight"`
	TotalPrice      decimal.Decimal     `bun:"total_price"`
}

// FieldChange records one scalar field transition in an edit history entry.
type FieldChange struct {
	From any `json:"from"`
	To   any `json:"to"`
}

// JobOrderEditHistory captures a field-level diff for every job order update.
type JobOrderEditHistory struct {
	bun.BaseModel `bun:"table:job_order_edit_history"`

	ID            int64                  `bun:",pk,autoincrement"`
	JobOrderID    int64                  `bun:"job_order_id"`
	Changes       map[string]FieldChange `bun:"changes,type:jsonb"`
	ItemsReplaced bool                   `bun:"items_replaced"`
	EditedBy      string                 `bun:"edited_by"`
	EditedAt      time.Time              `bun:"edited_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`
}
