package entity

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// Invoice statuses. Items of CANCELLED invoices do not count toward
// job-order item consumption.
const (
	InvoiceStatusDraft     = "DRAFT"
	InvoiceStatusSent      = "SENT"
	InvoiceStatusPaid      = "PAID"
	InvoiceStatusOverdue   = "OVERDUE"
	InvoiceStatusCancelled = "CANCELLED"
)

// Invoice carries derived totals recomputed deterministically from its line
// items plus TaxRate and Discount.
type Invoice struct {
	bun.BaseModel `bun:"table:invoices,alias:inv"`

	ID            int64           `bun:",pk,autoincrement"`
	InvoiceNumber string          `bun:"invoice_number"`
	JobOrderID    *int64          `bun:"job_order_id"`
	ClientID      int64           `bun:"client_id"`
	Status        string          `bun:"status"`
	TaxRate       decimal.Decimal `bun:"tax_rate"`
	Discount      decimal.Decimal `bun:"discount"`
	Subtotal      decimal.Decimal `bun:"subtotal"`
	TaxAmount     decimal.Decimal `bun:"tax_amount"`
	TotalAmount   decimal.Decimal `bun:"total_amount"`
	PaidAmount    decimal.Decimal `bun:"paid_amount"`
	BalanceAmount decimal.Decimal `bun:"balance_amount"`
	CreatedAt     time.Time       `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`
	UpdatedAt     time.Time       `bun:"updated_at,nullzero"`

	Items []*InvoiceItem `bun:"rel:has-many,join:id=invoice_id"`
}

// InvoiceItem is one invoice line; JobOrderItemID links it to the job-order
// line it consumes, when any.
type InvoiceItem struct {
	bun.BaseModel `bun:"table:invoice_items,alias:ii"`

	ID             int64           `bun:",pk,autoincrement"`
	InvoiceID      int64           `bun:"invoice_id"`
	JobOrderItemID *int64          `bun:"job_order_item_id"`
	Description    string          `bun:"description"`
	Quantity       decimal.Decimal `bun:"quantity"`
	UnitPrice      decimal.Decimal `bun:"unit_price"`
	TotalPrice     decimal.Decimal `bun:"total_price"`
}
