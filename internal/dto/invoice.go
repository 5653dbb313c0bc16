package dto

import "time"

// InvoiceItemResponse represents one invoice line.
type InvoiceItemResponse struct {
	ID             int64  `json:"id"`
	JobOrderItemID *int64 `json:"job_order_item_id,omitempty"`
	Description    string `json:"description"`
	Quantity       string `json:"quantity"`
	UnitPrice      string `json:"unit_price"`
	TotalPrice     string `json:"total_price"`
}

// InvoiceResponse represents an invoice with its recomputed totals.
type InvoiceResponse struct {
	ID            int64                 `json:"id"`
	InvoiceNumber string                `json:"invoice_number"`
	JobOrderID    *int64                `json:"job_order_id,omitempty"`
	ClientID      int64                 `json:"client_id"`
	Status        string                `json:"status"`
	TaxRate       string                `json:"tax_rate"`
	Discount      string                `json:"discount"`
	Subtotal      string                `json:"subtotal"`
	TaxAmount     string                `json:"tax_amount"`
	TotalAmount   string                `json:"total_amount"`
	PaidAmount    string                `json:"paid_amount"`
	BalanceAmount string                `json:"balance_amount"`
	CreatedAt     time.Time             `json:"created_at"`
	UpdatedAt     time.Time             `json:"updated_at"`
	Items         []InvoiceItemResponse `json:"items"`
}
