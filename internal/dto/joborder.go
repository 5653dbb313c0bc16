package dto

import "time"

// JobOrderItemResponse represents one ordered line as exposed via transport
// layers. Quantity and UnitWeight are null when unset.
type JobOrderItemResponse struct {
	ID              int64   `json:"id"`
	WorkDescription string  `json:"work_description"`
	Quantity        *string `json:"quantity"`
	Unit            string  `json:"unit"`
	UnitPrice       string  `json:"unit_price"`
	UnitWeight      *string `json:"unit_weight"`
	TotalPrice      string  `json:"total_price"`
}

// JobOrderResponse represents a job order as exposed via transport layers.
type JobOrderResponse struct {
	ID           int64                  `json:"id"`
	JobNumber    string                 `json:"job_number"`
	ClientName   string                 `json:"client_name"`
	Description  string                 `json:"description"`
	StartDate    *time.Time             `json:"start_date"`
	DueDate      *time.Time             `json:"due_date"`
	IsDeleted    bool                   `json:"is_deleted"`
	DeletedAt    *time.Time             `json:"deleted_at,omitempty"`
	DeletedBy    string                 `json:"deleted_by,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
	LastEditedAt *time.Time             `json:"last_edited_at,omitempty"`
	LastEditedBy string                 `json:"last_edited_by,omitempty"`
	Items        []JobOrderItemResponse `json:"items"`
}

// JobOrderSummary is the compact join attached to release and invoice
// responses.
type JobOrderSummary struct {
	ID         int64  `json:"id"`
	JobNumber  string `json:"job_number"`
	ClientName string `json:"client_name"`
}
