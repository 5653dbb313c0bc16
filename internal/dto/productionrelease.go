package dto

import "time"

// ProductionReleaseResponse represents a release with its job-order item and
// parent order summary joined in.
type ProductionReleaseResponse struct {
	ID                   int64                 `json:"id"`
	JobOrderItemID       int64                 `json:"job_order_item_id"`
	DrawingNumber        string                `json:"drawing_number"`
	ReleaseQty           string                `json:"release_qty"`
	ReleaseWeight        *string               `json:"release_weight"`
	Status               string                `json:"status"`
	ITPTemplateID        *int64                `json:"itp_template_id,omitempty"`
	ProductionStartDate  *time.Time            `json:"production_start_date,omitempty"`
	ProductionEndDate    *time.Time            `json:"production_end_date,omitempty"`
	ActualCompletionDate *time.Time            `json:"actual_completion_date,omitempty"`
	CreatedBy            string                `json:"created_by"`
	CreatedAt            time.Time             `json:"created_at"`
	Item                 *JobOrderItemResponse `json:"item,omitempty"`
	JobOrder             *JobOrderSummary      `json:"job_order,omitempty"`
}
