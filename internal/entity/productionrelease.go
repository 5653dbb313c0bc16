package entity

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// Production release lifecycle statuses.
const (
	ReleaseStatusPlanning   = "PLANNING"
	ReleaseStatusInProgress = "IN_PROGRESS"
	ReleaseStatusCompleted  = "COMPLETED"
)

// ProductionRelease authorizes producing some quantity of a job-order line
// item. ReleaseWeight is derived as ReleaseQty * UnitWeight when the item
// carries a unit weight.
type ProductionRelease struct {
	bun.BaseModel `bun:"table:production_releases,alias:pr"`

	ID                   int64               `bun:",pk,autoincrement"`
	JobOrderItemID       int64               `bun:"job_order_item_id"`
	DrawingNumber        string              `bun:"drawing_number"`
	ReleaseQty           decimal.Decimal     `bun:"release_qty"`
	ReleaseWeight        decimal.NullDecimal `bun:"release_weight"`
	Status               string              `bun:"status"`
	ITPTemplateID        *int64              `bun:"itp_template_id"`
	ProductionStartDate  *time.Time          `bun:"production_start_date"`
	ProductionEndDate    *time.Time          `bun:"production_end_date"`
	ActualCompletionDate *time.Time          `bun:"actual_completion_date"`
	CreatedBy            string              `bun:"created_by"`
	CreatedAt            time.Time           `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`
	UpdatedAt            time.Time           `bun:"updated_at,nullzero"`

	Item        *JobOrderItem `bun:"rel:belongs-to,join:job_order_item_id=id"`
	Inspections []*Inspection `bun:"rel:has-many,join:id=production_release_id"`
}

// Inspection is opaque to this core; a release with inspections cannot be
// deleted.
type Inspection struct {
	bun.BaseModel `bun:"table:inspections"`

	ID                  int64     `bun:",pk,autoincrement"`
	ProductionReleaseID int64     `bun:"production_release_id"`
	Result              string    `bun:"result"`
	InspectedBy         string    `bun:"inspected_by"`
	InspectedAt         time.Time `bun:"inspected_at,nullzero"`
}
