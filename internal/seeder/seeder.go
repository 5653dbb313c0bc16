package seeder

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
	"go.uber.org/zap"

	"github.com/fabworks/foundry/internal/database"
	"github.com/fabworks/foundry/internal/entity"
)

// Seeder performs database seeding for local/dev setups.
type Seeder struct {
	db     *bun.DB
	logger *zap.Logger
}

// New constructs a Seeder backed by the primary database connection.
func New(conns *database.Connections, logger *zap.Logger) *Seeder {
	return &Seeder{db: conns.Writer, logger: logger}
}

// JobOrders seeds example job orders with items if they are missing.
func (s *Seeder) JobOrders(ctx context.Context) error {
	now := time.Now().UTC()
	samples := []struct {
		order entity.JobOrder
		items []entity.JobOrderItem
	}{
		{
			order: entity.JobOrder{
				JobNumber:   "JO-1000",
				ClientName:  "Harbourline Fabrication",
				Description: "Pipe rack modules, phase one",
				CreatedAt:   now,
			},
			items: []entity.JobOrderItem{
				{
					WorkDescription: "Fabricate pipe rack module A",
					Quantity:        decimal.NewNullDecimal(decimal.NewFromInt(100)),
					Unit:            "EA",
					UnitPrice:       decimal.NewFromInt(250),
					UnitWeight:      decimal.NewNullDecimal(decimal.NewFromFloat(12.5)),
					TotalPrice:      decimal.NewFromInt(25000),
				},
				{
					WorkDescription: "Surface treatment, module A",
					Quantity:        decimal.NullDecimal{},
					Unit:            "LOT",
					UnitPrice:       decimal.NewFromInt(1800),
					TotalPrice:      decimal.NewFromInt(1800),
				},
			},
		},
		{
			order: entity.JobOrder{
				JobNumber:   "JO-1001",
				ClientName:  "Meridian Process Plants",
				Description: "Skid frames, batch two",
				CreatedAt:   now,
			},
			items: []entity.JobOrderItem{
				{
					WorkDescription: "Fabricate skid frame",
					Quantity:        decimal.NewNullDecimal(decimal.NewFromInt(40)),
					Unit:            "EA",
					UnitPrice:       decimal.NewFromInt(975),
					TotalPrice:      decimal.NewFromInt(39000),
				},
			},
		},
	}

	seeded := 0
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for _, sample := range samples {
			order := sample.order
			res, err := tx.NewInsert().Model(&order).
				On("CONFLICT (job_number) WHERE NOT is_deleted DO NOTHING").
				Exec(ctx)
			if err != nil {
				return err
			}
			if rows, _ := res.RowsAffected(); rows == 0 {
				continue
			}
			for i := range sample.items {
				item := sample.items[i]
				item.JobOrderID = order.ID
				if _, err := tx.NewInsert().Model(&item).Exec(ctx); err != nil {
					return err
				}
			}
			seeded++
		}
		return nil
	})
	if err != nil {
		return err
	}

	if s.logger != nil {
		s.logger.Info("seeded job orders", zap.Int("count", seeded))
	}
	return nil
}
