package seeder

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
	"go.uber.org/zap"

	"github.com/Zannatul-Fahmida/e-commerce-core/internal/database"
	"github.com/Zannatul-Fahmida/e-commerce-core/internal/entity"
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

// Catalog seeds example products and a demo customer if they are missing.
func (s *Seeder) Catalog(ctx context.Context) error {
	products := []entity.Product{
		{
			ID:    uuid.MustParse("9b3f8f3e-0000-4000-8000-000000000001"),
			Name:  "Classic Tote Bag",
			Price: decimal.NewFromInt(1200),
			Stock: 50,
		},
		{
			ID:            uuid.MustParse("9b3f8f3e-0000-4000-8000-000000000002"),
			Name:          "Ceramic Mug",
			Price:         decimal.NewFromInt(450),
			DiscountPrice: decimal.NewFromInt(390),
			Stock:         120,
		},
	}

	for _, sample := range products {
		product := sample
		_, err := s.db.NewInsert().Model(&product).
			On("CONFLICT (id) DO NOTHING").
			Exec(ctx)
		if err != nil {
			return err
		}
	}

	demo := entity.User{
		ID:       uuid.MustParse("9b3f8f3e-0000-4000-8000-0000000000aa"),
		FullName: "Demo Customer",
		Email:    "demo@example.com",
		Phone:    "01700000000",
	}
	if _, err := s.db.NewInsert().Model(&demo).
		On("CONFLICT (id) DO NOTHING").
		Exec(ctx); err != nil {
		return err
	}

	if s.logger != nil {
		s.logger.Info("seeded catalog", zap.Int("products", len(products)))
	}
	return nil
}
