package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// Product is the slice of the catalog the checkout path needs: current price
// and stock. Catalog management itself lives outside this service.
type Product struct {
	bun.BaseModel `bun:"table:products"`

	ID            uuid.UUID       `bun:"id,pk,type:uuid" json:"id"`
	Name          string          `bun:"name" json:"name"`
	Price         decimal.Decimal `bun:"price" json:"price"`
	DiscountPrice decimal.Decimal `bun:"discount_price,nullzero" json:"discount_price,omitempty"`
	Stock         int             `bun:"stock" json:"stock"`
	CreatedAt     time.Time       `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP" json:"created_at"`
}

// EffectivePrice prefers the discount price when one is set.
func (p *Product) EffectivePrice() decimal.Decimal {
	if p.DiscountPrice.IsPositive() {
		return p.DiscountPrice
	}
	return p.Price
}
