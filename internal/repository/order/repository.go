package order

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Zannatul-Fahmida/e-commerce-core/internal/database"
	"github.com/Zannatul-Fahmida/e-commerce-core/internal/entity"
)

var repoTracer = otel.Tracer("github.com/Zannatul-Fahmida/e-commerce-core/repository/order")

// ErrNotFound is returned when no order matches the lookup.
var ErrNotFound = errors.New("order not found")

// ErrInsufficientStock is returned when a line item cannot be covered by the
// current catalog stock at placement time.
var ErrInsufficientStock = errors.New("insufficient stock")

// PlaceholderMatch narrows the placeholder fallback to orders whose
// representative fields match the callback payload. A nil match selects the
// most recent pending placeholder order regardless of contents.
type PlaceholderMatch struct {
	ProductID uuid.UUID
	Amount    decimal.Decimal
	Currency  string
}

// Repository encapsulates read/write access for orders. All status-mutating
// writes are single conditional UPDATE statements guarded on status =
// 'pending'; that guard is the only synchronization primitive in the system.
type Repository struct {
	writer *bun.DB
	reader *bun.DB
}

// NewRepository wires a repository backed by configured database connections.
func NewRepository(conns *database.Connections) *Repository {
	return &Repository{
		writer: conns.Writer,
		reader: conns.Reader,
	}
}

// PlaceOrder inserts the order with its line items and decrements stock per
// line, all in one transaction. Any line whose stock guard fails aborts the
// whole placement with ErrInsufficientStock.
func (r *Repository) PlaceOrder(ctx context.Context, o *entity.Order, items []*entity.OrderItem) error {
	if o == nil {
		return errors.New("nil order")
	}
	ctx, span := repoTracer.Start(ctx, "OrderRepository.PlaceOrder", trace.WithAttributes(
		attribute.String("order.id", o.ID.String()),
		attribute.Int("order.items", len(items)),
	))
	defer span.End()

	err := r.writer.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(o).Exec(ctx); err != nil {
			return err
		}
		for _, item := range items {
			item.OrderID = o.ID
			if _, err := tx.NewInsert().Model(item).Exec(ctx); err != nil {
				return err
			}
			res, err := tx.NewUpdate().
				Model((*entity.Product)(nil)).
				Set("stock = stock - ?", item.Quantity).
				Where("id = ?", item.ProductID).
				Where("stock >= ?", item.Quantity).
				Exec(ctx)
			if err != nil {
				return err
			}
			if affected, _ := res.RowsAffected(); affected == 0 {
				return ErrInsufficientStock
			}
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "place order failed")
	}
	return err
}

// GetByID fetches an order with its items by primary key.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*entity.Order, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.GetByID", trace.WithAttributes(attribute.String("order.id", id.String())))
	defer span.End()

	o := new(entity.Order)
	err := r.reader.NewSelect().Model(o).
		Relation("Items").
		Where("o.id = ?", id).
		Scan(ctx)
	return r.one(span, o, err)
}

// GetByTransactionID fetches an order by its gateway (or placeholder)
// transaction id. This is the strongest resolver tier.
func (r *Repository) GetByTransactionID(ctx context.Context, tranID string) (*entity.Order, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.GetByTransactionID", trace.WithAttributes(attribute.String("order.tran_id", tranID)))
	defer span.End()

	o := new(entity.Order)
	err := r.reader.NewSelect().Model(o).
		Where("transaction_id = ?", tranID).
		Order("created_at DESC").
		Limit(1).
		Scan(ctx)
	return r.one(span, o, err)
}

// GetPendingByID fetches an order by id only when it is still pending. Used
// by the passthrough resolver tier so terminal orders are never re-matched by
// the weaker identity.
func (r *Repository) GetPendingByID(ctx context.Context, id uuid.UUID) (*entity.Order, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.GetPendingByID", trace.WithAttributes(attribute.String("order.id", id.String())))
	defer span.End()

	o := new(entity.Order)
	err := r.reader.NewSelect().Model(o).
		Where("id = ?", id).
		Where("status = ?", entity.PaymentPending).
		Scan(ctx)
	return r.one(span, o, err)
}

// FindPendingPlaceholder locates the most recent pending order whose
// transaction id still carries the TEMP_ prefix, optionally narrowed by the
// representative product/amount/currency triple from the callback.
func (r *Repository) FindPendingPlaceholder(ctx context.Context, match *PlaceholderMatch) (*entity.Order, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.FindPendingPlaceholder")
	defer span.End()

	o := new(entity.Order)
	q := r.reader.NewSelect().Model(o).
		Where("status = ?", entity.PaymentPending).
		Where("transaction_id LIKE ?", entity.PlaceholderPrefix+"%").
		Order("created_at DESC").
		Limit(1)
	if match != nil {
		q = q.Where("product_id = ?", match.ProductID).
			Where("amount = ?", match.Amount).
			Where("currency = ?", match.Currency)
	}
	err := q.Scan(ctx)
	return r.one(span, o, err)
}

// Settle applies the one-time payment transition as a single conditional
// UPDATE guarded on status = 'pending'. When promote is set the placeholder
// transaction id is rewritten to tranID in the same statement. The returned
// bool reports whether this call performed the transition; false with a nil
// error means another writer got there first.
func (r *Repository) Settle(ctx context.Context, id uuid.UUID, status entity.PaymentStatus, tranID string, promote bool) (bool, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.Settle", trace.WithAttributes(
		attribute.String("order.id", id.String()),
		attribute.String("order.status", string(status)),
	))
	defer span.End()

	q := r.writer.NewUpdate().
		Model((*entity.Order)(nil)).
		Set("status = ?", status).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Where("status = ?", entity.PaymentPending)
	if promote {
		q = q.Set("transaction_id = ?", tranID)
	}

	res, err := q.Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "settle failed")
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// PromoteTransactionID swaps the TEMP_ placeholder for the gateway id while
// the order is still pending. The placeholder guard makes the promotion
// single-shot even when the first callback races the checkout flow.
func (r *Repository) PromoteTransactionID(ctx context.Context, id uuid.UUID, tranID string) (bool, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.PromoteTransactionID", trace.WithAttributes(
		attribute.String("order.id", id.String()),
		attribute.String("order.tran_id", tranID),
	))
	defer span.End()

	res, err := r.writer.NewUpdate().
		Model((*entity.Order)(nil)).
		Set("transaction_id = ?", tranID).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Where("status = ?", entity.PaymentPending).
		Where("transaction_id LIKE ?", entity.PlaceholderPrefix+"%").
		Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "promote failed")
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *Repository) one(span trace.Span, o *entity.Order, err error) (*entity.Order, error) {
	if errors.Is(err, sql.ErrNoRows) {
		span.SetStatus(codes.Error, "not found")
		return nil, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return o, nil
}
