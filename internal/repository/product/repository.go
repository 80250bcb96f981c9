package product

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Zannatul-Fahmida/e-commerce-core/internal/database"
	"github.com/Zannatul-Fahmida/e-commerce-core/internal/entity"
)

var repoTracer = otel.Tracer("github.com/Zannatul-Fahmida/e-commerce-core/repository/product")

// ErrNotFound is returned when a product is missing from the catalog.
var ErrNotFound = errors.New("product not found")

// Repository reads the catalog slice checkout needs.
type Repository struct {
	reader *bun.DB
	writer *bun.DB
}

// NewRepository wires a repository backed by configured database connections.
func NewRepository(conns *database.Connections) *Repository {
	return &Repository{
		reader: conns.Reader,
		writer: conns.Writer,
	}
}

// GetByID fetches a single product.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*entity.Product, error) {
	ctx, span := repoTracer.Start(ctx, "ProductRepository.GetByID", trace.WithAttributes(attribute.String("product.id", id.String())))
	defer span.End()

	p := new(entity.Product)
	err := r.reader.NewSelect().Model(p).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		span.SetStatus(otelcodes.Error, "not found")
		return nil, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, "select failed")
		return nil, err
	}
	return p, nil
}

// GetByIDs fetches the latest catalog state for the requested products,
// keyed by id. Missing products are simply absent from the result.
func (r *Repository) GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*entity.Product, error) {
	ctx, span := repoTracer.Start(ctx, "ProductRepository.GetByIDs", trace.WithAttributes(attribute.Int("product.count", len(ids))))
	defer span.End()

	var products []*entity.Product
	if len(ids) == 0 {
		return map[uuid.UUID]*entity.Product{}, nil
	}
	err := r.reader.NewSelect().Model(&products).Where("id IN (?)", bun.In(ids)).Scan(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, "select failed")
		return nil, err
	}

	byID := make(map[uuid.UUID]*entity.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	return byID, nil
}
