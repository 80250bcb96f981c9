package user

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

var repoTracer = otel.Tracer("github.com/Zannatul-Fahmida/e-commerce-core/repository/user")

// ErrNotFound is returned when no user matches the lookup.
var ErrNotFound = errors.New("user not found")

// Repository reads user profiles.
type Repository struct {
	reader *bun.DB
}

// NewRepository wires a repository backed by configured database connections.
func NewRepository(conns *database.Connections) *Repository {
	return &Repository{reader: conns.Reader}
}

// GetByID fetches a user profile by id.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*entity.User, error) {
	ctx, span := repoTracer.Start(ctx, "UserRepository.GetByID", trace.WithAttributes(attribute.String("user.id", id.String())))
	defer span.End()

	u := new(entity.User)
	err := r.reader.NewSelect().Model(u).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		span.SetStatus(otelcodes.Error, "not found")
		return nil, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, "select failed")
		return nil, err
	}
	return u, nil
}
