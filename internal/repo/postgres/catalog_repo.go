package postgres

import (
	"context"
	"fmt"

	"github.com/diagnosis/parcel-bookings/internal/domain"
)

type CatalogRepo interface {
	ListServices(ctx context.Context) ([]domain.Service, error)
}

type CatalogRepoImpl struct{ db DBTX }

func NewCatalogRepo(db DBTX) *CatalogRepoImpl { return &CatalogRepoImpl{db: db} }

func (r *CatalogRepoImpl) ListServices(ctx context.Context) ([]domain.Service, error) {
	const q = `SELECT service_id, name, description, price_cents FROM service ORDER BY service_id`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := r.db.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrPersistence, err)
	}
	defer rows.Close()
	return collectServices(rows)
}
