package repository

import (
	"context"

	"mvpbackend/backend/services/billing-service/internal/models"
)

// PackageRepository reads the credit package catalog.
type PackageRepository struct {
	db DBTX
}

// NewPackageRepository returns repository.
func NewPackageRepository(db DBTX) *PackageRepository {
	return &PackageRepository{db: db}
}

// ListActive returns purchasable packages ordered by price.
func (r *PackageRepository) ListActive(ctx context.Context) ([]models.CreditPackage, error) {
	const query = `
		SELECT id, name, credits, price_in_cents, is_active, created_at
		FROM credit_packages
		WHERE is_active = TRUE
		ORDER BY price_in_cents ASC
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	packages := make([]models.CreditPackage, 0)
	for rows.Next() {
		var p models.CreditPackage
		if err := rows.Scan(&p.ID, &p.Name, &p.Credits, &p.PriceInCents, &p.IsActive, &p.CreatedAt); err != nil {
			return nil, err
		}
		packages = append(packages, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return packages, nil
}

// GetActive fetches a purchasable package by id.
func (r *PackageRepository) GetActive(ctx context.Context, id string) (*models.CreditPackage, error) {
	const query = `
		SELECT id, name, credits, price_in_cents, is_active, created_at
		FROM credit_packages
		WHERE id = $1 AND is_active = TRUE
	`
	var p models.CreditPackage
	err := r.db.QueryRowContext(ctx, query, id).Scan(&p.ID, &p.Name, &p.Credits, &p.PriceInCents, &p.IsActive, &p.CreatedAt)
	if err != nil {
		return nil, notFound(err, ErrPackageNotFound)
	}
	return &p, nil
}
