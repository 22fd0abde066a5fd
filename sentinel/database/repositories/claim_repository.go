package repositories

import (
	"context"

	"github.com/blackat5445/cisia-sentinel/sentinel/database/models"
	"github.com/uptrace/bun"
)

type ClaimRepository interface {
	GetAll(ctx context.Context) ([]*models.DonationClaim, error)
	Create(ctx context.Context, claim *models.DonationClaim) error
	Update(ctx context.Context, claim *models.DonationClaim) error
	Delete(ctx context.Context, id int64) error
}

type claimRepository struct {
	db *bun.DB
}

func NewClaimRepository(db *bun.DB) ClaimRepository {
	return &claimRepository{db: db}
}

func (r *claimRepository) GetAll(ctx context.Context) ([]*models.DonationClaim, error) {
	var claims []*models.DonationClaim
	err := r.db.NewSelect().
		Model(&claims).
		Order("submitted_at ASC").
		Scan(ctx)
	return claims, err
}

func (r *claimRepository) Create(ctx context.Context, claim *models.DonationClaim) error {
	_, err := r.db.NewInsert().Model(claim).Exec(ctx)
	return err
}

func (r *claimRepository) Update(ctx context.Context, claim *models.DonationClaim) error {
	_, err := r.db.NewUpdate().
		Model(claim).
		WherePK().
		Exec(ctx)
	return err
}

func (r *claimRepository) Delete(ctx context.Context, id int64) error {
	_, err := r.db.NewDelete().
		Model((*models.DonationClaim)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	return err
}
