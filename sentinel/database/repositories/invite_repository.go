package repositories

import (
	"context"
	"time"

	"github.com/blackat5445/cisia-sentinel/sentinel/database/models"
	"github.com/uptrace/bun"
)

type InviteRepository interface {
	GetValid(ctx context.Context) ([]*models.InviteLink, error)
	Create(ctx context.Context, link *models.InviteLink) error
	Update(ctx context.Context, link *models.InviteLink) error
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

type inviteRepository struct {
	db *bun.DB
}

func NewInviteRepository(db *bun.DB) InviteRepository {
	return &inviteRepository{db: db}
}

// GetValid loads only links worth holding in memory: unused and not
// yet expired. Everything else is dead weight the sweeper will reap.
func (r *inviteRepository) GetValid(ctx context.Context) ([]*models.InviteLink, error) {
	var links []*models.InviteLink
	err := r.db.NewSelect().
		Model(&links).
		Where("used = FALSE").
		Where("expires_at > ?", time.Now()).
		Scan(ctx)
	return links, err
}

func (r *inviteRepository) Create(ctx context.Context, link *models.InviteLink) error {
	_, err := r.db.NewInsert().Model(link).Exec(ctx)
	return err
}

func (r *inviteRepository) Update(ctx context.Context, link *models.InviteLink) error {
	_, err := r.db.NewUpdate().
		Model(link).
		WherePK().
		Exec(ctx)
	return err
}

func (r *inviteRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.NewDelete().
		Model((*models.InviteLink)(nil)).
		Where("expires_at <= ?", before).
		Where("used = FALSE").
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}
