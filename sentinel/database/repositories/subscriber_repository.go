package repositories

import (
	"context"
	"time"

	"github.com/blackat5445/cisia-sentinel/sentinel/database/models"
	"github.com/uptrace/bun"
)

type SubscriberRepository interface {
	GetAll(ctx context.Context) ([]*models.Subscriber, error)
	Save(ctx context.Context, sub *models.Subscriber) error
}

type subscriberRepository struct {
	db *bun.DB
}

func NewSubscriberRepository(db *bun.DB) SubscriberRepository {
	return &subscriberRepository{db: db}
}

func (r *subscriberRepository) GetAll(ctx context.Context) ([]*models.Subscriber, error) {
	var subs []*models.Subscriber
	err := r.db.NewSelect().
		Model(&subs).
		Order("joined_at ASC").
		Scan(ctx)
	return subs, err
}

// Save upserts by discord_id so the in-memory store can write through
// without tracking whether the record already exists.
func (r *subscriberRepository) Save(ctx context.Context, sub *models.Subscriber) error {
	sub.UpdatedAt = time.Now()
	_, err := r.db.NewInsert().
		Model(sub).
		On("CONFLICT (discord_id) DO UPDATE").
		Set("username = EXCLUDED.username").
		Set("display_name = EXCLUDED.display_name").
		Set("github_handle = EXCLUDED.github_handle").
		Set("verified = EXCLUDED.verified").
		Set("exams = EXCLUDED.exams").
		Set("preferred_interval = EXCLUDED.preferred_interval").
		Set("premium = EXCLUDED.premium").
		Set("active = EXCLUDED.active").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}
