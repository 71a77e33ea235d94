package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/payattn/payattn/pkg/perrors"
)

// AdCreative is the publisher-visible content an offer is paying to show.
type AdCreative struct {
	CreativeID   string
	AdvertiserID string
	Title        string
	Body         string
	TargetURL    string
	Category     string
	CreatedAt    time.Time
}

// CreativeRepository persists ad creatives.
type CreativeRepository struct {
	db *DB
}

// NewCreativeRepository builds a creative repository backed by db.
func NewCreativeRepository(db *DB) *CreativeRepository {
	return &CreativeRepository{db: db}
}

// Create inserts a new ad creative.
func (r *CreativeRepository) Create(ctx context.Context, c *AdCreative) error {
	q := `INSERT INTO ` + r.db.table("ad_creatives") + `
		(creative_id, advertiser_id, title, body, target_url, category, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`
	_, err := r.db.sql.ExecContext(ctx, q, c.CreativeID, c.AdvertiserID, c.Title, c.Body, c.TargetURL, c.Category, c.CreatedAt)
	if err != nil {
		return perrors.Wrap("creating ad creative", err)
	}
	return nil
}

// Get loads a creative by id.
func (r *CreativeRepository) Get(ctx context.Context, creativeID string) (*AdCreative, error) {
	q := `SELECT creative_id, advertiser_id, title, body, target_url, category, created_at
		FROM ` + r.db.table("ad_creatives") + ` WHERE creative_id = $1`
	var c AdCreative
	err := r.db.sql.QueryRowContext(ctx, q, creativeID).Scan(
		&c.CreativeID, &c.AdvertiserID, &c.Title, &c.Body, &c.TargetURL, &c.Category, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, perrors.ErrCreativeNotFound
	}
	if err != nil {
		return nil, perrors.Wrap("scanning ad creative", err)
	}
	return &c, nil
}
