package repository

import (
	"context"

	"habita-chat/internal/domain/lead"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PostgresLeadRepository struct {
	db *gorm.DB
}

func NewLeadRepository(db *gorm.DB) LeadRepository {
	return &PostgresLeadRepository{db: db}
}

func (r *PostgresLeadRepository) Create(ctx context.Context, l *lead.Lead) error {
	return r.db.WithContext(ctx).Create(l).Error
}

func (r *PostgresLeadRepository) ListByListing(ctx context.Context, listingID uuid.UUID) ([]lead.Lead, error) {
	var leads []lead.Lead
	err := r.db.WithContext(ctx).
		Where("listing_id = ?", listingID).
		Order("created_at DESC").
		Find(&leads).Error
	if err != nil {
		return nil, err
	}
	return leads, nil
}
