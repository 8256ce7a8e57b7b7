package repository

import (
	"context"
	"errors"

	"habita-chat/internal/domain/listing"
	"habita-chat/internal/domain/user"
	habita_errors "habita-chat/pkg/errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PostgresListingRepository struct {
	db *gorm.DB
}

func NewListingRepository(db *gorm.DB) ListingRepository {
	return &PostgresListingRepository{db: db}
}

func (r *PostgresListingRepository) GetByID(ctx context.Context, id uuid.UUID) (listing.Listing, error) {
	var l listing.Listing
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&l).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return listing.Listing{}, habita_errors.ErrNotFound
		}
		return listing.Listing{}, err
	}
	return l, nil
}

type PostgresUserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) UserRepository {
	return &PostgresUserRepository{db: db}
}

func (r *PostgresUserRepository) GetByID(ctx context.Context, id uuid.UUID) (user.User, error) {
	var u user.User
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return user.User{}, habita_errors.ErrNotFound
		}
		return user.User{}, err
	}
	return u, nil
}
