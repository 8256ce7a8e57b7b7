package repository

import (
	"context"
	"errors"
	"time"

	"habita-chat/internal/domain/conversation"
	habita_errors "habita-chat/pkg/errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PostgresConversationRepository struct {
	db *gorm.DB
}

func NewConversationRepository(db *gorm.DB) ConversationRepository {
	return &PostgresConversationRepository{db: db}
}

func (r *PostgresConversationRepository) Create(ctx context.Context, c *conversation.Conversation) error {
	res := r.db.WithContext(ctx).Create(c)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return habita_errors.ErrAlreadyExists
		}
		return res.Error
	}
	return nil
}

func (r *PostgresConversationRepository) GetByID(ctx context.Context, id uuid.UUID) (conversation.Conversation, error) {
	var c conversation.Conversation
	err := r.db.WithContext(ctx).
		Preload("Listing").
		Preload("Tenant").
		Preload("Landlord").
		Where("id = ?", id).
		First(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return conversation.Conversation{}, habita_errors.ErrNotFound
		}
		return conversation.Conversation{}, err
	}
	return c, nil
}

func (r *PostgresConversationRepository) GetByListingAndTenant(ctx context.Context, listingID, tenantID uuid.UUID) (conversation.Conversation, error) {
	var c conversation.Conversation
	err := r.db.WithContext(ctx).
		Preload("Listing").
		Preload("Tenant").
		Preload("Landlord").
		Where("listing_id = ? AND tenant_id = ?", listingID, tenantID).
		First(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return conversation.Conversation{}, habita_errors.ErrNotFound
		}
		return conversation.Conversation{}, err
	}
	return c, nil
}

func (r *PostgresConversationRepository) ListForUser(ctx context.Context, userID uuid.UUID) ([]conversation.Conversation, error) {
	var conversations []conversation.Conversation
	err := r.db.WithContext(ctx).
		Preload("Listing").
		Preload("Tenant").
		Preload("Landlord").
		Where("(tenant_id = ? AND deleted_by_tenant = false) OR (landlord_id = ? AND deleted_by_landlord = false)", userID, userID).
		Order("updated_at DESC").
		Find(&conversations).Error
	if err != nil {
		return nil, err
	}
	return conversations, nil
}

func (r *PostgresConversationRepository) SetDeletedFlag(ctx context.Context, id uuid.UUID, role conversation.Role, hidden bool) error {
	res := r.db.WithContext(ctx).
		Model(&conversation.Conversation{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			conversation.DeletedFlagColumn(role): hidden,
			"updated_at":                         time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return habita_errors.ErrNotFound
	}
	return nil
}

func (r *PostgresConversationRepository) MarkFinished(ctx context.Context, id uuid.UUID) (bool, error) {
	// Guarding on status makes the transition monotonic under
	// concurrent calls: only one update flips the row.
	res := r.db.WithContext(ctx).
		Model(&conversation.Conversation{}).
		Where("id = ? AND status = ?", id, conversation.StatusActive).
		Updates(map[string]interface{}{
			"status":     conversation.StatusFinished,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		var c conversation.Conversation
		err := r.db.WithContext(ctx).Select("id", "status").Where("id = ?", id).First(&c).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return false, habita_errors.ErrNotFound
			}
			return false, err
		}
		return c.Status == conversation.StatusFinished, nil
	}
	return false, nil
}

func (r *PostgresConversationRepository) Touch(ctx context.Context, id uuid.UUID, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&conversation.Conversation{}).
		Where("id = ?", id).
		Update("updated_at", at)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return habita_errors.ErrNotFound
	}
	return nil
}
