package services

import (
	"context"
	"database/sql"
	"time"

	"habita-chat/internal/domain/lead"
	"habita-chat/internal/repository"
	habita_errors "habita-chat/pkg/errors"
	"habita-chat/pkg/logger"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// LeadService adapts one-shot contact-form submissions into the
// messaging core. The Lead row is the guaranteed durable record; the
// conversation upgrade is best-effort and never fails a submission.
type LeadService struct {
	leadRepo    repository.LeadRepository
	listingRepo repository.ListingRepository
	userRepo    repository.UserRepository
	convService *ConversationService
	msgService  *MessageService
	validate    *validator.Validate
	log         *logger.Logger
}

// SubmitLeadInput carries a contact-form submission. FromUserID is nil
// for anonymous visitors.
type SubmitLeadInput struct {
	ListingID  uuid.UUID `validate:"required"`
	FromUserID *uuid.UUID
	Name       string `validate:"max=120"`
	Message    string `validate:"required,min=10,max=1000"`
}

// SubmitLeadResult reports the durable lead and, when the bridging step
// succeeded, the conversation the sender can be deep-linked into.
type SubmitLeadResult struct {
	Lead           lead.Lead
	ConversationID uuid.UUID
}

func NewLeadService(leadRepo repository.LeadRepository, listingRepo repository.ListingRepository, userRepo repository.UserRepository, convService *ConversationService, msgService *MessageService, log *logger.Logger) *LeadService {
	return &LeadService{
		leadRepo:    leadRepo,
		listingRepo: listingRepo,
		userRepo:    userRepo,
		convService: convService,
		msgService:  msgService,
		validate:    validator.New(),
		log:         log,
	}
}

// Submit writes the Lead and, when the sender is authenticated and not
// the listing owner, upgrades the contact into a tracked conversation
// with the submitted text as its first message.
func (s *LeadService) Submit(ctx context.Context, in SubmitLeadInput) (SubmitLeadResult, error) {
	if err := s.validate.Struct(in); err != nil {
		return SubmitLeadResult{}, habita_errors.ErrInvalidInput
	}

	listingRow, err := s.listingRepo.GetByID(ctx, in.ListingID)
	if err != nil {
		return SubmitLeadResult{}, err
	}

	l := lead.Lead{
		ID:        uuid.New(),
		ListingID: in.ListingID,
		Message:   in.Message,
		CreatedAt: time.Now(),
	}
	if in.FromUserID != nil {
		l.FromUserID = uuid.NullUUID{UUID: *in.FromUserID, Valid: true}
	}
	l.Name = sql.NullString{String: s.senderName(ctx, in), Valid: true}

	if err := s.leadRepo.Create(ctx, &l); err != nil {
		return SubmitLeadResult{}, err
	}

	result := SubmitLeadResult{Lead: l}

	// Anonymous submissions stop here; there is no identity to attach a
	// conversation to. Owners contacting their own listing also stop.
	if in.FromUserID == nil || *in.FromUserID == listingRow.OwnerID {
		return result, nil
	}

	conv, err := s.convService.FindOrCreate(ctx, in.ListingID, *in.FromUserID, listingRow.OwnerID)
	if err != nil {
		s.log.Warnf("lead %s: conversation upgrade failed: %v", l.ID, err)
		return result, nil
	}
	if _, err := s.msgService.Append(ctx, conv.ID, *in.FromUserID, in.Message, ""); err != nil {
		s.log.Warnf("lead %s: first message append failed: %v", l.ID, err)
		return result, nil
	}

	result.ConversationID = conv.ID
	return result, nil
}

// ListByListing returns the lead trail for a listing. Only the
// listing's owner may read it.
func (s *LeadService) ListByListing(ctx context.Context, listingID, userID uuid.UUID) ([]lead.Lead, error) {
	l, err := s.listingRepo.GetByID(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if l.OwnerID != userID {
		return nil, habita_errors.ErrForbidden
	}
	return s.leadRepo.ListByListing(ctx, listingID)
}

func (s *LeadService) senderName(ctx context.Context, in SubmitLeadInput) string {
	if in.Name != "" {
		return in.Name
	}
	if in.FromUserID != nil {
		if u, err := s.userRepo.GetByID(ctx, *in.FromUserID); err == nil {
			return u.DisplayName()
		}
	}
	return "Guest"
}
