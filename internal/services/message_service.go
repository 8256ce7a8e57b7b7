package services

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"habita-chat/internal/domain/conversation"
	"habita-chat/internal/domain/message"
	"habita-chat/internal/events"
	"habita-chat/internal/proxy"
	"habita-chat/internal/repository"
	habita_errors "habita-chat/pkg/errors"
	"habita-chat/pkg/logger"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const maxMessageLength = 4000

// MessageService is the message log: append and retrieve the ordered
// history of one conversation. Rows are immutable after insert; ordering
// is fixed by the store-assigned created_at at arrival.
type MessageService struct {
	db          *gorm.DB
	messageRepo repository.MessageRepository
	convRepo    repository.ConversationRepository
	access      *proxy.AccessControl
	bus         *events.Bus
	log         *logger.Logger
}

func NewMessageService(db *gorm.DB, messageRepo repository.MessageRepository, convRepo repository.ConversationRepository, access *proxy.AccessControl, bus *events.Bus, log *logger.Logger) *MessageService {
	return &MessageService{
		db:          db,
		messageRepo: messageRepo,
		convRepo:    convRepo,
		access:      access,
		bus:         bus,
		log:         log,
	}
}

// ListMessages returns the full log in created_at ascending order, the
// canonical display order. Party-authorized.
func (s *MessageService) ListMessages(ctx context.Context, conversationID, userID uuid.UUID) ([]message.Message, error) {
	if _, _, err := s.access.RequireParty(ctx, conversationID, userID); err != nil {
		return nil, err
	}
	return s.messageRepo.ListByConversation(ctx, conversationID)
}

// Append durably inserts a message. It rejects blank content and writes
// against finished conversations, clears the recipient's soft-delete
// flag in the same transaction (a new inbound message always restores
// the thread to the recipient's directory) and bumps updated_at.
//
// clientMessageID is the sender's optimistic temp id. It is persisted
// and echoed on the change feed so the sender reconciles by exact key;
// re-appending the same key returns the original row.
func (s *MessageService) Append(ctx context.Context, conversationID, senderID uuid.UUID, content, clientMessageID string) (message.Message, error) {
	conv, _, err := s.access.RequireParty(ctx, conversationID, senderID)
	if err != nil {
		return message.Message{}, err
	}
	if conv.Status == conversation.StatusFinished {
		return message.Message{}, habita_errors.ErrConversationFinished
	}

	content = strings.TrimSpace(content)
	if content == "" || len(content) > maxMessageLength {
		return message.Message{}, habita_errors.ErrInvalidInput
	}

	if clientMessageID != "" {
		existing, err := s.messageRepo.GetByClientMessageID(ctx, clientMessageID)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, habita_errors.ErrNotFound) {
			return message.Message{}, err
		}
	}

	msg := message.Message{
		ID:             uuid.New(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		CreatedAt:      time.Now(),
	}
	if clientMessageID != "" {
		msg.ClientMessageID = sql.NullString{String: clientMessageID, Valid: true}
	}

	recipientRole, _ := conv.RoleOf(conv.OtherParty(senderID))

	err = s.transact(ctx, func(msgRepo repository.MessageRepository, convRepo repository.ConversationRepository) error {
		if err := msgRepo.Create(ctx, &msg); err != nil {
			return err
		}
		// Clearing the recipient flag also bumps updated_at, which
		// reorders both directories.
		return convRepo.SetDeletedFlag(ctx, conversationID, recipientRole, false)
	})
	if err != nil {
		if errors.Is(err, habita_errors.ErrAlreadyExists) && clientMessageID != "" {
			// Lost an idempotency race; the first insert won.
			return s.messageRepo.GetByClientMessageID(ctx, clientMessageID)
		}
		return message.Message{}, err
	}

	s.emitMessageCreated(ctx, conv, msg)
	return msg, nil
}

// transact runs fn inside one transaction when a db handle is present,
// falling back to the plain repos otherwise (tests use fakes).
func (s *MessageService) transact(ctx context.Context, fn func(repository.MessageRepository, repository.ConversationRepository) error) error {
	if s.db == nil {
		return fn(s.messageRepo, s.convRepo)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(repository.NewMessageRepository(tx), repository.NewConversationRepository(tx))
	})
}

func (s *MessageService) emitMessageCreated(ctx context.Context, conv conversation.Conversation, msg message.Message) {
	env, err := events.NewEnvelope(events.EventTypeMessageCreated, events.AggregateMessage, msg.ID.String(), msg)
	if err != nil {
		s.log.Errorf("build message.created envelope: %v", err)
		return
	}
	s.bus.Emit(ctx, env, events.ConversationChannel(conv.ID))

	updated, err := s.convRepo.GetByID(ctx, conv.ID)
	if err != nil {
		s.log.Errorf("reload conversation %s after append: %v", conv.ID, err)
		return
	}
	convEnv, err := events.NewEnvelope(events.EventTypeConversationUpdated, events.AggregateConversation, conv.ID.String(), updated)
	if err != nil {
		s.log.Errorf("build conversation.updated envelope: %v", err)
		return
	}
	s.bus.Emit(ctx, convEnv,
		events.ConversationChannel(conv.ID),
		events.UserChannel(conv.TenantID),
		events.UserChannel(conv.LandlordID),
	)
}
