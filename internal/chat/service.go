// Package chat stores one-to-one conversations between friends.
package chat

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/fitlog/backend/internal/apperr"
	"github.com/fitlog/backend/internal/events"
	"github.com/fitlog/backend/internal/ids"
	"github.com/fitlog/backend/internal/users"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// NotificationChatMessage is the realtime event pushed for every sent message.
const NotificationChatMessage = "chat.message"

const (
	opServiceNew   = "chat.service.new"
	opOpenChat     = "chat.open"
	opListChats    = "chat.list"
	opSendMessage  = "chat.send_message"
	opListMessages = "chat.list_messages"
	opMarkRead     = "chat.mark_read"

	defaultMessageLimit = 50
	maxMessageLimit     = 200
)

type unreadRow struct {
	ChatID string
	Total  int64
}

// FriendChecker reports whether two users are friends.
type FriendChecker interface {
	AreFriends(ctx context.Context, a, b string) (bool, error)
}

// Notifier pushes a realtime notification to a connected user.
type Notifier interface {
	Notify(userID, eventType string, payload interface{})
}

// ServiceConfig describes the dependencies of the chat service.
type ServiceConfig struct {
	Database   *gorm.DB
	Friends    FriendChecker
	IDProvider ids.Provider
	Publisher  events.Publisher
	Notifier   Notifier
	Clock      func() time.Time
	Logger     *zap.Logger
}

// Service owns chats and messages.
type Service struct {
	db         *gorm.DB
	friends    FriendChecker
	idProvider ids.Provider
	publisher  events.Publisher
	notifier   Notifier
	clock      func() time.Time
	logger     *zap.Logger
}

// NewService validates cfg and constructs a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, apperr.New(opServiceNew, "missing_database", errors.New("database handle is required"))
	}
	if cfg.Friends == nil {
		return nil, apperr.New(opServiceNew, "missing_friends", errors.New("friend checker is required"))
	}
	if cfg.IDProvider == nil {
		return nil, apperr.New(opServiceNew, "missing_id_provider", errors.New("id provider is required"))
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:         cfg.Database,
		friends:    cfg.Friends,
		idProvider: cfg.IDProvider,
		publisher:  cfg.Publisher,
		notifier:   cfg.Notifier,
		clock:      clock,
		logger:     logger,
	}, nil
}

// OpenChat returns the chat between userID and friendID, creating it on first use.
func (s *Service) OpenChat(ctx context.Context, userID, friendID string) (Chat, error) {
	friendID = strings.TrimSpace(friendID)
	if friendID == "" || friendID == userID {
		return Chat{}, apperr.Invalid(opOpenChat, "invalid_participant", nil)
	}
	if err := s.requireFriends(ctx, opOpenChat, userID, friendID); err != nil {
		return Chat{}, err
	}

	a, b := orderedPair(userID, friendID)
	var chat Chat
	err := s.db.WithContext(ctx).Where("user_a_id = ? AND user_b_id = ?", a, b).Take(&chat).Error
	if err == nil {
		return chat, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		s.logError(opOpenChat, "chat_select_failed", err, zap.String("user_id", userID))
		return Chat{}, apperr.New(opOpenChat, "chat_select_failed", err)
	}

	id, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opOpenChat, "id_generation_failed", err)
		return Chat{}, apperr.New(opOpenChat, "id_generation_failed", err)
	}
	now := s.clock().UTC()
	chat = Chat{ID: id, UserAID: a, UserBID: b, CreatedAt: now, UpdatedAt: now}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&chat).Error; err != nil {
		s.logError(opOpenChat, "chat_insert_failed", err, zap.String("user_id", userID))
		return Chat{}, apperr.New(opOpenChat, "chat_insert_failed", err)
	}
	// A concurrent open may have won the insert.
	if err := s.db.WithContext(ctx).Where("user_a_id = ? AND user_b_id = ?", a, b).Take(&chat).Error; err != nil {
		s.logError(opOpenChat, "chat_select_failed", err, zap.String("user_id", userID))
		return Chat{}, apperr.New(opOpenChat, "chat_select_failed", err)
	}
	return chat, nil
}

// ListChats returns the chats of userID, most recently active first.
func (s *Service) ListChats(ctx context.Context, userID string) ([]Summary, error) {
	var chats []Chat
	err := s.db.WithContext(ctx).
		Where("user_a_id = ? OR user_b_id = ?", userID, userID).
		Order("updated_at DESC").Order("id DESC").
		Find(&chats).Error
	if err != nil {
		s.logError(opListChats, "chat_select_failed", err, zap.String("user_id", userID))
		return nil, apperr.New(opListChats, "chat_select_failed", err)
	}
	if len(chats) == 0 {
		return []Summary{}, nil
	}

	chatIDs := lo.Map(chats, func(chat Chat, _ int) string { return chat.ID })
	var unread []unreadRow
	err = s.db.WithContext(ctx).Model(&Message{}).
		Select("chat_id, COUNT(*) AS total").
		Where("chat_id IN ? AND sender_id <> ? AND read_at IS NULL", chatIDs, userID).
		Group("chat_id").
		Scan(&unread).Error
	if err != nil {
		s.logError(opListChats, "unread_count_failed", err, zap.String("user_id", userID))
		return nil, apperr.New(opListChats, "unread_count_failed", err)
	}
	unreadByChat := lo.SliceToMap(unread, func(row unreadRow) (string, int64) {
		return row.ChatID, row.Total
	})

	var profiles []users.User
	otherIDs := lo.Uniq(lo.Map(chats, func(chat Chat, _ int) string { return chat.Other(userID) }))
	if err := s.db.WithContext(ctx).Where("id IN ?", otherIDs).Find(&profiles).Error; err != nil {
		s.logError(opListChats, "user_select_failed", err, zap.String("user_id", userID))
		return nil, apperr.New(opListChats, "user_select_failed", err)
	}
	byID := lo.KeyBy(profiles, func(user users.User) string { return user.ID })

	return lo.Map(chats, func(chat Chat, _ int) Summary {
		other := byID[chat.Other(userID)]
		return Summary{
			Chat: chat,
			With: Participant{
				UserID:      chat.Other(userID),
				Username:    other.Username,
				DisplayName: other.DisplayName,
				AvatarURL:   other.AvatarURL,
			},
			UnreadCount: unreadByChat[chat.ID],
		}
	}), nil
}

// SendMessage stores a message from userID and pushes it to both participants.
func (s *Service) SendMessage(ctx context.Context, userID, chatID, body string) (Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return Message{}, apperr.Invalid(opSendMessage, "empty_message", nil)
	}
	if utf8.RuneCountInString(body) > MaxMessageLength {
		return Message{}, apperr.Invalid(opSendMessage, "message_too_long", nil)
	}
	chat, err := s.load(ctx, opSendMessage, userID, chatID)
	if err != nil {
		return Message{}, err
	}
	if err := s.requireFriends(ctx, opSendMessage, userID, chat.Other(userID)); err != nil {
		return Message{}, err
	}

	id, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opSendMessage, "id_generation_failed", err)
		return Message{}, apperr.New(opSendMessage, "id_generation_failed", err)
	}
	now := s.clock().UTC()
	message := Message{ID: id, ChatID: chat.ID, SenderID: userID, Body: body, CreatedAt: now}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&message).Error; err != nil {
			return err
		}
		return tx.Model(&Chat{}).Where("id = ?", chat.ID).Updates(map[string]interface{}{
			"last_message_at":      now,
			"last_message_preview": preview(body),
			"updated_at":           now,
		}).Error
	})
	if err != nil {
		s.logError(opSendMessage, "message_insert_failed", err, zap.String("chat_id", chat.ID))
		return Message{}, apperr.New(opSendMessage, "message_insert_failed", err)
	}

	events.Emit(ctx, s.publisher, s.logger, events.Event{
		Type: events.TypeChatMessageSent, UserID: userID, EntityID: message.ID, OccurredAt: now,
		Data: map[string]interface{}{"chat_id": chat.ID, "recipient_id": chat.Other(userID)},
	})
	if s.notifier != nil {
		s.notifier.Notify(chat.UserAID, NotificationChatMessage, message)
		s.notifier.Notify(chat.UserBID, NotificationChatMessage, message)
	}
	return message, nil
}

// ListMessages returns messages older than the cursor, newest first.
func (s *Service) ListMessages(ctx context.Context, userID, chatID, before string, limit int) (MessagePage, error) {
	chat, err := s.load(ctx, opListMessages, userID, chatID)
	if err != nil {
		return MessagePage{}, err
	}
	if limit <= 0 {
		limit = defaultMessageLimit
	}
	if limit > maxMessageLimit {
		limit = maxMessageLimit
	}

	db := s.db.WithContext(ctx).Where("chat_id = ?", chat.ID)
	if before != "" {
		anchorID, err := decodeCursor(before)
		if err != nil {
			return MessagePage{}, apperr.Invalid(opListMessages, "invalid_cursor", err)
		}
		var anchor Message
		err = s.db.WithContext(ctx).Select("id", "created_at").Where("id = ? AND chat_id = ?", anchorID, chat.ID).Take(&anchor).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return MessagePage{}, apperr.Invalid(opListMessages, "invalid_cursor", err)
		}
		if err != nil {
			s.logError(opListMessages, "cursor_select_failed", err)
			return MessagePage{}, apperr.New(opListMessages, "cursor_select_failed", err)
		}
		db = db.Where("(created_at < ? OR (created_at = ? AND id < ?))", anchor.CreatedAt, anchor.CreatedAt, anchor.ID)
	}

	var messages []Message
	if err := db.Order("created_at DESC").Order("id DESC").Limit(limit + 1).Find(&messages).Error; err != nil {
		s.logError(opListMessages, "message_select_failed", err, zap.String("chat_id", chat.ID))
		return MessagePage{}, apperr.New(opListMessages, "message_select_failed", err)
	}
	page := MessagePage{Messages: messages}
	if len(messages) > limit {
		page.Messages = messages[:limit]
		page.NextCursor = encodeCursor(page.Messages[limit-1].ID)
	}
	return page, nil
}

// MarkRead stamps every unread message from the other participant and returns how many changed.
func (s *Service) MarkRead(ctx context.Context, userID, chatID string) (int64, error) {
	chat, err := s.load(ctx, opMarkRead, userID, chatID)
	if err != nil {
		return 0, err
	}
	result := s.db.WithContext(ctx).Model(&Message{}).
		Where("chat_id = ? AND sender_id <> ? AND read_at IS NULL", chat.ID, userID).
		Update("read_at", s.clock().UTC())
	if result.Error != nil {
		s.logError(opMarkRead, "message_update_failed", result.Error, zap.String("chat_id", chat.ID))
		return 0, apperr.New(opMarkRead, "message_update_failed", result.Error)
	}
	return result.RowsAffected, nil
}

func (s *Service) load(ctx context.Context, operation, userID, chatID string) (Chat, error) {
	var chat Chat
	err := s.db.WithContext(ctx).Where("id = ?", strings.TrimSpace(chatID)).Take(&chat).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Chat{}, apperr.NotFound(operation, "chat_not_found", err)
	}
	if err != nil {
		s.logError(operation, "chat_select_failed", err, zap.String("chat_id", chatID))
		return Chat{}, apperr.New(operation, "chat_select_failed", err)
	}
	if !chat.Has(userID) {
		return Chat{}, apperr.NotFound(operation, "chat_not_found", nil)
	}
	return chat, nil
}

func (s *Service) requireFriends(ctx context.Context, operation, a, b string) error {
	friends, err := s.friends.AreFriends(ctx, a, b)
	if err != nil {
		return err
	}
	if !friends {
		return apperr.Forbidden(operation, "not_friends", nil)
	}
	return nil
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("chat service error", attrs...)
}

func orderedPair(a, b string) (string, string) {
	if a < b {
		return a, b
	}
	return b, a
}

func preview(body string) string {
	if utf8.RuneCountInString(body) <= previewLength {
		return body
	}
	return string([]rune(body)[:previewLength]) + "…"
}

func encodeCursor(messageID string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(messageID))
}

func decodeCursor(cursor string) (string, error) {
	decoded, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return "", err
	}
	if len(decoded) == 0 {
		return "", errors.New("empty cursor")
	}
	return string(decoded), nil
}
