// Package social manages friend requests and friendships.
package social

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/fitlog/backend/internal/apperr"
	"github.com/fitlog/backend/internal/events"
	"github.com/fitlog/backend/internal/ids"
	"github.com/fitlog/backend/internal/users"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Realtime notification types sent to the affected user.
const (
	NotificationFriendRequest  = "friend.request"
	NotificationFriendAccepted = "friend.accepted"
)

const (
	opServiceNew   = "social.service.new"
	opSendRequest  = "social.send_request"
	opAccept       = "social.accept"
	opDecline      = "social.decline"
	opCancel       = "social.cancel"
	opListRequests = "social.list_requests"
	opListFriends  = "social.list_friends"
	opRemoveFriend = "social.remove_friend"
	opAreFriends   = "social.are_friends"
)

// UserDirectory resolves users by username.
type UserDirectory interface {
	GetByUsername(ctx context.Context, username string) (users.User, error)
}

// Notifier pushes a realtime notification to a connected user.
type Notifier interface {
	Notify(userID, eventType string, payload interface{})
}

// ServiceConfig describes the dependencies of the social service.
type ServiceConfig struct {
	Database   *gorm.DB
	Users      UserDirectory
	IDProvider ids.Provider
	Publisher  events.Publisher
	Notifier   Notifier
	Clock      func() time.Time
	Logger     *zap.Logger
}

// Service owns friend requests and friendships.
type Service struct {
	db         *gorm.DB
	users      UserDirectory
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
	if cfg.Users == nil {
		return nil, apperr.New(opServiceNew, "missing_users", errors.New("user directory is required"))
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
		users:      cfg.Users,
		idProvider: cfg.IDProvider,
		publisher:  cfg.Publisher,
		notifier:   cfg.Notifier,
		clock:      clock,
		logger:     logger,
	}, nil
}

// SendRequest asks the user called toUsername to become friends with fromUserID.
// A pending request in the opposite direction is accepted instead.
func (s *Service) SendRequest(ctx context.Context, fromUserID, toUsername string) (FriendRequest, error) {
	target, err := s.users.GetByUsername(ctx, strings.TrimPrefix(strings.TrimSpace(toUsername), "@"))
	if errors.Is(err, apperr.ErrNotFound) {
		return FriendRequest{}, apperr.NotFound(opSendRequest, "user_not_found", err)
	}
	if err != nil {
		return FriendRequest{}, err
	}
	if target.ID == fromUserID {
		return FriendRequest{}, apperr.Invalid(opSendRequest, "self_request", nil)
	}

	friends, err := s.AreFriends(ctx, fromUserID, target.ID)
	if err != nil {
		return FriendRequest{}, err
	}
	if friends {
		return FriendRequest{}, apperr.Conflict(opSendRequest, "already_friends", nil)
	}

	var pending []FriendRequest
	err = s.db.WithContext(ctx).
		Where("status = ? AND ((from_user_id = ? AND to_user_id = ?) OR (from_user_id = ? AND to_user_id = ?))",
			StatusPending, fromUserID, target.ID, target.ID, fromUserID).
		Find(&pending).Error
	if err != nil {
		s.logError(opSendRequest, "request_select_failed", err, zap.String("user_id", fromUserID))
		return FriendRequest{}, apperr.New(opSendRequest, "request_select_failed", err)
	}
	if reverse, ok := lo.Find(pending, func(request FriendRequest) bool { return request.FromUserID == target.ID }); ok {
		return s.Accept(ctx, reverse.ID, fromUserID)
	}
	if len(pending) > 0 {
		return FriendRequest{}, apperr.Conflict(opSendRequest, "duplicate_request", nil)
	}

	id, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opSendRequest, "id_generation_failed", err)
		return FriendRequest{}, apperr.New(opSendRequest, "id_generation_failed", err)
	}
	now := s.clock().UTC()
	request := FriendRequest{
		ID:         id,
		FromUserID: fromUserID,
		ToUserID:   target.ID,
		Status:     StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.db.WithContext(ctx).Create(&request).Error; err != nil {
		s.logError(opSendRequest, "request_insert_failed", err, zap.String("user_id", fromUserID))
		return FriendRequest{}, apperr.New(opSendRequest, "request_insert_failed", err)
	}

	events.Emit(ctx, s.publisher, s.logger, events.Event{
		Type: events.TypeFriendRequestSent, UserID: fromUserID, EntityID: request.ID, OccurredAt: now,
		Data: map[string]interface{}{"to_user_id": target.ID},
	})
	s.notify(target.ID, NotificationFriendRequest, map[string]interface{}{
		"request_id":   request.ID,
		"from_user_id": fromUserID,
	})
	return request, nil
}

// Accept turns a pending request addressed to actingUserID into a friendship.
func (s *Service) Accept(ctx context.Context, requestID, actingUserID string) (FriendRequest, error) {
	request, err := s.respondable(ctx, opAccept, requestID, actingUserID)
	if err != nil {
		return FriendRequest{}, err
	}
	now := s.clock().UTC()
	request.Status = StatusAccepted
	request.UpdatedAt = now
	request.RespondedAt = &now

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&FriendRequest{}).
			Where("id = ? AND status = ?", request.ID, StatusPending).
			Updates(map[string]interface{}{"status": StatusAccepted, "updated_at": now, "responded_at": now})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return apperr.Conflict(opAccept, "not_pending", nil)
		}
		rows := []Friendship{
			{UserID: request.FromUserID, FriendID: request.ToUserID, CreatedAt: now},
			{UserID: request.ToUserID, FriendID: request.FromUserID, CreatedAt: now},
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error
	})
	if err != nil {
		return FriendRequest{}, s.wrap(opAccept, "friendship_insert_failed", err)
	}

	events.Emit(ctx, s.publisher, s.logger, events.Event{
		Type: events.TypeFriendRequestAccept, UserID: actingUserID, EntityID: request.ID, OccurredAt: now,
		Data: map[string]interface{}{"friend_id": request.FromUserID},
	})
	s.notify(request.FromUserID, NotificationFriendAccepted, map[string]interface{}{
		"request_id": request.ID,
		"friend_id":  actingUserID,
	})
	return request, nil
}

// Decline rejects a pending request addressed to actingUserID.
func (s *Service) Decline(ctx context.Context, requestID, actingUserID string) (FriendRequest, error) {
	request, err := s.respondable(ctx, opDecline, requestID, actingUserID)
	if err != nil {
		return FriendRequest{}, err
	}
	now := s.clock().UTC()
	request.Status = StatusDeclined
	request.UpdatedAt = now
	request.RespondedAt = &now
	result := s.db.WithContext(ctx).Model(&FriendRequest{}).
		Where("id = ? AND status = ?", request.ID, StatusPending).
		Updates(map[string]interface{}{"status": StatusDeclined, "updated_at": now, "responded_at": now})
	if result.Error != nil {
		return FriendRequest{}, s.wrap(opDecline, "request_update_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return FriendRequest{}, apperr.Conflict(opDecline, "not_pending", nil)
	}
	return request, nil
}

// Cancel withdraws a pending request sent by actingUserID.
func (s *Service) Cancel(ctx context.Context, requestID, actingUserID string) error {
	request, err := s.load(ctx, opCancel, requestID, actingUserID)
	if err != nil {
		return err
	}
	if request.FromUserID != actingUserID {
		return apperr.Forbidden(opCancel, "not_sender", nil)
	}
	if request.Status != StatusPending {
		return apperr.Conflict(opCancel, "not_pending", nil)
	}
	if err := s.db.WithContext(ctx).Where("id = ?", request.ID).Delete(&FriendRequest{}).Error; err != nil {
		return s.wrap(opCancel, "request_delete_failed", err)
	}
	return nil
}

// ListIncoming returns pending requests addressed to userID, newest first.
func (s *Service) ListIncoming(ctx context.Context, userID string) ([]RequestView, error) {
	return s.listPending(ctx, "to_user_id", userID, func(request FriendRequest) string { return request.FromUserID })
}

// ListOutgoing returns pending requests sent by userID, newest first.
func (s *Service) ListOutgoing(ctx context.Context, userID string) ([]RequestView, error) {
	return s.listPending(ctx, "from_user_id", userID, func(request FriendRequest) string { return request.ToUserID })
}

// ListFriends returns userID's friends sorted by username.
func (s *Service) ListFriends(ctx context.Context, userID string) ([]Friend, error) {
	var rows []Friendship
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Find(&rows).Error; err != nil {
		s.logError(opListFriends, "friendship_select_failed", err, zap.String("user_id", userID))
		return nil, apperr.New(opListFriends, "friendship_select_failed", err)
	}
	since := lo.SliceToMap(rows, func(row Friendship) (string, time.Time) { return row.FriendID, row.CreatedAt })
	profiles, err := s.profiles(ctx, opListFriends, lo.Keys(since))
	if err != nil {
		return nil, err
	}
	friends := make([]Friend, 0, len(profiles))
	for _, profile := range profiles {
		friend := toFriend(profile)
		friend.Since = since[profile.ID]
		friends = append(friends, friend)
	}
	return friends, nil
}

// RemoveFriend ends the friendship between userID and friendID in both directions.
func (s *Service) RemoveFriend(ctx context.Context, userID, friendID string) error {
	result := s.db.WithContext(ctx).
		Where("(user_id = ? AND friend_id = ?) OR (user_id = ? AND friend_id = ?)", userID, friendID, friendID, userID).
		Delete(&Friendship{})
	if result.Error != nil {
		return s.wrap(opRemoveFriend, "friendship_delete_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperr.NotFound(opRemoveFriend, "friend_not_found", nil)
	}
	events.Emit(ctx, s.publisher, s.logger, events.Event{
		Type: events.TypeFriendRemoved, UserID: userID, EntityID: friendID, OccurredAt: s.clock().UTC(),
	})
	return nil
}

// AreFriends reports whether a and b are friends.
func (s *Service) AreFriends(ctx context.Context, a, b string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&Friendship{}).Where("user_id = ? AND friend_id = ?", a, b).Count(&count).Error
	if err != nil {
		s.logError(opAreFriends, "friendship_select_failed", err)
		return false, apperr.New(opAreFriends, "friendship_select_failed", err)
	}
	return count > 0, nil
}

func (s *Service) respondable(ctx context.Context, operation, requestID, actingUserID string) (FriendRequest, error) {
	request, err := s.load(ctx, operation, requestID, actingUserID)
	if err != nil {
		return FriendRequest{}, err
	}
	if request.ToUserID != actingUserID {
		return FriendRequest{}, apperr.Forbidden(operation, "not_recipient", nil)
	}
	if request.Status != StatusPending {
		return FriendRequest{}, apperr.Conflict(operation, "not_pending", nil)
	}
	return request, nil
}

// load returns a request that actingUserID is a party to.
func (s *Service) load(ctx context.Context, operation, requestID, actingUserID string) (FriendRequest, error) {
	var request FriendRequest
	err := s.db.WithContext(ctx).Where("id = ?", strings.TrimSpace(requestID)).Take(&request).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return FriendRequest{}, apperr.NotFound(operation, "request_not_found", err)
	}
	if err != nil {
		s.logError(operation, "request_select_failed", err, zap.String("request_id", requestID))
		return FriendRequest{}, apperr.New(operation, "request_select_failed", err)
	}
	if request.FromUserID != actingUserID && request.ToUserID != actingUserID {
		return FriendRequest{}, apperr.NotFound(operation, "request_not_found", nil)
	}
	return request, nil
}

func (s *Service) listPending(ctx context.Context, column, userID string, counterpart func(FriendRequest) string) ([]RequestView, error) {
	var requests []FriendRequest
	err := s.db.WithContext(ctx).
		Where(column+" = ? AND status = ?", userID, StatusPending).
		Order("created_at DESC").Order("id DESC").
		Find(&requests).Error
	if err != nil {
		s.logError(opListRequests, "request_select_failed", err, zap.String("user_id", userID))
		return nil, apperr.New(opListRequests, "request_select_failed", err)
	}
	profiles, err := s.profiles(ctx, opListRequests, lo.Map(requests, func(request FriendRequest, _ int) string {
		return counterpart(request)
	}))
	if err != nil {
		return nil, err
	}
	byID := lo.KeyBy(profiles, func(profile users.User) string { return profile.ID })
	return lo.Map(requests, func(request FriendRequest, _ int) RequestView {
		return RequestView{FriendRequest: request, Counterpart: toFriend(byID[counterpart(request)])}
	}), nil
}

func (s *Service) profiles(ctx context.Context, operation string, userIDs []string) ([]users.User, error) {
	if len(userIDs) == 0 {
		return []users.User{}, nil
	}
	var profiles []users.User
	err := s.db.WithContext(ctx).Where("id IN ?", lo.Uniq(userIDs)).Order("username ASC").Find(&profiles).Error
	if err != nil {
		s.logError(operation, "user_select_failed", err)
		return nil, apperr.New(operation, "user_select_failed", err)
	}
	return profiles, nil
}

func (s *Service) notify(userID, eventType string, payload interface{}) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(userID, eventType, payload)
}

func (s *Service) wrap(operation, reason string, err error) error {
	var serviceErr *apperr.ServiceError
	if errors.As(err, &serviceErr) {
		return err
	}
	s.logError(operation, reason, err)
	return apperr.New(operation, reason, err)
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
	s.logger.Error("social service error", attrs...)
}

func toFriend(user users.User) Friend {
	return Friend{UserID: user.ID, Username: user.Username, DisplayName: user.DisplayName, AvatarURL: user.AvatarURL}
}
