package users

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/fitlog/backend/internal/apperr"
	"github.com/fitlog/backend/internal/auth"
	"github.com/fitlog/backend/internal/ids"
	"github.com/fitlog/backend/internal/nutrition"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	opServiceNew      = "users.service.new"
	opRegister        = "users.register"
	opAuthenticate    = "users.authenticate"
	opResolveGoogle   = "users.resolve_google"
	opGet             = "users.get"
	opUpdateProfile   = "users.update_profile"
	opSetAvatar       = "users.set_avatar"
	opSetWeight       = "users.set_weight"
	opSearch          = "users.search"
	opDelete          = "users.delete"
	opNutritionTarget = "users.nutrition_targets"

	defaultSearchLimit = 20
	maxSearchLimit     = 50
	maxUsernameTries   = 50
)

var (
	// ErrInvalidCredentials is returned when email and password do not match an account.
	ErrInvalidCredentials = errors.New("users: invalid credentials")
	// ErrIncompleteProfile is returned when targets are requested before the profile is filled in.
	ErrIncompleteProfile = errors.New("users: profile incomplete")

	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	errMissingUserID     = errors.New("user identifier is required")
	errInvalidEmail      = errors.New("email address is invalid")
	errInvalidUsername   = errors.New("username must be 3-32 characters of a-z, 0-9, _ or .")
	errInvalidBirthDate  = errors.New("birth date must be YYYY-MM-DD in the past")
	errInvalidHeight     = errors.New("height must be between 50 and 272 cm")
	errInvalidWeight     = errors.New("weight must be between 20 and 500 kg")

	usernamePattern     = regexp.MustCompile(`^[a-z0-9_.]{3,32}$`)
	usernameStripRegexp = regexp.MustCompile(`[^a-z0-9_.]`)
)

// ServiceConfig describes the dependencies of the user service.
type ServiceConfig struct {
	Database   *gorm.DB
	IDProvider ids.Provider
	Clock      func() time.Time
	Logger     *zap.Logger
}

// Service owns accounts, login identities and profiles.
type Service struct {
	db         *gorm.DB
	idProvider ids.Provider
	clock      func() time.Time
	logger     *zap.Logger
}

// NewService validates cfg and constructs a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, apperr.New(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, apperr.New(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: cfg.Database, idProvider: cfg.IDProvider, clock: clock, logger: logger}, nil
}

// Register creates a password account.
func (s *Service) Register(ctx context.Context, request RegisterRequest) (User, error) {
	email := normalizeEmail(request.Email)
	if !validEmail(email) {
		return User{}, apperr.Invalid(opRegister, "invalid_email", errInvalidEmail)
	}
	username := strings.ToLower(normalize(request.Username))
	if !usernamePattern.MatchString(username) {
		return User{}, apperr.Invalid(opRegister, "invalid_username", errInvalidUsername)
	}
	hash, err := auth.HashPassword(request.Password)
	if err != nil {
		return User{}, apperr.Invalid(opRegister, "invalid_password", err)
	}

	id, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opRegister, "id_generation_failed", err)
		return User{}, apperr.New(opRegister, "id_generation_failed", err)
	}
	displayName := normalize(request.DisplayName)
	if displayName == "" {
		displayName = username
	}
	now := s.clock().UTC()
	user := User{
		ID:           id,
		Email:        email,
		Username:     username,
		DisplayName:  displayName,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if taken, err := exists(tx, "email = ?", email); err != nil {
			return err
		} else if taken {
			return apperr.Conflict(opRegister, "email_taken", nil)
		}
		if taken, err := exists(tx, "username = ?", username); err != nil {
			return err
		} else if taken {
			return apperr.Conflict(opRegister, "username_taken", nil)
		}
		return tx.Create(&user).Error
	})
	if err != nil {
		return User{}, s.wrapWriteError(opRegister, err, zap.String("email", email))
	}
	return user, nil
}

// Authenticate checks an email/password pair.
func (s *Service) Authenticate(ctx context.Context, email, password string) (User, error) {
	var user User
	err := s.db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, ErrInvalidCredentials
	}
	if err != nil {
		s.logError(opAuthenticate, "user_select_failed", err)
		return User{}, apperr.New(opAuthenticate, "user_select_failed", err)
	}
	if user.PasswordHash == "" {
		return User{}, ErrInvalidCredentials
	}
	if err := auth.ComparePassword(user.PasswordHash, password); err != nil {
		return User{}, ErrInvalidCredentials
	}
	return user, nil
}

// ResolveGoogleUser returns the account linked to a Google subject, linking or creating one on first sight.
func (s *Service) ResolveGoogleUser(ctx context.Context, profile GoogleProfile) (User, error) {
	subject := normalize(profile.Subject)
	if subject == "" {
		return User{}, apperr.Invalid(opResolveGoogle, "missing_subject", nil)
	}
	email := normalizeEmail(profile.Email)
	now := s.clock().UTC()

	var resolved User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var identity Identity
		err := tx.Where("provider = ? AND subject = ?", ProviderGoogle, subject).Take(&identity).Error
		if err == nil {
			if err := tx.Model(&Identity{}).
				Where("provider = ? AND subject = ?", ProviderGoogle, subject).
				Updates(map[string]interface{}{"last_seen_at": now, "email": email}).Error; err != nil {
				return err
			}
			return tx.Where("id = ?", identity.UserID).Take(&resolved).Error
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if email != "" {
			err = tx.Where("email = ?", email).Take(&resolved).Error
			if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
		}
		if resolved.ID == "" {
			if !validEmail(email) {
				return apperr.Invalid(opResolveGoogle, "missing_email", errInvalidEmail)
			}
			username, err := s.uniqueUsername(tx, email)
			if err != nil {
				return err
			}
			id, err := s.idProvider.NewID()
			if err != nil {
				return err
			}
			displayName := normalize(profile.Name)
			if displayName == "" {
				displayName = username
			}
			resolved = User{
				ID:          id,
				Email:       email,
				Username:    username,
				DisplayName: displayName,
				AvatarURL:   normalize(profile.Picture),
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			if err := tx.Create(&resolved).Error; err != nil {
				return err
			}
		}
		return tx.Create(&Identity{
			Provider:   ProviderGoogle,
			Subject:    subject,
			UserID:     resolved.ID,
			Email:      email,
			LastSeenAt: now,
		}).Error
	})
	if err != nil {
		return User{}, s.wrapWriteError(opResolveGoogle, err, zap.String("subject", subject))
	}
	return resolved, nil
}

// Get loads a user by id.
func (s *Service) Get(ctx context.Context, userID string) (User, error) {
	userID = normalize(userID)
	if userID == "" {
		return User{}, apperr.Invalid(opGet, "missing_user_id", errMissingUserID)
	}
	var user User
	err := s.db.WithContext(ctx).Where("id = ?", userID).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, apperr.NotFound(opGet, "user_not_found", err)
	}
	if err != nil {
		s.logError(opGet, "user_select_failed", err, zap.String("user_id", userID))
		return User{}, apperr.New(opGet, "user_select_failed", err)
	}
	return user, nil
}

// GetByUsername loads a user by username.
func (s *Service) GetByUsername(ctx context.Context, username string) (User, error) {
	var user User
	err := s.db.WithContext(ctx).Where("username = ?", strings.ToLower(normalize(username))).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, apperr.NotFound(opGet, "user_not_found", err)
	}
	if err != nil {
		s.logError(opGet, "user_select_failed", err, zap.String("username", username))
		return User{}, apperr.New(opGet, "user_select_failed", err)
	}
	return user, nil
}

// UpdateProfile applies a partial profile update and returns the stored user.
func (s *Service) UpdateProfile(ctx context.Context, userID string, update ProfileUpdate) (User, error) {
	user, err := s.Get(ctx, userID)
	if err != nil {
		return User{}, err
	}
	if err := applyProfileUpdate(&user, update, s.clock()); err != nil {
		return User{}, err
	}
	user.UpdatedAt = s.clock().UTC()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if update.Username != nil {
			var count int64
			if err := tx.Model(&User{}).Where("username = ? AND id <> ?", user.Username, user.ID).Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				return apperr.Conflict(opUpdateProfile, "username_taken", nil)
			}
		}
		return tx.Save(&user).Error
	})
	if err != nil {
		return User{}, s.wrapWriteError(opUpdateProfile, err, zap.String("user_id", user.ID))
	}
	return user, nil
}

// SetAvatarURL stores the public URL of an uploaded avatar.
func (s *Service) SetAvatarURL(ctx context.Context, userID, avatarURL string) (User, error) {
	user, err := s.Get(ctx, userID)
	if err != nil {
		return User{}, err
	}
	user.AvatarURL = normalize(avatarURL)
	user.UpdatedAt = s.clock().UTC()
	if err := s.db.WithContext(ctx).Model(&User{}).Where("id = ?", user.ID).
		Updates(map[string]interface{}{"avatar_url": user.AvatarURL, "updated_at": user.UpdatedAt}).Error; err != nil {
		s.logError(opSetAvatar, "user_update_failed", err, zap.String("user_id", user.ID))
		return User{}, apperr.New(opSetAvatar, "user_update_failed", err)
	}
	return user, nil
}

// SetWeight overwrites the profile weight after a weigh-in. It writes through
// tx so callers can pair it with their own insert.
func (s *Service) SetWeight(tx *gorm.DB, userID string, weightKg float64) error {
	if weightKg < 20 || weightKg > 500 {
		return apperr.Invalid(opSetWeight, "invalid_weight", errInvalidWeight)
	}
	result := tx.Model(&User{}).Where("id = ?", userID).
		Updates(map[string]interface{}{"weight_kg": weightKg, "updated_at": s.clock().UTC()})
	if result.Error != nil {
		s.logError(opSetWeight, "user_update_failed", result.Error, zap.String("user_id", userID))
		return apperr.New(opSetWeight, "user_update_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperr.NotFound(opSetWeight, "user_not_found", nil)
	}
	return nil
}

// Search finds users whose username or display name starts with query, ignoring case.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]User, error) {
	prefix := strings.ToLower(normalize(query))
	if prefix == "" {
		return []User{}, nil
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}
	pattern := escapeLike(prefix) + "%"
	var found []User
	err := s.db.WithContext(ctx).
		Where("LOWER(username) LIKE ? ESCAPE '!' OR LOWER(display_name) LIKE ? ESCAPE '!'", pattern, pattern).
		Order("username ASC").
		Limit(limit).
		Find(&found).Error
	if err != nil {
		s.logError(opSearch, "user_select_failed", err)
		return nil, apperr.New(opSearch, "user_select_failed", err)
	}
	return found, nil
}

// ownedRows lists, children first, every row that belongs to a user account.
var ownedRows = []struct {
	table string
	where string
	args  int
}{
	{"messages", "chat_id IN (SELECT id FROM chats WHERE user_a_id = ? OR user_b_id = ?)", 2},
	{"chats", "user_a_id = ? OR user_b_id = ?", 2},
	{"friendships", "user_id = ? OR friend_id = ?", 2},
	{"friend_requests", "from_user_id = ? OR to_user_id = ?", 2},
	{"diary_entries", "user_id = ?", 1},
	{"program_exercises", "program_id IN (SELECT id FROM programs WHERE owner_id = ?)", 1},
	{"programs", "owner_id = ?", 1},
	{"exercises", "owner_id = ?", 1},
	{"food_products", "owner_id = ?", 1},
}

// Delete removes the user, its login identities and everything the account owns.
func (s *Service) Delete(ctx context.Context, userID string) error {
	userID = normalize(userID)
	if userID == "" {
		return apperr.Invalid(opDelete, "missing_user_id", errMissingUserID)
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", userID).Delete(&Identity{}).Error; err != nil {
			return err
		}
		for _, owned := range ownedRows {
			if !tx.Migrator().HasTable(owned.table) {
				continue
			}
			args := make([]interface{}, owned.args)
			for i := range args {
				args[i] = userID
			}
			if err := tx.Exec("DELETE FROM "+owned.table+" WHERE "+owned.where, args...).Error; err != nil {
				return err
			}
		}
		result := tx.Where("id = ?", userID).Delete(&User{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return apperr.NotFound(opDelete, "user_not_found", nil)
		}
		return nil
	})
	if err != nil {
		return s.wrapWriteError(opDelete, err, zap.String("user_id", userID))
	}
	return nil
}

// NutritionTargets computes daily targets from the stored profile.
func (s *Service) NutritionTargets(ctx context.Context, userID string) (nutrition.Targets, error) {
	user, err := s.Get(ctx, userID)
	if err != nil {
		return nutrition.Targets{}, err
	}
	profile, err := user.NutritionProfile(s.clock())
	if err != nil {
		return nutrition.Targets{}, apperr.Invalid(opNutritionTarget, "incomplete_profile", err)
	}
	targets, err := nutrition.Compute(profile)
	if err != nil {
		return nutrition.Targets{}, apperr.Invalid(opNutritionTarget, "invalid_profile", err)
	}
	return targets, nil
}

// NutritionProfile converts the stored profile into formula input as of now.
func (u User) NutritionProfile(now time.Time) (nutrition.Profile, error) {
	if !u.Sex.Valid() || u.BirthDate == "" || u.HeightCm <= 0 || u.WeightKg <= 0 || !u.Goal.Valid() || !u.ActivityLevel.Valid() {
		return nutrition.Profile{}, ErrIncompleteProfile
	}
	birth, err := time.Parse(BirthDateLayout, u.BirthDate)
	if err != nil {
		return nutrition.Profile{}, fmt.Errorf("%w: %v", ErrIncompleteProfile, err)
	}
	return nutrition.Profile{
		Sex:           u.Sex,
		Age:           nutrition.AgeOn(birth, now),
		HeightCm:      u.HeightCm,
		WeightKg:      u.WeightKg,
		ActivityLevel: u.ActivityLevel,
		Goal:          u.Goal,
	}, nil
}

func applyProfileUpdate(user *User, update ProfileUpdate, now time.Time) error {
	if update.DisplayName != nil {
		user.DisplayName = normalize(*update.DisplayName)
	}
	if update.Username != nil {
		username := strings.ToLower(normalize(*update.Username))
		if !usernamePattern.MatchString(username) {
			return apperr.Invalid(opUpdateProfile, "invalid_username", errInvalidUsername)
		}
		user.Username = username
	}
	if update.Sex != nil {
		sex := nutrition.Sex(strings.ToLower(normalize(*update.Sex)))
		if !sex.Valid() {
			return apperr.Invalid(opUpdateProfile, "invalid_sex", nutrition.ErrUnknownSex)
		}
		user.Sex = sex
	}
	if update.BirthDate != nil {
		raw := normalize(*update.BirthDate)
		birth, err := time.Parse(BirthDateLayout, raw)
		if err != nil || !birth.Before(now) {
			return apperr.Invalid(opUpdateProfile, "invalid_birth_date", errInvalidBirthDate)
		}
		user.BirthDate = raw
	}
	if update.HeightCm != nil {
		if *update.HeightCm < 50 || *update.HeightCm > 272 {
			return apperr.Invalid(opUpdateProfile, "invalid_height", errInvalidHeight)
		}
		user.HeightCm = *update.HeightCm
	}
	if update.WeightKg != nil {
		if *update.WeightKg < 20 || *update.WeightKg > 500 {
			return apperr.Invalid(opUpdateProfile, "invalid_weight", errInvalidWeight)
		}
		user.WeightKg = *update.WeightKg
	}
	if update.Goal != nil {
		goal := nutrition.Goal(strings.ToLower(normalize(*update.Goal)))
		if !goal.Valid() {
			return apperr.Invalid(opUpdateProfile, "invalid_goal", nutrition.ErrUnknownGoal)
		}
		user.Goal = goal
	}
	if update.ActivityLevel != nil {
		level := nutrition.ActivityLevel(strings.ToLower(normalize(*update.ActivityLevel)))
		if !level.Valid() {
			return apperr.Invalid(opUpdateProfile, "invalid_activity_level", nutrition.ErrUnknownActivityLevel)
		}
		user.ActivityLevel = level
	}
	return nil
}

// uniqueUsername derives a free username from the local part of email.
func (s *Service) uniqueUsername(tx *gorm.DB, email string) (string, error) {
	base := strings.ToLower(email)
	if at := strings.IndexByte(base, '@'); at >= 0 {
		base = base[:at]
	}
	base = usernameStripRegexp.ReplaceAllString(base, "")
	for len(base) < 3 {
		base += "_"
	}
	if len(base) > 28 {
		base = base[:28]
	}
	candidate := base
	for attempt := 2; attempt <= maxUsernameTries; attempt++ {
		taken, err := exists(tx, "username = ?", candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s%d", base, attempt)
	}
	return "", apperr.Conflict(opResolveGoogle, "username_exhausted", nil)
}

func (s *Service) wrapWriteError(operation string, err error, fields ...zap.Field) error {
	var serviceErr *apperr.ServiceError
	if errors.As(err, &serviceErr) {
		return err
	}
	if apperr.IsDuplicateKey(err) {
		return apperr.Conflict(operation, "duplicate", err)
	}
	s.logError(operation, "write_failed", err, fields...)
	return apperr.New(operation, "write_failed", err)
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
	s.logger.Error("users service error", attrs...)
}

func exists(tx *gorm.DB, query string, args ...interface{}) (bool, error) {
	var count int64
	if err := tx.Model(&User{}).Where(query, args...).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func validEmail(email string) bool {
	at := strings.IndexByte(email, '@')
	return at > 0 && at < len(email)-1 && !strings.ContainsAny(email, " \t") && strings.Count(email, "@") == 1
}

func escapeLike(value string) string {
	replacer := strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")
	return replacer.Replace(value)
}
