package exercises

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/fitlog/backend/internal/apperr"
	"github.com/fitlog/backend/internal/ids"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	opServiceNew = "exercises.service.new"
	opList       = "exercises.list"
	opGet        = "exercises.get"
	opCreate     = "exercises.create"
	opUpdate     = "exercises.update"
	opDelete     = "exercises.delete"
	opVisible    = "exercises.visible"

	maxNameLength = 120
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	errMissingName       = errors.New("exercise name is required")
	errNameTooLong       = errors.New("exercise name is too long")
)

// ServiceConfig describes the dependencies of the exercise service.
type ServiceConfig struct {
	Database   *gorm.DB
	IDProvider ids.Provider
	Clock      func() time.Time
	Logger     *zap.Logger
}

// Service manages the built-in catalog and user-defined exercises.
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

// MuscleGroups lists the muscle groups with their icon keys.
func (s *Service) MuscleGroups() []MuscleGroupInfo {
	return lo.Map(AllMuscleGroups, func(group MuscleGroup, _ int) MuscleGroupInfo {
		return MuscleGroupInfo{Key: group, IconKey: group.IconKey()}
	})
}

// List returns the exercises visible to userID that match filter, sorted by name.
func (s *Service) List(ctx context.Context, userID string, filter Filter) ([]Exercise, error) {
	query := s.db.WithContext(ctx)
	if filter.OwnedOnly {
		query = query.Where("owner_id = ?", userID)
	} else {
		query = query.Where("owner_id = '' OR owner_id = ?", userID)
	}
	var visible []Exercise
	if err := query.Order("name ASC").Order("id ASC").Find(&visible).Error; err != nil {
		s.logError(opList, "exercise_select_failed", err, zap.String("user_id", userID))
		return nil, apperr.New(opList, "exercise_select_failed", err)
	}
	return ApplyFilter(visible, filter), nil
}

// ApplyFilter keeps the exercises that satisfy every populated filter field.
func ApplyFilter(exercises []Exercise, filter Filter) []Exercise {
	predicates := make([]func(Exercise) bool, 0, 4)
	if search := strings.ToLower(strings.TrimSpace(filter.Search)); search != "" {
		predicates = append(predicates, func(e Exercise) bool {
			return strings.Contains(strings.ToLower(e.Name), search)
		})
	}
	if group := strings.ToLower(strings.TrimSpace(filter.MuscleGroup)); group != "" {
		predicates = append(predicates, func(e Exercise) bool { return string(e.MuscleGroup) == group })
	}
	if equipment := strings.ToLower(strings.TrimSpace(filter.Equipment)); equipment != "" {
		predicates = append(predicates, func(e Exercise) bool { return e.Equipment == equipment })
	}
	if difficulty := strings.ToLower(strings.TrimSpace(filter.Difficulty)); difficulty != "" {
		predicates = append(predicates, func(e Exercise) bool { return string(e.Difficulty) == difficulty })
	}
	return lo.Filter(exercises, func(e Exercise, _ int) bool {
		return lo.EveryBy(predicates, func(predicate func(Exercise) bool) bool {
			return predicate(e)
		})
	})
}

// Get returns an exercise visible to userID.
func (s *Service) Get(ctx context.Context, userID, exerciseID string) (Exercise, error) {
	exercise, err := s.load(ctx, opGet, exerciseID)
	if err != nil {
		return Exercise{}, err
	}
	if !exercise.VisibleTo(userID) {
		return Exercise{}, apperr.NotFound(opGet, "exercise_not_found", nil)
	}
	return exercise, nil
}

// VisibleByIDs loads the requested exercises, failing when any is missing or private to someone else.
func (s *Service) VisibleByIDs(ctx context.Context, userID string, exerciseIDs []string) (map[string]Exercise, error) {
	unique := lo.Uniq(exerciseIDs)
	if len(unique) == 0 {
		return map[string]Exercise{}, nil
	}
	var found []Exercise
	if err := s.db.WithContext(ctx).Where("id IN ?", unique).Find(&found).Error; err != nil {
		s.logError(opVisible, "exercise_select_failed", err, zap.String("user_id", userID))
		return nil, apperr.New(opVisible, "exercise_select_failed", err)
	}
	byID := lo.KeyBy(lo.Filter(found, func(e Exercise, _ int) bool { return e.VisibleTo(userID) }), func(e Exercise) string {
		return e.ID
	})
	for _, id := range unique {
		if _, ok := byID[id]; !ok {
			return nil, apperr.Invalid(opVisible, "unknown_exercise", errors.New("exercise "+id+" not found"))
		}
	}
	return byID, nil
}

// Create stores a custom exercise owned by userID.
func (s *Service) Create(ctx context.Context, userID string, input Input) (Exercise, error) {
	exercise, err := validateInput(opCreate, input)
	if err != nil {
		return Exercise{}, err
	}
	id, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreate, "id_generation_failed", err)
		return Exercise{}, apperr.New(opCreate, "id_generation_failed", err)
	}
	now := s.clock().UTC()
	exercise.ID = id
	exercise.OwnerID = userID
	exercise.CreatedAt = now
	exercise.UpdatedAt = now
	if err := s.db.WithContext(ctx).Create(&exercise).Error; err != nil {
		s.logError(opCreate, "exercise_insert_failed", err, zap.String("user_id", userID))
		return Exercise{}, apperr.New(opCreate, "exercise_insert_failed", err)
	}
	return exercise, nil
}

// Update overwrites a custom exercise owned by userID.
func (s *Service) Update(ctx context.Context, userID, exerciseID string, input Input) (Exercise, error) {
	existing, err := s.owned(ctx, opUpdate, userID, exerciseID)
	if err != nil {
		return Exercise{}, err
	}
	updated, err := validateInput(opUpdate, input)
	if err != nil {
		return Exercise{}, err
	}
	updated.ID = existing.ID
	updated.OwnerID = existing.OwnerID
	updated.CreatedAt = existing.CreatedAt
	updated.UpdatedAt = s.clock().UTC()
	if err := s.db.WithContext(ctx).Save(&updated).Error; err != nil {
		s.logError(opUpdate, "exercise_update_failed", err, zap.String("exercise_id", exerciseID))
		return Exercise{}, apperr.New(opUpdate, "exercise_update_failed", err)
	}
	return updated, nil
}

// Delete removes a custom exercise owned by userID.
func (s *Service) Delete(ctx context.Context, userID, exerciseID string) error {
	if _, err := s.owned(ctx, opDelete, userID, exerciseID); err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Where("id = ?", exerciseID).Delete(&Exercise{}).Error; err != nil {
		s.logError(opDelete, "exercise_delete_failed", err, zap.String("exercise_id", exerciseID))
		return apperr.New(opDelete, "exercise_delete_failed", err)
	}
	return nil
}

func (s *Service) owned(ctx context.Context, operation, userID, exerciseID string) (Exercise, error) {
	exercise, err := s.load(ctx, operation, exerciseID)
	if err != nil {
		return Exercise{}, err
	}
	if exercise.BuiltIn() {
		return Exercise{}, apperr.Forbidden(operation, "builtin_exercise", nil)
	}
	if exercise.OwnerID != userID {
		return Exercise{}, apperr.NotFound(operation, "exercise_not_found", nil)
	}
	return exercise, nil
}

func (s *Service) load(ctx context.Context, operation, exerciseID string) (Exercise, error) {
	var exercise Exercise
	err := s.db.WithContext(ctx).Where("id = ?", strings.TrimSpace(exerciseID)).Take(&exercise).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Exercise{}, apperr.NotFound(operation, "exercise_not_found", err)
	}
	if err != nil {
		s.logError(operation, "exercise_select_failed", err, zap.String("exercise_id", exerciseID))
		return Exercise{}, apperr.New(operation, "exercise_select_failed", err)
	}
	return exercise, nil
}

func validateInput(operation string, input Input) (Exercise, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return Exercise{}, apperr.Invalid(operation, "missing_name", errMissingName)
	}
	if len(name) > maxNameLength {
		return Exercise{}, apperr.Invalid(operation, "name_too_long", errNameTooLong)
	}
	group := MuscleGroup(strings.ToLower(strings.TrimSpace(input.MuscleGroup)))
	if !group.Valid() {
		return Exercise{}, apperr.Invalid(operation, "invalid_muscle_group", nil)
	}
	equipment := strings.ToLower(strings.TrimSpace(input.Equipment))
	if equipment == "" {
		equipment = "bodyweight"
	}
	if !lo.Contains(Equipment, equipment) {
		return Exercise{}, apperr.Invalid(operation, "invalid_equipment", nil)
	}
	difficulty := Difficulty(strings.ToLower(strings.TrimSpace(input.Difficulty)))
	if difficulty == "" {
		difficulty = DifficultyBeginner
	}
	if !difficulty.Valid() {
		return Exercise{}, apperr.Invalid(operation, "invalid_difficulty", nil)
	}
	return Exercise{
		Name:        name,
		MuscleGroup: group,
		Equipment:   equipment,
		Difficulty:  difficulty,
		Description: strings.TrimSpace(input.Description),
	}, nil
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
	s.logger.Error("exercises service error", attrs...)
}
