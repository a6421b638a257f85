// Package diary records workouts, meals and weigh-ins per day.
package diary

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"github.com/fitlog/backend/internal/apperr"
	"github.com/fitlog/backend/internal/events"
	"github.com/fitlog/backend/internal/exercises"
	"github.com/fitlog/backend/internal/ids"
	"github.com/fitlog/backend/internal/nutrition"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	opServiceNew  = "diary.service.new"
	opCreate      = "diary.create"
	opCreateBatch = "diary.create_batch"
	opGet         = "diary.get"
	opUpdate      = "diary.update"
	opDelete      = "diary.delete"
	opList        = "diary.list"
	opDaySummary  = "diary.day_summary"

	defaultPageSize = 50
	maxPageSize     = 200
	maxSetsPerEntry = 50
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	errMissingExercises  = errors.New("exercise lookup is required")
	errMissingProfiles   = errors.New("profile store is required")
)

// ExerciseLookup resolves exercises visible to a user.
type ExerciseLookup interface {
	Get(ctx context.Context, userID, exerciseID string) (exercises.Exercise, error)
}

// ProfileStore reads and writes the parts of the user profile the diary touches.
type ProfileStore interface {
	SetWeight(tx *gorm.DB, userID string, weightKg float64) error
	NutritionTargets(ctx context.Context, userID string) (nutrition.Targets, error)
}

// ServiceConfig describes the dependencies of the diary service.
type ServiceConfig struct {
	Database   *gorm.DB
	IDProvider ids.Provider
	Exercises  ExerciseLookup
	Profiles   ProfileStore
	Publisher  events.Publisher
	Clock      func() time.Time
	Logger     *zap.Logger
}

// Service owns diary entries.
type Service struct {
	db         *gorm.DB
	idProvider ids.Provider
	exercises  ExerciseLookup
	profiles   ProfileStore
	publisher  events.Publisher
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
	if cfg.Exercises == nil {
		return nil, apperr.New(opServiceNew, "missing_exercises", errMissingExercises)
	}
	if cfg.Profiles == nil {
		return nil, apperr.New(opServiceNew, "missing_profiles", errMissingProfiles)
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
		idProvider: cfg.IDProvider,
		exercises:  cfg.Exercises,
		profiles:   cfg.Profiles,
		publisher:  cfg.Publisher,
		clock:      clock,
		logger:     logger,
	}, nil
}

// Create validates input and stores a new entry.
func (s *Service) Create(ctx context.Context, userID string, input EntryInput) (Entry, error) {
	entry, err := s.build(ctx, opCreate, userID, input)
	if err != nil {
		return Entry{}, err
	}
	if err := s.stamp(opCreate, &entry); err != nil {
		return Entry{}, err
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if entry.Kind == KindWeight {
			if err := s.profiles.SetWeight(tx, userID, entry.WeightKg); err != nil {
				return err
			}
		}
		if err := tx.Create(&entry).Error; err != nil {
			s.logError(opCreate, "entry_insert_failed", err, zap.String("user_id", userID))
			return apperr.New(opCreate, "entry_insert_failed", err)
		}
		return nil
	})
	if err != nil {
		return Entry{}, err
	}
	s.emitCreated(ctx, entry)
	return entry, nil
}

// CreateBatch validates every input and stores all entries in one transaction.
func (s *Service) CreateBatch(ctx context.Context, userID string, inputs []EntryInput) ([]Entry, error) {
	entries := make([]Entry, 0, len(inputs))
	for _, input := range inputs {
		entry, err := s.build(ctx, opCreateBatch, userID, input)
		if err != nil {
			return nil, err
		}
		if entry.Kind == KindWeight {
			return nil, apperr.Invalid(opCreateBatch, "weight_not_batchable", nil)
		}
		if err := s.stamp(opCreateBatch, &entry); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if len(entries) == 0 {
		return entries, nil
	}
	if err := s.db.WithContext(ctx).Create(&entries).Error; err != nil {
		s.logError(opCreateBatch, "entry_insert_failed", err, zap.String("user_id", userID))
		return nil, apperr.New(opCreateBatch, "entry_insert_failed", err)
	}
	for _, entry := range entries {
		s.emitCreated(ctx, entry)
	}
	return entries, nil
}

// Get returns one of userID's entries.
func (s *Service) Get(ctx context.Context, userID, entryID string) (Entry, error) {
	var entry Entry
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", strings.TrimSpace(entryID), userID).Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Entry{}, apperr.NotFound(opGet, "entry_not_found", err)
	}
	if err != nil {
		s.logError(opGet, "entry_select_failed", err, zap.String("entry_id", entryID))
		return Entry{}, apperr.New(opGet, "entry_select_failed", err)
	}
	return entry, nil
}

// Update overwrites an entry. The kind cannot change.
func (s *Service) Update(ctx context.Context, userID, entryID string, input EntryInput) (Entry, error) {
	existing, err := s.Get(ctx, userID, entryID)
	if err != nil {
		return Entry{}, err
	}
	if strings.TrimSpace(input.Kind) == "" {
		input.Kind = string(existing.Kind)
	}
	if Kind(strings.ToLower(strings.TrimSpace(input.Kind))) != existing.Kind {
		return Entry{}, apperr.Invalid(opUpdate, "kind_mismatch", nil)
	}
	updated, err := s.build(ctx, opUpdate, userID, input)
	if err != nil {
		return Entry{}, err
	}
	updated.ID = existing.ID
	updated.CreatedAt = existing.CreatedAt
	updated.UpdatedAt = s.clock().UTC()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if updated.Kind == KindWeight {
			if err := s.profiles.SetWeight(tx, userID, updated.WeightKg); err != nil {
				return err
			}
		}
		if err := tx.Save(&updated).Error; err != nil {
			s.logError(opUpdate, "entry_update_failed", err, zap.String("entry_id", entryID))
			return apperr.New(opUpdate, "entry_update_failed", err)
		}
		return nil
	})
	if err != nil {
		return Entry{}, err
	}
	return updated, nil
}

// Delete removes one of userID's entries.
func (s *Service) Delete(ctx context.Context, userID, entryID string) error {
	entry, err := s.Get(ctx, userID, entryID)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", entry.ID, userID).Delete(&Entry{}).Error; err != nil {
		s.logError(opDelete, "entry_delete_failed", err, zap.String("entry_id", entryID))
		return apperr.New(opDelete, "entry_delete_failed", err)
	}
	events.Emit(ctx, s.publisher, s.logger, events.Event{
		Type:       events.TypeDiaryEntryDeleted,
		UserID:     userID,
		EntityID:   entry.ID,
		OccurredAt: s.clock().UTC(),
		Data:       map[string]interface{}{"kind": string(entry.Kind), "day": entry.Day},
	})
	return nil
}

// List returns a page of entries ordered by creation time then id.
func (s *Service) List(ctx context.Context, userID string, query Query) (Page, error) {
	limit := query.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	db := s.db.WithContext(ctx).Where("user_id = ?", userID)
	switch {
	case strings.TrimSpace(query.Day) != "":
		day, err := ParseDay(query.Day)
		if err != nil {
			return Page{}, apperr.Invalid(opList, "invalid_day", err)
		}
		db = db.Where("day = ?", day)
	case strings.TrimSpace(query.From) != "" || strings.TrimSpace(query.To) != "":
		if strings.TrimSpace(query.From) != "" {
			from, err := ParseDay(query.From)
			if err != nil {
				return Page{}, apperr.Invalid(opList, "invalid_from", err)
			}
			db = db.Where("day >= ?", from)
		}
		if strings.TrimSpace(query.To) != "" {
			to, err := ParseDay(query.To)
			if err != nil {
				return Page{}, apperr.Invalid(opList, "invalid_to", err)
			}
			db = db.Where("day <= ?", to)
		}
	}

	if tab := strings.ToLower(strings.TrimSpace(query.Kind)); tab != "" && tab != "all" {
		if !Kind(tab).Valid() {
			return Page{}, apperr.Invalid(opList, "invalid_kind", nil)
		}
		db = db.Where("kind = ?", tab)
	}

	if search := strings.ToLower(strings.TrimSpace(query.Search)); search != "" {
		pattern := "%" + escapeLike(search) + "%"
		db = db.Where("(LOWER(exercise_name) LIKE ? ESCAPE '!' OR LOWER(food_name) LIKE ? ESCAPE '!' OR LOWER(notes) LIKE ? ESCAPE '!')", pattern, pattern, pattern)
	}

	if query.Cursor != "" {
		cursorID, err := decodeCursor(query.Cursor)
		if err != nil {
			return Page{}, apperr.Invalid(opList, "invalid_cursor", err)
		}
		var anchor Entry
		err = s.db.WithContext(ctx).Select("id", "created_at").Where("id = ? AND user_id = ?", cursorID, userID).Take(&anchor).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Page{}, apperr.Invalid(opList, "invalid_cursor", err)
		}
		if err != nil {
			s.logError(opList, "cursor_select_failed", err)
			return Page{}, apperr.New(opList, "cursor_select_failed", err)
		}
		db = db.Where("(created_at > ? OR (created_at = ? AND id > ?))", anchor.CreatedAt, anchor.CreatedAt, anchor.ID)
	}

	var entries []Entry
	if err := db.Order("created_at ASC").Order("id ASC").Limit(limit + 1).Find(&entries).Error; err != nil {
		s.logError(opList, "entry_select_failed", err, zap.String("user_id", userID))
		return Page{}, apperr.New(opList, "entry_select_failed", err)
	}

	page := Page{Entries: entries}
	if len(entries) > limit {
		page.Entries = entries[:limit]
		page.NextCursor = encodeCursor(page.Entries[limit-1].ID)
	}
	return page, nil
}

// DaySummary aggregates the entries of day.
func (s *Service) DaySummary(ctx context.Context, userID, day string) (DaySummary, error) {
	normalizedDay, err := ParseDay(day)
	if err != nil {
		return DaySummary{}, apperr.Invalid(opDaySummary, "invalid_day", err)
	}
	var entries []Entry
	if err := s.db.WithContext(ctx).
		Where("user_id = ? AND day = ?", userID, normalizedDay).
		Order("created_at ASC").Order("id ASC").
		Find(&entries).Error; err != nil {
		s.logError(opDaySummary, "entry_select_failed", err, zap.String("user_id", userID))
		return DaySummary{}, apperr.New(opDaySummary, "entry_select_failed", err)
	}

	summary := Summarize(normalizedDay, entries)

	targets, err := s.profiles.NutritionTargets(ctx, userID)
	switch {
	case err == nil:
		remaining := targets.Calories - int(summary.Consumed.Kcal+0.5)
		summary.Targets = &targets
		summary.RemainingKcal = &remaining
	case errors.Is(err, apperr.ErrInvalidInput):
	default:
		return DaySummary{}, err
	}
	return summary, nil
}

// Summarize aggregates entries that all belong to day.
func Summarize(day string, entries []Entry) DaySummary {
	byKind := lo.GroupBy(entries, func(entry Entry) Kind { return entry.Kind })
	meals := byKind[KindMeal]
	workouts := byKind[KindExercise]
	weighIns := byKind[KindWeight]

	consumed := nutrition.Macros{}
	for _, meal := range meals {
		consumed = consumed.Add(meal.Macros())
	}

	summary := DaySummary{
		Day:           day,
		Consumed:      consumed,
		MealCount:     len(meals),
		ExerciseCount: len(workouts),
		TotalSets:     lo.SumBy(workouts, func(entry Entry) int { return len(entry.Sets) }),
		VolumeKg:      lo.SumBy(workouts, func(entry Entry) float64 { return entry.Volume() }),
	}
	if len(weighIns) > 0 {
		weight := weighIns[len(weighIns)-1].WeightKg
		summary.LatestWeightKg = &weight
	}
	return summary
}

// ParseDay validates a YYYY-MM-DD day and returns it normalized.
func ParseDay(raw string) (string, error) {
	parsed, err := time.Parse(DayLayout, strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	return parsed.Format(DayLayout), nil
}

func (s *Service) build(ctx context.Context, operation, userID string, input EntryInput) (Entry, error) {
	day, err := ParseDay(input.Day)
	if err != nil {
		return Entry{}, apperr.Invalid(operation, "invalid_day", err)
	}
	entry := Entry{UserID: userID, Day: day, Kind: Kind(strings.ToLower(strings.TrimSpace(input.Kind)))}

	switch entry.Kind {
	case KindExercise:
		if strings.TrimSpace(input.ExerciseID) == "" {
			return Entry{}, apperr.Invalid(operation, "missing_exercise", nil)
		}
		exercise, err := s.exercises.Get(ctx, userID, input.ExerciseID)
		if errors.Is(err, apperr.ErrNotFound) {
			return Entry{}, apperr.Invalid(operation, "unknown_exercise", err)
		}
		if err != nil {
			return Entry{}, err
		}
		if len(input.Sets) == 0 || len(input.Sets) > maxSetsPerEntry {
			return Entry{}, apperr.Invalid(operation, "invalid_sets", nil)
		}
		for _, set := range input.Sets {
			if set.Reps <= 0 || set.WeightKg < 0 {
				return Entry{}, apperr.Invalid(operation, "invalid_set", nil)
			}
		}
		entry.ExerciseID = exercise.ID
		entry.ExerciseName = exercise.Name
		entry.MuscleGroup = string(exercise.MuscleGroup)
		entry.Sets = append([]Set(nil), input.Sets...)
		entry.Notes = strings.TrimSpace(input.Notes)
	case KindMeal:
		mealType := MealType(strings.ToLower(strings.TrimSpace(input.MealType)))
		if !mealType.Valid() {
			return Entry{}, apperr.Invalid(operation, "invalid_meal_type", nil)
		}
		name := strings.TrimSpace(input.FoodName)
		if name == "" {
			return Entry{}, apperr.Invalid(operation, "missing_food_name", nil)
		}
		if input.QuantityG <= 0 {
			return Entry{}, apperr.Invalid(operation, "invalid_quantity", nil)
		}
		label := input.Per100g
		if label.Kcal < 0 || label.ProteinG < 0 || label.LipidG < 0 || label.CarbsG < 0 {
			return Entry{}, apperr.Invalid(operation, "invalid_nutrients", nil)
		}
		totals := nutrition.Portion(label, input.QuantityG)
		entry.MealType = mealType
		entry.FoodName = name
		entry.Barcode = strings.TrimSpace(input.Barcode)
		entry.QuantityG = input.QuantityG
		entry.KcalPer100g = label.Kcal
		entry.ProteinPer100g = label.ProteinG
		entry.LipidPer100g = label.LipidG
		entry.CarbsPer100g = label.CarbsG
		entry.Kcal = totals.Kcal
		entry.ProteinG = totals.ProteinG
		entry.LipidG = totals.LipidG
		entry.CarbsG = totals.CarbsG
		entry.Notes = strings.TrimSpace(input.Notes)
	case KindWeight:
		if input.WeightKg < 20 || input.WeightKg > 500 {
			return Entry{}, apperr.Invalid(operation, "invalid_weight", nil)
		}
		entry.WeightKg = input.WeightKg
		entry.Notes = strings.TrimSpace(input.Notes)
	default:
		return Entry{}, apperr.Invalid(operation, "invalid_kind", nil)
	}
	return entry, nil
}

func (s *Service) stamp(operation string, entry *Entry) error {
	id, err := s.idProvider.NewID()
	if err != nil {
		s.logError(operation, "id_generation_failed", err)
		return apperr.New(operation, "id_generation_failed", err)
	}
	now := s.clock().UTC()
	entry.ID = id
	entry.CreatedAt = now
	entry.UpdatedAt = now
	return nil
}

func (s *Service) emitCreated(ctx context.Context, entry Entry) {
	events.Emit(ctx, s.publisher, s.logger, events.Event{
		Type:       events.TypeDiaryEntryCreated,
		UserID:     entry.UserID,
		EntityID:   entry.ID,
		OccurredAt: entry.CreatedAt,
		Data:       map[string]interface{}{"kind": string(entry.Kind), "day": entry.Day},
	})
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
	s.logger.Error("diary service error", attrs...)
}

func encodeCursor(entryID string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(entryID))
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

func escapeLike(value string) string {
	return strings.NewReplacer("!", "!!", "%", "!%", "_", "!_").Replace(value)
}
