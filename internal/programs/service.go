// Package programs manages workout templates and copies them into the diary.
package programs

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/fitlog/backend/internal/apperr"
	"github.com/fitlog/backend/internal/diary"
	"github.com/fitlog/backend/internal/exercises"
	"github.com/fitlog/backend/internal/ids"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	opServiceNew = "programs.service.new"
	opCreate     = "programs.create"
	opGet        = "programs.get"
	opList       = "programs.list"
	opUpdate     = "programs.update"
	opDelete     = "programs.delete"
	opApply      = "programs.apply"

	maxExercises = 40
	maxSets      = 20
	maxReps      = 500
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	errMissingExercises  = errors.New("exercise lookup is required")
	errMissingDiary      = errors.New("diary writer is required")
)

// ExerciseLookup resolves a batch of exercises visible to a user.
type ExerciseLookup interface {
	VisibleByIDs(ctx context.Context, userID string, exerciseIDs []string) (map[string]exercises.Exercise, error)
}

// DiaryWriter stores several diary entries at once.
type DiaryWriter interface {
	CreateBatch(ctx context.Context, userID string, inputs []diary.EntryInput) ([]diary.Entry, error)
}

// ServiceConfig describes the dependencies of the program service.
type ServiceConfig struct {
	Database   *gorm.DB
	IDProvider ids.Provider
	Exercises  ExerciseLookup
	Diary      DiaryWriter
	Clock      func() time.Time
	Logger     *zap.Logger
}

// Service owns workout programs.
type Service struct {
	db         *gorm.DB
	idProvider ids.Provider
	exercises  ExerciseLookup
	diary      DiaryWriter
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
	if cfg.Diary == nil {
		return nil, apperr.New(opServiceNew, "missing_diary", errMissingDiary)
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
		diary:      cfg.Diary,
		clock:      clock,
		logger:     logger,
	}, nil
}

// Create stores a program for ownerID.
func (s *Service) Create(ctx context.Context, ownerID string, input Input) (Program, error) {
	program, err := s.build(ctx, opCreate, ownerID, input)
	if err != nil {
		return Program{}, err
	}
	id, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreate, "id_generation_failed", err)
		return Program{}, apperr.New(opCreate, "id_generation_failed", err)
	}
	now := s.clock().UTC()
	program.ID = id
	program.CreatedAt = now
	program.UpdatedAt = now
	for index := range program.Exercises {
		program.Exercises[index].ProgramID = id
	}
	if err := s.db.WithContext(ctx).Create(&program).Error; err != nil {
		s.logError(opCreate, "program_insert_failed", err, zap.String("owner_id", ownerID))
		return Program{}, apperr.New(opCreate, "program_insert_failed", err)
	}
	return program, nil
}

// Get returns one of ownerID's programs with its exercises in order.
func (s *Service) Get(ctx context.Context, ownerID, programID string) (Program, error) {
	var program Program
	err := s.withExercises(s.db.WithContext(ctx)).
		Where("id = ? AND owner_id = ?", strings.TrimSpace(programID), ownerID).
		Take(&program).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Program{}, apperr.NotFound(opGet, "program_not_found", err)
	}
	if err != nil {
		s.logError(opGet, "program_select_failed", err, zap.String("program_id", programID))
		return Program{}, apperr.New(opGet, "program_select_failed", err)
	}
	return program, nil
}

// List returns ownerID's programs sorted by name, optionally limited to those training muscleGroup.
func (s *Service) List(ctx context.Context, ownerID, muscleGroup string) ([]Program, error) {
	var programs []Program
	err := s.withExercises(s.db.WithContext(ctx)).
		Where("owner_id = ?", ownerID).
		Order("name ASC").Order("id ASC").
		Find(&programs).Error
	if err != nil {
		s.logError(opList, "program_select_failed", err, zap.String("owner_id", ownerID))
		return nil, apperr.New(opList, "program_select_failed", err)
	}
	group := strings.ToLower(strings.TrimSpace(muscleGroup))
	if group == "" {
		return programs, nil
	}
	return lo.Filter(programs, func(program Program, _ int) bool {
		return lo.Contains(program.MuscleGroups, group)
	}), nil
}

// Update overwrites the program's fields and exercise list.
func (s *Service) Update(ctx context.Context, ownerID, programID string, input Input) (Program, error) {
	existing, err := s.Get(ctx, ownerID, programID)
	if err != nil {
		return Program{}, err
	}
	updated, err := s.build(ctx, opUpdate, ownerID, input)
	if err != nil {
		return Program{}, err
	}
	updated.ID = existing.ID
	updated.CreatedAt = existing.CreatedAt
	updated.UpdatedAt = s.clock().UTC()
	for index := range updated.Exercises {
		updated.Exercises[index].ProgramID = existing.ID
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("program_id = ?", existing.ID).Delete(&ProgramExercise{}).Error; err != nil {
			return err
		}
		if err := tx.Omit("Exercises").Save(&updated).Error; err != nil {
			return err
		}
		if len(updated.Exercises) == 0 {
			return nil
		}
		return tx.Create(&updated.Exercises).Error
	})
	if err != nil {
		s.logError(opUpdate, "program_update_failed", err, zap.String("program_id", programID))
		return Program{}, apperr.New(opUpdate, "program_update_failed", err)
	}
	return updated, nil
}

// Delete removes a program and its exercise list.
func (s *Service) Delete(ctx context.Context, ownerID, programID string) error {
	existing, err := s.Get(ctx, ownerID, programID)
	if err != nil {
		return err
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("program_id = ?", existing.ID).Delete(&ProgramExercise{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", existing.ID).Delete(&Program{}).Error
	})
	if err != nil {
		s.logError(opDelete, "program_delete_failed", err, zap.String("program_id", programID))
		return apperr.New(opDelete, "program_delete_failed", err)
	}
	return nil
}

// ApplyToDiary logs one exercise entry per program exercise on day, with the prescribed sets and reps at zero weight.
func (s *Service) ApplyToDiary(ctx context.Context, userID, programID, day string) ([]diary.Entry, error) {
	program, err := s.Get(ctx, userID, programID)
	if err != nil {
		return nil, err
	}
	if len(program.Exercises) == 0 {
		return nil, apperr.Invalid(opApply, "empty_program", nil)
	}
	inputs := lo.Map(program.Exercises, func(prescribed ProgramExercise, _ int) diary.EntryInput {
		sets := make([]diary.Set, prescribed.Sets)
		for index := range sets {
			sets[index] = diary.Set{Reps: prescribed.Reps}
		}
		return diary.EntryInput{
			Day:        day,
			Kind:       string(diary.KindExercise),
			ExerciseID: prescribed.ExerciseID,
			Sets:       sets,
			Notes:      prescribed.Notes,
		}
	})
	return s.diary.CreateBatch(ctx, userID, inputs)
}

func (s *Service) build(ctx context.Context, operation, ownerID string, input Input) (Program, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return Program{}, apperr.Invalid(operation, "missing_name", nil)
	}
	if len(name) > 120 {
		return Program{}, apperr.Invalid(operation, "name_too_long", nil)
	}
	if len(input.Exercises) > maxExercises {
		return Program{}, apperr.Invalid(operation, "too_many_exercises", nil)
	}
	for _, prescribed := range input.Exercises {
		if strings.TrimSpace(prescribed.ExerciseID) == "" {
			return Program{}, apperr.Invalid(operation, "missing_exercise", nil)
		}
		if prescribed.Sets <= 0 || prescribed.Sets > maxSets || prescribed.Reps <= 0 || prescribed.Reps > maxReps {
			return Program{}, apperr.Invalid(operation, "invalid_sets_or_reps", nil)
		}
	}

	exerciseIDs := lo.Map(input.Exercises, func(prescribed ExerciseInput, _ int) string {
		return strings.TrimSpace(prescribed.ExerciseID)
	})
	known, err := s.exercises.VisibleByIDs(ctx, ownerID, exerciseIDs)
	if err != nil {
		return Program{}, err
	}

	groups := make([]string, 0, len(input.MuscleGroups))
	for _, raw := range input.MuscleGroups {
		group := exercises.MuscleGroup(strings.ToLower(strings.TrimSpace(raw)))
		if !group.Valid() {
			return Program{}, apperr.Invalid(operation, "invalid_muscle_group", nil)
		}
		groups = append(groups, string(group))
	}
	if len(groups) == 0 {
		groups = lo.Map(exerciseIDs, func(id string, _ int) string { return string(known[id].MuscleGroup) })
	}

	prescribed := make([]ProgramExercise, 0, len(input.Exercises))
	for index, item := range input.Exercises {
		exerciseID := exerciseIDs[index]
		prescribed = append(prescribed, ProgramExercise{
			Position:     index + 1,
			ExerciseID:   exerciseID,
			ExerciseName: known[exerciseID].Name,
			Sets:         item.Sets,
			Reps:         item.Reps,
			Notes:        strings.TrimSpace(item.Notes),
		})
	}

	return Program{
		OwnerID:      ownerID,
		Name:         name,
		Description:  strings.TrimSpace(input.Description),
		MuscleGroups: lo.Uniq(groups),
		Exercises:    prescribed,
	}, nil
}

func (s *Service) withExercises(db *gorm.DB) *gorm.DB {
	return db.Preload("Exercises", func(tx *gorm.DB) *gorm.DB {
		return tx.Order("position ASC")
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
	s.logger.Error("programs service error", attrs...)
}
