package programs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/fitlog/backend/internal/apperr"
	"github.com/fitlog/backend/internal/diary"
	"github.com/fitlog/backend/internal/exercises"
	"github.com/fitlog/backend/internal/ids"
	"github.com/fitlog/backend/internal/nutrition"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

var testNow = time.Date(2024, time.April, 2, 7, 30, 0, 0, time.UTC)

type stubProfiles struct{}

func (stubProfiles) SetWeight(*gorm.DB, string, float64) error { return nil }

func (stubProfiles) NutritionTargets(context.Context, string) (nutrition.Targets, error) {
	return nutrition.Targets{}, apperr.Invalid("users.nutrition_targets", "incomplete_profile", nil)
}

type fixture struct {
	service   *Service
	diary     *diary.Service
	exercises *exercises.Service
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&exercises.Exercise{}, &diary.Entry{}, &Program{}, &ProgramExercise{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}
	if _, err := exercises.SeedCatalog(context.Background(), db, testNow); err != nil {
		t.Fatalf("failed to seed catalog: %v", err)
	}
	exerciseService, err := exercises.NewService(exercises.ServiceConfig{Database: db, IDProvider: &ids.SequenceProvider{Prefix: "ex-"}})
	if err != nil {
		t.Fatalf("failed to create exercise service: %v", err)
	}
	diaryService, err := diary.NewService(diary.ServiceConfig{
		Database:   db,
		IDProvider: &ids.SequenceProvider{Prefix: "entry-"},
		Exercises:  exerciseService,
		Profiles:   stubProfiles{},
		Clock:      func() time.Time { return testNow },
	})
	if err != nil {
		t.Fatalf("failed to create diary service: %v", err)
	}
	service, err := NewService(ServiceConfig{
		Database:   db,
		IDProvider: &ids.SequenceProvider{Prefix: "prog-"},
		Exercises:  exerciseService,
		Diary:      diaryService,
		Clock:      func() time.Time { return testNow },
	})
	if err != nil {
		t.Fatalf("failed to create program service: %v", err)
	}
	return fixture{service: service, diary: diaryService, exercises: exerciseService}
}

var pushDay = Input{
	Name:        "Push Day",
	Description: "Chest, shoulders and triceps",
	Exercises: []ExerciseInput{
		{ExerciseID: "builtin-bench-press", Sets: 4, Reps: 8},
		{ExerciseID: "builtin-overhead-press", Sets: 3, Reps: 10},
		{ExerciseID: "builtin-triceps-pushdown", Sets: 3, Reps: 12, Notes: "slow eccentric"},
	},
}

func TestCreateAssignsPositionsAndDerivesMuscleGroups(t *testing.T) {
	f := newFixture(t)
	program, err := f.service.Create(context.Background(), "user-a", pushDay)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	stored, err := f.service.Get(context.Background(), "user-a", program.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if len(stored.Exercises) != 3 {
		t.Fatalf("expected 3 exercises, got %d", len(stored.Exercises))
	}
	for index, prescribed := range stored.Exercises {
		if prescribed.Position != index+1 {
			t.Fatalf("expected position %d, got %d", index+1, prescribed.Position)
		}
	}
	if stored.Exercises[0].ExerciseName != "Bench Press" {
		t.Fatalf("expected exercise name copied, got %q", stored.Exercises[0].ExerciseName)
	}
	groups := []string(stored.MuscleGroups)
	if len(groups) != 3 || groups[0] != "chest" || groups[1] != "shoulders" || groups[2] != "triceps" {
		t.Fatalf("unexpected derived muscle groups %v", groups)
	}
}

func TestCreateValidatesExercises(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	private, err := f.exercises.Create(ctx, "user-b", exercises.Input{Name: "Secret Lift", MuscleGroup: "back"})
	if err != nil {
		t.Fatalf("create exercise failed: %v", err)
	}

	cases := map[string]Input{
		"missing_name":         {Exercises: pushDay.Exercises},
		"invalid_sets_or_reps": {Name: "Bad", Exercises: []ExerciseInput{{ExerciseID: "builtin-plank", Sets: 0, Reps: 10}}},
		"unknown_exercise":     {Name: "Bad", Exercises: []ExerciseInput{{ExerciseID: private.ID, Sets: 3, Reps: 10}}},
		"invalid_muscle_group": {Name: "Bad", MuscleGroups: []string{"neck"}},
	}
	for reason, input := range cases {
		_, err := f.service.Create(ctx, "user-a", input)
		if !errors.Is(err, apperr.ErrInvalidInput) || apperr.ReasonOf(err, "") != reason {
			t.Fatalf("expected %s, got %v", reason, err)
		}
	}
}

func TestUpdateReplacesExerciseList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	program, err := f.service.Create(ctx, "user-a", pushDay)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	updated, err := f.service.Update(ctx, "user-a", program.ID, Input{
		Name:         "Legs",
		MuscleGroups: []string{"legs", "glutes"},
		Exercises:    []ExerciseInput{{ExerciseID: "builtin-back-squat", Sets: 5, Reps: 5}},
	})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.Name != "Legs" {
		t.Fatalf("unexpected name %q", updated.Name)
	}
	stored, err := f.service.Get(ctx, "user-a", program.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if len(stored.Exercises) != 1 || stored.Exercises[0].ExerciseID != "builtin-back-squat" {
		t.Fatalf("expected replaced exercise list, got %+v", stored.Exercises)
	}

	legs, err := f.service.List(ctx, "user-a", "glutes")
	if err != nil || len(legs) != 1 {
		t.Fatalf("expected filtered program, got %d (%v)", len(legs), err)
	}
	chest, err := f.service.List(ctx, "user-a", "chest")
	if err != nil || len(chest) != 0 {
		t.Fatalf("expected no chest programs, got %d (%v)", len(chest), err)
	}
}

func TestProgramsArePrivate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	program, err := f.service.Create(ctx, "user-a", pushDay)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := f.service.Get(ctx, "user-b", program.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found for other user, got %v", err)
	}
	if err := f.service.Delete(ctx, "user-b", program.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found deleting other user's program, got %v", err)
	}
	if err := f.service.Delete(ctx, "user-a", program.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	var remaining int64
	f.service.db.Model(&ProgramExercise{}).Where("program_id = ?", program.ID).Count(&remaining)
	if remaining != 0 {
		t.Fatalf("expected program exercises removed, got %d", remaining)
	}
}

func TestApplyToDiaryCreatesPrescribedEntries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	program, err := f.service.Create(ctx, "user-a", pushDay)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	entries, err := f.service.ApplyToDiary(ctx, "user-a", program.ID, "2024-04-02")
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if len(entries[0].Sets) != 4 || entries[0].Sets[0].Reps != 8 || entries[0].Sets[0].WeightKg != 0 {
		t.Fatalf("unexpected prescribed sets %+v", entries[0].Sets)
	}
	if entries[2].Notes != "slow eccentric" {
		t.Fatalf("expected notes to carry over, got %q", entries[2].Notes)
	}

	summary, err := f.diary.DaySummary(ctx, "user-a", "2024-04-02")
	if err != nil {
		t.Fatalf("summary failed: %v", err)
	}
	if summary.ExerciseCount != 3 || summary.TotalSets != 10 {
		t.Fatalf("unexpected summary %+v", summary)
	}

	if _, err := f.service.ApplyToDiary(ctx, "user-a", program.ID, "someday"); apperr.ReasonOf(err, "") != "invalid_day" {
		t.Fatalf("expected invalid day, got %v", err)
	}
}
