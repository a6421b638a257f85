package diary

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/fitlog/backend/internal/apperr"
	"github.com/fitlog/backend/internal/events"
	"github.com/fitlog/backend/internal/exercises"
	"github.com/fitlog/backend/internal/ids"
	"github.com/fitlog/backend/internal/nutrition"
	"github.com/fitlog/backend/internal/users"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

var testNow = time.Date(2024, time.May, 10, 8, 0, 0, 0, time.UTC)

type fakeProfiles struct {
	weights []float64
	targets *nutrition.Targets
}

func (p *fakeProfiles) SetWeight(_ *gorm.DB, _ string, weightKg float64) error {
	p.weights = append(p.weights, weightKg)
	return nil
}

func (p *fakeProfiles) NutritionTargets(context.Context, string) (nutrition.Targets, error) {
	if p.targets == nil {
		return nutrition.Targets{}, apperr.Invalid("users.nutrition_targets", "incomplete_profile", nil)
	}
	return *p.targets, nil
}

type fixture struct {
	service  *Service
	profiles *fakeProfiles
	recorder *events.Recorder
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Entry{}, &exercises.Exercise{}); err != nil {
		t.Fatalf("failed to migrate diary schema: %v", err)
	}
	if _, err := exercises.SeedCatalog(context.Background(), db, testNow); err != nil {
		t.Fatalf("failed to seed catalog: %v", err)
	}
	exerciseService, err := exercises.NewService(exercises.ServiceConfig{Database: db, IDProvider: &ids.SequenceProvider{Prefix: "ex-"}})
	if err != nil {
		t.Fatalf("failed to create exercise service: %v", err)
	}
	profiles := &fakeProfiles{}
	recorder := &events.Recorder{}
	service, err := NewService(ServiceConfig{
		Database:   db,
		IDProvider: &ids.SequenceProvider{Prefix: "entry-"},
		Exercises:  exerciseService,
		Profiles:   profiles,
		Publisher:  recorder,
		Clock:      func() time.Time { return testNow },
	})
	if err != nil {
		t.Fatalf("failed to create diary service: %v", err)
	}
	return fixture{service: service, profiles: profiles, recorder: recorder}
}

func TestCreateExerciseEntryDenormalizesExercise(t *testing.T) {
	f := newFixture(t)
	entry, err := f.service.Create(context.Background(), "user-a", EntryInput{
		Day:        "2024-05-10",
		Kind:       "exercise",
		ExerciseID: "builtin-back-squat",
		Sets:       []Set{{Reps: 5, WeightKg: 100}, {Reps: 5, WeightKg: 105}},
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if entry.ExerciseName != "Back Squat" || entry.MuscleGroup != "legs" {
		t.Fatalf("expected exercise fields to be copied, got %+v", entry)
	}
	if entry.Volume() != 1025 {
		t.Fatalf("unexpected volume %v", entry.Volume())
	}

	stored, err := f.service.Get(context.Background(), "user-a", entry.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if len(stored.Sets) != 2 || stored.Sets[1].WeightKg != 105 {
		t.Fatalf("expected sets to round-trip through json column, got %+v", stored.Sets)
	}
	if types := f.recorder.Types(); len(types) != 1 || types[0] != events.TypeDiaryEntryCreated {
		t.Fatalf("expected created event, got %v", types)
	}
}

func TestCreateValidatesPerKind(t *testing.T) {
	f := newFixture(t)
	cases := map[string]EntryInput{
		"invalid_day":       {Day: "10/05/2024", Kind: "weight", WeightKg: 80},
		"invalid_kind":      {Day: "2024-05-10", Kind: "sleep"},
		"missing_exercise":  {Day: "2024-05-10", Kind: "exercise", Sets: []Set{{Reps: 1}}},
		"unknown_exercise":  {Day: "2024-05-10", Kind: "exercise", ExerciseID: "nope", Sets: []Set{{Reps: 1}}},
		"invalid_sets":      {Day: "2024-05-10", Kind: "exercise", ExerciseID: "builtin-plank"},
		"invalid_set":       {Day: "2024-05-10", Kind: "exercise", ExerciseID: "builtin-plank", Sets: []Set{{Reps: 0}}},
		"invalid_meal_type": {Day: "2024-05-10", Kind: "meal", MealType: "brunch", FoodName: "Eggs", QuantityG: 100},
		"missing_food_name": {Day: "2024-05-10", Kind: "meal", MealType: "lunch", QuantityG: 100},
		"invalid_quantity":  {Day: "2024-05-10", Kind: "meal", MealType: "lunch", FoodName: "Rice"},
		"invalid_nutrients": {Day: "2024-05-10", Kind: "meal", MealType: "lunch", FoodName: "Rice", QuantityG: 100, Per100g: nutrition.Per100g{Kcal: -1}},
		"invalid_weight":    {Day: "2024-05-10", Kind: "weight", WeightKg: 5},
	}
	for reason, input := range cases {
		_, err := f.service.Create(context.Background(), "user-a", input)
		if !errors.Is(err, apperr.ErrInvalidInput) || apperr.ReasonOf(err, "") != reason {
			t.Fatalf("expected %s, got %v", reason, err)
		}
	}
}

func TestWeightEntryUpdatesProfile(t *testing.T) {
	f := newFixture(t)
	if _, err := f.service.Create(context.Background(), "user-a", EntryInput{Day: "2024-05-10", Kind: "weight", WeightKg: 81.5}); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if len(f.profiles.weights) != 1 || f.profiles.weights[0] != 81.5 {
		t.Fatalf("expected profile weight write, got %v", f.profiles.weights)
	}
}

type noExercises struct{}

func (noExercises) Get(context.Context, string, string) (exercises.Exercise, error) {
	return exercises.Exercise{}, apperr.NotFound("exercises.get", "exercise_not_found", nil)
}

func TestWeightEntryInsertFailureKeepsProfileWeight(t *testing.T) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Entry{}, &users.User{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}
	if err := db.Create(&users.User{ID: "user-a", Email: "a@example.com", Username: "alice", WeightKg: 80}).Error; err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}
	userService, err := users.NewService(users.ServiceConfig{Database: db, IDProvider: &ids.SequenceProvider{Prefix: "user-"}})
	if err != nil {
		t.Fatalf("failed to create user service: %v", err)
	}
	service, err := NewService(ServiceConfig{
		Database:   db,
		IDProvider: &ids.SequenceProvider{Prefix: "entry-"},
		Exercises:  noExercises{},
		Profiles:   userService,
		Clock:      func() time.Time { return testNow },
	})
	if err != nil {
		t.Fatalf("failed to create diary service: %v", err)
	}

	failInserts := errors.New("disk full")
	if err := db.Callback().Create().Before("gorm:create").Register("test:fail_entry_insert", func(tx *gorm.DB) {
		if tx.Statement.Table == (Entry{}).TableName() {
			_ = tx.AddError(failInserts)
		}
	}); err != nil {
		t.Fatalf("failed to register callback: %v", err)
	}

	_, err = service.Create(context.Background(), "user-a", EntryInput{Day: "2024-05-10", Kind: "weight", WeightKg: 77})
	if !errors.Is(err, failInserts) {
		t.Fatalf("expected insert failure, got %v", err)
	}
	var stored users.User
	if err := db.Take(&stored, "id = ?", "user-a").Error; err != nil {
		t.Fatalf("failed to reload user: %v", err)
	}
	if stored.WeightKg != 80 {
		t.Fatalf("expected profile weight to roll back to 80, got %v", stored.WeightKg)
	}
}

func TestUpdateKeepsKindAndOwnership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	entry, err := f.service.Create(ctx, "user-a", EntryInput{Day: "2024-05-10", Kind: "meal", MealType: "lunch", FoodName: "Rice", QuantityG: 200, Per100g: nutrition.Per100g{Kcal: 130, CarbsG: 28}})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if entry.Kcal != 260 || entry.CarbsG != 56 {
		t.Fatalf("expected computed totals, got %+v", entry)
	}

	updated, err := f.service.Update(ctx, "user-a", entry.ID, EntryInput{Day: "2024-05-10", MealType: "dinner", FoodName: "Rice", QuantityG: 100, Per100g: nutrition.Per100g{Kcal: 130}})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.Kcal != 130 || updated.MealType != MealDinner || !updated.CreatedAt.Equal(entry.CreatedAt) {
		t.Fatalf("unexpected updated entry %+v", updated)
	}

	if _, err := f.service.Update(ctx, "user-a", entry.ID, EntryInput{Day: "2024-05-10", Kind: "weight", WeightKg: 80}); apperr.ReasonOf(err, "") != "kind_mismatch" {
		t.Fatalf("expected kind mismatch, got %v", err)
	}
	if _, err := f.service.Update(ctx, "user-b", entry.ID, EntryInput{Day: "2024-05-10", Kind: "meal"}); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected other users to get not found, got %v", err)
	}
	if err := f.service.Delete(ctx, "user-b", entry.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected other users to get not found on delete, got %v", err)
	}
	if err := f.service.Delete(ctx, "user-a", entry.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	types := f.recorder.Types()
	if types[len(types)-1] != events.TypeDiaryEntryDeleted {
		t.Fatalf("expected deleted event last, got %v", types)
	}
}

func TestListPaginatesWithCursor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for index := 0; index < 5; index++ {
		if _, err := f.service.Create(ctx, "user-a", EntryInput{Day: "2024-05-10", Kind: "meal", MealType: "snack", FoodName: fmt.Sprintf("Apple %d", index), QuantityG: 100}); err != nil {
			t.Fatalf("create failed: %v", err)
		}
	}
	if _, err := f.service.Create(ctx, "user-b", EntryInput{Day: "2024-05-10", Kind: "weight", WeightKg: 70}); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	first, err := f.service.List(ctx, "user-a", Query{Day: "2024-05-10", Limit: 2})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(first.Entries) != 2 || first.NextCursor == "" {
		t.Fatalf("expected a full first page with a cursor, got %+v", first)
	}

	seen := map[string]bool{}
	page := first
	for {
		for _, entry := range page.Entries {
			if seen[entry.ID] {
				t.Fatalf("entry %s returned twice", entry.ID)
			}
			seen[entry.ID] = true
		}
		if page.NextCursor == "" {
			break
		}
		page, err = f.service.List(ctx, "user-a", Query{Day: "2024-05-10", Limit: 2, Cursor: page.NextCursor})
		if err != nil {
			t.Fatalf("list failed: %v", err)
		}
	}
	if len(seen) != 5 {
		t.Fatalf("expected 5 entries across pages, got %d", len(seen))
	}

	if _, err := f.service.List(ctx, "user-a", Query{Cursor: "!!!"}); apperr.ReasonOf(err, "") != "invalid_cursor" {
		t.Fatalf("expected invalid cursor, got %v", err)
	}
}

func TestListFiltersByKindAndSearch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inputs := []EntryInput{
		{Day: "2024-05-09", Kind: "meal", MealType: "lunch", FoodName: "Chicken Salad", QuantityG: 300},
		{Day: "2024-05-10", Kind: "meal", MealType: "dinner", FoodName: "Pasta", QuantityG: 250},
		{Day: "2024-05-10", Kind: "exercise", ExerciseID: "builtin-bench-press", Sets: []Set{{Reps: 8, WeightKg: 60}}},
	}
	for _, input := range inputs {
		if _, err := f.service.Create(ctx, "user-a", input); err != nil {
			t.Fatalf("create failed: %v", err)
		}
	}

	meals, err := f.service.List(ctx, "user-a", Query{Kind: "meal"})
	if err != nil || len(meals.Entries) != 2 {
		t.Fatalf("expected two meals, got %d (%v)", len(meals.Entries), err)
	}
	searched, err := f.service.List(ctx, "user-a", Query{Search: "BENCH"})
	if err != nil || len(searched.Entries) != 1 || searched.Entries[0].Kind != KindExercise {
		t.Fatalf("expected bench press match, got %+v (%v)", searched.Entries, err)
	}
	ranged, err := f.service.List(ctx, "user-a", Query{From: "2024-05-10", To: "2024-05-10", Kind: "all"})
	if err != nil || len(ranged.Entries) != 2 {
		t.Fatalf("expected two entries in range, got %d (%v)", len(ranged.Entries), err)
	}
	if _, err := f.service.List(ctx, "user-a", Query{Kind: "sleep"}); apperr.ReasonOf(err, "") != "invalid_kind" {
		t.Fatalf("expected invalid kind, got %v", err)
	}
}

func TestDaySummaryAggregatesAndComparesTargets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inputs := []EntryInput{
		{Day: "2024-05-10", Kind: "meal", MealType: "breakfast", FoodName: "Oats", QuantityG: 100, Per100g: nutrition.Per100g{Kcal: 389, ProteinG: 16.9, LipidG: 6.9, CarbsG: 66.3}},
		{Day: "2024-05-10", Kind: "meal", MealType: "lunch", FoodName: "Rice", QuantityG: 200, Per100g: nutrition.Per100g{Kcal: 130, ProteinG: 2.7, LipidG: 0.3, CarbsG: 28}},
		{Day: "2024-05-10", Kind: "exercise", ExerciseID: "builtin-deadlift", Sets: []Set{{Reps: 5, WeightKg: 140}, {Reps: 3, WeightKg: 150}}},
		{Day: "2024-05-10", Kind: "weight", WeightKg: 82},
		{Day: "2024-05-10", Kind: "weight", WeightKg: 81.6},
		{Day: "2024-05-11", Kind: "weight", WeightKg: 70},
	}
	for _, input := range inputs {
		if _, err := f.service.Create(ctx, "user-a", input); err != nil {
			t.Fatalf("create failed: %v", err)
		}
	}

	summary, err := f.service.DaySummary(ctx, "user-a", "2024-05-10")
	if err != nil {
		t.Fatalf("summary failed: %v", err)
	}
	if summary.MealCount != 2 || summary.ExerciseCount != 1 || summary.TotalSets != 2 {
		t.Fatalf("unexpected counts %+v", summary)
	}
	if summary.Consumed.Kcal != 649 || summary.VolumeKg != 1150 {
		t.Fatalf("unexpected totals %+v", summary)
	}
	if summary.LatestWeightKg == nil || *summary.LatestWeightKg != 81.6 {
		t.Fatalf("expected latest weight 81.6, got %v", summary.LatestWeightKg)
	}
	if summary.Targets != nil || summary.RemainingKcal != nil {
		t.Fatalf("expected no targets for incomplete profile")
	}

	f.profiles.targets = &nutrition.Targets{Calories: 2000}
	summary, err = f.service.DaySummary(ctx, "user-a", "2024-05-10")
	if err != nil {
		t.Fatalf("summary failed: %v", err)
	}
	if summary.RemainingKcal == nil || *summary.RemainingKcal != 1351 {
		t.Fatalf("expected 1351 kcal remaining, got %v", summary.RemainingKcal)
	}
}

func TestCreateBatchIsAllOrNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.service.CreateBatch(ctx, "user-a", []EntryInput{
		{Day: "2024-05-10", Kind: "exercise", ExerciseID: "builtin-plank", Sets: []Set{{Reps: 1}}},
		{Day: "2024-05-10", Kind: "exercise", ExerciseID: "missing", Sets: []Set{{Reps: 1}}},
	})
	if !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	page, err := f.service.List(ctx, "user-a", Query{})
	if err != nil || len(page.Entries) != 0 {
		t.Fatalf("expected nothing stored, got %d (%v)", len(page.Entries), err)
	}

	created, err := f.service.CreateBatch(ctx, "user-a", []EntryInput{
		{Day: "2024-05-10", Kind: "exercise", ExerciseID: "builtin-plank", Sets: []Set{{Reps: 1}}},
		{Day: "2024-05-10", Kind: "exercise", ExerciseID: "builtin-push-up", Sets: []Set{{Reps: 10}}},
	})
	if err != nil || len(created) != 2 {
		t.Fatalf("expected two entries, got %d (%v)", len(created), err)
	}
}
