package exercises

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var builtinCatalog = []Exercise{
	{ID: "builtin-bench-press", Name: "Bench Press", MuscleGroup: MuscleChest, Equipment: "barbell", Difficulty: DifficultyIntermediate, Description: "Lie on a flat bench and press the bar from chest to lockout."},
	{ID: "builtin-push-up", Name: "Push-Up", MuscleGroup: MuscleChest, Equipment: "bodyweight", Difficulty: DifficultyBeginner, Description: "Lower the chest to the floor with a rigid plank and press back up."},
	{ID: "builtin-dumbbell-fly", Name: "Dumbbell Fly", MuscleGroup: MuscleChest, Equipment: "dumbbell", Difficulty: DifficultyBeginner},
	{ID: "builtin-deadlift", Name: "Deadlift", MuscleGroup: MuscleBack, Equipment: "barbell", Difficulty: DifficultyAdvanced, Description: "Hinge at the hips and lift the bar from the floor to standing."},
	{ID: "builtin-pull-up", Name: "Pull-Up", MuscleGroup: MuscleBack, Equipment: "bodyweight", Difficulty: DifficultyIntermediate},
	{ID: "builtin-seated-row", Name: "Seated Cable Row", MuscleGroup: MuscleBack, Equipment: "cable", Difficulty: DifficultyBeginner},
	{ID: "builtin-overhead-press", Name: "Overhead Press", MuscleGroup: MuscleShoulders, Equipment: "barbell", Difficulty: DifficultyIntermediate},
	{ID: "builtin-lateral-raise", Name: "Lateral Raise", MuscleGroup: MuscleShoulders, Equipment: "dumbbell", Difficulty: DifficultyBeginner},
	{ID: "builtin-biceps-curl", Name: "Biceps Curl", MuscleGroup: MuscleBiceps, Equipment: "dumbbell", Difficulty: DifficultyBeginner},
	{ID: "builtin-hammer-curl", Name: "Hammer Curl", MuscleGroup: MuscleBiceps, Equipment: "dumbbell", Difficulty: DifficultyBeginner},
	{ID: "builtin-triceps-pushdown", Name: "Triceps Pushdown", MuscleGroup: MuscleTriceps, Equipment: "cable", Difficulty: DifficultyBeginner},
	{ID: "builtin-dips", Name: "Dips", MuscleGroup: MuscleTriceps, Equipment: "bodyweight", Difficulty: DifficultyIntermediate},
	{ID: "builtin-back-squat", Name: "Back Squat", MuscleGroup: MuscleLegs, Equipment: "barbell", Difficulty: DifficultyIntermediate, Description: "Squat below parallel with the bar on the upper back."},
	{ID: "builtin-leg-press", Name: "Leg Press", MuscleGroup: MuscleLegs, Equipment: "machine", Difficulty: DifficultyBeginner},
	{ID: "builtin-lunge", Name: "Walking Lunge", MuscleGroup: MuscleLegs, Equipment: "dumbbell", Difficulty: DifficultyBeginner},
	{ID: "builtin-hip-thrust", Name: "Hip Thrust", MuscleGroup: MuscleGlutes, Equipment: "barbell", Difficulty: DifficultyIntermediate},
	{ID: "builtin-glute-bridge", Name: "Glute Bridge", MuscleGroup: MuscleGlutes, Equipment: "bodyweight", Difficulty: DifficultyBeginner},
	{ID: "builtin-plank", Name: "Plank", MuscleGroup: MuscleAbs, Equipment: "bodyweight", Difficulty: DifficultyBeginner},
	{ID: "builtin-hanging-leg-raise", Name: "Hanging Leg Raise", MuscleGroup: MuscleAbs, Equipment: "bodyweight", Difficulty: DifficultyAdvanced},
	{ID: "builtin-running", Name: "Running", MuscleGroup: MuscleCardio, Equipment: "bodyweight", Difficulty: DifficultyBeginner},
	{ID: "builtin-rowing-machine", Name: "Rowing Machine", MuscleGroup: MuscleCardio, Equipment: "machine", Difficulty: DifficultyBeginner},
	{ID: "builtin-kettlebell-swing", Name: "Kettlebell Swing", MuscleGroup: MuscleFullBody, Equipment: "kettlebell", Difficulty: DifficultyIntermediate},
	{ID: "builtin-burpee", Name: "Burpee", MuscleGroup: MuscleFullBody, Equipment: "bodyweight", Difficulty: DifficultyIntermediate},
}

// Catalog returns a copy of the built-in exercises.
func Catalog() []Exercise {
	return append([]Exercise(nil), builtinCatalog...)
}

// SeedCatalog inserts missing built-in exercises. Existing rows are left alone.
func SeedCatalog(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	entries := Catalog()
	for index := range entries {
		entries[index].CreatedAt = now.UTC()
		entries[index].UpdatedAt = now.UTC()
	}
	result := db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&entries)
	return result.RowsAffected, result.Error
}
