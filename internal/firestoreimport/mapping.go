package firestoreimport

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/fitlog/backend/internal/diary"
	"github.com/fitlog/backend/internal/exercises"
	"github.com/fitlog/backend/internal/nutrition"
	"github.com/fitlog/backend/internal/programs"
	"github.com/fitlog/backend/internal/users"
	"github.com/samber/lo"
)

const legacyIDPrefix = "fs-"

// Skip reasons counted in Report.Skipped.
const (
	skipMissingEmail    = "user_missing_email"
	skipUnknownKind     = "diary_unknown_kind"
	skipMissingDay      = "diary_missing_day"
	skipInvalidExercise = "exercise_invalid"
	skipEmptyProgram    = "program_empty"
)

var usernameStrip = regexp.MustCompile(`[^a-z0-9_.]`)

// Document is one legacy document with its data as decoded by Firestore.
type Document struct {
	ID   string
	Data map[string]interface{}
}

func legacyID(id string) string {
	return legacyIDPrefix + id
}

// InferKind classifies a legacy diary document by the fields it carries.
func InferKind(data map[string]interface{}) (diary.Kind, bool) {
	switch {
	case has(data, "sets"):
		return diary.KindExercise, true
	case has(data, "calories"), has(data, "foodName"):
		return diary.KindMeal, true
	case has(data, "weight"):
		return diary.KindWeight, true
	default:
		return "", false
	}
}

func mapUser(doc Document, now time.Time) (users.User, string, bool) {
	email := strings.ToLower(str(doc.Data, "email"))
	if email == "" || !strings.Contains(email, "@") {
		return users.User{}, skipMissingEmail, false
	}
	username := str(doc.Data, "username")
	if username == "" {
		username = email[:strings.IndexByte(email, '@')]
	}
	displayName := lo.CoalesceOrEmpty(str(doc.Data, "displayName"), str(doc.Data, "name"), username)
	user := users.User{
		ID:            legacyID(doc.ID),
		Email:         email,
		Username:      sanitizeUsername(username),
		DisplayName:   displayName,
		AvatarURL:     lo.CoalesceOrEmpty(str(doc.Data, "photoURL"), str(doc.Data, "avatarUrl")),
		Sex:           nutrition.Sex(strings.ToLower(lo.CoalesceOrEmpty(str(doc.Data, "sex"), str(doc.Data, "gender")))),
		BirthDate:     day(doc.Data, "birthDate"),
		HeightCm:      num(doc.Data, "height"),
		WeightKg:      num(doc.Data, "weight"),
		Goal:          nutrition.Goal(strings.ToLower(str(doc.Data, "goal"))),
		ActivityLevel: nutrition.ActivityLevel(enumKey(str(doc.Data, "activityLevel"))),
		CreatedAt:     timestamp(doc.Data, "createdAt", now),
		UpdatedAt:     now,
	}
	if !user.Sex.Valid() {
		user.Sex = ""
	}
	if !user.Goal.Valid() {
		user.Goal = ""
	}
	if !user.ActivityLevel.Valid() {
		user.ActivityLevel = ""
	}
	return user, "", true
}

func mapExercise(doc Document, now time.Time) (exercises.Exercise, string, bool) {
	name := str(doc.Data, "name")
	group := exercises.MuscleGroup(enumKey(str(doc.Data, "muscleGroup")))
	if name == "" || !group.Valid() {
		return exercises.Exercise{}, skipInvalidExercise, false
	}
	equipment := strings.ToLower(str(doc.Data, "equipment"))
	if !lo.Contains(exercises.Equipment, equipment) {
		equipment = "other"
	}
	difficulty := exercises.Difficulty(strings.ToLower(str(doc.Data, "difficulty")))
	if !difficulty.Valid() {
		difficulty = exercises.DifficultyBeginner
	}
	return exercises.Exercise{
		ID:          legacyID(doc.ID),
		Name:        name,
		MuscleGroup: group,
		Equipment:   equipment,
		Difficulty:  difficulty,
		Description: str(doc.Data, "description"),
		CreatedAt:   timestamp(doc.Data, "createdAt", now),
		UpdatedAt:   now,
	}, "", true
}

func mapProgram(doc Document, ownerID string, now time.Time) (programs.Program, string, bool) {
	program := programs.Program{
		ID:          legacyID(doc.ID),
		OwnerID:     ownerID,
		Name:        str(doc.Data, "name"),
		Description: str(doc.Data, "description"),
		CreatedAt:   timestamp(doc.Data, "createdAt", now),
		UpdatedAt:   now,
	}
	for _, raw := range list(doc.Data, "exercises") {
		item, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		exerciseID := str(item, "exerciseId")
		if exerciseID == "" {
			continue
		}
		program.Exercises = append(program.Exercises, programs.ProgramExercise{
			ProgramID:    program.ID,
			Position:     len(program.Exercises) + 1,
			ExerciseID:   legacyID(exerciseID),
			ExerciseName: lo.CoalesceOrEmpty(str(item, "exerciseName"), str(item, "name")),
			Sets:         int(num(item, "sets")),
			Reps:         int(num(item, "reps")),
			Notes:        str(item, "notes"),
		})
	}
	if program.Name == "" || len(program.Exercises) == 0 {
		return programs.Program{}, skipEmptyProgram, false
	}
	groups := lo.FilterMap(list(doc.Data, "muscleGroups"), func(raw interface{}, _ int) (string, bool) {
		value, ok := raw.(string)
		group := exercises.MuscleGroup(enumKey(value))
		return string(group), ok && group.Valid()
	})
	program.MuscleGroups = lo.Uniq(groups)
	return program, "", true
}

func mapDiaryEntry(doc Document, userID string, now time.Time) (diary.Entry, string, bool) {
	kind, ok := InferKind(doc.Data)
	if !ok {
		return diary.Entry{}, skipUnknownKind, false
	}
	createdAt := timestamp(doc.Data, "createdAt", now)
	entryDay := lo.CoalesceOrEmpty(day(doc.Data, "date"), day(doc.Data, "day"))
	if entryDay == "" && has(doc.Data, "createdAt") {
		entryDay = createdAt.Format(diary.DayLayout)
	}
	if entryDay == "" {
		return diary.Entry{}, skipMissingDay, false
	}
	entry := diary.Entry{
		ID:        legacyID(doc.ID),
		UserID:    userID,
		Day:       entryDay,
		Kind:      kind,
		Notes:     str(doc.Data, "notes"),
		CreatedAt: createdAt,
		UpdatedAt: now,
	}

	switch kind {
	case diary.KindExercise:
		entry.ExerciseID = str(doc.Data, "exerciseId")
		if entry.ExerciseID != "" {
			entry.ExerciseID = legacyID(entry.ExerciseID)
		}
		entry.ExerciseName = lo.CoalesceOrEmpty(str(doc.Data, "exerciseName"), str(doc.Data, "name"))
		entry.MuscleGroup = enumKey(str(doc.Data, "muscleGroup"))
		entry.Sets = lo.FilterMap(list(doc.Data, "sets"), func(raw interface{}, _ int) (diary.Set, bool) {
			item, ok := raw.(map[string]interface{})
			if !ok {
				return diary.Set{}, false
			}
			return diary.Set{Reps: int(num(item, "reps")), WeightKg: num(item, "weight")}, true
		})
	case diary.KindMeal:
		mealType := diary.MealType(strings.ToLower(str(doc.Data, "mealType")))
		if !mealType.Valid() {
			mealType = diary.MealSnack
		}
		quantity := num(doc.Data, "quantity")
		if quantity <= 0 {
			quantity = 100
		}
		totals := nutrition.Macros{
			Kcal:     num(doc.Data, "calories"),
			ProteinG: num(doc.Data, "proteins"),
			LipidG:   num(doc.Data, "lipids"),
			CarbsG:   num(doc.Data, "carbs"),
		}
		entry.MealType = mealType
		entry.FoodName = lo.CoalesceOrEmpty(str(doc.Data, "foodName"), "Imported meal")
		entry.Barcode = str(doc.Data, "barcode")
		entry.QuantityG = quantity
		entry.KcalPer100g = per100(totals.Kcal, quantity)
		entry.ProteinPer100g = per100(totals.ProteinG, quantity)
		entry.LipidPer100g = per100(totals.LipidG, quantity)
		entry.CarbsPer100g = per100(totals.CarbsG, quantity)
		entry.Kcal, entry.ProteinG, entry.LipidG, entry.CarbsG = totals.Kcal, totals.ProteinG, totals.LipidG, totals.CarbsG
	case diary.KindWeight:
		entry.WeightKg = num(doc.Data, "weight")
	}
	return entry, "", true
}

func sanitizeUsername(value string) string {
	username := usernameStrip.ReplaceAllString(strings.ToLower(strings.TrimSpace(value)), "")
	for len(username) < 3 {
		username += "_"
	}
	if len(username) > 28 {
		username = username[:28]
	}
	return username
}

func per100(total, quantity float64) float64 {
	return math.Round(total*1000/quantity) / 10
}

// enumKey turns "Very Active" or "fullBody" style labels into snake_case keys.
func enumKey(value string) string {
	var builder strings.Builder
	for index, r := range strings.TrimSpace(value) {
		switch {
		case r == ' ' || r == '-':
			builder.WriteByte('_')
		case r >= 'A' && r <= 'Z':
			if index > 0 && !strings.HasSuffix(builder.String(), "_") {
				builder.WriteByte('_')
			}
			builder.WriteRune(r + ('a' - 'A'))
		default:
			builder.WriteRune(r)
		}
	}
	return builder.String()
}

func has(data map[string]interface{}, key string) bool {
	value, ok := data[key]
	return ok && value != nil
}

func str(data map[string]interface{}, key string) string {
	switch value := data[key].(type) {
	case string:
		return strings.TrimSpace(value)
	case fmt.Stringer:
		return strings.TrimSpace(value.String())
	default:
		return ""
	}
}

func num(data map[string]interface{}, key string) float64 {
	switch value := data[key].(type) {
	case float64:
		return value
	case int64:
		return float64(value)
	case int:
		return float64(value)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return 0
		}
		return parsed
	default:
		return 0
	}
}

func list(data map[string]interface{}, key string) []interface{} {
	value, _ := data[key].([]interface{})
	return value
}

func timestamp(data map[string]interface{}, key string, fallback time.Time) time.Time {
	switch value := data[key].(type) {
	case time.Time:
		return value.UTC()
	case string:
		if parsed, err := time.Parse(time.RFC3339, value); err == nil {
			return parsed.UTC()
		}
	case int64:
		return time.UnixMilli(value).UTC()
	}
	return fallback.UTC()
}

func day(data map[string]interface{}, key string) string {
	switch value := data[key].(type) {
	case time.Time:
		return value.UTC().Format(diary.DayLayout)
	case string:
		value = strings.TrimSpace(value)
		if len(value) >= len(diary.DayLayout) {
			if parsed, err := time.Parse(diary.DayLayout, value[:len(diary.DayLayout)]); err == nil {
				return parsed.Format(diary.DayLayout)
			}
		}
	}
	return ""
}
