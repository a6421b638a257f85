package diary

import (
	"time"

	"github.com/fitlog/backend/internal/nutrition"
	"gorm.io/datatypes"
)

// DayLayout is the format of Entry.Day.
const DayLayout = "2006-01-02"

// Kind discriminates the payload carried by an Entry.
type Kind string

const (
	KindExercise Kind = "exercise"
	KindMeal     Kind = "meal"
	KindWeight   Kind = "weight"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindExercise || k == KindMeal || k == KindWeight
}

// MealType names the meal a food entry belongs to.
type MealType string

const (
	MealBreakfast MealType = "breakfast"
	MealLunch     MealType = "lunch"
	MealDinner    MealType = "dinner"
	MealSnack     MealType = "snack"
)

// Valid reports whether m is a known meal type.
func (m MealType) Valid() bool {
	return m == MealBreakfast || m == MealLunch || m == MealDinner || m == MealSnack
}

// Set is one performed set of an exercise.
type Set struct {
	Reps     int     `json:"reps"`
	WeightKg float64 `json:"weight_kg"`
}

// Volume is reps times weight.
func (s Set) Volume() float64 {
	return float64(s.Reps) * s.WeightKg
}

// Entry is one diary record. Only the fields of its Kind are populated.
type Entry struct {
	ID     string `gorm:"column:id;primaryKey;size:64" json:"id"`
	UserID string `gorm:"column:user_id;size:64;not null;index:idx_diary_user_day,priority:1" json:"user_id"`
	Day    string `gorm:"column:day;size:10;not null;index:idx_diary_user_day,priority:2" json:"day"`
	Kind   Kind   `gorm:"column:kind;size:16;not null" json:"kind"`

	ExerciseID   string                   `gorm:"column:exercise_id;size:64" json:"exercise_id,omitempty"`
	ExerciseName string                   `gorm:"column:exercise_name;size:120" json:"exercise_name,omitempty"`
	MuscleGroup  string                   `gorm:"column:muscle_group;size:32" json:"muscle_group,omitempty"`
	Sets         datatypes.JSONSlice[Set] `gorm:"column:sets" json:"sets,omitempty"`
	Notes        string                   `gorm:"column:notes;size:2000" json:"notes,omitempty"`

	MealType       MealType `gorm:"column:meal_type;size:16" json:"meal_type,omitempty"`
	FoodName       string   `gorm:"column:food_name;size:200" json:"food_name,omitempty"`
	Barcode        string   `gorm:"column:barcode;size:14" json:"barcode,omitempty"`
	QuantityG      float64  `gorm:"column:quantity_g" json:"quantity_g,omitempty"`
	KcalPer100g    float64  `gorm:"column:kcal_100g" json:"kcal_100g,omitempty"`
	ProteinPer100g float64  `gorm:"column:protein_100g" json:"protein_100g,omitempty"`
	LipidPer100g   float64  `gorm:"column:lipid_100g" json:"lipid_100g,omitempty"`
	CarbsPer100g   float64  `gorm:"column:carbs_100g" json:"carbs_100g,omitempty"`
	Kcal           float64  `gorm:"column:kcal" json:"kcal,omitempty"`
	ProteinG       float64  `gorm:"column:protein_g" json:"protein_g,omitempty"`
	LipidG         float64  `gorm:"column:lipid_g" json:"lipid_g,omitempty"`
	CarbsG         float64  `gorm:"column:carbs_g" json:"carbs_g,omitempty"`

	WeightKg float64 `gorm:"column:weight_kg" json:"weight_kg,omitempty"`

	CreatedAt time.Time `gorm:"column:created_at;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

// TableName exposes the table backing diary entries.
func (Entry) TableName() string {
	return "diary_entries"
}

// Label returns the per-100g nutrition label of a meal entry.
func (e Entry) Label() nutrition.Per100g {
	return nutrition.Per100g{Kcal: e.KcalPer100g, ProteinG: e.ProteinPer100g, LipidG: e.LipidPer100g, CarbsG: e.CarbsPer100g}
}

// Macros returns the stored totals of a meal entry.
func (e Entry) Macros() nutrition.Macros {
	return nutrition.Macros{Kcal: e.Kcal, ProteinG: e.ProteinG, LipidG: e.LipidG, CarbsG: e.CarbsG}
}

// Volume sums reps times weight over the entry's sets.
func (e Entry) Volume() float64 {
	total := 0.0
	for _, set := range e.Sets {
		total += set.Volume()
	}
	return total
}

// EntryInput is the writable part of an entry.
type EntryInput struct {
	Day  string `json:"day"`
	Kind string `json:"kind"`

	ExerciseID string `json:"exercise_id,omitempty"`
	Sets       []Set  `json:"sets,omitempty"`
	Notes      string `json:"notes,omitempty"`

	MealType  string            `json:"meal_type,omitempty"`
	FoodName  string            `json:"food_name,omitempty"`
	Barcode   string            `json:"barcode,omitempty"`
	QuantityG float64           `json:"quantity_g,omitempty"`
	Per100g   nutrition.Per100g `json:"per_100g"`

	WeightKg float64 `json:"weight_kg,omitempty"`
}

// Query selects entries for List.
type Query struct {
	Day    string
	From   string
	To     string
	Kind   string
	Search string
	Cursor string
	Limit  int
}

// Page is one page of entries and the cursor of the next page, empty at the end.
type Page struct {
	Entries    []Entry `json:"entries"`
	NextCursor string  `json:"next_cursor,omitempty"`
}

// DaySummary aggregates a single day of the diary.
type DaySummary struct {
	Day            string             `json:"day"`
	Consumed       nutrition.Macros   `json:"consumed"`
	MealCount      int                `json:"meal_count"`
	ExerciseCount  int                `json:"exercise_count"`
	TotalSets      int                `json:"total_sets"`
	VolumeKg       float64            `json:"volume_kg"`
	LatestWeightKg *float64           `json:"latest_weight_kg,omitempty"`
	Targets        *nutrition.Targets `json:"targets,omitempty"`
	RemainingKcal  *int               `json:"remaining_kcal,omitempty"`
}
