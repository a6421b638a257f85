package exercises

import "time"

// MuscleGroup is the primary muscle group an exercise trains.
type MuscleGroup string

const (
	MuscleChest     MuscleGroup = "chest"
	MuscleBack      MuscleGroup = "back"
	MuscleShoulders MuscleGroup = "shoulders"
	MuscleBiceps    MuscleGroup = "biceps"
	MuscleTriceps   MuscleGroup = "triceps"
	MuscleLegs      MuscleGroup = "legs"
	MuscleGlutes    MuscleGroup = "glutes"
	MuscleAbs       MuscleGroup = "abs"
	MuscleCardio    MuscleGroup = "cardio"
	MuscleFullBody  MuscleGroup = "full_body"
)

// AllMuscleGroups lists every muscle group in display order.
var AllMuscleGroups = []MuscleGroup{
	MuscleChest, MuscleBack, MuscleShoulders, MuscleBiceps, MuscleTriceps,
	MuscleLegs, MuscleGlutes, MuscleAbs, MuscleCardio, MuscleFullBody,
}

// Valid reports whether g is a known muscle group.
func (g MuscleGroup) Valid() bool {
	for _, known := range AllMuscleGroups {
		if g == known {
			return true
		}
	}
	return false
}

// IconKey is the client asset key for g.
func (g MuscleGroup) IconKey() string {
	return "icon-" + string(g)
}

// Difficulty grades how demanding an exercise is.
type Difficulty string

const (
	DifficultyBeginner     Difficulty = "beginner"
	DifficultyIntermediate Difficulty = "intermediate"
	DifficultyAdvanced     Difficulty = "advanced"
)

// Valid reports whether d is a known difficulty.
func (d Difficulty) Valid() bool {
	return d == DifficultyBeginner || d == DifficultyIntermediate || d == DifficultyAdvanced
}

// Equipment values accepted for exercises.
var Equipment = []string{"bodyweight", "barbell", "dumbbell", "machine", "cable", "kettlebell", "band", "other"}

// Exercise is a catalog entry. Built-in entries have an empty OwnerID.
type Exercise struct {
	ID          string      `gorm:"column:id;primaryKey;size:64" json:"id"`
	Name        string      `gorm:"column:name;size:120;not null" json:"name"`
	MuscleGroup MuscleGroup `gorm:"column:muscle_group;size:32;not null;index" json:"muscle_group"`
	Equipment   string      `gorm:"column:equipment;size:32;not null" json:"equipment"`
	Difficulty  Difficulty  `gorm:"column:difficulty;size:16;not null" json:"difficulty"`
	Description string      `gorm:"column:description;size:2000" json:"description"`
	OwnerID     string      `gorm:"column:owner_id;size:64;index" json:"owner_id,omitempty"`
	CreatedAt   time.Time   `gorm:"column:created_at" json:"created_at"`
	UpdatedAt   time.Time   `gorm:"column:updated_at" json:"updated_at"`
}

// TableName exposes the table backing exercises.
func (Exercise) TableName() string {
	return "exercises"
}

// BuiltIn reports whether e belongs to the shared catalog.
func (e Exercise) BuiltIn() bool {
	return e.OwnerID == ""
}

// VisibleTo reports whether userID may read e.
func (e Exercise) VisibleTo(userID string) bool {
	return e.BuiltIn() || e.OwnerID == userID
}

// Input is the writable part of an exercise.
type Input struct {
	Name        string `json:"name"`
	MuscleGroup string `json:"muscle_group"`
	Equipment   string `json:"equipment"`
	Difficulty  string `json:"difficulty"`
	Description string `json:"description"`
}

// Filter narrows List results. Empty fields match everything.
type Filter struct {
	Search      string
	MuscleGroup string
	Equipment   string
	Difficulty  string
	OwnedOnly   bool
}

// MuscleGroupInfo pairs a muscle group with its icon key.
type MuscleGroupInfo struct {
	Key     MuscleGroup `json:"key"`
	IconKey string      `json:"icon_key"`
}
