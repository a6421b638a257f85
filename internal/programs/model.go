package programs

import (
	"time"

	"gorm.io/datatypes"
)

// Program is a reusable workout template owned by one user.
type Program struct {
	ID           string                      `gorm:"column:id;primaryKey;size:64" json:"id"`
	OwnerID      string                      `gorm:"column:owner_id;size:64;not null;index" json:"owner_id"`
	Name         string                      `gorm:"column:name;size:120;not null" json:"name"`
	Description  string                      `gorm:"column:description;size:2000" json:"description"`
	MuscleGroups datatypes.JSONSlice[string] `gorm:"column:muscle_groups" json:"muscle_groups"`
	Exercises    []ProgramExercise           `gorm:"foreignKey:ProgramID;references:ID;constraint:OnDelete:CASCADE" json:"exercises"`
	CreatedAt    time.Time                   `gorm:"column:created_at" json:"created_at"`
	UpdatedAt    time.Time                   `gorm:"column:updated_at" json:"updated_at"`
}

// TableName exposes the table backing programs.
func (Program) TableName() string {
	return "programs"
}

// ProgramExercise is one prescribed exercise at a position in a program.
type ProgramExercise struct {
	ProgramID    string `gorm:"column:program_id;primaryKey;size:64" json:"-"`
	Position     int    `gorm:"column:position;primaryKey;autoIncrement:false" json:"position"`
	ExerciseID   string `gorm:"column:exercise_id;size:64;not null" json:"exercise_id"`
	ExerciseName string `gorm:"column:exercise_name;size:120" json:"exercise_name"`
	Sets         int    `gorm:"column:sets;not null" json:"sets"`
	Reps         int    `gorm:"column:reps;not null" json:"reps"`
	Notes        string `gorm:"column:notes;size:500" json:"notes,omitempty"`
}

// TableName exposes the table backing program exercises.
func (ProgramExercise) TableName() string {
	return "program_exercises"
}

// Input is the writable part of a program.
type Input struct {
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	MuscleGroups []string        `json:"muscle_groups"`
	Exercises    []ExerciseInput `json:"exercises"`
}

// ExerciseInput prescribes one exercise. Order in Input.Exercises decides the position.
type ExerciseInput struct {
	ExerciseID string `json:"exercise_id"`
	Sets       int    `json:"sets"`
	Reps       int    `json:"reps"`
	Notes      string `json:"notes"`
}
