// Package nutrition holds the calorie and macro formulas used for daily targets.
package nutrition

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Sex selects the Mifflin-St Jeor constant.
type Sex string

const (
	SexMale   Sex = "male"
	SexFemale Sex = "female"
)

// ActivityLevel selects the TDEE multiplier.
type ActivityLevel string

const (
	ActivitySedentary  ActivityLevel = "sedentary"
	ActivityLight      ActivityLevel = "light"
	ActivityModerate   ActivityLevel = "moderate"
	ActivityActive     ActivityLevel = "active"
	ActivityVeryActive ActivityLevel = "very_active"
)

// Goal selects the calorie adjustment applied on top of TDEE.
type Goal string

const (
	GoalLose     Goal = "lose"
	GoalMaintain Goal = "maintain"
	GoalGain     Goal = "gain"
)

const (
	proteinGramsPerKg = 2.0
	lipidGramsPerKg   = 1.0
	kcalPerGramProt   = 4.0
	kcalPerGramCarb   = 4.0
	kcalPerGramLipid  = 9.0
	minimumCalories   = 1200
)

var activityFactors = map[ActivityLevel]float64{
	ActivitySedentary:  1.2,
	ActivityLight:      1.375,
	ActivityModerate:   1.55,
	ActivityActive:     1.725,
	ActivityVeryActive: 1.9,
}

var goalAdjustments = map[Goal]float64{
	GoalLose:     -500,
	GoalMaintain: 0,
	GoalGain:     300,
}

var (
	ErrUnknownSex           = errors.New("nutrition: unknown sex")
	ErrUnknownActivityLevel = errors.New("nutrition: unknown activity level")
	ErrUnknownGoal          = errors.New("nutrition: unknown goal")
	ErrInvalidMeasurement   = errors.New("nutrition: measurements must be positive")
)

// Valid reports whether s is a known sex.
func (s Sex) Valid() bool {
	return s == SexMale || s == SexFemale
}

// Valid reports whether level is a known activity level.
func (level ActivityLevel) Valid() bool {
	_, ok := activityFactors[level]
	return ok
}

// Factor returns the TDEE multiplier for level.
func (level ActivityLevel) Factor() (float64, error) {
	factor, ok := activityFactors[level]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownActivityLevel, level)
	}
	return factor, nil
}

// Valid reports whether goal is a known goal.
func (goal Goal) Valid() bool {
	_, ok := goalAdjustments[goal]
	return ok
}

// Adjustment returns the kcal delta applied for goal.
func (goal Goal) Adjustment() (float64, error) {
	adjustment, ok := goalAdjustments[goal]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownGoal, goal)
	}
	return adjustment, nil
}

// ProteinGoal returns the daily protein target in grams.
func ProteinGoal(weightKg float64) int {
	return roundInt(weightKg * proteinGramsPerKg)
}

// LipidGoal returns the daily fat target in grams.
func LipidGoal(weightKg float64) int {
	return roundInt(weightKg * lipidGramsPerKg)
}

// CarbGoal fills the calories left after protein and lipids with carbohydrates.
func CarbGoal(calories, proteinG, lipidG int) int {
	remaining := float64(calories) - kcalPerGramProt*float64(proteinG) - kcalPerGramLipid*float64(lipidG)
	if remaining <= 0 {
		return 0
	}
	return roundInt(remaining / kcalPerGramCarb)
}

// BMR is the Mifflin-St Jeor basal metabolic rate in kcal.
func BMR(sex Sex, weightKg, heightCm float64, age int) (float64, error) {
	if weightKg <= 0 || heightCm <= 0 || age <= 0 {
		return 0, ErrInvalidMeasurement
	}
	base := 10*weightKg + 6.25*heightCm - 5*float64(age)
	switch sex {
	case SexMale:
		return base + 5, nil
	case SexFemale:
		return base - 161, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownSex, sex)
	}
}

// Profile is the subset of a user profile the formulas need.
type Profile struct {
	Sex           Sex
	Age           int
	HeightCm      float64
	WeightKg      float64
	ActivityLevel ActivityLevel
	Goal          Goal
}

// Targets bundles the computed daily targets.
type Targets struct {
	BMR      int `json:"bmr_kcal"`
	TDEE     int `json:"tdee_kcal"`
	Calories int `json:"calories_kcal"`
	ProteinG int `json:"protein_g"`
	LipidG   int `json:"lipid_g"`
	CarbsG   int `json:"carbs_g"`
}

// CalorieTarget returns the daily calorie goal for profile.
func CalorieTarget(profile Profile) (int, error) {
	_, tdee, err := energy(profile)
	if err != nil {
		return 0, err
	}
	adjustment, err := profile.Goal.Adjustment()
	if err != nil {
		return 0, err
	}
	calories := roundInt(tdee + adjustment)
	if calories < minimumCalories {
		calories = minimumCalories
	}
	return calories, nil
}

// Compute derives every target for profile.
func Compute(profile Profile) (Targets, error) {
	bmr, tdee, err := energy(profile)
	if err != nil {
		return Targets{}, err
	}
	calories, err := CalorieTarget(profile)
	if err != nil {
		return Targets{}, err
	}
	protein := ProteinGoal(profile.WeightKg)
	lipid := LipidGoal(profile.WeightKg)
	return Targets{
		BMR:      roundInt(bmr),
		TDEE:     roundInt(tdee),
		Calories: calories,
		ProteinG: protein,
		LipidG:   lipid,
		CarbsG:   CarbGoal(calories, protein, lipid),
	}, nil
}

func energy(profile Profile) (float64, float64, error) {
	bmr, err := BMR(profile.Sex, profile.WeightKg, profile.HeightCm, profile.Age)
	if err != nil {
		return 0, 0, err
	}
	factor, err := profile.ActivityLevel.Factor()
	if err != nil {
		return 0, 0, err
	}
	return bmr, bmr * factor, nil
}

// AgeOn returns the age in whole years on the day of now for someone born on birthDate.
func AgeOn(birthDate, now time.Time) int {
	if birthDate.IsZero() || now.Before(birthDate) {
		return 0
	}
	age := now.Year() - birthDate.Year()
	if now.Month() < birthDate.Month() || (now.Month() == birthDate.Month() && now.Day() < birthDate.Day()) {
		age--
	}
	return age
}

// Per100g is a nutrition label normalised to 100 grams.
type Per100g struct {
	Kcal     float64 `json:"kcal_100g"`
	ProteinG float64 `json:"protein_100g"`
	LipidG   float64 `json:"lipid_100g"`
	CarbsG   float64 `json:"carbs_100g"`
}

// Macros is an absolute amount of energy and macronutrients.
type Macros struct {
	Kcal     float64 `json:"kcal"`
	ProteinG float64 `json:"protein_g"`
	LipidG   float64 `json:"lipid_g"`
	CarbsG   float64 `json:"carbs_g"`
}

// Portion scales a per-100g label to quantityG grams, rounded to one decimal.
func Portion(label Per100g, quantityG float64) Macros {
	if quantityG <= 0 {
		return Macros{}
	}
	scale := quantityG / 100
	return Macros{
		Kcal:     round1(label.Kcal * scale),
		ProteinG: round1(label.ProteinG * scale),
		LipidG:   round1(label.LipidG * scale),
		CarbsG:   round1(label.CarbsG * scale),
	}
}

// Add returns the element-wise sum of m and other, rounded to one decimal.
func (m Macros) Add(other Macros) Macros {
	return Macros{
		Kcal:     round1(m.Kcal + other.Kcal),
		ProteinG: round1(m.ProteinG + other.ProteinG),
		LipidG:   round1(m.LipidG + other.LipidG),
		CarbsG:   round1(m.CarbsG + other.CarbsG),
	}
}

func roundInt(value float64) int {
	return int(math.Round(value))
}

func round1(value float64) float64 {
	return math.Round(value*10) / 10
}
