package nutrition

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMacroGoalsScaleWithWeight(t *testing.T) {
	assert.Equal(t, 160, ProteinGoal(80))
	assert.Equal(t, 80, LipidGoal(80))
	assert.Equal(t, 145, ProteinGoal(72.4))
	assert.Equal(t, 0, ProteinGoal(0))
}

func TestBMRUsesMifflinStJeor(t *testing.T) {
	male, err := BMR(SexMale, 80, 180, 30)
	require.NoError(t, err)
	assert.InDelta(t, 1780, male, 0.001)

	female, err := BMR(SexFemale, 60, 165, 25)
	require.NoError(t, err)
	assert.InDelta(t, 1345.25, female, 0.001)

	_, err = BMR("other", 80, 180, 30)
	assert.True(t, errors.Is(err, ErrUnknownSex))

	_, err = BMR(SexMale, 0, 180, 30)
	assert.True(t, errors.Is(err, ErrInvalidMeasurement))
}

func TestCalorieTargetAppliesActivityAndGoal(t *testing.T) {
	profile := Profile{Sex: SexMale, Age: 30, HeightCm: 180, WeightKg: 80, ActivityLevel: ActivitySedentary, Goal: GoalMaintain}
	calories, err := CalorieTarget(profile)
	require.NoError(t, err)
	assert.Equal(t, 2136, calories)

	profile.Goal = GoalLose
	calories, err = CalorieTarget(profile)
	require.NoError(t, err)
	assert.Equal(t, 1636, calories)

	profile.Goal = GoalGain
	profile.ActivityLevel = ActivityModerate
	calories, err = CalorieTarget(profile)
	require.NoError(t, err)
	assert.Equal(t, 3059, calories)
}

func TestCalorieTargetHasFloor(t *testing.T) {
	profile := Profile{Sex: SexFemale, Age: 80, HeightCm: 140, WeightKg: 38, ActivityLevel: ActivitySedentary, Goal: GoalLose}
	calories, err := CalorieTarget(profile)
	require.NoError(t, err)
	assert.Equal(t, 1200, calories)
}

func TestCalorieTargetRejectsUnknownEnums(t *testing.T) {
	profile := Profile{Sex: SexMale, Age: 30, HeightCm: 180, WeightKg: 80, ActivityLevel: "couch", Goal: GoalMaintain}
	_, err := CalorieTarget(profile)
	assert.True(t, errors.Is(err, ErrUnknownActivityLevel))

	profile.ActivityLevel = ActivityLight
	profile.Goal = "bulk"
	_, err = CalorieTarget(profile)
	assert.True(t, errors.Is(err, ErrUnknownGoal))
}

func TestCarbGoalFillsRemainingCalories(t *testing.T) {
	assert.Equal(t, 194, CarbGoal(2136, 160, 80))
	assert.Equal(t, 0, CarbGoal(1200, 200, 100))
}

func TestComputeBundlesTargets(t *testing.T) {
	targets, err := Compute(Profile{Sex: SexMale, Age: 30, HeightCm: 180, WeightKg: 80, ActivityLevel: ActivitySedentary, Goal: GoalMaintain})
	require.NoError(t, err)
	assert.Equal(t, Targets{BMR: 1780, TDEE: 2136, Calories: 2136, ProteinG: 160, LipidG: 80, CarbsG: 194}, targets)
}

func TestAgeOnCountsWholeYears(t *testing.T) {
	birth := time.Date(1994, time.June, 15, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 29, AgeOn(birth, time.Date(2024, time.June, 14, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 30, AgeOn(birth, time.Date(2024, time.June, 15, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 0, AgeOn(time.Time{}, time.Now()))
	assert.Equal(t, 0, AgeOn(birth, birth.AddDate(-1, 0, 0)))
}

func TestPortionsScalePerHundredGramsAndAdd(t *testing.T) {
	oats := Per100g{Kcal: 389, ProteinG: 16.9, LipidG: 6.9, CarbsG: 66.3}
	milk := Per100g{Kcal: 64, ProteinG: 3.3, LipidG: 3.6, CarbsG: 4.8}

	totals := Portion(oats, 40).Add(Portion(milk, 200))
	assert.InDelta(t, 283.6, totals.Kcal, 0.001)
	assert.InDelta(t, 13.4, totals.ProteinG, 0.001)
	assert.InDelta(t, 10.0, totals.LipidG, 0.001)
	assert.InDelta(t, 36.1, totals.CarbsG, 0.001)

	assert.Equal(t, Macros{}, Portion(oats, 0))
}
