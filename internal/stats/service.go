// Package stats derives progress charts and records from diary entries.
package stats

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/fitlog/backend/internal/apperr"
	"github.com/fitlog/backend/internal/diary"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	opServiceNew      = "stats.service.new"
	opWeightHistory   = "stats.weight_history"
	opCalorieHistory  = "stats.calorie_history"
	opMuscleVolume    = "stats.muscle_group_volume"
	opPersonalRecords = "stats.personal_records"
	opStreak          = "stats.streak"
	maxRangeDays      = 366
	maxStreakLookback = 3650
)

// WeightPoint is the last weigh-in of a day.
type WeightPoint struct {
	Day      string  `json:"day"`
	WeightKg float64 `json:"weight_kg"`
}

// CaloriePoint is the energy consumed on a day.
type CaloriePoint struct {
	Day  string  `json:"day"`
	Kcal float64 `json:"kcal"`
}

// MuscleGroupStat totals the work done for one muscle group.
type MuscleGroupStat struct {
	MuscleGroup string  `json:"muscle_group"`
	Sets        int     `json:"sets"`
	VolumeKg    float64 `json:"volume_kg"`
}

// PersonalRecord is the best performance logged for one exercise.
type PersonalRecord struct {
	ExerciseID       string  `json:"exercise_id"`
	ExerciseName     string  `json:"exercise_name"`
	MaxWeightKg      float64 `json:"max_weight_kg"`
	MaxWeightDay     string  `json:"max_weight_day"`
	BestSetVolumeKg  float64 `json:"best_set_volume_kg"`
	BestSetVolumeDay string  `json:"best_set_volume_day"`
}

// Streak counts consecutive logged days.
type Streak struct {
	Days    int    `json:"days"`
	LastDay string `json:"last_day,omitempty"`
}

// Range is an inclusive span of days.
type Range struct {
	From time.Time
	To   time.Time
}

// ParseRange validates an inclusive YYYY-MM-DD range of at most a year.
func ParseRange(from, to string) (Range, error) {
	start, err := time.Parse(diary.DayLayout, from)
	if err != nil {
		return Range{}, errors.New("from must be YYYY-MM-DD")
	}
	end, err := time.Parse(diary.DayLayout, to)
	if err != nil {
		return Range{}, errors.New("to must be YYYY-MM-DD")
	}
	if start.After(end) {
		return Range{}, errors.New("from must not be after to")
	}
	if int(end.Sub(start).Hours()/24)+1 > maxRangeDays {
		return Range{}, errors.New("range must not exceed 366 days")
	}
	return Range{From: start, To: end}, nil
}

// Days lists every day in r.
func (r Range) Days() []string {
	days := make([]string, 0, int(r.To.Sub(r.From).Hours()/24)+1)
	for day := r.From; !day.After(r.To); day = day.AddDate(0, 0, 1) {
		days = append(days, day.Format(diary.DayLayout))
	}
	return days
}

// ServiceConfig describes the dependencies of the stats service.
type ServiceConfig struct {
	Database *gorm.DB
	Logger   *zap.Logger
}

// Service computes read-only aggregates over the diary.
type Service struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewService validates cfg and constructs a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, apperr.New(opServiceNew, "missing_database", errors.New("database handle is required"))
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: cfg.Database, logger: logger}, nil
}

// WeightHistory returns the last weigh-in of each day in the range, oldest first.
func (s *Service) WeightHistory(ctx context.Context, userID, from, to string) ([]WeightPoint, error) {
	entries, err := s.entriesInRange(ctx, opWeightHistory, userID, from, to, diary.KindWeight)
	if err != nil {
		return nil, err
	}
	latest := make(map[string]diary.Entry)
	for _, entry := range entries {
		latest[entry.Day] = entry
	}
	points := lo.MapToSlice(latest, func(day string, entry diary.Entry) WeightPoint {
		return WeightPoint{Day: day, WeightKg: entry.WeightKg}
	})
	sort.Slice(points, func(i, j int) bool { return points[i].Day < points[j].Day })
	return points, nil
}

// CalorieHistory returns consumed kcal for every day in the range, zero when nothing was logged.
func (s *Service) CalorieHistory(ctx context.Context, userID, from, to string) ([]CaloriePoint, error) {
	span, err := ParseRange(from, to)
	if err != nil {
		return nil, apperr.Invalid(opCalorieHistory, "invalid_range", err)
	}
	entries, err := s.entriesInRange(ctx, opCalorieHistory, userID, from, to, diary.KindMeal)
	if err != nil {
		return nil, err
	}
	byDay := lo.GroupBy(entries, func(entry diary.Entry) string { return entry.Day })
	return lo.Map(span.Days(), func(day string, _ int) CaloriePoint {
		kcal := lo.SumBy(byDay[day], func(entry diary.Entry) float64 { return entry.Kcal })
		return CaloriePoint{Day: day, Kcal: round1(kcal)}
	}), nil
}

// MuscleGroupVolume totals sets and volume per muscle group, largest volume first.
func (s *Service) MuscleGroupVolume(ctx context.Context, userID, from, to string) ([]MuscleGroupStat, error) {
	entries, err := s.entriesInRange(ctx, opMuscleVolume, userID, from, to, diary.KindExercise)
	if err != nil {
		return nil, err
	}
	byGroup := lo.GroupBy(entries, func(entry diary.Entry) string { return entry.MuscleGroup })
	stats := lo.MapToSlice(byGroup, func(group string, grouped []diary.Entry) MuscleGroupStat {
		return MuscleGroupStat{
			MuscleGroup: group,
			Sets:        lo.SumBy(grouped, func(entry diary.Entry) int { return len(entry.Sets) }),
			VolumeKg:    round1(lo.SumBy(grouped, func(entry diary.Entry) float64 { return entry.Volume() })),
		}
	})
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].VolumeKg != stats[j].VolumeKg {
			return stats[i].VolumeKg > stats[j].VolumeKg
		}
		return stats[i].MuscleGroup < stats[j].MuscleGroup
	})
	return stats, nil
}

// PersonalRecords returns the heaviest set and the best single-set volume per exercise, sorted by exercise name.
func (s *Service) PersonalRecords(ctx context.Context, userID string) ([]PersonalRecord, error) {
	var entries []diary.Entry
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND kind = ?", userID, diary.KindExercise).
		Order("day ASC").Order("created_at ASC").Order("id ASC").
		Find(&entries).Error
	if err != nil {
		s.logError(opPersonalRecords, "entry_select_failed", err, zap.String("user_id", userID))
		return nil, apperr.New(opPersonalRecords, "entry_select_failed", err)
	}

	records := make(map[string]*PersonalRecord)
	for _, entry := range entries {
		record, ok := records[entry.ExerciseID]
		if !ok {
			record = &PersonalRecord{ExerciseID: entry.ExerciseID, ExerciseName: entry.ExerciseName}
			records[entry.ExerciseID] = record
		}
		for _, set := range entry.Sets {
			if set.WeightKg > record.MaxWeightKg {
				record.MaxWeightKg = set.WeightKg
				record.MaxWeightDay = entry.Day
			}
			if volume := set.Volume(); volume > record.BestSetVolumeKg {
				record.BestSetVolumeKg = volume
				record.BestSetVolumeDay = entry.Day
			}
		}
	}
	result := lo.MapToSlice(records, func(_ string, record *PersonalRecord) PersonalRecord { return *record })
	sort.Slice(result, func(i, j int) bool {
		if result[i].ExerciseName != result[j].ExerciseName {
			return result[i].ExerciseName < result[j].ExerciseName
		}
		return result[i].ExerciseID < result[j].ExerciseID
	})
	return result, nil
}

// Streak counts consecutive days with at least one entry, ending today or yesterday.
func (s *Service) Streak(ctx context.Context, userID, today string) (Streak, error) {
	current, err := time.Parse(diary.DayLayout, today)
	if err != nil {
		return Streak{}, apperr.Invalid(opStreak, "invalid_day", err)
	}
	earliest := current.AddDate(0, 0, -maxStreakLookback).Format(diary.DayLayout)

	var days []string
	err = s.db.WithContext(ctx).Model(&diary.Entry{}).
		Where("user_id = ? AND day <= ? AND day >= ?", userID, today, earliest).
		Distinct("day").
		Order("day DESC").
		Pluck("day", &days).Error
	if err != nil {
		s.logError(opStreak, "entry_select_failed", err, zap.String("user_id", userID))
		return Streak{}, apperr.New(opStreak, "entry_select_failed", err)
	}
	return CountStreak(days, current), nil
}

// CountStreak counts the run of consecutive days in descendingDays that ends on today or the day before.
func CountStreak(descendingDays []string, today time.Time) Streak {
	if len(descendingDays) == 0 {
		return Streak{}
	}
	expected := today
	if descendingDays[0] != today.Format(diary.DayLayout) {
		expected = today.AddDate(0, 0, -1)
	}
	streak := Streak{}
	for _, day := range descendingDays {
		if day != expected.Format(diary.DayLayout) {
			break
		}
		if streak.Days == 0 {
			streak.LastDay = day
		}
		streak.Days++
		expected = expected.AddDate(0, 0, -1)
	}
	return streak
}

func (s *Service) entriesInRange(ctx context.Context, operation, userID, from, to string, kind diary.Kind) ([]diary.Entry, error) {
	span, err := ParseRange(from, to)
	if err != nil {
		return nil, apperr.Invalid(operation, "invalid_range", err)
	}
	var entries []diary.Entry
	err = s.db.WithContext(ctx).
		Where("user_id = ? AND kind = ? AND day >= ? AND day <= ?", userID, kind,
			span.From.Format(diary.DayLayout), span.To.Format(diary.DayLayout)).
		Order("day ASC").Order("created_at ASC").Order("id ASC").
		Find(&entries).Error
	if err != nil {
		s.logError(operation, "entry_select_failed", err, zap.String("user_id", userID))
		return nil, apperr.New(operation, "entry_select_failed", err)
	}
	return entries, nil
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
	s.logger.Error("stats service error", attrs...)
}

func round1(value float64) float64 {
	return float64(int64(value*10+0.5)) / 10
}
