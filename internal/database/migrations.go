package database

import (
	"errors"
	"time"

	"github.com/fitlog/backend/internal/diary"
	"github.com/fitlog/backend/internal/nutrition"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationBackfillMealTotals = "2024-06-01_backfill_meal_totals"
	migrationLowercaseHandles   = "2024-07-15_lowercase_user_handles"
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationBackfillMealTotals, apply: backfillMealTotals},
		{name: migrationLowercaseHandles, apply: lowercaseUserHandles},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// backfillMealTotals fills totals for meal rows written before totals were stored.
func backfillMealTotals(db *gorm.DB) error {
	var entries []diary.Entry
	err := db.Where("kind = ? AND kcal = 0 AND quantity_g > 0 AND kcal_100g > 0", diary.KindMeal).Find(&entries).Error
	if err != nil {
		return err
	}
	for _, entry := range entries {
		totals := nutrition.Portion(entry.Label(), entry.QuantityG)
		err := db.Model(&diary.Entry{}).Where("id = ?", entry.ID).Updates(map[string]interface{}{
			"kcal":      totals.Kcal,
			"protein_g": totals.ProteinG,
			"lipid_g":   totals.LipidG,
			"carbs_g":   totals.CarbsG,
		}).Error
		if err != nil {
			return err
		}
	}
	return nil
}

func lowercaseUserHandles(db *gorm.DB) error {
	return db.Exec("UPDATE users SET email = LOWER(email), username = LOWER(username) WHERE email <> LOWER(email) OR username <> LOWER(username)").Error
}
