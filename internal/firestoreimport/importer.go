// Package firestoreimport copies data from the legacy Firestore project into the relational schema.
package firestoreimport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fitlog/backend/internal/programs"
	"github.com/fitlog/backend/internal/users"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const maxUsernameTries = 50

var userImportColumns = []string{
	"email", "display_name", "avatar_url", "sex", "birth_date",
	"height_cm", "weight_kg", "goal", "activity_level", "updated_at",
}

// Options controls a single import run.
type Options struct {
	ProjectID string
	DryRun    bool
}

// Report counts what a run imported and skipped.
type Report struct {
	DryRun       bool           `json:"dry_run"`
	Users        int            `json:"users"`
	LinkedUsers  int            `json:"linked_users"`
	Exercises    int            `json:"exercises"`
	Programs     int            `json:"programs"`
	DiaryEntries int            `json:"diary_entries"`
	Skipped      map[string]int `json:"skipped"`
}

// SkippedTotal sums every skip reason.
func (r Report) SkippedTotal() int {
	total := 0
	for _, count := range r.Skipped {
		total += count
	}
	return total
}

// ImporterConfig describes the dependencies of an Importer.
type ImporterConfig struct {
	Database *gorm.DB
	// Source overrides the Firestore client opened from Options.ProjectID.
	Source Source
	Clock  func() time.Time
	Logger *zap.Logger
}

// Importer upserts legacy documents keyed on their Firestore ids, so runs are repeatable.
type Importer struct {
	db     *gorm.DB
	source Source
	clock  func() time.Time
	logger *zap.Logger
}

type importedUser struct {
	legacyID string
	userID   string
}

// NewImporter validates cfg and constructs an Importer.
func NewImporter(cfg ImporterConfig) (*Importer, error) {
	if cfg.Database == nil {
		return nil, errors.New("firestoreimport: database handle is required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Importer{db: cfg.Database, source: cfg.Source, clock: clock, logger: logger}, nil
}

// Run imports exercises, users and each user's programs and diary.
func (i *Importer) Run(ctx context.Context, opts Options) (Report, error) {
	source := i.source
	if source == nil {
		firestoreSource, err := NewFirestoreSource(ctx, opts.ProjectID)
		if err != nil {
			return Report{}, err
		}
		defer func() {
			if closeErr := firestoreSource.Close(); closeErr != nil {
				i.logger.Warn("firestore client close failed", zap.Error(closeErr))
			}
		}()
		source = firestoreSource
	}

	now := i.clock().UTC()
	report := Report{DryRun: opts.DryRun, Skipped: map[string]int{}}

	err := source.Each(ctx, "exercises", func(doc Document) error {
		exercise, reason, ok := mapExercise(doc, now)
		if !ok {
			report.Skipped[reason]++
			return nil
		}
		if !opts.DryRun {
			if err := i.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&exercise).Error; err != nil {
				return fmt.Errorf("firestoreimport: upsert exercise %s: %w", doc.ID, err)
			}
		}
		report.Exercises++
		return nil
	})
	if err != nil {
		return report, err
	}

	var imported []importedUser
	err = source.Each(ctx, "users", func(doc Document) error {
		user, reason, ok := mapUser(doc, now)
		if !ok {
			report.Skipped[reason]++
			return nil
		}
		userID, linked, err := i.upsertUser(ctx, user, opts.DryRun)
		if err != nil {
			return fmt.Errorf("firestoreimport: upsert user %s: %w", doc.ID, err)
		}
		if linked {
			report.LinkedUsers++
		} else {
			report.Users++
		}
		imported = append(imported, importedUser{legacyID: doc.ID, userID: userID})
		return nil
	})
	if err != nil {
		return report, err
	}

	for _, user := range imported {
		if err := i.importPrograms(ctx, source, user, now, opts.DryRun, &report); err != nil {
			return report, err
		}
		if err := i.importDiary(ctx, source, user, now, opts.DryRun, &report); err != nil {
			return report, err
		}
	}

	i.logger.Info("firestore import finished",
		zap.Bool("dry_run", report.DryRun),
		zap.Int("users", report.Users),
		zap.Int("linked_users", report.LinkedUsers),
		zap.Int("exercises", report.Exercises),
		zap.Int("programs", report.Programs),
		zap.Int("diary_entries", report.DiaryEntries),
		zap.Int("skipped", report.SkippedTotal()))
	return report, nil
}

func (i *Importer) importPrograms(ctx context.Context, source Source, user importedUser, now time.Time, dryRun bool, report *Report) error {
	return source.Each(ctx, "users/"+user.legacyID+"/programs", func(doc Document) error {
		program, reason, ok := mapProgram(doc, user.userID, now)
		if !ok {
			report.Skipped[reason]++
			return nil
		}
		if !dryRun {
			err := i.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
				items := program.Exercises
				program.Exercises = nil
				if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Omit(clause.Associations).Create(&program).Error; err != nil {
					return err
				}
				if err := tx.Where("program_id = ?", program.ID).Delete(&programs.ProgramExercise{}).Error; err != nil {
					return err
				}
				return tx.Create(&items).Error
			})
			if err != nil {
				return fmt.Errorf("firestoreimport: upsert program %s: %w", doc.ID, err)
			}
		}
		report.Programs++
		return nil
	})
}

func (i *Importer) importDiary(ctx context.Context, source Source, user importedUser, now time.Time, dryRun bool, report *Report) error {
	return source.Each(ctx, "users/"+user.legacyID+"/diary", func(doc Document) error {
		entry, reason, ok := mapDiaryEntry(doc, user.userID, now)
		if !ok {
			report.Skipped[reason]++
			return nil
		}
		if !dryRun {
			if err := i.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&entry).Error; err != nil {
				return fmt.Errorf("firestoreimport: upsert diary entry %s: %w", doc.ID, err)
			}
		}
		report.DiaryEntries++
		return nil
	})
}

// upsertUser writes user unless an account with the same email already exists,
// in which case the legacy data is attached to that account.
func (i *Importer) upsertUser(ctx context.Context, user users.User, dryRun bool) (string, bool, error) {
	var existing users.User
	err := i.db.WithContext(ctx).Select("id").Where("email = ?", user.Email).Take(&existing).Error
	switch {
	case err == nil && existing.ID != user.ID:
		return existing.ID, true, nil
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		return "", false, err
	}
	if dryRun {
		return user.ID, false, nil
	}
	err = i.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		username, err := availableUsername(tx, user.Username, user.ID)
		if err != nil {
			return err
		}
		user.Username = username
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns(userImportColumns),
		}).Create(&user).Error
	})
	if err != nil {
		return "", false, err
	}
	return user.ID, false, nil
}

func availableUsername(tx *gorm.DB, base, userID string) (string, error) {
	candidate := base
	for attempt := 2; attempt <= maxUsernameTries; attempt++ {
		var count int64
		if err := tx.Model(&users.User{}).Where("username = ? AND id <> ?", candidate, userID).Count(&count).Error; err != nil {
			return "", err
		}
		if count == 0 {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s%d", base, attempt)
	}
	return "", fmt.Errorf("firestoreimport: no free username for %q", base)
}
