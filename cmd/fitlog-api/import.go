package main

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/fitlog/backend/internal/database"
	"github.com/fitlog/backend/internal/firestoreimport"
	"github.com/fitlog/backend/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func newImportFirestoreCommand() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "import-firestore",
		Short: "Copy users, exercises, programs and diary entries from a legacy Firestore project",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Only database and Firestore settings apply; the signing secret is not needed here.
			configViper := viper.GetViper()
			projectID := strings.TrimSpace(configViper.GetString("firestore.project_id"))
			if projectID == "" {
				return errors.New("firestore.project_id is required")
			}

			logger, err := logging.NewLogger(configViper.GetString("log.level"), configViper.GetString("log.encoding"))
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			ctx := cmd.Context()
			db, err := database.Open(ctx, database.Config{
				Driver: strings.ToLower(strings.TrimSpace(configViper.GetString("database.driver"))),
				Path:   configViper.GetString("database.path"),
				DSN:    configViper.GetString("database.dsn"),
			}, logger)
			if err != nil {
				return err
			}
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			defer sqlDB.Close()

			importer, err := firestoreimport.NewImporter(firestoreimport.ImporterConfig{
				Database: db,
				Clock:    time.Now,
				Logger:   logger,
			})
			if err != nil {
				return err
			}
			report, err := importer.Run(ctx, firestoreimport.Options{ProjectID: projectID, DryRun: dryRun})
			if err != nil {
				return err
			}
			logger.Info("firestore import finished",
				zap.Bool("dry_run", report.DryRun),
				zap.Int("users", report.Users),
				zap.Int("skipped", report.SkippedTotal()))

			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")
			return encoder.Encode(report)
		},
	}
	cmd.Flags().String("project-id", "", "Legacy Firestore project id")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Read and map documents without writing")
	if err := viper.BindPFlag("firestore.project_id", cmd.Flags().Lookup("project-id")); err != nil {
		panic(err)
	}
	return cmd
}
