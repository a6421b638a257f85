package main

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fitlog/backend/internal/auth"
	"github.com/fitlog/backend/internal/chat"
	"github.com/fitlog/backend/internal/config"
	"github.com/fitlog/backend/internal/database"
	"github.com/fitlog/backend/internal/diary"
	"github.com/fitlog/backend/internal/events"
	"github.com/fitlog/backend/internal/exercises"
	"github.com/fitlog/backend/internal/foods"
	"github.com/fitlog/backend/internal/ids"
	"github.com/fitlog/backend/internal/logging"
	"github.com/fitlog/backend/internal/media"
	"github.com/fitlog/backend/internal/programs"
	"github.com/fitlog/backend/internal/server"
	"github.com/fitlog/backend/internal/social"
	"github.com/fitlog/backend/internal/stats"
	"github.com/fitlog/backend/internal/users"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	tokenIssuer   = "fitlog-auth"
	tokenAudience = "fitlog-api"
)

var (
	cfgFile string
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		_, _ = os.Stderr.WriteString("failed to read .env: " + err.Error() + "\n")
	}

	rootCmd := &cobra.Command{
		Use:   "fitlog-api",
		Short: "FitLog fitness diary backend service",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)
	rootCmd.AddCommand(newImportFirestoreCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-driver", defaults.GetString("database.driver"), "Database driver (sqlite, postgres, mysql)")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("database-dsn", defaults.GetString("database.dsn"), "Postgres or MySQL DSN")
	cmd.PersistentFlags().String("google-client-id", defaults.GetString("google.client_id"), "Google OAuth client ID")
	cmd.PersistentFlags().String("google-jwks-url", defaults.GetString("google.jwks_url"), "Google JWKS URL")
	cmd.PersistentFlags().Int("token-ttl-minutes", defaults.GetInt("auth.token_ttl_minutes"), "Access token TTL in minutes")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("log-encoding", defaults.GetString("log.encoding"), "Log encoding (json, console)")
	cmd.PersistentFlags().String("signing-secret", "", "Access token signing secret (overrides env)")
	cmd.PersistentFlags().String("events-driver", defaults.GetString("events.driver"), "Domain event sink (log, kafka, sqs)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.driver", "database-driver")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "database.dsn", "database-dsn")
	bindFlag(cmd, "google.client_id", "google-client-id")
	bindFlag(cmd, "google.jwks_url", "google-jwks-url")
	bindFlag(cmd, "auth.token_ttl_minutes", "token-ttl-minutes")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "log.encoding", "log-encoding")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
	bindFlag(cmd, "events.driver", "events-driver")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.LogEncoding)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.Open(ctx, database.Config{
		Driver: appConfig.DatabaseDriver,
		Path:   appConfig.DatabasePath,
		DSN:    appConfig.DatabaseDSN,
	}, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	tokenManager, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		Issuer:        tokenIssuer,
		Audience:      tokenAudience,
		TokenTTL:      appConfig.TokenTTL,
	})
	if err != nil {
		return err
	}

	var googleVerifier server.GoogleVerifier
	if appConfig.GoogleClientID != "" {
		verifier, err := auth.NewGoogleVerifier(auth.GoogleVerifierConfig{
			Audience:       appConfig.GoogleClientID,
			JWKSURL:        appConfig.GoogleJWKSURL,
			AllowedIssuers: []string{"https://accounts.google.com", "accounts.google.com"},
			Logger:         logger,
		})
		if err != nil {
			return err
		}
		googleVerifier = verifier
	} else {
		logger.Info("google sign-in disabled", zap.String("reason", "google.client_id not set"))
	}

	publisher, closePublisher, err := events.NewPublisher(ctx, appConfig.Events, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := closePublisher(); err != nil {
			logger.Warn("event publisher close failed", zap.Error(err))
		}
	}()

	var mediaStore media.Store
	if appConfig.Media.Enabled() {
		store, err := media.NewS3Store(ctx, appConfig.Media)
		if err != nil {
			return err
		}
		mediaStore = store
	} else {
		logger.Info("avatar uploads disabled", zap.String("reason", "media.s3_bucket not set"))
	}

	idProvider := ids.NewUUIDProvider()
	realtime := server.NewRealtimeDispatcher()

	userService, err := users.NewService(users.ServiceConfig{
		Database:   db,
		IDProvider: idProvider,
		Clock:      time.Now,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	exerciseService, err := exercises.NewService(exercises.ServiceConfig{
		Database:   db,
		IDProvider: idProvider,
		Clock:      time.Now,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	diaryService, err := diary.NewService(diary.ServiceConfig{
		Database:   db,
		IDProvider: idProvider,
		Exercises:  exerciseService,
		Profiles:   userService,
		Publisher:  publisher,
		Clock:      time.Now,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	programService, err := programs.NewService(programs.ServiceConfig{
		Database:   db,
		IDProvider: idProvider,
		Exercises:  exerciseService,
		Diary:      diaryService,
		Clock:      time.Now,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	foodClient, err := foods.NewClient(foods.ClientConfig{
		BaseURL:   appConfig.FoodsBaseURL,
		UserAgent: appConfig.FoodsUserAgent,
		Timeout:   appConfig.FoodsTimeout,
	})
	if err != nil {
		return err
	}
	foodService, err := foods.NewService(foods.ServiceConfig{
		Database:   db,
		Remote:     foodClient,
		IDProvider: idProvider,
		Clock:      time.Now,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	statsService, err := stats.NewService(stats.ServiceConfig{Database: db, Logger: logger})
	if err != nil {
		return err
	}
	socialService, err := social.NewService(social.ServiceConfig{
		Database:   db,
		Users:      userService,
		IDProvider: idProvider,
		Publisher:  publisher,
		Notifier:   realtime,
		Clock:      time.Now,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	chatService, err := chat.NewService(chat.ServiceConfig{
		Database:   db,
		Friends:    socialService,
		IDProvider: idProvider,
		Publisher:  publisher,
		Notifier:   realtime,
		Clock:      time.Now,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		GoogleVerifier: googleVerifier,
		TokenManager:   tokenManager,
		Users:          userService,
		Exercises:      exerciseService,
		Programs:       programService,
		Diary:          diaryService,
		Foods:          foodService,
		Stats:          statsService,
		Social:         socialService,
		Chat:           chatService,
		Media:          mediaStore,
		Realtime:       realtime,
		Publisher:      publisher,
		LoginLimiter:   server.NewLoginLimiter(appConfig.LoginMax, appConfig.LoginWindow, time.Now),
		AllowedOrigins: appConfig.AllowedOrigins,
		Clock:          time.Now,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              appConfig.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
