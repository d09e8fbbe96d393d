package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/portfolio/internal/auth"
	"github.com/MarcoPoloResearchLab/portfolio/internal/config"
	"github.com/MarcoPoloResearchLab/portfolio/internal/database"
	"github.com/MarcoPoloResearchLab/portfolio/internal/logging"
	"github.com/MarcoPoloResearchLab/portfolio/internal/resumes"
	"github.com/MarcoPoloResearchLab/portfolio/internal/server"
	"github.com/MarcoPoloResearchLab/portfolio/internal/uploads"
	"github.com/MarcoPoloResearchLab/portfolio/internal/users"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "portfolio-api",
		Short: "Portfolio backend service",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)
	rootCmd.AddCommand(newSeedAdminCommand(), newRecomputeCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("signing-secret", "", "Session signing secret (overrides env)")
	cmd.PersistentFlags().Int("session-ttl-minutes", defaults.GetInt("auth.session_ttl_minutes"), "Session lifetime in minutes")
	cmd.PersistentFlags().String("uploads-backend", defaults.GetString("uploads.backend"), "Resume file storage backend (local, s3)")
	cmd.PersistentFlags().String("uploads-dir", defaults.GetString("uploads.dir"), "Directory for locally stored resume files")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
	bindFlag(cmd, "auth.session_ttl_minutes", "session-ttl-minutes")
	bindFlag(cmd, "uploads.backend", "uploads-backend")
	bindFlag(cmd, "uploads.dir", "uploads-dir")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
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

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, closeDB, err := openDatabase(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	defer closeDB()

	tokenIssuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		TokenTTL:      appConfig.SessionTTL,
	})
	if err != nil {
		return err
	}

	sessionValidator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		CookieName:    appConfig.CookieName,
	})
	if err != nil {
		return err
	}

	accounts, err := users.NewService(users.ServiceConfig{Database: db})
	if err != nil {
		return err
	}

	resumeService, err := resumes.NewService(resumes.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: resumes.NewUUIDProvider(),
		Authorizer: auth.NewAdminAuthorizer(),
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	store, filesDir, err := buildBlobStore(ctx, appConfig)
	if err != nil {
		return err
	}
	uploadService, err := uploads.NewService(uploads.ServiceConfig{
		Store:    store,
		MaxBytes: appConfig.Uploads.MaxBytes,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		SessionValidator: sessionValidator,
		TokenIssuer:      tokenIssuer,
		Accounts:         accounts,
		Resumes:          resumeService,
		Uploads:          uploadService,
		FilesDir:         filesDir,
		FilesPrefix:      appConfig.Uploads.PublicPrefix,
		Realtime:         server.NewRealtimeDispatcher(),
		AllowedOrigins:   appConfig.AllowedOrigins,
		CookieSecure:     appConfig.CookieSecure,
		Logger:           logger,
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
		logger.Info("server starting",
			zap.String("address", appConfig.HTTPAddress),
			zap.String("uploads_backend", appConfig.Uploads.Backend))
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

// buildBlobStore returns the configured store and, for the local backend, the
// directory the router should serve.
func buildBlobStore(ctx context.Context, appConfig config.AppConfig) (uploads.BlobStore, string, error) {
	switch appConfig.Uploads.Backend {
	case config.UploadsBackendS3:
		store, err := uploads.NewS3Store(ctx, uploads.S3Config{
			Bucket:          appConfig.S3.Bucket,
			Region:          appConfig.S3.Region,
			Prefix:          appConfig.S3.Prefix,
			Endpoint:        appConfig.S3.Endpoint,
			PublicBaseURL:   appConfig.S3.PublicBaseURL,
			AccessKeyID:     appConfig.S3.AccessKeyID,
			SecretAccessKey: appConfig.S3.SecretAccessKey,
		})
		if err != nil {
			return nil, "", err
		}
		return store, "", nil
	default:
		store, err := uploads.NewLocalStore(appConfig.Uploads.Dir, appConfig.Uploads.PublicPrefix)
		if err != nil {
			return nil, "", err
		}
		return store, store.Dir(), nil
	}
}

func openDatabase(path string, logger *zap.Logger) (*gorm.DB, func(), error) {
	db, err := database.OpenSQLite(path, logger)
	if err != nil {
		return nil, nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, err
	}
	return db, func() { _ = sqlDB.Close() }, nil
}
