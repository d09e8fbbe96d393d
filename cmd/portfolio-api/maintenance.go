package main

import (
	"fmt"
	"time"

	"github.com/MarcoPoloResearchLab/portfolio/internal/auth"
	"github.com/MarcoPoloResearchLab/portfolio/internal/config"
	"github.com/MarcoPoloResearchLab/portfolio/internal/logging"
	"github.com/MarcoPoloResearchLab/portfolio/internal/resumes"
	"github.com/MarcoPoloResearchLab/portfolio/internal/users"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func newSeedAdminCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed-admin",
		Short: "Create or refresh the administrator account",
		RunE: func(cmd *cobra.Command, args []string) error {
			appConfig, err := config.LoadDatabase(viper.GetViper())
			if err != nil {
				return err
			}
			if appConfig.Admin.Email == "" || appConfig.Admin.Password == "" {
				return fmt.Errorf("admin.email and admin.password are required")
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

			accounts, err := users.NewService(users.ServiceConfig{Database: db})
			if err != nil {
				return err
			}
			account, err := accounts.EnsureAdmin(cmd.Context(), appConfig.Admin.Email, appConfig.Admin.DisplayName, appConfig.Admin.Password)
			if err != nil {
				return err
			}
			logger.Info("admin account ready", zap.String("email", account.Email))
			fmt.Fprintf(cmd.OutOrStdout(), "admin account ready: %s\n", account.Email)
			return nil
		},
	}
	cmd.Flags().String("email", "", "Administrator email")
	cmd.Flags().String("password", "", "Administrator password")
	cmd.Flags().String("display-name", "", "Administrator display name")
	bindLocalFlag(cmd, "admin.email", "email")
	bindLocalFlag(cmd, "admin.password", "password")
	bindLocalFlag(cmd, "admin.display_name", "display-name")
	return cmd
}

func newRecomputeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "recompute",
		Short: "Re-derive every resume version from its date rank",
		RunE: func(cmd *cobra.Command, args []string) error {
			appConfig, err := config.LoadDatabase(viper.GetViper())
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
			changed, err := resumeService.Recompute(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "recomputed resume versions: %d changed\n", changed)
			return nil
		},
	}
}

// bindLocalFlag binds a flag only when it was set, so an empty flag does not
// mask the environment value.
func bindLocalFlag(cmd *cobra.Command, key, flag string) {
	previous := cmd.PreRunE
	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		if previous != nil {
			if err := previous(cmd, args); err != nil {
				return err
			}
		}
		if f := cmd.Flags().Lookup(flag); f != nil && f.Changed {
			viper.Set(key, f.Value.String())
		}
		return nil
	}
}
