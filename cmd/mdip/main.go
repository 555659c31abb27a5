package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"mdip/config"
	"mdip/core/appbootstrap"
	"mdip/core/utils"

	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string

	cfg    *config.AppConfig
	logger *utils.Logger
)

var rootCmd = &cobra.Command{
	Use:           "mdip",
	Short:         "Multi-Domain Intelligence Platform",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		level := cfg.LogLevel
		if logLevel != "" {
			level = logLevel
		}
		logger, err = utils.NewLoggerWithLevel(level)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		rt, err := appbootstrap.Open(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer rt.Close()
		if password, created, err := rt.Auth.EnsureDefaultAdmin(ctx); err != nil {
			return err
		} else if created && cfg.Auth.DefaultAdminPassword == "" {
			fmt.Fprintf(cmd.ErrOrStderr(), "created admin account with password: %s\n", password)
		}
		srv, err := rt.NewServer()
		if err != nil {
			return err
		}
		return srv.Run(ctx)
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := appbootstrap.Open(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer rt.Close()
		fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("MDIP_CONFIG"), "path to config file (yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	rootCmd.AddCommand(serveCmd, migrateCmd, userCmd, seedCmd, backupCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}
