package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	_ "connectivity/cmd/gateway-service/docs"
	"connectivity/internal/auth"
	"connectivity/internal/config"
	"connectivity/internal/logger"
	"connectivity/pkg/logging"
)

var (
	configFile string
)

// @title           Connectivity Gateway API
// @version         1.0
// @description     Accepts affiliation and document authentication requests, serves their outcomes and checks citizen eligibility

// @contact.name   Connectivity Team

// @host      localhost:8080
// @BasePath  /api/v1

// @schemes   http https

// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization

func main() {
	rootCmd := &cobra.Command{
		Use:   "gateway-service",
		Short: "HTTP gateway for the connectivity pipeline",
		Long:  "Gateway Service enqueues verification requests and serves their outcomes over REST",
		RunE:  serveCmd().RunE,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config file (required)")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	earlyLog := logging.NewEarlyLog()

	path, err := config.ResolvePath(configFile)
	if err != nil {
		earlyLog.Error("No config file", "error", err)
		return nil, err
	}

	cfg, err := config.Load(path)
	if err != nil {
		earlyLog.Error("Failed to load config", "path", path, "error", err)
		return nil, err
	}
	return cfg, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the gateway service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			log, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
			if err != nil {
				logging.NewEarlyLog().Error("Failed to init logger", "error", err)
				return err
			}
			defer log.Sync()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			log.InfowCtx(ctx, "Starting Gateway Service")

			app := NewApp(cfg, log)
			if err := app.Initialize(ctx); err != nil {
				log.ErrorwCtx(ctx, "Failed to initialize application", "error", err)
				app.Shutdown(context.Background())
				return err
			}

			runErr := app.Run(ctx)
			if err := app.Shutdown(context.Background()); err != nil {
				log.ErrorwCtx(ctx, "Shutdown error", "error", err)
			}
			if runErr != nil {
				log.ErrorwCtx(ctx, "Gateway stopped with error", "error", runErr)
				return runErr
			}
			return nil
		},
	}
}

// tokenCmd mints a client-credentials token signed with the configured
// secret. Meant for local development.
func tokenCmd() *cobra.Command {
	var clientID, scope string

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for a client",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			tokens, err := auth.NewTokenService(cfg.Auth)
			if err != nil {
				return err
			}

			token, claims, err := tokens.Issue(clientID, scope)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "jti=%s expires_at=%s\n", claims.ID, claims.ExpiresAt.Time.UTC().Format("2006-01-02T15:04:05Z"))
			return nil
		},
	}

	cmd.Flags().StringVar(&clientID, "client-id", "", "Client the token is issued to (required)")
	cmd.Flags().StringVar(&scope, "scope", "", "Space separated scopes")
	cmd.MarkFlagRequired("client-id")
	return cmd
}
