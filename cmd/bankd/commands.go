package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarkoPoloResearchLab/bankledger/internal/app"
	"github.com/MarkoPoloResearchLab/bankledger/internal/report"
	"github.com/MarkoPoloResearchLab/bankledger/pkg/ledger"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const stdoutPath = "-"

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "bankd",
		Short:         "Bank account ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			envFile, err := cmd.Flags().GetString(flagEnvFile)
			if err != nil {
				return err
			}
			return loadEnvFile(envFile)
		},
	}

	flags := cmd.PersistentFlags()
	flags.String(flagEnvFile, defaultEnvFile, "optional .env file loaded before configuration")
	flags.String(flagBackend, app.BackendFlatFile, "storage backend: flatfile, sql or pgx")
	flags.String(flagDataDir, "data", "directory for flat-file storage")
	flags.String(flagDatabaseURL, "", "database url (postgres://, mysql://, sqlite:// or a sqlite path)")
	flags.String(flagLogLevel, "info", "log level (debug, info, warn, error)")
	flags.String(flagAMQPURL, "", "RabbitMQ url for audit events; disabled when empty")
	flags.String(flagAMQPExchange, "", "topic exchange for audit events")

	cmd.AddCommand(newServeCommand(), newInterestCommand(), newSummaryCommand(), newStatementCommand())
	return cmd
}

func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			gin.SetMode(gin.ReleaseMode)
			return withApp(ctx, cmd, serveFlags, func(ctx context.Context, application *app.App) error {
				return application.Serve(ctx)
			})
		},
	}
	cmd.Flags().String(flagListenAddr, ":8080", "HTTP listen address")
	cmd.Flags().String(flagAllowedOrigins, "", "comma-separated list of allowed CORS origins")
	cmd.Flags().Duration(flagRequestTimeout, 5*time.Second, "per-request timeout")
	cmd.Flags().String(flagJWTSigningKey, "", "HMAC key for session tokens (required)")
	cmd.Flags().String(flagJWTIssuer, "bankd", "session token issuer")
	cmd.Flags().Duration(flagSessionTTL, 15*time.Minute, "session token lifetime")
	cmd.Flags().String(flagAdminSecretHash, "", "bcrypt hash of the admin secret; admin routes are disabled when empty")
	cmd.Flags().String(flagInterestSchedule, "", "cron schedule for interest accrual, e.g. @monthly")
	cmd.Flags().String(flagInterestRate, "", "percentage applied by the scheduled accrual")
	return cmd
}

func newInterestCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "interest",
		Short: "Apply one period of interest to every savings account",
		RunE: func(cmd *cobra.Command, args []string) error {
			rawRate, err := cmd.Flags().GetString(flagRate)
			if err != nil {
				return err
			}
			rate, err := ledger.ParseInterestRate(rawRate)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), cmd, nil, func(ctx context.Context, application *app.App) error {
				credited, err := application.Service.ApplyInterest(ctx, rate)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Interest applied at %s%% to %d savings account(s)\n", rate, credited)
				return nil
			})
		},
	}
	cmd.Flags().String(flagRate, "", "interest percentage, e.g. 2.5 (required)")
	_ = cmd.MarkFlagRequired(flagRate)
	return cmd
}

func newSummaryCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Print account counts and balances",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), cmd, nil, func(ctx context.Context, application *app.App) error {
				writeSummary(cmd.OutOrStdout(), application.View.Summary())
				return nil
			})
		},
	}
}

func writeSummary(writer io.Writer, summary report.Summary) {
	fmt.Fprintf(writer, "Accounts: %d\n", summary.AccountCount)
	fmt.Fprintf(writer, "Total balance: %s\n", summary.TotalBalanceCents)
	for _, total := range summary.Categories {
		fmt.Fprintf(writer, "  %-8s %4d  %s\n", total.Category, total.AccountCount, total.BalanceCents)
	}
}

func newStatementCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "statement",
		Short: "Export one account's history",
		RunE: func(cmd *cobra.Command, args []string) error {
			rawAccount, _ := cmd.Flags().GetString(flagAccount)
			rawFormat, _ := cmd.Flags().GetString(flagFormat)
			outPath, _ := cmd.Flags().GetString(flagOut)
			accountID, err := ledger.NewAccountID(rawAccount)
			if err != nil {
				return err
			}
			format, err := report.ParseFormat(rawFormat)
			if err != nil {
				return err
			}
			if outPath == "" {
				outPath = format.FileName(accountID)
			}
			return withApp(cmd.Context(), cmd, nil, func(ctx context.Context, application *app.App) error {
				return exportStatement(ctx, cmd.OutOrStdout(), application.View, accountID, format, outPath)
			})
		},
	}
	cmd.Flags().String(flagAccount, "", "10-digit account id (required)")
	cmd.Flags().String(flagFormat, string(report.FormatCSV), "csv, pdf or xlsx")
	cmd.Flags().String(flagOut, "", "output path; - writes to stdout")
	_ = cmd.MarkFlagRequired(flagAccount)
	return cmd
}

func exportStatement(ctx context.Context, stdout io.Writer, view *report.View, accountID ledger.AccountID, format report.Format, outPath string) error {
	if outPath == stdoutPath {
		return view.WriteStatement(ctx, stdout, accountID, format)
	}
	file, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create statement: %w", err)
	}
	writeErr := view.WriteStatement(ctx, file, accountID, format)
	closeErr := file.Close()
	if writeErr != nil {
		_ = os.Remove(outPath)
		return writeErr
	}
	if closeErr != nil {
		return closeErr
	}
	fmt.Fprintf(stdout, "Statement written to %s\n", outPath)
	return nil
}

// withApp loads configuration, builds the logger and the ledger, runs fn, and
// closes everything afterwards.
func withApp(ctx context.Context, cmd *cobra.Command, extraFlags []string, fn func(ctx context.Context, application *app.App) error) error {
	cfg, err := loadConfig(cmd, append(append([]string{}, persistentFlags...), extraFlags...))
	if err != nil {
		return err
	}
	logger, err := app.NewLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := application.Close(); closeErr != nil {
			logger.Warn("close failed", zap.Error(closeErr))
		}
	}()
	return fn(ctx, application)
}
