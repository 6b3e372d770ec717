// Command triagectl classifies patient records offline and administers the
// triage stores.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/triage-risk-engine/internal/config"
	"github.com/triage-risk-engine/internal/database"
	"github.com/triage-risk-engine/internal/domain"
	"github.com/triage-risk-engine/internal/feedback"
	"github.com/triage-risk-engine/internal/rules"
	"github.com/triage-risk-engine/internal/service"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "triagectl",
		Short:        "Patient triage risk engine tooling",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().String("config", "", "path to a config file")

	rootCmd.AddCommand(classifyCmd())
	rootCmd.AddCommand(rulesCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(feedbackCmd())

	return rootCmd
}

func loadConfig(cmd *cobra.Command) (*config.Manager, *logrus.Logger, error) {
	path, _ := cmd.Flags().GetString("config")

	var (
		manager *config.Manager
		err     error
	)
	if path != "" {
		manager, err = config.NewManagerWithFile(path)
	} else {
		manager, err = config.NewManager()
	}
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}

	logger, err := config.NewLogger(manager.GetConfig().Logging)
	if err != nil {
		return nil, nil, err
	}
	logger.SetOutput(cmd.ErrOrStderr())
	return manager, logger, nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func classifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify [record.json]",
		Short: "Classify a patient record with the local rules (reads stdin without a file)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if len(args) == 1 {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}

			var record domain.PatientRecord
			if err := json.NewDecoder(in).Decode(&record); err != nil {
				return fmt.Errorf("decoding patient record: %w", err)
			}

			logger := logrus.New()
			logger.SetOutput(io.Discard)

			result, err := service.NewTriageService(logger, nil, 0).Classify(record)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), result)
		},
	}
}

func rulesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rules",
		Short: "Print the symptom, condition and department vocabulary",
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeJSON(cmd.OutOrStdout(), rules.Vocabulary())
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the assessment database schema",
	}
	cmd.PersistentFlags().String("dir", "", "migrations directory (defaults to database.migrations_path)")

	runner := func(cmd *cobra.Command) (*database.MigrationRunner, error) {
		manager, logger, err := loadConfig(cmd)
		if err != nil {
			return nil, err
		}
		dbConfig := *manager.GetDatabaseConfig()
		if dbConfig.Host == "" {
			return nil, fmt.Errorf("database.host is not configured")
		}

		dir, _ := cmd.Flags().GetString("dir")
		if dir == "" {
			dir = dbConfig.MigrationsPath
		}
		return database.NewMigrationRunner(database.URL(dbConfig), dir, logger)
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			mr, err := runner(cmd)
			if err != nil {
				return err
			}
			defer mr.Close()
			return mr.Up(cmd.Context())
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back every migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			mr, err := runner(cmd)
			if err != nil {
				return err
			}
			defer mr.Close()
			return mr.Down(cmd.Context())
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show the current schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			mr, err := runner(cmd)
			if err != nil {
				return err
			}
			defer mr.Close()

			version, dirty, err := mr.Version()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty: %t)\n", version, dirty)
			return nil
		},
	})

	return cmd
}

func feedbackCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feedback",
		Short: "Export or import clinician feedback",
	}

	openStore := func(cmd *cobra.Command) (feedback.Store, error) {
		manager, _, err := loadConfig(cmd)
		if err != nil {
			return nil, err
		}
		return feedback.NewStore(*manager.GetFeedbackConfig())
	}

	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Write all feedback as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			out := cmd.OutOrStdout()
			if path, _ := cmd.Flags().GetString("out"); path != "" {
				f, err := os.Create(path)
				if err != nil {
					return err
				}
				defer f.Close()
				out = f
			}
			return store.ExportJSON(cmd.Context(), out)
		},
	}
	exportCmd.Flags().String("out", "", "output file (defaults to stdout)")

	importCmd := &cobra.Command{
		Use:   "import <export.json>",
		Short: "Load feedback from an export, skipping sessions that already have feedback",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			imported, skipped, err := store.ImportJSON(cmd.Context(), f)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d, skipped %d\n", imported, skipped)
			return nil
		},
	}

	cmd.AddCommand(exportCmd, importCmd)
	return cmd
}
