package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/spf13/cobra"

	"github.com/livinlefevreloca/runsync/internal/config"
	"github.com/livinlefevreloca/runsync/internal/db"
	"github.com/livinlefevreloca/runsync/internal/orchestrator"
	"github.com/livinlefevreloca/runsync/internal/scheduler"
	"github.com/livinlefevreloca/runsync/internal/state"
	"github.com/livinlefevreloca/runsync/internal/upstream"
)

// loadConfig applies file, environment and flag settings in that order
func loadConfig(opts *rootOptions) (*config.Config, *slog.Logger, error) {
	cfg, err := config.LoadConfig(opts.configFile, opts.envFile)
	if err != nil {
		return nil, nil, err
	}
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}
	if opts.debug {
		cfg.Invoker.Debug = true
	}

	logger := newLogger(os.Stdout, cfg.Logging)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func setup(ctx context.Context, opts *rootOptions) (*app, error) {
	cfg, logger, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	return newApp(ctx, cfg, logger)
}

func jobFilter(cmd *cobra.Command, jobID int) *int {
	if !cmd.Flags().Changed("job") {
		return nil
	}
	return &jobID
}

// =============================================================================
// run
// =============================================================================

// masterEvent is the Lambda payload of the master entry point
type masterEvent struct {
	Job *struct {
		ID int `json:"id"`
	} `json:"job,omitempty"`
}

// masterResult is returned by the master Lambda
type masterResult struct {
	RunID      string `json:"run_id"`
	State      string `json:"state"`
	Jobs       int    `json:"jobs"`
	JobsFailed int    `json:"jobs_failed"`
	Records    int    `json:"records"`
}

func newMasterResult(s *orchestrator.Summary) masterResult {
	return masterResult{
		RunID:      s.RunID,
		State:      s.State,
		Jobs:       len(s.Jobs),
		JobsFailed: s.Failed(),
		Records:    s.Records(),
	}
}

func (e masterEvent) jobID() *int {
	if e.Job == nil {
		return nil
	}
	id := e.Job.ID
	return &id
}

func newRunCmd(opts *rootOptions) *cobra.Command {
	var (
		jobID    int
		asLambda bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Sync every job (or one job) once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := setup(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			sink, stopStats, err := a.collector()
			if err != nil {
				return err
			}
			defer stopStats()

			o, err := a.orchestrator(ctx, sink)
			if err != nil {
				return err
			}

			if asLambda {
				lambda.Start(func(ctx context.Context, event masterEvent) (masterResult, error) {
					summary, err := o.Run(ctx, event.jobID())
					a.waitEvents()
					if err != nil {
						return masterResult{}, err
					}
					return newMasterResult(summary), nil
				})
				return nil
			}

			summary, err := o.Run(ctx, jobFilter(cmd, jobID))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), newMasterResult(summary))
		},
	}

	cmd.Flags().IntVar(&jobID, "job", 0, "sync only this job id")
	cmd.Flags().BoolVar(&asLambda, "lambda", false, "serve as the master Lambda handler")
	return cmd
}

// =============================================================================
// worker
// =============================================================================

func newWorkerCmd(opts *rootOptions) *cobra.Command {
	var payload string

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Serve the worker Lambda handler, or run one request with --payload",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := setup(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			h, err := a.handler()
			if err != nil {
				return err
			}

			if payload != "" {
				out, err := h.HandlePayload(ctx, []byte(payload))
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
				return err
			}

			lambda.Start(h.HandleLambda)
			return nil
		},
	}

	cmd.Flags().StringVar(&payload, "payload", "", "handle this JSON request once and print the response")
	return cmd
}

// =============================================================================
// serve
// =============================================================================

func newServeCmd(opts *rootOptions) *cobra.Command {
	var (
		schedule string
		jobID    int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run orchestration repeatedly on a cron schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, logger, err := loadConfig(opts)
			if err != nil {
				return err
			}
			if schedule != "" {
				cfg.Schedule.Cron = schedule
			}

			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			sink, stopStats, err := a.collector()
			if err != nil {
				return err
			}
			defer stopStats()

			o, err := a.orchestrator(ctx, sink)
			if err != nil {
				return err
			}

			s, err := scheduler.New(cfg.Schedule, o, jobFilter(cmd, jobID), logger)
			if err != nil {
				return err
			}
			return s.Serve(ctx)
		},
	}

	cmd.Flags().StringVar(&schedule, "schedule", "", "cron expression, overrides schedule.cron")
	cmd.Flags().IntVar(&jobID, "job", 0, "sync only this job id")
	return cmd
}

// =============================================================================
// migrate
// =============================================================================

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(opts)
			if err != nil {
				return err
			}
			if !cfg.Database.Enabled() {
				return fmt.Errorf("no database configured")
			}

			dbCfg := cfg.Database
			dbCfg.SkipMigrations = false
			database, err := db.OpenWithConfig(dbCfg)
			if err != nil {
				return fmt.Errorf("failed to migrate database: %w", err)
			}
			defer database.Close()

			version, err := database.CurrentVersion()
			if err != nil {
				return fmt.Errorf("failed to get schema version: %w", err)
			}
			logger.Info("database schema ready", "version", version)
			return nil
		},
	}
}

// =============================================================================
// state
// =============================================================================

// stateReport is printed by the state command
type stateReport struct {
	State *state.JobState `json:"state"`
	Steps []db.SyncStep   `json:"steps,omitempty"`
}

func newStateCmd(opts *rootOptions) *cobra.Command {
	var (
		jobID     int
		name      string
		partition string
	)

	cmd := &cobra.Command{
		Use:   "state",
		Short: "Print a job's sync state and step ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := setup(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if partition != "" {
				if _, err := upstream.ParsePartition(partition); err != nil {
					return err
				}
			}

			job := upstream.Job{ID: jobID, Name: name}
			st, err := state.NewStore(a.objects, a.logger).Get(ctx, job)
			if err != nil {
				return fmt.Errorf("failed to read state for job %d: %w", jobID, err)
			}

			report := stateReport{State: st}
			if a.database != nil {
				steps, err := a.database.GetSyncSteps(ctx, jobID, partition)
				if err != nil {
					return fmt.Errorf("failed to read step ledger: %w", err)
				}
				report.Steps = steps
			}
			return printJSON(cmd.OutOrStdout(), report)
		},
	}

	cmd.Flags().IntVar(&jobID, "job", 0, "job id")
	cmd.Flags().StringVar(&name, "name", "", "job name")
	cmd.Flags().StringVar(&partition, "partition", "", "limit the ledger to success or error")
	_ = cmd.MarkFlagRequired("job")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
