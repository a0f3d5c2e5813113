package cmd

import (
	"context"
	"time"

	"groupage/service"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"
)

func newSweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Expire published announcements past their expiration date",
		Long: `Runs one expiration sweep: lists published announcements with a known
expiration date and moves those past it into the expired state.

Intended cadence is daily. Runs must not overlap; enable the Redis advisory
lock to reject a second concurrent run.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, store, locker, sugar, cleanup, err := initRuntime()
			if err != nil {
				return fail(err)
			}
			defer cleanup()

			opts := []service.SweeperOption{
				service.WithPacing(cfg.Sweep.PauseEvery, cfg.SweepPause()),
				service.WithDryRun(dryRun),
			}
			if locker != nil {
				opts = append(opts, service.WithLocker(locker))
			}
			sweeper := service.NewSweeperService(store, sugar, opts...)

			ctx, cancel := context.WithTimeout(cmd.Context(), runTimeout)
			defer cancel()

			s := startSpinner("Sweeping announcements...")
			summary, err := sweeper.Run(ctx, time.Now().UTC())
			stopSpinner(s)
			if err != nil {
				return fail(err)
			}

			if err := printSummary("Sweep summary", summary); err != nil {
				return fail(err)
			}
			if summary.Errors > 0 {
				warningColor.Printf("%d record(s) failed and stay eligible for the next run\n", summary.Errors)
			} else {
				successColor.Println("Sweep complete")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would expire without writing")
	return cmd
}

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Backfill expiration dates on historical records",
		Long: `Computes and persists expires_at for published records that predate the
expiration rule. Idempotent: records with expires_at already set are never
touched, so re-running is safe.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, store, _, sugar, cleanup, err := initRuntime()
			if err != nil {
				return fail(err)
			}
			defer cleanup()

			migrator := service.NewMigratorService(store, sugar,
				service.WithMigratorPacing(cfg.Sweep.PauseEvery, cfg.SweepPause()),
				service.WithMigratorDryRun(dryRun),
			)

			ctx, cancel := context.WithTimeout(cmd.Context(), runTimeout)
			defer cancel()

			s := startSpinner("Backfilling expiration dates...")
			summary, err := migrator.Run(ctx)
			stopSpinner(s)
			if err != nil {
				return fail(err)
			}

			if err := printSummary("Backfill summary", summary); err != nil {
				return fail(err)
			}
			if summary.SkippedNoBasis > 0 {
				warningColor.Printf("%d record(s) have no date basis and stay unexpiring\n", summary.SkippedNoBasis)
			}
			successColor.Println("Backfill complete")
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would be backfilled without writing")
	return cmd
}

func newAuditCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "audit",
		Short: "Report lifecycle anomalies without changing anything",
		Long: `Scans every record, groups them by status and reports inconsistencies:
deleted records with a future expiration, expired records missing their
timestamp, published records well past their expiration, unknown statuses.

The audit never mutates state; remediation is a separate sweep or a manual
correction.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, store, _, sugar, cleanup, err := initRuntime()
			if err != nil {
				return fail(err)
			}
			defer cleanup()

			auditor := service.NewAuditorService(store, sugar)

			ctx, cancel := context.WithTimeout(cmd.Context(), runTimeout)
			defer cancel()

			s := startSpinner("Auditing records...")
			report, err := auditor.Run(ctx, time.Now().UTC())
			stopSpinner(s)
			if err != nil {
				return fail(err)
			}

			if err := printSummary("Audit report", report); err != nil {
				return fail(err)
			}
			if len(report.Anomalies) > 0 {
				errorColor.Printf("%d anomaly(ies) found\n", len(report.Anomalies))
			} else {
				successColor.Println("No anomalies")
			}
			return nil
		},
	}
}

func startSpinner(message string) *spinner.Spinner {
	if outputJSON || outputYAML {
		return nil
	}
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " " + message
	s.Start()
	return s
}

func stopSpinner(s *spinner.Spinner) {
	if s != nil {
		s.Stop()
	}
}
