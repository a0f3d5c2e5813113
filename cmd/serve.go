package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"groupage/api"
	"groupage/notify"
	"groupage/service"

	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the engine's HTTP surface",
		Long: `Starts the HTTP server exposing token-guarded lifecycle transitions
(validate, delete, edit), operator-triggered batch jobs, health and metrics.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, store, locker, sugar, cleanup, err := initRuntime()
			if err != nil {
				return fail(err)
			}
			defer cleanup()

			notifier := notify.NewLogNotifier(sugar)
			sweepOpts := []service.SweeperOption{
				service.WithPacing(cfg.Sweep.PauseEvery, cfg.SweepPause()),
				service.WithNotifier(notifier),
			}
			if locker != nil {
				sweepOpts = append(sweepOpts, service.WithLocker(locker))
			}

			server := api.NewServer(
				service.NewTransitionService(store, sugar),
				service.NewSweeperService(store, sugar, sweepOpts...),
				service.NewMigratorService(store, sugar,
					service.WithMigratorPacing(cfg.Sweep.PauseEvery, cfg.SweepPause())),
				service.NewAuditorService(store, sugar),
				sugar,
			)

			errCh := make(chan error, 1)
			go func() {
				errCh <- server.Start(cfg.API.Host, cfg.API.Port)
			}()

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

			select {
			case err := <-errCh:
				return fail(err)
			case sig := <-stop:
				sugar.Infow("Shutting down", "signal", sig)
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := server.Shutdown(ctx); err != nil {
					return fail(err)
				}
			}
			return nil
		},
	}
}
