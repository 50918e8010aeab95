package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"mintstack/internal/alert"
	"mintstack/internal/ingest"
	"mintstack/internal/notify"
	"mintstack/internal/source"
	"mintstack/internal/stream"
)

// newRunCmd builds the command that starts the full service: source
// clients, store, broadcast hub, alert evaluator, scheduler and the
// websocket server.
func newRunCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the ingestion, alerting and broadcast service",
		RunE: func(cmd *cobra.Command, args []string) error {
			dataStore, err := app.openStore()
			if err != nil {
				return err
			}
			defer dataStore.Close()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			hub := stream.NewHub(app.Logger)
			defer hub.Close()

			notifier := notify.NewMultiNotifier(app.Config.Notifications, app.Logger)
			evaluator := alert.NewEvaluator(dataStore, notifier, hub, app.Logger)

			ingestor := ingest.NewIngestor(
				app.Config,
				source.NewRateClient(app.Config.Providers.Rates, app.Logger),
				source.NewQuoteClient(app.Config.Providers.Quotes, app.Logger),
				source.NewFeedClient(app.Config.Providers.News, app.Logger),
				dataStore,
				hub,
				evaluator,
				app.Logger,
			)

			scheduler := ingest.NewScheduler(app.Logger)
			ingestor.RegisterJobs(scheduler)
			scheduler.Start(ctx)

			server := stream.NewServer(hub, app.Config.Server.ListenAddr, app.Logger)
			if err := server.Start(ctx); err != nil {
				return err
			}

			scheduler.Wait()
			evaluator.Wait()

			app.Logger.Info().Msg("Service stopped")
			return nil
		},
	}
}
