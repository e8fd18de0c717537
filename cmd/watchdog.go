package main

import (
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lingua-desk/quoteflow/internal/analysis"
	"github.com/lingua-desk/quoteflow/internal/watchdog"
	"github.com/lingua-desk/quoteflow/internal/workflow"
)

var watchdogCmd = &cobra.Command{
	Use:   "watchdog <quote-id>",
	Short: "Poll analysis status for a quote until it resolves",
	Long: `Runs the analysis poller for a single quote in the foreground. Useful for
re-driving a quote whose server-side poller was lost to a restart: the loop
ends when analysis completes, the attempt cap escalates the quote into
review, or the process is interrupted.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("serve"); err != nil {
			return err
		}
		quoteID := args[0]

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if _, err := st.GetQuote(ctx, quoteID); err != nil {
			return eris.Wrapf(err, "load quote %s", quoteID)
		}

		rates, err := cfg.Rates()
		if err != nil {
			return eris.Wrap(err, "build pricing rates")
		}
		notifier := initNotifier()
		svc := workflow.NewService(st, notifier, rates)
		svc.SetDeliveryTable(cfg.DeliveryTable())

		client := analysis.NewClient(cfg.AnalysisOptions())
		w := watchdog.New(cfg.WatchdogConfig(), client, st, svc, notifier, quoteID)
		if err := w.Start(); err != nil {
			return err
		}
		defer w.Stop()

		zap.L().Info("polling analysis status", zap.String("quote_id", quoteID))
		outcome, err := w.Tick(ctx)
		if err != nil {
			zap.L().Error("poll tick failed", zap.String("quote_id", quoteID), zap.Error(err))
		}
		if outcome == watchdog.OutcomeWaiting {
			w.Run(ctx)
		}

		zap.L().Info("watchdog finished",
			zap.String("quote_id", quoteID),
			zap.String("state", string(w.State())),
			zap.Int("attempts", w.Attempts()),
		)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(watchdogCmd)
}
