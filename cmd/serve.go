package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lingua-desk/quoteflow/internal/analysis"
	"github.com/lingua-desk/quoteflow/internal/notify"
	"github.com/lingua-desk/quoteflow/internal/payment"
	"github.com/lingua-desk/quoteflow/internal/server"
	"github.com/lingua-desk/quoteflow/internal/sla"
	"github.com/lingua-desk/quoteflow/internal/turnaround"
	"github.com/lingua-desk/quoteflow/internal/workflow"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the quoting API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		rates, err := cfg.Rates()
		if err != nil {
			return eris.Wrap(err, "build pricing rates")
		}

		notifier := initNotifier()
		svc := workflow.NewService(st, notifier, rates)
		svc.SetDeliveryTable(cfg.DeliveryTable())

		schedule, err := initSchedule()
		if err != nil {
			return err
		}

		srv := server.New(server.Options{
			Store:          st,
			Service:        svc,
			Analysis:       analysis.NewClient(cfg.AnalysisOptions()),
			Payment:        initPayment(),
			Notifier:       notifier,
			Watchdog:       cfg.WatchdogConfig(),
			Turnaround:     schedule,
			AllowedOrigins: cfg.Server.AllowedOrigins,
			Currency:       cfg.Payment.Currency,
		})
		defer srv.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		httpSrv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           srv.Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		checker := sla.NewChecker(
			sla.NewCollector(st),
			sla.NewAlerter(cfg.SLA.WebhookURL, cfg.SLAThresholds()),
			time.Duration(cfg.SLA.CheckIntervalSecs)*time.Second,
		)

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			checker.Run(gctx)
			return nil
		})
		g.Go(func() error {
			zap.L().Info("starting server", zap.Int("port", port))
			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return eris.Wrap(err, "server listen")
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			return httpSrv.Shutdown(shutdownCtx)
		})

		return g.Wait()
	},
}

func initNotifier() workflow.Notifier {
	if cfg.Notify.BaseURL == "" {
		return notify.LogNotifier{}
	}
	return notify.NewHTTPNotifier(notify.Options{
		BaseURL: cfg.Notify.BaseURL,
		APIKey:  cfg.Notify.Key,
	})
}

func initSchedule() (server.TurnaroundOptions, error) {
	loc, err := turnaround.LoadLocation(cfg.Turnaround.Timezone)
	if err != nil {
		return server.TurnaroundOptions{}, eris.Wrap(err, "load turnaround timezone")
	}
	table, cal, err := turnaround.LoadTables(cfg.Turnaround.TablesPath)
	if err != nil {
		return server.TurnaroundOptions{}, eris.Wrap(err, "load turnaround tables")
	}
	return server.TurnaroundOptions{
		Location:      loc,
		Table:         table,
		Calendar:      cal,
		RushCutoff:    turnaround.Cutoff{Hour: cfg.Turnaround.RushCutoffHour, Minute: cfg.Turnaround.RushCutoffMinute},
		SameDayCutoff: turnaround.Cutoff{Hour: cfg.Turnaround.SameDayCutoffHour, Minute: cfg.Turnaround.SameDayCutoffMinute},
		RushDays:      cfg.Turnaround.RushDays,
	}, nil
}

func initPayment() payment.Gateway {
	if cfg.Payment.BaseURL == "" {
		return payment.StubGateway{}
	}
	return payment.NewHTTPGateway(payment.Options{
		BaseURL: cfg.Payment.BaseURL,
		APIKey:  cfg.Payment.Key,
	})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
