package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/eddiefleurent/wheel_ledger/internal/analytics"
	"github.com/eddiefleurent/wheel_ledger/internal/api"
	"github.com/eddiefleurent/wheel_ledger/internal/lifecycle"
	"github.com/eddiefleurent/wheel_ledger/internal/storage/postgres"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the background expiration sweep",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			sched := lifecycle.NewScheduler(a.reconciler, a.cfg.GetReconcileInterval(), a.logger)
			go sched.Run(ctx)

			srv := api.NewServer(api.Config{Addr: a.cfg.Server.Addr, AuthToken: a.cfg.Server.AuthToken}, api.Deps{
				Storage:    a.storage,
				Reconciler: a.reconciler,
				Refresher:  a.refresher,
				Calendar:   a.calendar,
				Clock:      a.clock,
			}, a.logger)

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			a.logger.Info("Received shutdown signal")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return err
			}
			a.logger.Info("Ledger stopped")
			return nil
		},
	}
}

func reconcileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Close expired positions and reopen positions whose expiration moved out",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.reconciler.Reconcile(cmd.Context(), account)
			if printErr := printJSON(res); printErr != nil {
				return printErr
			}
			return err
		},
	}
	cmd.Flags().StringVar(&account, "account", "", "limit to one account (default all)")
	return cmd
}

func refreshCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Fetch current option prices for open positions and spreads",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			if a.refresher == nil {
				return errors.New("pricing.provider is not configured")
			}

			report, err := a.refresher.RefreshOpen(cmd.Context(), account)
			if err != nil {
				return err
			}
			return printJSON(report)
		},
	}
	cmd.Flags().StringVar(&account, "account", "", "limit to one account (default all)")
	return cmd
}

func auditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Check stored records for invalid fields, broken wheel links and pending expirations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.reconciler.Audit(cmd.Context(), account)
			if err != nil {
				return err
			}
			if err := printJSON(report); err != nil {
				return err
			}
			if !report.OK() {
				return fmt.Errorf("audit found %d problem(s)", len(report.Findings))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&account, "account", "", "limit to one account (default all)")
	return cmd
}

type summaryOutput struct {
	Positions analytics.Summary        `json:"positions"`
	Spreads   analytics.Summary        `json:"spreads"`
	ByStock   []analytics.StockSummary `json:"positions_by_stock"`
}

func summaryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print the account roll-up of positions and spreads",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if _, err := a.reconciler.Reconcile(ctx, account); err != nil {
				a.logger.WithError(err).Warn("Reconciliation incomplete")
			}
			positions, err := a.storage.ListPositions(ctx, account)
			if err != nil {
				return err
			}
			spreads, err := a.storage.ListSpreads(ctx, account)
			if err != nil {
				return err
			}

			today := a.calendar.Today(a.clock.Now())
			entries := analytics.PositionEntries(positions, today)
			return printJSON(summaryOutput{
				Positions: analytics.Aggregate(entries),
				Spreads:   analytics.Aggregate(analytics.SpreadEntries(spreads, today)),
				ByStock:   analytics.AggregateByStock(entries),
			})
		},
	}
	cmd.Flags().StringVar(&account, "account", "", "limit to one account (default all)")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply PostgreSQL schema migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			pool, err := postgres.Connect(cmd.Context(), cfg.PostgresConfig())
			if err != nil {
				return err
			}
			defer pool.Close()
			if err := postgres.RunMigrations(cmd.Context(), pool); err != nil {
				return err
			}
			newLogger(cfg).Info("Migrations applied")
			return nil
		},
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
