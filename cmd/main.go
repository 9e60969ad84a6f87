// jobsearch: job ingestion and search service
//
// Pulls postings from Adzuna into PostgreSQL, answers radius searches over
// them, and re-runs users' saved searches on a cron schedule, notifying them
// by e-mail and on the EVENT_NEW_JOBS Redis channel when new postings appear.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"jobmate/jobsearch/internal/api"
	"jobmate/jobsearch/internal/db"
	"jobmate/jobsearch/internal/search"
)

const version = "1.0.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:           "jobsearch",
		Short:         "Job ingestion, search and saved-query alerts",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "optional TOML config file (environment variables take precedence)")

	root.AddCommand(
		newServeCmd(&configFile),
		newIngestCmd(&configFile),
		newScheduleCmd(&configFile),
		newMigrateCmd(&configFile),
	)
	return root
}

func newServeCmd(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the saved-query scheduler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), *configFile)
		},
	}
}

func serve(ctx context.Context, configFile string) error {
	a, err := newApp(ctx, configFile)
	if err != nil {
		return err
	}
	defer a.close()

	sched, err := a.scheduler()
	if err != nil {
		return err
	}
	if err := sched.Start(ctx); err != nil {
		return err
	}
	defer sched.Stop()

	mux := http.NewServeMux()
	api.NewHandler(api.Config{
		Ingester:        a.ingester,
		Searcher:        a.engine,
		SavedQueries:    a.queries,
		DefaultDistance: a.cfg.Search.DefaultDistance,
		Version:         version,
		Logger:          a.log.Named("api"),
	}).RegisterRoutes(mux)

	// Searches ingest synchronously, so writes may take several upstream
	// pages plus the inter-page delay.
	srv := &http.Server{
		Addr:         ":" + a.cfg.Port,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("listening", "version", version, "port", a.cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	a.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("shutdown error", "err", err)
	}
	a.log.Info("stopped")
	return nil
}

func newIngestCmd(configFile *string) *cobra.Command {
	var (
		query, location string
		distance        int
	)
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Fetch postings for one query and store the new ones",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), *configFile)
			if err != nil {
				return err
			}
			defer a.close()

			n, ingestErr := a.ingester.Ingest(cmd.Context(), query, location, distance)
			total, err := a.store.Jobs.Count(cmd.Context())
			if err != nil {
				return errors.Join(ingestErr, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d new jobs (%d stored)\n", n, total)
			return ingestErr
		},
	}
	cmd.Flags().StringVar(&query, "query", "", "search keywords")
	cmd.Flags().StringVar(&location, "location", "", "free-text location")
	cmd.Flags().IntVar(&distance, "distance", search.DefaultDistance, "radius in miles")
	_ = cmd.MarkFlagRequired("query")
	return cmd
}

func newScheduleCmd(configFile *string) *cobra.Command {
	schedule := &cobra.Command{
		Use:   "schedule",
		Short: "Saved-query scheduler commands",
	}
	schedule.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Run every active saved query once and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), *configFile)
			if err != nil {
				return err
			}
			defer a.close()

			sched, err := a.scheduler()
			if err != nil {
				return err
			}
			report, err := sched.RunOnce(cmd.Context())
			if err != nil {
				return err
			}
			sched.Wait()
			fmt.Fprintf(cmd.OutOrStdout(), "run %s: %d queries, %d succeeded, %d failed, %d new jobs, %d notifications dispatched\n",
				report.RunID, report.Queries, report.Succeeded, report.Failed, report.NewJobs, report.Dispatched)
			return nil
		},
	})
	return schedule
}

func newMigrateCmd(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), *configFile)
			if err != nil {
				return err
			}
			defer a.close()

			if err := db.Migrate(cmd.Context(), a.pool); err != nil {
				return err
			}
			a.log.Info("schema applied")
			return nil
		},
	}
}
