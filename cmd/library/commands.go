// cmd/library/commands.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"librarium/internal/audit"
	"librarium/internal/catalog"
	"librarium/internal/circulation"
	"librarium/internal/httpapi"
	"librarium/internal/membership"
	"librarium/internal/notification"
	"librarium/internal/review"
)

type loader func() (*app, error)

func newServeCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and run the scheduled sweeps",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := load()
			if err != nil {
				return err
			}
			defer a.close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if err := a.open(ctx); err != nil {
				return err
			}
			return a.serve(ctx)
		},
	}
}

func (a *app) router() http.Handler {
	return httpapi.NewRouter(a.logger,
		catalog.NewHandler(a.catalog),
		membership.NewHandler(a.members),
		circulation.NewHandler(a.circulation),
		review.NewHandler(a.reviews),
		notification.NewHandler(a.notifications),
		audit.NewHandler(a.audit),
	)
}

func (a *app) serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + a.cfg.Port,
		Handler:           a.router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		a.scheduler.Start(ctx)
	}()
	go func() {
		defer wg.Done()
		if err := a.notifications.Run(ctx); err != nil {
			a.logger.Error("email delivery stopped", zap.Error(err))
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("starting server", zap.String("addr", srv.Addr), zap.String("storage", a.cfg.Storage))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	a.logger.Info("shutting down server")
	shutdownCtx, release := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer release()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server forced to shutdown", zap.Error(err))
	}

	// A listen error leaves ctx alive; the scheduler and the outbox only
	// stop once it is cancelled.
	cancel()
	wg.Wait()
	a.logger.Info("server exited")
	return serveErr
}

func newMigrateCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := load()
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.openStore(cmd.Context()); err != nil {
				return err
			}
			if a.pg == nil {
				a.logger.Info("in-memory storage has no schema to migrate")
				return nil
			}
			if err := a.pg.Migrate(cmd.Context()); err != nil {
				return err
			}
			a.logger.Info("schema is up to date")
			return nil
		},
	}
}

// newJobCmd runs one scheduled job through the scheduler, so the job lock
// is honoured when another replica is running it.
func newJobCmd(load loader, use, short string, jobs ...string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := load()
			if err != nil {
				return err
			}
			defer a.close()
			if err := a.open(cmd.Context()); err != nil {
				return err
			}
			return a.runJobs(cmd.Context(), jobs...)
		},
	}
}

func newRemindCmd(load loader) *cobra.Command {
	return newJobCmd(load, "remind", "Send due-soon reminders and overdue notices", jobDueReminders, jobOverdueNotices)
}

// runJobs runs the named jobs once and waits for their emails to be handed
// to the mailer.
func (a *app) runJobs(ctx context.Context, names ...string) error {
	deliverCtx, stopDelivery := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := a.notifications.Run(deliverCtx); err != nil {
			a.logger.Error("email delivery stopped", zap.Error(err))
		}
	}()

	var errs []error
	for _, name := range names {
		ran, err := a.scheduler.RunOnce(ctx, name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !ran {
			a.logger.Info("job is running elsewhere, skipped", zap.String("job", name))
		}
	}

	stopDelivery()
	<-done
	return errors.Join(errs...)
}
