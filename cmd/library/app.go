// cmd/library/app.go
package main

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"librarium/internal/audit"
	"librarium/internal/catalog"
	"librarium/internal/circulation"
	"librarium/internal/config"
	"librarium/internal/logging"
	"librarium/internal/membership"
	"librarium/internal/notification"
	"librarium/internal/review"
	"librarium/internal/scheduler"
	"librarium/internal/storage/memory"
	"librarium/internal/storage/postgres"
	"librarium/internal/telemetry"
)

// Job names, shared by the scheduler and the one-shot commands.
const (
	jobMarkOverdue        = "mark-overdue"
	jobExpireReservations = "expire-reservations"
	jobDueReminders       = "due-reminders"
	jobOverdueNotices     = "overdue-notices"
)

// backend is what both storage implementations provide.
type backend interface {
	catalog.Store
	membership.Store
	notification.Store
	audit.Store
	Lending() circulation.Store
	Reviews() review.Store
}

type app struct {
	cfg    *config.Config
	logger *zap.Logger

	pg    *postgres.Store
	store backend
	redis *redis.Client

	catalog       catalog.Service
	members       membership.Service
	circulation   circulation.Service
	reviews       review.Service
	notifications notification.Service
	audit         audit.Service
	scheduler     *scheduler.Scheduler

	shutdownTracing telemetry.ShutdownFunc
}

// newApp loads configuration and builds the logger. Storage and services
// are wired by open.
func newApp(envFile string) (*app, error) {
	var files []string
	if envFile != "" {
		files = append(files, envFile)
	}
	cfg, err := config.Load(files...)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Mode)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return &app{cfg: cfg, logger: logger}, nil
}

// openStore connects the configured storage backend.
func (a *app) openStore(ctx context.Context) error {
	switch a.cfg.Storage {
	case config.StorageMemory:
		a.logger.Warn("using in-memory storage, data is lost on exit")
		a.store = memory.New()
	default:
		pg, err := postgres.Open(ctx, a.cfg.DatabaseURL)
		if err != nil {
			return err
		}
		a.pg = pg
		a.store = pg
	}
	return nil
}

// open wires storage, telemetry, services and the scheduler.
func (a *app) open(ctx context.Context) error {
	shutdown, err := telemetry.Setup(ctx, a.cfg.ServiceName, a.cfg.OTLPEndpoint)
	if err != nil {
		return err
	}
	a.shutdownTracing = shutdown

	if err := a.openStore(ctx); err != nil {
		return err
	}
	if a.pg != nil {
		if err := a.pg.Migrate(ctx); err != nil {
			return err
		}
	}

	a.notifications = notification.NewService(a.store, notification.NewLogMailer(a.logger), a.logger,
		notification.WithEmailRate(a.cfg.EmailPerMinute),
		notification.WithLocation(a.cfg.Location),
	)
	a.catalog = catalog.NewService(a.store, a.logger)
	a.members = membership.NewService(a.store, a.logger,
		membership.WithRegistrationLimit(a.cfg.RegistrationsPerMinute),
		membership.WithNotifier(a.notifications),
	)
	a.circulation = circulation.NewService(a.store.Lending(), a.notifications, a.logger,
		circulation.WithPolicy(circulation.Policy{
			FinePerDay:      a.cfg.FinePerDay,
			DefaultLoanDays: a.cfg.DefaultLoanDays,
			MaxLoanDays:     a.cfg.MaxLoanDays,
			ReservationDays: a.cfg.ReservationDays,
		}),
		circulation.WithLocation(a.cfg.Location),
	)
	a.reviews = review.NewService(a.store.Reviews(), a.logger)
	a.audit = audit.NewService(a.store)

	var locker scheduler.Locker
	if a.cfg.RedisEnabled {
		client, err := scheduler.NewRedisClient(ctx, scheduler.RedisOptions{
			Addr:     a.cfg.RedisAddr,
			Password: a.cfg.RedisPassword,
			DB:       a.cfg.RedisDB,
		})
		if err != nil {
			return err
		}
		a.redis = client
		locker = scheduler.NewRedisLocker(client, "librarium:lock:")
		a.logger.Info("sweeps coordinated through redis", zap.String("addr", a.cfg.RedisAddr))
	}
	a.scheduler = scheduler.New(locker, a.logger, a.jobs()...)
	return nil
}

func (a *app) jobs() []scheduler.Job {
	return []scheduler.Job{
		{
			Name:     jobMarkOverdue,
			Interval: a.cfg.SweepInterval,
			Run: func(ctx context.Context) error {
				_, err := a.circulation.MarkOverdue(ctx, time.Now())
				return err
			},
		},
		{
			Name:     jobExpireReservations,
			Interval: a.cfg.SweepInterval,
			Run: func(ctx context.Context) error {
				_, err := a.circulation.ExpireReservations(ctx, time.Now())
				return err
			},
		},
		{
			Name:     jobDueReminders,
			Interval: a.cfg.ReminderInterval,
			Run: func(ctx context.Context) error {
				_, err := a.circulation.SendDueReminders(ctx, time.Now())
				return err
			},
		},
		{
			Name:     jobOverdueNotices,
			Interval: a.cfg.ReminderInterval,
			Run: func(ctx context.Context) error {
				_, err := a.circulation.SendOverdueNotices(ctx, time.Now())
				return err
			},
		},
	}
}

// close releases everything open acquired, in reverse order.
func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("failed to close redis client", zap.Error(err))
		}
	}
	if a.pg != nil {
		if err := a.pg.Close(); err != nil {
			a.logger.Warn("failed to close database", zap.Error(err))
		}
	}
	if a.shutdownTracing != nil {
		if err := a.shutdownTracing(ctx); err != nil {
			a.logger.Warn("failed to flush traces", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}
