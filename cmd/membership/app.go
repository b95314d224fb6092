package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	modbilling "github.com/avuweb/membership/modules/billing"
	"github.com/avuweb/membership/pkg/config"
	"github.com/avuweb/membership/pkg/eventbus"
	"github.com/avuweb/membership/pkg/logger"
	"github.com/avuweb/membership/pkg/mercadopago"
	"github.com/avuweb/membership/pkg/pg"
	"github.com/avuweb/membership/pkg/queue"
	"github.com/avuweb/membership/pkg/redis"
	"github.com/avuweb/membership/svc/billing"
	"github.com/avuweb/membership/svc/coupon"
	"github.com/avuweb/membership/svc/entitlement"
)

const (
	lockRedis = "redis"
	lockLocal = "local"
)

type appConfig struct {
	Env         string `env:"APP_ENV" envDefault:"development"`
	Name        string `env:"APP_NAME" envDefault:"membership"`
	LogLevel    string `env:"LOG_LEVEL"`
	LockBackend string `env:"BILLING_LOCK_BACKEND" envDefault:"redis"`
}

// App owns the process-wide resources. Connections are opened on first use
// so commands only need the configuration they touch.
type App struct {
	cfg     appConfig
	log     *slog.Logger
	pool    *pgxpool.Pool
	closers []func()
	checks  []func(context.Context) error
}

func NewApp(envFiles ...string) (*App, error) {
	config.LoadEnvFiles(envFiles...)

	var cfg appConfig
	if err := config.Load(&cfg); err != nil {
		return nil, err
	}

	opts := []logger.Option{
		logger.WithEnvironment(cfg.Env, cfg.Name),
		logger.WithContextExtractors(modbilling.RequestIDExtractor),
	}
	if cfg.LogLevel != "" {
		opts = append(opts, logger.WithLevel(logger.ParseLevel(cfg.LogLevel)))
	}

	return &App{cfg: cfg, log: logger.New(opts...)}, nil
}

func (a *App) Logger() *slog.Logger { return a.log }

// Checks returns readiness checks for every backend connected so far.
func (a *App) Checks() []func(context.Context) error { return a.checks }

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *App) DB(ctx context.Context) (*pgxpool.Pool, error) {
	if a.pool != nil {
		return a.pool, nil
	}

	var cfg pg.Config
	if err := config.Load(&cfg); err != nil {
		return nil, err
	}
	pool, err := pg.Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.pool = pool
	a.closers = append(a.closers, pool.Close)
	a.checks = append(a.checks, pg.Healthcheck(pool))
	return pool, nil
}

func (a *App) Locker(ctx context.Context) (billing.Locker, error) {
	switch a.cfg.LockBackend {
	case lockLocal:
		a.log.WarnContext(ctx, "using in-process lease, sweeps are not coordinated across replicas")
		return billing.NewLocalLocker(), nil
	case lockRedis:
		var cfg redis.Config
		if err := config.Load(&cfg); err != nil {
			return nil, err
		}
		client, err := redis.Connect(ctx, cfg)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = client.Close() })
		a.checks = append(a.checks, redis.Healthcheck(client))
		return redisLocker{redis.NewLocker(client, a.cfg.Name+":")}, nil
	default:
		return nil, fmt.Errorf("unknown BILLING_LOCK_BACKEND %q", a.cfg.LockBackend)
	}
}

// redisLocker narrows *redis.Lease to billing.Lease.
type redisLocker struct {
	locker *redis.Locker
}

func (l redisLocker) TryAcquire(ctx context.Context, key string, ttl time.Duration) (billing.Lease, bool, error) {
	lease, ok, err := l.locker.TryAcquire(ctx, key, ttl)
	if err != nil || !ok {
		return nil, false, err
	}
	return lease, true, nil
}

func (a *App) Publisher(ctx context.Context) (eventbus.Publisher, error) {
	var cfg eventbus.Config
	if err := config.Load(&cfg); err != nil {
		return nil, err
	}
	if cfg.URL == "" {
		a.log.InfoContext(ctx, "AMQP_URL not set, billing notices are logged only")
		return eventbus.NewNoopPublisher(a.log), nil
	}

	pub, err := eventbus.NewRabbitMQPublisher(cfg, a.log)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() { _ = pub.Close() })
	return pub, nil
}

// Services is the wired domain layer.
type Services struct {
	Config       billing.Config
	Queue        *queue.PostgresStorage
	Billing      *billing.Service
	Processor    *billing.Processor
	Reconciler   *billing.Reconciler
	Renewals     *billing.Renewals
	Entitlements *entitlement.Service
	Coupons      *coupon.Service
	BillingStore billing.Store
}

// Entitlements wires the services that need only Postgres.
func (a *App) Entitlements(ctx context.Context) (*entitlement.Service, *coupon.Service, error) {
	pool, err := a.DB(ctx)
	if err != nil {
		return nil, nil, err
	}
	ents := entitlement.NewService(entitlement.NewPostgresStore(pool), entitlement.WithLogger(a.log))
	coupons := coupon.NewService(coupon.NewPostgresStore(pool), ents, coupon.WithLogger(a.log))
	return ents, coupons, nil
}

// Services wires everything, including the provider client, the lease and
// the event bus.
func (a *App) Services(ctx context.Context) (*Services, error) {
	pool, err := a.DB(ctx)
	if err != nil {
		return nil, err
	}
	ents, coupons, err := a.Entitlements(ctx)
	if err != nil {
		return nil, err
	}

	var (
		bcfg  billing.Config
		mpcfg mercadopago.Config
	)
	if err := errors.Join(config.Load(&bcfg), config.Load(&mpcfg)); err != nil {
		return nil, err
	}

	provider, err := mercadopago.New(mpcfg, mercadopago.WithLogger(a.log))
	if err != nil {
		return nil, err
	}
	locker, err := a.Locker(ctx)
	if err != nil {
		return nil, err
	}
	pub, err := a.Publisher(ctx)
	if err != nil {
		return nil, err
	}

	storage := queue.NewPostgresStorage(pool)
	enq, err := queue.NewEnqueuer(storage, queue.WithDefaultQueue(bcfg.Queue))
	if err != nil {
		return nil, err
	}

	store := billing.NewPostgresStore(pool)
	return &Services{
		Config: bcfg,
		Queue:  storage,
		Billing: billing.NewService(store, provider, ents, enq,
			billing.WithLogger(a.log),
			billing.WithConfig(bcfg),
		),
		Processor: billing.NewProcessor(store, ents,
			billing.WithProcessorLogger(a.log),
			billing.WithPublisher(pub),
			billing.WithRetryPolicy(bcfg.RetryPolicy()),
		),
		Reconciler: billing.NewReconciler(store, provider, ents,
			billing.WithReconcilerLogger(a.log),
			billing.WithLocker(locker),
			billing.WithReconcilerConfig(bcfg),
		),
		Renewals: billing.NewRenewals(store, pub,
			billing.WithRenewalsLogger(a.log),
			billing.WithRenewalsLocker(locker),
			billing.WithRenewalsConfig(bcfg),
		),
		Entitlements: ents,
		Coupons:      coupons,
		BillingStore: store,
	}, nil
}
