package bootstrap

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/shopcore-backend/pkg/config"
	"github.com/angelmondragon/shopcore-backend/pkg/db"
	"github.com/angelmondragon/shopcore-backend/pkg/instance"
	"github.com/angelmondragon/shopcore-backend/pkg/logger"
	"github.com/angelmondragon/shopcore-backend/pkg/migrate"
	"github.com/angelmondragon/shopcore-backend/pkg/pubsub"
	"github.com/angelmondragon/shopcore-backend/pkg/redis"
)

// RuntimeParams select what Start brings up besides config and logging.
type RuntimeParams struct {
	Kind string
	// SkipDevMigrations leaves the schema alone even when auto-migrate is on.
	SkipDevMigrations bool
}

type closer struct {
	name string
	fn   func() error
}

// Runtime is the process scaffolding shared by every binary: loaded config,
// the configured logger, the database, and everything that must be closed
// on the way out, in reverse order of opening.
type Runtime struct {
	Kind   string
	Config *config.Config
	Logger *logger.Logger
	DB     *db.Client

	closers []closer
	exit    func(int)
}

// Start loads .env and config, configures logging, opens the database and
// applies dev migrations. Failures before the logger is configured are
// logged as JSON with default settings.
func Start(params RuntimeParams) (*Runtime, error) {
	rt := &Runtime{
		Kind:   params.Kind,
		Logger: logger.New(logger.Options{ServiceName: params.Kind}),
		exit:   os.Exit,
	}
	ctx := context.Background()
	if err := godotenv.Load(); err != nil {
		rt.Logger.Debug(ctx, ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		return rt, err
	}
	cfg.Service.Kind = params.Kind
	rt.Config = cfg
	rt.Logger = logger.New(logger.Options{
		ServiceName: params.Kind,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	dbClient, err := db.New(ctx, cfg.DB, rt.Logger)
	if err != nil {
		return rt, err
	}
	rt.DB = dbClient
	rt.OnClose("database", dbClient.Close)

	if !params.SkipDevMigrations {
		if err := migrate.MaybeRunDev(ctx, cfg, rt.Logger, dbClient); err != nil {
			return rt, err
		}
	}
	return rt, nil
}

// MustStart is Start for main: any failure is fatal.
func MustStart(params RuntimeParams) *Runtime {
	rt, err := Start(params)
	rt.Check(err, "failed to start "+params.Kind)
	return rt
}

// OnClose registers fn to run from Close.
func (r *Runtime) OnClose(name string, fn func() error) {
	r.closers = append(r.closers, closer{name: name, fn: fn})
}

// Close runs the registered closers newest first and logs their failures.
func (r *Runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		c := r.closers[i]
		if err := c.fn(); err != nil {
			r.Logger.Error(context.Background(), "error closing "+c.name, err)
		}
	}
	r.closers = nil
}

// Check is fatal when err is non-nil: it logs msg, closes what was opened
// and exits with status 1.
func (r *Runtime) Check(err error, msg string) {
	if err == nil {
		return
	}
	r.Logger.Error(context.Background(), msg, err)
	r.Close()
	r.exit(1)
}

// Redis connects to Redis and registers it for Close.
func (r *Runtime) Redis() (*redis.Client, error) {
	client, err := redis.New(context.Background(), r.Config.Redis, r.Logger)
	if err != nil {
		return nil, err
	}
	r.OnClose("redis", client.Close)
	return client, nil
}

// PubSub connects to Pub/Sub and registers it for Close.
func (r *Runtime) PubSub() (*pubsub.Client, error) {
	client, err := pubsub.NewClient(context.Background(), r.Config.GCP, r.Config.PubSub, r.Logger)
	if err != nil {
		return nil, err
	}
	r.OnClose("pubsub", client.Close)
	return client, nil
}

// Context is cancelled on SIGINT or SIGTERM and carries the process's
// identifying log fields.
func (r *Runtime) Context() (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	fields := map[string]any{"serviceKind": r.Kind, "instance": instance.GetID()}
	if r.Config != nil {
		fields["env"] = r.Config.App.Env
	}
	return r.Logger.WithFields(ctx, fields), stop
}

// Serve runs fn under Context and treats cancellation as a clean stop.
func (r *Runtime) Serve(fn func(ctx context.Context) error) {
	ctx, stop := r.Context()
	defer stop()
	r.Logger.Info(ctx, "starting "+r.Kind)
	if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
		r.Logger.Error(ctx, r.Kind+" stopped unexpectedly", err)
		r.Close()
		r.exit(1)
		return
	}
	r.Logger.Info(ctx, r.Kind+" shutting down gracefully")
}
