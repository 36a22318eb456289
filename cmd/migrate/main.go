package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"

	"github.com/angelmondragon/shopcore-backend/internal/bootstrap"
	"github.com/angelmondragon/shopcore-backend/pkg/logger"
	"github.com/angelmondragon/shopcore-backend/pkg/migrate"
)

type options struct {
	cmd     string
	dir     string
	name    string
	version string
}

func main() {
	opts := options{}
	flag.StringVar(&opts.cmd, "cmd", "up", "migration command: up|down|redo|status|version|create|validate")
	flag.StringVar(&opts.dir, "dir", migrate.DefaultDir, "goose migrations directory")
	flag.StringVar(&opts.name, "name", "", "migration name (create)")
	flag.StringVar(&opts.version, "version", "", "target version YYYYMMDDHHMMSS (version)")
	flag.Parse()

	// create and validate only touch the filesystem.
	switch opts.cmd {
	case "create":
		if opts.name == "" {
			fail("missing -name for create")
		}
		path, err := migrate.CreateSQLMigration(opts.dir, opts.name)
		if err != nil {
			fail("create migration: %v", err)
		}
		fmt.Println("created migration:", path)
		return
	case "validate":
		if err := migrate.Validate(os.DirFS(opts.dir)); err != nil {
			fail("migration validation failed: %v", err)
		}
		fmt.Println("migrations valid:", opts.dir)
		return
	}

	rt := bootstrap.MustStart(bootstrap.RuntimeParams{Kind: "migrate", SkipDevMigrations: true})
	defer rt.Close()
	logg := rt.Logger
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env": rt.Config.App.Env,
		"cmd": opts.cmd,
		"dir": opts.dir,
	})

	sqlDB, err := rt.DB.DB().DB()
	rt.Check(err, "failed to unwrap sql database")

	rt.Check(run(ctx, sqlDB, opts, logg), "migration failed")
	logg.Info(ctx, "migration complete")
}

func run(ctx context.Context, sqlDB *sql.DB, opts options, logg *logger.Logger) error {
	fsys := os.DirFS(opts.dir)
	switch opts.cmd {
	case "up", "down", "redo", "status":
		return migrate.Run(ctx, sqlDB, fsys, opts.cmd, logg)
	case "version":
		if opts.version == "" {
			return fmt.Errorf("missing -version for version command")
		}
		return migrate.MigrateToVersion(ctx, sqlDB, fsys, opts.version, logg)
	default:
		return fmt.Errorf("unknown -cmd value %q", opts.cmd)
	}
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
