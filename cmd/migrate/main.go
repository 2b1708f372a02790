// Command migrate manages the storefront schema.
//
//	migrate up | down | status | validate
//	migrate to <YYYYMMDDHHMMSS>
//	migrate create <name>
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/migrate"
)

func main() {
	dir := flag.String("dir", migrate.SourceDir, "directory new migrations are written to")
	flag.Parse()
	args := flag.Args()
	if len(args) == 0 {
		fail(errors.New("usage: migrate [-dir path] up|down|status|validate|to <version>|create <name>"))
	}

	switch cmd := args[0]; cmd {
	case "create":
		if len(args) < 2 {
			fail(errors.New("create needs a name"))
		}
		path, err := migrate.Create(*dir, args[1], time.Now())
		if err != nil {
			fail(err)
		}
		fmt.Println("created", path)
	case "validate":
		if err := migrate.Validate(migrate.Files()); err != nil {
			fail(err)
		}
		fmt.Println("migrations valid")
	default:
		if err := withDatabase(cmd, args[1:]); err != nil {
			fail(err)
		}
	}
}

func withDatabase(cmd string, args []string) error {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logg := logger.New(logger.Options{ServiceName: "migrate", Level: logger.ParseLevel(cfg.App.LogLevel)})
	ctx := logg.WithFields(context.Background(), map[string]any{"env": cfg.App.Env, "cmd": cmd})

	conn, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer conn.Close()
	pool, err := conn.DB().DB()
	if err != nil {
		return err
	}
	m, err := migrate.New(pool, migrate.Files())
	if err != nil {
		return err
	}

	switch cmd {
	case "up":
		n, err := m.Up(ctx)
		if err != nil {
			return err
		}
		logg.Info(logg.WithField(ctx, "applied", n), "schema up to date")
	case "down":
		return m.Down(ctx)
	case "to":
		if len(args) == 0 {
			return errors.New("to needs a version")
		}
		return m.To(ctx, args[0])
	case "status":
		rows, err := m.Status(ctx)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "VERSION\tSTATE\tAPPLIED AT\tFILE")
		for _, r := range rows {
			applied := "-"
			if !r.AppliedAt.IsZero() {
				applied = r.AppliedAt.UTC().Format(time.RFC3339)
			}
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", r.Source.Version, r.State, applied, r.Source.Path)
		}
		return tw.Flush()
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
	return nil
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "migrate:", err)
	os.Exit(1)
}
