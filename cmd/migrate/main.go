// Command migrate applies, rolls back and inspects the database schema.
//
//	migrate up      apply pending migrations
//	migrate down    roll back the latest migration
//	migrate status  list applied migrations
//	migrate seed    apply seed data
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	kinoauth "kinoauth.org"
	"kinoauth.org/internal/config"
	"kinoauth.org/internal/migrate"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: migrate up|down|status|seed")
		os.Exit(2)
	}
	if err := run(os.Args[1]); err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
}

func run(cmd string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.PGDSN == "" {
		return fmt.Errorf("KINOAUTH_PG_DSN must be set")
	}

	db, err := sql.Open("pgx", cfg.PGDSN)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	runner := migrate.NewRunner(db, kinoauth.SchemaFS, "migrations", "seeds")
	switch cmd {
	case "up":
		return runner.Up(ctx)
	case "down":
		return runner.Down(ctx)
	case "seed":
		return runner.Seed(ctx)
	case "status":
		applied, err := runner.Status(ctx)
		if err != nil {
			return err
		}
		if len(applied) == 0 {
			fmt.Println("no migrations applied")
			return nil
		}
		for _, name := range applied {
			fmt.Println(name)
		}
		return nil
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}
