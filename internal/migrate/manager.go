// Package migrate applies embedded SQL migrations and seeds. Files are
// ordered by name; bookkeeping lives in two tables so seeds can be re-run
// independently of schema changes.
package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"
)

const (
	migrationsTable = "schema_migrations"
	seedsTable      = "schema_seeds"

	// Advisory lock key serializing migration runs across replicas.
	lockKey = 0x6b_69_6e_6f // "kino"
)

// Runner executes SQL migrations and seed files from an fs.FS, typically an
// embed.FS compiled into the binary.
type Runner struct {
	db            *sql.DB
	src           fs.FS
	migrationsDir string
	seedsDir      string
}

// NewRunner constructs a Runner reading migrationsDir and seedsDir inside
// src.
func NewRunner(db *sql.DB, src fs.FS, migrationsDir, seedsDir string) *Runner {
	return &Runner{db: db, src: src, migrationsDir: migrationsDir, seedsDir: seedsDir}
}

// Up applies all pending migrations in name order. The run is serialized
// with an advisory lock so concurrent replicas do not race on DDL.
func (r *Runner) Up(ctx context.Context) error {
	return r.withLock(ctx, func() error {
		if err := r.ensureTables(ctx); err != nil {
			return err
		}
		applied, err := r.appliedSet(ctx, migrationsTable)
		if err != nil {
			return err
		}
		files, err := r.collect(r.migrationsDir, ".up.sql")
		if err != nil {
			return err
		}
		for _, name := range files {
			if applied[name] {
				continue
			}
			if err := r.execFile(ctx, r.migrationsDir+"/"+name); err != nil {
				return fmt.Errorf("apply migration %s: %w", name, err)
			}
			if err := r.record(ctx, migrationsTable, name); err != nil {
				return err
			}
		}
		return nil
	})
}

// Down rolls back the most recently applied migration using its .down.sql
// counterpart.
func (r *Runner) Down(ctx context.Context) error {
	return r.withLock(ctx, func() error {
		if err := r.ensureTables(ctx); err != nil {
			return err
		}
		history, err := r.history(ctx, migrationsTable)
		if err != nil {
			return err
		}
		if len(history) == 0 {
			return errors.New("no migrations applied")
		}
		last := history[len(history)-1]
		down := strings.TrimSuffix(last, ".up.sql") + ".down.sql"
		if err := r.execFile(ctx, r.migrationsDir+"/"+down); err != nil {
			return fmt.Errorf("rollback migration %s: %w", last, err)
		}
		_, err = r.db.ExecContext(ctx, `delete from `+migrationsTable+` where name = $1`, last)
		return err
	})
}

// Status returns applied migrations in application order.
func (r *Runner) Status(ctx context.Context) ([]string, error) {
	if err := r.ensureTables(ctx); err != nil {
		return nil, err
	}
	return r.history(ctx, migrationsTable)
}

// Seed applies seed files not yet recorded. Seeds are expected to be
// idempotent anyway; the bookkeeping just avoids useless round-trips.
func (r *Runner) Seed(ctx context.Context) error {
	return r.withLock(ctx, func() error {
		if err := r.ensureTables(ctx); err != nil {
			return err
		}
		applied, err := r.appliedSet(ctx, seedsTable)
		if err != nil {
			return err
		}
		files, err := r.collect(r.seedsDir, ".sql")
		if err != nil {
			return err
		}
		for _, name := range files {
			if applied[name] {
				continue
			}
			if err := r.execFile(ctx, r.seedsDir+"/"+name); err != nil {
				return fmt.Errorf("apply seed %s: %w", name, err)
			}
			if err := r.record(ctx, seedsTable, name); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *Runner) withLock(ctx context.Context, fn func() error) error {
	conn, err := r.db.Conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	if _, err := conn.ExecContext(ctx, `select pg_advisory_lock($1)`, lockKey); err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	defer func() {
		_, _ = conn.ExecContext(ctx, `select pg_advisory_unlock($1)`, lockKey)
	}()
	return fn()
}

func (r *Runner) ensureTables(ctx context.Context) error {
	for _, table := range []string{migrationsTable, seedsTable} {
		ddl := `create table if not exists ` + table + ` (
			name text primary key,
			applied_at timestamptz not null default now()
		)`
		if _, err := r.db.ExecContext(ctx, ddl); err != nil {
			return err
		}
	}
	return nil
}

// execFile runs one SQL file in a single transaction.
func (r *Runner) execFile(ctx context.Context, path string) error {
	raw, err := fs.ReadFile(r.src, path)
	if err != nil {
		return err
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, stmt := range splitStatements(string(raw)) {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *Runner) record(ctx context.Context, table, name string) error {
	_, err := r.db.ExecContext(ctx, `insert into `+table+`(name, applied_at) values ($1, $2)`,
		name, time.Now().UTC())
	return err
}

func (r *Runner) appliedSet(ctx context.Context, table string) (map[string]bool, error) {
	names, err := r.queryNames(ctx, `select name from `+table)
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set, nil
}

func (r *Runner) history(ctx context.Context, table string) ([]string, error) {
	return r.queryNames(ctx, `select name from `+table+` order by applied_at asc, name asc`)
}

func (r *Runner) queryNames(ctx context.Context, query string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// collect lists files in dir with the suffix, sorted by name. A missing dir
// is treated as empty.
func (r *Runner) collect(dir, suffix string) ([]string, error) {
	entries, err := fs.ReadDir(r.src, dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), suffix) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// splitStatements splits on semicolons outside single-quoted strings. Enough
// for the DDL shipped here; no function bodies with embedded semicolons.
func splitStatements(script string) []string {
	var (
		stmts    []string
		current  strings.Builder
		inString bool
	)
	for _, ch := range script {
		switch ch {
		case '\'':
			inString = !inString
			current.WriteRune(ch)
		case ';':
			if inString {
				current.WriteRune(ch)
				continue
			}
			stmts = append(stmts, current.String())
			current.Reset()
		default:
			current.WriteRune(ch)
		}
	}
	if strings.TrimSpace(current.String()) != "" {
		stmts = append(stmts, current.String())
	}
	return stmts
}
