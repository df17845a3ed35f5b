// Command migrate applies the dirsentry schema: the credentials table and
// the append-only audit log. Migrations are embedded and tracked in a
// bookkeeping table so re-running is safe.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type migration struct {
	Name string
	SQL  string
}

var migrations = []migration{
	{
		Name: "0001_credentials",
		SQL: `
			create table if not exists credentials (
				identifier    text primary key,
				name          text not null default '',
				role          text not null,
				password_hash text not null,
				created_at    timestamptz not null default now(),
				updated_at    timestamptz not null default now()
			);`,
	},
	{
		Name: "0002_audit_log",
		SQL: `
			create table if not exists audit_log (
				id             text primary key,
				occurred_at    timestamptz not null,
				event_type     text not null,
				severity       text not null,
				principal_id   text not null default '',
				principal_role text not null default '',
				session_id     text not null default '',
				details        jsonb not null default '{}'::jsonb
			);
			create index if not exists audit_log_occurred_at_idx on audit_log (occurred_at desc);
			create index if not exists audit_log_event_type_idx on audit_log (event_type);`,
	},
}

func main() {
	log.SetFlags(0)
	var (
		dsn = flag.String("dsn", os.Getenv("DIRSENTRY_PG_DSN"), "PostgreSQL DSN")
	)
	flag.Parse()

	if *dsn == "" {
		log.Fatal("missing DSN: provide via -dsn or DIRSENTRY_PG_DSN")
	}
	if len(flag.Args()) == 0 {
		log.Fatal("usage: migrate [up|status]")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := sql.Open("pgx", *dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	switch flag.Arg(0) {
	case "up":
		err = up(ctx, db)
	case "status":
		var applied []string
		applied, err = status(ctx, db)
		if err == nil {
			for _, name := range applied {
				fmt.Println(name)
			}
		}
	default:
		log.Fatalf("unknown command %q", flag.Arg(0))
	}
	if err != nil {
		log.Fatalf("migrate %s: %v", flag.Arg(0), err)
	}
}

func up(ctx context.Context, db *sql.DB) error {
	if err := ensureBookkeeping(ctx, db); err != nil {
		return err
	}
	applied, err := appliedSet(ctx, db)
	if err != nil {
		return err
	}
	for _, m := range migrations {
		if applied[m.Name] {
			continue
		}
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply %s: %w", m.Name, err)
		}
		if _, err := tx.ExecContext(ctx,
			`insert into schema_migrations(name, applied_at) values ($1, $2)`,
			m.Name, time.Now().UTC()); err != nil {
			_ = tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		log.Printf("applied %s", m.Name)
	}
	return nil
}

func appliedSet(ctx context.Context, db *sql.DB) (map[string]bool, error) {
	names, err := status(ctx, db)
	if err != nil {
		return nil, err
	}
	applied := make(map[string]bool, len(names))
	for _, name := range names {
		applied[name] = true
	}
	return applied, nil
}

func status(ctx context.Context, db *sql.DB) ([]string, error) {
	if err := ensureBookkeeping(ctx, db); err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `select name from schema_migrations order by applied_at asc`)
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

func ensureBookkeeping(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		create table if not exists schema_migrations (
			name text primary key,
			applied_at timestamptz not null default now()
		);`)
	return err
}
