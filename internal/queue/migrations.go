package queue

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migration files are named NNNN_description.sql and applied in name order.
var migrationName = regexp.MustCompile(`^\d{4}_[a-z0-9_]+\.sql$`)

type migration struct {
	version string
	sql     string
}

var embeddedMigrations = sync.OnceValues(func() ([]migration, error) {
	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if !migrationName.MatchString(entry.Name()) {
			return nil, fmt.Errorf("migration %q does not match NNNN_name.sql", entry.Name())
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	out := make([]migration, 0, len(names))
	for _, name := range names {
		data, err := migrationFS.ReadFile("migrations/" + name)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}
		out = append(out, migration{version: strings.TrimSuffix(name, ".sql"), sql: string(data)})
	}
	return out, nil
})

// latestMigration returns the highest embedded migration version.
func latestMigration() string {
	migrations, err := embeddedMigrations()
	if err != nil || len(migrations) == 0 {
		return ""
	}
	return migrations[len(migrations)-1].version
}

// applyMigrations brings the queue schema up to date, one write transaction
// per migration. A database written by a newer build is refused so queued
// mutations are never read through an older schema.
func (s *Store) applyMigrations(ctx context.Context) error {
	migrations, err := embeddedMigrations()
	if err != nil {
		return err
	}

	if _, err := s.execWithRetry(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version TEXT PRIMARY KEY,
		applied_at TEXT NOT NULL DEFAULT ''
	)`); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}

	applied, err := s.appliedMigrations(ctx)
	if err != nil {
		return err
	}
	if newest := maxVersion(applied); newest != "" && newest > latestMigration() {
		return fmt.Errorf("queue schema %s is newer than this build supports (%s)", newest, latestMigration())
	}

	for _, m := range migrations {
		if applied[m.version] {
			continue
		}
		err := s.withWriteTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, m.sql); err != nil {
				return fmt.Errorf("apply migration %s: %w", m.version, err)
			}
			_, err := tx.ExecContext(ctx,
				"INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)",
				m.version, formatSortTime(s.now()))
			return err
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) appliedMigrations(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("read schema_migrations: %w", err)
	}
	defer rows.Close()
	applied := make(map[string]bool)
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("scan migration version: %w", err)
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

func maxVersion(versions map[string]bool) string {
	newest := ""
	for v := range versions {
		if v > newest {
			newest = v
		}
	}
	return newest
}
