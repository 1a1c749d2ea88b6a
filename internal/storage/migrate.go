package storage

import (
	"context"
	"embed"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

//go:embed migrations/*.sql
var migrationScripts embed.FS

type migration struct {
	version int
	script  string
}

// migrate brings the schema up to the latest embedded migration, tracking
// progress in a single-row schema_version table. Each script runs in its
// own transaction on the async-write pool.
func (d *Databases) migrate(ctx context.Context) error {
	migrations, err := loadMigrations()
	if err != nil {
		return err
	}

	var schemaVersion int
	err = WithTransaction(ctx, d.AsyncWrite, false, func(ctx context.Context, tx *Transaction) error {
		if _, err := tx.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
			return fmt.Errorf("create schema_version table: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_version (version) SELECT 0 WHERE NOT EXISTS (SELECT 1 FROM schema_version)`); err != nil {
			return fmt.Errorf("seed schema_version: %w", err)
		}
		return tx.QueryRowContext(ctx, `SELECT version FROM schema_version`).Scan(&schemaVersion)
	})
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.version <= schemaVersion {
			continue
		}
		err := WithTransaction(ctx, d.AsyncWrite, false, func(ctx context.Context, tx *Transaction) error {
			if _, err := tx.ExecContext(ctx, m.script); err != nil {
				return fmt.Errorf("run migration %d: %w", m.version, err)
			}
			if _, err := tx.ExecContext(ctx, `UPDATE schema_version SET version = ?`, m.version); err != nil {
				return fmt.Errorf("advance schema_version to %d: %w", m.version, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// loadMigrations reads every embedded NNNN_name.sql file and sorts them by
// their numeric prefix.
func loadMigrations() ([]migration, error) {
	entries, err := migrationScripts.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	migrations := make([]migration, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		prefix, _, ok := strings.Cut(name, "_")
		if !ok {
			return nil, fmt.Errorf("migration file %q missing NNNN_ prefix", name)
		}
		version, err := strconv.Atoi(prefix)
		if err != nil {
			return nil, fmt.Errorf("migration file %q has non-numeric prefix: %w", name, err)
		}
		content, err := migrationScripts.ReadFile("migrations/" + name)
		if err != nil {
			return nil, fmt.Errorf("read migration %q: %w", name, err)
		}
		migrations = append(migrations, migration{version: version, script: string(content)})
	}

	sort.Slice(migrations, func(i, j int) bool { return migrations[i].version < migrations[j].version })
	return migrations, nil
}
