package postgres

import (
	"context"
	"fmt"
	"io/fs"
	"sort"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/petrovskifilip/agri-management-system/internal/postgres/migrations"
)

// Migrate applies every embedded migration in file-name order. The schema files
// are idempotent, so running it against an up-to-date database is a no-op.
// applied receives the name of each file after it runs; it may be nil.
func Migrate(ctx context.Context, pool *pgxpool.Pool, applied func(name string)) error {
	files, err := fs.Glob(migrations.FS, "*.sql")
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}
	sort.Strings(files)

	for _, f := range files {
		sql, err := migrations.FS.ReadFile(f)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", f, err)
		}
		if _, err := pool.Exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("execute migration %s: %w", f, err)
		}
		if applied != nil {
			applied(f)
		}
	}
	return nil
}
