// Package migrations holds the SQL schema. Every file is idempotent, so
// Apply can run on each deploy.
package migrations

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"

	"dating_platform/internal/db"
)

//go:embed *.sql
var files embed.FS

// Names lists the migration files in apply order.
func Names() ([]string, error) {
	names, err := fs.Glob(files, "*.sql")
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

// Apply runs every migration in order. fn, when set, is called after each file.
func Apply(ctx context.Context, q db.Querier, fn func(name string)) error {
	names, err := Names()
	if err != nil {
		return err
	}
	for _, name := range names {
		b, err := files.ReadFile(name)
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		if _, err := q.Exec(ctx, string(b)); err != nil {
			return fmt.Errorf("apply %s: %w", name, err)
		}
		if fn != nil {
			fn(name)
		}
	}
	return nil
}
