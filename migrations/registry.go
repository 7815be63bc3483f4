package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strings"

	adconnect "github.com/goliatone/go-adconnect"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"

	// SourceLabel tags connection record migrations in the host's migrator.
	SourceLabel = "go-adconnect"

	migrationsDir = "data/sql/migrations"
)

// Source is one dialect's connection record migrations.
type Source struct {
	Dialect string
	Path    string
	FS      fs.FS
}

type RegisterFunc func(ctx context.Context, dialect string, sourceLabel string, fsys fs.FS) error

type Option func(*registerOptions)

type registerOptions struct {
	dialects []string
	root     fs.FS
}

// ForDialects limits registration to the named dialects.
func ForDialects(dialects ...string) Option {
	return func(o *registerOptions) {
		o.dialects = nil
		for _, dialect := range dialects {
			dialect = strings.ToLower(strings.TrimSpace(dialect))
			if dialect != "" && !slices.Contains(o.dialects, dialect) {
				o.dialects = append(o.dialects, dialect)
			}
		}
	}
}

// FromFS reads migrations from root instead of the embedded tree.
func FromFS(root fs.FS) Option {
	return func(o *registerOptions) {
		if root != nil {
			o.root = root
		}
	}
}

// Sources returns the postgres and sqlite migrations under
// data/sql/migrations of root. Every up migration needs its down pair so a
// connection record schema change can be rolled back.
func Sources(root fs.FS) ([]Source, error) {
	if root == nil {
		root = adconnect.GetMigrationsFS()
	}
	sources := []Source{
		{Dialect: DialectPostgres, Path: migrationsDir},
		{Dialect: DialectSQLite, Path: path.Join(migrationsDir, DialectSQLite)},
	}
	for i := range sources {
		sub, err := fs.Sub(root, sources[i].Path)
		if err != nil {
			return nil, fmt.Errorf("migrations: open %s migrations: %w", sources[i].Dialect, err)
		}
		if err := checkPairs(sub); err != nil {
			return nil, fmt.Errorf("migrations: %s (%s): %w", sources[i].Dialect, sources[i].Path, err)
		}
		sources[i].FS = sub
	}
	return sources, nil
}

func checkPairs(fsys fs.FS) error {
	ups, err := fs.Glob(fsys, "*.up.sql")
	if err != nil {
		return err
	}
	if len(ups) == 0 {
		return fmt.Errorf("no *.up.sql files")
	}
	for _, up := range ups {
		down := strings.TrimSuffix(up, ".up.sql") + ".down.sql"
		if _, err := fs.Stat(fsys, down); err != nil {
			return fmt.Errorf("%s has no matching %s", up, down)
		}
	}
	return nil
}

// Register hands each requested dialect's migrations to registerFn under
// SourceLabel. Both dialects are registered by default.
func Register(ctx context.Context, registerFn RegisterFunc, opts ...Option) ([]Source, error) {
	if registerFn == nil {
		return nil, fmt.Errorf("migrations: register function is required")
	}
	options := registerOptions{dialects: []string{DialectPostgres, DialectSQLite}}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	if len(options.dialects) == 0 {
		return nil, fmt.Errorf("migrations: at least one dialect is required")
	}

	sources, err := Sources(options.root)
	if err != nil {
		return nil, err
	}
	registered := make([]Source, 0, len(options.dialects))
	for _, dialect := range options.dialects {
		idx := slices.IndexFunc(sources, func(source Source) bool { return source.Dialect == dialect })
		if idx < 0 {
			return registered, fmt.Errorf("migrations: unsupported dialect %q", dialect)
		}
		source := sources[idx]
		if err := registerFn(ctx, source.Dialect, SourceLabel, source.FS); err != nil {
			return registered, fmt.Errorf("migrations: register %s (%s): %w", source.Dialect, source.Path, err)
		}
		registered = append(registered, source)
	}
	return registered, nil
}
