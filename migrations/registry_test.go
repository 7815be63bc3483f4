package migrations

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	adconnect "github.com/goliatone/go-adconnect"
	_ "github.com/mattn/go-sqlite3"
)

func TestSources_EmbeddedTreeHasBothDialects(t *testing.T) {
	sources, err := Sources(nil)
	if err != nil {
		t.Fatalf("sources: %v", err)
	}
	dialects := []string{}
	for _, source := range sources {
		dialects = append(dialects, source.Dialect)
		if _, err := fs.Stat(source.FS, "00001_adconnect_connection_records.up.sql"); err != nil {
			t.Fatalf("expected %s connection record migration: %v", source.Dialect, err)
		}
	}
	if strings.Join(dialects, ",") != "postgres,sqlite" {
		t.Fatalf("expected postgres then sqlite, got %v", dialects)
	}
}

func TestSources_RequiresDownMigrations(t *testing.T) {
	tree := fstest.MapFS{
		"data/sql/migrations/00001_records.up.sql":          {Data: []byte("SELECT 1;")},
		"data/sql/migrations/00001_records.down.sql":        {Data: []byte("SELECT 1;")},
		"data/sql/migrations/sqlite/00001_records.up.sql":   {Data: []byte("SELECT 1;")},
		"data/sql/migrations/sqlite/00002_accounts.up.sql":  {Data: []byte("SELECT 1;")},
		"data/sql/migrations/sqlite/00001_records.down.sql": {Data: []byte("SELECT 1;")},
	}
	_, err := Sources(tree)
	if err == nil || !strings.Contains(err.Error(), "00002_accounts.up.sql") {
		t.Fatalf("expected missing down migration to be reported, got %v", err)
	}

	if _, err := Sources(fstest.MapFS{}); err == nil {
		t.Fatalf("expected empty tree to be rejected")
	}
}

func TestRegister_ForDialects(t *testing.T) {
	var calls []string
	registered, err := Register(context.Background(), func(_ context.Context, dialect string, label string, _ fs.FS) error {
		if label != SourceLabel {
			t.Fatalf("expected source label %q, got %q", SourceLabel, label)
		}
		calls = append(calls, dialect)
		return nil
	}, ForDialects(" SQLite ", "sqlite"))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if len(calls) != 1 || calls[0] != DialectSQLite || len(registered) != 1 {
		t.Fatalf("expected a single sqlite registration, got %v", calls)
	}

	if _, err := Register(context.Background(), func(context.Context, string, string, fs.FS) error {
		return nil
	}, ForDialects("mysql")); err == nil {
		t.Fatalf("expected unsupported dialect error")
	}
	if _, err := Register(context.Background(), nil); err == nil {
		t.Fatalf("expected missing register function error")
	}
}

func TestRegister_StopsOnFailure(t *testing.T) {
	calls := 0
	registered, err := Register(context.Background(), func(context.Context, string, string, fs.FS) error {
		calls++
		return errors.New("migrator closed")
	})
	if err == nil {
		t.Fatalf("expected registration error")
	}
	if calls != 1 || len(registered) != 0 {
		t.Fatalf("expected registration to stop at the first failure, got %d calls", calls)
	}
}

func TestConnectionRecordMigrationPair_ExistsForBothDialects(t *testing.T) {
	root := adconnect.GetMigrationsFS()
	paths := []string{
		"data/sql/migrations/00001_adconnect_connection_records.up.sql",
		"data/sql/migrations/00001_adconnect_connection_records.down.sql",
		"data/sql/migrations/sqlite/00001_adconnect_connection_records.up.sql",
		"data/sql/migrations/sqlite/00001_adconnect_connection_records.down.sql",
	}
	for _, migrationPath := range paths {
		content, err := fs.ReadFile(root, migrationPath)
		if err != nil {
			t.Fatalf("read migration %s: %v", migrationPath, err)
		}
		if strings.TrimSpace(string(content)) == "" {
			t.Fatalf("expected migration %s to have SQL content", migrationPath)
		}
	}
}

func TestSQLiteConnectionRecordMigration_ApplyAndRollback(t *testing.T) {
	db, err := sql.Open("sqlite3", "file:migrations-connection-records?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	defer func() { _ = db.Close() }()

	sqliteMigrations, err := fs.Sub(adconnect.GetMigrationsFS(), "data/sql/migrations/sqlite")
	if err != nil {
		t.Fatalf("resolve sqlite migrations: %v", err)
	}

	if err := execSQLMigration(context.Background(), db, sqliteMigrations, "00001_adconnect_connection_records.up.sql"); err != nil {
		t.Fatalf("apply connection record migration up: %v", err)
	}

	insertStatement := `
		INSERT INTO adconnect_connection_records (id, tenant_id, status, version)
		VALUES (?, ?, ?, ?)
	`
	if _, err := db.ExecContext(context.Background(), insertStatement, "rec_1", "tenant_1", "connected", 1); err != nil {
		t.Fatalf("insert connection record: %v", err)
	}
	if _, err := db.ExecContext(context.Background(), insertStatement, "rec_2", "tenant_1", "connected", 1); err == nil {
		t.Fatalf("expected one record per tenant")
	}
	if _, err := db.ExecContext(context.Background(), insertStatement, "rec_3", "tenant_2", "pending", 1); err == nil {
		t.Fatalf("expected status check constraint to reject unknown status")
	}

	var indexCount int
	if err := db.QueryRowContext(
		context.Background(),
		`SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?`,
		"adconnect_connection_records_stale_idx",
	).Scan(&indexCount); err != nil {
		t.Fatalf("query stale index: %v", err)
	}
	if indexCount != 1 {
		t.Fatalf("expected stale record index after up migration")
	}

	if err := execSQLMigration(context.Background(), db, sqliteMigrations, "00001_adconnect_connection_records.down.sql"); err != nil {
		t.Fatalf("apply connection record migration down: %v", err)
	}

	var tableCount int
	if err := db.QueryRowContext(
		context.Background(),
		`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`,
		"adconnect_connection_records",
	).Scan(&tableCount); err != nil {
		t.Fatalf("query table after down migration: %v", err)
	}
	if tableCount != 0 {
		t.Fatalf("expected adconnect_connection_records to be dropped after down migration")
	}
}

func execSQLMigration(ctx context.Context, db *sql.DB, fsys fs.FS, filename string) error {
	content, err := fs.ReadFile(fsys, filepath.Clean(filename))
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, string(content))
	return err
}
