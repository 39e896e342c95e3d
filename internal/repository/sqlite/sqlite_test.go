package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/Shivanand-hulikatti/membership-registry/internal/database"
	"github.com/Shivanand-hulikatti/membership-registry/internal/repository"
	"github.com/Shivanand-hulikatti/membership-registry/internal/repository/repositorytest"
	"github.com/Shivanand-hulikatti/membership-registry/internal/repository/sqlite"
)

func openStore(t *testing.T) repository.Store {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "registry.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if err := database.MigrateSQLite(context.Background(), db, sqlite.Migrations, "migrations"); err != nil {
		_ = db.Close()
		t.Fatalf("MigrateSQLite: %v", err)
	}
	store := sqlite.New(db)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStoreContract(t *testing.T) {
	repositorytest.Run(t, openStore)
}
