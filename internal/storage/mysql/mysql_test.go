package mysql

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/lugondev/go-ctoken/internal/config"
	"github.com/lugondev/go-ctoken/internal/storage"
)

// testConfig points at the database named by CTOKEN_MYSQL_HOST, e.g. a
// docker container on localhost. Tests skip when it is unset.
func testConfig(t *testing.T, database string) *config.MySQLConfig {
	t.Helper()
	host := os.Getenv("CTOKEN_MYSQL_HOST")
	if host == "" {
		t.Skip("Requires MySQL database - set CTOKEN_MYSQL_HOST to run")
	}
	return &config.MySQLConfig{
		Host:            host,
		Port:            3306,
		User:            "ctoken",
		Password:        "ctoken123",
		Database:        database,
		SSLMode:         "false",
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: 60,
	}
}

func TestDSN(t *testing.T) {
	cfg := &config.MySQLConfig{
		Host:     "db",
		Port:     3306,
		User:     "ctoken",
		Password: "secret",
		Database: "journal",
	}

	got := dsn(cfg)
	want := "ctoken:secret@tcp(db:3306)/journal?parseTime=true&multiStatements=true"
	if got != want {
		t.Errorf("dsn mismatch: got %s, want %s", got, want)
	}

	cfg.SSLMode = "disable"
	if strings.Contains(dsn(cfg), "tls=") {
		t.Errorf("disabled ssl mode must not set tls: %s", dsn(cfg))
	}

	cfg.SSLMode = "skip-verify"
	if !strings.HasSuffix(dsn(cfg), "&tls=skip-verify") {
		t.Errorf("ssl mode not applied: %s", dsn(cfg))
	}
}

func TestNewMySQLRepository(t *testing.T) {
	cfg := testConfig(t, "ctoken_test")

	ctx := context.Background()
	repo, err := NewMySQLRepository(ctx, cfg)
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	defer repo.Close()

	if err := repo.Ping(ctx); err != nil {
		t.Fatalf("failed to ping database: %v", err)
	}

	if repo.Journal() == nil {
		t.Error("Journal repository is nil")
	}
}

func TestJournalRepository_SaveAndFind(t *testing.T) {
	cfg := testConfig(t, "ctoken_test")

	ctx := context.Background()
	repo, err := NewMySQLRepository(ctx, cfg)
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	defer repo.Close()

	operationID := storage.NewOperationID()
	entry := &storage.JournalModel{
		ID:           storage.NewOperationID(),
		OperationID:  operationID,
		Kind:         storage.OperationLoad,
		Owner:        "Owner1111111111111111111111111111111111111",
		Mint:         "Mint11111111111111111111111111111111111111",
		Amount:       1_000_000,
		Signature:    "sig-" + operationID,
		BatchIndex:   0,
		BatchCount:   1,
		ComputeUnits: 230_000,
		Status:       storage.StatusConfirmed,
		CreatedAt:    time.Now().UTC().Truncate(time.Microsecond),
	}

	if err := repo.Journal().Save(ctx, entry); err != nil {
		t.Fatalf("failed to save entry: %v", err)
	}

	found, err := repo.Journal().FindBySignature(ctx, entry.Signature)
	if err != nil {
		t.Fatalf("failed to find entry: %v", err)
	}
	if found.OperationID != operationID {
		t.Errorf("operation mismatch: got %s, want %s", found.OperationID, operationID)
	}
	if found.Amount != entry.Amount {
		t.Errorf("amount mismatch: got %d, want %d", found.Amount, entry.Amount)
	}
	if found.Kind != storage.OperationLoad {
		t.Errorf("kind mismatch: got %s, want %s", found.Kind, storage.OperationLoad)
	}
}

func TestJournalRepository_SaveBatch(t *testing.T) {
	cfg := testConfig(t, "ctoken_test")

	ctx := context.Background()
	repo, err := NewMySQLRepository(ctx, cfg)
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	defer repo.Close()

	operationID := storage.NewOperationID()
	now := time.Now().UTC()
	var entries []*storage.JournalModel
	for i := 2; i >= 0; i-- {
		entries = append(entries, &storage.JournalModel{
			ID:          storage.NewOperationID(),
			OperationID: operationID,
			Kind:        storage.OperationLoad,
			Owner:       "BatchOwner",
			Mint:        "BatchMint",
			Amount:      uint64(100 * (i + 1)),
			BatchIndex:  i,
			BatchCount:  3,
			Status:      storage.StatusConfirmed,
			CreatedAt:   now,
		})
	}

	if err := repo.Journal().SaveBatch(ctx, entries); err != nil {
		t.Fatalf("failed to save batch: %v", err)
	}

	found, err := repo.Journal().FindByOperation(ctx, operationID)
	if err != nil {
		t.Fatalf("failed to find operation: %v", err)
	}
	if len(found) != 3 {
		t.Fatalf("entry count mismatch: got %d, want 3", len(found))
	}
	for i, e := range found {
		if e.BatchIndex != i {
			t.Errorf("entries not ordered by batch: position %d has batch %d", i, e.BatchIndex)
		}
	}
}

func TestMigrator(t *testing.T) {
	cfg := testConfig(t, "ctoken_test_migration")

	ctx := context.Background()
	repo, err := NewMySQLRepository(ctx, cfg)
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	defer repo.Close()

	migrator := NewMigrator(repo.db)
	states, err := migrator.Status(ctx)
	if err != nil {
		t.Fatalf("failed to get status: %v", err)
	}
	for _, s := range states {
		if !s.Applied {
			t.Errorf("migration %d not applied after open", s.Version)
		}
	}

	if err := migrator.Down(ctx, 1); err != nil {
		t.Fatalf("failed to revert: %v", err)
	}
	if v, err := migrator.Version(ctx); err != nil || v != 1 {
		t.Fatalf("version after revert: got %d (%v), want 1", v, err)
	}

	if err := migrator.Up(ctx); err != nil {
		t.Fatalf("failed to reapply: %v", err)
	}
	if v, err := migrator.Version(ctx); err != nil || v != migrations[len(migrations)-1].Version {
		t.Fatalf("version after reapply: got %d (%v)", v, err)
	}
}
