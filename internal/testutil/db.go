package testutil

import (
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Skotchmaster/tienda/internal/models"
)

// PostgresURLEnv names the variable that switches tests to a real postgres.
const PostgresURLEnv = "TIENDA_TEST_DATABASE_URL"

// NewDB returns a migrated in-memory sqlite database private to t.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sqlite handle: %v", err)
	}
	// every connection to :memory: is a separate database
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("failed to migrate tables: %v", err)
	}
	for _, stmt := range models.Indexes {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("failed to create index: %v", err)
		}
	}
	return db
}

// NewPostgresDB skips unless TIENDA_TEST_DATABASE_URL is set, then returns a
// migrated and truncated database.
func NewPostgresDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := os.Getenv(PostgresURLEnv)
	if dsn == "" {
		t.Skipf("%s not set", PostgresURLEnv)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	if err := db.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("failed to migrate tables: %v", err)
	}
	for _, stmt := range models.Indexes {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("failed to create index: %v", err)
		}
	}

	tables := []string{"products", "brands", "categories", "refresh_tokens", "users_roles", "users", "roles"}
	query := fmt.Sprintf("TRUNCATE TABLE %s RESTART IDENTITY CASCADE", strings.Join(tables, ", "))
	if err := db.Exec(query).Error; err != nil {
		t.Fatalf("truncate: %v", err)
	}

	sqlDB, _ := db.DB()
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

// SeedRoles inserts the well-known roles.
func SeedRoles(t testing.TB, db *gorm.DB) map[string]models.Role {
	t.Helper()

	out := make(map[string]models.Role, len(models.WellKnownRoles))
	for _, name := range models.WellKnownRoles {
		role := models.Role{Name: name}
		if err := db.Create(&role).Error; err != nil {
			t.Fatalf("seed role %s: %v", name, err)
		}
		out[name] = role
	}
	return out
}
