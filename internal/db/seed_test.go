package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/Skotchmaster/tienda/internal/hash"
	"github.com/Skotchmaster/tienda/internal/models"
	"github.com/Skotchmaster/tienda/internal/testutil"
)

func TestSeedRolesIdempotent(t *testing.T) {
	gdb := testutil.NewDB(t)
	ctx := context.Background()

	require.NoError(t, SeedRoles(ctx, gdb))
	require.NoError(t, SeedRoles(ctx, gdb))

	var names []string
	require.NoError(t, gdb.Model(&models.Role{}).Order("id").Pluck("name", &names).Error)
	assert.Equal(t, models.WellKnownRoles, names)
}

func TestSeedAdmin(t *testing.T) {
	gdb := testutil.NewDB(t)
	ctx := context.Background()
	hasher := hash.Bcrypt{Cost: 4}
	require.NoError(t, SeedRoles(ctx, gdb))

	seed := AdminSeed{Username: "admin", Password: "s3cret", Email: "admin@example.com"}
	require.NoError(t, SeedAdmin(ctx, gdb, hasher, seed))
	require.NoError(t, SeedAdmin(ctx, gdb, hasher, seed))

	var users []models.User
	require.NoError(t, gdb.Preload("Roles").Find(&users).Error)
	require.Len(t, users, 1)
	assert.ElementsMatch(t, []string{models.RoleAdmin, models.DefaultRole}, users[0].RoleNames())
	assert.Equal(t, hash.VerifySuccess, hasher.Verify(users[0].PasswordHash, "s3cret"))
}

func TestSeedAdminSkippedWithoutPassword(t *testing.T) {
	gdb := testutil.NewDB(t)
	ctx := context.Background()
	require.NoError(t, SeedRoles(ctx, gdb))

	require.NoError(t, SeedAdmin(ctx, gdb, hash.Bcrypt{Cost: 4}, AdminSeed{Username: "admin"}))

	var count int64
	require.NoError(t, gdb.Model(&models.User{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestSeedAdminNeedsRoles(t *testing.T) {
	gdb := testutil.NewDB(t)
	err := SeedAdmin(context.Background(), gdb, hash.Bcrypt{Cost: 4}, AdminSeed{Username: "admin", Password: "x"})
	assert.Error(t, err)
}

func TestOpenRejectsEmptyDSN(t *testing.T) {
	_, err := Open(context.Background(), "")
	assert.Error(t, err)
}

func TestMigrateAndPingOnPostgres(t *testing.T) {
	gdb := testutil.NewPostgresDB(t)
	ctx := context.Background()
	require.NoError(t, Migrate(ctx, gdb))
	require.NoError(t, Ping(ctx, gdb))
	require.NoError(t, SeedRoles(ctx, gdb))
}

func TestMigrateEnforcesCaseInsensitiveUsernames(t *testing.T) {
	for name, open := range map[string]func(testing.TB) *gorm.DB{
		"sqlite":   testutil.NewDB,
		"postgres": testutil.NewPostgresDB,
	} {
		t.Run(name, func(t *testing.T) {
			gdb := open(t)
			ctx := context.Background()
			require.NoError(t, Migrate(ctx, gdb))

			first := models.User{Username: "Ana", Email: "a@example.com", FirstName: "Ana", FatherSurname: "Lopez", PasswordHash: "h"}
			require.NoError(t, gdb.Create(&first).Error)

			second := models.User{Username: "ana", Email: "b@example.com", FirstName: "Ana", FatherSurname: "Lopez", PasswordHash: "h"}
			assert.Error(t, gdb.Create(&second).Error)
		})
	}
}
