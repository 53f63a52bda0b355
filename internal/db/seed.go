package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"gorm.io/gorm"

	"github.com/Skotchmaster/tienda/internal/hash"
	"github.com/Skotchmaster/tienda/internal/models"
)

type AdminSeed struct {
	Username string
	Password string
	Email    string
}

// SeedRoles creates the well-known roles that are missing. Safe to run on every boot.
func SeedRoles(ctx context.Context, db *gorm.DB) error {
	for _, name := range models.WellKnownRoles {
		var role models.Role
		err := db.WithContext(ctx).
			Where("LOWER(name) = ?", strings.ToLower(name)).
			Attrs(models.Role{Name: name}).
			FirstOrCreate(&role).Error
		if err != nil {
			return fmt.Errorf("seed role %s: %w", name, err)
		}
	}
	return nil
}

// SeedAdmin creates the administrator account once. It does nothing without a
// password or when the username is taken.
func SeedAdmin(ctx context.Context, db *gorm.DB, hasher hash.Hasher, seed AdminSeed) error {
	if seed.Password == "" || seed.Username == "" {
		return nil
	}

	var existing models.User
	err := db.WithContext(ctx).
		Where("LOWER(username) = ?", strings.ToLower(seed.Username)).
		First(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("look up admin: %w", err)
	}

	var roles []models.Role
	if err := db.WithContext(ctx).Where("name IN ?", []string{models.RoleAdmin, models.DefaultRole}).Find(&roles).Error; err != nil {
		return fmt.Errorf("load admin roles: %w", err)
	}
	if len(roles) != 2 {
		return fmt.Errorf("admin roles not seeded")
	}

	hashed, err := hasher.Hash(seed.Password)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	admin := models.User{
		Username:      seed.Username,
		Email:         seed.Email,
		FirstName:     "Administrador",
		FatherSurname: "Sistema",
		PasswordHash:  hashed,
		Roles:         roles,
	}
	if err := db.WithContext(ctx).Omit("Roles.*").Create(&admin).Error; err != nil {
		return fmt.Errorf("create admin: %w", err)
	}

	slog.Info("admin_seeded", "username", admin.Username, "user_id", admin.ID)
	return nil
}
