package models

import (
	"time"
)

const (
	RoleAdmin    = "Administrador"
	RoleManager  = "Gerente"
	RoleEmployee = "Empleado"

	// DefaultRole is granted to every account at registration.
	DefaultRole = RoleEmployee
)

// WellKnownRoles are seeded at startup.
var WellKnownRoles = []string{RoleAdmin, RoleManager, RoleEmployee}

type User struct {
	ID            uint           `gorm:"primaryKey;autoIncrement"          json:"id"`
	Username      string         `gorm:"size:200;uniqueIndex;not null"     json:"username"`
	Email         string         `gorm:"size:200;not null"                 json:"email"`
	FirstName     string         `gorm:"size:200;not null"                 json:"first_name"`
	FatherSurname string         `gorm:"size:200;not null"                 json:"father_surname"`
	MotherSurname string         `gorm:"size:200"                          json:"mother_surname"`
	PasswordHash  string         `gorm:"not null"                          json:"-"`
	Roles         []Role         `gorm:"many2many:users_roles;"            json:"roles"`
	RefreshTokens []RefreshToken `gorm:"constraint:OnDelete:CASCADE;"      json:"-"`
	CreatedAt     time.Time      `json:"created_at"`
}

func (u *User) RoleNames() []string {
	names := make([]string, 0, len(u.Roles))
	for _, r := range u.Roles {
		names = append(names, r.Name)
	}
	return names
}

type Role struct {
	ID   uint   `gorm:"primaryKey;autoIncrement"      json:"id"`
	Name string `gorm:"size:200;uniqueIndex;not null" json:"name"`
}

// RefreshToken is never deleted; revocation is a soft state.
// ReplacedByID points at the token that superseded this one.
type RefreshToken struct {
	ID           uint       `gorm:"primaryKey"            json:"id"`
	UserID       uint       `gorm:"index;not null"        json:"user_id"`
	Token        string     `gorm:"uniqueIndex;not null"  json:"-"`
	CreatedAt    time.Time  `gorm:"not null"              json:"created_at"`
	ExpiresAt    time.Time  `gorm:"not null"              json:"expires_at"`
	RevokedAt    *time.Time `gorm:"index"                 json:"revoked_at,omitempty"`
	ReplacedByID *uint      `gorm:"index"                 json:"replaced_by_id,omitempty"`
}

func (t *RefreshToken) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

func (t *RefreshToken) IsRevoked() bool {
	return t.RevokedAt != nil
}

func (t *RefreshToken) IsActive(now time.Time) bool {
	return !t.IsRevoked() && !t.IsExpired(now)
}

type Brand struct {
	ID   uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Name string `gorm:"size:100;not null"        json:"name"`
}

type Category struct {
	ID   uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Name string `gorm:"size:100;not null"        json:"name"`
}

type Product struct {
	ID         uint      `gorm:"primaryKey;autoIncrement"  json:"id"`
	Name       string    `gorm:"size:100;not null"         json:"name"`
	Price      float64   `gorm:"type:decimal(18,2)"        json:"price"`
	CreatedAt  time.Time `json:"created_at"`
	BrandID    uint      `gorm:"index;not null"            json:"brand_id"`
	Brand      *Brand    `json:"brand,omitempty"`
	CategoryID uint      `gorm:"index;not null"            json:"category_id"`
	Category   *Category `json:"category,omitempty"`
}

// Indexes are created after AutoMigrate. Usernames are unique regardless of case.
var Indexes = []string{
	"CREATE UNIQUE INDEX IF NOT EXISTS idx_users_username_lower ON users (LOWER(username))",
}

// All lists every table migrated at startup.
func All() []any {
	return []any{&Role{}, &User{}, &RefreshToken{}, &Brand{}, &Category{}, &Product{}}
}
