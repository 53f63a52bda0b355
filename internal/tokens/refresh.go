package tokens

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/Skotchmaster/tienda/internal/models"
)

const (
	refreshTokenBytes = 32

	DefaultRefreshTTL = 10 * 24 * time.Hour
)

// NewRefreshToken returns an unsaved token of 256 random bits, base64 encoded.
func NewRefreshToken(userID uint, now time.Time, ttl time.Duration) (*models.RefreshToken, error) {
	if ttl <= 0 {
		ttl = DefaultRefreshTTL
	}

	b := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}

	now = now.UTC()
	return &models.RefreshToken{
		UserID:    userID,
		Token:     base64.StdEncoding.EncodeToString(b),
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}, nil
}
