package repo

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/Skotchmaster/tienda/internal/models"
)

// FindUserByRefreshToken looks the token up across all users.
func (r *GormRepo) FindUserByRefreshToken(ctx context.Context, token string) (*models.User, *models.RefreshToken, error) {
	var stored models.RefreshToken
	if err := r.DB.WithContext(ctx).Where("token = ?", token).First(&stored).Error; err != nil {
		return nil, nil, translate(err)
	}

	user, err := r.FindUserByID(ctx, stored.UserID)
	if err != nil {
		return nil, nil, err
	}
	return user, &stored, nil
}

// FindActiveRefreshToken returns the oldest token of the user that is still active at now.
func (r *GormRepo) FindActiveRefreshToken(ctx context.Context, userID uint, now time.Time) (*models.RefreshToken, error) {
	var candidates []models.RefreshToken
	err := r.DB.WithContext(ctx).
		Where("user_id = ? AND revoked_at IS NULL", userID).
		Order("id ASC").
		Find(&candidates).Error
	if err != nil {
		return nil, translate(err)
	}

	for i := range candidates {
		if candidates[i].IsActive(now) {
			return &candidates[i], nil
		}
	}
	return nil, ErrNotFound
}

func (r *GormRepo) RefreshTokensOf(ctx context.Context, userID uint) ([]models.RefreshToken, error) {
	var list []models.RefreshToken
	if err := r.DB.WithContext(ctx).Where("user_id = ?", userID).Order("id ASC").Find(&list).Error; err != nil {
		return nil, translate(err)
	}
	return list, nil
}

func (r *GormRepo) AddRefreshToken(ctx context.Context, t *models.RefreshToken) error {
	if err := r.DB.WithContext(ctx).Create(t).Error; err != nil {
		return fmt.Errorf("add refresh token: %w", translate(err))
	}
	return nil
}

func revokeIfActive(db *gorm.DB, id uint, at time.Time, replacedBy *uint) (bool, error) {
	updates := map[string]any{"revoked_at": at}
	if replacedBy != nil {
		updates["replaced_by_id"] = *replacedBy
	}

	res := db.Model(&models.RefreshToken{}).
		Where("id = ? AND revoked_at IS NULL", id).
		Updates(updates)
	if res.Error != nil {
		return false, translate(res.Error)
	}
	return res.RowsAffected == 1, nil
}

// RevokeRefreshToken reports ErrTokenNotActive when the token was already revoked.
func (r *GormRepo) RevokeRefreshToken(ctx context.Context, id uint, at time.Time) error {
	ok, err := revokeIfActive(r.DB.WithContext(ctx), id, at.UTC(), nil)
	if err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	if !ok {
		return ErrTokenNotActive
	}
	return nil
}

// RotateRefreshToken inserts next and revokes old in one transaction.
// The revoke only matches while old.revoked_at is NULL, so of two concurrent
// rotations of the same token exactly one commits.
func (r *GormRepo) RotateRefreshToken(ctx context.Context, old *models.RefreshToken, next *models.RefreshToken, at time.Time) error {
	at = at.UTC()
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(next).Error; err != nil {
			return fmt.Errorf("insert successor: %w", translate(err))
		}

		ok, err := revokeIfActive(tx, old.ID, at, &next.ID)
		if err != nil {
			return fmt.Errorf("revoke predecessor: %w", err)
		}
		if !ok {
			return ErrTokenNotActive
		}
		return nil
	})
	if err != nil {
		next.ID = 0
		return err
	}

	successor := next.ID
	old.RevokedAt = &at
	old.ReplacedByID = &successor
	return nil
}
