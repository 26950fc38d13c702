package repo

import (
	"context"
	"errors"

	"github.com/Skotchmaster/auth_platform/internal/models"
	"github.com/Skotchmaster/auth_platform/internal/subject"
	"gorm.io/gorm"
)

func (r *GormRepo) CreateRefreshToken(ctx context.Context, subj subject.Subject, token string) (*models.RefreshToken, error) {
	record := models.RefreshToken{
		SubjectType: string(subj.Type),
		SubjectID:   subj.ID,
		Token:       token,
		IsActive:    true,
	}
	if err := r.DB.WithContext(ctx).Create(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *GormRepo) FindRefreshByID(ctx context.Context, id uint) (*models.RefreshToken, error) {
	var record models.RefreshToken
	if err := r.DB.WithContext(ctx).Where("id = ?", id).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &record, nil
}

func (r *GormRepo) FindRefreshByValue(ctx context.Context, token string) (*models.RefreshToken, error) {
	var record models.RefreshToken
	if err := r.DB.WithContext(ctx).Where("token = ?", token).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &record, nil
}

func (r *GormRepo) CountActive(ctx context.Context, subj subject.Subject) (int64, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&models.RefreshToken{}).
		Where("subject_type = ? AND subject_id = ? AND is_active = ?", string(subj.Type), subj.ID, true).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

// OldestActive returns up to n active records for the subject, oldest first.
func (r *GormRepo) OldestActive(ctx context.Context, subj subject.Subject, n int) ([]models.RefreshToken, error) {
	var records []models.RefreshToken
	err := r.DB.WithContext(ctx).
		Where("subject_type = ? AND subject_id = ? AND is_active = ?", string(subj.Type), subj.ID, true).
		Order("created_at ASC, id ASC").
		Limit(n).
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Deactivate flips is_active in a single conditional UPDATE so concurrent
// readers see either the fully-active or fully-inactive row. Deactivating an
// already-inactive record is a no-op, not an error.
func (r *GormRepo) Deactivate(ctx context.Context, id uint, reason string) error {
	return r.DB.WithContext(ctx).Model(&models.RefreshToken{}).
		Where("id = ? AND is_active = ?", id, true).
		Updates(map[string]interface{}{
			"is_active":          false,
			"deactivated_reason": reason,
		}).Error
}

// DeactivateAllActive revokes every active record of the subject and returns
// how many rows actually flipped.
func (r *GormRepo) DeactivateAllActive(ctx context.Context, subj subject.Subject, reason string) (int64, error) {
	tx := r.DB.WithContext(ctx).Model(&models.RefreshToken{}).
		Where("subject_type = ? AND subject_id = ? AND is_active = ?", string(subj.Type), subj.ID, true).
		Updates(map[string]interface{}{
			"is_active":          false,
			"deactivated_reason": reason,
		})
	if tx.Error != nil {
		return 0, tx.Error
	}
	return tx.RowsAffected, nil
}
