package repo

import (
	"context"
	"errors"

	"github.com/Skotchmaster/auth_platform/internal/models"
	"github.com/Skotchmaster/auth_platform/internal/subject"
	"gorm.io/gorm"
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrAccountExists = errors.New("account already exists")
)

type GormRepo struct {
	DB *gorm.DB
}

func (r *GormRepo) CreateAccount(ctx context.Context, a *models.Account) error {
	tx := r.DB.WithContext(ctx).
		Where("subject_type = ? AND username = ?", a.SubjectType, a.Username).
		FirstOrCreate(a)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return ErrAccountExists
	}
	return nil
}

func (r *GormRepo) FindAccount(ctx context.Context, subj subject.Subject) (*models.Account, error) {
	var account models.Account
	err := r.DB.WithContext(ctx).
		Where("id = ? AND subject_type = ?", subj.ID, string(subj.Type)).
		First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &account, nil
}

func (r *GormRepo) FindAccountByUsername(ctx context.Context, typ subject.Type, username string) (*models.Account, error) {
	var account models.Account
	err := r.DB.WithContext(ctx).
		Where("subject_type = ? AND username = ?", string(typ), username).
		First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &account, nil
}
