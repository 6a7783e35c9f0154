package repository

import (
	"errors"
	"strings"

	"github.com/affpay-next/internal/models"

	"gorm.io/gorm"
)

// SecretRepository 网关凭证数据访问接口
type SecretRepository interface {
	GetByKey(key string) (*models.Secret, error)
	Upsert(key string, value models.JSON) (*models.Secret, error)
}

// GormSecretRepository GORM 实现
type GormSecretRepository struct {
	db *gorm.DB
}

// NewSecretRepository 创建凭证仓库
func NewSecretRepository(db *gorm.DB) *GormSecretRepository {
	return &GormSecretRepository{db: db}
}

// GetByKey 获取凭证（每次穿透到库，凭证可能被后台热更新）
func (r *GormSecretRepository) GetByKey(key string) (*models.Secret, error) {
	normalized := strings.TrimSpace(key)
	if normalized == "" {
		return nil, nil
	}
	var secret models.Secret
	if err := r.db.Where("key = ?", normalized).First(&secret).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &secret, nil
}

// Upsert 更新或创建凭证
func (r *GormSecretRepository) Upsert(key string, value models.JSON) (*models.Secret, error) {
	secret, err := r.GetByKey(key)
	if err != nil {
		return nil, err
	}
	if secret == nil {
		secret = &models.Secret{
			Key:       strings.TrimSpace(key),
			ValueJSON: value,
		}
		if err := r.db.Create(secret).Error; err != nil {
			return nil, err
		}
		return secret, nil
	}

	secret.ValueJSON = value
	if err := r.db.Save(secret).Error; err != nil {
		return nil, err
	}
	return secret, nil
}
