package repository

import (
	"errors"
	"strings"
	"time"

	"github.com/affpay-next/internal/models"

	"gorm.io/gorm"
)

// AffiliateRepository 联盟客数据访问接口
type AffiliateRepository interface {
	Transaction(fn func(tx *gorm.DB) error) error
	WithTx(tx *gorm.DB) AffiliateRepository

	GetByID(id uint) (*models.Affiliate, error)
	Create(affiliate *models.Affiliate) error
	UpdateStatus(id uint, status string, updatedAt time.Time) error
	UpdateFields(id uint, updates map[string]interface{}) error
	List(filter AffiliateListFilter) ([]models.Affiliate, int64, error)

	CreditPendingEarnings(id uint, amount int64, now time.Time) error
	DebitPendingEarnings(id uint, amount int64, now time.Time) error
	SettlePendingToPaid(id uint, amount int64, now time.Time) error
	SettlePendingToAvailable(id uint, amount int64, now time.Time) error

	CreateLink(link *models.AffiliateLink) error
	GetLinkByID(id uint) (*models.AffiliateLink, error)
	GetLinkByCode(code string) (*models.AffiliateLink, error)
	IncrementLinkConversions(linkID uint) error
}

// GormAffiliateRepository GORM 联盟客仓储
type GormAffiliateRepository struct {
	db *gorm.DB
}

// NewAffiliateRepository 创建联盟客仓储
func NewAffiliateRepository(db *gorm.DB) *GormAffiliateRepository {
	return &GormAffiliateRepository{db: db}
}

// WithTx 绑定事务
func (r *GormAffiliateRepository) WithTx(tx *gorm.DB) AffiliateRepository {
	if tx == nil {
		return r
	}
	return &GormAffiliateRepository{db: tx}
}

// Transaction 执行事务
func (r *GormAffiliateRepository) Transaction(fn func(tx *gorm.DB) error) error {
	if fn == nil {
		return nil
	}
	return r.db.Transaction(fn)
}

// GetByID 按ID获取联盟客
func (r *GormAffiliateRepository) GetByID(id uint) (*models.Affiliate, error) {
	if id == 0 {
		return nil, nil
	}
	var affiliate models.Affiliate
	if err := r.db.First(&affiliate, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &affiliate, nil
}

// Create 创建联盟客
func (r *GormAffiliateRepository) Create(affiliate *models.Affiliate) error {
	return r.db.Create(affiliate).Error
}

// UpdateStatus 更新联盟客状态
func (r *GormAffiliateRepository) UpdateStatus(id uint, status string, updatedAt time.Time) error {
	if id == 0 {
		return nil
	}
	return r.db.Model(&models.Affiliate{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     strings.TrimSpace(status),
			"updated_at": updatedAt,
		}).Error
}

// UpdateFields 按字段更新联盟客
func (r *GormAffiliateRepository) UpdateFields(id uint, updates map[string]interface{}) error {
	if id == 0 || len(updates) == 0 {
		return nil
	}
	return r.db.Model(&models.Affiliate{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// List 查询联盟客列表
func (r *GormAffiliateRepository) List(filter AffiliateListFilter) ([]models.Affiliate, int64, error) {
	query := r.db.Model(&models.Affiliate{})
	if status := strings.TrimSpace(filter.Status); status != "" {
		query = query.Where("status = ?", status)
	}
	if keyword := strings.TrimSpace(filter.Keyword); keyword != "" {
		like := "%" + keyword + "%"
		query = query.Where("(name LIKE ? OR email LIKE ?)", like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	query = applyPagination(query, filter.Page, filter.PageSize)

	var rows []models.Affiliate
	if err := query.Order("id desc").Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// CreditPendingEarnings 入账：待结算余额与历史总收益同额增加
func (r *GormAffiliateRepository) CreditPendingEarnings(id uint, amount int64, now time.Time) error {
	if id == 0 || amount <= 0 {
		return nil
	}
	return r.db.Model(&models.Affiliate{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"pending_amount": gorm.Expr("pending_amount + ?", amount),
			"total_earnings": gorm.Expr("total_earnings + ?", amount),
			"updated_at":     now,
		}).Error
}

// DebitPendingEarnings 退款冲账：待结算余额与历史总收益同额扣减，下限为 0
func (r *GormAffiliateRepository) DebitPendingEarnings(id uint, amount int64, now time.Time) error {
	if id == 0 || amount <= 0 {
		return nil
	}
	return r.db.Model(&models.Affiliate{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"pending_amount": gorm.Expr(clampedDebitExpr(r.db, "pending_amount"), amount),
			"total_earnings": gorm.Expr(clampedDebitExpr(r.db, "total_earnings"), amount),
			"updated_at":     now,
		}).Error
}

// SettlePendingToPaid 结算成功：待结算转已支付，扣减下限为 0
func (r *GormAffiliateRepository) SettlePendingToPaid(id uint, amount int64, now time.Time) error {
	if id == 0 || amount <= 0 {
		return nil
	}
	return r.db.Model(&models.Affiliate{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"pending_amount": gorm.Expr(clampedDebitExpr(r.db, "pending_amount"), amount),
			"paid_amount":    gorm.Expr("paid_amount + ?", amount),
			"updated_at":     now,
		}).Error
}

// SettlePendingToAvailable 过保转可提取：待结算转可提取，扣减下限为 0
func (r *GormAffiliateRepository) SettlePendingToAvailable(id uint, amount int64, now time.Time) error {
	if id == 0 || amount <= 0 {
		return nil
	}
	return r.db.Model(&models.Affiliate{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"pending_amount":   gorm.Expr(clampedDebitExpr(r.db, "pending_amount"), amount),
			"available_amount": gorm.Expr("available_amount + ?", amount),
			"updated_at":       now,
		}).Error
}

// CreateLink 创建推广链接
func (r *GormAffiliateRepository) CreateLink(link *models.AffiliateLink) error {
	return r.db.Create(link).Error
}

// GetLinkByID 按ID获取推广链接
func (r *GormAffiliateRepository) GetLinkByID(id uint) (*models.AffiliateLink, error) {
	if id == 0 {
		return nil, nil
	}
	var link models.AffiliateLink
	if err := r.db.First(&link, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &link, nil
}

// GetLinkByCode 按短码获取推广链接
func (r *GormAffiliateRepository) GetLinkByCode(code string) (*models.AffiliateLink, error) {
	normalized := strings.TrimSpace(code)
	if normalized == "" {
		return nil, nil
	}
	var link models.AffiliateLink
	if err := r.db.Where("code = ?", normalized).First(&link).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &link, nil
}

// IncrementLinkConversions 累加链接成交次数
func (r *GormAffiliateRepository) IncrementLinkConversions(linkID uint) error {
	if linkID == 0 {
		return nil
	}
	return r.db.Model(&models.AffiliateLink{}).
		Where("id = ?", linkID).
		UpdateColumn("conversions", gorm.Expr("conversions + 1")).Error
}
