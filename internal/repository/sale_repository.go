package repository

import (
	"errors"
	"strings"
	"time"

	"github.com/affpay-next/internal/constants"
	"github.com/affpay-next/internal/models"

	"gorm.io/gorm"
)

// SaleRepository 结算记录数据访问接口
type SaleRepository interface {
	Transaction(fn func(tx *gorm.DB) error) error
	WithTx(tx *gorm.DB) SaleRepository

	GetByID(id uint) (*models.AffiliateSale, error)
	GetByOriginatingPaymentID(paymentID string) (*models.AffiliateSale, error)
	Create(sale *models.AffiliateSale) error
	UpdateFields(id uint, updates map[string]interface{}) error
	List(filter SaleListFilter) ([]models.AffiliateSale, int64, error)

	ListDueForPayout(now time.Time) ([]models.AffiliateSale, error)
	ListReadyForAvailability(now time.Time) ([]models.AffiliateSale, error)
}

// GormSaleRepository GORM 结算记录仓储
type GormSaleRepository struct {
	db *gorm.DB
}

// NewSaleRepository 创建结算记录仓储
func NewSaleRepository(db *gorm.DB) *GormSaleRepository {
	return &GormSaleRepository{db: db}
}

// WithTx 绑定事务
func (r *GormSaleRepository) WithTx(tx *gorm.DB) SaleRepository {
	if tx == nil {
		return r
	}
	return &GormSaleRepository{db: tx}
}

// Transaction 执行事务
func (r *GormSaleRepository) Transaction(fn func(tx *gorm.DB) error) error {
	if fn == nil {
		return nil
	}
	return r.db.Transaction(fn)
}

// GetByID 按ID获取结算记录
func (r *GormSaleRepository) GetByID(id uint) (*models.AffiliateSale, error) {
	if id == 0 {
		return nil, nil
	}
	var sale models.AffiliateSale
	if err := r.db.First(&sale, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sale, nil
}

// GetByOriginatingPaymentID 按原始支付流水号获取结算记录（幂等查询）
func (r *GormSaleRepository) GetByOriginatingPaymentID(paymentID string) (*models.AffiliateSale, error) {
	normalized := strings.TrimSpace(paymentID)
	if normalized == "" {
		return nil, nil
	}
	var sale models.AffiliateSale
	if err := r.db.Where("originating_payment_id = ?", normalized).First(&sale).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sale, nil
}

// Create 创建结算记录
func (r *GormSaleRepository) Create(sale *models.AffiliateSale) error {
	return r.db.Create(sale).Error
}

// UpdateFields 按字段更新结算记录
func (r *GormSaleRepository) UpdateFields(id uint, updates map[string]interface{}) error {
	if id == 0 || len(updates) == 0 {
		return nil
	}
	return r.db.Model(&models.AffiliateSale{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// List 查询结算记录列表
func (r *GormSaleRepository) List(filter SaleListFilter) ([]models.AffiliateSale, int64, error) {
	query := r.db.Model(&models.AffiliateSale{}).Preload("Affiliate")
	if filter.AffiliateID != 0 {
		query = query.Where("affiliate_sales.affiliate_id = ?", filter.AffiliateID)
	}
	if status := strings.TrimSpace(filter.Status); status != "" {
		query = query.Where("affiliate_sales.status = ?", status)
	}
	if method := strings.TrimSpace(filter.SplitMethod); method != "" {
		query = query.Where("affiliate_sales.split_method = ?", method)
	}
	if filter.CreatedFrom != nil {
		query = query.Where("affiliate_sales.created_at >= ?", *filter.CreatedFrom)
	}
	if filter.CreatedTo != nil {
		query = query.Where("affiliate_sales.created_at <= ?", *filter.CreatedTo)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	query = applyPagination(query, filter.Page, filter.PageSize)

	var rows []models.AffiliateSale
	if err := query.Order("affiliate_sales.id desc").Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// ListDueForPayout 查询到期待结算的自动分账记录；payout_scheduled_at 缺失的
// 记录一并带出，由结算服务补齐时间后跳过本轮。
func (r *GormSaleRepository) ListDueForPayout(now time.Time) ([]models.AffiliateSale, error) {
	var rows []models.AffiliateSale
	err := r.db.Model(&models.AffiliateSale{}).
		Where("status = ? AND split_method IN ?",
			constants.SaleStatusPendingPayout,
			[]string{constants.SplitMethodMercadoPago, constants.SplitMethodStripeConnect},
		).
		Where("payout_scheduled_at IS NULL OR payout_scheduled_at <= ?", now).
		Order("id asc").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// ListReadyForAvailability 查询到期的手动分账记录
func (r *GormSaleRepository) ListReadyForAvailability(now time.Time) ([]models.AffiliateSale, error) {
	var rows []models.AffiliateSale
	err := r.db.Model(&models.AffiliateSale{}).
		Where("status = ? AND split_method = ?",
			constants.SaleStatusPending,
			constants.SplitMethodManual,
		).
		Where("payout_scheduled_at IS NULL OR payout_scheduled_at <= ?", now).
		Order("id asc").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
