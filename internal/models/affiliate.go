package models

import (
	"time"

	"gorm.io/gorm"
)

// Affiliate 推广联盟客档案
type Affiliate struct {
	ID                  uint           `gorm:"primarykey" json:"id"`                          // 主键
	Name                string         `gorm:"type:varchar(100);not null" json:"name"`        // 联盟客名称
	Email               string         `gorm:"type:varchar(255);uniqueIndex" json:"email"`    // 联系邮箱
	Status              string         `gorm:"type:varchar(20);not null;index" json:"status"` // 状态（active/inactive/suspended）
	CommissionPercent   *float64       `gorm:"type:decimal(6,2)" json:"commission_percent"`   // 佣金比例覆盖值（空则用全局默认）
	MercadoPagoPayeeID  string         `gorm:"type:varchar(64)" json:"mercadopago_payee_id"`  // Mercado Pago 收款账号
	StripeAccountID     string         `gorm:"type:varchar(64)" json:"stripe_account_id"`     // Stripe Connect 账号
	StripeAccountStatus string         `gorm:"type:varchar(20)" json:"stripe_account_status"` // Stripe 账号状态（connected/pending/disabled）
	PendingAmount       int64          `gorm:"not null;default:0" json:"pending_amount"`      // 待结算余额（最小货币单位）
	AvailableAmount     int64          `gorm:"not null;default:0" json:"available_amount"`    // 可提取余额（最小货币单位）
	PaidAmount          int64          `gorm:"not null;default:0" json:"paid_amount"`         // 已支付累计（最小货币单位）
	TotalEarnings       int64          `gorm:"not null;default:0" json:"total_earnings"`      // 历史总收益（最小货币单位）
	CreatedAt           time.Time      `gorm:"index" json:"created_at"`                       // 创建时间
	UpdatedAt           time.Time      `gorm:"index" json:"updated_at"`                       // 更新时间
	DeletedAt           gorm.DeletedAt `gorm:"index" json:"-"`                                // 软删除时间
}

// TableName 指定表名
func (Affiliate) TableName() string {
	return "affiliates"
}
