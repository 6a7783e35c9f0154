package models

import (
	"time"

	"gorm.io/gorm"
)

// AffiliateSale 推广成交结算记录
type AffiliateSale struct {
	ID                   uint           `gorm:"primarykey" json:"id"`                                             // 主键
	AffiliateID          uint           `gorm:"not null;index" json:"affiliate_id"`                               // 联盟客ID
	AffiliateLinkID      *uint          `gorm:"index" json:"affiliate_link_id,omitempty"`                         // 推广链接ID
	OriginatingPaymentID string         `gorm:"type:varchar(64);not null;uniqueIndex" json:"originating_payment_id"` // 原始支付流水号（幂等键）
	SaleAmount           int64          `gorm:"not null;default:0" json:"sale_amount"`                            // 成交金额（最小货币单位）
	CommissionAmount     int64          `gorm:"not null;default:0" json:"commission_amount"`                      // 佣金金额（最小货币单位）
	CommissionPercent    float64        `gorm:"type:decimal(6,2);not null;default:0" json:"commission_percent"`   // 佣金比例快照
	Currency             string         `gorm:"type:varchar(8);not null;default:'BRL'" json:"currency"`           // 币种
	SplitMethod          string         `gorm:"type:varchar(20);not null;index" json:"split_method"`              // 分账方式（mercadopago/stripe_connect/manual）
	GatewayProvider      string         `gorm:"type:varchar(20);index" json:"gateway_provider"`                   // 支付网关（mercadopago/stripe）
	GatewayPaymentID     string         `gorm:"type:varchar(64);index" json:"gateway_payment_id"`                 // 网关支付流水号（退款核验用）
	TransferID           string         `gorm:"type:varchar(64)" json:"transfer_id"`                              // 网关转账流水号
	Status               string         `gorm:"type:varchar(20);not null;index" json:"status"`                    // 结算状态
	PayoutScheduledAt    *time.Time     `gorm:"index" json:"payout_scheduled_at,omitempty"`                       // 预定结算时间
	PayoutAttempts       int            `gorm:"not null;default:0" json:"payout_attempts"`                        // 结算尝试次数
	PayoutError          string         `gorm:"type:varchar(500)" json:"payout_error"`                            // 最近一次结算失败原因
	PaidAt               *time.Time     `gorm:"index" json:"paid_at,omitempty"`                                   // 实际结算时间
	CreatedAt            time.Time      `gorm:"index" json:"created_at"`                                          // 创建时间
	UpdatedAt            time.Time      `gorm:"index" json:"updated_at"`                                          // 更新时间
	DeletedAt            gorm.DeletedAt `gorm:"index" json:"-"`                                                   // 软删除时间

	Affiliate     Affiliate      `gorm:"foreignKey:AffiliateID" json:"affiliate,omitempty"`        // 联盟客
	AffiliateLink *AffiliateLink `gorm:"foreignKey:AffiliateLinkID" json:"affiliate_link,omitempty"` // 推广链接
}

// TableName 指定表名
func (AffiliateSale) TableName() string {
	return "affiliate_sales"
}
