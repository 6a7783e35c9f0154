package models

import (
	"time"

	"gorm.io/gorm"
)

// AffiliateLink 推广链接
type AffiliateLink struct {
	ID          uint           `gorm:"primarykey" json:"id"`                              // 主键
	AffiliateID uint           `gorm:"not null;index" json:"affiliate_id"`                // 联盟客ID
	Code        string         `gorm:"type:varchar(32);not null;uniqueIndex" json:"code"` // 链接短码
	Conversions int64          `gorm:"not null;default:0" json:"conversions"`             // 累计成交次数
	CreatedAt   time.Time      `gorm:"index" json:"created_at"`                           // 创建时间
	UpdatedAt   time.Time      `gorm:"index" json:"updated_at"`                           // 更新时间
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`                                    // 软删除时间

	Affiliate Affiliate `gorm:"foreignKey:AffiliateID" json:"affiliate,omitempty"` // 联盟客
}

// TableName 指定表名
func (AffiliateLink) TableName() string {
	return "affiliate_links"
}
