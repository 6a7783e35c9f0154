package models

import (
	"time"
)

// Secret 网关凭证表（键值对存储，按需读取不缓存）
type Secret struct {
	Key       string    `gorm:"primarykey" json:"key"`  // 凭证键
	ValueJSON JSON      `gorm:"type:json" json:"-"`     // 凭证内容（不返回给前端）
	UpdatedAt time.Time `gorm:"index" json:"updated_at"` // 更新时间
}

// TableName 指定表名
func (Secret) TableName() string {
	return "secrets"
}
