package repository

import (
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// dbDialectName 获取数据库方言名称，默认按 sqlite 处理。
func dbDialectName(db *gorm.DB) string {
	if db == nil || db.Dialector == nil {
		return "sqlite"
	}
	name := strings.ToLower(strings.TrimSpace(db.Dialector.Name()))
	if name == "" {
		return "sqlite"
	}
	return name
}

// clampedDebitExpr 构建余额扣减表达式，下限为 0，兼容 sqlite 与 postgres。
func clampedDebitExpr(db *gorm.DB, column string) string {
	return clampedDebitExprByDialect(dbDialectName(db), column)
}

func clampedDebitExprByDialect(dialect, column string) string {
	switch strings.ToLower(strings.TrimSpace(dialect)) {
	case "postgres", "postgresql":
		return fmt.Sprintf("GREATEST(%s - ?, 0)", column)
	default:
		// sqlite 的 MAX 在多参数形式下为标量函数
		return fmt.Sprintf("MAX(%s - ?, 0)", column)
	}
}
