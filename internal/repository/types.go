package repository

import "time"

// AffiliateListFilter 查询联盟客列表的过滤条件
type AffiliateListFilter struct {
	Page     int
	PageSize int
	Status   string
	Keyword  string
}

// SaleListFilter 查询结算记录列表的过滤条件
type SaleListFilter struct {
	Page        int
	PageSize    int
	AffiliateID uint
	Status      string
	SplitMethod string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}
