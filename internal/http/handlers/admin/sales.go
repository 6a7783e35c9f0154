package admin

import (
	"strconv"
	"time"

	handlershared "github.com/affpay-next/internal/http/handlers/shared"
	"github.com/affpay-next/internal/http/response"
	"github.com/affpay-next/internal/repository"

	"github.com/gin-gonic/gin"
)

// ListSales 查询结算记录列表
func (h *Handler) ListSales(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	page, pageSize = handlershared.NormalizePagination(page, pageSize)

	filter := repository.SaleListFilter{
		Page:        page,
		PageSize:    pageSize,
		Status:      c.Query("status"),
		SplitMethod: c.Query("split_method"),
	}
	if affiliateID, err := strconv.ParseUint(c.Query("affiliate_id"), 10, 64); err == nil {
		filter.AffiliateID = uint(affiliateID)
	}
	if from, err := time.Parse(time.RFC3339, c.Query("created_from")); err == nil {
		filter.CreatedFrom = &from
	}
	if to, err := time.Parse(time.RFC3339, c.Query("created_to")); err == nil {
		filter.CreatedTo = &to
	}

	sales, total, err := h.SaleRepo.List(filter)
	if err != nil {
		respondError(c, response.CodeInternal, "查询结算记录失败", err)
		return
	}
	response.SuccessWithPage(c, sales, response.Pagination{
		Page:      page,
		PageSize:  pageSize,
		Total:     total,
		TotalPage: handlershared.TotalPages(total, pageSize),
	})
}

// GetSale 查询单条结算记录
func (h *Handler) GetSale(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		respondError(c, response.CodeBadRequest, "结算单ID不合法", nil)
		return
	}
	sale, err := h.SaleRepo.GetByID(uint(id))
	if err != nil {
		respondError(c, response.CodeInternal, "查询结算单失败", err)
		return
	}
	if sale == nil {
		respondError(c, response.CodeNotFound, "结算单不存在", nil)
		return
	}
	response.Success(c, sale)
}
