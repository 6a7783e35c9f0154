package admin

import (
	"strconv"
	"strings"
	"time"

	"github.com/affpay-next/internal/constants"
	handlershared "github.com/affpay-next/internal/http/handlers/shared"
	"github.com/affpay-next/internal/http/response"
	"github.com/affpay-next/internal/models"
	"github.com/affpay-next/internal/repository"

	"github.com/gin-gonic/gin"
)

type createAffiliateRequest struct {
	Name               string   `json:"name" binding:"required"`
	Email              string   `json:"email" binding:"required,email"`
	CommissionPercent  *float64 `json:"commission_percent"`
	MercadoPagoPayeeID string   `json:"mercadopago_payee_id"`
	StripeAccountID    string   `json:"stripe_account_id"`
}

type updateAffiliateRequest struct {
	Status              *string  `json:"status"`
	CommissionPercent   *float64 `json:"commission_percent"`
	MercadoPagoPayeeID  *string  `json:"mercadopago_payee_id"`
	StripeAccountID     *string  `json:"stripe_account_id"`
	StripeAccountStatus *string  `json:"stripe_account_status"`
}

type createLinkRequest struct {
	Code string `json:"code" binding:"required"`
}

// ListAffiliates 查询联盟客列表
func (h *Handler) ListAffiliates(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	page, pageSize = handlershared.NormalizePagination(page, pageSize)

	affiliates, total, err := h.AffiliateRepo.List(repository.AffiliateListFilter{
		Page:     page,
		PageSize: pageSize,
		Status:   c.Query("status"),
		Keyword:  c.Query("keyword"),
	})
	if err != nil {
		respondError(c, response.CodeInternal, "查询联盟客列表失败", err)
		return
	}
	response.SuccessWithPage(c, affiliates, response.Pagination{
		Page:      page,
		PageSize:  pageSize,
		Total:     total,
		TotalPage: handlershared.TotalPages(total, pageSize),
	})
}

// GetAffiliate 查询单个联盟客
func (h *Handler) GetAffiliate(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		respondError(c, response.CodeBadRequest, "联盟客ID不合法", nil)
		return
	}
	affiliate, err := h.AffiliateRepo.GetByID(uint(id))
	if err != nil {
		respondError(c, response.CodeInternal, "查询联盟客失败", err)
		return
	}
	if affiliate == nil {
		respondError(c, response.CodeNotFound, "联盟客不存在", nil)
		return
	}
	response.Success(c, affiliate)
}

// CreateAffiliate 创建联盟客
func (h *Handler) CreateAffiliate(c *gin.Context) {
	var req createAffiliateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "请求参数不合法", err)
		return
	}
	if req.CommissionPercent != nil && (*req.CommissionPercent < 0 || *req.CommissionPercent > 100) {
		respondError(c, response.CodeBadRequest, "佣金比例超出范围", nil)
		return
	}

	affiliate := &models.Affiliate{
		Name:               strings.TrimSpace(req.Name),
		Email:              strings.ToLower(strings.TrimSpace(req.Email)),
		Status:             constants.AffiliateStatusActive,
		CommissionPercent:  req.CommissionPercent,
		MercadoPagoPayeeID: strings.TrimSpace(req.MercadoPagoPayeeID),
		StripeAccountID:    strings.TrimSpace(req.StripeAccountID),
	}
	if affiliate.StripeAccountID != "" {
		affiliate.StripeAccountStatus = constants.StripeAccountStatusPending
	}
	if err := h.AffiliateRepo.Create(affiliate); err != nil {
		respondError(c, response.CodeConflict, "创建联盟客失败", err)
		return
	}
	response.Success(c, affiliate)
}

// UpdateAffiliate 更新联盟客资料
func (h *Handler) UpdateAffiliate(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		respondError(c, response.CodeBadRequest, "联盟客ID不合法", nil)
		return
	}
	var req updateAffiliateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "请求参数不合法", err)
		return
	}

	existing, err := h.AffiliateRepo.GetByID(uint(id))
	if err != nil {
		respondError(c, response.CodeInternal, "查询联盟客失败", err)
		return
	}
	if existing == nil {
		respondError(c, response.CodeNotFound, "联盟客不存在", nil)
		return
	}

	updates := map[string]interface{}{"updated_at": time.Now()}
	if req.Status != nil {
		status := strings.TrimSpace(*req.Status)
		switch status {
		case constants.AffiliateStatusActive, constants.AffiliateStatusInactive, constants.AffiliateStatusSuspended:
			updates["status"] = status
		default:
			respondError(c, response.CodeBadRequest, "联盟客状态不合法", nil)
			return
		}
	}
	if req.CommissionPercent != nil {
		if *req.CommissionPercent < 0 || *req.CommissionPercent > 100 {
			respondError(c, response.CodeBadRequest, "佣金比例超出范围", nil)
			return
		}
		updates["commission_percent"] = *req.CommissionPercent
	}
	if req.MercadoPagoPayeeID != nil {
		updates["mercado_pago_payee_id"] = strings.TrimSpace(*req.MercadoPagoPayeeID)
	}
	if req.StripeAccountID != nil {
		updates["stripe_account_id"] = strings.TrimSpace(*req.StripeAccountID)
	}
	if req.StripeAccountStatus != nil {
		status := strings.TrimSpace(*req.StripeAccountStatus)
		switch status {
		case constants.StripeAccountStatusConnected, constants.StripeAccountStatusPending, constants.StripeAccountStatusDisabled:
			updates["stripe_account_status"] = status
		default:
			respondError(c, response.CodeBadRequest, "Stripe 账户状态不合法", nil)
			return
		}
	}

	if err := h.AffiliateRepo.UpdateFields(uint(id), updates); err != nil {
		respondError(c, response.CodeInternal, "更新联盟客失败", err)
		return
	}
	updated, err := h.AffiliateRepo.GetByID(uint(id))
	if err != nil {
		respondError(c, response.CodeInternal, "查询联盟客失败", err)
		return
	}
	response.Success(c, updated)
}

// CreateAffiliateLink 创建推广链接
func (h *Handler) CreateAffiliateLink(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		respondError(c, response.CodeBadRequest, "联盟客ID不合法", nil)
		return
	}
	var req createLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "请求参数不合法", err)
		return
	}

	affiliate, err := h.AffiliateRepo.GetByID(uint(id))
	if err != nil {
		respondError(c, response.CodeInternal, "查询联盟客失败", err)
		return
	}
	if affiliate == nil {
		respondError(c, response.CodeNotFound, "联盟客不存在", nil)
		return
	}

	link := &models.AffiliateLink{
		AffiliateID: affiliate.ID,
		Code:        strings.TrimSpace(req.Code),
	}
	if err := h.AffiliateRepo.CreateLink(link); err != nil {
		respondError(c, response.CodeConflict, "创建推广链接失败", err)
		return
	}
	response.Success(c, link)
}
