package public

import (
	"errors"
	"time"

	handlershared "github.com/affpay-next/internal/http/handlers/shared"
	"github.com/affpay-next/internal/http/response"
	"github.com/affpay-next/internal/service"

	"github.com/gin-gonic/gin"
)

type checkoutWebhookRequest struct {
	OriginatingPaymentID string `json:"originating_payment_id" binding:"required"`
	LinkCode             string `json:"link_code"`
	AffiliateID          uint   `json:"affiliate_id"`
	SaleAmount           int64  `json:"sale_amount" binding:"required,gt=0"`
	Currency             string `json:"currency"`
	GatewayProvider      string `json:"gateway_provider"`
	GatewayPaymentID     string `json:"gateway_payment_id"`
}

// HandleCheckoutWebhook 接收结账服务推送的支付成功事件并归因
func (h *Handler) HandleCheckoutWebhook(c *gin.Context) {
	var req checkoutWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handlershared.RespondError(c, response.CodeBadRequest, "请求参数不合法", err)
		return
	}

	sale, err := h.AttributionService.HandlePaymentApproved(c.Request.Context(), service.CheckoutSaleInput{
		OriginatingPaymentID: req.OriginatingPaymentID,
		LinkCode:             req.LinkCode,
		AffiliateID:          req.AffiliateID,
		SaleAmount:           req.SaleAmount,
		Currency:             req.Currency,
		GatewayProvider:      req.GatewayProvider,
		GatewayPaymentID:     req.GatewayPaymentID,
	}, time.Now())
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			handlershared.RespondError(c, response.CodeNotFound, "推广归因目标不存在", nil)
		default:
			handlershared.RespondError(c, response.CodeInternal, "归因处理失败", err)
		}
		return
	}
	// 非活跃联盟客跳过归因，返回成功但不带结算单
	if sale == nil {
		response.Success(c, gin.H{"attributed": false})
		return
	}

	response.Success(c, gin.H{
		"sale_id":           sale.ID,
		"affiliate_id":      sale.AffiliateID,
		"commission_amount": sale.CommissionAmount,
		"split_method":      sale.SplitMethod,
		"status":            sale.Status,
	})
}
