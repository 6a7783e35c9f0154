package admin

import (
	"github.com/affpay-next/internal/http/response"
	"github.com/affpay-next/internal/service"

	"github.com/gin-gonic/gin"
)

type payoutSettingRequest struct {
	DefaultCommissionPercent float64 `json:"default_commission_percent"`
	HoldDays                 int     `json:"hold_days"`
	AutoPayEnabled           bool    `json:"auto_pay_enabled"`
}

// GetPayoutSetting 查询结算配置
func (h *Handler) GetPayoutSetting(c *gin.Context) {
	setting, err := h.SettingService.GetPayoutSetting()
	if err != nil {
		respondError(c, response.CodeInternal, "查询结算配置失败", err)
		return
	}
	response.Success(c, gin.H{
		"default_commission_percent": setting.DefaultCommissionPercent,
		"hold_days":                  setting.HoldDays,
		"effective_hold_days":        setting.EffectiveHoldDays(),
		"auto_pay_enabled":           setting.AutoPayEnabled,
	})
}

// UpdatePayoutSetting 更新结算配置
func (h *Handler) UpdatePayoutSetting(c *gin.Context) {
	var req payoutSettingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "请求参数不合法", err)
		return
	}

	updated, err := h.SettingService.UpdatePayoutSetting(service.AffiliatePayoutSetting{
		DefaultCommissionPercent: req.DefaultCommissionPercent,
		HoldDays:                 req.HoldDays,
		AutoPayEnabled:           req.AutoPayEnabled,
	})
	if err != nil {
		respondError(c, response.CodeBadRequest, "更新结算配置失败", err)
		return
	}
	response.Success(c, gin.H{
		"default_commission_percent": updated.DefaultCommissionPercent,
		"hold_days":                  updated.HoldDays,
		"effective_hold_days":        updated.EffectiveHoldDays(),
		"auto_pay_enabled":           updated.AutoPayEnabled,
	})
}
