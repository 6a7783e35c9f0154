package service

import (
	"fmt"
	"math"

	"github.com/affpay-next/internal/constants"
	"github.com/affpay-next/internal/models"
)

const (
	payoutCommissionPercentMin = 0
	payoutCommissionPercentMax = 100
	payoutHoldDaysMax          = 365
)

// AffiliatePayoutSetting 结算策略配置
type AffiliatePayoutSetting struct {
	DefaultCommissionPercent float64 `json:"default_commission_percent"`
	HoldDays                 int     `json:"hold_days"`
	AutoPayEnabled           bool    `json:"auto_pay_enabled"`
}

// PayoutDefaultSetting 默认结算策略配置
func PayoutDefaultSetting() AffiliatePayoutSetting {
	return NormalizePayoutSetting(AffiliatePayoutSetting{
		DefaultCommissionPercent: 10,
		HoldDays:                 constants.MinHoldDays,
		AutoPayEnabled:           true,
	})
}

// EffectiveHoldDays 计算生效冻结天数，强制不低于最短冻结期
func (s AffiliatePayoutSetting) EffectiveHoldDays() int {
	if s.HoldDays < constants.MinHoldDays {
		return constants.MinHoldDays
	}
	return s.HoldDays
}

// NormalizePayoutSetting 归一化结算策略配置
func NormalizePayoutSetting(setting AffiliatePayoutSetting) AffiliatePayoutSetting {
	setting.DefaultCommissionPercent = math.Round(setting.DefaultCommissionPercent*100) / 100
	if setting.DefaultCommissionPercent < payoutCommissionPercentMin {
		setting.DefaultCommissionPercent = payoutCommissionPercentMin
	}
	if setting.DefaultCommissionPercent > payoutCommissionPercentMax {
		setting.DefaultCommissionPercent = payoutCommissionPercentMax
	}

	if setting.HoldDays < 0 {
		setting.HoldDays = 0
	}
	if setting.HoldDays > payoutHoldDaysMax {
		setting.HoldDays = payoutHoldDaysMax
	}
	return setting
}

// ValidatePayoutSetting 校验结算策略配置
func ValidatePayoutSetting(setting AffiliatePayoutSetting) error {
	normalized := NormalizePayoutSetting(setting)
	if normalized.DefaultCommissionPercent < payoutCommissionPercentMin || normalized.DefaultCommissionPercent > payoutCommissionPercentMax {
		return fmt.Errorf("%w: 佣金比例必须在 0-100 之间", ErrPayoutConfigInvalid)
	}
	if normalized.HoldDays < 0 || normalized.HoldDays > payoutHoldDaysMax {
		return fmt.Errorf("%w: 冻结天数必须在 0-365 之间", ErrPayoutConfigInvalid)
	}
	return nil
}

// PayoutSettingToMap 将结算策略配置转换为 settings 存储结构
func PayoutSettingToMap(setting AffiliatePayoutSetting) map[string]interface{} {
	normalized := NormalizePayoutSetting(setting)
	return map[string]interface{}{
		"default_commission_percent": normalized.DefaultCommissionPercent,
		"hold_days":                  normalized.HoldDays,
		"auto_pay_enabled":           normalized.AutoPayEnabled,
	}
}

func payoutSettingFromJSON(raw models.JSON, fallback AffiliatePayoutSetting) AffiliatePayoutSetting {
	result := fallback

	if percentRaw, ok := raw["default_commission_percent"]; ok {
		if parsed, err := parseSettingFloat(percentRaw); err == nil {
			result.DefaultCommissionPercent = parsed
		}
	}
	if holdRaw, ok := raw["hold_days"]; ok {
		if parsed, err := parseSettingInt(holdRaw); err == nil {
			result.HoldDays = parsed
		}
	}
	if enabledRaw, ok := raw["auto_pay_enabled"]; ok {
		result.AutoPayEnabled = parseSettingBool(enabledRaw)
	}

	return NormalizePayoutSetting(result)
}

// GetPayoutSetting 获取结算策略设置（优先 settings，空时回退默认）
func (s *SettingService) GetPayoutSetting() (AffiliatePayoutSetting, error) {
	fallback := PayoutDefaultSetting()
	if s == nil {
		return fallback, nil
	}

	value, err := s.GetByKey(constants.SettingKeyAffiliatePayoutConfig)
	if err != nil {
		return fallback, err
	}
	if value == nil {
		return fallback, nil
	}
	return payoutSettingFromJSON(value, fallback), nil
}

// UpdatePayoutSetting 更新结算策略设置（冻结下限在使用时生效，存储保留原值）
func (s *SettingService) UpdatePayoutSetting(setting AffiliatePayoutSetting) (AffiliatePayoutSetting, error) {
	normalized := NormalizePayoutSetting(setting)
	if err := ValidatePayoutSetting(normalized); err != nil {
		return PayoutDefaultSetting(), err
	}
	if _, err := s.Update(constants.SettingKeyAffiliatePayoutConfig, PayoutSettingToMap(normalized)); err != nil {
		return PayoutDefaultSetting(), err
	}
	return normalized, nil
}
