package service

import "errors"

// 业务哨兵错误
var (
	ErrNotFound                 = errors.New("记录不存在")
	ErrInvalidCredentials       = errors.New("用户名或密码错误")
	ErrPayoutConfigInvalid      = errors.New("结算配置不合法")
	ErrGatewayConfigMissing     = errors.New("网关凭证缺失或不可用")
	ErrSaleNotRetryable         = errors.New("结算单当前状态不可重试")
	ErrSaleNotDue               = errors.New("结算单未到结算期")
	ErrSaleRefunded             = errors.New("原始支付单已退款")
	ErrVerificationInconclusive = errors.New("网关核验结果不可判定")
)
