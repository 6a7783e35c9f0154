package constants

// 推广用户状态常量
const (
	AffiliateStatusActive    = "active"
	AffiliateStatusInactive  = "inactive"
	AffiliateStatusSuspended = "suspended"
)

// 结算单状态常量
const (
	SaleStatusPending       = "pending"
	SaleStatusPendingPayout = "pending_payout"
	SaleStatusAvailable     = "available"
	SaleStatusPaid          = "paid"
	SaleStatusPayoutFailed  = "payout_failed"
	SaleStatusRefunded      = "refunded"
)

// 分账方式常量
const (
	SplitMethodMercadoPago   = "mercadopago"
	SplitMethodStripeConnect = "stripe_connect"
	SplitMethodManual        = "manual"
)

// 回款验证来源网关常量
const (
	GatewayProviderMercadoPago = "mercadopago"
	GatewayProviderStripe      = "stripe"
)

// Stripe 关联账户状态常量
const (
	StripeAccountStatusConnected = "connected"
	StripeAccountStatusPending   = "pending"
	StripeAccountStatusDisabled  = "disabled"
)

// 自动打款约束常量
const (
	// PayoutAttemptCap 自动打款失败次数上限，达到后转人工处理
	PayoutAttemptCap = 5
	// MinHoldDays 强制最短冻结天数，吸收网关退款/拒付窗口，不可配置低于该值
	MinHoldDays = 7
)

// 密钥键名常量
const (
	SecretKeyMercadoPagoConfig = "mercadopago_config"
	SecretKeyStripeConfig      = "stripe_config"
)

// 设置键名常量
const (
	SettingKeyAffiliatePayoutConfig = "affiliate_payout_config"
)

// 队列与任务常量
const (
	QueueDefault            = "default"
	TaskAffiliateSaleNotify = "affiliate:sale_notify"
)
