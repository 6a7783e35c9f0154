package service

import (
	"context"
	"strings"
	"time"

	"github.com/affpay-next/internal/constants"
	"github.com/affpay-next/internal/logger"
	"github.com/affpay-next/internal/models"
	"github.com/affpay-next/internal/queue"
	"github.com/affpay-next/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// AttributionService 成交归因业务服务
type AttributionService struct {
	affiliateRepo  repository.AffiliateRepository
	saleRepo       repository.SaleRepository
	settingService *SettingService
	queueClient    *queue.Client
}

// NewAttributionService 创建成交归因服务
func NewAttributionService(
	affiliateRepo repository.AffiliateRepository,
	saleRepo repository.SaleRepository,
	settingService *SettingService,
	queueClient *queue.Client,
) *AttributionService {
	return &AttributionService{
		affiliateRepo:  affiliateRepo,
		saleRepo:       saleRepo,
		settingService: settingService,
		queueClient:    queueClient,
	}
}

// CheckoutSaleInput 结账服务推送的成交事件
type CheckoutSaleInput struct {
	OriginatingPaymentID string `json:"originating_payment_id"`
	LinkCode             string `json:"link_code"`
	AffiliateID          uint   `json:"affiliate_id"`
	SaleAmount           int64  `json:"sale_amount"`
	Currency             string `json:"currency"`
	GatewayProvider      string `json:"gateway_provider"`
	GatewayPaymentID     string `json:"gateway_payment_id"`
}

// HandlePaymentApproved 处理支付成功事件：归因、记账并落结算单。
// 同一 originating_payment_id 重复推送时幂等返回已有结算单。
func (s *AttributionService) HandlePaymentApproved(ctx context.Context, input CheckoutSaleInput, now time.Time) (*models.AffiliateSale, error) {
	if s == nil || s.affiliateRepo == nil || s.saleRepo == nil {
		return nil, ErrNotFound
	}
	paymentID := strings.TrimSpace(input.OriginatingPaymentID)
	if paymentID == "" || input.SaleAmount <= 0 {
		return nil, ErrNotFound
	}
	if now.IsZero() {
		now = time.Now()
	}

	// 幂等：同一支付流水只归因一次
	existing, err := s.saleRepo.GetByOriginatingPaymentID(paymentID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	affiliate, link, err := s.resolveAffiliate(input)
	if err != nil {
		return nil, err
	}
	// 非活跃联盟客静默跳过，不产生结算单也不报错，避免推送方无限重投
	if affiliate.Status != constants.AffiliateStatusActive {
		logger.Infow("affiliate_sale_skip_inactive",
			"affiliate_id", affiliate.ID,
			"affiliate_status", affiliate.Status,
			"originating_payment_id", paymentID,
		)
		return nil, nil
	}

	setting, err := s.settingService.GetPayoutSetting()
	if err != nil {
		return nil, err
	}

	percent := resolveCommissionPercent(affiliate, setting)
	commission := computeCommission(input.SaleAmount, percent)
	splitMethod := resolveSplitMethod(affiliate, input.GatewayProvider, setting.AutoPayEnabled)

	scheduledAt := now.Add(time.Duration(setting.EffectiveHoldDays()) * 24 * time.Hour)
	status := constants.SaleStatusPendingPayout
	if splitMethod == constants.SplitMethodManual {
		status = constants.SaleStatusPending
	}

	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if currency == "" {
		currency = "BRL"
	}

	sale := &models.AffiliateSale{
		AffiliateID:          affiliate.ID,
		OriginatingPaymentID: paymentID,
		SaleAmount:           input.SaleAmount,
		CommissionAmount:     commission,
		CommissionPercent:    percent,
		Currency:             currency,
		SplitMethod:          splitMethod,
		GatewayProvider:      strings.ToLower(strings.TrimSpace(input.GatewayProvider)),
		GatewayPaymentID:     strings.TrimSpace(input.GatewayPaymentID),
		Status:               status,
		PayoutScheduledAt:    &scheduledAt,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if link != nil {
		sale.AffiliateLinkID = &link.ID
	}

	err = s.saleRepo.Transaction(func(tx *gorm.DB) error {
		saleRepo := s.saleRepo.WithTx(tx)
		affiliateRepo := s.affiliateRepo.WithTx(tx)

		if err := saleRepo.Create(sale); err != nil {
			return err
		}
		if commission > 0 {
			if err := affiliateRepo.CreditPendingEarnings(affiliate.ID, commission, now); err != nil {
				return err
			}
		}
		if link != nil {
			if err := affiliateRepo.IncrementLinkConversions(link.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		// 唯一索引兜底：并发重复推送时回查已有结算单
		concurrent, lookupErr := s.saleRepo.GetByOriginatingPaymentID(paymentID)
		if lookupErr == nil && concurrent != nil {
			return concurrent, nil
		}
		return nil, err
	}

	s.notifySaleEvent(sale, queue.SaleEventRecorded)
	return sale, nil
}

func (s *AttributionService) resolveAffiliate(input CheckoutSaleInput) (*models.Affiliate, *models.AffiliateLink, error) {
	if code := strings.TrimSpace(input.LinkCode); code != "" {
		link, err := s.affiliateRepo.GetLinkByCode(code)
		if err != nil {
			return nil, nil, err
		}
		if link == nil {
			return nil, nil, ErrNotFound
		}
		affiliate, err := s.affiliateRepo.GetByID(link.AffiliateID)
		if err != nil {
			return nil, nil, err
		}
		if affiliate == nil {
			return nil, nil, ErrNotFound
		}
		return affiliate, link, nil
	}

	if input.AffiliateID != 0 {
		affiliate, err := s.affiliateRepo.GetByID(input.AffiliateID)
		if err != nil {
			return nil, nil, err
		}
		if affiliate == nil {
			return nil, nil, ErrNotFound
		}
		return affiliate, nil, nil
	}

	return nil, nil, ErrNotFound
}

// resolveCommissionRate 优先使用联盟客覆盖比例，显式 0 合法（记录 0 佣金结算单）
func resolveCommissionPercent(affiliate *models.Affiliate, setting AffiliatePayoutSetting) float64 {
	if affiliate != nil && affiliate.CommissionPercent != nil {
		percent := *affiliate.CommissionPercent
		if percent < 0 {
			percent = 0
		}
		if percent > 100 {
			percent = 100
		}
		return percent
	}
	return setting.DefaultCommissionPercent
}

// computeCommission 佣金取整向下，保证佣金不超过成交额
func computeCommission(saleAmount int64, percent float64) int64 {
	if saleAmount <= 0 || percent <= 0 {
		return 0
	}
	commission := decimal.NewFromInt(saleAmount).
		Mul(decimal.NewFromFloat(percent)).
		Div(decimal.NewFromInt(100)).
		Floor().
		IntPart()
	if commission > saleAmount {
		commission = saleAmount
	}
	return commission
}

func resolveSplitMethod(affiliate *models.Affiliate, gatewayProvider string, autoPayEnabled bool) string {
	// 全局关闭自动分账时，一律走人工结算
	if !autoPayEnabled {
		return constants.SplitMethodManual
	}
	provider := strings.ToLower(strings.TrimSpace(gatewayProvider))
	switch provider {
	case constants.GatewayProviderMercadoPago:
		if strings.TrimSpace(affiliate.MercadoPagoPayeeID) != "" {
			return constants.SplitMethodMercadoPago
		}
	case constants.GatewayProviderStripe:
		if strings.TrimSpace(affiliate.StripeAccountID) != "" &&
			affiliate.StripeAccountStatus == constants.StripeAccountStatusConnected {
			return constants.SplitMethodStripeConnect
		}
	}
	return constants.SplitMethodManual
}

// notifySaleEvent 投递外发通知任务，失败只记日志不阻塞主流程
func (s *AttributionService) notifySaleEvent(sale *models.AffiliateSale, event string) {
	if s == nil || sale == nil || !s.queueClient.Enabled() {
		return
	}
	err := s.queueClient.EnqueueAffiliateSaleNotify(queue.AffiliateSaleNotifyPayload{
		SaleID:           sale.ID,
		AffiliateID:      sale.AffiliateID,
		Event:            event,
		CommissionAmount: sale.CommissionAmount,
		Currency:         sale.Currency,
	})
	if err != nil {
		logger.Warnw("affiliate_sale_notify_enqueue_failed",
			"sale_id", sale.ID,
			"event", event,
			"error", err,
		)
	}
}
