package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/affpay-next/internal/config"
	"github.com/affpay-next/internal/constants"
	"github.com/affpay-next/internal/logger"
	"github.com/affpay-next/internal/models"
	"github.com/affpay-next/internal/payment/mercadopago"
	"github.com/affpay-next/internal/payment/stripe"
	"github.com/affpay-next/internal/queue"
	"github.com/affpay-next/internal/repository"

	"gorm.io/gorm"
)

// 网关退款核验结论
const (
	verificationValid        = "valid"
	verificationRefunded     = "refunded"
	verificationInconclusive = "inconclusive"
)

// SettlementService 佣金结算业务服务
type SettlementService struct {
	affiliateRepo  repository.AffiliateRepository
	saleRepo       repository.SaleRepository
	secretRepo     repository.SecretRepository
	settingService *SettingService
	queueClient    *queue.Client
	throttle       time.Duration
}

// NewSettlementService 创建佣金结算服务
func NewSettlementService(
	affiliateRepo repository.AffiliateRepository,
	saleRepo repository.SaleRepository,
	secretRepo repository.SecretRepository,
	settingService *SettingService,
	queueClient *queue.Client,
	payoutCfg *config.PayoutConfig,
) *SettlementService {
	throttle := 200 * time.Millisecond
	if payoutCfg != nil && payoutCfg.ThrottleMS >= 0 {
		throttle = time.Duration(payoutCfg.ThrottleMS) * time.Millisecond
	}
	return &SettlementService{
		affiliateRepo:  affiliateRepo,
		saleRepo:       saleRepo,
		secretRepo:     secretRepo,
		settingService: settingService,
		queueClient:    queueClient,
		throttle:       throttle,
	}
}

// BatchResult 批量结算执行结果
type BatchResult struct {
	Scanned  int `json:"scanned"`  // 扫描记录数
	Settled  int `json:"settled"`  // 本轮完成结算数
	Skipped  int `json:"skipped"`  // 未到期/补齐排期后跳过数
	Failed   int `json:"failed"`   // 本轮失败数
	Refunded int `json:"refunded"` // 核验发现退款数
}

// ProcessDuePayouts 扫描到期的自动分账记录并逐条结算
func (s *SettlementService) ProcessDuePayouts(ctx context.Context, now time.Time) (*BatchResult, error) {
	if s == nil || s.saleRepo == nil {
		return nil, ErrNotFound
	}
	sales, err := s.saleRepo.ListDueForPayout(now)
	if err != nil {
		return nil, err
	}
	return s.processBatch(ctx, sales, now)
}

// ProcessAvailability 扫描过保的手动分账记录并转入可提取余额
func (s *SettlementService) ProcessAvailability(ctx context.Context, now time.Time) (*BatchResult, error) {
	if s == nil || s.saleRepo == nil {
		return nil, ErrNotFound
	}
	sales, err := s.saleRepo.ListReadyForAvailability(now)
	if err != nil {
		return nil, err
	}
	return s.processBatch(ctx, sales, now)
}

func (s *SettlementService) processBatch(ctx context.Context, sales []models.AffiliateSale, now time.Time) (*BatchResult, error) {
	result := &BatchResult{Scanned: len(sales)}
	for i := range sales {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		sale := &sales[i]
		err := s.ProcessSale(ctx, sale.ID, now)
		switch {
		case err == nil:
			result.Settled++
		case errors.Is(err, ErrSaleNotDue):
			result.Skipped++
		case errors.Is(err, ErrSaleRefunded):
			result.Refunded++
		default:
			result.Failed++
			logger.Warnw("affiliate_sale_settle_failed",
				"sale_id", sale.ID,
				"affiliate_id", sale.AffiliateID,
				"split_method", sale.SplitMethod,
				"error", err,
			)
		}
		if s.throttle > 0 && i < len(sales)-1 {
			select {
			case <-ctx.Done():
				return result, ctx.Err()
			case <-time.After(s.throttle):
			}
		}
	}
	return result, nil
}

// ProcessSale 结算单条记录：核验网关退款后按分账方式结算。
// 手动分账过保后转可提取，自动分账执行网关转账。
func (s *SettlementService) ProcessSale(ctx context.Context, saleID uint, now time.Time) error {
	if s == nil || s.saleRepo == nil || s.affiliateRepo == nil {
		return ErrNotFound
	}
	if now.IsZero() {
		now = time.Now()
	}
	sale, err := s.saleRepo.GetByID(saleID)
	if err != nil {
		return err
	}
	if sale == nil {
		return ErrNotFound
	}
	if sale.Status != constants.SaleStatusPending && sale.Status != constants.SaleStatusPendingPayout {
		return ErrSaleNotRetryable
	}

	setting, err := s.settingService.GetPayoutSetting()
	if err != nil {
		return err
	}

	// 排期缺失或早于冻结期下限的存量数据按创建时间纠正，本轮跳过
	holdFloor := sale.CreatedAt.Add(time.Duration(constants.MinHoldDays) * 24 * time.Hour)
	if sale.PayoutScheduledAt == nil || sale.PayoutScheduledAt.Before(holdFloor) {
		scheduledAt := holdFloor
		if sale.PayoutScheduledAt == nil {
			scheduledAt = sale.CreatedAt.Add(time.Duration(setting.EffectiveHoldDays()) * 24 * time.Hour)
		}
		if err := s.saleRepo.UpdateFields(sale.ID, map[string]interface{}{
			"payout_scheduled_at": scheduledAt,
			"updated_at":          now,
		}); err != nil {
			return err
		}
		return ErrSaleNotDue
	}
	if sale.PayoutScheduledAt.After(now) {
		return ErrSaleNotDue
	}

	verdict, detail, err := s.verifyGatewayPayment(ctx, sale)
	switch verdict {
	case verificationRefunded:
		if err := s.settleRefunded(sale, detail, now); err != nil {
			return err
		}
		return ErrSaleRefunded
	case verificationInconclusive:
		// 核验不可判定不落库、不计尝试次数，原样保留记录等下一轮重查
		return err
	}

	if sale.SplitMethod == constants.SplitMethodManual {
		return s.settleAvailable(sale, now)
	}
	return s.settleTransfer(ctx, sale, now)
}

// RetryFailedPayout 把失败记录翻回待放款后立刻重走结算流程。
// 尝试计数只增不减，幂等键随之单调递进，不会复用已消费过的键。
func (s *SettlementService) RetryFailedPayout(ctx context.Context, saleID uint, now time.Time) error {
	if s == nil || s.saleRepo == nil {
		return ErrNotFound
	}
	if now.IsZero() {
		now = time.Now()
	}
	sale, err := s.saleRepo.GetByID(saleID)
	if err != nil {
		return err
	}
	if sale == nil {
		return ErrNotFound
	}
	if sale.Status != constants.SaleStatusPayoutFailed {
		return ErrSaleNotRetryable
	}
	// 冻结期校验先行，未到期不做任何状态改动
	deadline := sale.CreatedAt.Add(time.Duration(constants.MinHoldDays) * 24 * time.Hour)
	if sale.PayoutScheduledAt != nil && sale.PayoutScheduledAt.After(deadline) {
		deadline = *sale.PayoutScheduledAt
	}
	if deadline.After(now) {
		return ErrSaleNotDue
	}
	if err := s.saleRepo.UpdateFields(sale.ID, map[string]interface{}{
		"status":       constants.SaleStatusPendingPayout,
		"payout_error": "",
		"updated_at":   now,
	}); err != nil {
		return err
	}
	return s.ProcessSale(ctx, sale.ID, now)
}

// verifyGatewayPayment 结算前回查网关原始支付单，确认未退款。
// 未留网关流水号的记录视为核验通过。
func (s *SettlementService) verifyGatewayPayment(ctx context.Context, sale *models.AffiliateSale) (string, string, error) {
	if sale.GatewayPaymentID == "" || sale.GatewayProvider == "" {
		return verificationValid, "", nil
	}
	switch sale.GatewayProvider {
	case constants.GatewayProviderMercadoPago:
		return s.verifyMercadoPagoPayment(ctx, sale)
	case constants.GatewayProviderStripe:
		return s.verifyStripePayment(ctx, sale)
	default:
		return verificationValid, "", nil
	}
}

func (s *SettlementService) verifyMercadoPagoPayment(ctx context.Context, sale *models.AffiliateSale) (string, string, error) {
	cfg, err := s.loadMercadoPagoConfig()
	if err != nil {
		return verificationInconclusive, err.Error(), err
	}
	payment, err := mercadopago.GetPayment(ctx, cfg, sale.GatewayPaymentID)
	if err != nil {
		return verificationInconclusive, err.Error(), err
	}
	switch payment.Status {
	case mercadopago.PaymentStatusRefunded, mercadopago.PaymentStatusCancelled, mercadopago.PaymentStatusChargedBack:
		return verificationRefunded, fmt.Sprintf("原始支付单已退款: %s", payment.Status), nil
	case mercadopago.PaymentStatusApproved:
		return verificationValid, "", nil
	default:
		// 非终态（in_process、in_mediation 等）不放款也不冲账
		detail := fmt.Sprintf("支付单状态不可判定: %s", payment.Status)
		return verificationInconclusive, detail, fmt.Errorf("%w: %s", ErrVerificationInconclusive, payment.Status)
	}
}

func (s *SettlementService) verifyStripePayment(ctx context.Context, sale *models.AffiliateSale) (string, string, error) {
	cfg, err := s.loadStripeConfig()
	if err != nil {
		return verificationInconclusive, err.Error(), err
	}
	intent, err := stripe.GetPaymentIntent(ctx, cfg, sale.GatewayPaymentID)
	if err != nil {
		return verificationInconclusive, err.Error(), err
	}
	if intent.Status == stripe.IntentStatusCanceled {
		return verificationRefunded, "原始支付单已撤销: canceled", nil
	}
	if intent.Status != stripe.IntentStatusSucceeded {
		detail := fmt.Sprintf("支付意图状态不可判定: %s", intent.Status)
		return verificationInconclusive, detail, fmt.Errorf("%w: %s", ErrVerificationInconclusive, intent.Status)
	}
	charges, err := stripe.ListCharges(ctx, cfg, sale.GatewayPaymentID)
	if err != nil {
		return verificationInconclusive, err.Error(), err
	}
	for _, charge := range charges {
		if charge.Refunded || charge.AmountRefunded > 0 {
			return verificationRefunded, fmt.Sprintf("原始支付单已退款: charge=%s", charge.ID), nil
		}
	}
	return verificationValid, "", nil
}

// settleRefunded 退款终态：冲减联盟客待结算余额与历史总收益
func (s *SettlementService) settleRefunded(sale *models.AffiliateSale, detail string, now time.Time) error {
	err := s.saleRepo.Transaction(func(tx *gorm.DB) error {
		if err := s.saleRepo.WithTx(tx).UpdateFields(sale.ID, map[string]interface{}{
			"status":       constants.SaleStatusRefunded,
			"payout_error": truncateError(detail),
			"updated_at":   now,
		}); err != nil {
			return err
		}
		if sale.CommissionAmount > 0 {
			return s.affiliateRepo.WithTx(tx).DebitPendingEarnings(sale.AffiliateID, sale.CommissionAmount, now)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.notifySaleEvent(sale, queue.SaleEventRefunded)
	logger.Infow("affiliate_sale_refunded",
		"sale_id", sale.ID,
		"affiliate_id", sale.AffiliateID,
		"commission_amount", sale.CommissionAmount,
	)
	return nil
}

// settleAvailable 手动分账过保：待结算余额转入可提取余额
func (s *SettlementService) settleAvailable(sale *models.AffiliateSale, now time.Time) error {
	err := s.saleRepo.Transaction(func(tx *gorm.DB) error {
		if err := s.saleRepo.WithTx(tx).UpdateFields(sale.ID, map[string]interface{}{
			"status":       constants.SaleStatusAvailable,
			"payout_error": "",
			"updated_at":   now,
		}); err != nil {
			return err
		}
		if sale.CommissionAmount > 0 {
			return s.affiliateRepo.WithTx(tx).SettlePendingToAvailable(sale.AffiliateID, sale.CommissionAmount, now)
		}
		return nil
	})
	if err != nil {
		return err
	}
	logger.Infow("affiliate_sale_available",
		"sale_id", sale.ID,
		"affiliate_id", sale.AffiliateID,
		"commission_amount", sale.CommissionAmount,
	)
	return nil
}

// settleTransfer 自动分账：调用网关转账后落已支付终态
func (s *SettlementService) settleTransfer(ctx context.Context, sale *models.AffiliateSale, now time.Time) error {
	affiliate, err := s.affiliateRepo.GetByID(sale.AffiliateID)
	if err != nil {
		return err
	}
	if affiliate == nil {
		return s.markPayoutFailed(sale, fmt.Errorf("%w: 联盟客不存在", ErrPayoutConfigInvalid), now)
	}
	if affiliate.Status != constants.AffiliateStatusActive {
		return s.markPayoutFailed(sale, fmt.Errorf("%w: 联盟客状态 %s 不可收款", ErrPayoutConfigInvalid, affiliate.Status), now)
	}

	idempotencyKey := fmt.Sprintf("af-sale-%d-%d", sale.ID, sale.PayoutAttempts)

	var transferID string
	switch sale.SplitMethod {
	case constants.SplitMethodMercadoPago:
		transferID, err = s.transferMercadoPago(ctx, affiliate, sale, idempotencyKey)
	case constants.SplitMethodStripeConnect:
		transferID, err = s.transferStripe(ctx, affiliate, sale, idempotencyKey)
	default:
		err = fmt.Errorf("%w: 未知分账方式 %s", ErrPayoutConfigInvalid, sale.SplitMethod)
	}
	if err != nil {
		return s.recordTransferFailure(sale, err, now)
	}

	paidAt := now
	err = s.saleRepo.Transaction(func(tx *gorm.DB) error {
		if err := s.saleRepo.WithTx(tx).UpdateFields(sale.ID, map[string]interface{}{
			"status":       constants.SaleStatusPaid,
			"transfer_id":  transferID,
			"paid_at":      paidAt,
			"payout_error": "",
			"updated_at":   now,
		}); err != nil {
			return err
		}
		if sale.CommissionAmount > 0 {
			return s.affiliateRepo.WithTx(tx).SettlePendingToPaid(sale.AffiliateID, sale.CommissionAmount, now)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.notifySaleEvent(sale, queue.SaleEventPaid)
	logger.Infow("affiliate_sale_paid",
		"sale_id", sale.ID,
		"affiliate_id", sale.AffiliateID,
		"split_method", sale.SplitMethod,
		"transfer_id", transferID,
		"commission_amount", sale.CommissionAmount,
	)
	return nil
}

func (s *SettlementService) transferMercadoPago(ctx context.Context, affiliate *models.Affiliate, sale *models.AffiliateSale, idempotencyKey string) (string, error) {
	if affiliate.MercadoPagoPayeeID == "" {
		return "", fmt.Errorf("%w: 联盟客未配置 Mercado Pago 收款账户", ErrPayoutConfigInvalid)
	}
	cfg, err := s.loadMercadoPagoConfig()
	if err != nil {
		return "", err
	}
	result, err := mercadopago.SendMoney(ctx, cfg, mercadopago.TransferInput{
		PayeeID:        affiliate.MercadoPagoPayeeID,
		AmountMinor:    sale.CommissionAmount,
		Currency:       sale.Currency,
		Description:    fmt.Sprintf("affiliate commission sale #%d", sale.ID),
		IdempotencyKey: idempotencyKey,
	})
	if err != nil {
		return "", err
	}
	return result.TransferID, nil
}

func (s *SettlementService) transferStripe(ctx context.Context, affiliate *models.Affiliate, sale *models.AffiliateSale, idempotencyKey string) (string, error) {
	if affiliate.StripeAccountID == "" || affiliate.StripeAccountStatus != constants.StripeAccountStatusConnected {
		return "", fmt.Errorf("%w: 联盟客 Stripe 账户不可用", ErrPayoutConfigInvalid)
	}
	cfg, err := s.loadStripeConfig()
	if err != nil {
		return "", err
	}
	result, err := stripe.CreateTransfer(ctx, cfg, stripe.TransferInput{
		Destination:    affiliate.StripeAccountID,
		AmountMinor:    sale.CommissionAmount,
		Currency:       sale.Currency,
		IdempotencyKey: idempotencyKey,
		Metadata: map[string]string{
			"sale_id":      fmt.Sprintf("%d", sale.ID),
			"affiliate_id": fmt.Sprintf("%d", sale.AffiliateID),
		},
	})
	if err != nil {
		return "", err
	}
	return result.TransferID, nil
}

// recordTransferFailure 记录转账失败。收款配置类错误重试无意义，直接终败；
// 平台凭证类错误不消耗尝试次数；可重试错误累计到上限后转终败等待人工介入。
func (s *SettlementService) recordTransferFailure(sale *models.AffiliateSale, cause error, now time.Time) error {
	if errors.Is(cause, ErrPayoutConfigInvalid) {
		return s.markPayoutFailed(sale, cause, now)
	}
	updates := map[string]interface{}{
		"payout_error": truncateError(cause.Error()),
		"updated_at":   now,
	}
	if countsAgainstAttempts(cause) {
		attempts := sale.PayoutAttempts + 1
		updates["payout_attempts"] = attempts
		if attempts >= constants.PayoutAttemptCap {
			updates["status"] = constants.SaleStatusPayoutFailed
		}
	}
	if err := s.saleRepo.UpdateFields(sale.ID, updates); err != nil {
		return err
	}
	return cause
}

// markPayoutFailed 直接落终败状态并记一次尝试，失败原因写回结算单
func (s *SettlementService) markPayoutFailed(sale *models.AffiliateSale, cause error, now time.Time) error {
	if err := s.saleRepo.UpdateFields(sale.ID, map[string]interface{}{
		"status":          constants.SaleStatusPayoutFailed,
		"payout_attempts": sale.PayoutAttempts + 1,
		"payout_error":    truncateError(cause.Error()),
		"updated_at":      now,
	}); err != nil {
		return err
	}
	return cause
}

// countsAgainstAttempts 平台配置缺失与凭证错误修复后可直接重试，不计次
func countsAgainstAttempts(err error) bool {
	switch {
	case errors.Is(err, ErrGatewayConfigMissing),
		errors.Is(err, mercadopago.ErrConfigInvalid),
		errors.Is(err, mercadopago.ErrPermissionDenied),
		errors.Is(err, stripe.ErrConfigInvalid),
		errors.Is(err, stripe.ErrPermissionDenied):
		return false
	default:
		return true
	}
}

func (s *SettlementService) loadMercadoPagoConfig() (*mercadopago.Config, error) {
	if s.secretRepo == nil {
		return nil, ErrGatewayConfigMissing
	}
	secret, err := s.secretRepo.GetByKey(constants.SecretKeyMercadoPagoConfig)
	if err != nil {
		return nil, err
	}
	if secret == nil || len(secret.ValueJSON) == 0 {
		return nil, fmt.Errorf("%w: mercadopago", ErrGatewayConfigMissing)
	}
	cfg, err := mercadopago.ParseConfig(secret.ValueJSON)
	if err != nil {
		return nil, err
	}
	if err := mercadopago.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (s *SettlementService) loadStripeConfig() (*stripe.Config, error) {
	if s.secretRepo == nil {
		return nil, ErrGatewayConfigMissing
	}
	secret, err := s.secretRepo.GetByKey(constants.SecretKeyStripeConfig)
	if err != nil {
		return nil, err
	}
	if secret == nil || len(secret.ValueJSON) == 0 {
		return nil, fmt.Errorf("%w: stripe", ErrGatewayConfigMissing)
	}
	cfg, err := stripe.ParseConfig(secret.ValueJSON)
	if err != nil {
		return nil, err
	}
	if err := stripe.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (s *SettlementService) notifySaleEvent(sale *models.AffiliateSale, event string) {
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

// truncateError 失败原因落库截断到列宽以内
func truncateError(msg string) string {
	const maxLen = 500
	if len(msg) <= maxLen {
		return msg
	}
	return msg[:maxLen]
}
