package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/affpay-next/internal/constants"
	"github.com/affpay-next/internal/models"
	"github.com/affpay-next/internal/repository"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func newServiceTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:service_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("打开测试数据库失败: %v", err)
	}
	err = db.AutoMigrate(
		&models.Setting{},
		&models.Secret{},
		&models.Affiliate{},
		&models.AffiliateLink{},
		&models.AffiliateSale{},
	)
	if err != nil {
		t.Fatalf("迁移测试数据库失败: %v", err)
	}
	return db
}

func newAttributionTestService(t *testing.T, db *gorm.DB) (*AttributionService, repository.AffiliateRepository, repository.SaleRepository) {
	t.Helper()
	affiliateRepo := repository.NewAffiliateRepository(db)
	saleRepo := repository.NewSaleRepository(db)
	settingService := NewSettingService(repository.NewSettingRepository(db))
	svc := NewAttributionService(affiliateRepo, saleRepo, settingService, nil)
	return svc, affiliateRepo, saleRepo
}

func createTestAffiliate(t *testing.T, repo repository.AffiliateRepository, mutate func(*models.Affiliate)) *models.Affiliate {
	t.Helper()
	affiliate := &models.Affiliate{
		Name:   "测试联盟客",
		Email:  fmt.Sprintf("aff_%d@example.com", time.Now().UnixNano()),
		Status: constants.AffiliateStatusActive,
	}
	if mutate != nil {
		mutate(affiliate)
	}
	if err := repo.Create(affiliate); err != nil {
		t.Fatalf("创建测试联盟客失败: %v", err)
	}
	return affiliate
}

func createTestLink(t *testing.T, repo repository.AffiliateRepository, affiliateID uint, code string) *models.AffiliateLink {
	t.Helper()
	link := &models.AffiliateLink{AffiliateID: affiliateID, Code: code}
	if err := repo.CreateLink(link); err != nil {
		t.Fatalf("创建测试推广链接失败: %v", err)
	}
	return link
}

func TestHandlePaymentApprovedAutoSplit(t *testing.T) {
	db := newServiceTestDB(t)
	svc, affiliateRepo, _ := newAttributionTestService(t, db)

	affiliate := createTestAffiliate(t, affiliateRepo, func(a *models.Affiliate) {
		a.MercadoPagoPayeeID = "mp-payee-1"
	})
	link := createTestLink(t, affiliateRepo, affiliate.ID, "summer-sale")

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	sale, err := svc.HandlePaymentApproved(context.Background(), CheckoutSaleInput{
		OriginatingPaymentID: "pay-1001",
		LinkCode:             "summer-sale",
		SaleAmount:           10550,
		Currency:             "brl",
		GatewayProvider:      constants.GatewayProviderMercadoPago,
		GatewayPaymentID:     "mp-9001",
	}, now)
	if err != nil {
		t.Fatalf("归因失败: %v", err)
	}

	// 默认比例 10%，向下取整：10550 * 10% = 1055
	if sale.CommissionAmount != 1055 {
		t.Fatalf("佣金金额 = %d, 期望 1055", sale.CommissionAmount)
	}
	if sale.CommissionPercent != 10 {
		t.Fatalf("佣金比例 = %v, 期望 10", sale.CommissionPercent)
	}
	if sale.SplitMethod != constants.SplitMethodMercadoPago {
		t.Fatalf("分账方式 = %s, 期望 mercadopago", sale.SplitMethod)
	}
	if sale.Status != constants.SaleStatusPendingPayout {
		t.Fatalf("状态 = %s, 期望 pending_payout", sale.Status)
	}
	if sale.Currency != "BRL" {
		t.Fatalf("币种 = %s, 期望 BRL", sale.Currency)
	}
	if sale.PayoutScheduledAt == nil {
		t.Fatal("未写入预定结算时间")
	}
	wantScheduled := now.Add(7 * 24 * time.Hour)
	if !sale.PayoutScheduledAt.Equal(wantScheduled) {
		t.Fatalf("预定结算时间 = %v, 期望 %v", sale.PayoutScheduledAt, wantScheduled)
	}

	updated, err := affiliateRepo.GetByID(affiliate.ID)
	if err != nil {
		t.Fatalf("查询联盟客失败: %v", err)
	}
	if updated.PendingAmount != 1055 || updated.TotalEarnings != 1055 {
		t.Fatalf("余额 pending=%d total=%d, 期望 1055/1055", updated.PendingAmount, updated.TotalEarnings)
	}

	updatedLink, err := affiliateRepo.GetLinkByID(link.ID)
	if err != nil {
		t.Fatalf("查询推广链接失败: %v", err)
	}
	if updatedLink.Conversions != 1 {
		t.Fatalf("转化数 = %d, 期望 1", updatedLink.Conversions)
	}
}

func TestHandlePaymentApprovedIdempotent(t *testing.T) {
	db := newServiceTestDB(t)
	svc, affiliateRepo, _ := newAttributionTestService(t, db)

	affiliate := createTestAffiliate(t, affiliateRepo, nil)
	input := CheckoutSaleInput{
		OriginatingPaymentID: "pay-dup",
		AffiliateID:          affiliate.ID,
		SaleAmount:           5000,
	}
	now := time.Now().UTC()

	first, err := svc.HandlePaymentApproved(context.Background(), input, now)
	if err != nil {
		t.Fatalf("第一次归因失败: %v", err)
	}
	second, err := svc.HandlePaymentApproved(context.Background(), input, now)
	if err != nil {
		t.Fatalf("重复归因失败: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("重复推送产生新结算单: %d != %d", first.ID, second.ID)
	}

	updated, _ := affiliateRepo.GetByID(affiliate.ID)
	if updated.PendingAmount != first.CommissionAmount {
		t.Fatalf("重复推送导致重复记账: pending=%d", updated.PendingAmount)
	}
}

func TestHandlePaymentApprovedInactiveAffiliate(t *testing.T) {
	db := newServiceTestDB(t)
	svc, affiliateRepo, saleRepo := newAttributionTestService(t, db)

	affiliate := createTestAffiliate(t, affiliateRepo, func(a *models.Affiliate) {
		a.Status = constants.AffiliateStatusSuspended
	})

	// 非活跃联盟客静默跳过，不报错也不产生结算单
	sale, err := svc.HandlePaymentApproved(context.Background(), CheckoutSaleInput{
		OriginatingPaymentID: "pay-susp",
		AffiliateID:          affiliate.ID,
		SaleAmount:           3000,
	}, time.Now())
	if err != nil {
		t.Fatalf("err = %v, 期望静默跳过", err)
	}
	if sale != nil {
		t.Fatalf("停用联盟客不应产生结算单: %+v", sale)
	}

	stored, _ := saleRepo.GetByOriginatingPaymentID("pay-susp")
	if stored != nil {
		t.Fatal("停用联盟客不应落结算单")
	}
	updated, _ := affiliateRepo.GetByID(affiliate.ID)
	if updated.PendingAmount != 0 {
		t.Fatalf("待结算余额 = %d, 不应记账", updated.PendingAmount)
	}
}

func TestHandlePaymentApprovedZeroPercentOverride(t *testing.T) {
	db := newServiceTestDB(t)
	svc, affiliateRepo, _ := newAttributionTestService(t, db)

	zero := float64(0)
	affiliate := createTestAffiliate(t, affiliateRepo, func(a *models.Affiliate) {
		a.CommissionPercent = &zero
	})

	sale, err := svc.HandlePaymentApproved(context.Background(), CheckoutSaleInput{
		OriginatingPaymentID: "pay-zero",
		AffiliateID:          affiliate.ID,
		SaleAmount:           8000,
	}, time.Now())
	if err != nil {
		t.Fatalf("归因失败: %v", err)
	}
	if sale.CommissionAmount != 0 || sale.CommissionPercent != 0 {
		t.Fatalf("显式 0 比例未生效: amount=%d percent=%v", sale.CommissionAmount, sale.CommissionPercent)
	}

	updated, _ := affiliateRepo.GetByID(affiliate.ID)
	if updated.PendingAmount != 0 || updated.TotalEarnings != 0 {
		t.Fatalf("零佣金不应记账: pending=%d total=%d", updated.PendingAmount, updated.TotalEarnings)
	}
}

func TestHandlePaymentApprovedManualFallback(t *testing.T) {
	db := newServiceTestDB(t)
	svc, affiliateRepo, _ := newAttributionTestService(t, db)

	// Stripe 账户未完成连接时回落手动分账
	affiliate := createTestAffiliate(t, affiliateRepo, func(a *models.Affiliate) {
		a.StripeAccountID = "acct_123"
		a.StripeAccountStatus = constants.StripeAccountStatusPending
	})

	sale, err := svc.HandlePaymentApproved(context.Background(), CheckoutSaleInput{
		OriginatingPaymentID: "pay-manual",
		AffiliateID:          affiliate.ID,
		SaleAmount:           4000,
		GatewayProvider:      constants.GatewayProviderStripe,
		GatewayPaymentID:     "pi_123",
	}, time.Now())
	if err != nil {
		t.Fatalf("归因失败: %v", err)
	}
	if sale.SplitMethod != constants.SplitMethodManual {
		t.Fatalf("分账方式 = %s, 期望 manual", sale.SplitMethod)
	}
	if sale.Status != constants.SaleStatusPending {
		t.Fatalf("状态 = %s, 期望 pending", sale.Status)
	}
}

func TestHandlePaymentApprovedHoldFloor(t *testing.T) {
	db := newServiceTestDB(t)
	affiliateRepo := repository.NewAffiliateRepository(db)
	saleRepo := repository.NewSaleRepository(db)
	settingService := NewSettingService(repository.NewSettingRepository(db))
	svc := NewAttributionService(affiliateRepo, saleRepo, settingService, nil)

	// 配置 3 天冻结期，生效值仍受 7 天下限保护
	_, err := settingService.UpdatePayoutSetting(AffiliatePayoutSetting{
		DefaultCommissionPercent: 10,
		HoldDays:                 3,
		AutoPayEnabled:           true,
	})
	if err != nil {
		t.Fatalf("更新结算配置失败: %v", err)
	}

	affiliate := createTestAffiliate(t, affiliateRepo, nil)
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	sale, err := svc.HandlePaymentApproved(context.Background(), CheckoutSaleInput{
		OriginatingPaymentID: "pay-hold",
		AffiliateID:          affiliate.ID,
		SaleAmount:           2000,
	}, now)
	if err != nil {
		t.Fatalf("归因失败: %v", err)
	}
	want := now.Add(7 * 24 * time.Hour)
	if sale.PayoutScheduledAt == nil || !sale.PayoutScheduledAt.Equal(want) {
		t.Fatalf("预定结算时间 = %v, 期望 %v", sale.PayoutScheduledAt, want)
	}
}

func TestHandlePaymentApprovedAutoPayDisabled(t *testing.T) {
	db := newServiceTestDB(t)
	affiliateRepo := repository.NewAffiliateRepository(db)
	saleRepo := repository.NewSaleRepository(db)
	settingService := NewSettingService(repository.NewSettingRepository(db))
	svc := NewAttributionService(affiliateRepo, saleRepo, settingService, nil)

	// 全局关闭自动分账后，即便联盟客配了收款账户也走人工结算
	_, err := settingService.UpdatePayoutSetting(AffiliatePayoutSetting{
		DefaultCommissionPercent: 10,
		HoldDays:                 7,
		AutoPayEnabled:           false,
	})
	if err != nil {
		t.Fatalf("更新结算配置失败: %v", err)
	}

	affiliate := createTestAffiliate(t, affiliateRepo, func(a *models.Affiliate) {
		a.MercadoPagoPayeeID = "mp-payee-1"
	})
	sale, err := svc.HandlePaymentApproved(context.Background(), CheckoutSaleInput{
		OriginatingPaymentID: "pay-nopay",
		AffiliateID:          affiliate.ID,
		SaleAmount:           5000,
		GatewayProvider:      constants.GatewayProviderMercadoPago,
		GatewayPaymentID:     "mp-1",
	}, time.Now())
	if err != nil {
		t.Fatalf("归因失败: %v", err)
	}
	if sale.SplitMethod != constants.SplitMethodManual {
		t.Fatalf("分账方式 = %s, 期望 manual", sale.SplitMethod)
	}
	if sale.Status != constants.SaleStatusPending {
		t.Fatalf("状态 = %s, 期望 pending", sale.Status)
	}
}

func TestComputeCommissionFloor(t *testing.T) {
	cases := []struct {
		saleAmount int64
		percent    float64
		want       int64
	}{
		{10550, 10, 1055},
		{999, 10, 99},
		{100, 33.33, 33},
		{1, 50, 0},
		{5000, 0, 0},
		{5000, 100, 5000},
	}
	for _, c := range cases {
		got := computeCommission(c.saleAmount, c.percent)
		if got != c.want {
			t.Errorf("computeCommission(%d, %v) = %d, 期望 %d", c.saleAmount, c.percent, got, c.want)
		}
	}
}
