package scheduler

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/affpay-next/internal/config"
	"github.com/affpay-next/internal/constants"
	"github.com/affpay-next/internal/models"
	"github.com/affpay-next/internal/repository"
	"github.com/affpay-next/internal/service"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func newSchedulerTestService(t *testing.T) (*service.SettlementService, repository.SaleRepository, repository.AffiliateRepository) {
	t.Helper()
	dsn := fmt.Sprintf("file:scheduler_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("打开测试数据库失败: %v", err)
	}
	err = db.AutoMigrate(
		&models.Setting{},
		&models.Secret{},
		&models.Affiliate{},
		&models.AffiliateSale{},
	)
	if err != nil {
		t.Fatalf("迁移测试数据库失败: %v", err)
	}
	affiliateRepo := repository.NewAffiliateRepository(db)
	saleRepo := repository.NewSaleRepository(db)
	settingService := service.NewSettingService(repository.NewSettingRepository(db))
	svc := service.NewSettlementService(
		affiliateRepo,
		saleRepo,
		repository.NewSecretRepository(db),
		settingService,
		nil,
		&config.PayoutConfig{ThrottleMS: 0},
	)
	return svc, saleRepo, affiliateRepo
}

func TestSchedulerRunOnceAvailability(t *testing.T) {
	settlement, saleRepo, affiliateRepo := newSchedulerTestService(t)

	affiliate := &models.Affiliate{
		Name:          "调度测试联盟客",
		Email:         fmt.Sprintf("sched_%d@example.com", time.Now().UnixNano()),
		Status:        constants.AffiliateStatusActive,
		PendingAmount: 500,
		TotalEarnings: 500,
	}
	if err := affiliateRepo.Create(affiliate); err != nil {
		t.Fatalf("创建测试联盟客失败: %v", err)
	}
	// 成交早于冻结期下限，排期到点即可转可提取
	past := time.Now().Add(-time.Hour)
	sale := &models.AffiliateSale{
		AffiliateID:          affiliate.ID,
		OriginatingPaymentID: "pay-sched-1",
		SaleAmount:           5000,
		CommissionAmount:     500,
		Currency:             "BRL",
		SplitMethod:          constants.SplitMethodManual,
		Status:               constants.SaleStatusPending,
		PayoutScheduledAt:    &past,
	}
	sale.CreatedAt = time.Now().Add(-8 * 24 * time.Hour)
	if err := saleRepo.Create(sale); err != nil {
		t.Fatalf("创建测试结算单失败: %v", err)
	}

	sched := New(settlement, &config.PayoutConfig{PayoutIntervalMinutes: 30, AvailabilityIntervalMinutes: 15})
	sched.runOnce(context.Background(), JobAvailability, 15*time.Minute, settlement.ProcessAvailability)

	status := sched.CurrentStatus()
	if len(status.Jobs) != 2 {
		t.Fatalf("任务数 = %d, 期望 2", len(status.Jobs))
	}
	var availability *JobStatus
	for i := range status.Jobs {
		if status.Jobs[i].Job == JobAvailability {
			availability = &status.Jobs[i]
		}
	}
	if availability == nil {
		t.Fatal("缺少 availability 任务状态")
	}
	if availability.IntervalMinutes != 15 {
		t.Fatalf("间隔 = %d, 期望 15", availability.IntervalMinutes)
	}
	if availability.LastRunAt == nil || availability.NextRunAt == nil {
		t.Fatal("未记录运行时间")
	}
	if availability.LastResult == nil || availability.LastResult.Settled != 1 {
		t.Fatalf("运行结果 = %+v, 期望 settled=1", availability.LastResult)
	}

	updated, _ := saleRepo.GetByID(sale.ID)
	if updated.Status != constants.SaleStatusAvailable {
		t.Fatalf("状态 = %s, 期望 available", updated.Status)
	}
}

func TestSchedulerStartStopsOnCancel(t *testing.T) {
	settlement, _, _ := newSchedulerTestService(t)
	sched := New(settlement, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- sched.Start(ctx)
	}()

	// 等首轮空扫描完成后取消
	deadline := time.After(5 * time.Second)
	for {
		status := sched.CurrentStatus()
		ready := false
		for _, job := range status.Jobs {
			if job.LastRunAt != nil {
				ready = true
			}
		}
		if ready {
			break
		}
		select {
		case <-deadline:
			t.Fatal("调度器首轮执行超时")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("调度器退出异常: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("调度器未在取消后退出")
	}

	if sched.CurrentStatus().Running {
		t.Fatal("取消后仍标记为运行中")
	}
}
