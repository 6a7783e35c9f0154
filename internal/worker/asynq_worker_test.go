package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/affpay-next/internal/config"
	"github.com/affpay-next/internal/constants"
	"github.com/affpay-next/internal/models"
	"github.com/affpay-next/internal/notify"
	"github.com/affpay-next/internal/provider"
	"github.com/affpay-next/internal/queue"
	"github.com/affpay-next/internal/repository"

	"github.com/glebarez/sqlite"
	"github.com/hibiken/asynq"
	"gorm.io/gorm"
)

func newWorkerTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:worker_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("打开测试数据库失败: %v", err)
	}
	if err := db.AutoMigrate(&models.Affiliate{}, &models.AffiliateSale{}); err != nil {
		t.Fatalf("迁移测试数据库失败: %v", err)
	}
	return db
}

func TestHandleAffiliateSaleNotify(t *testing.T) {
	db := newWorkerTestDB(t)
	saleRepo := repository.NewSaleRepository(db)

	sale := &models.AffiliateSale{
		AffiliateID:          3,
		OriginatingPaymentID: "pay-worker-1",
		SaleAmount:           10000,
		CommissionAmount:     1000,
		Currency:             "BRL",
		SplitMethod:          constants.SplitMethodMercadoPago,
		Status:               constants.SaleStatusPaid,
	}
	if err := saleRepo.Create(sale); err != nil {
		t.Fatalf("创建测试结算单失败: %v", err)
	}

	var got notify.SaleEventMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("解析通知消息失败: %v", err)
		}
	}))
	defer server.Close()

	consumer := NewConsumer(&provider.Container{
		SaleRepo: saleRepo,
		Notifier: notify.NewWebhookNotifier(&config.NotifyConfig{Enabled: true, WebhookURL: server.URL}),
	})

	payload, err := json.Marshal(queue.AffiliateSaleNotifyPayload{
		SaleID:           sale.ID,
		AffiliateID:      sale.AffiliateID,
		Event:            queue.SaleEventPaid,
		CommissionAmount: sale.CommissionAmount,
		Currency:         sale.Currency,
	})
	if err != nil {
		t.Fatalf("序列化任务载荷失败: %v", err)
	}
	task := asynq.NewTask(queue.TaskAffiliateSaleNotify, payload)

	if err := consumer.handleAffiliateSaleNotify(context.Background(), task); err != nil {
		t.Fatalf("消费通知任务失败: %v", err)
	}
	if got.Event != queue.SaleEventPaid || got.SaleID != sale.ID || got.CommissionAmount != 1000 {
		t.Fatalf("通知内容不符: %+v", got)
	}
}

func TestHandleAffiliateSaleNotifySaleMissing(t *testing.T) {
	db := newWorkerTestDB(t)
	consumer := NewConsumer(&provider.Container{
		SaleRepo: repository.NewSaleRepository(db),
		Notifier: notify.NewWebhookNotifier(&config.NotifyConfig{Enabled: true, WebhookURL: "http://127.0.0.1:0"}),
	})

	payload, _ := json.Marshal(queue.AffiliateSaleNotifyPayload{SaleID: 999, Event: queue.SaleEventRecorded})
	task := asynq.NewTask(queue.TaskAffiliateSaleNotify, payload)

	// 结算单不存在时静默跳过，不触发队列重试
	if err := consumer.handleAffiliateSaleNotify(context.Background(), task); err != nil {
		t.Fatalf("缺失结算单应跳过: %v", err)
	}
}
