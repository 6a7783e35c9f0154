package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/affpay-next/internal/config"
)

func TestSendSaleEvent(t *testing.T) {
	var got SaleEventMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, 期望 POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %s", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("解析通知消息失败: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	notifier := NewWebhookNotifier(&config.NotifyConfig{Enabled: true, WebhookURL: server.URL})
	err := notifier.SendSaleEvent(context.Background(), SaleEventMessage{
		Event:            "sale_paid",
		SaleID:           7,
		AffiliateID:      3,
		CommissionAmount: 1055,
		Currency:         "BRL",
	})
	if err != nil {
		t.Fatalf("发送通知失败: %v", err)
	}
	if got.Event != "sale_paid" || got.SaleID != 7 || got.CommissionAmount != 1055 {
		t.Fatalf("消息内容不符: %+v", got)
	}
	if got.OccurredAt.IsZero() {
		t.Fatal("未填充事件时间")
	}
}

func TestSendSaleEventNon2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	notifier := NewWebhookNotifier(&config.NotifyConfig{Enabled: true, WebhookURL: server.URL})
	err := notifier.SendSaleEvent(context.Background(), SaleEventMessage{Event: "sale_recorded", SaleID: 1})
	if !errors.Is(err, ErrRequestFailed) {
		t.Fatalf("err = %v, 期望 ErrRequestFailed", err)
	}
}

func TestSendSaleEventDisabled(t *testing.T) {
	notifier := NewWebhookNotifier(&config.NotifyConfig{Enabled: false})
	err := notifier.SendSaleEvent(context.Background(), SaleEventMessage{Event: "sale_paid"})
	if !errors.Is(err, ErrDisabled) {
		t.Fatalf("err = %v, 期望 ErrDisabled", err)
	}
}
