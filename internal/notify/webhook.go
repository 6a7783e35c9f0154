package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/affpay-next/internal/config"
	"github.com/affpay-next/internal/logger"
)

// 通知发送哨兵错误
var (
	ErrDisabled      = errors.New("notify disabled")
	ErrRequestFailed = errors.New("notify request failed")
)

const defaultTimeout = 3 * time.Second

// SaleEventMessage 结算事件外发消息体
type SaleEventMessage struct {
	Event            string    `json:"event"`
	SaleID           uint      `json:"sale_id"`
	AffiliateID      uint      `json:"affiliate_id"`
	CommissionAmount int64     `json:"commission_amount"`
	Currency         string    `json:"currency"`
	OccurredAt       time.Time `json:"occurred_at"`
}

// WebhookNotifier 结算事件 Webhook 通知器
type WebhookNotifier struct {
	enabled    bool
	webhookURL string
	client     *http.Client
}

// NewWebhookNotifier 创建通知器，未配置时返回禁用实例
func NewWebhookNotifier(cfg *config.NotifyConfig) *WebhookNotifier {
	if cfg == nil || !cfg.Enabled || strings.TrimSpace(cfg.WebhookURL) == "" {
		return &WebhookNotifier{enabled: false}
	}
	timeout := defaultTimeout
	if cfg.TimeoutMS > 0 {
		timeout = time.Duration(cfg.TimeoutMS) * time.Millisecond
	}
	return &WebhookNotifier{
		enabled:    true,
		webhookURL: strings.TrimSpace(cfg.WebhookURL),
		client:     &http.Client{Timeout: timeout},
	}
}

// Enabled 判断是否启用
func (n *WebhookNotifier) Enabled() bool {
	return n != nil && n.enabled && n.client != nil
}

// SendSaleEvent 推送结算事件。通知失败只记日志，由队列重试兜底。
func (n *WebhookNotifier) SendSaleEvent(ctx context.Context, message SaleEventMessage) error {
	if !n.Enabled() {
		return ErrDisabled
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if message.OccurredAt.IsZero() {
		message.OccurredAt = time.Now().UTC()
	}
	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("%w: marshal message failed", ErrRequestFailed)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logger.Warnw("sale_event_notify_non_2xx",
			"event", message.Event,
			"sale_id", message.SaleID,
			"status_code", resp.StatusCode,
		)
		return fmt.Errorf("%w: status %d", ErrRequestFailed, resp.StatusCode)
	}
	return nil
}
