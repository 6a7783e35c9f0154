package worker

import (
	"context"
	"encoding/json"

	"github.com/affpay-next/internal/logger"
	"github.com/affpay-next/internal/notify"
	"github.com/affpay-next/internal/provider"
	"github.com/affpay-next/internal/queue"

	"github.com/hibiken/asynq"
)

// Consumer 异步任务消费者
type Consumer struct {
	*provider.Container
}

// NewConsumer 创建消费者
func NewConsumer(c *provider.Container) *Consumer {
	return &Consumer{
		Container: c,
	}
}

// Register 注册消费者
func (c *Consumer) Register(mux *asynq.ServeMux) {
	if c == nil || mux == nil {
		logger.Debugw("worker_register_skip_nil", "consumer_nil", c == nil, "mux_nil", mux == nil)
		return
	}
	mux.HandleFunc(queue.TaskAffiliateSaleNotify, c.handleAffiliateSaleNotify)
}

func (c *Consumer) handleAffiliateSaleNotify(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_sale_notify_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.AffiliateSaleNotifyPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_sale_notify_unmarshal_failed", "error", err)
		return err
	}
	if payload.SaleID == 0 {
		logger.Debugw("worker_sale_notify_skip_invalid_payload", "sale_id", payload.SaleID)
		return nil
	}
	if !c.Notifier.Enabled() {
		logger.Debugw("worker_sale_notify_skip_disabled", "sale_id", payload.SaleID)
		return nil
	}

	// 回查结算单取最新状态，投递与消费之间状态可能已推进
	sale, err := c.SaleRepo.GetByID(payload.SaleID)
	if err != nil {
		logger.Warnw("worker_sale_notify_fetch_sale_failed", "sale_id", payload.SaleID, "error", err)
		return err
	}
	if sale == nil {
		logger.Debugw("worker_sale_notify_skip_sale_not_found", "sale_id", payload.SaleID)
		return nil
	}

	message := notify.SaleEventMessage{
		Event:            payload.Event,
		SaleID:           sale.ID,
		AffiliateID:      sale.AffiliateID,
		CommissionAmount: sale.CommissionAmount,
		Currency:         sale.Currency,
	}
	if err := c.Notifier.SendSaleEvent(ctx, message); err != nil {
		logger.Warnw("worker_sale_notify_send_failed",
			"sale_id", sale.ID,
			"event", payload.Event,
			"error", err,
		)
		return err
	}
	return nil
}
