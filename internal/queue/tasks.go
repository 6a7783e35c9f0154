package queue

import (
	"encoding/json"

	"github.com/affpay-next/internal/constants"

	"github.com/hibiken/asynq"
)

const (
	// TaskAffiliateSaleNotify 结算事件外发通知任务
	TaskAffiliateSaleNotify = constants.TaskAffiliateSaleNotify
)

// 通知事件类型
const (
	SaleEventRecorded = "sale_recorded"
	SaleEventPaid     = "sale_paid"
	SaleEventRefunded = "sale_refunded"
)

// AffiliateSaleNotifyPayload 结算事件通知任务载荷
type AffiliateSaleNotifyPayload struct {
	SaleID           uint   `json:"sale_id"`
	AffiliateID      uint   `json:"affiliate_id"`
	Event            string `json:"event"`
	CommissionAmount int64  `json:"commission_amount"`
	Currency         string `json:"currency"`
}

// NewAffiliateSaleNotifyTask 创建结算事件通知任务
func NewAffiliateSaleNotifyTask(payload AffiliateSaleNotifyPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAffiliateSaleNotify, body), nil
}
