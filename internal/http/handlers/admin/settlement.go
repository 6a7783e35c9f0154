package admin

import (
	"errors"
	"strconv"
	"time"

	"github.com/affpay-next/internal/cache"
	handlershared "github.com/affpay-next/internal/http/handlers/shared"
	"github.com/affpay-next/internal/http/response"
	"github.com/affpay-next/internal/scheduler"
	"github.com/affpay-next/internal/service"

	"github.com/gin-gonic/gin"
)

// RunPayouts 手动触发一轮到期结算扫描
func (h *Handler) RunPayouts(c *gin.Context) {
	adminID, ok := handlershared.GetContextUint(c, "admin_id")
	if !ok {
		return
	}
	result, err := h.SettlementService.ProcessDuePayouts(c.Request.Context(), time.Now())
	if err != nil {
		respondError(c, response.CodeInternal, "结算扫描失败", err)
		return
	}
	requestLog(c).Infow("admin_run_payouts", "admin_id", adminID, "scanned", result.Scanned, "settled", result.Settled, "failed", result.Failed)
	response.Success(c, result)
}

// RunAvailability 手动触发一轮过保转可提取扫描
func (h *Handler) RunAvailability(c *gin.Context) {
	adminID, ok := handlershared.GetContextUint(c, "admin_id")
	if !ok {
		return
	}
	result, err := h.SettlementService.ProcessAvailability(c.Request.Context(), time.Now())
	if err != nil {
		respondError(c, response.CodeInternal, "过保扫描失败", err)
		return
	}
	requestLog(c).Infow("admin_run_availability", "admin_id", adminID, "scanned", result.Scanned, "settled", result.Settled, "failed", result.Failed)
	response.Success(c, result)
}

// RetrySale 重试终败的结算单
func (h *Handler) RetrySale(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		respondError(c, response.CodeBadRequest, "结算单ID不合法", nil)
		return
	}

	retryErr := h.SettlementService.RetryFailedPayout(c.Request.Context(), uint(id), time.Now())
	switch {
	case retryErr == nil:
	case errors.Is(retryErr, service.ErrNotFound):
		respondError(c, response.CodeNotFound, "结算单不存在", nil)
		return
	case errors.Is(retryErr, service.ErrSaleNotRetryable):
		respondError(c, response.CodeBadRequest, "结算单当前状态不可重试", nil)
		return
	case errors.Is(retryErr, service.ErrSaleNotDue):
		respondError(c, response.CodeBadRequest, "结算单未过冻结期，不可重试", nil)
		return
	case errors.Is(retryErr, service.ErrSaleRefunded):
		// 重试中核验发现退款，属正常终态推进
	default:
		respondError(c, response.CodeInternal, "重试结算失败", retryErr)
		return
	}

	sale, err := h.SaleRepo.GetByID(uint(id))
	if err != nil || sale == nil {
		respondError(c, response.CodeInternal, "查询结算单失败", err)
		return
	}
	response.Success(c, sale)
}

// SchedulerStatus 查询调度器运行状态
func (h *Handler) SchedulerStatus(c *gin.Context) {
	if h.Scheduler != nil {
		response.Success(c, h.Scheduler.CurrentStatus())
		return
	}

	// api-only 模式下调度器跑在 worker 实例，读 Redis 镜像
	jobs := make([]gin.H, 0, 2)
	for _, job := range []string{scheduler.JobPayout, scheduler.JobAvailability} {
		state, hit, err := cache.GetSchedulerRunState(c.Request.Context(), job)
		if err != nil || !hit {
			jobs = append(jobs, gin.H{"job": job, "known": false})
			continue
		}
		jobs = append(jobs, gin.H{
			"job":         job,
			"known":       true,
			"last_run_at": state.LastRunAt,
			"next_run_at": state.NextRunAt,
			"scanned":     state.Scanned,
			"settled":     state.Settled,
			"failed":      state.Failed,
		})
	}
	response.Success(c, gin.H{"running": false, "remote": true, "jobs": jobs})
}
