package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/affpay-next/internal/cache"
	"github.com/affpay-next/internal/config"
	"github.com/affpay-next/internal/logger"
	"github.com/affpay-next/internal/service"
)

// 调度任务名称
const (
	JobPayout       = "payout"
	JobAvailability = "availability"
)

// JobStatus 单类任务的调度状态
type JobStatus struct {
	Job             string               `json:"job"`
	IntervalMinutes int                  `json:"interval_minutes"`
	LastRunAt       *time.Time           `json:"last_run_at,omitempty"`
	NextRunAt       *time.Time           `json:"next_run_at,omitempty"`
	LastResult      *service.BatchResult `json:"last_result,omitempty"`
	LastError       string               `json:"last_error,omitempty"`
}

// Status 调度器整体状态
type Status struct {
	Running bool        `json:"running"`
	Jobs    []JobStatus `json:"jobs"`
}

// Scheduler 结算调度器，周期触发到期结算与过保转可提取
type Scheduler struct {
	settlement           *service.SettlementService
	payoutInterval       time.Duration
	availabilityInterval time.Duration

	mu      sync.Mutex
	running bool
	jobs    map[string]*JobStatus
}

// New 创建调度器
func New(settlement *service.SettlementService, cfg *config.PayoutConfig) *Scheduler {
	payoutInterval := 60 * time.Minute
	availabilityInterval := 60 * time.Minute
	if cfg != nil {
		if cfg.PayoutIntervalMinutes > 0 {
			payoutInterval = time.Duration(cfg.PayoutIntervalMinutes) * time.Minute
		}
		if cfg.AvailabilityIntervalMinutes > 0 {
			availabilityInterval = time.Duration(cfg.AvailabilityIntervalMinutes) * time.Minute
		}
	}
	return &Scheduler{
		settlement:           settlement,
		payoutInterval:       payoutInterval,
		availabilityInterval: availabilityInterval,
		jobs: map[string]*JobStatus{
			JobPayout:       {Job: JobPayout, IntervalMinutes: int(payoutInterval / time.Minute)},
			JobAvailability: {Job: JobAvailability, IntervalMinutes: int(availabilityInterval / time.Minute)},
		},
	}
}

// Name 服务名称
func (s *Scheduler) Name() string {
	return "scheduler"
}

// Start 启动调度循环，阻塞到 ctx 取消
func (s *Scheduler) Start(ctx context.Context) error {
	if s == nil || s.settlement == nil {
		return errors.New("scheduler not initialized")
	}
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("scheduler already running")
	}
	s.running = true
	s.mu.Unlock()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.runLoop(ctx, JobPayout, s.payoutInterval, s.settlement.ProcessDuePayouts)
	}()
	go func() {
		defer wg.Done()
		s.runLoop(ctx, JobAvailability, s.availabilityInterval, s.settlement.ProcessAvailability)
	}()
	wg.Wait()

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	return nil
}

// Stop 停止调度，循环由 Start 的 ctx 统一取消
func (s *Scheduler) Stop(ctx context.Context) error {
	_ = ctx
	return nil
}

// CurrentStatus 读取调度器当前状态快照
func (s *Scheduler) CurrentStatus() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	status := Status{Running: s.running}
	for _, job := range []string{JobPayout, JobAvailability} {
		if state, ok := s.jobs[job]; ok {
			status.Jobs = append(status.Jobs, *state)
		}
	}
	return status
}

func (s *Scheduler) runLoop(ctx context.Context, job string, interval time.Duration, run func(context.Context, time.Time) (*service.BatchResult, error)) {
	s.runOnce(ctx, job, interval, run)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx, job, interval, run)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, job string, interval time.Duration, run func(context.Context, time.Time) (*service.BatchResult, error)) {
	now := time.Now()
	result, err := run(ctx, now)
	next := now.Add(interval)

	s.mu.Lock()
	state := s.jobs[job]
	if state != nil {
		lastRun := now
		state.LastRunAt = &lastRun
		state.NextRunAt = &next
		state.LastResult = result
		if err != nil {
			state.LastError = err.Error()
		} else {
			state.LastError = ""
		}
	}
	s.mu.Unlock()

	if err != nil {
		logger.Warnw("scheduler_run_failed", "job", job, "error", err)
	} else if result != nil {
		logger.Infow("scheduler_run_done",
			"job", job,
			"scanned", result.Scanned,
			"settled", result.Settled,
			"skipped", result.Skipped,
			"failed", result.Failed,
			"refunded", result.Refunded,
		)
	}

	s.mirrorRunState(ctx, job, now, next, result)
}

// mirrorRunState 运行快照镜像到 Redis，缓存不可用时忽略
func (s *Scheduler) mirrorRunState(ctx context.Context, job string, lastRun, nextRun time.Time, result *service.BatchResult) {
	if !cache.Enabled() {
		return
	}
	state := &cache.SchedulerRunState{
		Job:       job,
		LastRunAt: lastRun.Unix(),
		NextRunAt: nextRun.Unix(),
	}
	if result != nil {
		state.Scanned = result.Scanned
		state.Settled = result.Settled
		state.Failed = result.Failed
	}
	if err := cache.SetSchedulerRunState(ctx, state); err != nil {
		logger.Debugw("scheduler_mirror_state_failed", "job", job, "error", err)
	}
}
