package cache

import (
	"context"
	"fmt"
	"time"
)

const schedulerStateCacheTTL = 10 * time.Minute

// SchedulerRunState 调度器单类任务的运行快照，供多实例观测
type SchedulerRunState struct {
	Job       string `json:"job"`
	LastRunAt int64  `json:"last_run_at"`
	NextRunAt int64  `json:"next_run_at"`
	Scanned   int    `json:"scanned"`
	Settled   int    `json:"settled"`
	Failed    int    `json:"failed"`
	UpdatedAt int64  `json:"updated_at"`
}

func schedulerRunStateKey(job string) string {
	return fmt.Sprintf("scheduler:run:%s", job)
}

// GetSchedulerRunState 获取调度器运行快照
func GetSchedulerRunState(ctx context.Context, job string) (*SchedulerRunState, bool, error) {
	if job == "" {
		return nil, false, nil
	}
	var state SchedulerRunState
	hit, err := GetJSON(ctx, schedulerRunStateKey(job), &state)
	if err != nil || !hit {
		return nil, hit, err
	}
	return &state, true, nil
}

// SetSchedulerRunState 写入调度器运行快照
func SetSchedulerRunState(ctx context.Context, state *SchedulerRunState) error {
	if state == nil || state.Job == "" {
		return nil
	}
	if state.UpdatedAt == 0 {
		state.UpdatedAt = time.Now().Unix()
	}
	return SetJSON(ctx, schedulerRunStateKey(state.Job), state, schedulerStateCacheTTL)
}
