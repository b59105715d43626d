package middleware

import (
	"fmt"
	"sync"
	"time"
)

// ==================== JobRateLimiter 任务限流器 ====================

// JobRateLimiter 手动触发任务的冷却限流，防止重复触发批处理
type JobRateLimiter struct {
	locks sync.Map // key -> *lockEntry
	now   func() time.Time
}

// lockEntry 锁条目
type lockEntry struct {
	lastTime time.Time
	mu       sync.Mutex
}

// NewJobRateLimiter 创建限流器
func NewJobRateLimiter() *JobRateLimiter {
	return &JobRateLimiter{now: time.Now}
}

// 全局限流器实例
var globalLimiter = NewJobRateLimiter()

// GetLimiter 获取全局限流器
func GetLimiter() *JobRateLimiter {
	return globalLimiter
}

// ==================== 限流检查 ====================

// CheckResult 检查结果
type CheckResult struct {
	Allowed    bool          // 是否允许
	RetryAfter time.Duration // 剩余冷却时间
}

// Check 检查并占用一次执行
func (r *JobRateLimiter) Check(key string, interval time.Duration) CheckResult {
	actual, _ := r.locks.LoadOrStore(key, &lockEntry{})
	entry := actual.(*lockEntry)

	entry.mu.Lock()
	defer entry.mu.Unlock()

	now := r.now()
	elapsed := now.Sub(entry.lastTime)

	if !entry.lastTime.IsZero() && elapsed < interval {
		return CheckResult{
			Allowed:    false,
			RetryAfter: interval - elapsed,
		}
	}

	entry.lastTime = now
	return CheckResult{Allowed: true}
}

// MarkExecuted 标记已执行，定时任务执行后调用，与手动触发共享冷却
func (r *JobRateLimiter) MarkExecuted(key string) {
	actual, _ := r.locks.LoadOrStore(key, &lockEntry{})
	entry := actual.(*lockEntry)

	entry.mu.Lock()
	defer entry.mu.Unlock()
	entry.lastTime = r.now()
}

// Reset 重置指定 key 的限流
func (r *JobRateLimiter) Reset(key string) {
	r.locks.Delete(key)
}

// ==================== 任务类型 ====================

// JobType 任务类型
type JobType string

const (
	JobAutoComplete  JobType = "auto_complete"
	JobExpiringCheck JobType = "expiring_check"
	JobNotify        JobType = "notify"
	JobImageSync     JobType = "image_sync"
	JobCommission    JobType = "commission"
	JobSheetExport   JobType = "sheet_export"
)

// JobKey 生成任务限流 Key
func JobKey(jobType JobType) string {
	return fmt.Sprintf("job:%s", jobType)
}

// DefaultIntervals 默认冷却间隔
var DefaultIntervals = map[JobType]time.Duration{
	JobAutoComplete:  time.Minute,
	JobExpiringCheck: time.Minute,
	JobNotify:        10 * time.Second,
	JobImageSync:     5 * time.Minute,
	JobCommission:    2 * time.Minute,
	JobSheetExport:   2 * time.Minute,
}

// GetInterval 获取任务类型的默认间隔
func GetInterval(jobType JobType) time.Duration {
	if interval, ok := DefaultIntervals[jobType]; ok {
		return interval
	}
	return time.Minute
}
