package task

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"purin_order/internal/api/dto"
	"purin_order/internal/middleware"
	"purin_order/pkg/logger"
)

// ==================== 依赖接口 ====================

// OrderSweeper 自动完成配送中订单
type OrderSweeper interface {
	AutoCompleteOrders(ctx context.Context, now time.Time) (*dto.AutoCompleteResult, error)
}

// ExpiringChecker 预售截止检查
type ExpiringChecker interface {
	CheckExpiringProducts(ctx context.Context, now time.Time) (*dto.ExpiringCheckResult, error)
}

// NotificationDispatcher 通知邮件投递
type NotificationDispatcher interface {
	DispatchPendingNotifications(ctx context.Context, limit int) (*dto.DispatchResult, error)
}

// ImageSyncer 商品图片迁移
type ImageSyncer interface {
	SyncProductImages(ctx context.Context, productIDs []int64) (*dto.ImageSyncResult, error)
}

// CommissionCalculator 佣金重算
type CommissionCalculator interface {
	RecalculateOpenMonths(ctx context.Context, now time.Time) ([]*dto.RecalculateResult, error)
}

// ==================== TaskManager 定时任务管理器 ====================

// TaskManagerDeps 任务管理器依赖，为 nil 的任务不注册
type TaskManagerDeps struct {
	Orders        OrderSweeper
	Products      ExpiringChecker
	Notifications NotificationDispatcher
	Images        ImageSyncer
	Commissions   CommissionCalculator
}

// SpecOff 任务只注册、不定时执行，仍可手动触发
const SpecOff = "off"

// TaskManagerConfig 任务管理器配置（cron 表达式带秒，空或 SpecOff 表示仅手动）
type TaskManagerConfig struct {
	AutoCompleteSpec string
	ExpiringSpec     string
	NotifySpec       string
	ImageSyncSpec    string
	CommissionSpec   string
	JobTimeout       time.Duration
	NotifyBatchSize  int
}

// DefaultConfig 默认配置
func DefaultConfig() *TaskManagerConfig {
	return &TaskManagerConfig{
		AutoCompleteSpec: "0 0 * * * *",
		ExpiringSpec:     "0 */30 * * * *",
		NotifySpec:       "0 * * * * *",
		ImageSyncSpec:    "0 30 3 * * *",
		CommissionSpec:   "0 15 0 * * *",
		JobTimeout:       10 * time.Minute,
		NotifyBatchSize:  50,
	}
}

type job struct {
	name middleware.JobType
	spec string
	run  func(ctx context.Context, now time.Time) (interface{}, error)
	mu   sync.Mutex
}

// TaskManager 统一管理 cron 任务；手动触发与定时执行共享限流器
type TaskManager struct {
	cron    *cron.Cron
	jobs    map[middleware.JobType]*job
	order   []middleware.JobType
	limiter *middleware.JobRateLimiter
	timeout time.Duration
	log     *zap.Logger
	now     func() time.Time
}

// NewTaskManager 创建任务管理器
func NewTaskManager(deps *TaskManagerDeps, cfg *TaskManagerConfig, limiter *middleware.JobRateLimiter, log *zap.Logger) *TaskManager {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if limiter == nil {
		limiter = middleware.GetLimiter()
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 10 * time.Minute
	}
	if cfg.NotifyBatchSize <= 0 {
		cfg.NotifyBatchSize = 50
	}
	log = logger.OrNop(log).Named("task")

	tm := &TaskManager{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.Recover(cronLogger{log.Sugar()})),
		),
		jobs:    make(map[middleware.JobType]*job),
		limiter: limiter,
		timeout: cfg.JobTimeout,
		log:     log,
		now:     time.Now,
	}

	if deps == nil {
		return tm
	}
	if deps.Orders != nil {
		tm.register(middleware.JobAutoComplete, cfg.AutoCompleteSpec, func(ctx context.Context, now time.Time) (interface{}, error) {
			return deps.Orders.AutoCompleteOrders(ctx, now)
		})
	}
	if deps.Products != nil {
		tm.register(middleware.JobExpiringCheck, cfg.ExpiringSpec, func(ctx context.Context, now time.Time) (interface{}, error) {
			return deps.Products.CheckExpiringProducts(ctx, now)
		})
	}
	if deps.Notifications != nil {
		batch := cfg.NotifyBatchSize
		tm.register(middleware.JobNotify, cfg.NotifySpec, func(ctx context.Context, _ time.Time) (interface{}, error) {
			return deps.Notifications.DispatchPendingNotifications(ctx, batch)
		})
	}
	if deps.Images != nil {
		tm.register(middleware.JobImageSync, cfg.ImageSyncSpec, func(ctx context.Context, _ time.Time) (interface{}, error) {
			return deps.Images.SyncProductImages(ctx, nil)
		})
	}
	if deps.Commissions != nil {
		tm.register(middleware.JobCommission, cfg.CommissionSpec, func(ctx context.Context, now time.Time) (interface{}, error) {
			return deps.Commissions.RecalculateOpenMonths(ctx, now)
		})
	}
	return tm
}

func (tm *TaskManager) register(name middleware.JobType, spec string, run func(ctx context.Context, now time.Time) (interface{}, error)) {
	tm.jobs[name] = &job{name: name, spec: spec, run: run}
	tm.order = append(tm.order, name)
}

// ==================== 生命周期管理 ====================

// Start 注册 cron 并启动；表达式为空或 off 的任务只能手动触发
func (tm *TaskManager) Start() error {
	for _, name := range tm.order {
		j := tm.jobs[name]
		if j.spec == "" || j.spec == SpecOff {
			tm.log.Info("job manual only", zap.String("job", string(j.name)))
			continue
		}
		if _, err := tm.cron.AddFunc(j.spec, func() { tm.runScheduled(j) }); err != nil {
			return fmt.Errorf("register job %s (%q): %w", j.name, j.spec, err)
		}
		tm.log.Info("job scheduled", zap.String("job", string(j.name)), zap.String("spec", j.spec))
	}
	tm.cron.Start()
	tm.log.Info("task manager started", zap.Int("jobs", len(tm.jobs)))
	return nil
}

// Stop 停止调度并等待正在执行的任务结束
func (tm *TaskManager) Stop() {
	ctx := tm.cron.Stop()
	<-ctx.Done()
	tm.log.Info("task manager stopped")
}

// runScheduled 定时执行：独立超时 context，执行后标记限流器
func (tm *TaskManager) runScheduled(j *job) {
	if !j.mu.TryLock() {
		tm.log.Warn("job still running, skipped", zap.String("job", string(j.name)))
		return
	}
	defer j.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), tm.timeout)
	defer cancel()

	tm.limiter.MarkExecuted(middleware.JobKey(j.name))
	start := time.Now()
	if _, err := j.run(ctx, tm.now()); err != nil {
		tm.log.Error("scheduled job failed", zap.String("job", string(j.name)), zap.Error(err))
		return
	}
	tm.log.Debug("scheduled job finished",
		zap.String("job", string(j.name)),
		zap.Duration("elapsed", time.Since(start)))
}

// ==================== 手动触发接口 ====================

// Trigger 立即执行一次；限流由路由中间件负责
func (tm *TaskManager) Trigger(ctx context.Context, name middleware.JobType) (interface{}, error) {
	j, ok := tm.jobs[name]
	if !ok {
		return nil, ErrTaskDisabled
	}
	if !j.mu.TryLock() {
		return nil, ErrTaskRunning
	}
	defer j.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, tm.timeout)
	defer cancel()

	tm.log.Info("job triggered manually", zap.String("job", string(name)))
	return j.run(ctx, tm.now())
}

// ==================== 状态查询 ====================

// Status 任务注册情况与 cron 表达式
func (tm *TaskManager) Status() map[string]string {
	out := make(map[string]string, len(tm.jobs))
	for name, j := range tm.jobs {
		out[string(name)] = j.spec
	}
	return out
}

// ==================== 错误定义 ====================

type TaskError string

func (e TaskError) Error() string { return string(e) }

const (
	ErrTaskDisabled TaskError = "task is disabled"
	ErrTaskRunning  TaskError = "task is already running"
)

// cronLogger cron.Logger 适配 zap
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
