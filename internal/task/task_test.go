package task

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"purin_order/internal/api/dto"
	"purin_order/internal/middleware"
)

// ==================== 测试替身 ====================

type fakeSweeper struct {
	calls   atomic.Int32
	gotNow  time.Time
	hasDead bool
	block   chan struct{}
}

func (f *fakeSweeper) AutoCompleteOrders(ctx context.Context, now time.Time) (*dto.AutoCompleteResult, error) {
	f.calls.Add(1)
	f.gotNow = now
	_, f.hasDead = ctx.Deadline()
	if f.block != nil {
		<-f.block
	}
	return &dto.AutoCompleteResult{Processed: 2, Completed: []string{"PO26101600001"}}, nil
}

type fakeDispatcher struct {
	limit int
	err   error
}

func (f *fakeDispatcher) DispatchPendingNotifications(_ context.Context, limit int) (*dto.DispatchResult, error) {
	f.limit = limit
	return &dto.DispatchResult{Sent: 1}, f.err
}

type fakeCommissions struct {
	gotNow time.Time
}

func (f *fakeCommissions) RecalculateOpenMonths(_ context.Context, now time.Time) ([]*dto.RecalculateResult, error) {
	f.gotNow = now
	return []*dto.RecalculateResult{{Month: "2026-10"}}, nil
}

// ==================== TaskManager 测试 ====================

func TestTaskManager_TriggerRunsJobWithTimeout(t *testing.T) {
	sweeper := &fakeSweeper{}
	tm := NewTaskManager(&TaskManagerDeps{Orders: sweeper}, &TaskManagerConfig{JobTimeout: time.Minute}, middleware.NewJobRateLimiter(), nil)
	fixed := time.Date(2026, 10, 16, 8, 0, 0, 0, time.UTC)
	tm.now = func() time.Time { return fixed }

	out, err := tm.Trigger(context.Background(), middleware.JobAutoComplete)
	require.NoError(t, err)

	result, ok := out.(*dto.AutoCompleteResult)
	require.True(t, ok)
	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, fixed, sweeper.gotNow)
	assert.True(t, sweeper.hasDead, "job context must carry a deadline")
}

func TestTaskManager_TriggerUnregisteredJob(t *testing.T) {
	tm := NewTaskManager(&TaskManagerDeps{}, nil, middleware.NewJobRateLimiter(), nil)

	_, err := tm.Trigger(context.Background(), middleware.JobImageSync)
	assert.ErrorIs(t, err, ErrTaskDisabled)
}

func TestTaskManager_TriggerWhileRunning(t *testing.T) {
	sweeper := &fakeSweeper{block: make(chan struct{})}
	tm := NewTaskManager(&TaskManagerDeps{Orders: sweeper}, nil, middleware.NewJobRateLimiter(), nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = tm.Trigger(context.Background(), middleware.JobAutoComplete)
	}()

	require.Eventually(t, func() bool { return sweeper.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	_, err := tm.Trigger(context.Background(), middleware.JobAutoComplete)
	assert.ErrorIs(t, err, ErrTaskRunning)

	close(sweeper.block)
	<-done
}

func TestTaskManager_NotifyUsesBatchSize(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	tm := NewTaskManager(&TaskManagerDeps{Notifications: dispatcher}, &TaskManagerConfig{NotifyBatchSize: 25}, middleware.NewJobRateLimiter(), nil)

	_, err := tm.Trigger(context.Background(), middleware.JobNotify)
	require.NoError(t, err)
	assert.Equal(t, 25, dispatcher.limit)
}

func TestTaskManager_CommissionUsesRunTime(t *testing.T) {
	calc := &fakeCommissions{}
	tm := NewTaskManager(&TaskManagerDeps{Commissions: calc}, nil, middleware.NewJobRateLimiter(), nil)
	fixed := time.Date(2026, 10, 1, 0, 15, 0, 0, time.UTC)
	tm.now = func() time.Time { return fixed }

	out, err := tm.Trigger(context.Background(), middleware.JobCommission)
	require.NoError(t, err)
	assert.Equal(t, fixed, calc.gotNow)
	assert.Len(t, out, 1)

	calc.gotNow = time.Time{}
	tm.runScheduled(tm.jobs[middleware.JobCommission])
	assert.Equal(t, fixed, calc.gotNow)
}

func TestTaskManager_ScheduledRunSharesLimiter(t *testing.T) {
	limiter := middleware.NewJobRateLimiter()
	dispatcher := &fakeDispatcher{err: errors.New("smtp down")}
	tm := NewTaskManager(&TaskManagerDeps{Notifications: dispatcher}, nil, limiter, nil)

	// 失败也要标记，避免手动触发紧接着重复执行
	tm.runScheduled(tm.jobs[middleware.JobNotify])

	res := limiter.Check(middleware.JobKey(middleware.JobNotify), time.Minute)
	assert.False(t, res.Allowed)
	assert.Greater(t, res.RetryAfter, time.Duration(0))
}

func TestTaskManager_StartRejectsBadSpec(t *testing.T) {
	tm := NewTaskManager(&TaskManagerDeps{Orders: &fakeSweeper{}}, &TaskManagerConfig{AutoCompleteSpec: "every hour"}, middleware.NewJobRateLimiter(), nil)

	err := tm.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auto_complete")
}

func TestTaskManager_StartAndStop(t *testing.T) {
	tm := NewTaskManager(&TaskManagerDeps{
		Orders:        &fakeSweeper{},
		Notifications: &fakeDispatcher{},
	}, &TaskManagerConfig{AutoCompleteSpec: "0 0 * * * *"}, middleware.NewJobRateLimiter(), nil)

	require.NoError(t, tm.Start())
	status := tm.Status()
	assert.Equal(t, "0 0 * * * *", status["auto_complete"])
	assert.Equal(t, "", status["notify"], "empty spec is manual-only")
	tm.Stop()
}

func TestTaskManager_SpecOffIsManualOnly(t *testing.T) {
	sweeper := &fakeSweeper{}
	tm := NewTaskManager(&TaskManagerDeps{Orders: sweeper}, &TaskManagerConfig{AutoCompleteSpec: SpecOff}, middleware.NewJobRateLimiter(), nil)

	require.NoError(t, tm.Start())
	defer tm.Stop()
	assert.Empty(t, tm.cron.Entries())
	assert.Equal(t, SpecOff, tm.Status()["auto_complete"])

	_, err := tm.Trigger(context.Background(), middleware.JobAutoComplete)
	require.NoError(t, err)
	assert.Equal(t, int32(1), sweeper.calls.Load())
}
