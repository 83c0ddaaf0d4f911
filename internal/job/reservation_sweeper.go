package job

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"rifas/internal/service"

	"go.uber.org/zap"
)

const DefaultSweepInterval = 5 * time.Minute

// ExpiredReleaser 释放过期预订，由 service.ReservationService 实现
type ExpiredReleaser interface {
	ReleaseExpiredBatch(ctx context.Context) (*service.ReleaseResult, error)
}

// ReservationSweeper 定时释放过期预订
//
// 每个实例同一时间只运行一个定时循环：重复 Start 只告警不报错，Stop 之后可以再次 Start。
// 单次清理失败只记日志，下一轮重试，不会让进程退出。
type ReservationSweeper struct {
	releaser ExpiredReleaser
	log      *zap.Logger

	started atomic.Bool
	mu      sync.Mutex
	stopCh  chan struct{}
	done    chan struct{}
}

func NewReservationSweeper(releaser ExpiredReleaser, log *zap.Logger) *ReservationSweeper {
	if log == nil {
		log = zap.NewNop()
	}
	return &ReservationSweeper{
		releaser: releaser,
		log:      log.With(zap.String("component", "reservation_sweeper")),
	}
}

// Start 启动定时循环，interval <= 0 时使用 5 分钟；已经在运行时返回 false
func (j *ReservationSweeper) Start(ctx context.Context, interval time.Duration) bool {
	if !j.started.CompareAndSwap(false, true) {
		j.log.Warn("sweeper already running, ignoring start")
		return false
	}
	if interval <= 0 {
		interval = DefaultSweepInterval
	}

	j.mu.Lock()
	j.stopCh = make(chan struct{})
	j.done = make(chan struct{})
	stopCh, done := j.stopCh, j.done
	j.mu.Unlock()

	j.log.Info("sweeper started", zap.Duration("interval", interval))
	go j.loop(ctx, interval, stopCh, done)
	return true
}

// Stop 停止定时循环并等待当前一轮结束
func (j *ReservationSweeper) Stop() {
	j.mu.Lock()
	stopCh, done := j.stopCh, j.done
	j.stopCh, j.done = nil, nil
	j.mu.Unlock()

	if stopCh == nil {
		return
	}
	close(stopCh)
	<-done
}

func (j *ReservationSweeper) loop(ctx context.Context, interval time.Duration, stopCh, done chan struct{}) {
	defer func() {
		j.started.Store(false)
		close(done)
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.log.Info("context cancelled, sweeper exiting")
			return
		case <-stopCh:
			j.log.Info("sweeper stopped")
			return
		case <-ticker.C:
			j.RunOnce(ctx)
		}
	}
}

// RunOnce 执行一轮清理，错误只记录
func (j *ReservationSweeper) RunOnce(ctx context.Context) {
	result, err := j.releaser.ReleaseExpiredBatch(ctx)
	if err != nil {
		j.log.Error("release expired reservations failed", zap.Error(err))
	}
	if result == nil || result.Total() == 0 {
		return
	}
	j.log.Info("expired reservations released",
		zap.Int("simple", result.Simple),
		zap.Int("formal", result.Formal))
}
