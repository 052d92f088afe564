// Package clock 提供可替换的时间源，管道里所有的定时器 (刷新、轮询、重连等待) 都从这里创建，
// 测试时用 Manual 手动推进时间
package clock

import (
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"
)

// Ticker 是周期触发器
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Clock 是管道使用的时间源
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
	After(d time.Duration) <-chan time.Time
}

// Scheduler 是生产环境的 Clock，周期任务交给 gocron 调度
// 每个任务只负责往 Ticker 的通道里投递时间点，真正的处理仍然在调用方自己的 goroutine 中完成
type Scheduler struct {
	s      *gocron.Scheduler
	logger *zap.Logger
}

// NewScheduler 创建并启动 gocron 调度器
func NewScheduler(logger *zap.Logger) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	s.StartAsync()
	return &Scheduler{s: s, logger: logger}
}

func (c *Scheduler) Now() time.Time {
	return time.Now()
}

func (c *Scheduler) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

// NewTicker 注册一个 gocron 周期任务；注册失败时退回到 time.Ticker
func (c *Scheduler) NewTicker(d time.Duration) Ticker {
	t := &cronTicker{s: c.s, ch: make(chan time.Time, 1)}
	job, err := c.s.Every(d).WaitForSchedule().Do(func() {
		// 和 time.Ticker 一样，消费者跟不上时丢弃多余的 tick
		select {
		case t.ch <- time.Now():
		default:
		}
	})
	if err != nil {
		c.logger.Warn("gocron rejected interval, falling back to time.Ticker",
			zap.Duration("interval", d), zap.Error(err))
		return &stdTicker{t: time.NewTicker(d)}
	}
	t.job = job
	return t
}

// Jobs 返回当前注册的周期任务数量
func (c *Scheduler) Jobs() int {
	return c.s.Len()
}

// Shutdown 停止调度器
func (c *Scheduler) Shutdown() {
	c.s.Stop()
}

type cronTicker struct {
	s    *gocron.Scheduler
	job  *gocron.Job
	ch   chan time.Time
	once sync.Once
}

func (t *cronTicker) C() <-chan time.Time { return t.ch }

func (t *cronTicker) Stop() {
	t.once.Do(func() {
		t.s.RemoveByReference(t.job)
	})
}

type stdTicker struct {
	t *time.Ticker
}

func (t *stdTicker) C() <-chan time.Time { return t.t.C }
func (t *stdTicker) Stop()               { t.t.Stop() }
