// Package jobs 定时任务：会话池健康检查、本地结果清理
package jobs

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/chaos-io/bgremover/util"
)

type Job struct {
	Name string
	// Spec cron 表达式，支持 @every 1m 这类写法
	Spec string
	Run  func() error
}

type Scheduler struct {
	cron *cron.Cron
}

func NewScheduler() *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger))),
	}
}

func (s *Scheduler) Add(job Job) (cron.EntryID, error) {
	id, err := s.cron.AddFunc(job.Spec, wrap(job))
	if err != nil {
		return 0, fmt.Errorf("schedule job %s: %w", job.Name, err)
	}
	util.Logger.Info("job scheduled", zap.String("job", job.Name), zap.String("spec", job.Spec))
	return id, nil
}

func (s *Scheduler) Entry(id cron.EntryID) cron.Entry {
	return s.cron.Entry(id)
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop 停止调度并等待正在运行的任务结束
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func wrap(job Job) func() {
	return func() {
		start := time.Now()
		if err := job.Run(); err != nil {
			util.Logger.Error("job failed", zap.String("job", job.Name), zap.Error(err))
			return
		}
		util.Logger.Debug("job done", zap.String("job", job.Name), zap.Duration("cost", time.Since(start)))
	}
}

// PoolReplenisher 会话池中能补齐缺失会话的部分
type PoolReplenisher interface {
	Replenish() int
}

func PoolHealthCheck(spec string, pool PoolReplenisher) Job {
	return Job{
		Name: "session-pool-health",
		Spec: spec,
		Run: func() error {
			if n := pool.Replenish(); n > 0 {
				util.Logger.Info("replenished sessions", zap.Int("count", n))
			}
			return nil
		},
	}
}

// Sweeper 能删除过期结果的存储
type Sweeper interface {
	Sweep(maxAge time.Duration) (int, error)
}

func RetentionSweep(spec string, store Sweeper, retention time.Duration) Job {
	return Job{
		Name: "local-retention-sweep",
		Spec: spec,
		Run: func() error {
			n, err := store.Sweep(retention)
			if err != nil {
				return err
			}
			if n > 0 {
				util.Logger.Info("removed expired results", zap.Int("count", n))
			}
			return nil
		},
	}
}
