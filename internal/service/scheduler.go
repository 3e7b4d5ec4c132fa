package service

import (
	"context"
	"sync"
	"time"

	"trainvault-go/pkg/log"
)

// Scheduler 以固定间隔运行后台任务（孤儿清理、通知摘要）。
// 每个任务在自己的 goroutine 内顺序执行，天然不会与自身重叠；
// 不同任务之间、以及任务与用户请求之间可以并发。
type Scheduler struct {
	wg sync.WaitGroup
}

// NewScheduler 创建一个空的调度器。
func NewScheduler() *Scheduler {
	return &Scheduler{}
}

// Every 注册一个按 interval 周期执行的任务，ctx 取消后停止。
func (s *Scheduler) Every(ctx context.Context, name string, interval time.Duration, fn func(ctx context.Context) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		log.Infof("[Scheduler] 后台任务 '%s' 已启动, 间隔 %v", name, interval)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				log.Infof("[Scheduler] 后台任务 '%s' 已停止", name)
				return
			case <-ticker.C:
				if err := fn(ctx); err != nil {
					log.Errorf("[Scheduler] 后台任务 '%s' 执行失败: %v", name, err)
				}
			}
		}
	}()
}

// Wait 阻塞直到所有任务退出，应在优雅停机时调用。
func (s *Scheduler) Wait() {
	s.wg.Wait()
}
