package onnx

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/chaos-io/bgremover/util"
)

const (
	DefaultPoolSize       = 1
	DefaultAcquireTimeout = 30 * time.Second
	maxRecordedErrors     = 10
)

var (
	ErrPoolClosed     = errors.New("session pool is closed")
	ErrAcquireTimeout = errors.New("timeout waiting for available session")
)

// Runner 池中的一个推理会话
type Runner interface {
	Run(input []float32) ([]float32, error)
	Destroy()
}

type Factory func() (Runner, error)

// Pool 推理会话池，每个请求独占一个会话，容量为 1 时等价于互斥锁
type Pool struct {
	sessions       chan Runner
	size           int
	factory        Factory
	acquireTimeout time.Duration

	mu         sync.Mutex
	closed     bool
	inUse      int
	stats      PoolStats
	lastErrors []error
}

type PoolStats struct {
	Size            int
	Idle            int
	InUse           int
	TotalAcquired   int64
	TotalReleased   int64
	AcquireFailures int64
	Discarded       int64
	WaitTime        time.Duration
}

func NewPool(factory Factory, size int, acquireTimeout time.Duration) (*Pool, error) {
	if size <= 0 {
		size = DefaultPoolSize
	}
	if acquireTimeout <= 0 {
		acquireTimeout = DefaultAcquireTimeout
	}

	pool := &Pool{
		sessions:       make(chan Runner, size),
		size:           size,
		factory:        factory,
		acquireTimeout: acquireTimeout,
	}

	for i := 0; i < size; i++ {
		session, err := factory()
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to initialize session %d: %w", i, err)
		}
		pool.sessions <- session
	}

	return pool, nil
}

func (p *Pool) Acquire(ctx context.Context) (Runner, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	p.mu.Unlock()

	start := time.Now()
	defer func() {
		p.mu.Lock()
		p.stats.WaitTime += time.Since(start)
		p.mu.Unlock()
	}()

	timer := time.NewTimer(p.acquireTimeout)
	defer timer.Stop()

	select {
	case session, ok := <-p.sessions:
		if !ok {
			return nil, ErrPoolClosed
		}
		p.mu.Lock()
		p.inUse++
		p.stats.TotalAcquired++
		p.mu.Unlock()
		return session, nil
	case <-timer.C:
		p.mu.Lock()
		p.stats.AcquireFailures++
		p.mu.Unlock()
		return nil, ErrAcquireTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *Pool) Release(session Runner) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.inUse--
	p.stats.TotalReleased++
	if p.closed {
		session.Destroy()
		return
	}
	p.sessions <- session
}

// Discard 销毁一个出错的会话，并尝试立即补一个新的
func (p *Pool) Discard(session Runner) {
	session.Destroy()

	p.mu.Lock()
	p.inUse--
	p.stats.Discarded++
	closed := p.closed
	p.mu.Unlock()

	if !closed {
		p.Replenish()
	}
}

// Replenish 补齐因出错被丢弃的会话，返回新建的数量
func (p *Pool) Replenish() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return 0
	}

	missing := p.size - len(p.sessions) - p.inUse
	created := 0
	for i := 0; i < missing; i++ {
		session, err := p.factory()
		if err != nil {
			p.recordError(err)
			util.Logger.Warn("replenish session failed", zap.Error(err))
			continue
		}
		p.sessions <- session
		created++
	}
	return created
}

func (p *Pool) recordError(err error) {
	p.lastErrors = append(p.lastErrors, err)
	if len(p.lastErrors) > maxRecordedErrors {
		p.lastErrors = p.lastErrors[1:]
	}
}

func (p *Pool) LastErrors() []error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]error(nil), p.lastErrors...)
}

func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := p.stats
	s.Size = p.size
	s.Idle = len(p.sessions)
	s.InUse = p.inUse
	return s
}

func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}

	p.closed = true
	close(p.sessions)

	for session := range p.sessions {
		session.Destroy()
	}
}
