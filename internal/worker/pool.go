// Package worker 提供有界的后台任务池，用于执行 AI 生成等耗时任务。
package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime/debug"
	"sync"
	"time"

	"github.com/moodfox/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	// ErrPoolClosed 表示任务池已停止接收新任务。
	ErrPoolClosed = errors.New("worker pool closed")
	// ErrQueueFull 表示队列已满，调用方需要自行降级。
	ErrQueueFull = errors.New("worker queue full")
)

// TaskFunc 是后台任务的执行体，ctx 在任务池关闭时取消。
type TaskFunc func(ctx context.Context) error

type task struct {
	name       string
	fn         TaskFunc
	enqueuedAt time.Time
}

// Pool 固定数量的 worker 从有界队列中取任务执行。
type Pool struct {
	name    string
	tasks   chan task
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.RWMutex
	closed  bool
	tracer  trace.Tracer
	timeout time.Duration
}

// Options 控制任务池的规模。
type Options struct {
	Workers   int
	QueueSize int
	// TaskTimeout 为单个任务的最长执行时间，0 表示不限制
	TaskTimeout time.Duration
}

// New 创建并启动一个任务池。
func New(name string, opts Options) *Pool {
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	queueSize := opts.QueueSize
	if queueSize < 1 {
		queueSize = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		name:    name,
		tasks:   make(chan task, queueSize),
		ctx:     ctx,
		cancel:  cancel,
		tracer:  telemetry.Tracer("worker"),
		timeout: opts.TaskTimeout,
	}

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.loop()
	}
	return p
}

// Name 返回任务池名称。
func (p *Pool) Name() string {
	return p.name
}

// Submit 将任务放入队列，不会阻塞调用方。
func (p *Pool) Submit(name string, fn TaskFunc) error {
	if fn == nil {
		return fmt.Errorf("submit %s: nil task", name)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}

	select {
	case p.tasks <- task{name: name, fn: fn, enqueuedAt: time.Now()}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Shutdown 停止接收新任务并等待队列中的任务执行完毕；
// ctx 到期后取消仍在运行的任务并返回 ctx.Err()。
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.tasks)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		return ctx.Err()
	}
}

func (p *Pool) loop() {
	defer p.wg.Done()
	for t := range p.tasks {
		p.run(t)
	}
}

func (p *Pool) run(t task) {
	ctx := p.ctx
	var cancel context.CancelFunc
	if p.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	ctx, span := p.tracer.Start(ctx, p.name+"."+t.name, trace.WithAttributes(
		attribute.String("worker.pool", p.name),
		attribute.String("worker.task", t.name),
		attribute.Int64("worker.queue_wait_ms", time.Since(t.enqueuedAt).Milliseconds()),
	))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			log.Printf("[worker %s] task %s panic: %v\n%s", p.name, t.name, r, debug.Stack())
			span.SetStatus(codes.Error, "panic")
		}
	}()

	start := time.Now()
	if err := t.fn(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Printf("[worker %s] task %s failed after %s: %v", p.name, t.name, time.Since(start).Round(time.Millisecond), err)
		return
	}
	log.Printf("[worker %s] task %s done in %s", p.name, t.name, time.Since(start).Round(time.Millisecond))
}
