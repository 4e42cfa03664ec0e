package task

import (
	"context"
	"errors"
	"sync"
)

// ErrPublisherClosed 表示发布器已关闭。
var ErrPublisherClosed = errors.New("publisher closed")

// MemoryPublisher 使用带缓冲的 channel 保存事件，主要用于测试和进程内订阅。
// 缓冲区满时丢弃事件并返回错误，避免阻塞批次执行。
type MemoryPublisher struct {
	ch     chan Event
	mu     sync.Mutex
	closed bool
}

// NewMemoryPublisher 创建内存发布器。
func NewMemoryPublisher(size int) *MemoryPublisher {
	if size <= 0 {
		size = 64
	}
	return &MemoryPublisher{ch: make(chan Event, size)}
}

// Publish 将事件写入缓冲区。
func (p *MemoryPublisher) Publish(ctx context.Context, event Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPublisherClosed
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case p.ch <- event:
		return nil
	default:
		return errors.New("memory publisher buffer is full")
	}
}

// Events 返回只读的事件 channel，Close 后会被关闭。
func (p *MemoryPublisher) Events() <-chan Event {
	return p.ch
}

// Close 关闭发布器。
func (p *MemoryPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		close(p.ch)
		p.closed = true
	}
	return nil
}
