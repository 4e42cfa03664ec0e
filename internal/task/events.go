package task

import (
	"context"
	"fmt"
	"time"

	"AXR-Monitor/internal/acp"
)

// EventKind 标识批次执行过程中的事件类型。
type EventKind string

const (
	EventBatchStarted     EventKind = "batch_started"
	EventAttemptStarted   EventKind = "attempt_started"
	EventPoll             EventKind = "poll"
	EventAttemptCompleted EventKind = "attempt_completed"
	EventAttemptFailed    EventKind = "attempt_failed"
	EventBatchFinished    EventKind = "batch_finished"
)

// Event 是推送给观察者和事件发布器的进度事件。Index 从 0 开始。
type Event struct {
	Kind      EventKind    `json:"kind"`
	BatchID   string       `json:"batchId,omitempty"`
	Index     int          `json:"index"`
	Total     int          `json:"total"`
	JobID     acp.JobID    `json:"jobId,omitempty"`
	Phase     acp.Phase    `json:"phase,omitempty"`
	Poll      int          `json:"poll,omitempty"`
	MaxPolls  int          `json:"maxPolls,omitempty"`
	Swap      *SwapRequest `json:"swap,omitempty"`
	Error     string       `json:"error,omitempty"`
	Completed int          `json:"completed,omitempty"`
	Failed    int          `json:"failed,omitempty"`
	Time      time.Time    `json:"time"`
}

// Message 渲染面向操作者的单行进度文本。
func (e Event) Message() string {
	switch e.Kind {
	case EventBatchStarted:
		return fmt.Sprintf("Starting transaction batch with %d transactions...", e.Total)
	case EventAttemptStarted:
		if e.Swap == nil {
			return fmt.Sprintf("[%d/%d] Executing swap", e.Index+1, e.Total)
		}
		return fmt.Sprintf("[%d/%d] Executing swap: %s", e.Index+1, e.Total, e.Swap)
	case EventPoll:
		return fmt.Sprintf("[Job #%s] Current phase: %s (%d/%d)", e.JobID, e.Phase, e.Poll, e.MaxPolls)
	case EventAttemptCompleted:
		return fmt.Sprintf("[%d/%d] ✓ Completed (Job #%s)", e.Index+1, e.Total, e.JobID)
	case EventAttemptFailed:
		return fmt.Sprintf("[%d/%d] ✗ Failed: %s", e.Index+1, e.Total, e.Error)
	case EventBatchFinished:
		return fmt.Sprintf("Batch finished: %d completed, %d failed", e.Completed, e.Failed)
	default:
		return string(e.Kind)
	}
}

// Observer 接收批次进度事件。实现不应阻塞太久，事件在执行协程中同步投递。
type Observer interface {
	Observe(ctx context.Context, event Event)
}

// ObserverFunc 将函数适配为 Observer。
type ObserverFunc func(ctx context.Context, event Event)

// Observe 实现 Observer。
func (f ObserverFunc) Observe(ctx context.Context, event Event) {
	f(ctx, event)
}

// MessageObserver 只关心渲染后的文本行，对应传统的进度回调。
func MessageObserver(fn func(line string)) Observer {
	return ObserverFunc(func(_ context.Context, event Event) {
		fn(event.Message())
	})
}

type multiObserver []Observer

func (m multiObserver) Observe(ctx context.Context, event Event) {
	for _, o := range m {
		o.Observe(ctx, event)
	}
}

// Observers 将多个观察者合并为一个，忽略 nil。
func Observers(observers ...Observer) Observer {
	list := make(multiObserver, 0, len(observers))
	for _, o := range observers {
		if o != nil {
			list = append(list, o)
		}
	}
	return list
}

// stamped 为转发的事件补全批次上下文。
type stamped struct {
	next    Observer
	batchID string
	index   int
	total   int
}

func (s stamped) Observe(ctx context.Context, event Event) {
	event.BatchID = s.batchID
	event.Index = s.index
	event.Total = s.total
	s.next.Observe(ctx, event)
}
