package task

import (
	"context"
	"log/slog"

	"AXR-Monitor/pkg/logger"
)

// Publisher 将批次事件投递到外部系统。
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// PublishTo 把 Publisher 适配为 Observer。投递失败只记录日志，不影响批次执行。
func PublishTo(p Publisher, l *slog.Logger) Observer {
	if p == nil {
		return nil
	}
	if l == nil {
		l = logger.Named("events")
	}
	return ObserverFunc(func(ctx context.Context, event Event) {
		if err := p.Publish(ctx, event); err != nil {
			l.Warn("publish batch event failed",
				"kind", string(event.Kind),
				"batch_id", event.BatchID,
				"error", err,
			)
		}
	})
}
