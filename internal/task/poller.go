package task

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"AXR-Monitor/internal/acp"
	"AXR-Monitor/internal/auth"
	xerrors "AXR-Monitor/internal/errors"
	"AXR-Monitor/internal/observability/metrics"
	"AXR-Monitor/pkg/logger"
)

// 轮询默认值：最多 120 次，间隔 5 秒，每 6 次输出一次心跳日志。
const (
	DefaultMaxPolls     = 120
	DefaultPollInterval = 5 * time.Second
	heartbeatEvery      = 6
)

// StatusFetcher 查询任务当前状态。
type StatusFetcher interface {
	GetJobStatus(ctx context.Context, cred auth.Credential, id acp.JobID) (*acp.Job, error)
}

// Poller 顺序轮询单个任务直到终止阶段，同一任务不会并发查询。
type Poller struct {
	client  StatusFetcher
	log     *slog.Logger
	metrics *metrics.Metrics
	sleep   func(ctx context.Context, d time.Duration) error
	now     func() time.Time
}

// PollerOption 定义 Poller 的可选配置。
type PollerOption func(*Poller)

// WithPollerLogger 指定日志输出。
func WithPollerLogger(l *slog.Logger) PollerOption {
	return func(p *Poller) {
		if l != nil {
			p.log = l
		}
	}
}

// WithPollerMetrics 记录轮询次数。
func WithPollerMetrics(m *metrics.Metrics) PollerOption {
	return func(p *Poller) {
		p.metrics = m
	}
}

// NewPoller 构造 Poller。
func NewPoller(client StatusFetcher, opts ...PollerOption) *Poller {
	p := &Poller{
		client: client,
		sleep:  sleepContext,
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	if p.log == nil {
		p.log = logger.Named("poller")
	}
	return p
}

// PollUntilTerminal 最多查询 maxPolls 次任务状态。COMPLETED 时立即返回任务；
// REJECTED、EXPIRED 返回对应错误；预算耗尽返回 JOB_TIMEOUT，并报告最后观察到的阶段。
// maxPolls 不大于 0 时不发起查询，直接返回超时。
func (p *Poller) PollUntilTerminal(ctx context.Context, cred auth.Credential, id acp.JobID, maxPolls int, interval time.Duration, observer Observer) (*acp.Job, error) {
	if maxPolls < 0 {
		maxPolls = 0
	}
	if interval < 0 {
		interval = 0
	}

	lastPhase := acp.Phase("unknown")
	for i := 0; i < maxPolls; i++ {
		job, err := p.client.GetJobStatus(ctx, cred, id)
		if err != nil {
			return nil, err
		}
		lastPhase = job.Phase
		p.metrics.IncJobPoll(string(job.Phase))

		event := Event{
			Kind:     EventPoll,
			JobID:    id,
			Phase:    job.Phase,
			Poll:     i + 1,
			MaxPolls: maxPolls,
			Time:     p.now(),
		}
		if i%heartbeatEvery == 0 {
			p.log.Info(event.Message(),
				"job_id", id.String(),
				"phase", string(job.Phase),
				"poll", i+1,
				"max_polls", maxPolls,
			)
		}
		if observer != nil {
			observer.Observe(ctx, event)
		}

		switch job.Phase {
		case acp.PhaseCompleted:
			return job, nil
		case acp.PhaseRejected:
			msg := fmt.Sprintf("Job #%s was rejected", id)
			if reason := job.Reason(); reason != "" {
				msg += ": " + reason
			}
			return nil, xerrors.New(xerrors.CodeJobRejected, msg,
				xerrors.WithMetadata("job_id", id.String()),
				xerrors.WithMetadata("reason", job.Reason()))
		case acp.PhaseExpired:
			return nil, xerrors.Newf(xerrors.CodeJobExpired, "Job #%s expired", id)
		}

		if i == maxPolls-1 {
			break
		}
		if err := p.sleep(ctx, interval); err != nil {
			return nil, fmt.Errorf("polling job #%s interrupted (last phase: %s): %w", id, lastPhase, err)
		}
	}

	budget := time.Duration(maxPolls) * interval
	return nil, xerrors.New(xerrors.CodeJobTimeout,
		fmt.Sprintf("Job #%s timeout after %dms (last phase: %s)", id, budget.Milliseconds(), lastPhase),
		xerrors.WithMetadata("job_id", id.String()),
		xerrors.WithMetadata("last_phase", string(lastPhase)),
		xerrors.WithMetadata("budget_ms", strconv.FormatInt(budget.Milliseconds(), 10)),
	)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
