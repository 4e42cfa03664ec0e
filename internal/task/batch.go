package task

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"AXR-Monitor/internal/acp"
	"AXR-Monitor/internal/auth"
	xerrors "AXR-Monitor/internal/errors"
	"AXR-Monitor/internal/observability/alerting"
	"AXR-Monitor/internal/observability/metrics"
	"AXR-Monitor/pkg/logger"
)

// DefaultOffering 是兑换任务使用的服务名称。
const DefaultOffering = "swap_token"

const alertTimeout = 10 * time.Second

// 单次尝试的结果状态。
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// JobAPI 是批次编排所需的任务接口。
type JobAPI interface {
	StatusFetcher
	CreateJob(ctx context.Context, cred auth.Credential, providerWallet, offeringName string, requirements any) (acp.JobID, error)
}

// AttemptResult 记录一次尝试的结果。
type AttemptResult struct {
	Index  int         `json:"index"`
	Status string      `json:"status"`
	JobID  acp.JobID   `json:"jobId,omitempty"`
	Swap   SwapRequest `json:"swap"`
	Result *acp.Job    `json:"result,omitempty"`
	Error  string      `json:"error,omitempty"`
	Code   string      `json:"code,omitempty"`

	err error
}

// BatchResult 是整个批次的汇总，只有在所有尝试结束后才返回。
type BatchResult struct {
	BatchID       string          `json:"batchId"`
	Success       bool            `json:"success"`
	CompletedJobs int             `json:"completedJobs"`
	FailedJobs    int             `json:"failedJobs"`
	Results       []AttemptResult `json:"results"`
	StartedAt     time.Time       `json:"startedAt"`
	EndedAt       time.Time       `json:"endedAt"`
}

// Orchestrator 顺序执行一批兑换任务，单次失败不会中断批次。
type Orchestrator struct {
	jobs     JobAPI
	poller   *Poller
	offering string
	maxPolls int
	interval time.Duration
	metrics  *metrics.Metrics
	alerter  alerting.Dispatcher
	log      *slog.Logger
	now      func() time.Time
	newID    func() string
}

// OrchestratorOption 定义可选配置。
type OrchestratorOption func(*Orchestrator)

// WithOffering 指定任务使用的服务名称。
func WithOffering(name string) OrchestratorOption {
	return func(o *Orchestrator) {
		if strings.TrimSpace(name) != "" {
			o.offering = name
		}
	}
}

// WithPolling 设置每个任务的轮询预算。
func WithPolling(maxPolls int, interval time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if maxPolls > 0 {
			o.maxPolls = maxPolls
		}
		if interval >= 0 {
			o.interval = interval
		}
	}
}

// WithPoller 替换默认的 Poller。
func WithPoller(p *Poller) OrchestratorOption {
	return func(o *Orchestrator) {
		if p != nil {
			o.poller = p
		}
	}
}

// WithMetrics 记录批次与任务指标。
func WithMetrics(m *metrics.Metrics) OrchestratorOption {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithAlertDispatcher 配置批次失败时的告警派发器。
func WithAlertDispatcher(d alerting.Dispatcher) OrchestratorOption {
	return func(o *Orchestrator) {
		o.alerter = d
	}
}

// WithLogger 指定日志输出。
func WithLogger(l *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		if l != nil {
			o.log = l
		}
	}
}

// NewOrchestrator 构造 Orchestrator。
func NewOrchestrator(jobs JobAPI, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		jobs:     jobs,
		offering: DefaultOffering,
		maxPolls: DefaultMaxPolls,
		interval: DefaultPollInterval,
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	if o.log == nil {
		o.log = logger.Named("batch")
	}
	if o.poller == nil {
		o.poller = NewPoller(jobs, WithPollerLogger(o.log), WithPollerMetrics(o.metrics))
	}
	return o
}

// RunBatch 依次执行 count 个兑换任务。第 i 个任务使用 params[i % len(params)]。
// 参数错误会在创建任何任务之前返回；单个任务的失败只记录在结果中。
// Success 当且仅当全部任务完成时为 true。
func (o *Orchestrator) RunBatch(ctx context.Context, cred auth.Credential, agentAddress string, count int, params []SwapRequest, observer Observer) (*BatchResult, error) {
	if count < 0 {
		return nil, xerrors.Newf(xerrors.CodeInvalidArgument, "transaction count must not be negative, got %d", count)
	}
	if len(params) == 0 {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "at least one swap parameter set is required")
	}
	if strings.TrimSpace(agentAddress) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "agent address is required")
	}
	for i, p := range params {
		if err := p.Validate(); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, fmt.Sprintf("swap params #%d", i))
		}
	}
	if observer == nil {
		observer = Observers()
	}

	result := &BatchResult{
		BatchID:   o.newID(),
		Results:   make([]AttemptResult, 0, count),
		StartedAt: o.now(),
	}
	log := o.log.With("batch_id", result.BatchID)
	log.Info("batch started", "count", count, "agent", agentAddress, "caller_id", cred.CallerID())
	observer.Observe(ctx, Event{Kind: EventBatchStarted, BatchID: result.BatchID, Total: count, Time: o.now()})

	for i := 0; i < count; i++ {
		swap := params[i%len(params)]
		attempt := o.runAttempt(ctx, cred, agentAddress, result.BatchID, i, count, swap, observer)
		if attempt.Status == StatusCompleted {
			result.CompletedJobs++
		} else {
			result.FailedJobs++
			log.Warn("attempt failed", "index", i, "job_id", attempt.JobID.String(), "code", attempt.Code, "error", attempt.Error)
		}
		o.metrics.ObserveJobOutcome(attempt.Status)
		result.Results = append(result.Results, attempt)
	}

	result.Success = result.CompletedJobs == count
	result.EndedAt = o.now()
	o.metrics.ObserveBatch(result.Success, result.EndedAt.Sub(result.StartedAt))
	observer.Observe(ctx, Event{
		Kind:      EventBatchFinished,
		BatchID:   result.BatchID,
		Total:     count,
		Completed: result.CompletedJobs,
		Failed:    result.FailedJobs,
		Time:      result.EndedAt,
	})
	log.Info("batch finished",
		"success", result.Success,
		"completed", result.CompletedJobs,
		"failed", result.FailedJobs,
		"duration_ms", result.EndedAt.Sub(result.StartedAt).Milliseconds(),
	)

	if !result.Success {
		o.alert(ctx, agentAddress, result)
	}
	return result, nil
}

func (o *Orchestrator) runAttempt(ctx context.Context, cred auth.Credential, agentAddress, batchID string, index, total int, swap SwapRequest, observer Observer) AttemptResult {
	attempt := AttemptResult{Index: index, Swap: swap}
	observer.Observe(ctx, Event{
		Kind:    EventAttemptStarted,
		BatchID: batchID,
		Index:   index,
		Total:   total,
		Swap:    &swap,
		Time:    o.now(),
	})

	fail := func(err error) AttemptResult {
		attempt.Status = StatusFailed
		attempt.err = err
		attempt.Error = err.Error()
		attempt.Code = string(xerrors.CodeOf(err))
		observer.Observe(ctx, Event{
			Kind:    EventAttemptFailed,
			BatchID: batchID,
			Index:   index,
			Total:   total,
			JobID:   attempt.JobID,
			Error:   attempt.Error,
			Time:    o.now(),
		})
		return attempt
	}

	id, err := o.jobs.CreateJob(ctx, cred, agentAddress, o.offering, swap)
	if err != nil {
		return fail(err)
	}
	attempt.JobID = id

	forward := stamped{next: observer, batchID: batchID, index: index, total: total}
	job, err := o.poller.PollUntilTerminal(ctx, cred, id, o.maxPolls, o.interval, forward)
	if err != nil {
		return fail(err)
	}

	attempt.Status = StatusCompleted
	attempt.Result = job
	observer.Observe(ctx, Event{
		Kind:    EventAttemptCompleted,
		BatchID: batchID,
		Index:   index,
		Total:   total,
		JobID:   id,
		Phase:   job.Phase,
		Time:    o.now(),
	})
	return attempt
}

func (o *Orchestrator) alert(ctx context.Context, agentAddress string, result *BatchResult) {
	if o.alerter == nil {
		return
	}
	cause, ok := alertCause(result)
	if !ok {
		return
	}
	severity := xerrors.SeverityOf(cause)
	if result.CompletedJobs == 0 {
		severity = xerrors.SeverityCritical
	}
	code, message := xerrors.CodeOf(cause), cause.Error()
	event := alerting.Event{
		Code:       code,
		Message:    message,
		Severity:   severity,
		BatchID:    result.BatchID,
		Completed:  result.CompletedJobs,
		Failed:     result.FailedJobs,
		Total:      len(result.Results),
		Metadata:   map[string]string{"agent": agentAddress},
		OccurredAt: result.EndedAt,
	}
	// 告警失败不影响批次结果；批次被取消时仍尝试发送。
	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), alertTimeout)
	defer cancel()
	if err := o.alerter.Notify(notifyCtx, event); err != nil {
		o.log.Warn("dispatch alert failed", "batch_id", result.BatchID, "error", err)
	}
}

// alertCause 选出第一个需要告警的失败。没有成功任务时，即使失败都不需要告警，
// 也以第一个失败作为告警原因。
func alertCause(result *BatchResult) (error, bool) {
	var first error
	for _, r := range result.Results {
		if r.Status != StatusFailed || r.err == nil {
			continue
		}
		if xerrors.ShouldAlert(r.err) {
			return r.err, true
		}
		if first == nil {
			first = r.err
		}
	}
	if first != nil && result.CompletedJobs == 0 {
		return first, true
	}
	return nil, false
}
