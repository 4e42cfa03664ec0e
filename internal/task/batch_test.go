package task

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"AXR-Monitor/internal/acp"
	xerrors "AXR-Monitor/internal/errors"
	"AXR-Monitor/internal/observability/alerting"
	"AXR-Monitor/internal/observability/metrics"
)

type recordingDispatcher struct {
	mu     sync.Mutex
	events []alerting.Event
}

func (r *recordingDispatcher) Notify(_ context.Context, event alerting.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(new(bytes.Buffer), nil))
}

func newTestOrchestrator(jobs JobAPI, opts ...OrchestratorOption) *Orchestrator {
	opts = append([]OrchestratorOption{WithLogger(quietLogger()), WithPolling(5, 0)}, opts...)
	o := NewOrchestrator(jobs, opts...)
	o.newID = func() string { return "batch-1" }
	return o
}

func TestRunBatchToleratesAttemptFailure(t *testing.T) {
	jobs := newFakeJobs(phases(acp.PhaseCompleted))
	jobs.createErr[2] = xerrors.Wrap(xerrors.CodeJobCreation, errors.New("request failed with status code 500"), "Failed to create job")
	o := newTestOrchestrator(jobs)

	result, err := o.RunBatch(context.Background(), testCred, testAgent, 5, DefaultSwapParams(), nil)
	require.NoError(t, err)
	assert.Len(t, result.Results, 5)
	assert.Equal(t, 4, result.CompletedJobs)
	assert.Equal(t, 1, result.FailedJobs)
	assert.False(t, result.Success)

	failed := result.Results[2]
	assert.Equal(t, 2, failed.Index)
	assert.Equal(t, StatusFailed, failed.Status)
	assert.Equal(t, "Failed to create job: request failed with status code 500", failed.Error)
	assert.Equal(t, string(xerrors.CodeJobCreation), failed.Code)
	assert.Nil(t, failed.Result)

	for i, r := range result.Results {
		assert.Equal(t, i, r.Index)
		if i != 2 {
			assert.Equal(t, StatusCompleted, r.Status)
			require.NotNil(t, r.Result)
			assert.Equal(t, acp.PhaseCompleted, r.Result.Phase)
		}
	}
}

func TestRunBatchCyclesSwapParams(t *testing.T) {
	jobs := newFakeJobs(phases(acp.PhaseCompleted))
	params := []SwapRequest{
		{FromSymbol: "USDC", ToSymbol: "WETH", Amount: "0.001"},
		{FromSymbol: "WETH", ToSymbol: "USDC", Amount: "0.0000003"},
	}
	o := newTestOrchestrator(jobs)

	result, err := o.RunBatch(context.Background(), testCred, testAgent, 5, params, nil)
	require.NoError(t, err)
	assert.True(t, result.Success)

	want := []SwapRequest{params[0], params[1], params[0], params[1], params[0]}
	assert.Equal(t, want, jobs.created)
	for i, r := range result.Results {
		assert.Equal(t, want[i], r.Swap)
	}
}

func TestRunBatchZeroCountSucceeds(t *testing.T) {
	jobs := newFakeJobs(phases(acp.PhaseCompleted))
	o := newTestOrchestrator(jobs)

	result, err := o.RunBatch(context.Background(), testCred, testAgent, 0, DefaultSwapParams(), nil)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Empty(t, result.Results)
	assert.Empty(t, jobs.created)
}

func TestRunBatchRejectsInvalidArguments(t *testing.T) {
	cases := map[string]struct {
		agent  string
		count  int
		params []SwapRequest
	}{
		"negative count": {testAgent, -1, DefaultSwapParams()},
		"no params":      {testAgent, 3, nil},
		"empty agent":    {"  ", 3, DefaultSwapParams()},
		"bad amount":     {testAgent, 3, []SwapRequest{{FromSymbol: "USDC", ToSymbol: "WETH", Amount: "-1"}}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			jobs := newFakeJobs(phases(acp.PhaseCompleted))
			o := newTestOrchestrator(jobs)
			_, err := o.RunBatch(context.Background(), testCred, tc.agent, tc.count, tc.params, nil)
			assert.True(t, xerrors.HasCode(err, xerrors.CodeInvalidArgument), "got %v", err)
			assert.Empty(t, jobs.created)
		})
	}
}

func TestRunBatchProgressIsOrderedByAttempt(t *testing.T) {
	jobs := newFakeJobs(func(id acp.JobID, poll int) (*acp.Job, error) {
		if id == 2 {
			return &acp.Job{JobID: id, Phase: acp.PhaseExpired}, nil
		}
		return phases("TRANSACTION", acp.PhaseCompleted)(id, poll)
	})
	o := newTestOrchestrator(jobs)
	rec := &lineRecorder{}

	_, err := o.RunBatch(context.Background(), testCred, testAgent, 2, DefaultSwapParams(), rec.observer())
	require.NoError(t, err)
	assert.Equal(t, []string{
		"Starting transaction batch with 2 transactions...",
		"[1/2] Executing swap: 0.001 USDC -> WETH",
		"[Job #1] Current phase: TRANSACTION (1/5)",
		"[Job #1] Current phase: COMPLETED (2/5)",
		"[1/2] ✓ Completed (Job #1)",
		"[2/2] Executing swap: 0.001 USDC -> WETH",
		"[Job #2] Current phase: EXPIRED (1/5)",
		"[2/2] ✗ Failed: Job #2 expired",
		"Batch finished: 1 completed, 1 failed",
	}, rec.lines)
}

func TestRunBatchStampsPollEvents(t *testing.T) {
	jobs := newFakeJobs(phases(acp.PhaseCompleted))
	o := newTestOrchestrator(jobs)

	var events []Event
	observer := ObserverFunc(func(_ context.Context, e Event) { events = append(events, e) })
	_, err := o.RunBatch(context.Background(), testCred, testAgent, 2, DefaultSwapParams(), observer)
	require.NoError(t, err)

	var polls []Event
	for _, e := range events {
		assert.Equal(t, "batch-1", e.BatchID)
		if e.Kind == EventPoll {
			polls = append(polls, e)
		}
	}
	require.Len(t, polls, 2)
	assert.Equal(t, 0, polls[0].Index)
	assert.Equal(t, 1, polls[1].Index)
	assert.Equal(t, 2, polls[1].Total)
}

func TestRunBatchAlertsOnlyOnFailure(t *testing.T) {
	jobs := newFakeJobs(phases(acp.PhaseCompleted))
	alerts := &recordingDispatcher{}
	o := newTestOrchestrator(jobs, WithAlertDispatcher(alerts))

	_, err := o.RunBatch(context.Background(), testCred, testAgent, 2, DefaultSwapParams(), nil)
	require.NoError(t, err)
	assert.Empty(t, alerts.events)

	jobs = newFakeJobs(phases(acp.PhaseRejected))
	o = newTestOrchestrator(jobs, WithAlertDispatcher(alerts))
	result, err := o.RunBatch(context.Background(), testCred, testAgent, 2, DefaultSwapParams(), nil)
	require.NoError(t, err)
	require.Len(t, alerts.events, 1)

	event := alerts.events[0]
	assert.Equal(t, xerrors.CodeJobRejected, event.Code)
	assert.Equal(t, xerrors.SeverityCritical, event.Severity)
	assert.Equal(t, result.BatchID, event.BatchID)
	assert.Equal(t, 2, event.Failed)
	assert.Equal(t, testAgent, event.Metadata["agent"])
}

func TestRunBatchPartialFailureAlertsByCode(t *testing.T) {
	rejectSecond := func(id acp.JobID, poll int) (*acp.Job, error) {
		if id == 2 {
			return &acp.Job{JobID: id, Phase: acp.PhaseRejected}, nil
		}
		return phases(acp.PhaseCompleted)(id, poll)
	}

	jobs := newFakeJobs(rejectSecond)
	alerts := &recordingDispatcher{}
	o := newTestOrchestrator(jobs, WithAlertDispatcher(alerts))
	result, err := o.RunBatch(context.Background(), testCred, testAgent, 3, DefaultSwapParams(), nil)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, 1, result.FailedJobs)
	assert.Empty(t, alerts.events, "a rejected job alone is not alert-worthy")

	jobs = newFakeJobs(rejectSecond)
	jobs.createErr[2] = xerrors.Wrap(xerrors.CodeJobCreation, errors.New("request failed with status code 502"), "Failed to create job")
	o = newTestOrchestrator(jobs, WithAlertDispatcher(alerts))
	result, err = o.RunBatch(context.Background(), testCred, testAgent, 3, DefaultSwapParams(), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, result.FailedJobs)
	require.Len(t, alerts.events, 1)

	event := alerts.events[0]
	assert.Equal(t, xerrors.CodeJobCreation, event.Code)
	assert.Equal(t, xerrors.SeverityWarning, event.Severity)
	assert.Equal(t, "Failed to create job: request failed with status code 502", event.Message)
	assert.Equal(t, 2, event.Failed)
}

func TestRunBatchRecordsMetrics(t *testing.T) {
	jobs := newFakeJobs(phases("REQUEST", acp.PhaseCompleted))
	jobs.createErr[0] = errors.New("boom")
	m := metrics.MustNew(prometheus.NewRegistry())
	o := newTestOrchestrator(jobs, WithMetrics(m))

	_, err := o.RunBatch(context.Background(), testCred, testAgent, 3, DefaultSwapParams(), nil)
	require.NoError(t, err)

	out := bytes.NewBufferString(`
# HELP axr_job_outcomes_total Swap job attempts by final outcome.
# TYPE axr_job_outcomes_total counter
axr_job_outcomes_total{outcome="completed"} 2
axr_job_outcomes_total{outcome="failed"} 1
`)
	require.NoError(t, testutil.GatherAndCompare(m.Gatherer(), out, "axr_job_outcomes_total"))

	polls, err := testutil.GatherAndCount(m.Gatherer(), "axr_job_polls_total")
	require.NoError(t, err)
	assert.Equal(t, 2, polls)
}

func TestRunBatchCancelledContextFailsRemainingAttempts(t *testing.T) {
	jobs := newFakeJobs(phases(acp.PhaseCompleted))
	o := newTestOrchestrator(jobs)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := o.RunBatch(ctx, testCred, testAgent, 3, DefaultSwapParams(), nil)
	require.NoError(t, err)
	assert.Len(t, result.Results, 3)
	assert.Equal(t, 3, result.FailedJobs)
	assert.False(t, result.Success)
	for _, r := range result.Results {
		assert.Contains(t, r.Error, context.Canceled.Error())
	}
}

func TestRunBatchPublishesEvents(t *testing.T) {
	jobs := newFakeJobs(phases(acp.PhaseCompleted))
	pub := NewMemoryPublisher(64)
	o := newTestOrchestrator(jobs)

	_, err := o.RunBatch(context.Background(), testCred, testAgent, 1, DefaultSwapParams(), Observers(PublishTo(pub, quietLogger()), nil))
	require.NoError(t, err)
	require.NoError(t, pub.Close())

	var kinds []EventKind
	for e := range pub.Events() {
		kinds = append(kinds, e.Kind)
	}
	assert.Equal(t, []EventKind{EventBatchStarted, EventAttemptStarted, EventPoll, EventAttemptCompleted, EventBatchFinished}, kinds)
}

func TestPublishFailureDoesNotFailBatch(t *testing.T) {
	jobs := newFakeJobs(phases(acp.PhaseCompleted))
	pub := NewMemoryPublisher(1)
	var logs bytes.Buffer
	o := newTestOrchestrator(jobs)

	result, err := o.RunBatch(context.Background(), testCred, testAgent, 2, DefaultSwapParams(),
		PublishTo(pub, slog.New(slog.NewTextHandler(&logs, nil))))
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Contains(t, logs.String(), "publish batch event failed")
}
