package task

import (
	"context"
	"sync"

	"AXR-Monitor/internal/acp"
	"AXR-Monitor/internal/auth"
	xerrors "AXR-Monitor/internal/errors"
)

var testCred = auth.NewCredential("-5186856333", "acp-2039a69042438cd5cf2f")

const testAgent = "0x999A1B6033998A05F7e37e4BD471038dF46624E1"

// fakeJobs 按脚本返回任务创建与查询结果。
type fakeJobs struct {
	mu        sync.Mutex
	nextID    acp.JobID
	createErr map[int]error
	created   []SwapRequest
	polls     map[acp.JobID]int
	script    func(id acp.JobID, poll int) (*acp.Job, error)
}

func newFakeJobs(script func(id acp.JobID, poll int) (*acp.Job, error)) *fakeJobs {
	return &fakeJobs{
		createErr: map[int]error{},
		polls:     map[acp.JobID]int{},
		script:    script,
	}
}

// phases 返回依次给出指定阶段的脚本，超出部分重复最后一个阶段。
func phases(seq ...acp.Phase) func(acp.JobID, int) (*acp.Job, error) {
	return func(id acp.JobID, poll int) (*acp.Job, error) {
		if poll >= len(seq) {
			poll = len(seq) - 1
		}
		return &acp.Job{JobID: id, Phase: seq[poll]}, nil
	}
}

func (f *fakeJobs) CreateJob(ctx context.Context, cred auth.Credential, providerWallet, offeringName string, requirements any) (acp.JobID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := len(f.created)
	f.created = append(f.created, requirements.(SwapRequest))
	if err := ctx.Err(); err != nil {
		return 0, xerrors.Wrap(xerrors.CodeJobCreation, err, "Failed to create job")
	}
	if err := f.createErr[idx]; err != nil {
		return 0, err
	}
	f.nextID++
	return f.nextID, nil
}

func (f *fakeJobs) GetJobStatus(ctx context.Context, cred auth.Credential, id acp.JobID) (*acp.Job, error) {
	f.mu.Lock()
	n := f.polls[id]
	f.polls[id] = n + 1
	f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeJobQuery, err, "Failed to get job status")
	}
	return f.script(id, n)
}

func (f *fakeJobs) pollCount(id acp.JobID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls[id]
}

type lineRecorder struct {
	mu    sync.Mutex
	lines []string
}

func (r *lineRecorder) observer() Observer {
	return MessageObserver(func(line string) {
		r.mu.Lock()
		r.lines = append(r.lines, line)
		r.mu.Unlock()
	})
}
