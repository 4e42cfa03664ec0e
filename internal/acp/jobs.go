package acp

import (
	"context"
	"errors"
	"strings"

	"AXR-Monitor/internal/auth"
	xerrors "AXR-Monitor/internal/errors"
)

// CreateJob 向 providerWallet 对应的智能体提交一个任务，返回远端分配的编号。
// 本层不做重试。
func (c *Client) CreateJob(ctx context.Context, cred auth.Credential, providerWallet, offeringName string, requirements any) (JobID, error) {
	if strings.TrimSpace(providerWallet) == "" || strings.TrimSpace(offeringName) == "" {
		return 0, xerrors.New(xerrors.CodeInvalidArgument, "provider wallet and offering name are required")
	}

	body := createJobRequest{
		ProviderWalletAddress: providerWallet,
		JobOfferingName:       offeringName,
		ServiceRequirements:   requirements,
	}
	var resp envelope[createJobResponse]
	if err := c.post(ctx, cred, "/acp/jobs", body, &resp); err != nil {
		return 0, xerrors.Wrap(xerrors.CodeJobCreation, err, "Failed to create job")
	}
	if resp.Data.JobID == 0 {
		return 0, xerrors.Wrap(xerrors.CodeJobCreation, errors.New("response did not include a job id"), "Failed to create job")
	}
	return resp.Data.JobID, nil
}

// GetJobStatus 查询任务的当前状态，备忘记录按原顺序映射到 MemoHistory。
func (c *Client) GetJobStatus(ctx context.Context, cred auth.Credential, id JobID) (*Job, error) {
	var resp envelope[*jobPayload]
	if err := c.get(ctx, cred, "/acp/jobs/"+id.String(), nil, &resp); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeJobQuery, err, "Failed to get job status",
			xerrors.WithMetadata("job_id", id.String()))
	}
	if resp.Data == nil {
		return nil, xerrors.Wrap(xerrors.CodeJobQuery, errors.New("response did not include job data"), "Failed to get job status",
			xerrors.WithMetadata("job_id", id.String()))
	}
	job := resp.Data.toJob()
	if job.JobID == 0 {
		job.JobID = id
	}
	return job, nil
}

// ListActiveJobs 返回当前凭据下所有未结束的任务。
func (c *Client) ListActiveJobs(ctx context.Context, cred auth.Credential) ([]JobSummary, error) {
	var resp envelope[[]JobSummary]
	if err := c.get(ctx, cred, "/acp/jobs/active", nil, &resp); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeUpstream, err, "Failed to get active jobs")
	}
	if resp.Data == nil {
		return []JobSummary{}, nil
	}
	return resp.Data, nil
}
