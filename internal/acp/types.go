package acp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// AgentProfile 是市场目录中智能体的公开资料，每次查询实时获取，不做缓存。
type AgentProfile struct {
	ID               string        `json:"id"`
	Name             string        `json:"name"`
	WalletAddress    string        `json:"walletAddress"`
	Description      string        `json:"description"`
	GraduationStatus string        `json:"graduationStatus"`
	OnlineStatus     string        `json:"onlineStatus"`
	JobOfferings     []JobOffering `json:"jobOfferings"`
}

// JobOffering 描述智能体提供的一项服务。
type JobOffering struct {
	Name        string  `json:"name"`
	Price       float64 `json:"price"`
	PriceType   string  `json:"priceType"`
	Requirement string  `json:"requirement"`
}

// JobID 是远端分配的任务编号，创建后不可变。
type JobID int64

func (id JobID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// UnmarshalJSON 同时接受数字和字符串形式的编号。
func (id *JobID) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	if len(data) == 0 || string(data) == "null" {
		*id = 0
		return nil
	}
	v, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid job id %q: %w", data, err)
	}
	*id = JobID(v)
	return nil
}

// Phase 是任务阶段。只有 COMPLETED、REJECTED、EXPIRED 为终止阶段，比较区分大小写。
type Phase string

const (
	PhaseCompleted Phase = "COMPLETED"
	PhaseRejected  Phase = "REJECTED"
	PhaseExpired   Phase = "EXPIRED"
)

// Terminal 报告阶段是否为终止阶段。
func (p Phase) Terminal() bool {
	switch p {
	case PhaseCompleted, PhaseRejected, PhaseExpired:
		return true
	default:
		return false
	}
}

// Memo 是任务的一条备忘记录。
type Memo struct {
	NextPhase string `json:"nextPhase"`
	Content   string `json:"content"`
	CreatedAt string `json:"createdAt"`
	Status    string `json:"status"`
}

// LatestMemo 携带远端对最近一次阶段变化给出的签名理由。
type LatestMemo struct {
	Content      string `json:"content,omitempty"`
	SignedReason string `json:"signedReason,omitempty"`
}

// Job 是客户端持有的任务快照。
type Job struct {
	JobID       JobID           `json:"jobId"`
	Phase       Phase           `json:"phase"`
	Deliverable json.RawMessage `json:"deliverable,omitempty"`
	MemoHistory []Memo          `json:"memoHistory"`
	LatestMemo  *LatestMemo     `json:"latestMemo,omitempty"`
}

// Reason 返回拒绝理由：优先使用 latestMemo 的签名理由，其次是最后一条备忘内容。
func (j *Job) Reason() string {
	if j == nil {
		return ""
	}
	if j.LatestMemo != nil {
		if j.LatestMemo.SignedReason != "" {
			return j.LatestMemo.SignedReason
		}
		if j.LatestMemo.Content != "" {
			return j.LatestMemo.Content
		}
	}
	if n := len(j.MemoHistory); n > 0 {
		return j.MemoHistory[n-1].Content
	}
	return ""
}

// JobSummary 是活跃任务列表中的条目。
type JobSummary struct {
	ID    JobID `json:"id"`
	Phase Phase `json:"phase"`
}

// jobPayload 是 GET /acp/jobs/{id} 返回的原始结构。
type jobPayload struct {
	ID          JobID           `json:"id"`
	Phase       Phase           `json:"phase"`
	Deliverable json.RawMessage `json:"deliverable"`
	Memos       []Memo          `json:"memos"`
	LatestMemo  *LatestMemo     `json:"latestMemo"`
}

func (p jobPayload) toJob() *Job {
	deliverable := p.Deliverable
	if len(deliverable) == 0 || string(deliverable) == "null" {
		deliverable = nil
	}
	memos := make([]Memo, len(p.Memos))
	copy(memos, p.Memos)
	return &Job{
		JobID:       p.ID,
		Phase:       p.Phase,
		Deliverable: deliverable,
		MemoHistory: memos,
		LatestMemo:  p.LatestMemo,
	}
}

// createJobRequest 是 POST /acp/jobs 的请求体。
type createJobRequest struct {
	ProviderWalletAddress string `json:"providerWalletAddress"`
	JobOfferingName       string `json:"jobOfferingName"`
	ServiceRequirements   any    `json:"serviceRequirements"`
}

type createJobResponse struct {
	JobID JobID `json:"jobId"`
}

// envelope 是市场 API 统一的 {data: ...} 响应包装。
type envelope[T any] struct {
	Data T `json:"data"`
}
