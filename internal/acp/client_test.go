package acp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"AXR-Monitor/internal/auth"
	xerrors "AXR-Monitor/internal/errors"
	"AXR-Monitor/internal/observability/metrics"
)

const testAgent = "0x999A1B6033998A05F7e37e4BD471038dF46624E1"

var testCred = auth.NewCredential("-5186856333", "acp-2039a69042438cd5cf2f")

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	opts = append([]Option{WithHTTPClient(srv.Client())}, opts...)
	client, err := NewClient(srv.URL, opts...)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestFetchAgentMatchesCaseInsensitively(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/acp/agents" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("query"); got != testAgent {
			t.Fatalf("unexpected query: %s", got)
		}
		if got := r.Header.Get("x-api-key"); got != "acp-2039a69042438cd5cf2f" {
			t.Fatalf("unexpected api key header: %q", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": []AgentProfile{
			{ID: "1", Name: "Decoy", WalletAddress: "0x999a1b6033998a05f7e37e4bd471038df46624e2"},
			{ID: "2", Name: "Axelrod", WalletAddress: strings.ToLower(testAgent), OnlineStatus: "online",
				JobOfferings: []JobOffering{{Name: "swap_token", Price: 0.01, PriceType: "fixed"}}},
		}})
	})

	agent, err := client.FetchAgent(context.Background(), testCred, testAgent)
	if err != nil {
		t.Fatalf("fetch agent: %v", err)
	}
	if agent.ID != "2" || agent.Name != "Axelrod" {
		t.Fatalf("unexpected agent: %+v", agent)
	}
	if len(agent.JobOfferings) != 1 || agent.JobOfferings[0].Name != "swap_token" {
		t.Fatalf("unexpected offerings: %+v", agent.JobOfferings)
	}
}

func TestFetchAgentNotFound(t *testing.T) {
	for name, body := range map[string]string{
		"empty":    `{"data":[]}`,
		"null":     `{"data":null}`,
		"no match": `{"data":[{"id":"1","walletAddress":"0xdeadbeef"}]}`,
	} {
		t.Run(name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(body))
			})
			_, err := client.FetchAgent(context.Background(), testCred, testAgent)
			if !xerrors.HasCode(err, xerrors.CodeAgentNotFound) {
				t.Fatalf("expected agent not found, got %v", err)
			}
			if !strings.Contains(err.Error(), testAgent) {
				t.Fatalf("expected address in error, got %v", err)
			}
		})
	}
}

func TestFetchAgentUpstreamError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"invalid api key"}}`))
	})

	_, err := client.FetchAgent(context.Background(), testCred, testAgent)
	if !xerrors.HasCode(err, xerrors.CodeUpstream) {
		t.Fatalf("expected upstream error, got %v", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError in chain, got %T", err)
	}
	if apiErr.StatusCode != http.StatusUnauthorized || apiErr.Message != "invalid api key" {
		t.Fatalf("unexpected api error: %+v", apiErr)
	}
	if !strings.Contains(err.Error(), "invalid api key") {
		t.Fatalf("expected upstream message embedded, got %q", err.Error())
	}
	if strings.Contains(err.Error(), testCred.Secret()) {
		t.Fatalf("credential leaked into error: %q", err.Error())
	}
}

func TestCreateJob(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/acp/jobs" {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var body struct {
			ProviderWalletAddress string         `json:"providerWalletAddress"`
			JobOfferingName       string         `json:"jobOfferingName"`
			ServiceRequirements   map[string]any `json:"serviceRequirements"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body.ProviderWalletAddress != testAgent || body.JobOfferingName != "swap_token" {
			t.Fatalf("unexpected body: %+v", body)
		}
		if body.ServiceRequirements["fromSymbol"] != "USDC" {
			t.Fatalf("unexpected requirements: %+v", body.ServiceRequirements)
		}
		_, _ = w.Write([]byte(`{"data":{"jobId":4242}}`))
	})

	id, err := client.CreateJob(context.Background(), testCred, testAgent, "swap_token",
		map[string]any{"fromSymbol": "USDC", "toSymbol": "WETH", "amount": json.Number("0.001")})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	if id != 4242 {
		t.Fatalf("expected job 4242, got %d", id)
	}
}

func TestCreateJobFailure(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("insufficient balance"))
	})

	_, err := client.CreateJob(context.Background(), testCred, testAgent, "swap_token", nil)
	if !xerrors.HasCode(err, xerrors.CodeJobCreation) {
		t.Fatalf("expected job creation failure, got %v", err)
	}
	if !strings.Contains(err.Error(), "400") || !strings.Contains(err.Error(), "insufficient balance") {
		t.Fatalf("expected status and body in error, got %q", err.Error())
	}
}

func TestCreateJobMissingID(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{}}`))
	})
	_, err := client.CreateJob(context.Background(), testCred, testAgent, "swap_token", nil)
	if !xerrors.HasCode(err, xerrors.CodeJobCreation) {
		t.Fatalf("expected job creation failure, got %v", err)
	}
}

func TestGetJobStatusMapsMemos(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/acp/jobs/7" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"data":{"id":"7","phase":"REJECTED","deliverable":null,
			"memos":[{"nextPhase":"NEGOTIATION","content":"first","createdAt":"t1","status":"APPROVED"},
			         {"nextPhase":"REJECTED","content":"second","createdAt":"t2","status":"REJECTED"}],
			"latestMemo":{"signedReason":"slippage too high"}}}`))
	})

	job, err := client.GetJobStatus(context.Background(), testCred, 7)
	if err != nil {
		t.Fatalf("get job status: %v", err)
	}
	if job.JobID != 7 || job.Phase != PhaseRejected {
		t.Fatalf("unexpected job: %+v", job)
	}
	if job.Deliverable != nil {
		t.Fatalf("expected nil deliverable, got %s", job.Deliverable)
	}
	if len(job.MemoHistory) != 2 || job.MemoHistory[0].Content != "first" || job.MemoHistory[1].NextPhase != "REJECTED" {
		t.Fatalf("unexpected memo history: %+v", job.MemoHistory)
	}
	if job.Reason() != "slippage too high" {
		t.Fatalf("unexpected reason: %q", job.Reason())
	}
}

func TestGetJobStatusFailure(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	})
	_, err := client.GetJobStatus(context.Background(), testCred, 9)
	if !xerrors.HasCode(err, xerrors.CodeJobQuery) {
		t.Fatalf("expected job query failure, got %v", err)
	}
}

func TestListActiveJobs(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/acp/jobs/active" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"data":[{"id":1,"phase":"TRANSACTION"},{"id":2,"phase":"REQUEST"}]}`))
	})
	jobs, err := client.ListActiveJobs(context.Background(), testCred)
	if err != nil {
		t.Fatalf("list active jobs: %v", err)
	}
	if len(jobs) != 2 || jobs[1].ID != 2 || jobs[0].Phase != "TRANSACTION" {
		t.Fatalf("unexpected jobs: %+v", jobs)
	}
}

func TestRequestRequiresCredential(t *testing.T) {
	called := false
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})
	if _, err := client.ListActiveJobs(context.Background(), auth.Credential{}); err == nil {
		t.Fatal("expected error without credential")
	}
	if called {
		t.Fatal("request should not be sent without credential")
	}
}

func TestClientRecordsMetrics(t *testing.T) {
	m := metrics.MustNew(prometheus.NewRegistry())
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"id":5,"phase":"TRANSACTION"}}`))
	}, WithMetrics(m))

	for i := 0; i < 3; i++ {
		if _, err := client.GetJobStatus(context.Background(), testCred, 5); err != nil {
			t.Fatalf("get job status: %v", err)
		}
	}
	got, err := testutil.GatherAndCount(m.Gatherer(), "axr_acp_requests_total")
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if got != 1 {
		t.Fatalf("expected a single endpoint series, got %d", got)
	}
}

func TestRateLimitHonoursContext(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[]}`))
	}, WithRateLimit(0.001, 1))

	if _, err := client.ListActiveJobs(context.Background(), testCred); err != nil {
		t.Fatalf("first request: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := client.ListActiveJobs(ctx, testCred); err == nil {
		t.Fatal("expected rate limited request to fail when context expires")
	}
}

func TestNewClientRejectsInvalidURL(t *testing.T) {
	if _, err := NewClient("ftp://example.com"); err == nil {
		t.Fatal("expected error for unsupported scheme")
	}
	client, err := NewClient("")
	if err != nil {
		t.Fatalf("default url: %v", err)
	}
	if client.BaseURL() != DefaultBaseURL {
		t.Fatalf("unexpected base url: %s", client.BaseURL())
	}
}

func TestPhaseTerminal(t *testing.T) {
	for _, p := range []Phase{PhaseCompleted, PhaseRejected, PhaseExpired} {
		if !p.Terminal() {
			t.Fatalf("%s should be terminal", p)
		}
	}
	for _, p := range []Phase{"completed", "PENDING", "TRANSACTION", "", "Expired"} {
		if p.Terminal() {
			t.Fatalf("%q should not be terminal", p)
		}
	}
}
