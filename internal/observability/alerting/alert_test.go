package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xerrors "AXR-Monitor/internal/errors"
)

type recordingNotifier struct {
	channel Channel
	err     error
	events  []Event
}

func (r *recordingNotifier) Channel() Channel { return r.channel }

func (r *recordingNotifier) Notify(_ context.Context, event Event) error {
	r.events = append(r.events, event)
	return r.err
}

func testEvent() Event {
	return Event{
		Code:       xerrors.CodeJobTimeout,
		Message:    "batch finished with failures",
		Severity:   xerrors.SeverityWarning,
		BatchID:    "b-1",
		Completed:  4,
		Failed:     1,
		Total:      5,
		Metadata:   map[string]string{"agent": "0xabc"},
		OccurredAt: time.Unix(0, 0).UTC(),
	}
}

func TestFanoutJoinsErrors(t *testing.T) {
	ok := &recordingNotifier{channel: ChannelWebhook}
	bad := &recordingNotifier{channel: ChannelSlack, err: errors.New("boom")}
	d := NewFanout(ok, bad, nil)
	require.Equal(t, 2, d.Len())

	err := d.Notify(context.Background(), testEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channel slack: boom")
	assert.Len(t, ok.events, 1)
	assert.Len(t, bad.events, 1)
}

func TestNilFanoutIsNoop(t *testing.T) {
	var d *FanoutDispatcher
	assert.NoError(t, d.Notify(context.Background(), testEvent()))
}

func TestFromConfigSendsToEveryChannel(t *testing.T) {
	var mu sync.Mutex
	bodies := map[string]map[string]any{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		bodies[r.URL.Path] = body
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d, err := FromConfig(Config{
		WebhookURL:         srv.URL + "/hook",
		SlackWebhookURL:    srv.URL + "/slack",
		SlackChannel:       "#alerts",
		DingTalkWebhookURL: srv.URL + "/ding",
	}, srv.Client())
	require.NoError(t, err)
	require.NoError(t, d.Notify(context.Background(), testEvent()))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "b-1", bodies["/hook"]["batch_id"])
	assert.Equal(t, "#alerts", bodies["/slack"]["channel"])
	assert.Contains(t, bodies["/slack"]["text"], "JOB_TIMEOUT")
	assert.Equal(t, "text", bodies["/ding"]["msgtype"])
	text := bodies["/ding"]["text"].(map[string]any)["content"].(string)
	assert.True(t, strings.Contains(text, "agent: 0xabc"), text)
}

func TestFromConfigEmpty(t *testing.T) {
	d, err := FromConfig(Config{}, nil)
	require.NoError(t, err)
	assert.Nil(t, d)
}

func TestWebhookSenderReportsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	sender, err := NewWebhookSender(srv.URL, srv.Client())
	require.NoError(t, err)
	err = (&WebhookNotifier{Sender: sender}).Notify(context.Background(), testEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestFanoutDeduplicatesChannels(t *testing.T) {
	first := &recordingNotifier{channel: ChannelSlack}
	second := &recordingNotifier{channel: ChannelSlack}
	d := NewFanout(first, second)
	require.Equal(t, 1, d.Len())
	require.NoError(t, d.Notify(context.Background(), testEvent()))
	assert.Len(t, first.events, 1)
	assert.Empty(t, second.events)
}

func TestUnconfiguredNotifierFails(t *testing.T) {
	assert.Error(t, (&WebhookNotifier{}).Notify(context.Background(), testEvent()))
	assert.Error(t, NewSlackNotifier(nil, "").Notify(context.Background(), testEvent()))
}

func TestEventText(t *testing.T) {
	event := testEvent()
	event.Metadata["last_phase"] = "PENDING"
	text := event.Text()
	assert.True(t, strings.HasPrefix(text, "[warning] JOB_TIMEOUT\n批次: b-1"), text)
	assert.True(t, strings.HasSuffix(text, "- agent: 0xabc\n- last_phase: PENDING"), text)
}

func TestEventSummary(t *testing.T) {
	assert.Equal(t, "[warning] JOB_TIMEOUT batch b-1: 4/5 completed, 1 failed - batch finished with failures", testEvent().Summary())
}
