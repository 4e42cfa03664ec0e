package alerting

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	xerrors "AXR-Monitor/internal/errors"
)

// Channel 表示通知渠道。
type Channel string

const (
	ChannelWebhook  Channel = "webhook"
	ChannelDingTalk Channel = "dingtalk"
	ChannelSlack    Channel = "slack"
)

// Event 描述一次未能全部完成的批次。
type Event struct {
	Code       xerrors.Code      `json:"code"`
	Message    string            `json:"message"`
	Severity   xerrors.Severity  `json:"severity"`
	BatchID    string            `json:"batch_id"`
	Completed  int               `json:"completed"`
	Failed     int               `json:"failed"`
	Total      int               `json:"total"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// Summary 返回单行摘要。
func (e Event) Summary() string {
	return fmt.Sprintf("[%s] %s batch %s: %d/%d completed, %d failed - %s",
		e.Severity, e.Code, e.BatchID, e.Completed, e.Total, e.Failed, e.Message)
}

// Text 返回多行正文，附带按键排序的诊断字段。
func (e Event) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s\n批次: %s\n完成: %d/%d 失败: %d\n%s",
		e.Severity, e.Code, e.BatchID, e.Completed, e.Total, e.Failed, e.Message)
	for _, k := range slices.Sorted(maps.Keys(e.Metadata)) {
		fmt.Fprintf(&b, "\n- %s: %s", k, e.Metadata[k])
	}
	return b.String()
}

// Notifier 将事件发送到单个渠道。
type Notifier interface {
	Channel() Channel
	Notify(ctx context.Context, event Event) error
}

// Dispatcher 是批次编排依赖的告警出口。
type Dispatcher interface {
	Notify(ctx context.Context, event Event) error
}

// FanoutDispatcher 并发地把事件投递到每个渠道，同一渠道只保留第一个通知器。
type FanoutDispatcher struct {
	notifiers []Notifier
}

func NewFanout(notifiers ...Notifier) *FanoutDispatcher {
	d := &FanoutDispatcher{}
	seen := make(map[Channel]bool, len(notifiers))
	for _, n := range notifiers {
		if n == nil || seen[n.Channel()] {
			continue
		}
		seen[n.Channel()] = true
		d.notifiers = append(d.notifiers, n)
	}
	return d
}

// Len 返回渠道数量。
func (d *FanoutDispatcher) Len() int {
	if d == nil {
		return 0
	}
	return len(d.notifiers)
}

// Notify 等待所有渠道返回，失败的渠道错误合并后返回。
func (d *FanoutDispatcher) Notify(ctx context.Context, event Event) error {
	if d.Len() == 0 {
		return nil
	}
	errs := make([]error, len(d.notifiers))
	var g errgroup.Group
	for i, n := range d.notifiers {
		g.Go(func() error {
			if err := n.Notify(ctx, event); err != nil {
				errs[i] = fmt.Errorf("channel %s: %w", n.Channel(), err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// WebhookNotifier 将事件原样以 JSON POST 到任意地址。
type WebhookNotifier struct {
	Sender *WebhookSender
}

func (n *WebhookNotifier) Channel() Channel { return ChannelWebhook }

func (n *WebhookNotifier) Notify(ctx context.Context, event Event) error {
	if n == nil || n.Sender == nil {
		return errors.New("webhook sender is not configured")
	}
	return n.Sender.Send(ctx, event)
}

// TextNotifier 把事件渲染成文本后交给聊天机器人类 webhook。
type TextNotifier struct {
	channel Channel
	render  func(Event) string
	payload func(text string) any
	sender  *WebhookSender
}

// NewDingTalkNotifier 通过钉钉自定义机器人发送文本消息。
func NewDingTalkNotifier(sender *WebhookSender) *TextNotifier {
	return &TextNotifier{
		channel: ChannelDingTalk,
		render:  Event.Text,
		payload: func(text string) any {
			return map[string]any{"msgtype": "text", "text": map[string]string{"content": text}}
		},
		sender: sender,
	}
}

// NewSlackNotifier 通过 Slack incoming webhook 发送消息；channel 为空时使用
// webhook 绑定的默认频道。
func NewSlackNotifier(sender *WebhookSender, channel string) *TextNotifier {
	return &TextNotifier{
		channel: ChannelSlack,
		render: func(e Event) string {
			return fmt.Sprintf("*[%s]* %s - %s (完成 %d/%d, 失败 %d)",
				e.Severity, e.Code, e.Message, e.Completed, e.Total, e.Failed)
		},
		payload: func(text string) any {
			body := map[string]string{"text": text}
			if channel != "" {
				body["channel"] = channel
			}
			return body
		},
		sender: sender,
	}
}

func (n *TextNotifier) Channel() Channel { return n.channel }

func (n *TextNotifier) Notify(ctx context.Context, event Event) error {
	if n.sender == nil {
		return fmt.Errorf("%s sender is not configured", n.channel)
	}
	return n.sender.Send(ctx, n.payload(n.render(event)))
}
