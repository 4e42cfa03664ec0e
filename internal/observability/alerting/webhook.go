package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultWebhookTimeout = 10 * time.Second

// WebhookSender 向固定地址 POST JSON 消息。
type WebhookSender struct {
	URL    string
	Client *http.Client
}

// NewWebhookSender 创建 webhook 发送器。
func NewWebhookSender(url string, client *http.Client) (*WebhookSender, error) {
	if url == "" {
		return nil, errors.New("webhook url is empty")
	}
	if client == nil {
		client = &http.Client{Timeout: defaultWebhookTimeout}
	}
	return &WebhookSender{URL: url, Client: client}, nil
}

// Send 以 JSON 编码 payload 并发送。
func (s *WebhookSender) Send(ctx context.Context, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode webhook payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, bytes.TrimSpace(data))
	}
	return nil
}

// Config 描述告警渠道配置。
type Config struct {
	WebhookURL         string `yaml:"webhook_url"`
	SlackWebhookURL    string `yaml:"slack_webhook_url"`
	SlackChannel       string `yaml:"slack_channel"`
	DingTalkWebhookURL string `yaml:"dingtalk_webhook_url"`
}

// FromConfig 根据配置构造广播器；未配置任何渠道时返回 nil。
func FromConfig(cfg Config, client *http.Client) (*FanoutDispatcher, error) {
	var notifiers []Notifier
	if cfg.WebhookURL != "" {
		sender, err := NewWebhookSender(cfg.WebhookURL, client)
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, &WebhookNotifier{Sender: sender})
	}
	if cfg.SlackWebhookURL != "" {
		sender, err := NewWebhookSender(cfg.SlackWebhookURL, client)
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, NewSlackNotifier(sender, cfg.SlackChannel))
	}
	if cfg.DingTalkWebhookURL != "" {
		sender, err := NewWebhookSender(cfg.DingTalkWebhookURL, client)
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, NewDingTalkNotifier(sender))
	}
	if len(notifiers) == 0 {
		return nil, nil
	}
	return NewFanout(notifiers...), nil
}
