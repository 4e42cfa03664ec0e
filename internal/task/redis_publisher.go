package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisPublisherConfig 描述 Redis 事件发布的连接参数。
type RedisPublisherConfig struct {
	Address      string `yaml:"address"`
	Password     string `yaml:"password"`
	DB           int    `yaml:"db"`
	Channel      string `yaml:"channel"`
	HistoryKey   string `yaml:"history_key"`
	HistoryLimit int64  `yaml:"history_limit"`
}

// RedisPublisher 通过 PUBLISH 广播事件；配置 HistoryKey 时同时保留最近的事件列表。
type RedisPublisher struct {
	client       redis.UniversalClient
	channel      string
	historyKey   string
	historyLimit int64
}

// NewRedisPublisher 创建 Redis 发布器并检查连通性。
func NewRedisPublisher(ctx context.Context, cfg RedisPublisherConfig) (*RedisPublisher, error) {
	if cfg.Address == "" {
		return nil, errors.New("Redis address 不能为空")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}
	return newRedisPublisher(client, cfg), nil
}

func newRedisPublisher(client redis.UniversalClient, cfg RedisPublisherConfig) *RedisPublisher {
	channel := cfg.Channel
	if channel == "" {
		channel = "axr:batch-events"
	}
	limit := cfg.HistoryLimit
	if limit <= 0 {
		limit = 1000
	}
	return &RedisPublisher{client: client, channel: channel, historyKey: cfg.HistoryKey, historyLimit: limit}
}

// Publish 发布事件。
func (p *RedisPublisher) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if p.historyKey == "" {
		if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
			return fmt.Errorf("Redis 发布事件失败: %w", err)
		}
		return nil
	}
	_, err = p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Publish(ctx, p.channel, payload)
		pipe.LPush(ctx, p.historyKey, payload)
		pipe.LTrim(ctx, p.historyKey, 0, p.historyLimit-1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("Redis 发布事件失败: %w", err)
	}
	return nil
}

// Close 关闭 Redis 连接。
func (p *RedisPublisher) Close() error {
	if p == nil || p.client == nil {
		return nil
	}
	return p.client.Close()
}
