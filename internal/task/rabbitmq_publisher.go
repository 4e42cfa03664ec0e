package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// RabbitMQConfig 描述 RabbitMQ 事件队列的连接参数。
type RabbitMQConfig struct {
	URL        string `yaml:"url"`
	Queue      string `yaml:"queue"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// RabbitMQPublisher 将事件以 JSON 消息写入 RabbitMQ 队列。
type RabbitMQPublisher struct {
	conn    *amqp.Connection
	ch      *amqp.Channel
	queue   string
	durable bool
}

// NewRabbitMQPublisher 创建 RabbitMQ 发布器并声明队列。
func NewRabbitMQPublisher(cfg RabbitMQConfig) (*RabbitMQPublisher, error) {
	if cfg.URL == "" {
		return nil, errors.New("RabbitMQ URL 不能为空")
	}
	queue := cfg.Queue
	if queue == "" {
		queue = "axr.batch-events"
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("连接 RabbitMQ 失败: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("创建 RabbitMQ channel 失败: %w", err)
	}
	_, err = ch.QueueDeclare(queue, cfg.Durable, cfg.AutoDelete, false, false, nil)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("声明 RabbitMQ 队列失败: %w", err)
	}
	return &RabbitMQPublisher{conn: conn, ch: ch, queue: queue, durable: cfg.Durable}, nil
}

// Publish 将事件投递到 RabbitMQ。
func (p *RabbitMQPublisher) Publish(ctx context.Context, event Event) error {
	if p == nil || p.ch == nil {
		return errors.New("RabbitMQ 发布器未初始化")
	}
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return p.ch.PublishWithContext(ctx, "", p.queue, false, false, newPublishing(event, body, p.durable))
}

func newPublishing(event Event, body []byte, durable bool) amqp.Publishing {
	mode := amqp.Transient
	if durable {
		mode = amqp.Persistent
	}
	return amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  mode,
		MessageId:     uuid.NewString(),
		CorrelationId: event.BatchID,
		Type:          string(event.Kind),
		Timestamp:     event.Time,
		Body:          body,
	}
}

// Close 关闭 RabbitMQ 连接。
func (p *RabbitMQPublisher) Close() error {
	if p == nil {
		return nil
	}
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
