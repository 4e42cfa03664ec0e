package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"AXR-Monitor/internal/acp"
	"AXR-Monitor/internal/auth"
	"AXR-Monitor/internal/config"
	xerrors "AXR-Monitor/internal/errors"
	"AXR-Monitor/internal/observability/alerting"
	"AXR-Monitor/internal/observability/metrics"
	"AXR-Monitor/internal/task"
	"AXR-Monitor/pkg/logger"
)

const alertHTTPTimeout = 10 * time.Second

// runtime 汇集一次命令执行所需的依赖。
type runtime struct {
	cfg     *config.Config
	gate    *auth.Gate
	client  *acp.Client
	metrics *metrics.Metrics
	log     *slog.Logger

	textfile string
	closers  []func() error
	memory   *task.MemoryPublisher
}

// bootstrap 加载配置并初始化日志、访问控制、市场客户端和指标。
func (c *cli) bootstrap(ctx context.Context) (*runtime, error) {
	path := c.configPath
	if path == "" && c.lookup != nil {
		path, _ = c.lookup(config.EnvConfigPath)
	}
	cfg, err := config.LoadWithEnv(path, c.lookup)
	if err != nil {
		return nil, err
	}

	if err := logger.Init(cfg.Logging); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "初始化日志失败")
	}
	log := logger.Named("axrctl")
	for _, warning := range cfg.Warnings {
		log.Warn(warning)
	}

	entries, skipped := auth.ParseWhitelist(cfg.Auth.Whitelist)
	if skipped > 0 {
		log.Warn("ignored malformed whitelist entries", "count", skipped)
	}
	gate := auth.NewGate(entries, auth.Legacy{CallerID: cfg.Auth.ChatID, Credential: cfg.Auth.APIKey})
	log.Debug("access gate ready", "whitelist_entries", gate.Entries())

	m := metrics.Default()
	client, err := acp.NewClient(cfg.API.BaseURL,
		acp.WithHTTPClient(&http.Client{Timeout: cfg.API.Timeout}),
		acp.WithRateLimit(cfg.API.RateLimit, cfg.API.RateBurst),
		acp.WithMetrics(m),
		acp.WithLogger(logger.Named("acp")),
	)
	if err != nil {
		return nil, err
	}

	rt := &runtime{
		cfg:      cfg,
		gate:     gate,
		client:   client,
		metrics:  m,
		log:      log,
		textfile: cfg.Metrics.Textfile,
	}
	if c.metricsTextfile != "" {
		rt.textfile = c.metricsTextfile
	}
	if addr := cfg.Metrics.ListenAddr; addr != "" {
		go func() {
			if err := m.StartServer(ctx, addr); err != nil && !errors.Is(err, context.Canceled) {
				log.Warn("metrics server stopped", "addr", addr, "error", err)
			}
		}()
	}
	return rt, nil
}

// publishers 根据配置打开事件发布器，返回的观察者会把事件转发给每个发布器。
func (rt *runtime) publishers(ctx context.Context) (task.Observer, error) {
	var observers []task.Observer
	events := rt.cfg.Events
	eventLog := logger.Named("events")

	if events.Redis.Address != "" {
		p, err := task.NewRedisPublisher(ctx, events.Redis)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "初始化 Redis 事件发布失败")
		}
		rt.closers = append(rt.closers, p.Close)
		observers = append(observers, task.PublishTo(p, eventLog))
	}
	if events.RabbitMQ.URL != "" {
		p, err := task.NewRabbitMQPublisher(events.RabbitMQ)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "初始化 RabbitMQ 事件发布失败")
		}
		rt.closers = append(rt.closers, p.Close)
		observers = append(observers, task.PublishTo(p, eventLog))
	}
	if events.Memory.Enabled {
		rt.memory = task.NewMemoryPublisher(events.Memory.Buffer)
		rt.closers = append(rt.closers, rt.memory.Close)
		observers = append(observers, task.PublishTo(rt.memory, eventLog))
	}
	return task.Observers(observers...), nil
}

// drainEvents 关闭内存发布器并取出已缓冲的事件，未启用时返回 nil。
func (rt *runtime) drainEvents() []task.Event {
	if rt.memory == nil {
		return nil
	}
	_ = rt.memory.Close()
	var events []task.Event
	for e := range rt.memory.Events() {
		events = append(events, e)
	}
	return events
}

// orchestrator 构造批次编排器，告警渠道未配置时不发送告警。
func (rt *runtime) orchestrator() (*task.Orchestrator, error) {
	batch := rt.cfg.Batch
	opts := []task.OrchestratorOption{
		task.WithOffering(batch.Offering),
		task.WithPolling(batch.MaxPolls, batch.PollInterval),
		task.WithMetrics(rt.metrics),
		task.WithLogger(logger.Named("batch")),
	}

	dispatcher, err := alerting.FromConfig(rt.cfg.Alerting, &http.Client{Timeout: alertHTTPTimeout})
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "初始化告警渠道失败")
	}
	if dispatcher != nil {
		rt.log.Debug("alerting enabled", "channels", dispatcher.Len())
		opts = append(opts, task.WithAlertDispatcher(dispatcher))
	}
	return task.NewOrchestrator(rt.client, opts...), nil
}

// Close 释放发布器、导出指标文件并刷新日志。
func (rt *runtime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	if rt.textfile != "" {
		if err := rt.metrics.WriteTextfile(rt.textfile); err != nil {
			errs = append(errs, err)
		}
	}
	if err := logger.Sync(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
