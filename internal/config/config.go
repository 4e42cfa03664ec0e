package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	xerrors "AXR-Monitor/internal/errors"
	"AXR-Monitor/internal/observability/alerting"
	"AXR-Monitor/internal/task"
	"AXR-Monitor/internal/web3"
	"AXR-Monitor/pkg/logger"
)

// 环境变量名称。
const (
	EnvConfigPath   = "AXR_CONFIG"
	EnvAPIKey       = "LITE_AGENT_API_KEY"
	EnvChatID       = "CHAT_ID"
	EnvAPIKeyMap    = "CHAT_API_KEY_MAP"
	EnvAgentAddress = "AXELROD_AGENT_ADDRESS"
	EnvBatchCount   = "BATCH_TRANSACTION_COUNT"
	EnvSwapParams   = "SWAP_PARAMS"
	EnvAPIBaseURL   = "AXR_API_BASE_URL"
	EnvLogLevel     = "AXR_LOG_LEVEL"
	EnvRPCURL       = "AXR_RPC_URL"
)

// 默认值。
const (
	DefaultAgentAddress = "0x999A1B6033998A05F7e37e4BD471038dF46624E1"
	DefaultBatchCount   = 10
	DefaultBaseURL      = "https://claw-api.virtuals.io"
	DefaultHTTPTimeout  = 30 * time.Second
	DefaultEventBuffer  = 4096
)

// Config 描述了 axrctl 在启动阶段需要加载的全部配置。
type Config struct {
	API      APIConfig       `yaml:"api"`
	Auth     AuthConfig      `yaml:"auth"`
	Agent    AgentConfig     `yaml:"agent"`
	Batch    BatchConfig     `yaml:"batch"`
	Logging  logger.Config   `yaml:"logging"`
	Web3     web3.Config     `yaml:"web3"`
	Metrics  MetricsConfig   `yaml:"metrics"`
	Alerting alerting.Config `yaml:"alerting"`
	Events   EventsConfig    `yaml:"events"`

	// Warnings 记录加载过程中被忽略的非法取值，由调用方决定如何输出。
	Warnings []string `yaml:"-"`

	// 环境变量显式给出 0 时保留 0，不再套用默认批次大小。
	batchCountSet bool
}

// APIConfig 控制访问 ACP 市场接口的方式。
type APIConfig struct {
	BaseURL   string        `yaml:"base_url"`
	Timeout   time.Duration `yaml:"timeout"`
	RateLimit float64       `yaml:"rate_limit"`
	RateBurst int           `yaml:"rate_burst"`
}

// AuthConfig 包含白名单与旧版单一凭据。
type AuthConfig struct {
	APIKey    string `yaml:"api_key"`
	ChatID    string `yaml:"chat_id"`
	Whitelist string `yaml:"whitelist"`
}

// AgentConfig 指定执行兑换任务的代理钱包。
type AgentConfig struct {
	Address string `yaml:"address"`
}

// BatchConfig 控制批量任务的规模与轮询预算。Count 为 0 时使用默认值，
// 需要空批次时在命令行显式传入 0。
type BatchConfig struct {
	Count        int                `yaml:"count"`
	Swaps        []task.SwapRequest `yaml:"swaps"`
	MaxPolls     int                `yaml:"max_polls"`
	PollInterval time.Duration      `yaml:"poll_interval"`
	Offering     string             `yaml:"offering"`
}

// MetricsConfig 控制 Prometheus 指标的导出方式，两个字段均可为空。
type MetricsConfig struct {
	Textfile   string `yaml:"textfile"`
	ListenAddr string `yaml:"listen_addr"`
}

// EventsConfig 描述批次事件的发布目标，未填写地址的后端不会启用。
type EventsConfig struct {
	Redis    task.RedisPublisherConfig `yaml:"redis"`
	RabbitMQ task.RabbitMQConfig       `yaml:"rabbitmq"`
	Memory   MemoryEventsConfig        `yaml:"memory"`
}

// MemoryEventsConfig 启用进程内事件缓冲，批次结束后事件随 transaction 输出一并打印。
type MemoryEventsConfig struct {
	Enabled bool `yaml:"enabled"`
	Buffer  int  `yaml:"buffer"`
}

// LookupFunc 与 os.LookupEnv 签名一致，便于测试注入环境变量。
type LookupFunc func(key string) (string, bool)

// Load 解析指定路径的 YAML 配置文件（可为空）并叠加进程环境变量。
func Load(path string) (*Config, error) {
	return LoadWithEnv(path, os.LookupEnv)
}

// LoadWithEnv 与 Load 相同，但从 lookup 读取环境变量。
func LoadWithEnv(path string, lookup LookupFunc) (*Config, error) {
	if lookup == nil {
		lookup = func(string) (string, bool) { return "", false }
	}

	var cfg Config
	if path = strings.TrimSpace(path); path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "读取配置文件失败",
				xerrors.WithMetadata("path", path))
		}
		if err := yaml.Unmarshal(content, &cfg); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "解析配置失败",
				xerrors.WithMetadata("path", path))
		}
	}

	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv 使用环境变量覆盖文件中的同名配置。
func (c *Config) applyEnv(lookup LookupFunc) error {
	setString := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = v
		}
	}

	setString(EnvAPIKey, &c.Auth.APIKey)
	setString(EnvChatID, &c.Auth.ChatID)
	setString(EnvAPIKeyMap, &c.Auth.Whitelist)
	setString(EnvAgentAddress, &c.Agent.Address)
	setString(EnvAPIBaseURL, &c.API.BaseURL)
	setString(EnvLogLevel, &c.Logging.Level)
	setString(EnvRPCURL, &c.Web3.RPCURL)

	if v, ok := lookup(EnvBatchCount); ok && strings.TrimSpace(v) != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return xerrors.Newf(xerrors.CodeInvalidArgument,
				"%s must be an integer, got %q", EnvBatchCount, v)
		}
		c.Batch.Count = n
		c.batchCountSet = true
	}

	if v, ok := lookup(EnvSwapParams); ok && strings.TrimSpace(v) != "" {
		swaps, err := task.ParseSwapParams(v)
		if err != nil {
			// 与文件配置不同，环境变量中的兑换参数解析失败时回退到默认值。
			c.warnf("failed to parse %s, using defaults: %v", EnvSwapParams, err)
			c.Batch.Swaps = task.DefaultSwapParams()
		} else {
			c.Batch.Swaps = swaps
		}
	}
	return nil
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults() {
	if c.API.BaseURL == "" {
		c.API.BaseURL = DefaultBaseURL
	}
	if c.API.Timeout <= 0 {
		c.API.Timeout = DefaultHTTPTimeout
	}
	if c.Agent.Address == "" {
		c.Agent.Address = DefaultAgentAddress
	}
	if c.Batch.Count == 0 && !c.batchCountSet {
		c.Batch.Count = DefaultBatchCount
	}
	if len(c.Batch.Swaps) == 0 {
		c.Batch.Swaps = task.DefaultSwapParams()
	}
	if c.Batch.MaxPolls <= 0 {
		c.Batch.MaxPolls = task.DefaultMaxPolls
	}
	if c.Batch.PollInterval <= 0 {
		c.Batch.PollInterval = task.DefaultPollInterval
	}
	if c.Batch.Offering == "" {
		c.Batch.Offering = task.DefaultOffering
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Web3.Name == "" {
		c.Web3.Name = "base"
	}
	if c.Events.Memory.Enabled && c.Events.Memory.Buffer <= 0 {
		c.Events.Memory.Buffer = DefaultEventBuffer
	}
}

// Validate 校验配置并将代理地址规范化为校验和格式。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	addr, err := web3.ParseAddress(c.Agent.Address)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "invalid agent address",
			xerrors.WithMetadata("address", c.Agent.Address))
	}
	c.Agent.Address = addr.Hex()

	if c.Batch.Count < 0 {
		return xerrors.Newf(xerrors.CodeInvalidArgument, "batch count must not be negative, got %d", c.Batch.Count)
	}
	for i, swap := range c.Batch.Swaps {
		if err := swap.Validate(); err != nil {
			return xerrors.Wrap(xerrors.CodeInvalidArgument, err, fmt.Sprintf("invalid swap #%d", i+1))
		}
	}
	if c.API.RateLimit < 0 || c.API.RateBurst < 0 {
		return xerrors.New(xerrors.CodeInvalidArgument, "api rate limit must not be negative")
	}
	return nil
}

func (c *Config) warnf(format string, args ...any) {
	c.Warnings = append(c.Warnings, fmt.Sprintf(format, args...))
}
