package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// defaultInstructions 是内置的治理代理系统提示词。
// 它要求模型以固定的标签字段输出支付意图，供协议解析层提取。
const defaultInstructions = `你是一个服务于公益 DAO 的治理代理，负责评估成员的资助请求并决定是否发起链上提案。

当你决定发起一笔资助时，必须严格按顺序输出以下标签字段：

[Title]: 提案标题
[Decision]: EXECUTE 或 REJECT
[Summary]: 一句话总结理由
[Response]: 给成员的完整回复
[Amount]: 转账金额（以太为单位的十进制数，例如 0.0008）
[Wallet Address]: 收款地址（0x 开头的十六进制地址）

拒绝资助时省略 [Amount] 与 [Wallet Address]。普通对话不输出任何标签。`

// Config 描述了 agorad 在启动阶段需要加载的核心配置。
type Config struct {
	Server    ServerConfig    `json:"server"`
	LLM       LLMConfig       `json:"llm"`
	Chain     ChainConfig     `json:"chain"`
	Wallet    WalletConfig    `json:"wallet"`
	Funding   FundingConfig   `json:"funding"`
	Pipeline  PipelineConfig  `json:"pipeline"`
	Storage   StorageConfig   `json:"storage"`
	Notify    NotifyConfig    `json:"notify"`
	Alerting  AlertingConfig  `json:"alerting"`
	Directory DirectoryConfig `json:"directory"`
	Runtime   RuntimeConfig   `json:"runtime"`
	Log       LogConfig       `json:"log"`
}

// ServerConfig 控制 API 服务的监听地址等参数。
type ServerConfig struct {
	Address string `json:"address"`
}

// LLMConfig 用于配置大模型推理的调用方式与会话参数。
type LLMConfig struct {
	Provider     string       `json:"provider"`
	OpenAI       OpenAIConfig `json:"openai"`
	Instructions string       `json:"instructions"`
	Temperature  float64      `json:"temperature"`
	MaxTokens    int          `json:"max_tokens"`
}

// OpenAIConfig 描述调用 OpenAI 兼容接口所需的信息。
type OpenAIConfig struct {
	APIKey         string `json:"api_key"`
	APIKeyEnv      string `json:"api_key_env"`
	BaseURL        string `json:"base_url"`
	Model          string `json:"model"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// Timeout 返回请求超时时间。
func (c OpenAIConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ChainConfig 包含访问区块链节点与治理合约所需的信息。
// ChainConfig 字段指向多链定义文件（YAML），RPCURL 提供单链兜底。
type ChainConfig struct {
	ChainConfig      string `json:"chain_config"`
	DefaultChain     string `json:"default_chain"`
	RPCURL           string `json:"rpc_url"`
	ProposalContract string `json:"proposal_contract"`
	GasLimit         uint64 `json:"gas_limit"`
}

// WalletConfig 控制代理身份种子的落盘与加密。
// 口令只通过环境变量注入，不写入配置文件。
type WalletConfig struct {
	DataDir       string `json:"data_dir"`
	PassphraseEnv string `json:"passphrase_env"`
}

// AlertingConfig 配置告警通知渠道，留空的渠道不会注册。
type AlertingConfig struct {
	DingTalkWebhook string `json:"dingtalk_webhook"`
	SlackWebhook    string `json:"slack_webhook"`
	SlackChannel    string `json:"slack_channel"`
}

// Enabled 返回是否配置了任意告警渠道。
func (c AlertingConfig) Enabled() bool {
	return c.DingTalkWebhook != "" || c.SlackWebhook != ""
}

// FundingConfig 控制余额补足的水龙头端点与重试节奏。
type FundingConfig struct {
	FaucetURL         string `json:"faucet_url"`
	MaxAttempts       int    `json:"max_attempts"`
	SettleWaitSeconds int    `json:"settle_wait_seconds"`
}

// PipelineConfig 控制单次消息处理的总体预算。
type PipelineConfig struct {
	GasBuffer           string `json:"gas_buffer"`
	RunTimeoutSeconds   int    `json:"run_timeout_seconds"`
	ProposalWindowHours int    `json:"proposal_window_hours"`
}

// RunTimeout 返回单次消息处理的最长时间。
func (c PipelineConfig) RunTimeout() time.Duration {
	if c.RunTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.RunTimeoutSeconds) * time.Second
}

// ProposalWindow 返回提案投票窗口时长。
func (c PipelineConfig) ProposalWindow() time.Duration {
	return time.Duration(c.ProposalWindowHours) * time.Hour
}

// StorageConfig 统一描述提案台账后端的连接信息。
type StorageConfig struct {
	ProposalStore ProposalStoreConfig `json:"proposal_store"`
}

// ProposalStoreConfig 支持内存实现与 MySQL 实现之间切换。
type ProposalStoreConfig struct {
	Driver string `json:"driver"`
	DSN    string `json:"dsn"`
}

// NotifyConfig 描述提案确认通知队列。
type NotifyConfig struct {
	Driver   string             `json:"driver"`
	Workers  int                `json:"workers"`
	Redis    RedisNotifyConfig  `json:"redis"`
	RabbitMQ RabbitNotifyConfig `json:"rabbitmq"`
}

// RedisNotifyConfig 描述 Redis 通知队列的连接参数。
type RedisNotifyConfig struct {
	Address          string `json:"address"`
	Password         string `json:"password"`
	DB               int    `json:"db"`
	Queue            string `json:"queue"`
	BlockWaitSeconds int    `json:"block_wait_seconds"`
}

// RabbitNotifyConfig 描述 RabbitMQ 通知队列的连接参数。
type RabbitNotifyConfig struct {
	URL        string `json:"url"`
	Queue      string `json:"queue"`
	Prefetch   int    `json:"prefetch"`
	Durable    bool   `json:"durable"`
	AutoDelete bool   `json:"auto_delete"`
}

// DirectoryConfig 指向职业收款目录文件。
type DirectoryConfig struct {
	Source     string `json:"source"`
	MaxResults int    `json:"max_results"`
}

// RuntimeConfig 用于放置运行时的通用参数。
type RuntimeConfig struct {
	DataDir string `json:"data_dir"`
}

// LogConfig 控制结构化日志与审计日志的输出。
type LogConfig struct {
	Level       string         `json:"level"`
	Format      string         `json:"format"`
	OutputPaths []string       `json:"output_paths"`
	Audit       AuditLogConfig `json:"audit"`
}

// AuditLogConfig 控制审计日志的落盘与轮转。
type AuditLogConfig struct {
	Enabled    bool   `json:"enabled"`
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
}

// Load 负责解析指定路径的 JSON 配置文件。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开配置文件失败: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.applyDefaults(filepath.Dir(path))

	return &cfg, nil
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}

	if c.LLM.Provider == "" {
		c.LLM.Provider = "openai"
	}
	if c.LLM.OpenAI.APIKeyEnv == "" {
		c.LLM.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
	}
	if c.LLM.Instructions == "" {
		c.LLM.Instructions = defaultInstructions
	}
	if c.LLM.Temperature <= 0 {
		c.LLM.Temperature = 0.2
	}
	if c.LLM.MaxTokens <= 0 {
		c.LLM.MaxTokens = 1024
	}

	if c.Chain.ChainConfig != "" && !filepath.IsAbs(c.Chain.ChainConfig) {
		c.Chain.ChainConfig = filepath.Join(baseDir, c.Chain.ChainConfig)
	}
	if c.Chain.GasLimit == 0 {
		c.Chain.GasLimit = 200_000
	}

	if c.Wallet.PassphraseEnv == "" {
		c.Wallet.PassphraseEnv = "AGORA_WALLET_PASSPHRASE"
	}

	if c.Funding.MaxAttempts <= 0 {
		c.Funding.MaxAttempts = 3
	}
	if c.Funding.SettleWaitSeconds <= 0 {
		c.Funding.SettleWaitSeconds = 5
	}

	if c.Pipeline.GasBuffer == "" {
		c.Pipeline.GasBuffer = "0.00001"
	}
	if c.Pipeline.RunTimeoutSeconds <= 0 {
		c.Pipeline.RunTimeoutSeconds = 120
	}
	if c.Pipeline.ProposalWindowHours <= 0 {
		c.Pipeline.ProposalWindowHours = 24
	}

	if c.Storage.ProposalStore.Driver == "" {
		c.Storage.ProposalStore.Driver = "memory"
	}

	if c.Notify.Driver == "" {
		c.Notify.Driver = "memory"
	}
	if c.Notify.Workers <= 0 {
		c.Notify.Workers = 1
	}

	if c.Alerting.SlackWebhook != "" && c.Alerting.SlackChannel == "" {
		c.Alerting.SlackChannel = "#agora-alerts"
	}

	if c.Directory.MaxResults <= 0 {
		c.Directory.MaxResults = 5
	}
	if c.Directory.Source != "" && !filepath.IsAbs(c.Directory.Source) {
		c.Directory.Source = filepath.Join(baseDir, c.Directory.Source)
	}

	if c.Runtime.DataDir == "" {
		c.Runtime.DataDir = filepath.Join(baseDir, "data")
	} else if !filepath.IsAbs(c.Runtime.DataDir) {
		c.Runtime.DataDir = filepath.Join(baseDir, c.Runtime.DataDir)
	}
	if c.Wallet.DataDir == "" {
		c.Wallet.DataDir = filepath.Join(c.Runtime.DataDir, "wallet")
	} else if !filepath.IsAbs(c.Wallet.DataDir) {
		c.Wallet.DataDir = filepath.Join(baseDir, c.Wallet.DataDir)
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
}
