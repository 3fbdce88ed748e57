package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"AgoraChain/internal/agent"
	"AgoraChain/internal/api"
	"AgoraChain/internal/chain/provider"
	"AgoraChain/internal/config"
	"AgoraChain/internal/directory"
	"AgoraChain/internal/funding"
	"AgoraChain/internal/llm"
	"AgoraChain/internal/llm/openai"
	"AgoraChain/internal/observability/alerting"
	"AgoraChain/internal/proposal"
	"AgoraChain/internal/wallet"
	"AgoraChain/pkg/logger"
)

// main 是 Agora 治理守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("agorad 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	configPath := os.Getenv("AGORA_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("configs", "agora.json")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		OutputPaths: cfg.Log.OutputPaths,
		Audit: logger.AuditConfig{
			Enabled:    cfg.Log.Audit.Enabled,
			Path:       cfg.Log.Audit.Path,
			MaxSizeMB:  cfg.Log.Audit.MaxSizeMB,
			MaxBackups: cfg.Log.Audit.MaxBackups,
			MaxAgeDays: cfg.Log.Audit.MaxAgeDays,
		},
	}); err != nil {
		return err
	}
	defer logger.Sync()

	llmClient, err := createLLMClient(cfg)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.Runtime.DataDir, 0o755); err != nil {
		return err
	}

	walletStore, err := wallet.NewStore(cfg.Wallet.DataDir, os.Getenv(cfg.Wallet.PassphraseEnv))
	if err != nil {
		return err
	}

	chainRegistry, err := provider.NewRegistry(ctx, cfg.Chain)
	if err != nil {
		return err
	}
	defer chainRegistry.Close()

	chainClient, err := chainRegistry.DefaultClient()
	if err != nil {
		return err
	}

	submitter, err := proposal.NewSubmitter(chainClient, cfg.Chain.ProposalContract,
		proposal.WithGasLimit(cfg.Chain.GasLimit),
	)
	if err != nil {
		return err
	}

	store, err := createProposalStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	queue, err := createNotifyQueue(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := queue.Close(); err != nil {
			logger.L().Warn("关闭通知队列失败", "error", err)
		}
	}()

	opts := []agent.Option{
		agent.WithProposalStore(store),
		agent.WithProposalNotifier(queue),
		agent.WithSessionConfig(cfg.LLM.Instructions, cfg.LLM.Temperature, cfg.LLM.MaxTokens),
		agent.WithProposalWindow(cfg.Pipeline.ProposalWindow()),
		agent.WithRunTimeout(cfg.Pipeline.RunTimeout()),
	}

	gasBuffer, err := proposal.ToWei(cfg.Pipeline.GasBuffer)
	if err != nil {
		return fmt.Errorf("解析 gas 余量失败: %w", err)
	}
	opts = append(opts, agent.WithGasBuffer(gasBuffer))

	if cfg.Funding.FaucetURL != "" {
		faucet, err := funding.NewFaucetClient(funding.FaucetConfig{BaseURL: cfg.Funding.FaucetURL})
		if err != nil {
			return err
		}
		supervisor := funding.NewSupervisor(faucet, chainClient,
			funding.WithMaxAttempts(cfg.Funding.MaxAttempts),
			funding.WithSettleWait(time.Duration(cfg.Funding.SettleWaitSeconds)*time.Second),
		)
		opts = append(opts, agent.WithFunding(supervisor))
	}

	if cfg.Alerting.Enabled() {
		var notifiers []alerting.Notifier
		if cfg.Alerting.DingTalkWebhook != "" {
			notifiers = append(notifiers, &alerting.DingTalkNotifier{
				Sender: alerting.NewDingTalkWebhook(cfg.Alerting.DingTalkWebhook),
			})
		}
		if cfg.Alerting.SlackWebhook != "" {
			notifiers = append(notifiers, &alerting.SlackNotifier{
				Sender:    alerting.NewSlackWebhook(cfg.Alerting.SlackWebhook),
				ChannelID: cfg.Alerting.SlackChannel,
			})
		}
		opts = append(opts, agent.WithAlertDispatcher(alerting.NewFanout(notifiers...)))
	}

	if cfg.Directory.Source != "" {
		dir, err := directory.LoadStaticProvider(cfg.Directory.Source, cfg.Directory.MaxResults)
		if err != nil {
			return err
		}
		opts = append(opts, agent.WithDirectory(dir))
	}

	ag := agent.New(llmClient, walletStore, submitter, opts...)

	consumerCtx, consumerCancel := context.WithCancel(ctx)
	defer consumerCancel()

	go func() {
		err := queue.Consume(consumerCtx, cfg.Notify.Workers, notifyHandler(store))
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.L().Error("通知消费者异常退出", "error", err)
		}
	}()

	server := api.NewServer(cfg.Server.Address, ag,
		api.WithProposalStore(store),
		api.WithChainClient(chainClient),
	)

	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// notifyHandler 把已确认的提案写入审计日志，供下游对账。
func notifyHandler(store proposal.Store) proposal.Handler {
	return func(ctx context.Context, proposalID string) error {
		record, err := store.Get(ctx, proposalID)
		if err != nil {
			return err
		}
		logger.Audit().Info("proposal confirmed",
			"proposal_id", record.ID,
			"title", record.Title,
			"amount_wei", record.AmountWei,
			"target", record.Target,
			"tx_hash", record.TxHash,
		)
		return nil
	}
}

func createProposalStore(cfg *config.Config) (proposal.Store, error) {
	switch cfg.Storage.ProposalStore.Driver {
	case "", "memory":
		return proposal.NewMemoryStore(), nil
	case "mysql":
		return proposal.NewMySQLStore(cfg.Storage.ProposalStore.DSN)
	default:
		return nil, fmt.Errorf("未知的台账驱动: %s", cfg.Storage.ProposalStore.Driver)
	}
}

func createNotifyQueue(cfg *config.Config) (proposal.Queue, error) {
	switch cfg.Notify.Driver {
	case "", "memory":
		return proposal.NewMemoryQueue(1024), nil
	case "redis":
		return proposal.NewRedisQueue(proposal.RedisQueueConfig{
			Address:   cfg.Notify.Redis.Address,
			Password:  cfg.Notify.Redis.Password,
			DB:        cfg.Notify.Redis.DB,
			Queue:     cfg.Notify.Redis.Queue,
			BlockWait: time.Duration(cfg.Notify.Redis.BlockWaitSeconds) * time.Second,
		})
	case "rabbitmq":
		return proposal.NewRabbitMQQueue(proposal.RabbitMQConfig{
			URL:        cfg.Notify.RabbitMQ.URL,
			Queue:      cfg.Notify.RabbitMQ.Queue,
			Prefetch:   cfg.Notify.RabbitMQ.Prefetch,
			Durable:    cfg.Notify.RabbitMQ.Durable,
			AutoDelete: cfg.Notify.RabbitMQ.AutoDelete,
		})
	default:
		return nil, fmt.Errorf("未知的通知驱动: %s", cfg.Notify.Driver)
	}
}

func createLLMClient(cfg *config.Config) (llm.Client, error) {
	switch cfg.LLM.Provider {
	case "", "openai":
		apiKey := strings.TrimSpace(cfg.LLM.OpenAI.APIKey)
		if apiKey == "" && cfg.LLM.OpenAI.APIKeyEnv != "" {
			apiKey = strings.TrimSpace(os.Getenv(cfg.LLM.OpenAI.APIKeyEnv))
		}
		if apiKey == "" {
			return nil, errors.New("OpenAI provider 需要配置 api_key 或 api_key_env")
		}
		return openai.NewClient(openai.Config{
			APIKey:  apiKey,
			BaseURL: cfg.LLM.OpenAI.BaseURL,
			Model:   cfg.LLM.OpenAI.Model,
			Timeout: cfg.LLM.OpenAI.Timeout(),
		})
	default:
		return nil, fmt.Errorf("未知的 LLM provider: %s", cfg.LLM.Provider)
	}
}
