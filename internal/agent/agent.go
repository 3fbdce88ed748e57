package agent

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"AgoraChain/internal/directory"
	xerrors "AgoraChain/internal/errors"
	"AgoraChain/internal/funding"
	"AgoraChain/internal/llm"
	"AgoraChain/internal/observability/alerting"
	"AgoraChain/internal/observability/metrics"
	"AgoraChain/internal/proposal"
	"AgoraChain/internal/protocol"
	"AgoraChain/internal/session"
	"AgoraChain/internal/wallet"
	"AgoraChain/pkg/logger"
)

// Message 描述一次成员请求。除消息正文外，成员可按请求覆盖会话的
// 指令文本与采样参数；留空的字段回落到 Agent 的默认配置。
type Message struct {
	Text         string
	Instructions string
	Temperature  *float64
	MaxTokens    int
}

// Result 汇总一次成员消息处理的完整结果。
// Response 始终可用；只有模型决定执行资助时 Proposal 才非空。
type Result struct {
	Response  string                `json:"response"`
	Intent    protocol.ParsedIntent `json:"intent"`
	ThreadID  string                `json:"thread_id"`
	Proposal  *proposal.Attempt     `json:"proposal,omitempty"`
	CreatedAt int64                 `json:"created_at"`
}

// Agent 协调大模型会话、余额补足与提案提交，是系统的业务核心。
type Agent struct {
	llmClient llm.Client
	wallet    *wallet.Store
	submitter *proposal.Submitter

	sessions  *session.Cache
	directory directory.Provider
	funding   *funding.Supervisor
	store     proposal.Store
	notifier  proposal.Producer
	alerts    alerting.Dispatcher

	instructions string
	temperature  float64
	maxTokens    int

	gasBuffer      *big.Int
	proposalWindow time.Duration
	runTimeout     time.Duration

	log *slog.Logger
}

// Option 定义可选的 Agent 配置。
type Option func(*Agent)

// WithDirectory 配置职业收款目录，用于在推理前补充收款人上下文。
func WithDirectory(provider directory.Provider) Option {
	return func(a *Agent) {
		a.directory = provider
	}
}

// WithFunding 配置余额补足监督器。
func WithFunding(supervisor *funding.Supervisor) Option {
	return func(a *Agent) {
		a.funding = supervisor
	}
}

// WithProposalStore 配置提案台账。
func WithProposalStore(store proposal.Store) Option {
	return func(a *Agent) {
		a.store = store
	}
}

// WithProposalNotifier 配置提案确认通知队列。
func WithProposalNotifier(producer proposal.Producer) Option {
	return func(a *Agent) {
		a.notifier = producer
	}
}

// WithAlertDispatcher 配置告警分发器。
func WithAlertDispatcher(dispatcher alerting.Dispatcher) Option {
	return func(a *Agent) {
		a.alerts = dispatcher
	}
}

// WithSessionConfig 设置会话的默认指令与采样参数，单条请求可覆盖。
func WithSessionConfig(instructions string, temperature float64, maxTokens int) Option {
	return func(a *Agent) {
		a.instructions = instructions
		a.temperature = temperature
		a.maxTokens = maxTokens
	}
}

// WithGasBuffer 设置提交提案交易所需预留的 gas 余量（wei），即补足目标。
func WithGasBuffer(buffer *big.Int) Option {
	return func(a *Agent) {
		if buffer != nil && buffer.Sign() >= 0 {
			a.gasBuffer = new(big.Int).Set(buffer)
		}
	}
}

// WithProposalWindow 设置提案的投票窗口时长。
func WithProposalWindow(window time.Duration) Option {
	return func(a *Agent) {
		if window > 0 {
			a.proposalWindow = window
		}
	}
}

// WithRunTimeout 设置单次消息处理的总体时限。
func WithRunTimeout(timeout time.Duration) Option {
	return func(a *Agent) {
		if timeout <= 0 {
			a.runTimeout = 0
			return
		}
		a.runTimeout = timeout
	}
}

// WithAgentLogger 注入自定义日志器。
func WithAgentLogger(log *slog.Logger) Option {
	return func(a *Agent) {
		if log != nil {
			a.log = log
		}
	}
}

// defaultGasBuffer 对应 0.00001 以太，覆盖一笔提案交易的 gas 开销。
var defaultGasBuffer = big.NewInt(10_000_000_000_000)

const defaultProposalWindow = 24 * time.Hour

// New 创建一个 Agent。钱包与提交器可为空，此时代理退化为纯对话模式，
// 遇到支付意图会返回初始化错误。
func New(llmClient llm.Client, walletStore *wallet.Store, submitter *proposal.Submitter, opts ...Option) *Agent {
	ag := &Agent{
		llmClient:      llmClient,
		wallet:         walletStore,
		submitter:      submitter,
		sessions:       session.NewCache(),
		gasBuffer:      new(big.Int).Set(defaultGasBuffer),
		proposalWindow: defaultProposalWindow,
		log:            logger.Named("agent"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(ag)
		}
	}
	return ag
}

// HandleMessage 处理一条成员消息：生成回复、提取支付意图，
// 并在模型决定执行时完成补足与提案上链。
func (a *Agent) HandleMessage(ctx context.Context, msg Message) (*Result, error) {
	if a.llmClient == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置大模型客户端")
	}
	if strings.TrimSpace(msg.Text) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "成员消息不能为空")
	}

	if a.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.runTimeout)
		defer cancel()
	}

	if a.directory != nil {
		if matched := a.directory.Query(msg.Text); len(matched) > 0 {
			professions := make([]string, 0, len(matched))
			for _, entry := range matched {
				professions = append(professions, entry.Profession)
			}
			a.log.Debug("消息命中收款目录", "professions", strings.Join(professions, "，"))
		}
	}

	sess, err := a.acquireSession(msg)
	if err != nil {
		return nil, err
	}

	replyText, err := sess.Ask(ctx, msg.Text)
	if err != nil {
		if stdErrors.Is(err, context.DeadlineExceeded) {
			return nil, xerrors.Wrap(xerrors.CodeTimeout, err, "大模型推理超时")
		}
		return nil, err
	}

	intent := protocol.Extract(replyText)
	result := &Result{
		Response:  replyText,
		Intent:    intent,
		ThreadID:  sess.ThreadID(),
		CreatedAt: time.Now().Unix(),
	}
	if intent.Response != "" {
		result.Response = intent.Response
	}

	if !intent.RequestsPayment() {
		return result, nil
	}
	return a.executePayment(ctx, result)
}

// executePayment 执行支付意图：换算金额、补足余额、上链并落账。
// 金额换算放在任何网络交互之前，换算失败时整条流水线直接终止。
func (a *Agent) executePayment(ctx context.Context, result *Result) (*Result, error) {
	intent := result.Intent

	valueWei, err := proposal.ToWei(intent.Amount)
	if err != nil {
		return result, err
	}
	target, err := wallet.ParseAddress(intent.WalletAddress)
	if err != nil {
		return result, err
	}

	if a.wallet == nil || a.submitter == nil {
		return result, xerrors.New(xerrors.CodeInitializationFailure, "未配置钱包或提案提交器")
	}
	identity, err := a.wallet.Acquire()
	if err != nil {
		return result, err
	}

	// 同一身份的出账串行化，避免 nonce 竞争。
	identity.Reserve()
	defer identity.Release()

	attempt := proposal.NewAttempt(target, valueWei, time.Now().Add(a.proposalWindow))
	result.Proposal = attempt

	// 提案金额只作为合约参数上链，交易本身不转账，
	// 因此补足目标只需覆盖 gas 余量。
	required := new(big.Int).Set(a.gasBuffer)
	if a.funding != nil {
		if !a.funding.EnsureFunded(ctx, identity.Address(), required) {
			attempt.FundingAttempts = a.funding.MaxAttempts()
			attempt.Status = proposal.StatusFailed
			fundErr := xerrors.New(xerrors.CodeFundingExhausted, "余额补足在限定次数内未达标",
				xerrors.WithMetadata("required_wei", required.String()),
				xerrors.WithMetadata("account", identity.Address().Hex()))
			a.dispatchAlert(ctx, attempt, fundErr)
			metrics.ObserveProposal(string(proposal.StatusFailed))
			return result, fundErr
		}
	}

	txHash, err := a.submitter.Submit(ctx, identity, attempt)
	if err != nil {
		a.dispatchAlert(ctx, attempt, err)
		metrics.ObserveProposal(string(proposal.StatusFailed))
		return result, err
	}
	metrics.ObserveProposal(string(proposal.StatusSucceeded))

	record := &proposal.Record{
		ID:        attempt.ID,
		Title:     intent.Title,
		Decision:  intent.Decision,
		Summary:   intent.Summary,
		AmountWei: valueWei.String(),
		Target:    target.Hex(),
		TxHash:    txHash,
		Deadline:  attempt.Deadline.Unix(),
	}
	// 交易已经上链，台账与通知失败只记录不回滚。
	if a.store != nil {
		if err := a.store.Save(ctx, record); err != nil {
			a.log.Error("保存提案台账失败", "proposal_id", record.ID, "error", err)
		}
	}
	if a.notifier != nil {
		if err := a.notifier.Publish(ctx, record.ID); err != nil {
			a.log.Error("投递提案通知失败", "proposal_id", record.ID, "error", err)
		}
	}
	return result, nil
}

// acquireSession 按请求覆盖后的会话配置指纹复用或创建长期会话。
// 同一配置并发首次访问也只会创建一个会话。
func (a *Agent) acquireSession(msg Message) (*session.Session, error) {
	instructions := a.instructions
	if strings.TrimSpace(msg.Instructions) != "" {
		instructions = msg.Instructions
	}
	temperature := a.temperature
	if msg.Temperature != nil {
		temperature = *msg.Temperature
	}
	maxTokens := a.maxTokens
	if msg.MaxTokens > 0 {
		maxTokens = msg.MaxTokens
	}

	fingerprint := session.NewFingerprint(instructions, temperature, maxTokens)
	return a.sessions.GetOrCreate(fingerprint, func() (*session.Session, error) {
		var entries []llm.DirectoryEntry
		if a.directory != nil {
			entries = a.directory.All()
		}
		return session.New(a.llmClient, session.Config{
			Instructions: instructions,
			Temperature:  temperature,
			MaxTokens:    maxTokens,
			Directory:    entries,
		})
	})
}

// Sessions 返回当前缓存的会话数量，供健康检查上报。
func (a *Agent) Sessions() int {
	if a == nil || a.sessions == nil {
		return 0
	}
	return a.sessions.Len()
}

func (a *Agent) dispatchAlert(ctx context.Context, attempt *proposal.Attempt, cause error) {
	if a.alerts == nil {
		return
	}
	if !xerrors.ShouldAlert(cause) {
		return
	}
	event := alerting.Event{
		Code:            xerrors.CodeOf(cause),
		Message:         cause.Error(),
		Severity:        xerrors.SeverityOf(cause),
		ProposalID:      attempt.ID,
		FundingAttempts: attempt.FundingAttempts,
		OccurredAt:      time.Now(),
	}
	if a.funding != nil {
		event.MaxAttempts = a.funding.MaxAttempts()
	}
	if err := a.alerts.Notify(ctx, event); err != nil {
		a.log.Error("发送告警失败", "proposal_id", attempt.ID, "error", err)
	}
}
