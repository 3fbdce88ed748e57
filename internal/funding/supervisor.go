package funding

import (
	"context"
	"log/slog"
	"math/big"
	"time"

	"AgoraChain/pkg/logger"

	"github.com/ethereum/go-ethereum/common"
)

const (
	// defaultMaxAttempts 是默认的充值尝试上限。
	defaultMaxAttempts = 3
	// defaultSettleWait 是充值确认后信任余额读取前的沉降等待。
	defaultSettleWait = 5 * time.Second
)

// PendingTopUp 表示一次进行中的充值操作。
type PendingTopUp interface {
	// Await 阻塞直到充值操作本身报告完成。
	Await(ctx context.Context) error
}

// Source 是外部资金来源（如测试网水龙头）的边界。
type Source interface {
	RequestTopUp(ctx context.Context, account common.Address) (PendingTopUp, error)
}

// BalanceReader 提供余额读取能力，由链客户端实现。
type BalanceReader interface {
	BalanceAt(ctx context.Context, account common.Address) (*big.Int, error)
}

// Supervisor 以有界重试保证账户达到目标余额。
type Supervisor struct {
	source      Source
	balances    BalanceReader
	maxAttempts int
	settleWait  time.Duration
	sleep       func(ctx context.Context, d time.Duration) bool
	log         *slog.Logger
}

// Option 定义可选的监督器配置。
type Option func(*Supervisor)

// WithMaxAttempts 设置充值尝试上限。
func WithMaxAttempts(attempts int) Option {
	return func(s *Supervisor) {
		if attempts > 0 {
			s.maxAttempts = attempts
		}
	}
}

// WithSettleWait 设置沉降等待时长。
func WithSettleWait(wait time.Duration) Option {
	return func(s *Supervisor) {
		if wait > 0 {
			s.settleWait = wait
		}
	}
}

// WithSleep 注入等待实现，测试中可替换为即时返回的假时钟。
func WithSleep(sleep func(ctx context.Context, d time.Duration) bool) Option {
	return func(s *Supervisor) {
		if sleep != nil {
			s.sleep = sleep
		}
	}
}

// WithLogger 指定日志输出。
func WithLogger(log *slog.Logger) Option {
	return func(s *Supervisor) {
		if log != nil {
			s.log = log
		}
	}
}

// NewSupervisor 构造资金监督器。
func NewSupervisor(source Source, balances BalanceReader, opts ...Option) *Supervisor {
	s := &Supervisor{
		source:      source,
		balances:    balances,
		maxAttempts: defaultMaxAttempts,
		settleWait:  defaultSettleWait,
		sleep:       sleepWithContext,
		log:         logger.Named("funding"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// EnsureFunded 保证账户余额不低于 required，返回是否成功。
// "限时内未能充值到位"是预期中的可恢复状况，因此返回布尔值而非错误。
// 余额已足时立即成功，不发起任何网络调用；否则至多尝试 maxAttempts 次
// 充值，每次确认后等待沉降间隔再复读余额。单次尝试中的网络错误只记录
// 日志，不中断重试循环；耗尽预算后做最后一次余额读取并据此判定。
func (s *Supervisor) EnsureFunded(ctx context.Context, account common.Address, required *big.Int) bool {
	if required == nil || required.Sign() <= 0 {
		return true
	}

	if balance, err := s.readBalance(ctx, account); err == nil && balance.Cmp(required) >= 0 {
		return true
	}

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		s.topUp(ctx, account, attempt)

		if !s.sleep(ctx, s.settleWait) {
			return false
		}
		balance, err := s.readBalance(ctx, account)
		if err == nil && balance.Cmp(required) >= 0 {
			s.log.Info("充值到位",
				slog.String("account", account.Hex()),
				slog.Int("attempt", attempt))
			return true
		}

		if attempt < s.maxAttempts {
			if !s.sleep(ctx, s.settleWait) {
				return false
			}
		}
	}

	// 尝试预算耗尽后的最终判定读取。
	balance, err := s.readBalance(ctx, account)
	if err != nil {
		return false
	}
	funded := balance.Cmp(required) >= 0
	if !funded {
		s.log.Warn("充值尝试耗尽仍未达到目标余额",
			slog.String("account", account.Hex()),
			slog.String("balance", balance.String()),
			slog.String("required", required.String()),
			slog.Int("attempts", s.maxAttempts))
	}
	return funded
}

// MaxAttempts 返回配置的充值尝试上限。
func (s *Supervisor) MaxAttempts() int {
	return s.maxAttempts
}

func (s *Supervisor) topUp(ctx context.Context, account common.Address, attempt int) {
	pending, err := s.source.RequestTopUp(ctx, account)
	if err != nil {
		s.log.Warn("请求充值失败",
			slog.String("account", account.Hex()),
			slog.Int("attempt", attempt),
			slog.Any("error", err))
		return
	}
	if err := pending.Await(ctx); err != nil {
		s.log.Warn("等待充值完成失败",
			slog.String("account", account.Hex()),
			slog.Int("attempt", attempt),
			slog.Any("error", err))
	}
}

func (s *Supervisor) readBalance(ctx context.Context, account common.Address) (*big.Int, error) {
	balance, err := s.balances.BalanceAt(ctx, account)
	if err != nil {
		s.log.Warn("读取余额失败",
			slog.String("account", account.Hex()),
			slog.Any("error", err))
		return nil, err
	}
	return balance, nil
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
