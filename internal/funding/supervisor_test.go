package funding

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

type completedTopUp struct{}

func (completedTopUp) Await(context.Context) error { return nil }

// fakeSource 记录充值请求次数，并在每次充值后按脚本调整余额。
type fakeSource struct {
	mu       sync.Mutex
	requests int
	grant    *big.Int
	balances *fakeBalances
	err      error
}

func (f *fakeSource) RequestTopUp(ctx context.Context, account common.Address) (PendingTopUp, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests++
	if f.err != nil {
		return nil, f.err
	}
	if f.grant != nil && f.balances != nil {
		f.balances.add(f.grant)
	}
	return completedTopUp{}, nil
}

func (f *fakeSource) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests
}

type fakeBalances struct {
	mu      sync.Mutex
	balance *big.Int
	reads   int
}

func (f *fakeBalances) BalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	return new(big.Int).Set(f.balance), nil
}

func (f *fakeBalances) add(delta *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balance.Add(f.balance, delta)
}

func instantSleep(ctx context.Context, _ time.Duration) bool {
	return ctx.Err() == nil
}

func TestEnsureFundedSkipsTopUpWhenBalanceSufficient(t *testing.T) {
	balances := &fakeBalances{balance: big.NewInt(100)}
	source := &fakeSource{balances: balances}
	supervisor := NewSupervisor(source, balances, WithSleep(instantSleep))

	if !supervisor.EnsureFunded(context.Background(), common.Address{}, big.NewInt(50)) {
		t.Fatalf("expected success")
	}
	if source.count() != 0 {
		t.Fatalf("expected zero top-up requests, got %d", source.count())
	}
}

func TestEnsureFundedSucceedsAfterTopUp(t *testing.T) {
	balances := &fakeBalances{balance: big.NewInt(0)}
	source := &fakeSource{balances: balances, grant: big.NewInt(40)}
	supervisor := NewSupervisor(source, balances, WithSleep(instantSleep))

	if !supervisor.EnsureFunded(context.Background(), common.Address{}, big.NewInt(100)) {
		t.Fatalf("expected success")
	}
	// 前两次充值后余额仍不足，第三次到位。
	if source.count() != 3 {
		t.Fatalf("expected 3 top-up requests, got %d", source.count())
	}
}

func TestEnsureFundedExhaustsBoundedAttempts(t *testing.T) {
	balances := &fakeBalances{balance: big.NewInt(0)}
	source := &fakeSource{balances: balances}
	supervisor := NewSupervisor(source, balances,
		WithMaxAttempts(3),
		WithSleep(instantSleep))

	if supervisor.EnsureFunded(context.Background(), common.Address{}, big.NewInt(100)) {
		t.Fatalf("expected failure")
	}
	if source.count() != 3 {
		t.Fatalf("expected exactly 3 top-up requests, got %d", source.count())
	}
}

func TestEnsureFundedIgnoresPerAttemptErrors(t *testing.T) {
	balances := &fakeBalances{balance: big.NewInt(0)}
	source := &fakeSource{balances: balances, err: errors.New("faucet unavailable")}
	supervisor := NewSupervisor(source, balances,
		WithMaxAttempts(2),
		WithSleep(instantSleep))

	if supervisor.EnsureFunded(context.Background(), common.Address{}, big.NewInt(1)) {
		t.Fatalf("expected failure")
	}
	// 单次错误不会中断循环，预算内每次都会再尝试。
	if source.count() != 2 {
		t.Fatalf("expected 2 top-up requests, got %d", source.count())
	}
}

func TestEnsureFundedStopsOnCancelledContext(t *testing.T) {
	balances := &fakeBalances{balance: big.NewInt(0)}
	source := &fakeSource{balances: balances}
	supervisor := NewSupervisor(source, balances, WithSleep(instantSleep))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if supervisor.EnsureFunded(ctx, common.Address{}, big.NewInt(1)) {
		t.Fatalf("expected failure on cancelled context")
	}
	if source.count() > 1 {
		t.Fatalf("expected at most one request after cancellation, got %d", source.count())
	}
}

func TestEnsureFundedZeroRequirement(t *testing.T) {
	balances := &fakeBalances{balance: big.NewInt(0)}
	source := &fakeSource{balances: balances}
	supervisor := NewSupervisor(source, balances, WithSleep(instantSleep))

	if !supervisor.EnsureFunded(context.Background(), common.Address{}, big.NewInt(0)) {
		t.Fatalf("zero requirement must succeed immediately")
	}
	if source.count() != 0 {
		t.Fatalf("expected zero requests, got %d", source.count())
	}
}
