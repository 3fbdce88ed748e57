package agent

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"

	"AgoraChain/internal/chain"
	xerrors "AgoraChain/internal/errors"
	"AgoraChain/internal/funding"
	"AgoraChain/internal/observability/alerting"
	"AgoraChain/internal/llm"
	"AgoraChain/internal/proposal"
	"AgoraChain/internal/wallet"
)

const paymentReply = `[Title]: 资助净水项目
[Decision]: EXECUTE
[Summary]: 项目预算合理，符合公益目标。
[Response]: 我们决定资助该净水项目。
[Amount]: 0.0008
[Wallet Address]: 0x00000000000000000000000000000000000000B2`

type stubLLM struct {
	text  string
	err   error
	wait  time.Duration
	calls int
	mu    sync.Mutex
}

func (s *stubLLM) Generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.wait > 0 {
		select {
		case <-time.After(s.wait):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return &llm.Response{Text: s.text}, nil
}

// fakeChain 实现 chain.Client，余额可被测试中的水龙头增加。
type fakeChain struct {
	mu       sync.Mutex
	balance  *big.Int
	sent     []*coretypes.Transaction
	receipts map[common.Hash]*coretypes.Receipt
}

func newFakeChain(balance *big.Int) *fakeChain {
	return &fakeChain{
		balance:  new(big.Int).Set(balance),
		receipts: make(map[common.Hash]*coretypes.Receipt),
	}
}

func (f *fakeChain) grant(amount *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balance.Add(f.balance, amount)
}

func (f *fakeChain) ChainID(context.Context) (*big.Int, error) { return big.NewInt(1337), nil }

func (f *fakeChain) BalanceAt(_ context.Context, _ common.Address) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return new(big.Int).Set(f.balance), nil
}

func (f *fakeChain) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return 0, nil
}

func (f *fakeChain) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(1), nil
}

func (f *fakeChain) SendTransaction(_ context.Context, tx *coretypes.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, tx)
	f.receipts[tx.Hash()] = &coretypes.Receipt{
		Status: coretypes.ReceiptStatusSuccessful,
		TxHash: tx.Hash(),
	}
	return nil
}

func (f *fakeChain) TransactionReceipt(_ context.Context, txHash common.Hash) (*coretypes.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	receipt, ok := f.receipts[txHash]
	if !ok {
		return nil, errors.New("not found")
	}
	return receipt, nil
}

func (f *fakeChain) FetchSnapshot(context.Context) (chain.Snapshot, error) {
	return chain.Snapshot{ChainID: "0x539"}, nil
}

func (f *fakeChain) Close() {}

var _ chain.Client = (*fakeChain)(nil)

// fakeFaucet 实现 funding.Source，按预设额度为账户充值。
type fakeFaucet struct {
	chain  *fakeChain
	grant  *big.Int
	mu     sync.Mutex
	topUps int
}

type instantTopUp struct{}

func (instantTopUp) Await(context.Context) error { return nil }

func (f *fakeFaucet) RequestTopUp(_ context.Context, _ common.Address) (funding.PendingTopUp, error) {
	f.mu.Lock()
	f.topUps++
	f.mu.Unlock()
	if f.grant != nil && f.grant.Sign() > 0 {
		f.chain.grant(f.grant)
	}
	return instantTopUp{}, nil
}

func (f *fakeFaucet) requests() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.topUps
}

func instantSleep(context.Context, time.Duration) bool { return true }

func newTestWallet(t *testing.T) *wallet.Store {
	t.Helper()
	store, err := wallet.NewStore(t.TempDir(), "test-pass",
		wallet.WithScryptParams(keystore.LightScryptN, keystore.LightScryptP))
	if err != nil {
		t.Fatalf("创建钱包存储失败: %v", err)
	}
	return store
}

// recordingProducer 记录投递过的提案 ID。
type recordingProducer struct {
	mu  sync.Mutex
	ids []string
}

func (p *recordingProducer) Publish(_ context.Context, proposalID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ids = append(p.ids, proposalID)
	return nil
}

func (p *recordingProducer) Close() error { return nil }

func TestHandleMessagePlainConversation(t *testing.T) {
	llmClient := &stubLLM{text: "你好，有什么可以帮忙的吗？"}
	ag := New(llmClient, nil, nil)

	result, err := ag.HandleMessage(context.Background(), Message{Text: "你好"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Response != "你好，有什么可以帮忙的吗？" {
		t.Fatalf("unexpected response: %s", result.Response)
	}
	if result.Intent.RequestsPayment() {
		t.Fatal("普通对话不应产生支付意图")
	}
	if result.Proposal != nil {
		t.Fatal("普通对话不应产生提案")
	}
	if result.ThreadID == "" {
		t.Fatal("期望会话线程标识非空")
	}
}

func TestHandleMessageReusesSession(t *testing.T) {
	llmClient := &stubLLM{text: "好的"}
	ag := New(llmClient, nil, nil)

	first, err := ag.HandleMessage(context.Background(), Message{Text: "第一条"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := ag.HandleMessage(context.Background(), Message{Text: "第二条"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.ThreadID != second.ThreadID {
		t.Fatalf("相同配置应复用会话: %s != %s", first.ThreadID, second.ThreadID)
	}
	if ag.Sessions() != 1 {
		t.Fatalf("期望缓存 1 个会话，实际 %d", ag.Sessions())
	}
}

// recordingDispatcher 记录收到的告警事件。
type recordingDispatcher struct {
	mu     sync.Mutex
	events []alerting.Event
}

func (d *recordingDispatcher) Notify(_ context.Context, event alerting.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event)
	return nil
}

func (d *recordingDispatcher) received() []alerting.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]alerting.Event(nil), d.events...)
}

func TestHandleMessagePerRequestConfigCreatesSessions(t *testing.T) {
	llmClient := &stubLLM{text: "好的"}
	ag := New(llmClient, nil, nil, WithSessionConfig("默认指令", 0.2, 1024))

	base, err := ag.HandleMessage(context.Background(), Message{Text: "第一条"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	temp := 0.7
	custom, err := ag.HandleMessage(context.Background(), Message{
		Text:         "第二条",
		Instructions: "只回答是或否",
		Temperature:  &temp,
		MaxTokens:    256,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if base.ThreadID == custom.ThreadID {
		t.Fatal("覆盖会话配置的请求不应复用默认会话")
	}
	if ag.Sessions() != 2 {
		t.Fatalf("期望缓存 2 个会话，实际 %d", ag.Sessions())
	}

	again, err := ag.HandleMessage(context.Background(), Message{
		Text:         "第三条",
		Instructions: "只回答是或否",
		Temperature:  &temp,
		MaxTokens:    256,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if again.ThreadID != custom.ThreadID {
		t.Fatal("相同覆盖配置应命中同一会话")
	}
}

func TestHandleMessageExecutesPayment(t *testing.T) {
	chainClient := newFakeChain(big.NewInt(0))
	faucet := &fakeFaucet{chain: chainClient, grant: big.NewInt(400_000_000_000_000)}
	supervisor := funding.NewSupervisor(faucet, chainClient,
		funding.WithMaxAttempts(3),
		funding.WithSleep(instantSleep),
	)
	submitter, err := proposal.NewSubmitter(chainClient,
		"0x00000000000000000000000000000000000000A1",
		proposal.WithReceiptPollInterval(time.Millisecond))
	if err != nil {
		t.Fatalf("创建提交器失败: %v", err)
	}
	ledger := proposal.NewMemoryStore()
	producer := &recordingProducer{}

	ag := New(&stubLLM{text: paymentReply}, newTestWallet(t), submitter,
		WithFunding(supervisor),
		WithProposalStore(ledger),
		WithProposalNotifier(producer),
	)

	result, err := ag.HandleMessage(context.Background(), Message{Text: "请资助净水项目"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Response != "我们决定资助该净水项目。" {
		t.Fatalf("期望返回 Response 字段内容，实际 %s", result.Response)
	}
	if result.Proposal == nil {
		t.Fatal("期望产生提案")
	}
	if result.Proposal.Status != proposal.StatusSucceeded {
		t.Fatalf("期望提案成功，实际状态 %s", result.Proposal.Status)
	}
	if result.Proposal.TxHash == "" {
		t.Fatal("期望交易哈希非空")
	}
	if result.Proposal.ValueWei.Cmp(big.NewInt(800_000_000_000_000)) != 0 {
		t.Fatalf("期望金额 800000000000000 wei，实际 %s", result.Proposal.ValueWei)
	}

	record, err := ledger.Get(context.Background(), result.Proposal.ID)
	if err != nil {
		t.Fatalf("台账未保存提案记录: %v", err)
	}
	if record.TxHash != result.Proposal.TxHash {
		t.Fatalf("台账交易哈希不一致: %s != %s", record.TxHash, result.Proposal.TxHash)
	}
	if len(producer.ids) != 1 || producer.ids[0] != record.ID {
		t.Fatalf("期望通知队列收到提案 %s，实际 %v", record.ID, producer.ids)
	}
	if len(chainClient.sent) != 1 {
		t.Fatalf("期望广播 1 笔交易，实际 %d", len(chainClient.sent))
	}
}

func TestHandleMessageFundsOnlyGasBuffer(t *testing.T) {
	// 余额恰好等于 gas 余量：提案金额只是合约参数，不应触发补足。
	chainClient := newFakeChain(new(big.Int).Set(defaultGasBuffer))
	faucet := &fakeFaucet{chain: chainClient} // 不实际到账
	supervisor := funding.NewSupervisor(faucet, chainClient,
		funding.WithMaxAttempts(3),
		funding.WithSleep(instantSleep),
	)
	submitter, err := proposal.NewSubmitter(chainClient,
		"0x00000000000000000000000000000000000000A1",
		proposal.WithReceiptPollInterval(time.Millisecond))
	if err != nil {
		t.Fatalf("创建提交器失败: %v", err)
	}

	ag := New(&stubLLM{text: paymentReply}, newTestWallet(t), submitter,
		WithFunding(supervisor),
	)

	result, err := ag.HandleMessage(context.Background(), Message{Text: "请资助净水项目"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if faucet.requests() != 0 {
		t.Fatalf("余额已覆盖 gas 余量时不应请求补足，实际 %d 次", faucet.requests())
	}
	if result.Proposal == nil || result.Proposal.Status != proposal.StatusSucceeded {
		t.Fatal("期望提案成功上链")
	}
	if len(chainClient.sent) != 1 {
		t.Fatalf("期望广播 1 笔交易，实际 %d", len(chainClient.sent))
	}
}

func TestHandleMessageMalformedAddressRejectedBeforeFunding(t *testing.T) {
	malformedReply := `[Title]: 资助
[Decision]: EXECUTE
[Summary]: 总结
[Response]: 回复
[Amount]: 0.0008
[Wallet Address]: 0xABC`

	chainClient := newFakeChain(big.NewInt(0))
	faucet := &fakeFaucet{chain: chainClient}
	supervisor := funding.NewSupervisor(faucet, chainClient,
		funding.WithMaxAttempts(3),
		funding.WithSleep(instantSleep),
	)
	submitter, err := proposal.NewSubmitter(chainClient, "0x00000000000000000000000000000000000000A1")
	if err != nil {
		t.Fatalf("创建提交器失败: %v", err)
	}

	ag := New(&stubLLM{text: malformedReply}, newTestWallet(t), submitter,
		WithFunding(supervisor),
	)

	// 残缺地址若被默默左补零会把资金导向无人掌控的账户，
	// 因此在任何补足与链上交互之前直接拒绝。
	_, err = ag.HandleMessage(context.Background(), Message{Text: "资助"})
	if err == nil {
		t.Fatal("期望残缺地址返回错误")
	}
	if xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
		t.Fatalf("期望错误码 %s，实际 %s", xerrors.CodeInvalidArgument, xerrors.CodeOf(err))
	}
	if faucet.requests() != 0 {
		t.Fatalf("残缺地址不应触发补足，实际 %d 次", faucet.requests())
	}
	if len(chainClient.sent) != 0 {
		t.Fatal("残缺地址不应有任何链上交互")
	}
}

func TestHandleMessageFundingExhausted(t *testing.T) {
	chainClient := newFakeChain(big.NewInt(0))
	faucet := &fakeFaucet{chain: chainClient} // 不实际到账
	supervisor := funding.NewSupervisor(faucet, chainClient,
		funding.WithMaxAttempts(3),
		funding.WithSleep(instantSleep),
	)
	submitter, err := proposal.NewSubmitter(chainClient, "0x00000000000000000000000000000000000000A1")
	if err != nil {
		t.Fatalf("创建提交器失败: %v", err)
	}

	alerts := &recordingDispatcher{}
	ag := New(&stubLLM{text: paymentReply}, newTestWallet(t), submitter,
		WithFunding(supervisor),
		WithAlertDispatcher(alerts),
	)

	result, err := ag.HandleMessage(context.Background(), Message{Text: "请资助净水项目"})
	if err == nil {
		t.Fatal("期望余额补足失败返回错误")
	}
	if xerrors.CodeOf(err) != xerrors.CodeFundingExhausted {
		t.Fatalf("期望错误码 %s，实际 %s", xerrors.CodeFundingExhausted, xerrors.CodeOf(err))
	}
	if faucet.requests() != 3 {
		t.Fatalf("期望恰好 3 次补足请求，实际 %d", faucet.requests())
	}
	if result == nil || result.Proposal == nil || result.Proposal.Status != proposal.StatusFailed {
		t.Fatal("期望返回带失败状态的提案结果")
	}
	if len(chainClient.sent) != 0 {
		t.Fatal("补足失败时不应广播任何交易")
	}
	events := alerts.received()
	if len(events) != 1 {
		t.Fatalf("期望分发 1 条告警，实际 %d", len(events))
	}
	if events[0].Code != xerrors.CodeFundingExhausted {
		t.Fatalf("期望告警错误码 %s，实际 %s", xerrors.CodeFundingExhausted, events[0].Code)
	}
	if events[0].ProposalID != result.Proposal.ID {
		t.Fatal("告警事件应携带提案标识")
	}
	if events[0].FundingAttempts != 3 || events[0].MaxAttempts != 3 {
		t.Fatalf("告警应记录补足次数，实际 %d/%d", events[0].FundingAttempts, events[0].MaxAttempts)
	}
}

func TestHandleMessageInvalidAmountAbortsBeforeChain(t *testing.T) {
	badReply := `[Title]: 资助
[Decision]: EXECUTE
[Summary]: 总结
[Response]: 回复
[Amount]: 0.0.8
[Wallet Address]: 0x00000000000000000000000000000000000000B2`

	chainClient := newFakeChain(big.NewInt(0))
	submitter, err := proposal.NewSubmitter(chainClient, "0x00000000000000000000000000000000000000A1")
	if err != nil {
		t.Fatalf("创建提交器失败: %v", err)
	}

	ag := New(&stubLLM{text: badReply}, newTestWallet(t), submitter)

	_, err = ag.HandleMessage(context.Background(), Message{Text: "资助"})
	if err == nil {
		t.Fatal("期望金额非法返回错误")
	}
	if xerrors.CodeOf(err) != xerrors.CodeInvalidAmount {
		t.Fatalf("期望错误码 %s，实际 %s", xerrors.CodeInvalidAmount, xerrors.CodeOf(err))
	}
	if len(chainClient.sent) != 0 {
		t.Fatal("金额非法时不应有任何链上交互")
	}
}

func TestHandleMessageTimeout(t *testing.T) {
	llmClient := &stubLLM{text: "好的", wait: 50 * time.Millisecond}
	ag := New(llmClient, nil, nil, WithRunTimeout(10*time.Millisecond))

	_, err := ag.HandleMessage(context.Background(), Message{Text: "测试"})
	if err == nil {
		t.Fatal("期望超时错误")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("期望 context deadline exceeded，实际 %v", err)
	}
	if xerrors.CodeOf(err) != xerrors.CodeTimeout {
		t.Fatalf("期望错误码 %s，实际 %s", xerrors.CodeTimeout, xerrors.CodeOf(err))
	}
}
