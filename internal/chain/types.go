package chain

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Snapshot represents summarized network metadata for health reporting.
type Snapshot struct {
	ChainID     string `json:"chain_id"`
	BlockNumber string `json:"block_number"`
	Notes       string `json:"notes,omitempty"`
}

// Client 定义了资金与提案层所需的链访问能力。
// 任何网络实现（真实 RPC 或模拟后端）都通过该接口接入上层。
type Client interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BalanceAt(ctx context.Context, account common.Address) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	FetchSnapshot(ctx context.Context) (Snapshot, error)
	Close()
}

// ErrReceiptTimeout 表示等待交易回执直至上下文取消仍未确认。
var ErrReceiptTimeout = errors.New("等待交易确认超时")

// WaitMined 轮询交易回执直到确认或上下文取消。
// 回执尚未生成（节点返回 not found）不视为错误，继续等待。
func WaitMined(ctx context.Context, client Client, txHash common.Hash, interval time.Duration) (*types.Receipt, error) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		receipt, err := client.TransactionReceipt(ctx, txHash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrReceiptTimeout, ctx.Err())
		case <-ticker.C:
		}
	}
}
