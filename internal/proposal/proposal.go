package proposal

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// Status 表示一次提案提交在生命周期中的状态。
type Status string

const (
	StatusPending   Status = "pending"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Attempt 是单次提案提交的临时状态，随流水线结束而销毁，
// 不会跨消息共享。
type Attempt struct {
	ID              string         `json:"id"`
	Target          common.Address `json:"target"`
	ValueWei        *big.Int       `json:"value_wei"`
	Deadline        time.Time      `json:"deadline"`
	FundingAttempts int            `json:"funding_attempts,omitempty"`
	Status          Status         `json:"status"`
	TxHash          string         `json:"tx_hash,omitempty"`
}

// NewAttempt 为一个可执行的支付意图创建提交状态。
func NewAttempt(target common.Address, valueWei *big.Int, deadline time.Time) *Attempt {
	return &Attempt{
		ID:       uuid.NewString(),
		Target:   target,
		ValueWei: new(big.Int).Set(valueWei),
		Deadline: deadline,
		Status:   StatusPending,
	}
}

// Record 是落库的提案台账条目。
type Record struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Decision  string `json:"decision"`
	Summary   string `json:"summary"`
	AmountWei string `json:"amount_wei"`
	Target    string `json:"target"`
	TxHash    string `json:"tx_hash"`
	Deadline  int64  `json:"deadline"`
	CreatedAt int64  `json:"created_at"`
}
