package proposal

import (
	"context"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/core/types"

	"AgoraChain/internal/chain"
	xerrors "AgoraChain/internal/errors"
	"AgoraChain/internal/wallet"
	"AgoraChain/pkg/logger"
)

// createProposalABI 描述治理合约的入口函数：
// createProposal(uint256 deadline, address target, uint256 value)。
const createProposalABI = `[{"inputs":[{"internalType":"uint256","name":"deadline","type":"uint256"},{"internalType":"address","name":"target","type":"address"},{"internalType":"uint256","name":"value","type":"uint256"}],"name":"createProposal","outputs":[],"stateMutability":"nonpayable","type":"function"}]`

const defaultGasLimit = 200_000

// Submitter 负责把一次支付意图编码为合约调用并广播上链。
// 提交失败不做自动重试，由上层决定是否重新发起。
type Submitter struct {
	client       chain.Client
	contract     string
	parsedABI    abi.ABI
	gasLimit     uint64
	pollInterval time.Duration
	log          *slog.Logger
}

// SubmitterOption 配置 Submitter 的可选行为。
type SubmitterOption func(*Submitter)

// WithGasLimit 覆盖默认的交易 gas 上限。
func WithGasLimit(limit uint64) SubmitterOption {
	return func(s *Submitter) {
		if limit > 0 {
			s.gasLimit = limit
		}
	}
}

// WithReceiptPollInterval 覆盖等待回执的轮询间隔。
func WithReceiptPollInterval(interval time.Duration) SubmitterOption {
	return func(s *Submitter) {
		if interval > 0 {
			s.pollInterval = interval
		}
	}
}

// WithSubmitterLogger 注入自定义日志器。
func WithSubmitterLogger(log *slog.Logger) SubmitterOption {
	return func(s *Submitter) {
		if log != nil {
			s.log = log
		}
	}
}

// NewSubmitter 创建提案提交器。contract 为治理合约地址（十六进制）。
func NewSubmitter(client chain.Client, contract string, opts ...SubmitterOption) (*Submitter, error) {
	if client == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "链客户端不能为空")
	}
	if contract == "" {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "治理合约地址不能为空")
	}
	parsed, err := abi.JSON(strings.NewReader(createProposalABI))
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "解析治理合约 ABI 失败")
	}
	s := &Submitter{
		client:       client,
		contract:     contract,
		parsedABI:    parsed,
		gasLimit:     defaultGasLimit,
		pollInterval: time.Second,
		log:          logger.Named("proposal.submitter"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Submit 签名并广播一笔提案交易，阻塞等待回执。
// 返回交易哈希；回执状态为失败时返回 SUBMISSION_FAILED。
func (s *Submitter) Submit(ctx context.Context, identity *wallet.Identity, attempt *Attempt) (string, error) {
	if identity == nil || attempt == nil {
		return "", xerrors.New(xerrors.CodeInvalidArgument, "提交提案缺少身份或意图")
	}

	data, err := s.parsedABI.Pack("createProposal",
		big.NewInt(attempt.Deadline.Unix()), attempt.Target, attempt.ValueWei)
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeSubmissionFailed, err, "编码提案参数失败")
	}

	chainID, err := s.client.ChainID(ctx)
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeSubmissionFailed, err, "获取链 ID 失败")
	}
	nonce, err := s.client.PendingNonceAt(ctx, identity.Address())
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeSubmissionFailed, err, "获取账户 nonce 失败")
	}
	gasPrice, err := s.client.SuggestGasPrice(ctx)
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeSubmissionFailed, err, "获取 gas 价格失败")
	}

	contract, err := wallet.ParseAddress(s.contract)
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeSubmissionFailed, err, "治理合约地址不合法")
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &contract,
		Value:    new(big.Int),
		Gas:      s.gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := identity.SignTx(tx, chainID)
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeSubmissionFailed, err, "签名提案交易失败")
	}

	if err := s.client.SendTransaction(ctx, signed); err != nil {
		attempt.Status = StatusFailed
		return "", xerrors.Wrap(xerrors.CodeSubmissionFailed, err, "广播提案交易失败")
	}
	txHash := signed.Hash()
	attempt.TxHash = txHash.Hex()

	receipt, err := chain.WaitMined(ctx, s.client, txHash, s.pollInterval)
	if err != nil {
		attempt.Status = StatusFailed
		return attempt.TxHash, xerrors.Wrap(xerrors.CodeSubmissionFailed, err, "等待提案交易确认失败")
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		attempt.Status = StatusFailed
		return attempt.TxHash, xerrors.New(xerrors.CodeSubmissionFailed, "提案交易被链回滚",
			xerrors.WithMetadata("tx_hash", attempt.TxHash))
	}

	attempt.Status = StatusSucceeded
	logger.Audit().Info("提案交易已确认",
		"tx_hash", attempt.TxHash,
		"target", attempt.Target.Hex(),
		"value_wei", attempt.ValueWei.String(),
		"deadline", attempt.Deadline.Unix(),
	)
	return attempt.TxHash, nil
}
