package wallet

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"sync"

	xerrors "AgoraChain/internal/errors"
	"AgoraChain/pkg/logger"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
)

// seedFileName 是加密身份文件的固定名称，每个部署至多存在一份。
const seedFileName = "identity.json"

// Identity 是长期存活的签名身份。资金与提案操作通过 Reserve/Release
// 按身份串行化，避免并发提案之间的 nonce 与余额竞争。
type Identity struct {
	address common.Address
	key     *ecdsa.PrivateKey
	mu      sync.Mutex
}

// Address 返回身份对应的链上地址。
func (id *Identity) Address() common.Address {
	return id.address
}

// SignTx 使用身份私钥对交易签名。私钥不对外暴露。
func (id *Identity) SignTx(tx *coretypes.Transaction, chainID *big.Int) (*coretypes.Transaction, error) {
	if id == nil || id.key == nil {
		return nil, errors.New("签名身份未初始化")
	}
	signed, err := coretypes.SignTx(tx, coretypes.LatestSignerForChainID(chainID), id.key)
	if err != nil {
		return nil, fmt.Errorf("交易签名失败: %w", err)
	}
	return signed, nil
}

// Reserve 独占该身份，直到 Release 被调用。
func (id *Identity) Reserve() {
	id.mu.Lock()
}

// Release 释放身份的独占权。
func (id *Identity) Release() {
	id.mu.Unlock()
}

// Store 负责规范身份的加载、创建与加密持久化。
type Store struct {
	path       string
	passphrase string
	scryptN    int
	scryptP    int
	log        *slog.Logger

	mu       sync.Mutex
	identity *Identity
}

// Option 定义可选的 Store 配置。
type Option func(*Store)

// WithScryptParams 覆盖 keystore 加密强度，测试中可降低以加速。
func WithScryptParams(n, p int) Option {
	return func(s *Store) {
		if n > 0 && p > 0 {
			s.scryptN = n
			s.scryptP = p
		}
	}
}

// WithLogger 指定日志输出。
func WithLogger(log *slog.Logger) Option {
	return func(s *Store) {
		if log != nil {
			s.log = log
		}
	}
}

// NewStore 创建钱包存储。dataDir 下至多持有一份加密身份文件。
func NewStore(dataDir, passphrase string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(dataDir) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "钱包数据目录不能为空")
	}
	if passphrase == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "钱包口令不能为空")
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "创建钱包目录失败")
	}
	s := &Store{
		path:       filepath.Join(dataDir, seedFileName),
		passphrase: passphrase,
		scryptN:    keystore.StandardScryptN,
		scryptP:    keystore.StandardScryptP,
		log:        logger.Named("wallet"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Acquire 返回规范签名身份。进程内幂等：首次调用加载或创建身份，
// 之后的调用返回同一实例。持久化记录损坏时删除重建，不向调用方报错。
func (s *Store) Acquire() (*Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.identity != nil {
		return s.identity, nil
	}

	if identity, ok := s.restore(); ok {
		s.identity = identity
		return identity, nil
	}

	identity, err := s.create()
	if err != nil {
		return nil, err
	}
	s.identity = identity
	return identity, nil
}

// restore 尝试从磁盘恢复身份。任何失败都视为可恢复事件：
// 记录日志、删除损坏文件，由调用方转入创建流程。
func (s *Store) restore() (*Identity, bool) {
	blob, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn("读取身份文件失败，将重建身份",
				slog.String("path", s.path),
				slog.Any("error", err))
			_ = os.Remove(s.path)
		}
		return nil, false
	}

	key, err := keystore.DecryptKey(blob, s.passphrase)
	if err != nil {
		corrupt := xerrors.Wrap(xerrors.CodeWalletCorrupt, err, "身份文件解密失败")
		s.log.Warn("身份文件已损坏，删除后重建",
			slog.String("path", s.path),
			slog.Any("error", corrupt))
		_ = os.Remove(s.path)
		return nil, false
	}

	s.log.Info("已从磁盘恢复签名身份", slog.String("address", key.Address.Hex()))
	return &Identity{address: key.Address, key: key.PrivateKey}, true
}

func (s *Store) create() (*Identity, error) {
	priv, err := crypto.GenerateKey()
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "生成身份私钥失败")
	}

	key := &keystore.Key{
		Id:         uuid.New(),
		Address:    crypto.PubkeyToAddress(priv.PublicKey),
		PrivateKey: priv,
	}
	blob, err := keystore.EncryptKey(key, s.passphrase, s.scryptN, s.scryptP)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "加密身份种子失败")
	}
	if err := os.WriteFile(s.path, blob, 0o600); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入身份文件失败")
	}

	logger.Audit().Info("已创建新的签名身份", slog.String("address", key.Address.Hex()))
	return &Identity{address: key.Address, key: priv}, nil
}
