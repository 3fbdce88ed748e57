package wallet

import (
	"github.com/ethereum/go-ethereum/common"

	xerrors "AgoraChain/internal/errors"
)

// ParseAddress 校验并解析十六进制账户地址。
// 地址格式不合法时返回 INVALID_ARGUMENT。
func ParseAddress(raw string) (common.Address, error) {
	if !common.IsHexAddress(raw) {
		return common.Address{}, xerrors.New(xerrors.CodeInvalidArgument, "账户地址不合法: "+raw)
	}
	return common.HexToAddress(raw), nil
}
