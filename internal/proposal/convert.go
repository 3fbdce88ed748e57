package proposal

import (
	"math/big"
	"strings"

	xerrors "AgoraChain/internal/errors"

	"github.com/ethereum/go-ethereum/params"
)

// weiDecimals 是主单位与最小单位之间的十进制位数（1 ETH = 10^18 wei）。
const weiDecimals = 18

// ToWei 将主单位的非负十进制金额精确换算为最小单位的整数。
// 换算完全基于十进制字符串与 big.Int，绝不经过二进制浮点，
// 避免金额出现舍入漂移。非法输入返回 INVALID_AMOUNT。
func ToWei(amount string) (*big.Int, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return nil, xerrors.New(xerrors.CodeInvalidAmount, "金额不能为空")
	}

	intPart := amount
	fracPart := ""
	if idx := strings.IndexByte(amount, '.'); idx >= 0 {
		intPart = amount[:idx]
		fracPart = amount[idx+1:]
		if strings.IndexByte(fracPart, '.') >= 0 {
			return nil, xerrors.New(xerrors.CodeInvalidAmount, "金额包含多个小数点")
		}
	}
	if intPart == "" && fracPart == "" {
		return nil, xerrors.New(xerrors.CodeInvalidAmount, "金额缺少数字")
	}
	if !digitsOnly(intPart) || !digitsOnly(fracPart) {
		return nil, xerrors.New(xerrors.CodeInvalidAmount, "金额必须是非负十进制数")
	}
	if len(fracPart) > weiDecimals {
		return nil, xerrors.New(xerrors.CodeInvalidAmount, "金额精度超过最小单位")
	}

	wei := new(big.Int)
	if intPart != "" {
		if _, ok := wei.SetString(intPart, 10); !ok {
			return nil, xerrors.New(xerrors.CodeInvalidAmount, "整数部分解析失败")
		}
		wei.Mul(wei, big.NewInt(params.Ether))
	}
	if fracPart != "" {
		frac, ok := new(big.Int).SetString(fracPart, 10)
		if !ok {
			return nil, xerrors.New(xerrors.CodeInvalidAmount, "小数部分解析失败")
		}
		scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(weiDecimals-len(fracPart))), nil)
		wei.Add(wei, frac.Mul(frac, scale))
	}
	return wei, nil
}

func digitsOnly(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
