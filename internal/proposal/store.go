package proposal

import (
	"context"
	"errors"
)

// ErrRecordNotFound 表示台账中不存在指定的提案记录。
var ErrRecordNotFound = errors.New("提案记录不存在")

// Store 抽象了提案台账的持久化接口。
type Store interface {
	Save(ctx context.Context, record *Record) error
	Get(ctx context.Context, id string) (*Record, error)
	List(ctx context.Context, limit int) ([]*Record, error)
	Close() error
}
