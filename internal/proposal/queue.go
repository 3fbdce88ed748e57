package proposal

import (
	"context"
)

// Handler 处理来自通知队列的提案记录 ID。
type Handler func(ctx context.Context, proposalID string) error

// Producer 负责把已确认的提案投递到通知队列。
type Producer interface {
	Publish(ctx context.Context, proposalID string) error
	Close() error
}

// Consumer 负责从通知队列中消费提案。
type Consumer interface {
	Consume(ctx context.Context, workerCount int, handler Handler) error
	Close() error
}

// Queue 同时具备生产者与消费者能力。
type Queue interface {
	Producer
	Consumer
}
