package proposal

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryQueueDeliversSavedRecord(t *testing.T) {
	store := NewMemoryStore()
	record := &Record{
		ID:        "prop-1",
		Title:     "资助净水项目",
		Decision:  "EXECUTE",
		AmountWei: "800000000000000",
		TxHash:    "0xabc",
		CreatedAt: 1700000000,
	}
	if err := store.Save(context.Background(), record); err != nil {
		t.Fatalf("保存提案记录失败: %v", err)
	}

	queue := NewMemoryQueue(4)
	defer queue.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 消费侧回查台账，模拟守护进程的通知处理。
	observed := make(chan *Record, 1)
	go func() {
		_ = queue.Consume(ctx, 2, func(ctx context.Context, proposalID string) error {
			got, err := store.Get(ctx, proposalID)
			if err != nil {
				return err
			}
			observed <- got
			return nil
		})
	}()

	if err := queue.Publish(context.Background(), record.ID); err != nil {
		t.Fatalf("投递提案失败: %v", err)
	}

	select {
	case got := <-observed:
		if got.TxHash != record.TxHash || got.Title != record.Title {
			t.Fatalf("消费到的记录不一致: %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("等待消费超时")
	}

	cancel()
}

func TestMemoryQueueRejectsPublishAfterClose(t *testing.T) {
	queue := NewMemoryQueue(1)
	if err := queue.Close(); err != nil {
		t.Fatalf("关闭队列失败: %v", err)
	}
	if err := queue.Publish(context.Background(), "prop-1"); err == nil {
		t.Fatal("关闭后投递应返回错误")
	}
	// 重复关闭应是幂等的。
	if err := queue.Close(); err != nil {
		t.Fatalf("重复关闭失败: %v", err)
	}
}

func TestMemoryQueueConsumeStopsOnCancel(t *testing.T) {
	queue := NewMemoryQueue(1)
	defer queue.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- queue.Consume(ctx, 1, func(context.Context, string) error { return nil })
	}()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("期望 context.Canceled，实际 %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("取消后消费循环未退出")
	}
}
