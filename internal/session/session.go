package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"

	xerrors "AgoraChain/internal/errors"
	"AgoraChain/internal/llm"

	"github.com/google/uuid"
)

// Fingerprint 唯一标识一种会话配置（指令文本 + 采样参数）。
type Fingerprint string

// NewFingerprint 从指令文本与采样参数推导配置指纹。
func NewFingerprint(instructions string, temperature float64, maxTokens int) Fingerprint {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s\x00%s\x00%s",
		instructions,
		strconv.FormatFloat(temperature, 'g', -1, 64),
		strconv.Itoa(maxTokens),
	)))
	return Fingerprint(hex.EncodeToString(sum[:]))
}

// Session 是绑定了固定配置的长期对话会话句柄。
type Session struct {
	client       llm.Client
	instructions string
	temperature  float64
	maxTokens    int
	directory    []llm.DirectoryEntry
	threadID     string
}

// Config 描述会话的固定配置。
type Config struct {
	Instructions string
	Temperature  float64
	MaxTokens    int
	Directory    []llm.DirectoryEntry
}

// New 构造一个新的会话，分配独立的会话线程标识。
func New(client llm.Client, cfg Config) (*Session, error) {
	if client == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置大模型客户端")
	}
	return &Session{
		client:       client,
		instructions: cfg.Instructions,
		temperature:  cfg.Temperature,
		maxTokens:    cfg.MaxTokens,
		directory:    append([]llm.DirectoryEntry(nil), cfg.Directory...),
		threadID:     uuid.NewString(),
	}, nil
}

// ThreadID 返回会话的线程标识。
func (s *Session) ThreadID() string {
	return s.threadID
}

// Ask 在本会话的固定配置下向大模型发送一条用户消息，返回原始文本。
func (s *Session) Ask(ctx context.Context, message string) (string, error) {
	resp, err := s.client.Generate(ctx, llm.Request{
		Instructions: s.instructions,
		Message:      message,
		Temperature:  s.temperature,
		MaxTokens:    s.maxTokens,
		Directory:    s.directory,
		ThreadID:     s.threadID,
	})
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeExecutorFailure, err, "大模型推理失败")
	}
	return resp.Text, nil
}
