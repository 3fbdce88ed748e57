package llm

import "context"

// Request 描述发送给大模型的一次对话调用。
// 核心只把大模型当作黑盒文本源：除了"尽力遵守标签协议"之外，
// 对返回文本不做任何结构性假设。
type Request struct {
	Instructions string
	Message      string
	Temperature  float64
	MaxTokens    int
	Directory    []DirectoryEntry
	ThreadID     string
}

// Response 是大模型返回的原始文本。
type Response struct {
	Text string
}

// DirectoryEntry 是提供给大模型的职业到收款地址的映射，
// 作为工具上下文帮助其填写 Wallet Address 字段。
type DirectoryEntry struct {
	Profession    string
	WalletAddress string
}

// Client 定义了调用大模型的统一接口。
type Client interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}
