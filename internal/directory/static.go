package directory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"AgoraChain/internal/llm"
)

// Provider 定义收款目录检索的通用接口。
type Provider interface {
	Query(message string) []llm.DirectoryEntry
	All() []llm.DirectoryEntry
}

// Entry 描述目录中的一个收款方。
type Entry struct {
	Profession    string   `json:"profession"`
	WalletAddress string   `json:"wallet_address"`
	Keywords      []string `json:"keywords"`
}

// StaticProvider 通过加载 JSON 文件提供静态目录检索能力。
type StaticProvider struct {
	items      []Entry
	maxResults int
}

// NewStaticProvider 创建静态目录实例。
func NewStaticProvider(items []Entry, maxResults int) *StaticProvider {
	if maxResults <= 0 {
		maxResults = 5
	}
	return &StaticProvider{
		items:      items,
		maxResults: maxResults,
	}
}

// LoadStaticProvider 从 JSON 文件加载目录条目。
func LoadStaticProvider(path string, maxResults int) (*StaticProvider, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("目录文件路径不能为空")
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("解析目录路径失败: %w", err)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("读取目录文件失败: %w", err)
	}
	defer file.Close()

	var entries []Entry
	if err := json.NewDecoder(file).Decode(&entries); err != nil {
		return nil, fmt.Errorf("解析目录文件失败: %w", err)
	}

	return NewStaticProvider(entries, maxResults), nil
}

// Query 根据用户消息做简单的关键词匹配。
// 没有任何关键词的条目视为通用条目，始终可被返回。
func (p *StaticProvider) Query(message string) []llm.DirectoryEntry {
	if p == nil {
		return nil
	}

	message = strings.ToLower(strings.TrimSpace(message))

	results := make([]llm.DirectoryEntry, 0, p.maxResults)
	for _, item := range p.items {
		if matches(item, message) {
			results = append(results, llm.DirectoryEntry{
				Profession:    item.Profession,
				WalletAddress: item.WalletAddress,
			})
			if len(results) >= p.maxResults {
				break
			}
		}
	}
	return results
}

// All 返回目录的全部条目。
func (p *StaticProvider) All() []llm.DirectoryEntry {
	if p == nil {
		return nil
	}
	entries := make([]llm.DirectoryEntry, 0, len(p.items))
	for _, item := range p.items {
		entries = append(entries, llm.DirectoryEntry{
			Profession:    item.Profession,
			WalletAddress: item.WalletAddress,
		})
	}
	return entries
}

func matches(entry Entry, message string) bool {
	if len(entry.Keywords) == 0 {
		return true
	}
	if profession := strings.ToLower(strings.TrimSpace(entry.Profession)); profession != "" {
		if strings.Contains(message, profession) {
			return true
		}
	}
	for _, keyword := range entry.Keywords {
		normalized := strings.ToLower(strings.TrimSpace(keyword))
		if normalized == "" {
			continue
		}
		if strings.Contains(message, normalized) {
			return true
		}
	}
	return false
}

var _ Provider = (*StaticProvider)(nil)
