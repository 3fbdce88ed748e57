package protocol

import "strings"

// ParsedIntent 是从智能体自由文本中提取出的结构化意图。
// 所有字段始终存在，未提取到的字段保持空字符串；
// Amount 与 WalletAddress 同时非空是"存在支付意图"的唯一信号。
type ParsedIntent struct {
	Title         string `json:"title"`
	Decision      string `json:"decision"`
	Summary       string `json:"summary"`
	Response      string `json:"response"`
	Amount        string `json:"amount"`
	WalletAddress string `json:"wallet_address"`
}

// RequestsPayment 判断该意图是否构成可执行的支付请求。
func (p ParsedIntent) RequestsPayment() bool {
	return p.Amount != "" && p.WalletAddress != ""
}

// tagSequence 定义了标签协议的固定顺序。提取按此顺序推进：
// 每个字段的值以后续任意已知标签（或文本结尾）为界，
// 出现在固定顺序之外的标签不会被识别。
// 新增标签只需在此追加一项。
var tagSequence = []struct {
	tag    string
	assign func(*ParsedIntent, string)
}{
	{"Title", func(p *ParsedIntent, v string) { p.Title = v }},
	{"Decision", func(p *ParsedIntent, v string) { p.Decision = v }},
	{"Summary", func(p *ParsedIntent, v string) { p.Summary = v }},
	{"Response", func(p *ParsedIntent, v string) { p.Response = v }},
	{"Amount", func(p *ParsedIntent, v string) { p.Amount = v }},
	{"Wallet Address", func(p *ParsedIntent, v string) { p.WalletAddress = v }},
}

// Extract 将智能体的原始文本解析为 ParsedIntent。
// 对任意输入都不会失败：文本中没有任何可识别标签时返回全空意图，
// 这代表"智能体仅在对话"，不是错误。
func Extract(text string) ParsedIntent {
	var intent ParsedIntent

	cursor := 0
	for i, field := range tagSequence {
		marker := "[" + field.tag + "]:"
		offset := strings.Index(text[cursor:], marker)
		if offset < 0 {
			continue
		}
		start := cursor + offset + len(marker)

		// 值一直延伸到后续任意已知标签的起始位置，或文本结尾。
		end := len(text)
		for _, next := range tagSequence[i+1:] {
			boundary := "[" + next.tag + "]"
			if idx := strings.Index(text[start:], boundary); idx >= 0 && start+idx < end {
				end = start + idx
			}
		}

		field.assign(&intent, strings.TrimSpace(text[start:end]))
		cursor = start
	}

	return intent
}
