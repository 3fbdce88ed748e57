package protocol

import "testing"

func TestExtractFullTaggedText(t *testing.T) {
	text := "[Title]:Leak[Decision]:Fix[Summary]:Urgent[Response]:Will post[Amount]:0.0008[Wallet Address]:0xABC"

	intent := Extract(text)

	if intent.Title != "Leak" {
		t.Fatalf("title = %q", intent.Title)
	}
	if intent.Decision != "Fix" {
		t.Fatalf("decision = %q", intent.Decision)
	}
	if intent.Summary != "Urgent" {
		t.Fatalf("summary = %q", intent.Summary)
	}
	if intent.Response != "Will post" {
		t.Fatalf("response = %q", intent.Response)
	}
	if intent.Amount != "0.0008" {
		t.Fatalf("amount = %q", intent.Amount)
	}
	if intent.WalletAddress != "0xABC" {
		t.Fatalf("wallet address = %q", intent.WalletAddress)
	}
	if !intent.RequestsPayment() {
		t.Fatalf("expected payment intent")
	}
}

func TestExtractTrimsWhitespace(t *testing.T) {
	text := "[Title]:  漏水管道 [Decision]:\n修复\n[Summary]: 社区中心旁 [Response]: 已记录 "

	intent := Extract(text)

	if intent.Title != "漏水管道" {
		t.Fatalf("title = %q", intent.Title)
	}
	if intent.Decision != "修复" {
		t.Fatalf("decision = %q", intent.Decision)
	}
	if intent.Summary != "社区中心旁" {
		t.Fatalf("summary = %q", intent.Summary)
	}
	if intent.Response != "已记录" {
		t.Fatalf("response = %q", intent.Response)
	}
}

func TestExtractMissingTagsYieldEmptyFields(t *testing.T) {
	intent := Extract("[Response]:你好，请继续描述问题。")

	if intent.Title != "" || intent.Decision != "" || intent.Summary != "" {
		t.Fatalf("expected empty leading fields: %+v", intent)
	}
	if intent.Response != "你好，请继续描述问题。" {
		t.Fatalf("response = %q", intent.Response)
	}
	if intent.RequestsPayment() {
		t.Fatalf("conversational reply must not request payment")
	}
}

func TestExtractSkippedOptionalTag(t *testing.T) {
	// Decision 缺失时，后续字段依然按顺序被识别。
	intent := Extract("[Title]:Pipe[Summary]:Broken[Response]:ok")

	if intent.Title != "Pipe" {
		t.Fatalf("title = %q", intent.Title)
	}
	if intent.Decision != "" {
		t.Fatalf("decision = %q", intent.Decision)
	}
	if intent.Summary != "Broken" {
		t.Fatalf("summary = %q", intent.Summary)
	}
}

func TestExtractNeverFails(t *testing.T) {
	inputs := []string{
		"",
		"plain conversation without any tags",
		"[Unknown]:value",
		"[Title]:",
		"[Wallet Address]:0x1[Amount]:5",
		"]][[::[Title[Decision]]",
	}
	for _, input := range inputs {
		intent := Extract(input)
		_ = intent
	}

	// 没有任何标签时返回全空意图。
	empty := Extract("just chatting")
	if empty != (ParsedIntent{}) {
		t.Fatalf("expected all-empty intent, got %+v", empty)
	}
}

func TestExtractOutOfOrderTagNotRecognized(t *testing.T) {
	// Wallet Address 出现在 Amount 之前，不符合固定顺序，不被识别。
	intent := Extract("[Wallet Address]:0xABC[Amount]:1")

	if intent.WalletAddress != "" {
		t.Fatalf("wallet address = %q", intent.WalletAddress)
	}
	if intent.RequestsPayment() {
		t.Fatalf("out-of-order tags must not form a payment intent")
	}
}
