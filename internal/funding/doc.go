// Package funding 保证签名身份在提交提案前持有足额余额。监督器以固定
// 次数、固定沉降间隔重试水龙头充值，宁可明确失败也不会无限阻塞。
package funding
