// Package wallet 管理部署级唯一的链上签名身份。种子材料以 go-ethereum
// keystore 格式加密落盘；损坏的记录会被丢弃并重建而不是带病复用。
package wallet
