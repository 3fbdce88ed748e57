// Package session 维护配置指纹到长期对话会话的进程级注册表。
// 会话的构建开销大但重复构建并不危险，缓存的目标是避免相同配置
// 的重复初始化，并保证并发首次访问时 builder 只执行一次。
package session
