// Package proposal 负责把一个已确认的支付意图变成链上提案：
// 精确的主单位到最小单位换算、提案交易的构造/签名/广播与确认等待、
// 已完成提案的持久化台账，以及面向下游消费者的完成通知队列。
package proposal
