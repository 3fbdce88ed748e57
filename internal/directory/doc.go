// Package directory 维护职业到收款地址的静态目录，
// 供大模型在生成支付意图时检索收款人。
package directory
