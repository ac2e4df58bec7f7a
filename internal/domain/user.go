// Package domain 定义了系统核心的数据结构（操作日志、房间记录、用户）。
package domain

import "time"

// User 表示一个已连接的用户。生命周期绑定到单个连接，从不持久化。
type User struct {
	ID       string    `json:"id"`       // 每个连接唯一的不透明标识
	Username string    `json:"username"` // 已净化的显示名，最长 20 字符
	JoinedAt time.Time `json:"-"`
}
