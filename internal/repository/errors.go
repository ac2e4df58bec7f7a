package repository

import "errors"

// 通用的存储库错误。
var (
	// ErrNotFound 表示请求的记录未找到。
	ErrNotFound = errors.New("repository: record not found")
	// ErrDuplicateEntry 表示写入违反了唯一约束。
	ErrDuplicateEntry = errors.New("repository: duplicate entry")
	// ErrStaleRevision 表示待写入的记录比已存储的版本旧，写入被拒绝。
	ErrStaleRevision = errors.New("repository: stale revision")
)

// ErrRecordNotFound 是房间记录专用的未找到错误。
var ErrRecordNotFound = ErrNotFound
