package service

import "errors"

// ErrRoomNotFound 表示房间既不在注册表中，也没有持久化记录。
var ErrRoomNotFound = errors.New("room not found")
