package protocol

import (
	"math"
	"strings"
)

// 边界验证的硬限制。
const (
	MaxCoordinate  = 10000 // 坐标绝对值上限
	MaxPathPoints  = 10000 // 一条笔画的最大路径点数
	MaxUsernameLen = 20
	MaxRoomIDLen   = 10
)

// usernameStripper 去掉标记和引号类字符，防止显示名注入标记。
var usernameStripper = strings.NewReplacer(
	"<", "", ">", "", "\"", "", "'", "", "`", "", "&", "", "\\", "",
)

// SanitizeUsername 净化请求的显示名：去掉标记/引号字符、收紧空白并
// 截断到 20 字符。净化后为空时使用默认名。
func SanitizeUsername(name string) string {
	name = usernameStripper.Replace(name)
	name = strings.TrimSpace(name)
	if name == "" {
		name = "anonymous"
	}
	runes := []rune(name)
	if len(runes) > MaxUsernameLen {
		runes = runes[:MaxUsernameLen]
	}
	return string(runes)
}

// NormalizeRoomID 把请求的房间 ID 规范化：转大写、只保留 [A-Z0-9]、
// 截断到 10 字符。结果可能为空（交给注册表生成新 ID）。
func NormalizeRoomID(id string) string {
	id = strings.ToUpper(id)
	var b strings.Builder
	for _, c := range id {
		if (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') {
			b.WriteRune(c)
			if b.Len() >= MaxRoomIDLen {
				break
			}
		}
	}
	return b.String()
}

// validCoordinate 检查单个坐标值是否是有界的有限数。
func validCoordinate(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && math.Abs(v) <= MaxCoordinate
}

// ValidateDrawMove 检查一次绘制事件的坐标边界。
// 越界数据被调用方静默丢弃（不广播、不写日志、不回错误）。
func ValidateDrawMove(m *DrawMove) bool {
	return validCoordinate(m.X) && validCoordinate(m.Y)
}

// ValidateCursorMove 检查光标广播的坐标边界。
func ValidateCursorMove(m *CursorMove) bool {
	return validCoordinate(m.X) && validCoordinate(m.Y)
}

// ValidateDrawEnd 检查完整笔画：路径长度上限和每个点的坐标边界。
func ValidateDrawEnd(m *DrawEnd) bool {
	if len(m.Path) > MaxPathPoints {
		return false
	}
	if !validCoordinate(m.StartX) || !validCoordinate(m.StartY) {
		return false
	}
	for i := range m.Path {
		if !validCoordinate(m.Path[i].X) || !validCoordinate(m.Path[i].Y) {
			return false
		}
	}
	return true
}
