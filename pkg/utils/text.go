package utils

import (
	"strings"
	"unicode/utf8"
)

const ellipsis = "..."

// Truncate 按字符截断，结果不超过 max 个字符（含结尾的 ...），非法 UTF-8 替换为 U+FFFD
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	s = strings.ToValidUTF8(s, "�")
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	if max <= len(ellipsis) {
		return string([]rune(s)[:max])
	}

	keep := max - len(ellipsis)
	n := 0
	for i := range s {
		if n == keep {
			return s[:i] + ellipsis
		}
		n++
	}
	return s
}
