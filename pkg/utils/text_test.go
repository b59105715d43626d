package utils

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"未超长", "Đơn hàng", 8, "Đơn hàng"},
		{"越南语按字符截断", "Không tải được ảnh chuyển khoản", 10, "Không t..."},
		{"极短上限", "ảnh", 2, "ản"},
		{"零", "abc", 0, ""},
		{"中文", "邮件发送失败请稍后重试", 6, "邮件发..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Truncate(tt.in, tt.max)
			assert.Equal(t, tt.want, got)
			assert.True(t, utf8.ValidString(got))
			assert.LessOrEqual(t, utf8.RuneCountInString(got), tt.max)
		})
	}

	t.Run("多字节边界不被切断", func(t *testing.T) {
		msg := strings.Repeat("ư", 2000)
		got := Truncate(msg, 1024)
		assert.True(t, utf8.ValidString(got))
		assert.Equal(t, 1024, utf8.RuneCountInString(got))
		assert.True(t, strings.HasSuffix(got, "..."))
	})

	t.Run("非法字节被替换", func(t *testing.T) {
		got := Truncate("ok\xff\xfe", 10)
		assert.True(t, utf8.ValidString(got))
		assert.Equal(t, "ok�", got)
	})
}
