package service

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// vnLocation 越南时区（UTC+7，无夏令时）
var vnLocation = time.FixedZone("ICT", 7*3600)

var (
	phoneRe = regexp.MustCompile(`^(0|84)(3|5|7|8|9)[0-9]{8}$`)
	emailRe = regexp.MustCompile(`^[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}$`)
)

// NormalizePhone 去掉空格、点、横线和 + 号
func NormalizePhone(phone string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '.', '-', '+', '(', ')':
			return -1
		}
		return r
	}, strings.TrimSpace(phone))
}

// IsValidVNPhone 越南手机号：0 或 84 开头，运营商号段 3/5/7/8/9，共 10 位本地号码
func IsValidVNPhone(phone string) bool {
	return phoneRe.MatchString(NormalizePhone(phone))
}

// IsValidEmail 邮箱格式
func IsValidEmail(email string) bool {
	return emailRe.MatchString(strings.TrimSpace(email))
}

// isHTTPURL 仅接受 http/https 且带 host 的 URL
func isHTTPURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// FormatVND 480000 -> "480.000₫"
func FormatVND(amount int64) string {
	neg := amount < 0
	if neg {
		amount = -amount
	}
	s := strconv.FormatInt(amount, 10)
	var b strings.Builder
	for i, c := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(c)
	}
	if neg {
		return "-" + b.String() + "₫"
	}
	return b.String() + "₫"
}

// monthRange 解析 2006-01，返回越南时区的 [月初, 下月初)
func monthRange(month string) (time.Time, time.Time, error) {
	start, err := time.ParseInLocation("2006-01", month, vnLocation)
	if err != nil {
		return time.Time{}, time.Time{}, invalid("month", fmt.Sprintf("định dạng tháng không hợp lệ: %q", month))
	}
	return start, start.AddDate(0, 1, 0), nil
}

// currentMonth 当前月份 2006-01（越南时区）
func currentMonth(now time.Time) string {
	return now.In(vnLocation).Format("2006-01")
}

// parseDate 解析表格/请求中的日期：RFC3339 或 2006-01-02（按越南时区当天结束）
func parseDate(raw string, endOfDay bool) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	t, err := time.ParseInLocation("2006-01-02", raw, vnLocation)
	if err != nil {
		return nil, fmt.Errorf("ngày không hợp lệ: %q", raw)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Second)
	}
	return &t, nil
}

func appendErr(errs []string, prefix string, err error) []string {
	return append(errs, fmt.Sprintf("%s: %v", prefix, err))
}

// normalizePage 分页参数默认值与上限
func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return page, pageSize
}
