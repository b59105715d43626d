package utils

import (
	"time"

	"github.com/go-resty/resty/v2"
)

// NewClient 创建统一配置的 Resty 客户端
// 邮件、表格 webhook 等外部调用共用
func NewClient(baseURL string, timeout time.Duration) *resty.Client {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("User-Agent", "PurinOrder/1.0").
		SetHeader("Content-Type", "application/json")
	if baseURL != "" {
		client.SetBaseURL(baseURL)
	}
	return client
}
