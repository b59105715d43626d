package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// IPRateLimiter 按客户端 IP 的固定窗口计数
type IPRateLimiter struct {
	mu        sync.Mutex
	clients   map[string]*ipWindow
	limit     int
	window    time.Duration
	lastSweep time.Time
	now       func() time.Time
}

type ipWindow struct {
	count int
	start time.Time
}

// NewIPRateLimiter 每个 IP 在 window 内最多 limit 次
func NewIPRateLimiter(limit int, window time.Duration) *IPRateLimiter {
	if limit <= 0 {
		limit = 10
	}
	if window <= 0 {
		window = 10 * time.Minute
	}
	return &IPRateLimiter{
		clients: make(map[string]*ipWindow),
		limit:   limit,
		window:  window,
		now:     time.Now,
	}
}

// Allow 占用一次额度，不允许时返回剩余等待时间
func (l *IPRateLimiter) Allow(key string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now)

	w, ok := l.clients[key]
	if !ok || now.Sub(w.start) >= l.window {
		l.clients[key] = &ipWindow{count: 1, start: now}
		return true, 0
	}
	if w.count >= l.limit {
		return false, l.window - now.Sub(w.start)
	}
	w.count++
	return true, 0
}

// sweep 每个窗口清理一次过期 IP
func (l *IPRateLimiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < l.window {
		return
	}
	for key, w := range l.clients {
		if now.Sub(w.start) >= l.window {
			delete(l.clients, key)
		}
	}
	l.lastSweep = now
}

// IPRateLimit 超出额度返回 429
func IPRateLimit(limiter *IPRateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, retry := limiter.Allow(c.ClientIP())
		if !ok {
			c.Header("Retry-After", strconv.Itoa(int(retry.Seconds())+1))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": fmt.Sprintf("quá nhiều yêu cầu, thử lại sau %s", formatWait(retry)),
			})
			return
		}
		c.Next()
	}
}

func formatWait(d time.Duration) string {
	seconds := int(d.Seconds()) + 1
	if seconds < 60 {
		return fmt.Sprintf("%d giây", seconds)
	}
	return fmt.Sprintf("%d phút", (seconds+59)/60)
}
