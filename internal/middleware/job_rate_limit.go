package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// JobRateLimit 手动触发任务的限流中间件
//
// 使用示例:
//
//	admin.POST("/jobs/auto-complete",
//	    middleware.JobRateLimit(middleware.JobAutoComplete, 0),
//	    jobCtl.AutoComplete,
//	)
func JobRateLimit(jobType JobType, interval time.Duration) gin.HandlerFunc {
	return JobRateLimitWith(GetLimiter(), jobType, interval)
}

// JobRateLimitWith 使用指定限流器
func JobRateLimitWith(limiter *JobRateLimiter, jobType JobType, interval time.Duration) gin.HandlerFunc {
	if interval == 0 {
		interval = GetInterval(jobType)
	}
	key := JobKey(jobType)

	return func(c *gin.Context) {
		result := limiter.Check(key, interval)
		if !result.Allowed {
			c.Header("Retry-After", fmt.Sprintf("%d", int(result.RetryAfter.Seconds())+1))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": formatRetryMessage(result.RetryAfter),
			})
			return
		}
		c.Next()
	}
}

// formatRetryMessage 格式化重试提示信息
func formatRetryMessage(d time.Duration) string {
	seconds := int(d.Seconds())
	if seconds < 1 {
		seconds = 1
	}
	if seconds < 60 {
		return fmt.Sprintf("tác vụ đang chạy, thử lại sau %d giây", seconds)
	}

	minutes := seconds / 60
	remainingSeconds := seconds % 60
	if remainingSeconds == 0 {
		return fmt.Sprintf("tác vụ đang chạy, thử lại sau %d phút", minutes)
	}
	return fmt.Sprintf("tác vụ đang chạy, thử lại sau %d phút %d giây", minutes, remainingSeconds)
}
