package controller

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"purin_order/internal/middleware"
	"purin_order/internal/service"
	"purin_order/internal/task"
)

// statusFor 业务错误分类 -> HTTP 状态码
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrConflict), errors.Is(err, task.ErrTaskRunning):
		return http.StatusConflict
	case errors.Is(err, service.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, service.ErrEmailDisabled),
		errors.Is(err, service.ErrSheetDisabled),
		errors.Is(err, service.ErrAIDisabled),
		errors.Is(err, task.ErrTaskDisabled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError 统一错误响应 {"error": ...}；5xx 记录日志且不暴露内部错误
func respondError(ctx *gin.Context, log *zap.Logger, err error) {
	code := statusFor(err)
	msg := err.Error()
	if code >= http.StatusInternalServerError && code != http.StatusServiceUnavailable {
		log.Error("request failed",
			zap.String("method", ctx.Request.Method),
			zap.String("path", ctx.FullPath()),
			zap.Error(err))
		msg = "lỗi hệ thống, vui lòng thử lại sau"
	}
	_ = ctx.Error(err)
	ctx.JSON(code, gin.H{"error": msg})
}

// badRequest 参数绑定失败
func badRequest(ctx *gin.Context, err error) {
	ctx.JSON(http.StatusBadRequest, gin.H{"error": "tham số không hợp lệ: " + err.Error()})
}

// parseID 解析路径 ID，失败时直接写 400
func parseID(ctx *gin.Context, name string) int64 {
	id, err := strconv.ParseInt(ctx.Param(name), 10, 64)
	if err != nil || id <= 0 {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "ID không hợp lệ"})
		return 0
	}
	return id
}

// optionalUserID 可选登录路由中取当前用户，未登录为 nil
func optionalUserID(ctx *gin.Context) *int64 {
	if id := middleware.GetUserID(ctx); id > 0 {
		return &id
	}
	return nil
}
