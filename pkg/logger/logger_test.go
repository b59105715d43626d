package logger

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLevel("DEBUG"))
	assert.Equal(t, zapcore.WarnLevel, parseLevel("warning"))
	assert.Equal(t, zapcore.ErrorLevel, parseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel("whatever"))
}

func TestRecovery_ReturnsErrorEnvelope(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zap.ErrorLevel)

	r := gin.New()
	r.Use(Recovery(zap.New(core)))
	r.GET("/boom", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, w.Body.String())
	assert.Equal(t, 1, logs.Len())
}

func TestGinMiddleware_LevelByStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zap.InfoLevel)

	r := gin.New()
	r.Use(GinMiddleware(zap.New(core)))
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/bad", func(c *gin.Context) { c.Status(http.StatusBadRequest) })

	for _, p := range []string{"/ok", "/bad"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, p, nil))
	}

	entries := logs.All()
	if assert.Len(t, entries, 2) {
		assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
		assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	}
}

func TestOrNop(t *testing.T) {
	assert.NotNil(t, OrNop(nil))
}

func TestGormLogger_Trace(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	sql := func() (string, int64) { return "SELECT 1", 1 }

	l := NewGorm(zap.New(core), false, 100*time.Millisecond)
	l.Trace(context.Background(), time.Now(), sql, nil)
	assert.Zero(t, logs.Len(), "未开启 LogSQL 时普通查询不输出")

	l.Trace(context.Background(), time.Now(), sql, gorm.ErrRecordNotFound)
	assert.Zero(t, logs.Len(), "未找到不算错误")

	l.Trace(context.Background(), time.Now(), sql, errors.New("relation does not exist"))
	l.Trace(context.Background(), time.Now().Add(-time.Second), sql, nil)
	entries := logs.TakeAll()
	if assert.Len(t, entries, 2) {
		assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
		assert.Equal(t, "gorm", entries[0].LoggerName)
		assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
		assert.Equal(t, "SELECT 1", entries[1].ContextMap()["sql"])
	}

	verbose := NewGorm(zap.New(core), true, 0)
	verbose.Trace(context.Background(), time.Now(), sql, nil)
	assert.Equal(t, 1, logs.FilterMessage("sql").Len())

	verbose.LogMode(gormlogger.Silent).Trace(context.Background(), time.Now(), sql, errors.New("x"))
	assert.Equal(t, 1, logs.Len())
}
