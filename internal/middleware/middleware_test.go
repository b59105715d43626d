package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"purin_order/internal/model"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeProfiles map[int64]*model.Profile

func (f fakeProfiles) GetByID(_ context.Context, id int64) (*model.Profile, error) {
	return f[id], nil
}

func newTestIssuer() *TokenIssuer {
	return NewTokenIssuer("test-secret", "purin-test", time.Hour, 24*time.Hour)
}

func TestTokenIssuer_RoundTrip(t *testing.T) {
	issuer := newTestIssuer()
	pair, err := issuer.Issue(&model.Profile{BaseModel: model.BaseModel{ID: 42}, Email: "a@example.com", Role: "admin"})
	require.NoError(t, err)
	assert.False(t, pair.AccessExpiresAt.IsZero())

	claims, err := issuer.Parse(pair.Access, TokenAccess)
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.ProfileID)
	assert.Equal(t, "a@example.com", claims.Email)
	assert.Equal(t, "42", claims.Subject)

	_, err = issuer.Parse(pair.Refresh, TokenAccess)
	assert.ErrorIs(t, err, ErrTokenKind)
	_, err = issuer.Parse(pair.Access, TokenRefresh)
	assert.ErrorIs(t, err, ErrTokenKind)

	_, err = issuer.Parse(pair.Access+"x", TokenAccess)
	assert.Error(t, err)

	t.Run("不同密钥或签发者不通过", func(t *testing.T) {
		_, err := NewTokenIssuer("other", "purin-test", time.Hour, time.Hour).Parse(pair.Access, TokenAccess)
		assert.Error(t, err)
		_, err = NewTokenIssuer("test-secret", "someone-else", time.Hour, time.Hour).Parse(pair.Access, TokenAccess)
		assert.Error(t, err)
	})

	t.Run("过期", func(t *testing.T) {
		expired := newTestIssuer()
		expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
		old, err := expired.Issue(&model.Profile{BaseModel: model.BaseModel{ID: 1}})
		require.NoError(t, err)
		_, err = issuer.Parse(old.Access, TokenAccess)
		assert.Error(t, err)
	})
}

func TestAuthenticator_Required(t *testing.T) {
	issuer := newTestIssuer()
	admin := &model.Profile{BaseModel: model.BaseModel{ID: 1}, Email: "admin@example.com", Role: "admin", IsActive: true}
	customer := &model.Profile{BaseModel: model.BaseModel{ID: 2}, Email: "c@example.com", Role: "customer", IsActive: true}
	demoted := &model.Profile{BaseModel: model.BaseModel{ID: 3}, Email: "d@example.com", Role: "customer", IsActive: true}
	disabled := &model.Profile{BaseModel: model.BaseModel{ID: 4}, Email: "x@example.com", Role: "admin", IsActive: false}
	auth := NewAuthenticator(issuer, fakeProfiles{1: admin, 2: customer, 3: demoted, 4: disabled})

	r := gin.New()
	r.GET("/admin", auth.Required(), RequireRole("admin"), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": GetUserID(c)})
	})

	token := func(p *model.Profile) *TokenPair {
		pair, err := issuer.Issue(p)
		require.NoError(t, err)
		return pair
	}
	// 令牌签发时仍是管理员，之后被降级
	demotedToken := token(&model.Profile{BaseModel: model.BaseModel{ID: 3}, Role: "admin"})
	deleted := token(&model.Profile{BaseModel: model.BaseModel{ID: 99}, Role: "admin"})

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"无认证", "", http.StatusUnauthorized},
		{"格式错误", "Token abc", http.StatusUnauthorized},
		{"refresh token 不可访问", "Bearer " + token(admin).Refresh, http.StatusUnauthorized},
		{"非管理员", "Bearer " + token(customer).Access, http.StatusForbidden},
		{"降级后角色以数据库为准", "Bearer " + demotedToken.Access, http.StatusForbidden},
		{"停用账号", "Bearer " + token(disabled).Access, http.StatusForbidden},
		{"账号已删除", "Bearer " + deleted.Access, http.StatusUnauthorized},
		{"管理员", "Bearer " + token(admin).Access, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
			if tt.want != http.StatusOK {
				assert.Contains(t, w.Body.String(), `"error"`)
			}
		})
	}
}

func TestAuthenticator_Optional(t *testing.T) {
	issuer := newTestIssuer()
	active := &model.Profile{BaseModel: model.BaseModel{ID: 9}, Email: "x@example.com", Role: "customer", IsActive: true}
	disabled := &model.Profile{BaseModel: model.BaseModel{ID: 10}, Role: "customer"}
	auth := NewAuthenticator(issuer, fakeProfiles{9: active, 10: disabled})

	r := gin.New()
	r.GET("/me", auth.Optional(), func(c *gin.Context) {
		var ctxID int64
		if p := PrincipalFrom(c.Request.Context()); p != nil {
			ctxID = p.ProfileID
		}
		c.JSON(http.StatusOK, gin.H{"user_id": GetUserID(c), "ctx_id": ctxID})
	})

	call := func(header string) string {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		r.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)
		return w.Body.String()
	}

	assert.JSONEq(t, `{"user_id":0,"ctx_id":0}`, call(""))
	assert.JSONEq(t, `{"user_id":0,"ctx_id":0}`, call("Bearer garbage"))

	pair, err := issuer.Issue(active)
	require.NoError(t, err)
	assert.JSONEq(t, `{"user_id":9,"ctx_id":9}`, call("Bearer "+pair.Access))

	pair, err = issuer.Issue(disabled)
	require.NoError(t, err)
	assert.JSONEq(t, `{"user_id":0,"ctx_id":0}`, call("Bearer "+pair.Access), "停用账号按匿名处理")
}

func TestRegisterAuditCallbacks(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&model.Product{}))
	require.NoError(t, RegisterAuditCallbacks(db))

	ctx := WithPrincipal(context.Background(), &Principal{ProfileID: 7, Role: "admin"})

	p := &model.Product{Slug: "a", Name: "A", Price: 1000}
	require.NoError(t, db.WithContext(ctx).Create(p).Error)
	assert.Equal(t, int64(7), p.CreatedBy)
	assert.Equal(t, int64(7), p.UpdatedBy)

	batch := []*model.Product{{Slug: "b", Name: "B"}, {Slug: "c", Name: "C"}}
	require.NoError(t, db.WithContext(ctx).Create(&batch).Error)
	assert.Equal(t, int64(7), batch[1].CreatedBy)

	t.Run("无登录账号不填充", func(t *testing.T) {
		q := &model.Product{Slug: "d", Name: "D"}
		require.NoError(t, db.Create(q).Error)
		assert.Zero(t, q.CreatedBy)
	})

	t.Run("Updates(map) 写入 UpdatedBy", func(t *testing.T) {
		other := WithPrincipal(context.Background(), &Principal{ProfileID: 8})
		require.NoError(t, db.WithContext(other).Model(&model.Product{}).
			Where("id = ?", p.ID).Updates(map[string]interface{}{"name": "A2"}).Error)
		var got model.Product
		require.NoError(t, db.First(&got, p.ID).Error)
		assert.Equal(t, int64(8), got.UpdatedBy)
		assert.Equal(t, int64(7), got.CreatedBy)
	})
}

func TestIPRateLimit(t *testing.T) {
	limiter := NewIPRateLimiter(2, time.Minute)
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	r := gin.New()
	r.POST("/payments/verify", IPRateLimit(limiter), func(c *gin.Context) { c.Status(http.StatusOK) })

	call := func(ip string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/payments/verify", nil)
		req.RemoteAddr = ip + ":5000"
		r.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusOK, call("203.0.113.1").Code)
	assert.Equal(t, http.StatusOK, call("203.0.113.1").Code)

	w := call("203.0.113.1")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "61", w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), `"error"`)

	assert.Equal(t, http.StatusOK, call("203.0.113.2").Code, "按 IP 独立计数")

	now = now.Add(time.Minute)
	assert.Equal(t, http.StatusOK, call("203.0.113.1").Code, "窗口结束后恢复")

	t.Run("过期记录被清理", func(t *testing.T) {
		now = now.Add(2 * time.Minute)
		ok, _ := limiter.Allow("203.0.113.9")
		assert.True(t, ok)
		limiter.mu.Lock()
		defer limiter.mu.Unlock()
		assert.Len(t, limiter.clients, 1)
	})
}

func TestJobRateLimiter_Check(t *testing.T) {
	limiter := NewJobRateLimiter()
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	assert.True(t, limiter.Check("k", time.Minute).Allowed)

	res := limiter.Check("k", time.Minute)
	assert.False(t, res.Allowed)
	assert.Equal(t, time.Minute, res.RetryAfter)

	now = now.Add(61 * time.Second)
	assert.True(t, limiter.Check("k", time.Minute).Allowed)

	limiter.MarkExecuted("other")
	assert.False(t, limiter.Check("other", time.Minute).Allowed, "定时任务执行后手动触发进入冷却")
}

func TestJobRateLimit_Middleware(t *testing.T) {
	limiter := NewJobRateLimiter()
	r := gin.New()
	r.POST("/jobs/notify", JobRateLimitWith(limiter, JobNotify, time.Hour), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/jobs/notify", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/jobs/notify", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}

func TestCORS_Preflight(t *testing.T) {
	r := gin.New()
	r.Use(CORS(DefaultCORSConfig([]string{"https://purin.vn"})))
	r.POST("/api/checkout", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/api/checkout", nil)
	req.Header.Set("Origin", "https://purin.vn")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://purin.vn", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "Idempotency-Key")

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodOptions, "/api/checkout", nil)
	req.Header.Set("Origin", "https://evil.example")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
