package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"purin_order/internal/model"
)

// ProfileLookup 按 ID 读取账号，不存在返回 nil, nil
type ProfileLookup interface {
	GetByID(ctx context.Context, id int64) (*model.Profile, error)
}

// Principal 当前请求的登录账号，角色取自数据库
type Principal struct {
	ProfileID int64
	Email     string
	Role      string
}

type principalKey struct{}

const ginPrincipalKey = "principal"

// WithPrincipal 写入 context，GORM 审计回调从这里读取
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom 未登录返回 nil
func PrincipalFrom(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalKey{}).(*Principal)
	return p
}

// Authenticator 校验 access token 后以账号当前状态为准：
// 已停用或已删除的账号即使持有未过期令牌也被拒绝
type Authenticator struct {
	tokens   *TokenIssuer
	profiles ProfileLookup
}

// NewAuthenticator 创建认证器
func NewAuthenticator(tokens *TokenIssuer, profiles ProfileLookup) *Authenticator {
	return &Authenticator{tokens: tokens, profiles: profiles}
}

type authFailure struct {
	status int
	msg    string
}

func (a *Authenticator) resolve(c *gin.Context) (*Principal, *authFailure) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return nil, &authFailure{http.StatusUnauthorized, "chưa đăng nhập"}
	}
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || raw == "" {
		return nil, &authFailure{http.StatusUnauthorized, "token không đúng định dạng"}
	}

	claims, err := a.tokens.Parse(raw, TokenAccess)
	if err != nil {
		return nil, &authFailure{http.StatusUnauthorized, "token không hợp lệ hoặc đã hết hạn"}
	}

	profile, err := a.profiles.GetByID(c.Request.Context(), claims.ProfileID)
	if err != nil {
		return nil, &authFailure{http.StatusInternalServerError, "lỗi hệ thống"}
	}
	if profile == nil {
		return nil, &authFailure{http.StatusUnauthorized, "tài khoản không tồn tại"}
	}
	if !profile.IsActive {
		return nil, &authFailure{http.StatusForbidden, "tài khoản đã bị khóa"}
	}

	return &Principal{ProfileID: profile.ID, Email: profile.Email, Role: profile.Role}, nil
}

func attach(c *gin.Context, p *Principal) {
	c.Set(ginPrincipalKey, p)
	c.Request = c.Request.WithContext(WithPrincipal(c.Request.Context(), p))
}

// Required 必须登录
func (a *Authenticator) Required() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, fail := a.resolve(c)
		if fail != nil {
			c.AbortWithStatusJSON(fail.status, gin.H{"error": fail.msg})
			return
		}
		attach(c, p)
		c.Next()
	}
}

// Optional 登录可选，任何校验失败都按匿名处理
func (a *Authenticator) Optional() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") != "" {
			if p, fail := a.resolve(c); fail == nil {
				attach(c, p)
			}
		}
		c.Next()
	}
}

// RequireRole 须在 Required 之后
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		p := CurrentPrincipal(c)
		if p == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "chưa đăng nhập"})
			return
		}
		for _, role := range roles {
			if p.Role == role {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "không có quyền truy cập"})
	}
}

// CurrentPrincipal 未登录返回 nil
func CurrentPrincipal(c *gin.Context) *Principal {
	if v, ok := c.Get(ginPrincipalKey); ok {
		if p, ok := v.(*Principal); ok {
			return p
		}
	}
	return nil
}

// GetUserID 未登录为 0
func GetUserID(c *gin.Context) int64 {
	if p := CurrentPrincipal(c); p != nil {
		return p.ProfileID
	}
	return 0
}

// GetUserRole 未登录为空
func GetUserRole(c *gin.Context) string {
	if p := CurrentPrincipal(c); p != nil {
		return p.Role
	}
	return ""
}
