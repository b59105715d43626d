package middleware

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"purin_order/internal/model"
)

// TokenKind access 用于接口访问，refresh 只能换取新令牌
type TokenKind string

const (
	TokenAccess  TokenKind = "access"
	TokenRefresh TokenKind = "refresh"
)

var ErrTokenKind = errors.New("unexpected token kind")

// Claims 令牌载荷，Subject 为账号 ID
type Claims struct {
	ProfileID int64     `json:"pid"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	Kind      TokenKind `json:"kind"`
	jwt.RegisteredClaims
}

// TokenPair 登录/刷新返回的令牌对
type TokenPair struct {
	Access          string
	Refresh         string
	AccessExpiresAt time.Time
}

// TokenIssuer HS256 令牌签发与校验，配置来自 config.JWTConfig
type TokenIssuer struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewTokenIssuer 创建签发器
func NewTokenIssuer(secret, issuer string, accessTTL, refreshTTL time.Duration) *TokenIssuer {
	if accessTTL <= 0 {
		accessTTL = 2 * time.Hour
	}
	if refreshTTL <= 0 {
		refreshTTL = 7 * 24 * time.Hour
	}
	return &TokenIssuer{
		secret:     []byte(secret),
		issuer:     issuer,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// Issue 为账号签发 access + refresh
func (t *TokenIssuer) Issue(p *model.Profile) (*TokenPair, error) {
	access, exp, err := t.sign(p, TokenAccess, t.accessTTL)
	if err != nil {
		return nil, err
	}
	refresh, _, err := t.sign(p, TokenRefresh, t.refreshTTL)
	if err != nil {
		return nil, err
	}
	return &TokenPair{Access: access, Refresh: refresh, AccessExpiresAt: exp}, nil
}

func (t *TokenIssuer) sign(p *model.Profile, kind TokenKind, ttl time.Duration) (string, time.Time, error) {
	now := t.now()
	exp := now.Add(ttl)
	claims := &Claims{
		ProfileID: p.ID,
		Email:     p.Email,
		Role:      p.Role,
		Kind:      kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   strconv.FormatInt(p.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign %s token: %w", kind, err)
	}
	return signed, exp, nil
}

// Parse 校验签名、签发者、有效期与令牌类型
func (t *TokenIssuer) Parse(raw string, kind TokenKind) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(*jwt.Token) (interface{}, error) { return t.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.issuer),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return nil, err
	}
	if claims.Kind != kind {
		return nil, ErrTokenKind
	}
	return claims, nil
}
