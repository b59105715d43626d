package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"purin_order/internal/api/dto"
	"purin_order/internal/middleware"
	"purin_order/internal/model"
	"purin_order/internal/repository"
)

var testTokens = middleware.NewTokenIssuer("test-secret", "purin-test", time.Hour, 24*time.Hour)

func newUserService(t *testing.T) (*UserService, *gorm.DB) {
	t.Helper()
	db := setupTestDB(t)
	return NewUserService(repository.NewProfileRepository(db), repository.NewAffiliateRepository(db), testTokens, nil), db
}

func TestUserRegisterAndLogin(t *testing.T) {
	svc, db := newUserService(t)
	ctx := context.Background()

	resp, err := svc.Register(ctx, &dto.RegisterRequest{
		Email:    " Hoa@Example.com ",
		Password: "matkhau123",
		FullName: "Nguyễn Thị Hoa",
		Phone:    "+84 901 234 567",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, "hoa@example.com", resp.User.Email)
	assert.Equal(t, "84901234567", resp.User.Phone)
	assert.Equal(t, model.RoleCustomer, resp.User.Role)
	assert.False(t, resp.User.IsAffiliate)

	claims, err := testTokens.Parse(resp.AccessToken, middleware.TokenAccess)
	require.NoError(t, err)
	assert.Equal(t, resp.User.ID, claims.ProfileID)
	assert.Equal(t, model.RoleCustomer, claims.Role)
	assert.WithinDuration(t, time.Now().Add(time.Hour), resp.ExpiresAt, time.Minute)

	_, err = svc.Register(ctx, &dto.RegisterRequest{Email: "hoa@example.com", Password: "123456"})
	assert.ErrorIs(t, err, ErrEmailExists)

	_, err = svc.Register(ctx, &dto.RegisterRequest{Email: "x@example.com", Password: "123"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.Register(ctx, &dto.RegisterRequest{Email: "y@example.com", Password: "123456", Phone: "12345"})
	assert.ErrorIs(t, err, ErrValidation)

	login, err := svc.Login(ctx, &dto.LoginRequest{Email: "HOA@example.com", Password: "matkhau123"})
	require.NoError(t, err)
	assert.NotNil(t, login.User.LastLoginAt)

	_, err = svc.Login(ctx, &dto.LoginRequest{Email: "hoa@example.com", Password: "wrong-pass"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login(ctx, &dto.LoginRequest{Email: "nobody@example.com", Password: "matkhau123"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	// 停用后无法登录和刷新
	require.NoError(t, db.Model(&model.Profile{}).Where("id = ?", resp.User.ID).UpdateColumn("is_active", false).Error)
	_, err = svc.Login(ctx, &dto.LoginRequest{Email: "hoa@example.com", Password: "matkhau123"})
	assert.ErrorIs(t, err, ErrUserDisabled)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = svc.RefreshToken(ctx, &dto.RefreshTokenRequest{RefreshToken: resp.RefreshToken})
	assert.ErrorIs(t, err, ErrUserDisabled)
}

func TestUserRefreshToken(t *testing.T) {
	svc, _ := newUserService(t)
	ctx := context.Background()

	resp, err := svc.Register(ctx, &dto.RegisterRequest{Email: "a@example.com", Password: "123456", FullName: "A"})
	require.NoError(t, err)

	refreshed, err := svc.RefreshToken(ctx, &dto.RefreshTokenRequest{RefreshToken: resp.RefreshToken})
	require.NoError(t, err)
	assert.NotEmpty(t, refreshed.AccessToken)

	_, err = svc.RefreshToken(ctx, &dto.RefreshTokenRequest{RefreshToken: resp.AccessToken})
	assert.ErrorIs(t, err, ErrInvalidToken, "access token 不能用于刷新")

	_, err = svc.RefreshToken(ctx, &dto.RefreshTokenRequest{RefreshToken: "garbage"})
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestUserProfile(t *testing.T) {
	svc, db := newUserService(t)
	ctx := context.Background()
	profile := seedProfile(t, db, "ctv@example.com")
	seedAffiliate(t, db, profile.ID, "CTVUSR222", model.AffiliateStatusActive)

	me, err := svc.Me(ctx, profile.ID)
	require.NoError(t, err)
	assert.True(t, me.IsAffiliate)

	name := "  Lê Minh  "
	phone := "0912 345 678"
	address := " 1 Trần Phú, Đà Nẵng "
	updated, err := svc.UpdateProfile(ctx, profile.ID, &dto.UpdateProfileRequest{FullName: &name, Phone: &phone, Address: &address})
	require.NoError(t, err)
	assert.Equal(t, "Lê Minh", updated.FullName)
	assert.Equal(t, "0912345678", updated.Phone)
	assert.Equal(t, "1 Trần Phú, Đà Nẵng", updated.Address)

	bad := "999"
	_, err = svc.UpdateProfile(ctx, profile.ID, &dto.UpdateProfileRequest{Phone: &bad})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.Me(ctx, 9999)
	assert.ErrorIs(t, err, ErrUserNotFound)
}
