package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"purin_order/internal/api/dto"
	"purin_order/internal/middleware"
	"purin_order/internal/model"
	"purin_order/internal/repository"
	"purin_order/pkg/logger"
)

// ==================== UserService 用户服务 ====================

// UserService 用户服务
type UserService struct {
	profileRepo   repository.ProfileRepository
	affiliateRepo repository.AffiliateRepository
	tokens        *middleware.TokenIssuer
	log           *zap.Logger
}

// NewUserService 创建用户服务
func NewUserService(profileRepo repository.ProfileRepository, affiliateRepo repository.AffiliateRepository, tokens *middleware.TokenIssuer, log *zap.Logger) *UserService {
	return &UserService{
		profileRepo:   profileRepo,
		affiliateRepo: affiliateRepo,
		tokens:        tokens,
		log:           logger.OrNop(log).Named("user"),
	}
}

// ==================== 认证相关 ====================

// Register 顾客注册，成功后直接返回 Token
func (s *UserService) Register(ctx context.Context, req *dto.RegisterRequest) (*dto.LoginResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if !IsValidEmail(email) {
		return nil, invalid("email", "email không hợp lệ")
	}
	if len(req.Password) < 6 {
		return nil, invalid("password", "mật khẩu tối thiểu 6 ký tự")
	}
	phone := NormalizePhone(req.Phone)
	if phone != "" && !IsValidVNPhone(phone) {
		return nil, invalid("phone", "số điện thoại không hợp lệ")
	}

	exists, err := s.profileRepo.ExistsByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrEmailExists
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	profile := &model.Profile{
		Email:        email,
		PasswordHash: string(hashed),
		FullName:     strings.TrimSpace(req.FullName),
		Phone:        phone,
		Role:         model.RoleCustomer,
		IsActive:     true,
	}
	if err := s.profileRepo.Create(ctx, profile); err != nil {
		return nil, fmt.Errorf("create profile: %w", err)
	}

	s.log.Info("profile registered", zap.Int64("id", profile.ID))
	return s.issueTokens(ctx, profile)
}

// Login 用户登录
func (s *UserService) Login(ctx context.Context, req *dto.LoginRequest) (*dto.LoginResponse, error) {
	profile, err := s.profileRepo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, ErrInvalidCredentials
	}

	// 验证密码
	if err := bcrypt.CompareHashAndPassword([]byte(profile.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	// 检查状态
	if !profile.IsActive {
		return nil, ErrUserDisabled
	}

	_ = s.profileRepo.UpdateLastLogin(ctx, profile.ID)
	now := time.Now()
	profile.LastLoginAt = &now

	return s.issueTokens(ctx, profile)
}

func (s *UserService) issueTokens(ctx context.Context, profile *model.Profile) (*dto.LoginResponse, error) {
	pair, err := s.tokens.Issue(profile)
	if err != nil {
		return nil, err
	}

	return &dto.LoginResponse{
		AccessToken:  pair.Access,
		RefreshToken: pair.Refresh,
		ExpiresAt:    pair.AccessExpiresAt,
		User:         s.toUserInfo(ctx, profile),
	}, nil
}

// RefreshToken 刷新 Token
func (s *UserService) RefreshToken(ctx context.Context, req *dto.RefreshTokenRequest) (*dto.RefreshTokenResponse, error) {
	claims, err := s.tokens.Parse(req.RefreshToken, middleware.TokenRefresh)
	if err != nil {
		return nil, ErrInvalidToken
	}

	// 确保用户仍然有效，角色以数据库为准
	profile, err := s.profileRepo.GetByID(ctx, claims.ProfileID)
	if err != nil {
		return nil, err
	}
	if profile == nil || !profile.IsActive {
		return nil, ErrUserDisabled
	}

	pair, err := s.tokens.Issue(profile)
	if err != nil {
		return nil, err
	}

	return &dto.RefreshTokenResponse{
		AccessToken:  pair.Access,
		RefreshToken: pair.Refresh,
		ExpiresAt:    pair.AccessExpiresAt,
	}, nil
}

// ==================== 个人资料 ====================

// Me 当前用户信息
func (s *UserService) Me(ctx context.Context, profileID int64) (*dto.UserInfo, error) {
	profile, err := s.profileRepo.GetByID(ctx, profileID)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, ErrUserNotFound
	}
	return s.toUserInfo(ctx, profile), nil
}

// UpdateProfile 更新个人资料（结账时自动填充）
func (s *UserService) UpdateProfile(ctx context.Context, profileID int64, req *dto.UpdateProfileRequest) (*dto.UserInfo, error) {
	profile, err := s.profileRepo.GetByID(ctx, profileID)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, ErrUserNotFound
	}

	if req.FullName != nil {
		profile.FullName = strings.TrimSpace(*req.FullName)
	}
	if req.Phone != nil {
		phone := NormalizePhone(*req.Phone)
		if phone != "" && !IsValidVNPhone(phone) {
			return nil, invalid("phone", "số điện thoại không hợp lệ")
		}
		profile.Phone = phone
	}
	if req.Address != nil {
		profile.Address = strings.TrimSpace(*req.Address)
	}

	if err := s.profileRepo.Update(ctx, profile); err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	return s.toUserInfo(ctx, profile), nil
}

// ==================== 辅助方法 ====================

func (s *UserService) toUserInfo(ctx context.Context, p *model.Profile) *dto.UserInfo {
	info := &dto.UserInfo{
		ID:          p.ID,
		Email:       p.Email,
		FullName:    p.FullName,
		Phone:       p.Phone,
		Address:     p.Address,
		Role:        p.Role,
		LastLoginAt: p.LastLoginAt,
		CreatedAt:   p.CreatedAt,
	}
	if s.affiliateRepo != nil {
		if _, err := s.affiliateRepo.GetByProfileID(ctx, p.ID); err == nil {
			info.IsAffiliate = true
		}
	}
	return info
}
