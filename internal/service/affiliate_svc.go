package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"purin_order/internal/api/dto"
	"purin_order/internal/model"
	"purin_order/internal/repository"
	"purin_order/pkg/logger"
)

// ==================== 佣金档位 ====================

const (
	tierTwoOrders   = 20
	tierThreeOrders = 50
)

var (
	rateTierOne   = decimal.RequireFromString("0.10")
	rateTierTwo   = decimal.RequireFromString("0.20")
	rateTierThree = decimal.RequireFromString("0.30")
)

// CommissionRate 按当月有效订单数返回佣金比例
func CommissionRate(monthlyOrders int64) decimal.Decimal {
	switch {
	case monthlyOrders >= tierThreeOrders:
		return rateTierThree
	case monthlyOrders >= tierTwoOrders:
		return rateTierTwo
	default:
		return rateTierOne
	}
}

// nextTier 距下一档还差多少单；已是最高档返回 nil
func nextTier(monthlyOrders int64) *dto.NextTier {
	switch {
	case monthlyOrders >= tierThreeOrders:
		return nil
	case monthlyOrders >= tierTwoOrders:
		return &dto.NextTier{Rate: rateTierThree, OrdersRequired: tierThreeOrders - monthlyOrders}
	default:
		return &dto.NextTier{Rate: rateTierTwo, OrdersRequired: tierTwoOrders - monthlyOrders}
	}
}

// CommissionAmount revenue × rate，四舍五入到整数越南盾
func CommissionAmount(revenue int64, rate decimal.Decimal) int64 {
	return decimal.NewFromInt(revenue).Mul(rate).Round(0).IntPart()
}

// ==================== 社交链接 ====================

var allowedSocialDomains = []string{
	"facebook.com", "fb.com", "m.facebook.com",
	"instagram.com",
	"tiktok.com", "vt.tiktok.com",
	"youtube.com", "youtu.be",
	"threads.net",
	"zalo.me",
}

// ValidateSocialLink 仅接受 http(s) 且域名在白名单内（含子域名，如 www.）
func ValidateSocialLink(link string) bool {
	u, err := url.Parse(strings.TrimSpace(link))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return false
	}
	for _, d := range allowedSocialDomains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// ==================== 推广码 ====================

const (
	refCodePrefix   = "CTV"
	refCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	refCodeLength   = 6
	refCodeRetries  = 10
)

func randomRefCode() (string, error) {
	b := make([]byte, refCodeLength)
	max := big.NewInt(int64(len(refCodeAlphabet)))
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = refCodeAlphabet[n.Int64()]
	}
	return refCodePrefix + string(b), nil
}

// ==================== 服务 ====================

// AffiliateService 推广员（CTV）服务
type AffiliateService struct {
	affiliateRepo repository.AffiliateRepository
	orderRepo     repository.OrderRepository
	profileRepo   repository.ProfileRepository
	notifRepo     repository.NotificationRepository
	siteURL       string
	log           *zap.Logger
	now           func() time.Time
}

// NewAffiliateService 创建推广员服务
func NewAffiliateService(
	affiliateRepo repository.AffiliateRepository,
	orderRepo repository.OrderRepository,
	profileRepo repository.ProfileRepository,
	notifRepo repository.NotificationRepository,
	siteURL string,
	log *zap.Logger,
) *AffiliateService {
	return &AffiliateService{
		affiliateRepo: affiliateRepo,
		orderRepo:     orderRepo,
		profileRepo:   profileRepo,
		notifRepo:     notifRepo,
		siteURL:       strings.TrimRight(siteURL, "/"),
		log:           logger.OrNop(log).Named("affiliate"),
		now:           time.Now,
	}
}

// GenerateRefCode 生成未被占用的推广码
func (s *AffiliateService) GenerateRefCode(ctx context.Context) (string, error) {
	for i := 0; i < refCodeRetries; i++ {
		code, err := randomRefCode()
		if err != nil {
			return "", err
		}
		exists, err := s.affiliateRepo.ExistsByRefCode(ctx, code)
		if err != nil {
			return "", fmt.Errorf("check ref code: %w", err)
		}
		if !exists {
			return code, nil
		}
	}
	return "", fmt.Errorf("không tạo được mã giới thiệu, vui lòng thử lại")
}

// Register 申请成为推广员，待管理员审核
func (s *AffiliateService) Register(ctx context.Context, profileID int64, req *dto.RegisterAffiliateRequest) (*model.Affiliate, error) {
	if !ValidateSocialLink(req.SocialLink) {
		return nil, invalid("social_link", "liên kết mạng xã hội không hợp lệ (Facebook, Instagram, TikTok, YouTube, Threads, Zalo)")
	}
	if strings.TrimSpace(req.BankAccount) == "" || strings.TrimSpace(req.BankHolder) == "" {
		return nil, invalid("bank_account", "vui lòng nhập thông tin ngân hàng")
	}

	if _, err := s.affiliateRepo.GetByProfileID(ctx, profileID); err == nil {
		return nil, ErrAffiliateExists
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	code, err := s.GenerateRefCode(ctx)
	if err != nil {
		return nil, err
	}

	aff := &model.Affiliate{
		ProfileID:      profileID,
		RefCode:        code,
		SocialLink:     strings.TrimSpace(req.SocialLink),
		BankName:       strings.TrimSpace(req.BankName),
		BankAccount:    strings.TrimSpace(req.BankAccount),
		BankHolder:     strings.ToUpper(strings.TrimSpace(req.BankHolder)),
		Status:         model.AffiliateStatusPending,
		CommissionRate: rateTierOne,
	}
	if err := s.affiliateRepo.Create(ctx, aff); err != nil {
		return nil, fmt.Errorf("create affiliate: %w", err)
	}

	if err := s.notifRepo.Create(ctx, &model.Notification{
		Type:    model.NotificationAffiliate,
		Title:   "Đăng ký cộng tác viên mới",
		Message: fmt.Sprintf("Mã %s - %s", aff.RefCode, aff.SocialLink),
		Link:    "/admin/affiliates",
	}); err != nil {
		s.log.Warn("create affiliate notification failed", zap.Error(err))
	}

	s.log.Info("affiliate registered", zap.Int64("profile_id", profileID), zap.String("ref_code", code))
	return aff, nil
}

// Dashboard 当月统计 + 历史佣金
func (s *AffiliateService) Dashboard(ctx context.Context, profileID int64) (*dto.AffiliateDashboard, error) {
	aff, err := s.affiliateRepo.GetByProfileID(ctx, profileID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAffiliateNotFound
		}
		return nil, err
	}

	month := currentMonth(s.now())
	stats, err := s.monthStats(ctx, aff.ID, month)
	if err != nil {
		return nil, err
	}

	history, err := s.affiliateRepo.ListCommissions(ctx, aff.ID, 12)
	if err != nil {
		return nil, fmt.Errorf("list commissions: %w", err)
	}

	return &dto.AffiliateDashboard{
		Affiliate:    aff,
		ReferralLink: s.siteURL + "/?ref=" + aff.RefCode,
		CurrentMonth: *stats,
		NextTier:     nextTier(stats.OrderCount),
		History:      history,
	}, nil
}

func (s *AffiliateService) monthStats(ctx context.Context, affiliateID int64, month string) (*dto.MonthStats, error) {
	start, end, err := monthRange(month)
	if err != nil {
		return nil, err
	}
	agg, err := s.orderRepo.GetAffiliateStats(ctx, affiliateID, start, end)
	if err != nil {
		return nil, fmt.Errorf("affiliate stats: %w", err)
	}
	rate := CommissionRate(agg.OrderCount)
	return &dto.MonthStats{
		Month:      month,
		OrderCount: agg.OrderCount,
		Revenue:    agg.Revenue,
		Rate:       rate,
		Commission: CommissionAmount(agg.Revenue, rate),
	}, nil
}

// RecalculateCommissions 重算指定月份（空为当月）所有活跃推广员的佣金
func (s *AffiliateService) RecalculateCommissions(ctx context.Context, month string) (*dto.RecalculateResult, error) {
	if month == "" {
		month = currentMonth(s.now())
	}
	if _, _, err := monthRange(month); err != nil {
		return nil, err
	}

	affiliates, err := s.affiliateRepo.ListByStatus(ctx, model.AffiliateStatusActive)
	if err != nil {
		return nil, fmt.Errorf("list affiliates: %w", err)
	}

	result := &dto.RecalculateResult{Month: month, Errors: []string{}}
	for _, aff := range affiliates {
		if ctx.Err() != nil {
			result.Errors = appendErr(result.Errors, "recalculate", ctx.Err())
			break
		}
		result.Processed++

		existing, err := s.affiliateRepo.GetCommission(ctx, aff.ID, month)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			result.Errors = appendErr(result.Errors, aff.RefCode, err)
			continue
		}
		if existing != nil && existing.Status == model.CommissionStatusPaid {
			result.Skipped++
			continue
		}

		stats, err := s.monthStats(ctx, aff.ID, month)
		if err != nil {
			result.Errors = appendErr(result.Errors, aff.RefCode, err)
			continue
		}

		if err := s.affiliateRepo.UpsertCommission(ctx, &model.AffiliateCommission{
			AffiliateID:  aff.ID,
			Month:        month,
			OrderCount:   int(stats.OrderCount),
			Revenue:      stats.Revenue,
			Rate:         stats.Rate,
			Amount:       stats.Commission,
			Status:       model.CommissionStatusPending,
			CalculatedAt: s.now(),
		}); err != nil {
			result.Errors = appendErr(result.Errors, aff.RefCode, err)
			continue
		}
		if !aff.CommissionRate.Equal(stats.Rate) {
			if err := s.affiliateRepo.UpdateFields(ctx, aff.ID, map[string]interface{}{
				"commission_rate": stats.Rate,
			}); err != nil {
				result.Errors = appendErr(result.Errors, aff.RefCode, err)
				continue
			}
		}
		result.Updated++
	}

	s.log.Info("commissions recalculated",
		zap.String("month", month),
		zap.Int("processed", result.Processed),
		zap.Int("updated", result.Updated),
		zap.Int("skipped", result.Skipped),
		zap.Int("errors", len(result.Errors)))
	return result, nil
}

// commissionGraceDays 月初几天内定时任务继续重算上月，覆盖月末下单与随后的取消
const commissionGraceDays = 3

// RecalculateOpenMonths 定时任务入口：当月，以及月初宽限期内的上月（越南时区）
func (s *AffiliateService) RecalculateOpenMonths(ctx context.Context, now time.Time) ([]*dto.RecalculateResult, error) {
	local := now.In(vnLocation)
	months := []string{local.Format("2006-01")}
	if local.Day() <= commissionGraceDays {
		first := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, vnLocation)
		months = append([]string{first.AddDate(0, -1, 0).Format("2006-01")}, months...)
	}

	results := make([]*dto.RecalculateResult, 0, len(months))
	for _, month := range months {
		res, err := s.RecalculateCommissions(ctx, month)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

// MarkCommissionPaid 管理员确认已结算，之后重算不再改动该月金额
func (s *AffiliateService) MarkCommissionPaid(ctx context.Context, affiliateID int64, month string) (*model.AffiliateCommission, error) {
	if _, _, err := monthRange(month); err != nil {
		return nil, err
	}
	updated, err := s.affiliateRepo.MarkCommissionPaid(ctx, affiliateID, month, s.now())
	if err != nil {
		return nil, fmt.Errorf("mark commission paid: %w", err)
	}

	commission, err := s.affiliateRepo.GetCommission(ctx, affiliateID, month)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCommissionNotFound
		}
		return nil, err
	}
	if !updated {
		return nil, ErrCommissionPaid
	}

	s.log.Info("commission paid",
		zap.Int64("affiliate_id", affiliateID),
		zap.String("month", month),
		zap.Int64("amount", commission.Amount))
	return commission, nil
}

// ==================== 管理 ====================

// ListAffiliates 管理员列表
func (s *AffiliateService) ListAffiliates(ctx context.Context, req *dto.ListAffiliatesRequest) (*dto.ListOrdersResponse, error) {
	page, pageSize := normalizePage(req.Page, req.PageSize)
	list, total, err := s.affiliateRepo.List(ctx, repository.AffiliateFilter{
		Status:   req.Status,
		Keyword:  strings.TrimSpace(req.Keyword),
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		return nil, fmt.Errorf("list affiliates: %w", err)
	}
	return &dto.ListOrdersResponse{Total: total, Page: page, PageSize: pageSize, List: list}, nil
}

// UpdateStatus 审核通过或停用；通过时通知推广员
func (s *AffiliateService) UpdateStatus(ctx context.Context, id int64, status string) (*model.Affiliate, error) {
	if status != model.AffiliateStatusActive && status != model.AffiliateStatusSuspended {
		return nil, invalid("status", "trạng thái không hợp lệ")
	}

	aff, err := s.affiliateRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAffiliateNotFound
		}
		return nil, err
	}
	if aff.Status == status {
		return aff, nil
	}

	if err := s.affiliateRepo.UpdateFields(ctx, id, map[string]interface{}{"status": status}); err != nil {
		return nil, fmt.Errorf("update affiliate status: %w", err)
	}
	prev := aff.Status
	aff.Status = status

	if status == model.AffiliateStatusActive {
		s.notifyApproved(ctx, aff)
	}
	s.log.Info("affiliate status changed",
		zap.String("ref_code", aff.RefCode), zap.String("from", prev), zap.String("to", status))
	return aff, nil
}

func (s *AffiliateService) notifyApproved(ctx context.Context, aff *model.Affiliate) {
	n := &model.Notification{
		ProfileID: &aff.ProfileID,
		Type:      model.NotificationAffiliate,
		Title:     "Tài khoản cộng tác viên đã được duyệt",
		Message:   fmt.Sprintf("Mã giới thiệu của bạn là %s. Link chia sẻ: %s/?ref=%s", aff.RefCode, s.siteURL, aff.RefCode),
		Link:      "/ctv",
	}
	if s.profileRepo != nil {
		if p, err := s.profileRepo.GetByID(ctx, aff.ProfileID); err == nil && p != nil {
			n.Email = p.Email
		}
	}
	if err := s.notifRepo.Create(ctx, n); err != nil {
		s.log.Warn("create approval notification failed", zap.Error(err))
	}
}
