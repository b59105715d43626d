package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"purin_order/internal/api/dto"
	"purin_order/internal/model"
	"purin_order/internal/repository"
	"purin_order/pkg/cache"
)

// ==================== 测试数据库 ====================

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err, "连接测试数据库失败")

	// 内存库每个连接独立，固定单连接
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&model.Profile{},
		&model.Product{},
		&model.Order{},
		&model.OrderItem{},
		&model.OrderStatusHistory{},
		&model.Affiliate{},
		&model.AffiliateCommission{},
		&model.Notification{},
		&model.AICallLog{},
	), "数据库迁移失败")
	return db
}

// fixedNow 2025-03-15 10:00 越南时间
var fixedNow = time.Date(2025, 3, 15, 10, 0, 0, 0, vnLocation)

func fixedClock() time.Time { return fixedNow }

// ==================== 种子数据 ====================

func seedProduct(t *testing.T, db *gorm.DB, p model.Product) *model.Product {
	t.Helper()
	if p.Status == "" {
		p.Status = model.ProductStatusActive
	}
	if p.Name == "" {
		p.Name = p.Slug
	}
	require.NoError(t, db.Create(&p).Error)
	return &p
}

func seedProfile(t *testing.T, db *gorm.DB, email string) *model.Profile {
	t.Helper()
	p := &model.Profile{Email: email, PasswordHash: "x", FullName: "Test", Role: model.RoleCustomer, IsActive: true}
	require.NoError(t, db.Create(p).Error)
	return p
}

func seedAffiliate(t *testing.T, db *gorm.DB, profileID int64, code, status string) *model.Affiliate {
	t.Helper()
	a := &model.Affiliate{
		ProfileID:      profileID,
		RefCode:        code,
		SocialLink:     "https://facebook.com/ctv",
		Status:         status,
		CommissionRate: rateTierOne,
	}
	require.NoError(t, db.Create(a).Error)
	return a
}

// seedOrder 直接写入订单（跳过下单流程）
func seedOrder(t *testing.T, db *gorm.DB, o model.Order) *model.Order {
	t.Helper()
	if o.CustomerName == "" {
		o.CustomerName = "Nguyễn Văn A"
	}
	if o.Phone == "" {
		o.Phone = "0901234567"
	}
	if o.Status == "" {
		o.Status = model.OrderStatusPendingPayment
	}
	if o.PaymentMethod == "" {
		o.PaymentMethod = model.PaymentMethodBankTransfer
	}
	require.NoError(t, db.Create(&o).Error)
	return &o
}

func validCheckout(items ...dto.CartItem) *dto.CheckoutRequest {
	return &dto.CheckoutRequest{
		CustomerName: "Nguyễn Thị Hoa",
		Phone:        "090 123 4567",
		Email:        "Hoa@Example.com",
		Address:      "12 Lý Thường Kiệt, Hoàn Kiếm",
		Province:     "Hà Nội",
		Items:        items,
	}
}

// ==================== Fakes ====================

type fakeMailer struct {
	mu          sync.Mutex
	orderEmails []*dto.SendOrderEmailRequest
	sent        []string // SendNotification 收件人
	alerts      []string // SendAdminAlert 主题
	failFor     map[string]error
	alertErr    error
}

func (m *fakeMailer) SendOrderEmail(_ context.Context, req *dto.SendOrderEmailRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orderEmails = append(m.orderEmails, req)
	return nil
}

func (m *fakeMailer) SendNotification(_ context.Context, n *model.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.failFor[n.Email]; ok {
		return err
	}
	m.sent = append(m.sent, n.Email)
	return nil
}

func (m *fakeMailer) SendAdminAlert(_ context.Context, subject, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.alertErr != nil {
		return m.alertErr
	}
	m.alerts = append(m.alerts, subject)
	return nil
}

type fakePusher struct {
	mu     sync.Mutex
	pushed []string
	err    error
}

func (p *fakePusher) PushOrder(_ context.Context, order *model.Order) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.pushed = append(p.pushed, order.OrderNumber)
	return nil
}

type fakeStorage struct {
	mu      sync.Mutex
	uploads []string
	err     error
}

func (s *fakeStorage) Upload(_ context.Context, _ []byte, filename, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.uploads = append(s.uploads, filename)
	return fmt.Sprintf("https://cdn.purin.test/products/%d-%s", len(s.uploads), filename), nil
}

func (s *fakeStorage) Delete(context.Context, string) error { return nil }

// fakeDownload 按 URL 返回图片，含 "broken" 的 URL 下载失败
func fakeDownload(_ context.Context, url string) ([]byte, string, error) {
	if strings.Contains(url, "broken") {
		return nil, "", errors.New("download failed with status: 404")
	}
	return []byte("\x89PNG fake"), "image/png", nil
}

// ==================== 服务构造 ====================

type orderFixture struct {
	db     *gorm.DB
	svc    *OrderService
	mailer *fakeMailer
	pusher *fakePusher
	idem   *cache.MemoryStore
	orders repository.OrderRepository
}

func newOrderFixture(t *testing.T) *orderFixture {
	t.Helper()
	db := setupTestDB(t)
	f := &orderFixture{
		db:     db,
		mailer: &fakeMailer{},
		pusher: &fakePusher{},
		idem:   cache.NewMemoryStore(),
		orders: repository.NewOrderRepository(db),
	}
	f.svc = NewOrderService(
		f.orders,
		repository.NewProductRepository(db),
		repository.NewAffiliateRepository(db),
		repository.NewNotificationRepository(db),
		f.mailer, f.pusher, f.idem,
		OrderConfig{ShippingFee: 30000, FreeShippingThreshold: 500000},
		nil,
	)
	f.svc.now = fixedClock
	return f
}
