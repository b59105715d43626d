package router

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"purin_order/internal/controller"
	"purin_order/internal/middleware"
	"purin_order/internal/model"
	"purin_order/internal/repository"
	"purin_order/internal/service"
	"purin_order/internal/task"
	"purin_order/pkg/cache"
)

var testTokens = middleware.NewTokenIssuer("test-secret", "purin-test", time.Hour, 24*time.Hour)

const testAdminID = 1

func newTestEngine(t *testing.T) *gin.Engine {
	r, _ := newTestEnv(t)
	return r
}

// newTestEnv 用内存库和真实服务组装完整路由，外部集成均未配置；
// 库中预置 ID 为 1 的管理员
func newTestEnv(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
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
	))

	require.NoError(t, middleware.RegisterAuditCallbacks(db))
	require.NoError(t, db.Create(&model.Profile{
		BaseModel: model.BaseModel{ID: testAdminID},
		Email:     "admin@purin.vn",
		Role:      model.RoleAdmin,
		IsActive:  true,
	}).Error)

	profiles := repository.NewProfileRepository(db)
	products := repository.NewProductRepository(db)
	orders := repository.NewOrderRepository(db)
	affiliates := repository.NewAffiliateRepository(db)
	notifs := repository.NewNotificationRepository(db)
	aiLogs := repository.NewAICallLogRepository(db)
	idem := cache.NewMemoryStore()

	email := service.NewEmailService(service.EmailConfig{SiteURL: "https://purin.vn"}, nil)
	images := service.NewImageSyncService(nil, products, "cdn.purin.test", nil)
	sheet := service.NewSheetService(service.SheetConfig{Secret: "s3cret"}, products, orders, images, idem, nil)

	orderSvc := service.NewOrderService(orders, products, affiliates, notifs, email, sheet, idem,
		service.OrderConfig{ShippingFee: 30000, FreeShippingThreshold: 500000}, nil)
	productSvc := service.NewProductService(products, notifs, email, 0, nil)
	notifSvc := service.NewNotificationService(notifs, email, nil)
	affiliateSvc := service.NewAffiliateService(affiliates, orders, profiles, notifs, "https://purin.vn", nil)
	paymentSvc := service.NewPaymentService(service.NewGeminiAnalyzer("", ""), orders, notifs, aiLogs, nil)

	limiter := middleware.NewJobRateLimiter()
	tasks := task.NewTaskManager(&task.TaskManagerDeps{
		Orders:        orderSvc,
		Products:      productSvc,
		Notifications: notifSvc,
		Commissions:   affiliateSvc,
	}, task.DefaultConfig(), limiter, nil)

	ctl := &Controllers{
		User:         controller.NewUserController(service.NewUserService(profiles, affiliates, testTokens, nil), nil),
		Product:      controller.NewProductController(productSvc, nil),
		Order:        controller.NewOrderController(orderSvc, sheet, nil),
		Payment:      controller.NewPaymentController(paymentSvc, nil),
		Notification: controller.NewNotificationController(notifSvc, email, nil),
		Affiliate:    controller.NewAffiliateController(affiliateSvc, nil),
		Sync:         controller.NewSyncController(tasks, sheet, images, nil),
	}
	return SetupRouter(nil, ctl, Options{
		Auth:         middleware.NewAuthenticator(testTokens, profiles),
		Limiter:      limiter,
		ProofLimiter: middleware.NewIPRateLimiter(3, time.Minute),
	}), db
}

func doJSON(t *testing.T, r http.Handler, method, path, token string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var out map[string]interface{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w, out
}

func adminToken(t *testing.T) string {
	t.Helper()
	pair, err := testTokens.Issue(&model.Profile{
		BaseModel: model.BaseModel{ID: testAdminID},
		Email:     "admin@purin.vn",
		Role:      model.RoleAdmin,
	})
	require.NoError(t, err)
	return pair.Access
}

func TestHealthz(t *testing.T) {
	r := newTestEngine(t)
	w, body := doJSON(t, r, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body["status"])
}

func TestAuthAndAdminGuard(t *testing.T) {
	r := newTestEngine(t)

	w, body := doJSON(t, r, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": "hoa@example.com", "password": "matkhau123", "full_name": "Hoa",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	data := body["data"].(map[string]interface{})
	customerToken := data["access_token"].(string)
	require.NotEmpty(t, customerToken)

	w, body = doJSON(t, r, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": "hoa@example.com", "password": "matkhau123", "full_name": "Hoa",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.NotEmpty(t, body["error"])

	w, _ = doJSON(t, r, http.MethodGet, "/api/me", customerToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = doJSON(t, r, http.MethodGet, "/api/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = doJSON(t, r, http.MethodGet, "/api/admin/orders", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, body = doJSON(t, r, http.MethodGet, "/api/admin/orders", customerToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.NotEmpty(t, body["error"])

	w, _ = doJSON(t, r, http.MethodGet, "/api/admin/orders", adminToken(t), nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuth_AccountStateFromDB(t *testing.T) {
	r, db := newTestEnv(t)
	admin := adminToken(t)

	w, _ := doJSON(t, r, http.MethodGet, "/api/admin/orders", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)

	t.Run("降级后旧令牌失去管理权限", func(t *testing.T) {
		require.NoError(t, db.Model(&model.Profile{}).Where("id = ?", testAdminID).
			UpdateColumn("role", model.RoleCustomer).Error)
		w, _ := doJSON(t, r, http.MethodGet, "/api/admin/orders", admin, nil)
		assert.Equal(t, http.StatusForbidden, w.Code)
		w, _ = doJSON(t, r, http.MethodGet, "/api/me", admin, nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("停用后令牌立即失效", func(t *testing.T) {
		require.NoError(t, db.Model(&model.Profile{}).Where("id = ?", testAdminID).
			UpdateColumn("is_active", false).Error)
		w, body := doJSON(t, r, http.MethodGet, "/api/me", admin, nil)
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.NotEmpty(t, body["error"])
	})
}

func TestAdminWritesAreStamped(t *testing.T) {
	r, db := newTestEnv(t)

	w, body := doJSON(t, r, http.MethodPost, "/api/admin/products", adminToken(t), map[string]interface{}{
		"slug": "figure-b", "name": "Figure B", "price": 120000,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	id := int64(body["data"].(map[string]interface{})["id"].(float64))

	var p model.Product
	require.NoError(t, db.First(&p, id).Error)
	assert.Equal(t, int64(testAdminID), p.CreatedBy)
	assert.Equal(t, int64(testAdminID), p.UpdatedBy)
}

func TestPaymentVerifyRateLimit(t *testing.T) {
	r := newTestEngine(t)

	for i := 0; i < 3; i++ {
		w, _ := doJSON(t, r, http.MethodPost, "/api/payments/verify", "", map[string]interface{}{})
		require.NotEqual(t, http.StatusTooManyRequests, w.Code)
	}

	w, body := doJSON(t, r, http.MethodPost, "/api/payments/verify", "", map[string]interface{}{})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.NotEmpty(t, body["error"])

	// 其他公开接口不受影响
	w, _ = doJSON(t, r, http.MethodGet, "/api/products", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCheckoutFlow(t *testing.T) {
	r := newTestEngine(t)
	admin := adminToken(t)

	w, body := doJSON(t, r, http.MethodPost, "/api/admin/products", admin, map[string]interface{}{
		"slug": "figure-a", "name": "Figure A", "price": 240000,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	productID := body["data"].(map[string]interface{})["id"].(float64)

	w, body = doJSON(t, r, http.MethodGet, "/api/products", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), body["data"].(map[string]interface{})["total"])

	checkout := map[string]interface{}{
		"customer_name":  "Nguyễn Thị Hoa",
		"phone":          "0901234567",
		"email":          "hoa@example.com",
		"address":        "12 Lê Lợi, Q1",
		"payment_method": model.PaymentMethodBankTransfer,
		"items":          []map[string]interface{}{{"product_id": productID, "quantity": 1}},
	}
	w, body = doJSON(t, r, http.MethodPost, "/api/orders", "", checkout)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	orderNumber := body["data"].(map[string]interface{})["order_number"].(string)
	assert.Regexp(t, `^PO\d{11}$`, orderNumber)

	w, body = doJSON(t, r, http.MethodGet, "/api/orders/track?order_number="+orderNumber+"&contact=0901234567", "", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, float64(270000), body["data"].(map[string]interface{})["total"])

	w, _ = doJSON(t, r, http.MethodGet, "/api/orders/track?order_number="+orderNumber+"&contact=0999999999", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	t.Run("参数错误返回 400", func(t *testing.T) {
		bad := map[string]interface{}{
			"customer_name":  "Hoa",
			"phone":          "123",
			"email":          "hoa@example.com",
			"address":        "x",
			"payment_method": model.PaymentMethodCOD,
			"items":          []map[string]interface{}{{"product_id": productID, "quantity": 1}},
		}
		w, body := doJSON(t, r, http.MethodPost, "/api/orders", "", bad)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.NotEmpty(t, body["error"])
	})

	t.Run("非法状态流转返回 409", func(t *testing.T) {
		w, body := doJSON(t, r, http.MethodGet, "/api/admin/orders", admin, nil)
		require.Equal(t, http.StatusOK, w.Code)
		list := body["data"].(map[string]interface{})["list"].([]interface{})
		require.Len(t, list, 1)
		id := int64(list[0].(map[string]interface{})["id"].(float64))

		w, _ = doJSON(t, r, http.MethodPatch, "/api/admin/orders/"+strconv.FormatInt(id, 10)+"/status", admin,
			map[string]string{"status": model.OrderStatusShipping})
		assert.Equal(t, http.StatusConflict, w.Code)

		w, _ = doJSON(t, r, http.MethodPatch, "/api/admin/orders/"+strconv.FormatInt(id, 10)+"/status", admin,
			map[string]string{"status": model.OrderStatusPaid})
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestJobTriggerRateLimit(t *testing.T) {
	r := newTestEngine(t)
	admin := adminToken(t)

	w, body := doJSON(t, r, http.MethodPost, "/api/admin/jobs/auto-complete", admin, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotNil(t, body["data"])

	w, body = doJSON(t, r, http.MethodPost, "/api/admin/jobs/auto-complete", admin, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.NotEmpty(t, body["error"])

	// 未注入图片同步依赖时不注册该任务
	w, body = doJSON(t, r, http.MethodGet, "/api/admin/jobs", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	jobs := body["data"].(map[string]interface{})
	assert.Contains(t, jobs, string(middleware.JobAutoComplete))
	assert.NotContains(t, jobs, string(middleware.JobImageSync))
}

func TestSheetWebhookSecret(t *testing.T) {
	r := newTestEngine(t)

	w, _ := doJSON(t, r, http.MethodPost, "/api/webhooks/sheet/products", "", map[string]interface{}{
		"secret": "wrong", "rows": []interface{}{},
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, body := doJSON(t, r, http.MethodPost, "/api/webhooks/sheet/products", "", map[string]interface{}{
		"secret": "s3cret",
		"rows":   []map[string]interface{}{{"slug": "badge", "name": "Badge", "price": 50000}},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, float64(1), body["data"].(map[string]interface{})["upserted"])
}

func TestMarkCommissionPaidRoute(t *testing.T) {
	r := newTestEngine(t)
	admin := adminToken(t)

	w, body := doJSON(t, r, http.MethodPost, "/api/admin/affiliates/5/commissions/2025-03/paid", admin, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.NotEmpty(t, body["error"])

	w, _ = doJSON(t, r, http.MethodPost, "/api/admin/affiliates/5/commissions/bad/paid", admin, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
