package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"purin_order/internal/controller"
	"purin_order/internal/middleware"
	"purin_order/internal/model"
	"purin_order/pkg/logger"
)

// Controllers 路由依赖的控制器集合
type Controllers struct {
	User         *controller.UserController
	Product      *controller.ProductController
	Order        *controller.OrderController
	Payment      *controller.PaymentController
	Notification *controller.NotificationController
	Affiliate    *controller.AffiliateController
	Sync         *controller.SyncController
}

// Options 路由选项
type Options struct {
	CORSOrigins []string
	Auth        *middleware.Authenticator
	Limiter     *middleware.JobRateLimiter
	// ProofLimiter 付款凭证识别按 IP 限流，为空时每 IP 10 分钟 10 次
	ProofLimiter *middleware.IPRateLimiter
}

// SetupRouter 创建 gin 引擎并注册所有路由，opts.Auth 必填
func SetupRouter(log *zap.Logger, ctl *Controllers, opts Options) *gin.Engine {
	log = logger.OrNop(log)
	if opts.Limiter == nil {
		opts.Limiter = middleware.GetLimiter()
	}
	if opts.ProofLimiter == nil {
		opts.ProofLimiter = middleware.NewIPRateLimiter(0, 0)
	}

	r := gin.New()
	r.Use(
		logger.Recovery(log),
		logger.GinMiddleware(log.Named("http")),
		middleware.CORS(middleware.DefaultCORSConfig(opts.CORSOrigins)),
	)

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	InitRoutes(r, ctl, opts)
	return r
}

// InitRoutes 注册所有路由
func InitRoutes(r *gin.Engine, ctl *Controllers, opts Options) {
	limiter := opts.Limiter
	api := r.Group("/api")

	// ==================== 公开接口 ====================
	// 登录可选：登录用户下单会关联账号，管理员可看到隐藏商品
	public := api.Group("", opts.Auth.Optional())
	{
		auth := public.Group("/auth")
		{
			auth.POST("/register", ctl.User.Register)
			auth.POST("/login", ctl.User.Login)
			auth.POST("/refresh", ctl.User.RefreshToken)
		}

		products := public.Group("/products")
		{
			products.GET("", ctl.Product.List)
			products.GET("/:slug", ctl.Product.GetBySlug)
		}

		public.POST("/cart/quote", ctl.Order.Quote)

		orders := public.Group("/orders")
		{
			// Idempotency-Key 请求头防重复提交
			orders.POST("", ctl.Order.Checkout)
			orders.GET("/track", ctl.Order.Track)
		}

		// 每次识别都调用 AI，按 IP 限流
		public.POST("/payments/verify", middleware.IPRateLimit(opts.ProofLimiter), ctl.Payment.VerifyProof)

		// Apps Script 调用，body 中携带共享密钥
		public.POST("/webhooks/sheet/products", ctl.Sync.ImportProducts)
	}

	// ==================== 登录用户 ====================
	authed := api.Group("", opts.Auth.Required())
	{
		me := authed.Group("/me")
		{
			me.GET("", ctl.User.Me)
			me.PATCH("", ctl.User.UpdateProfile)
			me.GET("/orders", ctl.Order.ListMine)
			me.GET("/notifications", ctl.Notification.ListMine)
			me.POST("/notifications/:id/read", ctl.Notification.MarkRead)
		}

		affiliates := authed.Group("/affiliates")
		{
			affiliates.POST("", ctl.Affiliate.Register)
			affiliates.GET("/me", ctl.Affiliate.Dashboard)
		}
	}

	// ==================== 管理员 ====================
	admin := api.Group("/admin", opts.Auth.Required(), middleware.RequireRole(model.RoleAdmin))
	{
		products := admin.Group("/products")
		{
			products.POST("", ctl.Product.Create)
			products.PATCH("/:id", ctl.Product.Update)
			products.DELETE("/:id", ctl.Product.Delete)
		}

		orders := admin.Group("/orders")
		{
			orders.GET("", ctl.Order.List)
			orders.GET("/:id", ctl.Order.GetByID)
			orders.PATCH("/:id/status", ctl.Order.UpdateStatus)
			orders.POST("/export",
				middleware.JobRateLimitWith(limiter, middleware.JobSheetExport, 0),
				ctl.Order.Export,
			)
		}

		affiliates := admin.Group("/affiliates")
		{
			affiliates.GET("", ctl.Affiliate.List)
			affiliates.PATCH("/:id/status", ctl.Affiliate.UpdateStatus)
			affiliates.POST("/:id/commissions/:month/paid", ctl.Affiliate.MarkCommissionPaid)
		}

		admin.POST("/emails/order", ctl.Notification.SendOrderEmail)
		admin.GET("/ai/usage", ctl.Payment.Usage)

		// 手动触发批处理，与定时任务共享冷却
		jobs := admin.Group("/jobs")
		{
			jobs.GET("", ctl.Sync.Status)
			jobs.POST("/auto-complete",
				middleware.JobRateLimitWith(limiter, middleware.JobAutoComplete, 0),
				ctl.Sync.AutoComplete,
			)
			jobs.POST("/expiring-check",
				middleware.JobRateLimitWith(limiter, middleware.JobExpiringCheck, 0),
				ctl.Sync.CheckExpiring,
			)
			jobs.POST("/notifications",
				middleware.JobRateLimitWith(limiter, middleware.JobNotify, 0),
				ctl.Sync.DispatchNotifications,
			)
			jobs.POST("/image-sync",
				middleware.JobRateLimitWith(limiter, middleware.JobImageSync, 0),
				ctl.Sync.SyncImages,
			)
			jobs.POST("/commissions",
				middleware.JobRateLimitWith(limiter, middleware.JobCommission, 0),
				ctl.Affiliate.Recalculate,
			)
		}
	}
}
