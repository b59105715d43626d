package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"purin_order/internal/config"
	"purin_order/internal/controller"
	"purin_order/internal/middleware"
	"purin_order/internal/model"
	"purin_order/internal/repository"
	"purin_order/internal/router"
	"purin_order/internal/service"
	"purin_order/internal/task"
	"purin_order/pkg/cache"
	"purin_order/pkg/database"
	"purin_order/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	defer func() { _ = log.Sync() }()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	// 1. 初始化数据库
	db, err := initDatabase(cfg, log)
	if err != nil {
		log.Fatal("数据库初始化失败", zap.Error(err))
	}

	// 2. 初始化依赖
	deps, err := initDependencies(cfg, db, log)
	if err != nil {
		log.Fatal("依赖初始化失败", zap.Error(err))
	}

	// 3. 启动定时任务
	initTasks(cfg, deps, log)

	// 4. 初始化路由
	r := router.SetupRouter(log, deps.Controllers, router.Options{
		CORSOrigins:  cfg.HTTP.CORSAllowOrigins,
		Auth:         deps.Auth,
		Limiter:      deps.Limiter,
		ProofLimiter: middleware.NewIPRateLimiter(cfg.HTTP.ProofRateLimit, cfg.HTTP.ProofRateWindow),
	})

	// 5. 启动服务
	startServer(cfg, r, deps, log)
}

// ==================== 依赖容器 ====================

// Dependencies 依赖容器
type Dependencies struct {
	DB          *gorm.DB
	Repos       *Repositories
	Services    *Services
	Controllers *router.Controllers
	Idempotency cache.IdempotencyStore
	Auth        *middleware.Authenticator
	Limiter     *middleware.JobRateLimiter
	Tasks       *task.TaskManager
}

// Repositories 仓库集合
type Repositories struct {
	Profile      repository.ProfileRepository
	Product      repository.ProductRepository
	Order        repository.OrderRepository
	Affiliate    repository.AffiliateRepository
	Notification repository.NotificationRepository
	AICallLog    repository.AICallLogRepository
}

// Services 服务集合
type Services struct {
	User         *service.UserService
	Product      *service.ProductService
	Order        *service.OrderService
	Payment      *service.PaymentService
	Affiliate    *service.AffiliateService
	Notification *service.NotificationService
	Email        *service.EmailService
	ImageSync    *service.ImageSyncService
	Sheet        *service.SheetService
}

// ==================== 初始化函数 ====================

// initDatabase 初始化数据库
func initDatabase(cfg *config.Config, log *zap.Logger) (*gorm.DB, error) {
	db, err := database.InitDB(cfg.Database.DSN, database.Options{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		LogSQL:          cfg.Database.LogSQL,
		SlowThreshold:   cfg.Database.SlowThreshold,
	}, log,
		// Account
		&model.Profile{},
		// Catalog
		&model.Product{},
		// Order
		&model.Order{}, &model.OrderItem{}, &model.OrderStatusHistory{},
		// Affiliate
		&model.Affiliate{}, &model.AffiliateCommission{},
		// Notification & AI
		&model.Notification{}, &model.AICallLog{},
	)
	if err != nil {
		return nil, err
	}

	if err := middleware.RegisterAuditCallbacks(db); err != nil {
		return nil, err
	}
	return db, nil
}

// initDependencies 初始化所有依赖
func initDependencies(cfg *config.Config, db *gorm.DB, log *zap.Logger) (*Dependencies, error) {
	// -------- Repo 层 --------
	repos := initRepositories(db)

	// -------- 基础设施 --------
	idem, err := initIdempotencyStore(cfg, log)
	if err != nil {
		return nil, err
	}
	storage := initStorage(cfg, log)

	// -------- 外部集成 --------
	email := service.NewEmailService(service.EmailConfig{
		APIKey:      cfg.Email.APIKey,
		BaseURL:     cfg.Email.BaseURL,
		From:        cfg.Email.From,
		AdminEmails: cfg.Email.AdminEmails,
		SiteURL:     cfg.App.SiteURL,
	}, log)
	images := service.NewImageSyncService(storage, repos.Product, cfg.Storage.HostMarker, log)
	sheet := service.NewSheetService(service.SheetConfig{
		WebhookURL: cfg.Sheet.WebhookURL,
		Secret:     cfg.Sheet.Secret,
	}, repos.Product, repos.Order, images, idem, log)

	// -------- 业务服务 --------
	services := &Services{
		Email:     email,
		ImageSync: images,
		Sheet:     sheet,
	}
	tokens := middleware.NewTokenIssuer(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.AccessTokenTTL, cfg.JWT.RefreshTokenTTL)
	services.User = service.NewUserService(repos.Profile, repos.Affiliate, tokens, log)
	services.Notification = service.NewNotificationService(repos.Notification, email, log)
	services.Product = service.NewProductService(repos.Product, repos.Notification, email, cfg.Business.ExpiringWindow, log)
	services.Order = service.NewOrderService(
		repos.Order, repos.Product, repos.Affiliate, repos.Notification,
		email, sheet, idem,
		service.OrderConfig{
			ShippingFee:           cfg.Business.ShippingFee,
			FreeShippingThreshold: cfg.Business.FreeShippingThreshold,
			AutoCompleteDays:      cfg.Business.AutoCompleteDays,
		},
		log,
	)
	services.Payment = service.NewPaymentService(
		service.NewGeminiAnalyzer(cfg.AI.APIKey, cfg.AI.Model),
		repos.Order, repos.Notification, repos.AICallLog, log,
	)
	services.Affiliate = service.NewAffiliateService(
		repos.Affiliate, repos.Order, repos.Profile, repos.Notification,
		cfg.App.SiteURL, log,
	)

	// -------- 定时任务 --------
	limiter := middleware.GetLimiter()
	tasks := task.NewTaskManager(&task.TaskManagerDeps{
		Orders:        services.Order,
		Products:      services.Product,
		Notifications: services.Notification,
		Images:        services.ImageSync,
		Commissions:   services.Affiliate,
	}, &task.TaskManagerConfig{
		AutoCompleteSpec: cfg.Scheduler.AutoCompleteSpec,
		ExpiringSpec:     cfg.Scheduler.ExpiringSpec,
		NotifySpec:       cfg.Scheduler.NotifySpec,
		ImageSyncSpec:    cfg.Scheduler.ImageSyncSpec,
		CommissionSpec:   cfg.Scheduler.CommissionSpec,
		JobTimeout:       cfg.Scheduler.JobTimeout,
		NotifyBatchSize:  cfg.Business.NotifyBatchSize,
	}, limiter, log)

	// -------- Controller 层 --------
	controllers := initControllers(services, tasks, log)

	return &Dependencies{
		DB:          db,
		Repos:       repos,
		Services:    services,
		Controllers: controllers,
		Idempotency: idem,
		Auth:        middleware.NewAuthenticator(tokens, repos.Profile),
		Limiter:     limiter,
		Tasks:       tasks,
	}, nil
}

// initRepositories 初始化所有仓库
func initRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Profile:      repository.NewProfileRepository(db),
		Product:      repository.NewProductRepository(db),
		Order:        repository.NewOrderRepository(db),
		Affiliate:    repository.NewAffiliateRepository(db),
		Notification: repository.NewNotificationRepository(db),
		AICallLog:    repository.NewAICallLogRepository(db),
	}
}

// initIdempotencyStore 配置了 Redis 则使用 Redis，否则退化为进程内存储
func initIdempotencyStore(cfg *config.Config, log *zap.Logger) (cache.IdempotencyStore, error) {
	if cfg.Redis.Addr == "" {
		log.Info("未配置 Redis，使用内存幂等存储")
		return cache.NewMemoryStore(), nil
	}
	store, err := cache.NewRedisStore(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, err
	}
	log.Info("Redis 连接成功", zap.String("addr", cfg.Redis.Addr))
	return store, nil
}

// initStorage 初始化对象存储，未配置时返回 nil（图片迁移降级为保留原链接）
func initStorage(cfg *config.Config, log *zap.Logger) service.StorageProvider {
	if cfg.Storage.Bucket == "" {
		log.Warn("未配置存储 bucket，图片迁移不可用")
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s3, err := service.NewS3Storage(ctx, service.StorageConfig{
		Bucket:    cfg.Storage.Bucket,
		Region:    cfg.Storage.Region,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		Endpoint:  cfg.Storage.Endpoint,
		CDNDomain: cfg.Storage.CDNDomain,
		BasePath:  cfg.Storage.BasePath,
	})
	if err != nil {
		log.Warn("存储服务初始化失败", zap.Error(err))
		return nil
	}
	return s3
}

// initControllers 初始化所有控制器
func initControllers(svc *Services, tasks *task.TaskManager, log *zap.Logger) *router.Controllers {
	return &router.Controllers{
		User:         controller.NewUserController(svc.User, log),
		Product:      controller.NewProductController(svc.Product, log),
		Order:        controller.NewOrderController(svc.Order, svc.Sheet, log),
		Payment:      controller.NewPaymentController(svc.Payment, log),
		Notification: controller.NewNotificationController(svc.Notification, svc.Email, log),
		Affiliate:    controller.NewAffiliateController(svc.Affiliate, log),
		Sync:         controller.NewSyncController(tasks, svc.Sheet, svc.ImageSync, log),
	}
}

// ==================== 定时任务 ====================

// initTasks 启动定时任务
func initTasks(cfg *config.Config, deps *Dependencies, log *zap.Logger) {
	if !cfg.Scheduler.Enabled {
		log.Info("定时任务已禁用，仅支持手动触发")
		return
	}
	if err := deps.Tasks.Start(); err != nil {
		log.Fatal("定时任务启动失败", zap.Error(err))
	}
	log.Info("定时任务已启动")
}

// ==================== 服务启动 ====================

// startServer 启动服务
func startServer(cfg *config.Config, r *gin.Engine, deps *Dependencies, log *zap.Logger) {
	srv := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      r,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	// 异步启动服务
	go func() {
		log.Info("服务启动", zap.String("addr", srv.Addr), zap.String("env", cfg.App.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("服务启动失败", zap.Error(err))
		}
	}()

	// 等待退出信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("正在关闭服务...")

	// 先停止定时任务，再优雅关闭 HTTP，最多等待 30 秒
	deps.Tasks.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("服务强制关闭", zap.Error(err))
	}
	if err := deps.Idempotency.Close(); err != nil {
		log.Warn("关闭幂等存储失败", zap.Error(err))
	}
	if sqlDB, err := deps.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}

	log.Info("服务已退出")
}
