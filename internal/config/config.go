package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// Config 应用配置
type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	HTTP      HTTPConfig
	Log       LogConfig
	Storage   StorageConfig
	AI        AIConfig
	Email     EmailConfig
	Sheet     SheetConfig
	Scheduler SchedulerConfig
	Business  BusinessConfig
}

type AppConfig struct {
	Name    string
	Env     string
	Port    string
	SiteURL string // 前台地址，用于邮件中的链接
}

type DatabaseConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	LogSQL          bool
	SlowThreshold   time.Duration
}

// RedisConfig Addr 为空时使用内存幂等存储
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret          string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	Issuer          string
}

type HTTPConfig struct {
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	CORSAllowOrigins []string
	// 付款凭证识别每 IP 在窗口内的次数上限
	ProofRateLimit  int
	ProofRateWindow time.Duration
}

type LogConfig struct {
	Level  string
	Format string // json, console
}

type StorageConfig struct {
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
	Endpoint  string
	CDNDomain string
	BasePath  string
	// HostMarker 图片 URL 中包含该子串即视为已迁移
	HostMarker string
}

type AIConfig struct {
	APIKey string
	Model  string
}

type EmailConfig struct {
	APIKey      string
	BaseURL     string
	From        string
	AdminEmails []string
}

type SheetConfig struct {
	WebhookURL string
	Secret     string
}

// ScheduleOff 写在任意 *_spec 上表示该任务仅手动触发
const ScheduleOff = "off"

type SchedulerConfig struct {
	Enabled          bool
	AutoCompleteSpec string
	ExpiringSpec     string
	NotifySpec       string
	ImageSyncSpec    string
	CommissionSpec   string
	JobTimeout       time.Duration
}

type BusinessConfig struct {
	AutoCompleteDays      int
	ExpiringWindow        time.Duration
	ShippingFee           int64
	FreeShippingThreshold int64
	NotifyBatchSize       int
}

// Load 加载配置
// 优先级: 环境变量 (PURIN_ 前缀) > config.yaml > 内置默认值
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetDefault("scheduler.enabled", true)

	v.SetEnvPrefix("PURIN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := fromViper(v)
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		App: AppConfig{
			Name:    v.GetString("app.name"),
			Env:     v.GetString("app.env"),
			Port:    v.GetString("app.port"),
			SiteURL: v.GetString("app.site_url"),
		},
		Database: DatabaseConfig{
			DSN:             v.GetString("database.dsn"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetDuration("database.conn_max_lifetime"),
			LogSQL:          v.GetBool("database.log_sql"),
			SlowThreshold:   v.GetDuration("database.slow_threshold"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret:          v.GetString("jwt.secret"),
			AccessTokenTTL:  v.GetDuration("jwt.access_token_ttl"),
			RefreshTokenTTL: v.GetDuration("jwt.refresh_token_ttl"),
			Issuer:          v.GetString("jwt.issuer"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:      v.GetDuration("http.read_timeout"),
			WriteTimeout:     v.GetDuration("http.write_timeout"),
			CORSAllowOrigins: v.GetStringSlice("http.cors_allow_origins"),
			ProofRateLimit:   v.GetInt("http.proof_rate_limit"),
			ProofRateWindow:  v.GetDuration("http.proof_rate_window"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		Storage: StorageConfig{
			Bucket:     v.GetString("storage.bucket"),
			Region:     v.GetString("storage.region"),
			AccessKey:  v.GetString("storage.access_key"),
			SecretKey:  v.GetString("storage.secret_key"),
			Endpoint:   v.GetString("storage.endpoint"),
			CDNDomain:  v.GetString("storage.cdn_domain"),
			BasePath:   v.GetString("storage.base_path"),
			HostMarker: v.GetString("storage.host_marker"),
		},
		AI: AIConfig{
			APIKey: v.GetString("ai.api_key"),
			Model:  v.GetString("ai.model"),
		},
		Email: EmailConfig{
			APIKey:      v.GetString("email.api_key"),
			BaseURL:     v.GetString("email.base_url"),
			From:        v.GetString("email.from"),
			AdminEmails: v.GetStringSlice("email.admin_emails"),
		},
		Sheet: SheetConfig{
			WebhookURL: v.GetString("sheet.webhook_url"),
			Secret:     v.GetString("sheet.secret"),
		},
		Scheduler: SchedulerConfig{
			Enabled:          v.GetBool("scheduler.enabled"),
			AutoCompleteSpec: v.GetString("scheduler.auto_complete_spec"),
			ExpiringSpec:     v.GetString("scheduler.expiring_spec"),
			NotifySpec:       v.GetString("scheduler.notify_spec"),
			ImageSyncSpec:    v.GetString("scheduler.image_sync_spec"),
			CommissionSpec:   v.GetString("scheduler.commission_spec"),
			JobTimeout:       v.GetDuration("scheduler.job_timeout"),
		},
		Business: BusinessConfig{
			AutoCompleteDays:      v.GetInt("business.auto_complete_days"),
			ExpiringWindow:        v.GetDuration("business.expiring_window"),
			ShippingFee:           v.GetInt64("business.shipping_fee"),
			FreeShippingThreshold: v.GetInt64("business.free_shipping_threshold"),
			NotifyBatchSize:       v.GetInt("business.notify_batch_size"),
		},
	}
}

func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "purin-order"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.App.SiteURL == "" {
		cfg.App.SiteURL = "http://localhost:5173"
	}
	if cfg.Database.DSN == "" {
		cfg.Database.DSN = "host=localhost user=postgres password=postgres dbname=purin_order port=5432 sslmode=disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 50
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 10
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = time.Hour
	}
	if cfg.JWT.Secret == "" {
		cfg.JWT.Secret = "purin-order-dev-secret"
	}
	if cfg.JWT.AccessTokenTTL == 0 {
		cfg.JWT.AccessTokenTTL = 2 * time.Hour
	}
	if cfg.JWT.RefreshTokenTTL == 0 {
		cfg.JWT.RefreshTokenTTL = 7 * 24 * time.Hour
	}
	if cfg.JWT.Issuer == "" {
		cfg.JWT.Issuer = "purin-order"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 60 * time.Second
	}
	if len(cfg.HTTP.CORSAllowOrigins) == 0 {
		cfg.HTTP.CORSAllowOrigins = []string{"*"}
	}
	if cfg.HTTP.ProofRateLimit <= 0 {
		cfg.HTTP.ProofRateLimit = 10
	}
	if cfg.HTTP.ProofRateWindow <= 0 {
		cfg.HTTP.ProofRateWindow = 10 * time.Minute
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Storage.BasePath == "" {
		cfg.Storage.BasePath = "products"
	}
	if cfg.Storage.HostMarker == "" {
		switch {
		case cfg.Storage.CDNDomain != "":
			cfg.Storage.HostMarker = cfg.Storage.CDNDomain
		case cfg.Storage.Bucket != "":
			cfg.Storage.HostMarker = cfg.Storage.Bucket + ".s3."
		}
	}
	if cfg.AI.Model == "" {
		cfg.AI.Model = "gemini-2.5-flash"
	}
	if cfg.Email.BaseURL == "" {
		cfg.Email.BaseURL = "https://api.resend.com"
	}
	if cfg.Email.From == "" {
		cfg.Email.From = "Purin Order <no-reply@purinorder.vn>"
	}
	if cfg.Scheduler.AutoCompleteSpec == "" {
		cfg.Scheduler.AutoCompleteSpec = "0 0 * * * *"
	}
	if cfg.Scheduler.ExpiringSpec == "" {
		cfg.Scheduler.ExpiringSpec = "0 */30 * * * *"
	}
	if cfg.Scheduler.NotifySpec == "" {
		cfg.Scheduler.NotifySpec = "0 * * * * *"
	}
	if cfg.Scheduler.ImageSyncSpec == "" {
		cfg.Scheduler.ImageSyncSpec = "0 30 3 * * *"
	}
	if cfg.Scheduler.CommissionSpec == "" {
		cfg.Scheduler.CommissionSpec = "0 15 0 * * *"
	}
	if cfg.Scheduler.JobTimeout == 0 {
		cfg.Scheduler.JobTimeout = 10 * time.Minute
	}
	if cfg.Business.AutoCompleteDays == 0 {
		cfg.Business.AutoCompleteDays = 7
	}
	if cfg.Business.ExpiringWindow == 0 {
		cfg.Business.ExpiringWindow = 24 * time.Hour
	}
	if cfg.Business.ShippingFee == 0 {
		cfg.Business.ShippingFee = 30000
	}
	if cfg.Business.FreeShippingThreshold == 0 {
		cfg.Business.FreeShippingThreshold = 500000
	}
	if cfg.Business.NotifyBatchSize == 0 {
		cfg.Business.NotifyBatchSize = 50
	}
}

// Validate 校验配置
func (c *Config) Validate() error {
	if c.IsProduction() && (c.JWT.Secret == "" || c.JWT.Secret == "purin-order-dev-secret") {
		return fmt.Errorf("jwt.secret must be set in production")
	}
	if c.Business.AutoCompleteDays < 1 {
		return fmt.Errorf("business.auto_complete_days must be positive, got %d", c.Business.AutoCompleteDays)
	}

	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	specs := map[string]string{
		"auto_complete_spec": c.Scheduler.AutoCompleteSpec,
		"expiring_spec":      c.Scheduler.ExpiringSpec,
		"notify_spec":        c.Scheduler.NotifySpec,
		"image_sync_spec":    c.Scheduler.ImageSyncSpec,
		"commission_spec":    c.Scheduler.CommissionSpec,
	}
	for name, spec := range specs {
		if spec == ScheduleOff {
			continue
		}
		if _, err := parser.Parse(spec); err != nil {
			return fmt.Errorf("scheduler.%s invalid: %w", name, err)
		}
	}
	return nil
}

// IsProduction 是否生产环境
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}
