package provider

import (
	"github.com/affpay-next/internal/authz"
	"github.com/affpay-next/internal/cache"
	"github.com/affpay-next/internal/config"
	"github.com/affpay-next/internal/logger"
	"github.com/affpay-next/internal/models"
	"github.com/affpay-next/internal/notify"
	"github.com/affpay-next/internal/queue"
	"github.com/affpay-next/internal/repository"
	"github.com/affpay-next/internal/scheduler"
	"github.com/affpay-next/internal/service"
)

// Container 依赖注入容器
type Container struct {
	Config      *config.Config
	QueueClient *queue.Client
	Notifier    *notify.WebhookNotifier

	// Scheduler 由应用装配阶段注入，api-only 模式下为 nil
	Scheduler *scheduler.Scheduler

	// Repositories
	AdminRepo     repository.AdminRepository
	SettingRepo   repository.SettingRepository
	SecretRepo    repository.SecretRepository
	AffiliateRepo repository.AffiliateRepository
	SaleRepo      repository.SaleRepository

	// Services
	AuthzService       *authz.Service
	AuthService        *service.AuthService
	SettingService     *service.SettingService
	AttributionService *service.AttributionService
	SettlementService  *service.SettlementService
}

// NewContainer 初始化容器
func NewContainer(cfg *config.Config) *Container {
	// 初始化缓存
	if err := cache.InitRedis(&cfg.Redis); err != nil {
		logger.Warnw("provider_init_redis_failed", "error", err)
	}

	// 初始化队列客户端
	var queueClient *queue.Client
	if cfg.Queue.Enabled {
		qc, err := queue.NewClient(&cfg.Queue)
		if err != nil {
			logger.Errorw("provider_init_queue_client_failed", "error", err)
		} else {
			queueClient = qc
		}
	}

	c := &Container{
		Config:      cfg,
		QueueClient: queueClient,
		Notifier:    notify.NewWebhookNotifier(&cfg.Notify),
	}

	c.initRepositories()
	c.initServices()

	return c
}

func (c *Container) initRepositories() {
	db := models.DB
	c.AdminRepo = repository.NewAdminRepository(db)
	c.SettingRepo = repository.NewSettingRepository(db)
	c.SecretRepo = repository.NewSecretRepository(db)
	c.AffiliateRepo = repository.NewAffiliateRepository(db)
	c.SaleRepo = repository.NewSaleRepository(db)
}

func (c *Container) initServices() {
	authzService, err := authz.NewService(models.DB)
	if err != nil {
		logger.Errorw("provider_init_authz_failed", "error", err)
		panic(err)
	}
	c.AuthzService = authzService
	if err := c.AuthzService.BootstrapBuiltinRoles(); err != nil {
		logger.Errorw("provider_bootstrap_builtin_roles_failed", "error", err)
		panic(err)
	}

	c.SettingService = service.NewSettingService(c.SettingRepo)
	c.AuthService = service.NewAuthService(c.Config, c.AdminRepo)
	c.AttributionService = service.NewAttributionService(c.AffiliateRepo, c.SaleRepo, c.SettingService, c.QueueClient)
	c.SettlementService = service.NewSettlementService(
		c.AffiliateRepo,
		c.SaleRepo,
		c.SecretRepo,
		c.SettingService,
		c.QueueClient,
		&c.Config.Payout,
	)
}
