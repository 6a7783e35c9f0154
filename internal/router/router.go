package router

import (
	"fmt"
	"strings"

	"github.com/affpay-next/internal/cache"
	"github.com/affpay-next/internal/config"
	adminhandlers "github.com/affpay-next/internal/http/handlers/admin"
	publichandlers "github.com/affpay-next/internal/http/handlers/public"
	"github.com/affpay-next/internal/logger"
	"github.com/affpay-next/internal/provider"

	"github.com/gin-gonic/gin"
)

// SetupRouter 初始化路由
func SetupRouter(cfg *config.Config, c *provider.Container) *gin.Engine {
	log := logger.L
	if log == nil {
		log = logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	}
	r := gin.New()

	// 初始化 Handler（按公开/后台分组）
	publicHandler := publichandlers.New(c)
	adminHandler := adminhandlers.New(c)
	redisPrefix := strings.TrimSpace(cfg.Redis.Prefix)
	if redisPrefix == "" {
		redisPrefix = "affpay"
	}
	redisClient := cache.Client()
	adminLoginRule := RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:admin_login", redisPrefix),
		WindowSeconds: cfg.Security.LoginRateLimit.WindowSeconds,
		MaxRequests:   cfg.Security.LoginRateLimit.MaxAttempts,
		Message:       "登录过于频繁，请稍后再试",
	}

	// 中间件
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(log))
	r.Use(CORSMiddleware(cfg.CORS))

	// API 路由组
	apiV1 := r.Group("/api/v1")
	{
		// 结账系统回调（支付审核通过后归因）
		apiV1.POST("/webhooks/checkout", publicHandler.HandleCheckoutWebhook)

		// 管理员接口
		admin := apiV1.Group("/admin")
		{
			// 登录接口（无需鉴权）
			admin.POST("/auth/login", RateLimitMiddleware(redisClient, adminLoginRule, KeyByIPAndJSONField("username")), adminHandler.Login)

			// 需要鉴权的接口
			authorized := admin.Use(JWTAuthMiddleware(cfg.JWT.SecretKey, c.AdminRepo), AdminRBACMiddleware(c.AuthzService))
			{
				// 结算执行
				authorized.POST("/payouts/run", adminHandler.RunPayouts)
				authorized.POST("/availability/run", adminHandler.RunAvailability)
				authorized.GET("/scheduler/status", adminHandler.SchedulerStatus)

				// 结算单管理
				authorized.GET("/sales", adminHandler.ListSales)
				authorized.GET("/sales/:id", adminHandler.GetSale)
				authorized.POST("/sales/:id/retry", adminHandler.RetrySale)

				// 推广者管理
				authorized.GET("/affiliates", adminHandler.ListAffiliates)
				authorized.POST("/affiliates", adminHandler.CreateAffiliate)
				authorized.GET("/affiliates/:id", adminHandler.GetAffiliate)
				authorized.PUT("/affiliates/:id", adminHandler.UpdateAffiliate)
				authorized.POST("/affiliates/:id/links", adminHandler.CreateAffiliateLink)

				// 结算策略设置
				authorized.GET("/settings/payout", adminHandler.GetPayoutSetting)
				authorized.PUT("/settings/payout", adminHandler.UpdatePayoutSetting)
			}
		}
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
