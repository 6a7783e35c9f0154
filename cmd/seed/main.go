package main

import (
	"github.com/affpay-next/internal/config"
	"github.com/affpay-next/internal/constants"
	"github.com/affpay-next/internal/logger"
	"github.com/affpay-next/internal/models"
)

func main() {
	// 连接数据库
	cfg := config.Load()
	logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	stdLog := logger.StdLogger()
	if err := models.InitDB(cfg.Database.Driver, cfg.Database.DSN, models.DBPoolConfig{
		MaxOpenConns:           cfg.Database.Pool.MaxOpenConns,
		MaxIdleConns:           cfg.Database.Pool.MaxIdleConns,
		ConnMaxLifetimeSeconds: cfg.Database.Pool.ConnMaxLifetimeSeconds,
		ConnMaxIdleTimeSeconds: cfg.Database.Pool.ConnMaxIdleTimeSeconds,
	}); err != nil {
		stdLog.Fatalf("Failed to connect database: %v", err)
	}

	// 自动迁移
	if err := models.AutoMigrate(); err != nil {
		stdLog.Fatalf("Failed to migrate database: %v", err)
	}

	// 默认管理员
	if err := models.InitDefaultAdmin("", ""); err != nil {
		stdLog.Printf("Failed to init default admin: %v", err)
	}

	// 网关凭证占位（access_token/secret_key 需手动替换为真实值）
	secrets := []models.Secret{
		{
			Key: constants.SecretKeyMercadoPagoConfig,
			ValueJSON: models.JSON(map[string]interface{}{
				"access_token": "TEST-REPLACE-ME",
			}),
		},
		{
			Key: constants.SecretKeyStripeConfig,
			ValueJSON: models.JSON(map[string]interface{}{
				"secret_key": "sk_test_REPLACE_ME",
			}),
		},
	}
	for _, secret := range secrets {
		var existing models.Secret
		if err := models.DB.Where("key = ?", secret.Key).First(&existing).Error; err != nil {
			if err := models.DB.Create(&secret).Error; err != nil {
				stdLog.Printf("Failed to create secret %s: %v", secret.Key, err)
			} else {
				stdLog.Printf("Created secret: %s", secret.Key)
			}
		} else {
			stdLog.Printf("Secret already exists: %s", secret.Key)
		}
	}

	// 示例联盟客
	percent := 12.5
	affiliates := []models.Affiliate{
		{
			Name:               "Demo Affiliate BR",
			Email:              "demo-br@example.com",
			Status:             constants.AffiliateStatusActive,
			MercadoPagoPayeeID: "mp-payee-demo",
		},
		{
			Name:                "Demo Affiliate US",
			Email:               "demo-us@example.com",
			Status:              constants.AffiliateStatusActive,
			CommissionPercent:   &percent,
			StripeAccountID:     "acct_demo",
			StripeAccountStatus: constants.StripeAccountStatusConnected,
		},
	}
	for i := range affiliates {
		affiliate := &affiliates[i]
		var existing models.Affiliate
		if err := models.DB.Where("email = ?", affiliate.Email).First(&existing).Error; err != nil {
			if err := models.DB.Create(affiliate).Error; err != nil {
				stdLog.Printf("Failed to create affiliate %s: %v", affiliate.Email, err)
				continue
			}
			stdLog.Printf("Created affiliate: %s", affiliate.Email)
		} else {
			affiliate.ID = existing.ID
			stdLog.Printf("Affiliate already exists: %s", affiliate.Email)
		}

		code := "demo-br"
		if i == 1 {
			code = "demo-us"
		}
		var existingLink models.AffiliateLink
		if err := models.DB.Where("code = ?", code).First(&existingLink).Error; err != nil {
			link := models.AffiliateLink{AffiliateID: affiliate.ID, Code: code}
			if err := models.DB.Create(&link).Error; err != nil {
				stdLog.Printf("Failed to create link %s: %v", code, err)
			} else {
				stdLog.Printf("Created link: %s", code)
			}
		} else {
			stdLog.Printf("Link already exists: %s", code)
		}
	}

	stdLog.Printf("Seed completed")
}
