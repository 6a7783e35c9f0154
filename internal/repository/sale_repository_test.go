package repository

import (
	"fmt"
	"testing"
	"time"

	"github.com/affpay-next/internal/constants"
	"github.com/affpay-next/internal/models"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func setupSaleRepositoryTest(t *testing.T) (*GormSaleRepository, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:sale_repo_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(
		&models.Affiliate{},
		&models.AffiliateLink{},
		&models.AffiliateSale{},
	); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	return NewSaleRepository(db), db
}

func createTestSale(t *testing.T, db *gorm.DB, paymentID, status, splitMethod string, scheduledAt *time.Time) *models.AffiliateSale {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Second)
	sale := models.AffiliateSale{
		AffiliateID:          1,
		OriginatingPaymentID: paymentID,
		SaleAmount:           10000,
		CommissionAmount:     1000,
		CommissionPercent:    10,
		Currency:             "BRL",
		SplitMethod:          splitMethod,
		Status:               status,
		PayoutScheduledAt:    scheduledAt,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := db.Create(&sale).Error; err != nil {
		t.Fatalf("create sale failed: %v", err)
	}
	return &sale
}

func TestSaleRepositoryGetByOriginatingPaymentID(t *testing.T) {
	repo, db := setupSaleRepositoryTest(t)
	createTestSale(t, db, "pay_abc123", constants.SaleStatusPendingPayout, constants.SplitMethodMercadoPago, nil)

	got, err := repo.GetByOriginatingPaymentID("pay_abc123")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got == nil {
		t.Fatalf("sale should be found")
	}

	missing, err := repo.GetByOriginatingPaymentID("pay_missing")
	if err != nil {
		t.Fatalf("get missing failed: %v", err)
	}
	if missing != nil {
		t.Fatalf("missing payment should return nil")
	}
}

func TestSaleRepositoryUniqueOriginatingPaymentID(t *testing.T) {
	repo, db := setupSaleRepositoryTest(t)
	createTestSale(t, db, "pay_dup", constants.SaleStatusPendingPayout, constants.SplitMethodMercadoPago, nil)

	dup := models.AffiliateSale{
		AffiliateID:          1,
		OriginatingPaymentID: "pay_dup",
		SaleAmount:           5000,
		SplitMethod:          constants.SplitMethodManual,
		Status:               constants.SaleStatusPending,
	}
	if err := repo.Create(&dup); err == nil {
		t.Fatalf("duplicate originating payment id should fail")
	}
}

func TestSaleRepositoryListDueForPayout(t *testing.T) {
	repo, db := setupSaleRepositoryTest(t)
	now := time.Now().UTC().Truncate(time.Second)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	due := createTestSale(t, db, "pay_due", constants.SaleStatusPendingPayout, constants.SplitMethodMercadoPago, &past)
	missingSchedule := createTestSale(t, db, "pay_nosched", constants.SaleStatusPendingPayout, constants.SplitMethodStripeConnect, nil)
	createTestSale(t, db, "pay_future", constants.SaleStatusPendingPayout, constants.SplitMethodMercadoPago, &future)
	createTestSale(t, db, "pay_manual", constants.SaleStatusPending, constants.SplitMethodManual, &past)
	createTestSale(t, db, "pay_paid", constants.SaleStatusPaid, constants.SplitMethodMercadoPago, &past)

	rows, err := repo.ListDueForPayout(now)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows want 2 got %d", len(rows))
	}
	if rows[0].ID != due.ID || rows[1].ID != missingSchedule.ID {
		t.Fatalf("unexpected rows: %+v", rows)
	}
}

func TestSaleRepositoryListReadyForAvailability(t *testing.T) {
	repo, db := setupSaleRepositoryTest(t)
	now := time.Now().UTC().Truncate(time.Second)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	ready := createTestSale(t, db, "pay_manual_due", constants.SaleStatusPending, constants.SplitMethodManual, &past)
	createTestSale(t, db, "pay_manual_hold", constants.SaleStatusPending, constants.SplitMethodManual, &future)
	createTestSale(t, db, "pay_auto", constants.SaleStatusPendingPayout, constants.SplitMethodMercadoPago, &past)

	rows, err := repo.ListReadyForAvailability(now)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != ready.ID {
		t.Fatalf("unexpected rows: %+v", rows)
	}
}

func TestSaleRepositoryUpdateFields(t *testing.T) {
	repo, db := setupSaleRepositoryTest(t)
	sale := createTestSale(t, db, "pay_upd", constants.SaleStatusPendingPayout, constants.SplitMethodStripeConnect, nil)

	now := time.Now().UTC().Truncate(time.Second)
	err := repo.UpdateFields(sale.ID, map[string]interface{}{
		"status":          constants.SaleStatusPaid,
		"transfer_id":     "tr_001",
		"paid_at":         now,
		"payout_attempts": 1,
		"updated_at":      now,
	})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}

	got, err := repo.GetByID(sale.ID)
	if err != nil || got == nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Status != constants.SaleStatusPaid {
		t.Fatalf("status want paid got %s", got.Status)
	}
	if got.TransferID != "tr_001" {
		t.Fatalf("transfer id want tr_001 got %s", got.TransferID)
	}
	if got.PaidAt == nil {
		t.Fatalf("paid_at should be set")
	}
	if got.PayoutAttempts != 1 {
		t.Fatalf("attempts want 1 got %d", got.PayoutAttempts)
	}
}
