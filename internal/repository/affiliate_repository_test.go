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

func setupAffiliateRepositoryTest(t *testing.T) (*GormAffiliateRepository, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:affiliate_repo_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(
		&models.Affiliate{},
		&models.AffiliateLink{},
	); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	return NewAffiliateRepository(db), db
}

func createTestAffiliate(t *testing.T, db *gorm.DB, pending, earnings int64) *models.Affiliate {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Second)
	affiliate := models.Affiliate{
		Name:          "Alpha Partner",
		Email:         fmt.Sprintf("alpha_%d@example.com", time.Now().UnixNano()),
		Status:        constants.AffiliateStatusActive,
		PendingAmount: pending,
		TotalEarnings: earnings,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := db.Create(&affiliate).Error; err != nil {
		t.Fatalf("create affiliate failed: %v", err)
	}
	return &affiliate
}

func TestAffiliateRepositoryCreditPendingEarnings(t *testing.T) {
	repo, db := setupAffiliateRepositoryTest(t)
	affiliate := createTestAffiliate(t, db, 0, 0)

	if err := repo.CreditPendingEarnings(affiliate.ID, 1500, time.Now().UTC()); err != nil {
		t.Fatalf("credit failed: %v", err)
	}

	got, err := repo.GetByID(affiliate.ID)
	if err != nil || got == nil {
		t.Fatalf("get affiliate failed: %v", err)
	}
	if got.PendingAmount != 1500 {
		t.Fatalf("pending want 1500 got %d", got.PendingAmount)
	}
	if got.TotalEarnings != 1500 {
		t.Fatalf("earnings want 1500 got %d", got.TotalEarnings)
	}
}

func TestAffiliateRepositoryDebitClampsAtZero(t *testing.T) {
	repo, db := setupAffiliateRepositoryTest(t)
	affiliate := createTestAffiliate(t, db, 500, 500)

	// 扣减金额大于余额时落 0，不出现负数
	if err := repo.DebitPendingEarnings(affiliate.ID, 800, time.Now().UTC()); err != nil {
		t.Fatalf("debit failed: %v", err)
	}

	got, err := repo.GetByID(affiliate.ID)
	if err != nil || got == nil {
		t.Fatalf("get affiliate failed: %v", err)
	}
	if got.PendingAmount != 0 {
		t.Fatalf("pending want 0 got %d", got.PendingAmount)
	}
	if got.TotalEarnings != 0 {
		t.Fatalf("earnings want 0 got %d", got.TotalEarnings)
	}
}

func TestAffiliateRepositorySettlePendingToPaid(t *testing.T) {
	repo, db := setupAffiliateRepositoryTest(t)
	affiliate := createTestAffiliate(t, db, 2000, 2000)

	if err := repo.SettlePendingToPaid(affiliate.ID, 1200, time.Now().UTC()); err != nil {
		t.Fatalf("settle failed: %v", err)
	}

	got, err := repo.GetByID(affiliate.ID)
	if err != nil || got == nil {
		t.Fatalf("get affiliate failed: %v", err)
	}
	if got.PendingAmount != 800 {
		t.Fatalf("pending want 800 got %d", got.PendingAmount)
	}
	if got.PaidAmount != 1200 {
		t.Fatalf("paid want 1200 got %d", got.PaidAmount)
	}
	if got.TotalEarnings != 2000 {
		t.Fatalf("earnings untouched want 2000 got %d", got.TotalEarnings)
	}
}

func TestAffiliateRepositorySettlePendingToAvailable(t *testing.T) {
	repo, db := setupAffiliateRepositoryTest(t)
	affiliate := createTestAffiliate(t, db, 900, 900)

	if err := repo.SettlePendingToAvailable(affiliate.ID, 900, time.Now().UTC()); err != nil {
		t.Fatalf("settle failed: %v", err)
	}

	got, err := repo.GetByID(affiliate.ID)
	if err != nil || got == nil {
		t.Fatalf("get affiliate failed: %v", err)
	}
	if got.PendingAmount != 0 {
		t.Fatalf("pending want 0 got %d", got.PendingAmount)
	}
	if got.AvailableAmount != 900 {
		t.Fatalf("available want 900 got %d", got.AvailableAmount)
	}
}

func TestAffiliateRepositoryLinkConversions(t *testing.T) {
	repo, db := setupAffiliateRepositoryTest(t)
	affiliate := createTestAffiliate(t, db, 0, 0)

	link := models.AffiliateLink{
		AffiliateID: affiliate.ID,
		Code:        "SPRING24",
	}
	if err := repo.CreateLink(&link); err != nil {
		t.Fatalf("create link failed: %v", err)
	}

	if err := repo.IncrementLinkConversions(link.ID); err != nil {
		t.Fatalf("increment failed: %v", err)
	}
	if err := repo.IncrementLinkConversions(link.ID); err != nil {
		t.Fatalf("increment failed: %v", err)
	}

	got, err := repo.GetLinkByCode("SPRING24")
	if err != nil || got == nil {
		t.Fatalf("get link failed: %v", err)
	}
	if got.Conversions != 2 {
		t.Fatalf("conversions want 2 got %d", got.Conversions)
	}
}

func TestAffiliateRepositoryListByStatus(t *testing.T) {
	repo, db := setupAffiliateRepositoryTest(t)
	active := createTestAffiliate(t, db, 0, 0)
	suspended := createTestAffiliate(t, db, 0, 0)
	if err := repo.UpdateStatus(suspended.ID, constants.AffiliateStatusSuspended, time.Now().UTC()); err != nil {
		t.Fatalf("update status failed: %v", err)
	}

	rows, total, err := repo.List(AffiliateListFilter{Status: constants.AffiliateStatusActive, Page: 1, PageSize: 10})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if total != 1 {
		t.Fatalf("total want 1 got %d", total)
	}
	if len(rows) != 1 || rows[0].ID != active.ID {
		t.Fatalf("unexpected rows: %+v", rows)
	}
}
