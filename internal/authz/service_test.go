package authz

import (
	"fmt"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func setupAuthzServiceTest(t *testing.T) *Service {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	svc, err := NewService(db)
	if err != nil {
		t.Fatalf("new authz service failed: %v", err)
	}
	return svc
}

func TestEnforceAdminWithRolePolicy(t *testing.T) {
	svc := setupAuthzServiceTest(t)
	if err := svc.GrantRolePolicy("ops", "/admin/sales/:id/retry", "POST"); err != nil {
		t.Fatalf("grant role policy failed: %v", err)
	}
	if err := svc.SetAdminRoles(1, []string{"ops"}); err != nil {
		t.Fatalf("set admin roles failed: %v", err)
	}

	allow, err := svc.EnforceAdmin(1, "/api/v1/admin/sales/42/retry", "post")
	if err != nil {
		t.Fatalf("enforce allow failed: %v", err)
	}
	if !allow {
		t.Fatalf("expected allow=true")
	}

	allow, err = svc.EnforceAdmin(1, "/api/v1/admin/affiliates", "POST")
	if err != nil {
		t.Fatalf("enforce deny failed: %v", err)
	}
	if allow {
		t.Fatalf("expected allow=false")
	}
}

func TestBootstrapBuiltinRoles(t *testing.T) {
	svc := setupAuthzServiceTest(t)
	if err := svc.BootstrapBuiltinRoles(); err != nil {
		t.Fatalf("bootstrap builtin roles failed: %v", err)
	}
	if err := svc.SetAdminRoles(2, []string{"settlement_operator"}); err != nil {
		t.Fatalf("set admin roles failed: %v", err)
	}

	allow, err := svc.EnforceAdmin(2, "/api/v1/admin/payouts/run", "POST")
	if err != nil {
		t.Fatalf("enforce run failed: %v", err)
	}
	if !allow {
		t.Fatalf("settlement_operator should run payouts")
	}

	// 继承 readonly_auditor 的只读权限
	allow, err = svc.EnforceAdmin(2, "/api/v1/admin/sales", "GET")
	if err != nil {
		t.Fatalf("enforce read failed: %v", err)
	}
	if !allow {
		t.Fatalf("settlement_operator should inherit read access")
	}

	// 管理联盟客属于 affiliate_manager，不应放行
	allow, err = svc.EnforceAdmin(2, "/api/v1/admin/affiliates", "POST")
	if err != nil {
		t.Fatalf("enforce deny failed: %v", err)
	}
	if allow {
		t.Fatalf("settlement_operator should not manage affiliates")
	}
}

func TestSetAdminRolesOverride(t *testing.T) {
	svc := setupAuthzServiceTest(t)
	if err := svc.GrantRolePolicy("ops", "/admin/scheduler/status", "GET"); err != nil {
		t.Fatalf("grant ops policy failed: %v", err)
	}
	if err := svc.GrantRolePolicy("finance", "/admin/settings/payout", "GET"); err != nil {
		t.Fatalf("grant finance policy failed: %v", err)
	}
	if err := svc.SetAdminRoles(3, []string{"ops"}); err != nil {
		t.Fatalf("set admin roles failed: %v", err)
	}
	if err := svc.SetAdminRoles(3, []string{"finance"}); err != nil {
		t.Fatalf("override admin roles failed: %v", err)
	}

	roles, err := svc.GetAdminRoles(3)
	if err != nil {
		t.Fatalf("get admin roles failed: %v", err)
	}
	if len(roles) != 1 || roles[0] != "role:finance" {
		t.Fatalf("roles = %v, 期望仅 role:finance", roles)
	}

	allow, err := svc.EnforceAdmin(3, "/api/v1/admin/scheduler/status", "GET")
	if err != nil {
		t.Fatalf("enforce failed: %v", err)
	}
	if allow {
		t.Fatalf("覆盖后旧角色权限应失效")
	}
}
