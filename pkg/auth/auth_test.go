package auth

import (
	"errors"
	"testing"

	"github.com/routetap/routetap/pkg/util"
)

func TestContext_Chaining(t *testing.T) {
	ctx := NewContext().
		WithDevice("core1-nyc").
		WithGroup("core").
		WithLayer("bgp").
		WithResource("run-20260731-001")

	if ctx.Device != "core1-nyc" {
		t.Errorf("Device = %q", ctx.Device)
	}
	if ctx.Group != "core" {
		t.Errorf("Group = %q", ctx.Group)
	}
	if ctx.Layer != "bgp" {
		t.Errorf("Layer = %q", ctx.Layer)
	}
	if ctx.Resource != "run-20260731-001" {
		t.Errorf("Resource = %q", ctx.Resource)
	}
}

func createTestPolicy() *Policy {
	return &Policy{
		SuperUsers: []string{"admin", "root"},
		UserGroups: map[string][]string{
			"neteng": {"alice", "bob"},
			"netops": {"charlie", "diana"},
			"viewer": {"eve"},
		},
		Permissions: map[string][]string{
			"all":               {"neteng"},
			"collect.run":       {"neteng", "netops"},
			"collect.group":     {"neteng", "netops", "viewer"},
			"analyze.security":  {"neteng"},
			"connectivity.test": {"neteng", "netops", "viewer"},
		},
		Groups: map[string]*GroupPolicy{
			"core": {
				Permissions: map[string][]string{
					"collect.run": {"netops"}, // scoped to core; fleet-wide grants still apply
				},
			},
			"lab": {
				Permissions: map[string][]string{
					"all": {"neteng"}, // neteng in lab; fleet-wide grants still apply
				},
			},
		},
	}
}

func TestChecker_SuperUser(t *testing.T) {
	policy := createTestPolicy()
	checker := NewChecker(policy)
	checker.SetUser("admin")

	if err := checker.Check(PermCollectRun, nil); err != nil {
		t.Errorf("Superuser should be allowed: %v", err)
	}
	if err := checker.Check(PermAnalyzeSecurity, nil); err != nil {
		t.Errorf("Superuser should be allowed: %v", err)
	}

	if !checker.IsSuperUser() {
		t.Error("admin should be superuser")
	}
}

func TestChecker_GlobalPermissions(t *testing.T) {
	policy := createTestPolicy()
	checker := NewChecker(policy)

	t.Run("user in allowed group", func(t *testing.T) {
		checker.SetUser("alice") // In neteng
		if err := checker.Check(PermCollectRun, nil); err != nil {
			t.Errorf("alice (neteng) should have collect.run: %v", err)
		}
	})

	t.Run("user with 'all' permission", func(t *testing.T) {
		checker.SetUser("bob") // In neteng which has 'all'
		if err := checker.Check(PermAnalyzeSecurity, nil); err != nil {
			t.Errorf("bob (neteng with 'all') should have analyze.security: %v", err)
		}
	})

	t.Run("user without permission", func(t *testing.T) {
		checker.SetUser("eve") // In viewer only
		if err := checker.Check(PermCollectRun, nil); err == nil {
			t.Error("eve (viewer) should not have collect.run")
		}
	})
}

func TestChecker_GroupPermissions(t *testing.T) {
	policy := createTestPolicy()
	checker := NewChecker(policy)

	t.Run("group-specific override", func(t *testing.T) {
		checker.SetUser("charlie") // In netops
		ctx := NewContext().WithGroup("core")

		if err := checker.Check(PermCollectRun, ctx); err != nil {
			t.Errorf("charlie should have permission via group override: %v", err)
		}
	})

	t.Run("group with 'all' permission", func(t *testing.T) {
		checker.SetUser("alice") // In neteng
		ctx := NewContext().WithGroup("lab")

		if err := checker.Check(PermCollectRun, ctx); err != nil {
			t.Errorf("alice should have permission via group 'all': %v", err)
		}
	})

	t.Run("no group permission falls back to global", func(t *testing.T) {
		checker.SetUser("diana") // In netops
		ctx := NewContext().WithGroup("lab")

		// diana is netops, lab group has no netops permission, but global does
		if err := checker.Check(PermCollectRun, ctx); err != nil {
			t.Errorf("diana should have permission via global fallback: %v", err)
		}
	})
}

func TestChecker_PermissionError(t *testing.T) {
	policy := createTestPolicy()
	checker := NewChecker(policy)
	checker.SetUser("eve")

	ctx := NewContext().WithGroup("core").WithDevice("core1-nyc")
	err := checker.Check(PermCollectRun, ctx)

	if err == nil {
		t.Fatal("Expected error")
	}

	var permErr *PermissionError
	if !errors.As(err, &permErr) {
		t.Fatalf("Expected PermissionError, got %T", err)
	}

	if permErr.User != "eve" {
		t.Errorf("User = %q", permErr.User)
	}
	if permErr.Permission != PermCollectRun {
		t.Errorf("Permission = %q", permErr.Permission)
	}

	msg := err.Error()
	if msg == "" {
		t.Error("Error message should not be empty")
	}

	if !errors.Is(err, util.ErrPermissionDenied) {
		t.Error("Should unwrap to ErrPermissionDenied")
	}
}

func TestChecker_ListPermissions(t *testing.T) {
	policy := createTestPolicy()
	checker := NewChecker(policy)

	t.Run("superuser", func(t *testing.T) {
		checker.SetUser("admin")
		perms := checker.ListPermissions()
		if len(perms) != 1 || perms[0] != PermAll {
			t.Errorf("Superuser should have PermAll only, got %v", perms)
		}
	})

	t.Run("regular user", func(t *testing.T) {
		checker.SetUser("eve") // In viewer
		perms := checker.ListPermissions()

		permMap := make(map[Permission]bool)
		for _, p := range perms {
			permMap[p] = true
		}

		if !permMap[PermCollectGroup] {
			t.Error("eve should have collect.group")
		}
		if !permMap[PermConnectivityTest] {
			t.Error("eve should have connectivity.test")
		}
		if permMap[PermCollectRun] {
			t.Error("eve should not have collect.run")
		}
	})
}

func TestChecker_GetUserGroups(t *testing.T) {
	policy := createTestPolicy()
	checker := NewChecker(policy)

	groups := checker.GetUserGroups("alice")
	if len(groups) != 1 || groups[0] != "neteng" {
		t.Errorf("alice groups = %v, want [neteng]", groups)
	}

	groups = checker.GetUserGroups("unknown")
	if len(groups) != 0 {
		t.Errorf("unknown user should have no groups, got %v", groups)
	}
}

func TestChecker_DirectUserPermission(t *testing.T) {
	policy := &Policy{
		Permissions: map[string][]string{
			"collect.run": {"direct-user"}, // Direct user, not a group
		},
	}
	checker := NewChecker(policy)
	checker.SetUser("direct-user")

	if err := checker.Check(PermCollectRun, nil); err != nil {
		t.Errorf("Direct user permission should work: %v", err)
	}
}

func TestChecker_CurrentUser(t *testing.T) {
	policy := createTestPolicy()
	checker := NewChecker(policy)

	if checker.CurrentUser() == "" {
		t.Error("CurrentUser should not be empty after NewChecker")
	}

	checker.SetUser("test-user")
	if checker.CurrentUser() != "test-user" {
		t.Errorf("CurrentUser() = %q, want %q", checker.CurrentUser(), "test-user")
	}
}

func TestChecker_GroupWithNilPermissions(t *testing.T) {
	policy := &Policy{
		SuperUsers: []string{},
		UserGroups: map[string][]string{
			"neteng": {"alice"},
		},
		Permissions: map[string][]string{
			"collect.run": {"neteng"},
		},
		Groups: map[string]*GroupPolicy{
			"no-perms-group": {
				Permissions: nil, // Explicitly nil
			},
		},
	}
	checker := NewChecker(policy)
	checker.SetUser("alice")

	ctx := NewContext().WithGroup("no-perms-group")
	if err := checker.Check(PermCollectRun, ctx); err != nil {
		t.Errorf("Should fall back to global permission: %v", err)
	}
}

func TestChecker_GlobalPermissionNotFound(t *testing.T) {
	policy := &Policy{
		SuperUsers:  []string{},
		UserGroups:  map[string][]string{},
		Permissions: map[string][]string{}, // No permissions defined
	}
	checker := NewChecker(policy)
	checker.SetUser("anyone")

	err := checker.Check(PermCollectRun, nil)
	if err == nil {
		t.Error("Should be denied when no permissions defined")
	}
}

func TestChecker_GlobalAllPermissionNotGranted(t *testing.T) {
	policy := &Policy{
		SuperUsers: []string{},
		UserGroups: map[string][]string{
			"admins": {"admin-user"},
			"users":  {"normal-user"},
		},
		Permissions: map[string][]string{
			"all": {"admins"}, // Only admins have 'all'
		},
	}
	checker := NewChecker(policy)
	checker.SetUser("normal-user")

	err := checker.Check(PermCollectRun, nil)
	if err == nil {
		t.Error("normal-user should not have permission via 'all'")
	}
}

func TestChecker_GroupAllPermissionNotGranted(t *testing.T) {
	policy := &Policy{
		SuperUsers: []string{},
		UserGroups: map[string][]string{
			"admins": {"admin-user"},
			"users":  {"normal-user"},
		},
		Permissions: map[string][]string{},
		Groups: map[string]*GroupPolicy{
			"restricted": {
				Permissions: map[string][]string{
					"all": {"admins"}, // Only admins have 'all' on this group
				},
			},
		},
	}
	checker := NewChecker(policy)
	checker.SetUser("normal-user")

	ctx := NewContext().WithGroup("restricted")
	err := checker.Check(PermCollectRun, ctx)
	if err == nil {
		t.Error("normal-user should not have permission via group 'all'")
	}
}

func TestPermissionError_ContextVariations(t *testing.T) {
	t.Run("nil context", func(t *testing.T) {
		err := &PermissionError{
			User:       "alice",
			Permission: PermCollectRun,
			Context:    nil,
		}
		msg := err.Error()
		if msg == "" {
			t.Error("Error message should not be empty")
		}
		if contains(msg, "for group") || contains(msg, "on device") {
			t.Error("Should not mention 'for group'/'on device' when context is nil")
		}
	})

	t.Run("context with group only", func(t *testing.T) {
		err := &PermissionError{
			User:       "alice",
			Permission: PermCollectRun,
			Context:    &Context{Group: "core"},
		}
		msg := err.Error()
		if !contains(msg, "core") {
			t.Error("Should mention group name")
		}
	})

	t.Run("context with device only", func(t *testing.T) {
		err := &PermissionError{
			User:       "alice",
			Permission: PermCollectRun,
			Context:    &Context{Device: "core1"},
		}
		msg := err.Error()
		if !contains(msg, "core1") {
			t.Error("Should mention device name")
		}
	})

	t.Run("context with both group and device", func(t *testing.T) {
		err := &PermissionError{
			User:       "alice",
			Permission: PermCollectRun,
			Context:    &Context{Group: "grp1", Device: "dev1"},
		}
		msg := err.Error()
		if !contains(msg, "grp1") || !contains(msg, "dev1") {
			t.Error("Should mention both group and device")
		}
	})
}

func contains(s, substr string) bool {
	return len(s) >= len(substr) && (s == substr || len(s) > 0 && containsHelper(s, substr))
}

func containsHelper(s, substr string) bool {
	for i := 0; i <= len(s)-len(substr); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
