package auth

import (
	"fmt"
	"os/user"
	"slices"

	"github.com/routetap/routetap/pkg/util"
)

// Checker validates user permissions against a Policy.
type Checker struct {
	policy      *Policy
	currentUser string
}

// NewChecker creates a permission checker.
func NewChecker(policy *Policy) *Checker {
	username := "unknown"
	if u, err := user.Current(); err == nil {
		username = u.Username
	}

	return &Checker{
		policy:      policy,
		currentUser: username,
	}
}

// SetUser overrides the current user (for testing or sudo).
func (c *Checker) SetUser(username string) {
	c.currentUser = username
}

// CurrentUser returns the current username.
func (c *Checker) CurrentUser() string {
	return c.currentUser
}

// Check verifies if the current user has a permission.
func (c *Checker) Check(permission Permission, ctx *Context) error {
	return c.CheckUser(c.currentUser, permission, ctx)
}

// CheckUser verifies if a specific user has a permission.
func (c *Checker) CheckUser(username string, permission Permission, ctx *Context) error {
	if c.isSuperUser(username) {
		return nil
	}

	// Check group-specific permissions first. A group grant only adds access:
	// a user it does not list still passes on a fleet-wide grant below.
	if ctx != nil && ctx.Group != "" {
		if grp, ok := c.policy.Groups[ctx.Group]; ok {
			if c.checkPermissionMap(username, permission, grp.Permissions) {
				return nil
			}
		}
	}

	if c.checkGlobalPermission(username, permission) {
		return nil
	}

	return &PermissionError{
		User:       username,
		Permission: permission,
		Context:    ctx,
	}
}

// IsSuperUser returns true if the current user is a superuser.
func (c *Checker) IsSuperUser() bool {
	return c.isSuperUser(c.currentUser)
}

func (c *Checker) isSuperUser(username string) bool {
	return slices.Contains(c.policy.SuperUsers, username)
}

func (c *Checker) checkGlobalPermission(username string, permission Permission) bool {
	return c.checkPermissionMap(username, permission, c.policy.Permissions)
}

// checkPermissionMap checks whether username has the given permission in permMap.
// It first checks the "all" wildcard key, then the specific permission key.
func (c *Checker) checkPermissionMap(username string, permission Permission, permMap map[string][]string) bool {
	if groups, ok := permMap["all"]; ok {
		if c.userInGroups(username, groups) {
			return true
		}
	}

	groups, ok := permMap[string(permission)]
	if !ok {
		return false
	}

	return c.userInGroups(username, groups)
}

func (c *Checker) userInGroups(username string, allowedGroups []string) bool {
	for _, group := range allowedGroups {
		if group == username {
			return true
		}
		if members, ok := c.policy.UserGroups[group]; ok {
			if slices.Contains(members, username) {
				return true
			}
		}
	}
	return false
}

// allPermissions lists every concrete permission, used by ListPermissions to
// enumerate what the current user can do.
var allPermissions = []Permission{
	PermCollectRun, PermCollectGroup, PermConnectivityTest,
	PermAnalyzeSecurity, PermInventoryValidate, PermConfigureSettings, PermAuditView,
}

// ListPermissions returns the permissions granted to the current user. A
// superuser gets [PermAll] rather than every concrete permission.
func (c *Checker) ListPermissions() []Permission {
	if c.IsSuperUser() {
		return []Permission{PermAll}
	}

	var granted []Permission
	for _, p := range allPermissions {
		if c.checkGlobalPermission(c.currentUser, p) {
			granted = append(granted, p)
		}
	}
	return granted
}

// GetUserGroups returns the named groups username belongs to.
func (c *Checker) GetUserGroups(username string) []string {
	var groups []string
	for group, members := range c.policy.UserGroups {
		if slices.Contains(members, username) {
			groups = append(groups, group)
		}
	}
	return groups
}

// PermissionError represents a permission denial.
type PermissionError struct {
	User       string
	Permission Permission
	Context    *Context
}

func (e *PermissionError) Error() string {
	msg := fmt.Sprintf("permission denied: user '%s' does not have '%s' permission", e.User, e.Permission)
	if e.Context != nil {
		if e.Context.Group != "" {
			msg += fmt.Sprintf(" for group '%s'", e.Context.Group)
		}
		if e.Context.Device != "" {
			msg += fmt.Sprintf(" on device '%s'", e.Context.Device)
		}
	}
	return msg
}

func (e *PermissionError) Unwrap() error {
	return util.ErrPermissionDenied
}
