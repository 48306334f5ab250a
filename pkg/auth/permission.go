// Package auth provides permission-based access control for collector operations.
package auth

// Permission defines an action that can be controlled.
type Permission string

// Standard permissions.
const (
	PermCollectRun        Permission = "collect.run"
	PermCollectGroup      Permission = "collect.group"
	PermConnectivityTest  Permission = "connectivity.test"
	PermAnalyzeSecurity   Permission = "analyze.security"
	PermInventoryValidate Permission = "inventory.validate"
	PermConfigureSettings Permission = "configure.settings"
	PermAuditView         Permission = "audit.view"

	PermAll Permission = "all" // Superuser - allows everything
)

// PermissionCategory groups related permissions.
type PermissionCategory struct {
	Name        string
	Description string
	Permissions []Permission
}

// StandardCategories defines standard permission categories.
var StandardCategories = []PermissionCategory{
	{
		Name:        "collect",
		Description: "Run fleet collection against devices",
		Permissions: []Permission{PermCollectRun, PermCollectGroup},
	},
	{
		Name:        "connectivity",
		Description: "Test bastion and device reachability",
		Permissions: []Permission{PermConnectivityTest},
	},
	{
		Name:        "analyze",
		Description: "Run security analysis over a completed run",
		Permissions: []Permission{PermAnalyzeSecurity},
	},
	{
		Name:        "inventory",
		Description: "Validate inventory files",
		Permissions: []Permission{PermInventoryValidate},
	},
	{
		Name:        "configure",
		Description: "Change persisted CLI settings",
		Permissions: []Permission{PermConfigureSettings},
	},
	{
		Name:        "audit",
		Description: "Audit log access",
		Permissions: []Permission{PermAuditView},
	},
}

// Context provides context for permission checks.
type Context struct {
	Device   string
	Group    string
	Layer    string
	Resource string
}

// NewContext creates a new permission context.
func NewContext() *Context {
	return &Context{}
}

// WithDevice sets the device context.
func (c *Context) WithDevice(device string) *Context {
	c.Device = device
	return c
}

// WithGroup sets the inventory group context.
func (c *Context) WithGroup(group string) *Context {
	c.Group = group
	return c
}

// WithLayer sets the collection-layer context.
func (c *Context) WithLayer(layer string) *Context {
	c.Layer = layer
	return c
}

// WithResource sets a generic resource context.
func (c *Context) WithResource(resource string) *Context {
	c.Resource = resource
	return c
}

// IsReadOnly returns true for the read-only permissions: collect, group
// collect, connectivity test, security analysis, inventory validation and
// audit view. configure.settings (a local write) and all return false.
func (p Permission) IsReadOnly() bool {
	switch p {
	case PermCollectRun, PermCollectGroup, PermConnectivityTest,
		PermAnalyzeSecurity, PermInventoryValidate, PermAuditView:
		return true
	}
	return false
}
