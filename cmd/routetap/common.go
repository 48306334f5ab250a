package main

import (
	"fmt"

	"github.com/routetap/routetap/pkg/bastion"
	"github.com/routetap/routetap/pkg/inventory"
	"github.com/routetap/routetap/pkg/scheduler"
	"github.com/routetap/routetap/pkg/util"
)

// inventoryPath resolves --inventory, falling back to the persisted default.
func inventoryPath() (string, error) {
	if app.inventoryPath != "" {
		return app.inventoryPath, nil
	}
	if app.settings != nil && app.settings.DefaultInventoryPath != "" {
		return app.settings.DefaultInventoryPath, nil
	}
	return "", fmt.Errorf("%w: no --inventory given and no default_inventory_path configured", util.ErrInventoryInvalid)
}

// loadFilteredDevices loads the configured inventory and narrows it with
// filter, validating it first and surfacing row-level problems as warnings
// rather than failing the whole run.
func loadFilteredDevices(filter scheduler.FilterOptions) ([]*inventory.DeviceRecord, error) {
	path, err := inventoryPath()
	if err != nil {
		return nil, err
	}
	records, err := inventory.Load(path)
	if err != nil {
		return nil, err
	}

	stats := inventory.Validate(records)
	for _, e := range stats.Errors {
		util.Warnf("inventory: %s", e)
	}

	matched, err := scheduler.FilterInventory(records, filter)
	if err != nil {
		return nil, err
	}
	if len(matched) == 0 {
		return nil, fmt.Errorf("no devices matched the given selector")
	}
	return matched, nil
}

func newPool() *bastion.Pool {
	c := app.collector
	return bastion.NewPool(bastion.Config{
		BastionHost:     c.Bastion.Host,
		BastionPort:     c.Bastion.Port,
		BastionUser:     c.Bastion.User,
		BastionPassword: c.Bastion.Password,
		BastionKeyPath:  c.Bastion.KeyPath,
		MaxSessions:     c.MaxSessions,
		RetryAttempts:   c.RetryAttempts,
		RetryDelay:      c.RetryDelay,
	})
}
