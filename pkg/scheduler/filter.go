package scheduler

import (
	"fmt"
	"strings"

	"github.com/routetap/routetap/pkg/inventory"
)

// FilterOptions selects a subset of the loaded inventory. At most one
// selector may be set; specifying more than one is a caller error.
type FilterOptions struct {
	Hostnames []string
	Substring string
	Group     string
}

func (o FilterOptions) selectorCount() int {
	n := 0
	if len(o.Hostnames) > 0 {
		n++
	}
	if o.Substring != "" {
		n++
	}
	if o.Group != "" {
		n++
	}
	return n
}

// FilterInventory narrows records to a device list, a hostname substring,
// or an inventory group — the three selectors are mutually exclusive. With
// no selector set, every record is returned.
func FilterInventory(records []*inventory.DeviceRecord, opts FilterOptions) ([]*inventory.DeviceRecord, error) {
	if opts.selectorCount() > 1 {
		return nil, fmt.Errorf("device filters are mutually exclusive: specify one of hostnames, substring, or group")
	}

	switch {
	case len(opts.Hostnames) > 0:
		wanted := make(map[string]struct{}, len(opts.Hostnames))
		for _, h := range opts.Hostnames {
			wanted[h] = struct{}{}
		}
		var matched []*inventory.DeviceRecord
		for _, r := range records {
			if _, ok := wanted[r.Hostname]; ok {
				matched = append(matched, r)
			}
		}
		return matched, nil

	case opts.Substring != "":
		needle := strings.ToLower(opts.Substring)
		var matched []*inventory.DeviceRecord
		for _, r := range records {
			if strings.Contains(strings.ToLower(r.Hostname), needle) {
				matched = append(matched, r)
			}
		}
		return matched, nil

	case opts.Group != "":
		var matched []*inventory.DeviceRecord
		for _, r := range records {
			if r.HasGroup(opts.Group) {
				matched = append(matched, r)
			}
		}
		return matched, nil

	default:
		return records, nil
	}
}
