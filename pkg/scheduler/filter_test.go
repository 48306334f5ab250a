package scheduler

import (
	"testing"

	"github.com/routetap/routetap/pkg/inventory"
)

func records() []*inventory.DeviceRecord {
	mk := func(host string, groups ...string) *inventory.DeviceRecord {
		r := &inventory.DeviceRecord{Hostname: host, Groups: map[string]struct{}{}}
		for _, g := range groups {
			r.Groups[g] = struct{}{}
		}
		return r
	}
	return []*inventory.DeviceRecord{
		mk("core-r1", "core", "all_devices"),
		mk("edge-r2", "edge", "all_devices"),
		mk("branch-r3", "branch", "all_devices"),
	}
}

func TestFilterInventory_NoSelectorReturnsAll(t *testing.T) {
	got, err := FilterInventory(records(), FilterOptions{})
	if err != nil || len(got) != 3 {
		t.Fatalf("got %d, err %v", len(got), err)
	}
}

func TestFilterInventory_Hostnames(t *testing.T) {
	got, err := FilterInventory(records(), FilterOptions{Hostnames: []string{"edge-r2"}})
	if err != nil || len(got) != 1 || got[0].Hostname != "edge-r2" {
		t.Fatalf("got %v, err %v", got, err)
	}
}

func TestFilterInventory_Substring(t *testing.T) {
	got, err := FilterInventory(records(), FilterOptions{Substring: "core"})
	if err != nil || len(got) != 1 || got[0].Hostname != "core-r1" {
		t.Fatalf("got %v, err %v", got, err)
	}
}

func TestFilterInventory_Group(t *testing.T) {
	got, err := FilterInventory(records(), FilterOptions{Group: "all_devices"})
	if err != nil || len(got) != 3 {
		t.Fatalf("got %d, err %v", len(got), err)
	}
}

func TestFilterInventory_MutuallyExclusiveSelectorsError(t *testing.T) {
	_, err := FilterInventory(records(), FilterOptions{Substring: "core", Group: "edge"})
	if err == nil {
		t.Fatal("expected an error for combined selectors")
	}
}
