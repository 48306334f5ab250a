package inventory

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// nornirHost mirrors the Nornir-style per-host inventory shape the original
// Python collector emitted (hosts.yaml / groups.yaml), used here purely as a
// round-trip format: load CSV -> export -> reload -> same DeviceRecords.
type nornirHost struct {
	Hostname     string   `yaml:"hostname"`
	Platform     string   `yaml:"platform"`
	WireProtocol string   `yaml:"wire_protocol"`
	ManagementIP string   `yaml:"management_ip"`
	WANIP        string   `yaml:"wan_ip,omitempty"`
	Model        string   `yaml:"model,omitempty"`
	Username     string   `yaml:"username,omitempty"`
	Password     string   `yaml:"password,omitempty"`
	Groups       []string `yaml:"groups"`
}

type nornirInventory struct {
	Hosts map[string]nornirHost `yaml:"hosts"`
}

// ExportNornir renders records as a Nornir-style hosts document.
func ExportNornir(records []*DeviceRecord) ([]byte, error) {
	inv := nornirInventory{Hosts: make(map[string]nornirHost, len(records))}
	for _, rec := range records {
		inv.Hosts[rec.Hostname] = nornirHost{
			Hostname:     rec.Hostname,
			Platform:     string(rec.Family),
			WireProtocol: rec.WireProtocol,
			ManagementIP: rec.ManagementIP,
			WANIP:        rec.WANIP,
			Model:        rec.Model,
			Username:     rec.Credentials.Username,
			Password:     rec.Credentials.Password,
			Groups:       rec.GroupList(),
		}
	}
	return yaml.Marshal(inv)
}

// ImportNornir reverses ExportNornir. Group order is not preserved (sets
// are unordered by definition) but membership is.
func ImportNornir(data []byte) ([]*DeviceRecord, error) {
	var inv nornirInventory
	if err := yaml.Unmarshal(data, &inv); err != nil {
		return nil, fmt.Errorf("parsing nornir inventory: %w", err)
	}

	records := make([]*DeviceRecord, 0, len(inv.Hosts))
	for _, h := range inv.Hosts {
		rec := &DeviceRecord{
			Hostname:     h.Hostname,
			ManagementIP: h.ManagementIP,
			WANIP:        h.WANIP,
			Model:        h.Model,
			Family:       Family(h.Platform),
			WireProtocol: h.WireProtocol,
			Credentials: Credentials{
				Username: h.Username,
				Password: h.Password,
			},
			Groups: make(map[string]struct{}, len(h.Groups)),
		}
		for _, g := range h.Groups {
			rec.Groups[g] = struct{}{}
		}
		records = append(records, rec)
	}
	return records, nil
}
