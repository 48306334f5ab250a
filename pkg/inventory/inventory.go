// Package inventory loads a tabular device list and normalises it into
// validated DeviceRecords with family auto-detection and group membership.
package inventory

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/routetap/routetap/pkg/util"
)

// Family is the device operating-system variant. It determines the command
// list (§6.2) and a small set of per-family command renames.
type Family string

const (
	FamilyClassic Family = "classic"
	FamilyEnhanced Family = "enhanced"
	FamilyCarrier  Family = "carrier"
)

// Valid reports whether f is one of the three-element closed family set.
func (f Family) Valid() bool {
	switch f {
	case FamilyClassic, FamilyEnhanced, FamilyCarrier:
		return true
	}
	return false
}

// AllGroup is the implicit group every device belongs to.
const AllGroup = "all_devices"

// familyDetectTable is ordered; the first substring match against the
// lower-cased model string wins (§6.1).
var familyDetectTable = []struct {
	substrings []string
	family     Family
}{
	{[]string{"asr", "ncs", "xrv"}, FamilyCarrier},
	{[]string{"4431", "4451", "4321"}, FamilyEnhanced},
	{[]string{"3945", "2911"}, FamilyClassic},
}

// Credentials is a per-device login override. Zero value means "use the
// process-wide defaults", resolved at dispatch time by the caller.
type Credentials struct {
	Username string
	Password string
}

// DeviceRecord is one normalised row of inventory.
type DeviceRecord struct {
	Hostname      string
	ManagementIP  string
	WANIP         string
	Model         string
	Family        Family
	WireProtocol  string
	Credentials   Credentials
	Groups        map[string]struct{}
}

// HasGroup reports whether the device is a member of group.
func (d *DeviceRecord) HasGroup(group string) bool {
	_, ok := d.Groups[group]
	return ok
}

// GroupList returns the device's groups as a sorted-by-insertion-irrelevant
// slice (order is not meaningful; callers that need determinism should sort).
func (d *DeviceRecord) GroupList() []string {
	out := make([]string, 0, len(d.Groups))
	for g := range d.Groups {
		out = append(out, g)
	}
	return out
}

// wireProtocolByFamily derives the wire-protocol tag from family, per §3.
var wireProtocolByFamily = map[Family]string{
	FamilyClassic:  "cisco_ios",
	FamilyEnhanced: "cisco_xe",
	FamilyCarrier:  "cisco_xr",
}

// ValidationStats summarizes a Load+Normalise+Validate pass without raising.
type ValidationStats struct {
	TotalDevices   int
	CountsByFamily map[Family]int
	CountsByGroup  map[string]int
	Errors         []string
}

// Load reads a delimited (comma-separated) inventory table with a header
// row, tolerating either "ip_address" or "management_ip" as the address
// column (§6.1). File-level errors (missing file, missing required
// columns) are fatal; per-row problems are reported by Validate instead.
func Load(path string) ([]*DeviceRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", util.ErrInventoryInvalid, err)
	}
	defer f.Close()
	return LoadReader(f)
}

// LoadReader is Load without the filesystem dependency, for tests and for
// callers that already have the table in memory.
func LoadReader(r io.Reader) ([]*DeviceRecord, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1 // tolerate ragged rows; Normalise handles gaps

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: reading header: %v", util.ErrInventoryInvalid, err)
	}

	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimSpace(name)] = i
	}
	if _, ok := col["hostname"]; !ok {
		return nil, fmt.Errorf("%w: missing required column %q", util.ErrInventoryInvalid, "hostname")
	}
	_, hasIP := col["ip_address"]
	_, hasMgmtIP := col["management_ip"]
	if !hasIP && !hasMgmtIP {
		return nil, fmt.Errorf("%w: missing required column %q or %q", util.ErrInventoryInvalid, "ip_address", "management_ip")
	}

	get := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var records []*DeviceRecord
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: reading row: %v", util.ErrInventoryInvalid, err)
		}

		hostname := get(row, "hostname")
		mgmtIP := get(row, "ip_address")
		if mgmtIP == "" {
			mgmtIP = get(row, "management_ip")
		}
		if hostname == "" || mgmtIP == "" {
			util.WithField("row", row).Warn("skipping inventory row missing hostname or management address")
			continue
		}

		model := get(row, "model")
		if model == "" {
			model = get(row, "model_name")
		}

		rec := &DeviceRecord{
			Hostname:     hostname,
			ManagementIP: mgmtIP,
			WANIP:        get(row, "wan_ip"),
			Model:        model,
			Family:       Family(strings.ToLower(get(row, "platform"))),
			WireProtocol: get(row, "device_type"),
			Credentials: Credentials{
				Username: get(row, "username"),
				Password: get(row, "password"),
			},
		}
		groupsCell := get(row, "groups")
		rec.Groups = make(map[string]struct{})
		for _, g := range util.SplitCommaSeparated(groupsCell) {
			rec.Groups[g] = struct{}{}
		}

		Normalise(rec)
		records = append(records, rec)
	}

	return records, nil
}

// Normalise fills in family (via Detect), derived wire-protocol, and
// auto-derived groups on a record whose hostname/address are already known
// non-empty. Safe to call more than once (idempotent).
func Normalise(rec *DeviceRecord) {
	if !rec.Family.Valid() {
		rec.Family = Detect(rec.Model)
	}
	if rec.WireProtocol == "" {
		rec.WireProtocol = wireProtocolByFamily[rec.Family]
	}
	if rec.Groups == nil {
		rec.Groups = make(map[string]struct{})
	}
	for _, g := range autoGroups(rec.Hostname) {
		rec.Groups[g] = struct{}{}
	}
	rec.Groups[AllGroup] = struct{}{}
}

// Detect performs case-insensitive substring matching of model against the
// ordered family table (§6.1); the first match wins; classic is the default.
func Detect(model string) Family {
	if model == "" {
		return FamilyClassic
	}
	lower := strings.ToLower(model)
	for _, entry := range familyDetectTable {
		for _, sub := range entry.substrings {
			if strings.Contains(lower, sub) {
				return entry.family
			}
		}
	}
	return FamilyClassic
}

// autoGroups derives role/datacenter group tags from hostname tokens, e.g.
// "core-pe-1" -> {"core", "pe"}. A hostname can carry more than one role tag
// (a device can be both "core" and "pe"), so every role is checked
// independently rather than stopping at the first match.
func autoGroups(hostname string) []string {
	lower := strings.ToLower(hostname)
	var groups []string

	if strings.Contains(lower, "core") {
		groups = append(groups, "core")
	}
	if strings.Contains(lower, "edge") {
		groups = append(groups, "edge")
	}
	if strings.Contains(lower, "branch") {
		groups = append(groups, "branch")
	}
	if strings.Contains(lower, "pe") {
		groups = append(groups, "pe")
	}
	// "p" (a plain MPLS provider router, as opposed to "pe") is a substring
	// of "pe", "core", "branch" and almost any other hostname, so it's only
	// tagged when it stands alone as a letter-run token, not as a Contains
	// match against the whole hostname.
	if hasLetterToken(lower, "p") {
		groups = append(groups, "p")
	}

	for _, dc := range []string{"dc1", "dc2", "dc3"} {
		if strings.Contains(lower, dc) {
			groups = append(groups, dc)
			break
		}
	}

	return groups
}

// hasLetterToken reports whether token appears as one of hostname's
// maximal runs of letters, e.g. "p1-edge" has letter tokens {"p", "edge"};
// "pe-1" has {"pe"}, not {"p", "e"}.
func hasLetterToken(hostname, token string) bool {
	for _, t := range strings.FieldsFunc(hostname, func(r rune) bool {
		return r < 'a' || r > 'z'
	}) {
		if t == token {
			return true
		}
	}
	return false
}

// Validate returns summary statistics without raising; a missing address is
// an error, an unknown family is not (it was already defaulted by Detect).
func Validate(records []*DeviceRecord) *ValidationStats {
	stats := &ValidationStats{
		CountsByFamily: make(map[Family]int),
		CountsByGroup:  make(map[string]int),
	}
	for _, rec := range records {
		stats.TotalDevices++
		stats.CountsByFamily[rec.Family]++
		for g := range rec.Groups {
			stats.CountsByGroup[g]++
		}
		if rec.ManagementIP == "" {
			stats.Errors = append(stats.Errors, fmt.Sprintf("%s: missing management address", rec.Hostname))
			continue
		}
		if !util.IsValidIPLiteral(rec.ManagementIP) {
			stats.Errors = append(stats.Errors, fmt.Sprintf("%s: management address %q is not a valid IP literal", rec.Hostname, rec.ManagementIP))
		}
	}
	return stats
}

// ResolveCredentials returns the device's own credentials if set, otherwise
// the process-wide defaults.
func ResolveCredentials(rec *DeviceRecord, defaultUser, defaultPassword string) Credentials {
	c := rec.Credentials
	if c.Username == "" {
		c.Username = defaultUser
	}
	if c.Password == "" {
		c.Password = defaultPassword
	}
	return c
}
