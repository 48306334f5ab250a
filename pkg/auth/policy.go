package auth

import (
	"os"

	"gopkg.in/yaml.v3"
)

// GroupPolicy holds extra permission grants scoped to one inventory group.
// They add to the fleet-wide grants and never take any away.
type GroupPolicy struct {
	Permissions map[string][]string `yaml:"permissions"`
}

// Policy is the routetap access-control policy: who is a superuser, which
// users belong to which named groups, and which permissions each group or
// the fleet as a whole grants. Loaded from a YAML file (default
// ~/.routetap/policy.yaml); an empty/missing Policy denies everything to
// non-superusers, matching a fail-closed default.
type Policy struct {
	SuperUsers  []string                `yaml:"superusers"`
	UserGroups  map[string][]string     `yaml:"user_groups"`
	Permissions map[string][]string     `yaml:"permissions"`
	Groups      map[string]*GroupPolicy `yaml:"groups"`
}

// NewPolicy returns an empty policy (no superusers, no grants).
func NewPolicy() *Policy {
	return &Policy{}
}

// LoadPolicy reads a Policy from a YAML file at path.
func LoadPolicy(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	p := &Policy{}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, err
	}
	return p, nil
}
