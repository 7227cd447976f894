package rules

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ruleFile is the on-disk layout for file-based rule catalogs.
type ruleFile struct {
	Rules []Rule `yaml:"rules"`
}

// LoadFile reads a rule catalog from a YAML file. Used for local development
// and seed fixtures; production loads rules from Postgres. Disabled rules are
// dropped by NewCatalog, and duplicate per-tier overrides are rejected here
// since a file edit is the only way to introduce them.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file %s: %w", path, err)
	}

	var f ruleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse rules file %s: %w", path, err)
	}

	for _, r := range f.Rules {
		seen := make(map[string]struct{}, len(r.TierDiscounts))
		for _, td := range r.TierDiscounts {
			if _, dup := seen[td.TierName]; dup {
				return nil, fmt.Errorf("rule %q: duplicate tier override %q", r.EventType, td.TierName)
			}
			seen[td.TierName] = struct{}{}
		}
	}

	return NewCatalog(f.Rules), nil
}
