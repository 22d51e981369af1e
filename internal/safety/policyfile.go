package safety

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// PolicyPack is an operator-supplied set of extra deny patterns loaded from
// a YAML file. Packs can only tighten the policy; there is no allow list.
type PolicyPack struct {
	Name        string        `yaml:"name"`
	Description string        `yaml:"description,omitempty"`
	Deny        []DenyPattern `yaml:"deny"`
}

// DenyPattern is a single pattern in a policy pack. Pattern is either a
// literal substring or a regular expression (see compilePattern).
type DenyPattern struct {
	Pattern     string `yaml:"pattern"`
	Description string `yaml:"description,omitempty"`
}

// LoadPolicyDir loads policy packs from YAML files in a directory. Files
// must have a .yaml or .yml extension. A missing directory is not an error;
// a malformed file is skipped with a warning so one bad pack cannot take
// the gate down.
func LoadPolicyDir(dir string, logger *slog.Logger) ([]PolicyPack, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		logger.Debug("policy directory does not exist, skipping", "dir", dir)
		return nil, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read policy dir: %w", err)
	}

	var packs []PolicyPack
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}

		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			logger.Warn("cannot read policy file", "path", path, "err", err)
			continue
		}

		var pack PolicyPack
		if err := yaml.Unmarshal(data, &pack); err != nil {
			logger.Warn("cannot parse policy file", "path", path, "err", err)
			continue
		}

		if pack.Name == "" {
			pack.Name = strings.TrimSuffix(name, filepath.Ext(name))
		}

		logger.Info("loaded policy pack", "name", pack.Name, "patterns", len(pack.Deny), "path", path)
		packs = append(packs, pack)
	}

	return packs, nil
}
