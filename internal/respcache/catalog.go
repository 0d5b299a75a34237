package respcache

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// catalogFile is the on-disk shape of the hot-query catalog path named in
// §6's environment table.
type catalogFile struct {
	Queries []HotQuery `yaml:"queries"`
}

// LoadCatalog reads the hot-query catalog from a YAML file.
func LoadCatalog(path string) ([]HotQuery, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read hot-query catalog %s: %w", path, err)
	}
	var doc catalogFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse hot-query catalog %s: %w", path, err)
	}
	return doc.Queries, nil
}
