package locator

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/devrev/pairdb/placement/internal/model"
)

// PropertyFile is a locator backed by a YAML topology file:
//
//	local:
//	  datacenter: DC1
//	  rack: r1
//	default:
//	  datacenter: DC1
//	  rack: r1
//	endpoints:
//	  10.0.1.1:9042: {datacenter: DC1, rack: r1}
//	  10.0.2.1:9042: {datacenter: DC2, rack: r1}
//
// Endpoints not listed fall back to default when one is given.
type PropertyFile struct {
	Local     model.Location                    `yaml:"local"`
	Default   *model.Location                   `yaml:"default,omitempty"`
	Locations map[model.Endpoint]model.Location `yaml:"endpoints"`
}

// LoadPropertyFile reads and validates a topology file
func LoadPropertyFile(path string) (*PropertyFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read topology file: %w", err)
	}
	pf, err := ParsePropertyFile(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return pf, nil
}

// ParsePropertyFile parses and validates topology file contents
func ParsePropertyFile(data []byte) (*PropertyFile, error) {
	var pf PropertyFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("failed to parse topology file: %w", err)
	}
	if pf.Local.Datacenter == "" {
		return nil, fmt.Errorf("topology file has no local datacenter")
	}
	for ep, loc := range pf.Locations {
		if loc.Datacenter == "" {
			return nil, fmt.Errorf("endpoint %s has no datacenter", ep)
		}
	}
	return &pf, nil
}

// Locate implements Locator
func (pf *PropertyFile) Locate(ctx context.Context) (model.Location, error) {
	return pf.Local, nil
}

// Lookup returns the location of endpoint
func (pf *PropertyFile) Lookup(endpoint model.Endpoint) (model.Location, bool) {
	if loc, ok := pf.Locations[endpoint]; ok {
		return loc, true
	}
	if pf.Default != nil {
		return *pf.Default, true
	}
	return model.Location{}, false
}

// Endpoints returns a copy of every listed endpoint's location
func (pf *PropertyFile) Endpoints() map[model.Endpoint]model.Location {
	out := make(map[model.Endpoint]model.Location, len(pf.Locations))
	for ep, loc := range pf.Locations {
		out[ep] = loc
	}
	return out
}
