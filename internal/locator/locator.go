package locator

import (
	"context"
	"fmt"

	"github.com/devrev/pairdb/placement/internal/model"
)

// Locator tells the coordinator where it runs. The local datacenter drives
// LOCAL_* consistency levels and read proximity.
type Locator interface {
	Locate(ctx context.Context) (model.Location, error)
}

// EndpointLocator also knows the locations of other endpoints
type EndpointLocator interface {
	Locator
	Endpoints() map[model.Endpoint]model.Location
}

// Static always returns the configured location
type Static struct {
	location model.Location
}

// NewStatic creates a locator for a fixed datacenter and rack
func NewStatic(datacenter, rack string) *Static {
	return &Static{location: model.Location{Datacenter: datacenter, Rack: rack}}
}

// Locate implements Locator
func (s *Static) Locate(ctx context.Context) (model.Location, error) {
	if s.location.Datacenter == "" {
		return model.Location{}, fmt.Errorf("static locator has no datacenter")
	}
	return s.location, nil
}
