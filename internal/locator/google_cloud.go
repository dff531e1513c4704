package locator

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/devrev/pairdb/placement/internal/model"
)

// DefaultGoogleMetadataURL is the GCE metadata server's zone endpoint
const DefaultGoogleMetadataURL = "http://metadata.google.internal/computeMetadata/v1/instance/zone"

// GoogleCloud locates the coordinator from the GCE metadata server. A zone
// such as us-central1-a becomes datacenter "us-central1" plus the configured
// suffix and rack "a".
type GoogleCloud struct {
	client      *http.Client
	metadataURL string
	dcSuffix    string
	logger      *zap.Logger
}

// GoogleCloudConfig holds GCE locator configuration
type GoogleCloudConfig struct {
	MetadataURL      string
	DatacenterSuffix string
	Timeout          time.Duration
}

// NewGoogleCloud creates a GCE locator
func NewGoogleCloud(cfg GoogleCloudConfig, logger *zap.Logger) *GoogleCloud {
	if cfg.MetadataURL == "" {
		cfg.MetadataURL = DefaultGoogleMetadataURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &GoogleCloud{
		client:      &http.Client{Timeout: cfg.Timeout},
		metadataURL: cfg.MetadataURL,
		dcSuffix:    cfg.DatacenterSuffix,
		logger:      logger,
	}
}

// Locate implements Locator
func (g *GoogleCloud) Locate(ctx context.Context) (model.Location, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.metadataURL, nil)
	if err != nil {
		return model.Location{}, fmt.Errorf("failed to build metadata request: %w", err)
	}
	req.Header.Set("Metadata-Flavor", "Google")

	resp, err := g.client.Do(req)
	if err != nil {
		return model.Location{}, fmt.Errorf("failed to query GCE metadata: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return model.Location{}, fmt.Errorf("failed to read GCE metadata: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return model.Location{}, fmt.Errorf("GCE metadata returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	loc, err := ParseGoogleZone(strings.TrimSpace(string(body)), g.dcSuffix)
	if err != nil {
		return model.Location{}, err
	}
	g.logger.Info("Located node from GCE metadata",
		zap.String("datacenter", loc.Datacenter),
		zap.String("rack", loc.Rack))
	return loc, nil
}

// ParseGoogleZone maps a GCE zone, bare or as projects/<n>/zones/<zone>, to
// a location
func ParseGoogleZone(zone, dcSuffix string) (model.Location, error) {
	if i := strings.LastIndex(zone, "/"); i >= 0 {
		zone = zone[i+1:]
	}
	i := strings.LastIndex(zone, "-")
	if i <= 0 || i == len(zone)-1 {
		return model.Location{}, fmt.Errorf("malformed GCE zone %q", zone)
	}
	return model.Location{Datacenter: zone[:i] + dcSuffix, Rack: zone[i+1:]}, nil
}
