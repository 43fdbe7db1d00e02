package pbx

import (
	"net/http"
	"sync"

	"github.com/rs/zerolog"

	"pbxbridge/internal/domain"
)

// Registry hands out one adapter per site, created lazily. Concurrent
// first use of a site gets one adapter, so the version probe runs once.
type Registry struct {
	channelPrefix string
	saveVersion   VersionSaver
	httpClient    *http.Client
	logger        zerolog.Logger

	mu       sync.Mutex
	adapters map[string]*Adapter
}

func NewRegistry(channelPrefix string, saveVersion VersionSaver, logger zerolog.Logger) *Registry {
	return &Registry{
		channelPrefix: channelPrefix,
		saveVersion:   saveVersion,
		logger:        logger,
		adapters:      make(map[string]*Adapter),
	}
}

// SetHTTPClient overrides the HTTP client used by new adapters.
func (r *Registry) SetHTTPClient(client *http.Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.httpClient = client
}

// ForConfig returns the adapter for the config's site, building it on
// first use.
func (r *Registry) ForConfig(cfg domain.PbxConfig) *Adapter {
	r.mu.Lock()
	defer r.mu.Unlock()

	if a, ok := r.adapters[cfg.SiteID]; ok {
		return a
	}

	a := NewAdapter(Options{
		Config:        cfg,
		ChannelPrefix: r.channelPrefix,
		SaveVersion:   r.saveVersion,
		HTTPClient:    r.httpClient,
		Logger:        r.logger,
	})
	r.adapters[cfg.SiteID] = a
	return a
}

// Evict drops a cached adapter, forcing a rebuild (and a fresh probe)
// on next use. Called when a site's PBX config is changed by the admin.
func (r *Registry) Evict(siteID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.adapters, siteID)
}
