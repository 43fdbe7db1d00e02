package pbx

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"pbxbridge/internal/domain"
)

func TestRegistryReusesAdapterPerSite(t *testing.T) {
	r := NewRegistry("PJSIP", nil, zerolog.Nop())

	cfg := domain.PbxConfig{SiteID: "site-1", IPAddress: "10.1.0.254"}
	other := domain.PbxConfig{SiteID: "site-2", IPAddress: "10.2.0.254"}

	first := r.ForConfig(cfg)
	second := r.ForConfig(cfg)
	assert.Same(t, first, second, "same site must share one adapter")

	assert.NotSame(t, first, r.ForConfig(other))
}

func TestRegistryEvictForcesRebuild(t *testing.T) {
	r := NewRegistry("PJSIP", nil, zerolog.Nop())

	cfg := domain.PbxConfig{SiteID: "site-1", IPAddress: "10.1.0.254"}
	before := r.ForConfig(cfg)

	r.Evict("site-1")

	cfg.IPAddress = "10.1.0.200"
	after := r.ForConfig(cfg)
	assert.NotSame(t, before, after)
}
