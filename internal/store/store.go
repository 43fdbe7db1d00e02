package store

import (
	"context"

	"pbxbridge/internal/domain"
)

// AgentStore supplies agent records owned by the admin application.
type AgentStore interface {
	GetAgent(ctx context.Context, agentID string) (*domain.Agent, error)
	ListAgents(ctx context.Context) ([]domain.Agent, error)
}

// SiteStore supplies per-site PBX connection targets.
type SiteStore interface {
	GetPbxConfig(ctx context.Context, siteID string) (*domain.PbxConfig, error)
}

// VersionSink records the API version detected for a site's PBX so
// future adapter instances skip the probe.
type VersionSink interface {
	SaveDetectedVersion(ctx context.Context, siteID string, version domain.APIVersion) error
}

// Store is the full configuration surface the core consumes.
type Store interface {
	AgentStore
	SiteStore
	VersionSink
}
