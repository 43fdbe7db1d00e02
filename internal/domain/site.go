package domain

import "time"

// APIVersion is the detected REST dialect of a PBX device. Zero means
// the device has not been probed yet.
type APIVersion int

const (
	APIVersionUnprobed APIVersion = 0
	APIVersionV1       APIVersion = 1
	APIVersionV2       APIVersion = 2
)

type Site struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// PbxConfig is the connection target owned by a site. APIVersion is
// either explicitly set by the admin or probed once and cached.
type PbxConfig struct {
	SiteID      string     `json:"site_id"`
	IPAddress   string     `json:"ip_address"`
	APIUser     string     `json:"api_user"`
	APIPassword string     `json:"api_password"`
	APIVersion  APIVersion `json:"api_version"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
