package domain

type AgentStatus string

const (
	AgentStatusIdle        AgentStatus = "IDLE"
	AgentStatusOnCall      AgentStatus = "ON_CALL"
	AgentStatusRinging     AgentStatus = "RINGING"
	AgentStatusUnavailable AgentStatus = "UNAVAILABLE"
	AgentStatusUnknown     AgentStatus = "UNKNOWN"
)

type Agent struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Extension string `json:"extension,omitempty"`
	SiteID    string `json:"site_id,omitempty"`
}
