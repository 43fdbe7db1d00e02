package domain

import "time"

type CallEventType string

const (
	CallEventNewCall      CallEventType = "newCall"
	CallEventStatusChange CallEventType = "statusChange"
	CallEventHangup       CallEventType = "hangup"
)

type CallDirection string

const (
	DirectionInbound  CallDirection = "inbound"
	DirectionOutbound CallDirection = "outbound"
)

// NormalizedCallEvent is the uniform call event emitted by the listener
// regardless of which control plane produced it. It is ephemeral: the
// core emits it, downstream consumers decide whether to persist it.
type NormalizedCallEvent struct {
	CallID          string        `json:"callId"`
	AgentID         string        `json:"agentId,omitempty"`
	Type            CallEventType `json:"type"`
	Direction       CallDirection `json:"direction,omitempty"`
	CallerNumber    string        `json:"callerNumber,omitempty"`
	CampaignID      string        `json:"campaignId,omitempty"`
	BillableSeconds int           `json:"billableSeconds,omitempty"`
	Timestamp       time.Time     `json:"timestamp"`
}

type AgentStatusUpdate struct {
	AgentID   string      `json:"agentId"`
	Status    AgentStatus `json:"status"`
	Timestamp time.Time   `json:"timestamp"`
}

// CallHandle is the result of an origination, owned by the orchestrator
// until a terminal hangup correlating to the same call id is observed.
type CallHandle struct {
	CallID            string `json:"callId"`
	SiteID            string `json:"siteId,omitempty"`
	AgentExtension    string `json:"agentExtension"`
	DestinationNumber string `json:"destinationNumber"`
}
