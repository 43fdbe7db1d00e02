package ami

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"pbxbridge/internal/domain"
	"pbxbridge/internal/store"
)

// EventSink receives normalized events. The router implements it; the
// listener holds no subscriber list of its own.
type EventSink interface {
	DispatchCallEvent(domain.NormalizedCallEvent)
	DispatchAgentStatus(domain.AgentStatusUpdate)
}

// AgentResolver maps PBX extensions to agent ids.
type AgentResolver interface {
	ResolveAgent(extension string) string
	UpdateExtension(extension, agentID string)
}

// statusTable translates vendor agent status strings into the internal
// status set. Anything outside the table maps to Unknown.
var statusTable = map[string]domain.AgentStatus{
	"AGENT_IDLE":        domain.AgentStatusIdle,
	"AGENT_ONCALL":      domain.AgentStatusOnCall,
	"AGENT_RINGING":     domain.AgentStatusRinging,
	"AGENT_LOGGEDOFF":   domain.AgentStatusUnavailable,
	"AGENT_UNAVAILABLE": domain.AgentStatusUnavailable,
}

// TranslateStatus maps a vendor status string to an internal
// AgentStatus. Unrecognized strings yield Unknown, never an error.
func TranslateStatus(vendor string) domain.AgentStatus {
	if s, ok := statusTable[strings.ToUpper(vendor)]; ok {
		return s
	}
	return domain.AgentStatusUnknown
}

// Clock provides the current time. Overridden in tests.
type Clock func() time.Time

// Listener translates raw manager events into normalized call and
// agent events. Malformed or unrecognized events are logged and
// dropped; nothing here may propagate an error into the shared
// connection's read loop.
type Listener struct {
	sink            EventSink
	resolver        AgentResolver
	agents          store.AgentStore
	outboundMarker  string
	campaignVarName string
	clock           Clock
	logger          zerolog.Logger
}

type ListenerConfig struct {
	Sink            EventSink
	Resolver        AgentResolver
	Agents          store.AgentStore
	OutboundMarker  string
	CampaignVarName string
	Clock           Clock
	Logger          zerolog.Logger
}

func NewListener(cfg ListenerConfig) *Listener {
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	campaignVar := cfg.CampaignVarName
	if campaignVar == "" {
		campaignVar = "CAMPAIGN_ID"
	}

	return &Listener{
		sink:            cfg.Sink,
		resolver:        cfg.Resolver,
		agents:          cfg.Agents,
		outboundMarker:  cfg.OutboundMarker,
		campaignVarName: campaignVar,
		clock:           clock,
		logger:          cfg.Logger.With().Str("component", "ami-listener").Logger(),
	}
}

// Preload seeds the extension map from the current agent roster. The
// map is memory-only and best-effort; agents without an extension are
// skipped.
func (l *Listener) Preload(ctx context.Context) error {
	agents, err := l.agents.ListAgents(ctx)
	if err != nil {
		return err
	}

	loaded := 0
	for _, a := range agents {
		if a.Extension == "" {
			continue
		}
		l.resolver.UpdateExtension(a.Extension, a.ID)
		loaded++
	}

	l.logger.Info().Int("mappings", loaded).Msg("Preloaded extension to agent map")
	return nil
}

// HandleEvent is the entry point wired into the manager read loop.
func (l *Listener) HandleEvent(evt Event) {
	switch evt.Type() {
	case "AgentStatus":
		l.handleAgentStatus(evt)
	case "AgentCalled":
		l.handleAgentCalled(evt)
	case "Hangup":
		l.handleHangup(evt)
	default:
		l.logger.Debug().Str("event", evt.Type()).Msg("Ignoring unhandled event type")
	}
}

func (l *Listener) handleAgentStatus(evt Event) {
	extension := evt.Get("Agent")
	vendorStatus := evt.Get("Status")
	if extension == "" || vendorStatus == "" {
		l.logger.Warn().
			Str("agent", extension).
			Str("status", vendorStatus).
			Msg("Dropping malformed AgentStatus event")
		return
	}

	agentID := l.resolver.ResolveAgent(extension)
	if agentID == "" {
		l.logger.Warn().Str("extension", extension).Msg("Dropping status for unmapped extension")
		return
	}

	l.sink.DispatchAgentStatus(domain.AgentStatusUpdate{
		AgentID:   agentID,
		Status:    TranslateStatus(vendorStatus),
		Timestamp: l.clock(),
	})
}

func (l *Listener) handleAgentCalled(evt Event) {
	callID := evt.Get("Uniqueid")
	if callID == "" {
		l.logger.Warn().Msg("Dropping AgentCalled event without unique id")
		return
	}

	direction := domain.DirectionInbound
	if l.outboundMarker != "" && strings.Contains(evt.Get("Context"), l.outboundMarker) {
		direction = domain.DirectionOutbound
	}

	campaignID, _ := evt.Variable(l.campaignVarName)

	l.sink.DispatchCallEvent(domain.NormalizedCallEvent{
		CallID:       callID,
		AgentID:      l.resolver.ResolveAgent(evt.Get("AgentCalled")),
		Type:         domain.CallEventNewCall,
		Direction:    direction,
		CallerNumber: evt.Get("CallerIDNum"),
		CampaignID:   campaignID,
		Timestamp:    l.clock(),
	})
}

func (l *Listener) handleHangup(evt Event) {
	callID := evt.Get("Uniqueid")
	if callID == "" {
		l.logger.Warn().Msg("Dropping Hangup event without unique id")
		return
	}

	l.sink.DispatchCallEvent(domain.NormalizedCallEvent{
		CallID:          callID,
		AgentID:         l.resolver.ResolveAgent(evt.Get("CallerIDNum")),
		Type:            domain.CallEventHangup,
		CallerNumber:    evt.Get("CallerIDNum"),
		BillableSeconds: evt.GetInt("BillableSeconds"),
		Timestamp:       l.clock(),
	})
}
