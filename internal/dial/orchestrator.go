package dial

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"pbxbridge/internal/ami"
	"pbxbridge/internal/config"
	"pbxbridge/internal/domain"
	"pbxbridge/internal/metrics"
	"pbxbridge/internal/store"
)

// AMIOriginator places a call over the shared manager connection and
// returns the PBX-native call id.
type AMIOriginator func(ctx context.Context, req ami.OriginateRequest) (string, error)

// RESTOriginator is the per-site REST adapter surface the orchestrator
// needs.
type RESTOriginator interface {
	Originate(ctx context.Context, sourceExtension, destinationNumber, callerID string) (string, error)
}

// AdapterSource resolves the REST adapter for a site's PBX config.
type AdapterSource func(cfg domain.PbxConfig) RESTOriginator

// Orchestrator is the single entry point for outbound call origination.
// It hides which control plane is active behind a uniform CallHandle
// result and performs no retries: typed failures propagate to the
// caller.
type Orchestrator struct {
	mode          config.Mode
	agents        store.AgentStore
	sites         store.SiteStore
	amiOriginate  AMIOriginator
	adapterFor    AdapterSource
	dialContext   string
	channelPrefix string
	callerID      string
	metrics       *metrics.Metrics
	logger        zerolog.Logger

	mu      sync.Mutex
	pending map[string]domain.CallHandle
}

type OrchestratorConfig struct {
	Mode          config.Mode
	Agents        store.AgentStore
	Sites         store.SiteStore
	AMIOriginate  AMIOriginator
	AdapterFor    AdapterSource
	DialContext   string
	ChannelPrefix string
	CallerID      string
	Metrics       *metrics.Metrics
	Logger        zerolog.Logger
}

func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	prefix := cfg.ChannelPrefix
	if prefix == "" {
		prefix = "PJSIP"
	}

	return &Orchestrator{
		mode:          cfg.Mode,
		agents:        cfg.Agents,
		sites:         cfg.Sites,
		amiOriginate:  cfg.AMIOriginate,
		adapterFor:    cfg.AdapterFor,
		dialContext:   cfg.DialContext,
		channelPrefix: prefix,
		callerID:      cfg.CallerID,
		metrics:       cfg.Metrics,
		logger:        cfg.Logger.With().Str("component", "dial").Logger(),
		pending:       make(map[string]domain.CallHandle),
	}
}

// OriginateCall places an outbound call on behalf of an agent. All
// configuration checks run before any network call is attempted.
func (o *Orchestrator) OriginateCall(ctx context.Context, agentID, destinationNumber string) (domain.CallHandle, error) {
	agent, err := o.agents.GetAgent(ctx, agentID)
	if err != nil {
		return domain.CallHandle{}, err
	}

	var handle domain.CallHandle
	switch o.mode {
	case config.ModeAMI:
		handle, err = o.originateAMI(ctx, agent, destinationNumber)
	default:
		handle, err = o.originateREST(ctx, agent, destinationNumber)
	}
	if err != nil {
		o.metrics.IncOrigination(string(o.mode), "error")
		return domain.CallHandle{}, err
	}

	o.mu.Lock()
	o.pending[handle.CallID] = handle
	o.mu.Unlock()

	o.metrics.IncOrigination(string(o.mode), "ok")
	o.logger.Info().
		Str("agent_id", agentID).
		Str("call_id", handle.CallID).
		Str("destination", destinationNumber).
		Msg("Call originated")

	return handle, nil
}

func (o *Orchestrator) originateAMI(ctx context.Context, agent *domain.Agent, destination string) (domain.CallHandle, error) {
	if agent.Extension == "" {
		return domain.CallHandle{}, &domain.ConfigurationError{
			Reason: fmt.Sprintf("agent %s has no extension", agent.ID),
		}
	}
	if agent.SiteID == "" {
		return domain.CallHandle{}, &domain.ConfigurationError{
			Reason: fmt.Sprintf("agent %s has no site", agent.ID),
		}
	}

	callID, err := o.amiOriginate(ctx, ami.OriginateRequest{
		Channel:     fmt.Sprintf("%s/%s", o.channelPrefix, agent.Extension),
		Exten:       destination,
		Context:     o.dialContext,
		CallerID:    o.callerID,
		CorrelateID: uuid.New().String(),
	})
	if err != nil {
		return domain.CallHandle{}, err
	}

	return domain.CallHandle{
		CallID:            callID,
		SiteID:            agent.SiteID,
		AgentExtension:    agent.Extension,
		DestinationNumber: destination,
	}, nil
}

func (o *Orchestrator) originateREST(ctx context.Context, agent *domain.Agent, destination string) (domain.CallHandle, error) {
	if agent.SiteID == "" {
		return domain.CallHandle{}, &domain.ConfigurationError{
			Reason: fmt.Sprintf("agent %s has no site", agent.ID),
		}
	}

	pbxCfg, err := o.sites.GetPbxConfig(ctx, agent.SiteID)
	if err != nil {
		return domain.CallHandle{}, err
	}
	if pbxCfg == nil {
		return domain.CallHandle{}, &domain.ConfigurationError{
			Reason: fmt.Sprintf("site %s has no pbx config", agent.SiteID),
		}
	}

	adapter := o.adapterFor(*pbxCfg)
	callID, err := adapter.Originate(ctx, agent.Extension, destination, o.callerID)
	if err != nil {
		return domain.CallHandle{}, err
	}

	return domain.CallHandle{
		CallID:            callID,
		SiteID:            agent.SiteID,
		AgentExtension:    agent.Extension,
		DestinationNumber: destination,
	}, nil
}

// PendingHandles reports the handles awaiting a terminal hangup.
func (o *Orchestrator) PendingHandles() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.pending)
}

// OnCallEvent discards a pending handle once a hangup with the same
// call id is observed. Correlation is by PBX-native id only: a hangup
// whose id was assigned by the other control plane will not match.
func (o *Orchestrator) OnCallEvent(evt domain.NormalizedCallEvent) {
	if evt.Type != domain.CallEventHangup {
		return
	}

	o.mu.Lock()
	_, tracked := o.pending[evt.CallID]
	delete(o.pending, evt.CallID)
	o.mu.Unlock()

	if tracked {
		o.logger.Debug().Str("call_id", evt.CallID).Msg("Discarded handle after hangup")
	}
}

// OnAgentStatus implements the subscriber interface; status updates do
// not affect pending handles.
func (o *Orchestrator) OnAgentStatus(domain.AgentStatusUpdate) {}
