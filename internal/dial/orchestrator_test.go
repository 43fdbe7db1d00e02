package dial

import (
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pbxbridge/internal/ami"
	"pbxbridge/internal/config"
	"pbxbridge/internal/domain"
	"pbxbridge/internal/metrics"
)

type fakeStore struct {
	agents  map[string]domain.Agent
	configs map[string]domain.PbxConfig
}

func (s *fakeStore) GetAgent(ctx context.Context, id string) (*domain.Agent, error) {
	a, ok := s.agents[id]
	if !ok {
		return nil, domain.ErrAgentNotFound
	}
	return &a, nil
}

func (s *fakeStore) ListAgents(ctx context.Context) ([]domain.Agent, error) {
	var out []domain.Agent
	for _, a := range s.agents {
		out = append(out, a)
	}
	return out, nil
}

func (s *fakeStore) GetPbxConfig(ctx context.Context, siteID string) (*domain.PbxConfig, error) {
	c, ok := s.configs[siteID]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

type fakeRESTAdapter struct {
	callID string
	err    error
	calls  int
	ext    string
	dest   string
	cid    string
}

func (f *fakeRESTAdapter) Originate(ctx context.Context, ext, dest, callerID string) (string, error) {
	f.calls++
	f.ext, f.dest, f.cid = ext, dest, callerID
	return f.callID, f.err
}

type orchFixture struct {
	store       *fakeStore
	amiCalls    int
	amiLastReq  ami.OriginateRequest
	amiCallID   string
	amiErr      error
	rest        *fakeRESTAdapter
	restLookups int
}

func newOrchestrator(t *testing.T, mode config.Mode, fx *orchFixture) *Orchestrator {
	t.Helper()

	return NewOrchestrator(OrchestratorConfig{
		Mode:   mode,
		Agents: fx.store,
		Sites:  fx.store,
		AMIOriginate: func(ctx context.Context, req ami.OriginateRequest) (string, error) {
			fx.amiCalls++
			fx.amiLastReq = req
			return fx.amiCallID, fx.amiErr
		},
		AdapterFor: func(cfg domain.PbxConfig) RESTOriginator {
			fx.restLookups++
			return fx.rest
		},
		DialContext:   "from-internal",
		ChannelPrefix: "PJSIP",
		CallerID:      "0188000000",
		Metrics:       metrics.New(),
		Logger:        zerolog.Nop(),
	})
}

func TestOriginateUnknownAgent(t *testing.T) {
	fx := &orchFixture{store: &fakeStore{agents: map[string]domain.Agent{}}}
	o := newOrchestrator(t, config.ModeAMI, fx)

	_, err := o.OriginateCall(context.Background(), "nobody", "0612345678")
	assert.ErrorIs(t, err, domain.ErrAgentNotFound)
	assert.Zero(t, fx.amiCalls)
}

func TestAMIModeRequiresExtensionAndSite(t *testing.T) {
	fx := &orchFixture{store: &fakeStore{agents: map[string]domain.Agent{
		"no-ext":  {ID: "no-ext", SiteID: "site-1"},
		"no-site": {ID: "no-site", Extension: "1001"},
	}}}
	o := newOrchestrator(t, config.ModeAMI, fx)

	for _, agentID := range []string{"no-ext", "no-site"} {
		_, err := o.OriginateCall(context.Background(), agentID, "0612345678")
		require.Error(t, err, agentID)
		assert.True(t, domain.IsConfiguration(err), agentID)
	}
	assert.Zero(t, fx.amiCalls, "configuration failures must not reach the network")
}

func TestAMIModeOriginates(t *testing.T) {
	fx := &orchFixture{
		store: &fakeStore{agents: map[string]domain.Agent{
			"agent-1": {ID: "agent-1", Extension: "1001", SiteID: "site-1"},
		}},
		amiCallID: "1700000000.42",
	}
	o := newOrchestrator(t, config.ModeAMI, fx)

	handle, err := o.OriginateCall(context.Background(), "agent-1", "0612345678")
	require.NoError(t, err)

	assert.Equal(t, "1700000000.42", handle.CallID)
	assert.Equal(t, "site-1", handle.SiteID)
	assert.Equal(t, "1001", handle.AgentExtension)
	assert.Equal(t, "0612345678", handle.DestinationNumber)

	assert.Equal(t, 1, fx.amiCalls)
	assert.Equal(t, "PJSIP/1001", fx.amiLastReq.Channel)
	assert.Equal(t, "0612345678", fx.amiLastReq.Exten)
	assert.Equal(t, "from-internal", fx.amiLastReq.Context)
	assert.NotEmpty(t, fx.amiLastReq.CorrelateID)
	assert.Equal(t, 1, o.PendingHandles())
}

func TestRESTModeRequiresSiteAndConfig(t *testing.T) {
	fx := &orchFixture{
		store: &fakeStore{
			agents: map[string]domain.Agent{
				"no-site":   {ID: "no-site", Extension: "1001"},
				"no-config": {ID: "no-config", Extension: "1001", SiteID: "site-x"},
			},
			configs: map[string]domain.PbxConfig{},
		},
		rest: &fakeRESTAdapter{},
	}
	o := newOrchestrator(t, config.ModeREST, fx)

	for _, agentID := range []string{"no-site", "no-config"} {
		_, err := o.OriginateCall(context.Background(), agentID, "0612345678")
		require.Error(t, err, agentID)
		assert.True(t, domain.IsConfiguration(err), agentID)
	}
	assert.Zero(t, fx.restLookups)
	assert.Zero(t, fx.rest.calls)
}

func TestRESTModeOriginates(t *testing.T) {
	fx := &orchFixture{
		store: &fakeStore{
			agents: map[string]domain.Agent{
				"agent-1": {ID: "agent-1", Extension: "1001", SiteID: "site-1"},
			},
			configs: map[string]domain.PbxConfig{
				"site-1": {SiteID: "site-1", IPAddress: "10.1.0.254"},
			},
		},
		rest: &fakeRESTAdapter{callID: "call-id-12345"},
	}
	o := newOrchestrator(t, config.ModeREST, fx)

	handle, err := o.OriginateCall(context.Background(), "agent-1", "0612345678")
	require.NoError(t, err)

	assert.Equal(t, "call-id-12345", handle.CallID)
	assert.Equal(t, "1001", fx.rest.ext)
	assert.Equal(t, "0612345678", fx.rest.dest)
	assert.Equal(t, "0188000000", fx.rest.cid)
}

func TestErrorsPropagateUntouched(t *testing.T) {
	fx := &orchFixture{
		store: &fakeStore{
			agents: map[string]domain.Agent{
				"agent-1": {ID: "agent-1", Extension: "1001", SiteID: "site-1"},
			},
			configs: map[string]domain.PbxConfig{
				"site-1": {SiteID: "site-1"},
			},
		},
		rest: &fakeRESTAdapter{err: &domain.ConnectivityError{Op: "originate"}},
	}
	o := newOrchestrator(t, config.ModeREST, fx)

	_, err := o.OriginateCall(context.Background(), "agent-1", "0612345678")
	require.Error(t, err)
	assert.True(t, domain.IsConnectivity(err), "orchestrator must not wrap or retry adapter errors")
	assert.Equal(t, 1, fx.rest.calls)
}

func TestHangupDiscardsPendingHandle(t *testing.T) {
	fx := &orchFixture{
		store: &fakeStore{agents: map[string]domain.Agent{
			"agent-1": {ID: "agent-1", Extension: "1001", SiteID: "site-1"},
		}},
		amiCallID: "1700000000.42",
	}
	o := newOrchestrator(t, config.ModeAMI, fx)

	_, err := o.OriginateCall(context.Background(), "agent-1", "0612345678")
	require.NoError(t, err)
	require.Equal(t, 1, o.PendingHandles())

	// Non-terminal events leave the handle in place.
	o.OnCallEvent(domain.NormalizedCallEvent{CallID: "1700000000.42", Type: domain.CallEventStatusChange})
	assert.Equal(t, 1, o.PendingHandles())

	// A hangup for some other call does not match.
	o.OnCallEvent(domain.NormalizedCallEvent{CallID: "other", Type: domain.CallEventHangup})
	assert.Equal(t, 1, o.PendingHandles())

	o.OnCallEvent(domain.NormalizedCallEvent{CallID: "1700000000.42", Type: domain.CallEventHangup})
	assert.Zero(t, o.PendingHandles())
}

// End-to-end shape check for the REST v1 path: a real adapter against a
// fake device, driven through the orchestrator.
func TestRESTModeV1EndToEnd(t *testing.T) {
	srv, seen := newV1Device(t)

	fxStore := &fakeStore{
		agents: map[string]domain.Agent{
			"1001": {ID: "1001", Extension: "1001", SiteID: "site-1"},
		},
		configs: map[string]domain.PbxConfig{
			"site-1": {
				SiteID:      "site-1",
				IPAddress:   strings.TrimPrefix(srv, "http://"),
				APIUser:     "apiuser",
				APIPassword: "apipass",
				APIVersion:  domain.APIVersionV1,
			},
		},
	}

	o := NewOrchestrator(OrchestratorConfig{
		Mode:          config.ModeREST,
		Agents:        fxStore,
		Sites:         fxStore,
		AdapterFor:    realAdapterSource(t),
		ChannelPrefix: "PJSIP",
		CallerID:      "0188000000",
		Metrics:       metrics.New(),
		Logger:        zerolog.Nop(),
	})

	handle, err := o.OriginateCall(context.Background(), "1001", "0612345678")
	require.NoError(t, err)
	assert.Equal(t, "call-id-12345", handle.CallID)

	req := <-seen
	assert.Equal(t, "/api/v1/call/originate", req.path)
	assert.Equal(t, "apiuser:apipass", req.auth)
	assert.Equal(t, map[string]string{
		"channel":  "PJSIP/1001",
		"exten":    "0612345678",
		"callerid": "0188000000",
	}, req.body)
}
