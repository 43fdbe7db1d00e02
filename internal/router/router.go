package router

import (
	"sync"

	"github.com/rs/zerolog"

	"pbxbridge/internal/domain"
	"pbxbridge/internal/metrics"
)

// SupervisorRoom is the broadcast room live dashboards join.
const SupervisorRoom = "supervisors"

// Broadcaster pushes a message to every live consumer of a room. The
// application injects its implementation (websocket hub, socket server).
type Broadcaster interface {
	BroadcastToRoom(room string, message Message)
}

// Subscriber is a directly attached event consumer, such as the MQTT
// mirror. Dispatch to each subscriber is independent and fire-and-forget.
type Subscriber interface {
	OnCallEvent(evt domain.NormalizedCallEvent)
	OnAgentStatus(upd domain.AgentStatusUpdate)
}

// Message is the envelope pushed to broadcast rooms.
type Message struct {
	Name string `json:"name"`
	Body any    `json:"body"`
}

// Router fans normalized events out to the broadcaster and any
// registered subscribers, and answers extension-to-agent lookups. There
// is no replay: a subscriber attached after an event fired never sees
// it.
type Router struct {
	broadcaster Broadcaster
	metrics     *metrics.Metrics
	logger      zerolog.Logger

	mu          sync.RWMutex
	subscribers map[string]Subscriber

	mapMu      sync.RWMutex
	extToAgent map[string]string
}

func New(broadcaster Broadcaster, m *metrics.Metrics, logger zerolog.Logger) *Router {
	return &Router{
		broadcaster: broadcaster,
		metrics:     m,
		logger:      logger.With().Str("component", "router").Logger(),
		subscribers: make(map[string]Subscriber),
		extToAgent:  make(map[string]string),
	}
}

// Subscribe attaches a named consumer. Re-registering a name replaces
// the previous consumer.
func (r *Router) Subscribe(name string, s Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.subscribers[name] = s
	r.logger.Debug().Str("subscriber", name).Msg("Registered event subscriber")
}

// Unsubscribe detaches a consumer.
func (r *Router) Unsubscribe(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.subscribers, name)
	r.logger.Debug().Str("subscriber", name).Msg("Unregistered event subscriber")
}

// DispatchCallEvent fans a call event out to the supervisor room and
// all subscribers. Each delivery runs on its own goroutine so a slow
// subscriber never blocks the others.
func (r *Router) DispatchCallEvent(evt domain.NormalizedCallEvent) {
	r.metrics.IncEvent(string(evt.Type))

	if r.broadcaster != nil {
		msg := Message{Name: "callEvent", Body: evt}
		go r.broadcaster.BroadcastToRoom(SupervisorRoom, msg)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	for name, s := range r.subscribers {
		r.metrics.IncDispatch("delivered")
		go func(name string, s Subscriber) {
			s.OnCallEvent(evt)
		}(name, s)
	}
}

// DispatchAgentStatus fans an agent status update out the same way.
func (r *Router) DispatchAgentStatus(upd domain.AgentStatusUpdate) {
	r.metrics.IncEvent("agentStatus")

	if r.broadcaster != nil {
		msg := Message{Name: "agentStatus", Body: upd}
		go r.broadcaster.BroadcastToRoom(SupervisorRoom, msg)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	for name, s := range r.subscribers {
		r.metrics.IncDispatch("delivered")
		go func(name string, s Subscriber) {
			s.OnAgentStatus(upd)
		}(name, s)
	}
}

// ResolveAgent returns the agent id bound to an extension, or "" when
// the extension is unmapped.
func (r *Router) ResolveAgent(extension string) string {
	r.mapMu.RLock()
	defer r.mapMu.RUnlock()
	return r.extToAgent[extension]
}

// UpdateExtension binds an extension to an agent. Writers are the
// listener preload and login-driven updates only.
func (r *Router) UpdateExtension(extension, agentID string) {
	r.mapMu.Lock()
	defer r.mapMu.Unlock()

	if agentID == "" {
		delete(r.extToAgent, extension)
		return
	}
	r.extToAgent[extension] = agentID
}

// MappingCount reports how many extensions are currently bound.
func (r *Router) MappingCount() int {
	r.mapMu.RLock()
	defer r.mapMu.RUnlock()
	return len(r.extToAgent)
}
