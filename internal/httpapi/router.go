package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"pbxbridge/internal/dial"
	"pbxbridge/internal/hub"
	"pbxbridge/internal/metrics"
)

// Deps carries the collaborators the HTTP boundary exposes. User
// authentication is handled by the fronting admin application, not
// here.
type Deps struct {
	Orchestrator *dial.Orchestrator
	Hub          *hub.Hub
	Metrics      *metrics.Metrics
	Health       func() error
	Logger       zerolog.Logger
}

func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", HealthHandler(deps.Health))
	r.Handle("/metrics", deps.Metrics.Handler())
	r.Post("/api/calls/originate", OriginateHandler(deps.Orchestrator, deps.Logger))
	r.Get("/ws/supervisor", SupervisorSocketHandler(deps.Hub, deps.Logger))

	return r
}

func HealthHandler(check func() error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			if err := check(); err != nil {
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}
}
