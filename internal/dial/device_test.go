package dial

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"pbxbridge/internal/domain"
	"pbxbridge/internal/pbx"
)

type deviceRequest struct {
	path string
	auth string
	body map[string]string
}

// newV1Device serves a minimal v1-only PBX and reports what it saw.
func newV1Device(t *testing.T) (string, chan deviceRequest) {
	t.Helper()

	seen := make(chan deviceRequest, 4)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/call/originate", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		user, pass, _ := r.BasicAuth()

		seen <- deviceRequest{path: r.URL.Path, auth: user + ":" + pass, body: body}

		_ = json.NewEncoder(w).Encode(map[string]any{
			"response": map[string]string{"status": "success", "call_id": "call-id-12345"},
		})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv.URL, seen
}

// realAdapterSource builds genuine REST adapters, as the service wiring
// does.
func realAdapterSource(t *testing.T) AdapterSource {
	t.Helper()

	registry := pbx.NewRegistry("PJSIP", nil, zerolog.Nop())
	return func(cfg domain.PbxConfig) RESTOriginator {
		return registry.ForConfig(cfg)
	}
}
