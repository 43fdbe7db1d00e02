package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"pbxbridge/internal/dial"
	"pbxbridge/internal/domain"
)

type originateRequest struct {
	AgentID           string `json:"agentId"`
	DestinationNumber string `json:"destinationNumber"`
}

type errorResponse struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// OriginateHandler exposes call origination. Error kinds map to status
// codes so the caller can tell bad configuration from an unreachable
// PBX from bad credentials.
func OriginateHandler(orch *dial.Orchestrator, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req originateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "badRequest", "invalid request body")
			return
		}
		if req.AgentID == "" || req.DestinationNumber == "" {
			writeError(w, http.StatusBadRequest, "badRequest", "agentId and destinationNumber are required")
			return
		}

		handle, err := orch.OriginateCall(r.Context(), req.AgentID, req.DestinationNumber)
		if err != nil {
			logger.Warn().Err(err).Str("agent_id", req.AgentID).Msg("Origination failed")
			status, kind := classify(err)
			writeError(w, status, kind, err.Error())
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(handle)
	}
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrAgentNotFound):
		return http.StatusNotFound, "agentNotFound"
	case domain.IsConfiguration(err):
		return http.StatusConflict, "configuration"
	case domain.IsAuthentication(err):
		return http.StatusUnauthorized, "authentication"
	case domain.IsConnectivity(err):
		return http.StatusBadGateway, "connectivity"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func writeError(w http.ResponseWriter, status int, kind, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Kind: kind, Message: message})
}
