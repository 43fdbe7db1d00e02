package pbx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"pbxbridge/internal/domain"
)

type v1Envelope struct {
	Response struct {
		Status string `json:"status"`
		CallID string `json:"call_id"`
	} `json:"response"`
}

type v2Envelope struct {
	Data struct {
		CallID string `json:"call_id"`
	} `json:"data"`
}

// Originate instructs the PBX to place an outbound call from the given
// extension and returns the PBX-native call id. The request shape and
// authentication scheme depend on the pinned API version.
func (a *Adapter) Originate(ctx context.Context, sourceExtension, destinationNumber, callerID string) (string, error) {
	if err := a.Initialize(ctx); err != nil {
		return "", err
	}

	channel := fmt.Sprintf("%s/%s", a.channelPrefix, sourceExtension)

	a.logger.Debug().
		Str("channel", channel).
		Str("destination", destinationNumber).
		Msg("Originating call via REST API")

	if a.Version() == domain.APIVersionV2 {
		return a.originateV2(ctx, channel, destinationNumber, callerID)
	}
	return a.originateV1(ctx, channel, destinationNumber, callerID)
}

func (a *Adapter) originateV1(ctx context.Context, channel, destination, callerID string) (string, error) {
	body, _ := json.Marshal(map[string]string{
		"channel":  channel,
		"exten":    destination,
		"callerid": callerID,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/api/v1/call/originate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building originate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(a.cfg.APIUser, a.cfg.APIPassword)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", &domain.ConnectivityError{Op: "originate", Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &domain.ConnectivityError{Op: "originate", Err: err}
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return "", &domain.AuthenticationError{
			Op:  "originate",
			Err: fmt.Errorf("basic auth rejected: %s", string(data)),
		}
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("originate failed with status %d: %s", resp.StatusCode, string(data))
	}

	var env v1Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", fmt.Errorf("decoding originate response: %w", err)
	}

	a.logger.Info().Str("call_id", env.Response.CallID).Msg("Call originated via v1 API")
	return env.Response.CallID, nil
}

func (a *Adapter) originateV2(ctx context.Context, channel, destination, callerID string) (string, error) {
	token, err := a.ensureToken(ctx, false)
	if err != nil {
		return "", err
	}

	callID, status, err := a.postOriginateV2(ctx, token, channel, destination, callerID)
	if status == http.StatusUnauthorized {
		// The device rejected the token; refresh once and retry once.
		a.invalidateToken(token)
		token, err = a.ensureToken(ctx, true)
		if err != nil {
			return "", err
		}
		callID, status, err = a.postOriginateV2(ctx, token, channel, destination, callerID)
		if status == http.StatusUnauthorized {
			return "", &domain.AuthenticationError{
				Op:  "originate",
				Err: fmt.Errorf("token rejected after refresh"),
			}
		}
	}
	if err != nil {
		return "", err
	}

	a.logger.Info().Str("call_id", callID).Msg("Call originated via v2 API")
	return callID, nil
}

func (a *Adapter) postOriginateV2(ctx context.Context, token, channel, destination, callerID string) (string, int, error) {
	body, _ := json.Marshal(map[string]string{
		"channel":   channel,
		"extension": destination,
		"callerid":  callerID,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/api/v2/call/originate", bytes.NewReader(body))
	if err != nil {
		return "", 0, fmt.Errorf("building originate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", 0, &domain.ConnectivityError{Op: "originate", Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", resp.StatusCode, &domain.ConnectivityError{Op: "originate", Err: err}
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return "", resp.StatusCode, nil
	}
	if resp.StatusCode != http.StatusOK {
		return "", resp.StatusCode, fmt.Errorf("originate failed with status %d: %s", resp.StatusCode, string(data))
	}

	var env v2Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", resp.StatusCode, fmt.Errorf("decoding originate response: %w", err)
	}

	return env.Data.CallID, resp.StatusCode, nil
}
