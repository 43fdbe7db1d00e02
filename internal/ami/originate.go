package ami

import (
	"context"
	"fmt"
	"time"

	"pbxbridge/internal/domain"
)

// OriginateRequest describes an outbound call to place through the
// manager connection.
type OriginateRequest struct {
	Channel     string
	Exten       string
	Context     string
	CallerID    string
	Timeout     time.Duration
	Variables   map[string]string
	CorrelateID string
}

// Originate issues an Originate action over the shared session and
// returns the PBX-native unique id of the resulting channel. The
// correlation id is attached as a channel variable so later stream
// events can be tied back to the handle even when the device does not
// echo a unique id in the response.
func (m *Manager) Originate(ctx context.Context, req OriginateRequest) (string, error) {
	timeout := req.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	fields := [][2]string{
		{"Channel", req.Channel},
		{"Exten", req.Exten},
		{"Context", req.Context},
		{"Priority", "1"},
		{"CallerID", req.CallerID},
		{"Timeout", fmt.Sprintf("%d", timeout.Milliseconds())},
		{"Async", "true"},
	}
	if req.CorrelateID != "" {
		fields = append(fields, [2]string{"Variable", "X_CALL_REF=" + req.CorrelateID})
	}
	for k, v := range req.Variables {
		fields = append(fields, [2]string{"Variable", k + "=" + v})
	}

	resp, err := m.SendAction(ctx, Action{Name: "Originate", Fields: fields}, timeout)
	if err != nil {
		return "", err
	}

	if resp.Get("Response") != "Success" {
		return "", fmt.Errorf("originate rejected: %s", resp.Get("Message"))
	}

	// Async originations do not always echo a Uniqueid; fall back to
	// the correlation reference the dialplan will see as X_CALL_REF.
	if id := resp.Get("Uniqueid"); id != "" {
		return id, nil
	}
	if req.CorrelateID != "" {
		return req.CorrelateID, nil
	}
	return "", &domain.ConnectivityError{Op: "originate", Err: fmt.Errorf("no call id in response")}
}
