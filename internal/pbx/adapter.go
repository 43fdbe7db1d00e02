package pbx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"pbxbridge/internal/domain"
)

// VersionSaver persists a detected API version so future adapter
// instances for the same site skip the probe.
type VersionSaver func(ctx context.Context, siteID string, version domain.APIVersion) error

// Adapter speaks the REST dialect of one PBX device, hiding the
// differences between the v1 (basic auth) and v2 (token) APIs.
type Adapter struct {
	cfg           domain.PbxConfig
	baseURL       string
	channelPrefix string
	httpClient    *http.Client
	saveVersion   VersionSaver
	logger        zerolog.Logger

	mu          sync.Mutex
	version     domain.APIVersion
	initialized bool
	token       string
	tokenExpiry time.Time
	refreshing  *loginAttempt
}

// loginAttempt is a shared in-flight login exchange. Concurrent callers
// that find the token expired wait on one attempt instead of each
// re-authenticating.
type loginAttempt struct {
	done   chan struct{}
	token  string
	expiry time.Time
	err    error
}

type Options struct {
	Config        domain.PbxConfig
	ChannelPrefix string
	SaveVersion   VersionSaver
	HTTPClient    *http.Client
	Logger        zerolog.Logger
}

func NewAdapter(opts Options) *Adapter {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	prefix := opts.ChannelPrefix
	if prefix == "" {
		prefix = "PJSIP"
	}

	return &Adapter{
		cfg:           opts.Config,
		baseURL:       "http://" + opts.Config.IPAddress,
		channelPrefix: prefix,
		httpClient:    client,
		saveVersion:   opts.SaveVersion,
		version:       opts.Config.APIVersion,
		logger: opts.Logger.With().
			Str("component", "pbx-adapter").
			Str("site_id", opts.Config.SiteID).
			Logger(),
	}
}

// Initialize probes the device for v2 support and, if found, performs
// the v2 login exchange. It runs at most once per adapter instance;
// later calls are no-ops. A config with an already-detected version
// skips the probe entirely.
func (a *Adapter) Initialize(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.initialized {
		return nil
	}

	if a.version == domain.APIVersionUnprobed {
		a.version = a.probeLocked(ctx)

		if a.saveVersion != nil {
			if err := a.saveVersion(ctx, a.cfg.SiteID, a.version); err != nil {
				a.logger.Warn().Err(err).Msg("Failed to persist detected API version")
			}
		}
	}

	if a.version == domain.APIVersionV2 {
		token, expiry, err := a.login(ctx)
		if err != nil {
			return err
		}
		a.token = token
		a.tokenExpiry = expiry
	}

	a.initialized = true
	a.logger.Info().Int("api_version", int(a.version)).Msg("PBX adapter initialized")
	return nil
}

// Version reports the pinned API version (Unprobed before Initialize).
func (a *Adapter) Version() domain.APIVersion {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.version
}

// probeLocked hits the v2-only version endpoint. Anything other than a
// 2xx answer, including transport errors, pins the device to v1.
func (a *Adapter) probeLocked(ctx context.Context) domain.APIVersion {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/api/v2/system/version", nil)
	if err != nil {
		return domain.APIVersionV1
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		a.logger.Debug().Err(err).Msg("v2 probe failed, staying on v1")
		return domain.APIVersionV1
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		a.logger.Debug().Int("status", resp.StatusCode).Msg("v2 probe rejected, staying on v1")
		return domain.APIVersionV1
	}

	return domain.APIVersionV2
}

type loginResponse struct {
	Data struct {
		Token  string `json:"token"`
		Expire int64  `json:"expire"`
	} `json:"data"`
}

// login performs the v2 login exchange and returns the session token
// with its expiry.
func (a *Adapter) login(ctx context.Context) (string, time.Time, error) {
	body, _ := json.Marshal(map[string]string{
		"username": a.cfg.APIUser,
		"password": a.cfg.APIPassword,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/api/v2/login", bytes.NewReader(body))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("building login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", time.Time{}, &domain.ConnectivityError{Op: "login", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return "", time.Time{}, &domain.AuthenticationError{
			Op:  "login",
			Err: fmt.Errorf("status %d: %s", resp.StatusCode, string(data)),
		}
	}

	var lr loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return "", time.Time{}, fmt.Errorf("decoding login response: %w", err)
	}

	expiry := time.Unix(lr.Data.Expire, 0)
	a.logger.Debug().Time("expiry", expiry).Msg("Obtained v2 session token")
	return lr.Data.Token, expiry, nil
}

// ensureToken returns a valid session token, re-running the login
// exchange when the cached one is expired or was invalidated. When
// several callers discover an expired token at once, only the first
// performs the login; the rest wait for its result.
func (a *Adapter) ensureToken(ctx context.Context, force bool) (string, error) {
	a.mu.Lock()

	if !force && a.token != "" && time.Now().Before(a.tokenExpiry) {
		token := a.token
		a.mu.Unlock()
		return token, nil
	}

	if a.refreshing != nil {
		attempt := a.refreshing
		a.mu.Unlock()
		<-attempt.done
		return attempt.token, attempt.err
	}

	attempt := &loginAttempt{done: make(chan struct{})}
	a.refreshing = attempt
	a.mu.Unlock()

	token, expiry, err := a.login(ctx)
	attempt.token = token
	attempt.expiry = expiry
	attempt.err = err
	close(attempt.done)

	a.mu.Lock()
	a.refreshing = nil
	if err == nil {
		a.token = token
		a.tokenExpiry = expiry
	}
	a.mu.Unlock()

	return token, err
}

// invalidateToken drops a token the device has rejected.
func (a *Adapter) invalidateToken(rejected string) {
	a.mu.Lock()
	if a.token == rejected {
		a.token = ""
	}
	a.mu.Unlock()
}
