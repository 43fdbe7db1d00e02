package ami

import "sync"

// Provider hands out the process-wide manager session, building and
// connecting it on first access. Every caller shares the same session,
// so events are delivered exactly once per process.
type Provider struct {
	build func() *Manager

	mu      sync.Mutex
	manager *Manager
}

func NewProvider(build func() *Manager) *Provider {
	return &Provider{build: build}
}

// Get returns the shared session, connecting it lazily. A connect
// failure leaves the manager cached: its reconnect loop is not running
// yet, so the next Get retries.
func (p *Provider) Get() (*Manager, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.manager == nil {
		p.manager = p.build()
	}

	if !p.manager.IsConnected() {
		if err := p.manager.Connect(); err != nil {
			return nil, err
		}
	}

	return p.manager, nil
}

// Close shuts down the shared session if one was ever created.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.manager == nil {
		return nil
	}
	return p.manager.Disconnect()
}
