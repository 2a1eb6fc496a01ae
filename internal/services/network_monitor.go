package services

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/fieldsync/agent/internal/models"
	"github.com/fieldsync/agent/internal/observability"
)

// ErrConnectivityUnavailable is returned by probes that cannot observe the network
var ErrConnectivityUnavailable = errors.New("connectivity signal unavailable")

// ConnectivityProbe queries the platform for the current connectivity
type ConnectivityProbe interface {
	Probe(ctx context.Context) (models.NetworkStatus, error)
}

// HTTPProbe considers the device online when the sync target answers at all
type HTTPProbe struct {
	url    string
	client *http.Client
}

// NewHTTPProbe creates a probe against url. An empty url makes the probe unavailable.
func NewHTTPProbe(url string, timeout time.Duration) *HTTPProbe {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPProbe{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

func (p *HTTPProbe) Probe(ctx context.Context) (models.NetworkStatus, error) {
	if p.url == "" {
		return models.NetworkStatus{}, ErrConnectivityUnavailable
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url, nil)
	if err != nil {
		return models.NetworkStatus{}, ErrConnectivityUnavailable
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return models.NetworkStatus{Connected: false, ConnectionType: models.ConnectionNone}, nil
	}
	resp.Body.Close()

	return models.NetworkStatus{Connected: true, ConnectionType: models.ConnectionUnknown}, nil
}

// NetworkMonitor keeps the last known connectivity and notifies on changes.
// Without a usable probe it reports the device as online.
type NetworkMonitor struct {
	probe    ConnectivityProbe
	interval time.Duration
	notifier *Notifier[models.NetworkStatus]
	logger   *observability.Logger

	mu       sync.RWMutex
	status   models.NetworkStatus
	running  bool
	stopChan chan struct{}
}

// NewNetworkMonitor creates a monitor polling probe every interval. A zero
// interval disables polling; Report still updates the state.
func NewNetworkMonitor(probe ConnectivityProbe, interval time.Duration) *NetworkMonitor {
	return &NetworkMonitor{
		probe:    probe,
		interval: interval,
		notifier: NewNotifier[models.NetworkStatus](),
		logger:   observability.WithField("component", "network"),
		status: models.NetworkStatus{
			Connected:      true,
			ConnectionType: models.ConnectionUnknown,
		},
	}
}

// Initialize queries the status once and starts polling. Calling it again
// only re-queries.
func (m *NetworkMonitor) Initialize(ctx context.Context) {
	m.Refresh(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running || m.interval <= 0 {
		return
	}
	m.running = true
	m.stopChan = make(chan struct{})
	go m.pollLoop(m.stopChan)
}

func (m *NetworkMonitor) pollLoop(stop chan struct{}) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), m.interval)
			m.Refresh(ctx)
			cancel()
		case <-stop:
			return
		}
	}
}

// Stop ends polling
func (m *NetworkMonitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	m.running = false
	close(m.stopChan)
}

// Refresh probes once and notifies listeners when the status changed
func (m *NetworkMonitor) Refresh(ctx context.Context) models.NetworkStatus {
	status := m.query(ctx)
	m.set(status, false)
	return m.Status()
}

func (m *NetworkMonitor) query(ctx context.Context) models.NetworkStatus {
	if m.probe == nil {
		return models.NetworkStatus{Connected: true, ConnectionType: models.ConnectionUnknown}
	}

	status, err := m.probe.Probe(ctx)
	if err != nil {
		if !errors.Is(err, ErrConnectivityUnavailable) {
			m.logger.Warnf("Connectivity probe failed, assuming online: %v", err)
		}
		return models.NetworkStatus{Connected: true, ConnectionType: models.ConnectionUnknown}
	}
	if status.ConnectionType == "" {
		status.ConnectionType = models.ConnectionUnknown
	}
	return status
}

// Report applies a status pushed by the platform. Listeners are always
// notified, even when nothing changed.
func (m *NetworkMonitor) Report(status models.NetworkStatus) {
	if status.ConnectionType == "" {
		if status.Connected {
			status.ConnectionType = models.ConnectionUnknown
		} else {
			status.ConnectionType = models.ConnectionNone
		}
	}
	m.set(status, true)
}

func (m *NetworkMonitor) set(status models.NetworkStatus, force bool) {
	status.CheckedAt = time.Now().UTC()

	m.mu.Lock()
	changed := m.status.Connected != status.Connected || m.status.ConnectionType != status.ConnectionType
	m.status = status
	m.mu.Unlock()

	if changed {
		m.logger.Infof("Network status: connected=%t type=%s", status.Connected, status.ConnectionType)
	}
	if changed || force {
		m.notifier.Notify(status)
	}
}

// IsOnline returns the last known state without probing
func (m *NetworkMonitor) IsOnline() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status.Connected
}

// Status returns the last known snapshot
func (m *NetworkMonitor) Status() models.NetworkStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// AddListener registers fn for status changes and returns its unsubscribe handle
func (m *NetworkMonitor) AddListener(fn func(models.NetworkStatus)) func() {
	return m.notifier.Subscribe(fn)
}
