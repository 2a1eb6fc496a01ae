package services

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/fieldsync/agent/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProbe struct {
	mu     sync.Mutex
	status models.NetworkStatus
	err    error
}

func (p *fakeProbe) Probe(context.Context) (models.NetworkStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status, p.err
}

func (p *fakeProbe) set(connected bool, kind string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = models.NetworkStatus{Connected: connected, ConnectionType: kind}
}

func TestNetworkMonitor_FailOpen(t *testing.T) {
	ctx := context.Background()

	t.Run("nil probe", func(t *testing.T) {
		m := NewNetworkMonitor(nil, 0)
		m.Initialize(ctx)

		assert.True(t, m.IsOnline())
		assert.Equal(t, models.ConnectionUnknown, m.Status().ConnectionType)
	})

	t.Run("unavailable probe", func(t *testing.T) {
		m := NewNetworkMonitor(&fakeProbe{err: ErrConnectivityUnavailable}, 0)
		m.Initialize(ctx)
		assert.True(t, m.IsOnline())
	})

	t.Run("broken probe", func(t *testing.T) {
		m := NewNetworkMonitor(&fakeProbe{err: errors.New("plugin crashed")}, 0)
		m.Initialize(ctx)
		assert.True(t, m.IsOnline())
	})
}

func TestNetworkMonitor_Listeners(t *testing.T) {
	ctx := context.Background()
	probe := &fakeProbe{}
	probe.set(false, models.ConnectionNone)
	m := NewNetworkMonitor(probe, 0)

	var seen []models.NetworkStatus
	unsubscribe := m.AddListener(func(s models.NetworkStatus) { seen = append(seen, s) })

	m.Initialize(ctx)
	require.Len(t, seen, 1)
	assert.False(t, seen[0].Connected)
	assert.False(t, m.IsOnline())

	t.Run("unchanged probe result is not re-sent", func(t *testing.T) {
		m.Refresh(ctx)
		assert.Len(t, seen, 1)
	})

	t.Run("change is delivered with the latest value", func(t *testing.T) {
		probe.set(true, models.ConnectionWiFi)
		m.Refresh(ctx)

		require.Len(t, seen, 2)
		assert.True(t, seen[1].Connected)
		assert.Equal(t, models.ConnectionWiFi, seen[1].ConnectionType)
	})

	t.Run("platform reports always notify", func(t *testing.T) {
		m.Report(models.NetworkStatus{Connected: true, ConnectionType: models.ConnectionWiFi})
		assert.Len(t, seen, 3)
	})

	t.Run("unsubscribed listener stops receiving", func(t *testing.T) {
		unsubscribe()
		m.Report(models.NetworkStatus{Connected: false})

		assert.Len(t, seen, 3)
		assert.False(t, m.IsOnline())
		assert.Equal(t, models.ConnectionNone, m.Status().ConnectionType)
	})
}

func TestNetworkMonitor_InitializeTwice(t *testing.T) {
	m := NewNetworkMonitor(&fakeProbe{status: models.NetworkStatus{Connected: true}}, 0)
	m.Initialize(context.Background())
	m.Initialize(context.Background())
	m.Stop()
	assert.True(t, m.IsOnline())
}

func TestHTTPProbe(t *testing.T) {
	ctx := context.Background()

	t.Run("reachable target is online", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		status, err := NewHTTPProbe(srv.URL, 0).Probe(ctx)
		require.NoError(t, err)
		assert.True(t, status.Connected)
	})

	t.Run("unreachable target is offline", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		status, err := NewHTTPProbe(url, 0).Probe(ctx)
		require.NoError(t, err)
		assert.False(t, status.Connected)
		assert.Equal(t, models.ConnectionNone, status.ConnectionType)
	})

	t.Run("no url means unavailable", func(t *testing.T) {
		_, err := NewHTTPProbe("", 0).Probe(ctx)
		assert.ErrorIs(t, err, ErrConnectivityUnavailable)
	})
}
