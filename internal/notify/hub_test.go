package notify

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-autolink/internal/domain"
	"solana-autolink/internal/storage/memory"
)

func setupHub(t *testing.T) (*Hub, *memory.SettingsStore, *httptest.Server) {
	t.Helper()
	settings := memory.NewSettingsStore()
	hub := NewHub(settings, nil, nil)
	srv := httptest.NewServer(hub)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return hub, settings, srv
}

func dial(t *testing.T, hub *Hub, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	before := hub.ClientCount()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.Eventually(t, func() bool { return hub.ClientCount() > before }, time.Second, 5*time.Millisecond)
	return conn
}

func enableNotifications(t *testing.T, settings *memory.SettingsStore, walletID string, enabled bool) {
	t.Helper()
	s := domain.DefaultWalletLinkSettings(walletID)
	s.NotificationEnabled = enabled
	require.NoError(t, settings.Upsert(context.Background(), s))
}

func TestHub_StreamsResolutionEvents(t *testing.T) {
	hub, settings, srv := setupHub(t)
	enableNotifications(t, settings, "w1", true)
	conn := dial(t, hub, srv, "")

	require.NoError(t, hub.Publish(context.Background(), linkedEvent("e1")))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg EventMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "e1", msg.EventID)
	assert.Equal(t, "linked", msg.NewStatus)
	assert.Equal(t, "w1", msg.WalletID)
}

func TestHub_FiltersEvents(t *testing.T) {
	hub, settings, srv := setupHub(t)
	enableNotifications(t, settings, "w1", true)
	enableNotifications(t, settings, "w2", false)
	conn := dial(t, hub, srv, "?wallet=w1")
	ctx := context.Background()

	escalated := linkedEvent("skip-escalation")
	escalated.NewStatus = domain.StatusManualReview
	require.NoError(t, hub.Publish(ctx, escalated))

	muted := linkedEvent("skip-muted")
	muted.WalletID = "w2"
	require.NoError(t, hub.Publish(ctx, muted))

	unconfigured := linkedEvent("skip-unconfigured")
	unconfigured.WalletID = "w3"
	require.NoError(t, hub.Publish(ctx, unconfigured))

	ignored := linkedEvent("deliver")
	ignored.NewStatus = domain.StatusIgnored
	ignored.Trigger = domain.TriggerExpiration
	require.NoError(t, hub.Publish(ctx, ignored))

	// Only the last event reaches the client.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg EventMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "deliver", msg.EventID)
	assert.Equal(t, "expiration", msg.Trigger)
}

func TestHub_CloseDisconnectsClients(t *testing.T) {
	hub, _, srv := setupHub(t)
	conn := dial(t, hub, srv, "")

	hub.Close()
	assert.Equal(t, 0, hub.ClientCount())

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestNewHub_ZeroConfigUsesDefaults(t *testing.T) {
	hub := NewHub(memory.NewSettingsStore(), &HubConfig{SendBuffer: 4}, nil)
	want := DefaultHubConfig()
	want.SendBuffer = 4
	assert.Equal(t, want, hub.config)

	// A connected client exercises the ping ticker with the defaulted interval.
	srv := httptest.NewServer(hub)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	conn := dial(t, hub, srv, "")
	hub.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}
