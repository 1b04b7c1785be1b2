package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeVersions struct {
	version atomic.Int64
	fail    atomic.Bool
}

func (f *fakeVersions) GetLeaderboardVersion(ctx context.Context) (int64, error) {
	if f.fail.Load() {
		return 0, errors.New("redis down")
	}
	return f.version.Load(), nil
}

func receive(t *testing.T, c *Client) VersionUpdate {
	t.Helper()
	select {
	case msg, ok := <-c.send:
		require.True(t, ok, "send channel closed")
		var update VersionUpdate
		require.NoError(t, json.Unmarshal(msg, &update))
		return update
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}
	return VersionUpdate{}
}

func newTestClient(h *Hub) *Client {
	return &Client{hub: h, send: make(chan []byte, sendBuffer)}
}

func TestHub_InitialVersionAndBroadcast(t *testing.T) {
	versions := &fakeVersions{}
	versions.version.Store(7)

	hub := NewHub(versions, 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	client := newTestClient(hub)
	hub.register <- client

	initial := receive(t, client)
	assert.Equal(t, MessageVersionUpdate, initial.Type)
	assert.Equal(t, int64(7), initial.Version)
	assert.Equal(t, 1, hub.GetClientCount())

	versions.version.Store(8)
	update := receive(t, client)
	assert.Equal(t, int64(8), update.Version)

	hub.unregister <- client
	_, open := <-client.send
	assert.False(t, open)
	assert.Equal(t, 0, hub.GetClientCount())
}

func TestHub_CheckAndBroadcastOnlyOnChange(t *testing.T) {
	versions := &fakeVersions{}
	versions.version.Store(3)

	hub := NewHub(versions, time.Hour)
	client := newTestClient(hub)
	hub.clients[client] = true

	hub.checkAndBroadcastVersion(context.Background())
	assert.Len(t, client.send, 1)

	hub.checkAndBroadcastVersion(context.Background())
	assert.Len(t, client.send, 1, "unchanged version is not rebroadcast")

	versions.fail.Store(true)
	versions.version.Store(4)
	hub.checkAndBroadcastVersion(context.Background())
	assert.Len(t, client.send, 1, "lookup errors skip the tick")
}

func TestHub_SlowClientDoesNotBlock(t *testing.T) {
	versions := &fakeVersions{}
	hub := NewHub(versions, time.Hour)

	slow := &Client{hub: hub, send: make(chan []byte)}
	hub.clients[slow] = true

	versions.version.Store(1)
	done := make(chan struct{})
	go func() {
		hub.checkAndBroadcastVersion(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked on a slow client")
	}
}

func TestHub_ShutdownClosesClients(t *testing.T) {
	hub := NewHub(&fakeVersions{}, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	client := newTestClient(hub)
	hub.register <- client
	receive(t, client)

	cancel()

	select {
	case <-hub.done:
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop")
	}

	_, open := <-client.send
	assert.False(t, open)
	assert.Equal(t, 0, hub.GetClientCount())
}

func TestNewHub_DefaultHeartbeat(t *testing.T) {
	assert.Equal(t, DefaultHeartbeat, NewHub(&fakeVersions{}, 0).heartbeat)
}
