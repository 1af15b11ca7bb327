package api

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"deskpilot/internal/network"
	"deskpilot/internal/protocol"
)

func wsAddr(f *fixture) string {
	return strings.TrimPrefix(f.http.URL, "http://")
}

func TestWebSocketCommands(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newFixture(t, "secret")
	defer f.close()

	var (
		mu     sync.Mutex
		events []protocol.EventPayload
	)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := network.DialWS(ctx, wsAddr(f), "secret", network.WithEventHandler(func(ev protocol.EventPayload) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	}))
	require.NoError(t, err)
	defer c.Close()
	require.Eventually(t, func() bool { return f.server.hub.Count() == 1 }, 2*time.Second, 5*time.Millisecond)

	res, err := c.Call(ctx, protocol.TypeMove, protocol.MovePayload{X: 12, Y: 34})
	require.NoError(t, err)
	require.NotNil(t, res.X)
	assert.Equal(t, 12, *res.X)
	assert.Equal(t, 34, *res.Y)

	_, err = c.Call(ctx, protocol.TypeClick, protocol.ButtonPayload{Button: "middle"})
	require.NoError(t, err)

	_, err = c.Call(ctx, protocol.TypePing, nil)
	require.NoError(t, err)

	res, err = c.Call(ctx, protocol.TypePosition, nil)
	require.NoError(t, err)
	assert.Equal(t, 12, *res.X)

	_, err = c.Call(ctx, protocol.TypeTap, protocol.TapPayload{Chord: "Tab+x"})
	var remote *network.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, "bad_request", remote.Code)

	_, err = c.Call(ctx, protocol.TypeMove, protocol.MovePayload{X: 9000, Y: 10, Smooth: true})
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, "boundary", remote.Code)

	_, err = c.Call(ctx, protocol.MessageType("reboot"), nil)
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, "bad_request", remote.Code)

	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, len(events), 3)
	assert.Equal(t, "move", events[0].Op)
	assert.Equal(t, 12, *events[0].X)
	assert.Equal(t, "click", events[1].Op)
}

func TestWebSocketRequiresToken(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newFixture(t, "secret")
	defer f.close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := network.DialWS(ctx, wsAddr(f), "nope")
	require.Error(t, err)
	assert.ErrorIs(t, err, websocket.ErrBadHandshake)
}

func TestWebSocketEventsReachOtherClients(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newFixture(t, "")
	defer f.close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got := make(chan protocol.EventPayload, 8)
	watcher, err := network.DialWS(ctx, wsAddr(f), "", network.WithEventHandler(func(ev protocol.EventPayload) {
		got <- ev
	}))
	require.NoError(t, err)
	defer watcher.Close()

	driver, err := network.DialWS(ctx, wsAddr(f), "")
	require.NoError(t, err)
	defer driver.Close()
	require.Eventually(t, func() bool { return f.server.hub.Count() == 2 }, 2*time.Second, 5*time.Millisecond)

	_, err = driver.Call(ctx, protocol.TypeType, protocol.TextPayload{Text: "x"})
	require.NoError(t, err)

	select {
	case ev := <-got:
		assert.Equal(t, "type", ev.Op)
		assert.Empty(t, ev.Error)
	case <-ctx.Done():
		t.Fatal("no event received")
	}
}

func TestServerStopDisconnectsClients(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newFixture(t, "")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := network.DialWS(ctx, wsAddr(f), "")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return f.server.hub.Count() == 1 }, 2*time.Second, 5*time.Millisecond)

	f.close()
	select {
	case <-c.Done():
	case <-ctx.Done():
		t.Fatal("client not disconnected")
	}
	_, err = c.Call(ctx, protocol.TypePosition, nil)
	assert.ErrorIs(t, err, network.ErrClientClosed)
	_ = c.Close()
}
