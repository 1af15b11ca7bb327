package main

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"net"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"deskpilot/internal/api"
	"deskpilot/internal/autostart"
	"deskpilot/internal/config"
	"deskpilot/internal/desktop"
	"deskpilot/internal/input"
	"deskpilot/internal/input/inputtest"
	"deskpilot/internal/keycode"
	"deskpilot/internal/network"
)

type blankGrabber struct{}

func (blankGrabber) Grab(rect image.Rectangle) (image.Image, error) {
	if rect == (image.Rectangle{}) {
		rect = image.Rect(0, 0, 16, 9)
	}
	return image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy())), nil
}

func testApp(b *inputtest.Backend) *app {
	a := newApp()
	a.newBackend = func() (input.Backend, error) { return b, nil }
	a.grabber = blankGrabber{}
	return a
}

func execute(t *testing.T, a *app, args ...string) (string, error) {
	t.Helper()
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	root := newRootCmd(a)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--config", cfgPath}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, testApp(inputtest.New(10, 10)), "--version")
	require.NoError(t, err)
	assert.Equal(t, "deskpilot "+version+"\n", out)

	out, err = execute(t, testApp(inputtest.New(10, 10)), "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "deskpilot "+version+" ("))
}

func TestPosAndMove(t *testing.T) {
	b := inputtest.New(1920, 1080)

	_, err := execute(t, testApp(b), "move", "100", "200")
	require.NoError(t, err)
	out, err := execute(t, testApp(b), "pos")
	require.NoError(t, err)
	assert.Equal(t, "100 200\n", out)

	out, err = execute(t, testApp(b), "screen-size")
	require.NoError(t, err)
	assert.Equal(t, "1920x1080\n", out)

	_, err = execute(t, testApp(b), "move", "x", "1")
	assert.ErrorContains(t, err, "invalid x")
}

func TestSmoothMoveCommand(t *testing.T) {
	b := inputtest.New(1920, 1080)
	b.Place(input.Point{X: 900, Y: 500})

	out, err := execute(t, testApp(b), "move", "--smooth", "960", "540")
	require.NoError(t, err)
	assert.Contains(t, out, "steps")

	_, err = execute(t, testApp(b), "move", "--smooth", "4000", "540")
	assert.Error(t, err)
}

func TestClickToggleTapType(t *testing.T) {
	b := inputtest.New(100, 100)
	a := testApp(b)

	_, err := execute(t, a, "click", "--button", "right", "--double")
	require.NoError(t, err)
	_, err = execute(t, a, "toggle", "--up")
	require.NoError(t, err)
	_, err = execute(t, a, "tap", "Ctrl+a")
	require.NoError(t, err)
	_, err = execute(t, a, "type", "a", "b")
	require.NoError(t, err)

	ev := b.Events()
	require.Len(t, ev, 4+1+4+6)
	assert.Equal(t, input.Right, ev[0].Button)
	assert.False(t, ev[4].Down)
	assert.Equal(t, inputtest.CodeControl, ev[5].Code)
	// "a b": a, space, b
	assert.Equal(t, keycode.Code(40), ev[11].Code)

	_, err = execute(t, a, "click", "--button", "thumb")
	assert.ErrorIs(t, err, input.ErrInvalidButton)
}

func TestKeyCodeCommand(t *testing.T) {
	a := testApp(inputtest.New(10, 10))
	out, err := execute(t, a, "keycode", "B")
	require.NoError(t, err)
	assert.Equal(t, "code=1 shift=true\n", out)

	_, err = execute(t, a, "keycode", "€")
	assert.ErrorIs(t, err, input.ErrUnsupportedKey)

	_, err = execute(t, a, "keycode", "ab")
	assert.Error(t, err)
}

func TestCaptureCommand(t *testing.T) {
	file := filepath.Join(t.TempDir(), "shot.png")
	_, err := execute(t, testApp(inputtest.New(10, 10)), "capture", "--out", file, "--rect", "1,1,5,4")
	require.NoError(t, err)

	f, err := os.Open(file)
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 5, 4), img.Bounds())

	_, err = execute(t, testApp(inputtest.New(10, 10)), "capture", "--rect", "1,1,0,4")
	assert.Error(t, err)
}

func TestNudgeAndCheck(t *testing.T) {
	b := inputtest.New(50, 50)
	b.Place(input.Point{X: 5, Y: 5})
	a := testApp(b)

	_, err := execute(t, a, "nudge")
	require.NoError(t, err)
	assert.Len(t, b.Events(), 2)

	out, err := execute(t, a, "check")
	require.NoError(t, err)
	assert.Contains(t, out, "screen=50x50 pointer=5,5")
}

func TestUnsupportedPlatform(t *testing.T) {
	a := newApp()
	a.newBackend = func() (input.Backend, error) { return nil, input.ErrUnsupportedPlatform }
	_, err := execute(t, a, "pos")
	assert.ErrorIs(t, err, input.ErrUnsupportedPlatform)
}

func TestConfigInit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.yaml")
	a := testApp(inputtest.New(10, 10))

	root := newRootCmd(a)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"--config", path, "config", "init"})
	require.NoError(t, root.ExecuteContext(context.Background()))
	assert.Equal(t, path+"\n", out.String())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var cfg config.Config
	require.NoError(t, yaml.Unmarshal(data, &cfg))
	assert.Equal(t, config.Default().API.Listen, cfg.API.Listen)

	root = newRootCmd(testApp(inputtest.New(10, 10)))
	root.SetOut(&out)
	root.SetArgs([]string{"--config", path, "config", "init"})
	assert.ErrorContains(t, root.ExecuteContext(context.Background()), "already exists")
}

func TestServeRequiresAServer(t *testing.T) {
	_, err := execute(t, testApp(inputtest.New(10, 10)), "serve", "--no-api", "--no-relay")
	assert.ErrorContains(t, err, "both disabled")
}

func TestServeStopsOnCancel(t *testing.T) {
	a := testApp(inputtest.New(10, 10))
	root := newRootCmd(a)
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"--config", filepath.Join(t.TempDir(), "c.yaml"),
		"serve", "--listen", "127.0.0.1:0", "--relay", "127.0.0.1:0"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- root.ExecuteContext(ctx) }()
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop")
	}
}

func freeUDPAddr(t *testing.T) string {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := pc.LocalAddr().String()
	require.NoError(t, pc.Close())
	return addr
}

func TestServeRelayFlagEnablesRelay(t *testing.T) {
	b := inputtest.New(800, 600)
	relayAddr := freeUDPAddr(t)

	root := newRootCmd(testApp(b))
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"--config", filepath.Join(t.TempDir(), "c.yaml"),
		"serve", "--no-api", "--relay", relayAddr, "--token", "s3cret"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- root.ExecuteContext(ctx) }()
	defer func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("serve did not stop")
		}
	}()

	client := testApp(inputtest.New(10, 10))
	require.Eventually(t, func() bool {
		_, err := execute(t, client, "relay", "--addr", relayAddr, "--token", "s3cret", "move", "12", "34")
		return err == nil
	}, 10*time.Second, 50*time.Millisecond)
	require.Eventually(t, func() bool {
		p, _ := b.Position()
		return p == input.Point{X: 12, Y: 34}
	}, 2*time.Second, 5*time.Millisecond)

	_, err := execute(t, client, "relay", "--addr", relayAddr, "--token", "wrong", "move", "1", "1")
	assert.ErrorIs(t, err, network.ErrNoAck)
}

func TestRemoteCommands(t *testing.T) {
	target := inputtest.New(800, 600)
	d := desktop.New(target)
	srv := api.NewServer(d, config.APIConfig{Token: "tok"})
	hs := httptest.NewServer(srv.Handler())
	defer hs.Close()
	defer srv.Close()
	addr := strings.TrimPrefix(hs.URL, "http://")

	a := testApp(inputtest.New(10, 10))
	_, err := execute(t, a, "remote", "--addr", addr, "--token", "tok", "move", "30", "40")
	require.NoError(t, err)

	out, err := execute(t, a, "remote", "--addr", addr, "--token", "tok", "pos")
	require.NoError(t, err)
	assert.Equal(t, "30 40\n", out)

	out, err = execute(t, a, "remote", "--addr", addr, "--token", "tok", "click")
	require.NoError(t, err)
	assert.Equal(t, "ok\n", out)

	_, err = execute(t, a, "remote", "--addr", addr, "--token", "tok", "tap", "Tab+x")
	var remote *network.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, "bad_request", remote.Code)

	_, err = execute(t, a, "remote", "--addr", addr, "--token", "bad", "pos")
	assert.Error(t, err)
}

func TestRelayCommands(t *testing.T) {
	target := inputtest.New(800, 600)
	d := desktop.New(target)
	r := network.NewUDPReceiver("127.0.0.1:0", d, network.ReceiverOptions{})
	laddr, err := r.Listen()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = r.Serve(ctx) }()

	a := testApp(inputtest.New(10, 10))
	_, err = execute(t, a, "relay", "--addr", laddr.String(), "move", "7", "8")
	require.NoError(t, err)
	_, err = execute(t, a, "relay", "--addr", laddr.String(), "key", "0x1f")
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(target.Events()) == 3 }, 2*time.Second, 5*time.Millisecond)
	ev := target.Events()
	assert.Equal(t, input.Point{X: 7, Y: 8}, ev[0].Point)
	assert.Equal(t, inputtest.Event{Kind: "key", Code: 0x1f, Down: true}, ev[1])

	_, err = execute(t, a, "relay", "--addr", laddr.String(), "key", "1", "--down", "--up")
	assert.Error(t, err)
}

func TestParseRect(t *testing.T) {
	r, err := parseRect("1, 2,3,4")
	require.NoError(t, err)
	assert.Equal(t, image.Rect(1, 2, 4, 6), r)

	for _, bad := range []string{"", "1,2,3", "a,b,c,d", "0,0,-1,5"} {
		_, err := parseRect(bad)
		assert.Error(t, err, bad)
	}
}

func TestAutostart(t *testing.T) {
	dir := t.TempDir()
	a := testApp(inputtest.New(10, 10))
	var got autostart.Entry
	a.newInstaller = func(e autostart.Entry) (autostart.Installer, error) {
		got = e
		return autostart.XDGAutostart(dir, e), nil
	}

	out, err := execute(t, a, "autostart", "status")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "disabled ("))

	out, err = execute(t, a, "autostart", "enable")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "autostart", "dev.deskpilot.agent.desktop")+"\n", out)
	assert.Equal(t, "serve", got.Args[0])
	assert.Contains(t, got.Args, "--config")

	out, err = execute(t, a, "autostart", "status")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "enabled ("))

	_, err = execute(t, a, "autostart", "disable")
	require.NoError(t, err)
	out, err = execute(t, a, "autostart", "status")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "disabled ("))
}
