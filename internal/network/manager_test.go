package network

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gyrodesk/internal/input"
	"gyrodesk/internal/motion"
	"gyrodesk/internal/protocol"
	"gyrodesk/internal/status"
	"gyrodesk/internal/stream"
	"gyrodesk/internal/util"
)

type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) add(format string, args ...any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, fmt.Sprintf(format, args...))
	return nil
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

type fakePointer struct{ recorder }

func (p *fakePointer) MoveBy(dx, dy int) error    { return p.add("move %d %d", dx, dy) }
func (p *fakePointer) Click(b input.Button) error { return p.add("click %s", b) }

type fakeKeys struct{ recorder }

func (k *fakeKeys) Type(text string) error { return k.add("type %s", text) }
func (k *fakeKeys) Tap(code int) error     { return k.add("tap %d", code) }
func (k *fakeKeys) Press(code int) error   { return k.add("press %d", code) }
func (k *fakeKeys) Release(code int) error { return k.add("release %d", code) }

type fakeEngine struct {
	mu      sync.Mutex
	active  bool
	targets []stream.Target
	opts    []stream.Options
	stops   int
}

func (e *fakeEngine) Start(t stream.Target, o stream.Options) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active {
		return false, nil
	}
	e.active = true
	e.targets = append(e.targets, t)
	e.opts = append(e.opts, o)
	return true, nil
}

func (e *fakeEngine) Stop() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.active {
		return false
	}
	e.active = false
	e.stops++
	return true
}

func (e *fakeEngine) isActive() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

type harness struct {
	addr      string
	mgr       *Manager
	obs       *status.Tracker
	pointer   *fakePointer
	keys      *fakeKeys
	processor *motion.Processor
	datagram  *fakeEngine
	websocket *fakeEngine
	done      chan error
}

func startManager(t *testing.T) *harness {
	t.Helper()

	cfg, err := motion.NewConfig(10, 1, 0.02, 0, 0, true)
	require.NoError(t, err)

	h := &harness{
		obs:       status.NewTracker(),
		pointer:   &fakePointer{},
		keys:      &fakeKeys{},
		datagram:  &fakeEngine{},
		websocket: &fakeEngine{},
		done:      make(chan error, 1),
	}
	h.processor = motion.NewProcessor(cfg, h.pointer)
	h.mgr = NewManager(Config{}, Handlers{
		Motion:    h.processor,
		Keys:      h.keys,
		Datagram:  h.datagram,
		WebSocket: h.websocket,
	}, h.obs)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	h.addr = ln.Addr().String()

	ctx, cancel := context.WithCancel(context.Background())
	go func() { h.done <- h.mgr.Serve(ctx, ln) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-h.done:
		case <-time.After(3 * time.Second):
			t.Error("Serve did not return after cancel")
		}
	})
	return h
}

func (h *harness) dial(t *testing.T) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", h.addr)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	want := status.Connected(conn.LocalAddr().String())
	require.Eventually(t, func() bool { return h.obs.Current() == want }, 2*time.Second, 5*time.Millisecond)
	return conn
}

func send(t *testing.T, conn net.Conn, lines ...string) {
	t.Helper()
	_, err := conn.Write([]byte(strings.Join(lines, "\n") + "\n"))
	require.NoError(t, err)
}

func TestMotionLineMovesPointer(t *testing.T) {
	h := startManager(t)
	conn := h.dial(t)

	send(t, conn, `{"gyroX":0.5,"gyroY":0.3,"leftClick":true}`)

	// invertY flips gyroY
	assert.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{"move 5 -3", "click left"}, h.pointer.list())
	}, 2*time.Second, 5*time.Millisecond)
}

func TestMalformedLineDoesNotEndSession(t *testing.T) {
	h := startManager(t)
	conn := h.dial(t)

	send(t, conn, "not json", `{"keyboard":{"cmd":"tap"}}`, `[1,2]`, `{"gyroX":0.1}`)

	require.Eventually(t, func() bool { return len(h.pointer.list()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "move 1 0", h.pointer.list()[0])
	assert.Empty(t, h.keys.list(), "tap without keyCode is ignored")

	var protoErrors int
	for _, l := range h.obs.Logs() {
		if strings.HasPrefix(l, "protocol error: ") {
			protoErrors++
		}
	}
	assert.Equal(t, 3, protoErrors)
	assert.True(t, status.IsConnected(h.obs.Current()))
}

func TestKeyboardDispatch(t *testing.T) {
	h := startManager(t)
	conn := h.dial(t)

	send(t, conn,
		`{"keyboard":{"cmd":"type","text":"hello"}}`,
		`{"keyboard":{"cmd":"tap","keyCode":10}}`,
		`{"keyboard":{"cmd":"press","keyCode":16}}`,
		`{"keyboard":{"cmd":"release","keyCode":16}}`,
	)

	assert.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{"type hello", "tap 10", "press 16", "release 16"}, h.keys.list())
	}, 2*time.Second, 5*time.Millisecond)
}

func TestStreamStartTargetsPeerAddress(t *testing.T) {
	h := startManager(t)
	conn := h.dial(t)

	send(t, conn,
		`{"stream":{"cmd":"start","port":6100}}`,
		`{"stream":{"cmd":"start","port":7000,"fps":30}}`,
		`{"websocket":{"cmd":"start","port":8080,"fps":5,"maxWidth":640,"quality":2}}`,
	)

	require.Eventually(t, h.websocket.isActive, 2*time.Second, 5*time.Millisecond)

	h.datagram.mu.Lock()
	assert.Equal(t, []stream.Target{{Host: "127.0.0.1", Port: 6100}}, h.datagram.targets)
	assert.Equal(t, stream.Options{FPS: 12, MaxWidth: 1280, Quality: 0.7}, h.datagram.opts[0])
	h.datagram.mu.Unlock()

	h.websocket.mu.Lock()
	assert.Equal(t, []stream.Target{{Host: "", Port: 8080}}, h.websocket.targets)
	assert.Equal(t, stream.Options{FPS: 5, MaxWidth: 640, Quality: 1}, h.websocket.opts[0])
	h.websocket.mu.Unlock()

	send(t, conn, `{"stream":{"cmd":"stop"}}`, `{"stream":{"cmd":"stop"}}`)
	assert.Eventually(t, func() bool { return !h.datagram.isActive() }, 2*time.Second, 5*time.Millisecond)
	assert.True(t, h.websocket.isActive())
}

func TestDisconnectStopsStreams(t *testing.T) {
	h := startManager(t)
	conn := h.dial(t)

	send(t, conn, `{"stream":{"cmd":"start"}}`, `{"websocket":{"cmd":"start"}}`)
	require.Eventually(t, func() bool { return h.datagram.isActive() && h.websocket.isActive() }, 2*time.Second, 5*time.Millisecond)

	conn.Close()

	require.Eventually(t, func() bool { return h.obs.Current() == status.Disconnected }, 2*time.Second, 5*time.Millisecond)
	assert.False(t, h.datagram.isActive())
	assert.False(t, h.websocket.isActive())
	_, ok := h.mgr.Current()
	assert.False(t, ok)
}

func TestNewClientTakesOver(t *testing.T) {
	h := startManager(t)
	a := h.dial(t)
	send(t, a, `{"stream":{"cmd":"start"}}`)
	require.Eventually(t, h.datagram.isActive, 2*time.Second, 5*time.Millisecond)

	b := h.dial(t)

	// A is closed by the server
	a.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err := bufio.NewReader(a).ReadByte()
	assert.Error(t, err)

	assert.Equal(t, []string{
		status.Listening,
		status.Connected(a.LocalAddr().String()),
		status.Disconnected,
		status.Connected(b.LocalAddr().String()),
	}, h.obs.Statuses())
	assert.False(t, h.datagram.isActive(), "streams started by A stop when A is evicted")

	info, ok := h.mgr.Current()
	require.True(t, ok)
	assert.Equal(t, b.LocalAddr().String(), info.Addr)
	assert.NotEmpty(t, info.ID)

	// B is fully functional
	send(t, b, `{"gyroX":0.2}`)
	assert.Eventually(t, func() bool { return len(h.pointer.list()) == 1 }, 2*time.Second, 5*time.Millisecond)
}

func TestCalibrateCommand(t *testing.T) {
	h := startManager(t)
	conn := h.dial(t)

	send(t, conn, `{"gyroX":0.3,"gyroY":0.1}`, `{"calibrate":{}}`)
	require.Eventually(t, func() bool { return h.processor.Config().CalibX == 0.3 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 0.1, h.processor.Config().CalibY)
	assert.Equal(t, motion.State{}, h.processor.State())

	send(t, conn, `{"calibrate":{"y":-0.5}}`)
	require.Eventually(t, func() bool { return h.processor.Config().CalibY == -0.5 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 0.3, h.processor.Config().CalibX)
}

func TestFinalLineWithoutNewline(t *testing.T) {
	h := startManager(t)
	conn := h.dial(t)

	_, err := conn.Write([]byte(`{"keyboard":{"cmd":"tap","keyCode":65}}`))
	require.NoError(t, err)
	conn.(*net.TCPConn).CloseWrite()

	assert.Eventually(t, func() bool { return len(h.keys.list()) == 1 }, 2*time.Second, 5*time.Millisecond)
}

func TestOverlongLineIsDiscarded(t *testing.T) {
	h := startManager(t)
	conn := h.dial(t)

	long := `{"keyboard":{"cmd":"type","text":"` + strings.Repeat("x", maxLineSize+10) + `"}}`
	send(t, conn, long, `{"keyboard":{"cmd":"tap","keyCode":1}}`)

	assert.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{"tap 1"}, h.keys.list())
	}, 2*time.Second, 5*time.Millisecond)
}

func TestNextBackoff(t *testing.T) {
	initial, limit := 100*time.Millisecond, 300*time.Millisecond
	var got []time.Duration
	var b time.Duration
	for i := 0; i < 4; i++ {
		b = nextBackoff(b, initial, limit)
		got = append(got, b)
	}
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 300 * time.Millisecond, 300 * time.Millisecond}, got)
}

func TestListenAndServeReportsBindError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	obs := status.NewTracker()
	m := NewManager(Config{}, Handlers{}, obs)
	err = m.ListenAndServe(context.Background(), ln.Addr().String())
	assert.Error(t, err)
	assert.True(t, strings.HasPrefix(obs.Current(), "error:"))
}

func TestHostOf(t *testing.T) {
	assert.Equal(t, "10.1.2.3", hostOf(&net.TCPAddr{IP: net.IPv4(10, 1, 2, 3), Port: 99}))
	assert.Equal(t, []string{"192.168.1.4"}, ipv4s([]net.Addr{
		&net.IPNet{IP: net.IPv4(127, 0, 0, 1)},
		&net.IPNet{IP: net.ParseIP("fe80::1")},
		&net.IPNet{IP: net.IPv4(192, 168, 1, 4)},
	}))
}

func TestStreamDefaultsFromHandlers(t *testing.T) {
	eng := &fakeEngine{}
	s := &Session{
		handlers: Handlers{Datagram: eng, StreamDefaults: protocol.StreamParams{Port: 7100, FPS: 20, MaxWidth: 640, Quality: 0.4}},
		peerIP:   "192.168.1.9",
		started:  make(map[protocol.Kind]StreamEngine),
		observer: status.Nop{},
	}
	s.logger = util.GetLogger()
	s.dispatch([]byte(`{"stream":{"cmd":"start","fps":8}}`))

	assert.Equal(t, []stream.Target{{Host: "192.168.1.9", Port: 7100}}, eng.targets)
	assert.Equal(t, []stream.Options{{FPS: 8, MaxWidth: 640, Quality: 0.4}}, eng.opts)
	assert.Contains(t, s.started, protocol.KindStream)
}
