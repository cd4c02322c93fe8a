package stream

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"gyrodesk/internal/util"
)

const (
	wsWriteWait  = 2 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 50 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 64 * 1024,
	// Viewers are phones on the local network, not browsers on our origin
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketTransport listens on the target port and sends each frame as one
// binary message to the single attached viewer. A newly connecting viewer
// replaces the previous one.
type WebSocketTransport struct {
	pingPeriod time.Duration
	logger     *slog.Logger

	ln  net.Listener
	srv *http.Server

	mu     sync.Mutex
	peer   *wsPeer
	closed bool
}

type wsPeer struct {
	conn      *websocket.Conn
	addr      string
	done      chan struct{}
	closeOnce sync.Once
}

// NewWebSocketTransport creates an unopened transport
func NewWebSocketTransport() *WebSocketTransport {
	return &WebSocketTransport{
		pingPeriod: wsPingPeriod,
		logger:     util.GetLogger().With("component", "stream", "transport", "websocket"),
	}
}

func (w *WebSocketTransport) Name() string { return "websocket" }

// Open listens on target.Host:target.Port. An empty host binds every interface.
func (w *WebSocketTransport) Open(target Target) error {
	ln, err := net.Listen("tcp", net.JoinHostPort(target.Host, strconv.Itoa(target.Port)))
	if err != nil {
		return errors.Wrap(err, "listen for websocket viewer")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", w.handleViewer)
	w.ln = ln
	w.srv = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := w.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			w.logger.Warn("Viewer server stopped", "error", err)
		}
	}()
	w.logger.Info("Waiting for viewer", "addr", ln.Addr().String())
	return nil
}

// Addr returns the bound listener address, or nil before Open
func (w *WebSocketTransport) Addr() net.Addr {
	if w.ln == nil {
		return nil
	}
	return w.ln.Addr()
}

func (w *WebSocketTransport) handleViewer(rw http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(rw, r, nil)
	if err != nil {
		w.logger.Warn("Failed to upgrade viewer connection", "error", err)
		return
	}

	p := &wsPeer{conn: conn, addr: r.RemoteAddr, done: make(chan struct{})}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		p.close()
		return
	}
	old := w.peer
	w.peer = p
	w.mu.Unlock()

	if old != nil {
		w.logger.Info("Viewer replaced", "old", old.addr, "new", p.addr)
		old.shutdown()
	} else {
		w.logger.Info("Viewer connected", "addr", p.addr)
	}

	go w.pingLoop(p)
	go w.readPump(p)
}

// readPump drains the viewer's messages so control frames (pong, close) are
// processed, and detaches the viewer when the connection ends.
func (w *WebSocketTransport) readPump(p *wsPeer) {
	defer w.detach(p)

	p.conn.SetReadLimit(4096)
	p.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	p.conn.SetPongHandler(func(string) error { p.conn.SetReadDeadline(time.Now().Add(wsPongWait)); return nil })

	for {
		if _, _, err := p.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				w.logger.Debug("Viewer read error", "error", err)
			}
			return
		}
	}
}

func (w *WebSocketTransport) pingLoop(p *wsPeer) {
	ticker := time.NewTicker(w.pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := p.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		case <-p.done:
			return
		}
	}
}

func (w *WebSocketTransport) detach(p *wsPeer) {
	w.mu.Lock()
	if w.peer == p {
		w.peer = nil
		w.logger.Info("Viewer disconnected", "addr", p.addr)
	}
	w.mu.Unlock()
	p.close()
}

func (w *WebSocketTransport) Ready() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.peer != nil
}

// Send writes payload as one binary message. Without a viewer it is a no-op.
func (w *WebSocketTransport) Send(frameSeq uint32, payload []byte) error {
	w.mu.Lock()
	p := w.peer
	w.mu.Unlock()
	if p == nil {
		return nil
	}

	p.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := p.conn.WriteMessage(websocket.BinaryMessage, payload); err != nil {
		w.detach(p)
		return errors.Wrapf(err, "frame %d to %s", frameSeq, p.addr)
	}
	return nil
}

func (w *WebSocketTransport) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	p := w.peer
	w.peer = nil
	w.mu.Unlock()

	if p != nil {
		p.shutdown()
	}
	if w.srv == nil {
		return nil
	}
	return w.srv.Close()
}

// shutdown sends a close frame before dropping the connection
func (p *wsPeer) shutdown() {
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "replaced")
	p.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteWait))
	p.close()
}

func (p *wsPeer) close() {
	p.closeOnce.Do(func() {
		close(p.done)
		p.conn.Close()
	})
}
