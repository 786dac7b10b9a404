package stream

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"portalsim/engine/internal/input"
	"portalsim/engine/internal/logging"
	"portalsim/engine/internal/simulation"
)

const (
	defaultSendBuffer = 64
	writeWait         = 5 * time.Second
)

// Submitter accepts admitted controls; *simulation.Runner implements it.
type Submitter interface {
	Submit(input.Controls)
}

// Authenticator resolves the client identity of an upgrade request.
type Authenticator interface {
	Authenticate(r *http.Request) (string, error)
}

// Options configures a Hub. Zero values disable the matching limit.
type Options struct {
	Logger          *logging.Logger
	Encoder         *Encoder
	Pipeline        *input.Pipeline
	Submitter       Submitter
	Limiter         *ClientLimiter
	Metrics         *Metrics
	Authenticator   Authenticator
	MaxClients      int
	PingInterval    time.Duration
	MaxPayloadBytes int64
	SendBuffer      int
}

type outbound struct {
	payload []byte
	binary  bool
}

type client struct {
	id     string
	conn   *websocket.Conn
	send   chan outbound
	logger *logging.Logger
}

// Hub fans snapshots out to WebSocket renderers and feeds their control frames into
// the simulation.
type Hub struct {
	opts     Options
	upgrader websocket.Upgrader
	logger   *logging.Logger

	mu      sync.Mutex
	clients map[string]*client
	last    *outbound
	nextID  uint64
	closed  bool

	wg sync.WaitGroup
}

// NewHub validates opts and returns an idle hub.
func NewHub(opts Options) (*Hub, error) {
	if opts.Encoder == nil {
		return nil, fmt.Errorf("stream hub requires an encoder")
	}
	if opts.Logger == nil {
		opts.Logger = logging.L()
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics()
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = defaultSendBuffer
	}
	return &Hub{
		opts:     opts,
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		logger:   opts.Logger,
		clients:  make(map[string]*client),
	}, nil
}

// SetSubmitter routes admitted controls to sub. It breaks the construction cycle
// between the hub and the runner that publishes into it.
func (h *Hub) SetSubmitter(sub Submitter) {
	h.mu.Lock()
	h.opts.Submitter = sub
	h.mu.Unlock()
}

// Metrics exposes the stream counters.
func (h *Hub) Metrics() *Metrics { return h.opts.Metrics }

// ClientCount reports the number of connected renderers.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Stats returns cumulative broadcasts and the current client count.
func (h *Hub) Stats() (broadcasts, clients int) {
	return int(h.opts.Metrics.Snapshot().Broadcasts), h.ClientCount()
}

// Publish encodes snap once and queues it for every client. Clients whose queue is
// full are disconnected.
func (h *Hub) Publish(snap simulation.Snapshot) {
	encoded, err := h.opts.Encoder.Encode(snap)
	if err != nil {
		h.logger.Error("encode snapshot", logging.Error(err), logging.Int64("tick", int64(snap.Tick)))
		return
	}
	h.opts.Metrics.ObserveBroadcast(encoded.RawBytes, len(encoded.Payload))
	msg := outbound{payload: encoded.Payload, binary: encoded.Binary}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.last = &msg
	for id, c := range h.clients {
		select {
		case c.send <- msg:
			h.opts.Metrics.ObserveDelivery(id, len(msg.payload))
		default:
			//1.- Slow consumers lose their connection rather than stall the tick.
			h.opts.Metrics.ObserveDrop(DropSlowClient)
			c.logger.Warn("dropping slow client")
			h.removeLocked(c)
		}
	}
}

// ServeHTTP upgrades the request and runs the client until either side hangs up.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	//1.- Refuse new clients when closed or full.
	h.mu.Lock()
	full := h.opts.MaxClients > 0 && len(h.clients) >= h.opts.MaxClients
	closed := h.closed
	h.mu.Unlock()
	if closed || full {
		h.opts.Metrics.ObserveDrop(DropCapacity)
		http.Error(w, "stream unavailable", http.StatusServiceUnavailable)
		return
	}

	//2.- Authenticated clients are named after their token subject.
	clientID := r.URL.Query().Get("client_id")
	if h.opts.Authenticator != nil {
		subject, err := h.opts.Authenticator.Authenticate(r)
		if err != nil {
			h.opts.Metrics.ObserveDrop(DropUnauthorized)
			h.logger.Warn("stream authentication failed", logging.Error(err), logging.String("remote", r.RemoteAddr))
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		clientID = subject
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", logging.Error(err))
		return
	}

	//3.- Register and prime with the latest snapshot.
	c, ok := h.register(conn, clientID)
	if !ok {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
		conn.Close()
		return
	}
	c.logger.Info("client connected", logging.String("remote", r.RemoteAddr))

	go h.readLoop(c)
	go h.writeLoop(c)
}

func (h *Hub) register(conn *websocket.Conn, requested string) (*client, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	h.nextID++
	id := requested
	if id == "" {
		id = fmt.Sprintf("client-%d", h.nextID)
	} else if _, taken := h.clients[id]; taken {
		id = fmt.Sprintf("%s-%d", id, h.nextID)
	}
	c := &client{
		id:     id,
		conn:   conn,
		send:   make(chan outbound, h.opts.SendBuffer),
		logger: h.logger.With(logging.String("client_id", id)),
	}
	if h.last != nil {
		c.send <- *h.last
	}
	h.clients[id] = c
	h.wg.Add(2)
	return c, true
}

// removeLocked unregisters c and closes its queue once.
func (h *Hub) removeLocked(c *client) {
	if cur, ok := h.clients[c.id]; !ok || cur != c {
		return
	}
	delete(h.clients, c.id)
	close(c.send)
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	h.removeLocked(c)
	h.mu.Unlock()
}

func (h *Hub) readLoop(c *client) {
	defer func() {
		h.remove(c)
		c.conn.Close()
		if h.opts.Pipeline != nil {
			h.opts.Pipeline.Forget(c.id)
		}
		h.opts.Limiter.Forget(c.id)
		h.opts.Metrics.ForgetClient(c.id)
		c.logger.Info("client disconnected")
		h.wg.Done()
	}()

	if h.opts.MaxPayloadBytes > 0 {
		c.conn.SetReadLimit(h.opts.MaxPayloadBytes)
	}
	if h.opts.PingInterval > 0 {
		pongWait := 2 * h.opts.PingInterval
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.conn.SetPongHandler(func(string) error {
			return c.conn.SetReadDeadline(time.Now().Add(pongWait))
		})
	}

	for {
		kind, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug("read failed", logging.Error(err))
			}
			return
		}
		if !h.handleFrame(c, kind, msg) {
			return
		}
	}
}

// handleFrame admits one inbound frame. It returns false when the client must be
// disconnected.
func (h *Hub) handleFrame(c *client, kind int, msg []byte) bool {
	//1.- Only JSON text frames carry controls.
	if kind != websocket.TextMessage {
		h.opts.Metrics.ObserveDrop(DropMalformed)
		return true
	}
	if !h.opts.Limiter.Allow(c.id) {
		h.opts.Metrics.ObserveDrop(DropRateLimited)
		return true
	}
	env, err := input.DecodeEnvelope(msg)
	if err != nil {
		h.opts.Metrics.ObserveDrop(DropMalformed)
		c.logger.Debug("malformed control frame", logging.Error(err))
		return true
	}

	//2.- Sequencing, freshness and value checks.
	if h.opts.Pipeline != nil {
		adm := h.opts.Pipeline.Admit(c.id, env)
		if adm.Disconnect {
			c.logger.Warn("disconnecting client after repeated violations", logging.String("reason", string(adm.Violation)))
			return false
		}
		if !adm.Accepted {
			if adm.Drop != input.DropReasonNone {
				h.opts.Metrics.ObserveDrop(adm.Drop.String())
			} else {
				h.opts.Metrics.ObserveDrop(string(adm.Violation))
			}
			return true
		}
	}

	//3.- Queue for the next tick.
	h.mu.Lock()
	sub := h.opts.Submitter
	h.mu.Unlock()
	if sub != nil {
		sub.Submit(env.Controls)
	}
	return true
}

func (h *Hub) writeLoop(c *client) {
	var pings <-chan time.Time
	if h.opts.PingInterval > 0 {
		ticker := time.NewTicker(h.opts.PingInterval)
		defer ticker.Stop()
		pings = ticker.C
	}
	defer func() {
		c.conn.Close()
		h.wg.Done()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			kind := websocket.TextMessage
			if msg.binary {
				kind = websocket.BinaryMessage
			}
			if err := c.conn.WriteMessage(kind, msg.payload); err != nil {
				return
			}
		case <-pings:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// Close disconnects every client and waits for their goroutines.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	for _, c := range h.clients {
		h.removeLocked(c)
	}
	h.mu.Unlock()
	h.wg.Wait()
}
