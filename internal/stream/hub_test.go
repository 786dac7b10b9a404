package stream

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"portalsim/engine/internal/grpc"
	"portalsim/engine/internal/input"
	"portalsim/engine/internal/logging"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recordingSubmitter struct {
	mu       sync.Mutex
	received []input.Controls
}

func (r *recordingSubmitter) Submit(c input.Controls) {
	r.mu.Lock()
	r.received = append(r.received, c)
	r.mu.Unlock()
}

func (r *recordingSubmitter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.received)
}

type harness struct {
	hub    *Hub
	server *httptest.Server
	url    string
}

func newHarness(t *testing.T, codec string, mutate func(*Options)) *harness {
	t.Helper()
	enc, err := NewEncoder(codec)
	require.NoError(t, err)
	opts := Options{Logger: logging.NewTestLogger(), Encoder: enc}
	if mutate != nil {
		mutate(&opts)
	}
	hub, err := NewHub(opts)
	require.NoError(t, err)
	server := httptest.NewServer(hub)
	h := &harness{hub: hub, server: server, url: "ws" + strings.TrimPrefix(server.URL, "http")}
	t.Cleanup(func() {
		hub.Close()
		server.Close()
	})
	return h
}

func (h *harness) dial(t *testing.T, query string) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(h.url+query, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

func (h *harness) waitForClients(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return h.hub.ClientCount() == n }, 2*time.Second, 5*time.Millisecond)
}

func TestHubBroadcastsSnapshots(t *testing.T) {
	h := newHarness(t, grpc.CodecNone, nil)
	conn := h.dial(t, "?client_id=viewer")
	h.waitForClients(t, 1)

	snap := defaultSnapshot()
	snap.Tick = 7
	h.hub.Publish(snap)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	kind, payload, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, kind)

	doc, err := h.hub.opts.Encoder.Decode(payload, false)
	require.NoError(t, err)
	assert.EqualValues(t, 7, doc.GetFields()["tick"].GetNumberValue())

	broadcasts, clients := h.hub.Stats()
	assert.Equal(t, 1, broadcasts)
	assert.Equal(t, 1, clients)
	assert.Contains(t, h.hub.Metrics().Snapshot().BytesPerClient, "viewer")
}

func TestHubSendsCompressedFramesAndPrimesLateJoiners(t *testing.T) {
	h := newHarness(t, grpc.CodecSnappy, nil)
	h.hub.Publish(defaultSnapshot())

	//1.- A client connecting after the publish still receives the latest snapshot.
	conn := h.dial(t, "")
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	kind, payload, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, kind)

	doc, err := h.hub.opts.Encoder.Decode(payload, true)
	require.NoError(t, err)
	assert.Equal(t, "left", doc.GetFields()["active_camera"].GetStringValue())
}

func TestHubAdmitsControlFrames(t *testing.T) {
	submitter := &recordingSubmitter{}
	pipeline := &input.Pipeline{
		Gate:      input.NewGate(input.GateConfig{}, logging.NewTestLogger()),
		Validator: input.NewValidator(input.DefaultControlConstraints, logging.NewTestLogger()),
	}
	h := newHarness(t, grpc.CodecNone, func(o *Options) {
		o.Submitter = submitter
		o.Pipeline = pipeline
	})
	conn := h.dial(t, "?client_id=pilot")
	h.waitForClients(t, 1)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"seq":1,"controls":{"forward":1,"sprint":true}}`)))
	//1.- Replayed sequence numbers are dropped by the gate.
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"seq":1,"controls":{"forward":-1}}`)))
	//2.- Out of range values are rejected by the validator.
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"seq":2,"controls":{"forward":4}}`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"seq":3,"controls":{"right":-1}}`)))

	require.Eventually(t, func() bool {
		drops := h.hub.Metrics().Snapshot().Drops
		return submitter.count() == 2 && drops[DropMalformed] == 1
	}, 2*time.Second, 5*time.Millisecond)

	submitter.mu.Lock()
	defer submitter.mu.Unlock()
	assert.Equal(t, input.Controls{Forward: 1, Sprint: true}, submitter.received[0])
	assert.Equal(t, input.Controls{Right: -1}, submitter.received[1])
	drops := h.hub.Metrics().Snapshot().Drops
	assert.EqualValues(t, 1, drops[input.DropReasonSequence.String()])
	assert.EqualValues(t, 1, drops["forward_range"])
}

func TestHubRateLimitsControlFrames(t *testing.T) {
	submitter := &recordingSubmitter{}
	h := newHarness(t, grpc.CodecNone, func(o *Options) {
		o.Submitter = submitter
		o.Limiter = NewClientLimiter(0.001, 1, nil)
	})
	conn := h.dial(t, "")
	h.waitForClients(t, 1)

	for seq := 1; seq <= 3; seq++ {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"controls":{"up":1}}`)))
	}
	require.Eventually(t, func() bool {
		return h.hub.Metrics().Snapshot().Drops[DropRateLimited] == 2
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, submitter.count())
}

func TestHubRefusesClientsOverCapacity(t *testing.T) {
	h := newHarness(t, grpc.CodecNone, func(o *Options) { o.MaxClients = 1 })
	h.dial(t, "")
	h.waitForClients(t, 1)

	_, resp, err := websocket.DefaultDialer.Dial(h.url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.EqualValues(t, 1, h.hub.Metrics().Snapshot().Drops[DropCapacity])
}

type headerAuthenticator struct{}

func (headerAuthenticator) Authenticate(r *http.Request) (string, error) {
	if id := r.Header.Get("X-Test-Subject"); id != "" {
		return id, nil
	}
	return "", errors.New("no subject")
}

func TestHubAuthenticatesClients(t *testing.T) {
	h := newHarness(t, grpc.CodecNone, func(o *Options) { o.Authenticator = headerAuthenticator{} })

	//1.- Requests without credentials never upgrade.
	_, resp, err := websocket.DefaultDialer.Dial(h.url+"?client_id=spoof", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.EqualValues(t, 1, h.hub.Metrics().Snapshot().Drops[DropUnauthorized])

	//2.- The token subject wins over the requested client id.
	conn, resp, err := websocket.DefaultDialer.Dial(h.url+"?client_id=spoof", http.Header{"X-Test-Subject": {"display-2"}})
	require.NoError(t, err)
	resp.Body.Close()
	defer conn.Close()
	h.waitForClients(t, 1)

	h.hub.Publish(defaultSnapshot())
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, h.hub.Metrics().Snapshot().BytesPerClient, "display-2")
}

func TestHubDropsSlowClients(t *testing.T) {
	enc, err := NewEncoder(grpc.CodecNone)
	require.NoError(t, err)
	hub, err := NewHub(Options{Logger: logging.NewTestLogger(), Encoder: enc})
	require.NoError(t, err)

	//1.- A client with no queue space can never keep up.
	stuck := &client{id: "stuck", send: make(chan outbound), logger: logging.NewTestLogger()}
	hub.clients[stuck.id] = stuck

	hub.Publish(defaultSnapshot())

	assert.Zero(t, hub.ClientCount())
	assert.EqualValues(t, 1, hub.Metrics().Snapshot().Drops[DropSlowClient])
	_, open := <-stuck.send
	assert.False(t, open)
}

func TestHubCloseDisconnectsClients(t *testing.T) {
	h := newHarness(t, grpc.CodecNone, nil)
	conn := h.dial(t, "")
	h.waitForClients(t, 1)

	h.hub.Close()
	assert.Zero(t, h.hub.ClientCount())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "unexpected error %v", err)
}
