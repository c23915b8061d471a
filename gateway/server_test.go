package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/gqlbridge/config"
	"github.com/c360/gqlbridge/metric"
	"github.com/c360/gqlbridge/protocol"
)

func TestIsWebSocketUpgrade(t *testing.T) {
	tests := []struct {
		name       string
		upgrade    string
		connection string
		want       bool
	}{
		{"standard upgrade", "websocket", "Upgrade", true},
		{"case insensitive", "WebSocket", "keep-alive, Upgrade", true},
		{"plain post", "", "", false},
		{"connection without upgrade", "websocket", "keep-alive", false},
		{"upgrade to something else", "h2c", "Upgrade", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/v1/graphql", nil)
			if tt.upgrade != "" {
				r.Header.Set("Upgrade", tt.upgrade)
			}
			if tt.connection != "" {
				r.Header.Set("Connection", tt.connection)
			}
			assert.Equal(t, tt.want, isWebSocketUpgrade(r))
		})
	}
}

func TestNewServerValidatesConfig(t *testing.T) {
	cfg := config.DefaultConfig() // missing upstream URLs and secret
	_, err := NewServer(cfg, passthroughResolver(cfg), nil, nil)
	require.Error(t, err)
}

func TestNewServerRequiresResolver(t *testing.T) {
	cfg := passthroughConfig("http://upstream.test/v1/graphql")
	_, err := NewServer(cfg, nil, nil, nil)
	require.Error(t, err)
}

func TestHealthEndpoint(t *testing.T) {
	cfg := passthroughConfig("http://upstream.test/v1/graphql")
	s, err := NewServer(cfg, passthroughResolver(cfg), nil, nil)
	require.NoError(t, err)
	require.NoError(t, s.Setup())

	rec := httptest.NewRecorder()
	s.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	s.mu.Lock()
	s.running = true
	s.mu.Unlock()

	rec = httptest.NewRecorder()
	s.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())
}

func TestMetricsEndpointMounted(t *testing.T) {
	cfg := passthroughConfig("http://upstream.test/v1/graphql")
	s, err := NewServer(cfg, passthroughResolver(cfg), nil, metric.NewRegistry())
	require.NoError(t, err)
	require.NoError(t, s.Setup())

	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "gqlbridge_")
}

func TestCORSPreflight(t *testing.T) {
	cfg := passthroughConfig("http://upstream.test/v1/graphql")
	cfg.EnableCORS = true
	cfg.CORSOrigins = []string{"https://app.example.com"}
	s, err := NewServer(cfg, passthroughResolver(cfg), nil, nil)
	require.NoError(t, err)
	require.NoError(t, s.Setup())

	req := httptest.NewRequest(http.MethodOptions, "/v1/graphql", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	// An origin outside the allow-list gets no CORS headers.
	req = httptest.NewRequest(http.MethodOptions, "/v1/graphql", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

// fakeUpstreamWS is a minimal upstream GraphQL realtime endpoint: it acks the
// handshake and answers each operation with one result frame carrying the
// same id.
func fakeUpstreamWS(t *testing.T, dialect protocol.Dialect) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{Subprotocols: []string{string(dialect)}}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		resultType := protocol.TypeData
		if dialect == protocol.DialectModern {
			resultType = protocol.TypeNext
		}

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var f protocol.Frame
			if err := json.Unmarshal(data, &f); err != nil {
				continue
			}

			switch f.Type {
			case protocol.TypeConnectionInit:
				ack, _ := protocol.Frame{Type: protocol.TypeConnectionAck}.Encode()
				_ = conn.WriteMessage(websocket.TextMessage, ack)
			case protocol.TypeStart, protocol.TypeSubscribe:
				result, _ := protocol.Frame{
					Type:    resultType,
					ID:      f.ID,
					Payload: json.RawMessage(`{"data":{"tick":1}}`),
				}.Encode()
				_ = conn.WriteMessage(websocket.TextMessage, result)
			}
		}
	}))
}

// End to end over real sockets: a legacy client subscribes through the bridge
// to a modern upstream and receives its result retyped.
func TestWebSocketEndToEnd(t *testing.T) {
	upstream := fakeUpstreamWS(t, protocol.DialectModern)
	defer upstream.Close()

	cfg := passthroughConfig("http://upstream.test/v1/graphql")
	cfg.UpstreamWSURL = "ws" + strings.TrimPrefix(upstream.URL, "http")
	cfg.UpstreamDialect = protocol.DialectModern

	s, err := NewServer(cfg, passthroughResolver(cfg), nil, nil)
	require.NoError(t, err)
	require.NoError(t, s.Setup())

	front := httptest.NewServer(s.httpServer.Handler)
	defer front.Close()

	dialer := websocket.Dialer{Subprotocols: []string{string(protocol.DialectLegacy)}}
	client, resp, err := dialer.Dial("ws"+strings.TrimPrefix(front.URL, "http")+cfg.GraphQLPath, nil)
	require.NoError(t, err)
	defer client.Close()
	assert.Equal(t, string(protocol.DialectLegacy), resp.Header.Get("Sec-WebSocket-Protocol"))

	writeFrame := func(f protocol.Frame) {
		data, err := f.Encode()
		require.NoError(t, err)
		require.NoError(t, client.WriteMessage(websocket.TextMessage, data))
	}
	readFrame := func() protocol.Frame {
		require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, data, err := client.ReadMessage()
		require.NoError(t, err)
		f, err := protocol.Parse(data)
		require.NoError(t, err)
		return f
	}

	writeFrame(protocol.Frame{Type: protocol.TypeConnectionInit})
	// Subscribing immediately exercises the pre-ack buffer path.
	writeFrame(protocol.Frame{Type: protocol.TypeStart, ID: "op-1",
		Payload: json.RawMessage(`{"query":"subscription { tick }"}`)})

	ack := readFrame()
	assert.Equal(t, protocol.TypeConnectionAck, ack.Type)

	result := readFrame()
	assert.Equal(t, protocol.TypeData, result.Type)
	assert.Equal(t, "op-1", result.ID)
	assert.JSONEq(t, `{"data":{"tick":1}}`, string(result.Payload))
}

// An operation before connection_init closes the socket with the
// unauthorized application code.
func TestWebSocketOperationBeforeInitRejected(t *testing.T) {
	upstream := fakeUpstreamWS(t, protocol.DialectLegacy)
	defer upstream.Close()

	cfg := passthroughConfig("http://upstream.test/v1/graphql")
	cfg.UpstreamWSURL = "ws" + strings.TrimPrefix(upstream.URL, "http")

	s, err := NewServer(cfg, passthroughResolver(cfg), nil, nil)
	require.NoError(t, err)
	require.NoError(t, s.Setup())

	front := httptest.NewServer(s.httpServer.Handler)
	defer front.Close()

	dialer := websocket.Dialer{Subprotocols: []string{string(protocol.DialectLegacy)}}
	client, _, err := dialer.Dial("ws"+strings.TrimPrefix(front.URL, "http")+cfg.GraphQLPath, nil)
	require.NoError(t, err)
	defer client.Close()

	data, err := protocol.Frame{Type: protocol.TypeStart, ID: "op-1"}.Encode()
	require.NoError(t, err)
	require.NoError(t, client.WriteMessage(websocket.TextMessage, data))

	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = client.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, protocol.CloseUnauthorized, closeErr.Code)
}
