package preview

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fkcurrie/hub75-bcm/pkg/matrix"
)

func newServer(rows, cols int) *Server {
	return NewServer(rows, cols, WithLogger(zerolog.Nop()))
}

func readFrame(t *testing.T, conn *websocket.Conn) Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var f Frame
	require.NoError(t, json.Unmarshal(data, &f))
	return f
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(url, "http")+"/frames", nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestPublishCopiesFrame(t *testing.T) {
	s := newServer(2, 3)
	fb := matrix.NewFrameBuffer(2, 3)
	require.NoError(t, fb.SetPixel(1, 2, matrix.Pixel{R: 1, G: 2, B: 3}))

	s.Publish(fb)
	fb.Clear()

	f := s.Latest()
	assert.Equal(t, uint64(1), f.FrameID)
	assert.Equal(t, 2, f.Rows)
	assert.Equal(t, 3, f.Cols)
	assert.Equal(t, []byte{1, 2, 3}, f.RGB[15:18])
}

func TestPublishIgnoresWrongSize(t *testing.T) {
	s := newServer(16, 32)
	s.Publish(matrix.NewFrameBuffer(8, 8))
	assert.Zero(t, s.Latest().FrameID)
}

func TestPublishNeverBlocks(t *testing.T) {
	s := newServer(1, 1)
	fb := matrix.NewFrameBuffer(1, 1)
	for i := 0; i < 10; i++ {
		s.Publish(fb)
	}
	assert.Equal(t, uint64(10), s.Latest().FrameID)
}

func TestFramesWebsocket(t *testing.T) {
	s := newServer(2, 2)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Broadcast(ctx)

	conn := dial(t, srv.URL)
	first := readFrame(t, conn)
	assert.Equal(t, uint64(0), first.FrameID)
	assert.Len(t, first.RGB, 12)

	fb := matrix.NewFrameBuffer(2, 2)
	fb.Fill(matrix.Pixel{R: 9})
	s.Publish(fb)

	next := readFrame(t, conn)
	assert.Equal(t, uint64(1), next.FrameID)
	assert.Equal(t, []byte{9, 0, 0, 9, 0, 0, 9, 0, 0, 9, 0, 0}, next.RGB)
	assert.Positive(t, next.T)
}

func TestHealth(t *testing.T) {
	s := newServer(16, 32)
	s.Publish(matrix.NewFrameBuffer(16, 32))

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.EqualValues(t, 1, body["frame_id"])
	assert.EqualValues(t, 16, body["rows"])
	assert.EqualValues(t, 32, body["cols"])
	assert.EqualValues(t, 0, body["clients"])
}

func TestServeStopsWithContext(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := newServer(16, 32)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
