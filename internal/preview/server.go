// Package preview streams the frames shown on the panel to websocket clients,
// so a display can be checked without looking at the hardware.
package preview

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/fkcurrie/hub75-bcm/pkg/matrix"
)

const writeTimeout = 200 * time.Millisecond

// Frame is the message sent to websocket clients. RGB holds rows×cols
// pixels, three bytes each, row-major.
type Frame struct {
	T       int64  `json:"t"`
	FrameID uint64 `json:"frame_id"`
	Rows    int    `json:"rows"`
	Cols    int    `json:"cols"`
	Cursor  int    `json:"cursor"`
	RGB     []byte `json:"rgb"`
}

// Server keeps the latest published frame and broadcasts it to every
// connected client. Publish never waits on the network.
type Server struct {
	frameMu sync.Mutex
	frame   Frame

	clientsMu sync.Mutex
	clients   map[*websocket.Conn]bool

	notify    chan struct{}
	startTime time.Time
	upgrader  websocket.Upgrader
	logger    zerolog.Logger
}

// Option configures a Server
type Option func(*Server)

// WithLogger replaces the server logger
func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// NewServer creates a server for a rows×cols panel
func NewServer(rows, cols int, opts ...Option) *Server {
	s := &Server{
		frame: Frame{
			Rows: rows,
			Cols: cols,
			RGB:  make([]byte, rows*cols*3),
		},
		clients:   map[*websocket.Conn]bool{},
		notify:    make(chan struct{}, 1),
		startTime: time.Now(),
		upgrader:  websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		logger:    log.Logger.With().Str("component", "preview").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Publish copies the frame buffer and wakes the broadcaster.
func (s *Server) Publish(fb *matrix.FrameBuffer) {
	s.frameMu.Lock()
	if fb.Rows() == s.frame.Rows && fb.Cols() == s.frame.Cols {
		i := 0
		for r := 0; r < fb.Rows(); r++ {
			for c := 0; c < fb.Cols(); c++ {
				p := fb.At(r, c)
				s.frame.RGB[i], s.frame.RGB[i+1], s.frame.RGB[i+2] = p.R, p.G, p.B
				i += 3
			}
		}
		s.frame.Cursor = fb.Cursor()
		s.frame.FrameID++
	}
	s.frameMu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Latest returns a copy of the last published frame
func (s *Server) Latest() Frame {
	s.frameMu.Lock()
	defer s.frameMu.Unlock()
	f := s.frame
	f.RGB = append([]byte(nil), s.frame.RGB...)
	return f
}

func (s *Server) encodeLatest() ([]byte, error) {
	f := s.Latest()
	f.T = time.Now().UnixNano()
	return json.Marshal(f)
}

// Handler serves /frames (websocket) and /health
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/frames", s.HandleFramesWS)
	mux.HandleFunc("/health", s.HandleHealth)
	return mux
}

// HandleFramesWS upgrades the request and sends the current frame followed
// by every later one.
func (s *Server) HandleFramesWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	b, err := s.encodeLatest()
	if err != nil {
		conn.Close()
		return
	}

	s.clientsMu.Lock()
	s.clients[conn] = true
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	err = conn.WriteMessage(websocket.TextMessage, b)
	s.clientsMu.Unlock()
	if err != nil {
		s.drop(conn)
		return
	}
	s.logger.Debug().Str("remote", r.RemoteAddr).Msg("Preview client connected")

	go func() {
		defer s.drop(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *Server) drop(conn *websocket.Conn) {
	s.clientsMu.Lock()
	delete(s.clients, conn)
	s.clientsMu.Unlock()
	conn.Close()
}

// HandleHealth reports the frame counter and client count as JSON
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	f := s.Latest()
	s.clientsMu.Lock()
	clients := len(s.clients)
	s.clientsMu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"frame_id": f.FrameID,
		"uptime_s": time.Since(s.startTime).Seconds(),
		"rows":     f.Rows,
		"cols":     f.Cols,
		"clients":  clients,
	})
}

// Broadcast sends every published frame to the connected clients until ctx
// is done. Frames published faster than they can be sent are coalesced.
func (s *Server) Broadcast(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.notify:
		}

		b, err := s.encodeLatest()
		if err != nil {
			s.logger.Error().Err(err).Msg("encode frame")
			continue
		}

		s.clientsMu.Lock()
		for c := range s.clients {
			c.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.WriteMessage(websocket.TextMessage, b); err != nil {
				s.logger.Debug().Err(err).Msg("write frame")
			}
		}
		s.clientsMu.Unlock()
	}
}

// ListenAndServe serves the preview on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves the preview on ln until ctx is done, then shuts down.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.Broadcast(ctx)
		return nil
	})
	g.Go(func() error {
		s.logger.Info().Str("addr", ln.Addr().String()).Msg("Preview server listening")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		s.closeClients()
		return err
	})
	return g.Wait()
}

func (s *Server) closeClients() {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	for c := range s.clients {
		c.Close()
		delete(s.clients, c)
	}
}
