// Package ws serves the broker protocol over websocket. Each message is one
// request frame and each reply goes back as one message of the same type.
package ws

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	readLimit    = 4096
	writeTimeout = 3 * time.Second
)

type Handler interface {
	Handle(ctx context.Context, addr string, raw []byte) ([]byte, error)
	Disconnect(ctx context.Context, addr string)
}

// Options is passed to websocket.Accept. Nil means same-origin only.
type Options = websocket.AcceptOptions

// Server is an http.Handler that tracks its upgraded connections so Shutdown
// can close them; http.Server.Shutdown does not see hijacked connections.
type Server struct {
	handler Handler
	opts    *Options
	log     *zap.Logger

	mu      sync.Mutex
	conns   map[*websocket.Conn]struct{}
	closing bool
	wg      sync.WaitGroup
}

func NewServer(h Handler, opts *Options, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		handler: h,
		opts:    opts,
		log:     log.Named("ws"),
		conns:   make(map[*websocket.Conn]struct{}),
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	closing := s.closing
	s.mu.Unlock()
	if closing {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := websocket.Accept(w, r, s.opts)
	if err != nil {
		s.log.Debug("upgrade failed", zap.String("remote", r.RemoteAddr), zap.Error(err))
		return
	}
	if !s.track(conn) {
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	defer s.wg.Done()
	defer s.untrack(conn)
	defer conn.Close(websocket.StatusNormalClosure, "bye")
	conn.SetReadLimit(readLimit)

	// prefixed so a websocket peer never shares a session key with a tcp one
	addr := "ws:" + r.RemoteAddr
	clog := s.log.With(zap.String("conn", uuid.NewString()), zap.String("addr", addr))
	clog.Debug("client connected")

	defer func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), 2*time.Second)
		defer cancel()
		s.handler.Disconnect(ctx, addr)
		clog.Debug("client disconnected")
	}()

	for {
		typ, data, err := conn.Read(r.Context())
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			default:
				clog.Debug("read ended", zap.Error(err))
			}
			return
		}

		reply, herr := s.handler.Handle(r.Context(), addr, data)
		if herr != nil {
			clog.Warn("request failed", zap.Error(herr))
		}
		if reply == nil {
			continue
		}

		ctx, cancel := context.WithTimeout(r.Context(), writeTimeout)
		err = conn.Write(ctx, typ, reply)
		cancel()
		if err != nil {
			clog.Debug("write failed", zap.Error(err))
			return
		}
	}
}

// Shutdown refuses new upgrades, sends going-away to every open connection and
// waits for their handlers, including disconnect cleanup, to return.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	conns := make([]*websocket.Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		go c.Close(websocket.StatusGoingAway, "server shutting down")
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) track(c *websocket.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.conns[c] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(c *websocket.Conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
}
