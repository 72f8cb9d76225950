// Package tcp serves the broker protocol over raw TCP. Every read is treated
// as one request frame.
package tcp

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const readBufferSize = 4096

const disconnectTimeout = 2 * time.Second

type Handler interface {
	Handle(ctx context.Context, addr string, raw []byte) ([]byte, error)
	Disconnect(ctx context.Context, addr string)
}

type Server struct {
	handler Handler
	log     *zap.Logger

	mu    sync.Mutex
	conns map[net.Conn]struct{}
	wg    sync.WaitGroup
}

func New(h Handler, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		handler: h,
		log:     log.Named("tcp"),
		conns:   make(map[net.Conn]struct{}),
	}
}

// Serve accepts connections until ctx is done or ln fails. It closes ln and
// every open connection before returning, and waits for their handlers.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() {
		_ = ln.Close()
		s.closeAll()
	})
	defer stop()
	defer s.wg.Wait()

	s.log.Info("broker listening", zap.String("addr", ln.Addr().String()))
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				s.closeAll()
				return nil
			}
			s.closeAll()
			return err
		}

		s.track(conn)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serveConn(ctx, conn)
		}()
	}
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	addr := conn.RemoteAddr().String()
	log := s.log.With(zap.String("conn", uuid.NewString()), zap.String("addr", addr))
	log.Debug("client connected")

	defer func() {
		s.untrack(conn)
		_ = conn.Close()

		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), disconnectTimeout)
		defer cancel()
		s.handler.Disconnect(dctx, addr)
		log.Debug("client disconnected")
	}()

	buf := make([]byte, readBufferSize)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			reply, herr := s.handler.Handle(ctx, addr, buf[:n])
			if herr != nil {
				log.Warn("request failed", zap.Error(herr))
			}
			if reply != nil {
				if _, werr := conn.Write(reply); werr != nil {
					log.Debug("write failed", zap.Error(werr))
					return
				}
			}
		}
		if err != nil {
			return
		}
	}
}

func (s *Server) track(c net.Conn) {
	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrack(c net.Conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
}

func (s *Server) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		_ = c.Close()
	}
}
