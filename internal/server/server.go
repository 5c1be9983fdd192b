// Package server streams meter updates to WebSocket clients so a remote
// level UI can observe the meter like any local subscriber.
package server

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/petems/mic-meter/internal/meter"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: checkOrigin,
}

// checkOrigin reports whether the WebSocket connection origin is allowed:
// same-origin, localhost, or a private address.
func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	// Same-origin requests omit the Origin header
	if origin == "" {
		return true
	}

	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := u.Hostname()

	if host == "localhost" || host == "127.0.0.1" || host == "::1" {
		return true
	}

	requestHost := r.Host
	if h, _, err := net.SplitHostPort(requestHost); err == nil {
		requestHost = h
	}
	if host == requestHost {
		return true
	}

	ip := net.ParseIP(host)
	return ip != nil && (ip.IsLoopback() || ip.IsPrivate())
}

// levelFrame is one meter update on the wire.
type levelFrame struct {
	Level float64 `json:"level"`
	State string  `json:"state"`
}

type Server struct {
	addr  string
	meter *meter.Meter
	log   zerolog.Logger
}

func New(addr string, m *meter.Meter, log zerolog.Logger) *Server {
	return &Server{addr: addr, meter: m, log: log}
}

// Handler returns the HTTP handler serving the /ws endpoint.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	return mux
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.Handler()}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	s.log.Info().Str("addr", s.addr).Msg("Level stream listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	// Latest-value-wins per client: a slow connection coalesces updates
	// instead of backing up the dispatch goroutine.
	updates := make(chan levelFrame, 1)
	id := s.meter.Subscribe(func(level float64, state meter.State) {
		frame := levelFrame{Level: level, State: state.String()}
		for {
			select {
			case updates <- frame:
				return
			default:
			}
			select {
			case <-updates:
			default:
			}
		}
	})
	defer s.meter.Unsubscribe(id)

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	// Initial snapshot so clients render before the first block arrives
	if err := conn.WriteJSON(levelFrame{Level: s.meter.Level(), State: s.meter.State().String()}); err != nil {
		return
	}

	for {
		select {
		case <-closed:
			return
		case frame := <-updates:
			if err := conn.WriteJSON(frame); err != nil {
				return
			}
		}
	}
}
