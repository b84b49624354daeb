// Package relay fans decoded camera events out to local consumers over
// websocket, one JSON message per event.
package relay

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/edgekit/dahua-events/monitor"
)

// Server serves /events, upgrading to websocket and pushing every bus
// event matching the codes requested via the code query parameter.
type Server struct {
	monitor  *monitor.Monitor
	bind     string
	upgrader websocket.Upgrader
	server   *http.Server
	mux      sync.Mutex
	conns    map[*websocket.Conn]struct{}
	log      *log.Entry
}

func NewServer(m *monitor.Monitor, bindAddress string) *Server {
	return &Server{
		monitor: m,
		bind:    bindAddress,
		upgrader: websocket.Upgrader{
			// Local relay, consumers connect from arbitrary origins.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		conns: map[*websocket.Conn]struct{}{},
		log:   log.WithField("component", "event-relay"),
	}
}

func (s *Server) track(conn *websocket.Conn) {
	s.mux.Lock()
	s.conns[conn] = struct{}{}
	s.mux.Unlock()
}

func (s *Server) untrack(conn *websocket.Conn) {
	s.mux.Lock()
	delete(s.conns, conn)
	s.mux.Unlock()
}

// Handler returns the HTTP handler serving the relay endpoints.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/events", s.handleEvents)
	return mux
}

// Start listens on the configured bind address in the background.
func (s *Server) Start() error {
	s.server = &http.Server{Addr: s.bind, Handler: s.Handler()}
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error("Relay server stopped: ", err)
		}
	}()
	s.log.Info("Event relay listening on ", s.bind)
	return nil
}

// Stop closes the listener and every live consumer connection.
func (s *Server) Stop() {
	if s.server != nil {
		s.server.Close()
	}
	s.mux.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.conns = map[*websocket.Conn]struct{}{}
	s.mux.Unlock()
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	codes := r.URL.Query()["code"]
	if len(codes) == 0 {
		http.Error(w, "at least one code query parameter is required", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("Websocket upgrade failed: ", err)
		return
	}
	stream := s.monitor.Sub(codes...)
	s.track(conn)
	s.log.Infof("Relay consumer connected, codes: %v", codes)

	// Writer drains the bus subscription; the read loop only watches for
	// the consumer going away.
	go func() {
		for event := range stream {
			if err := conn.WriteJSON(event); err != nil {
				s.log.Info("Relay consumer write failed: ", err)
				conn.Close()
				return
			}
		}
		conn.Close()
	}()
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.log.Infof("Relay consumer disconnected, codes: %v", codes)
				s.monitor.Unsub(stream, codes...)
				s.untrack(conn)
				conn.Close()
				return
			}
		}
	}()
}
