package stream

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait  = 2 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Server bridges hub topics to websocket clients. Each client connects to
// /ws?topic=<topic> and receives that topic's messages as JSON. Transport
// errors are logged and swallowed; they never reach the publisher.
type Server struct {
	hub      *Hub
	logger   zerolog.Logger
	upgrader websocket.Upgrader
	httpSrv  *http.Server
}

// NewServer creates a websocket broadcast server over the given hub.
func NewServer(hub *Hub, addr string, logger zerolog.Logger) *Server {
	s := &Server{
		hub:    hub,
		logger: logger.With().Str("component", "ws-server").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	s.httpSrv = &http.Server{Addr: addr, Handler: mux}

	return s
}

// Start runs the HTTP listener until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpSrv.Shutdown(shutdownCtx)
	}()

	s.logger.Info().Str("addr", s.httpSrv.Addr).Msg("Broadcast server listening")
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	topic := r.URL.Query().Get("topic")
	if topic == "" {
		topic = TopicPrices
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}

	ch := s.hub.SubscribeWithID(topic, r.RemoteAddr)
	s.logger.Info().Str("topic", topic).Str("client", r.RemoteAddr).Msg("Client subscribed")

	go s.readPump(conn, topic, ch)
	go s.writePump(conn, topic, ch)
}

// readPump drains client frames and acts as the connection watchdog.
func (s *Server) readPump(conn *websocket.Conn, topic string, ch <-chan Message) {
	defer func() {
		s.hub.Unsubscribe(topic, ch)
		conn.Close()
	}()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Debug().Err(err).Msg("Websocket read error")
			}
			return
		}
	}
}

// writePump forwards hub messages to the client.
func (s *Server) writePump(conn *websocket.Conn, topic string, ch <-chan Message) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case msg, ok := <-ch:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(msg); err != nil {
				s.logger.Debug().Err(err).Str("topic", topic).Msg("Websocket write failed")
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
