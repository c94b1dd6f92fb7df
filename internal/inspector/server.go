package inspector

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

// Server is the read-only HTTP+WebSocket front end over a Registry. It
// never accepts writes: every route either lists the current snapshot or
// streams it.
type Server struct {
	echo          *echo.Echo
	registry      *Registry
	log           *slog.Logger
	idleThreshold time.Duration
	upgrader      websocket.Upgrader
	pushInterval  time.Duration
}

// NewServer builds an inspector bound to registry. idleThreshold feeds
// ChannelSnapshot.Idle; pushInterval is how often the /ws feed re-sends
// the full snapshot list to each connected client.
func NewServer(registry *Registry, log *slog.Logger, idleThreshold, pushInterval time.Duration) *Server {
	s := &Server{
		echo:          echo.New(),
		registry:      registry,
		log:           log,
		idleThreshold: idleThreshold,
		pushInterval:  pushInterval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}

	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.GET("/channels", s.handleChannels)
	s.echo.GET("/ws", s.handleWebSocket)

	return s
}

// ListenAndServe runs the inspector's HTTP server on addr. Blocks until
// the server stops (via Shutdown or a fatal error); http.ErrServerClosed
// is not returned as an error.
func (s *Server) ListenAndServe(addr string) error {
	if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) handleChannels(c echo.Context) error {
	return c.JSON(http.StatusOK, s.registry.Snapshot(s.idleThreshold))
}

func (s *Server) handleWebSocket(c echo.Context) error {
	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	ticker := time.NewTicker(s.pushInterval)
	defer ticker.Stop()

	for range ticker.C {
		snap := s.registry.Snapshot(s.idleThreshold)
		if err := conn.WriteJSON(snap); err != nil {
			if s.log != nil {
				s.log.Debug("inspector: websocket write failed, closing", "error", err.Error())
			}
			return nil
		}
	}

	return nil
}
