package ws

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"chatify/internal/auth"

	"github.com/gorilla/websocket"
)

type Authenticator interface {
	GetUserID(token string) (string, error)
}

type Server struct {
	auth        Authenticator
	hub         messageHub
	assistantID string
	upgrader    *websocket.Upgrader
	logger      *slog.Logger
}

// NewServer builds the socket endpoint. An empty clientURL accepts any origin.
func NewServer(authenticator Authenticator, hub *Hub, clientURL, assistantID string) *Server {
	return &Server{
		auth:        authenticator,
		hub:         hub,
		assistantID: assistantID,
		upgrader: &websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(clientURL),
		},
		logger: hub.logger,
	}
}

func (s *Server) HandleConnections(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, err := s.auth.GetUserID(auth.TokenFromRequest(r))
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if userID == s.assistantID {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("error upgrading to websocket", "user_id", userID, "error", err)
		return
	}

	c := NewConnection(s.hub, conn, userID)
	err = c.Handle(r.Context())
	switch {
	case err == nil:
	case errors.Is(err, ErrOverflow):
		s.logger.Warn("connection closed, outbound queue full", "user_id", userID)
	case websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived):
		s.logger.Info("connection closed unexpectedly", "user_id", userID, "error", err)
	}
}

func checkOrigin(clientURL string) func(r *http.Request) bool {
	if clientURL == "" {
		return func(*http.Request) bool { return true }
	}
	allowed, err := url.Parse(clientURL)
	if err != nil {
		return func(*http.Request) bool { return false }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return strings.EqualFold(u.Scheme, allowed.Scheme) && strings.EqualFold(u.Host, allowed.Host)
	}
}
