package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"chatify/internal/assistant"
	"chatify/internal/auth"
	"chatify/internal/chat"
	"chatify/internal/filestore"
	"chatify/internal/metrics"
	"chatify/internal/models"
	"chatify/internal/ratelimit"

	"github.com/gorilla/mux"
)

// MaxBodySize bounds every JSON request body. Inline images are base64, so
// this is larger than the decoded upload limit.
const MaxBodySize = 5 << 20

var ErrRateLimited = errors.New("too many requests")

type Config struct {
	Auth         *auth.AuthService
	Chat         *chat.Service
	SendLimiter  ratelimit.Limiter
	SecureCookie bool
	Logger       *slog.Logger
}

type API struct {
	auth         *auth.AuthService
	chat         *chat.Service
	sendLimiter  ratelimit.Limiter
	secureCookie bool
	logger       *slog.Logger
}

func New(cfg Config) *API {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &API{
		auth:         cfg.Auth,
		chat:         cfg.Chat,
		sendLimiter:  cfg.SendLimiter,
		secureCookie: cfg.SecureCookie,
		logger:       logger.With("component", "api"),
	}
}

// Routes registers the public REST surface on r.
func (a *API) Routes(r *mux.Router) {
	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/auth/signup", a.SignupHandler).Methods(http.MethodPost)
	api.HandleFunc("/auth/login", a.LoginHandler).Methods(http.MethodPost)
	api.HandleFunc("/auth/logout", a.LogoutHandler).Methods(http.MethodPost)

	private := api.NewRoute().Subrouter()
	private.Use(a.RequireAuth)

	private.HandleFunc("/auth/check", a.CheckHandler).Methods(http.MethodGet)
	private.HandleFunc("/auth/update-profile", a.UpdateProfileHandler).Methods(http.MethodPut)

	private.HandleFunc("/messages/contacts", a.ContactsHandler).Methods(http.MethodGet)
	private.HandleFunc("/messages/chats", a.ChatPartnersHandler).Methods(http.MethodGet)
	private.HandleFunc("/messages/send/{id}", a.SendMessageHandler).Methods(http.MethodPost)
	private.HandleFunc("/messages/{messageId}/delete", a.DeleteMessageHandler).Methods(http.MethodPost)
	private.HandleFunc("/messages/{messageId}/react", a.ReactMessageHandler).Methods(http.MethodPatch)
	private.HandleFunc("/messages/{id}", a.HistoryHandler).Methods(http.MethodGet)

	private.HandleFunc("/groups", a.CreateGroupHandler).Methods(http.MethodPost)
	private.HandleFunc("/groups/mine", a.MyGroupsHandler).Methods(http.MethodGet)
	private.HandleFunc("/groups/messages/{messageId}/react", a.ReactGroupMessageHandler).Methods(http.MethodPatch)
	private.HandleFunc("/groups/{id}/members", a.UpdateMembersHandler).Methods(http.MethodPut)
	private.HandleFunc("/groups/{id}/avatar", a.UpdateGroupAvatarHandler).Methods(http.MethodPut)
	private.HandleFunc("/groups/{id}/messages", a.GroupHistoryHandler).Methods(http.MethodGet)
	private.HandleFunc("/groups/{id}/messages", a.SendGroupMessageHandler).Methods(http.MethodPost)
	private.HandleFunc("/groups/{id}/messages/{messageId}/delete", a.DeleteGroupMessageHandler).Methods(http.MethodPost)

	private.HandleFunc("/users/bulk", a.BulkUsersHandler).Methods(http.MethodGet)
	private.HandleFunc("/bot/chat", a.BotChatHandler).Methods(http.MethodPost)
}

type userIDKey struct{}

// RequireAuth rejects requests without a valid session and stores the
// caller's id in the request context.
func (a *API) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := a.auth.GetUserID(auth.TokenFromRequest(r))
		if err != nil {
			writeError(w, err)
			return
		}
		ctx := context.WithValue(r.Context(), userIDKey{}, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func currentUserID(r *http.Request) string {
	id, _ := r.Context().Value(userIDKey{}).(string)
	return id
}

// allowSend applies the per-user send limit.
func (a *API) allowSend(userID string) error {
	if a.sendLimiter == nil || a.sendLimiter.Allow(userID) {
		return nil
	}
	metrics.RateLimited.WithLabelValues("send").Inc()
	return ErrRateLimited
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errBodyTooLarge
		}
		return errInvalidBody
	}
	return nil
}

var (
	errInvalidBody  = errors.New("invalid request body")
	errBodyTooLarge = errors.New("request body too large")
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status, message := classify(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "error", err)
	}
	writeJSON(w, status, models.APIResponse{Success: false, Message: message})
}

// classify maps an error to an HTTP status and the message shown to the client.
func classify(err error) (int, string) {
	var perr *assistant.ProviderError
	switch {
	case errors.Is(err, errInvalidBody):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, errBodyTooLarge):
		return http.StatusRequestEntityTooLarge, err.Error()
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, err.Error()
	case errors.As(err, &perr):
		if perr.Kind == assistant.KindNotConfigured {
			return http.StatusNotImplemented, perr.Message
		}
		return http.StatusBadGateway, perr.Message
	case errors.Is(err, models.ErrValidation), errors.Is(err, filestore.ErrUpload):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, models.ErrUnauthorized):
		return http.StatusUnauthorized, err.Error()
	case errors.Is(err, models.ErrForbidden):
		return http.StatusForbidden, err.Error()
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, models.ErrConflict):
		return http.StatusConflict, err.Error()
	}
	return http.StatusInternalServerError, "Internal server error"
}
