package api

import (
	"fmt"
	"net/http"
	"strings"

	"chatify/internal/auth"
	"chatify/internal/models"
)

type AdminHandler struct {
	authService *auth.AuthService
	baseURL     string
}

func NewAdminHandler(authService *auth.AuthService, baseURL string) *AdminHandler {
	return &AdminHandler{authService: authService, baseURL: baseURL}
}

type AddUserRequest struct {
	Email    string `json:"email"`
	FullName string `json:"fullName,omitempty"`
}

type AddUserResponse struct {
	Success  bool        `json:"success"`
	Message  string      `json:"message,omitempty"`
	User     models.User `json:"user"`
	Password string      `json:"password,omitempty"`
	LoginURL string      `json:"loginUrl,omitempty"`
}

// AddUserHandler creates an account with a random password and returns the
// password once.
func (h *AdminHandler) AddUserHandler(w http.ResponseWriter, r *http.Request) {
	var req AddUserRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	if req.Email == "" {
		writeError(w, fmt.Errorf("%w: email is required", models.ErrValidation))
		return
	}

	user, password, err := h.authService.AddUser(r.Context(), req.Email, req.FullName)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, AddUserResponse{
		Success:  true,
		User:     user,
		Password: password,
		LoginURL: strings.TrimRight(h.baseURL, "/") + "/login",
	})
}
