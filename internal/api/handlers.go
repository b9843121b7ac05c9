package api

import (
	"net/http"

	"chatify/internal/auth"
	"chatify/internal/models"
)

func (a *API) SignupHandler(w http.ResponseWriter, r *http.Request) {
	var req auth.SignupRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	resp, err := a.auth.Signup(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	auth.SetSessionCookie(w, resp, a.secureCookie)
	writeJSON(w, http.StatusCreated, resp)
}

func (a *API) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	auth.SetSessionCookie(w, resp, a.secureCookie)
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	if token := auth.TokenFromRequest(r); token != "" {
		_ = a.auth.Logoff(token)
	}
	auth.ClearSessionCookie(w, a.secureCookie)
	writeJSON(w, http.StatusOK, models.APIResponse{Success: true, Message: "Logged out successfully"})
}

func (a *API) CheckHandler(w http.ResponseWriter, r *http.Request) {
	user, err := a.auth.CurrentUser(r.Context(), auth.TokenFromRequest(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (a *API) UpdateProfileHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProfilePic string `json:"profilePic"`
	}
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	user, err := a.chat.UpdateProfilePic(r.Context(), currentUserID(r), req.ProfilePic)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (a *API) BulkUsersHandler(w http.ResponseWriter, r *http.Request) {
	ids := splitIDs(r.URL.Query().Get("_ids"))
	users, err := a.chat.FindUsers(r.Context(), ids)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}
