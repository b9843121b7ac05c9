package api

import (
	"net/http"

	"chatify/internal/chat"
	"chatify/internal/models"

	"github.com/gorilla/mux"
)

type createGroupRequest struct {
	Name      string   `json:"name"`
	MemberIDs []string `json:"memberIds"`
	Avatar    string   `json:"avatar"`
}

type membersRequest struct {
	Add    []string `json:"add"`
	Remove []string `json:"remove"`
}

type avatarRequest struct {
	Avatar string `json:"avatar"`
}

func (a *API) CreateGroupHandler(w http.ResponseWriter, r *http.Request) {
	var req createGroupRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	group, err := a.chat.CreateGroup(r.Context(), currentUserID(r), chat.CreateGroupInput{
		Name:      req.Name,
		MemberIDs: req.MemberIDs,
		Avatar:    req.Avatar,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, group)
}

func (a *API) MyGroupsHandler(w http.ResponseWriter, r *http.Request) {
	groups, err := a.chat.MyGroups(r.Context(), currentUserID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, groups)
}

func (a *API) UpdateMembersHandler(w http.ResponseWriter, r *http.Request) {
	var req membersRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	group, err := a.chat.UpdateMembers(r.Context(), currentUserID(r), mux.Vars(r)["id"], req.Add, req.Remove)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, group)
}

func (a *API) UpdateGroupAvatarHandler(w http.ResponseWriter, r *http.Request) {
	var req avatarRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	group, err := a.chat.UpdateGroupAvatar(r.Context(), currentUserID(r), mux.Vars(r)["id"], req.Avatar)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, group)
}

func (a *API) GroupHistoryHandler(w http.ResponseWriter, r *http.Request) {
	msgs, err := a.chat.GroupHistory(r.Context(), currentUserID(r), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (a *API) SendGroupMessageHandler(w http.ResponseWriter, r *http.Request) {
	userID := currentUserID(r)
	var req sendRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := a.allowSend(userID); err != nil {
		writeError(w, err)
		return
	}

	target := models.GroupTarget(mux.Vars(r)["id"])
	sent, err := a.chat.Send(r.Context(), userID, target, models.SendInput{Text: req.Text, Image: req.Image})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sent.Group)
}

func (a *API) DeleteGroupMessageHandler(w http.ResponseWriter, r *http.Request) {
	var req deleteRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	mode, err := chat.ParseDeleteMode(req.Mode)
	if err != nil {
		writeError(w, err)
		return
	}

	vars := mux.Vars(r)
	msg, err := a.chat.DeleteGroupMessage(r.Context(), currentUserID(r), vars["id"], vars["messageId"], mode)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, deleteResponse{ID: msg.ID, Mode: string(mode)})
}

func (a *API) ReactGroupMessageHandler(w http.ResponseWriter, r *http.Request) {
	var req reactRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	msg, err := a.chat.ReactGroup(r.Context(), currentUserID(r), mux.Vars(r)["messageId"], req.Emoji)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reactResponse{ID: msg.ID, Reactions: msg.Reactions})
}
