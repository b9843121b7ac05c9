package api

import (
	"net/http"
	"strings"

	"chatify/internal/chat"
	"chatify/internal/models"

	"github.com/gorilla/mux"
)

type sendRequest struct {
	Text  string `json:"text"`
	Image string `json:"image"`
}

type deleteRequest struct {
	Mode string `json:"mode"`
}

type deleteResponse struct {
	ID   string `json:"id"`
	Mode string `json:"mode"`
}

type reactRequest struct {
	Emoji string `json:"emoji"`
}

type reactResponse struct {
	ID        string           `json:"id"`
	Reactions models.Reactions `json:"reactions"`
}

func (a *API) ContactsHandler(w http.ResponseWriter, r *http.Request) {
	users, err := a.chat.Contacts(r.Context(), currentUserID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (a *API) ChatPartnersHandler(w http.ResponseWriter, r *http.Request) {
	users, err := a.chat.ChatPartners(r.Context(), currentUserID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (a *API) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	msgs, err := a.chat.DirectHistory(r.Context(), currentUserID(r), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

// SendMessageHandler posts a direct message. Sending to the assistant
// account answers with both stored messages.
func (a *API) SendMessageHandler(w http.ResponseWriter, r *http.Request) {
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

	target, err := a.chat.ResolveDirect(r.Context(), userID, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	sent, err := a.chat.Send(r.Context(), userID, target, models.SendInput{Text: req.Text, Image: req.Image})
	if err != nil {
		writeError(w, err)
		return
	}

	if target.Kind == models.TargetAssistant {
		writeJSON(w, http.StatusCreated, botResponse(sent))
		return
	}
	writeJSON(w, http.StatusCreated, sent.Direct)
}

func (a *API) DeleteMessageHandler(w http.ResponseWriter, r *http.Request) {
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

	msg, err := a.chat.DeleteDirect(r.Context(), currentUserID(r), mux.Vars(r)["messageId"], mode)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, deleteResponse{ID: msg.ID, Mode: string(mode)})
}

func (a *API) ReactMessageHandler(w http.ResponseWriter, r *http.Request) {
	var req reactRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	msg, err := a.chat.ReactDirect(r.Context(), currentUserID(r), mux.Vars(r)["messageId"], req.Emoji)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reactResponse{ID: msg.ID, Reactions: msg.Reactions})
}

type botRequest struct {
	Message string `json:"message"`
}

type botReply struct {
	Reply        string                `json:"reply"`
	Mode         string                `json:"mode"`
	Message      *models.DirectMessage `json:"message"`
	ReplyMessage *models.DirectMessage `json:"replyMessage"`
}

func botResponse(sent chat.Sent) botReply {
	resp := botReply{
		Mode:         sent.Provider,
		Message:      sent.Direct,
		ReplyMessage: sent.Reply,
	}
	if sent.Reply != nil {
		resp.Reply = sent.Reply.Text
	}
	return resp
}

// BotChatHandler is a shortcut for sending text to the assistant account.
func (a *API) BotChatHandler(w http.ResponseWriter, r *http.Request) {
	userID := currentUserID(r)
	var req botRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := a.allowSend(userID); err != nil {
		writeError(w, err)
		return
	}

	target := models.Assistant(a.chat.AssistantID())
	sent, err := a.chat.Send(r.Context(), userID, target, models.SendInput{Text: req.Message})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, botResponse(sent))
}

func splitIDs(s string) []string {
	var ids []string
	for _, id := range strings.Split(s, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}
