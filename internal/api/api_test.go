package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"chatify/internal/access"
	"chatify/internal/assistant"
	"chatify/internal/auth"
	"chatify/internal/chat"
	"chatify/internal/models"
	"chatify/internal/registry"
	"chatify/internal/router"
	"chatify/internal/storage"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubReplies struct {
	reply string
	err   error
}

func (s *stubReplies) Name() string { return "stub" }

func (s *stubReplies) GenerateReply(context.Context, []assistant.Turn, string) (string, error) {
	return s.reply, s.err
}

type fixedLimiter bool

func (f fixedLimiter) Allow(string) bool { return bool(f) }

type testEnv struct {
	server  *httptest.Server
	auth    *auth.AuthService
	replies *stubReplies
	luna    models.User
	api     *API
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	store, err := storage.NewBboltStorage(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	authService, err := auth.NewAuthService(ctx, auth.Config{
		Secret:      base64.StdEncoding.EncodeToString([]byte("test-secret")),
		TokenExpiry: time.Hour,
	}, store)
	require.NoError(t, err)

	luna, err := assistant.EnsureAccount(ctx, store)
	require.NoError(t, err)

	reg := registry.New()
	replies := &stubReplies{reply: "Hi there"}
	svc := chat.New(chat.Config{
		Store:   store,
		Guard:   access.New(store, luna.ID),
		Emitter: router.New(reg, router.WithUnroutable(luna.ID)),
		Replies: replies,
	})

	a := New(Config{Auth: authService, Chat: svc})
	r := mux.NewRouter()
	a.Routes(r)
	admin := NewAdminHandler(authService, "http://localhost:8080")
	r.HandleFunc("/admin/users", admin.AddUserHandler).Methods(http.MethodPost)

	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)
	return &testEnv{server: ts, auth: authService, replies: replies, luna: luna, api: a}
}

func (e *testEnv) signup(t *testing.T, name string) auth.LoginResponse {
	t.Helper()
	resp, err := e.auth.Signup(context.Background(), auth.SignupRequest{
		FullName: name,
		Email:    name + "@example.com",
		Password: "secret123",
	})
	require.NoError(t, err)
	return resp
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) (*http.Response, []byte) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("token", token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out bytes.Buffer
	_, err = out.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, out.Bytes()
}

func TestAuthFlow(t *testing.T) {
	e := newTestEnv(t)

	resp, body := e.do(t, http.MethodPost, "/api/auth/signup", "", auth.SignupRequest{
		FullName: "Alice",
		Email:    "alice@example.com",
		Password: "secret123",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	var cookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == auth.CookieName {
			cookie = c
		}
	}
	require.NotNil(t, cookie, "session cookie not set")
	assert.True(t, cookie.HttpOnly)

	var login auth.LoginResponse
	require.NoError(t, json.Unmarshal(body, &login))
	assert.Equal(t, "alice@example.com", login.Email)

	resp, _ = e.do(t, http.MethodPost, "/api/auth/signup", "", auth.SignupRequest{
		FullName: "Alice Again",
		Email:    "alice@example.com",
		Password: "secret123",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = e.do(t, http.MethodPost, "/api/auth/signup", "", auth.SignupRequest{
		FullName: "Bob",
		Email:    "bob@example.com",
		Password: "123",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = e.do(t, http.MethodPost, "/api/auth/login", "", auth.LoginRequest{Email: "alice@example.com", Password: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = e.do(t, http.MethodGet, "/api/auth/check", login.Token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = e.do(t, http.MethodPost, "/api/auth/logout", login.Token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = e.do(t, http.MethodGet, "/api/auth/check", login.Token, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRequireAuth(t *testing.T) {
	e := newTestEnv(t)

	resp, body := e.do(t, http.MethodGet, "/api/messages/contacts", "", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var apiResp models.APIResponse
	require.NoError(t, json.Unmarshal(body, &apiResp))
	assert.False(t, apiResp.Success)
}

func TestDirectMessages(t *testing.T) {
	e := newTestEnv(t)
	alice := e.signup(t, "alice")
	bob := e.signup(t, "bob")

	resp, body := e.do(t, http.MethodPost, "/api/messages/send/"+bob.ID, alice.Token, sendRequest{Text: "hello bob"})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var msg models.DirectMessage
	require.NoError(t, json.Unmarshal(body, &msg))
	assert.Equal(t, alice.ID, msg.SenderID)

	resp, _ = e.do(t, http.MethodPost, "/api/messages/send/"+alice.ID, alice.Token, sendRequest{Text: "me"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = e.do(t, http.MethodPost, "/api/messages/send/"+bob.ID, alice.Token, sendRequest{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = e.do(t, http.MethodPost, "/api/messages/send/nobody", alice.Token, sendRequest{Text: "hi"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = e.do(t, http.MethodGet, "/api/messages/"+alice.ID, bob.Token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var history []models.DirectMessage
	require.NoError(t, json.Unmarshal(body, &history))
	require.Len(t, history, 1)

	resp, body = e.do(t, http.MethodPatch, "/api/messages/"+msg.ID+"/react", bob.Token, reactRequest{Emoji: "👍"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var reacted reactResponse
	require.NoError(t, json.Unmarshal(body, &reacted))
	assert.Equal(t, []string{bob.ID}, reacted.Reactions["👍"])

	resp, _ = e.do(t, http.MethodPatch, "/api/messages/"+msg.ID+"/react", bob.Token, reactRequest{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = e.do(t, http.MethodPost, "/api/messages/"+msg.ID+"/delete", bob.Token, deleteRequest{Mode: "everyone"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = e.do(t, http.MethodPost, "/api/messages/"+msg.ID+"/delete", alice.Token, deleteRequest{Mode: "sideways"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = e.do(t, http.MethodPost, "/api/messages/"+msg.ID+"/delete", bob.Token, deleteRequest{Mode: "me"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = e.do(t, http.MethodGet, "/api/messages/"+alice.ID, bob.Token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &history))
	assert.Empty(t, history)

	resp, body = e.do(t, http.MethodGet, "/api/messages/chats", alice.Token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var partners []models.User
	require.NoError(t, json.Unmarshal(body, &partners))
	require.Len(t, partners, 1)
	assert.Equal(t, bob.ID, partners[0].ID)
}

func TestBotChat(t *testing.T) {
	e := newTestEnv(t)
	alice := e.signup(t, "alice")

	resp, body := e.do(t, http.MethodPost, "/api/bot/chat", alice.Token, botRequest{Message: "Hello?"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var reply botReply
	require.NoError(t, json.Unmarshal(body, &reply))
	assert.Equal(t, "Hi there", reply.Reply)
	assert.Equal(t, "stub", reply.Mode)
	require.NotNil(t, reply.Message)
	require.NotNil(t, reply.ReplyMessage)
	assert.Equal(t, e.luna.ID, reply.ReplyMessage.SenderID)

	e.replies.err = &assistant.ProviderError{Provider: "stub", Kind: assistant.KindNotConfigured, Message: "API key missing"}
	resp, _ = e.do(t, http.MethodPost, "/api/messages/send/"+e.luna.ID, alice.Token, sendRequest{Text: "again"})
	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)

	e.replies.err = &assistant.ProviderError{Provider: "stub", Kind: assistant.KindUpstream, Message: "upstream failed"}
	resp, _ = e.do(t, http.MethodPost, "/api/bot/chat", alice.Token, botRequest{Message: "and again"})
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)

	resp, body = e.do(t, http.MethodGet, "/api/messages/"+e.luna.ID, alice.Token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var history []models.DirectMessage
	require.NoError(t, json.Unmarshal(body, &history))
	// one exchange plus two unanswered messages
	assert.Len(t, history, 4)
}

func TestSendRateLimited(t *testing.T) {
	e := newTestEnv(t)
	alice := e.signup(t, "alice")
	bob := e.signup(t, "bob")
	e.api.sendLimiter = fixedLimiter(false)

	resp, _ := e.do(t, http.MethodPost, "/api/messages/send/"+bob.ID, alice.Token, sendRequest{Text: "spam"})
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestGroups(t *testing.T) {
	e := newTestEnv(t)
	alice := e.signup(t, "alice")
	bob := e.signup(t, "bob")
	carol := e.signup(t, "carol")

	resp, body := e.do(t, http.MethodPost, "/api/groups", alice.Token, createGroupRequest{
		Name:      "Friends",
		MemberIDs: []string{bob.ID, bob.ID},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var group models.Group
	require.NoError(t, json.Unmarshal(body, &group))
	assert.Equal(t, []string{alice.ID, bob.ID}, group.Members)

	resp, _ = e.do(t, http.MethodPost, "/api/groups", alice.Token, createGroupRequest{Name: "Bots", MemberIDs: []string{e.luna.ID}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = e.do(t, http.MethodPost, "/api/groups/"+group.ID+"/messages", bob.Token, sendRequest{Text: "hey all"})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var gm models.GroupMessage
	require.NoError(t, json.Unmarshal(body, &gm))
	assert.Equal(t, "bob", gm.SenderName)

	resp, _ = e.do(t, http.MethodPost, "/api/groups/"+group.ID+"/messages", carol.Token, sendRequest{Text: "let me in"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = e.do(t, http.MethodPut, "/api/groups/"+group.ID+"/members", bob.Token, membersRequest{Add: []string{carol.ID}})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = e.do(t, http.MethodPut, "/api/groups/"+group.ID+"/members", alice.Token, membersRequest{Remove: []string{alice.ID}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = e.do(t, http.MethodPut, "/api/groups/"+group.ID+"/members", alice.Token, membersRequest{Add: []string{carol.ID}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &group))
	assert.Contains(t, group.Members, carol.ID)

	resp, _ = e.do(t, http.MethodPatch, "/api/groups/messages/"+gm.ID+"/react", carol.Token, reactRequest{Emoji: "🎉"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = e.do(t, http.MethodPost, "/api/groups/other/messages/"+gm.ID+"/delete", bob.Token, deleteRequest{Mode: "everyone"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = e.do(t, http.MethodPost, "/api/groups/"+group.ID+"/messages/"+gm.ID+"/delete", bob.Token, deleteRequest{Mode: "everyone"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = e.do(t, http.MethodGet, "/api/groups/"+group.ID+"/messages", alice.Token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var history []models.GroupMessage
	require.NoError(t, json.Unmarshal(body, &history))
	require.Len(t, history, 1)
	assert.True(t, history[0].IsDeleted)
	assert.Empty(t, history[0].Text)

	resp, body = e.do(t, http.MethodGet, "/api/groups/mine", carol.Token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var mine []models.Group
	require.NoError(t, json.Unmarshal(body, &mine))
	assert.Len(t, mine, 1)
}

func TestBulkUsers(t *testing.T) {
	e := newTestEnv(t)
	alice := e.signup(t, "alice")
	bob := e.signup(t, "bob")

	resp, body := e.do(t, http.MethodGet, "/api/users/bulk?_ids="+bob.ID+",missing,"+alice.ID, alice.Token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var users []models.UserSummary
	require.NoError(t, json.Unmarshal(body, &users))
	require.Len(t, users, 2)
	assert.Equal(t, bob.ID, users[0].ID)
	assert.Equal(t, alice.ID, users[1].ID)
}

func TestAdminAddUser(t *testing.T) {
	e := newTestEnv(t)

	resp, body := e.do(t, http.MethodPost, "/admin/users", "", AddUserRequest{Email: "dave@example.com"})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var added AddUserResponse
	require.NoError(t, json.Unmarshal(body, &added))
	assert.True(t, added.Success)
	assert.NotEmpty(t, added.Password)
	assert.Equal(t, "dave", added.User.FullName)

	_, err := e.auth.Login(context.Background(), auth.LoginRequest{Email: "dave@example.com", Password: added.Password})
	require.NoError(t, err)

	resp, _ = e.do(t, http.MethodPost, "/admin/users", "", AddUserRequest{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
