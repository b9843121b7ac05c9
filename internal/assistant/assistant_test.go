package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"chatify/internal/auth"
	"chatify/internal/models"

	"github.com/stretchr/testify/require"
)

func noBackoff(r *Retrying) *Retrying {
	r.backoff = func(int) time.Duration { return 0 }
	return r
}

func TestCleanReply(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"Plain", "  Hello there  ", "Hello there"},
		{"Help opener", "I'm here to help you today. It is noon.", "It is noon."},
		{"Bold opener", "If you want the text in bold, say so. Sure thing", "Sure thing"},
		{"Case insensitive", "here are some things i can do. chat", "chat"},
		{"Only boilerplate", "I can do many things to help you.", ""},
		{"Opener not at start", "Well, I'm here to help.", "Well, I'm here to help."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanReply(tt.input); got != tt.expected {
				t.Errorf("CleanReply() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestWindow(t *testing.T) {
	history := make([]Turn, 20)
	for i := range history {
		history[i] = Turn{Role: RoleUser, Content: string(rune('a' + i))}
	}
	got := Window(history)
	require.Len(t, got, HistoryWindow)
	require.Equal(t, history[8], got[0])
	require.Len(t, Window(history[:3]), 3)
}

func TestOpenAIGenerator(t *testing.T) {
	var req oaiChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":" It is noon. "}}]}`))
	}))
	defer srv.Close()

	g := NewOpenAIGenerator(srv.URL+"/v1/", "sk-test", "gpt-4o-mini", 0.7)
	reply, err := g.GenerateReply(context.Background(), []Turn{{Role: RoleAssistant, Content: "Hi!"}}, "What time is it?")
	require.NoError(t, err)
	require.Equal(t, " It is noon. ", reply)

	require.Equal(t, "gpt-4o-mini", req.Model)
	require.Equal(t, MaxOutputTokens, req.MaxTokens)
	require.Len(t, req.Messages, 3)
	require.Equal(t, "system", req.Messages[0].Role)
	require.Equal(t, RoleAssistant, req.Messages[1].Role)
	require.Equal(t, oaiMessage{Role: RoleUser, Content: "What time is it?"}, req.Messages[2])
}

func TestGeminiGenerator(t *testing.T) {
	var req geminiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/models/gemini-1.5-pro:generateContent", r.URL.Path)
		require.Equal(t, "g-key", r.URL.Query().Get("key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"Hello!"}]}}]}`))
	}))
	defer srv.Close()

	g := NewGeminiGenerator(srv.URL, "g-key", "gemini-1.5-pro", 0.5)
	reply, err := g.GenerateReply(context.Background(), []Turn{
		{Role: RoleUser, Content: "hi"},
		{Role: RoleAssistant, Content: "hello"},
	}, "again")
	require.NoError(t, err)
	require.Equal(t, "Hello!", reply)

	require.Equal(t, SystemPrompt, req.SystemInstruction.Parts[0].Text)
	require.Len(t, req.Contents, 3)
	require.Equal(t, "model", req.Contents[1].Role)
	require.Equal(t, "again", req.Contents[2].Parts[0].Text)
	require.Equal(t, MaxOutputTokens, req.GenerationConfig.MaxOutputTokens)
}

func TestOllamaGenerator(t *testing.T) {
	var req ollamaChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/chat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":"local answer"}}`))
	}))
	defer srv.Close()

	g := NewOllamaGenerator(srv.URL, "llama3.2:latest", 0.7)
	reply, err := g.GenerateReply(context.Background(), nil, "hi")
	require.NoError(t, err)
	require.Equal(t, "local answer", reply)
	require.False(t, req.Stream)
	require.Len(t, req.Messages, 2)
}

func TestNotConfigured(t *testing.T) {
	for _, p := range []Provider{
		NewOpenAIGenerator("http://unused", "", "m", 0),
		NewGeminiGenerator("http://unused", "", "m", 0),
		NewOllamaGenerator("", "m", 0),
	} {
		t.Run(p.Name(), func(t *testing.T) {
			_, err := NewRetrying(p, time.Second, 2, nil).GenerateReply(context.Background(), nil, "hi")
			var perr *ProviderError
			require.ErrorAs(t, err, &perr)
			require.Equal(t, KindNotConfigured, perr.Kind)
			require.ErrorIs(t, err, models.ErrProvider)
		})
	}
}

func TestRetryingRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, `{"error":{"message":"overloaded"}}`, http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"message":{"content":"I'm here to help. Finally"}}`))
	}))
	defer srv.Close()

	r := noBackoff(NewRetrying(NewOllamaGenerator(srv.URL, "m", 0), time.Second, 2, nil))
	reply, err := r.GenerateReply(context.Background(), nil, "hi")
	require.NoError(t, err)
	require.Equal(t, "Finally", reply)
	require.Equal(t, int32(3), calls.Load())
}

func TestRetryingGivesUp(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"error":{"message":"overloaded"}}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	r := noBackoff(NewRetrying(NewOllamaGenerator(srv.URL, "m", 0), time.Second, 2, nil))
	_, err := r.GenerateReply(context.Background(), nil, "hi")
	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, KindUpstream, perr.Kind)
	require.Contains(t, err.Error(), "overloaded")
	require.Equal(t, int32(3), calls.Load())
}

func TestRetryingDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"bad model"}}`))
	}))
	defer srv.Close()

	r := noBackoff(NewRetrying(NewOpenAIGenerator(srv.URL, "k", "m", 0), time.Second, 2, nil))
	_, err := r.GenerateReply(context.Background(), nil, "hi")
	require.ErrorIs(t, err, models.ErrProvider)
	require.Contains(t, err.Error(), "bad model")
	require.Equal(t, int32(1), calls.Load())
}

func TestRetryingTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	r := noBackoff(NewRetrying(NewOllamaGenerator(srv.URL, "m", 0), 50*time.Millisecond, 1, nil))
	start := time.Now()
	_, err := r.GenerateReply(context.Background(), nil, "hi")
	require.ErrorIs(t, err, models.ErrProvider)
	require.Less(t, time.Since(start), 5*time.Second)
}

func TestRetryingEmptyReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"   "}}]}`))
	}))
	defer srv.Close()

	r := NewRetrying(NewOpenAIGenerator(srv.URL, "k", "m", 0), time.Second, 2, nil)
	_, err := r.GenerateReply(context.Background(), nil, "hi")
	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, KindEmpty, perr.Kind)
}

func TestNewFromConfig(t *testing.T) {
	r, err := NewFromConfig(Config{Provider: "OpenAI"}, nil)
	require.NoError(t, err)
	require.Equal(t, "openai", r.Name())

	r, err = NewFromConfig(Config{}, nil)
	require.NoError(t, err)
	require.Equal(t, "gemini", r.Name())

	_, err = NewFromConfig(Config{Provider: "claude-of-the-cloud"}, nil)
	require.Error(t, err)
}

type accountStore struct {
	mu    sync.Mutex
	users map[string]models.User
}

func (s *accountStore) CreateUser(_ context.Context, c auth.Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[c.Email]; ok {
		return auth.ErrUserExists
	}
	s.users[c.Email] = c.User
	return nil
}

func (s *accountStore) FindUserByEmail(_ context.Context, email string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[strings.ToLower(email)]
	if !ok {
		return models.User{}, models.ErrNotFound
	}
	return u, nil
}

func TestEnsureAccount(t *testing.T) {
	store := &accountStore{users: map[string]models.User{}}
	first, err := EnsureAccount(context.Background(), store)
	require.NoError(t, err)
	require.Equal(t, AccountEmail, first.Email)
	require.Equal(t, AccountName, first.FullName)

	second, err := EnsureAccount(context.Background(), store)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
}

func TestProviderErrorIs(t *testing.T) {
	err := upstream("openai", "request failed", errors.New("boom"), true)
	require.ErrorIs(t, err, models.ErrProvider)
	require.True(t, err.Temporary())
	require.Equal(t, "openai: request failed: boom", err.Error())
}
