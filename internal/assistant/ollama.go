package assistant

import (
	"context"
	"net/http"
	"strings"
)

// OllamaGenerator calls a local Ollama /api/chat endpoint. It needs no credentials.
type OllamaGenerator struct {
	baseURL     string
	model       string
	temperature float64
	httpClient  *http.Client
}

func NewOllamaGenerator(baseURL, model string, temperature float64) *OllamaGenerator {
	return &OllamaGenerator{
		baseURL:     strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		model:       strings.TrimSpace(model),
		temperature: temperature,
		httpClient:  &http.Client{},
	}
}

func (g *OllamaGenerator) Name() string {
	return "ollama"
}

func (g *OllamaGenerator) GenerateReply(ctx context.Context, history []Turn, latest string) (string, error) {
	if g.baseURL == "" || g.model == "" {
		return "", notConfigured(g.Name(), "ollama base url and model required")
	}

	messages := make([]ollamaChatMessage, 0, len(history)+2)
	messages = append(messages, ollamaChatMessage{Role: "system", Content: SystemPrompt})
	for _, t := range history {
		messages = append(messages, ollamaChatMessage{Role: t.Role, Content: t.Content})
	}
	messages = append(messages, ollamaChatMessage{Role: RoleUser, Content: latest})

	var resp ollamaChatResponse
	err := postJSON(ctx, g.httpClient, g.Name(), g.baseURL+"/api/chat", nil, ollamaChatRequest{
		Model:    g.model,
		Messages: messages,
		Options:  ollamaOptions{Temperature: g.temperature},
		Stream:   false,
	}, &resp)
	if err != nil {
		return "", err
	}
	return resp.Message.Content, nil
}

type ollamaChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
}

type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []ollamaChatMessage `json:"messages"`
	Options  ollamaOptions       `json:"options"`
	Stream   bool                `json:"stream"`
}

type ollamaChatResponse struct {
	Message ollamaChatMessage `json:"message"`
}
