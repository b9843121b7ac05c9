package assistant

import (
	"context"
	"net/http"
	"strings"
)

// OpenAIGenerator calls an OpenAI-compatible /chat/completions endpoint.
type OpenAIGenerator struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	httpClient  *http.Client
}

// NewOpenAIGenerator builds an OpenAI-compatible generator.
// baseURL should include the /v1 prefix, e.g. "https://api.openai.com/v1".
func NewOpenAIGenerator(baseURL, apiKey, model string, temperature float64) *OpenAIGenerator {
	return &OpenAIGenerator{
		baseURL:     strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:      strings.TrimSpace(apiKey),
		model:       strings.TrimSpace(model),
		temperature: temperature,
		httpClient:  &http.Client{},
	}
}

func (g *OpenAIGenerator) Name() string {
	return "openai"
}

func (g *OpenAIGenerator) GenerateReply(ctx context.Context, history []Turn, latest string) (string, error) {
	if g.apiKey == "" {
		return "", notConfigured(g.Name(), "OPENAI_API_KEY missing")
	}

	messages := make([]oaiMessage, 0, len(history)+2)
	messages = append(messages, oaiMessage{Role: "system", Content: SystemPrompt})
	for _, t := range history {
		messages = append(messages, oaiMessage{Role: t.Role, Content: t.Content})
	}
	messages = append(messages, oaiMessage{Role: RoleUser, Content: latest})

	header := http.Header{}
	header.Set("Authorization", "Bearer "+g.apiKey)

	var resp oaiChatResponse
	err := postJSON(ctx, g.httpClient, g.Name(), g.baseURL+"/chat/completions", header, oaiChatRequest{
		Model:       g.model,
		Messages:    messages,
		Temperature: g.temperature,
		MaxTokens:   MaxOutputTokens,
	}, &resp)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", empty(g.Name())
	}
	return resp.Choices[0].Message.Content, nil
}

type oaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type oaiChatRequest struct {
	Model       string       `json:"model"`
	Messages    []oaiMessage `json:"messages"`
	Temperature float64      `json:"temperature"`
	MaxTokens   int          `json:"max_tokens"`
}

type oaiChatResponse struct {
	Choices []struct {
		Message oaiMessage `json:"message"`
	} `json:"choices"`
}
