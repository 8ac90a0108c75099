package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ChatConfig configures an OpenAI-compatible chat completions client. With
// Azure set, requests go to the deployment endpoint and authenticate with the
// api-key header.
type ChatConfig struct {
	BaseURL         string
	APIKey          string
	Model           string
	Temperature     float64
	Timeout         time.Duration
	Azure           bool
	AzureDeployment string
	AzureAPIVersion string
	HTTPClient      *http.Client
}

type ChatClient struct {
	endpoint    string
	apiKey      string
	model       string
	provider    string
	azure       bool
	temperature float64
	client      *http.Client
}

func NewChatClient(cfg ChatConfig) (*ChatClient, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gpt-4o"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}

	c := &ChatClient{
		apiKey:      apiKey,
		model:       model,
		temperature: cfg.Temperature,
		client:      client,
	}
	if cfg.Azure {
		deployment := strings.TrimSpace(cfg.AzureDeployment)
		if deployment == "" {
			return nil, fmt.Errorf("azure deployment is required")
		}
		version := strings.TrimSpace(cfg.AzureAPIVersion)
		if version == "" {
			version = "2024-02-15-preview"
		}
		c.azure = true
		c.provider = "azure-openai"
		c.endpoint = baseURL + "/openai/deployments/" + url.PathEscape(deployment) +
			"/chat/completions?api-version=" + url.QueryEscape(version)
	} else {
		c.provider = "openai-compatible"
		c.endpoint = baseURL + "/v1/chat/completions"
	}
	return c, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model,omitempty"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

func (c *ChatClient) Complete(ctx context.Context, prompt Prompt) (Completion, error) {
	payload := chatRequest{Temperature: c.temperature}
	if !c.azure {
		payload.Model = c.model
	}
	if prompt.Temperature != nil {
		payload.Temperature = *prompt.Temperature
	}
	if prompt.JSON {
		payload.ResponseFormat = map[string]string{"type": "json_object"}
	}
	if strings.TrimSpace(prompt.System) != "" {
		payload.Messages = append(payload.Messages, chatMessage{Role: "system", Content: prompt.System})
	}
	payload.Messages = append(payload.Messages, chatMessage{Role: "user", Content: prompt.User})

	body, err := json.Marshal(payload)
	if err != nil {
		return Completion{}, fmt.Errorf("marshal chat payload: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return Completion{}, fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.azure {
		httpReq.Header.Set("api-key", c.apiKey)
	} else {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return Completion{}, fmt.Errorf("request chat completion: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	rawRespBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return Completion{}, fmt.Errorf("read chat response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Completion{}, fmt.Errorf("chat completion failed status=%d body=%s", resp.StatusCode, excerpt(rawRespBody))
	}

	var parsed struct {
		Model   string `json:"model"`
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(rawRespBody, &parsed); err != nil {
		return Completion{}, fmt.Errorf("decode chat completion response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return Completion{}, fmt.Errorf("empty chat completion choices")
	}
	text := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if text == "" {
		return Completion{}, fmt.Errorf("model returned empty content")
	}
	model := c.model
	if parsed.Model != "" {
		model = parsed.Model
	}
	return Completion{Text: text, Provider: c.provider, Model: model}, nil
}
