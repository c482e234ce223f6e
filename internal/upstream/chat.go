package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"mmuni/internal/models"
)

const chatTimeout = 60 * time.Second

var errInvalidJSON = errors.New("response is not valid JSON")

// ChatClient sends blocking chat messages to a Dify-style chat API.
type ChatClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewChatClient creates a ChatClient.
func NewChatClient(baseURL, apiKey string, hc *http.Client) *ChatClient {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &ChatClient{baseURL: baseURL, apiKey: apiKey, http: hc}
}

type chatMessage struct {
	Inputs         map[string]any `json:"inputs"`
	Query          string         `json:"query"`
	ResponseMode   string         `json:"response_mode"`
	ConversationID string         `json:"conversation_id"`
	User           string         `json:"user"`
}

// Send posts one message and returns the provider's reply unchanged.
func (c *ChatClient) Send(ctx context.Context, req models.ChatRequest) (json.RawMessage, error) {
	user := req.User
	if user == "" {
		user = "anonymous"
	}

	raw, err := do(ctx, c.http, call{
		upstream: "chat",
		method:   http.MethodPost,
		url:      c.baseURL + "/v1/chat-messages",
		headers:  map[string]string{"Authorization": "Bearer " + c.apiKey},
		body: chatMessage{
			Inputs:         map[string]any{},
			Query:          req.Query,
			ResponseMode:   "blocking",
			ConversationID: req.ConversationID,
			User:           user,
		},
		timeout: chatTimeout,
	})
	if err != nil {
		return nil, err
	}
	if !json.Valid(raw) {
		return nil, models.NewDecodeError("chat", errInvalidJSON)
	}
	return json.RawMessage(raw), nil
}
