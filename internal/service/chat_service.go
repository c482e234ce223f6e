package service

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"mmuni/internal/models"
	"mmuni/internal/observability"
	"mmuni/internal/repository"
)

type ChatRole string

const (
	ChatUser      ChatRole = "user"
	ChatAssistant ChatRole = "assistant"
)

type ChatMessage struct {
	ID   string
	Role ChatRole
	Text string
	At   time.Time
}

// Conversation is one chat thread. The conversation id is assigned by the
// assistant on the first reply and sent back on every later message.
type Conversation struct {
	mu       sync.Mutex
	id       string
	user     string
	messages []ChatMessage
}

func (c *Conversation) ID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

func (c *Conversation) Messages() []ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ChatMessage(nil), c.messages...)
}

func (c *Conversation) append(m ChatMessage) {
	c.mu.Lock()
	c.messages = append(c.messages, m)
	c.mu.Unlock()
}

type ChatService struct {
	backend ChatBackend
	configs repository.ConfigRepository
	// connectionError is the assistant text shown when the backend fails.
	connectionError func() string
	deps
}

func NewChatService(backend ChatBackend, configs repository.ConfigRepository, connectionError func() string) *ChatService {
	if connectionError == nil {
		connectionError = func() string { return "Connection error" }
	}
	return &ChatService{
		backend:         backend,
		configs:         configs,
		connectionError: connectionError,
		deps:            defaultDeps(),
	}
}

// Start opens a conversation seeded with the configured greeting.
func (s *ChatService) Start(ctx context.Context, userID string) *Conversation {
	if userID == "" {
		userID = "anonymous"
	}
	conv := &Conversation{user: userID}
	greeting, err := s.configs.Get(ctx, models.ConfigStartMessage)
	if err != nil {
		observability.Logger.DebugContext(ctx, "no chat greeting", slog.String("error", err.Error()))
	}
	if greeting = strings.TrimSpace(greeting); greeting != "" {
		conv.append(ChatMessage{ID: s.newID(), Role: ChatAssistant, Text: greeting, At: s.now()})
	}
	return conv
}

// Send posts text to the assistant and returns the reply. Backend failures
// come back as an assistant message rather than an error.
func (s *ChatService) Send(ctx context.Context, conv *Conversation, text string) (ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return ChatMessage{}, models.NewValidationError("Message is empty")
	}
	conv.append(ChatMessage{ID: s.newID(), Role: ChatUser, Text: text, At: s.now()})

	resp, err := s.backend.Chat(ctx, models.ChatRequest{
		Query:          text,
		ConversationID: conv.ID(),
		User:           conv.user,
	})
	var reply ChatMessage
	if err != nil {
		observability.Logger.WarnContext(ctx, "chat request failed", slog.String("error", err.Error()))
		reply = ChatMessage{ID: s.newID(), Role: ChatAssistant, Text: s.connectionError(), At: s.now()}
	} else {
		if resp.ConversationID != "" {
			conv.mu.Lock()
			conv.id = resp.ConversationID
			conv.mu.Unlock()
		}
		reply = ChatMessage{ID: s.newID(), Role: ChatAssistant, Text: resp.Answer, At: s.now()}
	}
	conv.append(reply)
	return reply, nil
}
