package views

import (
	"context"
	"sync"

	"mmuni/internal/router"
	"mmuni/internal/service"
)

// ChatView is the assistant panel. The conversation lives as long as the
// view.
type ChatView struct {
	d *Deps

	mu   sync.Mutex
	conv *service.Conversation
}

func NewChatView(d *Deps) *ChatView {
	return &ChatView{d: d}
}

func (v *ChatView) conversation(ctx context.Context) *service.Conversation {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.conv == nil {
		var uid string
		if u := v.d.user(); u != nil {
			uid = u.ID
		}
		v.conv = v.d.ChatSvc.Start(ctx, uid)
	}
	return v.conv
}

// Messages starts the conversation on first use and returns its history.
func (v *ChatView) Messages(ctx context.Context) []service.ChatMessage {
	return v.conversation(ctx).Messages()
}

func (v *ChatView) Send(ctx context.Context, text string) (service.ChatMessage, error) {
	return v.d.ChatSvc.Send(ctx, v.conversation(ctx), text)
}

// Restart drops the conversation; the next message opens a new one.
func (v *ChatView) Restart() {
	v.mu.Lock()
	v.conv = nil
	v.mu.Unlock()
}

func (v *ChatView) Dismiss() {
	v.d.Router.Dismiss(router.PanelChat)
}
