// Package service implements the client's domain operations. Every
// operation validates its input and the caller's role before issuing a
// remote call, and every write returns the cache keys it made stale.
package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"mmuni/internal/models"
	"mmuni/internal/querycache"
)

// ProfileBackend is the companion backend's privileged profile surface.
type ProfileBackend interface {
	UpdateProfile(ctx context.Context, update models.ProfileUpdate) error
	UserExists(ctx context.Context, id string) (bool, error)
}

// ChatBackend is the companion backend's chat proxy.
type ChatBackend interface {
	Chat(ctx context.Context, req models.ChatRequest) (*models.ChatResponse, error)
}

// Clock and id generation are injectable for tests.
type deps struct {
	now   func() time.Time
	newID func() string
}

func defaultDeps() deps {
	return deps{now: time.Now, newID: uuid.NewString}
}

func objectMutation(munID string) querycache.Mutation {
	return querycache.Mutation{Invalidate: querycache.MunicipalityContent(munID)}
}

func requireInteract(user *models.AppUser) error {
	if user == nil {
		return models.NewUnauthorizedError("sign in required")
	}
	if !user.CanInteract() {
		return models.NewForbiddenError("guests cannot do this")
	}
	return nil
}
