package repository

import (
	"context"

	"mmuni/internal/models"
	"mmuni/internal/observability"
	"mmuni/internal/remote"
)

// UserPatch carries the profile fields a user may change. Nil fields are
// left untouched.
type UserPatch struct {
	Name           *string      `json:"user_name,omitempty"`
	Email          *string      `json:"user_email,omitempty"`
	MunicipalityID *string      `json:"user_mun,omitempty"`
	Role           *models.Role `json:"user_role,omitempty"`
}

// UserRepository defines operations on the `user` table.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.AppUser, error)
	Insert(ctx context.Context, u *models.AppUser) error
	Upsert(ctx context.Context, u *models.AppUser) error
	Update(ctx context.Context, id string, patch UserPatch) error
	Delete(ctx context.Context, id string) error
}

type userRepository struct {
	client *remote.Client
	log    *observability.RepoLogger
}

// NewUserRepository creates a new UserRepository
func NewUserRepository(client *remote.Client) UserRepository {
	return &userRepository{client: client, log: observability.NewRepoLogger("user")}
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*models.AppUser, error) {
	u, err := remote.Single[models.AppUser](ctx, r.client, remote.From("user").Eq("user_id", id))
	if err != nil {
		if !models.IsNotFound(err) {
			r.log.LogError(ctx, err, "get")
		}
		return nil, err
	}
	r.log.LogRead(ctx, map[string]any{"user_id": id})
	return u, nil
}

func (r *userRepository) Insert(ctx context.Context, u *models.AppUser) error {
	if err := r.client.Insert(ctx, "user", u); err != nil {
		r.log.LogError(ctx, err, "create")
		return err
	}
	r.log.LogCreate(ctx, map[string]any{"user_id": u.ID})
	return nil
}

func (r *userRepository) Upsert(ctx context.Context, u *models.AppUser) error {
	if err := r.client.Upsert(ctx, "user", u, "user_id"); err != nil {
		r.log.LogError(ctx, err, "upsert")
		return err
	}
	r.log.LogCreate(ctx, map[string]any{"user_id": u.ID, "upsert": true})
	return nil
}

func (r *userRepository) Update(ctx context.Context, id string, patch UserPatch) error {
	if err := r.client.Update(ctx, "user", "user_id", id, patch); err != nil {
		r.log.LogError(ctx, err, "update")
		return err
	}
	r.log.LogUpdate(ctx, map[string]any{"user_id": id})
	return nil
}

func (r *userRepository) Delete(ctx context.Context, id string) error {
	if err := r.client.Delete(ctx, "user", "user_id", id); err != nil {
		r.log.LogError(ctx, err, "delete")
		return err
	}
	r.log.LogDelete(ctx, map[string]any{"user_id": id})
	return nil
}
