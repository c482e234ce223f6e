package repository

import (
	"context"

	"mmuni/internal/models"
	"mmuni/internal/observability"
	"mmuni/internal/remote"
)

// CommentRepository defines operations on the `comm` table.
type CommentRepository interface {
	ListByObject(ctx context.Context, objID string) ([]models.Comment, error)
	Create(ctx context.Context, comment *models.Comment) error
	Delete(ctx context.Context, id string) error
	SetReactions(ctx context.Context, id string, r models.Reactions) error
}

type commentRepository struct {
	client *remote.Client
	log    *observability.RepoLogger
}

// NewCommentRepository creates a new CommentRepository
func NewCommentRepository(client *remote.Client) CommentRepository {
	return &commentRepository{client: client, log: observability.NewRepoLogger("comm")}
}

func (r *commentRepository) ListByObject(ctx context.Context, objID string) ([]models.Comment, error) {
	rows, err := remote.Select[models.Comment](ctx, r.client,
		remote.From("comm").Eq("comm_obj", objID).Order("comm_date", false))
	if err != nil {
		r.log.LogError(ctx, err, "list")
		return nil, err
	}
	return rows, nil
}

func (r *commentRepository) Create(ctx context.Context, comment *models.Comment) error {
	if err := r.client.Insert(ctx, "comm", comment); err != nil {
		r.log.LogError(ctx, err, "create")
		return err
	}
	r.log.LogCreate(ctx, map[string]any{"comm_id": comment.ID, "comm_obj": comment.ObjectID})
	return nil
}

func (r *commentRepository) Delete(ctx context.Context, id string) error {
	if err := r.client.Delete(ctx, "comm", "comm_id", id); err != nil {
		r.log.LogError(ctx, err, "delete")
		return err
	}
	return nil
}

func (r *commentRepository) SetReactions(ctx context.Context, id string, reactions models.Reactions) error {
	return r.client.Update(ctx, "comm", "comm_id", id, reactionPatch("comm", reactions))
}
