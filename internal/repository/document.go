package repository

import (
	"context"

	"mmuni/internal/models"
	"mmuni/internal/observability"
	"mmuni/internal/remote"
)

// DocumentRepository defines operations on the `doc` table.
type DocumentRepository interface {
	ListByMun(ctx context.Context, munID string) ([]models.Document, error)
	Create(ctx context.Context, doc *models.Document) error
	Delete(ctx context.Context, id string) error
}

type documentRepository struct {
	client *remote.Client
	log    *observability.RepoLogger
}

// NewDocumentRepository creates a new DocumentRepository
func NewDocumentRepository(client *remote.Client) DocumentRepository {
	return &documentRepository{client: client, log: observability.NewRepoLogger("doc")}
}

func (r *documentRepository) ListByMun(ctx context.Context, munID string) ([]models.Document, error) {
	return remote.Select[models.Document](ctx, r.client,
		remote.From("doc").Eq("doc_mun", munID).Order("doc_date", false))
}

func (r *documentRepository) Create(ctx context.Context, doc *models.Document) error {
	if err := r.client.Insert(ctx, "doc", doc); err != nil {
		r.log.LogError(ctx, err, "create")
		return err
	}
	return nil
}

func (r *documentRepository) Delete(ctx context.Context, id string) error {
	return r.client.Delete(ctx, "doc", "doc_id", id)
}
