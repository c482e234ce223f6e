package repository

import (
	"context"

	"mmuni/internal/models"
	"mmuni/internal/observability"
	"mmuni/internal/remote"
)

// ObjectRepository defines operations on the `obj` table.
type ObjectRepository interface {
	List(ctx context.Context, munID string, objType *models.ObjectType, sphere *models.Sphere) ([]models.ContentObject, error)
	News(ctx context.Context, munID string) ([]models.ContentObject, error)
	AllByMun(ctx context.Context, munID string) ([]models.ContentObject, error)
	GetByID(ctx context.Context, id string) (*models.ContentObject, error)
	Create(ctx context.Context, obj *models.ContentObject) error
	Update(ctx context.Context, obj *models.ContentObject) error
	Delete(ctx context.Context, id string) error
	SetReactions(ctx context.Context, id string, r models.Reactions) error
}

type objectRepository struct {
	client *remote.Client
	log    *observability.RepoLogger
}

// NewObjectRepository creates a new ObjectRepository
func NewObjectRepository(client *remote.Client) ObjectRepository {
	return &objectRepository{client: client, log: observability.NewRepoLogger("obj")}
}

func (r *objectRepository) List(
	ctx context.Context,
	munID string,
	objType *models.ObjectType,
	sphere *models.Sphere,
) ([]models.ContentObject, error) {
	q := remote.From("obj").Eq("obj_mun", munID)
	if objType != nil {
		q.Eq("obj_type", string(*objType))
	}
	if sphere != nil {
		q.Eq("obj_sphere", string(*sphere))
	}
	q.Order("obj_sort_order", true).Order("obj_date", false)
	return r.selectRows(ctx, q)
}

func (r *objectRepository) News(ctx context.Context, munID string) ([]models.ContentObject, error) {
	q := remote.From("obj").
		Eq("obj_mun", munID).
		Eq("obj_type", string(models.TypeNews)).
		Order("obj_date", false)
	return r.selectRows(ctx, q)
}

func (r *objectRepository) AllByMun(ctx context.Context, munID string) ([]models.ContentObject, error) {
	return r.selectRows(ctx, remote.From("obj").Eq("obj_mun", munID))
}

func (r *objectRepository) selectRows(ctx context.Context, q *remote.Query) ([]models.ContentObject, error) {
	rows, err := remote.Select[models.ContentObject](ctx, r.client, q)
	if err != nil {
		r.log.LogError(ctx, err, "list")
		return nil, err
	}
	r.log.LogRead(ctx, map[string]any{"count": len(rows)})
	return rows, nil
}

func (r *objectRepository) GetByID(ctx context.Context, id string) (*models.ContentObject, error) {
	return remote.Single[models.ContentObject](ctx, r.client, remote.From("obj").Eq("obj_id", id))
}

func (r *objectRepository) Create(ctx context.Context, obj *models.ContentObject) error {
	if err := r.client.Insert(ctx, "obj", obj); err != nil {
		r.log.LogError(ctx, err, "create")
		return err
	}
	r.log.LogCreate(ctx, map[string]any{"obj_id": obj.ID, "obj_mun": obj.MunicipalityID})
	return nil
}

// Update writes the editable fields only. The owning municipality, author
// and reaction sets are left as stored.
func (r *objectRepository) Update(ctx context.Context, obj *models.ContentObject) error {
	patch := map[string]any{
		"obj_type":        obj.Type,
		"obj_sphere":      obj.Sphere,
		"obj_title":       obj.Title,
		"obj_description": obj.Description,
		"obj_photo":       obj.Photo,
		"obj_coordinates": obj.Coordinates,
	}
	if err := r.client.Update(ctx, "obj", "obj_id", obj.ID, patch); err != nil {
		r.log.LogError(ctx, err, "update")
		return err
	}
	r.log.LogUpdate(ctx, map[string]any{"obj_id": obj.ID})
	return nil
}

func (r *objectRepository) Delete(ctx context.Context, id string) error {
	if err := r.client.Delete(ctx, "obj", "obj_id", id); err != nil {
		r.log.LogError(ctx, err, "delete")
		return err
	}
	r.log.LogDelete(ctx, map[string]any{"obj_id": id})
	return nil
}

// SetReactions writes all three reaction sets in one update.
func (r *objectRepository) SetReactions(ctx context.Context, id string, reactions models.Reactions) error {
	return r.client.Update(ctx, "obj", "obj_id", id, reactionPatch("obj", reactions))
}

func reactionPatch(prefix string, r models.Reactions) map[string]any {
	return map[string]any{
		prefix + "_likes":    nonNil(r.Likes),
		prefix + "_dislikes": nonNil(r.Dislikes),
		prefix + "_reports":  nonNil(r.Reports),
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
