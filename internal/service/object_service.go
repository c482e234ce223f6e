package service

import (
	"context"
	"strings"

	"mmuni/internal/models"
	"mmuni/internal/querycache"
	"mmuni/internal/repository"
	"mmuni/internal/validation"
)

const maxTitleLen = 200

type ObjectService struct {
	objects repository.ObjectRepository
	deps
}

func NewObjectService(objects repository.ObjectRepository) *ObjectService {
	return &ObjectService{objects: objects, deps: defaultDeps()}
}

type SaveObjectInput struct {
	User           *models.AppUser
	MunicipalityID string
	Draft          models.ObjectDraft
	// Edit is the object being edited; nil creates a new one.
	Edit *models.ContentObject
}

func (s *ObjectService) List(ctx context.Context, munID string, filter models.ListFilter) ([]models.ContentObject, error) {
	if munID == "" {
		return nil, models.NewValidationError("Municipality is required")
	}
	return s.objects.List(ctx, munID, filter.Type, filter.Sphere)
}

// Save creates or updates an object. Every check runs before the write, so
// a rejected save never touches the backend.
func (s *ObjectService) Save(ctx context.Context, in SaveObjectInput) (*models.ContentObject, querycache.Mutation, error) {
	if err := requireInteract(in.User); err != nil {
		return nil, querycache.Mutation{}, err
	}

	d := in.Draft
	d.Title = strings.TrimSpace(d.Title)
	d.Description = strings.TrimSpace(d.Description)
	d.Photo = strings.TrimSpace(d.Photo)
	if d.Sphere == "" {
		d.Sphere = models.SphereGovernance
	}
	if d.Title == "" || !d.Type.Valid() {
		return nil, querycache.Mutation{}, models.NewValidationError("Title and type are required")
	}
	if len(d.Title) > maxTitleLen {
		return nil, querycache.Mutation{}, models.NewValidationError("Title too long")
	}
	if !d.Sphere.Valid() {
		return nil, querycache.Mutation{}, models.NewValidationError("Unknown sphere")
	}
	if d.Photo != "" {
		if err := validation.ValidateHTTPURL(d.Photo); err != nil {
			return nil, querycache.Mutation{}, models.NewValidationError(err.Error())
		}
	}
	if d.Coordinates != nil {
		if err := d.Coordinates.Validate(); err != nil {
			return nil, querycache.Mutation{}, models.NewValidationError(err.Error())
		}
	}
	if !in.User.CanCreate(d.Type) {
		return nil, querycache.Mutation{}, models.NewForbiddenError("Your role cannot publish this type")
	}

	if in.Edit != nil {
		if !in.User.CanEdit(in.Edit.AuthorID) {
			return nil, querycache.Mutation{}, models.NewForbiddenError("Only the author or a moderator can edit this")
		}
		updated := *in.Edit
		applyDraft(&updated, d)
		if err := s.objects.Update(ctx, &updated); err != nil {
			return nil, querycache.Mutation{}, err
		}
		return &updated, objectMutation(updated.MunicipalityID), nil
	}

	if in.MunicipalityID == "" {
		return nil, querycache.Mutation{}, models.NewValidationError("Municipality is required")
	}
	author := in.User.ID
	obj := &models.ContentObject{
		ID:             s.newID(),
		MunicipalityID: in.MunicipalityID,
		Date:           s.now().UTC(),
		AuthorID:       &author,
		Likes:          []string{},
		Dislikes:       []string{},
		Reports:        []string{},
	}
	applyDraft(obj, d)
	if err := s.objects.Create(ctx, obj); err != nil {
		return nil, querycache.Mutation{}, err
	}
	return obj, objectMutation(obj.MunicipalityID), nil
}

func applyDraft(obj *models.ContentObject, d models.ObjectDraft) {
	obj.Type = d.Type
	obj.Sphere = d.Sphere
	obj.Title = d.Title
	obj.Description = optional(d.Description)
	obj.Photo = optional(d.Photo)
	obj.Coordinates = d.Coordinates
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// ToggleLike writes likes and dislikes together in one update.
func (s *ObjectService) ToggleLike(ctx context.Context, user *models.AppUser, obj *models.ContentObject) (models.Reactions, querycache.Mutation, error) {
	return s.react(ctx, user, obj, func(r models.Reactions) models.Reactions { return r.ToggleLike(user.ID) })
}

func (s *ObjectService) ToggleDislike(ctx context.Context, user *models.AppUser, obj *models.ContentObject) (models.Reactions, querycache.Mutation, error) {
	return s.react(ctx, user, obj, func(r models.Reactions) models.Reactions { return r.ToggleDislike(user.ID) })
}

func (s *ObjectService) react(
	ctx context.Context,
	user *models.AppUser,
	obj *models.ContentObject,
	apply func(models.Reactions) models.Reactions,
) (models.Reactions, querycache.Mutation, error) {
	if err := requireInteract(user); err != nil {
		return obj.Reactions(), querycache.Mutation{}, err
	}
	next := apply(obj.Reactions())
	if err := s.objects.SetReactions(ctx, obj.ID, next); err != nil {
		return obj.Reactions(), querycache.Mutation{}, err
	}
	return next, objectMutation(obj.MunicipalityID), nil
}

// Report adds the user to the object's reporters. Reporting twice is a
// no-op and issues no write.
func (s *ObjectService) Report(ctx context.Context, user *models.AppUser, obj *models.ContentObject) (bool, querycache.Mutation, error) {
	if err := requireInteract(user); err != nil {
		return false, querycache.Mutation{}, err
	}
	next, changed := obj.Reactions().Report(user.ID)
	if !changed {
		return false, querycache.Mutation{}, nil
	}
	if err := s.objects.SetReactions(ctx, obj.ID, next); err != nil {
		return false, querycache.Mutation{}, err
	}
	return true, objectMutation(obj.MunicipalityID), nil
}

func (s *ObjectService) Delete(ctx context.Context, user *models.AppUser, obj *models.ContentObject) (querycache.Mutation, error) {
	if err := requireInteract(user); err != nil {
		return querycache.Mutation{}, err
	}
	if !user.CanEdit(obj.AuthorID) {
		return querycache.Mutation{}, models.NewForbiddenError("Only the author or a moderator can delete this")
	}
	if err := s.objects.Delete(ctx, obj.ID); err != nil {
		return querycache.Mutation{}, err
	}
	return objectMutation(obj.MunicipalityID), nil
}
