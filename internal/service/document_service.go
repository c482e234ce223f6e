package service

import (
	"context"
	"strings"

	"mmuni/internal/models"
	"mmuni/internal/querycache"
	"mmuni/internal/repository"
	"mmuni/internal/validation"
)

// DocumentService manages a municipality's published documents. Only
// moderators publish or remove them.
type DocumentService struct {
	docs repository.DocumentRepository
	deps
}

func NewDocumentService(docs repository.DocumentRepository) *DocumentService {
	return &DocumentService{docs: docs, deps: defaultDeps()}
}

func docMutation(munID string) querycache.Mutation {
	return querycache.Mutation{Invalidate: []querycache.Key{querycache.Docs(munID)}}
}

func (s *DocumentService) List(ctx context.Context, munID string) ([]models.Document, error) {
	if munID == "" {
		return nil, models.NewValidationError("Municipality is required")
	}
	return s.docs.ListByMun(ctx, munID)
}

func (s *DocumentService) Add(ctx context.Context, user *models.AppUser, munID, title, url string) (*models.Document, querycache.Mutation, error) {
	if !user.CanModerate() {
		return nil, querycache.Mutation{}, models.NewForbiddenError("Only moderators can publish documents")
	}
	title = strings.TrimSpace(title)
	url = strings.TrimSpace(url)
	if title == "" || url == "" || munID == "" {
		return nil, querycache.Mutation{}, models.NewValidationError("Title and link are required")
	}
	if err := validation.ValidateHTTPURL(url); err != nil {
		return nil, querycache.Mutation{}, models.NewValidationError(err.Error())
	}
	doc := &models.Document{
		ID:             s.newID(),
		MunicipalityID: munID,
		AuthorID:       user.ID,
		Title:          title,
		URL:            url,
		Date:           s.now().UTC(),
	}
	if err := s.docs.Create(ctx, doc); err != nil {
		return nil, querycache.Mutation{}, err
	}
	return doc, docMutation(munID), nil
}

func (s *DocumentService) Delete(ctx context.Context, user *models.AppUser, doc *models.Document) (querycache.Mutation, error) {
	if !user.CanModerate() {
		return querycache.Mutation{}, models.NewForbiddenError("Only moderators can remove documents")
	}
	if err := s.docs.Delete(ctx, doc.ID); err != nil {
		return querycache.Mutation{}, err
	}
	return docMutation(doc.MunicipalityID), nil
}
