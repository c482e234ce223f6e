package service

import (
	"context"
	"strings"
	"unicode/utf8"

	"mmuni/internal/models"
	"mmuni/internal/querycache"
	"mmuni/internal/repository"
)

const maxCommentLen = 2000

type CommentService struct {
	comments repository.CommentRepository
	deps
}

func NewCommentService(comments repository.CommentRepository) *CommentService {
	return &CommentService{comments: comments, deps: defaultDeps()}
}

func commentMutation(objID string) querycache.Mutation {
	return querycache.Mutation{Invalidate: []querycache.Key{querycache.Comments(objID)}}
}

func (s *CommentService) List(ctx context.Context, objID string) ([]models.Comment, error) {
	return s.comments.ListByObject(ctx, objID)
}

func (s *CommentService) Add(ctx context.Context, user *models.AppUser, objID, text string) (*models.Comment, querycache.Mutation, error) {
	if err := requireInteract(user); err != nil {
		return nil, querycache.Mutation{}, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, querycache.Mutation{}, models.NewValidationError("Comment is empty")
	}
	if utf8.RuneCountInString(text) > maxCommentLen {
		return nil, querycache.Mutation{}, models.NewValidationError("Comment too long (max 2000 characters)")
	}
	if objID == "" {
		return nil, querycache.Mutation{}, models.NewValidationError("Object is required")
	}

	c := &models.Comment{
		ID:       s.newID(),
		ObjectID: objID,
		AuthorID: user.ID,
		Text:     text,
		Date:     s.now().UTC(),
		Likes:    []string{},
		Dislikes: []string{},
		Reports:  []string{},
	}
	if err := s.comments.Create(ctx, c); err != nil {
		return nil, querycache.Mutation{}, err
	}
	return c, commentMutation(objID), nil
}

func (s *CommentService) Delete(ctx context.Context, user *models.AppUser, c *models.Comment) (querycache.Mutation, error) {
	if err := requireInteract(user); err != nil {
		return querycache.Mutation{}, err
	}
	if !user.CanEdit(&c.AuthorID) {
		return querycache.Mutation{}, models.NewForbiddenError("Only the author or a moderator can delete this")
	}
	if err := s.comments.Delete(ctx, c.ID); err != nil {
		return querycache.Mutation{}, err
	}
	return commentMutation(c.ObjectID), nil
}

func (s *CommentService) Report(ctx context.Context, user *models.AppUser, c *models.Comment) (bool, querycache.Mutation, error) {
	if err := requireInteract(user); err != nil {
		return false, querycache.Mutation{}, err
	}
	next, changed := c.Reactions().Report(user.ID)
	if !changed {
		return false, querycache.Mutation{}, nil
	}
	if err := s.comments.SetReactions(ctx, c.ID, next); err != nil {
		return false, querycache.Mutation{}, err
	}
	return true, commentMutation(c.ObjectID), nil
}
