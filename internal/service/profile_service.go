package service

import (
	"context"
	"strings"

	"mmuni/internal/appstate"
	"mmuni/internal/auth"
	"mmuni/internal/models"
	"mmuni/internal/querycache"
	"mmuni/internal/repository"
	"mmuni/internal/validation"
)

type ProfileService struct {
	users repository.UserRepository
	auth  auth.Provider
	store *appstate.Store
}

type SaveProfileInput struct {
	Name  string
	Email string
	// Activist requests the activist role. Only registered and activist
	// users can switch; other roles are kept as they are.
	Activist bool
	// Password, when set, replaces the account password.
	Password string
}

func NewProfileService(users repository.UserRepository, provider auth.Provider, store *appstate.Store) *ProfileService {
	return &ProfileService{users: users, auth: provider, store: store}
}

// NextRole applies the activist toggle to the current role.
func NextRole(current models.Role, activist bool) models.Role {
	switch current {
	case models.RoleRegistered, models.RoleActivist:
		if activist {
			return models.RoleActivist
		}
		return models.RoleRegistered
	}
	return current
}

// Save writes the signed-in user's profile and, when given, the new
// password. The profile row is linked to the current municipality.
func (s *ProfileService) Save(ctx context.Context, in SaveProfileInput) (*models.AppUser, querycache.Mutation, error) {
	snap := s.store.Snapshot()
	if snap.User == nil {
		return nil, querycache.Mutation{}, models.NewUnauthorizedError("sign in required")
	}
	name := strings.TrimSpace(in.Name)
	email := strings.TrimSpace(in.Email)
	if name == "" || email == "" {
		return nil, querycache.Mutation{}, models.NewValidationError("Name and email are required")
	}
	if err := validation.ValidateDisplayName(name); err != nil {
		return nil, querycache.Mutation{}, models.NewValidationError(err.Error())
	}
	if err := validation.ValidateEmail(email); err != nil {
		return nil, querycache.Mutation{}, models.NewValidationError(err.Error())
	}
	if in.Password != "" {
		if err := validation.ValidatePassword(in.Password); err != nil {
			return nil, querycache.Mutation{}, models.NewValidationError(err.Error())
		}
	}

	current := snap.User
	role := NextRole(current.Role, in.Activist)
	patch := repository.UserPatch{
		Name:           &name,
		Email:          &email,
		Role:           &role,
		MunicipalityID: snap.MunicipalityID,
	}
	if err := s.users.Update(ctx, current.ID, patch); err != nil {
		return nil, querycache.Mutation{}, err
	}

	updated := *current
	updated.Name = name
	updated.Email = email
	updated.Role = role
	if snap.MunicipalityID != nil {
		updated.MunicipalityID = snap.MunicipalityID
	}
	s.store.SetUser(&updated)

	if in.Password != "" {
		if err := s.auth.UpdatePassword(ctx, in.Password); err != nil {
			return &updated, querycache.Mutation{}, err
		}
	}
	return &updated, querycache.Mutation{Invalidate: []querycache.Key{querycache.User(current.ID)}}, nil
}
