package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"

	"mmuni/internal/appstate"
	"mmuni/internal/auth"
	"mmuni/internal/models"
	"mmuni/internal/observability"
	"mmuni/internal/repository"
	"mmuni/internal/validation"
)

// errProfileNotReady marks a confirmation attempt that found no profile row.
var errProfileNotReady = errors.New("profile row not visible yet")

// ConfirmOptions bound the read-after-write loop run after sign-up.
type ConfirmOptions struct {
	Attempts int
	BackOff  func() backoff.BackOff
}

// SessionService signs users in and out and keeps the app state's user
// and municipality in step with the auth session.
type SessionService struct {
	auth    auth.Provider
	users   repository.UserRepository
	muns    repository.MunicipalityRepository
	backend ProfileBackend
	store   *appstate.Store
	confirm ConfirmOptions
	logger  *slog.Logger

	// pending counts sign-ins started by Login or Register. Their
	// EventSignedIn is delivered while the call is in flight and the
	// caller loads the profile itself.
	pending atomic.Int32
}

// NewSessionService creates a SessionService.
func NewSessionService(
	provider auth.Provider,
	users repository.UserRepository,
	muns repository.MunicipalityRepository,
	backend ProfileBackend,
	store *appstate.Store,
	confirm ConfirmOptions,
) *SessionService {
	if confirm.Attempts <= 0 {
		confirm.Attempts = 5
	}
	if confirm.BackOff == nil {
		confirm.BackOff = func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 250 * time.Millisecond
			b.MaxInterval = 2 * time.Second
			return b
		}
	}
	return &SessionService{
		auth:    provider,
		users:   users,
		muns:    muns,
		backend: backend,
		store:   store,
		confirm: confirm,
		logger:  observability.Logger,
	}
}

// Login signs in and loads the profile. The user stays signed in with a
// fallback profile when the profile row cannot be read; a missing row is
// created from the fallback.
func (s *SessionService) Login(ctx context.Context, email, password string) (*models.AppUser, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, models.NewValidationError("Email and password are required")
	}

	s.pending.Add(1)
	sess, err := s.auth.SignIn(ctx, email, password)
	s.pending.Add(-1)
	if err != nil {
		if models.HasCode(err, models.CodeUnauth) {
			return nil, &models.AppError{
				Code:    models.CodeUnauth,
				Message: "Invalid email or password. If you registered recently, please check your email for verification link.",
				Err:     err,
			}
		}
		return nil, err
	}

	u, err := s.loadProfile(ctx, sess.User)
	if err != nil {
		fallback := models.FallbackUser(sess.User.ID, sess.User.Email)
		s.store.SetUser(fallback)
		if models.IsNotFound(err) {
			if uerr := s.users.Upsert(ctx, fallback); uerr != nil {
				s.logger.WarnContext(ctx, "failed to create missing profile", slog.String("error", uerr.Error()))
			}
		} else {
			s.logger.WarnContext(ctx, "profile unavailable, using fallback", slog.String("error", err.Error()))
		}
		return fallback, nil
	}
	return u, nil
}

// loadProfile reads the user row and, when it names one, the municipality,
// and publishes both to the app state.
func (s *SessionService) loadProfile(ctx context.Context, ident auth.Identity) (*models.AppUser, error) {
	ctx = observability.WithUserID(ctx, ident.ID)
	u, err := s.users.GetByID(ctx, ident.ID)
	if err != nil {
		return nil, err
	}
	s.store.SetUser(u)

	if u.MunicipalityID != nil && *u.MunicipalityID != "" {
		mun, err := s.muns.GetByID(ctx, *u.MunicipalityID)
		if err != nil {
			s.logger.WarnContext(ctx, "profile municipality unavailable",
				slog.String("mun_id", *u.MunicipalityID),
				slog.String("error", err.Error()),
			)
		} else {
			s.store.SetMunicipality(mun)
		}
	}
	return u, nil
}

// RegisterInput is the sign-up form.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

// Register creates the account and writes the profile through the
// privileged backend. The write is only attempted once the profile row
// is visible, and the loop gives up after the configured attempts.
func (s *SessionService) Register(ctx context.Context, in RegisterInput) (*models.AppUser, error) {
	name := strings.TrimSpace(in.Name)
	email := strings.TrimSpace(in.Email)
	if name == "" || email == "" {
		return nil, models.NewValidationError("Name and email are required")
	}
	if in.Password == "" {
		return nil, models.NewValidationError("Password required for registration")
	}
	if err := validation.ValidateEmail(email); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if err := validation.ValidatePassword(in.Password); err != nil {
		return nil, models.NewValidationError(err.Error())
	}

	s.pending.Add(1)
	ident, sess, err := s.auth.SignUp(ctx, email, in.Password)
	s.pending.Add(-1)
	if err != nil {
		return nil, err
	}

	snap := s.store.Snapshot()
	role := models.RoleRegistered
	premium := false
	newUser := &models.AppUser{
		ID:             ident.ID,
		Name:           name,
		Email:          email,
		MunicipalityID: snap.MunicipalityID,
		Role:           role,
		Premium:        premium,
	}

	update := models.ProfileUpdate{
		UserID:         ident.ID,
		Name:           &name,
		Email:          &email,
		MunicipalityID: snap.MunicipalityID,
		Role:           &role,
		Premium:        &premium,
	}
	if err := s.writeConfirmed(ctx, update); err != nil {
		if sess == nil {
			return nil, err
		}
		// With a live session the row can be written under the user's own
		// credentials instead.
		s.logger.WarnContext(ctx, "privileged profile write not confirmed, upserting directly",
			slog.String("error", err.Error()))
		if uerr := s.users.Upsert(ctx, newUser); uerr != nil {
			return nil, uerr
		}
	}

	s.store.SetUser(newUser)
	return newUser, nil
}

func (s *SessionService) writeConfirmed(ctx context.Context, update models.ProfileUpdate) error {
	op := func() (struct{}, error) {
		exists, err := s.backend.UserExists(ctx, update.UserID)
		if err != nil {
			return struct{}{}, err
		}
		if !exists {
			return struct{}{}, errProfileNotReady
		}
		if err := s.backend.UpdateProfile(ctx, update); err != nil {
			if models.HasCode(err, models.CodeValidation) {
				return struct{}{}, backoff.Permanent(err)
			}
			return struct{}{}, err
		}
		return struct{}{}, nil
	}
	_, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(s.confirm.BackOff()),
		backoff.WithMaxTries(uint(s.confirm.Attempts)),
	)
	if err != nil {
		return models.NewRemoteError("profile write not confirmed", err)
	}
	return nil
}

// RestoreSession resumes a stored session on start and loads its profile.
func (s *SessionService) RestoreSession(ctx context.Context) (*models.AppUser, error) {
	sess, err := s.auth.Restore(ctx)
	if err != nil || sess == nil {
		return nil, err
	}
	return s.loadProfile(ctx, sess.User)
}

// HandleAuthEvent applies an auth state change to the app state.
func (s *SessionService) HandleAuthEvent(ctx context.Context, e auth.Event) {
	switch e.Type {
	case auth.EventSignedIn:
		if e.Session == nil || s.pending.Load() > 0 {
			return
		}
		if _, err := s.loadProfile(ctx, e.Session.User); err != nil && !models.IsNotFound(err) {
			s.logger.WarnContext(ctx, "failed to load profile after sign-in", slog.String("error", err.Error()))
		}
	case auth.EventSignedOut:
		s.store.SetUser(nil)
	}
}

// Logout ends the session and returns the app to municipality selection.
// A failed remote sign-out still clears local state.
func (s *SessionService) Logout(ctx context.Context) {
	if err := s.auth.SignOut(ctx); err != nil {
		s.logger.WarnContext(ctx, "sign-out failed", slog.String("error", err.Error()))
	}
	s.store.Logout()
}

// DeleteAccount removes the profile row and logs out. Nothing is cleared
// when the delete fails.
func (s *SessionService) DeleteAccount(ctx context.Context) error {
	user := s.store.Snapshot().User
	if user != nil {
		if err := s.users.Delete(ctx, user.ID); err != nil {
			return err
		}
	}
	s.Logout(ctx)
	return nil
}
