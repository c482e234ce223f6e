package service

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mmuni/internal/appstate"
	"mmuni/internal/auth"
	"mmuni/internal/models"
	"mmuni/internal/repository"
	"mmuni/internal/storage"
)

// objectRepoStub is a stub for repository.ObjectRepository.
type objectRepoStub struct {
	listFn         func(context.Context, string, *models.ObjectType, *models.Sphere) ([]models.ContentObject, error)
	createFn       func(context.Context, *models.ContentObject) error
	updateFn       func(context.Context, *models.ContentObject) error
	deleteFn       func(context.Context, string) error
	setReactionsFn func(context.Context, string, models.Reactions) error
}

func (s *objectRepoStub) List(ctx context.Context, mun string, t *models.ObjectType, sp *models.Sphere) ([]models.ContentObject, error) {
	return s.listFn(ctx, mun, t, sp)
}
func (s *objectRepoStub) News(context.Context, string) ([]models.ContentObject, error) {
	return nil, nil
}
func (s *objectRepoStub) AllByMun(context.Context, string) ([]models.ContentObject, error) {
	return nil, nil
}
func (s *objectRepoStub) GetByID(_ context.Context, id string) (*models.ContentObject, error) {
	return nil, models.NewNotFoundError("Object", id)
}
func (s *objectRepoStub) Create(ctx context.Context, obj *models.ContentObject) error {
	return s.createFn(ctx, obj)
}
func (s *objectRepoStub) Update(ctx context.Context, obj *models.ContentObject) error {
	return s.updateFn(ctx, obj)
}
func (s *objectRepoStub) Delete(ctx context.Context, id string) error {
	return s.deleteFn(ctx, id)
}
func (s *objectRepoStub) SetReactions(ctx context.Context, id string, r models.Reactions) error {
	return s.setReactionsFn(ctx, id, r)
}

func noopObjectRepo() *objectRepoStub {
	return &objectRepoStub{
		listFn: func(context.Context, string, *models.ObjectType, *models.Sphere) ([]models.ContentObject, error) {
			return nil, nil
		},
		createFn:       func(context.Context, *models.ContentObject) error { return nil },
		updateFn:       func(context.Context, *models.ContentObject) error { return nil },
		deleteFn:       func(context.Context, string) error { return nil },
		setReactionsFn: func(context.Context, string, models.Reactions) error { return nil },
	}
}

// commentRepoStub is a stub for repository.CommentRepository.
type commentRepoStub struct {
	listFn         func(context.Context, string) ([]models.Comment, error)
	createFn       func(context.Context, *models.Comment) error
	deleteFn       func(context.Context, string) error
	setReactionsFn func(context.Context, string, models.Reactions) error
}

func (s *commentRepoStub) ListByObject(ctx context.Context, objID string) ([]models.Comment, error) {
	return s.listFn(ctx, objID)
}
func (s *commentRepoStub) Create(ctx context.Context, c *models.Comment) error {
	return s.createFn(ctx, c)
}
func (s *commentRepoStub) Delete(ctx context.Context, id string) error {
	return s.deleteFn(ctx, id)
}
func (s *commentRepoStub) SetReactions(ctx context.Context, id string, r models.Reactions) error {
	return s.setReactionsFn(ctx, id, r)
}

func noopCommentRepo() *commentRepoStub {
	return &commentRepoStub{
		listFn:         func(context.Context, string) ([]models.Comment, error) { return nil, nil },
		createFn:       func(context.Context, *models.Comment) error { return nil },
		deleteFn:       func(context.Context, string) error { return nil },
		setReactionsFn: func(context.Context, string, models.Reactions) error { return nil },
	}
}

// userRepoStub is a stub for repository.UserRepository.
type userRepoStub struct {
	getByIDFn func(context.Context, string) (*models.AppUser, error)
	insertFn  func(context.Context, *models.AppUser) error
	upsertFn  func(context.Context, *models.AppUser) error
	updateFn  func(context.Context, string, repository.UserPatch) error
	deleteFn  func(context.Context, string) error
}

func (s *userRepoStub) GetByID(ctx context.Context, id string) (*models.AppUser, error) {
	return s.getByIDFn(ctx, id)
}
func (s *userRepoStub) Insert(ctx context.Context, u *models.AppUser) error {
	return s.insertFn(ctx, u)
}
func (s *userRepoStub) Upsert(ctx context.Context, u *models.AppUser) error {
	return s.upsertFn(ctx, u)
}
func (s *userRepoStub) Update(ctx context.Context, id string, p repository.UserPatch) error {
	return s.updateFn(ctx, id, p)
}
func (s *userRepoStub) Delete(ctx context.Context, id string) error {
	return s.deleteFn(ctx, id)
}

func noopUserRepo() *userRepoStub {
	return &userRepoStub{
		getByIDFn: func(_ context.Context, id string) (*models.AppUser, error) {
			return nil, models.NewNotFoundError("User", id)
		},
		insertFn: func(context.Context, *models.AppUser) error { return nil },
		upsertFn: func(context.Context, *models.AppUser) error { return nil },
		updateFn: func(context.Context, string, repository.UserPatch) error { return nil },
		deleteFn: func(context.Context, string) error { return nil },
	}
}

// munRepoStub is a stub for repository.MunicipalityRepository.
type munRepoStub struct {
	listFn    func(context.Context) ([]models.Municipality, error)
	getByIDFn func(context.Context, string) (*models.Municipality, error)
}

func (s *munRepoStub) List(ctx context.Context) ([]models.Municipality, error) { return s.listFn(ctx) }
func (s *munRepoStub) GetByID(ctx context.Context, id string) (*models.Municipality, error) {
	return s.getByIDFn(ctx, id)
}

func noopMunRepo() *munRepoStub {
	return &munRepoStub{
		listFn: func(context.Context) ([]models.Municipality, error) { return nil, nil },
		getByIDFn: func(_ context.Context, id string) (*models.Municipality, error) {
			return nil, models.NewNotFoundError("Municipality", id)
		},
	}
}

// configRepoStub serves config values from a map.
type configRepoStub map[string]string

func (s configRepoStub) All(context.Context) ([]models.ConfigEntry, error) {
	var out []models.ConfigEntry
	for k, v := range s {
		out = append(out, models.ConfigEntry{Key: k, Value: v})
	}
	return out, nil
}
func (s configRepoStub) Get(_ context.Context, key string) (string, error) {
	v, ok := s[key]
	if !ok {
		return "", models.NewNotFoundError("Config", key)
	}
	return v, nil
}

// docRepoStub is a stub for repository.DocumentRepository.
type docRepoStub struct {
	createFn func(context.Context, *models.Document) error
	deleteFn func(context.Context, string) error
}

func (s *docRepoStub) ListByMun(context.Context, string) ([]models.Document, error) { return nil, nil }
func (s *docRepoStub) Create(ctx context.Context, d *models.Document) error {
	return s.createFn(ctx, d)
}
func (s *docRepoStub) Delete(ctx context.Context, id string) error { return s.deleteFn(ctx, id) }

func noopDocRepo() *docRepoStub {
	return &docRepoStub{
		createFn: func(context.Context, *models.Document) error { return nil },
		deleteFn: func(context.Context, string) error { return nil },
	}
}

// authStub is a stub for auth.Provider.
type authStub struct {
	signInFn         func(context.Context, string, string) (*auth.Session, error)
	signUpFn         func(context.Context, string, string) (*auth.Identity, *auth.Session, error)
	signOutFn        func(context.Context) error
	restoreFn        func(context.Context) (*auth.Session, error)
	updatePasswordFn func(context.Context, string) error
	listeners        []func(auth.Event)
}

func (s *authStub) SignIn(ctx context.Context, email, pw string) (*auth.Session, error) {
	return s.signInFn(ctx, email, pw)
}
func (s *authStub) SignUp(ctx context.Context, email, pw string) (*auth.Identity, *auth.Session, error) {
	return s.signUpFn(ctx, email, pw)
}
func (s *authStub) SignOut(ctx context.Context) error                  { return s.signOutFn(ctx) }
func (s *authStub) Restore(ctx context.Context) (*auth.Session, error) { return s.restoreFn(ctx) }
func (s *authStub) UpdatePassword(ctx context.Context, pw string) error {
	return s.updatePasswordFn(ctx, pw)
}
func (s *authStub) Current() *auth.Session                      { return nil }
func (s *authStub) AccessToken(context.Context) (string, error) { return "", nil }

func (s *authStub) Subscribe(fn func(auth.Event)) func() {
	s.listeners = append(s.listeners, fn)
	return func() {}
}

func (s *authStub) emit(e auth.Event) {
	for _, fn := range s.listeners {
		fn(e)
	}
}

func noopAuth() *authStub {
	return &authStub{
		signInFn: func(_ context.Context, email, _ string) (*auth.Session, error) {
			return &auth.Session{AccessToken: "tok", User: auth.Identity{ID: "u1", Email: email}}, nil
		},
		signUpFn: func(_ context.Context, email, _ string) (*auth.Identity, *auth.Session, error) {
			return &auth.Identity{ID: "new-user", Email: email}, nil, nil
		},
		signOutFn:        func(context.Context) error { return nil },
		restoreFn:        func(context.Context) (*auth.Session, error) { return nil, nil },
		updatePasswordFn: func(context.Context, string) error { return nil },
	}
}

// backendStub is a stub for ProfileBackend and ChatBackend.
type backendStub struct {
	mu       sync.Mutex
	existsFn func(context.Context, string) (bool, error)
	updateFn func(context.Context, models.ProfileUpdate) error
	chatFn   func(context.Context, models.ChatRequest) (*models.ChatResponse, error)
	updates  []models.ProfileUpdate
	chats    []models.ChatRequest
}

func (s *backendStub) UserExists(ctx context.Context, id string) (bool, error) {
	return s.existsFn(ctx, id)
}
func (s *backendStub) UpdateProfile(ctx context.Context, u models.ProfileUpdate) error {
	s.mu.Lock()
	s.updates = append(s.updates, u)
	s.mu.Unlock()
	return s.updateFn(ctx, u)
}
func (s *backendStub) Chat(ctx context.Context, req models.ChatRequest) (*models.ChatResponse, error) {
	s.mu.Lock()
	s.chats = append(s.chats, req)
	s.mu.Unlock()
	return s.chatFn(ctx, req)
}

func noopBackend() *backendStub {
	return &backendStub{
		existsFn: func(context.Context, string) (bool, error) { return true, nil },
		updateFn: func(context.Context, models.ProfileUpdate) error { return nil },
		chatFn: func(context.Context, models.ChatRequest) (*models.ChatResponse, error) {
			return &models.ChatResponse{Answer: "ok"}, nil
		},
	}
}

func newTestStore(t *testing.T) *appstate.Store {
	t.Helper()
	st := appstate.New(storage.NewMemory(), appstate.Options{})
	st.Hydrate(context.Background())
	return st
}

func fixedDeps() deps {
	ids := 0
	return deps{
		now: func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) },
		newID: func() string {
			ids++
			return "id-" + strconv.Itoa(ids)
		},
	}
}

func userWithRole(id string, role models.Role) *models.AppUser {
	return &models.AppUser{ID: id, Name: id, Email: id + "@example.com", Role: role}
}

func strPtr(s string) *string { return &s }

func assertValidationError(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, models.HasCode(err, models.CodeValidation), "expected validation error, got %v", err)
}

func assertForbiddenError(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, models.HasCode(err, models.CodeForbidden), "expected forbidden error, got %v", err)
}

func assertUnauthorizedError(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, models.HasCode(err, models.CodeUnauth), "expected unauthorized error, got %v", err)
}
