// Package views holds one view model per screen and panel. A view model
// binds router payloads, app state and cached reads, and runs the
// user's commands through the service layer. Each async load is tagged
// with a generation; a result that settles after its panel was dismissed
// or reopened with another payload is dropped.
package views

import (
	"context"
	"errors"
	"sync"

	"mmuni/internal/appstate"
	"mmuni/internal/featureflags"
	"mmuni/internal/i18n"
	"mmuni/internal/models"
	"mmuni/internal/querycache"
	"mmuni/internal/repository"
	"mmuni/internal/router"
	"mmuni/internal/service"
)

// ErrDiscarded is returned by a load whose result arrived too late to be
// shown. Callers ignore it.
var ErrDiscarded = errors.New("views: result discarded")

// WeatherSource fetches current weather for a coordinate.
type WeatherSource interface {
	Weather(ctx context.Context, lat, lng float64) (*models.WeatherReport, error)
}

// Deps is everything the view models share. One Deps is built by the
// composition root and handed to every view.
type Deps struct {
	Store      *appstate.Store
	Router     *router.Router
	Cache      *querycache.Cache
	Translator *i18n.Translator
	Flags      func() *featureflags.Manager

	Municipalities repository.MunicipalityRepository
	Objects        repository.ObjectRepository
	Users          repository.UserRepository
	Configs        repository.ConfigRepository
	Weather        WeatherSource

	Session         *service.SessionService
	ObjectSvc       *service.ObjectService
	CommentSvc      *service.CommentService
	MunicipalitySvc *service.MunicipalityService
	ProfileSvc      *service.ProfileService
	DocumentSvc     *service.DocumentService
	ChatSvc         *service.ChatService
}

func (d *Deps) user() *models.AppUser {
	return d.Store.Snapshot().User
}

func (d *Deps) municipalityID() (string, error) {
	snap := d.Store.Snapshot()
	if snap.MunicipalityID == nil {
		return "", models.NewValidationError("Municipality is required")
	}
	return *snap.MunicipalityID, nil
}

// Enabled reports whether a feature toggle is on for the current user.
// Features without a toggle are on.
func (d *Deps) Enabled(feature string) bool {
	if d.Flags == nil {
		return true
	}
	m := d.Flags()
	if m == nil {
		return true
	}
	if _, ok := m.Raw()[feature]; !ok {
		return true
	}
	var uid string
	if u := d.user(); u != nil {
		uid = u.ID
	}
	return m.Enabled(feature, uid)
}

// Status is the phase of an async load.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusReady   Status = "ready"
	StatusFailed  Status = "failed"
)

// Result is what a view renders for one async slice.
type Result[T any] struct {
	Status Status
	Data   T
	Err    error
	// Stale is set when the cached data behind Data was invalidated.
	Stale bool
}

// Slice is one independently loading piece of a view.
type Slice[T any] struct {
	mu  sync.Mutex
	gen uint64
	res Result[T]
}

func (s *Slice[T]) begin() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.res.Status = StatusLoading
	s.res.Err = nil
	return s.gen
}

func (s *Slice[T]) settle(gen uint64, data T, err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return false
	}
	if err != nil {
		s.res.Status = StatusFailed
		s.res.Err = err
		return true
	}
	s.res = Result[T]{Status: StatusReady, Data: data}
	return true
}

// Reset drops the current data and any load still in flight.
func (s *Slice[T]) Reset() {
	s.mu.Lock()
	s.gen++
	s.res = Result[T]{Status: StatusIdle}
	s.mu.Unlock()
}

func (s *Slice[T]) markStale() {
	s.mu.Lock()
	if s.res.Status == StatusReady {
		s.res.Stale = true
	}
	s.mu.Unlock()
}

// Get returns the current result.
func (s *Slice[T]) Get() Result[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	res := s.res
	if res.Status == "" {
		res.Status = StatusIdle
	}
	return res
}

func load[T any](ctx context.Context, s *Slice[T], fn func(context.Context) (T, error)) (T, error) {
	gen := s.begin()
	data, err := fn(ctx)
	if !s.settle(gen, data, err) {
		var zero T
		return zero, ErrDiscarded
	}
	return data, err
}

// watchPanel calls fn whenever p is presented or dismissed.
func watchPanel(r *router.Router, p router.Panel, fn func(router.State)) func() {
	return r.Subscribe(func(changed router.Panel, st router.State) {
		if changed == p {
			fn(st)
		}
	})
}

// Describe turns an error into the text shown in an alert. Discarded
// results produce no text.
func Describe(t *i18n.Translator, err error) string {
	if err == nil || errors.Is(err, ErrDiscarded) {
		return ""
	}
	var appErr *models.AppError
	if !errors.As(err, &appErr) {
		return t.T("error_network")
	}
	switch appErr.Code {
	case models.CodeValidation:
		return appErr.Message
	case models.CodeForbidden:
		return t.T("error_not_allowed")
	case models.CodeUnauth:
		if appErr.Message != "" {
			return appErr.Message
		}
		return t.T("error_login_failed")
	case models.CodeNotFound:
		return t.T("no_data")
	}
	return t.T("error_network")
}
