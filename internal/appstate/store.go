// Package appstate holds the client's session and preference state and
// persists the municipality selection and locale to device storage.
package appstate

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"mmuni/internal/models"
	"mmuni/internal/observability"
	"mmuni/internal/storage"
)

// Storage keys.
const (
	MunicipalityKey = "mmuni-mun"
	LocaleKey       = "mmuni-locale"
)

// Snapshot is a copy of the store state at one point in time.
type Snapshot struct {
	Municipality   *models.Municipality
	MunicipalityID *string
	User           *models.AppUser
	Locale         string
	Hydrated       bool
}

// HasMunicipality reports whether a municipality is selected.
func (s Snapshot) HasMunicipality() bool {
	return s.Municipality != nil && s.MunicipalityID != nil
}

type munRecord struct {
	CurrentMunID *string              `json:"currentMunId"`
	CurrentMun   *models.Municipality `json:"currentMun"`
}

// Options configure a Store.
type Options struct {
	DefaultLocale  string
	PersistTimeout time.Duration
	Logger         *slog.Logger
}

// Store is the persisted app state container. Construct one per process
// with New and call Hydrate before choosing the first view.
type Store struct {
	storage storage.Storage
	opts    Options

	// wmu orders writers end to end so storage and listeners see changes
	// in the same order as the in-memory state.
	wmu sync.Mutex

	mu           sync.RWMutex
	municipality *models.Municipality
	user         *models.AppUser
	locale       string
	hydrated     bool

	hydrateOnce sync.Once
	hydratedCh  chan struct{}

	lmu       sync.Mutex
	listeners map[int]func(Snapshot)
	nextID    int
}

// New constructs a Store over st. Nothing is read until Hydrate.
func New(st storage.Storage, opts Options) *Store {
	if opts.DefaultLocale == "" {
		opts.DefaultLocale = "en"
	}
	if opts.PersistTimeout <= 0 {
		opts.PersistTimeout = 2 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = observability.Logger
	}
	return &Store{
		storage:    st,
		opts:       opts,
		locale:     opts.DefaultLocale,
		hydratedCh: make(chan struct{}),
		listeners:  make(map[int]func(Snapshot)),
	}
}

// Snapshot returns the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	snap := Snapshot{
		User:     s.user,
		Locale:   s.locale,
		Hydrated: s.hydrated,
	}
	if s.municipality != nil {
		m := *s.municipality
		id := m.ID
		snap.Municipality = &m
		snap.MunicipalityID = &id
	}
	return snap
}

// Hydrated reports whether persisted state has been loaded.
func (s *Store) Hydrated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hydrated
}

// HydratedCh is closed once hydration completes.
func (s *Store) HydratedCh() <-chan struct{} {
	return s.hydratedCh
}

// Hydrate loads the persisted municipality and locale. Only the first call
// reads storage; later calls return immediately. Read failures leave the
// in-memory defaults in place.
func (s *Store) Hydrate(ctx context.Context) {
	s.hydrateOnce.Do(func() {
		s.wmu.Lock()
		defer s.wmu.Unlock()

		mun := s.loadMunicipality(ctx)
		locale := s.loadLocale(ctx)

		s.mu.Lock()
		if mun != nil && s.municipality == nil {
			s.municipality = mun
		}
		if locale != "" {
			s.locale = locale
		}
		s.hydrated = true
		snap := s.snapshotLocked()
		s.mu.Unlock()

		close(s.hydratedCh)
		s.notify(snap)
	})
}

func (s *Store) loadMunicipality(ctx context.Context) *models.Municipality {
	raw, ok, err := s.storage.Get(ctx, MunicipalityKey)
	if err != nil {
		s.opts.Logger.WarnContext(ctx, "failed to read persisted municipality", slog.String("error", err.Error()))
		return nil
	}
	if !ok {
		return nil
	}

	var rec munRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		s.opts.Logger.WarnContext(ctx, "discarding unreadable municipality entry", slog.String("error", err.Error()))
		return nil
	}
	if rec.CurrentMun == nil || rec.CurrentMunID == nil || *rec.CurrentMunID != rec.CurrentMun.ID {
		return nil
	}
	if err := rec.CurrentMun.Validate(); err != nil {
		s.opts.Logger.WarnContext(ctx, "discarding invalid municipality entry", slog.String("error", err.Error()))
		return nil
	}
	return rec.CurrentMun
}

func (s *Store) loadLocale(ctx context.Context) string {
	v, ok, err := s.storage.Get(ctx, LocaleKey)
	if err != nil {
		s.opts.Logger.WarnContext(ctx, "failed to read persisted locale", slog.String("error", err.Error()))
		return ""
	}
	if !ok {
		return ""
	}
	return v
}

// SetMunicipality selects m, or clears the selection when m is nil. The
// reference and its id always change together.
func (s *Store) SetMunicipality(m *models.Municipality) {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	s.mu.Lock()
	if m == nil {
		s.municipality = nil
	} else {
		cp := *m
		s.municipality = &cp
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.persistMunicipality(snap.Municipality)
	s.notify(snap)
}

// SetUser replaces the session user. Never persisted.
func (s *Store) SetUser(u *models.AppUser) {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	s.mu.Lock()
	if u == nil {
		s.user = nil
	} else {
		cp := *u
		s.user = &cp
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
}

// SetLocale switches the active locale and persists it.
func (s *Store) SetLocale(code string) {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	s.mu.Lock()
	s.locale = code
	snap := s.snapshotLocked()
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.opts.PersistTimeout)
	defer cancel()
	if err := s.storage.Set(ctx, LocaleKey, code); err != nil {
		s.opts.Logger.Warn("failed to persist locale", slog.String("error", err.Error()))
	}
	s.notify(snap)
}

// Logout clears the user and municipality together. Locale is kept.
func (s *Store) Logout() {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	s.mu.Lock()
	s.user = nil
	s.municipality = nil
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.persistMunicipality(nil)
	s.notify(snap)
}

func (s *Store) persistMunicipality(m *models.Municipality) {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.PersistTimeout)
	defer cancel()

	if m == nil {
		if err := s.storage.Remove(ctx, MunicipalityKey); err != nil {
			s.opts.Logger.Warn("failed to remove persisted municipality", slog.String("error", err.Error()))
		}
		return
	}

	id := m.ID
	raw, err := json.Marshal(munRecord{CurrentMunID: &id, CurrentMun: m})
	if err != nil {
		s.opts.Logger.Warn("failed to encode municipality", slog.String("error", err.Error()))
		return
	}
	if err := s.storage.Set(ctx, MunicipalityKey, string(raw)); err != nil {
		s.opts.Logger.Warn("failed to persist municipality", slog.String("error", err.Error()))
	}
}

// Subscribe registers fn to be called with the new snapshot after every
// change. Calls are made in change order while the writer is held, so fn
// must not call back into the Store's setters. The returned func
// unsubscribes.
func (s *Store) Subscribe(fn func(Snapshot)) func() {
	s.lmu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.lmu.Unlock()

	return func() {
		s.lmu.Lock()
		delete(s.listeners, id)
		s.lmu.Unlock()
	}
}

func (s *Store) notify(snap Snapshot) {
	s.lmu.Lock()
	fns := make([]func(Snapshot), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.lmu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}
