package views

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/cenkalti/backoff/v5"

	"mmuni/internal/appstate"
	"mmuni/internal/auth"
	"mmuni/internal/featureflags"
	"mmuni/internal/i18n"
	"mmuni/internal/models"
	"mmuni/internal/querycache"
	"mmuni/internal/repository"
	"mmuni/internal/router"
	"mmuni/internal/service"
	"mmuni/internal/storage"
)

// memObjects is an in-memory repository.ObjectRepository.
type memObjects struct {
	mu           sync.Mutex
	rows         []models.ContentObject
	listCalls    map[string]int
	creates      int
	reactionSets int
	// gate, when set, blocks List until it is closed.
	gate chan struct{}
}

func (m *memObjects) List(ctx context.Context, mun string, t *models.ObjectType, s *models.Sphere) ([]models.ContentObject, error) {
	m.mu.Lock()
	if m.listCalls == nil {
		m.listCalls = make(map[string]int)
	}
	m.listCalls[mun]++
	gate := m.gate
	m.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ContentObject
	for _, o := range m.rows {
		if o.MunicipalityID != mun || (t != nil && o.Type != *t) || (s != nil && o.Sphere != *s) {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

func (m *memObjects) calls(mun string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listCalls[mun]
}

func (m *memObjects) News(ctx context.Context, mun string) ([]models.ContentObject, error) {
	t := models.TypeNews
	return m.List(ctx, mun, &t, nil)
}

func (m *memObjects) AllByMun(ctx context.Context, mun string) ([]models.ContentObject, error) {
	return m.List(ctx, mun, nil, nil)
}

func (m *memObjects) GetByID(_ context.Context, id string) (*models.ContentObject, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.rows {
		if o.ID == id {
			return &o, nil
		}
	}
	return nil, models.NewNotFoundError("Object", id)
}

func (m *memObjects) Create(_ context.Context, obj *models.ContentObject) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creates++
	m.rows = append(m.rows, *obj)
	return nil
}

func (m *memObjects) Update(_ context.Context, obj *models.ContentObject) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rows {
		if m.rows[i].ID == obj.ID {
			m.rows[i] = *obj
		}
	}
	return nil
}

func (m *memObjects) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rows {
		if m.rows[i].ID == id {
			m.rows = append(m.rows[:i], m.rows[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *memObjects) SetReactions(_ context.Context, id string, r models.Reactions) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reactionSets++
	for i := range m.rows {
		if m.rows[i].ID == id {
			m.rows[i].Likes, m.rows[i].Dislikes, m.rows[i].Reports = r.Likes, r.Dislikes, r.Reports
		}
	}
	return nil
}

// memComments is an in-memory repository.CommentRepository.
type memComments struct {
	mu   sync.Mutex
	rows []models.Comment
}

func (m *memComments) ListByObject(_ context.Context, objID string) ([]models.Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Comment
	for _, c := range m.rows {
		if c.ObjectID == objID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out, nil
}

func (m *memComments) Create(_ context.Context, c *models.Comment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, *c)
	return nil
}

func (m *memComments) Delete(context.Context, string) error { return nil }

func (m *memComments) SetReactions(context.Context, string, models.Reactions) error { return nil }

// memMuns is an in-memory repository.MunicipalityRepository.
type memMuns struct {
	rows []models.Municipality
}

func (m *memMuns) List(context.Context) ([]models.Municipality, error) { return m.rows, nil }

func (m *memMuns) GetByID(_ context.Context, id string) (*models.Municipality, error) {
	for _, r := range m.rows {
		if r.ID == id {
			return &r, nil
		}
	}
	return nil, models.NewNotFoundError("Municipality", id)
}

// memUsers is an in-memory repository.UserRepository.
type memUsers struct {
	mu   sync.Mutex
	rows map[string]models.AppUser
}

func (m *memUsers) GetByID(_ context.Context, id string) (*models.AppUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.rows[id]
	if !ok {
		return nil, models.NewNotFoundError("User", id)
	}
	return &u, nil
}

func (m *memUsers) put(u models.AppUser) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rows == nil {
		m.rows = make(map[string]models.AppUser)
	}
	m.rows[u.ID] = u
}

func (m *memUsers) Insert(_ context.Context, u *models.AppUser) error { m.put(*u); return nil }
func (m *memUsers) Upsert(_ context.Context, u *models.AppUser) error { m.put(*u); return nil }

func (m *memUsers) Update(_ context.Context, id string, p repository.UserPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rows == nil {
		m.rows = make(map[string]models.AppUser)
	}
	u := m.rows[id]
	u.ID = id
	if p.Name != nil {
		u.Name = *p.Name
	}
	if p.Email != nil {
		u.Email = *p.Email
	}
	if p.Role != nil {
		u.Role = *p.Role
	}
	if p.MunicipalityID != nil {
		u.MunicipalityID = p.MunicipalityID
	}
	m.rows[id] = u
	return nil
}

func (m *memUsers) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, id)
	return nil
}

// memDocs is an in-memory repository.DocumentRepository.
type memDocs struct {
	mu   sync.Mutex
	rows []models.Document
}

func (m *memDocs) ListByMun(_ context.Context, mun string) ([]models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Document
	for _, d := range m.rows {
		if d.MunicipalityID == mun {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *memDocs) Create(_ context.Context, d *models.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, *d)
	return nil
}

func (m *memDocs) Delete(context.Context, string) error { return nil }

// configMap serves config values.
type configMap map[string]string

func (c configMap) All(context.Context) ([]models.ConfigEntry, error) {
	var out []models.ConfigEntry
	for k, v := range c {
		out = append(out, models.ConfigEntry{ID: k, Key: k, Value: v})
	}
	return out, nil
}

func (c configMap) Get(_ context.Context, key string) (string, error) {
	v, ok := c[key]
	if !ok {
		return "", models.NewNotFoundError("Config", key)
	}
	return v, nil
}

// fakeAuth signs everyone in as the user with the email's local part as id.
type fakeAuth struct{}

func (fakeAuth) SignIn(_ context.Context, email, _ string) (*auth.Session, error) {
	return &auth.Session{AccessToken: "tok", User: auth.Identity{ID: email, Email: email}}, nil
}
func (fakeAuth) SignUp(_ context.Context, email, _ string) (*auth.Identity, *auth.Session, error) {
	id := auth.Identity{ID: email, Email: email}
	return &id, &auth.Session{AccessToken: "tok", User: id}, nil
}
func (fakeAuth) SignOut(context.Context) error                  { return nil }
func (fakeAuth) Restore(context.Context) (*auth.Session, error) { return nil, nil }
func (fakeAuth) UpdatePassword(context.Context, string) error   { return nil }
func (fakeAuth) Current() *auth.Session                         { return nil }
func (fakeAuth) AccessToken(context.Context) (string, error)    { return "tok", nil }
func (fakeAuth) Subscribe(func(auth.Event)) func()              { return func() {} }

// fakeBackend answers weather, chat and profile calls.
type fakeBackend struct {
	mu      sync.Mutex
	weather int
	updates []models.ProfileUpdate
}

func (b *fakeBackend) Weather(_ context.Context, lat, lng float64) (*models.WeatherReport, error) {
	b.mu.Lock()
	b.weather++
	b.mu.Unlock()
	r := &models.WeatherReport{Name: "Town"}
	r.Main.Temp = 21.6
	r.Weather = []models.WeatherCondition{{ID: 800, Main: "Clear", Description: "clear sky", Icon: "01d"}}
	return r, nil
}

func (b *fakeBackend) Chat(_ context.Context, req models.ChatRequest) (*models.ChatResponse, error) {
	return &models.ChatResponse{Answer: "re: " + req.Query, ConversationID: "c1"}, nil
}

func (b *fakeBackend) UpdateProfile(_ context.Context, u models.ProfileUpdate) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.updates = append(b.updates, u)
	return nil
}

func (b *fakeBackend) UserExists(context.Context, string) (bool, error) { return true, nil }

type fixture struct {
	deps     *Deps
	objects  *memObjects
	comments *memComments
	users    *memUsers
	docs     *memDocs
	backend  *fakeBackend
	flags    *featureflags.Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := appstate.New(storage.NewMemory(), appstate.Options{})
	store.Hydrate(context.Background())

	cache := querycache.New(querycache.Options{
		Retry:   0,
		BackOff: func() backoff.BackOff { return &backoff.ZeroBackOff{} },
	})
	t.Cleanup(cache.Close)

	f := &fixture{
		objects:  &memObjects{},
		comments: &memComments{},
		users:    &memUsers{},
		docs:     &memDocs{},
		backend:  &fakeBackend{},
		flags:    featureflags.NewManager(""),
	}
	muns := &memMuns{rows: []models.Municipality{
		{ID: "x", Name: "Xville", Country: "RU", Region: "Tver", Coordinates: &models.Coordinates{Lat: 56.86, Lng: 35.9}},
		{ID: "y", Name: "Yburg", Country: "RU", Region: "Tver"},
		{ID: "z", Name: "Zgrad", Country: "KZ", Region: "Almaty"},
	}}
	configs := configMap{
		models.ConfigDemoMunicipality: "y",
		models.ConfigSupportEmail:     "help@example.com",
		models.ConfigStartMessage:     "Hi, ask me anything",
	}
	provider := fakeAuth{}

	f.deps = &Deps{
		Store:      store,
		Router:     router.New(),
		Cache:      cache,
		Translator: i18n.NewTranslator(i18n.MustLoad(), func() string { return store.Snapshot().Locale }),
		Flags:      func() *featureflags.Manager { return f.flags },

		Municipalities: muns,
		Objects:        f.objects,
		Users:          f.users,
		Configs:        configs,
		Weather:        f.backend,

		Session: service.NewSessionService(provider, f.users, muns, f.backend, store, service.ConfirmOptions{
			Attempts: 2,
			BackOff:  func() backoff.BackOff { return &backoff.ZeroBackOff{} },
		}),
		ObjectSvc:       service.NewObjectService(f.objects),
		CommentSvc:      service.NewCommentService(f.comments),
		MunicipalitySvc: service.NewMunicipalityService(muns, configs),
		ProfileSvc:      service.NewProfileService(f.users, provider, store),
		DocumentSvc:     service.NewDocumentService(f.docs),
		ChatSvc:         service.NewChatService(f.backend, configs, nil),
	}
	return f
}

func (f *fixture) selectMunicipality(id string) {
	m, _ := f.deps.Municipalities.GetByID(context.Background(), id)
	f.deps.Store.SetMunicipality(m)
}

func (f *fixture) signIn(id string, role models.Role) *models.AppUser {
	u := models.AppUser{ID: id, Name: "Name " + id, Email: id + "@example.com", Role: role}
	f.users.put(u)
	f.deps.Store.SetUser(&u)
	return &u
}

func ptr[T any](v T) *T { return &v }
