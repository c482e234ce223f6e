// Package app wires the client core: storage, app state, auth, remote
// repositories, the query cache, services and view models.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"mmuni/internal/apiclient"
	"mmuni/internal/appstate"
	"mmuni/internal/auth"
	"mmuni/internal/config"
	"mmuni/internal/featureflags"
	"mmuni/internal/i18n"
	"mmuni/internal/models"
	"mmuni/internal/navigator"
	"mmuni/internal/observability"
	"mmuni/internal/querycache"
	"mmuni/internal/remote"
	"mmuni/internal/repository"
	"mmuni/internal/router"
	"mmuni/internal/service"
	"mmuni/internal/storage"
	"mmuni/internal/views"
)

// Deps overrides collaborators that NewClient would otherwise build from
// the configuration. Zero values mean "build the default".
type Deps struct {
	Storage    storage.Storage
	HTTPClient *http.Client
	Auth       auth.Provider
	Backend    Backend
}

// Backend is the companion server surface the client calls.
type Backend interface {
	service.ProfileBackend
	service.ChatBackend
	views.WeatherSource
}

// Views holds one view model per screen and panel.
type Views struct {
	Start    *views.StartView
	Home     *views.HomeView
	Weather  *views.WeatherView
	List     *views.ListView
	Object   *views.ObjectView
	Create   *views.CreateView
	Settings *views.SettingsView
	Map      *views.MapView
	Chat     *views.ChatView
	Docs     *views.DocsView
}

// Client is a running client core.
type Client struct {
	cfg    *config.Config
	logger *slog.Logger

	Store     *appstate.Store
	Router    *router.Router
	Navigator *navigator.Navigator
	Cache     *querycache.Cache
	Auth      auth.Provider
	Views     Views

	deps    *views.Deps
	flags   atomic.Pointer[featureflags.Manager]
	baseFlg *featureflags.Manager

	owned   *storage.SQLiteStore
	unsubs  []func()
	started atomic.Bool
	closeMu sync.Mutex
	closed  bool

	// bg tracks toggle reloads started by config invalidations.
	bgCtx    context.Context
	bgCancel context.CancelFunc
	bgMu     sync.Mutex
	bgDone   bool
	bg       sync.WaitGroup
}

// NewClient builds a client from cfg. Nothing touches the network until
// Start.
func NewClient(cfg *config.Config, d Deps) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("app: config is required")
	}

	c := &Client{cfg: cfg, logger: observability.Logger}
	c.bgCtx, c.bgCancel = context.WithCancel(context.Background())

	st := d.Storage
	if st == nil {
		sq, err := storage.OpenSQLite(cfg.LocalStorePath)
		if err != nil {
			return nil, fmt.Errorf("open local store: %w", err)
		}
		c.owned = sq
		st = sq
	}

	httpClient := d.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	provider := d.Auth
	if provider == nil {
		provider = auth.NewGoTrueClient(cfg.SupabaseURL, cfg.SupabaseAnonKey, st, auth.WithHTTPClient(httpClient))
	}
	c.Auth = provider

	backend := d.Backend
	if backend == nil {
		backend = apiclient.New(cfg.BackendURL,
			apiclient.WithHTTPClient(httpClient),
			apiclient.WithBearer(provider.AccessToken),
		)
	}

	rc := remote.New(cfg.SupabaseURL, cfg.SupabaseAnonKey,
		remote.WithHTTPClient(httpClient),
		remote.WithTokenSource(provider),
	)
	muns := repository.NewMunicipalityRepository(rc)
	objects := repository.NewObjectRepository(rc)
	comments := repository.NewCommentRepository(rc)
	users := repository.NewUserRepository(rc)
	docs := repository.NewDocumentRepository(rc)
	configs := repository.NewConfigRepository(rc)

	c.Store = appstate.New(st, appstate.Options{DefaultLocale: cfg.DefaultLocale})
	c.Router = router.New()
	c.Navigator = navigator.New(c.Store)
	c.Cache = querycache.New(querycache.Options{
		StaleTime: cfg.QueryStaleTime,
		Retry:     cfg.QueryRetry,
	})

	c.baseFlg = featureflags.NewManager(cfg.FeatureFlags)
	c.flags.Store(c.baseFlg)

	translator := i18n.NewTranslator(i18n.MustLoad(), func() string { return c.Store.Snapshot().Locale })

	c.deps = &views.Deps{
		Store:      c.Store,
		Router:     c.Router,
		Cache:      c.Cache,
		Translator: translator,
		Flags:      c.Flags,

		Municipalities: muns,
		Objects:        objects,
		Users:          users,
		Configs:        configs,
		Weather:        backend,

		Session: service.NewSessionService(provider, users, muns, backend, c.Store, service.ConfirmOptions{
			Attempts: cfg.ProfileConfirmAttempts,
		}),
		ObjectSvc:       service.NewObjectService(objects),
		CommentSvc:      service.NewCommentService(comments),
		MunicipalitySvc: service.NewMunicipalityService(muns, configs),
		ProfileSvc:      service.NewProfileService(users, provider, c.Store),
		DocumentSvc:     service.NewDocumentService(docs),
		ChatSvc: service.NewChatService(backend, configs, func() string {
			return translator.T("connection_error")
		}),
	}

	c.Views = Views{
		Start:    views.NewStartView(c.deps),
		Home:     views.NewHomeView(c.deps),
		Weather:  views.NewWeatherView(c.deps),
		List:     views.NewListView(c.deps),
		Object:   views.NewObjectView(c.deps),
		Create:   views.NewCreateView(c.deps),
		Settings: views.NewSettingsView(c.deps),
		Map:      views.NewMapView(c.deps),
		Chat:     views.NewChatView(c.deps),
		Docs:     views.NewDocsView(c.deps),
	}
	return c, nil
}

// Flags returns the feature toggles currently in effect.
func (c *Client) Flags() *featureflags.Manager {
	return c.flags.Load()
}

// Start hydrates persisted state, resumes a stored session, and begins
// following auth events. Failures to restore the session or load toggles
// are logged; the client still starts.
func (c *Client) Start(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return errors.New("app: already started")
	}

	c.Store.Hydrate(ctx)

	c.unsubs = append(c.unsubs, c.Auth.Subscribe(func(e auth.Event) {
		evCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		c.deps.Session.HandleAuthEvent(evCtx, e)
	}))

	c.unsubs = append(c.unsubs, c.Cache.Subscribe(querycache.Configs(), func(querycache.Key) {
		if _, ok := c.Cache.Peek(querycache.Configs()); ok {
			return
		}
		c.goBackground(func(ctx context.Context) {
			rctx, cancel := context.WithTimeout(ctx, 30*time.Second)
			defer cancel()
			if err := c.RefreshFlags(rctx); err != nil {
				c.logger.Warn("failed to reload feature toggles", slog.String("error", err.Error()))
			}
		})
	}))

	if _, err := c.deps.Session.RestoreSession(ctx); err != nil {
		c.logger.WarnContext(ctx, "failed to restore session", slog.String("error", err.Error()))
	}
	if err := c.RefreshFlags(ctx); err != nil {
		c.logger.WarnContext(ctx, "failed to load feature toggles", slog.String("error", err.Error()))
	}
	return nil
}

// goBackground runs fn on its own goroutine unless Close has begun. Close
// cancels ctx and waits for fn to return.
func (c *Client) goBackground(fn func(ctx context.Context)) {
	c.bgMu.Lock()
	defer c.bgMu.Unlock()
	if c.bgDone {
		return
	}
	c.bg.Add(1)
	go func() {
		defer c.bg.Done()
		fn(c.bgCtx)
	}()
}

// RefreshFlags rebuilds the feature toggles from the config table.
// FEATURE_FLAGS entries override table rows.
func (c *Client) RefreshFlags(ctx context.Context) error {
	entries, err := querycache.Get(ctx, c.Cache, querycache.Configs(), func(ctx context.Context) ([]models.ConfigEntry, error) {
		return c.deps.Configs.All(ctx)
	})
	if err != nil {
		return err
	}
	c.flags.Store(featureflags.FromConfig(entries, c.baseFlg))
	return nil
}

// Close stops subscriptions and background work and releases the local
// store when the client opened it. Close is idempotent.
func (c *Client) Close() error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	for _, fn := range c.unsubs {
		fn()
	}
	c.bgMu.Lock()
	c.bgDone = true
	c.bgMu.Unlock()
	c.bgCancel()
	c.bg.Wait()

	for _, v := range []interface{ Close() }{
		c.Views.Home, c.Views.List, c.Views.Object, c.Views.Create, c.Views.Map, c.Views.Docs,
	} {
		v.Close()
	}
	c.Navigator.Close()
	c.Cache.Close()

	if c.owned != nil {
		return c.owned.Close()
	}
	return nil
}
