package views

import (
	"context"

	"golang.org/x/sync/errgroup"

	"mmuni/internal/models"
	"mmuni/internal/querycache"
)

// Feature toggles read from the config table.
const (
	FeatureChat    = "chat"
	FeatureWeather = "weather"
	FeatureDocs    = "docs"
)

// HomeView is the municipality home: news feed, weather, category
// shortcuts and the entry points of every panel.
type HomeView struct {
	d       *Deps
	news    Slice[[]models.ContentObject]
	weather *WeatherView
	unsub   func()
}

func NewHomeView(d *Deps) *HomeView {
	v := &HomeView{d: d, weather: NewWeatherView(d)}
	v.unsub = d.Cache.Subscribe(querycache.Key{querycache.ResNews}, func(querycache.Key) {
		v.news.markStale()
	})
	return v
}

func (v *HomeView) Close() {
	v.unsub()
}

func (v *HomeView) Municipality() *models.Municipality {
	return v.d.Store.Snapshot().Municipality
}

func (v *HomeView) Weather() *WeatherView {
	return v.weather
}

// Load fetches the news feed and, when enabled, the weather side by side.
func (v *HomeView) Load(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := v.LoadNews(ctx)
		return err
	})
	if v.d.Enabled(FeatureWeather) {
		g.Go(func() error {
			// Weather is display-only; its failure stays in its own slice.
			_, _ = v.weather.Load(ctx)
			return nil
		})
	}
	return g.Wait()
}

func (v *HomeView) LoadNews(ctx context.Context) ([]models.ContentObject, error) {
	return load(ctx, &v.news, func(ctx context.Context) ([]models.ContentObject, error) {
		mun, err := v.d.municipalityID()
		if err != nil {
			return nil, err
		}
		return querycache.Get(ctx, v.d.Cache, querycache.News(mun), func(ctx context.Context) ([]models.ContentObject, error) {
			return v.d.Objects.News(ctx, mun)
		})
	})
}

func (v *HomeView) News() Result[[]models.ContentObject] {
	return v.news.Get()
}

// OpenCategory opens the list panel for one type and/or sphere.
func (v *HomeView) OpenCategory(title string, t *models.ObjectType, s *models.Sphere) {
	v.d.Router.OpenList(models.ListFilter{Title: title, Type: t, Sphere: s})
}

func (v *HomeView) OpenObject(obj models.ContentObject) {
	v.d.Router.OpenObject(obj)
}

// CanCreate reports whether the create button is shown.
func (v *HomeView) CanCreate() bool {
	return v.d.user().CanInteract()
}

// OpenCreate presents a blank create panel. Guests and signed-out users
// are refused before the panel opens.
func (v *HomeView) OpenCreate() error {
	if !v.CanCreate() {
		return models.NewForbiddenError("guests cannot create content")
	}
	v.d.Router.OpenCreate(nil)
	return nil
}

func (v *HomeView) OpenSettings() { v.d.Router.OpenSettings() }

func (v *HomeView) OpenMap() { v.d.Router.OpenMap(models.MapOptions{}) }

func (v *HomeView) OpenChat() error {
	if !v.d.Enabled(FeatureChat) {
		return models.NewForbiddenError("chat is disabled")
	}
	v.d.Router.OpenChat()
	return nil
}

func (v *HomeView) OpenDocs() error {
	if !v.d.Enabled(FeatureDocs) {
		return models.NewForbiddenError("documents are disabled")
	}
	v.d.Router.OpenDocs()
	return nil
}

// ChangeMunicipality clears the selection and returns to the start flow.
func (v *HomeView) ChangeMunicipality() {
	v.d.Store.SetMunicipality(nil)
}
