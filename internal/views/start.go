package views

import (
	"context"
	"sync"

	"mmuni/internal/models"
	"mmuni/internal/querycache"
	"mmuni/internal/service"
)

// StartView is the onboarding flow: pick a country, region and
// municipality, take a random one, or log in.
type StartView struct {
	d    *Deps
	muns Slice[[]models.Municipality]

	mu      sync.Mutex
	country string
	region  string
}

func NewStartView(d *Deps) *StartView {
	return &StartView{d: d}
}

func (v *StartView) Load(ctx context.Context) ([]models.Municipality, error) {
	return load(ctx, &v.muns, func(ctx context.Context) ([]models.Municipality, error) {
		return querycache.Get(ctx, v.d.Cache, querycache.Municipalities(), v.d.MunicipalitySvc.List)
	})
}

func (v *StartView) Municipalities() Result[[]models.Municipality] {
	return v.muns.Get()
}

func (v *StartView) Countries() []string {
	return service.Countries(v.muns.Get().Data)
}

// SelectCountry picks a country and clears the region.
func (v *StartView) SelectCountry(country string) {
	v.mu.Lock()
	v.country, v.region = country, ""
	v.mu.Unlock()
}

func (v *StartView) SelectRegion(region string) {
	v.mu.Lock()
	v.region = region
	v.mu.Unlock()
}

func (v *StartView) Regions() []string {
	v.mu.Lock()
	country := v.country
	v.mu.Unlock()
	return service.Regions(v.muns.Get().Data, country)
}

// Choices lists the municipalities of the selected region.
func (v *StartView) Choices() []models.Municipality {
	v.mu.Lock()
	country, region := v.country, v.region
	v.mu.Unlock()
	return service.InRegion(v.muns.Get().Data, country, region)
}

// Select makes m the current municipality, which moves the navigator to
// the home flow.
func (v *StartView) Select(m models.Municipality) {
	v.d.Store.SetMunicipality(&m)
}

func (v *StartView) SelectRandom(ctx context.Context) error {
	muns := v.muns.Get().Data
	if len(muns) == 0 {
		loaded, err := v.Load(ctx)
		if err != nil {
			return err
		}
		muns = loaded
	}
	m, err := v.d.MunicipalitySvc.Random(ctx, muns)
	if err != nil {
		return err
	}
	v.Select(*m)
	return nil
}

// Login signs in. A profile linked to a municipality selects it.
func (v *StartView) Login(ctx context.Context, email, password string) (*models.AppUser, error) {
	return v.d.Session.Login(ctx, email, password)
}
