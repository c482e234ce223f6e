package views

import (
	"context"
	"math"

	"mmuni/internal/models"
	"mmuni/internal/querycache"
)

// WeatherView is the home screen's weather widget.
type WeatherView struct {
	d      *Deps
	report Slice[*models.WeatherReport]
}

func NewWeatherView(d *Deps) *WeatherView {
	return &WeatherView{d: d}
}

// Load fetches weather for the municipality's coordinates. A municipality
// without coordinates has no weather.
func (v *WeatherView) Load(ctx context.Context) (*models.WeatherReport, error) {
	return load(ctx, &v.report, func(ctx context.Context) (*models.WeatherReport, error) {
		mun := v.d.Store.Snapshot().Municipality
		if mun == nil || mun.Coordinates == nil {
			return nil, nil
		}
		c := *mun.Coordinates
		return querycache.Get(ctx, v.d.Cache, querycache.Weather(c.Lat, c.Lng), func(ctx context.Context) (*models.WeatherReport, error) {
			return v.d.Weather.Weather(ctx, c.Lat, c.Lng)
		})
	})
}

func (v *WeatherView) Report() Result[*models.WeatherReport] {
	return v.report.Get()
}

// Summary is the widget text: rounded temperature in Celsius and the
// condition description.
func (v *WeatherView) Summary() (temp int, description string, ok bool) {
	r := v.report.Get().Data
	if r == nil {
		return 0, "", false
	}
	_, description = r.Condition()
	return int(math.Round(r.Temperature())), description, true
}
