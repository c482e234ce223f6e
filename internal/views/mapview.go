package views

import (
	"context"

	"mmuni/internal/models"
	"mmuni/internal/querycache"
	"mmuni/internal/router"
)

// Pin is one object on the map.
type Pin struct {
	Object models.ContentObject
	Color  string
}

// MapView shows the municipality's objects as pins, or picks a single
// coordinate when opened in select mode.
type MapView struct {
	d       *Deps
	objects Slice[[]models.ContentObject]
	unsubs  []func()
}

func NewMapView(d *Deps) *MapView {
	v := &MapView{d: d}
	v.unsubs = append(v.unsubs,
		d.Cache.Subscribe(querycache.Key{querycache.ResAllObjects}, func(querycache.Key) { v.objects.markStale() }),
	)
	return v
}

func (v *MapView) Close() {
	for _, u := range v.unsubs {
		u()
	}
}

func (v *MapView) SelectMode() bool {
	return v.d.Router.MapOptions().SelectMode
}

// Center is the municipality's location, if known.
func (v *MapView) Center() *models.Coordinates {
	if m := v.d.Store.Snapshot().Municipality; m != nil {
		return m.Coordinates
	}
	return nil
}

func (v *MapView) Load(ctx context.Context) ([]models.ContentObject, error) {
	return load(ctx, &v.objects, func(ctx context.Context) ([]models.ContentObject, error) {
		mun, err := v.d.municipalityID()
		if err != nil {
			return nil, err
		}
		return querycache.Get(ctx, v.d.Cache, querycache.AllObjects(mun), func(ctx context.Context) ([]models.ContentObject, error) {
			return v.d.Objects.AllByMun(ctx, mun)
		})
	})
}

// Pins lists loaded objects that have coordinates.
func (v *MapView) Pins() []Pin {
	var pins []Pin
	for _, o := range v.objects.Get().Data {
		if o.Coordinates == nil {
			continue
		}
		pins = append(pins, Pin{Object: o, Color: o.Sphere.Color()})
	}
	return pins
}

// Pick reports a tapped coordinate in select mode.
func (v *MapView) Pick(c models.Coordinates) bool {
	return v.d.Router.PickCoordinate(c)
}

// OpenPin shows an object's details. Pins are inert in select mode.
func (v *MapView) OpenPin(obj models.ContentObject) bool {
	if v.SelectMode() {
		return false
	}
	v.d.Router.OpenObject(obj)
	return true
}

func (v *MapView) Dismiss() {
	v.d.Router.Dismiss(router.PanelMap)
}
