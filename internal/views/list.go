package views

import (
	"context"

	"mmuni/internal/models"
	"mmuni/internal/querycache"
	"mmuni/internal/router"
)

// ListView renders the list panel for the filter it was opened with.
type ListView struct {
	d      *Deps
	items  Slice[[]models.ContentObject]
	unsubs []func()
}

func NewListView(d *Deps) *ListView {
	v := &ListView{d: d}
	v.unsubs = append(v.unsubs,
		watchPanel(d.Router, router.PanelList, func(router.State) { v.items.Reset() }),
		d.Cache.Subscribe(querycache.Key{querycache.ResObjects}, func(querycache.Key) { v.items.markStale() }),
	)
	return v
}

func (v *ListView) Close() {
	for _, u := range v.unsubs {
		u()
	}
}

func (v *ListView) Filter() (models.ListFilter, bool) {
	return v.d.Router.ListFilter()
}

// Load reads the objects matching the panel's current filter.
func (v *ListView) Load(ctx context.Context) ([]models.ContentObject, error) {
	filter, _ := v.d.Router.ListFilter()
	return load(ctx, &v.items, func(ctx context.Context) ([]models.ContentObject, error) {
		mun, err := v.d.municipalityID()
		if err != nil {
			return nil, err
		}
		key := querycache.Objects(mun, filter.Type, filter.Sphere)
		return querycache.Get(ctx, v.d.Cache, key, func(ctx context.Context) ([]models.ContentObject, error) {
			return v.d.ObjectSvc.List(ctx, mun, filter)
		})
	})
}

func (v *ListView) Items() Result[[]models.ContentObject] {
	return v.items.Get()
}

func (v *ListView) Open(obj models.ContentObject) {
	v.d.Router.OpenObject(obj)
}

func (v *ListView) Dismiss() {
	v.d.Router.Dismiss(router.PanelList)
}
