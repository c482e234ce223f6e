package views

import (
	"context"

	"mmuni/internal/models"
	"mmuni/internal/querycache"
	"mmuni/internal/router"
)

// DocsView lists the municipality's documents; moderators manage them.
type DocsView struct {
	d     *Deps
	docs  Slice[[]models.Document]
	unsub func()
}

func NewDocsView(d *Deps) *DocsView {
	v := &DocsView{d: d}
	v.unsub = d.Cache.Subscribe(querycache.Key{querycache.ResDocs}, func(querycache.Key) { v.docs.markStale() })
	return v
}

func (v *DocsView) Close() {
	v.unsub()
}

func (v *DocsView) Load(ctx context.Context) ([]models.Document, error) {
	return load(ctx, &v.docs, func(ctx context.Context) ([]models.Document, error) {
		mun, err := v.d.municipalityID()
		if err != nil {
			return nil, err
		}
		return querycache.Get(ctx, v.d.Cache, querycache.Docs(mun), func(ctx context.Context) ([]models.Document, error) {
			return v.d.DocumentSvc.List(ctx, mun)
		})
	})
}

func (v *DocsView) Documents() Result[[]models.Document] {
	return v.docs.Get()
}

func (v *DocsView) CanManage() bool {
	return v.d.user().CanModerate()
}

func (v *DocsView) Add(ctx context.Context, title, url string) (*models.Document, error) {
	mun, err := v.d.municipalityID()
	if err != nil {
		return nil, err
	}
	doc, mut, err := v.d.DocumentSvc.Add(ctx, v.d.user(), mun, title, url)
	if err != nil {
		return nil, err
	}
	v.d.Cache.Apply(mut)
	return doc, nil
}

func (v *DocsView) Delete(ctx context.Context, doc models.Document) error {
	mut, err := v.d.DocumentSvc.Delete(ctx, v.d.user(), &doc)
	if err != nil {
		return err
	}
	v.d.Cache.Apply(mut)
	return nil
}

func (v *DocsView) Dismiss() {
	v.d.Router.Dismiss(router.PanelDocs)
}
