package views

import (
	"context"
	"sync"

	"mmuni/internal/models"
	"mmuni/internal/router"
	"mmuni/internal/service"
)

// CreateView is the create/edit panel. The draft is rebuilt every time
// the panel is presented, from the edit target or blank.
type CreateView struct {
	d     *Deps
	unsub func()

	mu    sync.Mutex
	edit  *models.ContentObject
	draft models.ObjectDraft
}

func NewCreateView(d *Deps) *CreateView {
	v := &CreateView{d: d}
	v.reset(d.Router.EditTarget())
	v.unsub = watchPanel(d.Router, router.PanelCreate, func(st router.State) {
		if !st.Visible {
			return
		}
		edit, _ := st.Payload.(*models.ContentObject)
		v.reset(edit)
	})
	return v
}

func (v *CreateView) reset(edit *models.ContentObject) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.edit = edit
	if edit != nil {
		v.draft = models.DraftFrom(edit)
		return
	}
	v.draft = models.ObjectDraft{Sphere: models.SphereGovernance}
	if types := v.allowedTypesLocked(); len(types) > 0 {
		v.draft.Type = types[0]
	}
}

func (v *CreateView) Close() {
	v.unsub()
}

// Editing reports whether the panel edits an existing object.
func (v *CreateView) Editing() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.edit != nil
}

func (v *CreateView) Draft() models.ObjectDraft {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.draft
}

// Update edits the draft in place.
func (v *CreateView) Update(fn func(*models.ObjectDraft)) {
	v.mu.Lock()
	fn(&v.draft)
	v.mu.Unlock()
}

// AllowedTypes lists the types the current user may publish.
func (v *CreateView) AllowedTypes() []models.ObjectType {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.allowedTypesLocked()
}

func (v *CreateView) allowedTypesLocked() []models.ObjectType {
	user := v.d.user()
	var out []models.ObjectType
	for _, t := range models.ObjectTypes {
		if user.CanCreate(t) {
			out = append(out, t)
		}
	}
	return out
}

// PickLocation opens the map in select mode. The picked point lands in
// the draft and the map is dismissed.
func (v *CreateView) PickLocation() {
	v.d.Router.OpenMap(models.MapOptions{
		SelectMode: true,
		OnSelect: func(c models.Coordinates) {
			v.Update(func(d *models.ObjectDraft) { d.Coordinates = &c })
			v.d.Router.Dismiss(router.PanelMap)
		},
	})
}

// Save validates the draft and the user's role, then writes. Nothing is
// sent when validation fails.
func (v *CreateView) Save(ctx context.Context) (*models.ContentObject, error) {
	v.mu.Lock()
	draft, edit := v.draft, v.edit
	v.mu.Unlock()

	var munID string
	if snap := v.d.Store.Snapshot(); snap.MunicipalityID != nil {
		munID = *snap.MunicipalityID
	}
	obj, mut, err := v.d.ObjectSvc.Save(ctx, service.SaveObjectInput{
		User:           v.d.user(),
		MunicipalityID: munID,
		Draft:          draft,
		Edit:           edit,
	})
	if err != nil {
		return nil, err
	}
	v.d.Cache.Apply(mut)
	v.d.Router.Dismiss(router.PanelCreate)
	return obj, nil
}

func (v *CreateView) Dismiss() {
	v.d.Router.Dismiss(router.PanelCreate)
}
