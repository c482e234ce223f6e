package views

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"mmuni/internal/models"
	"mmuni/internal/querycache"
	"mmuni/internal/router"
)

const authorLookupLimit = 4

// CommentItem is a comment with its author resolved for display.
type CommentItem struct {
	models.Comment
	AuthorName  string
	AuthorBadge string
}

// ObjectView is the detail panel of one object and its comments.
type ObjectView struct {
	d        *Deps
	comments Slice[[]CommentItem]
	unsubs   []func()

	mu  sync.Mutex
	obj *models.ContentObject
}

func NewObjectView(d *Deps) *ObjectView {
	v := &ObjectView{d: d}
	if o, ok := d.Router.SelectedObject(); ok {
		v.obj = &o
	}
	v.unsubs = append(v.unsubs,
		watchPanel(d.Router, router.PanelObject, func(st router.State) {
			v.mu.Lock()
			if o, ok := st.Payload.(models.ContentObject); ok {
				v.obj = &o
			}
			v.mu.Unlock()
			v.comments.Reset()
		}),
		d.Cache.Subscribe(querycache.Key{querycache.ResComments}, func(k querycache.Key) {
			if obj, ok := v.Object(); ok && len(k) > 1 && k[1] == obj.ID {
				v.comments.markStale()
			}
		}),
	)
	return v
}

func (v *ObjectView) Close() {
	for _, u := range v.unsubs {
		u()
	}
}

// Object returns the object currently shown.
func (v *ObjectView) Object() (models.ContentObject, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.obj == nil {
		return models.ContentObject{}, false
	}
	return *v.obj, true
}

func (v *ObjectView) current() (models.ContentObject, error) {
	obj, ok := v.Object()
	if !ok {
		return obj, models.NewValidationError("No object selected")
	}
	return obj, nil
}

// LoadComments reads the comments and resolves their authors.
func (v *ObjectView) LoadComments(ctx context.Context) ([]CommentItem, error) {
	obj, err := v.current()
	if err != nil {
		return nil, err
	}
	return load(ctx, &v.comments, func(ctx context.Context) ([]CommentItem, error) {
		comments, err := querycache.Get(ctx, v.d.Cache, querycache.Comments(obj.ID), func(ctx context.Context) ([]models.Comment, error) {
			return v.d.CommentSvc.List(ctx, obj.ID)
		})
		if err != nil {
			return nil, err
		}
		return v.resolveAuthors(ctx, comments), nil
	})
}

func (v *ObjectView) resolveAuthors(ctx context.Context, comments []models.Comment) []CommentItem {
	var ids []string
	seen := make(map[string]bool)
	for _, c := range comments {
		if !seen[c.AuthorID] {
			seen[c.AuthorID] = true
			ids = append(ids, c.AuthorID)
		}
	}

	var mu sync.Mutex
	authors := make(map[string]*models.AppUser, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(authorLookupLimit)
	for _, id := range ids {
		g.Go(func() error {
			u, err := querycache.Get(gctx, v.d.Cache, querycache.User(id), func(ctx context.Context) (*models.AppUser, error) {
				return v.d.Users.GetByID(ctx, id)
			})
			if err != nil {
				// An unknown author is shown with the placeholder name.
				return nil
			}
			mu.Lock()
			authors[id] = u
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	items := make([]CommentItem, 0, len(comments))
	for _, c := range comments {
		item := CommentItem{Comment: c, AuthorName: "User"}
		if u := authors[c.AuthorID]; u != nil {
			item.AuthorName = u.Name
			item.AuthorBadge = u.Role.Badge()
		}
		items = append(items, item)
	}
	return items
}

func (v *ObjectView) Comments() Result[[]CommentItem] {
	return v.comments.Get()
}

// CanEdit reports whether the edit and delete actions are shown.
func (v *ObjectView) CanEdit() bool {
	obj, ok := v.Object()
	return ok && v.d.user().CanEdit(obj.AuthorID)
}

func (v *ObjectView) Like(ctx context.Context) (models.Reactions, error) {
	return v.react(ctx, v.d.ObjectSvc.ToggleLike)
}

func (v *ObjectView) Dislike(ctx context.Context) (models.Reactions, error) {
	return v.react(ctx, v.d.ObjectSvc.ToggleDislike)
}

type reactFunc func(context.Context, *models.AppUser, *models.ContentObject) (models.Reactions, querycache.Mutation, error)

func (v *ObjectView) react(ctx context.Context, fn reactFunc) (models.Reactions, error) {
	obj, err := v.current()
	if err != nil {
		return models.Reactions{}, err
	}
	r, mut, err := fn(ctx, v.d.user(), &obj)
	if err != nil {
		return r, err
	}
	v.d.Cache.Apply(mut)
	v.mu.Lock()
	if v.obj != nil && v.obj.ID == obj.ID {
		v.obj.Likes, v.obj.Dislikes, v.obj.Reports = r.Likes, r.Dislikes, r.Reports
	}
	v.mu.Unlock()
	return r, nil
}

func (v *ObjectView) Report(ctx context.Context) (bool, error) {
	obj, err := v.current()
	if err != nil {
		return false, err
	}
	user := v.d.user()
	changed, mut, err := v.d.ObjectSvc.Report(ctx, user, &obj)
	if err != nil || !changed {
		return changed, err
	}
	v.d.Cache.Apply(mut)
	v.mu.Lock()
	if v.obj != nil && v.obj.ID == obj.ID {
		v.obj.Reports = append(append([]string(nil), v.obj.Reports...), user.ID)
	}
	v.mu.Unlock()
	return true, nil
}

// Edit opens the create panel pre-populated with this object.
func (v *ObjectView) Edit() error {
	obj, err := v.current()
	if err != nil {
		return err
	}
	if !v.d.user().CanEdit(obj.AuthorID) {
		return models.NewForbiddenError("Only the author or a moderator can edit this")
	}
	v.d.Router.OpenCreate(&obj)
	return nil
}

// Delete removes the object and closes the panel.
func (v *ObjectView) Delete(ctx context.Context) error {
	obj, err := v.current()
	if err != nil {
		return err
	}
	mut, err := v.d.ObjectSvc.Delete(ctx, v.d.user(), &obj)
	if err != nil {
		return err
	}
	v.d.Cache.Apply(mut)
	v.d.Router.Dismiss(router.PanelObject)
	return nil
}

func (v *ObjectView) AddComment(ctx context.Context, text string) (*models.Comment, error) {
	obj, err := v.current()
	if err != nil {
		return nil, err
	}
	c, mut, err := v.d.CommentSvc.Add(ctx, v.d.user(), obj.ID, text)
	if err != nil {
		return nil, err
	}
	v.d.Cache.Apply(mut)
	return c, nil
}

func (v *ObjectView) DeleteComment(ctx context.Context, c models.Comment) error {
	mut, err := v.d.CommentSvc.Delete(ctx, v.d.user(), &c)
	if err != nil {
		return err
	}
	v.d.Cache.Apply(mut)
	return nil
}

func (v *ObjectView) ReportComment(ctx context.Context, c models.Comment) (bool, error) {
	changed, mut, err := v.d.CommentSvc.Report(ctx, v.d.user(), &c)
	if err != nil || !changed {
		return changed, err
	}
	v.d.Cache.Apply(mut)
	return true, nil
}

func (v *ObjectView) Dismiss() {
	v.d.Router.Dismiss(router.PanelObject)
}
