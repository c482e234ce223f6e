// Package router tracks which overlay panels are presented and the payload
// each one was last opened with.
package router

import (
	"sync"

	"mmuni/internal/models"
)

// Panel identifies an overlay panel.
type Panel string

const (
	PanelList     Panel = "list"
	PanelObject   Panel = "object"
	PanelCreate   Panel = "create"
	PanelSettings Panel = "settings"
	PanelMap      Panel = "map"
	PanelChat     Panel = "chat"
	PanelDocs     Panel = "docs"
)

// Panels lists every panel in display order.
var Panels = []Panel{PanelList, PanelObject, PanelCreate, PanelSettings, PanelMap, PanelChat, PanelDocs}

// State is the presentation state of one panel. Payload keeps its last
// value after the panel is dismissed.
type State struct {
	Visible bool
	Payload any
}

// Router maps each panel to its State. Panels are independent: opening one
// never closes or rewrites another.
type Router struct {
	mu     sync.RWMutex
	panels map[Panel]State

	lmu       sync.Mutex
	listeners map[int]func(Panel, State)
	nextID    int
}

// New returns a Router with every panel dismissed.
func New() *Router {
	r := &Router{
		panels:    make(map[Panel]State, len(Panels)),
		listeners: make(map[int]func(Panel, State)),
	}
	for _, p := range Panels {
		r.panels[p] = State{}
	}
	return r
}

// present writes payload and visibility in one step so no observer sees
// the panel visible with a stale payload.
func (r *Router) present(p Panel, payload any, setPayload bool) {
	r.mu.Lock()
	st := r.panels[p]
	if setPayload {
		st.Payload = payload
	}
	st.Visible = true
	r.panels[p] = st
	r.mu.Unlock()

	r.notify(p, st)
}

// OpenList presents the list panel scoped to filter.
func (r *Router) OpenList(filter models.ListFilter) {
	r.present(PanelList, filter, true)
}

// OpenObject presents the detail panel for obj.
func (r *Router) OpenObject(obj models.ContentObject) {
	r.present(PanelObject, obj, true)
}

// OpenCreate presents the create panel, pre-populated for editing when
// edit is non-nil.
func (r *Router) OpenCreate(edit *models.ContentObject) {
	var payload *models.ContentObject
	if edit != nil {
		cp := *edit
		payload = &cp
	}
	r.present(PanelCreate, payload, true)
}

func (r *Router) OpenSettings() { r.present(PanelSettings, nil, false) }

func (r *Router) OpenChat() { r.present(PanelChat, nil, false) }

func (r *Router) OpenDocs() { r.present(PanelDocs, nil, false) }

// OpenMap presents the map. A zero MapOptions means browse mode.
func (r *Router) OpenMap(opts models.MapOptions) {
	r.present(PanelMap, opts, true)
}

// Dismiss hides p. Dismissing a hidden panel does nothing.
func (r *Router) Dismiss(p Panel) {
	r.mu.Lock()
	st, ok := r.panels[p]
	if !ok || !st.Visible {
		r.mu.Unlock()
		return
	}
	st.Visible = false
	r.panels[p] = st
	r.mu.Unlock()

	r.notify(p, st)
}

// State returns the state of p.
func (r *Router) State(p Panel) State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.panels[p]
}

// Visible reports whether p is presented.
func (r *Router) Visible(p Panel) bool {
	return r.State(p).Visible
}

// Snapshot returns the state of every panel.
func (r *Router) Snapshot() map[Panel]State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[Panel]State, len(r.panels))
	for p, st := range r.panels {
		out[p] = st
	}
	return out
}

// Open lists the presented panels in display order.
func (r *Router) Open() []Panel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var open []Panel
	for _, p := range Panels {
		if r.panels[p].Visible {
			open = append(open, p)
		}
	}
	return open
}

// ListFilter returns the list panel's last filter.
func (r *Router) ListFilter() (models.ListFilter, bool) {
	f, ok := r.State(PanelList).Payload.(models.ListFilter)
	return f, ok
}

// SelectedObject returns the object the detail panel was last opened with.
func (r *Router) SelectedObject() (models.ContentObject, bool) {
	o, ok := r.State(PanelObject).Payload.(models.ContentObject)
	return o, ok
}

// EditTarget returns the object being edited, or nil when the create panel
// was opened blank.
func (r *Router) EditTarget() *models.ContentObject {
	o, _ := r.State(PanelCreate).Payload.(*models.ContentObject)
	return o
}

// MapOptions returns the map panel's last options.
func (r *Router) MapOptions() models.MapOptions {
	o, _ := r.State(PanelMap).Payload.(models.MapOptions)
	return o
}

// PickCoordinate reports a picked coordinate to the map's OnSelect callback
// when the map is presented in select mode. The panel stays presented;
// the caller dismisses it. Returns whether the callback ran.
func (r *Router) PickCoordinate(c models.Coordinates) bool {
	st := r.State(PanelMap)
	opts, _ := st.Payload.(models.MapOptions)
	if !st.Visible || !opts.SelectMode || opts.OnSelect == nil {
		return false
	}
	opts.OnSelect(c)
	return true
}

// Subscribe registers fn to be called after any panel changes. The
// returned func unsubscribes.
func (r *Router) Subscribe(fn func(Panel, State)) func() {
	r.lmu.Lock()
	id := r.nextID
	r.nextID++
	r.listeners[id] = fn
	r.lmu.Unlock()

	return func() {
		r.lmu.Lock()
		delete(r.listeners, id)
		r.lmu.Unlock()
	}
}

func (r *Router) notify(p Panel, st State) {
	r.lmu.Lock()
	fns := make([]func(Panel, State), 0, len(r.listeners))
	for _, fn := range r.listeners {
		fns = append(fns, fn)
	}
	r.lmu.Unlock()

	for _, fn := range fns {
		fn(p, st)
	}
}
