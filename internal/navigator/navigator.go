// Package navigator picks the top-level view from the app state.
package navigator

import (
	"sync"
	"time"

	"mmuni/internal/appstate"
)

// State is the root navigation state.
type State int

const (
	Hydrating State = iota
	Unselected
	Selected
)

func (s State) String() string {
	switch s {
	case Hydrating:
		return "hydrating"
	case Unselected:
		return "unselected"
	case Selected:
		return "selected"
	}
	return "unknown"
}

// View is what the shell renders for a state.
type View string

const (
	ViewLoading View = "loading"
	ViewStart   View = "start"
	ViewHome    View = "home"
)

// Transition records one state change.
type Transition struct {
	From State
	To   State
	At   time.Time
}

// Derive maps a snapshot to a navigation state. A snapshot that is not yet
// hydrated is always Hydrating, whatever its municipality says.
func Derive(snap appstate.Snapshot) State {
	switch {
	case !snap.Hydrated:
		return Hydrating
	case snap.HasMunicipality():
		return Selected
	default:
		return Unselected
	}
}

// Navigator follows an appstate.Store and exposes the current root view.
type Navigator struct {
	mu        sync.Mutex
	state     State
	history   []Transition
	listeners map[int]func(Transition)
	nextID    int
	now       func() time.Time

	unsubscribe func()
}

// New attaches a Navigator to store.
func New(store *appstate.Store) *Navigator {
	n := &Navigator{
		state:     Hydrating,
		listeners: make(map[int]func(Transition)),
		now:       time.Now,
	}
	n.unsubscribe = store.Subscribe(n.observe)
	n.observe(store.Snapshot())
	return n
}

func (n *Navigator) observe(snap appstate.Snapshot) {
	next := Derive(snap)

	n.mu.Lock()
	if next == n.state {
		n.mu.Unlock()
		return
	}
	// Nothing leads back to Hydrating once it has been left.
	if next == Hydrating {
		n.mu.Unlock()
		return
	}
	tr := Transition{From: n.state, To: next, At: n.now()}
	n.state = next
	n.history = append(n.history, tr)
	fns := make([]func(Transition), 0, len(n.listeners))
	for _, fn := range n.listeners {
		fns = append(fns, fn)
	}
	n.mu.Unlock()

	for _, fn := range fns {
		fn(tr)
	}
}

// State returns the current state.
func (n *Navigator) State() State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// View returns the view to render for the current state.
func (n *Navigator) View() View {
	switch n.State() {
	case Selected:
		return ViewHome
	case Unselected:
		return ViewStart
	}
	return ViewLoading
}

// History returns every transition so far.
func (n *Navigator) History() []Transition {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Transition(nil), n.history...)
}

// Subscribe registers fn for state transitions. The returned func
// unsubscribes.
func (n *Navigator) Subscribe(fn func(Transition)) func() {
	n.mu.Lock()
	id := n.nextID
	n.nextID++
	n.listeners[id] = fn
	n.mu.Unlock()

	return func() {
		n.mu.Lock()
		delete(n.listeners, id)
		n.mu.Unlock()
	}
}

// Close detaches the navigator from its store.
func (n *Navigator) Close() {
	if n.unsubscribe != nil {
		n.unsubscribe()
	}
}
