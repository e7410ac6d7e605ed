package web

import (
	"sync"
	"time"

	"github.com/2beens/notesapp/internal/auth"
	"github.com/2beens/notesapp/internal/notes"
	"github.com/2beens/notesapp/internal/telemetry/metrics"

	log "github.com/sirupsen/logrus"
)

// ViewFactory builds the notes view of a freshly signed in session.
type ViewFactory func(session *auth.Session) *notes.View

type viewEntry struct {
	view     *notes.View
	lastUsed time.Time
}

// Views keeps one notes view per session token.
type Views struct {
	mutex   sync.Mutex
	views   map[string]*viewEntry
	factory ViewFactory
	metrics *metrics.Manager
	nowFunc func() time.Time
}

func NewViews(factory ViewFactory, metricsManager *metrics.Manager) *Views {
	return &Views{
		views:   make(map[string]*viewEntry),
		factory: factory,
		metrics: metricsManager,
		nowFunc: time.Now,
	}
}

// Get returns the session's view, creating it on first use.
func (v *Views) Get(session *auth.Session) *notes.View {
	v.mutex.Lock()
	defer v.mutex.Unlock()

	entry, ok := v.views[session.Token]
	if !ok {
		entry = &viewEntry{view: v.factory(session)}
		v.views[session.Token] = entry
		v.metrics.GaugeActiveViews.Set(float64(len(v.views)))
	}
	entry.lastUsed = v.nowFunc()

	return entry.view
}

func (v *Views) Drop(token string) {
	v.mutex.Lock()
	defer v.mutex.Unlock()

	delete(v.views, token)
	v.metrics.GaugeActiveViews.Set(float64(len(v.views)))
}

// DropIdle removes views not used for longer than maxIdle, and returns how many were removed.
func (v *Views) DropIdle(maxIdle time.Duration) int {
	v.mutex.Lock()
	defer v.mutex.Unlock()

	now := v.nowFunc()
	dropped := 0
	for token, entry := range v.views {
		if now.Sub(entry.lastUsed) > maxIdle {
			delete(v.views, token)
			dropped++
		}
	}
	v.metrics.GaugeActiveViews.Set(float64(len(v.views)))

	if dropped > 0 {
		log.Debugf("views: dropped %d idle views", dropped)
	}

	return dropped
}

func (v *Views) Len() int {
	v.mutex.Lock()
	defer v.mutex.Unlock()
	return len(v.views)
}
