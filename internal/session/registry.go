package session

import (
	"time"

	"github.com/patrickmn/go-cache"
)

// Registry is the process-wide mapping of session ids to live controllers.
// It is touched concurrently by the streaming loop and the out-of-band
// clarification submit call. Entries expire after the configured TTL so an
// abandoned session does not leak its sandbox process.
type Registry struct {
	cache *cache.Cache
}

// NewRegistry creates a registry. A non-positive TTL falls back to one hour.
func NewRegistry(ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = time.Hour
	}
	c := cache.New(ttl, 10*time.Minute)
	c.OnEvicted(func(_ string, value interface{}) {
		if ctrl, ok := value.(*Controller); ok {
			_ = ctrl.Close()
		}
	})
	return &Registry{cache: c}
}

// Put registers a controller under its session id.
func (r *Registry) Put(ctrl *Controller) {
	r.cache.Set(ctrl.ID(), ctrl, cache.DefaultExpiration)
}

// Get returns the controller for the session id. Access re-arms the TTL so
// a session stays alive as long as it is being used.
func (r *Registry) Get(sessionID string) (*Controller, bool) {
	if v, found := r.cache.Get(sessionID); found {
		ctrl := v.(*Controller)
		r.cache.Set(sessionID, ctrl, cache.DefaultExpiration)
		return ctrl, true
	}
	return nil, false
}

// Touch re-arms the TTL for a live session. The streaming loop calls this
// on every emitted event so a long-running stream is never expired from
// under its own kernel.
func (r *Registry) Touch(sessionID string) {
	if v, found := r.cache.Get(sessionID); found {
		r.cache.Set(sessionID, v, cache.DefaultExpiration)
	}
}

// Delete removes the controller, closing it through the eviction hook.
func (r *Registry) Delete(sessionID string) {
	r.cache.Delete(sessionID)
}

// Items returns the ids of all live sessions.
func (r *Registry) Items() []string {
	items := r.cache.Items()
	ids := make([]string, 0, len(items))
	for id := range items {
		ids = append(ids, id)
	}
	return ids
}
