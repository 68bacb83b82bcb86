package viz

import (
	"encoding/json"
	"sync"
)

// volatileFields are cosmetic: two charts that differ only in these still
// describe the same data mapping and count as duplicates.
var volatileFields = map[string]bool{
	"id":    true,
	"name":  true,
	"color": true,
	"title": true,
}

// Signature returns the canonical serialization of a normalized
// visualization input with volatile fields stripped. Map keys are sorted by
// the JSON encoder, so structurally equal inputs produce identical
// signatures.
func Signature(in any) (string, error) {
	raw, err := json.Marshal(in)
	if err != nil {
		return "", err
	}
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return "", err
	}
	stripped := stripVolatile(value)
	out, err := json.Marshal(stripped)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func stripVolatile(value any) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, val := range v {
			if volatileFields[key] {
				continue
			}
			out[key] = stripVolatile(val)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, val := range v {
			out[i] = stripVolatile(val)
		}
		return out
	default:
		return value
	}
}

// Cache remembers visualization signatures already emitted in a session.
// It never evicts: growth is bounded by the session step budget.
type Cache struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewCache creates an empty dedup cache.
func NewCache() *Cache {
	return &Cache{seen: make(map[string]struct{})}
}

// Seen reports whether the signature was recorded before.
func (c *Cache) Seen(signature string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.seen[signature]
	return ok
}

// Record marks the signature as emitted.
func (c *Cache) Record(signature string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen[signature] = struct{}{}
}
