package requestkey

import (
	"net/http"
)

const methodSeparator = ":"

// Keyer derives cache keys from requests. A key identifies a request by its
// method and absolute URL on the configured origin, so the same key is
// produced for a request regardless of which client issued it.
type Keyer struct {
	// Unique identifier for the origin, usually the origin itself.
	OriginId string
}

func NewKeyer(originId string) Keyer {
	return Keyer{OriginId: originId}
}

// ForRequest returns the cache key for the given request.
func (k Keyer) ForRequest(r *http.Request) string {
	return k.ForPath(r.Method, r.URL.RequestURI())
}

// ForPath returns the cache key for the given method and origin-relative path.
func (k Keyer) ForPath(method, path string) string {
	return method + methodSeparator + k.OriginId + path
}
