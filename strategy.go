package offlineagent

import (
	"context"
	"net/http"

	snapshot "github.com/offline-agent/offline-agent/pkg/response-snapshot"

	"github.com/rs/zerolog"
)

// serveDocument handles html navigations: network first, cache fallback.
// The fresh response is written to the cache in the background; on network
// failure the fallback chain is cache entry, offline document, and finally a
// synthesized offline page. The caller always gets some response.
func (a *Agent) serveDocument(w http.ResponseWriter, r *http.Request, key string, log zerolog.Logger) {
	var res *snapshot.Response
	var err error
	if preload := a.preloadFor(r); preload != nil {
		log.Trace().Msg("Using preload result")
		res, err = preload()
	} else {
		res, err = a.fetchShared(r, key)
	}
	if err == nil {
		if res.StatusCode == http.StatusOK {
			// fire and forget relative to the response below
			a.inBackground(func() {
				a.writeEntry(key, res, log)
			})
		}
		a.send(w, res, "fetched", log)
		return
	}
	log.Warn().Err(err).Msg("Network fetch failed, falling back")

	if cached := a.lookup(key, log); cached != nil {
		a.send(w, cached, "fallback", log)
		return
	}
	if offline := a.lookup(a.keyer.ForPath(http.MethodGet, a.offlinePath), log); offline != nil {
		a.send(w, offline, "offline", log)
		return
	}
	// last resort when even the offline document is missing
	a.send(w, offlineDocument(), "offline", log)
}

// serveAsset handles style-script assets: stale while revalidate.
// A cached entry is returned immediately while a coalesced fetch refreshes
// the cache in the background for the next load.
func (a *Agent) serveAsset(w http.ResponseWriter, r *http.Request, key string, log zerolog.Logger) {
	if cached := a.lookup(key, log); cached != nil {
		revalidate := r.Clone(context.Background())
		a.inBackground(func() {
			if _, err := a.refresh(revalidate, key, log); err != nil {
				log.Warn().Err(err).Msg("Background revalidation failed")
			}
		})
		a.send(w, cached, "revalidating", log)
		return
	}
	res, err := a.refresh(r, key, log)
	if err != nil {
		log.Error().Err(err).Msg("Error connecting to origin")
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	a.send(w, res, "fetched", log)
}

// serveStatic handles static resources: cache first.
// These resources are non-critical, so a request that can be served neither
// from cache nor from network yields a benign placeholder instead of an
// error.
func (a *Agent) serveStatic(w http.ResponseWriter, r *http.Request, key string, log zerolog.Logger) {
	if cached := a.lookup(key, log); cached != nil {
		a.send(w, cached, "hit", log)
		return
	}
	res, err := a.refresh(r, key, log)
	if err != nil {
		log.Warn().Err(err).Msg("Network fetch failed, serving placeholder")
		a.send(w, offlinePlaceholder(), "placeholder", log)
		return
	}
	a.send(w, res, "fetched", log)
}

// refresh performs a coalesced network fetch and, on a 200 response, writes
// it into the current cache store before returning it.
func (a *Agent) refresh(r *http.Request, key string, log zerolog.Logger) (*snapshot.Response, error) {
	res, err := a.fetchShared(r, key)
	if err != nil {
		return nil, err
	}
	if res.StatusCode == http.StatusOK {
		a.writeEntry(key, res, log)
	}
	return res, nil
}

// offlinePlaceholder is served for static resources that cannot be fetched,
// so a lost image yields a marked box instead of a broken load.
func offlinePlaceholder() *snapshot.Response {
	body := `<svg xmlns="http://www.w3.org/2000/svg" width="160" height="90">` +
		`<rect width="160" height="90" fill="#eee"/>` +
		`<text x="80" y="50" text-anchor="middle" fill="#999" font-family="sans-serif" font-size="14">offline</text>` +
		`</svg>`
	return &snapshot.Response{
		StatusCode: http.StatusOK,
		Header: http.Header{
			"Content-Type": []string{"image/svg+xml"},
		},
		Body: []byte(body),
	}
}

// offlineDocument is the minimal navigation fallback used when the
// designated offline document is itself missing from the cache.
func offlineDocument() *snapshot.Response {
	body := `<!doctype html><html><head><title>Offline</title></head>` +
		`<body><h1>You are offline</h1><p>This page could not be loaded.</p></body></html>`
	return &snapshot.Response{
		StatusCode: http.StatusServiceUnavailable,
		Header: http.Header{
			"Content-Type": []string{"text/html; charset=utf-8"},
		},
		Body: []byte(body),
	}
}
