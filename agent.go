package offlineagent

import (
	"io"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	coalescer "github.com/offline-agent/offline-agent/pkg/request-coalescer"
	requestkey "github.com/offline-agent/offline-agent/pkg/request-key"
	resourceclass "github.com/offline-agent/offline-agent/pkg/resource-class"
	snapshot "github.com/offline-agent/offline-agent/pkg/response-snapshot"
	"github.com/offline-agent/offline-agent/store"

	"github.com/rs/zerolog"
)

// StatusHeader reports which path served a response:
// bypass, fetched, hit, revalidating, fallback, offline or placeholder.
const StatusHeader = "Offline-Agent-Status"

type Config struct {
	// Storage for cache entries.
	Store store.Provider
	// URL of the origin server.
	// Origins with paths are not supported.
	OriginURL url.URL
	// Version of the application build this agent serves.
	// A version bump opens a new cache namespace.
	Version string
	// Manifest of critical same-origin paths pre-warmed at install time.
	Manifest []string
	// Path of the offline fallback document.
	// Defaults to "/offline.html".
	OfflinePath string
	// Maximum number of entries kept per namespace. Zero disables the bound.
	MaxEntries int
	// Maximum age of an entry. Zero disables the bound.
	MaxEntryAge time.Duration
	// Logger to use. The global zerolog logger is used if nil.
	Logger *zerolog.Logger
	// Transport used for origin fetches. http.DefaultTransport if nil.
	Transport http.RoundTripper
}

// Agent is the offline caching agent. It sits between the application and
// the network as an http.Handler, classifies every request and serves it
// per the caching strategy of its resource class.
//
// All mutable worker state (the pending request table, the lifecycle state)
// lives on the instance; construct one per process and hand it to every
// event handler.
type Agent struct {
	provider    store.Provider
	versions    VersionManager
	evictor     Evictor
	keyer       requestkey.Keyer
	coalescer   coalescer.Coalescer
	log         zerolog.Logger
	originURL   url.URL
	manifest    []string
	offlinePath string
	httpClient  http.Client

	state          atomic.Int32
	preloadEnabled atomic.Bool
	background     sync.WaitGroup
}

// CreateAgent initializes the agent instance.
// The agent starts in the installing state; call Install and Activate to
// bring it into service.
func CreateAgent(config Config) *Agent {
	// use console logger if not specified in config
	var logger zerolog.Logger
	if config.Logger == nil {
		logger = zerolog.New(zerolog.NewConsoleWriter())
	} else {
		logger = *config.Logger
	}

	// create a child logger and add defaults
	logger = logger.With().
		Str("origin", config.OriginURL.String()).
		Str("version", config.Version).
		Logger()

	if config.OfflinePath == "" {
		config.OfflinePath = "/offline.html"
	}

	a := &Agent{
		provider:    config.Store,
		versions:    NewVersionManager(config.Version),
		evictor:     Evictor{MaxEntries: config.MaxEntries, MaxAge: config.MaxEntryAge},
		keyer:       requestkey.NewKeyer(config.OriginURL.String()),
		log:         logger,
		originURL:   config.OriginURL,
		manifest:    config.Manifest,
		offlinePath: config.OfflinePath,
		httpClient: http.Client{
			Transport: config.Transport,
			// do not follow redirects
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
	a.state.Store(int32(StateInstalling))
	return a
}

// ServeHTTP implements the http.Handler interface.
// It is the fetch event surface: every intercepted request enters here.
func (a *Agent) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := a.log.With().
		Str("method", r.Method).
		Str("url", r.URL.String()).
		Logger()

	// only GET requests are eligible for caching
	if r.Method != http.MethodGet {
		a.bypass(w, r, log)
		return
	}

	class := resourceclass.Classify(r)
	log = log.With().Str("class", class.String()).Logger()

	// cross-origin requests are bypassed unless classified api
	if class != resourceclass.Api && !a.sameOrigin(r) {
		a.bypass(w, r, log)
		return
	}

	key := a.keyer.ForRequest(r)
	log = log.With().Str("key", key).Logger()

	switch class {
	case resourceclass.Api:
		a.bypass(w, r, log)
	case resourceclass.Html:
		a.serveDocument(w, r, key, log)
	case resourceclass.StyleScript:
		a.serveAsset(w, r, key, log)
	default:
		a.serveStatic(w, r, key, log)
	}
}

// sameOrigin reports whether the request targets the configured origin.
// Requests addressed to the agent itself (relative URL) count as same-origin.
func (a *Agent) sameOrigin(r *http.Request) bool {
	return !r.URL.IsAbs() || r.URL.Host == a.originURL.Host
}

// fetchOrigin performs a network fetch and snapshots the response.
// Relative request URLs are rewritten to the configured origin.
func (a *Agent) fetchOrigin(r *http.Request) (*snapshot.Response, error) {
	req := r.Clone(r.Context())
	if !req.URL.IsAbs() {
		req.URL.Scheme = a.originURL.Scheme
		req.URL.Host = a.originURL.Host
	}
	req.RequestURI = ""
	res, err := a.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	return snapshot.FromHTTP(res)
}

// fetchShared performs a coalesced network fetch for the given key:
// concurrent calls with the same key share one underlying fetch.
func (a *Agent) fetchShared(r *http.Request, key string) (*snapshot.Response, error) {
	return a.coalescer.Fetch(r.Context(), key, func() (*snapshot.Response, error) {
		return a.fetchOrigin(r)
	})
}

// currentStore opens the cache namespace of the current version.
func (a *Agent) currentStore() (store.Store, error) {
	return a.provider.Open(a.versions.CurrentNamespace())
}

// lookup returns the cached snapshot for the key, or nil if there is none.
// Storage errors are logged and treated as a miss.
func (a *Agent) lookup(key string, log zerolog.Logger) *snapshot.Response {
	st, err := a.currentStore()
	if err != nil {
		log.Error().Err(err).Msg("Could not open cache store")
		return nil
	}
	bytes, ok, err := st.Get(key)
	if err != nil {
		log.Error().Err(err).Msg("Could not read from cache")
		return nil
	}
	if !ok {
		return nil
	}
	res, err := snapshot.Unmarshal(bytes)
	if err != nil {
		log.Error().Err(err).Msg("Could not parse cached entry")
		return nil
	}
	return res
}

// writeEntry stores the snapshot under the key in the current namespace.
// Write failures are logged and swallowed: they must never fail a response
// already being delivered.
func (a *Agent) writeEntry(key string, res *snapshot.Response, log zerolog.Logger) {
	st, err := a.currentStore()
	if err != nil {
		log.Error().Err(err).Msg("Could not open cache store")
		return
	}
	bytes, err := res.Marshal()
	if err != nil {
		log.Error().Err(err).Msg("Could not serialize response for cache")
		return
	}
	log.Trace().Msg("Writing to cache")
	if err := st.Put(key, bytes); err != nil {
		log.Error().Err(err).Msg("Could not write to cache")
	}
}

// send writes the snapshot to the client, tagged with the serving status.
func (a *Agent) send(w http.ResponseWriter, res *snapshot.Response, status string, log zerolog.Logger) {
	w.Header().Set(StatusHeader, status)
	if err := res.WriteTo(w); err != nil {
		log.Error().Err(err).Msg("Could not write response body to client")
	}
	log.Debug().
		Str("status", status).
		Int("code", res.StatusCode).
		Msg("Sending response to client")
}

// bypass forwards the request straight to network with no caching
// interaction. Network errors are surfaced to the caller.
func (a *Agent) bypass(w http.ResponseWriter, r *http.Request, log zerolog.Logger) {
	req := r.Clone(r.Context())
	if !req.URL.IsAbs() {
		req.URL.Scheme = a.originURL.Scheme
		req.URL.Host = a.originURL.Host
	}
	req.RequestURI = ""
	res, err := a.httpClient.Do(req)
	if err != nil {
		log.Error().Err(err).Msg("Error connecting to origin")
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	defer res.Body.Close()
	w.Header().Set(StatusHeader, "bypass")
	copyHeader(w.Header(), res.Header)
	w.WriteHeader(res.StatusCode)
	if _, err := io.Copy(w, res.Body); err != nil {
		log.Error().Err(err).Msg("Could not write response body to client")
	}
	log.Debug().Int("code", res.StatusCode).Msg("Forwarded response to client")
}

func copyHeader(dst, src http.Header) {
	for k, vv := range src {
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}
