package offlineagent

import (
	"context"
	"fmt"
	"net/http"

	snapshot "github.com/offline-agent/offline-agent/pkg/response-snapshot"
)

// State is the lifecycle state of the agent.
type State int32

const (
	// StateInstalling: pre-warming the new namespace from the manifest.
	StateInstalling State = iota
	// StateWaiting: installed, waiting for promotion.
	StateWaiting
	// StateActivating: version cutover in progress.
	StateActivating
	// StateActive: steady state, serving fetch events.
	StateActive
)

func (s State) String() string {
	switch s {
	case StateInstalling:
		return "installing"
	case StateWaiting:
		return "waiting"
	case StateActivating:
		return "activating"
	case StateActive:
		return "active"
	}
	return "unknown"
}

// Control channel message types.
const (
	MessageSkipWaiting = "SKIP_WAITING"
	MessageAck         = "ACK"
)

// Message is a control channel message.
type Message struct {
	Type string `json:"type" yaml:"type"`
}

// State returns the current lifecycle state.
func (a *Agent) State() State {
	return State(a.state.Load())
}

// Install pre-populates the new version's namespace with the manifest of
// critical assets. If any manifest fetch fails, installation fails entirely
// and the namespace is left as garbage for the next cutover to collect; a
// previously active version keeps serving.
func (a *Agent) Install(ctx context.Context) error {
	a.state.Store(int32(StateInstalling))
	a.log.Info().Strs("manifest", a.manifest).Msg("Installing")

	st, err := a.currentStore()
	if err != nil {
		return fmt.Errorf("install: open namespace: %w", err)
	}
	for _, path := range a.manifest {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, path, nil)
		if err != nil {
			return fmt.Errorf("install: request for %s: %w", path, err)
		}
		res, err := a.fetchOrigin(req)
		if err != nil {
			return fmt.Errorf("install: fetch %s: %w", path, err)
		}
		if res.StatusCode != http.StatusOK {
			return fmt.Errorf("install: fetch %s: status %d", path, res.StatusCode)
		}
		bytes, err := res.Marshal()
		if err != nil {
			return fmt.Errorf("install: serialize %s: %w", path, err)
		}
		if err := st.Put(a.keyer.ForPath(http.MethodGet, path), bytes); err != nil {
			return fmt.Errorf("install: store %s: %w", path, err)
		}
	}

	a.state.Store(int32(StateWaiting))
	a.log.Info().Msg("Installed, waiting for activation")
	return nil
}

// Activate performs the version cutover: delete namespaces of superseded
// versions, sweep the current namespace, enable request preloading, and
// begin accepting fetch events. Per-namespace deletion failures are logged
// and never abort activation.
func (a *Agent) Activate(ctx context.Context) error {
	a.state.Store(int32(StateActivating))
	a.log.Info().Msg("Activating")

	if names, err := a.provider.Namespaces(); err != nil {
		a.log.Error().Err(err).Msg("Could not list namespaces for reconciliation")
	} else {
		for _, ns := range a.versions.Reconcile(names) {
			a.log.Debug().Str("namespace", ns).Msg("Deleting superseded namespace")
			if err := a.provider.DeleteNamespace(ns); err != nil {
				a.log.Error().Err(err).Str("namespace", ns).Msg("Could not delete namespace")
			}
		}
	}

	if st, err := a.currentStore(); err != nil {
		a.log.Error().Err(err).Msg("Could not open namespace for eviction sweep")
	} else {
		a.evictor.Sweep(st, a.log)
	}

	a.preloadEnabled.Store(true)
	a.state.Store(int32(StateActive))
	a.log.Info().Msg("Active")
	return ctx.Err()
}

// HandleMessage is the control channel surface.
// SKIP_WAITING promotes a waiting agent to activation immediately; the reply
// is an ACK.
func (a *Agent) HandleMessage(ctx context.Context, msg Message) (Message, error) {
	switch msg.Type {
	case MessageSkipWaiting:
		a.log.Debug().Msg("Skip waiting requested")
		if a.State() == StateWaiting {
			if err := a.Activate(ctx); err != nil {
				return Message{}, err
			}
		}
		return Message{Type: MessageAck}, nil
	}
	return Message{}, fmt.Errorf("unknown message type %q", msg.Type)
}

// Sync is the background sync trigger. Tags are an extension point; none are
// handled at this layer.
func (a *Agent) Sync(tag string) {
	a.log.Debug().Str("tag", tag).Msg("Ignoring background sync trigger")
}

// inBackground runs fn in a goroutine tracked by the agent, extending the
// worker's lifetime until the work settles.
func (a *Agent) inBackground(fn func()) {
	a.background.Add(1)
	go func() {
		defer a.background.Done()
		fn()
	}()
}

// Wait blocks until all background work started so far has settled.
// Hosts should call it before tearing the agent down.
func (a *Agent) Wait() {
	a.background.Wait()
}

// PreloadFunc resolves to a response fetched by the host ahead of the fetch
// event, so the html strategy can consume it instead of issuing a duplicate
// network fetch.
type PreloadFunc func() (*snapshot.Response, error)

type preloadContextKey struct{}

// WithPreload attaches a preload result to the request context.
func WithPreload(ctx context.Context, fn PreloadFunc) context.Context {
	return context.WithValue(ctx, preloadContextKey{}, fn)
}

// PreloadEnabled reports whether the host should start preload fetches.
// Preloading is enabled during activation.
func (a *Agent) PreloadEnabled() bool {
	return a.preloadEnabled.Load()
}

// preloadFor returns the preload result attached to the request, if
// preloading is enabled and one is present.
func (a *Agent) preloadFor(r *http.Request) PreloadFunc {
	if !a.preloadEnabled.Load() {
		return nil
	}
	fn, _ := r.Context().Value(preloadContextKey{}).(PreloadFunc)
	return fn
}
