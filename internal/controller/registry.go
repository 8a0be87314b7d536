package controller

import (
	"log/slog"
	"sync"

	"fridgeio/internal/authn"
	"fridgeio/internal/docstore"
)

// Registry holds one live Controller per authenticated identity. Handlers
// spin up a fresh controller to run a login attempt, then adopt it here so
// subsequent requests for the same identity share the cached view.
type Registry struct {
	store    *docstore.Store
	provider authn.Provider
	logger   *slog.Logger
	onAdopt  func(identity string, c *Controller)

	mu          sync.Mutex
	controllers map[string]*Controller
}

func NewRegistry(store *docstore.Store, provider authn.Provider, logger *slog.Logger) *Registry {
	return &Registry{
		store:       store,
		provider:    provider,
		logger:      logger,
		controllers: make(map[string]*Controller),
	}
}

// SetOnAdopt installs a hook invoked once whenever a controller enters the
// registry. Used to bridge controller notifications onto other transports.
// Must be set before the registry starts handling requests.
func (r *Registry) SetOnAdopt(fn func(identity string, c *Controller)) {
	r.onAdopt = fn
}

// NewController builds an unattached controller for running a sign-in or
// sign-up attempt. On success the caller hands it to Adopt.
func (r *Registry) NewController() *Controller {
	return New(r.store, r.provider, r.logger)
}

// Adopt registers a freshly authenticated controller under its identity and
// returns the controller to use. If the identity already has a live
// controller the existing one wins and the candidate is shut down.
func (r *Registry) Adopt(c *Controller) *Controller {
	identity := c.Identity()
	if identity == "" {
		c.Close()
		return nil
	}

	r.mu.Lock()
	existing, ok := r.controllers[identity]
	if !ok {
		r.controllers[identity] = c
	}
	r.mu.Unlock()

	if ok {
		c.Logout()
		c.Close()
		return existing
	}
	if r.onAdopt != nil {
		r.onAdopt(identity, c)
	}
	return c
}

// Get returns the live controller for an identity, or nil.
func (r *Registry) Get(identity string) *Controller {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.controllers[identity]
}

// GetOrResume returns the identity's controller, creating and resuming one
// if none is live. Covers requests arriving on a persisted session after a
// restart.
func (r *Registry) GetOrResume(identity string) *Controller {
	r.mu.Lock()
	if c, ok := r.controllers[identity]; ok {
		r.mu.Unlock()
		return c
	}
	r.mu.Unlock()

	c := r.NewController()
	c.Resume(identity)

	r.mu.Lock()
	if existing, ok := r.controllers[identity]; ok {
		// Lost the race to another request.
		r.mu.Unlock()
		c.Logout()
		c.Close()
		return existing
	}
	r.controllers[identity] = c
	r.mu.Unlock()

	if r.onAdopt != nil {
		r.onAdopt(identity, c)
	}
	return c
}

// Close logs out and shuts down the controller for an identity. Unknown
// identities are a no-op.
func (r *Registry) Close(identity string) {
	r.mu.Lock()
	c, ok := r.controllers[identity]
	delete(r.controllers, identity)
	r.mu.Unlock()

	if ok {
		c.Logout()
		c.Close()
	}
}

// CloseAll shuts down every live controller. Used at server shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	controllers := r.controllers
	r.controllers = make(map[string]*Controller)
	r.mu.Unlock()

	for _, c := range controllers {
		c.Logout()
		c.Close()
	}
}
