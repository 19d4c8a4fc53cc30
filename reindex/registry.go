package reindex

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/jacentio/cascadeindex/lifecycle"
)

// methodCacheSize bounds the number of cached accessor lookups.
const methodCacheSize = 512

// Registry holds the parent reindex configuration of child models.
// Lookups resolve through the model hierarchy, so a subtype without its own
// registration behaves like its nearest registered ancestor.
type Registry struct {
	mu      sync.RWMutex
	configs map[*lifecycle.Model]*Config
	methods *lru.Cache[methodKey, methodShape]
	logger  *slog.Logger

	// noReload holds models already warned about an accessor that ignores
	// ForceAssociationReload.
	noReload sync.Map
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	methods, _ := lru.New[methodKey, methodShape](methodCacheSize)
	return &Registry{
		configs: make(map[*lifecycle.Model]*Config),
		methods: methods,
		logger:  logger,
	}
}

// Register stores the configuration of a child model and installs its
// before-save, after-save and after-destroy hooks.
// Invalid options are rejected here rather than at the first save.
func (r *Registry) Register(model *lifecycle.Model, opts Options) error {
	if model == nil {
		return ErrNilModel
	}
	cfg, err := newConfig(opts)
	if err != nil {
		return fmt.Errorf("register %s: %w", model.Name(), err)
	}

	r.mu.Lock()
	if _, dup := r.configs[model]; dup {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, model.Name())
	}
	r.configs[model] = cfg
	r.mu.Unlock()

	model.BeforeSave(r.hook(model, r.EvaluateForReindex))
	model.AfterSave(r.hook(model, r.FlushReindex))
	model.AfterDestroy(r.hook(model, r.CascadeOnDestroy))

	r.logger.Debug("registered parent reindex",
		"model", model.Name(),
		"parent", cfg.Parent,
		"forceReload", cfg.ForceAssociationReload,
	)
	return nil
}

// MustRegister is like Register but panics on error.
// It is intended for package initialization.
func (r *Registry) MustRegister(model *lifecycle.Model, opts Options) {
	if err := r.Register(model, opts); err != nil {
		panic(err)
	}
}

// Lookup returns the configuration that applies to model: its own
// registration or that of its nearest registered ancestor.
func (r *Registry) Lookup(model *lifecycle.Model) (Config, bool) {
	_, cfg := r.resolve(model)
	if cfg == nil {
		return Config{}, false
	}
	return *cfg, true
}

// resolve walks the model chain and returns the nearest registered model with its config.
func (r *Registry) resolve(model *lifecycle.Model) (*lifecycle.Model, *Config) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, cur := range model.Lineage() {
		if cfg, ok := r.configs[cur]; ok {
			return cur, cfg
		}
	}
	return nil, nil
}

// hook wraps a handler so that it runs only from the hooks of the nearest
// registered model. A subtype registered on its own inherits its ancestor's
// hooks as well as installing its own; only one set may act per save.
func (r *Registry) hook(owner *lifecycle.Model, fn lifecycle.Hook) lifecycle.Hook {
	return func(ctx context.Context, rec lifecycle.Record) error {
		if nearest, _ := r.resolve(rec.Model()); nearest != owner {
			return nil
		}
		return fn(ctx, rec)
	}
}
