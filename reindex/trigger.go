package reindex

import (
	"context"
	"fmt"

	"github.com/jacentio/cascadeindex/lifecycle"
)

// EvaluateForReindex is the before-save handler. It marks rec as pending a
// parent reindex when the guard passes and rec is new or has a relevant change.
// It performs no I/O.
func (r *Registry) EvaluateForReindex(ctx context.Context, rec lifecycle.Record) error {
	_, cfg := r.resolve(rec.Model())
	if cfg == nil {
		return nil
	}
	p, ok := rec.(pendingMarker)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoPendingState, rec.Model().Name())
	}

	// Every save cycle starts unmarked, even if an earlier cycle failed
	// between its before-save and after-save hooks.
	p.clearPendingParentReindex()

	pass, err := cfg.CheckGuard(rec)
	if err != nil {
		return fmt.Errorf("reindex guard for %s: %w", rec.Model().Name(), err)
	}
	if !pass {
		r.logger.DebugContext(ctx, "parent reindex skipped by guard", "model", rec.Model().Name())
		return nil
	}

	if rec.IsNewRecord() || cfg.ChangeRelevant(rec.ChangedAttributes()) {
		p.markPendingParentReindex()
		r.logger.DebugContext(ctx, "marked for parent reindex",
			"model", rec.Model().Name(),
			"new", rec.IsNewRecord(),
		)
	}
	return nil
}

// FlushReindex is the after-save handler. A marked record cascades to its
// parents; the mark is cleared whether or not the cascade succeeds.
// Unmarked records are left alone.
func (r *Registry) FlushReindex(ctx context.Context, rec lifecycle.Record) error {
	_, cfg := r.resolve(rec.Model())
	if cfg == nil {
		return nil
	}
	p, ok := rec.(pendingMarker)
	if !ok || !p.PendingParentReindex() {
		return nil
	}
	defer p.clearPendingParentReindex()

	return r.cascade(ctx, rec, cfg)
}

// CascadeOnDestroy is the after-destroy handler. It always cascades,
// independent of the pending mark and of the guard.
func (r *Registry) CascadeOnDestroy(ctx context.Context, rec lifecycle.Record) error {
	_, cfg := r.resolve(rec.Model())
	if cfg == nil {
		return nil
	}
	return r.cascade(ctx, rec, cfg)
}

// CheckGuard evaluates the guard that applies to rec. It returns true when
// rec's model is unregistered or has no guard.
func (r *Registry) CheckGuard(rec lifecycle.Record) (bool, error) {
	_, cfg := r.resolve(rec.Model())
	if cfg == nil {
		return true, nil
	}
	return cfg.CheckGuard(rec)
}

// Cascade resolves the parents of rec and reindexes them.
// Records of unregistered models are ignored.
func (r *Registry) Cascade(ctx context.Context, rec lifecycle.Record) error {
	_, cfg := r.resolve(rec.Model())
	if cfg == nil {
		return nil
	}
	return r.cascade(ctx, rec, cfg)
}
