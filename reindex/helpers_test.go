package reindex_test

import (
	"context"
	"errors"
	"iter"
	"testing"

	"github.com/jacentio/cascadeindex/lifecycle"
	"github.com/jacentio/cascadeindex/reindex"
)

// --- Test Records ---

// recorder collects reindex calls in order.
type recorder struct {
	calls []string
}

// parentDoc is a parent record that records its reindex calls.
type parentDoc struct {
	name string
	rec  *recorder
	err  error
}

func (p *parentDoc) Reindex(ctx context.Context) error {
	p.rec.calls = append(p.rec.calls, p.name)
	return p.err
}

// comment is a child record whose parent accessor is ParentModel.
type comment struct {
	lifecycle.State
	reindex.Pending

	model  *lifecycle.Model
	parent any

	// log holds "reload" and "read" entries in call order.
	log []string

	flagged bool
}

func (c *comment) Model() *lifecycle.Model { return c.model }

func (c *comment) ParentModel(reload bool) any {
	if reload {
		c.log = append(c.log, "reload")
	} else {
		c.log = append(c.log, "read")
	}
	return c.parent
}

// plainComment has no Pending state.
type plainComment struct {
	lifecycle.State
	model *lifecycle.Model
}

func (c *plainComment) Model() *lifecycle.Model { return c.model }

// resolverComment resolves associations by name.
type resolverComment struct {
	lifecycle.State
	reindex.Pending

	model   *lifecycle.Model
	parents map[string]any
	err     error
	reloads []string
}

func (c *resolverComment) Model() *lifecycle.Model { return c.model }

func (c *resolverComment) ResolveAssociation(ctx context.Context, name string, reload bool) (any, error) {
	if c.err != nil {
		return nil, c.err
	}
	v, ok := c.parents[name]
	if !ok {
		return nil, reindex.ErrUnknownAssociation
	}
	if reload {
		c.reloads = append(c.reloads, name)
	}
	return v, nil
}

// ctxComment exposes a context-aware accessor returning an error.
type ctxComment struct {
	lifecycle.State
	reindex.Pending

	model  *lifecycle.Model
	parent *parentDoc
	err    error
	gotCtx context.Context
}

func (c *ctxComment) Model() *lifecycle.Model { return c.model }

func (c *ctxComment) Owner(ctx context.Context) (*parentDoc, error) {
	c.gotCtx = ctx
	return c.parent, c.err
}

// seqComment returns its parents as an iterator.
type seqComment struct {
	lifecycle.State
	reindex.Pending

	model   *lifecycle.Model
	parents []reindex.Reindexer
}

func (c *seqComment) Model() *lifecycle.Model { return c.model }

func (c *seqComment) Watchers() iter.Seq[reindex.Reindexer] {
	return func(yield func(reindex.Reindexer) bool) {
		for _, p := range c.parents {
			if !yield(p) {
				return
			}
		}
	}
}

// --- Helpers ---

var errBoom = errors.New("boom")

// newRegistry registers a fresh model with opts and returns both.
func newRegistry(t *testing.T, name string, opts reindex.Options) (*reindex.Registry, *lifecycle.Model) {
	t.Helper()
	model := lifecycle.NewModel(name)
	reg := reindex.NewRegistry(nil)
	if err := reg.Register(model, opts); err != nil {
		t.Fatalf("Register: %v", err)
	}
	return reg, model
}

// existing returns a persisted comment with the given changes.
func existing(model *lifecycle.Model, parent any, changed ...string) *comment {
	c := &comment{model: model, parent: parent}
	c.MarkPersisted()
	c.MarkChanged(changed...)
	return c
}

// save runs one save cycle the way a persistence layer would.
func save(t *testing.T, rec lifecycle.Record) error {
	t.Helper()
	ctx := context.Background()
	if err := rec.Model().RunBeforeSave(ctx, rec); err != nil {
		return err
	}
	err := rec.Model().RunAfterSave(ctx, rec)
	if tr, ok := rec.(lifecycle.Tracker); ok {
		tr.MarkPersisted()
	}
	return err
}

func destroy(t *testing.T, rec lifecycle.Record) error {
	t.Helper()
	return rec.Model().RunAfterDestroy(context.Background(), rec)
}

func expectCalls(t *testing.T, rec *recorder, want ...string) {
	t.Helper()
	if len(rec.calls) != len(want) {
		t.Fatalf("expected reindex calls %v, got %v", want, rec.calls)
	}
	for i := range want {
		if rec.calls[i] != want[i] {
			t.Errorf("call %d: expected %q, got %q", i, want[i], rec.calls[i])
		}
	}
}
