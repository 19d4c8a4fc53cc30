package reindex

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"reflect"
	"slices"

	"github.com/jacentio/cascadeindex/lifecycle"
)

var (
	boolType    = reflect.TypeFor[bool]()
	contextType = reflect.TypeFor[context.Context]()
	errorType   = reflect.TypeFor[error]()
)

// accessor reads the parent association of one record.
type accessor struct {
	// reloadable is false for accessor methods without a reload parameter.
	reloadable bool
	read       func(ctx context.Context, reload bool) (any, error)
}

func (r *Registry) cascade(ctx context.Context, rec lifecycle.Record, cfg *Config) error {
	model := rec.Model().Name()

	acc, ok := r.resolveAccessor(rec, cfg)
	if !ok {
		r.logger.DebugContext(ctx, "parent accessor not resolvable", "model", model, "parent", cfg.Parent)
		return nil
	}

	if cfg.ForceAssociationReload && !acc.reloadable {
		r.warnNoReload(ctx, rec.Model(), cfg)
	}
	if cfg.ForceAssociationReload && acc.reloadable {
		if _, err := acc.read(ctx, true); err != nil {
			if errors.Is(err, ErrUnknownAssociation) {
				return nil
			}
			return fmt.Errorf("reload %s of %s: %w", cfg.Parent, model, err)
		}
	}

	value, err := acc.read(ctx, false)
	if err != nil {
		if errors.Is(err, ErrUnknownAssociation) {
			return nil
		}
		return fmt.Errorf("read %s of %s: %w", cfg.Parent, model, err)
	}

	parents, err := parentsOf(value)
	if err != nil {
		return fmt.Errorf("%s of %s: %w", cfg.Parent, model, err)
	}
	if parents == nil {
		return nil
	}

	var errs []error
	n := 0
	for parent := range parents {
		if isNil(parent) {
			err := fmt.Errorf("reindex %s[%d] of %s: %w: nil parent", cfg.Parent, n, model, ErrNotReindexable)
			r.logger.ErrorContext(ctx, "parent reindex failed", "model", model, "error", err)
			return errors.Join(append(errs, err)...)
		}
		if err := parent.Reindex(ctx); err != nil {
			err = fmt.Errorf("reindex %s[%d] of %s: %w", cfg.Parent, n, model, err)
			if !cfg.ContinueOnError {
				r.logger.ErrorContext(ctx, "parent reindex failed", "model", model, "error", err)
				return err
			}
			errs = append(errs, err)
		}
		n++
	}

	if len(errs) > 0 {
		r.logger.ErrorContext(ctx, "parent reindex failed",
			"model", model,
			"failed", len(errs),
			"parents", n,
		)
		return errors.Join(errs...)
	}

	r.logger.DebugContext(ctx, "parents reindexed", "model", model, "parents", n)
	return nil
}

// warnNoReload logs, once per model, that a forced reload cannot be honored
// because the accessor takes no reload flag.
func (r *Registry) warnNoReload(ctx context.Context, model *lifecycle.Model, cfg *Config) {
	if _, seen := r.noReload.LoadOrStore(model, struct{}{}); seen {
		return
	}
	r.logger.WarnContext(ctx, "forced association reload skipped, accessor takes no reload flag",
		"model", model.Name(),
		"parent", cfg.Parent,
		"method", cfg.Method,
	)
}

// resolveAccessor finds how to read the configured parent association of rec.
func (r *Registry) resolveAccessor(rec lifecycle.Record, cfg *Config) (accessor, bool) {
	if res, ok := rec.(AssociationResolver); ok {
		return accessor{
			reloadable: true,
			read: func(ctx context.Context, reload bool) (any, error) {
				return res.ResolveAssociation(ctx, cfg.Parent, reload)
			},
		}, true
	}
	return r.methodAccessor(rec, cfg.Method)
}

// methodKey identifies an accessor method of a concrete record type.
type methodKey struct {
	typ  reflect.Type
	name string
}

// methodShape is the cached result of inspecting an accessor method.
type methodShape struct {
	ok         bool
	index      int
	withCtx    bool
	withReload bool
}

// methodAccessor looks up an exported accessor method by name. Accepted shapes:
//
//	func() T
//	func(reload bool) T
//	func(ctx context.Context) T
//	func(ctx context.Context, reload bool) T
//
// each optionally returning (T, error).
func (r *Registry) methodAccessor(rec any, name string) (accessor, bool) {
	if name == "" {
		return accessor{}, false
	}
	rv := reflect.ValueOf(rec)
	key := methodKey{typ: rv.Type(), name: name}
	shape, cached := r.methods.Get(key)
	if !cached {
		shape = inspectMethod(rv.Type(), name)
		r.methods.Add(key, shape)
	}
	if !shape.ok {
		return accessor{}, false
	}

	m := rv.Method(shape.index)
	return accessor{
		reloadable: shape.withReload,
		read: func(ctx context.Context, reload bool) (any, error) {
			args := make([]reflect.Value, 0, 2)
			if shape.withCtx {
				args = append(args, reflect.ValueOf(&ctx).Elem())
			}
			if shape.withReload {
				args = append(args, reflect.ValueOf(reload))
			}
			out := m.Call(args)
			if len(out) == 2 && !out[1].IsNil() {
				return nil, out[1].Interface().(error)
			}
			return out[0].Interface(), nil
		},
	}, true
}

func inspectMethod(typ reflect.Type, name string) methodShape {
	method, found := typ.MethodByName(name)
	if !found {
		return methodShape{}
	}

	// The method type of a concrete type starts with the receiver.
	t := method.Type
	in := make([]reflect.Type, 0, t.NumIn())
	for i := 1; i < t.NumIn(); i++ {
		in = append(in, t.In(i))
	}

	shape := methodShape{index: method.Index}
	switch {
	case len(in) == 0:
	case len(in) == 1 && in[0] == boolType:
		shape.withReload = true
	case len(in) == 1 && in[0] == contextType:
		shape.withCtx = true
	case len(in) == 2 && in[0] == contextType && in[1] == boolType:
		shape.withCtx, shape.withReload = true, true
	default:
		return methodShape{}
	}
	switch {
	case t.NumOut() == 1:
	case t.NumOut() == 2 && t.Out(1) == errorType:
	default:
		return methodShape{}
	}

	shape.ok = true
	return shape
}

// parentsOf turns an accessor result into the sequence of parents to reindex.
// A nil sequence means there is no parent. Enumerable values are recognized
// before single parents.
func parentsOf(value any) (iter.Seq[Reindexer], error) {
	if isNil(value) {
		return nil, nil
	}

	switch v := value.(type) {
	case []Reindexer:
		for i, p := range v {
			if isNil(p) {
				return nil, fmt.Errorf("%w: element %d is nil", ErrNotReindexable, i)
			}
		}
		return slices.Values(v), nil
	case iter.Seq[Reindexer]:
		return v, nil
	case func(func(Reindexer) bool):
		return v, nil
	}

	rv := reflect.ValueOf(value)
	if k := rv.Kind(); k == reflect.Slice || k == reflect.Array {
		parents := make([]Reindexer, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			elem := rv.Index(i)
			p, ok := elem.Interface().(Reindexer)
			if !ok && elem.CanAddr() {
				// Reindex declared on the pointer receiver.
				p, ok = elem.Addr().Interface().(Reindexer)
			}
			if !ok || isNil(p) {
				return nil, fmt.Errorf("%w: element %d is %s", ErrNotReindexable, i, elem.Type())
			}
			parents = append(parents, p)
		}
		return slices.Values(parents), nil
	}

	if p, ok := value.(Reindexer); ok {
		return func(yield func(Reindexer) bool) { yield(p) }, nil
	}
	return nil, fmt.Errorf("%w: %T", ErrNotReindexable, value)
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Interface, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
