package reindex_test

import (
	"context"
	"errors"
	"testing"

	"github.com/jacentio/cascadeindex/lifecycle"
	"github.com/jacentio/cascadeindex/reindex"
)

func TestNewRegistry(t *testing.T) {
	r := reindex.NewRegistry(nil)
	if r == nil {
		t.Fatal("expected non-nil Registry")
	}
}

func TestRegister_Validation(t *testing.T) {
	tests := []struct {
		name  string
		model *lifecycle.Model
		opts  reindex.Options
		want  error
	}{
		{"nil model", nil, reindex.Options{Parent: "post"}, reindex.ErrNilModel},
		{"missing parent", lifecycle.NewModel("comment"), reindex.Options{}, reindex.ErrMissingParent},
		{"blank parent", lifecycle.NewModel("comment"), reindex.Options{Parent: "  : "}, reindex.ErrMissingParent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := reindex.NewRegistry(nil).Register(tt.model, tt.opts)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestRegister_Duplicate(t *testing.T) {
	reg, model := newRegistry(t, "comment", reindex.Options{Parent: "post"})

	err := reg.Register(model, reindex.Options{Parent: "post"})
	if !errors.Is(err, reindex.ErrAlreadyRegistered) {
		t.Errorf("expected ErrAlreadyRegistered, got %v", err)
	}
}

func TestMustRegister_Panics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	reindex.NewRegistry(nil).MustRegister(lifecycle.NewModel("comment"), reindex.Options{})
}

func TestRegister_NormalizesOptions(t *testing.T) {
	reg, model := newRegistry(t, "comment", reindex.Options{
		Parent:             " :parent_model ",
		IncludedAttributes: []string{},
		ExcludedAttributes: []string{"body", " body", "", ":title"},
	})

	cfg, ok := reg.Lookup(model)
	if !ok {
		t.Fatal("expected config")
	}
	if cfg.Parent != "parent_model" {
		t.Errorf("expected parent 'parent_model', got %q", cfg.Parent)
	}
	if cfg.Method != "ParentModel" {
		t.Errorf("expected method 'ParentModel', got %q", cfg.Method)
	}
	if cfg.IncludedAttributes != nil {
		t.Errorf("expected empty included attributes to be unset, got %v", cfg.IncludedAttributes)
	}
	if len(cfg.ExcludedAttributes) != 2 || cfg.ExcludedAttributes[0] != "body" || cfg.ExcludedAttributes[1] != "title" {
		t.Errorf("expected excluded [body title], got %v", cfg.ExcludedAttributes)
	}
	if cfg.ForceAssociationReload {
		t.Error("expected force reload to default to false")
	}
}

func TestLookup_Unregistered(t *testing.T) {
	reg := reindex.NewRegistry(nil)

	if _, ok := reg.Lookup(lifecycle.NewModel("comment")); ok {
		t.Error("expected no config for unregistered model")
	}
	if _, ok := reg.Lookup(nil); ok {
		t.Error("expected no config for nil model")
	}
}

// --- Hierarchy Tests ---

func TestLookup_InheritedBySubtype(t *testing.T) {
	reg, base := newRegistry(t, "comment", reindex.Options{Parent: "parent_model"})
	review := base.Extend("review")
	quote := review.Extend("quote")

	cfg, ok := reg.Lookup(quote)
	if !ok {
		t.Fatal("expected subtype to inherit config")
	}
	if cfg.Parent != "parent_model" {
		t.Errorf("expected inherited parent 'parent_model', got %q", cfg.Parent)
	}
}

func TestSave_SubtypeBehavesAsAncestor(t *testing.T) {
	_, base := newRegistry(t, "comment", reindex.Options{
		Parent:             "parent_model",
		IncludedAttributes: []string{"body"},
	})
	review := base.Extend("review")
	rec := &recorder{}

	unrelated := existing(review, &parentDoc{name: "post", rec: rec}, "rating")
	if err := save(t, unrelated); err != nil {
		t.Fatalf("save: %v", err)
	}
	expectCalls(t, rec)

	relevant := existing(review, &parentDoc{name: "post", rec: rec}, "body")
	if err := save(t, relevant); err != nil {
		t.Fatalf("save: %v", err)
	}
	expectCalls(t, rec, "post")

	if err := destroy(t, relevant); err != nil {
		t.Fatalf("destroy: %v", err)
	}
	expectCalls(t, rec, "post", "post")
}

func TestSave_SubtypeOverrideRunsOnce(t *testing.T) {
	reg, base := newRegistry(t, "comment", reindex.Options{
		Parent:             "parent_model",
		IncludedAttributes: []string{"body"},
	})
	review := base.Extend("review")
	if err := reg.Register(review, reindex.Options{
		Parent:             "parent_model",
		IncludedAttributes: []string{"rating"},
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	rec := &recorder{}

	c := existing(review, &parentDoc{name: "post", rec: rec}, "rating")
	if err := save(t, c); err != nil {
		t.Fatalf("save: %v", err)
	}
	expectCalls(t, rec, "post")

	if err := destroy(t, c); err != nil {
		t.Fatalf("destroy: %v", err)
	}
	expectCalls(t, rec, "post", "post")

	// The base registration still applies to base records.
	b := existing(base, &parentDoc{name: "base", rec: rec}, "rating")
	if err := save(t, b); err != nil {
		t.Fatalf("save: %v", err)
	}
	expectCalls(t, rec, "post", "post")
}

func TestRegister_SubtypeBeforeAncestor(t *testing.T) {
	base := lifecycle.NewModel("comment")
	review := base.Extend("review")
	reg := reindex.NewRegistry(nil)
	reg.MustRegister(review, reindex.Options{Parent: "parent_model"})
	reg.MustRegister(base, reindex.Options{Parent: "parent_model"})
	rec := &recorder{}

	c := &comment{model: review, parent: &parentDoc{name: "post", rec: rec}}
	if err := save(t, c); err != nil {
		t.Fatalf("save: %v", err)
	}
	expectCalls(t, rec, "post")
}

func TestRegister_HooksCoexistWithOtherHooks(t *testing.T) {
	_, model := newRegistry(t, "comment", reindex.Options{Parent: "parent_model"})
	var order []string
	model.BeforeSave(func(ctx context.Context, rec lifecycle.Record) error {
		order = append(order, "audit")
		return nil
	})
	rec := &recorder{}
	c := &comment{model: model, parent: &parentDoc{name: "post", rec: rec}}

	if err := save(t, c); err != nil {
		t.Fatalf("save: %v", err)
	}
	expectCalls(t, rec, "post")
	if len(order) != 1 {
		t.Errorf("expected other hook to run once, got %v", order)
	}
}
