package reindex

import (
	"context"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/jacentio/cascadeindex/lifecycle"
)

// Reindexer is implemented by parent records. Reindex refreshes the record's
// entry in the search index.
type Reindexer interface {
	Reindex(ctx context.Context) error
}

// AssociationResolver is implemented by child records that resolve their
// associations by name instead of through accessor methods.
type AssociationResolver interface {
	// ResolveAssociation returns the value of the named association.
	// When reload is true the association must be fetched again from its source.
	// Unknown names return ErrUnknownAssociation.
	ResolveAssociation(ctx context.Context, name string, reload bool) (any, error)
}

// Guard decides whether a child record may trigger a parent reindex at all.
type Guard func(rec lifecycle.Record) (bool, error)

// Predicate adapts a boolean function to a Guard that never fails.
func Predicate(fn func(rec lifecycle.Record) bool) Guard {
	return func(rec lifecycle.Record) (bool, error) {
		return fn(rec), nil
	}
}

// Options configure the parent reindex of one child model.
type Options struct {
	// Parent names the accessor returning the parent record(s). Required.
	// Symbol-style (":post") and snake_case ("blog_post") identifiers are accepted.
	Parent string

	// If gates every reindex decision on the save path. Nil always allows.
	If Guard

	// ForceAssociationReload re-fetches the parent association before it is read.
	// It calls the accessor with reload set to true, then reads it normally.
	// Accessors without a reload parameter (and AssociationResolver
	// implementations that ignore the flag) cannot reload; for methods the
	// registry logs a warning once per model and reads them normally.
	ForceAssociationReload bool

	// IncludedAttributes limits reindexing to changes of these attributes.
	// Takes precedence over ExcludedAttributes.
	IncludedAttributes []string

	// ExcludedAttributes lists attributes whose changes never trigger a reindex.
	// Ignored when IncludedAttributes is set.
	ExcludedAttributes []string

	// ContinueOnError reindexes every parent even after a failure and returns
	// the joined errors. By default the cascade stops at the first failure.
	ContinueOnError bool
}

// Config is the normalized registration of a child model.
type Config struct {
	// Parent is the normalized accessor identifier.
	Parent string

	// Method is the Go method name looked up on records without an AssociationResolver.
	Method string

	Guard                  Guard
	ForceAssociationReload bool

	// IncludedAttributes and ExcludedAttributes are nil when not set, never empty.
	IncludedAttributes []string
	ExcludedAttributes []string

	ContinueOnError bool
}

func newConfig(opts Options) (*Config, error) {
	parent := normalizeAccessor(opts.Parent)
	if parent == "" {
		return nil, ErrMissingParent
	}
	return &Config{
		Parent:                 parent,
		Method:                 methodName(parent),
		Guard:                  opts.If,
		ForceAssociationReload: opts.ForceAssociationReload,
		IncludedAttributes:     normalizeAttributes(opts.IncludedAttributes),
		ExcludedAttributes:     normalizeAttributes(opts.ExcludedAttributes),
		ContinueOnError:        opts.ContinueOnError,
	}, nil
}

// CheckGuard evaluates the configured guard. Without a guard it returns true.
func (c *Config) CheckGuard(rec lifecycle.Record) (bool, error) {
	if c.Guard == nil {
		return true, nil
	}
	return c.Guard(rec)
}

// ChangeRelevant reports whether a set of changed attribute names warrants a
// parent reindex.
func (c *Config) ChangeRelevant(changed []string) bool {
	switch {
	case c.IncludedAttributes != nil:
		for _, name := range changed {
			if slices.Contains(c.IncludedAttributes, name) {
				return true
			}
		}
		return false
	case c.ExcludedAttributes != nil:
		for _, name := range changed {
			if !slices.Contains(c.ExcludedAttributes, name) {
				return true
			}
		}
		return false
	default:
		return true
	}
}

func normalizeAccessor(id string) string {
	id = strings.TrimSpace(id)
	id = strings.TrimPrefix(id, ":")
	return strings.TrimSpace(id)
}

// methodName converts an accessor identifier to an exported Go method name:
// "parent_model" and "parentModel" both become "ParentModel".
func methodName(id string) string {
	parts := strings.FieldsFunc(id, func(r rune) bool {
		return r == '_' || r == '-' || unicode.IsSpace(r)
	})
	var b strings.Builder
	for _, part := range parts {
		r, size := utf8.DecodeRuneInString(part)
		b.WriteRune(unicode.ToUpper(r))
		b.WriteString(part[size:])
	}
	return b.String()
}

// normalizeAttributes trims names and drops blanks and duplicates.
// An empty result is nil so that "not set" has a single representation.
func normalizeAttributes(names []string) []string {
	var out []string
	for _, name := range names {
		name = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(name), ":"))
		if name == "" || slices.Contains(out, name) {
			continue
		}
		out = append(out, name)
	}
	return out
}
