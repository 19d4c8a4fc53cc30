package reindex

import "errors"

var (
	// ErrNilModel is returned when registering without a model.
	ErrNilModel = errors.New("reindex: nil model")

	// ErrMissingParent is returned when Options.Parent is empty.
	ErrMissingParent = errors.New("reindex: parent accessor is required")

	// ErrAlreadyRegistered is returned when a model is registered twice in the same registry.
	ErrAlreadyRegistered = errors.New("reindex: model already registered")

	// ErrNoPendingState is returned when a registered record does not embed Pending.
	ErrNoPendingState = errors.New("reindex: record does not embed reindex.Pending")

	// ErrUnknownAssociation is returned by an AssociationResolver for names it does not know.
	// The cascade treats it as "no parent".
	ErrUnknownAssociation = errors.New("reindex: unknown association")

	// ErrNotReindexable is returned when the parent accessor yields a value that cannot be reindexed.
	ErrNotReindexable = errors.New("reindex: parent does not implement Reindexer")
)
