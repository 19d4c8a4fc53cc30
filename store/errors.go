package store

import "errors"

var (
	// ErrNotFound is returned when an entity doesn't exist or is deleted (has TTL <= now).
	ErrNotFound = errors.New("store: entity not found")

	// ErrAlreadyExists is returned when saving a new entity whose key is taken.
	ErrAlreadyExists = errors.New("store: entity already exists")

	// ErrConcurrentModification is returned when optimistic lock fails (version mismatch).
	ErrConcurrentModification = errors.New("store: entity was modified concurrently")

	// ErrAlreadyDeleted is returned when destroying an entity that is missing or already has a TTL.
	ErrAlreadyDeleted = errors.New("store: entity is already deleted")

	// ErrEmptyKey is returned when an entity has no primary key attributes.
	ErrEmptyKey = errors.New("store: entity key is empty")
)
