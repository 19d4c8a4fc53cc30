// Package store provides a DynamoDB persistence layer that runs lifecycle
// hooks around every write.
//
// Records saved through a [Store] are child records in the sense of package
// reindex: registering their model with a reindex.Registry makes every
// [Store.Save] and [Store.Destroy] refresh the search index entries of the
// record's parents.
//
// # Entity Interfaces
//
// All entities must implement the [Entity] interface:
//
//	type Entity interface {
//	    lifecycle.Record
//	    TableName() string
//	    GetKey() PK
//	}
//
// Attributes are marshaled with attributevalue, so struct fields carry
// dynamodbav tags. Entities embedding [lifecycle.State] get change tracking,
// and entities embedding [Versioned] get optimistic locking:
//
//	type Comment struct {
//	    lifecycle.State
//	    reindex.Pending
//	    store.Versioned
//	    ID     string `dynamodbav:"id"`
//	    PostID string `dynamodbav:"post_id"`
//	    Body   string `dynamodbav:"body"`
//	}
//
// # Save cycle
//
//  1. before-save hooks (a failure aborts the save)
//  2. PutItem for new records, UpdateItem of the changed attributes otherwise
//  3. after-save hooks
//  4. the record is marked persisted and its change set cleared
//
// # Deletes
//
// [Store.Destroy] sets the ttl attribute to now by default (soft delete) and
// runs the after-destroy hooks. Set [Config.HardDelete] to remove items
// immediately.
//
// # Errors
//
// The package defines domain-specific errors:
//
//   - [ErrNotFound] - entity doesn't exist or is deleted
//   - [ErrAlreadyExists] - a new entity's key is taken
//   - [ErrConcurrentModification] - optimistic lock failed
//   - [ErrAlreadyDeleted] - entity already has a TTL
//   - [ErrEmptyKey] - entity returned no key attributes
//
// Hook errors are returned wrapped with the phase and model name.
package store
