// Package lifecycle provides the hook points a persistence layer runs around
// saving and destroying records.
//
// A [Model] describes a record type. Models form a chain through their parent
// type, so a subtype created with [Model.Extend] runs every hook registered on
// its ancestors before its own:
//
//	var Comment = lifecycle.NewModel("comment")
//	var Review = Comment.Extend("review") // runs comment hooks, then review hooks
//
// Three registration points are exposed:
//
//   - [Model.BeforeSave] runs before the record is written
//   - [Model.AfterSave] runs after a successful write
//   - [Model.AfterDestroy] runs after the record is removed
//
// Records implement [Record]. Embedding [State] provides change tracking
// (new-record flag and changed attribute names) for records that do not have
// their own.
//
// Hooks run synchronously on the caller's goroutine. The first hook error
// stops the chain and is returned to the caller.
package lifecycle
