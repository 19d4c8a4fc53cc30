// Package reindex refreshes the search-index entry of parent records when a
// child record is saved or destroyed.
//
// A child model is registered once with the parent accessor to follow:
//
//	reg := reindex.NewRegistry(logger)
//	reg.MustRegister(CommentModel, reindex.Options{
//	    Parent:             "post",
//	    IncludedAttributes: []string{"body", "author_id"},
//	})
//
// Registration installs three hooks on the model:
//
//   - before save: if the guard passes and the record is new or a relevant
//     attribute changed, the record is marked as pending a parent reindex
//   - after save: a marked record cascades to its parents and the mark is cleared
//   - after destroy: the record always cascades to its parents
//
// # Child records
//
// Child records implement [lifecycle.Record] and embed [Pending], which holds
// the per-instance mark:
//
//	type Comment struct {
//	    lifecycle.State
//	    reindex.Pending
//	    PostID string
//	    post   *Post
//	}
//
//	func (c *Comment) Model() *lifecycle.Model { return CommentModel }
//	func (c *Comment) Post(reload bool) *Post  { ... }
//
// # Parent accessors
//
// The accessor named by [Options.Parent] is resolved through
// [AssociationResolver] when the record implements it, and otherwise through
// an exported method whose name is derived from the identifier ("parent_model"
// resolves to ParentModel). The method may take an optional context.Context
// and an optional reload flag, and may return an error as second result.
// An accessor that cannot be resolved means the record has no parent.
//
// The accessor may return nil, a single [Reindexer], a slice or array of
// values implementing [Reindexer], or an iter.Seq[Reindexer]. Parents are
// reindexed in iteration order.
//
// # Errors
//
// Guard and reindex errors propagate to the caller of the save or destroy.
// By default the cascade stops at the first failing parent; with
// [Options.ContinueOnError] every parent is attempted and the failures are
// joined.
//
// # Concurrency
//
// A [Registry] is safe for concurrent use. The pending mark is per instance and
// unsynchronized: a loaded record must not be saved from several goroutines at
// once.
package reindex
