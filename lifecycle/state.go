package lifecycle

import "slices"

// Tracker is implemented by records whose change state is maintained by the
// persistence layer.
type Tracker interface {
	// MarkChanged records attribute names as modified.
	MarkChanged(names ...string)

	// MarkPersisted flags the record as stored and forgets pending changes.
	MarkPersisted()
}

// State tracks whether a record is new and which attributes changed.
// The zero value is a new record with no changes. Embed it by value:
//
//	type Comment struct {
//	    lifecycle.State
//	    ID   string `dynamodbav:"id"`
//	    Body string `dynamodbav:"body"`
//	}
//
// State is not safe for concurrent use.
type State struct {
	persisted bool
	changed   []string
}

// IsNewRecord reports whether the record has never been persisted.
func (s *State) IsNewRecord() bool {
	return !s.persisted
}

// ChangedAttributes returns the changed attribute names in the order they
// were first marked.
func (s *State) ChangedAttributes() []string {
	return slices.Clone(s.changed)
}

// MarkChanged records attribute names as modified. Duplicates are ignored.
func (s *State) MarkChanged(names ...string) {
	for _, name := range names {
		if name == "" || slices.Contains(s.changed, name) {
			continue
		}
		s.changed = append(s.changed, name)
	}
}

// MarkPersisted flags the record as stored and clears the change set.
func (s *State) MarkPersisted() {
	s.persisted = true
	s.changed = nil
}
