package reindex

// Pending holds the transient "parent reindex pending" mark of a child record.
// It lives for one save cycle and is never persisted. Embed it by value in
// child record types.
type Pending struct {
	pendingParentReindex bool
}

// PendingParentReindex reports whether the record is marked for a parent
// reindex by the current save cycle.
func (p *Pending) PendingParentReindex() bool {
	return p.pendingParentReindex
}

func (p *Pending) markPendingParentReindex() {
	p.pendingParentReindex = true
}

func (p *Pending) clearPendingParentReindex() {
	p.pendingParentReindex = false
}

// pendingMarker is satisfied by records embedding Pending.
type pendingMarker interface {
	PendingParentReindex() bool
	markPendingParentReindex()
	clearPendingParentReindex()
}
