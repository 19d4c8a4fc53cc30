package lifecycle

import (
	"context"
	"sync"
)

// Hook is a callback run at one point of a record's lifecycle.
type Hook func(ctx context.Context, rec Record) error

// Record is implemented by every record saved through a lifecycle-aware
// persistence layer.
type Record interface {
	// Model returns the type descriptor of the record.
	Model() *Model

	// IsNewRecord reports whether the record has never been persisted.
	IsNewRecord() bool

	// ChangedAttributes returns the names of attributes modified since the
	// record was loaded or last saved.
	ChangedAttributes() []string
}

// Model describes a record type and holds its lifecycle hooks.
type Model struct {
	name   string
	parent *Model

	mu           sync.RWMutex
	beforeSave   []Hook
	afterSave    []Hook
	afterDestroy []Hook
}

// NewModel creates a root model with no parent type.
func NewModel(name string) *Model {
	return &Model{name: name}
}

// Extend creates a subtype of m. The subtype inherits every hook of m,
// including hooks registered on m after Extend is called.
func (m *Model) Extend(name string) *Model {
	return &Model{name: name, parent: m}
}

// Name returns the model name.
func (m *Model) Name() string {
	if m == nil {
		return ""
	}
	return m.name
}

// Parent returns the parent type, or nil for a root model.
func (m *Model) Parent() *Model {
	if m == nil {
		return nil
	}
	return m.parent
}

// Lineage returns m followed by its ancestors, nearest first.
func (m *Model) Lineage() []*Model {
	var chain []*Model
	for cur := m; cur != nil; cur = cur.parent {
		chain = append(chain, cur)
	}
	return chain
}

// BeforeSave registers a hook that runs before a record of this type is written.
func (m *Model) BeforeSave(h Hook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.beforeSave = append(m.beforeSave, h)
}

// AfterSave registers a hook that runs after a record of this type is written.
func (m *Model) AfterSave(h Hook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.afterSave = append(m.afterSave, h)
}

// AfterDestroy registers a hook that runs after a record of this type is destroyed.
func (m *Model) AfterDestroy(h Hook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.afterDestroy = append(m.afterDestroy, h)
}

// RunBeforeSave runs the before-save hooks of m and its ancestors, root first.
func (m *Model) RunBeforeSave(ctx context.Context, rec Record) error {
	return m.run(ctx, rec, func(cur *Model) []Hook { return cur.beforeSave })
}

// RunAfterSave runs the after-save hooks of m and its ancestors, root first.
func (m *Model) RunAfterSave(ctx context.Context, rec Record) error {
	return m.run(ctx, rec, func(cur *Model) []Hook { return cur.afterSave })
}

// RunAfterDestroy runs the after-destroy hooks of m and its ancestors, root first.
func (m *Model) RunAfterDestroy(ctx context.Context, rec Record) error {
	return m.run(ctx, rec, func(cur *Model) []Hook { return cur.afterDestroy })
}

func (m *Model) run(ctx context.Context, rec Record, pick func(*Model) []Hook) error {
	chain := m.Lineage()
	for i := len(chain) - 1; i >= 0; i-- {
		cur := chain[i]
		cur.mu.RLock()
		hooks := append([]Hook(nil), pick(cur)...)
		cur.mu.RUnlock()

		for _, h := range hooks {
			if err := h(ctx, rec); err != nil {
				return err
			}
		}
	}
	return nil
}
