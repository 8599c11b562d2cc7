package memstore

import "github.com/nater540/yggdrasil/record"

// rec is the store's record implementation. It is a live working copy: the
// engine mutates it in place and a Save commits the same object into its
// table, so every holder of the pointer observes committed state.
type rec struct {
	entity    record.Entity
	attrs     map[string]any
	id        int64
	saved     bool
	destroyed bool
}

func (r *rec) EntityName() string { return r.entity.Name }

func (r *rec) ID() any {
	if !r.saved {
		return nil
	}
	return r.id
}

func (r *rec) IsNew() bool { return !r.saved }

func (r *rec) GetAttribute(name string) any { return r.attrs[name] }

func (r *rec) SetAttribute(name string, value any) { r.attrs[name] = value }

func (r *rec) MarkForDestroy() { r.destroyed = true }

func (r *rec) MarkedForDestroy() bool { return r.destroyed }
