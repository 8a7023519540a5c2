// Package render defines the backend-agnostic rendering contract and the
// frontend resources (meshes, materials, textures, uniform buffers, views)
// that backends turn into GPU state.
package render

import (
	"maps"
	"slices"
)

// Handle identifies backend-private state attached to a frontend resource.
// The zero Handle means the resource has never been built.
type Handle uint32

// NoHandle is the handle of an unbuilt resource.
const NoHandle Handle = 0

// Resource carries the backend handle and the dirty flag shared by every
// buildable frontend object. A new Resource is dirty.
type Resource struct {
	handle Handle
	clean  bool
}

// Handle returns the backend handle, or NoHandle if never built.
func (r *Resource) Handle() Handle {
	return r.handle
}

// SetHandle records the backend handle. Only backends call this.
func (r *Resource) SetHandle(h Handle) {
	r.handle = h
}

// Dirty reports whether the frontend data changed since the last build.
func (r *Resource) Dirty() bool {
	return !r.clean
}

// SetDirty marks the resource for rebuild (true) or as built (false).
func (r *Resource) SetDirty(dirty bool) {
	r.clean = !dirty
}

// NeedsBuild reports whether a backend must (re)build the resource.
func (r *Resource) NeedsBuild() bool {
	return r.handle == NoHandle || !r.clean
}

// Arena maps handles to backend-private state of type T.
// Handles are never reused within an arena.
type Arena[T any] struct {
	items map[Handle]T
	next  Handle
}

// NewArena creates an empty arena.
func NewArena[T any]() *Arena[T] {
	return &Arena[T]{items: make(map[Handle]T)}
}

// Insert stores v under a fresh handle.
func (a *Arena[T]) Insert(v T) Handle {
	a.next++
	a.items[a.next] = v
	return a.next
}

// Get returns the value stored under h.
func (a *Arena[T]) Get(h Handle) (T, bool) {
	v, ok := a.items[h]
	return v, ok
}

// Set replaces the value under an existing handle. It returns false if h is
// not live.
func (a *Arena[T]) Set(h Handle, v T) bool {
	if _, ok := a.items[h]; !ok {
		return false
	}
	a.items[h] = v
	return true
}

// Remove deletes h and returns the value it held.
func (a *Arena[T]) Remove(h Handle) (T, bool) {
	v, ok := a.items[h]
	if ok {
		delete(a.items, h)
	}
	return v, ok
}

// Len returns the number of live handles.
func (a *Arena[T]) Len() int {
	return len(a.items)
}

// Each calls fn for every live handle in allocation order.
func (a *Arena[T]) Each(fn func(Handle, T)) {
	for _, h := range slices.Sorted(maps.Keys(a.items)) {
		fn(h, a.items[h])
	}
}
