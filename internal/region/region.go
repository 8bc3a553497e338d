// Package region implements the sized, byte-addressable storage area
// that backs one thread's local storage. It depends only on
// internal/pagestore; it has no notion of thread identity or of other
// regions; that binding lives in internal/registry.
package region

import (
	"github.com/tlsregion/tlsregion/internal/pagestore"
	"github.com/tlsregion/tlsregion/internal/tlserrors"
)

// Region is a byte-addressable object backed by whole OS pages, kept
// at "no access" protection except during the exact window of a Read
// or Write call.
type Region struct {
	store *pagestore.Store
	size  int
	slots []*pagestore.Page
}

// Size returns the region's logical byte size.
func (r *Region) Size() int { return r.size }

// PageCount returns the number of page slots backing the region.
func (r *Region) PageCount() int { return len(r.slots) }

// PageAddrs returns the base address of every page slot, for the
// fault interceptor's page-base scan. The slice is a copy; mutating
// it has no effect on the region.
func (r *Region) PageAddrs() []uintptr {
	addrs := make([]uintptr, len(r.slots))
	for i, p := range r.slots {
		addrs[i] = p.Addr()
	}

	return addrs
}

// PageRefCounts reports each slot's page-handle reference count, for
// tests and diagnostics. Like PageAddrs, the slice is a copy.
func (r *Region) PageRefCounts() []int {
	counts := make([]int, len(r.slots))
	for i, p := range r.slots {
		counts[i] = p.RefCount()
	}

	return counts
}

// Create constructs a fresh region of the given size. size must be >
// 0. Every slot starts as a freshly reserved page at protection None
// with refcount 1. If any reservation fails, every page reserved so
// far is released before the error is returned.
func Create(store *pagestore.Store, size int) (*Region, error) {
	if size <= 0 {
		return nil, tlserrors.ErrInvalidSize(size)
	}

	pageSize := store.PageSize()
	pageNum := (size + pageSize - 1) / pageSize

	slots := make([]*pagestore.Page, 0, pageNum)
	for i := 0; i < pageNum; i++ {
		p, err := store.Reserve(pagestore.None)
		if err != nil {
			for _, reserved := range slots {
				_ = reserved.Release()
			}

			return nil, err
		}

		slots = append(slots, p)
	}

	return &Region{store: store, size: size, slots: slots}, nil
}

// CloneFrom constructs a new region that aliases every page of src.
// No bytes are copied and no protection changes; the shared pages
// keep whatever protection they are currently at (quiescent, at
// rest). Each aliased page's refcount is incremented.
func CloneFrom(src *Region) *Region {
	slots := make([]*pagestore.Page, len(src.slots))
	for i, p := range src.slots {
		p.Retain()
		slots[i] = p
	}

	return &Region{store: src.store, size: src.size, slots: slots}
}

// Destroy releases every slot's reference to its page handle,
// unmapping pages whose refcount reaches zero.
func (r *Region) Destroy() {
	for _, p := range r.slots {
		_ = p.Release()
	}
	r.slots = nil
}

func checkBounds(op string, offset, length, size int) error {
	if offset < 0 || length < 0 {
		return tlserrors.ErrOutOfBounds(op, offset, length, size)
	}
	// Compared as offset > size-length rather than offset+length >
	// size so a wrapped sum can never pass the check.
	if offset > size-length || length > size {
		return tlserrors.ErrOutOfBounds(op, offset, length, size)
	}

	return nil
}

// Read copies length bytes starting at offset into out. Every
// touched slot is unprotected to Read for the duration of the copy
// and restored to None before Read returns, success or failure.
func (r *Region) Read(offset, length int, out []byte) error {
	if err := checkBounds("Read", offset, length, r.size); err != nil {
		return err
	}

	pageSize := r.store.PageSize()
	firstPage := offset / pageSize
	lastPage := (offset + length - 1) / pageSize

	for pn := firstPage; length > 0 && pn <= lastPage; pn++ {
		r.store.Protect(r.slots[pn], pagestore.Read)
	}
	defer func() {
		for pn := firstPage; length > 0 && pn <= lastPage; pn++ {
			r.store.Protect(r.slots[pn], pagestore.None)
		}
	}()

	for i := 0; i < length; i++ {
		idx := offset + i
		pn, poff := idx/pageSize, idx%pageSize
		out[i] = r.slots[pn].Bytes()[poff]
	}

	return nil
}

// Write copies length bytes from in into the region starting at
// offset. Before any slot is mutated, the copy-on-write rule is
// applied: if the slot's page handle is shared (refcount > 1), a
// fresh private page is allocated, the full page contents are copied
// over, the slot is redirected to the private copy, and the shared
// page's refcount is decremented and its protection restored to
// None. The decision is evaluated lazily, per slot, the moment that
// slot is first about to be written by this call.
func (r *Region) Write(offset, length int, in []byte) error {
	if err := checkBounds("Write", offset, length, r.size); err != nil {
		return err
	}

	pageSize := r.store.PageSize()
	firstPage := offset / pageSize
	lastPage := (offset + length - 1) / pageSize

	for pn := firstPage; length > 0 && pn <= lastPage; pn++ {
		r.store.Protect(r.slots[pn], pagestore.Write)
	}
	defer func() {
		for pn := firstPage; length > 0 && pn <= lastPage; pn++ {
			r.store.Protect(r.slots[pn], pagestore.None)
		}
	}()

	touched := make(map[int]bool, lastPage-firstPage+1)

	for i := 0; i < length; i++ {
		idx := offset + i
		pn, poff := idx/pageSize, idx%pageSize

		if !touched[pn] {
			if err := r.copyOnWrite(pn); err != nil {
				return err
			}
			touched[pn] = true
		}

		r.slots[pn].Bytes()[poff] = in[i]
	}

	return nil
}

// copyOnWrite replaces slot pn with a private page if it is currently
// shared with another region. It is a no-op when the slot's page is
// already exclusively owned.
func (r *Region) copyOnWrite(pn int) error {
	shared := r.slots[pn]
	if shared.RefCount() <= 1 {
		return nil
	}

	fresh, err := r.store.Reserve(pagestore.Write)
	if err != nil {
		return err
	}

	r.store.Protect(shared, pagestore.Read)
	copy(fresh.Bytes(), shared.Bytes())

	r.slots[pn] = fresh
	_ = shared.Release()
	r.store.Protect(shared, pagestore.None)

	return nil
}
