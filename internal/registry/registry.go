// Package registry is the process-wide, concurrency-safe mapping
// from a thread identity to its Region, and the home of the five
// user-visible operations (Create, Destroy, Read, Write, Clone). It
// also owns the fault interceptor: see faults.go.
package registry

import (
	"log"
	"sync"

	"github.com/tlsregion/tlsregion/internal/apiversion"
	"github.com/tlsregion/tlsregion/internal/config"
	"github.com/tlsregion/tlsregion/internal/pagestore"
	"github.com/tlsregion/tlsregion/internal/region"
	"github.com/tlsregion/tlsregion/internal/thread"
	"github.com/tlsregion/tlsregion/internal/tlserrors"
)

// Registry is the table of thread -> Region bindings. The zero value
// is not usable; construct with New or use Default.
type Registry struct {
	mu      sync.RWMutex
	entries map[thread.ID]*region.Region
	store   *pagestore.Store
}

// New constructs an empty Registry bound to the given page store. If
// the current config names a RequiredAPIVersion constraint that this
// build's apiversion.Current does not satisfy, New treats that as a
// kernel-level anomaly and is fatal to the process.
func New(store *pagestore.Store) *Registry {
	if constraint := config.Current().RequiredAPIVersion; constraint != "" {
		ok, err := apiversion.Compatible(constraint)
		if err != nil {
			log.Fatalf("registry: malformed required_api_version constraint %q: %v", constraint, err)
		}
		if !ok {
			log.Fatalf("registry: built with apiversion %s, incompatible with required constraint %q", apiversion.Current, constraint)
		}
	}

	return &Registry{
		entries: make(map[thread.ID]*region.Region),
		store:   store,
	}
}

var (
	defaultOnce sync.Once
	defaultReg  *Registry
)

// Default returns the process-wide Registry, performing one-time
// initialization (page size query, delegated to pagestore.Default,
// and fault-handler installation) exactly once across all threads,
// however many call Default concurrently for the first time.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultReg = New(pagestore.Default())
		installFaultHandler(defaultReg)
	})

	return defaultReg
}

// Create constructs a new Region of the given size for the calling
// thread. InvalidArgument if size == 0; AlreadyExists if the calling
// thread already owns a Region.
func (r *Registry) Create(size int) error {
	id := thread.Current()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[id]; ok {
		return tlserrors.ErrAlreadyExists("Create", uint64(id))
	}

	if max := config.Current().MaxRegions; max > 0 && len(r.entries) >= max {
		return tlserrors.New(tlserrors.AllocationFailed, "Create",
			"registry is at its configured region limit", map[string]any{"max_regions": max})
	}

	reg, err := region.Create(r.store, size)
	if err != nil {
		return err
	}

	r.entries[id] = reg

	return nil
}

// Destroy tears down the calling thread's Region. NotFound if the
// calling thread has no Region.
func (r *Registry) Destroy() error {
	id := thread.Current()

	r.mu.Lock()
	defer r.mu.Unlock()

	reg, ok := r.entries[id]
	if !ok {
		return tlserrors.ErrNotFound("Destroy", uint64(id))
	}

	reg.Destroy()
	delete(r.entries, id)

	return nil
}

// Read copies length bytes from the calling thread's Region into out.
func (r *Registry) Read(offset, length int, out []byte) error {
	id := thread.Current()

	r.mu.Lock()
	defer r.mu.Unlock()

	reg, ok := r.entries[id]
	if !ok {
		return tlserrors.ErrNotFound("Read", uint64(id))
	}

	return reg.Read(offset, length, out)
}

// Write copies length bytes from in into the calling thread's Region.
func (r *Registry) Write(offset, length int, in []byte) error {
	id := thread.Current()

	r.mu.Lock()
	defer r.mu.Unlock()

	reg, ok := r.entries[id]
	if !ok {
		return tlserrors.ErrNotFound("Write", uint64(id))
	}

	return reg.Write(offset, length, in)
}

// Clone makes the calling thread's Region alias the pages of
// source's Region, copy-on-write. AlreadyExists if the calling thread
// already owns a Region; NotFound if source has none.
func (r *Registry) Clone(source thread.ID) error {
	id := thread.Current()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[id]; ok {
		return tlserrors.ErrAlreadyExists("Clone", uint64(id))
	}

	src, ok := r.entries[source]
	if !ok {
		return tlserrors.ErrNotFound("Clone", uint64(source))
	}

	if max := config.Current().MaxRegions; max > 0 && len(r.entries) >= max {
		return tlserrors.New(tlserrors.AllocationFailed, "Clone",
			"registry is at its configured region limit", map[string]any{"max_regions": max})
	}

	r.entries[id] = region.CloneFrom(src)

	return nil
}

// RegionInfo is a read-only snapshot of one entry, for diagnostics.
type RegionInfo struct {
	Thread    thread.ID
	Size      int
	PageCount int
}

// Snapshot returns a point-in-time, read-only copy of every entry.
// It never mutates the table.
func (r *Registry) Snapshot() []RegionInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]RegionInfo, 0, len(r.entries))
	for id, reg := range r.entries {
		out = append(out, RegionInfo{Thread: id, Size: reg.Size(), PageCount: reg.PageCount()})
	}

	return out
}

// Package-level convenience wrappers operate on the process-wide
// Default Registry: the five operations, all keyed by the calling
// thread.

func Create(size int) error                     { return Default().Create(size) }
func Destroy() error                            { return Default().Destroy() }
func Read(offset, length int, out []byte) error { return Default().Read(offset, length, out) }
func Write(offset, length int, in []byte) error { return Default().Write(offset, length, in) }
func Clone(source thread.ID) error              { return Default().Clone(source) }
