// Package pagestore wraps OS-level anonymous page mappings behind a
// small reserve/protect/release surface. It knows nothing about
// threads or regions; that lives in internal/region and
// internal/registry.
package pagestore

import (
	"fmt"
	"sync"

	"github.com/tlsregion/tlsregion/internal/tlserrors"
)

// Protection is the access mask a page can be placed under.
type Protection int

const (
	// None faults on any access. This is the quiescent state every
	// page returns to between Region operations.
	None Protection = iota
	// Read permits reads only.
	Read
	// Write permits reads and writes.
	Write
)

func (p Protection) String() string {
	switch p {
	case None:
		return "none"
	case Read:
		return "read"
	case Write:
		return "write"
	default:
		return "unknown"
	}
}

// Page is an owning handle to a single OS page mapping plus the
// reference count shared by every Region slot that aliases it.
//
// A Page's protection state is a property of the physical mapping,
// not of any particular slot: whichever Region last called Protect
// determines what every aliasing slot observes.
type Page struct {
	mu    sync.Mutex
	addr  uintptr
	data  []byte
	size  int
	refs  int
	store *Store
}

// Addr returns the page's base address, used by the fault interceptor
// to match a faulting address against a managed page.
func (p *Page) Addr() uintptr { return p.addr }

// Retain increments the page's reference count. Called by Region
// CloneFrom when a slot begins aliasing this page.
func (p *Page) Retain() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refs++
}

// RefCount reports the current reference count, for tests and
// diagnostics only.
func (p *Page) RefCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.refs
}

// Release decrements the reference count and unmaps the backing page
// once it reaches zero. It is safe to call exactly once per slot that
// previously held a reference (including the initial reference from
// Reserve).
func (p *Page) Release() error {
	p.mu.Lock()
	p.refs--
	dead := p.refs <= 0
	p.mu.Unlock()

	if !dead {
		return nil
	}

	return p.store.unmap(p)
}

// Store is the process-wide OS page allocator. It is safe for
// concurrent use; each Page it hands out carries its own mutex.
type Store struct {
	pageSize int
}

var (
	globalOnce  sync.Once
	globalStore *Store
)

// Default returns the process-wide Store, querying the OS page size
// on first use.
func Default() *Store {
	globalOnce.Do(func() {
		globalStore = &Store{pageSize: querySystemPageSize()}
	})

	return globalStore
}

// PageSize reports the OS page size in bytes.
func (s *Store) PageSize() int { return s.pageSize }

// Reserve obtains one anonymous, private, zero-initialised page with
// the requested protection. Failure is reported as AllocationFailed.
func (s *Store) Reserve(protection Protection) (*Page, error) {
	addr, data, err := reservePage(s.pageSize, protection)
	if err != nil {
		return nil, tlserrors.ErrAllocationFailed("Reserve", err)
	}

	return &Page{
		addr:  addr,
		data:  data,
		size:  s.pageSize,
		refs:  1,
		store: s,
	}, nil
}

// Protect changes a page's protection. Failure here is a programming
// invariant violation (the page was reserved by us moments ago and
// still belongs to us), so it is fatal to the process rather than
// propagated as a recoverable error.
func (s *Store) Protect(p *Page, protection Protection) {
	if err := protectPage(p.data, protection); err != nil {
		panic(fmt.Sprintf("pagestore: protect(%s) failed on page %#x: %v", protection, p.addr, err))
	}
}

func (s *Store) unmap(p *Page) error {
	return releasePage(p.data)
}

// Bytes exposes the page's backing slice for byte-level copy in
// Region.Read/Write. Callers must only touch it while the page is
// unprotected to Read or Write respectively; Bytes itself does not
// check or change protection.
func (p *Page) Bytes() []byte { return p.data }
