package registry

import (
	"bytes"
	"testing"

	"github.com/tlsregion/tlsregion/internal/pagestore"
	"github.com/tlsregion/tlsregion/internal/thread"
	"github.com/tlsregion/tlsregion/internal/tlserrors"
)

func newTestRegistry() *Registry {
	return New(pagestore.Default())
}

func TestCreateRejectsZeroSize(t *testing.T) {
	r := newTestRegistry()

	if err := r.Create(0); !tlserrors.Is(err, tlserrors.InvalidArgument) {
		t.Fatalf("err = %v, want InvalidArgument", err)
	}
}

func TestCreateTwiceFails(t *testing.T) {
	r := newTestRegistry()

	done := thread.Spawn(func(thread.ID) {
		if err := r.Create(64); err != nil {
			t.Errorf("first Create: %v", err)
		}
		if err := r.Create(64); !tlserrors.Is(err, tlserrors.AlreadyExists) {
			t.Errorf("second Create err = %v, want AlreadyExists", err)
		}
		if err := r.Destroy(); err != nil {
			t.Errorf("Destroy: %v", err)
		}
	})
	<-done
}

func TestDestroyTwiceFails(t *testing.T) {
	r := newTestRegistry()

	done := thread.Spawn(func(thread.ID) {
		if err := r.Create(64); err != nil {
			t.Errorf("Create: %v", err)
			return
		}
		if err := r.Destroy(); err != nil {
			t.Errorf("first Destroy: %v", err)
			return
		}
		if err := r.Destroy(); !tlserrors.Is(err, tlserrors.NotFound) {
			t.Errorf("second Destroy err = %v, want NotFound", err)
		}
	})
	<-done
}

func TestReadWriteWithoutRegionFails(t *testing.T) {
	r := newTestRegistry()

	done := thread.Spawn(func(thread.ID) {
		buf := make([]byte, 4)
		if err := r.Read(0, 4, buf); !tlserrors.Is(err, tlserrors.NotFound) {
			t.Errorf("Read err = %v, want NotFound", err)
		}
		if err := r.Write(0, 4, buf); !tlserrors.Is(err, tlserrors.NotFound) {
			t.Errorf("Write err = %v, want NotFound", err)
		}
	})
	<-done
}

// TestScenarioHelloThread covers a single thread creating a region,
// writing a message, and reading it back.
func TestScenarioHelloThread(t *testing.T) {
	r := newTestRegistry()
	msg := []byte("Hello, Thread!\x00")

	done := thread.Spawn(func(thread.ID) {
		if err := r.Create(1024); err != nil {
			t.Errorf("Create: %v", err)
			return
		}
		defer r.Destroy()

		if err := r.Write(0, len(msg), msg); err != nil {
			t.Errorf("Write: %v", err)
			return
		}

		out := make([]byte, len(msg))
		if err := r.Read(0, len(out), out); err != nil {
			t.Errorf("Read: %v", err)
			return
		}
		if !bytes.Equal(out, msg) {
			t.Errorf("Read = %q, want %q", out, msg)
		}
	})
	<-done
}

// TestScenarioCloneAlreadyExists covers a thread that already owns a
// region refusing to clone, even from a thread that has one to offer.
func TestScenarioCloneAlreadyExists(t *testing.T) {
	r := newTestRegistry()

	var t1 thread.ID
	t1done := thread.Spawn(func(id thread.ID) {
		t1 = id
		if err := r.Create(64); err != nil {
			t.Errorf("t1 Create: %v", err)
		}
	})
	<-t1done

	done := thread.Spawn(func(thread.ID) {
		if err := r.Create(64); err != nil {
			t.Errorf("t0 Create: %v", err)
			return
		}
		if err := r.Clone(t1); !tlserrors.Is(err, tlserrors.AlreadyExists) {
			t.Errorf("Clone err = %v, want AlreadyExists", err)
		}
	})
	<-done
}

// TestScenarioCloneAndCOWIsolation covers cloning aliasing content,
// where a subsequent write through one side is invisible to the
// other. Because a thread.ID is pinned to one
// goroutine for its whole life, the owner and the clone run
// concurrently and hand off to each other over channels rather than
// running sequentially.
func TestScenarioCloneAndCOWIsolation(t *testing.T) {
	r := newTestRegistry()
	pageSize := pagestore.Default().PageSize()
	size := 3 * pageSize

	ownerID := make(chan thread.ID, 1)
	afterInitialWrites := make(chan struct{})
	cloneReadDone := make(chan struct{})
	afterZWrite := make(chan struct{})

	ownerDone := thread.Spawn(func(id thread.ID) {
		ownerID <- id

		if err := r.Create(size); err != nil {
			t.Errorf("owner Create: %v", err)
		}
		if err := r.Write(0, 1, []byte("A")); err != nil {
			t.Errorf("owner Write A: %v", err)
		}
		if err := r.Write(2*pageSize, 1, []byte("B")); err != nil {
			t.Errorf("owner Write B: %v", err)
		}
		close(afterInitialWrites)

		<-cloneReadDone
		if err := r.Write(0, 1, []byte("Z")); err != nil {
			t.Errorf("owner Write Z: %v", err)
		}
		close(afterZWrite)
	})

	cloneDone := thread.Spawn(func(thread.ID) {
		owner := <-ownerID
		<-afterInitialWrites

		if err := r.Clone(owner); err != nil {
			t.Errorf("Clone: %v", err)
			close(cloneReadDone)
			return
		}

		out := make([]byte, 1)
		if err := r.Read(0, 1, out); err != nil || out[0] != 'A' {
			t.Errorf("clone Read(0) = %q, err %v, want A", out, err)
		}
		if err := r.Read(2*pageSize, 1, out); err != nil || out[0] != 'B' {
			t.Errorf("clone Read(2p) = %q, err %v, want B", out, err)
		}
		close(cloneReadDone)

		<-afterZWrite
		if err := r.Read(0, 1, out); err != nil || out[0] != 'A' {
			t.Errorf("clone Read(0) after owner Write Z = %q, err %v, want A (COW isolation)", out, err)
		}
		if err := r.Read(2*pageSize, 1, out); err != nil || out[0] != 'B' {
			t.Errorf("clone Read(2p) after owner Write Z = %q, err %v, want B", out, err)
		}
	})

	<-ownerDone
	<-cloneDone
}

// TestConcurrentThreadsStress drives the registry from many threads
// at once: even workers run the full create/write/read/destroy cycle
// on private regions while odd workers clone a long-lived seed region,
// verify its contents, diverge from it through a COW write, and tear
// down. Afterward every page of the seed region must be exclusively
// owned again. Meant to be run under the race detector.
func TestConcurrentThreadsStress(t *testing.T) {
	r := newTestRegistry()
	pageSize := pagestore.Default().PageSize()
	size := 2 * pageSize

	pattern := make([]byte, size)
	for i := range pattern {
		pattern[i] = byte(i % 251)
	}

	seedID := make(chan thread.ID, 1)
	seedStop := make(chan struct{})
	seedDone := thread.Spawn(func(id thread.ID) {
		if err := r.Create(size); err != nil {
			t.Errorf("seed Create: %v", err)
		} else if err := r.Write(0, size, pattern); err != nil {
			t.Errorf("seed Write: %v", err)
		}
		seedID <- id

		<-seedStop
		if err := r.Destroy(); err != nil {
			t.Errorf("seed Destroy: %v", err)
		}
	})
	seed := <-seedID

	const workers = 8
	done := make([]<-chan struct{}, workers)
	for w := 0; w < workers; w++ {
		w := w
		done[w] = thread.Spawn(func(thread.ID) {
			if w%2 == 0 {
				privateCycle(t, r, w, size)
				return
			}
			cloneCycle(t, r, w, seed, pattern)
		})
	}
	for _, d := range done {
		<-d
	}

	// Every clone has been destroyed, so the seed's pages are
	// exclusively owned again.
	r.mu.RLock()
	seedReg := r.entries[seed]
	r.mu.RUnlock()
	if seedReg == nil {
		t.Fatal("seed entry vanished")
	}
	for i, rc := range seedReg.PageRefCounts() {
		if rc != 1 {
			t.Errorf("seed page %d refcount = %d after all clones destroyed, want 1", i, rc)
		}
	}

	close(seedStop)
	<-seedDone
}

func privateCycle(t *testing.T, r *Registry, w, size int) {
	if err := r.Create(size); err != nil {
		t.Errorf("worker %d Create: %v", w, err)
		return
	}

	in := []byte{byte(w), byte(w + 1), byte(w + 2)}
	if err := r.Write(7, len(in), in); err != nil {
		t.Errorf("worker %d Write: %v", w, err)
	}

	out := make([]byte, len(in))
	if err := r.Read(7, len(out), out); err != nil {
		t.Errorf("worker %d Read: %v", w, err)
	} else if !bytes.Equal(out, in) {
		t.Errorf("worker %d Read = %v, want %v", w, out, in)
	}

	if err := r.Destroy(); err != nil {
		t.Errorf("worker %d Destroy: %v", w, err)
	}
}

func cloneCycle(t *testing.T, r *Registry, w int, seed thread.ID, pattern []byte) {
	if err := r.Clone(seed); err != nil {
		t.Errorf("worker %d Clone: %v", w, err)
		return
	}

	out := make([]byte, len(pattern))
	if err := r.Read(0, len(out), out); err != nil {
		t.Errorf("worker %d Read: %v", w, err)
	} else if !bytes.Equal(out, pattern) {
		t.Errorf("worker %d clone contents diverge from seed before any write", w)
	}

	// A write through the clone must not disturb the seed (COW).
	if err := r.Write(0, 1, []byte{0xFF}); err != nil {
		t.Errorf("worker %d COW Write: %v", w, err)
	}

	if err := r.Destroy(); err != nil {
		t.Errorf("worker %d Destroy: %v", w, err)
	}
}

func TestSnapshotReflectsLiveEntries(t *testing.T) {
	r := newTestRegistry()

	done := thread.Spawn(func(id thread.ID) {
		if err := r.Create(128); err != nil {
			t.Errorf("Create: %v", err)
			return
		}

		snap := r.Snapshot()
		found := false
		for _, info := range snap {
			if info.Thread == id {
				found = true
				if info.Size != 128 {
					t.Errorf("Snapshot size = %d, want 128", info.Size)
				}
			}
		}
		if !found {
			t.Errorf("Snapshot missing entry for thread %v", id)
		}
	})
	<-done
}
