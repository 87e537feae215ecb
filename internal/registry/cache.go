package registry

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"github.com/dashpay/drive-platform/internal/wire"
)

// Registry is the process-wide contract cache. Get takes a read lock on mu
// around the LRU lookup; Registry also carries the bookkeeping needed to
// hand out transaction-local overlays.
type Registry struct {
	mu    sync.RWMutex
	cache *lru.Cache[wire.ID, *FetchInfo]
	log   *logrus.Logger
}

// NewRegistry builds a registry with a bounded contract cache of the given
// entry capacity.
func NewRegistry(capacity int) (*Registry, error) {
	c, err := lru.New[wire.ID, *FetchInfo](capacity)
	if err != nil {
		return nil, err
	}
	return &Registry{cache: c, log: logrus.StandardLogger()}, nil
}

// Get returns the committed fetch-info for a contract id, if cached.
func (r *Registry) Get(id wire.ID) (*FetchInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cache.Get(id)
}

// Put installs a fetch-info directly into the committed cache, bypassing
// the overlay mechanism. Used for warm-start and for committing an
// overlay's pending writes.
func (r *Registry) Put(id wire.ID, fi *FetchInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache.Add(id, fi)
}

// Remove evicts a contract from the committed cache (e.g. after a fatal
// decode failure forces a re-read from the store on next access).
func (r *Registry) Remove(id wire.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache.Remove(id)
}

// Overlay is a transaction-local view over the registry: reads fall
// through to the committed cache, writes are buffered until Commit, and
// Rollback discards them without ever touching the committed cache. This
// lets a transition speculatively insert a just-created contract into the
// registry and see its own write, while a later rollback of the same
// transaction leaves the registry exactly as it was.
type Overlay struct {
	base    *Registry
	pending map[wire.ID]*FetchInfo
	deleted map[wire.ID]bool
}

// BeginOverlay opens a new transaction-local overlay over the registry.
func (r *Registry) BeginOverlay() *Overlay {
	return &Overlay{base: r, pending: map[wire.ID]*FetchInfo{}, deleted: map[wire.ID]bool{}}
}

// Get checks the overlay's own pending writes first, then falls through
// to the committed cache.
func (o *Overlay) Get(id wire.ID) (*FetchInfo, bool) {
	if o.deleted[id] {
		return nil, false
	}
	if fi, ok := o.pending[id]; ok {
		return fi, true
	}
	return o.base.Get(id)
}

// Put buffers a write in the overlay; it is not visible to other
// transactions until Commit.
func (o *Overlay) Put(id wire.ID, fi *FetchInfo) {
	delete(o.deleted, id)
	o.pending[id] = fi
}

// Delete buffers a tombstone in the overlay, masking any committed entry
// until Commit.
func (o *Overlay) Delete(id wire.ID) {
	delete(o.pending, id)
	o.deleted[id] = true
}

// Commit applies every buffered write and tombstone to the committed
// cache. Call this only after the owning store transaction has committed.
func (o *Overlay) Commit() {
	for id := range o.deleted {
		o.base.Remove(id)
	}
	for id, fi := range o.pending {
		o.base.Put(id, fi)
	}
}

// Rollback discards the overlay's buffered writes; the committed cache is
// left untouched.
func (o *Overlay) Rollback() {
	o.pending = map[wire.ID]*FetchInfo{}
	o.deleted = map[wire.ID]bool{}
}
