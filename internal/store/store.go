// Package store implements the authenticated, subtree-structured key/value
// engine and the storage-flag bookkeeping that rides on every stored
// element.
//
// The store is organized as a tree of named subtrees ("buckets" in bbolt
// terms), each holding items, nested trees, sum-tree items, or references.
// Every mutating operation is fee-metered: callers choose ModeApply (touch
// real storage) or ModeEstimate (predict the cost without writing), sharing
// the same code path so an estimate can never drift from what apply
// actually charges.
package store

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"sort"
	"sync"

	bolt "go.etcd.io/bbolt"
	"github.com/sirupsen/logrus"

	"github.com/dashpay/drive-platform/internal/errs"
)

// Path identifies a subtree as a sequence of byte-slice segments, e.g.
// {Identities} or {ContractDocuments, contractID, "1", "domain"}.
type Path [][]byte

func (p Path) Clone() Path {
	out := make(Path, len(p))
	for i, seg := range p {
		out[i] = append([]byte(nil), seg...)
	}
	return out
}

func (p Path) Append(seg []byte) Path {
	out := p.Clone()
	return append(out, append([]byte(nil), seg...))
}

func (p Path) String() string {
	var b bytes.Buffer
	for i, seg := range p {
		if i > 0 {
			b.WriteByte('/')
		}
		b.WriteString(fmt.Sprintf("%x", seg))
	}
	return b.String()
}

// Root subtree tags. Append-only: never renumber.
var (
	TagIdentities                        = []byte("Identities")
	TagContractDocuments                 = []byte("ContractDocuments")
	TagPublicKeyHashesToIdentities        = []byte("PublicKeyHashesToIdentities")
	TagNonUniquePublicKeyHashesToIdentities = []byte("NonUniquePublicKeyHashesToIdentities")
	TagSpentAssetLockTransactions        = []byte("SpentAssetLockTransactions")
	TagPools                             = []byte("Pools")
	TagPreFundedSpecializedBalances       = []byte("PreFundedSpecializedBalances")
	TagVotes                             = []byte("Votes")
	TagTokens                            = []byte("Tokens")
	TagGroupActions                      = []byte("GroupActions")
	TagVersions                          = []byte("Versions")
	TagMisc                              = []byte("Misc")
)

// ElementKind discriminates the four element types the store holds.
type ElementKind byte

const (
	KindItem ElementKind = iota
	KindTree
	KindSumItem
	KindReference
)

// Element is the unit the store persists under a (path, key) pair.
type Element struct {
	Kind   ElementKind
	Item   []byte // KindItem
	Sum    int64  // KindSumItem
	RefTo  Path   // KindReference: path
	RefKey []byte // KindReference: key
	Flags  Flags
}

// Mode selects whether an operation touches real storage (ModeApply) or
// only predicts the cost it would incur (ModeEstimate). Both paths run the
// same collect routine.
type Mode int

const (
	ModeApply Mode = iota
	ModeEstimate
)

// Cost records the measured (or estimated) I/O of a single low-level
// operation, in the shape the fee calculator consumes directly.
type Cost struct {
	Seeks            uint64
	StorageLoadedBytes   uint64
	StorageAddedBytes    uint64
	StorageReplacedBytes uint64
	HashNodeCalls        uint64
	// RemovedBytesByEpoch maps epoch -> bytes removed that were originally
	// paid for in that epoch, feeding the storage-refund computation.
	RemovedBytesByEpoch map[uint64]uint64
}

func (c *Cost) addRemoved(epoch, n uint64) {
	if n == 0 {
		return
	}
	if c.RemovedBytesByEpoch == nil {
		c.RemovedBytesByEpoch = make(map[uint64]uint64)
	}
	c.RemovedBytesByEpoch[epoch] += n
}

func (c *Cost) merge(o Cost) {
	c.Seeks += o.Seeks
	c.StorageLoadedBytes += o.StorageLoadedBytes
	c.StorageAddedBytes += o.StorageAddedBytes
	c.StorageReplacedBytes += o.StorageReplacedBytes
	c.HashNodeCalls += o.HashNodeCalls
	for e, n := range o.RemovedBytesByEpoch {
		c.addRemoved(e, n)
	}
}

// EstimatedLayer describes the shape estimate-mode operations assume for a
// path prefix that hasn't been touched yet: whether it behaves like a tree, item, or sum-item, the average
// key/value size, and the expected population.
type EstimatedLayer struct {
	IsSumTree       bool
	AverageKeySize  uint32
	AverageValueSize uint32
	ExpectedCount   uint64
}

// EstimateContext is the estimate-only map keyed by path prefixes that
// ModeEstimate operations consult instead of touching storage.
type EstimateContext struct {
	Layers map[string]EstimatedLayer
}

func NewEstimateContext() *EstimateContext {
	return &EstimateContext{Layers: make(map[string]EstimatedLayer)}
}

func (e *EstimateContext) Layer(p Path) EstimatedLayer {
	return e.Layers[p.String()]
}

func (e *EstimateContext) SetLayer(p Path, l EstimatedLayer) {
	e.Layers[p.String()] = l
}

// Store is the authenticated KV engine: a bbolt-backed forest of subtrees
// plus an in-memory Merkle cache per subtree (see merkle.go). The WAL and
// snapshot-free durability model below is bbolt's own (a single file with
// its own write-ahead page log); the surrounding apply/commit/rollback
// discipline is ours.
type Store struct {
	mu sync.RWMutex
	db *bolt.DB

	// merkle caches the sorted leaf set and computed root per subtree path,
	// keyed by Path.String(). Rebuilt lazily after a commit touches a
	// subtree.
	merkle map[string]*merkleCache

	log *logrus.Logger
}

type merkleCache struct {
	root [32]byte
}

// Open creates or opens the authenticated store backed by a single bbolt
// file at dbPath.
func Open(dbPath string) (*Store, error) {
	db, err := bolt.Open(dbPath, 0o600, nil)
	if err != nil {
		return nil, errs.Wrap(err, "open store")
	}
	s := &Store{
		db:     db,
		merkle: make(map[string]*merkleCache),
		log:    logrus.StandardLogger(),
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Transaction wraps a single atomic apply_batch. All operations within a Transaction are
// either fully applied on Commit or discarded on Rollback; no intermediate
// state is ever observable by another reader.
type Transaction struct {
	store   *Store
	tx      *bolt.Tx
	touched map[string]bool // subtree paths touched, for merkle invalidation
	done    bool
}

// Begin starts a writable transaction.
func (s *Store) Begin() (*Transaction, error) {
	tx, err := s.db.Begin(true)
	if err != nil {
		return nil, errs.Wrap(err, "begin transaction")
	}
	return &Transaction{store: s, tx: tx, touched: make(map[string]bool)}, nil
}

// Commit finalizes the transaction and drops the cached Merkle root of
// every touched subtree, so the next read recomputes it. If bbolt reports a storage-level error at commit that
// pre-accounted costs did not anticipate, that is fatal corruption.
func (t *Transaction) Commit() error {
	if t.done {
		return fmt.Errorf("transaction already finished")
	}
	t.done = true
	if err := t.tx.Commit(); err != nil {
		return errs.Fatal(errs.KindCorruptedDriveState, "bbolt commit failed after costs were pre-accounted", err)
	}
	t.store.mu.Lock()
	for pathKey := range t.touched {
		t.store.invalidateMerkleLocked(pathKey)
	}
	t.store.mu.Unlock()
	return nil
}

// Rollback discards every operation recorded in this transaction. The
// pre-state root is untouched.
func (t *Transaction) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	return t.tx.Rollback()
}

func bucketPath(tx *bolt.Tx, p Path, create bool) (*bolt.Bucket, error) {
	if len(p) == 0 {
		return nil, fmt.Errorf("empty path")
	}
	var b *bolt.Bucket
	var err error
	if create {
		b, err = tx.CreateBucketIfNotExists(p[0])
	} else {
		b = tx.Bucket(p[0])
		if b == nil {
			return nil, nil
		}
	}
	if err != nil {
		return nil, err
	}
	for _, seg := range p[1:] {
		if create {
			b, err = b.CreateBucketIfNotExists(seg)
			if err != nil {
				return nil, err
			}
		} else {
			b = b.Bucket(seg)
			if b == nil {
				return nil, nil
			}
		}
	}
	return b, nil
}

// elementsBucket and flagsBucket/sumAggregateKey are nested inside every
// subtree bucket so items, their flags, and (for sum trees) the running
// aggregate live together under one Path.
var (
	elementsBucket = []byte("__elements__")
	flagsBucket    = []byte("__flags__")
	sumAggregateKey = []byte("__sum__")
)

func (t *Transaction) elementsBucket(p Path, create bool) (*bolt.Bucket, error) {
	parent, err := bucketPath(t.tx, p, create)
	if err != nil || parent == nil {
		return parent, err
	}
	if create {
		return parent.CreateBucketIfNotExists(elementsBucket)
	}
	return parent.Bucket(elementsBucket), nil
}

func (t *Transaction) flagsBucket(p Path, create bool) (*bolt.Bucket, error) {
	parent, err := bucketPath(t.tx, p, create)
	if err != nil || parent == nil {
		return parent, err
	}
	if create {
		return parent.CreateBucketIfNotExists(flagsBucket)
	}
	return parent.Bucket(flagsBucket), nil
}

// encodeElement serializes an element's kind-specific payload followed by
// its Flags. Flags are not metadata riding alongside storage: they are
// part of the stored bytes and therefore part of what leafHash hashes, so
// every kind carries them, length-prefixed where the payload itself isn't
// already self-delimiting.
func encodeElement(e Element) []byte {
	var body []byte
	switch e.Kind {
	case KindItem:
		var lenBuf [4]byte
		putUint32(lenBuf[:], uint32(len(e.Item)))
		body = append([]byte{byte(KindItem)}, lenBuf[:]...)
		body = append(body, e.Item...)
	case KindSumItem:
		var buf [9]byte
		buf[0] = byte(KindSumItem)
		putInt64(buf[1:], e.Sum)
		body = buf[:]
	case KindTree:
		body = []byte{byte(KindTree)}
	case KindReference:
		body = []byte{byte(KindReference)}
		body = append(body, byte(len(e.RefTo)))
		for _, seg := range e.RefTo {
			body = append(body, byte(len(seg)))
			body = append(body, seg...)
		}
		body = append(body, byte(len(e.RefKey)))
		body = append(body, e.RefKey...)
	default:
		return nil
	}
	return append(body, encodeFlags(e.Flags)...)
}

func putInt64(b []byte, v int64) {
	u := uint64(v)
	for i := 0; i < 8; i++ {
		b[i] = byte(u >> (56 - 8*i))
	}
}

func getInt64(b []byte) int64 {
	var u uint64
	for i := 0; i < 8; i++ {
		u |= uint64(b[i]) << (56 - 8*i)
	}
	return int64(u)
}

func putUint32(b []byte, v uint32) {
	for i := 0; i < 4; i++ {
		b[i] = byte(v >> (24 - 8*i))
	}
}

func getUint32(b []byte) uint32 {
	var v uint32
	for i := 0; i < 4; i++ {
		v |= uint32(b[i]) << (24 - 8*i)
	}
	return v
}

// decodeElement parses the kind-specific payload written by encodeElement,
// then decodes whatever bytes remain as the element's Flags.
func decodeElement(data []byte) (Element, error) {
	if len(data) == 0 {
		return Element{}, fmt.Errorf("empty element")
	}
	kind := ElementKind(data[0])
	var el Element
	var pos int
	switch kind {
	case KindItem:
		if len(data) < 5 {
			return Element{}, fmt.Errorf("truncated item length")
		}
		n := int(getUint32(data[1:5]))
		pos = 5
		if pos+n > len(data) {
			return Element{}, fmt.Errorf("truncated item")
		}
		el = Element{Kind: KindItem, Item: append([]byte(nil), data[pos:pos+n]...)}
		pos += n
	case KindSumItem:
		if len(data) < 9 {
			return Element{}, fmt.Errorf("truncated sum item")
		}
		el = Element{Kind: KindSumItem, Sum: getInt64(data[1:9])}
		pos = 9
	case KindTree:
		el = Element{Kind: KindTree}
		pos = 1
	case KindReference:
		pos = 1
		if pos >= len(data) {
			return Element{}, fmt.Errorf("truncated reference")
		}
		n := int(data[pos])
		pos++
		var refTo Path
		for i := 0; i < n; i++ {
			if pos >= len(data) {
				return Element{}, fmt.Errorf("truncated reference segment")
			}
			l := int(data[pos])
			pos++
			if pos+l > len(data) {
				return Element{}, fmt.Errorf("truncated reference segment bytes")
			}
			refTo = append(refTo, append([]byte(nil), data[pos:pos+l]...))
			pos += l
		}
		if pos >= len(data) {
			return Element{}, fmt.Errorf("truncated reference key")
		}
		l := int(data[pos])
		pos++
		if pos+l > len(data) {
			return Element{}, fmt.Errorf("truncated reference key bytes")
		}
		refKey := append([]byte(nil), data[pos:pos+l]...)
		pos += l
		el = Element{Kind: KindReference, RefTo: refTo, RefKey: refKey}
	default:
		return Element{}, fmt.Errorf("unknown element kind %d", kind)
	}

	flags, err := decodeFlags(data[pos:])
	if err != nil {
		return Element{}, fmt.Errorf("store: decode element flags: %w", err)
	}
	el.Flags = flags
	return el, nil
}

func elementSize(e Element) int {
	switch e.Kind {
	case KindItem:
		return len(e.Item)
	case KindSumItem:
		return 8
	default:
		return 0
	}
}

// sortedKeys returns a bucket's keys in ascending order (bbolt cursors are
// already sorted, but we materialize for the Merkle builder).
func sortedKeys(b *bolt.Bucket) [][]byte {
	var keys [][]byte
	c := b.Cursor()
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		keys = append(keys, append([]byte(nil), k...))
	}
	sort.Slice(keys, func(i, j int) bool { return bytes.Compare(keys[i], keys[j]) < 0 })
	return keys
}

func leafHash(key, value []byte) [32]byte {
	h := sha256.New()
	h.Write(key)
	h.Write(value)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
