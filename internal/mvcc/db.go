package mvcc

import (
	"sync"
	"sync/atomic"
)

// DefaultPartitionCount is the shard count of a version table when the
// options do not say otherwise.
const DefaultPartitionCount = 16

// Options configures a VersionDb. The partition functions are configuration:
// they are fixed at construction and cannot be reassigned once a table
// exists.
type Options struct {
	// PartitionCount is the number of physical shards per version table.
	PartitionCount int
	// PhysicalPartition serializes record operations per shard.
	PhysicalPartition PartitionFunc
	// LogicalPartition places transactions on workers with key affinity.
	LogicalPartition PartitionFunc
	// LogicalPartitionCount is the process-wide worker partition count.
	LogicalPartitionCount int
	// NewBackend builds the storage shard for one partition. Defaults to the
	// in-memory back end.
	NewBackend func() Backend
	// Journal, when set, observes every successful mutation.
	Journal Journal
}

func (o Options) withDefaults() Options {
	if o.PartitionCount <= 0 {
		o.PartitionCount = DefaultPartitionCount
	}
	if o.LogicalPartitionCount <= 0 {
		o.LogicalPartitionCount = o.PartitionCount
	}
	if o.PhysicalPartition == nil {
		o.PhysicalPartition = HashPartition
	}
	if o.LogicalPartition == nil {
		o.LogicalPartition = HashPartition
	}
	if o.NewBackend == nil {
		o.NewBackend = NewMemoryBackend
	}
	return o
}

// VersionDb is the root coordinator. It owns the named version tables and the
// transaction table, carries the partition functions, and routes
// table-qualified record operations.
type VersionDb struct {
	opts Options

	mu     sync.RWMutex
	tables map[string]*VersionTable

	txTable *TxTable

	// lastCommitTs is the largest commit time any transaction has finalized.
	// BeginTransaction snapshots it as the read timestamp.
	lastCommitTs atomic.Int64
}

// NewVersionDb creates a version database with the given options.
func NewVersionDb(opts Options) *VersionDb {
	return &VersionDb{
		opts:    opts.withDefaults(),
		tables:  make(map[string]*VersionTable),
		txTable: NewTxTable(),
	}
}

// TxTable returns the shared transaction table.
func (db *VersionDb) TxTable() *TxTable {
	return db.txTable
}

// PhysicalPartitionByKey returns the shard index of key within a table of n
// partitions.
func (db *VersionDb) PhysicalPartitionByKey(key string, n int) int {
	return db.opts.PhysicalPartition(key, n)
}

// LogicalPartitionByKey returns the process-wide worker partition of key.
// Changing the logical partition function after tables are populated produces
// undefined routing, which is why Options forbids reassignment.
func (db *VersionDb) LogicalPartitionByKey(key string) int {
	return db.opts.LogicalPartition(key, db.opts.LogicalPartitionCount)
}

// LogicalPartitionCount returns the worker partition count.
func (db *VersionDb) LogicalPartitionCount() int {
	return db.opts.LogicalPartitionCount
}

// CreateVersionTable installs a version table under tableID. It is
// idempotent: if the table already exists it is returned unchanged.
func (db *VersionDb) CreateVersionTable(tableID string) *VersionTable {
	db.mu.Lock()
	defer db.mu.Unlock()
	if t, ok := db.tables[tableID]; ok {
		return t
	}
	t := newVersionTable(tableID, db, db.opts.PartitionCount, db.opts.NewBackend, db.opts.Journal)
	db.tables[tableID] = t
	return t
}

// GetVersionTable returns the table registered under tableID, or nil.
// Operations against a deleted table observe nil and fail at the caller.
func (db *VersionDb) GetVersionTable(tableID string) *VersionTable {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.tables[tableID]
}

// DeleteTable removes the table registered under tableID. It returns whether
// a table was removed.
func (db *VersionDb) DeleteTable(tableID string) bool {
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, ok := db.tables[tableID]; !ok {
		return false
	}
	delete(db.tables, tableID)
	return true
}

// TableIDs returns the identifiers of every registered table.
func (db *VersionDb) TableIDs() []string {
	db.mu.RLock()
	defer db.mu.RUnlock()
	ids := make([]string, 0, len(db.tables))
	for id := range db.tables {
		ids = append(ids, id)
	}
	return ids
}

// LastCommitTs returns the largest finalized commit time.
func (db *VersionDb) LastCommitTs() int64 {
	return db.lastCommitTs.Load()
}

// AdvanceLastCommitTs raises the finalized commit time watermark to at least
// ts.
func (db *VersionDb) AdvanceLastCommitTs(ts int64) {
	for {
		cur := db.lastCommitTs.Load()
		if cur >= ts || db.lastCommitTs.CompareAndSwap(cur, ts) {
			return
		}
	}
}
