package mvcc

import "runtime"

// VersionTable stores the version chains of one relation, sharded into
// partitions. All access to a record key funnels through the partition chosen
// by the owning database's physical partition function, which serializes
// concurrent operations on that key.
type VersionTable struct {
	tableID    string
	db         *VersionDb // non-owning back-reference
	partitions []*partition
}

func newVersionTable(tableID string, db *VersionDb, partitionCount int, newBackend func() Backend, journal Journal) *VersionTable {
	t := &VersionTable{
		tableID:    tableID,
		db:         db,
		partitions: make([]*partition, partitionCount),
	}
	for i := range t.partitions {
		t.partitions[i] = newPartition(tableID, newBackend(), journal)
	}
	return t
}

// TableID returns the identifier this table was created under.
func (t *VersionTable) TableID() string {
	return t.tableID
}

// PartitionCount returns the number of shards.
func (t *VersionTable) PartitionCount() int {
	return len(t.partitions)
}

// run enqueues the request on the partition owning its key and cooperatively
// drains that partition until the request is done.
func (t *VersionTable) run(req *EntryRequest) {
	p := t.partitions[t.db.PhysicalPartitionByKey(req.key, len(t.partitions))]
	p.enqueue(req)
	for !req.Done() {
		p.visit()
		if !req.Done() {
			runtime.Gosched()
		}
	}
}

// GetVersionList returns a copy of the version chain of key, oldest first.
// The result may be empty.
func (t *VersionTable) GetVersionList(key string) []VersionEntry {
	req := &EntryRequest{op: opGetVersionList, key: key}
	t.run(req)
	return req.entries
}

// InitializeAndGetVersionList returns the version chain of key, first
// installing the sentinel empty head if the chain does not exist. After this
// call every inserter can compute newVersionKey = largestVersionKey + 1
// uniformly.
func (t *VersionTable) InitializeAndGetVersionList(key string) []VersionEntry {
	req := &EntryRequest{op: opInitAndGetVersionList, key: key}
	t.run(req)
	return req.entries
}

// UploadNewVersionEntry installs entry in the (key, versionKey) slot. It
// returns true if the slot was empty and the entry was installed, false if
// another writer won the slot.
func (t *VersionTable) UploadNewVersionEntry(key string, versionKey int64, entry VersionEntry) bool {
	req := &EntryRequest{op: opUploadNewVersionEntry, key: key, versionKey: versionKey, entry: entry}
	t.run(req)
	return req.ok
}

// ReplaceVersionEntry conditionally replaces the (key, versionKey) slot with
// (beginTs, endTs, txID). The replace succeeds only if the current entry's
// writer is readTxID and its end timestamp is expectedEndTs. It returns the
// post-image and true on success, or the current image and false when the
// condition failed.
func (t *VersionTable) ReplaceVersionEntry(key string, versionKey, beginTs, endTs, txID, readTxID, expectedEndTs int64) (VersionEntry, bool) {
	req := &EntryRequest{
		op:            opReplaceVersionEntry,
		key:           key,
		versionKey:    versionKey,
		beginTs:       beginTs,
		endTs:         endTs,
		txID:          txID,
		readTxID:      readTxID,
		expectedEndTs: expectedEndTs,
	}
	t.run(req)
	return req.result, req.ok
}

// ReplaceWholeVersionEntry unconditionally overwrites the (key, versionKey)
// slot. The caller must already own the slot through its transaction id.
func (t *VersionTable) ReplaceWholeVersionEntry(key string, versionKey int64, entry VersionEntry) bool {
	req := &EntryRequest{op: opReplaceWholeVersionEntry, key: key, versionKey: versionKey, entry: entry}
	t.run(req)
	return req.ok
}

// UpdateVersionMaxCommitTs raises the slot's maxCommitTs to at least ts and
// returns the updated entry.
func (t *VersionTable) UpdateVersionMaxCommitTs(key string, versionKey, ts int64) (VersionEntry, bool) {
	req := &EntryRequest{op: opUpdateVersionMaxCommitTs, key: key, versionKey: versionKey, maxCommitTs: ts}
	t.run(req)
	return req.result, req.ok
}

// GetVersionEntryByKey returns the entry in the (key, versionKey) slot.
func (t *VersionTable) GetVersionEntryByKey(key string, versionKey int64) (VersionEntry, bool) {
	req := &EntryRequest{op: opGetVersionEntryByKey, key: key, versionKey: versionKey}
	t.run(req)
	return req.result, req.ok
}

// GetVersionEntriesByKeys returns every found entry for the batch, keyed by
// (recordKey, versionKey). Slots are grouped per partition so each partition
// is visited once.
func (t *VersionTable) GetVersionEntriesByKeys(batch []EntryKey) map[EntryKey]VersionEntry {
	byPartition := make(map[int][]EntryKey)
	for _, bk := range batch {
		i := t.db.PhysicalPartitionByKey(bk.RecordKey, len(t.partitions))
		byPartition[i] = append(byPartition[i], bk)
	}

	out := make(map[EntryKey]VersionEntry, len(batch))
	for _, keys := range byPartition {
		req := &EntryRequest{op: opGetVersionEntriesByKeys, key: keys[0].RecordKey, batch: keys}
		t.run(req)
		for bk, e := range req.batchResult {
			out[bk] = e
		}
	}
	return out
}

// DeleteVersionEntry removes the (key, versionKey) slot, rolling back an
// insert. It returns whether something was removed.
func (t *VersionTable) DeleteVersionEntry(key string, versionKey int64) bool {
	req := &EntryRequest{op: opDeleteVersionEntry, key: key, versionKey: versionKey}
	t.run(req)
	return req.ok
}

// Clear empties every partition of the table. Test-only.
func (t *VersionTable) Clear() {
	for i := range t.partitions {
		req := &EntryRequest{op: opClear}
		p := t.partitions[i]
		p.enqueue(req)
		for !req.Done() {
			p.visit()
			if !req.Done() {
				runtime.Gosched()
			}
		}
	}
}
