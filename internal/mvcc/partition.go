package mvcc

import "sync/atomic"

// Journal observes successful mutations of a partition. The changelog back
// end implements it; a nil journal disables observation.
type Journal interface {
	Record(op string, tableID string, entry VersionEntry)
}

// Journal op names.
const (
	JournalUpload  = "UPLOAD"
	JournalReplace = "REPLACE"
	JournalDelete  = "DELETE"
)

// partition owns one shard of a version table: the request and flush queues,
// the spin lock guarding swaps between them, and the storage shard itself.
//
// Visitor mode is cooperative draining: any caller that enqueued a request
// may become the visitor by winning visitLock. At most one visitor runs at a
// time, so the back end sees single-threaded access and entries need no
// per-entry locks. Within the partition, requests execute in submission
// order.
type partition struct {
	tableID string
	journal Journal

	lock       spinLock
	reqQueue   []*EntryRequest
	flushQueue []*EntryRequest
	pending    atomic.Int64

	visitLock spinLock
	store     Backend
}

func newPartition(tableID string, store Backend, journal Journal) *partition {
	return &partition{
		tableID: tableID,
		journal: journal,
		store:   store,
	}
}

// enqueue pushes a request on the request queue under the partition lock.
func (p *partition) enqueue(req *EntryRequest) {
	p.pending.Add(1)
	p.lock.Lock()
	p.reqQueue = append(p.reqQueue, req)
	p.lock.Unlock()
}

// visit tries to become the partition's visitor. If another caller is
// already visiting, it returns immediately; the other visitor will execute
// every request swapped into the flush queue, including ours if it made the
// swap.
func (p *partition) visit() {
	if p.pending.Load() == 0 {
		return
	}
	if !p.visitLock.TryLock() {
		return
	}
	defer p.visitLock.Unlock()

	p.lock.Lock()
	if len(p.reqQueue) == 0 {
		p.lock.Unlock()
		return
	}
	p.reqQueue, p.flushQueue = p.flushQueue, p.reqQueue
	p.lock.Unlock()

	for _, req := range p.flushQueue {
		p.execute(req)
		req.finish()
		p.pending.Add(-1)
	}
	p.flushQueue = p.flushQueue[:0]
}

// execute runs one request against the storage shard. Only the visitor calls
// it.
func (p *partition) execute(req *EntryRequest) {
	switch req.op {
	case opGetVersionList:
		req.entries = p.store.GetVersionList(req.key)

	case opInitAndGetVersionList:
		req.entries = p.store.InitAndGetVersionList(req.key)

	case opUploadNewVersionEntry:
		req.ok = p.store.Upload(req.key, req.versionKey, req.entry)
		if req.ok {
			p.record(JournalUpload, req.key, req.versionKey)
		}

	case opReplaceVersionEntry:
		req.result, req.ok = p.store.Replace(
			req.key, req.versionKey,
			req.beginTs, req.endTs, req.txID,
			req.readTxID, req.expectedEndTs,
		)
		if req.ok {
			p.record(JournalReplace, req.key, req.versionKey)
		}

	case opReplaceWholeVersionEntry:
		req.ok = p.store.ReplaceWhole(req.key, req.versionKey, req.entry)
		if req.ok {
			p.record(JournalReplace, req.key, req.versionKey)
		}

	case opUpdateVersionMaxCommitTs:
		req.result, req.ok = p.store.UpdateMaxCommitTs(req.key, req.versionKey, req.maxCommitTs)

	case opGetVersionEntryByKey:
		req.result, req.ok = p.store.Get(req.key, req.versionKey)

	case opGetVersionEntriesByKeys:
		req.batchResult = make(map[EntryKey]VersionEntry, len(req.batch))
		for _, bk := range req.batch {
			if e, ok := p.store.Get(bk.RecordKey, bk.VersionKey); ok {
				req.batchResult[bk] = e
			}
		}

	case opDeleteVersionEntry:
		req.ok = p.store.Delete(req.key, req.versionKey)
		if req.ok {
			p.record(JournalDelete, req.key, req.versionKey)
		}

	case opClear:
		p.store.Clear()
		req.ok = true
	}
}

func (p *partition) record(op, key string, versionKey int64) {
	if p.journal == nil {
		return
	}
	if e, ok := p.store.Get(key, versionKey); ok {
		p.journal.Record(op, p.tableID, e)
	} else {
		p.journal.Record(op, p.tableID, VersionEntry{RecordKey: key, VersionKey: versionKey})
	}
}
