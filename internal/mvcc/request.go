package mvcc

import "sync/atomic"

// opCode selects the operation a request carries into a partition.
type opCode int

const (
	opGetVersionList opCode = iota
	opInitAndGetVersionList
	opUploadNewVersionEntry
	opReplaceVersionEntry
	opReplaceWholeVersionEntry
	opUpdateVersionMaxCommitTs
	opGetVersionEntryByKey
	opGetVersionEntriesByKeys
	opDeleteVersionEntry
	opClear
)

// EntryRequest reifies one version table operation. Requests are enqueued on
// the partition chosen by the physical partition function and executed by the
// partition visitor; the visitor writes results into the request and flips
// done last, so a waiter that observes done may read the results without a
// lock.
type EntryRequest struct {
	op  opCode
	key string

	versionKey    int64
	entry         VersionEntry
	beginTs       int64
	endTs         int64
	txID          int64
	readTxID      int64
	expectedEndTs int64
	maxCommitTs   int64
	batch         []EntryKey

	entries     []VersionEntry
	result      VersionEntry
	batchResult map[EntryKey]VersionEntry
	ok          bool

	done atomic.Bool
}

func (r *EntryRequest) finish() {
	r.done.Store(true)
}

// Done reports whether the visitor has executed the request.
func (r *EntryRequest) Done() bool {
	return r.done.Load()
}
