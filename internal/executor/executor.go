package executor

import (
	"github.com/sajjad-MoBe/MVCCStore/internal/kverr"
	"github.com/sajjad-MoBe/MVCCStore/internal/mvcc"
)

// TxFinalStatus is the outcome of a transaction returned to the caller.
type TxFinalStatus int

const (
	TxResultCommitted TxFinalStatus = iota
	TxResultAborted
)

// String returns a human-readable final status.
func (s TxFinalStatus) String() string {
	if s == TxResultCommitted {
		return "COMMITTED"
	}
	return "ABORTED"
}

type readSetEntry struct {
	tableID     string
	key         string
	versionKey  int64
	beginTs     int64 // effective begin observed at read time
	maxCommitTs int64 // observed at read time
}

type writeSetEntry struct {
	tableID    string
	key        string
	versionKey int64
	payload    []byte

	prev       mvcc.VersionEntry // prior head snapshot at staging time
	uploaded   bool
	prevClosed bool
}

// TxExecutor drives one transaction through its lifecycle: begin, read/write
// set accumulation, upload, validate, commit decision, post-process. It is
// bound to one worker and is never re-entered from another goroutine.
type TxExecutor struct {
	db     *mvcc.VersionDb
	txID   int64
	readTs int64

	readSet  []readSetEntry
	writeSet []writeSetEntry
	writeIdx map[string]int // tableID+"/"+key -> writeSet index

	finished bool
	final    TxFinalStatus
	err      error // protocol fault, if any
}

// NewTxExecutor begins a new transaction: it allocates a transaction id with
// status ONGOING and snapshots the database's committed watermark as the
// read timestamp.
func NewTxExecutor(db *mvcc.VersionDb) *TxExecutor {
	return &TxExecutor{
		db:       db,
		txID:     db.TxTable().InsertNewTx(),
		readTs:   db.LastCommitTs(),
		writeIdx: make(map[string]int),
	}
}

// TxID returns the transaction identifier.
func (x *TxExecutor) TxID() int64 {
	return x.txID
}

// ReadTs returns the snapshot read timestamp.
func (x *TxExecutor) ReadTs() int64 {
	return x.readTs
}

// Err returns the protocol fault that aborted the transaction, if any.
func (x *TxExecutor) Err() error {
	return x.err
}

func writeKey(tableID, key string) string {
	return tableID + "/" + key
}

// Read returns the payload of key visible at the transaction's read
// timestamp. A staged write of this transaction shadows the version chain.
// The second result is false when the record does not exist (or is a
// tombstone) at the read timestamp.
func (x *TxExecutor) Read(tableID, key string) ([]byte, bool) {
	if x.finished {
		return nil, false
	}
	if i, ok := x.writeIdx[writeKey(tableID, key)]; ok {
		p := x.writeSet[i].payload
		if mvcc.IsTombstone(p) {
			return nil, false
		}
		return p, true
	}

	table := x.db.GetVersionTable(tableID)
	if table == nil {
		x.abort(kverr.NewTx(kverr.ErrorTypeNotFound, x.txID, tableID, "version table missing"))
		return nil, false
	}

	entry, ok := x.selectVisible(table.GetVersionList(key))
	if !ok {
		return nil, false
	}
	x.readSet = append(x.readSet, readSetEntry{
		tableID:     tableID,
		key:         key,
		versionKey:  entry.VersionKey,
		beginTs:     entry.BeginTs,
		maxCommitTs: entry.MaxCommitTs,
	})
	if mvcc.IsTombstone(entry.Payload) {
		return nil, false
	}
	return entry.Payload, true
}

// selectVisible scans the version chain newest first and returns the version
// visible at the read timestamp, with pending writers resolved through the
// transaction table. The returned entry carries its effective begin
// timestamp. A reader never waits for an ongoing writer.
func (x *TxExecutor) selectVisible(list []mvcc.VersionEntry) (mvcc.VersionEntry, bool) {
	txTable := x.db.TxTable()
	for i := len(list) - 1; i >= 0; i-- {
		e := list[i]
		if e.IsSentinel() {
			continue
		}
		if e.TxID == mvcc.NoneTx {
			if e.VisibleAt(x.readTs) {
				return e, true
			}
			continue
		}

		writer, ok := txTable.GetTxTableEntry(e.TxID)
		if !ok {
			continue
		}
		if e.BeginTs == mvcc.MaxTimestamp {
			// Freshly uploaded version still owned by its writer.
			if writer.Status == mvcc.TxCommitted && writer.CommitTime <= x.readTs && x.readTs < e.EndTs {
				e.BeginTs = writer.CommitTime
				return e, true
			}
			continue
		}
		// Prior head closed with a placeholder end carrying the closer's id.
		// Until the closer commits, the version stays open.
		endTs := mvcc.MaxTimestamp
		if writer.Status == mvcc.TxCommitted {
			endTs = writer.CommitTime
		}
		if e.BeginTs <= x.readTs && x.readTs < endTs {
			e.EndTs = endTs
			return e, true
		}
	}
	return mvcc.VersionEntry{}, false
}

// Write stages an update of key. The new version key is the current head's
// version key plus one; the prior head snapshot is kept for the upload and
// post-process phases.
func (x *TxExecutor) Write(tableID, key string, payload []byte) bool {
	return x.stageWrite(tableID, key, payload)
}

// Insert stages an insert of key. Inserts initialize the version chain so the
// sentinel head exists and the version key formula stays uniform.
func (x *TxExecutor) Insert(tableID, key string, payload []byte) bool {
	return x.stageWrite(tableID, key, payload)
}

// Delete stages a delete of key, modeled as a write whose payload is the
// tombstone marker.
func (x *TxExecutor) Delete(tableID, key string) bool {
	return x.stageWrite(tableID, key, mvcc.Tombstone)
}

func (x *TxExecutor) stageWrite(tableID, key string, payload []byte) bool {
	if x.finished {
		return false
	}
	if i, ok := x.writeIdx[writeKey(tableID, key)]; ok {
		// Last write wins; the version slot stays the same.
		x.writeSet[i].payload = payload
		return true
	}

	table := x.db.GetVersionTable(tableID)
	if table == nil {
		x.abort(kverr.NewTx(kverr.ErrorTypeNotFound, x.txID, tableID, "version table missing"))
		return false
	}

	list := table.InitializeAndGetVersionList(key)
	head := list[len(list)-1]
	if head.TxID != mvcc.NoneTx {
		// The head is still owned by another writer, or committed but not yet
		// stamped. Chaining a new version onto it would race that writer's
		// post-processing, so the conflict aborts here.
		x.abort(nil)
		return false
	}

	x.writeSet = append(x.writeSet, writeSetEntry{
		tableID:    tableID,
		key:        key,
		versionKey: head.VersionKey + 1,
		payload:    payload,
		prev:       head,
	})
	x.writeIdx[writeKey(tableID, key)] = len(x.writeSet) - 1
	return true
}

// Commit runs the upload, validate, commit-decision and post-process phases
// and returns the final status.
func (x *TxExecutor) Commit() TxFinalStatus {
	if x.finished {
		return x.final
	}

	if !x.upload() {
		return x.finalize(TxResultAborted, mvcc.TsUnset)
	}
	commitTime, ok := x.validate()
	if !ok {
		return x.finalize(TxResultAborted, mvcc.TsUnset)
	}
	return x.finalize(TxResultCommitted, commitTime)
}

// Abort self-aborts the transaction and rolls back every partially written
// version.
func (x *TxExecutor) Abort() TxFinalStatus {
	if x.finished {
		return x.final
	}
	return x.finalize(TxResultAborted, mvcc.TsUnset)
}

// upload installs every staged write as an open version and closes the prior
// head with a placeholder end carrying this transaction's id. Any lost race
// aborts the transaction.
func (x *TxExecutor) upload() bool {
	for i := range x.writeSet {
		w := &x.writeSet[i]
		table := x.db.GetVersionTable(w.tableID)
		if table == nil {
			return false
		}

		ok := table.UploadNewVersionEntry(w.key, w.versionKey, mvcc.VersionEntry{
			RecordKey:  w.key,
			VersionKey: w.versionKey,
			BeginTs:    mvcc.MaxTimestamp,
			EndTs:      mvcc.MaxTimestamp,
			TxID:       x.txID,
			Payload:    w.payload,
		})
		if !ok {
			return false
		}
		w.uploaded = true

		_, ok = table.ReplaceVersionEntry(
			w.key, w.prev.VersionKey,
			w.prev.BeginTs, x.txID, x.txID,
			w.prev.TxID, mvcc.MaxTimestamp,
		)
		if !ok {
			return false
		}
		w.prevClosed = true
	}
	return true
}

// validate proposes a commit time from the read and write sets, fixes it in
// the transaction table, raises the maxCommitTs floor under every read, and
// pushes concurrent writers' commit lower bounds past this transaction.
func (x *TxExecutor) validate() (int64, bool) {
	txTable := x.db.TxTable()

	proposed := int64(0)
	if entry, ok := txTable.GetTxTableEntry(x.txID); ok {
		proposed = entry.CommitLowerBound
	}
	for i := range x.readSet {
		if ts := x.readSet[i].maxCommitTs + 1; ts > proposed {
			proposed = ts
		}
	}
	for i := range x.writeSet {
		w := &x.writeSet[i]
		if ts := w.prev.MaxCommitTs + 1; ts > proposed {
			proposed = ts
		}
		// The new version must begin strictly after the predecessor, or the
		// predecessor's interval would collapse to nothing.
		if !w.prev.IsSentinel() {
			if ts := w.prev.BeginTs + 1; ts > proposed {
				proposed = ts
			}
		}
	}

	commitTime := txTable.SetAndGetCommitTime(x.txID, proposed)
	if commitTime < 0 {
		return 0, false
	}

	// Raise the floor under every read, then confirm nothing superseded it.
	for i := range x.readSet {
		r := &x.readSet[i]
		table := x.db.GetVersionTable(r.tableID)
		if table == nil {
			return 0, false
		}
		if _, ok := table.UpdateVersionMaxCommitTs(r.key, r.versionKey, commitTime); !ok {
			return 0, false
		}
		cur, ok := table.GetVersionEntryByKey(r.key, r.versionKey)
		if !ok {
			return 0, false
		}
		if cur.TxID != mvcc.NoneTx && cur.TxID != x.txID {
			// Another writer closed this version. Push it past this commit,
			// or abort if it already committed at or before it.
			ret := txTable.UpdateCommitLowerBound(cur.TxID, commitTime+1)
			if ret == mvcc.ReturnErrorCode {
				x.err = kverr.NewTx(kverr.ErrorTypeInternal, cur.TxID, r.tableID,
					"commit lower bound update failed")
				return 0, false
			}
			if ret >= 0 && ret <= commitTime {
				return 0, false
			}
		}
		if x.superseded(table, r, commitTime) {
			return 0, false
		}
	}

	// Push every concurrent writer of a written key past this commit.
	for i := range x.writeSet {
		w := &x.writeSet[i]
		table := x.db.GetVersionTable(w.tableID)
		if table == nil {
			return 0, false
		}
		for _, e := range table.GetVersionList(w.key) {
			if e.TxID == mvcc.NoneTx || e.TxID == x.txID {
				continue
			}
			other, ok := txTable.GetTxTableEntry(e.TxID)
			if !ok || other.Status != mvcc.TxOngoing {
				continue
			}
			ret := txTable.UpdateCommitLowerBound(e.TxID, commitTime+1)
			if ret == mvcc.ReturnErrorCode {
				x.err = kverr.NewTx(kverr.ErrorTypeInternal, e.TxID, w.tableID,
					"commit lower bound update failed")
				return 0, false
			}
			if ret >= 0 && ret <= commitTime {
				return 0, false
			}
		}
	}

	return commitTime, true
}

// superseded reports whether a committed version with an effective begin
// timestamp inside (readBegin, commitTime] exists for the read entry, which
// would invalidate the read.
func (x *TxExecutor) superseded(table *mvcc.VersionTable, r *readSetEntry, commitTime int64) bool {
	txTable := x.db.TxTable()
	for _, e := range table.GetVersionList(r.key) {
		if e.IsSentinel() || e.VersionKey == r.versionKey {
			continue
		}
		// A version closed by a pending writer keeps its committed begin; a
		// freshly uploaded one begins at its writer's commit time.
		effBegin := e.BeginTs
		if e.TxID != mvcc.NoneTx && e.BeginTs == mvcc.MaxTimestamp {
			writer, ok := txTable.GetTxTableEntry(e.TxID)
			if !ok || writer.Status != mvcc.TxCommitted {
				continue
			}
			effBegin = writer.CommitTime
		}
		if effBegin > r.beginTs && effBegin <= commitTime {
			return true
		}
	}
	return false
}

// finalize records the terminal status in the transaction table and runs
// post-processing: stamping versions on commit, rolling them back on abort.
func (x *TxExecutor) finalize(status TxFinalStatus, commitTime int64) TxFinalStatus {
	txTable := x.db.TxTable()
	if status == TxResultCommitted {
		txTable.UpdateTxStatus(x.txID, mvcc.TxCommitted)
		x.postProcessCommit(commitTime)
	} else {
		txTable.UpdateTxStatus(x.txID, mvcc.TxAborted)
		x.postProcessAbort()
	}
	x.finished = true
	x.final = status
	return status
}

func (x *TxExecutor) postProcessCommit(commitTime int64) {
	for i := range x.writeSet {
		w := &x.writeSet[i]
		table := x.db.GetVersionTable(w.tableID)
		if table == nil {
			continue
		}

		table.ReplaceVersionEntry(
			w.key, w.versionKey,
			commitTime, mvcc.MaxTimestamp, mvcc.NoneTx,
			x.txID, mvcc.MaxTimestamp,
		)

		if w.prevClosed {
			if cur, ok := table.GetVersionEntryByKey(w.key, w.prev.VersionKey); ok &&
				cur.TxID == x.txID && cur.EndTs == x.txID {
				cur.EndTs = commitTime
				cur.TxID = mvcc.NoneTx
				table.ReplaceWholeVersionEntry(w.key, w.prev.VersionKey, cur)
			}
		}
	}
	x.db.AdvanceLastCommitTs(commitTime)
}

func (x *TxExecutor) postProcessAbort() {
	for i := len(x.writeSet) - 1; i >= 0; i-- {
		w := &x.writeSet[i]
		table := x.db.GetVersionTable(w.tableID)
		if table == nil {
			continue
		}
		if w.uploaded {
			table.DeleteVersionEntry(w.key, w.versionKey)
		}
		if w.prevClosed {
			table.ReplaceVersionEntry(
				w.key, w.prev.VersionKey,
				w.prev.BeginTs, mvcc.MaxTimestamp, mvcc.NoneTx,
				x.txID, x.txID,
			)
		}
	}
}

func (x *TxExecutor) abort(err error) {
	if x.err == nil {
		x.err = err
	}
	x.finalize(TxResultAborted, mvcc.TsUnset)
}
