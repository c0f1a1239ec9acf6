package executor

import (
	"sync/atomic"
	"time"

	"github.com/sajjad-MoBe/MVCCStore/internal/kverr"
	"github.com/sajjad-MoBe/MVCCStore/internal/mvcc"
)

// Execution is the opaque per-worker handle the workload harness drives. It
// runs one transaction at a time against the shared version database and
// keeps the commit/abort counters and run timestamps the harness reads back.
type Execution struct {
	db       *mvcc.VersionDb
	workerID int

	current *TxExecutor

	commits atomic.Int64
	aborts  atomic.Int64
	startNs atomic.Int64
	endNs   atomic.Int64
}

// NewExecution creates an execution handle bound to one logical worker.
func NewExecution(db *mvcc.VersionDb, workerID int) *Execution {
	return &Execution{db: db, workerID: workerID}
}

// WorkerID returns the logical partition this execution is bound to.
func (e *Execution) WorkerID() int {
	return e.workerID
}

// Db returns the underlying version database.
func (e *Execution) Db() *mvcc.VersionDb {
	return e.db
}

// BeginTransaction starts a new transaction. The previous transaction, if
// still open, is aborted first; the executor drives exactly one transaction
// at a time.
func (e *Execution) BeginTransaction() {
	if e.current != nil && !e.current.finished {
		e.current.Abort()
		e.aborts.Add(1)
	}
	e.current = NewTxExecutor(e.db)
}

// Read returns the value of key in tableID visible to the current
// transaction.
func (e *Execution) Read(tableID, key string) ([]byte, bool, error) {
	if e.current == nil {
		return nil, false, kverr.New(kverr.ErrorTypeInvalidInput, "no transaction in progress", nil)
	}
	val, ok := e.current.Read(tableID, key)
	return val, ok, e.current.Err()
}

// Write stages an update in the current transaction.
func (e *Execution) Write(tableID, key string, value []byte) error {
	return e.stage(func(x *TxExecutor) bool { return x.Write(tableID, key, value) })
}

// Insert stages an insert in the current transaction.
func (e *Execution) Insert(tableID, key string, value []byte) error {
	return e.stage(func(x *TxExecutor) bool { return x.Insert(tableID, key, value) })
}

// Delete stages a delete in the current transaction.
func (e *Execution) Delete(tableID, key string) error {
	return e.stage(func(x *TxExecutor) bool { return x.Delete(tableID, key) })
}

func (e *Execution) stage(op func(*TxExecutor) bool) error {
	if e.current == nil {
		return kverr.New(kverr.ErrorTypeInvalidInput, "no transaction in progress", nil)
	}
	if !op(e.current) {
		if err := e.current.Err(); err != nil {
			return err
		}
		return kverr.NewTx(kverr.ErrorTypeConflict, e.current.TxID(), "", "write conflict")
	}
	return nil
}

// CurrentTxID returns the id of the transaction in progress or, once it has
// finished, of the most recent transaction. It returns zero before the first
// BeginTransaction.
func (e *Execution) CurrentTxID() int64 {
	if e.current == nil {
		return 0
	}
	return e.current.TxID()
}

// Commit finishes the current transaction and returns its final status.
func (e *Execution) Commit() TxFinalStatus {
	if e.current == nil {
		return TxResultAborted
	}
	status := e.current.Commit()
	if status == TxResultCommitted {
		e.commits.Add(1)
	} else {
		e.aborts.Add(1)
	}
	return status
}

// Abort rolls back the current transaction.
func (e *Execution) Abort() TxFinalStatus {
	if e.current == nil {
		return TxResultAborted
	}
	status := e.current.Abort()
	e.aborts.Add(1)
	return status
}

// MarkStart records the worker's run start time.
func (e *Execution) MarkStart() {
	e.startNs.Store(time.Now().UnixNano())
}

// MarkEnd records the worker's run end time.
func (e *Execution) MarkEnd() {
	e.endNs.Store(time.Now().UnixNano())
}

// CommitCount returns the number of committed transactions.
func (e *Execution) CommitCount() int64 {
	return e.commits.Load()
}

// AbortCount returns the number of aborted transactions.
func (e *Execution) AbortCount() int64 {
	return e.aborts.Load()
}

// StartTime returns the recorded run start time.
func (e *Execution) StartTime() time.Time {
	return time.Unix(0, e.startNs.Load())
}

// EndTime returns the recorded run end time.
func (e *Execution) EndTime() time.Time {
	return time.Unix(0, e.endNs.Load())
}
