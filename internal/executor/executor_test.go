package executor

import (
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sajjad-MoBe/MVCCStore/internal/mvcc"
)

func newTestEngine(t *testing.T, tables ...string) *mvcc.VersionDb {
	t.Helper()
	db, _ := NewBuilder().
		WithOptions(mvcc.Options{PartitionCount: 4, LogicalPartitionCount: 2}).
		WithTables(tables...).
		Build()
	return db
}

func commitValue(t *testing.T, db *mvcc.VersionDb, tableID, key, value string) {
	t.Helper()
	x := NewTxExecutor(db)
	require.True(t, x.Insert(tableID, key, []byte(value)))
	require.Equal(t, TxResultCommitted, x.Commit())
}

func TestInsertThenRead(t *testing.T) {
	db := newTestEngine(t, "t")

	// A reader whose snapshot predates the insert sees nothing.
	early := NewTxExecutor(db)

	commitValue(t, db, "t", "a", "1")

	_, found := early.Read("t", "a")
	assert.False(t, found)

	late := NewTxExecutor(db)
	val, found := late.Read("t", "a")
	require.True(t, found)
	assert.Equal(t, []byte("1"), val)
}

func TestOverlappingInsertsOneWins(t *testing.T) {
	db := newTestEngine(t, "t")

	x1 := NewTxExecutor(db)
	x2 := NewTxExecutor(db)
	require.True(t, x1.Insert("t", "k", []byte("one")))
	require.True(t, x2.Insert("t", "k", []byte("two")))

	s1 := x1.Commit()
	s2 := x2.Commit()
	assert.Equal(t, TxResultCommitted, s1)
	assert.Equal(t, TxResultAborted, s2)

	list := db.GetVersionTable("t").GetVersionList("k")
	require.Len(t, list, 2) // sentinel + single winner
	assert.Equal(t, []byte("one"), list[1].Payload)
}

func TestReaderDoesNotBlockOnOngoingWriter(t *testing.T) {
	db := newTestEngine(t, "t")
	commitValue(t, db, "t", "k", "v0")

	reader := NewTxExecutor(db)

	// A writer that has uploaded but not committed.
	writer := NewTxExecutor(db)
	require.True(t, writer.Write("t", "k", []byte("v1")))
	require.True(t, writer.upload())

	val, found := reader.Read("t", "k")
	require.True(t, found)
	assert.Equal(t, []byte("v0"), val)

	// The outcome of the writer does not change what the reader saw.
	writer.Abort()
	reader2 := NewTxExecutor(db)
	val, found = reader2.Read("t", "k")
	require.True(t, found)
	assert.Equal(t, []byte("v0"), val)
}

func TestWriteAfterReadSerializes(t *testing.T) {
	db := newTestEngine(t, "t")
	commitValue(t, db, "t", "k", "v0")

	// The read-only transaction raises the maxCommitTs floor under k.
	reader := NewTxExecutor(db)
	_, found := reader.Read("t", "k")
	require.True(t, found)
	require.Equal(t, TxResultCommitted, reader.Commit())
	readerEntry, ok := db.TxTable().GetTxTableEntry(reader.TxID())
	require.True(t, ok)

	// A later writer of k must commit after the reader.
	writer := NewTxExecutor(db)
	require.True(t, writer.Write("t", "k", []byte("v1")))
	require.Equal(t, TxResultCommitted, writer.Commit())
	writerEntry, ok := db.TxTable().GetTxTableEntry(writer.TxID())
	require.True(t, ok)

	assert.Greater(t, writerEntry.CommitTime, readerEntry.CommitTime)
}

func TestAbortRollbackRestoresList(t *testing.T) {
	db := newTestEngine(t, "t")
	commitValue(t, db, "t", "k", "v0")

	before := db.GetVersionTable("t").GetVersionList("k")

	x := NewTxExecutor(db)
	require.True(t, x.Write("t", "k", []byte("v1")))
	require.True(t, x.upload())

	// The upload closed the predecessor and installed a new open version.
	during := db.GetVersionTable("t").GetVersionList("k")
	require.Len(t, during, len(before)+1)

	x.Abort()

	after := db.GetVersionTable("t").GetVersionList("k")
	assert.Equal(t, before, after)
}

func TestDeleteLeavesTombstone(t *testing.T) {
	db := newTestEngine(t, "t")
	commitValue(t, db, "t", "k", "v0")

	// A snapshot taken before the delete keeps seeing the record.
	old := NewTxExecutor(db)

	x := NewTxExecutor(db)
	require.True(t, x.Delete("t", "k"))
	require.Equal(t, TxResultCommitted, x.Commit())

	late := NewTxExecutor(db)
	_, found := late.Read("t", "k")
	assert.False(t, found)

	val, found := old.Read("t", "k")
	require.True(t, found)
	assert.Equal(t, []byte("v0"), val)
}

func TestReadOwnWrites(t *testing.T) {
	db := newTestEngine(t, "t")
	commitValue(t, db, "t", "k", "v0")

	x := NewTxExecutor(db)
	require.True(t, x.Write("t", "k", []byte("v1")))
	val, found := x.Read("t", "k")
	require.True(t, found)
	assert.Equal(t, []byte("v1"), val)

	require.True(t, x.Delete("t", "k"))
	_, found = x.Read("t", "k")
	assert.False(t, found)
}

func TestLastWriteWinsWithinTransaction(t *testing.T) {
	db := newTestEngine(t, "t")

	x := NewTxExecutor(db)
	require.True(t, x.Insert("t", "k", []byte("a")))
	require.True(t, x.Write("t", "k", []byte("b")))
	require.Equal(t, TxResultCommitted, x.Commit())

	reader := NewTxExecutor(db)
	val, found := reader.Read("t", "k")
	require.True(t, found)
	assert.Equal(t, []byte("b"), val)

	// Only one version beyond the sentinel was created.
	list := db.GetVersionTable("t").GetVersionList("k")
	assert.Len(t, list, 2)
}

func TestMissingTableAbortsTransaction(t *testing.T) {
	db := newTestEngine(t, "t")

	x := NewTxExecutor(db)
	_, found := x.Read("nope", "k")
	assert.False(t, found)
	assert.Error(t, x.Err())
	assert.Equal(t, TxResultAborted, x.Commit())
}

func TestWriteConflictOnPendingHead(t *testing.T) {
	db := newTestEngine(t, "t")
	commitValue(t, db, "t", "k", "v0")

	// A writer holds the head open.
	holder := NewTxExecutor(db)
	require.True(t, holder.Write("t", "k", []byte("v1")))
	require.True(t, holder.upload())

	// Another writer staging on the same key conflicts immediately.
	x := NewTxExecutor(db)
	assert.False(t, x.Write("t", "k", []byte("v2")))
	assert.Equal(t, TxResultAborted, x.Commit())

	holder.Abort()
}

func TestCommittedIntervalsDisjoint(t *testing.T) {
	db := newTestEngine(t, "t")
	for i := 0; i < 5; i++ {
		if i == 0 {
			commitValue(t, db, "t", "k", "v0")
			continue
		}
		x := NewTxExecutor(db)
		require.True(t, x.Write("t", "k", []byte(fmt.Sprintf("v%d", i))))
		require.Equal(t, TxResultCommitted, x.Commit())
	}

	list := db.GetVersionTable("t").GetVersionList("k")
	require.Len(t, list, 6)

	// Committed versions tile the timeline: each end equals the successor's
	// begin and only the head stays open.
	for i := 1; i < len(list); i++ {
		e := list[i]
		assert.Equal(t, mvcc.NoneTx, e.TxID)
		if i < len(list)-1 {
			assert.Equal(t, list[i+1].BeginTs, e.EndTs)
			assert.Less(t, e.BeginTs, e.EndTs)
		} else {
			assert.Equal(t, mvcc.MaxTimestamp, e.EndTs)
		}
	}
}

func TestExecutionCounters(t *testing.T) {
	db := newTestEngine(t, "t")

	exec := NewExecution(db, 0)
	exec.MarkStart()

	exec.BeginTransaction()
	require.NoError(t, exec.Insert("t", "k", []byte("v")))
	assert.Equal(t, TxResultCommitted, exec.Commit())

	exec.BeginTransaction()
	require.NoError(t, exec.Write("t", "k", []byte("w")))
	assert.Equal(t, TxResultAborted, exec.Abort())

	exec.MarkEnd()

	assert.Equal(t, int64(1), exec.CommitCount())
	assert.Equal(t, int64(1), exec.AbortCount())
	assert.False(t, exec.EndTime().Before(exec.StartTime()))
}

func TestBeginAbandonsOpenTransaction(t *testing.T) {
	db := newTestEngine(t, "t")

	exec := NewExecution(db, 0)
	exec.BeginTransaction()
	require.NoError(t, exec.Insert("t", "k", []byte("v")))

	// Starting over aborts the open transaction.
	exec.BeginTransaction()
	assert.Equal(t, int64(1), exec.AbortCount())

	// The fresh transaction is empty and commits trivially.
	assert.Equal(t, TxResultCommitted, exec.Commit())
	assert.Equal(t, int64(1), exec.CommitCount())
}

func TestConcurrentTransfersConserveTotal(t *testing.T) {
	db := newTestEngine(t, "acct")

	const accounts = 8
	const initial = 100

	seed := NewTxExecutor(db)
	for i := 0; i < accounts; i++ {
		require.True(t, seed.Insert("acct", acctKey(i), []byte(strconv.Itoa(initial))))
	}
	require.Equal(t, TxResultCommitted, seed.Commit())

	const workers = 4
	const iterations = 100
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(int64(w + 1)))
			exec := NewExecution(db, w)
			for i := 0; i < iterations; i++ {
				src := r.Intn(accounts)
				dst := (src + 1 + r.Intn(accounts-1)) % accounts
				transfer(exec, src, dst)
			}
		}(w)
	}
	wg.Wait()

	reader := NewTxExecutor(db)
	total := 0
	for i := 0; i < accounts; i++ {
		raw, found := reader.Read("acct", acctKey(i))
		require.True(t, found)
		n, err := strconv.Atoi(string(raw))
		require.NoError(t, err)
		total += n
	}
	assert.Equal(t, accounts*initial, total)
}

func acctKey(i int) string {
	return fmt.Sprintf("acct:%d", i)
}

// transfer moves one unit between two accounts; an aborted attempt is fine,
// the invariant under test is that committed transfers conserve the total.
func transfer(exec *Execution, src, dst int) {
	exec.BeginTransaction()

	from, ok, err := exec.Read("acct", acctKey(src))
	if err != nil || !ok {
		exec.Abort()
		return
	}
	to, ok, err := exec.Read("acct", acctKey(dst))
	if err != nil || !ok {
		exec.Abort()
		return
	}
	f, _ := strconv.Atoi(string(from))
	g, _ := strconv.Atoi(string(to))
	if exec.Write("acct", acctKey(src), []byte(strconv.Itoa(f-1))) != nil ||
		exec.Write("acct", acctKey(dst), []byte(strconv.Itoa(g+1))) != nil {
		exec.Abort()
		return
	}
	exec.Commit()
}
