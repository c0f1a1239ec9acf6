package mvcc

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDb(partitions int) *VersionDb {
	return NewVersionDb(Options{PartitionCount: partitions})
}

func TestInitializeAndGetVersionList(t *testing.T) {
	db := newTestDb(4)
	table := db.CreateVersionTable("t")

	assert.Empty(t, table.GetVersionList("k"))

	list := table.InitializeAndGetVersionList("k")
	require.Len(t, list, 1)
	assert.True(t, list[0].IsSentinel())
	assert.Equal(t, SentinelVersionKey, list[0].VersionKey)

	// Idempotent once the chain exists.
	list = table.InitializeAndGetVersionList("k")
	assert.Len(t, list, 1)
}

func TestUploadNewVersionEntry(t *testing.T) {
	db := newTestDb(4)
	table := db.CreateVersionTable("t")
	table.InitializeAndGetVersionList("k")

	ok := table.UploadNewVersionEntry("k", 0, VersionEntry{
		BeginTs: MaxTimestamp, EndTs: MaxTimestamp, TxID: 1, Payload: []byte("v"),
	})
	assert.True(t, ok)

	// The slot is taken now.
	ok = table.UploadNewVersionEntry("k", 0, VersionEntry{
		BeginTs: MaxTimestamp, EndTs: MaxTimestamp, TxID: 2, Payload: []byte("w"),
	})
	assert.False(t, ok)

	entry, found := table.GetVersionEntryByKey("k", 0)
	require.True(t, found)
	assert.Equal(t, int64(1), entry.TxID)
	assert.Equal(t, []byte("v"), entry.Payload)
}

func TestReplaceVersionEntry(t *testing.T) {
	db := newTestDb(4)
	table := db.CreateVersionTable("t")
	table.InitializeAndGetVersionList("k")
	table.UploadNewVersionEntry("k", 0, VersionEntry{
		BeginTs: MaxTimestamp, EndTs: MaxTimestamp, TxID: 7, Payload: []byte("v"),
	})

	// Mismatched expected writer: replace fails, current image returned.
	cur, ok := table.ReplaceVersionEntry("k", 0, 10, MaxTimestamp, NoneTx, 99, MaxTimestamp)
	assert.False(t, ok)
	assert.Equal(t, int64(7), cur.TxID)

	// Matching condition: post-image returned.
	post, ok := table.ReplaceVersionEntry("k", 0, 10, MaxTimestamp, NoneTx, 7, MaxTimestamp)
	require.True(t, ok)
	assert.Equal(t, int64(10), post.BeginTs)
	assert.Equal(t, NoneTx, post.TxID)
	assert.Equal(t, []byte("v"), post.Payload)
}

func TestReplaceWholeVersionEntry(t *testing.T) {
	db := newTestDb(4)
	table := db.CreateVersionTable("t")
	table.InitializeAndGetVersionList("k")
	table.UploadNewVersionEntry("k", 0, VersionEntry{
		BeginTs: 1, EndTs: 5, TxID: 5, Payload: []byte("v"),
	})

	ok := table.ReplaceWholeVersionEntry("k", 0, VersionEntry{
		BeginTs: 1, EndTs: 9, TxID: NoneTx, Payload: []byte("v"),
	})
	require.True(t, ok)

	entry, _ := table.GetVersionEntryByKey("k", 0)
	assert.Equal(t, int64(9), entry.EndTs)
	assert.Equal(t, NoneTx, entry.TxID)

	assert.False(t, table.ReplaceWholeVersionEntry("missing", 0, VersionEntry{}))
}

func TestUpdateVersionMaxCommitTs(t *testing.T) {
	db := newTestDb(4)
	table := db.CreateVersionTable("t")
	table.InitializeAndGetVersionList("k")
	table.UploadNewVersionEntry("k", 0, VersionEntry{BeginTs: 1, EndTs: MaxTimestamp})

	entry, ok := table.UpdateVersionMaxCommitTs("k", 0, 7)
	require.True(t, ok)
	assert.Equal(t, int64(7), entry.MaxCommitTs)

	// Lower values never decrease the floor.
	entry, _ = table.UpdateVersionMaxCommitTs("k", 0, 3)
	assert.Equal(t, int64(7), entry.MaxCommitTs)
}

func TestDeleteVersionEntry(t *testing.T) {
	db := newTestDb(4)
	table := db.CreateVersionTable("t")
	table.InitializeAndGetVersionList("k")
	table.UploadNewVersionEntry("k", 0, VersionEntry{BeginTs: 1, EndTs: MaxTimestamp})

	assert.True(t, table.DeleteVersionEntry("k", 0))
	assert.False(t, table.DeleteVersionEntry("k", 0))

	list := table.GetVersionList("k")
	require.Len(t, list, 1)
	assert.True(t, list[0].IsSentinel())
}

func TestGetVersionEntriesByKeys(t *testing.T) {
	db := newTestDb(4)
	table := db.CreateVersionTable("t")
	for i := 0; i < 8; i++ {
		key := fmt.Sprintf("k%d", i)
		table.InitializeAndGetVersionList(key)
		table.UploadNewVersionEntry(key, 0, VersionEntry{
			BeginTs: 1, EndTs: MaxTimestamp, Payload: []byte(key),
		})
	}

	batch := []EntryKey{
		{RecordKey: "k1", VersionKey: 0},
		{RecordKey: "k5", VersionKey: 0},
		{RecordKey: "k5", VersionKey: 9}, // missing slot
		{RecordKey: "nope", VersionKey: 0},
	}
	got := table.GetVersionEntriesByKeys(batch)
	require.Len(t, got, 2)
	assert.Equal(t, []byte("k1"), got[EntryKey{"k1", 0}].Payload)
	assert.Equal(t, []byte("k5"), got[EntryKey{"k5", 0}].Payload)
}

func TestClear(t *testing.T) {
	db := newTestDb(4)
	table := db.CreateVersionTable("t")
	for i := 0; i < 16; i++ {
		key := fmt.Sprintf("k%d", i)
		table.InitializeAndGetVersionList(key)
	}

	table.Clear()
	for i := 0; i < 16; i++ {
		assert.Empty(t, table.GetVersionList(fmt.Sprintf("k%d", i)))
	}
}

func TestPartitionFIFO(t *testing.T) {
	db := newTestDb(1)
	table := db.CreateVersionTable("t")
	table.InitializeAndGetVersionList("k")

	// Enqueue 1000 uploads for distinct version keys of one key from a
	// single thread, then drain. The visitor must observe them in
	// submission order, so every upload lands on a fresh slot and succeeds.
	p := table.partitions[0]
	reqs := make([]*EntryRequest, 1000)
	for i := range reqs {
		reqs[i] = &EntryRequest{
			op:         opUploadNewVersionEntry,
			key:        "k",
			versionKey: int64(i),
			entry:      VersionEntry{BeginTs: MaxTimestamp, EndTs: MaxTimestamp, TxID: 1},
		}
		p.enqueue(reqs[i])
	}
	p.visit()

	for i, req := range reqs {
		require.True(t, req.Done(), "request %d not executed", i)
		require.True(t, req.ok, "request %d rejected", i)
	}

	list := table.GetVersionList("k")
	require.Len(t, list, 1001) // sentinel + 1000 versions
	for i := 1; i < len(list); i++ {
		assert.Equal(t, int64(i-1), list[i].VersionKey)
	}
}

func TestConcurrentUploadsSameSlot(t *testing.T) {
	db := newTestDb(8)
	table := db.CreateVersionTable("t")
	table.InitializeAndGetVersionList("k")

	const writers = 16
	var wins int64
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(txID int64) {
			defer wg.Done()
			if table.UploadNewVersionEntry("k", 0, VersionEntry{
				BeginTs: MaxTimestamp, EndTs: MaxTimestamp, TxID: txID,
			}) {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(int64(i + 1))
	}
	wg.Wait()

	assert.Equal(t, int64(1), wins)
	list := table.GetVersionList("k")
	assert.Len(t, list, 2) // sentinel + the single winner
}

func TestConcurrentDistinctKeys(t *testing.T) {
	db := newTestDb(8)
	table := db.CreateVersionTable("t")

	const keys = 64
	var wg sync.WaitGroup
	for i := 0; i < keys; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("k%d", i)
			table.InitializeAndGetVersionList(key)
			assert.True(t, table.UploadNewVersionEntry(key, 0, VersionEntry{
				BeginTs: MaxTimestamp, EndTs: MaxTimestamp, TxID: int64(i + 1),
			}))
		}(i)
	}
	wg.Wait()

	for i := 0; i < keys; i++ {
		entry, ok := table.GetVersionEntryByKey(fmt.Sprintf("k%d", i), 0)
		require.True(t, ok)
		assert.Equal(t, int64(i+1), entry.TxID)
	}
}
