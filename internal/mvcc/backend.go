package mvcc

import (
	"github.com/tidwall/btree"
)

// Backend is the capability set a partition needs from its storage. The
// visitor is the only caller, one partition at a time, so implementations do
// not need internal locking. Concrete back ends are chosen at table
// construction time.
type Backend interface {
	GetVersionList(key string) []VersionEntry
	InitAndGetVersionList(key string) []VersionEntry
	Upload(key string, versionKey int64, entry VersionEntry) bool
	Replace(key string, versionKey, beginTs, endTs, txID, readTxID, expectedEndTs int64) (VersionEntry, bool)
	ReplaceWhole(key string, versionKey int64, entry VersionEntry) bool
	UpdateMaxCommitTs(key string, versionKey, ts int64) (VersionEntry, bool)
	Get(key string, versionKey int64) (VersionEntry, bool)
	Delete(key string, versionKey int64) bool
	Clear()
}

// versionList holds the version chain of one key, ordered by strictly
// increasing version key. Appends dominate, so a slice is kept sorted by
// construction and searched from the tail.
type versionList struct {
	entries []VersionEntry
}

func (vl *versionList) indexOf(versionKey int64) int {
	for i := len(vl.entries) - 1; i >= 0; i-- {
		if vl.entries[i].VersionKey == versionKey {
			return i
		}
		if vl.entries[i].VersionKey < versionKey {
			break
		}
	}
	return -1
}

// memoryBackend keeps version chains in an ordered in-memory key index.
type memoryBackend struct {
	keys *btree.Map[string, *versionList]
}

// NewMemoryBackend creates the default in-memory back end for one partition.
func NewMemoryBackend() Backend {
	return &memoryBackend{keys: new(btree.Map[string, *versionList])}
}

func (b *memoryBackend) GetVersionList(key string) []VersionEntry {
	vl, ok := b.keys.Get(key)
	if !ok {
		return nil
	}
	out := make([]VersionEntry, len(vl.entries))
	copy(out, vl.entries)
	return out
}

func (b *memoryBackend) InitAndGetVersionList(key string) []VersionEntry {
	vl, ok := b.keys.Get(key)
	if !ok || len(vl.entries) == 0 {
		vl = &versionList{entries: []VersionEntry{NewSentinelEntry(key)}}
		b.keys.Set(key, vl)
	}
	out := make([]VersionEntry, len(vl.entries))
	copy(out, vl.entries)
	return out
}

func (b *memoryBackend) Upload(key string, versionKey int64, entry VersionEntry) bool {
	vl, ok := b.keys.Get(key)
	if !ok {
		vl = &versionList{}
		b.keys.Set(key, vl)
	}
	if vl.indexOf(versionKey) >= 0 {
		return false
	}
	if n := len(vl.entries); n > 0 && vl.entries[n-1].VersionKey > versionKey {
		// A later version was already installed; the slot is stale.
		return false
	}
	entry.RecordKey = key
	entry.VersionKey = versionKey
	vl.entries = append(vl.entries, entry)
	return true
}

func (b *memoryBackend) Replace(key string, versionKey, beginTs, endTs, txID, readTxID, expectedEndTs int64) (VersionEntry, bool) {
	vl, ok := b.keys.Get(key)
	if !ok {
		return VersionEntry{}, false
	}
	i := vl.indexOf(versionKey)
	if i < 0 {
		return VersionEntry{}, false
	}
	cur := vl.entries[i]
	if cur.TxID != readTxID || cur.EndTs != expectedEndTs {
		return cur, false
	}
	cur.BeginTs = beginTs
	cur.EndTs = endTs
	cur.TxID = txID
	vl.entries[i] = cur
	return cur, true
}

func (b *memoryBackend) ReplaceWhole(key string, versionKey int64, entry VersionEntry) bool {
	vl, ok := b.keys.Get(key)
	if !ok {
		return false
	}
	i := vl.indexOf(versionKey)
	if i < 0 {
		return false
	}
	entry.RecordKey = key
	entry.VersionKey = versionKey
	vl.entries[i] = entry
	return true
}

func (b *memoryBackend) UpdateMaxCommitTs(key string, versionKey, ts int64) (VersionEntry, bool) {
	vl, ok := b.keys.Get(key)
	if !ok {
		return VersionEntry{}, false
	}
	i := vl.indexOf(versionKey)
	if i < 0 {
		return VersionEntry{}, false
	}
	if vl.entries[i].MaxCommitTs < ts {
		vl.entries[i].MaxCommitTs = ts
	}
	return vl.entries[i], true
}

func (b *memoryBackend) Get(key string, versionKey int64) (VersionEntry, bool) {
	vl, ok := b.keys.Get(key)
	if !ok {
		return VersionEntry{}, false
	}
	i := vl.indexOf(versionKey)
	if i < 0 {
		return VersionEntry{}, false
	}
	return vl.entries[i], true
}

func (b *memoryBackend) Delete(key string, versionKey int64) bool {
	vl, ok := b.keys.Get(key)
	if !ok {
		return false
	}
	i := vl.indexOf(versionKey)
	if i < 0 {
		return false
	}
	vl.entries = append(vl.entries[:i], vl.entries[i+1:]...)
	if len(vl.entries) == 0 {
		b.keys.Delete(key)
	}
	return true
}

func (b *memoryBackend) Clear() {
	b.keys = new(btree.Map[string, *versionList])
}
