package mvcc

import (
	"bytes"
	"math"
)

// Timestamp and transaction sentinels shared across the engine.
const (
	// MaxTimestamp stands in for +infinity on begin/end timestamps.
	MaxTimestamp int64 = math.MaxInt64
	// NoneTx marks a version entry with no pending writer.
	NoneTx int64 = 0
	// TsUnset marks a commit time that has not been decided yet.
	TsUnset int64 = -1
	// ReturnErrorCode is reserved in numeric return paths to distinguish an
	// internal error from the TsUnset value.
	ReturnErrorCode int64 = -2
	// SentinelVersionKey is the version key of the empty head installed by
	// InitializeAndGetVersionList so the first real version gets key 0.
	SentinelVersionKey int64 = -1
)

// Tombstone is the payload of a committed version that represents a delete.
var Tombstone = []byte("\x00tombstone\x00")

// IsTombstone reports whether a payload marks a deleted record.
func IsTombstone(payload []byte) bool {
	return bytes.Equal(payload, Tombstone)
}

// VersionEntry is one immutable version of one record. Updates are expressed
// as replace operations at the owning version table, never as in-place
// mutation of an entry held by a caller.
type VersionEntry struct {
	RecordKey   string
	VersionKey  int64
	BeginTs     int64
	EndTs       int64
	TxID        int64
	MaxCommitTs int64
	Payload     []byte
}

// NewSentinelEntry creates the empty head for a version list. Its begin
// timestamp is +infinity so no read timestamp can ever observe it, and its
// end timestamp is +infinity so the upload path closes it exactly like a
// real head.
func NewSentinelEntry(recordKey string) VersionEntry {
	return VersionEntry{
		RecordKey:  recordKey,
		VersionKey: SentinelVersionKey,
		BeginTs:    MaxTimestamp,
		EndTs:      MaxTimestamp,
		TxID:       NoneTx,
	}
}

// IsSentinel reports whether the entry is an empty head.
func (e VersionEntry) IsSentinel() bool {
	return e.VersionKey == SentinelVersionKey
}

// Same reports identity by (recordKey, versionKey).
func (e VersionEntry) Same(other VersionEntry) bool {
	return e.RecordKey == other.RecordKey && e.VersionKey == other.VersionKey
}

// VisibleAt reports whether the entry's validity interval contains rts. The
// caller is responsible for resolving a pending writer through the
// transaction table before trusting the answer.
func (e VersionEntry) VisibleAt(rts int64) bool {
	return e.BeginTs <= rts && rts < e.EndTs
}

// EntryKey identifies one version slot for batch lookups.
type EntryKey struct {
	RecordKey  string
	VersionKey int64
}
