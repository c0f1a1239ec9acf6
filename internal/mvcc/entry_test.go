package mvcc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSentinelNeverVisible(t *testing.T) {
	s := NewSentinelEntry("k")

	assert.True(t, s.IsSentinel())
	assert.False(t, s.VisibleAt(0))
	assert.False(t, s.VisibleAt(MaxTimestamp-1))
}

func TestVisibleAt(t *testing.T) {
	e := VersionEntry{BeginTs: 5, EndTs: 10}

	assert.False(t, e.VisibleAt(4))
	assert.True(t, e.VisibleAt(5))
	assert.True(t, e.VisibleAt(9))
	assert.False(t, e.VisibleAt(10))
}

func TestOpenVersionVisibleAtAnyLaterTs(t *testing.T) {
	e := VersionEntry{BeginTs: 3, EndTs: MaxTimestamp}

	assert.True(t, e.VisibleAt(3))
	assert.True(t, e.VisibleAt(MaxTimestamp-1))
}

func TestSameIdentity(t *testing.T) {
	a := VersionEntry{RecordKey: "k", VersionKey: 1, Payload: []byte("x")}
	b := VersionEntry{RecordKey: "k", VersionKey: 1, Payload: []byte("y")}
	c := VersionEntry{RecordKey: "k", VersionKey: 2}

	assert.True(t, a.Same(b))
	assert.False(t, a.Same(c))
}

func TestTombstone(t *testing.T) {
	assert.True(t, IsTombstone(Tombstone))
	assert.False(t, IsTombstone([]byte("value")))
	assert.False(t, IsTombstone(nil))
}
