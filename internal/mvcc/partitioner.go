package mvcc

import (
	"crypto/sha256"
	"encoding/binary"
)

// PartitionFunc maps a record key to a partition index in [0, n). It must be
// deterministic: requests for one key always land in the same partition.
type PartitionFunc func(key string, n int) int

// HashPartition is the default partition function. It hashes the key
// uniformly so hot keys spread across shards.
func HashPartition(key string, n int) int {
	if n <= 1 {
		return 0
	}
	sum := sha256.Sum256([]byte(key))
	return int(binary.BigEndian.Uint64(sum[:8]) % uint64(n))
}
