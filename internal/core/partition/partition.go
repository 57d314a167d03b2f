package partition

import "hash/fnv"

// For maps a deduplication key onto [0, shards). Stable and deterministic:
// the same key always lands on the same shard for a given shard count.
// Uses FNV-32a (stdlib, fast, well-distributed).
func For(key string, shards int) int {
	if shards <= 1 {
		return 0
	}
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32()) % shards
}
