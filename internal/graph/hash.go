package graph

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"strconv"
)

// contentHash computes a deterministic, collision-acceptable hash of
// type+content for node dedup. It is not security sensitive; it exists
// only so addNode can find an existing (type, content) pair in O(1).
func contentHash(t NodeType, content any) string {
	s := stableStringify(content)
	h := fnv.New32a()
	_, _ = h.Write([]byte(string(t) + ":" + s))
	return strconv.FormatUint(uint64(h.Sum32()), 36)
}

// stableStringify renders content deterministically. Strings pass
// through unchanged; everything else is JSON-encoded, which in Go's
// encoding/json sorts map keys, giving a stable representation for
// structured content without a bespoke canonicalizer.
func stableStringify(content any) string {
	if s, ok := content.(string); ok {
		return s
	}
	b, err := json.Marshal(content)
	if err != nil {
		return fmt.Sprintf("%v", content)
	}
	return string(b)
}
