package tablereader

import (
	"fmt"
	"math"

	"github.com/cespare/xxhash/v2"

	"datanode/internal/chunkid"
)

// Sampling restricts a streaming range scan's reachable block set to a
// deterministic pseudo-random subset, seeded from (chunkId,
// samplingSeed) so the same chunk and seed always sample the same
// blocks (spec §4.4.3: "this must be deterministic per chunk").
type Sampling struct {
	ChunkID chunkid.ID
	Seed    int64
	Rate    float64 // 0 < Rate <= 1
}

// IncludesBlock applies a Bernoulli trial to blockIndex, deterministic
// given (s.ChunkID, s.Seed, blockIndex). Exported so callers that only
// need block-level sampling decisions (cmd/datanode's getTableSamples
// wiring, which has no row-key codec to scan through) can reuse it
// without going through Scan.
func (s Sampling) IncludesBlock(blockIndex int) bool {
	h := xxhash.Sum64String(fmt.Sprintf("%s:%d:%d", s.ChunkID.String(), s.Seed, blockIndex))
	frac := float64(h) / float64(math.MaxUint64)
	return frac < s.Rate
}
