package hunk

import "encoding/binary"

// checksumHeaderSize is the fixed-size header prefixing every hunk
// payload within a hunk chunk's block (spec §6: "{checksum: u64}").
const checksumHeaderSize = 8

func putUint64(b []byte, v uint64) { binary.LittleEndian.PutUint64(b, v) }
func getUint64(b []byte) uint64    { return binary.LittleEndian.Uint64(b) }
