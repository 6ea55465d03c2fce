// Package parts assembles scanned overview records into parts and
// segments and persists them with a two-phase bulk load.
package parts

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// GenerateHash derives the dedup key of a logical part. The key is
// approximate: distinct postings sharing subject, poster, group and
// segment count collide on purpose.
func GenerateHash(subject, postedBy, groupName string, totalSegments int) int64 {
	d := xxhash.New()
	_, _ = d.WriteString(subject)
	_, _ = d.Write([]byte{0})
	_, _ = d.WriteString(postedBy)
	_, _ = d.Write([]byte{0})
	_, _ = d.WriteString(groupName)
	_, _ = d.Write([]byte{0})
	var total [4]byte
	binary.LittleEndian.PutUint32(total[:], uint32(totalSegments))
	_, _ = d.Write(total[:])
	return int64(d.Sum64())
}
