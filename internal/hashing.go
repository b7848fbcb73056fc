package internal

import (
	"encoding/binary"

	"github.com/zeebo/xxh3"
	"go.uber.org/zap"
)

// AsXXHash returns the XXHash128 over the concatenated inputs. Fast enough to
// key the template cache on every lookup.
func AsXXHash(inputs ...[]byte) []byte {
	h := xxh3.New()
	for _, input := range inputs {
		_, err := h.Write(input)
		if err != nil {
			zap.S().Errorf("Unable to write to hash: %v", err)
		}
	}

	sum := h.Sum128()
	b := make([]byte, 16)
	binary.LittleEndian.PutUint64(b[0:8], sum.Lo)
	binary.LittleEndian.PutUint64(b[8:16], sum.Hi)
	return b
}
