package linematch

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBloomNoFalseNegatives(t *testing.T) {
	bf := NewBloomFilter(DefaultBloomBits)
	hashes := make([]uint64, 0, 5000)
	for i := 0; i < 5000; i++ {
		h := hashLine(fmt.Sprintf("line-%d", i))
		hashes = append(hashes, h)
		bf.Add(h)
	}
	for _, h := range hashes {
		assert.True(t, bf.Has(h))
	}
}

func TestBloomEmptyHasNothing(t *testing.T) {
	bf := NewBloomFilter(DefaultBloomBits)
	for i := 0; i < 1000; i++ {
		assert.False(t, bf.Has(hashLine(fmt.Sprintf("absent-%d", i))))
	}
}

func TestBloomAllocatesWholeWords(t *testing.T) {
	bf := NewBloomFilter(1)
	bf.Add(12345)
	assert.True(t, bf.Has(12345))
	assert.Equal(t, 8, bf.SizeBytes())

	assert.Equal(t, uint64(DefaultBloomBits), NewBloomFilter(0).Bits())
}
