package linematch

// DefaultBloomBits is the default bloom filter width (2^24 bits, 2 MiB of words).
const DefaultBloomBits = 1 << 24

// BloomFilter is a fixed-size bit array probed with a single 64-bit hash.
// A clear bit proves absence; a set bit proves nothing. Callers compute the
// hash once and reuse it for the exact lookup that follows.
type BloomFilter struct {
	words []uint64
	bits  uint64
}

// NewBloomFilter creates a filter with the given number of bits, rounded up
// to a whole number of uint64 words.
func NewBloomFilter(bits uint64) *BloomFilter {
	if bits == 0 {
		bits = DefaultBloomBits
	}
	return &BloomFilter{
		words: make([]uint64, (bits+63)/64),
		bits:  bits,
	}
}

// Add sets the bit addressed by hash.
func (bf *BloomFilter) Add(hash uint64) {
	idx := hash % bf.bits
	bf.words[idx/64] |= 1 << (idx % 64)
}

// Has reports whether the bit addressed by hash is set. False means the
// hashed value was never added.
func (bf *BloomFilter) Has(hash uint64) bool {
	idx := hash % bf.bits
	return bf.words[idx/64]&(1<<(idx%64)) != 0
}

// Bits returns the filter width in bits.
func (bf *BloomFilter) Bits() uint64 { return bf.bits }

// SizeBytes returns the memory footprint of the bit array.
func (bf *BloomFilter) SizeBytes() int { return len(bf.words) * 8 }
