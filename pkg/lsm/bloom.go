package lsm

import (
	"encoding/binary"
	"hash/fnv"
	"math"
)

// BloomFilter is a probabilistic membership data structure: false
// positives are possible, false negatives are not. It has no removal
// primitive — a MemTable resets its filter by constructing a fresh one
// whenever the MemTable itself is reset.
type BloomFilter struct {
	bits      []byte // bit array
	size      int    // size in bits (m)
	numHashes int    // number of hash probes (k)
}

// NewBloomFilter sizes a bloom filter for n expected elements and a
// target false-positive rate p, per the standard formulas:
//
//	m = ceil(-n * ln(p) / ln(2)^2)
//	k = ceil((m/n) * ln(2))
func NewBloomFilter(n int, p float64) *BloomFilter {
	if n <= 0 {
		n = 1
	}
	if p <= 0 || p >= 1 {
		p = 0.01
	}

	ln2 := math.Ln2
	m := int(math.Ceil(-float64(n) * math.Log(p) / (ln2 * ln2)))
	if m < 8 {
		m = 8
	}
	k := int(math.Ceil((float64(m) / float64(n)) * ln2))
	if k < 1 {
		k = 1
	}

	return &BloomFilter{
		bits:      make([]byte, (m+7)/8),
		size:      m,
		numHashes: k,
	}
}

// Insert records key as present.
func (bf *BloomFilter) Insert(key []byte) {
	h1, h2 := bf.hashPair(key)
	for i := 0; i < bf.numHashes; i++ {
		bitIndex := (h1 + uint64(i)*h2) % uint64(bf.size)
		bf.bits[bitIndex/8] |= 1 << (bitIndex % 8)
	}
}

// MayContain returns false only if key is definitely absent; it never
// returns false for a key that was previously inserted.
func (bf *BloomFilter) MayContain(key []byte) bool {
	h1, h2 := bf.hashPair(key)
	for i := 0; i < bf.numHashes; i++ {
		bitIndex := (h1 + uint64(i)*h2) % uint64(bf.size)
		if bf.bits[bitIndex/8]&(1<<(bitIndex%8)) == 0 {
			return false
		}
	}
	return true
}

// hashPair produces two independent 64-bit hashes of key used to derive
// the k probe positions via double hashing: h_i = h1 + i*h2.
func (bf *BloomFilter) hashPair(key []byte) (uint64, uint64) {
	h := fnv.New64a()
	h.Write(key)
	h1 := h.Sum64()

	h.Reset()
	h.Write(key)
	h.Write([]byte{0xff})
	h2 := h.Sum64()

	return h1, h2
}

// Marshal serializes the bloom filter as size(4) | numHashes(4) | bits.
func (bf *BloomFilter) Marshal() []byte {
	buf := make([]byte, 8+len(bf.bits))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(bf.size))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(bf.numHashes))
	copy(buf[8:], bf.bits)
	return buf
}

// UnmarshalBloomFilter deserializes a bloom filter produced by Marshal.
func UnmarshalBloomFilter(data []byte) (*BloomFilter, error) {
	if len(data) < 8 {
		return nil, ErrInvalidBloomFilter
	}

	size := int(binary.LittleEndian.Uint32(data[0:4]))
	numHashes := int(binary.LittleEndian.Uint32(data[4:8]))
	bits := make([]byte, len(data)-8)
	copy(bits, data[8:])

	return &BloomFilter{
		bits:      bits,
		size:      size,
		numHashes: numHashes,
	}, nil
}

// Stats reports the filter's configuration and estimated fill/false
// positive rate. The engine does not call it; Engine.Stats reports only
// the metrics Collector's counters.
func (bf *BloomFilter) Stats() map[string]interface{} {
	setBits := 0
	for _, b := range bf.bits {
		for i := 0; i < 8; i++ {
			if b&(1<<i) != 0 {
				setBits++
			}
		}
	}

	fillRatio := float64(setBits) / float64(bf.size)

	fpr := 1.0
	for i := 0; i < bf.numHashes; i++ {
		fpr *= fillRatio
	}

	return map[string]interface{}{
		"size":          bf.size,
		"num_hashes":    bf.numHashes,
		"set_bits":      setBits,
		"fill_ratio":    fillRatio,
		"estimated_fpr": fpr,
		"bytes":         len(bf.bits),
	}
}
