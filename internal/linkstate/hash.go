package linkstate

// FloodingReductionHash implements the closed-form hash function
// spec.md section 4.4 specifies for picking the circular starting
// index into a neighbor's Remote Neighbor List during MANET flooding
// reduction: a function of the originator's 6-byte system identifier
// and the LSP fragment number.
//
// The formula folds two interleaved digit sequences built from the
// system id bytes and the fragment's top 5 bits (fd = fragment >> 3),
// then XORs their shifted-and-folded forms together. It is transcribed
// directly from spec.md section 4.4 and must reproduce the reference
// vectors given there exactly; see hash_test.go.
func FloodingReductionHash(systemID [6]byte, fragment byte) uint32 {
	fd := uint32(fragment >> 3)
	s := [6]uint32{
		uint32(systemID[0]), uint32(systemID[1]), uint32(systemID[2]),
		uint32(systemID[3]), uint32(systemID[4]), uint32(systemID[5]),
	}

	h1 := fold(
		[]uint32{fd, s[0], s[1], s[2], s[3], s[4], s[5]},
		[]uint32{0, 2, 4, 6, 8, 10, 12},
	)
	h2 := fold(
		[]uint32{s[5], s[4], s[3], s[2], s[1], s[0], fd},
		[]uint32{0, 5, 10, 15, 20, 25, 30},
	)

	return (h1 ^ (h1 >> 14)) ^ (h2 ^ (h2 >> 14))
}

// fold implements the shared accumulator step:
// prev = (prev << 4) XOR (offset + value), applied in order over
// values/offsets, starting from prev = 0.
func fold(values, offsets []uint32) uint32 {
	var prev uint32
	for i, v := range values {
		prev = (prev << 4) ^ (offsets[i] + v)
	}
	return prev
}
