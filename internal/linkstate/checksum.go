package linkstate

// Fletcher16 computes the Fletcher-16 checksum over data, returning
// the two check bytes (c0, c1) as the spec's link-state records carry
// them: two 8-bit running sums mod 255 (spec.md section 4.4,
// "Checksum for LSDB records").
func Fletcher16(data []byte) (c0, c1 byte) {
	var sum0, sum1 uint32
	for _, b := range data {
		sum0 = (sum0 + uint32(b)) % 255
		sum1 = (sum1 + sum0) % 255
	}
	return byte(sum0), byte(sum1)
}

// Fletcher16Checksum computes the placement bytes that, written into
// the record at checksumOffset (relative to the start of data),
// make a recomputed Fletcher-16 sum over the whole region equal zero.
// This is the "scaling adjustment required to place the checksum at
// the standard offset" spec.md section 4.4 calls for: rather than
// appending the check bytes at the end, the two bytes are placed at an
// arbitrary offset within the checksummed region and must still make
// the whole-region recompute land on zero.
func Fletcher16Checksum(data []byte, checksumOffset int) (byte, byte) {
	length := len(data)
	c0, c1 := Fletcher16(data)

	mu := int(c0) - int(c1)
	if mu < 0 {
		mu += 255
	}

	x := (length-checksumOffset-1)*int(c0) - mu
	x %= 255
	if x <= 0 {
		x += 255
	}

	y := 510 - int(c0) - x
	if y > 255 {
		y -= 255
	}

	return byte(x), byte(y)
}

// VerifyFletcher16 recomputes the Fletcher-16 sum over data (which
// must already contain the stored checksum bytes in place) and
// reports whether it validates to zero. A zero stored checksum
// short-circuits validation in test mode, matching spec.md section
// 4.4: "in test mode, a stored sum of zero short-circuits validation."
func VerifyFletcher16(data []byte, checksumOffset int, testMode bool) bool {
	if testMode && checksumOffset+1 < len(data) &&
		data[checksumOffset] == 0 && data[checksumOffset+1] == 0 {
		return true
	}
	c0, c1 := Fletcher16(data)
	return c0 == 0 && c1 == 0
}
