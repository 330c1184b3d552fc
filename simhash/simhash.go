// Package simhash fingerprints report tables so that two renders of the same
// content can be recognised cheaply.
package simhash

import (
	"hash/fnv"
	"math/bits"
)

// Fingerprint computes a 64-bit SimHash over tokens, using FNV-64a per token
// with bit vector accumulation. No tokens yields 0.
func Fingerprint(tokens []string) uint64 {
	if len(tokens) == 0 {
		return 0
	}

	var vector [64]int
	for _, tok := range tokens {
		h := fnv.New64a()
		h.Write([]byte(tok))
		hash := h.Sum64()

		for i := range 64 {
			if hash&(1<<uint(i)) != 0 {
				vector[i]++
			} else {
				vector[i]--
			}
		}
	}

	var fingerprint uint64
	for i := range 64 {
		if vector[i] > 0 {
			fingerprint |= 1 << uint(i)
		}
	}
	return fingerprint
}

// Distance returns the Hamming distance between two fingerprints.
func Distance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// Similar reports whether the distance between a and b is at most threshold.
func Similar(a, b uint64, threshold int) bool {
	return Distance(a, b) <= threshold
}
