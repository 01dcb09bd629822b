package redgloom

import (
	"fmt"
	"math"
)

const (
	// ln2 is the natural logarithm of 2.
	ln2 = 0.6931471805599453
	// ln2Squared is ln(2)^2.
	ln2Squared = 0.4804530139182014
)

// Params holds the sizing of a single filter generation.
type Params struct {
	Size      uint64  // Expected number of items (n)
	ErrorRate float64 // Target false positive rate (p)
	Bits      uint64  // Bit array length (m)
	Hashes    uint32  // Number of bit positions per item (k)
}

// OptimalBits returns the bit array length for n items at false positive
// rate p:
//
//	m = round(-n * ln(p) / ln(2)^2)
func OptimalBits(n uint64, p float64) (uint64, error) {
	if n == 0 {
		return 0, fmt.Errorf("%w: size must be positive", ErrInvalidSize)
	}
	if !(p > 0 && p < 1) {
		return 0, fmt.Errorf("%w: got %v, want 0 < p < 1", ErrInvalidErrorRate, p)
	}

	m := uint64(math.Round(-float64(n) * math.Log(p) / ln2Squared))
	return max(m, 1), nil
}

// OptimalHashes returns the number of hash functions for n items spread over
// m bits:
//
//	k = round(ln(2) * m / n)
//
// The result is never less than 1.
func OptimalHashes(n, m uint64) uint32 {
	if n == 0 {
		n = 1
	}
	k := uint32(math.Round(ln2 * float64(m) / float64(n)))
	return max(k, 1)
}

// OptimalParams calculates both the bit array length and the hash count.
func OptimalParams(n uint64, p float64) (Params, error) {
	m, err := OptimalBits(n, p)
	if err != nil {
		return Params{}, err
	}
	return Params{
		Size:      n,
		ErrorRate: p,
		Bits:      m,
		Hashes:    OptimalHashes(n, m),
	}, nil
}

// EstimateFalsePositiveRate estimates the false positive rate for given parameters.
// Formula: (1 - e^(-kn/m))^k
func EstimateFalsePositiveRate(m uint64, k uint32, itemsAdded uint64) float64 {
	if m == 0 || itemsAdded == 0 {
		return 0
	}

	kf := float64(k)
	return math.Pow(1-math.Exp(-kf*float64(itemsAdded)/float64(m)), kf)
}
