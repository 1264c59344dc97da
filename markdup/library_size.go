package markdup

import (
	"errors"
	"fmt"
	"math"
)

// estimateLibrarySize estimates the number of distinct molecules in a
// library from the number of read pairs observed and the number of
// unique pairs among them, using the Lander-Waterman equation
//
//	C/X = 1 - exp(-N/X)
//
// where X is the number of distinct molecules, N the number of read
// pairs, and C the number of distinct fragments observed.
func estimateLibrarySize(readPairs, uniqueReadPairs int64) (int64, error) {
	f := func(x, c, n float64) float64 {
		return c/x + math.Expm1(-n/x)
	}

	if readPairs <= 0 || readPairs-uniqueReadPairs <= 0 {
		return 0, errors.New("no duplicates")
	}
	n := float64(readPairs)
	c := float64(uniqueReadPairs)
	m := 1.0
	M := 100.0

	if c >= n || f(m*c, c, n) < 0 {
		return 0, fmt.Errorf("invalid values for pairs and unique pairs: %v, %v", readPairs, uniqueReadPairs)
	}

	// If c and n are large and almost equal, M can reach +Inf before
	// f() turns negative; bail out rather than looping forever.
	for f(M*c, c, n) >= 0 {
		M *= 10.0
		if math.IsInf(M, 1) {
			return 0, fmt.Errorf("could not bracket the root for arguments (%v, %v)",
				readPairs, uniqueReadPairs)
		}
	}

	for i := 0; i < 40; i++ {
		r := (m + M) / 2.0
		u := f(r*c, c, n)
		if u == 0 {
			break
		} else if u > 0 {
			m = r
		} else {
			M = r
		}
	}
	return int64(c * (m + M) / 2.0), nil
}
