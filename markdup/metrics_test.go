package markdup

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetricsFinalize(t *testing.T) {
	mc := newMetricsCollection()
	m := mc.Get("lib1")
	m.ReadPairsExamined = 8 // per read
	m.ReadPairDuplicates = 4
	m.ReadPairOpticalDuplicates = 1 // per pair
	m.UnpairedReadsExamined = 2
	m.UnpairedReadDuplicates = 1

	mc.Finalize()
	assert.Equal(t, int64(4), m.ReadPairsExamined)
	assert.Equal(t, int64(2), m.ReadPairDuplicates)
	assert.Equal(t, int64(1), m.ReadPairOpticalDuplicates)
	// (1 + 2*2) / (2 + 2*4)
	assert.InDelta(t, 0.5, m.PercentDuplication, 1e-9)

	// Finalize is idempotent.
	mc.Finalize()
	assert.Equal(t, int64(4), m.ReadPairsExamined)
}

func TestMetricsAdd(t *testing.T) {
	a := &Metrics{ReadPairsExamined: 2, UnmappedReads: 1}
	b := &Metrics{ReadPairsExamined: 4, SecondaryOrSupplementary: 3}
	a.Add(b)
	assert.Equal(t, int64(6), a.ReadPairsExamined)
	assert.Equal(t, int64(1), a.UnmappedReads)
	assert.Equal(t, int64(3), a.SecondaryOrSupplementary)
}
