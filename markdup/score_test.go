package markdup

import (
	"testing"

	"github.com/grailbio/hts/sam"
	"github.com/stretchr/testify/assert"
)

func TestSumOfBaseQualities(t *testing.T) {
	r := NewRecordQual("r", chr1, 100, 0, -1, nil, cigar10M, 10, 30)
	assert.Equal(t, int16(300), computeScore(r, SumOfBaseQualities))

	// Base qualities of 14 and below do not count.
	low := NewRecordQual("low", chr1, 100, 0, -1, nil, cigar10M, 10, 14)
	assert.Equal(t, int16(0), computeScore(low, SumOfBaseQualities))

	// QC-failed reads score below any passing read.
	failed := NewRecordQual("f", chr1, 100, sam.QCFail, -1, nil, cigar10M, 10, 30)
	assert.True(t, computeScore(failed, SumOfBaseQualities) < 0)
}

func TestSumOfBaseQualitiesClamped(t *testing.T) {
	n := 1000
	r := NewRecordQual("r", chr1, 100, 0, -1, nil,
		sam.Cigar{sam.NewCigarOp(sam.CigarMatch, n)}, n, 40)
	// 1000*40 exceeds the clamp.
	assert.Equal(t, int16(32767/2), computeScore(r, SumOfBaseQualities))
}

func TestTotalMappedReferenceLength(t *testing.T) {
	r := NewRecord("r", chr1, 100, 0, -1, nil, cigar10M)
	assert.Equal(t, int16(10), computeScore(r, TotalMappedReferenceLength))

	clipped := NewRecord("c", chr1, 100, 0, -1, nil, cigarSoftClipped)
	assert.Equal(t, int16(6), computeScore(clipped, TotalMappedReferenceLength))
}

func TestParseScoringStrategy(t *testing.T) {
	s, err := ParseScoringStrategy("SUM_OF_BASE_QUALITIES")
	assert.NoError(t, err)
	assert.Equal(t, SumOfBaseQualities, s)
	s, err = ParseScoringStrategy("TOTAL_MAPPED_REFERENCE_LENGTH")
	assert.NoError(t, err)
	assert.Equal(t, TotalMappedReferenceLength, s)
	_, err = ParseScoringStrategy("bogus")
	assert.Error(t, err)
}
