package markdup

import (
	"fmt"

	"github.com/grailbio/base/simd"
	"github.com/grailbio/hts/sam"
)

// ScoringStrategy selects how a read's duplicate score is computed.
// Pair scores are the sum of both mates' scores.
type ScoringStrategy int

const (
	// SumOfBaseQualities scores a read by the sum of its base
	// qualities above 14.  This is the default.
	SumOfBaseQualities ScoringStrategy = iota
	// TotalMappedReferenceLength scores a read by the number of
	// reference bases its alignment covers.
	TotalMappedReferenceLength
)

// ParseScoringStrategy converts a flag value to a ScoringStrategy.
func ParseScoringStrategy(s string) (ScoringStrategy, error) {
	switch s {
	case "SUM_OF_BASE_QUALITIES":
		return SumOfBaseQualities, nil
	case "TOTAL_MAPPED_REFERENCE_LENGTH":
		return TotalMappedReferenceLength, nil
	}
	return 0, fmt.Errorf("unknown duplicate scoring strategy %q", s)
}

func (s ScoringStrategy) String() string {
	switch s {
	case SumOfBaseQualities:
		return "SUM_OF_BASE_QUALITIES"
	case TotalMappedReferenceLength:
		return "TOTAL_MAPPED_REFERENCE_LENGTH"
	}
	return fmt.Sprintf("ScoringStrategy(%d)", int(s))
}

// computeScore returns the duplicate score of a single read.  Scores
// are clamped to half the int16 range so that summing a pair cannot
// overflow, and QC-failed reads are pushed below any passing read.
func computeScore(r *sam.Record, strategy ScoringStrategy) int16 {
	var s int
	switch strategy {
	case SumOfBaseQualities:
		s = simd.Accumulate8Greater(r.Qual, 14)
	case TotalMappedReferenceLength:
		s = r.End() - r.Pos
	}
	s = min(s, 32767/2)
	if isQCFailed(r) {
		s -= 32768 / 2
	}
	return int16(s)
}
