package markdup

import (
	"github.com/grailbio/hts/sam"
)

var (
	rgTag = sam.Tag{'R', 'G'}
	dtTag = sam.Tag{'D', 'T'}
	rrTag = sam.Tag{'R', 'R'}
	dsTag = sam.Tag{'D', 'S'}
)

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func min(x, y int) int {
	if x < y {
		return x
	}
	return y
}

func isReversed(r *sam.Record) bool {
	return r.Flags&sam.Reverse != 0
}

func isQCFailed(r *sam.Record) bool {
	return r.Flags&sam.QCFail != 0
}

func isSecondaryOrSupplementary(r *sam.Record) bool {
	return r.Flags&(sam.Secondary|sam.Supplementary) != 0
}

func hasMappedMate(r *sam.Record) bool {
	return r.Flags&sam.Paired != 0 && r.Flags&sam.MateUnmapped == 0
}

func isClip(t sam.CigarOpType) bool {
	return t == sam.CigarSoftClipped || t == sam.CigarHardClipped
}

// unclippedStart returns the alignment start extended through any
// leading soft or hard clips.
func unclippedStart(r *sam.Record) int {
	pos := r.Pos
	for _, op := range r.Cigar {
		if !isClip(op.Type()) {
			break
		}
		pos -= op.Len()
	}
	return pos
}

// unclippedEnd returns the alignment end extended through any
// trailing soft or hard clips.  Unlike End, which is exclusive, the
// returned coordinate is inclusive: End minus one, plus the clips.
func unclippedEnd(r *sam.Record) int {
	pos := r.End() - 1
	for i := len(r.Cigar) - 1; i >= 0; i-- {
		if !isClip(r.Cigar[i].Type()) {
			break
		}
		pos += r.Cigar[i].Len()
	}
	return pos
}

// unclippedFivePrime returns the unclipped 5' coordinate: the
// unclipped start on the forward strand, the unclipped end on the
// reverse strand.
func unclippedFivePrime(r *sam.Record) int {
	if isReversed(r) {
		return unclippedEnd(r)
	}
	return unclippedStart(r)
}

func getReadGroup(r *sam.Record) (string, bool) {
	aux := r.AuxFields.Get(rgTag)
	if aux == nil {
		return "", false
	}
	return aux.Value().(string), true
}

func getStringAux(r *sam.Record, tag sam.Tag) (string, bool) {
	aux := r.AuxFields.Get(tag)
	if aux == nil {
		return "", false
	}
	s, ok := aux.Value().(string)
	return s, ok
}
