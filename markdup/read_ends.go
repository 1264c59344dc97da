package markdup

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Orientation encodes the strand layout of a fragment or a pair.
type Orientation byte

const (
	// F and R are single-fragment orientations.
	F Orientation = 0
	R Orientation = 1
	// FF..RR are pair orientations for (read1, read2) strands.
	FF Orientation = 2
	FR Orientation = 3
	RF Orientation = 4
	RR Orientation = 5
)

func (o Orientation) String() string {
	switch o {
	case F:
		return "F"
	case R:
		return "R"
	case FF:
		return "FF"
	case FR:
		return "FR"
	case RF:
		return "RF"
	case RR:
		return "RR"
	}
	return fmt.Sprintf("Orientation(%d)", byte(o))
}

func orientationSingle(reversed bool) Orientation {
	if reversed {
		return R
	}
	return F
}

// orientationPair maps the ordered strand pair onto the FF..RR range.
func orientationPair(read1Reversed, read2Reversed bool) Orientation {
	o := FF
	if read1Reversed {
		o += 2
	}
	if read2Reversed {
		o++
	}
	return o
}

const noLocation = -1

// ReadEnds summarizes the 5' ends of one read or one completed pair.
// It is the unit pushed through the pair and fragment sorters during
// the first pass.  One shape serves the plain, barcoded, and
// representative-tagging configurations; the optional fields carry
// sentinels when unused.
type ReadEnds struct {
	LibraryID int16
	Score     int16

	Read1RefIndex    int32
	Read1Coordinate  int32
	Orientation      Orientation
	Read2RefIndex    int32
	Read2Coordinate  int32
	Read1IndexInFile uint64
	Read2IndexInFile uint64

	// Optical location, or sentinels when the read name carries no
	// flowcell coordinates.
	ReadGroup int16
	Tile      int16
	X, Y      int32

	// OrientationForOptical fixes the first-of-pair strand in the
	// leading position regardless of which mate maps first.
	OrientationForOptical Orientation

	// Barcode hashes; zero when barcodes are not in use.
	Barcode        int32
	ReadOneBarcode int32
	ReadTwoBarcode int32

	// FirstEncounteredReadName backs the RR tag.  It is set from the
	// mate that completes the pair, matching the behavior this tool
	// replicates (see the representative tagging tests).
	FirstEncounteredReadName string
}

// IsPaired reports whether this end belongs to a read whose mate is
// mapped.  Fragment ends from such reads carry the mate reference so
// the fragment sweep can apply the pair-beats-fragment rule.
func (e *ReadEnds) IsPaired() bool { return e.Read2RefIndex != -1 }

func (e *ReadEnds) String() string {
	return fmt.Sprintf("(lib %d (%d,%d) %s (%d,%d) idx %d,%d score %d)",
		e.LibraryID, e.Read1RefIndex, e.Read1Coordinate, e.Orientation,
		e.Read2RefIndex, e.Read2Coordinate, e.Read1IndexInFile, e.Read2IndexInFile, e.Score)
}

func compareInt32(x, y int32) int {
	if x < y {
		return -1
	}
	if x > y {
		return 1
	}
	return 0
}

func compareUint64(x, y uint64) int {
	if x < y {
		return -1
	}
	if x > y {
		return 1
	}
	return 0
}

// compareReadEnds orders ends by library, optional barcodes, read1
// position, orientation, read2 position, then file indices.  The file
// index tie-breaks make the sort stable on first occurrence.
func compareReadEnds(useBarcodes bool) func(lhs, rhs *ReadEnds) int {
	return func(lhs, rhs *ReadEnds) int {
		if d := int(lhs.LibraryID) - int(rhs.LibraryID); d != 0 {
			return d
		}
		if useBarcodes {
			if d := compareInt32(lhs.Barcode, rhs.Barcode); d != 0 {
				return d
			}
			if d := compareInt32(lhs.ReadOneBarcode, rhs.ReadOneBarcode); d != 0 {
				return d
			}
			if d := compareInt32(lhs.ReadTwoBarcode, rhs.ReadTwoBarcode); d != 0 {
				return d
			}
		}
		if d := compareInt32(lhs.Read1RefIndex, rhs.Read1RefIndex); d != 0 {
			return d
		}
		if d := compareInt32(lhs.Read1Coordinate, rhs.Read1Coordinate); d != 0 {
			return d
		}
		if d := int(lhs.Orientation) - int(rhs.Orientation); d != 0 {
			return d
		}
		if d := compareInt32(lhs.Read2RefIndex, rhs.Read2RefIndex); d != 0 {
			return d
		}
		if d := compareInt32(lhs.Read2Coordinate, rhs.Read2Coordinate); d != 0 {
			return d
		}
		if d := compareUint64(lhs.Read1IndexInFile, rhs.Read1IndexInFile); d != 0 {
			return d
		}
		return compareUint64(lhs.Read2IndexInFile, rhs.Read2IndexInFile)
	}
}

// areComparableForDuplicates reports whether rhs belongs to the chunk
// started by lhs.  The pair sweep passes compareRead2; the fragment
// sweep does not.
func areComparableForDuplicates(lhs, rhs *ReadEnds, compareRead2, useBarcodes bool) bool {
	ok := lhs.LibraryID == rhs.LibraryID
	if ok && useBarcodes {
		ok = lhs.Barcode == rhs.Barcode &&
			lhs.ReadOneBarcode == rhs.ReadOneBarcode &&
			lhs.ReadTwoBarcode == rhs.ReadTwoBarcode
	}
	if ok {
		ok = lhs.Read1RefIndex == rhs.Read1RefIndex &&
			lhs.Read1Coordinate == rhs.Read1Coordinate &&
			lhs.Orientation == rhs.Orientation
	}
	if ok && compareRead2 {
		ok = lhs.Read2RefIndex == rhs.Read2RefIndex &&
			lhs.Read2Coordinate == rhs.Read2Coordinate
	}
	return ok
}

// readEndsWire is the fixed-width portion of the spill format.
type readEndsWire struct {
	LibraryID             int16
	Score                 int16
	Read1RefIndex         int32
	Read1Coordinate       int32
	Orientation           byte
	Read2RefIndex         int32
	Read2Coordinate       int32
	Read1IndexInFile      uint64
	Read2IndexInFile      uint64
	ReadGroup             int16
	Tile                  int16
	X                     int32
	Y                     int32
	OrientationForOptical byte
	Barcode               int32
	ReadOneBarcode        int32
	ReadTwoBarcode        int32
}

// readEndsCodec serializes ReadEnds for the sorters and the unmatched
// mate map.  The read name is carried only when representative-read
// tagging is enabled; the shape is fixed for the lifetime of a run.
type readEndsCodec struct {
	withName bool
}

func (c readEndsCodec) Encode(w io.Writer, e *ReadEnds) error {
	wire := readEndsWire{
		LibraryID:             e.LibraryID,
		Score:                 e.Score,
		Read1RefIndex:         e.Read1RefIndex,
		Read1Coordinate:       e.Read1Coordinate,
		Orientation:           byte(e.Orientation),
		Read2RefIndex:         e.Read2RefIndex,
		Read2Coordinate:       e.Read2Coordinate,
		Read1IndexInFile:      e.Read1IndexInFile,
		Read2IndexInFile:      e.Read2IndexInFile,
		ReadGroup:             e.ReadGroup,
		Tile:                  e.Tile,
		X:                     e.X,
		Y:                     e.Y,
		OrientationForOptical: byte(e.OrientationForOptical),
		Barcode:               e.Barcode,
		ReadOneBarcode:        e.ReadOneBarcode,
		ReadTwoBarcode:        e.ReadTwoBarcode,
	}
	if err := binary.Write(w, binary.LittleEndian, &wire); err != nil {
		return err
	}
	if !c.withName {
		return nil
	}
	var lbuf [4]byte
	binary.LittleEndian.PutUint32(lbuf[:], uint32(len(e.FirstEncounteredReadName)))
	if _, err := w.Write(lbuf[:]); err != nil {
		return err
	}
	_, err := io.WriteString(w, e.FirstEncounteredReadName)
	return err
}

func (c readEndsCodec) Decode(r io.Reader) (*ReadEnds, error) {
	var wire readEndsWire
	if err := binary.Read(r, binary.LittleEndian, &wire); err != nil {
		return nil, err
	}
	e := &ReadEnds{
		LibraryID:             wire.LibraryID,
		Score:                 wire.Score,
		Read1RefIndex:         wire.Read1RefIndex,
		Read1Coordinate:       wire.Read1Coordinate,
		Orientation:           Orientation(wire.Orientation),
		Read2RefIndex:         wire.Read2RefIndex,
		Read2Coordinate:       wire.Read2Coordinate,
		Read1IndexInFile:      wire.Read1IndexInFile,
		Read2IndexInFile:      wire.Read2IndexInFile,
		ReadGroup:             wire.ReadGroup,
		Tile:                  wire.Tile,
		X:                     wire.X,
		Y:                     wire.Y,
		OrientationForOptical: Orientation(wire.OrientationForOptical),
		Barcode:               wire.Barcode,
		ReadOneBarcode:        wire.ReadOneBarcode,
		ReadTwoBarcode:        wire.ReadTwoBarcode,
	}
	if !c.withName {
		return e, nil
	}
	var lbuf [4]byte
	if _, err := io.ReadFull(r, lbuf[:]); err != nil {
		return nil, err
	}
	name := make([]byte, binary.LittleEndian.Uint32(lbuf[:]))
	if _, err := io.ReadFull(r, name); err != nil {
		return nil, err
	}
	e.FirstEncounteredReadName = string(name)
	return e, nil
}

// readEndsShallowSize approximates the in-memory footprint of one
// ReadEnds plus slice slot, used to derive the sorter budgets.
const readEndsShallowSize = 144
