package markdup

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// OpticalClusterFinder identifies sequencing (optical) duplicates
// within one chunk of equivalent pair signatures.  best is the index
// of the chunk's designated non-duplicate.  The returned slice is
// aligned with chunk; true marks an optical duplicate.  The finder is
// pluggable so that instrument-specific clustering can be swapped in.
type OpticalClusterFinder interface {
	FindOpticalClusters(chunk []*ReadEnds, best int) ([]bool, error)
}

const (
	// Illumina read names come in 5, 7, and 8 column varieties.  For
	// 5 and 7 field names the last three fields are tile, x, and y.
	// For 8 field names the last four are tile, x, y, and UMI.
	illuminaName5Fields          = 5
	illuminaName5FieldsTileField = 2
	illuminaName7Fields          = 7
	illuminaName7FieldsTileField = 4
	illuminaName8Fields          = 8
	illuminaName8FieldsTileField = 4
)

// physicalLocation is a read's position on the flowcell.
type physicalLocation struct {
	tile int
	x    int
	y    int
}

// locationParser extracts a physical location from a read name.
type locationParser interface {
	parse(name string) (physicalLocation, bool)
}

// illuminaLocationParser understands the positional 5, 7, and 8
// column Illumina read name layouts.
type illuminaLocationParser struct{}

func (illuminaLocationParser) parse(name string) (physicalLocation, bool) {
	fields := strings.Split(name, ":")
	var tileIdx int
	switch len(fields) {
	case illuminaName5Fields:
		tileIdx = illuminaName5FieldsTileField
	case illuminaName7Fields:
		tileIdx = illuminaName7FieldsTileField
	case illuminaName8Fields:
		tileIdx = illuminaName8FieldsTileField
	default:
		return physicalLocation{}, false
	}
	var (
		loc physicalLocation
		err error
	)
	if loc.tile, err = strconv.Atoi(fields[tileIdx]); err != nil {
		return physicalLocation{}, false
	}
	if loc.x, err = strconv.Atoi(fields[tileIdx+1]); err != nil {
		return physicalLocation{}, false
	}
	if loc.y, err = strconv.Atoi(fields[tileIdx+2]); err != nil {
		return physicalLocation{}, false
	}
	return loc, true
}

// regexLocationParser extracts tile, x, and y from the first three
// capture groups of a user supplied pattern.
type regexLocationParser struct {
	re *regexp.Regexp
}

func newRegexLocationParser(pattern string) (*regexLocationParser, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid read name regex %q: %v", pattern, err)
	}
	if re.NumSubexp() < 3 {
		return nil, fmt.Errorf("read name regex %q must capture tile, x, and y", pattern)
	}
	return &regexLocationParser{re: re}, nil
}

func (p *regexLocationParser) parse(name string) (physicalLocation, bool) {
	groups := p.re.FindStringSubmatch(name)
	if groups == nil {
		return physicalLocation{}, false
	}
	var (
		loc physicalLocation
		err error
	)
	if loc.tile, err = strconv.Atoi(groups[1]); err != nil {
		return physicalLocation{}, false
	}
	if loc.x, err = strconv.Atoi(groups[2]); err != nil {
		return physicalLocation{}, false
	}
	if loc.y, err = strconv.Atoi(groups[3]); err != nil {
		return physicalLocation{}, false
	}
	return loc, true
}

// newLocationParser maps the ReadNameRegex option to a parser.  An
// empty value disables optical classification.
func newLocationParser(readNameRegex string) (locationParser, error) {
	switch readNameRegex {
	case "":
		return nil, nil
	case "default":
		return illuminaLocationParser{}, nil
	}
	return newRegexLocationParser(readNameRegex)
}

// TileClusterFinder clusters optical duplicates within a flowcell
// tile.  Two reads can be optical duplicates only when their read
// group, tile, and pair orientation are identical and their x and y
// positions both fall within Distance pixels.
type TileClusterFinder struct {
	Distance int
}

type tileBatchKey struct {
	readGroup   int16
	tile        int16
	orientation Orientation
}

// FindOpticalClusters implements OpticalClusterFinder.
func (t *TileClusterFinder) FindOpticalClusters(chunk []*ReadEnds, best int) ([]bool, error) {
	flags := make([]bool, len(chunk))

	batches := make(map[tileBatchKey][]int)
	var bestKey tileBatchKey
	for i, e := range chunk {
		if e.Tile < 0 {
			continue
		}
		key := tileBatchKey{readGroup: e.ReadGroup, tile: e.Tile, orientation: e.OrientationForOptical}
		if i == best {
			bestKey = key
		}
		batches[key] = append(batches[key], i)
	}

	for key, batch := range batches {
		sort.Slice(batch, func(a, b int) bool {
			return chunk[batch[a]].Read1IndexInFile < chunk[batch[b]].Read1IndexInFile
		})

		// Compare everything against the chunk's primary first, then
		// close over the remaining pairs transitively.
		if key == bestKey {
			for _, i := range batch {
				if i == best {
					continue
				}
				if t.withinDistance(chunk[best], chunk[i]) {
					flags[i] = true
				}
			}
		}
		for a := 0; a < len(batch); a++ {
			i := batch[a]
			if i == best {
				continue
			}
			for b := a + 1; b < len(batch); b++ {
				j := batch[b]
				if j == best {
					continue
				}
				if flags[i] && flags[j] {
					continue
				}
				if t.withinDistance(chunk[i], chunk[j]) {
					if flags[i] || flags[j] {
						flags[i] = true
						flags[j] = true
					} else {
						flags[j] = true
					}
				}
			}
		}
	}
	return flags, nil
}

func (t *TileClusterFinder) withinDistance(a, b *ReadEnds) bool {
	return abs(int(a.X)-int(b.X)) <= t.Distance && abs(int(a.Y)-int(b.Y)) <= t.Distance
}
