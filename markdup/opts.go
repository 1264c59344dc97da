package markdup

import (
	"fmt"
	"os"

	"github.com/grailbio/markdup/sortio"
)

// TaggingPolicy controls emission of the DT tag on duplicates.
type TaggingPolicy int

const (
	// DontTag suppresses DT tags entirely.
	DontTag TaggingPolicy = iota
	// OpticalOnly tags only sequencing duplicates (DT:Z:SQ).
	OpticalOnly
	// All tags sequencing duplicates DT:Z:SQ and the remaining
	// duplicates DT:Z:LB.
	All
)

// ParseTaggingPolicy converts a flag value to a TaggingPolicy.
func ParseTaggingPolicy(s string) (TaggingPolicy, error) {
	switch s {
	case "DontTag":
		return DontTag, nil
	case "OpticalOnly":
		return OpticalOnly, nil
	case "All":
		return All, nil
	}
	return 0, fmt.Errorf("unknown tagging policy %q", s)
}

// Opts for mark-duplicates.
type Opts struct {
	// Commandline options.
	InputPath   string
	OutputPath  string
	MetricsFile string
	TempDirs    []string

	// MaxMemory is the heap ceiling, in bytes, from which the sorter
	// budgets are derived.  Computed once at the start of the first
	// pass and treated as immutable for the run.
	MaxMemory int64

	// SortingCollectionSizeRatio is the fraction of MaxMemory granted
	// to each signature sorter.
	SortingCollectionSizeRatio float64

	// MaxFileHandles caps the number of spill files the unmatched
	// mate map keeps open at once.  Zero keeps the map fully in
	// memory.
	MaxFileHandles int

	// Barcode tag names.  Presence of any enables barcode-aware
	// duplicate comparison.
	BarcodeTag        string
	ReadOneBarcodeTag string
	ReadTwoBarcodeTag string

	// TagRepresentativeRead enables RR and DS tagging, and the
	// representative-read sorter that backs them.
	TagRepresentativeRead bool

	RemoveDuplicates           bool
	RemoveSequencingDuplicates bool
	TaggingPolicy              TaggingPolicy
	ScoringStrategy            ScoringStrategy

	// ReadNameRegex extracts tile, x, and y from read names for
	// optical duplicate classification.  The value "default" selects
	// the built-in 5/7/8-field Illumina layout.  Empty disables
	// optical classification.
	ReadNameRegex string

	// OpticalDistance is the pixel threshold for optical duplicates.
	OpticalDistance int

	// ClusterFinder overrides the optical clusterer.  Nil selects the
	// tile-based finder when ReadNameRegex is set.
	ClusterFinder OpticalClusterFinder
}

// DefaultOpts are the option defaults applied by the command line.
func DefaultOpts() Opts {
	return Opts{
		MaxMemory:                  2 << 30,
		SortingCollectionSizeRatio: 0.25,
		MaxFileHandles:             8000,
		TaggingPolicy:              DontTag,
		ScoringStrategy:            SumOfBaseQualities,
		ReadNameRegex:              "default",
		OpticalDistance:            100,
	}
}

func (o *Opts) useBarcodes() bool {
	return o.BarcodeTag != "" || o.ReadOneBarcodeTag != "" || o.ReadTwoBarcodeTag != ""
}

// indexOpticalDuplicates reports whether the optical index sorter is
// needed: either optical duplicates are removed, or DT tags are
// emitted.
func (o *Opts) indexOpticalDuplicates() bool {
	return o.RemoveSequencingDuplicates || o.TaggingPolicy != DontTag
}

func validate(opts *Opts) error {
	if opts.InputPath == "" {
		return fmt.Errorf("an input file must be specified with --input")
	}
	if opts.MaxMemory <= 0 {
		return fmt.Errorf("max-memory must be positive")
	}
	if opts.SortingCollectionSizeRatio <= 0 || opts.SortingCollectionSizeRatio > 1 {
		return fmt.Errorf("sorting-collection-size-ratio must be in (0, 1]")
	}
	if opts.MaxFileHandles < 0 {
		return fmt.Errorf("max-file-handles-for-read-ends-map must be non-negative")
	}
	if opts.OpticalDistance < 0 {
		return fmt.Errorf("optical-duplicate-pixel-distance must be non-negative")
	}
	for _, dir := range opts.TempDirs {
		info, err := os.Stat(dir)
		if err != nil {
			return fmt.Errorf("temp dir %s: %v", dir, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("temp dir %s is not a directory", dir)
		}
	}
	return nil
}

// budgets holds the per-sorter in-memory record counts, computed once
// from the heap ceiling at the start of the first pass.
type budgets struct {
	signatureRecords int
	indexSlots       int
}

func computeBudgets(opts *Opts) budgets {
	b := budgets{}
	b.signatureRecords = int(float64(opts.MaxMemory) * opts.SortingCollectionSizeRatio / readEndsShallowSize)
	if b.signatureRecords < 1 {
		b.signatureRecords = 1
	}

	indexBudget := opts.MaxMemory / 4
	b.indexSlots = int(indexBudget / sortio.LongsSizeOf)
	if opts.indexOpticalDuplicates() {
		b.indexSlots /= 2
	}
	if opts.TagRepresentativeRead {
		// Two 8-byte indices plus one fixed-length representative
		// record per duplicate entry.
		b.indexSlots = int(indexBudget / 356)
	}
	if b.indexSlots < 1 {
		b.indexSlots = 1
	}
	return b
}
