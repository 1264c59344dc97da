package markdup

import (
	"context"
	"fmt"
	"sort"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
)

// Metrics holds the per-library duplication counters.
type Metrics struct {
	// UnpairedReadsExamined is the number of mapped reads examined
	// which did not have a mapped mate, either because the read is
	// unpaired or the mate is unmapped.
	UnpairedReadsExamined int64

	// ReadPairsExamined is the number of mapped primary,
	// non-supplementary reads seen in pairs.  Counted per read during
	// the output pass and halved at finalization.
	ReadPairsExamined int64

	// SecondaryOrSupplementary is the number of secondary or
	// supplementary reads examined.
	SecondaryOrSupplementary int64

	// UnmappedReads is the number of unmapped reads examined.
	UnmappedReads int64

	// UnpairedReadDuplicates is the number of fragments marked as
	// duplicates.
	UnpairedReadDuplicates int64

	// ReadPairDuplicates is the number of read pairs marked as
	// duplicates.  Counted per read and halved at finalization.
	ReadPairDuplicates int64

	// ReadPairOpticalDuplicates is the number of duplicate read pairs
	// caused by optical duplication.  Counted per pair during the
	// detection pass.
	ReadPairOpticalDuplicates int64

	// PercentDuplication and EstimatedLibrarySize are derived at
	// finalization.
	PercentDuplication   float64
	EstimatedLibrarySize int64

	finalized bool
}

// Add accumulates other into m.
func (m *Metrics) Add(other *Metrics) {
	m.UnpairedReadsExamined += other.UnpairedReadsExamined
	m.ReadPairsExamined += other.ReadPairsExamined
	m.SecondaryOrSupplementary += other.SecondaryOrSupplementary
	m.UnmappedReads += other.UnmappedReads
	m.UnpairedReadDuplicates += other.UnpairedReadDuplicates
	m.ReadPairDuplicates += other.ReadPairDuplicates
	m.ReadPairOpticalDuplicates += other.ReadPairOpticalDuplicates
}

// finalize converts the per-read pair counts to per-pair counts and
// computes the derived fields.
func (m *Metrics) finalize() {
	if m.finalized {
		return
	}
	m.finalized = true
	m.ReadPairsExamined /= 2
	m.ReadPairDuplicates /= 2

	examined := m.UnpairedReadsExamined + m.ReadPairsExamined*2
	if examined > 0 {
		m.PercentDuplication =
			float64(m.UnpairedReadDuplicates+m.ReadPairDuplicates*2) / float64(examined)
	}
	size, err := estimateLibrarySize(
		m.ReadPairsExamined-m.ReadPairOpticalDuplicates,
		m.ReadPairsExamined-m.ReadPairDuplicates)
	if err == nil {
		m.EstimatedLibrarySize = size
	}
}

func (m *Metrics) String() string {
	return fmt.Sprintf("%d\t%d\t%d\t%d\t%d\t%d\t%d\t%0.6f\t%d",
		m.UnpairedReadsExamined, m.ReadPairsExamined, m.SecondaryOrSupplementary,
		m.UnmappedReads, m.UnpairedReadDuplicates, m.ReadPairDuplicates,
		m.ReadPairOpticalDuplicates, m.PercentDuplication, m.EstimatedLibrarySize)
}

// MetricsCollection contains per-library metrics.
type MetricsCollection struct {
	LibraryMetrics map[string]*Metrics
}

func newMetricsCollection() *MetricsCollection {
	return &MetricsCollection{LibraryMetrics: make(map[string]*Metrics)}
}

// Get returns the Metrics for library, creating it if necessary.
func (mc *MetricsCollection) Get(library string) *Metrics {
	m, found := mc.LibraryMetrics[library]
	if found {
		return m
	}
	m = &Metrics{}
	mc.LibraryMetrics[library] = m
	return m
}

// Finalize converts all per-read pair counts and computes derived
// fields.  Idempotent.
func (mc *MetricsCollection) Finalize() {
	for _, m := range mc.LibraryMetrics {
		m.finalize()
	}
}

const metricsHeader = "LIBRARY\tUNPAIRED_READS_EXAMINED\tREAD_PAIRS_EXAMINED\t" +
	"SECONDARY_OR_SUPPLEMENTARY_RDS\tUNMAPPED_READS\tUNPAIRED_READ_DUPLICATES\t" +
	"READ_PAIR_DUPLICATES\tREAD_PAIR_OPTICAL_DUPLICATES\tPERCENT_DUPLICATION\t" +
	"ESTIMATED_LIBRARY_SIZE\n"

func writeMetrics(ctx context.Context, opts *Opts, mc *MetricsCollection) (err error) {
	mc.Finalize()
	out, err := file.Create(ctx, opts.MetricsFile)
	if err != nil {
		return errors.E(err, "could not create metrics file:", opts.MetricsFile)
	}
	defer func() {
		if err2 := out.Close(ctx); err == nil && err2 != nil {
			err = err2
		}
	}()

	s := "# markdup\n" + metricsHeader
	libraries := make([]string, 0, len(mc.LibraryMetrics))
	for library := range mc.LibraryMetrics {
		libraries = append(libraries, library)
	}
	sort.Strings(libraries)
	for _, library := range libraries {
		s += library + "\t" + mc.LibraryMetrics[library].String() + "\n"
	}
	if _, err = out.Writer(ctx).Write([]byte(s)); err != nil {
		return errors.E(err, "error writing to metrics file:", opts.MetricsFile)
	}
	log.Debug.Printf("wrote metrics for %d libraries to %s", len(libraries), opts.MetricsFile)
	return nil
}
