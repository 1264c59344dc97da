package markdup

import (
	"context"
	"fmt"
	"os"

	"github.com/grailbio/base/log"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/markdup/sortio"
)

// MarkDuplicates is the duplicate marking engine.  It makes three
// passes: one over the input to build the sorted signature
// collections, one over the sorted signatures to decide duplicates,
// and a second one over the input to write the flagged output.
type MarkDuplicates struct {
	Provider Provider
	Opts     *Opts

	header        *sam.Header
	sortOrder     sam.SortOrder
	lib           *libraryIndex
	locParser     locationParser
	clusterFinder OpticalClusterFinder
	codec         readEndsCodec
	metrics       *MetricsCollection

	pairSort            *sortio.Collection[*ReadEnds]
	fragSort            *sortio.Collection[*ReadEnds]
	dupIndexes          *sortio.Longs
	opticalIndexes      *sortio.Longs
	repSort             *sortio.Collection[*repRead]
	numDuplicateIndices int64
}

func (m *MarkDuplicates) scratchDir() string {
	return m.Opts.TempDirs[0]
}

// Mark runs the three passes and returns the collected metrics.
func (m *MarkDuplicates) Mark(ctx context.Context) (*MetricsCollection, error) {
	header, err := m.Provider.GetHeader()
	if err != nil {
		return nil, err
	}
	m.header = header
	m.sortOrder = header.SortOrder
	if m.sortOrder != sam.Coordinate && m.sortOrder != sam.QueryName {
		return nil, fmt.Errorf(
			"input must be coordinate or queryname sorted, found %q", m.sortOrder)
	}
	log.Printf("reads are assumed to be ordered by: %s", m.sortOrder)

	if len(m.Opts.TempDirs) == 0 {
		m.Opts.TempDirs = []string{os.TempDir()}
	}
	m.lib = newLibraryIndex(header)
	m.metrics = newMetricsCollection()
	m.codec = readEndsCodec{withName: m.Opts.TagRepresentativeRead}

	m.locParser, err = newLocationParser(m.Opts.ReadNameRegex)
	if err != nil {
		return nil, err
	}
	if m.locParser == nil {
		log.Error.Printf("skipped optical duplicate cluster discovery; library size estimation may be inaccurate")
	} else {
		m.clusterFinder = m.Opts.ClusterFinder
		if m.clusterFinder == nil {
			m.clusterFinder = &TileClusterFinder{Distance: m.Opts.OpticalDistance}
		}
	}

	b := computeBudgets(m.Opts)
	log.Printf("will retain up to %d signatures and %d indices before spilling to disk",
		b.signatureRecords, b.indexSlots)
	cmp := compareReadEnds(m.Opts.useBarcodes())
	m.pairSort = sortio.New[*ReadEnds](cmp, m.codec, sortio.Opts{
		MaxInMemory: b.signatureRecords,
		TempDirs:    m.Opts.TempDirs,
		Prefix:      "markdup-pair",
	})
	m.fragSort = sortio.New[*ReadEnds](cmp, m.codec, sortio.Opts{
		MaxInMemory: b.signatureRecords,
		TempDirs:    m.Opts.TempDirs,
		Prefix:      "markdup-frag",
	})
	m.dupIndexes = sortio.NewLongs(b.indexSlots, m.Opts.TempDirs, "markdup-dupidx")
	if m.Opts.indexOpticalDuplicates() {
		m.opticalIndexes = sortio.NewLongs(b.indexSlots, m.Opts.TempDirs, "markdup-optidx")
	}
	if m.Opts.TagRepresentativeRead {
		m.repSort = sortio.New[*repRead](compareRepReads, repReadCodec{}, sortio.Opts{
			MaxInMemory: b.indexSlots,
			TempDirs:    m.Opts.TempDirs,
			Prefix:      "markdup-rep",
		})
	}
	defer m.cleanup()

	log.Printf("reading input and constructing read end information")
	if err := m.buildSortedReadEndLists(ctx); err != nil {
		return nil, err
	}
	if err := m.generateDuplicateIndexes(ctx); err != nil {
		return nil, err
	}
	log.Printf("marking %d records as duplicates", m.numDuplicateIndices)
	if err := m.writeOutputs(ctx); err != nil {
		return nil, err
	}
	return m.metrics, nil
}

// cleanup removes any remaining spill files.  Safe on all exit paths;
// the collections tolerate repeated cleanup.
func (m *MarkDuplicates) cleanup() {
	for _, c := range []*sortio.Collection[*ReadEnds]{m.pairSort, m.fragSort} {
		if c != nil {
			c.Cleanup()
		}
	}
	if m.dupIndexes != nil {
		m.dupIndexes.Cleanup()
	}
	if m.opticalIndexes != nil {
		m.opticalIndexes.Cleanup()
	}
	if m.repSort != nil {
		m.repSort.Cleanup()
	}
}

// SetupAndMark validates opts, runs the engine, and writes the
// metrics file if one was requested.
func SetupAndMark(ctx context.Context, provider Provider, opts *Opts) error {
	if err := validate(opts); err != nil {
		return err
	}
	markDuplicates := &MarkDuplicates{
		Provider: provider,
		Opts:     opts,
	}
	globalMetrics, err := markDuplicates.Mark(ctx)
	if err != nil {
		return err
	}
	if opts.MetricsFile != "" {
		if err := writeMetrics(ctx, opts, globalMetrics); err != nil {
			return err
		}
	}
	return nil
}
