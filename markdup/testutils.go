package markdup

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/sam"
	"github.com/stretchr/testify/assert"
)

// TestRecord pairs an input record with its expected output state.
type TestRecord struct {
	R              *sam.Record
	DupFlag        bool
	ExpectedAuxs   []sam.Aux
	UnexpectedTags []sam.Tag
}

// NewRecord returns a record with the given alignment fields.
func NewRecord(name string, ref *sam.Reference, pos int, flags sam.Flags, matePos int, mateRef *sam.Reference, cigar sam.Cigar) *sam.Record {
	r := sam.GetFromFreePool()
	r.Name = name
	r.Ref = ref
	r.Pos = pos
	r.MatePos = matePos
	r.MateRef = mateRef
	r.Flags = flags
	r.Cigar = cigar
	return r
}

// NewRecordQual returns a record carrying n sequence bases with the
// given uniform base quality, so that duplicate scores are
// predictable in tests.
func NewRecordQual(name string, ref *sam.Reference, pos int, flags sam.Flags, matePos int, mateRef *sam.Reference,
	cigar sam.Cigar, n int, qual byte) *sam.Record {
	r := NewRecord(name, ref, pos, flags, matePos, mateRef, cigar)
	seq := make([]byte, n)
	quals := make([]byte, n)
	for i := range seq {
		seq[i] = 'A'
		quals[i] = qual
	}
	r.Seq = sam.NewSeq(seq)
	r.Qual = quals
	return r
}

// NewRecordAux returns a record with one aux tag attached.
func NewRecordAux(name string, ref *sam.Reference, pos int, flags sam.Flags, matePos int, mateRef *sam.Reference,
	cigar sam.Cigar, aux sam.Aux) *sam.Record {
	r := NewRecord(name, ref, pos, flags, matePos, mateRef, cigar)
	r.AuxFields = append(r.AuxFields, aux)
	return r
}

// NewAux builds an aux tag, panicking on invalid input.
func NewAux(name string, val interface{}) sam.Aux {
	aux, err := sam.NewAux(sam.NewTag(name), val)
	if err != nil {
		panic(fmt.Sprintf("error creating %s %v tag: %v", name, val, err))
	}
	return aux
}

func ctxForTest() context.Context { return context.Background() }

// RunTestCase runs the engine over the given records and verifies the
// expected flags and tags on the output, in order.
func RunTestCase(t *testing.T, header *sam.Header, tempDir string, testRecords []TestRecord, opts Opts) *MetricsCollection {
	records := make([]*sam.Record, 0, len(testRecords))
	for _, tr := range testRecords {
		records = append(records, tr.R)
	}
	provider := NewFakeProvider(header, records)
	outputPath := filepath.Join(tempDir, "out.bam")
	opts.OutputPath = outputPath
	opts.TempDirs = []string{tempDir}

	m := &MarkDuplicates{Provider: provider, Opts: &opts}
	metrics, err := m.Mark(ctxForTest())
	assert.NoError(t, err)

	actual := ReadRecords(t, outputPath)
	assert.Equal(t, len(testRecords), len(actual))
	for i, r := range actual {
		t.Logf("output[%d]: %v", i, r)
		assert.Equal(t, testRecords[i].R.Name, r.Name, "record order changed")
		assert.Equal(t, testRecords[i].DupFlag, r.Flags&sam.Duplicate != 0,
			"duplicate flag is wrong on %s", r.Name)

		for _, expected := range testRecords[i].ExpectedAuxs {
			found := 0
			for _, aux := range r.AuxFields {
				if aux.Tag() == expected.Tag() {
					assert.Equal(t, expected, aux)
					found++
				}
			}
			assert.Equal(t, 1, found, "incorrect number of %v tags on %s", expected.Tag(), r.Name)
		}
		for _, negTag := range testRecords[i].UnexpectedTags {
			actualAux, ok := r.Tag([]byte{negTag[0], negTag[1]})
			assert.False(t, ok, "expected tag to be absent on %s, but found: %v", r.Name, actualAux)
		}
	}
	return metrics
}

// ReadRecords reads back the records written to path, in order.
func ReadRecords(t *testing.T, path string) []*sam.Record {
	in, err := os.Open(path)
	assert.NoError(t, err)
	defer func() {
		assert.NoError(t, in.Close())
	}()
	reader, err := bam.NewReader(in, 1)
	assert.NoError(t, err)
	records := make([]*sam.Record, 0)
	for {
		r, err := reader.Read()
		if err == io.EOF {
			break
		}
		assert.NoError(t, err)
		records = append(records, r)
	}
	return records
}
