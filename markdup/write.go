package markdup

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/sam"
)

// recordWriter abstracts the BAM and SAM output encoders.
type recordWriter interface {
	Write(r *sam.Record) error
	Close() error
}

type samWriter struct {
	w *sam.Writer
}

func (w *samWriter) Write(r *sam.Record) error { return w.w.Write(r) }
func (w *samWriter) Close() error              { return nil }

func newRecordWriter(w io.Writer, header *sam.Header, path string) (recordWriter, error) {
	if strings.HasSuffix(path, ".sam") {
		sw, err := sam.NewWriter(w, header, sam.FlagDecimal)
		if err != nil {
			return nil, err
		}
		return &samWriter{w: sw}, nil
	}
	return bam.NewWriter(w, header, 1)
}

// clearDupTags strips any DT, RR, and DS tags a record may carry from
// an earlier run, so that re-marking is idempotent.
func clearDupTags(r *sam.Record) {
	out := r.AuxFields[:0]
	for _, aux := range r.AuxFields {
		t := aux.Tag()
		if t == dtTag || t == rrTag || t == dsTag {
			continue
		}
		out = append(out, aux)
	}
	r.AuxFields = out
}

func appendStringAux(r *sam.Record, tag sam.Tag, value string) {
	aux, err := sam.NewAux(tag, value)
	if err != nil {
		log.Fatalf("error creating %v:Z:%s tag: %v", tag, value, err)
	}
	r.AuxFields = append(r.AuxFields, aux)
}

func appendIntAux(r *sam.Record, tag sam.Tag, value int) {
	aux, err := sam.NewAux(tag, value)
	if err != nil {
		log.Fatalf("error creating %v:i:%d tag: %v", tag, value, err)
	}
	r.AuxFields = append(r.AuxFields, aux)
}

// writeOutputs re-streams the input, consults the three sorted index
// streams, and writes every record with its duplicate flag and
// optional tags up to date.  Records arrive and leave in input order.
func (m *MarkDuplicates) writeOutputs(ctx context.Context) (err error) {
	iter, err := m.Provider.NewIterator()
	if err != nil {
		return err
	}
	defer iter.Close() // nolint: errcheck

	var outputStream io.Writer
	if m.Opts.OutputPath == "" {
		outputStream = os.Stdout
	} else {
		out, err := file.Create(ctx, m.Opts.OutputPath)
		if err != nil {
			return errors.E(err, "could not create output file", m.Opts.OutputPath)
		}
		defer func() {
			if err2 := out.Close(ctx); err == nil && err2 != nil {
				err = err2
			}
		}()
		outputStream = out.Writer(ctx)
	}
	writer, err := newRecordWriter(outputStream, m.header, m.Opts.OutputPath)
	if err != nil {
		return errors.E(err, "could not create record writer for", m.Opts.OutputPath)
	}

	queryOrdered := m.sortOrder == sam.QueryName
	dupIter := m.dupIndexes.Iter()
	dupCursor := newLongCursor(dupIter, queryOrdered)
	var optCursor *longCursor
	if m.opticalIndexes != nil {
		optCursor = newLongCursor(m.opticalIndexes.Iter(), queryOrdered)
	} else {
		optCursor = newLongCursor(nil, queryOrdered)
	}
	var reps *repCursor
	if m.repSort != nil {
		reps = newRepCursor(m.repSort.Iter(), queryOrdered)
	}

	index := uint64(0)
	for iter.Scan() {
		rec := iter.Record()
		if err := checkCancel(ctx, index); err != nil {
			return err
		}

		metrics := m.metrics.Get(m.lib.libraryName(rec))
		unmapped := rec.Flags&sam.Unmapped != 0
		secondaryOrSupp := isSecondaryOrSupplementary(rec)
		switch {
		case unmapped:
			metrics.UnmappedReads++
		case secondaryOrSupp:
			metrics.SecondaryOrSupplementary++
		case rec.Flags&sam.Paired == 0 || rec.Flags&sam.MateUnmapped != 0:
			metrics.UnpairedReadsExamined++
		default:
			metrics.ReadPairsExamined++
		}

		// Records in the trailing unmapped block never carry
		// duplicate decisions; leave their tags untouched.
		if !(unmapped && rec.RefID() == -1 && m.sortOrder == sam.Coordinate) {
			clearDupTags(rec)
		}

		isDuplicate := dupCursor.check(index, rec.Name)
		if isDuplicate {
			rec.Flags |= sam.Duplicate
			// Only decider reads count toward the duplicate metrics,
			// not tag-along secondaries or unmapped mates.
			if !secondaryOrSupp && !unmapped {
				if rec.Flags&sam.Paired == 0 || rec.Flags&sam.MateUnmapped != 0 {
					metrics.UnpairedReadDuplicates++
				} else {
					metrics.ReadPairDuplicates++
				}
			}
		} else {
			rec.Flags &^= sam.Duplicate
		}

		isOptical := optCursor.check(index, rec.Name)
		if m.Opts.TaggingPolicy != DontTag && isDuplicate {
			if isOptical {
				appendStringAux(rec, dtTag, "SQ")
			} else if m.Opts.TaggingPolicy == All {
				appendStringAux(rec, dtTag, "LB")
			}
		}

		if reps != nil {
			if rep := reps.check(index, rec.Name); rep != nil && !secondaryOrSupp && !unmapped {
				appendStringAux(rec, rrTag, rep.name)
				appendIntAux(rec, dsTag, int(rep.setSize))
			}
		}

		index++
		if index%10000000 == 0 {
			log.Printf("written %d records", index)
		}
		if m.Opts.RemoveDuplicates && isDuplicate {
			continue
		}
		if m.Opts.RemoveSequencingDuplicates && isOptical {
			continue
		}
		if err := writer.Write(rec); err != nil {
			return errors.E(err, "error writing record", rec.Name)
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	for _, c := range []*longCursor{dupCursor, optCursor} {
		if err := c.err(); err != nil {
			return err
		}
	}
	if reps != nil {
		if err := reps.err(); err != nil {
			return err
		}
	}
	return writer.Close()
}
