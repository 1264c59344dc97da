package main

/*
  markdup marks or removes PCR and optical duplicates in a coordinate
  or queryname sorted SAM/BAM file.
*/

import (
	"flag"
	"strings"

	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/markdup/markdup"
)

var (
	inputPath   = flag.String("input", "", "Input SAM/BAM filename")
	outputPath  = flag.String("output", "", "Output filename; empty writes BAM to stdout")
	metricsFile = flag.String("metrics", "", "Output metrics file")
	tempDirs    = flag.String("temp-dirs", "", "Comma-separated list of directories for spill files")
	maxMemory   = flag.Int64("max-memory", 2<<30, "Heap ceiling in bytes used to size the sorting collections")
	sizeRatio   = flag.Float64("sorting-collection-size-ratio", 0.25,
		"Fraction of max-memory granted to each signature sorting collection")
	maxFileHandles = flag.Int("max-file-handles-for-read-ends-map", 8000,
		"Maximum spill files the unmatched mate map keeps open; 0 keeps the map in memory")
	barcodeTag        = flag.String("barcode-tag", "", "Barcode tag; enables barcode-aware duplicate comparison")
	readOneBarcodeTag = flag.String("read-one-barcode-tag", "", "Read one barcode tag")
	readTwoBarcodeTag = flag.String("read-two-barcode-tag", "", "Read two barcode tag")
	tagRepresentative = flag.Bool("tag-representative-read", false,
		"Tag every duplicate set member with the representative read name (RR) and set size (DS)")
	removeDups    = flag.Bool("remove-duplicates", false, "Remove duplicates instead of flagging them")
	removeSeqDups = flag.Bool("remove-sequencing-duplicates", false, "Remove only sequencing (optical) duplicates")
	taggingPolicy = flag.String("tagging-policy", "DontTag",
		"DT tag emission: DontTag, OpticalOnly, or All")
	scoringStrategy = flag.String("duplicate-scoring-strategy", "SUM_OF_BASE_QUALITIES",
		"SUM_OF_BASE_QUALITIES or TOTAL_MAPPED_REFERENCE_LENGTH")
	readNameRegex = flag.String("read-name-regex", "default",
		"Regex extracting tile, x, and y from read names; 'default' uses the Illumina layouts, empty disables optical duplicate detection")
	opticalDistance = flag.Int("optical-duplicate-pixel-distance", 100,
		"Pixel distance threshold for optical duplicates")
)

func main() {
	shutdown := grail.Init()
	defer shutdown()

	if flag.NArg() > 0 {
		a := flag.Args()
		log.Fatalf("unparsed flags, please check flag syntax: '%s'", strings.Join(a[len(a)-flag.NArg():], " "))
	}

	policy, err := markdup.ParseTaggingPolicy(*taggingPolicy)
	if err != nil {
		log.Fatalf("%v", err)
	}
	strategy, err := markdup.ParseScoringStrategy(*scoringStrategy)
	if err != nil {
		log.Fatalf("%v", err)
	}

	opts := markdup.DefaultOpts()
	opts.InputPath = *inputPath
	opts.OutputPath = *outputPath
	opts.MetricsFile = *metricsFile
	opts.MaxMemory = *maxMemory
	opts.SortingCollectionSizeRatio = *sizeRatio
	opts.MaxFileHandles = *maxFileHandles
	opts.BarcodeTag = *barcodeTag
	opts.ReadOneBarcodeTag = *readOneBarcodeTag
	opts.ReadTwoBarcodeTag = *readTwoBarcodeTag
	opts.TagRepresentativeRead = *tagRepresentative
	opts.RemoveDuplicates = *removeDups
	opts.RemoveSequencingDuplicates = *removeSeqDups
	opts.TaggingPolicy = policy
	opts.ScoringStrategy = strategy
	opts.ReadNameRegex = *readNameRegex
	opts.OpticalDistance = *opticalDistance
	if *tempDirs != "" {
		opts.TempDirs = strings.Split(*tempDirs, ",")
	}

	provider := markdup.NewFileProvider(opts.InputPath)
	ctx := vcontext.Background()
	if err := markdup.SetupAndMark(ctx, provider, &opts); err != nil {
		log.Fatalf("%v", err)
	}
	log.Debug.Printf("exiting")
}
