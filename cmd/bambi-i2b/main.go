package main

/*
  bambi-i2b converts an Illumina sequencer run directory into an
  unaligned BAM file, one record per cluster that passes the run's
  filters (two for paired-end reads). For more information, see
  github.com/grailbio/bambi/i2b/doc.go
*/

import (
	"flag"

	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/bambi/encoding/runinfo"
	"github.com/grailbio/bambi/i2b"
)

var (
	runFolder    = flag.String("run-folder", "", "Illumina run directory")
	intensities  = flag.String("intensity-dir", "", "Intensities directory, default <run-folder>/Data/Intensities")
	baseCalls    = flag.String("basecalls-dir", "", "BaseCalls directory, default <intensity-dir>/BaseCalls")
	output       = flag.String("output-file", "", "Output filename")
	outputFormat = flag.String("output-fmt", "bam", "Output format, only 'bam' is implemented")
	lane         = flag.Int("lane", 1, "Lane number to convert")
	firstTile    = flag.Int("first-tile", 0, "Skip tiles before this one in sorted tile order, 0 for no skip")
	tileLimit    = flag.Int("tile-limit", 0, "Convert at most this many tiles, 0 for no limit")

	firstCycle      = flag.String("first-cycle", "", "Comma-separated first physical cycle per template read, default derived from run metadata")
	finalCycle      = flag.String("final-cycle", "", "Comma-separated final physical cycle per template read")
	firstIndexCycle = flag.String("first-index-cycle", "", "Comma-separated first physical cycle per index read")
	finalIndexCycle = flag.String("final-index-cycle", "", "Comma-separated final physical cycle per index read")

	barcodeTag       = flag.String("barcode-tag", "", "Comma-separated aux tags to receive each index read's bases, default BC (two cycle-adjacent index reads merged into it)")
	qualityTag       = flag.String("quality-tag", "", "Comma-separated aux tags to receive each index read's qualities, paired with barcode-tag")
	bcRead           = flag.String("bc-read", "", "Comma-separated 1-based index read numbers to feed barcode-tag/quality-tag, default all index reads")
	noIndexSeparator = flag.Bool("no-index-separator", false, "Concatenate multiple index reads in one tag without a separator")

	noFilter                   = flag.Bool("no-filter", false, "Emit clusters that failed the platform filter, flagged QCFAIL, instead of dropping them")
	compression                = flag.Int("compression-level", 6, "BAM compression level, 0-9")
	parallelism                = flag.Int("parallelism", 4, "bgzf writer's internal compression parallelism")
	threads                    = flag.Int("threads", 8, "Thread budget (max_threads): threads-2 tile-assembly workers run at once; must be at least 3")
	queueLength                = flag.Int("queue-length", 5000, "Must be positive; not used by the conversion, whose result queue has a fixed size")
	generateSecondaryBasecalls = flag.Bool("generate-secondary-basecalls", false, "Also convert basecalls not selected as the primary basecall set")

	readGroupID      = flag.String("read-group-id", "", "Read group ID recorded in the ID tag of the read group, default 1")
	sampleAlias      = flag.String("sample-alias", "", "Sample name recorded in the SM tag of the read group, default the library name")
	libraryName      = flag.String("library-name", "", "Library name recorded in the LB tag of the read group, default unknown")
	studyName        = flag.String("study-name", "", "Study name recorded in the DS tag of the read group")
	platformUnit     = flag.String("platform-unit", "", "Platform unit recorded in the PU tag of the read group, default <run-folder-basename>_<lane>")
	runStartDate     = flag.String("run-start-date", "", "Run start date recorded in the DT tag of the read group, default parsed from run metadata")
	sequencingCentre = flag.String("sequencing-centre", "", "Sequencing centre recorded in the CN tag of the read group, default SC")
	sequencingCenter = flag.String("sequencing-center", "", "Alias for -sequencing-centre")
	platform         = flag.String("platform", "ILLUMINA", "Platform recorded in the PL tag of the read group")
	verbose          = flag.Bool("verbose", false, "Log progress per tile")
)

func main() {
	shutdown := grail.Init()
	defer shutdown()

	if flag.NArg() > 0 {
		log.Fatalf("unparsed arguments: %v", flag.Args())
	}

	firstCycles, err := i2b.ParseIntList(*firstCycle)
	if err != nil {
		log.Fatalf("-first-cycle: %v", err)
	}
	finalCycles, err := i2b.ParseIntList(*finalCycle)
	if err != nil {
		log.Fatalf("-final-cycle: %v", err)
	}
	firstIndexCycles, err := i2b.ParseIntList(*firstIndexCycle)
	if err != nil {
		log.Fatalf("-first-index-cycle: %v", err)
	}
	finalIndexCycles, err := i2b.ParseIntList(*finalIndexCycle)
	if err != nil {
		log.Fatalf("-final-index-cycle: %v", err)
	}
	bcReads, err := i2b.ParseIntList(*bcRead)
	if err != nil {
		log.Fatalf("-bc-read: %v", err)
	}

	centre := *sequencingCentre
	if centre == "" {
		centre = *sequencingCenter
	}

	opts := &i2b.Opts{
		RunDir:                     *runFolder,
		Intensities:                *intensities,
		BaseCalls:                  *baseCalls,
		OutputPath:                 *output,
		OutputFormat:               *outputFormat,
		Lane:                       *lane,
		FirstTile:                  *firstTile,
		TileLimit:                  *tileLimit,
		GenerateSecondaryBasecalls: *generateSecondaryBasecalls,
		FirstCycle:                 firstCycles,
		FinalCycle:                 finalCycles,
		FirstIndexCycle:            firstIndexCycles,
		FinalIndexCycle:            finalIndexCycles,
		BarcodeTag:                 i2b.ParseStringList(*barcodeTag),
		QualityTag:                 i2b.ParseStringList(*qualityTag),
		BCRead:                     bcReads,
		NoIndexSeparator:           *noIndexSeparator,
		NoFilter:                   *noFilter,
		Compression:                *compression,
		Parallelism:                *parallelism,
		Threads:                    *threads,
		QueueLength:                *queueLength,
		ReadGroupID:                *readGroupID,
		SampleAlias:                *sampleAlias,
		LibraryName:                *libraryName,
		StudyName:                  *studyName,
		PlatformUnit:               *platformUnit,
		RunStartDate:               *runStartDate,
		SequencingCenter:           centre,
		Platform:                   *platform,
		Verbose:                    *verbose,
	}
	if err := i2b.Validate(opts); err != nil {
		log.Fatalf("invalid options: %v", err)
	}

	ctx := vcontext.Background()
	info, err := runinfo.Load(ctx, opts.RunDir, opts.Intensities)
	if err != nil {
		log.Fatalf("reading run metadata from %s: %v", opts.RunDir, err)
	}

	plan, err := i2b.BuildPlan(info, opts)
	if err != nil {
		log.Fatalf("planning conversion: %v", err)
	}
	log.Debug.Printf("converting %d tiles, %d cycles", len(plan.Tiles), plan.TotalCycles())

	header, err := i2b.BuildHeader(info, opts)
	if err != nil {
		log.Fatalf("building header: %v", err)
	}

	writer, err := i2b.NewWriter(ctx, opts, header)
	if err != nil {
		log.Fatalf("opening output %s: %v", opts.OutputPath, err)
	}

	if err := i2b.Run(ctx, opts, info, plan, writer); err != nil {
		writer.Close()
		log.Fatalf("conversion failed: %v", err)
	}
	if err := writer.Close(); err != nil {
		log.Fatalf("closing output %s: %v", opts.OutputPath, err)
	}
	log.Debug.Printf("wrote %s", opts.OutputPath)
}
