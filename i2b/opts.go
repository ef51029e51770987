package i2b

import (
	"fmt"
	"strconv"
	"strings"
)

// Opts holds every user-controllable conversion parameter, built once in
// main() from flag values and never mutated afterward.
type Opts struct {
	RunDir       string // the sequencer run directory
	Intensities  string // RunDir/Data/Intensities, unless overridden
	BaseCalls    string // Intensities/BaseCalls, unless overridden
	OutputPath   string
	OutputFormat string // only "bam" is implemented; see Validate.

	Lane                       int
	FirstTile                  int // 0 means "no restriction"
	TileLimit                  int // 0 means "no restriction"
	GenerateSecondaryBasecalls bool

	// FirstCycle/FinalCycle give one pair of physical cycle-directory
	// numbers per template read, in read order; FirstIndexCycle/
	// FinalIndexCycle do the same for index reads. Empty means "derive
	// entirely from run metadata" (RunInfo.xml, runParameters.xml, or
	// config.xml, in that order).
	FirstCycle      []int
	FinalCycle      []int
	FirstIndexCycle []int
	FinalIndexCycle []int

	// BarcodeTag/QualityTag name the aux tags that receive each index
	// read's sequence/quality, in index-read order. An empty list means
	// the default pair BC/QT; two cycle-adjacent index reads are merged
	// into it, otherwise each index read gets its own BC/QT pair. BCRead optionally restricts which 1-based index reads
	// (readIndex=1, readIndex2=2) feed the tags, in order.
	BarcodeTag       []string
	QualityTag       []string
	BCRead           []int
	NoIndexSeparator bool

	NoFilter    bool // emit every cluster, not just pass-filter ones
	Compression int  // bgzf compression level, 0-9

	Parallelism int // bgzf writer's internal compression parallelism
	Threads     int // max_threads: concurrency harness bound; default 8, floor 3
	QueueLength int // checked by Validate; Run does not read it, its result queue has a fixed size

	ReadGroupID      string
	SampleAlias      string
	LibraryName      string
	StudyName        string
	PlatformUnit     string
	RunStartDate     string // overrides the metadata-derived run start date
	SequencingCenter string
	Platform         string

	Verbose bool
}

// Validate checks Opts for internal consistency and fills in derived
// defaults. It must be called exactly once, after flag parsing.
func Validate(opts *Opts) error {
	if opts.RunDir == "" {
		return fmt.Errorf("you must specify a run directory with --run-folder")
	}
	if opts.OutputPath == "" {
		return fmt.Errorf("you must specify an output path with --output-file")
	}
	if opts.Lane <= 0 {
		return fmt.Errorf("lane must be positive")
	}
	if opts.Lane > 999 {
		return fmt.Errorf("lane %d exceeds the maximum of 999", opts.Lane)
	}
	if opts.FirstTile < 0 {
		return fmt.Errorf("first-tile must be non-negative")
	}
	if opts.TileLimit < 0 {
		return fmt.Errorf("tile-limit must be non-negative")
	}
	if opts.Parallelism <= 0 {
		return fmt.Errorf("parallelism must be positive")
	}
	if opts.QueueLength <= 0 {
		return fmt.Errorf("queue-length must be positive")
	}
	if opts.Compression < 0 || opts.Compression > 9 {
		return fmt.Errorf("compression must be between 0 and 9")
	}
	if opts.Threads == 0 {
		opts.Threads = 8
	}
	if opts.Threads < 3 {
		return fmt.Errorf("threads must be at least 3, got %d", opts.Threads)
	}
	if n := len(opts.BCRead); n != 0 && n != 1 && n != 2 {
		return fmt.Errorf("bc-read must name one or two index reads, got %d", n)
	}
	if len(opts.QualityTag) != len(opts.BarcodeTag) {
		return fmt.Errorf("quality-tag must name exactly as many tags as barcode-tag")
	}
	for _, tag := range opts.BarcodeTag {
		if len(tag) != 2 {
			return fmt.Errorf("barcode-tag %q must be exactly two characters", tag)
		}
	}
	for _, tag := range opts.QualityTag {
		if len(tag) != 2 {
			return fmt.Errorf("quality-tag %q must be exactly two characters", tag)
		}
	}
	switch strings.ToLower(opts.OutputFormat) {
	case "":
		opts.OutputFormat = "bam"
	case "bam":
	case "sam", "cram":
		return fmt.Errorf("output format %q is not supported, only bam is implemented", opts.OutputFormat)
	default:
		return fmt.Errorf("unknown output format %q", opts.OutputFormat)
	}
	if opts.Intensities == "" {
		opts.Intensities = joinPath(opts.RunDir, "Data/Intensities")
	}
	if opts.BaseCalls == "" {
		opts.BaseCalls = joinPath(opts.Intensities, "BaseCalls")
	}
	return nil
}

// workerCount returns the number of tile-assembly workers the
// concurrency harness may run at once: max_threads - 2, reserving one
// slot for the writer and one for the dispatcher.
func (opts *Opts) workerCount() int {
	n := opts.Threads - 2
	if n < 1 {
		n = 1
	}
	return n
}

func joinPath(dir, name string) string {
	if strings.HasSuffix(dir, "/") {
		return dir + name
	}
	return dir + "/" + name
}

// ParseIntList parses a comma-separated list of integers, as accepted by
// the cycle-range and bc-read flags. An empty string yields a nil list.
func ParseIntList(s string) ([]int, error) {
	if s == "" {
		return nil, nil
	}
	fields := strings.Split(s, ",")
	out := make([]int, len(fields))
	for i, f := range fields {
		n, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return nil, fmt.Errorf("malformed integer %q in list %q", f, s)
		}
		out[i] = n
	}
	return out, nil
}

// ParseStringList parses a comma-separated list of tag names, trimming
// surrounding whitespace from each entry.
func ParseStringList(s string) []string {
	if s == "" {
		return nil
	}
	fields := strings.Split(s, ",")
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = strings.TrimSpace(f)
	}
	return out
}
