package i2b

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/bambi/encoding/runinfo"
	"github.com/grailbio/hts/sam"
)

const programName = "bambi-i2b"

// programVersion is substituted at link time in real release builds; the
// zero value is fine for local development.
var programVersion = "dev"

const unknownSoftware = "Unknown"

// BuildHeader constructs the unaligned-BAM header: @HD with sort order
// "unsorted", a single @RG carrying the run's platform unit and the run start
// date, and the three-stage @PG chain (instrument control software,
// basecaller, this conversion) required to trace a cluster back to its
// sequencer. The header carries no @SQ lines, since every record is
// unaligned.
func BuildHeader(info *runinfo.Info, opts *Opts) (*sam.Header, error) {
	header, err := sam.NewHeader(headerText(info, opts), nil)
	if err != nil {
		return nil, errors.E(err, "i2b: build header")
	}
	return header, nil
}

// headerText renders the textual SAM header BuildHeader parses. It is
// kept separate so tests can check the exact emitted lines without
// going through sam.Header's accessors.
func headerText(info *runinfo.Info, opts *Opts) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "@HD\tVN:1.5\tSO:unsorted\n")

	library := libraryName(opts)
	fmt.Fprintf(&buf, "@RG\tID:%s\tPU:%s\tLB:%s\tPL:%s\tSM:%s\tCN:%s\tPG:%s\tDT:%s",
		readGroupID(opts), platformUnit(info, opts), library, platform(opts), sampleName(opts, library), sequencingCentre(opts), pgSCS, runStartDate(info, opts))
	if opts.StudyName != "" {
		fmt.Fprintf(&buf, "\tDS:%s", opts.StudyName)
	}
	buf.WriteByte('\n')

	writeProgramGroups(&buf, info, opts)
	return buf.Bytes()
}

const (
	pgSCS         = "SCS"
	pgBasecalling = "basecalling"
	pgBambi       = "bambi"
)

// writeProgramGroups emits the three @PG lines that chain the run's
// instrument control software to its basecaller to this conversion,
// PP-linked in that order. info only carries one software identity (the
// instrument control software parsed from runParameters.xml/config.xml);
// the basecaller's own identity is not captured anywhere in run
// metadata, so it is recorded as "Unknown" per the same rule applied to
// any other missing software identifier.
func writeProgramGroups(buf *bytes.Buffer, info *runinfo.Info, opts *Opts) {
	scsName, scsVersion := orUnknown(info.Software), orUnknown(info.SoftwareVersion)
	fmt.Fprintf(buf, "@PG\tID:%s\tPN:%s\tVN:%s\tDS:%s\n", pgSCS, scsName, scsVersion, "Illumina instrument control software")
	fmt.Fprintf(buf, "@PG\tID:%s\tPN:%s\tVN:%s\tPP:%s\tDS:%s\n", pgBasecalling, unknownSoftware, unknownSoftware, pgSCS, "Illumina base calling")
	fmt.Fprintf(buf, "@PG\tID:%s\tPN:%s\tVN:%s\tPP:%s\tDS:%s\tCL:%s\n", pgBambi, programName, programVersion, pgBasecalling, "Illumina run folder to unaligned BAM conversion", commandLine(opts))
}

func orUnknown(s string) string {
	if s == "" {
		return unknownSoftware
	}
	return s
}

func readGroupID(opts *Opts) string {
	if opts.ReadGroupID != "" {
		return opts.ReadGroupID
	}
	return "1"
}

func libraryName(opts *Opts) string {
	if opts.LibraryName != "" {
		return opts.LibraryName
	}
	return "unknown"
}

// sampleName falls back to the library name when no sample alias was
// given, per the @RG defaults table.
func sampleName(opts *Opts, library string) string {
	if opts.SampleAlias != "" {
		return opts.SampleAlias
	}
	return library
}

func sequencingCentre(opts *Opts) string {
	if opts.SequencingCenter != "" {
		return opts.SequencingCenter
	}
	return "SC"
}

func platform(opts *Opts) string {
	if opts.Platform != "" {
		return opts.Platform
	}
	return "ILLUMINA"
}

func runStartDate(info *runinfo.Info, opts *Opts) string {
	if opts.RunStartDate != "" {
		return opts.RunStartDate
	}
	return info.RunStartDate
}

// platformUnit defaults to "<runfolder-basename>_<lane>", the run
// folder's own name standing in for the flowcell/run-level identifier
// that PU conventionally carries.
func platformUnit(info *runinfo.Info, opts *Opts) string {
	if opts.PlatformUnit != "" {
		return opts.PlatformUnit
	}
	return fmt.Sprintf("%s_%d", runFolderBasename(opts.RunDir), opts.Lane)
}

func runFolderBasename(runDir string) string {
	trimmed := strings.TrimRight(runDir, "/")
	if i := strings.LastIndexByte(trimmed, '/'); i >= 0 {
		return trimmed[i+1:]
	}
	return trimmed
}

func commandLine(opts *Opts) string {
	return fmt.Sprintf("%s --run-folder=%s --lane=%d --output-file=%s", programName, opts.RunDir, opts.Lane, opts.OutputPath)
}
