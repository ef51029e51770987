package runinfo

import (
	"context"
	goerrors "errors"
	"fmt"
	"io/ioutil"
	"strconv"
	"strings"
	"time"

	xml "encoding/xml"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
)

var (
	// ErrMissingRunStartDate is returned when none of the run metadata
	// files (RunInfo.xml, runParameters.xml, config.xml) carries a
	// recognizable run start date.
	ErrMissingRunStartDate = goerrors.New("runinfo: missing run start date")
	// ErrNoCycleRange is returned when none of the run metadata files
	// declares any read segments.
	ErrNoCycleRange = goerrors.New("runinfo: no read segments declared")
)

// ReadSegment describes one read of the run: a contiguous span of cycles
// that is either a template read or an index read.
type ReadSegment struct {
	Number        int
	NumCycles     int
	IsIndexedRead bool
}

// Info is the run metadata needed to plan and label a conversion: read
// structure, flowcell geometry, and the identifiers that go into the SAM
// header's @RG and @PG lines.
type Info struct {
	RunID           string
	RunNumber       int
	Instrument      string
	Computer        string // ComputerName, used to form the run identifier when Instrument is absent
	Experiment      string // ExperimentName, paired with Computer
	FlowcellID      string
	Reads           []ReadSegment
	LaneCount       int
	SurfaceCount    int
	SwathCount      int
	TileCount       int
	SectionPerLane  int    // sections per lane; only meaningful when FiveDigitTiles is set
	FiveDigitTiles  bool   // TileNamingConvention="FiveDigit"
	Tiles           []int  // explicit tile numbers, if RunInfo.xml lists them; nil otherwise
	Software        string
	SoftwareVersion string
	RunStartDate    string // normalized to YYYY-MM-DDT00:00:00+0000
}

// RunIdentifier forms the run identifier used in the per-cluster read
// name: "<instrument>_<run number>" if both are known, else
// "<computer>_<experiment>", else empty.
func (i *Info) RunIdentifier() string {
	if i.Instrument != "" && i.RunNumber != 0 {
		return fmt.Sprintf("%s_%d", i.Instrument, i.RunNumber)
	}
	if i.Computer != "" && i.Experiment != "" {
		return fmt.Sprintf("%s_%s", i.Computer, i.Experiment)
	}
	return ""
}

type runInfoXML struct {
	XMLName xml.Name `xml:"RunInfo"`
	Run     struct {
		ID         string `xml:"Id,attr"`
		Number     int    `xml:"Number,attr"`
		Flowcell   string `xml:"Flowcell"`
		Instrument string `xml:"Instrument"`
		Date       string `xml:"Date"`
		Reads      struct {
			Read []struct {
				Number        int    `xml:"Number,attr"`
				NumCycles     int    `xml:"NumCycles,attr"`
				IsIndexedRead string `xml:"IsIndexedRead,attr"`
			} `xml:"Read"`
		} `xml:"Reads"`
		FlowcellLayout struct {
			LaneCount      int `xml:"LaneCount,attr"`
			SurfaceCount   int `xml:"SurfaceCount,attr"`
			SwathCount     int `xml:"SwathCount,attr"`
			TileCount      int `xml:"TileCount,attr"`
			SectionPerLane int `xml:"SectionPerLane,attr"`
			TileSet        struct {
				TileNamingConvention string `xml:"TileNamingConvention,attr"`
				Tiles                struct {
					Tile []string `xml:"Tile"`
				} `xml:"Tiles"`
			} `xml:"TileSet"`
		} `xml:"FlowcellLayout"`
	} `xml:"Run"`
}

// ReadRunInfo parses a RunInfo.xml file.
func ReadRunInfo(ctx context.Context, path string) (*Info, error) {
	data, err := readAll(ctx, path)
	if err != nil {
		return nil, err
	}
	var doc runInfoXML
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, errors.E(err, "runinfo: parse", path)
	}
	info := &Info{
		RunID:          doc.Run.ID,
		RunNumber:      doc.Run.Number,
		Instrument:     doc.Run.Instrument,
		FlowcellID:     doc.Run.Flowcell,
		LaneCount:      doc.Run.FlowcellLayout.LaneCount,
		SurfaceCount:   doc.Run.FlowcellLayout.SurfaceCount,
		SwathCount:     doc.Run.FlowcellLayout.SwathCount,
		TileCount:      doc.Run.FlowcellLayout.TileCount,
		SectionPerLane: doc.Run.FlowcellLayout.SectionPerLane,
		FiveDigitTiles: strings.EqualFold(doc.Run.FlowcellLayout.TileSet.TileNamingConvention, "FiveDigit"),
	}
	for _, r := range doc.Run.Reads.Read {
		info.Reads = append(info.Reads, ReadSegment{
			Number:        r.Number,
			NumCycles:     r.NumCycles,
			IsIndexedRead: strings.EqualFold(r.IsIndexedRead, "Y"),
		})
	}
	for _, tile := range doc.Run.FlowcellLayout.TileSet.Tiles.Tile {
		n, err := strconv.Atoi(lastField(tile))
		if err != nil {
			return nil, errors.E(err, fmt.Sprintf("runinfo: malformed tile %q", tile), path)
		}
		info.Tiles = append(info.Tiles, n)
	}
	if legacyDate := normalizeRunStartDate(doc.Run.Date); legacyDate != "" {
		info.RunStartDate = legacyDate
	}
	return info, nil
}

// lastField returns the portion of a lane-qualified tile identifier like
// "1_1101" after the final underscore, or the whole string if there is
// none.
func lastField(tile string) string {
	if i := strings.LastIndexByte(tile, '_'); i >= 0 {
		return tile[i+1:]
	}
	return tile
}

type runParametersXML struct {
	XMLName         xml.Name `xml:"RunParameters"`
	RunStartDate    string   `xml:"RunStartDate"`
	ApplicationName string   `xml:"ApplicationName"`
	ApplicationVer  string   `xml:"ApplicationVersion"`
	Setup           struct {
		ApplicationName string `xml:"ApplicationName"`
		ApplicationVer  string `xml:"ApplicationVersion"`
		ComputerName    string `xml:"ComputerName"`
		ExperimentName  string `xml:"ExperimentName"`
	} `xml:"Setup"`
	Reads struct {
		Read []struct {
			Number        int    `xml:"Number,attr"`
			NumCycles     int    `xml:"NumCycles,attr"`
			IsIndexedRead string `xml:"IsIndexedRead,attr"`
		} `xml:"Read"`
	} `xml:"Reads"`
}

// ReadRunParameters parses a RunParameters.xml or runParameters.xml file
// and fills in software identity, run start date, the computer/experiment
// names, and the read structure, without overwriting fields info already
// has from RunInfo.xml.
func ReadRunParameters(ctx context.Context, path string, info *Info) error {
	data, err := readAll(ctx, path)
	if err != nil {
		return err
	}
	var doc runParametersXML
	if err := xml.Unmarshal(data, &doc); err != nil {
		return errors.E(err, "runinfo: parse", path)
	}
	name := doc.ApplicationName
	if name == "" {
		name = doc.Setup.ApplicationName
	}
	version := doc.ApplicationVer
	if version == "" {
		version = doc.Setup.ApplicationVer
	}
	if name != "" {
		info.Software = name
	}
	if version != "" {
		info.SoftwareVersion = version
	}
	if doc.Setup.ComputerName != "" {
		info.Computer = doc.Setup.ComputerName
	}
	if doc.Setup.ExperimentName != "" {
		info.Experiment = doc.Setup.ExperimentName
	}
	if info.RunStartDate == "" {
		if date := normalizeRunStartDate(doc.RunStartDate); date != "" {
			info.RunStartDate = date
		}
	}
	if len(info.Reads) == 0 {
		for _, r := range doc.Reads.Read {
			info.Reads = append(info.Reads, ReadSegment{
				Number:        r.Number,
				NumCycles:     r.NumCycles,
				IsIndexedRead: strings.EqualFold(r.IsIndexedRead, "Y"),
			})
		}
	}
	return nil
}

// configXML models the subset of <Intensities>/config.xml and
// <Intensities>/BaseCalls/config.xml this converter needs: the same run
// start date, software identity, and read structure that RunInfo.xml and
// runParameters.xml may also carry, consulted only when both are silent
// on a given field. The root element name is intentionally unchecked,
// since the two config.xml locations use different wrapping elements.
type configXML struct {
	RunParameters struct {
		RunStartDate string `xml:"RunStartDate"`
		Reads        struct {
			Read []struct {
				Index         int    `xml:"Index,attr"`
				NumCycles     int    `xml:"NumCycles,attr"`
				IsIndexedRead string `xml:"IsIndexedRead,attr"`
			} `xml:"Read"`
		} `xml:"Reads"`
	} `xml:"RunParameters"`
	Setup struct {
		ComputerName       string `xml:"ComputerName"`
		ExperimentName     string `xml:"ExperimentName"`
		ApplicationName    string `xml:"ApplicationName"`
		ApplicationVersion string `xml:"ApplicationVersion"`
	} `xml:"Setup"`
}

// ReadConfigXML parses a config.xml file, filling in only the fields
// info is still missing: it is the last link in the run metadata
// fallback chain (RunInfo.xml, then runParameters.xml, then config.xml).
func ReadConfigXML(ctx context.Context, path string, info *Info) error {
	data, err := readAll(ctx, path)
	if err != nil {
		return err
	}
	var doc configXML
	if err := xml.Unmarshal(data, &doc); err != nil {
		return errors.E(err, "runinfo: parse", path)
	}
	if info.Software == "" && doc.Setup.ApplicationName != "" {
		info.Software = doc.Setup.ApplicationName
	}
	if info.SoftwareVersion == "" && doc.Setup.ApplicationVersion != "" {
		info.SoftwareVersion = doc.Setup.ApplicationVersion
	}
	if info.Computer == "" && doc.Setup.ComputerName != "" {
		info.Computer = doc.Setup.ComputerName
	}
	if info.Experiment == "" && doc.Setup.ExperimentName != "" {
		info.Experiment = doc.Setup.ExperimentName
	}
	if info.RunStartDate == "" {
		if date := normalizeRunStartDate(doc.RunParameters.RunStartDate); date != "" {
			info.RunStartDate = date
		}
	}
	if len(info.Reads) == 0 {
		for _, r := range doc.RunParameters.Reads.Read {
			info.Reads = append(info.Reads, ReadSegment{
				Number:        r.Index,
				NumCycles:     r.NumCycles,
				IsIndexedRead: strings.EqualFold(r.IsIndexedRead, "Y"),
			})
		}
	}
	return nil
}

// normalizeRunStartDate accepts either the legacy 6-digit "yyMMdd" form
// or an already-ISO timestamp/date, and re-expands it to
// "YYYY-MM-DDT00:00:00+0000". It returns "" if s does not match either
// shape.
func normalizeRunStartDate(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	const expanded = "2006-01-02T15:04:05-0700"
	if len(s) == 6 {
		if t, err := time.Parse("060102", s); err == nil {
			return t.Format(expanded)
		}
	}
	for _, layout := range []string{"2006-01-02T15:04:05Z07:00", "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC().Format(expanded)
		}
	}
	return ""
}

// Load reads RunInfo.xml from runDir, then whichever of
// RunParameters.xml/runParameters.xml is present, then whichever of
// <intensitiesDir>/config.xml or <intensitiesDir>/BaseCalls/config.xml is
// present, and returns the merged Info: each source only fills fields
// the previous ones left unset. It fails with ErrMissingRunStartDate if
// no source carries a run start date, and with ErrNoCycleRange if none
// declares a read structure.
func Load(ctx context.Context, runDir, intensitiesDir string) (*Info, error) {
	info, err := ReadRunInfo(ctx, joinPath(runDir, "RunInfo.xml"))
	if err != nil {
		return nil, err
	}
	for _, name := range []string{"RunParameters.xml", "runParameters.xml"} {
		path := joinPath(runDir, name)
		if !exists(ctx, path) {
			continue
		}
		if err := ReadRunParameters(ctx, path, info); err != nil {
			return nil, err
		}
		break
	}
	if intensitiesDir != "" {
		for _, path := range []string{joinPath(intensitiesDir, "config.xml"), joinPath(intensitiesDir, "BaseCalls/config.xml")} {
			if !exists(ctx, path) {
				continue
			}
			if err := ReadConfigXML(ctx, path, info); err != nil {
				return nil, err
			}
		}
	}
	if len(info.Reads) == 0 {
		return nil, errors.E(ErrNoCycleRange, runDir)
	}
	if info.RunStartDate == "" {
		return nil, errors.E(ErrMissingRunStartDate, runDir)
	}
	return info, nil
}

func joinPath(dir, name string) string {
	if strings.HasSuffix(dir, "/") {
		return dir + name
	}
	return dir + "/" + name
}

func exists(ctx context.Context, path string) bool {
	f, err := file.Open(ctx, path)
	if err != nil {
		return false
	}
	f.Close(ctx)
	return true
}

func readAll(ctx context.Context, path string) ([]byte, error) {
	f, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(err, "runinfo: open", path)
	}
	defer f.Close(ctx)
	data, err := ioutil.ReadAll(f.Reader(ctx))
	if err != nil {
		return nil, errors.E(err, "runinfo: read", path)
	}
	return data, nil
}
