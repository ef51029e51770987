package i2b

import (
	"sort"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/bambi/encoding/runinfo"
)

// ReadPlan is one read segment's place in the cycle-range plan: a
// contiguous physical cycle range (the C<n>.1 directory numbering) that
// is either sequenced as a template read or an index read.
type ReadPlan struct {
	Number        int
	FirstCycle    int // absolute, 1-based physical cycle directory number
	NumCycles     int
	IsIndexedRead bool
}

func (r ReadPlan) lastCycle() int { return r.FirstCycle + r.NumCycles - 1 }

// IndexGroup is the set of index read segments whose bases and qualities
// are concatenated into a single configured barcode/quality aux tag
// pair. It normally holds one segment; it holds two only when two
// cycle-adjacent index reads were merged because the caller configured
// at most one barcode tag (none configured means the single default BC).
type IndexGroup struct {
	Segments []ReadPlan
}

// Plan is the fully resolved set of tiles to convert and the read
// structure to apply to every cluster on them. An empty Tiles slice is
// not itself an error: it results when a --first-tile value is not
// present in the tile list, and yields zero output records rather than
// aborting the run.
type Plan struct {
	Tiles       []int
	Reads       []ReadPlan
	IndexGroups []IndexGroup
}

// BuildPlan resolves the tile list (explicit in RunInfo.xml, or computed
// from the flowcell layout), the read structure, and the index-read
// grouping, applying every selection and override opts requests.
func BuildPlan(info *runinfo.Info, opts *Opts) (*Plan, error) {
	tiles := info.Tiles
	if len(tiles) == 0 {
		tiles = computeTiles(info)
	}
	if len(tiles) == 0 {
		return nil, errors.E(ErrNoTiles)
	}
	sorted := append([]int(nil), tiles...)
	sort.Ints(sorted)

	selected, err := selectTiles(sorted, opts)
	if err != nil {
		return nil, err
	}

	reads, err := buildReadPlan(info, opts)
	if err != nil {
		return nil, err
	}

	return &Plan{Tiles: selected, Reads: reads, IndexGroups: groupIndexReads(reads, opts)}, nil
}

// selectTiles applies the --first-tile/--tile-limit subsetting rule. A
// first_tile that cannot be located in the sorted tile list is not
// fatal: selectTiles logs a warning and returns an empty slice.
func selectTiles(sorted []int, opts *Opts) ([]int, error) {
	firstTile := opts.FirstTile
	if firstTile == 0 && opts.TileLimit != 0 {
		firstTile = sorted[0]
	}
	if firstTile == 0 {
		return sorted, nil
	}
	idx := -1
	for i, t := range sorted {
		if t == firstTile {
			idx = i
			break
		}
	}
	if idx < 0 {
		log.Error.Printf("i2b: --first-tile %d is not in the tile list, no tiles selected", firstTile)
		return nil, nil
	}
	end := len(sorted)
	if opts.TileLimit > 0 && idx+opts.TileLimit < end {
		end = idx + opts.TileLimit
	}
	return sorted[idx:end], nil
}

// buildReadPlan builds the cycle-range plan from the command-line
// first/final cycle lists when given, else from the run metadata.
func buildReadPlan(info *runinfo.Info, opts *Opts) ([]ReadPlan, error) {
	reads, err := buildReadPlanFromMetadata(info)
	if err != nil {
		return nil, err
	}
	if len(opts.FirstCycle) == 0 && len(opts.FirstIndexCycle) == 0 {
		return reads, nil
	}
	return overrideReadPlan(reads, opts)
}

func buildReadPlanFromMetadata(info *runinfo.Info) ([]ReadPlan, error) {
	var reads []ReadPlan
	cycle := 1
	for _, r := range info.Reads {
		reads = append(reads, ReadPlan{
			Number:        r.Number,
			FirstCycle:    cycle,
			NumCycles:     r.NumCycles,
			IsIndexedRead: r.IsIndexedRead,
		})
		cycle += r.NumCycles
	}
	if len(reads) == 0 {
		return nil, errors.E(runinfo.ErrNoCycleRange)
	}
	return reads, nil
}

// overrideReadPlan replaces each segment's physical cycle range with the
// caller-supplied boundaries: --first-cycle/--final-cycle supply one
// pair per template read in metadata order, --first-index-cycle/
// --final-index-cycle one pair per index read. The read count and
// template/index assignment still come from metadata; only the cycle
// boundaries are overridden.
func overrideReadPlan(reads []ReadPlan, opts *Opts) ([]ReadPlan, error) {
	out := append([]ReadPlan(nil), reads...)
	templateIdx, indexIdx := 0, 0
	for i, r := range out {
		if r.IsIndexedRead {
			if indexIdx >= len(opts.FirstIndexCycle) {
				continue
			}
			if indexIdx >= len(opts.FinalIndexCycle) {
				return nil, errors.E("i2b: --first-index-cycle and --final-index-cycle must name the same number of reads")
			}
			first, last := opts.FirstIndexCycle[indexIdx], opts.FinalIndexCycle[indexIdx]
			out[i].FirstCycle, out[i].NumCycles = first, last-first+1
			indexIdx++
		} else {
			if templateIdx >= len(opts.FirstCycle) {
				continue
			}
			if templateIdx >= len(opts.FinalCycle) {
				return nil, errors.E("i2b: --first-cycle and --final-cycle must name the same number of reads")
			}
			first, last := opts.FirstCycle[templateIdx], opts.FinalCycle[templateIdx]
			out[i].FirstCycle, out[i].NumCycles = first, last-first+1
			templateIdx++
		}
	}
	return out, nil
}

// groupIndexReads decides how index reads feed configured barcode tags:
// one group per selected index read, except that two cycle-adjacent index reads merge into a single group
// when the caller configured at most one barcode tag.
func groupIndexReads(reads []ReadPlan, opts *Opts) []IndexGroup {
	var indexReads []ReadPlan
	for _, r := range reads {
		if r.IsIndexedRead {
			indexReads = append(indexReads, r)
		}
	}
	if len(opts.BCRead) > 0 {
		selected := make([]ReadPlan, 0, len(opts.BCRead))
		for _, n := range opts.BCRead {
			if n >= 1 && n <= len(indexReads) {
				selected = append(selected, indexReads[n-1])
			}
		}
		indexReads = selected
	}
	tagCount := len(opts.BarcodeTag)
	if tagCount == 0 {
		tagCount = 1
	}
	if len(indexReads) == 2 && tagCount == 1 && indexReads[1].FirstCycle == indexReads[0].lastCycle()+1 {
		return []IndexGroup{{Segments: indexReads}}
	}
	groups := make([]IndexGroup, len(indexReads))
	for i, r := range indexReads {
		groups[i] = IndexGroup{Segments: []ReadPlan{r}}
	}
	return groups
}

// TemplateReads returns the plan's non-indexed reads, in cycle order.
func (p *Plan) TemplateReads() []ReadPlan {
	var out []ReadPlan
	for _, r := range p.Reads {
		if !r.IsIndexedRead {
			out = append(out, r)
		}
	}
	return out
}

// IndexReads returns the plan's indexed reads, in cycle order.
func (p *Plan) IndexReads() []ReadPlan {
	var out []ReadPlan
	for _, r := range p.Reads {
		if r.IsIndexedRead {
			out = append(out, r)
		}
	}
	return out
}

// TotalCycles returns the total number of sequencing cycles covered by
// the plan's read structure.
func (p *Plan) TotalCycles() int {
	total := 0
	for _, r := range p.Reads {
		total += r.NumCycles
	}
	return total
}

// PhysicalCycles returns the sorted, deduplicated set of physical cycle
// numbers the plan's read segments require.
func (p *Plan) PhysicalCycles() []int {
	seen := make(map[int]bool)
	for _, r := range p.Reads {
		for c := r.FirstCycle; c <= r.lastCycle(); c++ {
			seen[c] = true
		}
	}
	cycles := make([]int, 0, len(seen))
	for c := range seen {
		cycles = append(cycles, c)
	}
	sort.Ints(cycles)
	return cycles
}

// computeTiles enumerates the tile grid from the flowcell layout when
// RunInfo.xml does not list tiles explicitly. Tile numbers follow the
// 4-digit surface*1000 + swath*100 + tile scheme, or, when RunInfo.xml
// declares TileNamingConvention="FiveDigit", the 5-digit
// surface*10000 + section*1000 + swath*100 + tile scheme.
func computeTiles(info *runinfo.Info) []int {
	var tiles []int
	if info.FiveDigitTiles {
		sections := info.SectionPerLane
		if sections < 1 {
			sections = 1
		}
		for s := 1; s <= info.SurfaceCount; s++ {
			for sec := 1; sec <= sections; sec++ {
				for w := 1; w <= info.SwathCount; w++ {
					for n := 1; n <= info.TileCount; n++ {
						tiles = append(tiles, s*10000+sec*1000+w*100+n)
					}
				}
			}
		}
		return tiles
	}
	for s := 1; s <= info.SurfaceCount; s++ {
		for w := 1; w <= info.SwathCount; w++ {
			for n := 1; n <= info.TileCount; n++ {
				tiles = append(tiles, s*1000+w*100+n)
			}
		}
	}
	return tiles
}
