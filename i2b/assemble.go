package i2b

import (
	"context"
	"fmt"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/bambi/encoding/bcl"
	"github.com/grailbio/bambi/encoding/filter"
	"github.com/grailbio/bambi/encoding/locs"
	"github.com/grailbio/bambi/encoding/runinfo"
	"github.com/grailbio/hts/sam"
)

var rgTag = sam.Tag{'R', 'G'}

const (
	defaultBarcodeTag = "BC"
	defaultQualityTag = "QT"
)

// AssembleTile reads tile's position, filter, and basecall files and
// builds one unaligned sam.Record per emitted cluster (two, consecutive,
// for a paired-end run). Clusters that failed the platform's filter are
// dropped unless opts.NoFilter is set, in which case they are emitted
// flagged QCFail.
func AssembleTile(ctx context.Context, tile int, opts *Opts, info *runinfo.Info, plan *Plan) ([]*sam.Record, error) {
	posPath, err := positionFilePath(ctx, opts, tile)
	if err != nil {
		return nil, err
	}
	posReader, err := locs.Open(ctx, posPath)
	if err != nil {
		return nil, err
	}
	positions, err := posReader.Load(nil)
	posReader.Close(ctx)
	if err != nil {
		return nil, err
	}

	filterBits, err := filter.LoadAll(ctx, filterFilePath(opts, tile))
	if err != nil {
		return nil, err
	}
	if len(positions) != len(filterBits) {
		return nil, errors.E(ErrTruncatedFile, fmt.Sprintf("tile %d: %d positions, %d filter bits", tile, len(positions), len(filterBits)))
	}

	physicalCycles := plan.PhysicalCycles()
	calls := make(map[int][]bcl.Call, len(physicalCycles))
	for _, physicalCycle := range physicalCycles {
		c, err := readCycle(ctx, opts, tile, physicalCycle, filterBits)
		if err != nil {
			return nil, err
		}
		calls[physicalCycle] = c
	}

	templateReads := plan.TemplateReads()
	if len(templateReads) != 1 && len(templateReads) != 2 {
		return nil, errors.E(fmt.Sprintf("i2b: unsupported read structure: %d template reads", len(templateReads)))
	}

	var records []*sam.Record
	for i, pos := range positions {
		pass := filterBits[i]
		if !pass && !opts.NoFilter {
			continue
		}
		name := buildReadName(info, opts, tile, pos)
		tags := buildIndexTags(calls, plan.IndexGroups, opts, i)

		paired := len(templateReads) == 2
		rgID := readGroupID(opts)
		for readIdx, rp := range templateReads {
			r := buildRecord(name, calls, rp, i, pass, rgID, tags, paired, readIdx == 0)
			records = append(records, r)
		}
	}
	return records, nil
}

// readCycle decodes tile's basecalls at cycle, dispatching to the
// appropriate bcl.Reader method for the file's format. A CBCL file that
// has no entry for tile (the surface-mismatch case) yields an
// all-N/zero-quality run rather than an error: the file simply carries
// no data for this tile.
func readCycle(ctx context.Context, opts *Opts, tile, cycle int, filterBits []bool) ([]bcl.Call, error) {
	path, err := bclFilePath(ctx, opts, tile, cycle)
	if err != nil {
		return nil, err
	}
	r, err := bcl.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer r.Close(ctx)

	var calls []bcl.Call
	if r.Format() == bcl.CBCL {
		calls, err = r.TileCalls(ctx, tile, filterBits)
	} else {
		calls, err = r.Calls(ctx)
	}
	if err != nil {
		return nil, err
	}
	if calls == nil {
		calls = make([]bcl.Call, len(filterBits))
		for i := range calls {
			calls[i] = bcl.Call{Base: 'N', Qual: 0}
		}
	}
	if len(calls) != len(filterBits) {
		return nil, errors.E(ErrTruncatedFile, fmt.Sprintf("tile %d cycle %d: %d calls, %d filter bits", tile, cycle, len(calls), len(filterBits)))
	}
	return calls, nil
}

func buildReadName(info *runinfo.Info, opts *Opts, tile int, pos locs.Position) string {
	runID := info.RunIdentifier()
	name := fmt.Sprintf("%s:%d:%d:%d:%d", runID, opts.Lane, tile, pos.X, pos.Y)
	if len(name) > 127 {
		name = name[:127]
	}
	return name
}

// indexTag is one resolved barcode/quality aux tag pair for a cluster.
type indexTag struct {
	barcodeTag sam.Tag
	qualityTag sam.Tag
	barcode    string
	quality    string
}

// buildIndexTags resolves every configured index group into its aux tag
// pair for cluster i: the group's bases/qualities, joined across
// segments with '-'/' ' unless opts.NoIndexSeparator is set.
func buildIndexTags(calls map[int][]bcl.Call, groups []IndexGroup, opts *Opts, i int) []indexTag {
	tags := make([]indexTag, 0, len(groups))
	for g, group := range groups {
		barcodeTag := sam.Tag{defaultBarcodeTag[0], defaultBarcodeTag[1]}
		qualityTag := sam.Tag{defaultQualityTag[0], defaultQualityTag[1]}
		if g < len(opts.BarcodeTag) {
			barcodeTag = sam.Tag{opts.BarcodeTag[g][0], opts.BarcodeTag[g][1]}
		}
		if g < len(opts.QualityTag) {
			qualityTag = sam.Tag{opts.QualityTag[g][0], opts.QualityTag[g][1]}
		}
		bases, quals := concatIndexGroup(calls, group, opts.NoIndexSeparator, i)
		if bases == "" {
			continue
		}
		tags = append(tags, indexTag{barcodeTag: barcodeTag, qualityTag: qualityTag, barcode: bases, quality: quals})
	}
	return tags
}

// concatIndexGroup concatenates one index group's bases and qualities
// (ASCII-encoded, Phred+33) for cluster i.
func concatIndexGroup(calls map[int][]bcl.Call, group IndexGroup, noSeparator bool, i int) (string, string) {
	var bases, quals []byte
	for si, rp := range group.Segments {
		if si > 0 && !noSeparator {
			bases = append(bases, '-')
			quals = append(quals, ' ')
		}
		for c := rp.FirstCycle; c <= rp.lastCycle(); c++ {
			call := calls[c][i]
			bases = append(bases, call.Base)
			quals = append(quals, call.Qual+33)
		}
	}
	return string(bases), string(quals)
}

func buildRecord(name string, calls map[int][]bcl.Call, rp ReadPlan, clusterIdx int, pass bool, rgID string, tags []indexTag, paired, isRead1 bool) *sam.Record {
	r := sam.GetFromFreePool()
	r.Name = name
	r.Ref = nil
	r.Pos = -1
	r.MateRef = nil
	r.MatePos = -1

	flags := sam.Unmapped | sam.MateUnmapped
	if paired {
		flags |= sam.Paired
		if isRead1 {
			flags |= sam.Read1
		} else {
			flags |= sam.Read2
		}
	}
	if !pass {
		flags |= sam.QCFail
	}
	r.Flags = flags

	bases := make([]byte, rp.NumCycles)
	quals := make([]byte, rp.NumCycles)
	for i := 0; i < rp.NumCycles; i++ {
		call := calls[rp.FirstCycle+i][clusterIdx]
		bases[i] = call.Base
		quals[i] = call.Qual
	}
	r.Seq = sam.NewSeq(bases)
	r.Qual = quals

	r.AuxFields = append(r.AuxFields, mustAux(rgTag, rgID))
	for _, t := range tags {
		r.AuxFields = append(r.AuxFields, mustAux(t.barcodeTag, t.barcode))
		r.AuxFields = append(r.AuxFields, mustAux(t.qualityTag, t.quality))
	}
	return r
}

func mustAux(tag sam.Tag, val interface{}) sam.Aux {
	aux, err := sam.NewAux(tag, val)
	if err != nil {
		panic(fmt.Sprintf("i2b: building %s tag: %v", tag, err))
	}
	return aux
}
