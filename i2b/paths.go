package i2b

import (
	"context"
	"fmt"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
)

func joinDir(dir, name string) string {
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

func laneDir(base string, lane int) string {
	return joinDir(base, fmt.Sprintf("L%03d", lane))
}

// positionFilePath locates a tile's position file, trying the three
// known extensions in the order a modern instrument is most likely to
// produce them.
func positionFilePath(ctx context.Context, opts *Opts, tile int) (string, error) {
	dir := laneDir(opts.Intensities, opts.Lane)
	for _, suffix := range []string{".clocs", ".locs", "_pos.txt"} {
		path := joinDir(dir, fmt.Sprintf("s_%d_%d%s", opts.Lane, tile, suffix))
		if exists(ctx, path) {
			return path, nil
		}
	}
	return "", errors.E(ErrTileNotFound, fmt.Sprintf("no position file for tile %d", tile), dir)
}

// filterFilePath locates a tile's .filter file.
func filterFilePath(opts *Opts, tile int) string {
	dir := laneDir(opts.BaseCalls, opts.Lane)
	return joinDir(dir, fmt.Sprintf("s_%d_%d.filter", opts.Lane, tile))
}

// cycleDir is the per-cycle basecall directory, e.g. BaseCalls/L001/C1.1.
func cycleDir(opts *Opts, cycle int) string {
	return joinDir(laneDir(opts.BaseCalls, opts.Lane), fmt.Sprintf("C%d.1", cycle))
}

// bclFilePath locates a tile's basecall file at cycle, trying the three
// per-tile encodings before falling back to a CBCL file shared by every
// tile on the same surface.
func bclFilePath(ctx context.Context, opts *Opts, tile, cycle int) (string, error) {
	dir := cycleDir(opts, cycle)
	for _, suffix := range []string{".bcl", ".bcl.gz", ".bcl.bgzf"} {
		path := joinDir(dir, fmt.Sprintf("s_%d_%d%s", opts.Lane, tile, suffix))
		if exists(ctx, path) {
			return path, nil
		}
	}
	surface := tile / 1000
	if tile >= 10000 {
		// Five-digit tile numbers encode surface*10000 + section*1000 +
		// swath*100 + tile, so the surface digit sits one place further left.
		surface = tile / 10000
	}
	cbclName := fmt.Sprintf("L%03d_%d.cbcl", opts.Lane, surface)
	for _, cbclPath := range []string{joinDir(dir, cbclName), joinDir(laneDir(opts.BaseCalls, opts.Lane), cbclName)} {
		if exists(ctx, cbclPath) {
			return cbclPath, nil
		}
	}
	return "", errors.E(ErrTileNotFound, fmt.Sprintf("no basecall file for tile %d cycle %d", tile, cycle), dir)
}
