package locs

import (
	"bufio"
	"context"
	"encoding/binary"
	goerrors "errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
)

var (
	// ErrUnknownFormat is returned when a path's extension does not match
	// any known position-file format.
	ErrUnknownFormat = goerrors.New("locs: unknown position file format")
	// ErrBadHeader is returned when a "_pos.txt" line does not hold
	// exactly two fields. A short binary header is reported as
	// ErrTruncatedFile.
	ErrBadHeader = goerrors.New("locs: malformed header")
	// ErrTruncatedFile is returned when a position file ends before its
	// declared cluster count is satisfied.
	ErrTruncatedFile = goerrors.New("locs: truncated file")
)

// Position is a cluster's (x, y) pixel coordinate on its tile.
type Position struct {
	X, Y int
}

// Format identifies one of the three on-disk position-file encodings.
type Format int

const (
	// UnknownFormat is returned by DetectFormat when the path's extension
	// does not match any known position-file format.
	UnknownFormat Format = iota
	// POS is the ASCII "_pos.txt" format.
	POS
	// LOCS is the binary ".locs" format.
	LOCS
	// CLOCS is the binary ".clocs" format.
	CLOCS
)

// DetectFormat infers the position-file format from path's extension.
func DetectFormat(path string) Format {
	switch {
	case strings.HasSuffix(path, ".clocs"):
		return CLOCS
	case strings.HasSuffix(path, ".locs"):
		return LOCS
	case strings.HasSuffix(path, "_pos.txt"), strings.HasSuffix(path, ".txt"):
		return POS
	default:
		return UnknownFormat
	}
}

// Reader decodes a single tile's position file. It is not safe for
// concurrent use, nor for sharing across tiles: per spec, each tile job
// owns its own Reader instance.
type Reader struct {
	format Format
	path   string
	f      file.File
	r      io.Reader
}

// Open opens the position file at path, autodetecting its format from the
// file extension. The caller must call Close when done.
func Open(ctx context.Context, path string) (*Reader, error) {
	format := DetectFormat(path)
	if format == UnknownFormat {
		return nil, errors.E(ErrUnknownFormat, path)
	}
	f, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(err, "locs: open", path)
	}
	return &Reader{format: format, path: path, f: f, r: f.Reader(ctx)}, nil
}

// Close releases the underlying file.
func (r *Reader) Close(ctx context.Context) error {
	return r.f.Close(ctx)
}

// Load reads every cluster position from the file. If filterBits is
// non-nil, only positions whose corresponding bit is true are retained, in
// filtered order; len(filterBits) must equal the number of clusters in the
// file.
func (r *Reader) Load(filterBits []bool) ([]Position, error) {
	switch r.format {
	case POS:
		return r.loadPOS(filterBits)
	case LOCS:
		return r.loadLOCS(filterBits)
	case CLOCS:
		return r.loadCLOCS(filterBits)
	default:
		return nil, errors.E(ErrUnknownFormat, r.path)
	}
}

// round implements the 0.5-biased truncation convention used throughout
// Illumina position decoding: (int)(10*v + 1000.5).
func round(v float64) int {
	return int(10*v + 1000.5)
}

func (r *Reader) loadPOS(filterBits []bool) ([]Position, error) {
	scanner := bufio.NewScanner(r.r)
	var positions []Position
	i := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, errors.E(ErrBadHeader, fmt.Sprintf("malformed pos.txt line %q", line), r.path)
		}
		fx, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return nil, errors.E(err, r.path)
		}
		fy, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, errors.E(err, r.path)
		}
		if filterBits == nil || (i < len(filterBits) && filterBits[i]) {
			positions = append(positions, Position{X: round(fx), Y: round(fy)})
		}
		i++
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.E(err, "locs: scan", r.path)
	}
	return positions, nil
}

func (r *Reader) loadLOCS(filterBits []bool) ([]Position, error) {
	var unused [8]byte
	if _, err := io.ReadFull(r.r, unused[:]); err != nil {
		return nil, truncated(r.path, "locs header", err)
	}
	var totalBlocks uint32
	if err := binary.Read(r.r, binary.LittleEndian, &totalBlocks); err != nil {
		return nil, truncated(r.path, "locs block count", err)
	}
	positions := make([]Position, 0, totalBlocks)
	var buf [8]byte
	for i := uint32(0); i < totalBlocks; i++ {
		if _, err := io.ReadFull(r.r, buf[:]); err != nil {
			return nil, truncated(r.path, fmt.Sprintf("locs cluster %d", i), err)
		}
		fx := math.Float32frombits(binary.LittleEndian.Uint32(buf[0:4]))
		fy := math.Float32frombits(binary.LittleEndian.Uint32(buf[4:8]))
		if filterBits == nil || (int(i) < len(filterBits) && filterBits[i]) {
			positions = append(positions, Position{X: round(float64(fx)), Y: round(float64(fy))})
		}
	}
	return positions, nil
}

const (
	clocsBlockSize     = 25
	clocsBlocksPerLine = 82
)

func (r *Reader) loadCLOCS(filterBits []bool) ([]Position, error) {
	var version byte
	if err := binary.Read(r.r, binary.LittleEndian, &version); err != nil {
		return nil, truncated(r.path, "clocs version", err)
	}
	var totalBlocks uint32
	if err := binary.Read(r.r, binary.LittleEndian, &totalBlocks); err != nil {
		return nil, truncated(r.path, "clocs block count", err)
	}
	var positions []Position
	clusterIdx := 0
	for b := 1; uint32(b) <= totalBlocks; b++ {
		var count byte
		if err := binary.Read(r.r, binary.LittleEndian, &count); err != nil {
			return nil, truncated(r.path, fmt.Sprintf("clocs block %d count", b), err)
		}
		baseX := clocsBlockSize * ((b - 1) % clocsBlocksPerLine)
		baseY := clocsBlockSize * ((b - 1) / clocsBlocksPerLine)
		for c := 0; c < int(count); c++ {
			var dxdy [2]byte
			if _, err := io.ReadFull(r.r, dxdy[:]); err != nil {
				return nil, truncated(r.path, fmt.Sprintf("clocs block %d cluster %d", b, c), err)
			}
			if filterBits == nil || (clusterIdx < len(filterBits) && filterBits[clusterIdx]) {
				positions = append(positions, Position{
					X: 10*baseX + int(dxdy[0]) + 1000,
					Y: 10*baseY + int(dxdy[1]) + 1000,
				})
			}
			clusterIdx++
		}
	}
	return positions, nil
}

func truncated(path, what string, err error) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return errors.E(ErrTruncatedFile, fmt.Sprintf("while reading %s", what), path)
	}
	return errors.E(err, path)
}
