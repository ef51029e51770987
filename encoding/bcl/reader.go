package bcl

import (
	"context"
	goerrors "errors"
	"fmt"
	"io"
	"io/ioutil"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/hts/bgzf"
	"github.com/klauspost/compress/gzip"
)

var (
	// ErrUnknownFormat is returned when a path's extension does not match
	// any known basecall file format.
	ErrUnknownFormat = goerrors.New("bcl: unknown basecall file format")
	// ErrTruncatedFile is returned when a basecall file ends before its
	// declared cluster count is satisfied, or its stored count disagrees
	// with an accompanying index.
	ErrTruncatedFile = goerrors.New("bcl: truncated file")
	// ErrTileNotFound names the case of a CBCL file whose tile table does
	// not list the requested tile. TileCalls does not return it: such a
	// tile yields (nil, nil), no data from that file.
	ErrTileNotFound = goerrors.New("bcl: tile not found")
)

// Call is one cluster's decoded base and quality at a single cycle.
type Call struct {
	Base byte // 'A', 'C', 'G', 'T', or 'N'
	Qual byte
}

var baseLetters = [4]byte{'A', 'C', 'G', 'T'}

// decodeByte unpacks a single raw basecall byte: the low two bits select
// the base, the upper six bits are the quality. A zero quality reports the
// base as 'N', matching the inverse invariant expected on output.
func decodeByte(b byte) Call {
	q := b >> 2
	if q == 0 {
		return Call{Base: 'N', Qual: 0}
	}
	return Call{Base: baseLetters[b&0x3], Qual: q}
}

// Format identifies one of the four on-disk basecall file encodings.
type Format int

const (
	// UnknownFormat is returned by DetectFormat when the path's extension
	// does not match any known basecall file format.
	UnknownFormat Format = iota
	// Raw is the uncompressed ".bcl" format (MiSeq).
	Raw
	// Gzip is the gzip-wrapped ".bcl.gz" format (HiSeqX).
	Gzip
	// BGZF is the BGZF-wrapped ".bcl.bgzf" format (NextSeq).
	BGZF
	// CBCL is the packed, quality-binned ".cbcl" format (NovaSeq).
	CBCL
)

// DetectFormat infers the basecall file format from path's extension.
func DetectFormat(path string) Format {
	switch {
	case strings.HasSuffix(path, ".cbcl"):
		return CBCL
	case strings.HasSuffix(path, ".bcl.bgzf"):
		return BGZF
	case strings.HasSuffix(path, ".bcl.gz"):
		return Gzip
	case strings.HasSuffix(path, ".bcl"):
		return Raw
	default:
		return UnknownFormat
	}
}

// Reader decodes one basecall file. Raw, Gzip, and BGZF files each cover a
// single tile at a single cycle; a CBCL file covers every tile of one
// surface at a single cycle, and is decoded through TileCalls instead of
// Calls. Not safe for concurrent use: per spec each tile job owns its own
// Reader instance.
type Reader struct {
	format Format
	path   string
	f      file.File

	// set lazily once the single-tile body has been decoded.
	calls []Call

	// CBCL-only state; see cbcl.go.
	cbclHeader *cbclHeader
	body       io.ReadSeeker
}

// Open opens the basecall file at path, autodetecting its format from the
// file extension. The caller must call Close when done.
func Open(ctx context.Context, path string) (*Reader, error) {
	format := DetectFormat(path)
	if format == UnknownFormat {
		return nil, errors.E(ErrUnknownFormat, path)
	}
	f, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(err, "bcl: open", path)
	}
	r := &Reader{format: format, path: path, f: f}
	if format == CBCL {
		header, err := readCBCLHeader(f.Reader(ctx))
		if err != nil {
			f.Close(ctx)
			return nil, err
		}
		r.cbclHeader = header
		rs, ok := f.Reader(ctx).(io.ReadSeeker)
		if !ok {
			f.Close(ctx)
			return nil, errors.E(fmt.Errorf("bcl: reader for %s does not support seeking", path))
		}
		r.body = rs
	}
	return r, nil
}

// Close releases the underlying file.
func (r *Reader) Close(ctx context.Context) error {
	return r.f.Close(ctx)
}

// Format reports the file's on-disk encoding.
func (r *Reader) Format() Format {
	return r.format
}

// Calls decodes and returns every cluster's base call, in file order. It
// is valid only for Raw, Gzip, and BGZF readers, which always store one
// entry per cluster regardless of pass-filter status.
func (r *Reader) Calls(ctx context.Context) ([]Call, error) {
	if r.format == CBCL {
		return nil, errors.E(fmt.Errorf("bcl: Calls called on a CBCL reader, use TileCalls"), r.path)
	}
	if r.calls != nil {
		return r.calls, nil
	}
	raw, err := r.readBody(ctx)
	if err != nil {
		return nil, err
	}
	calls, err := decodeBody(raw)
	if err != nil {
		return nil, errors.E(err, r.path)
	}
	r.calls = calls
	return calls, nil
}

func (r *Reader) readBody(ctx context.Context) ([]byte, error) {
	src := r.f.Reader(ctx)
	switch r.format {
	case Raw:
		raw, err := ioutil.ReadAll(src)
		if err != nil {
			return nil, errors.E(err, "bcl: read", r.path)
		}
		return raw, nil
	case Gzip:
		gz, err := gzip.NewReader(src)
		if err != nil {
			return nil, errors.E(err, "bcl: gzip header", r.path)
		}
		defer gz.Close()
		raw, err := ioutil.ReadAll(gz)
		if err != nil {
			return nil, errors.E(err, "bcl: gzip body", r.path)
		}
		return raw, nil
	case BGZF:
		bg, err := bgzf.NewReader(src, 1)
		if err != nil {
			return nil, errors.E(err, "bcl: bgzf header", r.path)
		}
		raw, err := ioutil.ReadAll(bg)
		if err != nil {
			return nil, errors.E(err, "bcl: bgzf body", r.path)
		}
		return raw, nil
	default:
		return nil, errors.E(ErrUnknownFormat, r.path)
	}
}

// decodeBody decodes a raw basecall body: a 4-byte little-endian cluster
// count followed by one byte per cluster.
func decodeBody(data []byte) ([]Call, error) {
	if len(data) < 4 {
		return nil, ErrTruncatedFile
	}
	count := le32(data[0:4])
	body := data[4:]
	if uint32(len(body)) < count {
		return nil, ErrTruncatedFile
	}
	calls := make([]Call, count)
	for i := uint32(0); i < count; i++ {
		calls[i] = decodeByte(body[i])
	}
	return calls, nil
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

// CheckBCI cross-checks a NextSeq ".bci" tile index against a decoded
// BGZF basecall file's cluster count, when the index is present alongside
// it. The .bci format is not required for decoding a .bcl.bgzf file (each
// tile's file is read sequentially start to end), but where present it
// gives an independent cluster count that the decoded body must match.
func CheckBCI(ctx context.Context, bciPath string, tile int, gotClusters int) error {
	f, err := file.Open(ctx, bciPath)
	if err != nil {
		if e, ok := err.(*errors.Error); ok && e.Kind == errors.NotExist {
			return nil
		}
		return errors.E(err, "bcl: open bci", bciPath)
	}
	defer f.Close(ctx)
	entries, err := readBCI(f.Reader(ctx))
	if err != nil {
		return errors.E(err, bciPath)
	}
	for _, e := range entries {
		if e.Tile == tile {
			if e.NumClusters != gotClusters {
				return errors.E(ErrTruncatedFile, fmt.Sprintf("bci reports %d clusters for tile %d, bcl body decoded %d", e.NumClusters, tile, gotClusters), bciPath)
			}
			return nil
		}
	}
	return nil
}

// bciEntry is one tile's record in a ".bci" index: the tile number and the
// cluster count the accompanying .bcl.bgzf file stores for it.
type bciEntry struct {
	Tile        int
	NumClusters int
}

// readBCI parses a ".bci" file: a sequence of (tile uint32, nclusters
// uint32) little-endian pairs, one per tile, to EOF.
func readBCI(r io.Reader) ([]bciEntry, error) {
	var entries []bciEntry
	var buf [8]byte
	for {
		_, err := io.ReadFull(r, buf[:])
		if err == io.EOF {
			return entries, nil
		}
		if err != nil {
			return nil, errors.E(ErrTruncatedFile, "bci", err)
		}
		entries = append(entries, bciEntry{
			Tile:        int(le32(buf[0:4])),
			NumClusters: int(le32(buf[4:8])),
		})
	}
}
