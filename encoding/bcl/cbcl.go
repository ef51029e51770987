package bcl

import (
	"bytes"
	"compress/zlib"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"io/ioutil"

	"github.com/grailbio/base/errors"
)

// cbclHeader is the fixed and variable-length preamble of a .cbcl file. A
// single CBCL file covers one surface's worth of tiles at one cycle; each
// tile's compressed block is located by walking tileTable in order and
// accumulating Compressed byte counts starting at HeaderSize.
type cbclHeader struct {
	Version     uint16
	HeaderSize  uint32
	BitsPerBase byte
	BitsPerQual byte
	Bins        []qualityBin
	Tiles       []cbclTileEntry
	PFFlag      byte // 1: file stores passing clusters only. 0: stores every cluster.
}

type qualityBin struct {
	Bin   uint32
	Score uint32
}

// cbclTileEntry is one tile's entry in a CBCL file's tile table.
type cbclTileEntry struct {
	Tile         int
	NumClusters  int
	Uncompressed uint32
	Compressed   uint32
}

func readCBCLHeader(r io.Reader) (*cbclHeader, error) {
	h := &cbclHeader{}
	if err := binary.Read(r, binary.LittleEndian, &h.Version); err != nil {
		return nil, errors.E(ErrTruncatedFile, "cbcl version", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &h.HeaderSize); err != nil {
		return nil, errors.E(ErrTruncatedFile, "cbcl header size", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &h.BitsPerBase); err != nil {
		return nil, errors.E(ErrTruncatedFile, "cbcl bits per base", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &h.BitsPerQual); err != nil {
		return nil, errors.E(ErrTruncatedFile, "cbcl bits per qual", err)
	}
	if h.BitsPerBase != 2 || h.BitsPerQual != 2 {
		return nil, errors.E(fmt.Sprintf("cbcl: unsupported bits_per_base=%d bits_per_qual=%d", h.BitsPerBase, h.BitsPerQual))
	}
	var nbins uint32
	if err := binary.Read(r, binary.LittleEndian, &nbins); err != nil {
		return nil, errors.E(ErrTruncatedFile, "cbcl bin count", err)
	}
	h.Bins = make([]qualityBin, nbins)
	for i := range h.Bins {
		if err := binary.Read(r, binary.LittleEndian, &h.Bins[i].Bin); err != nil {
			return nil, errors.E(ErrTruncatedFile, "cbcl bin table", err)
		}
		if err := binary.Read(r, binary.LittleEndian, &h.Bins[i].Score); err != nil {
			return nil, errors.E(ErrTruncatedFile, "cbcl bin table", err)
		}
	}
	var ntiles uint32
	if err := binary.Read(r, binary.LittleEndian, &ntiles); err != nil {
		return nil, errors.E(ErrTruncatedFile, "cbcl tile count", err)
	}
	h.Tiles = make([]cbclTileEntry, ntiles)
	for i := range h.Tiles {
		var tile, nclusters, uncompressed, compressed uint32
		if err := binary.Read(r, binary.LittleEndian, &tile); err != nil {
			return nil, errors.E(ErrTruncatedFile, "cbcl tile table", err)
		}
		if err := binary.Read(r, binary.LittleEndian, &nclusters); err != nil {
			return nil, errors.E(ErrTruncatedFile, "cbcl tile table", err)
		}
		if err := binary.Read(r, binary.LittleEndian, &uncompressed); err != nil {
			return nil, errors.E(ErrTruncatedFile, "cbcl tile table", err)
		}
		if err := binary.Read(r, binary.LittleEndian, &compressed); err != nil {
			return nil, errors.E(ErrTruncatedFile, "cbcl tile table", err)
		}
		h.Tiles[i] = cbclTileEntry{Tile: int(tile), NumClusters: int(nclusters), Uncompressed: uncompressed, Compressed: compressed}
	}
	if err := binary.Read(r, binary.LittleEndian, &h.PFFlag); err != nil {
		return nil, errors.E(ErrTruncatedFile, "cbcl pf flag", err)
	}
	return h, nil
}

// Surface reports the surface number (1 or 2) that this CBCL file's tiles
// belong to, read from the leading digit of the first tile table entry.
// Every tile in a CBCL file shares the same surface.
func (r *Reader) Surface() (int, error) {
	if r.cbclHeader == nil || len(r.cbclHeader.Tiles) == 0 {
		return 0, errors.E("bcl: no tiles", r.path)
	}
	surface := r.cbclHeader.Tiles[0].Tile
	for surface >= 10 {
		surface /= 10
	}
	return surface, nil
}

// HasTile reports whether this CBCL file's tile table contains an entry
// for tile.
func (r *Reader) HasTile(tile int) bool {
	for _, e := range r.cbclHeader.Tiles {
		if e.Tile == tile {
			return true
		}
	}
	return false
}

// PFFlag reports whether this file stores only pass-filter clusters (1)
// or every cluster (0).
func (r *Reader) PFFlag() bool {
	return r.cbclHeader.PFFlag == 1
}

// TileCalls decodes tile's base calls, in position-file order. filterBits
// holds the tile's full pass-filter bitmap, one entry per cluster; its
// length is the authoritative total cluster count for the tile, since a
// CBCL file written with PFFlag set records only passing clusters and so
// cannot report the total on its own.
//
// The returned slice always has len(filterBits) entries. A cluster whose
// filter bit is false decodes to {Base: 'N', Qual: 0} whenever the file
// has no stored record for it (PFFlag set); this is a physical property
// of the format, not a filtering choice by the caller, so the caller is
// responsible for dropping or keeping such entries downstream.
//
// A CBCL file stores exactly one surface's tiles. A tile whose surface
// does not match this file is not an error: TileCalls returns (nil, nil)
// and the caller treats it as "no data from this file."
func (r *Reader) TileCalls(ctx context.Context, tile int, filterBits []bool) ([]Call, error) {
	var entry *cbclTileEntry
	offset := int64(r.cbclHeader.HeaderSize)
	for i := range r.cbclHeader.Tiles {
		t := &r.cbclHeader.Tiles[i]
		if t.Tile == tile {
			entry = t
			break
		}
		offset += int64(t.Compressed)
	}
	if entry == nil {
		return nil, nil
	}

	if _, err := r.body.Seek(offset, io.SeekStart); err != nil {
		return nil, errors.E(err, "bcl: seek", r.path)
	}
	compressed := make([]byte, entry.Compressed)
	if _, err := io.ReadFull(r.body, compressed); err != nil {
		return nil, errors.E(ErrTruncatedFile, fmt.Sprintf("cbcl tile %d body", tile), r.path)
	}
	zr, err := zlib.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, errors.E(err, fmt.Sprintf("cbcl tile %d inflate", tile), r.path)
	}
	defer zr.Close()
	raw, err := ioutil.ReadAll(zr)
	if err != nil {
		return nil, errors.E(err, fmt.Sprintf("cbcl tile %d inflate", tile), r.path)
	}
	if uint32(len(raw)) != entry.Uncompressed {
		return nil, errors.E(ErrTruncatedFile, fmt.Sprintf("cbcl tile %d: expected %d uncompressed bytes, got %d", tile, entry.Uncompressed, len(raw)), r.path)
	}

	calls := make([]Call, len(filterBits))
	stored := 0
	for i, pass := range filterBits {
		storeThisCluster := pass || !r.PFFlag()
		if !storeThisCluster {
			calls[i] = Call{Base: 'N', Qual: 0}
			continue
		}
		byteIdx := stored / 2
		if byteIdx >= len(raw) {
			return nil, errors.E(ErrTruncatedFile, fmt.Sprintf("cbcl tile %d: ran out of packed bytes at cluster %d", tile, i), r.path)
		}
		b := raw[byteIdx]
		var packed byte
		if stored%2 == 0 {
			packed = b & 0x0f
		} else {
			packed = (b >> 4) & 0x0f
		}
		stored++
		qbin := (packed >> 2) & 0x3
		baseIdx := packed & 0x3
		if qbin == 0 {
			calls[i] = Call{Base: 'N', Qual: 0}
		} else {
			calls[i] = Call{Base: baseLetters[baseIdx], Qual: byte(r.resolveBin(qbin))}
		}
	}
	if entry.NumClusters != stored {
		return nil, errors.E(ErrTruncatedFile, fmt.Sprintf("cbcl tile %d: tile table declares %d stored clusters, filter implies %d", tile, entry.NumClusters, stored), r.path)
	}
	return calls, nil
}

func (r *Reader) resolveBin(qbin byte) uint32 {
	for _, b := range r.cbclHeader.Bins {
		if b.Bin == uint32(qbin) {
			return b.Score
		}
	}
	return uint32(qbin)
}
