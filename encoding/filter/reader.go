package filter

import (
	"context"
	goerrors "errors"
	"fmt"
	"io"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
)

var (
	// ErrShortHeader is returned when a filter file is shorter than its
	// 12-byte fixed header.
	ErrShortHeader = goerrors.New("filter: short header")
)

// Reader decodes a single tile's .filter file sequentially, and supports
// random access via Seek. Not safe for concurrent use; per spec each tile
// job owns its own Reader instance.
type Reader struct {
	path          string
	f             file.File
	r             io.ReadSeeker
	totalClusters int
	dataOffset    int64
	next          int
}

const headerSize = 12 // 4 bytes empty + 4 bytes version + 4 bytes total_clusters

// Open opens path and reads its fixed header.
func Open(ctx context.Context, path string) (*Reader, error) {
	f, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(err, "filter: open", path)
	}
	rs, ok := f.Reader(ctx).(io.ReadSeeker)
	if !ok {
		return nil, errors.E(fmt.Errorf("filter: reader for %s does not support seeking", path))
	}
	var header [headerSize]byte
	if _, err := io.ReadFull(rs, header[:]); err != nil {
		f.Close(ctx)
		return nil, errors.E(ErrShortHeader, path)
	}
	total := int(le32(header[8:12]))
	return &Reader{
		path:          path,
		f:             f,
		r:             rs,
		totalClusters: total,
		dataOffset:    headerSize,
	}, nil
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

// Close releases the underlying file.
func (r *Reader) Close(ctx context.Context) error {
	return r.f.Close(ctx)
}

// TotalClusters returns the number of clusters recorded in the header.
func (r *Reader) TotalClusters() int {
	return r.totalClusters
}

// Next returns the pass-filter bit for the next cluster, and advances the
// cursor. ok is false once every cluster has been consumed.
func (r *Reader) Next() (pass bool, ok bool, err error) {
	if r.next >= r.totalClusters {
		return false, false, nil
	}
	var b [1]byte
	if _, err := io.ReadFull(r.r, b[:]); err != nil {
		return false, false, errors.E(err, fmt.Sprintf("filter: truncated at cluster %d", r.next), r.path)
	}
	r.next++
	return b[0]&1 == 1, true, nil
}

// Seek repositions the cursor to the given 0-based cluster index.
func (r *Reader) Seek(clusterIndex int) error {
	if _, err := r.r.Seek(r.dataOffset+int64(clusterIndex), io.SeekStart); err != nil {
		return errors.E(err, "filter: seek", r.path)
	}
	r.next = clusterIndex
	return nil
}

// LoadAll reads the entire pass-filter bitmap into memory, for concurrent
// access by the position reader and the per-cluster path of a CBCL reader.
func LoadAll(ctx context.Context, path string) ([]bool, error) {
	r, err := Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer r.Close(ctx)
	bits := make([]bool, r.totalClusters)
	for i := range bits {
		pass, ok, err := r.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errors.E(ErrShortHeader, fmt.Sprintf("filter: expected %d clusters, got %d", r.totalClusters, i), path)
		}
		bits[i] = pass
	}
	return bits, nil
}
