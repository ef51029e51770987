package i2b

import goerrors "errors"

var (
	// ErrNoTiles is returned when the run metadata lists no tiles and
	// none can be computed from the flowcell layout. A --first-tile that
	// is not in the tile list is not this error: it yields an empty plan.
	ErrNoTiles = goerrors.New("i2b: no tiles selected")
	// ErrTileNotFound is returned when a planned tile's basecall data
	// cannot be located in the run directory.
	ErrTileNotFound = goerrors.New("i2b: tile not found")
	// ErrWriteFailure is returned when the output writer fails.
	ErrWriteFailure = goerrors.New("i2b: write failure")
	// ErrTruncatedFile is returned when a tile's position, filter, and
	// basecall files disagree on cluster count.
	ErrTruncatedFile = goerrors.New("i2b: cluster counts disagree")
)
