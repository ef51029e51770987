// Package locs decodes Illumina cluster-position files: ASCII "_pos.txt",
// binary ".locs", and binary ".clocs". All three formats report the same
// thing, an (x, y) pixel coordinate per cluster on a tile, in the same
// per-cluster order as the tile's filter and BCL files.
package locs
