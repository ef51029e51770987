// Package filter decodes Illumina ".filter" files: one pass/fail bit per
// cluster on a tile, in the same per-cluster order as the tile's position
// and BCL files.
package filter
