// Package bcl decodes Illumina basecall files: raw ".bcl" (MiSeq), gzipped
// ".bcl.gz" (HiSeqX), BGZF-wrapped ".bcl.bgzf" (NextSeq), and the packed,
// quality-binned ".cbcl" (NovaSeq). All four report the same thing, a base
// and a quality value per cluster at a single sequencing cycle, in the same
// per-cluster order as the tile's position and filter files.
package bcl
