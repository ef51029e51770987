// Package i2b converts an Illumina sequencer run directory into unaligned
// SAM/BAM records, one per cluster that passes the run's filters (two for
// paired-end reads). It reads cluster positions, pass-filter bitmaps, and
// basecalls tile by tile, and writes records through a bounded worker
// pool onto a single output stream.
package i2b
