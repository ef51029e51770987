package i2b

import (
	"context"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/sam"
)

// Writer wraps the single BAM output stream. bam.Writer is not safe for
// concurrent use, so every record passed to Write must come from the
// single writer goroutine driven by Run.
type Writer struct {
	out    file.File
	bam    *bam.Writer
	ctx    context.Context
	closed bool
}

// NewWriter opens opts.OutputPath and prepares it to receive records
// under header. opts.OutputFormat must already have been validated to
// "bam" by Validate.
func NewWriter(ctx context.Context, opts *Opts, header *sam.Header) (*Writer, error) {
	if opts.OutputFormat != "bam" {
		return nil, errors.E(ErrWriteFailure, "unsupported output format "+opts.OutputFormat)
	}
	out, err := file.Create(ctx, opts.OutputPath)
	if err != nil {
		return nil, errors.E(err, "i2b: create output", opts.OutputPath)
	}
	parallelism := opts.Parallelism
	if parallelism < 1 {
		parallelism = 1
	}
	bw, err := bam.NewWriterLevel(out.Writer(ctx), header, opts.Compression, parallelism)
	if err != nil {
		out.Close(ctx)
		return nil, errors.E(err, "i2b: create bam writer", opts.OutputPath)
	}
	return &Writer{out: out, bam: bw, ctx: ctx}, nil
}

// Write appends a single record to the output stream.
func (w *Writer) Write(r *sam.Record) error {
	if err := w.bam.Write(r); err != nil {
		return errors.E(ErrWriteFailure, err)
	}
	return nil
}

// Close flushes and closes the BAM stream and the underlying file. It is
// safe to call more than once.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.bam.Close(); err != nil {
		w.out.Close(w.ctx)
		return errors.E(ErrWriteFailure, err)
	}
	return w.out.Close(w.ctx)
}
