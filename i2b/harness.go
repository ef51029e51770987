package i2b

import (
	"context"
	"sync"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/bambi/encoding/runinfo"
	"github.com/grailbio/hts/sam"
)

// tileResult is one completed tile's records, in cluster order. Records
// from two different tiles may be written in any relative order, but a
// paired-end cluster's two records must stay adjacent: the queue below
// carries whole tiles, never splits a tile's records across entries.
type tileResult struct {
	tile    int
	records []*sam.Record
}

// Run drives the full conversion: it dispatches one job per planned
// tile to a bounded pool of worker goroutines, each of which decodes and
// assembles that tile's records, and a single writer goroutine drains
// completed tiles in the order workers finish them and writes them to w.
//
// Any error from a worker or from the writer is fatal: Run cancels the
// remaining work and returns the first error seen, matching how
// markduplicates.generateBAM treats a single shard failure as fatal to
// the whole run.
func Run(ctx context.Context, opts *Opts, info *runinfo.Info, plan *Plan, w *Writer) error {
	const queueCapacity = 5000

	tileCh := make(chan int, len(plan.Tiles))
	for _, t := range plan.Tiles {
		tileCh <- t
	}
	close(tileCh)

	resultCh := make(chan tileResult, queueCapacity/len(plan.Reads)+1)
	var errOnce errors.Once
	var wg sync.WaitGroup

	workers := opts.workerCount()
	for wi := 0; wi < workers; wi++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for tile := range tileCh {
				if errOnce.Err() != nil {
					return
				}
				records, err := AssembleTile(ctx, tile, opts, info, plan)
				if err != nil {
					log.Error.Printf("worker %d: tile %d: %v", worker, tile, err)
					errOnce.Set(err)
					return
				}
				resultCh <- tileResult{tile: tile, records: records}
			}
		}(wi)
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for result := range resultCh {
			for _, r := range result.records {
				if err := w.Write(r); err != nil {
					errOnce.Set(errors.E(ErrWriteFailure, err))
					sam.PutInFreePool(r)
					continue
				}
				sam.PutInFreePool(r)
			}
			if opts.Verbose {
				log.Debug.Printf("tile %d: wrote %d records", result.tile, len(result.records))
			}
		}
	}()

	wg.Wait()
	close(resultCh)
	<-writerDone

	return errOnce.Err()
}
