package cache

import (
	"context"

	"github.com/cuemby/geocache/pkg/storage"
	"github.com/cuemby/geocache/pkg/types"
)

// Tee is the pass-through streaming writer from spec.md §4.5 and the
// "Pass-through streaming writer" design note (§9): it reads records
// from in, writes each one before yielding it to fn (write-before-
// yield, so a downstream consumer never observes a record the
// database did not persist), and commits every batchSize records. A
// zero or negative batchSize falls back to DefaultBatchSize.
//
// On context cancellation, Tee commits whatever has been written in
// the current transaction and returns ctx.Err(). Cancellation is
// checked only between records, so it never drops a record already
// pulled from in. If a write or fn fails, the records written so far
// in the current batch are committed and that error is returned.
func (c *Cache) Tee(ctx context.Context, in <-chan DatasetRecord, batchSize int, fn func(types.Dataset) error) error {
	if err := c.requireWritable(); err != nil {
		return err
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	for {
		wtx, err := c.engine.BeginWrite(storage.DS)
		if err != nil {
			return err
		}

		n, state, err := c.teeBatch(ctx, wtx, in, batchSize, fn)
		if err != nil {
			if n == 0 {
				wtx.Rollback()
			} else if cerr := wtx.Commit(); cerr != nil {
				return cerr
			}
			return err
		}

		if n == 0 {
			wtx.Rollback()
		} else if err := wtx.Commit(); err != nil {
			return err
		} else {
			c.logger.Debug().Str("sub_db", storage.DS).Int("count", n).Msg("tee batch committed")
		}

		switch state {
		case teeExhausted:
			return c.Sync()
		case teeCancelled:
			if err := c.Sync(); err != nil {
				return err
			}
			return ctx.Err()
		}
	}
}

type teeState int

const (
	teeRunning teeState = iota
	teeExhausted
	teeCancelled
)

// teeBatch fills one transaction with up to batchSize records, write-
// before-yield, and reports how many it wrote and why it stopped.
func (c *Cache) teeBatch(ctx context.Context, wtx *storage.WriteTx, in <-chan DatasetRecord, batchSize int, fn func(types.Dataset) error) (int, teeState, error) {
	n := 0
	for n < batchSize {
		select {
		case <-ctx.Done():
			return n, teeCancelled, nil
		case rec, ok := <-in:
			if !ok {
				return n, teeExhausted, nil
			}
			if err := c.putDatasetTx(wtx, rec); err != nil {
				return n, teeRunning, err
			}
			n++
			if err := fn(rec.Dataset); err != nil {
				return n, teeRunning, err
			}
		}
	}
	return n, teeRunning, nil
}
