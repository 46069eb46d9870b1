package viewer

import (
	"context"
	"time"
)

// BulkOptions controls the sequential download-all action.
type BulkOptions struct {
	// Delay between consecutive downloads, keeping rapid programmatic
	// downloads from being throttled by the receiving client.
	Delay time.Duration
	// Progress, when non-nil, receives the running count after each
	// delivered asset.
	Progress func(done, total int)
}

// DownloadAll delivers each successfully rendered asset to sink, in order,
// one at a time with a fixed delay between items. Placeholder assets are
// skipped. The context cancels the wait between items.
func DownloadAll(ctx context.Context, assets []Asset, sink func(Asset) error, opts BulkOptions) (delivered int, err error) {
	real := make([]Asset, 0, len(assets))
	for _, a := range assets {
		if !a.Placeholder {
			real = append(real, a)
		}
	}
	total := len(real)
	for i, a := range real {
		if i > 0 && opts.Delay > 0 {
			select {
			case <-ctx.Done():
				return delivered, ctx.Err()
			case <-time.After(opts.Delay):
			}
		}
		if err := sink(a); err != nil {
			return delivered, err
		}
		delivered++
		if opts.Progress != nil {
			opts.Progress(delivered, total)
		}
	}
	return delivered, nil
}
