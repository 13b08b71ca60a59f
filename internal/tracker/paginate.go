package tracker

import (
	"context"
	"iter"

	"github.com/cenkalti/backoff/v4"

	"github.com/codeface/bugcrawl/internal/types"
)

// PageFunc fetches one listing page starting at offset.
type PageFunc func(ctx context.Context, offset, limit int) ([]types.IssueID, error)

// Paginate walks an offset/limit listing until a page comes back empty.
// The offset advances by the number of IDs a page returned, since servers
// may serve fewer than limit per page.
// A page that fails with a retryable error is retried under a fresh policy
// from newBackOff; a decode failure or an exhausted policy ends the
// sequence with that error.
func Paginate(ctx context.Context, limit int, newBackOff func() backoff.BackOff, page PageFunc) iter.Seq2[types.IssueID, error] {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if newBackOff == nil {
		newBackOff = DefaultDiscoveryBackOff
	}
	return func(yield func(types.IssueID, error) bool) {
		var ids []types.IssueID
		for offset := 0; ; offset += len(ids) {
			err := backoff.Retry(func() error {
				var err error
				ids, err = page(ctx, offset, limit)
				if err != nil && Classify(err) == ActionDrop {
					return backoff.Permanent(err)
				}
				return err
			}, backoff.WithContext(newBackOff(), ctx))
			if err != nil {
				yield("", err)
				return
			}
			if len(ids) == 0 {
				return
			}
			for _, id := range ids {
				if !yield(id, nil) {
					return
				}
			}
		}
	}
}
