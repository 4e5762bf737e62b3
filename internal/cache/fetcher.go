package cache

import (
	"context"
	"errors"
	"io"
	"log"
	"time"

	"github.com/roamtools/roamsync/internal/block"
	"github.com/roamtools/roamsync/internal/format"
)

// DefaultTTL is how long a cached page is served without refetching.
const DefaultTTL = 15 * time.Minute

// Fetcher is a read-through cache in front of a remote fetcher. Fresh
// entries are served from the store; misses and stale entries go to the
// remote and are written back.
type Fetcher struct {
	store  *Store
	remote format.Fetcher
	ttl    time.Duration
	logger *log.Logger
}

// NewFetcher wraps a remote fetcher with the store. A zero ttl means
// DefaultTTL. A nil logger discards log output.
func NewFetcher(store *Store, remote format.Fetcher, ttl time.Duration, logger *log.Logger) *Fetcher {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Fetcher{store: store, remote: remote, ttl: ttl, logger: logger}
}

// FetchPage serves a page from the cache when fresh, otherwise pulls it
// from the remote and caches the result.
func (f *Fetcher) FetchPage(ctx context.Context, title string) (*block.Block, error) {
	age, err := f.store.Age(ctx, title)
	if err == nil && age <= f.ttl {
		if page, err := f.store.GetPageContext(ctx, title); err == nil {
			return page, nil
		}
	}

	page, err := f.remote.FetchPage(ctx, title)
	if err != nil {
		return nil, err
	}
	if err := f.store.PutPageContext(ctx, title, page); err != nil {
		// A write-back failure degrades to uncached, not to an error.
		f.logger.Printf("[cache] failed to cache page %q: %v", title, err)
	}
	return page, nil
}

// FetchBlock serves a block subtree from the cache, falling back to the
// remote. Fetched subtrees are cached under a synthetic page title so a
// later fetch of the same uid hits.
func (f *Fetcher) FetchBlock(ctx context.Context, uid string) (*block.Block, error) {
	if b, err := f.store.GetBlockContext(ctx, uid); err == nil {
		return b, nil
	} else if !errors.Is(err, block.ErrNotFound) {
		return nil, err
	}

	b, err := f.remote.FetchBlock(ctx, uid)
	if err != nil {
		return nil, err
	}
	if err := f.store.PutPageContext(ctx, "block:"+uid, b); err != nil {
		f.logger.Printf("[cache] failed to cache block %s: %v", uid, err)
	}
	return b, nil
}
