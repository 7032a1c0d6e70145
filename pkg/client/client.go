// Package client is the Traffical SDK entry point. A Client keeps the
// current bundle fresh in the background, resolves parameters locally and
// synchronously, and reports decisions and conversions asynchronously.
package client

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/traffical/traffical-go/pkg/bundle"
	"github.com/traffical/traffical-go/pkg/events"
	"github.com/traffical/traffical-go/pkg/events/sqlite"
	"github.com/traffical/traffical-go/pkg/httpapi"
	"github.com/traffical/traffical-go/pkg/logger"
	"github.com/traffical/traffical-go/pkg/telemetry"
	"github.com/traffical/traffical-go/pkg/version"
)

// Client resolves parameters for one project environment. It is safe for
// concurrent use.
type Client struct {
	opts    Options
	fetcher *bundle.Fetcher
	store   *bundle.Store
	cache   *bundle.DiskCache
	emitter *events.Emitter
	outbox  *sqlite.Outbox
	now     func() time.Time

	bg        context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startOnce sync.Once
	closeOnce sync.Once
	closeErr  error
}

// New builds a client. It performs no network I/O; call Start to fetch the
// first bundle and begin background refresh.
func New(ctx context.Context, opts Options) (*Client, error) {
	if err := opts.normalize(); err != nil {
		return nil, errors.Wrap(err, "invalid client options")
	}

	httpOpts := []httpapi.Option{httpapi.WithUserAgent(version.SDKName)}
	if opts.HTTPClient != nil {
		httpOpts = append(httpOpts, httpapi.WithHTTPClient(opts.HTTPClient))
	}
	api, err := httpapi.New(opts.BaseURL, opts.APIKey, httpOpts...)
	if err != nil {
		return nil, err
	}

	bg := logger.WithProject(context.WithoutCancel(ctx), opts.ProjectID, opts.Environment)
	bg, cancel := context.WithCancel(bg)

	c := &Client{
		opts:    opts,
		fetcher: bundle.NewFetcher(api, opts.ProjectID, opts.Environment),
		store:   bundle.NewStore(),
		now:     time.Now,
		bg:      bg,
		cancel:  cancel,
	}

	if opts.Bootstrap != nil {
		if err := opts.Bootstrap.Prepare(); err != nil {
			cancel()
			return nil, errors.Wrap(err, "invalid bootstrap bundle")
		}
		c.store.Replace(&bundle.Snapshot{Bundle: opts.Bootstrap, FetchedAt: c.now()})
	}
	if opts.CachePath != "" {
		c.cache = bundle.NewDiskCache(opts.CachePath)
	}

	if !opts.DisableTracking {
		emitterOpts := events.Options{
			BatchSize:     opts.BatchSize,
			FlushInterval: opts.FlushInterval,
			QueueSize:     opts.QueueSize,
			DedupTTL:      opts.DedupTTL,
		}
		if opts.OutboxPath != "" {
			outbox, err := sqlite.Open(ctx, opts.OutboxPath, opts.ProjectID, opts.Environment)
			if err != nil {
				cancel()
				return nil, err
			}
			c.outbox = outbox
			emitterOpts.Outbox = outbox
		}
		c.emitter = events.NewEmitter(bg, events.NewHTTPSink(api), emitterOpts)
	}

	return c, nil
}

// Start fetches the first bundle and starts the refresh loop. A failed
// fetch is logged, not returned: the client falls back to the disk cache
// and then to defaults. Only the first call has any effect; the returned
// error is non-nil only when ctx is done.
func (c *Client) Start(ctx context.Context) error {
	c.startOnce.Do(func() {
		if err := c.Refresh(ctx); err != nil {
			logger.G(ctx).WithError(err).Warn("initial bundle fetch failed")
			c.loadFromCache(ctx)
		}

		if c.opts.RefreshInterval > 0 {
			c.wg.Add(1)
			go c.refreshLoop()
		}
	})
	return ctx.Err()
}

func (c *Client) loadFromCache(ctx context.Context) {
	if c.cache == nil {
		return
	}
	cached, err := c.cache.Load()
	if err != nil {
		logger.G(ctx).WithError(err).Warn("ignoring unreadable bundle cache")
		return
	}
	if cached == nil {
		return
	}
	// keep a newer bootstrap bundle over an older cached one
	if cur := c.store.Load(); cur != nil && cur.Bundle.Version > cached.Bundle.Version {
		return
	}
	c.store.Replace(cached)
	logger.G(ctx).WithField("version", cached.Bundle.Version).Info("loaded bundle from disk cache")
}

func (c *Client) refreshLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.opts.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.bg.Done():
			return
		case <-ticker.C:
			if err := c.Refresh(c.bg); err != nil && c.bg.Err() == nil {
				logger.G(c.bg).WithError(err).Warn("bundle refresh failed, keeping current bundle")
			}
		}
	}
}

// Refresh fetches the bundle now. On 304 the current bundle is kept and its
// fetch time renewed.
func (c *Client) Refresh(ctx context.Context) error {
	return telemetry.WithSpan(ctx, telemetry.SpanBundleFetch, func(ctx context.Context) error {
		var etag string
		if cur := c.store.Load(); cur != nil {
			etag = cur.ETag
		}

		res, err := c.fetcher.Fetch(ctx, etag)
		if err != nil {
			return err
		}
		now := c.now()

		if res.NotModified {
			c.store.Touch(now)
			telemetry.Annotate(ctx, telemetry.BundleNotModifiedKey.Bool(true))
			return nil
		}

		snap := &bundle.Snapshot{Bundle: res.Bundle, FetchedAt: now, ETag: res.ETag}
		c.store.Replace(snap)
		telemetry.Annotate(ctx, telemetry.BundleVersionKey.Int64(res.Bundle.Version))
		logger.G(ctx).WithField("version", res.Bundle.Version).Debug("installed new bundle")

		if c.cache != nil {
			if err := c.cache.Save(snap); err != nil {
				logger.G(ctx).WithError(err).Warn("failed to write bundle cache")
			}
		}
		return nil
	}, telemetry.Project(c.opts.ProjectID, c.opts.Environment)...)
}

// Ready reports whether a non-stale bundle is loaded.
func (c *Client) Ready() bool {
	return !c.store.Load().Stale(c.now(), c.opts.MaxStaleness)
}

// BundleInfo describes the loaded bundle.
type BundleInfo struct {
	Version     int64
	ProjectID   string
	Environment string
	GeneratedAt time.Time
	FetchedAt   time.Time
	ETag        string
	Stale       bool
}

// BundleInfo returns metadata about the current bundle, or false when none
// is loaded.
func (c *Client) BundleInfo() (BundleInfo, bool) {
	snap := c.store.Load()
	if snap == nil {
		return BundleInfo{}, false
	}
	return BundleInfo{
		Version:     snap.Bundle.Version,
		ProjectID:   snap.Bundle.ProjectID,
		Environment: snap.Bundle.Environment,
		GeneratedAt: snap.Bundle.GeneratedAt,
		FetchedAt:   snap.FetchedAt,
		ETag:        snap.ETag,
		Stale:       snap.Stale(c.now(), c.opts.MaxStaleness),
	}, true
}

// Stats returns event delivery counters. It is zero when tracking is disabled.
func (c *Client) Stats() events.Stats {
	if c.emitter == nil {
		return events.Stats{}
	}
	return c.emitter.Stats()
}

// Flush delivers queued events and waits for the result.
func (c *Client) Flush(ctx context.Context) error {
	if c.emitter == nil {
		return nil
	}
	return c.emitter.Flush(ctx)
}

// Close stops background work and delivers queued events. It is safe to
// call more than once.
func (c *Client) Close(ctx context.Context) error {
	c.closeOnce.Do(func() {
		c.cancel()
		c.wg.Wait()

		var result *multierror.Error
		if c.emitter != nil {
			result = multierror.Append(result, c.emitter.Close(ctx))
		}
		if c.outbox != nil {
			result = multierror.Append(result, c.outbox.Close())
		}
		c.closeErr = result.ErrorOrNil()
	})
	return c.closeErr
}
