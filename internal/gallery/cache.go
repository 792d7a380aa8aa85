package gallery

import (
	"context"
	"log"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"face-attendance-backend/internal/recognition"
)

// DefaultLoadTimeout bounds a shared rebuild when no timeout is configured.
const DefaultLoadTimeout = 30 * time.Second

// Cache keeps the last loaded gallery for ttl. Refresh drops it and bumps the
// version so that a rebuild in flight is not stored under the new version.
// A ttl of zero disables caching and every call rebuilds the gallery.
type Cache struct {
	loader      *Loader
	ttl         time.Duration
	loadTimeout time.Duration
	items       *cache.Cache
	group       singleflight.Group
	version     atomic.Int64
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithLoadTimeout bounds each shared rebuild.
func WithLoadTimeout(d time.Duration) CacheOption {
	return func(c *Cache) {
		if d > 0 {
			c.loadTimeout = d
		}
	}
}

// NewCache wraps loader with a snapshot cache.
func NewCache(loader *Loader, ttl time.Duration, opts ...CacheOption) *Cache {
	c := &Cache{
		loader:      loader,
		ttl:         ttl,
		loadTimeout: DefaultLoadTimeout,
		items:       cache.New(ttl, 2*ttl),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Cache) key(v int64) string {
	return "gallery:" + strconv.FormatInt(v, 10)
}

// Gallery implements Provider.
func (c *Cache) Gallery(ctx context.Context) (recognition.Gallery, error) {
	if c.ttl <= 0 {
		return c.loader.Load(ctx)
	}

	v := c.version.Load()
	key := c.key(v)
	if g, ok := c.items.Get(key); ok {
		return g.(recognition.Gallery), nil
	}

	// The rebuild is shared by every waiter, so it must outlive the caller
	// that started it.
	ch := c.group.DoChan(key, func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.loadTimeout)
		defer cancel()

		g, err := c.loader.Load(loadCtx)
		if err != nil {
			return nil, err
		}
		if c.version.Load() == v {
			c.items.SetDefault(key, g)
		}
		return g, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(recognition.Gallery), nil
	}
}

// Refresh invalidates the cached snapshot and returns the new version.
func (c *Cache) Refresh() int64 {
	v := c.version.Add(1)
	c.items.Flush()
	return v
}

// Version returns the current snapshot version.
func (c *Cache) Version() int64 {
	return c.version.Load()
}

// Enabled reports whether snapshots are kept between calls.
func (c *Cache) Enabled() bool {
	return c.ttl > 0
}

// ScheduleRefresh rebuilds the cached gallery every interval.
// The returned scheduler is already running; stop it on shutdown.
func ScheduleRefresh(c *Cache, interval time.Duration, timeout time.Duration) (*gocron.Scheduler, error) {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()

	_, err := s.Every(interval).WaitForSchedule().Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		v := c.Refresh()
		g, err := c.Gallery(ctx)
		if err != nil {
			log.Printf("Scheduled gallery refresh %d failed: %v", v, err)
			return
		}
		log.Printf("Scheduled gallery refresh %d loaded %d entries", v, len(g))
	})
	if err != nil {
		return nil, err
	}

	s.StartAsync()
	return s, nil
}
