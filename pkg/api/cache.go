package api

import (
	"context"
	"errors"
	"time"
)

var (
	errCacheDisabled = errors.New("payload cache disabled")
	errCacheStopped  = errors.New("payload cache stopped")
	errNoRender      = errors.New("payload cache: no render func")
)

// payloadRequest is the single message type accepted by the cache loop.
type payloadRequest struct {
	ctx    context.Context
	key    string
	render func(context.Context) ([]byte, error)
	reply  chan payloadReply
}

type payloadReply struct {
	data []byte
	err  error
}

type payloadEntry struct {
	data    []byte
	expires time.Time
	hits    int
}

// PayloadCache keeps rendered JSON bodies (region lists, meshes) so repeated
// requests within the TTL skip re-encoding. All state lives in one goroutine.
// The registry is immutable, so entries only expire by age or count.
type PayloadCache struct {
	ttl      time.Duration
	limit    int
	requests chan payloadRequest
	stats    chan chan CacheStats
	quit     chan struct{}
	now      func() time.Time
}

// CacheStats is a point-in-time view of the cache loop.
type CacheStats struct {
	Entries int `json:"entries"`
	Hits    int `json:"hits"`
	Misses  int `json:"misses"`
}

// NewPayloadCache starts the cache goroutine. A non-positive ttl returns
// nil, which disables caching. limit caps the entry count; zero means 512.
func NewPayloadCache(ttl time.Duration, limit int) *PayloadCache {
	if ttl <= 0 {
		return nil
	}
	if limit <= 0 {
		limit = 512
	}
	c := &PayloadCache{
		ttl:      ttl,
		limit:    limit,
		requests: make(chan payloadRequest),
		stats:    make(chan chan CacheStats),
		quit:     make(chan struct{}),
		now:      time.Now,
	}
	go c.loop()
	return c
}

// Close stops the goroutine. Repeated calls are no-ops.
func (c *PayloadCache) Close() {
	if c == nil {
		return
	}
	select {
	case <-c.quit:
	default:
		close(c.quit)
	}
}

// Get returns the cached body for key, calling render on a miss. The
// returned slice is a private copy.
func (c *PayloadCache) Get(ctx context.Context, key string, render func(context.Context) ([]byte, error)) ([]byte, error) {
	if c == nil {
		return nil, errCacheDisabled
	}
	req := payloadRequest{ctx: ctx, key: key, render: render, reply: make(chan payloadReply, 1)}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.quit:
		return nil, errCacheStopped
	case c.requests <- req:
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.quit:
		return nil, errCacheStopped
	case resp := <-req.reply:
		if resp.err != nil || resp.data == nil {
			return nil, resp.err
		}
		return append([]byte(nil), resp.data...), nil
	}
}

// Stats reports entry and hit counters. A nil or stopped cache reports zeros.
func (c *PayloadCache) Stats() CacheStats {
	if c == nil {
		return CacheStats{}
	}
	reply := make(chan CacheStats, 1)
	select {
	case c.stats <- reply:
		return <-reply
	case <-c.quit:
		return CacheStats{}
	}
}

func (c *PayloadCache) loop() {
	store := make(map[string]*payloadEntry)
	var hits, misses int
	for {
		select {
		case <-c.quit:
			return
		case reply := <-c.stats:
			reply <- CacheStats{Entries: len(store), Hits: hits, Misses: misses}
		case req := <-c.requests:
			now := c.now()
			if e, ok := store[req.key]; ok && now.Before(e.expires) {
				e.hits++
				hits++
				req.reply <- payloadReply{data: e.data}
				continue
			}
			misses++
			if req.render == nil {
				req.reply <- payloadReply{err: errNoRender}
				continue
			}
			data, err := req.render(req.ctx)
			if err != nil {
				delete(store, req.key)
				req.reply <- payloadReply{err: err}
				continue
			}
			if data != nil {
				if len(store) >= c.limit {
					evictOne(store, now)
				}
				store[req.key] = &payloadEntry{data: append([]byte(nil), data...), expires: now.Add(c.ttl)}
			}
			req.reply <- payloadReply{data: data}
		}
	}
}

// evictOne drops an expired entry if there is one, otherwise the entry
// with the fewest hits.
func evictOne(store map[string]*payloadEntry, now time.Time) {
	var victim string
	least := -1
	for k, e := range store {
		if !now.Before(e.expires) {
			delete(store, k)
			return
		}
		if least < 0 || e.hits < least || (e.hits == least && k < victim) {
			victim, least = k, e.hits
		}
	}
	delete(store, victim)
}
