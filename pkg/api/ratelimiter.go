package api

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"
)

// RequestKind separates cheap lookups from endpoints that render images.
type RequestKind int

const (
	// RequestLookup covers JSON lookups. They are serialised per client but
	// never delayed.
	RequestLookup RequestKind = iota
	// RequestRender covers rasterised output such as QR share cards. A
	// cooldown applies between two renders from the same client.
	RequestRender
)

// RateLimiter queues requests per client address. Each address is served by
// its own goroutine, so one client cannot run requests concurrently.
type RateLimiter struct {
	renderCooldown time.Duration
	requests       chan addressedRequest
	now            func() time.Time
}

type addressedRequest struct {
	client string
	req    clientRequest
}

type clientRequest struct {
	ctx     context.Context
	kind    RequestKind
	arrived time.Time
	grant   chan grant
}

type grant struct {
	done chan struct{}
	wait time.Duration
	err  error
}

// Permit is held while a request is served.
type Permit struct {
	done chan struct{}
	// Waited is how long the request sat in the queue and cooldown.
	Waited time.Duration
}

// Release hands the client's slot to its next queued request. Releasing
// twice is harmless.
func (p *Permit) Release() {
	if p == nil || p.done == nil {
		return
	}
	close(p.done)
	p.done = nil
}

// NewRateLimiter starts the dispatcher goroutine.
func NewRateLimiter(renderCooldown time.Duration) *RateLimiter {
	l := &RateLimiter{
		renderCooldown: renderCooldown,
		requests:       make(chan addressedRequest),
		now:            time.Now,
	}
	go l.dispatch()
	return l
}

// Acquire waits for the client's slot. A nil limiter grants immediately
// with a nil permit.
func (l *RateLimiter) Acquire(ctx context.Context, client string, kind RequestKind) (*Permit, error) {
	if l == nil {
		return nil, nil
	}
	ch := make(chan grant, 1)
	req := clientRequest{ctx: ctx, kind: kind, arrived: l.now(), grant: ch}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case l.requests <- addressedRequest{client: client, req: req}:
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case g := <-ch:
		if g.err != nil {
			return nil, g.err
		}
		return &Permit{done: g.done, Waited: g.wait}, nil
	}
}

func (l *RateLimiter) dispatch() {
	queues := make(map[string]chan clientRequest)
	for ar := range l.requests {
		q, ok := queues[ar.client]
		if !ok {
			q = make(chan clientRequest)
			queues[ar.client] = q
			go l.serveClient(q)
		}
		select {
		case q <- ar.req:
		case <-ar.req.ctx.Done():
			ar.req.grant <- grant{err: ar.req.ctx.Err()}
		}
	}
}

func (l *RateLimiter) serveClient(queue <-chan clientRequest) {
	var lastRender time.Time
	for req := range queue {
		if err := req.ctx.Err(); err != nil {
			req.grant <- grant{err: err}
			continue
		}
		wait := max(l.now().Sub(req.arrived), 0)

		if req.kind == RequestRender && !lastRender.IsZero() {
			if d := lastRender.Add(l.renderCooldown).Sub(l.now()); d > 0 {
				timer := time.NewTimer(d)
				select {
				case <-req.ctx.Done():
					timer.Stop()
					req.grant <- grant{err: req.ctx.Err()}
					continue
				case <-timer.C:
					wait += d
				}
			}
		}

		done := make(chan struct{})
		select {
		case <-req.ctx.Done():
			req.grant <- grant{err: req.ctx.Err()}
			continue
		case req.grant <- grant{done: done, wait: wait}:
		}
		<-done

		if req.kind == RequestRender {
			lastRender = l.now()
		}
	}
}

// clientAddress picks the limiter key for r: the first X-Forwarded-For hop
// when present, otherwise the remote host.
func clientAddress(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
